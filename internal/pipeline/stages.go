package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/longregen/gepa/internal/domain/models"
)

// Stage names, in execution order.
const (
	StageSchemaDiscovery     = "schema_discovery"
	StageEntityExtraction    = "entity_extraction"
	StageRelationshipMapping = "relationship_mapping"
	StageTemporalEnrichment  = "temporal_enrichment"
	StageAlertGeneration     = "alert_generation"
	StageCypherGeneration    = "cypher_generation"
)

// Canonical node labels and relationship types emitted by the pipeline.
const (
	LabelOrder    = "Order"
	LabelLineItem = "OrderLineItem"
	LabelEmployee = "Employee"

	RelPartOfOrder = "IS_PART_OF_ORDER_HEADER"
)

// NewOrderGraph returns the six-stage order-graph pipeline with its default
// instructions. The stage implementations are deterministic heuristics; the
// instruction each stage carries is what the optimizer rewrites.
func NewOrderGraph() *Pipeline {
	p, err := New(
		Stage{
			Config: models.NewStageConfig(StageSchemaDiscovery,
				"Identify entity types and relationship templates from a raw point-of-sale JSON record.",
				map[string]string{"raw_json": "object"},
				map[string]string{"entities": "array", "relationships": "array"}),
			Run: discoverSchema,
		},
		Stage{
			Config: models.NewStageConfig(StageEntityExtraction,
				"Extract nodes and properties, include GUIDs and timestamps, deduplicate on GUID.",
				map[string]string{"order_data": "object"},
				map[string]string{"nodes": "array"}),
			Run: extractEntities,
		},
		Stage{
			Config: models.NewStageConfig(StageRelationshipMapping,
				"Map nodes to relationships using canonical types such as IS_PART_OF_ORDER_HEADER.",
				map[string]string{"nodes": "array"},
				map[string]string{"relationships": "array"}),
			Run: mapRelationships,
		},
		Stage{
			Config: models.NewStageConfig(StageTemporalEnrichment,
				"Add temporal nodes/relations for dates, shifts, hours.",
				map[string]string{"nodes": "array", "timestamp_fields": "array"},
				map[string]string{"temporal_nodes": "array", "temporal_relationships": "array"}),
			Run: enrichTemporal,
		},
		Stage{
			Config: models.NewStageConfig(StageAlertGeneration,
				"Detect fraud/anomaly patterns and return structured alerts.",
				map[string]string{"aggregated_data": "object"},
				map[string]string{"alerts": "array"}),
			Run: generateAlerts,
		},
		Stage{
			Config: models.NewStageConfig(StageCypherGeneration,
				"Produce efficient Cypher for batch ingestion; prefer UNWIND.",
				map[string]string{"nodes": "array", "relationships": "array"},
				map[string]string{"cypher_queries": "array"}),
			Run: generateCypher,
		},
	)
	if err != nil {
		panic(fmt.Sprintf("failed to build order-graph pipeline: %v", err))
	}
	return p
}

// discoverSchema lists candidate entity labels from the record's top-level
// keys whose values are objects, with a key sample as the example.
func discoverSchema(_ context.Context, _ *models.StageConfig, doc map[string]any) (map[string]any, error) {
	raw := firstMap(doc, "raw_json", "order_data")
	entities := make([]map[string]any, 0)
	for _, k := range sortedKeys(raw) {
		nested := asMap(raw[k])
		if nested == nil {
			continue
		}
		keys := sortedKeys(nested)
		if len(keys) > 10 {
			keys = keys[:10]
		}
		entities = append(entities, map[string]any{
			"label":   k,
			"example": fmt.Sprintf("%v", keys),
		})
	}
	return map[string]any{
		"entities":      entities,
		"relationships": []map[string]any{},
	}, nil
}

// extractEntities pulls the order header, its line-item selections, and the
// serving employee out of the raw record. GUIDs fall back to plain ids when
// the source record carries no guid field.
func extractEntities(_ context.Context, _ *models.StageConfig, doc map[string]any) (map[string]any, error) {
	record := firstMap(doc, "order_data", "raw_json")
	nodes := make([]map[string]any, 0)

	order := firstMap(record, "order", "orderHeader")
	if len(order) > 0 {
		nodes = append(nodes, map[string]any{
			"label": LabelOrder,
			"guid":  anyOf(order, "guid", "id"),
			"props": order,
		})
		for _, sel := range mapItems(order["selections"]) {
			nodes = append(nodes, map[string]any{
				"label": LabelLineItem,
				"guid":  anyOf(sel, "guid", "id"),
				"props": sel,
			})
		}
		if emp := firstMap(order, "employee", "server"); len(emp) > 0 {
			nodes = append(nodes, map[string]any{
				"label": LabelEmployee,
				"guid":  anyOf(emp, "guid", "entityId", "id"),
				"props": emp,
			})
		}
	}
	return map[string]any{"nodes": nodes, "nodes_created": len(nodes)}, nil
}

// mapRelationships joins line items to their order header on the line
// item's orderGuid property.
func mapRelationships(_ context.Context, _ *models.StageConfig, doc map[string]any) (map[string]any, error) {
	nodes := mapItems(doc["nodes"])

	orders := make(map[string]struct{})
	for _, n := range nodes {
		if n["label"] == LabelOrder && n["guid"] != nil {
			orders[fmt.Sprint(n["guid"])] = struct{}{}
		}
	}

	rels := make([]map[string]any, 0)
	for _, n := range nodes {
		if n["label"] != LabelLineItem {
			continue
		}
		og := anyOf(asMap(n["props"]), "orderGuid", "order_guid")
		if og == nil {
			continue
		}
		if _, ok := orders[fmt.Sprint(og)]; !ok {
			continue
		}
		rels = append(rels, map[string]any{
			"type": RelPartOfOrder,
			"from": n["guid"],
			"to":   og,
		})
	}
	return map[string]any{"relationships": rels, "relationships_created": len(rels)}, nil
}

func enrichTemporal(_ context.Context, _ *models.StageConfig, _ map[string]any) (map[string]any, error) {
	return map[string]any{
		"temporal_nodes":         []map[string]any{},
		"temporal_relationships": []map[string]any{},
	}, nil
}

func generateAlerts(_ context.Context, _ *models.StageConfig, _ map[string]any) (map[string]any, error) {
	return map[string]any{"alerts": []map[string]any{}}, nil
}

// generateCypher emits batched UNWIND statements for whatever nodes and
// relationships earlier stages produced.
func generateCypher(_ context.Context, _ *models.StageConfig, doc map[string]any) (map[string]any, error) {
	queries := make([]string, 0, 2)
	if len(mapItems(doc["nodes"])) > 0 {
		queries = append(queries, "UNWIND $batch AS row MERGE (n:Node {guid: row.guid}) SET n += row.props")
	}
	if len(mapItems(doc["relationships"])) > 0 {
		queries = append(queries, "UNWIND $rels AS r MATCH (a {guid: r.from}), (b {guid: r.to}) MERGE (a)-[x:REL]->(b)")
	}
	return map[string]any{"cypher_queries": queries}, nil
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// firstMap returns the first non-empty object found under the given keys.
func firstMap(m map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if nested := asMap(m[key]); len(nested) > 0 {
			return nested
		}
	}
	return nil
}

// anyOf returns the first non-nil value found under the given keys.
func anyOf(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mapItems(v any) []map[string]any {
	switch items := v.(type) {
	case []map[string]any:
		return items
	case []any:
		out := make([]map[string]any, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}
