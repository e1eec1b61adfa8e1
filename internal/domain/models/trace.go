package models

// StageTrace captures a single stage invocation during a pipeline run.
// Traces are created fresh per run, never mutated after creation, and are
// consumed immediately by the evaluator and feedback generator.
type StageTrace struct {
	StageName            string         `json:"stage_name"`
	InputData            map[string]any `json:"input_data,omitempty"`
	OutputData           map[string]any `json:"output_data,omitempty"`
	ExecutionTimeMs      float64        `json:"execution_time_ms"`
	Success              bool           `json:"success"`
	ErrorMessage         string         `json:"error_message,omitempty"`
	CypherQueries        []string       `json:"cypher_queries,omitempty"`
	NodesCreated         int            `json:"nodes_created"`
	RelationshipsCreated int            `json:"relationships_created"`
	ValidationErrors     []string       `json:"validation_errors,omitempty"`
}
