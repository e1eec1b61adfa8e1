// Package config loads gepa configuration from defaults, an optional
// JSON config file, and environment variable overrides, in that order.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is the root configuration for every gepa command.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	LLM       LLMConfig       `json:"llm"`
	Optimizer OptimizerConfig `json:"optimizer"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Dataset   DatasetConfig   `json:"dataset"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host        string   `json:"host"`
	Port        int      `json:"port"`
	CORSOrigins []string `json:"cors_origins"`
}

// DatabaseConfig configures run persistence. An empty URL disables the
// database entirely; optimization runs then keep results in memory and
// the artifact file only.
type DatabaseConfig struct {
	URL string `json:"url"`
}

// LLMConfig configures the language model endpoint. An empty URL keeps
// the SDK default endpoint; Offline switches to the deterministic
// offline adapter regardless of URL.
type LLMConfig struct {
	URL            string `json:"url"`
	APIKey         string `json:"api_key"`
	Model          string `json:"model"`
	MaxTokens      int    `json:"max_tokens"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Offline        bool   `json:"offline"`
}

// OptimizerConfig holds the loop knobs. Fields map onto
// optimizer.Options; OutputFile is where the optimized-prompts artifact
// is written after a run.
type OptimizerConfig struct {
	RunName               string  `json:"run_name"`
	Budget                int     `json:"budget"`
	MinibatchSize         int     `json:"minibatch_size"`
	MergeFrequency        int     `json:"merge_frequency"`
	MaxCandidates         int     `json:"max_candidates"`
	AncestorDepth         int     `json:"ancestor_depth"`
	Parallelism           int     `json:"parallelism"`
	Seed                  int64   `json:"seed"`
	ReflectionTemperature float64 `json:"reflection_temperature"`
	OutputFile            string  `json:"output_file"`
}

// PipelineConfig configures pipeline execution outside the optimizer.
// PromptsFile, when set, overlays an optimized-prompts artifact on the
// default stage instructions.
type PipelineConfig struct {
	PromptsFile string `json:"prompts_file"`
}

// DatasetConfig points at the training and validation example files.
type DatasetConfig struct {
	TrainFile string `json:"train_file"`
	ValFile   string `json:"val_file"`
}

// DefaultConfig returns the configuration used when no file and no
// environment overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "localhost",
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			URL: "",
		},
		LLM: LLMConfig{
			URL:            "",
			APIKey:         "",
			Model:          "gpt-4o-mini",
			MaxTokens:      4096,
			TimeoutSeconds: 60,
			Offline:        false,
		},
		Optimizer: OptimizerConfig{
			RunName:               "gepa",
			Budget:                100,
			MinibatchSize:         3,
			MergeFrequency:        5,
			MaxCandidates:         20,
			AncestorDepth:         5,
			Parallelism:           4,
			Seed:                  42,
			ReflectionTemperature: 0.3,
			OutputFile:            "optimized_prompts.yaml",
		},
		Pipeline: PipelineConfig{
			PromptsFile: "",
		},
		Dataset: DatasetConfig{
			TrainFile: "",
			ValFile:   "",
		},
	}
}

// Load builds the effective configuration: defaults, then the JSON
// config file if one exists, then environment overrides, then
// validation.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if path := configPath(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file %s: %w", path, err)
			}
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configPath resolves the config file location. GEPA_CONFIG wins;
// otherwise the first existing candidate under the home directory is
// used, and "" means no file.
func configPath() string {
	if path := os.Getenv("GEPA_CONFIG"); path != "" {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	candidates := []string{
		filepath.Join(home, ".config", "gepa", "config.json"),
		filepath.Join(home, ".gepa", "config.json"),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func (c *Config) applyEnvOverrides() {
	c.Server.Host = envString("GEPA_SERVER_HOST", c.Server.Host)
	c.Server.Port = envInt("GEPA_SERVER_PORT", c.Server.Port)
	c.Server.CORSOrigins = envStringSlice("GEPA_CORS_ORIGINS", c.Server.CORSOrigins)

	c.Database.URL = envString("GEPA_DATABASE_URL", c.Database.URL)

	c.LLM.URL = envString("GEPA_LLM_URL", c.LLM.URL)
	c.LLM.APIKey = envString("GEPA_LLM_API_KEY", c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = envString("OPENAI_API_KEY", c.LLM.APIKey)
	}
	c.LLM.Model = envString("GEPA_LLM_MODEL", c.LLM.Model)
	c.LLM.MaxTokens = envInt("GEPA_LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.TimeoutSeconds = envInt("GEPA_LLM_TIMEOUT_SECONDS", c.LLM.TimeoutSeconds)
	c.LLM.Offline = envBool("GEPA_LLM_OFFLINE", c.LLM.Offline)

	c.Optimizer.RunName = envString("GEPA_OPTIMIZER_RUN_NAME", c.Optimizer.RunName)
	c.Optimizer.Budget = envInt("GEPA_OPTIMIZER_BUDGET", c.Optimizer.Budget)
	c.Optimizer.MinibatchSize = envInt("GEPA_OPTIMIZER_MINIBATCH_SIZE", c.Optimizer.MinibatchSize)
	c.Optimizer.MergeFrequency = envInt("GEPA_OPTIMIZER_MERGE_FREQUENCY", c.Optimizer.MergeFrequency)
	c.Optimizer.MaxCandidates = envInt("GEPA_OPTIMIZER_MAX_CANDIDATES", c.Optimizer.MaxCandidates)
	c.Optimizer.AncestorDepth = envInt("GEPA_OPTIMIZER_ANCESTOR_DEPTH", c.Optimizer.AncestorDepth)
	c.Optimizer.Parallelism = envInt("GEPA_OPTIMIZER_PARALLELISM", c.Optimizer.Parallelism)
	c.Optimizer.Seed = envInt64("GEPA_OPTIMIZER_SEED", c.Optimizer.Seed)
	c.Optimizer.ReflectionTemperature = envFloat("GEPA_OPTIMIZER_REFLECTION_TEMPERATURE", c.Optimizer.ReflectionTemperature)
	c.Optimizer.OutputFile = envString("GEPA_OPTIMIZER_OUTPUT_FILE", c.Optimizer.OutputFile)

	c.Pipeline.PromptsFile = envString("GEPA_PIPELINE_PROMPTS_FILE", c.Pipeline.PromptsFile)

	c.Dataset.TrainFile = envString("GEPA_DATASET_TRAIN_FILE", c.Dataset.TrainFile)
	c.Dataset.ValFile = envString("GEPA_DATASET_VAL_FILE", c.Dataset.ValFile)
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if c.Database.URL != "" && !isValidURL(c.Database.URL) {
		errs = append(errs, fmt.Sprintf("database URL is invalid: %s", c.Database.URL))
	}

	if c.LLM.URL != "" && !isValidURL(c.LLM.URL) {
		errs = append(errs, fmt.Sprintf("llm URL is invalid: %s", c.LLM.URL))
	}
	if c.LLM.MaxTokens < 1 {
		errs = append(errs, fmt.Sprintf("llm max_tokens must be positive, got %d", c.LLM.MaxTokens))
	}
	if c.LLM.TimeoutSeconds < 1 {
		errs = append(errs, fmt.Sprintf("llm timeout_seconds must be positive, got %d", c.LLM.TimeoutSeconds))
	}

	if c.Optimizer.Budget < 1 {
		errs = append(errs, fmt.Sprintf("optimizer budget must be positive, got %d", c.Optimizer.Budget))
	}
	if c.Optimizer.MinibatchSize < 1 {
		errs = append(errs, fmt.Sprintf("optimizer minibatch_size must be positive, got %d", c.Optimizer.MinibatchSize))
	}
	if c.Optimizer.MergeFrequency < 1 {
		errs = append(errs, fmt.Sprintf("optimizer merge_frequency must be positive, got %d", c.Optimizer.MergeFrequency))
	}
	if c.Optimizer.MaxCandidates < 2 {
		errs = append(errs, fmt.Sprintf("optimizer max_candidates must be at least 2, got %d", c.Optimizer.MaxCandidates))
	}
	if c.Optimizer.AncestorDepth < 1 {
		errs = append(errs, fmt.Sprintf("optimizer ancestor_depth must be positive, got %d", c.Optimizer.AncestorDepth))
	}
	if c.Optimizer.Parallelism < 1 {
		errs = append(errs, fmt.Sprintf("optimizer parallelism must be positive, got %d", c.Optimizer.Parallelism))
	}
	if c.Optimizer.ReflectionTemperature < 0 || c.Optimizer.ReflectionTemperature > 2 {
		errs = append(errs, fmt.Sprintf("optimizer reflection_temperature must be between 0 and 2, got %g", c.Optimizer.ReflectionTemperature))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envStringSlice(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for i := 0; i < len(parts); i++ {
		if trimmed := strings.TrimSpace(parts[i]); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func isValidURL(raw string) bool {
	parsed, err := url.Parse(raw)
	return err == nil && parsed.Scheme != "" && parsed.Host != ""
}
