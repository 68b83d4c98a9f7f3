// Package config loads runtime configuration from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Model    ModelConfig
	Workflow WorkflowConfig
	Filter   FilterConfig
	Tool     ToolConfig
	Search   SearchConfig
	Redis    RedisConfig
	Logging  LogConfig
}

// ModelConfig names the models used by the distinct call sites. Planning,
// conclusion and filter calls may use cheaper models than the reasoning loop.
type ModelConfig struct {
	Default    string `envconfig:"DEFAULT_MODEL_NAME" default:"qwen-plus"`
	Planning   string `envconfig:"PLANNING_MODEL_NAME" default:"qwen-plus"`
	Conclusion string `envconfig:"CONCLUSION_MODEL_NAME" default:"qwen-plus"`
	Filter     string `envconfig:"FILTER_MODEL_NAME" default:"qwen-turbo"`

	Temperature float64 `envconfig:"MODEL_TEMPERATURE" default:"0.01"`
	MaxTokens   int64   `envconfig:"MODEL_MAX_TOKENS" default:"8192"`
}

// WorkflowConfig bounds a single engine run.
type WorkflowConfig struct {
	Timeout       time.Duration `envconfig:"WORKFLOW_TIMEOUT" default:"1h"`
	MaxIterations int           `envconfig:"WORKFLOW_MAX_ITERATIONS" default:"20"`
	MaxModelCalls int           `envconfig:"WORKFLOW_MAX_MODEL_CALLS" default:"0"`
	MaxParallel   int           `envconfig:"MAX_PARALLEL_WORKFLOWS" default:"3"`
}

// FilterConfig sets the chunk filter lane geometry.
type FilterConfig struct {
	MaxLanes      int `envconfig:"FILTER_MAX_LANES" default:"3"`
	ChunksPerLane int `envconfig:"FILTER_CHUNKS_PER_LANE" default:"3"`
}

// ToolConfig sets tool dispatch timeouts and retry policy.
type ToolConfig struct {
	CallTimeout  time.Duration `envconfig:"TOOL_CALL_TIMEOUT" default:"60s"`
	MaxRetries   int           `envconfig:"TOOL_MAX_RETRIES" default:"3"`
	RetryBackoff time.Duration `envconfig:"TOOL_RETRY_BACKOFF" default:"1s"`

	// Whitelist restricts which tools each workflow category may see.
	// Map values are "|"-separated tool names; the "default" key applies to
	// categories without an explicit entry. An empty map exposes all tools.
	Whitelist map[string]string `envconfig:"TOOL_WHITELIST"`
}

// ToolWhitelist expands the "|"-separated whitelist values into name lists.
func (c ToolConfig) ToolWhitelist() map[string][]string {
	if len(c.Whitelist) == 0 {
		return nil
	}
	out := make(map[string][]string, len(c.Whitelist))
	for category, names := range c.Whitelist {
		var list []string
		for _, n := range strings.Split(names, "|") {
			if n = strings.TrimSpace(n); n != "" {
				list = append(list, n)
			}
		}
		out[category] = list
	}
	return out
}

// SearchConfig holds the Elasticsearch hybrid-retrieval configuration.
type SearchConfig struct {
	Endpoint string        `envconfig:"ES_ENDPOINT" default:"http://localhost:9200"`
	Index    string        `envconfig:"ES_INDEX" default:"documents"`
	Auth     string        `envconfig:"ES_AUTH" default:""`
	Timeout  time.Duration `envconfig:"ES_TIMEOUT" default:"60s"`

	// Per-category index routing; categories absent from the map fall back
	// to Index.
	IndexMapping map[string]string `envconfig:"ES_INDEX_MAPPING"`

	SearchSize       int `envconfig:"ES_SEARCH_SIZE" default:"15"`
	RRFK             int `envconfig:"ES_RRF_K" default:"10"`
	VectorCandidates int `envconfig:"ES_VECTOR_CANDIDATES" default:"20"`
	TextCandidates   int `envconfig:"ES_TEXT_CANDIDATES" default:"20"`

	EmbeddingURL string `envconfig:"EMBEDDING_ONLINE_URL" default:""`
}

// RedisConfig holds the plan store connection settings.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"text"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Default:     "qwen-plus",
			Planning:    "qwen-plus",
			Conclusion:  "qwen-plus",
			Filter:      "qwen-turbo",
			Temperature: 0.01,
			MaxTokens:   8192,
		},
		Workflow: WorkflowConfig{
			Timeout:       time.Hour,
			MaxIterations: 20,
			MaxParallel:   3,
		},
		Filter: FilterConfig{
			MaxLanes:      3,
			ChunksPerLane: 3,
		},
		Tool: ToolConfig{
			CallTimeout:  60 * time.Second,
			MaxRetries:   3,
			RetryBackoff: time.Second,
		},
		Search: SearchConfig{
			Endpoint:         "http://localhost:9200",
			Index:            "documents",
			Timeout:          60 * time.Second,
			SearchSize:       15,
			RRFK:             10,
			VectorCandidates: 20,
			TextCandidates:   20,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
