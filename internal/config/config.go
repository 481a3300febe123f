// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the agent configuration.
type Config struct {
	Agent     AgentConfig     `toml:"agent"`
	LLM       LLMConfig       `toml:"llm"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Search    SearchConfig    `toml:"search"` // Web search backend
	Cache     CacheConfig     `toml:"cache"`
	Trace     TraceConfig     `toml:"trace"`
	Safety    SafetyConfig    `toml:"safety"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Logging   LoggingConfig   `toml:"logging"`
	Server    ServerConfig    `toml:"server"`
}

// AgentConfig controls the step loop and the evidence gate.
type AgentConfig struct {
	MaxSteps             int     `toml:"max_steps"`
	MinSteps             int     `toml:"min_steps"` // advisory only
	UseEvidenceGate      bool    `toml:"use_evidence_gate"`
	EnableSearch         bool    `toml:"enable_search"`
	EnableSafety         bool    `toml:"enable_safety"`
	MinSources           int     `toml:"min_sources"`
	RelevanceThreshold   float64 `toml:"relevance_threshold"`
	Temperature          float64 `toml:"temperature"`
	SynthesisTemperature float64 `toml:"synthesis_temperature"`
	MaxParseRetries      int     `toml:"max_parse_retries"`
	SystemPromptFile     string  `toml:"system_prompt_file"`
}

// LLMConfig contains LLM provider settings.
type LLMConfig struct {
	Model      string `toml:"model"`
	BaseURL    string `toml:"base_url"` // OpenAI-compatible endpoint (OpenRouter, LiteLLM, Ollama)
	APIKeyEnv  string `toml:"api_key_env"`
	SystemRole string `toml:"system_role"`
	Timeout    int    `toml:"timeout"` // seconds
}

// RetrievalConfig configures the local knowledge base and hybrid retrieval.
type RetrievalConfig struct {
	DocsDir           string  `toml:"docs_dir"`
	Index             string  `toml:"index"` // flat or sqlite
	IndexPath         string  `toml:"index_path"`
	TopK              int     `toml:"top_k"`
	LocalThreshold    float64 `toml:"local_threshold"` // L2 distance
	WebResults        int     `toml:"web_results"`
	EmbeddingModel    string  `toml:"embedding_model"`
	EmbeddingCacheDir string  `toml:"embedding_cache_dir"` // empty disables the cache
	EmbeddingCacheTTL string  `toml:"embedding_cache_ttl"`
	Watch             bool    `toml:"watch"` // rebuild index when docs change
}

// SearchConfig contains web search backend settings.
type SearchConfig struct {
	Provider   string  `toml:"provider"` // serper, brave, duckduckgo
	APIKeyEnv  string  `toml:"api_key_env"`
	BaseURL    string  `toml:"base_url"` // empty uses the provider default
	Timeout    int     `toml:"timeout"` // seconds
	MaxRetries int     `toml:"max_retries"`
	RatePerSec float64 `toml:"rate_per_sec"`
}

// CacheConfig sizes the tool memoization caches.
type CacheConfig struct {
	CalculatorSize int `toml:"calculator_size"`
	SearchSize     int `toml:"search_size"`
}

// TraceConfig selects where run traces are persisted.
type TraceConfig struct {
	Store      string `toml:"store"` // file or sqlite
	Dir        string `toml:"dir"`
	SQLitePath string `toml:"sqlite_path"`
}

// SafetyConfig configures the request pre-filter.
type SafetyConfig struct {
	RulesFile string `toml:"rules_file"` // optional YAML overrides
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled"`
	Exporter    string `toml:"exporter"` // otlp or stdout
	Endpoint    string `toml:"endpoint"` // OTLP endpoint (e.g., localhost:4317)
	ServiceName string `toml:"service_name"`
}

// MetricsConfig configures tool execution monitoring.
type MetricsConfig struct {
	CSVPath string `toml:"csv_path"` // optional per-call CSV log
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // json or text
}

// ServerConfig configures serve mode.
type ServerConfig struct {
	NATSURL  string `toml:"nats_url"`
	Subject  string `toml:"subject"`
	HTTPAddr string `toml:"http_addr"`
	Queue    string `toml:"queue"`          // NATS queue group; empty subscribes without one
	MaxRuns  int    `toml:"max_concurrent"` // concurrent runs across both transports
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		Agent: AgentConfig{
			MaxSteps:             6,
			MinSteps:             3,
			UseEvidenceGate:      true,
			EnableSearch:         true,
			EnableSafety:         true,
			MinSources:           2,
			RelevanceThreshold:   0.8,
			Temperature:          0.1,
			SynthesisTemperature: 0.2,
			MaxParseRetries:      2,
		},
		LLM: LLMConfig{
			Model:      "gpt-4o-mini",
			APIKeyEnv:  "OPENAI_API_KEY",
			SystemRole: "You are a helpful assistant.",
			Timeout:    120,
		},
		Retrieval: RetrievalConfig{
			DocsDir:           "data/docs",
			Index:             "flat",
			IndexPath:         "data/cache/index.db",
			TopK:              3,
			LocalThreshold:    0.95,
			WebResults:        5,
			EmbeddingModel:    "text-embedding-3-small",
			EmbeddingCacheTTL: "720h",
		},
		Search: SearchConfig{
			Provider:   "serper",
			Timeout:    10,
			MaxRetries: 2,
			RatePerSec: 5,
		},
		Cache: CacheConfig{
			CalculatorSize: 128,
			SearchSize:     50,
		},
		Trace: TraceConfig{
			Store:      "file",
			Dir:        "logs",
			SQLitePath: "logs/traces.db",
		},
		Telemetry: TelemetryConfig{
			Exporter:    "otlp",
			Endpoint:    "localhost:4317",
			ServiceName: "gatedagent",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			NATSURL:  "nats://127.0.0.1:4222",
			Subject:  "agent.run",
			HTTPAddr: ":8080",
			Queue:    "gatedagent",
			MaxRuns:  4,
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file. Keys missing from the file
// keep their defaults.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ErrExists is returned by WriteFile when the target already exists.
var ErrExists = errors.New("config file already exists")

// WriteFile encodes c as TOML to path. An existing file is only replaced
// when overwrite is set.
func (c *Config) WriteFile(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s: %w", path, ErrExists)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	return f.Close()
}

// LoadDefault loads gatedagent.toml from the current directory, then
// ~/.config/gatedagent/config.toml. Defaults are returned when neither exists.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	candidates := []string{filepath.Join(cwd, "gatedagent.toml")}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "gatedagent", "config.toml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return New(), nil
}

// Validate checks value ranges and enumerated settings.
func (c *Config) Validate() error {
	var errs []error
	if c.Agent.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_steps must be positive, got %d", c.Agent.MaxSteps))
	}
	if c.Agent.MaxParseRetries < 0 {
		errs = append(errs, fmt.Errorf("agent.max_parse_retries must not be negative"))
	}
	if c.Agent.MinSources < 0 {
		errs = append(errs, fmt.Errorf("agent.min_sources must not be negative"))
	}
	if c.Agent.RelevanceThreshold < 0 || c.Agent.RelevanceThreshold > 1 {
		errs = append(errs, fmt.Errorf("agent.relevance_threshold must be within [0,1]"))
	}
	switch c.Retrieval.Index {
	case "flat", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("retrieval.index: unknown backend %q", c.Retrieval.Index))
	}
	switch c.Search.Provider {
	case "serper", "brave", "duckduckgo":
	default:
		errs = append(errs, fmt.Errorf("search.provider: unknown provider %q", c.Search.Provider))
	}
	switch c.Trace.Store {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("trace.store: unknown store %q", c.Trace.Store))
	}
	if _, err := c.EmbeddingCacheTTL(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// GetAPIKey returns the model API key from the configured environment variable.
func (c *Config) GetAPIKey() string {
	envVar := c.LLM.APIKeyEnv
	if envVar == "" {
		envVar = "OPENAI_API_KEY"
	}
	return os.Getenv(envVar)
}

// GetSearchAPIKey returns the web search key for the configured provider.
func (c *Config) GetSearchAPIKey() string {
	envVar := c.Search.APIKeyEnv
	if envVar == "" {
		envVar = DefaultAPIKeyEnv(c.Search.Provider)
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// DefaultAPIKeyEnv returns the default environment variable name for a search provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "serper":
		return "SERPER_API_KEY"
	case "brave":
		return "BRAVE_API_KEY"
	default:
		return ""
	}
}

// EmbeddingCacheTTL parses retrieval.embedding_cache_ttl. Zero means no expiry.
func (c *Config) EmbeddingCacheTTL() (time.Duration, error) {
	if c.Retrieval.EmbeddingCacheTTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Retrieval.EmbeddingCacheTTL)
	if err != nil {
		return 0, fmt.Errorf("retrieval.embedding_cache_ttl: %w", err)
	}
	return d, nil
}

// LLMTimeout returns the model call timeout.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.Timeout) * time.Second
}

// SearchTimeout returns the per-request web search timeout.
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.Timeout) * time.Second
}
