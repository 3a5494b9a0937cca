package config

import "time"

// Config is the full runtime configuration, grouped by concern. Values are
// resolved defaults < YAML file < environment (prefix AION_).
type Config struct {
	Runtime   RuntimeConfig   `koanf:"runtime"   json:"runtime"`
	Budget    BudgetConfig    `koanf:"budget"    json:"budget"`
	Providers ProvidersConfig `koanf:"providers" json:"providers"`
	Memory    MemoryConfig    `koanf:"memory"    json:"memory"`
	Database  DatabaseConfig  `koanf:"database"  json:"database"`
	Log       LogConfig       `koanf:"log"       json:"log"`
}

// RuntimeConfig controls the iteration loop and data layout.
type RuntimeConfig struct {
	// DataDir is the root for all durable state (db, blob, logs, chroma, skills).
	DataDir string `koanf:"data_dir" json:"data_dir" validate:"required"`
	// LoopInterval is the default sleep between iterations when the planner
	// does not request one.
	LoopInterval time.Duration `koanf:"loop_interval" json:"loop_interval" validate:"min=1s"`
	// HeartbeatTimeout is how stale the loop heartbeat may get before the
	// watchdog considers it dead.
	HeartbeatTimeout time.Duration `koanf:"heartbeat_timeout" json:"heartbeat_timeout" validate:"min=30s"`
	// IterationTimeout bounds a single iteration end to end.
	IterationTimeout time.Duration `koanf:"iteration_timeout" json:"iteration_timeout" validate:"min=1m"`
	// Directive seeds the agent mandate on first run.
	Directive string `koanf:"directive" json:"directive" validate:"required"`
}

// BudgetConfig holds spend limits.
type BudgetConfig struct {
	// MonthlyCapUSD is the hard monthly spend ceiling across paid providers.
	MonthlyCapUSD float64 `koanf:"monthly_cap_usd" json:"monthly_cap_usd" validate:"gte=0"`
}

// ProvidersConfig carries credentials and endpoints per LLM provider.
type ProvidersConfig struct {
	AnthropicAPIKey SensitiveString `koanf:"anthropic_api_key" json:"anthropic_api_key"`
	OpenAIAPIKey    SensitiveString `koanf:"openai_api_key"    json:"openai_api_key"`
	MistralAPIKey   SensitiveString `koanf:"mistral_api_key"   json:"mistral_api_key"`
	GrokAPIKey      SensitiveString `koanf:"grok_api_key"      json:"grok_api_key"`
	GrokBaseURL     string          `koanf:"grok_base_url"     json:"grok_base_url"`
	OllamaHost      string          `koanf:"ollama_host"       json:"ollama_host"`
	TavilyAPIKey    SensitiveString `koanf:"tavily_api_key"    json:"tavily_api_key"`
}

// MemoryConfig tunes retrieval and the embedding backend.
type MemoryConfig struct {
	RetrievalCount     int     `koanf:"retrieval_count"     json:"retrieval_count"     validate:"min=1,max=100"`
	MaxContextTokens   int     `koanf:"max_context_tokens"  json:"max_context_tokens"  validate:"min=10000,max=200000"`
	DecayFactor        float64 `koanf:"decay_factor"        json:"decay_factor"        validate:"gte=0.5,lte=1"`
	RelevanceThreshold float64 `koanf:"relevance_threshold" json:"relevance_threshold" validate:"gte=0,lte=1"`
	EmbedderProvider   string  `koanf:"embedder_provider"   json:"embedder_provider"`
	EmbedderModel      string  `koanf:"embedder_model"      json:"embedder_model"`
	EmbedderDimension  int     `koanf:"embedder_dimension"  json:"embedder_dimension"  validate:"min=8,max=4096"`
}

// DatabaseConfig controls the embedded SQLite store.
type DatabaseConfig struct {
	// Path overrides the default <data_dir>/aion.db location when set.
	Path            string        `koanf:"path"              json:"path"`
	BusyTimeout     time.Duration `koanf:"busy_timeout"      json:"busy_timeout"      validate:"min=100ms"`
	MaxOpenConns    int           `koanf:"max_open_conns"    json:"max_open_conns"    validate:"min=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns"    json:"max_idle_conns"    validate:"min=1"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// LogConfig controls process logging.
type LogConfig struct {
	Level string `koanf:"level" json:"level" validate:"oneof=debug info warn error disabled"`
	JSON  bool   `koanf:"json"  json:"json"`
}

// Default returns the baseline configuration before file and env overlays.
func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			DataDir:          "./data",
			LoopInterval:     30 * time.Second,
			HeartbeatTimeout: 10 * time.Minute,
			IterationTimeout: 15 * time.Minute,
			Directive: "You are an autonomous agent. Improve yourself, build useful " +
				"capabilities, and stay transparent with your creator.",
		},
		Budget: BudgetConfig{
			MonthlyCapUSD: 100,
		},
		Providers: ProvidersConfig{
			GrokBaseURL: "https://api.x.ai/v1",
			OllamaHost:  "http://localhost:11434",
		},
		Memory: MemoryConfig{
			RetrievalCount:     10,
			MaxContextTokens:   120000,
			DecayFactor:        0.95,
			RelevanceThreshold: 0.0,
			EmbedderProvider:   "hash",
			EmbedderModel:      "text-embedding-3-small",
			EmbedderDimension:  256,
		},
		Database: DatabaseConfig{
			BusyTimeout:     5 * time.Second,
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Hour,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
