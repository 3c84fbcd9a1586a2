package am

// Config represents the ghostwrite configuration
type Config struct {
	Database       DatabaseConfig       `mapstructure:"database"`
	Server         ServerConfig         `mapstructure:"server"`
	Completion     CompletionConfig     `mapstructure:"completion"`
	Telemetry      TelemetryConfig      `mapstructure:"telemetry"`
	Provider       string               `mapstructure:"provider"` // auto, local, openrouter, anthropic
	LocalInference LocalInferenceConfig `mapstructure:"local_inference"`
	OpenRouter     OpenRouterConfig     `mapstructure:"openrouter"`
	Anthropic      AnthropicConfig      `mapstructure:"anthropic"`
}

// DatabaseConfig configures the SQLite database holding usage and completion events
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the language server transports
type ServerConfig struct {
	Transport      string   `mapstructure:"transport"`       // stdio or websocket
	Address        string   `mapstructure:"address"`         // WebSocket listen address
	MetricsAddress string   `mapstructure:"metrics_address"` // /metrics and /healthz; empty disables
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxDocuments   int      `mapstructure:"max_documents"` // open documents per connection
	LogTheme       string   `mapstructure:"log_theme"`     // everforest, gruvbox
}

// Transport names
const (
	TransportStdio     = "stdio"
	TransportWebSocket = "websocket"
)

// Server defaults
const (
	DefaultServerAddress  = "127.0.0.1:8877"
	DefaultMetricsAddress = "127.0.0.1:8878"
	DefaultMaxDocuments   = 100
)

// CompletionConfig configures the inline completion lifecycle
type CompletionConfig struct {
	Strategy         string           `mapstructure:"strategy"`           // fast, reasoned, block_rewrite
	AutoTrigger      bool             `mapstructure:"auto_trigger"`       // request on typing
	DebounceMs       int              `mapstructure:"debounce_ms"`        // automatic trigger debounce
	MinOffset        int              `mapstructure:"min_offset"`         // automatic triggers need at least this many bytes before the caret
	AutoRedisplay    bool             `mapstructure:"auto_redisplay"`     // show the remainder right after a partial accept
	PreferWordByWord bool             `mapstructure:"prefer_word_by_word"` // smart accept on single-line completions
	Cache            CacheConfig      `mapstructure:"cache"`
	RateLimit        RateLimitConfig  `mapstructure:"rate_limit"`
	Strategies       StrategiesConfig `mapstructure:"strategies"`
}

// CacheConfig configures the completion response cache
type CacheConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Size       int  `mapstructure:"size"`
	TTLMinutes int  `mapstructure:"ttl_minutes"`
}

// RateLimitConfig caps provider calls per document session
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // 0 = unlimited
	Burst             int     `mapstructure:"burst"`
}

// StrategiesConfig overrides the per-strategy budgets
type StrategiesConfig struct {
	Fast         StrategyConfig `mapstructure:"fast"`
	Reasoned     StrategyConfig `mapstructure:"reasoned"`
	BlockRewrite StrategyConfig `mapstructure:"block_rewrite"`
}

// StrategyConfig holds the budget of one completion strategy.
// Zero values fall back to the built-in strategy defaults.
type StrategyConfig struct {
	LinesBefore      int      `mapstructure:"lines_before"`
	LinesAfter       int      `mapstructure:"lines_after"`
	MaxContextChars  int      `mapstructure:"max_context_chars"`
	FileContextChars int      `mapstructure:"file_context_chars"`
	TimeoutMs        int      `mapstructure:"timeout_ms"`
	MaxTokens        int      `mapstructure:"max_tokens"`
	Temperature      *float64 `mapstructure:"temperature"`
	Model            string   `mapstructure:"model"` // empty = provider default
}

// TelemetryConfig configures completion telemetry
type TelemetryConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	BufferSize int    `mapstructure:"buffer_size"` // events queued before dropping
	Persist    bool   `mapstructure:"persist"`     // write events to the database
	Tracing    bool   `mapstructure:"tracing"`     // export provider spans
	TraceFile  string `mapstructure:"trace_file"`  // empty = stderr
}

// LocalInferenceConfig configures local model inference (Ollama, LocalAI, etc.)
type LocalInferenceConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`        // e.g., "http://localhost:11434"
	Model          string `mapstructure:"model"`           // e.g., "qwen2.5-coder:7b"
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // HTTP client timeout
	ContextSize    *int   `mapstructure:"context_size"`    // nil = model default
}

// OpenRouterConfig configures OpenRouter.ai API access
type OpenRouterConfig struct {
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`
	Temperature *float64 `mapstructure:"temperature"` // nil = default 0.2
	MaxTokens   *int     `mapstructure:"max_tokens"`  // nil = default 256
}

// AnthropicConfig configures direct Anthropic API access
type AnthropicConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
