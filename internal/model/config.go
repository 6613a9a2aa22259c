package model

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Config is the complete runtime configuration
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
	Breaker   BreakerConfig   `yaml:"breaker" mapstructure:"breaker"`
	Run       RunConfig       `yaml:"run" mapstructure:"run"`
	Classify  ClassifyConfig  `yaml:"classify" mapstructure:"classify"`
	Dedup     DedupConfig     `yaml:"dedup" mapstructure:"dedup"`
	Reference ReferenceConfig `yaml:"reference" mapstructure:"reference"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Sources   []SourceConfig  `yaml:"sources" mapstructure:"sources"`
}

// LogConfig configures the structured logger
type LogConfig struct {
	Level       string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format      string `yaml:"format" mapstructure:"format"` // json, console
	Development bool   `yaml:"development" mapstructure:"development"`
}

// HTTPConfig configures the fetcher
type HTTPConfig struct {
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"` // Hard wall-clock per attempt
	MaxBodyBytes   int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RotateEvery    int           `yaml:"rotate_every" mapstructure:"rotate_every"`
	HTTPProxy      string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy     string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy        string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
	RenderEndpoint string        `yaml:"render_endpoint,omitempty" mapstructure:"render_endpoint"`
	RenderTimeout  time.Duration `yaml:"render_timeout" mapstructure:"render_timeout"`
}

// BreakerConfig configures the per-source circuit breakers
type BreakerConfig struct {
	FailureThreshold  int           `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ThrottleThreshold int           `yaml:"throttle_threshold" mapstructure:"throttle_threshold"`
	ThrottleWindow    time.Duration `yaml:"throttle_window" mapstructure:"throttle_window"`
	Cooldown          time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
	MaxCooldown       time.Duration `yaml:"max_cooldown" mapstructure:"max_cooldown"`

	// MaxWait is how long a source keeps waiting for its open breaker to
	// recover before the rest of its frontier is abandoned
	MaxWait time.Duration `yaml:"max_wait" mapstructure:"max_wait"`
}

// RunConfig configures pipeline sizing
type RunConfig struct {
	MaxItemsPerSource int `yaml:"max_items_per_source" mapstructure:"max_items_per_source"`
	ExtractWorkers    int `yaml:"extract_workers" mapstructure:"extract_workers"`
	ExtractQueueSize  int `yaml:"extract_queue_size" mapstructure:"extract_queue_size"`
}

// ClassifyConfig configures the relevance pre-filter
type ClassifyConfig struct {
	MinMatches    int      `yaml:"min_matches" mapstructure:"min_matches"`
	ExtraKeywords []string `yaml:"extra_keywords,omitempty" mapstructure:"extra_keywords"`
}

// DedupConfig configures DedupKey derivation
type DedupConfig struct {
	ValueDigits int `yaml:"value_digits" mapstructure:"value_digits"` // Significant digits kept when bucketing values
	Shards      int `yaml:"shards" mapstructure:"shards"`
}

// ReferenceConfig points at the enrichment reference table
type ReferenceConfig struct {
	Path string `yaml:"path,omitempty" mapstructure:"path"` // Empty uses the built-in table
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"` // memory, sqlite3, postgres
	DSN           string `yaml:"dsn,omitempty" mapstructure:"dsn"`
	BatchSize     int    `yaml:"batch_size" mapstructure:"batch_size"`
	Events        string `yaml:"events" mapstructure:"events"` // local, redis
	RedisAddr     string `yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password,omitempty" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
	RedisStream   string `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// CacheConfig configures the response cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir     string        `yaml:"dir" mapstructure:"dir"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// MetricsConfig configures the prometheus endpoint
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty" mapstructure:"addr"` // Only served by long-running commands
}

// LLMConfig configures the optional deal digest
type LLMConfig struct {
	Provider  string        `yaml:"provider" mapstructure:"provider"` // "" disables
	Model     string        `yaml:"model" mapstructure:"model"`
	APIKey    string        `yaml:"-" mapstructure:"api_key"`
	BaseURL   string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxTokens int           `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()

	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			MaxBodyBytes:  4_000_000,
			RotateEvery:   10,
			RenderTimeout: 60 * time.Second,
		},
		Breaker: BreakerConfig{
			FailureThreshold:  5,
			ThrottleThreshold: 5,
			ThrottleWindow:    10 * time.Minute,
			Cooldown:          60 * time.Second,
			MaxCooldown:       15 * time.Minute,
			MaxWait:           30 * time.Minute,
		},
		Run: RunConfig{
			MaxItemsPerSource: 200,
			ExtractWorkers:    runtime.NumCPU(),
			ExtractQueueSize:  64,
		},
		Classify: ClassifyConfig{
			MinMatches: 1,
		},
		Dedup: DedupConfig{
			ValueDigits: 2,
			Shards:      16,
		},
		Store: StoreConfig{
			Driver:      "sqlite3",
			DSN:         filepath.Join(home, ".mergertracker", "deals.db"),
			BatchSize:   50,
			Events:      "local",
			RedisStream: "mergertracker:events",
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     filepath.Join(home, ".mergertracker", "cache"),
			TTL:     time.Hour,
		},
		LLM: LLMConfig{
			Timeout:   30 * time.Second,
			MaxTokens: 800,
		},
	}
}

// DefaultSource returns per-source defaults applied before a source's own settings
func DefaultSource() SourceConfig {
	return SourceConfig{
		Mode:           ModeStatic,
		RateLimit:      RateLimit{Requests: 1, Interval: 6 * time.Second},
		MaxConcurrency: 1,
		Backoff: BackoffPolicy{
			Base:        30 * time.Second,
			Factor:      2,
			MaxAttempts: 3,
		},
		RespectRobots: true,
	}
}
