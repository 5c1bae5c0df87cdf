package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/hearthly/hearth/internal/provider/anthropic"
	"github.com/hearthly/hearth/internal/provider/gemini"
	"github.com/hearthly/hearth/internal/provider/openai"
	"github.com/hearthly/hearth/internal/store/redisstore"
)

// Config represents the service configuration.
type Config struct {
	Server     ServerConfig
	CORS       CORSConfig
	Log        LogConfig
	Redis      redisstore.Config
	Generation GenerationConfig
	OpenAI     openai.Config
	Anthropic  anthropic.Config
	Gemini     gemini.Config
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"300"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization,X-User-Id"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// LogConfig contains logger settings. An empty File logs to stderr.
type LogConfig struct {
	Level      string `env:"LOG_LEVEL"        envDefault:"info"`
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB"  envDefault:"100"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS"  envDefault:"3"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"28"`
}

// GenerationConfig contains the orchestration policy settings.
type GenerationConfig struct {
	// DefaultProvider serves requests that carry no model hint.
	DefaultProvider string `env:"GENERATION_DEFAULT_PROVIDER" envDefault:"openai"`

	// FallbackProvider, when set, is retried once after a provider
	// error. Empty means exactly one attempt per call.
	FallbackProvider string `env:"GENERATION_FALLBACK_PROVIDER"`

	// ProviderAliases routes model hints by keyword, e.g.
	// "claude=anthropic,gpt=openai".
	ProviderAliases string `env:"GENERATION_PROVIDER_ALIASES" envDefault:"claude=anthropic,gpt=openai,gemini=gemini"`

	HistoryWindow   int     `env:"GENERATION_HISTORY_WINDOW"   envDefault:"10"`
	MaxInputChars   int     `env:"GENERATION_MAX_INPUT_CHARS"  envDefault:"8000"`
	MaxOutputTokens int     `env:"GENERATION_MAX_TOKENS"       envDefault:"1024"`
	Temperature     float64 `env:"GENERATION_TEMPERATURE"      envDefault:"0.7"`

	// ProviderTimeout bounds a sync call and the time-to-first-chunk of
	// a stream, in seconds.
	ProviderTimeout int `env:"GENERATION_PROVIDER_TIMEOUT" envDefault:"60"`

	// StoreBackend selects the conversation store: redis or memory.
	StoreBackend string `env:"STORE_BACKEND" envDefault:"redis"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*LogConfig
	Redis      *redisstore.Config
	*GenerationConfig
	OpenAI    *openai.Config
	Anthropic *anthropic.Config
	Gemini    *gemini.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		dig.Out{},
		&cfg.Server,
		&cfg.CORS,
		&cfg.Log,
		&cfg.Redis,
		&cfg.Generation,
		&cfg.OpenAI,
		&cfg.Anthropic,
		&cfg.Gemini,
	}
}
