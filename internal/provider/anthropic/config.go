package anthropic

// Config contains Anthropic provider configuration. Version is the
// anthropic-version header required by the Messages API.
type Config struct {
	APIKey  string `env:"ANTHROPIC_API_KEY"`
	BaseURL string `env:"ANTHROPIC_BASE_URL" envDefault:"https://api.anthropic.com"`
	Version string `env:"ANTHROPIC_VERSION"  envDefault:"2023-06-01"`
	Timeout int    `env:"ANTHROPIC_TIMEOUT"  envDefault:"60"`
	Model   string `env:"ANTHROPIC_MODEL"    envDefault:"claude-3-5-sonnet-latest"`
}
