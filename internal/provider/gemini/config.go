package gemini

// Config contains Gemini provider configuration.
type Config struct {
	APIKey  string `env:"GEMINI_API_KEY"`
	Timeout int    `env:"GEMINI_TIMEOUT" envDefault:"60"`
	Model   string `env:"GEMINI_MODEL"   envDefault:"gemini-2.0-flash"`
}
