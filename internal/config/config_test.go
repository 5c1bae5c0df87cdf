package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hearthly/hearth/internal/config"
)

func TestLoad(t *testing.T) {
	t.Run("should load config with defaults", func(t *testing.T) {
		// Clear environment
		os.Clearenv()

		cfg := config.Load()

		require.NotNil(t, cfg)

		// Verify defaults
		require.Equal(t, 8080, cfg.Server.Port)
		require.Equal(t, 30, cfg.Server.ReadTimeout)
		require.Equal(t, 300, cfg.Server.WriteTimeout)
		require.Equal(t, "localhost:6379", cfg.Redis.Addr)
		require.Equal(t, "openai", cfg.Generation.DefaultProvider)
		require.Empty(t, cfg.Generation.FallbackProvider)
		require.Equal(t, "claude=anthropic,gpt=openai,gemini=gemini", cfg.Generation.ProviderAliases)
		require.Equal(t, 10, cfg.Generation.HistoryWindow)
		require.Equal(t, 8000, cfg.Generation.MaxInputChars)
		require.Equal(t, 1024, cfg.Generation.MaxOutputTokens)
		require.InDelta(t, 0.7, cfg.Generation.Temperature, 0.0001)
		require.Equal(t, 60, cfg.Generation.ProviderTimeout)
		require.Equal(t, "redis", cfg.Generation.StoreBackend)
		require.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
		require.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
		require.Empty(t, cfg.OpenAI.APIKey)
		require.Equal(t, "2023-06-01", cfg.Anthropic.Version)
		require.Equal(t, "claude-3-5-sonnet-latest", cfg.Anthropic.Model)
		require.Equal(t, "gemini-2.0-flash", cfg.Gemini.Model)
		require.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("should load config from environment variables", func(t *testing.T) {
		// Set environment variables using t.Setenv for automatic cleanup
		t.Setenv("SERVER_PORT", "9000")
		t.Setenv("GENERATION_DEFAULT_PROVIDER", "anthropic")
		t.Setenv("GENERATION_FALLBACK_PROVIDER", "echo")
		t.Setenv("GENERATION_PROVIDER_ALIASES", "claude=anthropic")
		t.Setenv("GENERATION_HISTORY_WINDOW", "4")
		t.Setenv("STORE_BACKEND", "memory")
		t.Setenv("OPENAI_API_KEY", "sk-test-key")
		t.Setenv("ANTHROPIC_API_KEY", "ak-test-key")
		t.Setenv("GEMINI_API_KEY", "gk-test-key")
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("LOG_FILE", "/var/log/hearth.log")

		cfg := config.Load()

		require.NotNil(t, cfg)

		// Verify loaded values
		require.Equal(t, 9000, cfg.Server.Port)
		require.Equal(t, "anthropic", cfg.Generation.DefaultProvider)
		require.Equal(t, "echo", cfg.Generation.FallbackProvider)
		require.Equal(t, "claude=anthropic", cfg.Generation.ProviderAliases)
		require.Equal(t, 4, cfg.Generation.HistoryWindow)
		require.Equal(t, "memory", cfg.Generation.StoreBackend)
		require.Equal(t, "sk-test-key", cfg.OpenAI.APIKey)
		require.Equal(t, "ak-test-key", cfg.Anthropic.APIKey)
		require.Equal(t, "gk-test-key", cfg.Gemini.APIKey)
		require.Equal(t, "debug", cfg.Log.Level)
		require.Equal(t, "/var/log/hearth.log", cfg.Log.File)
	})
}
