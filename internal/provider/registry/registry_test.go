package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hearthly/hearth/internal/domain"
	"github.com/hearthly/hearth/internal/provider/registry"
)

// mockProvider is a mock implementation of domain.Provider for testing.
type mockProvider struct {
	name string
}

func (m *mockProvider) Generate(_ context.Context, _ *domain.GenerationRequest) (*domain.GenerationResult, error) {
	return &domain.GenerationResult{}, nil
}

func (m *mockProvider) GenerateStream(_ context.Context, _ *domain.GenerationRequest) (<-chan domain.StreamChunk, error) {
	ch := make(chan domain.StreamChunk)
	close(ch)
	return ch, nil
}

func (m *mockProvider) EstimateTokens(text string) int {
	return len(text)
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Available(_ context.Context) bool {
	return true
}

func defaultAliases() []registry.AliasRule {
	return []registry.AliasRule{
		{Keyword: "claude", Provider: "anthropic"},
		{Keyword: "gpt", Provider: "openai"},
		{Keyword: "gemini", Provider: "gemini"},
	}
}

func newTestRegistry(t *testing.T, names ...string) *registry.Registry {
	t.Helper()

	reg := registry.NewRegistry("openai", defaultAliases())
	for _, name := range names {
		require.NoError(t, reg.Register(&mockProvider{name: name}))
	}
	return reg
}

func TestRegistry_Register(t *testing.T) {
	t.Run("should register provider successfully", func(t *testing.T) {
		reg := registry.NewRegistry("openai", nil)

		err := reg.Register(&mockProvider{name: "openai"})
		require.NoError(t, err)

		registered, err := reg.Provider("openai")
		require.NoError(t, err)
		require.Equal(t, "openai", registered.Name())
	})

	t.Run("should return error when provider is nil", func(t *testing.T) {
		reg := registry.NewRegistry("openai", nil)

		err := reg.Register(nil)
		require.Error(t, err)
		require.Contains(t, err.Error(), "provider cannot be nil")
	})

	t.Run("should return error when provider name is empty", func(t *testing.T) {
		reg := registry.NewRegistry("openai", nil)

		err := reg.Register(&mockProvider{name: ""})
		require.Error(t, err)
		require.Contains(t, err.Error(), "provider name cannot be empty")
	})

	t.Run("should return error when provider already registered", func(t *testing.T) {
		reg := registry.NewRegistry("openai", nil)

		require.NoError(t, reg.Register(&mockProvider{name: "openai"}))

		err := reg.Register(&mockProvider{name: "openai"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "already registered")
	})
}

func TestRegistry_Resolve(t *testing.T) {
	t.Run("should resolve empty hint to the default provider", func(t *testing.T) {
		reg := newTestRegistry(t, "openai", "anthropic")

		provider, err := reg.Resolve("")
		require.NoError(t, err)
		require.Equal(t, "openai", provider.Name())
	})

	t.Run("should resolve exact provider name before aliases", func(t *testing.T) {
		reg := newTestRegistry(t, "openai", "anthropic")

		provider, err := reg.Resolve("anthropic")
		require.NoError(t, err)
		require.Equal(t, "anthropic", provider.Name())
	})

	t.Run("should resolve model hints through alias keywords", func(t *testing.T) {
		reg := newTestRegistry(t, "openai", "anthropic", "gemini")

		cases := map[string]string{
			"claude-3-5-sonnet": "anthropic",
			"gpt-4o-mini":       "openai",
			"gemini-2.0-flash":  "gemini",
			"Claude-Opus":       "anthropic",
		}
		for hint, want := range cases {
			provider, err := reg.Resolve(hint)
			require.NoError(t, err)
			require.Equal(t, want, provider.Name(), "hint %q", hint)
		}
	})

	t.Run("should resolve unmatched hints to the default provider", func(t *testing.T) {
		reg := newTestRegistry(t, "openai", "anthropic")

		provider, err := reg.Resolve("some-exotic-model")
		require.NoError(t, err)
		require.Equal(t, "openai", provider.Name())
	})

	t.Run("should return unknown provider error when resolved name is unregistered", func(t *testing.T) {
		// claude routes to anthropic, which is not registered here.
		reg := newTestRegistry(t, "openai")

		provider, err := reg.Resolve("claude-3-5-sonnet")
		require.Error(t, err)
		require.Nil(t, provider)

		var unknownErr *domain.UnknownProviderError
		require.ErrorAs(t, err, &unknownErr)
		require.Equal(t, "anthropic", unknownErr.Name)
	})
}

func TestRegistry_Provider(t *testing.T) {
	t.Run("should get registered provider by exact name", func(t *testing.T) {
		reg := newTestRegistry(t, "openai")

		provider, err := reg.Provider("openai")
		require.NoError(t, err)
		require.Equal(t, "openai", provider.Name())
	})

	t.Run("should return error when name is empty", func(t *testing.T) {
		reg := newTestRegistry(t, "openai")

		provider, err := reg.Provider("")
		require.Error(t, err)
		require.Nil(t, provider)
	})

	t.Run("should return unknown provider error for unregistered name", func(t *testing.T) {
		reg := newTestRegistry(t, "openai")

		provider, err := reg.Provider("mistral")
		require.Error(t, err)
		require.Nil(t, provider)

		var unknownErr *domain.UnknownProviderError
		require.ErrorAs(t, err, &unknownErr)
	})
}

func TestRegistry_List(t *testing.T) {
	t.Run("should list registered providers sorted", func(t *testing.T) {
		reg := newTestRegistry(t, "openai", "gemini", "anthropic")

		require.Equal(t, []string{"anthropic", "gemini", "openai"}, reg.List())
	})

	t.Run("should return empty list for empty registry", func(t *testing.T) {
		reg := registry.NewRegistry("openai", nil)

		require.Empty(t, reg.List())
	})
}

func TestParseAliases(t *testing.T) {
	t.Run("should parse ordered alias rules", func(t *testing.T) {
		rules := registry.ParseAliases("claude=anthropic,gpt=openai")

		require.Equal(t, []registry.AliasRule{
			{Keyword: "claude", Provider: "anthropic"},
			{Keyword: "gpt", Provider: "openai"},
		}, rules)
	})

	t.Run("should skip malformed entries", func(t *testing.T) {
		rules := registry.ParseAliases("claude=anthropic,=openai,gpt,, ,gemini=gemini")

		require.Equal(t, []registry.AliasRule{
			{Keyword: "claude", Provider: "anthropic"},
			{Keyword: "gemini", Provider: "gemini"},
		}, rules)
	})

	t.Run("should trim whitespace around entries", func(t *testing.T) {
		rules := registry.ParseAliases(" claude = anthropic , gpt = openai ")

		require.Equal(t, []registry.AliasRule{
			{Keyword: "claude", Provider: "anthropic"},
			{Keyword: "gpt", Provider: "openai"},
		}, rules)
	})
}
