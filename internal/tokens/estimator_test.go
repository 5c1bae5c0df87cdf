package tokens_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hearthly/hearth/internal/tokens"
)

func TestEstimate(t *testing.T) {
	t.Run("should return zero for empty text", func(t *testing.T) {
		require.Equal(t, 0, tokens.Estimate("", 4))
	})

	t.Run("should divide character count rounding up", func(t *testing.T) {
		require.Equal(t, 1, tokens.Estimate("abc", 4))
		require.Equal(t, 1, tokens.Estimate("abcd", 4))
		require.Equal(t, 2, tokens.Estimate("abcde", 4))
		require.Equal(t, 3, tokens.Estimate("hello world!", 4))
	})

	t.Run("should fall back to the default divisor", func(t *testing.T) {
		require.Equal(t, tokens.Estimate("hello world", tokens.DefaultDivisor), tokens.Estimate("hello world", 0))
		require.Equal(t, tokens.Estimate("hello world", tokens.DefaultDivisor), tokens.Estimate("hello world", -1))
	})

	t.Run("should count bytes not runes", func(t *testing.T) {
		// Nine bytes of UTF-8, three tokens at the default divisor.
		require.Equal(t, 3, tokens.Estimate("日本語", 4))
	})
}
