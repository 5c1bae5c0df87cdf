package domain_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hearthly/hearth/internal/domain"
)

func TestSingleAttempt(t *testing.T) {
	t.Run("should never retry", func(t *testing.T) {
		policy := domain.SingleAttempt{}

		name, retry := policy.Next(1, &domain.ProviderError{Provider: "openai", Err: errors.New("down")})

		require.False(t, retry)
		require.Empty(t, name)
	})
}

func TestSecondaryOnError(t *testing.T) {
	t.Run("should retry once on provider error", func(t *testing.T) {
		policy := domain.SecondaryOnError{Secondary: "backup"}

		name, retry := policy.Next(1, &domain.ProviderError{Provider: "openai", Err: errors.New("down")})

		require.True(t, retry)
		require.Equal(t, "backup", name)
	})

	t.Run("should not retry a second time", func(t *testing.T) {
		policy := domain.SecondaryOnError{Secondary: "backup"}

		_, retry := policy.Next(2, &domain.ProviderError{Provider: "backup", Err: errors.New("down")})

		require.False(t, retry)
	})

	t.Run("should not retry non-provider errors", func(t *testing.T) {
		policy := domain.SecondaryOnError{Secondary: "backup"}

		_, retry := policy.Next(1, &domain.ValidationError{Reason: "bad input"})

		require.False(t, retry)
	})

	t.Run("should not retry without a secondary", func(t *testing.T) {
		policy := domain.SecondaryOnError{}

		_, retry := policy.Next(1, &domain.ProviderError{Provider: "openai", Err: errors.New("down")})

		require.False(t, retry)
	})
}
