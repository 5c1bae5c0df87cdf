package domain

import "errors"

// FallbackPolicy decides whether a failed dispatch attempt gets another
// provider. It is an explicit, testable object layered on top of the
// orchestrator's single-attempt dispatch, never buried inside it.
type FallbackPolicy interface {
	// Next returns the provider name for the attempt following attempt
	// (1-based), given the error that failed it, and whether another
	// attempt should happen at all.
	Next(attempt int, err error) (string, bool)
}

// SingleAttempt is the default policy: each call tries exactly one
// provider once.
type SingleAttempt struct{}

func (SingleAttempt) Next(int, error) (string, bool) {
	return "", false
}

// SecondaryOnError retries once against a named secondary provider, but
// only when the first attempt failed inside the provider. Validation
// and configuration errors are never retried.
type SecondaryOnError struct {
	Secondary string
}

func (p SecondaryOnError) Next(attempt int, err error) (string, bool) {
	if attempt != 1 || p.Secondary == "" {
		return "", false
	}

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		return "", false
	}

	return p.Secondary, true
}
