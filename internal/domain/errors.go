package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a conversation, companion, or
// message does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError rejects malformed caller input before any provider
// call. It is never retried and produces no side effects.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// UnknownProviderError indicates that provider resolution produced a
// name with no registered client. This is always a configuration error
// and is never retried.
type UnknownProviderError struct {
	Name string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider %q", e.Name)
}

// ProviderError wraps a backend failure: network error, timeout,
// malformed response, or a non-success status. Clients never retry
// internally; retry and fallback are orchestration policy.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a storage failure. When it occurs after a
// successful generation it is a recoverable inconsistency: the caller
// keeps the generated text and the failure is logged, never dropped.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
