package domain

import "context"

// Provider represents one language-model backend.
type Provider interface {
	// Generate sends a request and returns the full response. Failures
	// are reported as *ProviderError; the client never retries.
	Generate(ctx context.Context, req *GenerationRequest) (*GenerationResult, error)

	// GenerateStream sends a request and returns a lazily produced,
	// finite, non-restartable sequence of chunks. The channel is closed
	// after the terminal chunk; cancelling ctx releases the underlying
	// connection without emitting a spurious terminal-success chunk.
	GenerateStream(ctx context.Context, req *GenerationRequest) (<-chan StreamChunk, error)

	// EstimateTokens approximates the token count of text using the
	// provider's own heuristic. Estimates feed quota accounting, so the
	// divisor is documented per implementation.
	EstimateTokens(text string) int

	// Name returns the provider identifier.
	Name() string

	// Available is a best-effort liveness probe. It informs listing and
	// diagnostics only, never correctness.
	Available(ctx context.Context) bool
}

// ProviderResolver maps a request's model hint to the client that
// should serve it. Resolution is a pure function of the hint and static
// configuration; it never consults provider health.
type ProviderResolver interface {
	// Resolve returns the client for a model hint, or the configured
	// default when the hint is empty or matches no naming convention.
	Resolve(modelHint string) (Provider, error)

	// Provider returns a registered client by exact name.
	Provider(name string) (Provider, error)

	// List returns the names of all registered providers.
	List() []string
}

// ExchangeBatch stages the writes of one recorded exchange. All staged
// operations commit together or not at all.
type ExchangeBatch interface {
	PutMessage(msg *StoredMessage)
	ClearPending(conversationID string)
	IncrAggregate(conversationID string, messageDelta, tokenDelta int64)
}

// ConversationStore is the persistence boundary for conversations,
// messages, and aggregates.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	FindConversation(ctx context.Context, id string) (*Conversation, error)

	// RecentMessages returns up to limit of the newest messages in
	// chronological order (oldest of the window first).
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]StoredMessage, error)

	// SavePending writes a provisional user message that is not yet part
	// of a completed exchange. A failed generation leaves it behind so
	// the turn can be surfaced as incomplete.
	SavePending(ctx context.Context, msg *StoredMessage) error

	Aggregate(ctx context.Context, conversationID string) (*ConversationAggregate, error)

	// Exchange runs fn against a staged batch and commits every staged
	// write atomically. Any failure leaves the store untouched.
	Exchange(ctx context.Context, fn func(batch ExchangeBatch)) error
}

// CompanionStore resolves companion personas. Read-only from the
// generation core's perspective.
type CompanionStore interface {
	FindCompanion(ctx context.Context, id string) (*Companion, error)
	PutCompanion(ctx context.Context, companion *Companion) error
}

// Recorder persists one completed exchange and its aggregates as a
// single unit. At-most-once invocation per logical turn is enforced by
// the orchestrator, not the recorder.
type Recorder interface {
	RecordTurn(ctx context.Context, params RecordTurnParams) (*ConversationTurn, error)
}
