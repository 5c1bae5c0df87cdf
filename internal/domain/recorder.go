package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hearthly/hearth/internal/observability"
)

// RecordTurnParams describes one completed exchange to persist.
// UserMessageID carries the id of the provisional user message written
// at submission time so the atomic commit rewrites the same record.
type RecordTurnParams struct {
	ConversationID  string
	UserMessageID   string
	UserText        string
	UserTokens      int
	AssistantText   string
	AssistantTokens int
	Provider        string
	Model           string
}

// ExchangeRecorder persists the user turn and the assistant turn and
// updates the conversation aggregates as a single logical unit: both
// messages and the counter increments commit together or not at all.
type ExchangeRecorder struct {
	store ConversationStore
}

// NewExchangeRecorder creates a recorder over the given store.
func NewExchangeRecorder(store ConversationStore) *ExchangeRecorder {
	return &ExchangeRecorder{store: store}
}

// RecordTurn commits one exchange. Aggregates move by exactly two
// messages and the combined token usage of the pair; any storage
// failure surfaces as *PersistenceError with no partial writes.
//
// RecordTurn is not idempotent on its own. The orchestrator's state
// machine guarantees at most one call per logical turn.
func (r *ExchangeRecorder) RecordTurn(ctx context.Context, params RecordTurnParams) (*ConversationTurn, error) {
	if params.ConversationID == "" {
		return nil, errors.New("conversation id cannot be empty")
	}
	if params.UserText == "" {
		return nil, errors.New("user text cannot be empty")
	}
	if params.AssistantText == "" {
		return nil, errors.New("assistant text cannot be empty")
	}

	userID := params.UserMessageID
	if userID == "" {
		userID = uuid.New().String()
	}

	now := time.Now().UTC()
	userMsg := StoredMessage{
		ID:             userID,
		ConversationID: params.ConversationID,
		Role:           RoleUser,
		Content:        params.UserText,
		Tokens:         params.UserTokens,
		CreatedAt:      now,
	}
	assistantMsg := StoredMessage{
		ID:             uuid.New().String(),
		ConversationID: params.ConversationID,
		Role:           RoleAssistant,
		Content:        params.AssistantText,
		Tokens:         params.AssistantTokens,
		CreatedAt:      now,
	}

	tokenDelta := int64(params.UserTokens) + int64(params.AssistantTokens)

	err := r.store.Exchange(ctx, func(batch ExchangeBatch) {
		batch.PutMessage(&userMsg)
		batch.PutMessage(&assistantMsg)
		batch.ClearPending(params.ConversationID)
		batch.IncrAggregate(params.ConversationID, 2, tokenDelta)
	})
	if err != nil {
		return nil, &PersistenceError{Op: "record turn", Err: err}
	}

	observability.FromContext(ctx).Debug("exchange recorded",
		observability.String("conversation_id", params.ConversationID),
		observability.Int64("token_delta", tokenDelta),
	)

	return &ConversationTurn{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Provider:         params.Provider,
		Model:            params.Model,
	}, nil
}
