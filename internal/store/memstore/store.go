// Package memstore implements the conversation and companion stores in
// memory. It backs tests and the dev store mode, mirroring the Redis
// store's semantics: exchanges commit all staged writes or none, and
// failure injection lets tests prove that.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hearthly/hearth/internal/domain"
)

// Store implements domain.ConversationStore and domain.CompanionStore.
type Store struct {
	mu            sync.Mutex
	conversations map[string]*domain.Conversation
	aggregates    map[string]*domain.ConversationAggregate
	messages      map[string][]domain.StoredMessage
	pending       map[string]domain.StoredMessage
	companions    map[string]*domain.Companion
	exchangeErr   error
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		conversations: make(map[string]*domain.Conversation),
		aggregates:    make(map[string]*domain.ConversationAggregate),
		messages:      make(map[string][]domain.StoredMessage),
		pending:       make(map[string]domain.StoredMessage),
		companions:    make(map[string]*domain.Companion),
	}
}

// FailExchanges makes every subsequent Exchange fail with err without
// applying any staged write. Pass nil to restore normal behavior.
func (s *Store) FailExchanges(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchangeErr = err
}

// CreateConversation registers a conversation with zeroed counters.
func (s *Store) CreateConversation(_ context.Context, conv *domain.Conversation) error {
	if conv == nil || conv.ID == "" {
		return errors.New("conversation id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *conv
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now().UTC()
	}
	s.conversations[conv.ID] = &copied
	s.aggregates[conv.ID] = &domain.ConversationAggregate{}
	return nil
}

// FindConversation loads a conversation by id.
func (s *Store) FindConversation(_ context.Context, id string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[id]
	if !exists {
		return nil, fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
	}
	copied := *conv
	return &copied, nil
}

// RecentMessages returns the newest limit messages in chronological order.
func (s *Store) RecentMessages(_ context.Context, conversationID string, limit int) ([]domain.StoredMessage, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.StoredMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// SavePending stores the provisional user message of an in-flight turn.
func (s *Store) SavePending(_ context.Context, msg *domain.StoredMessage) error {
	if msg == nil || msg.ID == "" {
		return errors.New("message id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[msg.ConversationID] = *msg
	return nil
}

// PendingMessage returns the provisional message of an incomplete turn,
// or ErrNotFound when the last turn completed.
func (s *Store) PendingMessage(_ context.Context, conversationID string) (*domain.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, exists := s.pending[conversationID]
	if !exists {
		return nil, fmt.Errorf("pending message for %s: %w", conversationID, domain.ErrNotFound)
	}
	copied := msg
	return &copied, nil
}

// Aggregate reads the conversation counters.
func (s *Store) Aggregate(_ context.Context, conversationID string) (*domain.ConversationAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, exists := s.aggregates[conversationID]
	if !exists {
		return &domain.ConversationAggregate{}, nil
	}
	copied := *agg
	return &copied, nil
}

// Exchange stages writes through fn and applies them atomically under
// the store lock. An injected failure applies nothing.
func (s *Store) Exchange(_ context.Context, fn func(batch domain.ExchangeBatch)) error {
	batch := &exchangeBatch{}
	fn(batch)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exchangeErr != nil {
		return s.exchangeErr
	}

	for _, msg := range batch.messages {
		s.putMessageLocked(msg)
	}
	for _, convID := range batch.cleared {
		delete(s.pending, convID)
	}
	for _, incr := range batch.increments {
		agg, exists := s.aggregates[incr.conversationID]
		if !exists {
			agg = &domain.ConversationAggregate{}
			s.aggregates[incr.conversationID] = agg
		}
		agg.MessageCount += incr.messageDelta
		agg.TokenTotal += incr.tokenDelta
	}
	return nil
}

// FindCompanion loads a companion persona.
func (s *Store) FindCompanion(_ context.Context, id string) (*domain.Companion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	companion, exists := s.companions[id]
	if !exists {
		return nil, fmt.Errorf("companion %s: %w", id, domain.ErrNotFound)
	}
	copied := *companion
	return &copied, nil
}

// PutCompanion writes a companion persona.
func (s *Store) PutCompanion(_ context.Context, companion *domain.Companion) error {
	if companion == nil || companion.ID == "" {
		return errors.New("companion id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *companion
	s.companions[companion.ID] = &copied
	return nil
}

// putMessageLocked replaces an existing message with the same id or
// appends a new one.
func (s *Store) putMessageLocked(msg domain.StoredMessage) {
	msgs := s.messages[msg.ConversationID]
	for i := range msgs {
		if msgs[i].ID == msg.ID {
			msgs[i] = msg
			return
		}
	}
	s.messages[msg.ConversationID] = append(msgs, msg)
}

type aggregateIncrement struct {
	conversationID string
	messageDelta   int64
	tokenDelta     int64
}

type exchangeBatch struct {
	messages   []domain.StoredMessage
	cleared    []string
	increments []aggregateIncrement
}

func (b *exchangeBatch) PutMessage(msg *domain.StoredMessage) {
	b.messages = append(b.messages, *msg)
}

func (b *exchangeBatch) ClearPending(conversationID string) {
	b.cleared = append(b.cleared, conversationID)
}

func (b *exchangeBatch) IncrAggregate(conversationID string, messageDelta, tokenDelta int64) {
	b.increments = append(b.increments, aggregateIncrement{
		conversationID: conversationID,
		messageDelta:   messageDelta,
		tokenDelta:     tokenDelta,
	})
}

var (
	_ domain.ConversationStore = (*Store)(nil)
	_ domain.CompanionStore    = (*Store)(nil)
)
