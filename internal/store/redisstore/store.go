// Package redisstore implements the conversation and companion stores
// on Redis. Exchange commits go through a MULTI/EXEC transaction
// pipeline and aggregate counters move only by HINCRBY, so concurrent
// turns on one conversation can never interleave a partial update.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hearthly/hearth/internal/domain"
)

// Config contains Redis connection settings.
type Config struct {
	Addr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"       envDefault:"0"`
}

// NewClient creates a Redis client from config.
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Store implements domain.ConversationStore and domain.CompanionStore.
type Store struct {
	client *redis.Client
}

// NewStore creates a Redis-backed store.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Key layout.
func conversationKey(id string) string { return "conv:" + id }
func messagesKey(id string) string     { return "conv:" + id + ":msgs" }
func messageKey(id string) string      { return "msg:" + id }
func companionKey(id string) string    { return "companion:" + id }

const (
	fieldUserID       = "user_id"
	fieldCompanionID  = "companion_id"
	fieldCreatedAt    = "created_at"
	fieldMessageCount = "message_count"
	fieldTokenTotal   = "token_total"
	fieldPendingMsg   = "pending_message"
)

// CreateConversation writes the conversation hash with zeroed counters.
func (s *Store) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	if conv == nil || conv.ID == "" {
		return errors.New("conversation id cannot be empty")
	}

	created := conv.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	err := s.client.HSet(ctx, conversationKey(conv.ID),
		fieldUserID, conv.UserID,
		fieldCompanionID, conv.CompanionID,
		fieldCreatedAt, created.Format(time.RFC3339Nano),
		fieldMessageCount, 0,
		fieldTokenTotal, 0,
	).Err()
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// FindConversation loads a conversation by id.
func (s *Store) FindConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	fields, err := s.client.HGetAll(ctx, conversationKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, fields[fieldCreatedAt])
	return &domain.Conversation{
		ID:          id,
		UserID:      fields[fieldUserID],
		CompanionID: fields[fieldCompanionID],
		CreatedAt:   createdAt,
	}, nil
}

// RecentMessages returns the newest limit messages in chronological
// order, resolved from the per-conversation id list.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]domain.StoredMessage, error) {
	if limit <= 0 {
		return nil, nil
	}

	ids, err := s.client.LRange(ctx, messagesKey(conversationID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load message ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = messageKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	messages := make([]domain.StoredMessage, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue // id without a body; skip rather than fail the turn
		}
		var msg domain.StoredMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// SavePending writes a provisional user message outside the message
// list and marks it on the conversation so an interrupted turn is
// visible as incomplete.
func (s *Store) SavePending(ctx context.Context, msg *domain.StoredMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, messageKey(msg.ID), raw, 0)
		pipe.HSet(ctx, conversationKey(msg.ConversationID), fieldPendingMsg, msg.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save pending message: %w", err)
	}
	return nil
}

// Aggregate reads the conversation counters.
func (s *Store) Aggregate(ctx context.Context, conversationID string) (*domain.ConversationAggregate, error) {
	values, err := s.client.HMGet(ctx, conversationKey(conversationID), fieldMessageCount, fieldTokenTotal).Result()
	if err != nil {
		return nil, fmt.Errorf("load aggregate: %w", err)
	}

	agg := &domain.ConversationAggregate{}
	agg.MessageCount = parseCounter(values[0])
	agg.TokenTotal = parseCounter(values[1])
	return agg, nil
}

// Exchange stages writes through fn and commits them in one MULTI/EXEC
// transaction: every queued command executes, or none do.
func (s *Store) Exchange(ctx context.Context, fn func(batch domain.ExchangeBatch)) error {
	batch := &exchangeBatch{ctx: ctx}
	fn(batch)
	if batch.err != nil {
		return batch.err
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range batch.ops {
			op(pipe)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit exchange: %w", err)
	}
	return nil
}

// FindCompanion loads a companion persona.
func (s *Store) FindCompanion(ctx context.Context, id string) (*domain.Companion, error) {
	raw, err := s.client.Get(ctx, companionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("companion %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find companion: %w", err)
	}

	var companion domain.Companion
	if err := json.Unmarshal([]byte(raw), &companion); err != nil {
		return nil, fmt.Errorf("decode companion: %w", err)
	}
	return &companion, nil
}

// PutCompanion writes a companion persona.
func (s *Store) PutCompanion(ctx context.Context, companion *domain.Companion) error {
	if companion == nil || companion.ID == "" {
		return errors.New("companion id cannot be empty")
	}

	raw, err := json.Marshal(companion)
	if err != nil {
		return fmt.Errorf("encode companion: %w", err)
	}
	if err := s.client.Set(ctx, companionKey(companion.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("put companion: %w", err)
	}
	return nil
}

// exchangeBatch stages pipeline closures until commit.
type exchangeBatch struct {
	ctx context.Context
	ops []func(pipe redis.Pipeliner)
	err error
}

func (b *exchangeBatch) PutMessage(msg *domain.StoredMessage) {
	raw, err := json.Marshal(msg)
	if err != nil {
		b.err = fmt.Errorf("encode message: %w", err)
		return
	}
	id, convID := msg.ID, msg.ConversationID
	b.ops = append(b.ops, func(pipe redis.Pipeliner) {
		pipe.Set(b.ctx, messageKey(id), raw, 0)
		pipe.RPush(b.ctx, messagesKey(convID), id)
	})
}

func (b *exchangeBatch) ClearPending(conversationID string) {
	b.ops = append(b.ops, func(pipe redis.Pipeliner) {
		pipe.HDel(b.ctx, conversationKey(conversationID), fieldPendingMsg)
	})
}

func (b *exchangeBatch) IncrAggregate(conversationID string, messageDelta, tokenDelta int64) {
	b.ops = append(b.ops, func(pipe redis.Pipeliner) {
		pipe.HIncrBy(b.ctx, conversationKey(conversationID), fieldMessageCount, messageDelta)
		pipe.HIncrBy(b.ctx, conversationKey(conversationID), fieldTokenTotal, tokenDelta)
	})
}

func parseCounter(value interface{}) int64 {
	raw, ok := value.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

var (
	_ domain.ConversationStore = (*Store)(nil)
	_ domain.CompanionStore    = (*Store)(nil)
)
