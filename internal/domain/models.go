package domain

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// FinishReason is the canonical terminal state of a generation. Every
// vendor-specific finish code is mapped onto one of these values.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishError         FinishReason = "error"
)

// Message is a single role/content pair in provider-facing form.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerationRequest describes one generation in provider-neutral terms.
// History is ordered oldest first and is already bounded to the context
// window by the assembler before a request is ever dispatched.
type GenerationRequest struct {
	SystemPrompt string    `json:"system_prompt"`
	History      []Message `json:"history"`
	UserText     string    `json:"user_text"`
	Temperature  float64   `json:"temperature,omitempty"`
	MaxTokens    int       `json:"max_tokens,omitempty"`
	ModelHint    string    `json:"model,omitempty"`
	Stream       bool      `json:"stream,omitempty"`
}

// Messages returns the full provider-facing message sequence: system
// prompt (when present), bounded history, then the new user turn.
func (r *GenerationRequest) Messages() []Message {
	msgs := make([]Message, 0, len(r.History)+2)
	if r.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: r.SystemPrompt})
	}
	msgs = append(msgs, r.History...)
	msgs = append(msgs, Message{Role: RoleUser, Content: r.UserText})
	return msgs
}

// GenerationResult is the outcome of a synchronous generation.
//
// UsageEstimated is set whenever any of the token counts was not
// reported by the provider and had to be estimated; downstream
// accounting must never treat estimated counts as exact.
type GenerationResult struct {
	Content          string        `json:"content"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	UsageEstimated   bool          `json:"usage_estimated,omitempty"`
	Provider         string        `json:"provider"`
	Model            string        `json:"model"`
	Duration         time.Duration `json:"duration"`
	FinishReason     FinishReason  `json:"finish_reason"`
}

// Truncated reports whether the output was cut off by the token limit.
func (r *GenerationResult) Truncated() bool {
	return r.FinishReason == FinishLength
}

// StreamChunk is one increment of a streaming generation. Exactly one
// terminal chunk (Done == true) is emitted per stream; CompletionTokens
// and Model are only meaningful on the terminal chunk, and Err replaces
// the token count when the provider failed mid-stream.
type StreamChunk struct {
	Text             string `json:"text"`
	Done             bool   `json:"done"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	Model            string `json:"model,omitempty"`
	Err              error  `json:"-"`
}

// Companion is the configured character identity a conversation is held
// with. Its fields feed the system prompt in a fixed order.
type Companion struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Traits      []string `json:"traits,omitempty"`
}

// Conversation is the owning record of a message history.
type Conversation struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CompanionID string    `json:"companion_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// StoredMessage is a persisted chat message with its bookkeeping.
// Assistant messages are immutable once stored; Edited only ever applies
// to user messages.
type StoredMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Tokens         int       `json:"tokens"`
	Edited         bool      `json:"edited,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationTurn is one completed exchange: the user message and the
// assistant response, persisted as a single unit.
type ConversationTurn struct {
	UserMessage      StoredMessage `json:"user_message"`
	AssistantMessage StoredMessage `json:"assistant_message"`
	Provider         string        `json:"provider"`
	Model            string        `json:"model"`
}

// ConversationAggregate carries the running counters of a conversation.
// It is mutated exactly once per completed turn, both messages counted
// together, always through an atomic increment in the store.
type ConversationAggregate struct {
	MessageCount int64 `json:"message_count"`
	TokenTotal   int64 `json:"token_total"`
}

// TurnRequest is the caller-facing description of a new conversation
// turn. A nil Temperature falls back to the configured default; an
// explicit 0 requests deterministic sampling and is honored as-is.
// Zero MaxTokens falls back to the configured default.
type TurnRequest struct {
	Text        string   `json:"text"`
	ModelHint   string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

// FinalizedTurn is what the synchronous generation path hands back to
// the transport layer.
//
// RecordErr is non-nil when generation succeeded but the exchange could
// not be persisted; the generated text is still delivered and the
// inconsistency is logged for reconciliation.
type FinalizedTurn struct {
	Result    *GenerationResult `json:"result"`
	Turn      *ConversationTurn `json:"turn,omitempty"`
	RecordErr error             `json:"-"`
}
