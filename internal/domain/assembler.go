package domain

import (
	"fmt"
	"strings"
)

const (
	// DefaultHistoryWindow bounds how many prior messages are included
	// in a generation request. Older turns are dropped entirely, not
	// summarized; this is a simplicity tradeoff, not an optimization.
	DefaultHistoryWindow = 10

	// DefaultMaxInputChars bounds the size of a single user turn.
	DefaultMaxInputChars = 8000
)

// AssemblerConfig carries the context-assembly bounds and sampling
// defaults applied when a turn request leaves them unset.
type AssemblerConfig struct {
	HistoryWindow      int
	MaxInputChars      int
	DefaultTemperature float64
	DefaultMaxTokens   int
}

// ContextAssembler builds the bounded prompt context for one turn:
// system prompt derived from the companion persona, the trailing slice
// of conversation history, and the new user message.
type ContextAssembler struct {
	cfg AssemblerConfig
}

// NewContextAssembler creates an assembler, filling zero-valued bounds
// with defaults.
func NewContextAssembler(cfg AssemblerConfig) *ContextAssembler {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}
	return &ContextAssembler{cfg: cfg}
}

// HistoryWindow returns the configured context-window size. The
// orchestrator uses it as the history fetch limit so no turn outside
// the window is ever loaded, let alone cached.
func (a *ContextAssembler) HistoryWindow() int {
	return a.cfg.HistoryWindow
}

// Assemble validates the turn and produces a GenerationRequest with the
// history bounded to the configured window, oldest turns dropped first.
func (a *ContextAssembler) Assemble(
	companion *Companion,
	history []StoredMessage,
	turn TurnRequest,
) (*GenerationRequest, error) {
	if companion == nil {
		return nil, &ValidationError{Reason: "companion is required"}
	}

	text := strings.TrimSpace(turn.Text)
	if text == "" {
		return nil, &ValidationError{Reason: "message text cannot be empty"}
	}
	if len(turn.Text) > a.cfg.MaxInputChars {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("message text exceeds %d characters", a.cfg.MaxInputChars),
		}
	}
	if turn.Temperature != nil && (*turn.Temperature < 0 || *turn.Temperature > 1) {
		return nil, &ValidationError{Reason: "temperature must be between 0.0 and 1.0"}
	}

	window, err := a.boundHistory(history)
	if err != nil {
		return nil, err
	}

	// nil means unset; an explicit 0 is a valid deterministic request
	// and must not be coerced to the default.
	temperature := a.cfg.DefaultTemperature
	if turn.Temperature != nil {
		temperature = *turn.Temperature
	}
	maxTokens := turn.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.cfg.DefaultMaxTokens
	}

	return &GenerationRequest{
		SystemPrompt: a.SystemPrompt(companion),
		History:      window,
		UserText:     text,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
		ModelHint:    turn.ModelHint,
		Stream:       turn.Stream,
	}, nil
}

// SystemPrompt concatenates the persona fields in a fixed order: name,
// description, trait list, closing stay-in-character instruction. Tests
// and prompt-reproducibility checks depend on this ordering.
func (a *ContextAssembler) SystemPrompt(companion *Companion) string {
	var b strings.Builder

	b.WriteString("You are ")
	b.WriteString(companion.Name)
	b.WriteString(".")

	if companion.Description != "" {
		b.WriteString("\n")
		b.WriteString(companion.Description)
	}

	if len(companion.Traits) > 0 {
		b.WriteString("\nPersonality traits: ")
		b.WriteString(strings.Join(companion.Traits, ", "))
		b.WriteString(".")
	}

	b.WriteString("\nAlways stay in character as ")
	b.WriteString(companion.Name)
	b.WriteString(".")

	return b.String()
}

// boundHistory keeps the most recent window of messages in
// chronological order and maps stored roles to the two-role vocabulary
// providers understand. Any other stored role is a corrupted history
// and fails loudly instead of being coerced.
func (a *ContextAssembler) boundHistory(history []StoredMessage) ([]Message, error) {
	if len(history) > a.cfg.HistoryWindow {
		history = history[len(history)-a.cfg.HistoryWindow:]
	}

	window := make([]Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case RoleUser, RoleAssistant:
			window = append(window, Message{Role: msg.Role, Content: msg.Content})
		default:
			return nil, fmt.Errorf("history message %s has unsupported role %q", msg.ID, msg.Role)
		}
	}

	return window, nil
}
