package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hearthly/hearth/internal/observability"
)

// DefaultProviderTimeout bounds a synchronous provider call and the
// time-to-first-chunk of a stream when no timeout is configured.
const DefaultProviderTimeout = 60 * time.Second

// OrchestratorConfig carries the dispatch policy knobs.
type OrchestratorConfig struct {
	// ProviderTimeout bounds the synchronous call and the wait for the
	// first chunk of a stream. Exceeding it is a provider error.
	ProviderTimeout time.Duration

	// Fallback decides whether a failed dispatch gets another provider.
	// Defaults to SingleAttempt: exactly one provider, once.
	Fallback FallbackPolicy
}

// Orchestrator owns the generation paths for a conversation turn: it
// assembles the bounded context, resolves the provider, dispatches the
// call (sync or streaming), and hands exactly one completed exchange
// per successful turn to the recorder.
type Orchestrator struct {
	resolver      ProviderResolver
	assembler     *ContextAssembler
	recorder      Recorder
	conversations ConversationStore
	companions    CompanionStore
	cfg           OrchestratorConfig
}

// NewOrchestrator creates an orchestrator, filling zero-valued config
// with defaults.
func NewOrchestrator(
	resolver ProviderResolver,
	assembler *ContextAssembler,
	recorder Recorder,
	conversations ConversationStore,
	companions CompanionStore,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}
	if cfg.Fallback == nil {
		cfg.Fallback = SingleAttempt{}
	}
	return &Orchestrator{
		resolver:      resolver,
		assembler:     assembler,
		recorder:      recorder,
		conversations: conversations,
		companions:    companions,
		cfg:           cfg,
	}
}

// preparedTurn is the context-built state shared by both paths: the
// request is assembled, the provider is resolved, and the provisional
// user message is persisted. No provider call has happened yet.
type preparedTurn struct {
	conversation *Conversation
	request      *GenerationRequest
	provider     Provider
	userMsgID    string
	userTokens   int
	promptTokens int
}

// Generate runs the synchronous path. A recorder failure after a
// successful generation does not withhold the generated text: the
// inconsistency is logged and reported through FinalizedTurn.RecordErr.
func (o *Orchestrator) Generate(
	ctx context.Context,
	conversationID, userID string,
	turn TurnRequest,
) (*FinalizedTurn, error) {
	turn.Stream = false

	prep, err := o.prepare(ctx, conversationID, userID, turn)
	if err != nil {
		return nil, err
	}

	ctx = observability.WithProvider(ctx, prep.provider.Name())
	logger := observability.FromContext(ctx)

	result, provider, err := o.dispatch(ctx, prep.provider, prep.request)
	if err != nil {
		logger.Warn("generation failed, user message left pending",
			observability.String("conversation_id", conversationID),
			observability.Error(err),
		)
		return nil, err
	}

	// The user side of the exchange is accounted at the prompt token
	// count, so the aggregate moves by exactly prompt + completion.
	turnRec, recErr := o.recorder.RecordTurn(ctx, RecordTurnParams{
		ConversationID:  conversationID,
		UserMessageID:   prep.userMsgID,
		UserText:        prep.request.UserText,
		UserTokens:      result.PromptTokens,
		AssistantText:   result.Content,
		AssistantTokens: result.CompletionTokens,
		Provider:        provider.Name(),
		Model:           result.Model,
	})
	if recErr != nil {
		// The caller still gets the generated text; the missing record is
		// a recoverable inconsistency that reconciliation has to pick up.
		logger.Error("generated exchange could not be persisted",
			observability.String("conversation_id", conversationID),
			observability.Error(recErr),
		)
	}

	return &FinalizedTurn{Result: result, Turn: turnRec, RecordErr: recErr}, nil
}

// StreamGenerate runs the streaming path. Chunks are relayed to the
// returned channel in provider order while the full text is accumulated
// on the same flow; the recorder runs exactly once, after the terminal
// success chunk. Cancellation or a provider-side error discards the
// partial turn without recording.
func (o *Orchestrator) StreamGenerate(
	ctx context.Context,
	conversationID, userID string,
	turn TurnRequest,
) (<-chan StreamChunk, error) {
	turn.Stream = true

	prep, err := o.prepare(ctx, conversationID, userID, turn)
	if err != nil {
		return nil, err
	}

	ctx = observability.WithProvider(ctx, prep.provider.Name())

	streamCtx, cancel := context.WithCancel(ctx)
	chunks, err := prep.provider.GenerateStream(streamCtx, prep.request)
	if err != nil {
		cancel()
		return nil, o.asProviderError(prep.provider, err)
	}

	out := make(chan StreamChunk)
	go o.relayStream(streamCtx, cancel, prep, chunks, out)
	return out, nil
}

// prepare covers Idle -> ContextBuilt: validation, context assembly,
// provider resolution, and the provisional user-message write. Errors
// here are reported before dispatch is ever entered.
func (o *Orchestrator) prepare(
	ctx context.Context,
	conversationID, userID string,
	turn TurnRequest,
) (*preparedTurn, error) {
	conv, err := o.conversations.FindConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("find conversation %s: %w", conversationID, err)
	}
	if userID != "" && conv.UserID != userID {
		return nil, &ValidationError{Reason: "conversation does not belong to the requesting user"}
	}

	companion, err := o.companions.FindCompanion(ctx, conv.CompanionID)
	if err != nil {
		return nil, fmt.Errorf("find companion %s: %w", conv.CompanionID, err)
	}

	history, err := o.conversations.RecentMessages(ctx, conversationID, o.assembler.HistoryWindow())
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	req, err := o.assembler.Assemble(companion, history, turn)
	if err != nil {
		return nil, err
	}

	provider, err := o.resolver.Resolve(req.ModelHint)
	if err != nil {
		return nil, err
	}

	userTokens := provider.EstimateTokens(req.UserText)
	promptTokens := provider.EstimateTokens(promptText(req))
	userMsgID := uuid.New().String()
	pending := StoredMessage{
		ID:             userMsgID,
		ConversationID: conversationID,
		Role:           RoleUser,
		Content:        req.UserText,
		Tokens:         userTokens,
		CreatedAt:      time.Now().UTC(),
	}
	if err := o.conversations.SavePending(ctx, &pending); err != nil {
		return nil, &PersistenceError{Op: "save user message", Err: err}
	}

	return &preparedTurn{
		conversation: conv,
		request:      req,
		provider:     provider,
		userMsgID:    userMsgID,
		userTokens:   userTokens,
		promptTokens: promptTokens,
	}, nil
}

// dispatch covers ContextBuilt -> Dispatched -> Completed|Failed for
// the sync path, looping through the fallback policy on provider
// errors only.
func (o *Orchestrator) dispatch(
	ctx context.Context,
	provider Provider,
	req *GenerationRequest,
) (*GenerationResult, Provider, error) {
	logger := observability.FromContext(ctx)

	for attempt := 1; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
		start := time.Now()
		result, err := provider.Generate(callCtx, req)
		cancel()

		if err == nil {
			result.Duration = time.Since(start)
			result.Provider = provider.Name()
			o.normalizeUsage(result, provider, req)
			return result, provider, nil
		}

		provErr := o.asProviderError(provider, err)
		logger.Warn("provider dispatch failed",
			observability.Int("attempt", attempt),
			observability.Error(provErr),
		)

		name, retry := o.cfg.Fallback.Next(attempt, provErr)
		if !retry {
			return nil, nil, provErr
		}

		next, resolveErr := o.resolver.Provider(name)
		if resolveErr != nil {
			return nil, nil, resolveErr
		}
		logger.Info("falling back to secondary provider",
			observability.String("secondary", name),
		)
		provider = next
	}
}

// relayStream covers StreamingInProgress and its terminal states. The
// accumulation is a side observation of the same chunk sequence the
// caller receives, not a separate concurrent task.
func (o *Orchestrator) relayStream(
	ctx context.Context,
	cancel context.CancelFunc,
	prep *preparedTurn,
	chunks <-chan StreamChunk,
	out chan<- StreamChunk,
) {
	defer close(out)
	defer cancel()

	logger := observability.FromContext(ctx)

	var accumulated strings.Builder
	firstChunkTimer := time.NewTimer(o.cfg.ProviderTimeout)
	defer firstChunkTimer.Stop()
	awaitingFirst := true

	for {
		var timeout <-chan time.Time
		if awaitingFirst {
			timeout = firstChunkTimer.C
		}

		select {
		case <-ctx.Done():
			// StreamCancelled: partial turn discarded, nothing recorded.
			logger.Info("stream cancelled before completion",
				observability.String("conversation_id", prep.conversation.ID),
			)
			return

		case <-timeout:
			o.emit(ctx, out, StreamChunk{
				Done: true,
				Err: &ProviderError{
					Provider: prep.provider.Name(),
					Err:      fmt.Errorf("no chunk within %s: %w", o.cfg.ProviderTimeout, context.DeadlineExceeded),
				},
			})
			return

		case chunk, ok := <-chunks:
			if !ok {
				// The client contract guarantees a terminal chunk; a bare
				// close is a provider defect and is surfaced as one.
				o.emit(ctx, out, StreamChunk{
					Done: true,
					Err: &ProviderError{
						Provider: prep.provider.Name(),
						Err:      errors.New("stream closed without terminal chunk"),
					},
				})
				return
			}
			awaitingFirst = false

			if chunk.Err != nil {
				// StreamFailed: surface the error as the final observable
				// event and discard the partial turn.
				chunk.Done = true
				chunk.CompletionTokens = 0
				logger.Warn("stream failed mid-generation",
					observability.Error(chunk.Err),
				)
				o.emit(ctx, out, chunk)
				return
			}

			accumulated.WriteString(chunk.Text)

			if !o.emit(ctx, out, chunk) {
				return
			}

			if chunk.Done {
				o.finishStream(ctx, prep, accumulated.String(), chunk.CompletionTokens, chunk.Model)
				return
			}
		}
	}
}

// finishStream covers StreamCompleted: exactly one recorder call with
// the accumulated text and the terminal token count. Recording is
// detached from stream cancellation so a caller hanging up right after
// the terminal chunk cannot lose the completed exchange.
func (o *Orchestrator) finishStream(
	ctx context.Context,
	prep *preparedTurn,
	text string,
	completionTokens int,
	model string,
) {
	logger := observability.FromContext(ctx)

	if completionTokens <= 0 && text != "" {
		completionTokens = prep.provider.EstimateTokens(text)
	}
	if model == "" {
		model = prep.request.ModelHint
	}

	// Streams carry no provider-reported prompt usage, so the user side
	// is accounted at the estimated prompt token count.
	recordCtx := context.WithoutCancel(ctx)
	_, err := o.recorder.RecordTurn(recordCtx, RecordTurnParams{
		ConversationID:  prep.conversation.ID,
		UserMessageID:   prep.userMsgID,
		UserText:        prep.request.UserText,
		UserTokens:      prep.promptTokens,
		AssistantText:   text,
		AssistantTokens: completionTokens,
		Provider:        prep.provider.Name(),
		Model:           model,
	})
	if err != nil {
		// Recoverable inconsistency: the caller already has the text.
		logger.Error("streamed exchange could not be persisted",
			observability.String("conversation_id", prep.conversation.ID),
			observability.Error(err),
		)
	}
}

// emit relays a chunk unless the caller has gone away.
func (o *Orchestrator) emit(ctx context.Context, out chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// normalizeUsage fills unknown token counts from the provider's
// estimator and restores the total invariant. Estimated counts are
// flagged, never silently folded into downstream accounting.
func (o *Orchestrator) normalizeUsage(result *GenerationResult, provider Provider, req *GenerationRequest) {
	if result.PromptTokens <= 0 {
		result.PromptTokens = provider.EstimateTokens(promptText(req))
		result.UsageEstimated = true
	}
	if result.CompletionTokens <= 0 && result.Content != "" {
		result.CompletionTokens = provider.EstimateTokens(result.Content)
		result.UsageEstimated = true
	}
	result.TotalTokens = result.PromptTokens + result.CompletionTokens
}

// asProviderError guarantees dispatch failures carry the provider name.
func (o *Orchestrator) asProviderError(provider Provider, err error) error {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return err
	}
	return &ProviderError{Provider: provider.Name(), Err: err}
}

// promptText flattens a request for heuristic prompt-token estimation.
func promptText(req *GenerationRequest) string {
	var b strings.Builder
	b.WriteString(req.SystemPrompt)
	for _, msg := range req.History {
		b.WriteString("\n")
		b.WriteString(msg.Content)
	}
	b.WriteString("\n")
	b.WriteString(req.UserText)
	return b.String()
}
