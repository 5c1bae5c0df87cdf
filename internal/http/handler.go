package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hearthly/hearth/internal/domain"
	"github.com/hearthly/hearth/internal/observability"
)

// Handler handles HTTP requests.
type Handler struct {
	orchestrator  *domain.Orchestrator
	resolver      domain.ProviderResolver
	conversations domain.ConversationStore
	companions    domain.CompanionStore
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(
	orchestrator *domain.Orchestrator,
	resolver domain.ProviderResolver,
	conversations domain.ConversationStore,
	companions domain.CompanionStore,
) *Handler {
	return &Handler{
		orchestrator:  orchestrator,
		resolver:      resolver,
		conversations: conversations,
		companions:    companions,
	}
}

type createConversationRequest struct {
	CompanionID string `json:"companion_id"`
}

// HandleCreateConversation registers a new conversation for the calling
// user against an existing companion.
func (h *Handler) HandleCreateConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		http.Error(w, "user not specified in X-User-Id header", http.StatusBadRequest)
		return
	}

	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.CompanionID == "" {
		http.Error(w, "companion_id is required", http.StatusBadRequest)
		return
	}

	// The companion must exist before a conversation can reference it.
	if _, err := h.companions.FindCompanion(ctx, req.CompanionID); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	conv := &domain.Conversation{
		ID:          uuid.New().String(),
		UserID:      userID,
		CompanionID: req.CompanionID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.conversations.CreateConversation(ctx, conv); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("companion_id", conv.CompanionID),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(conv); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// HandleMessage processes a new turn on a conversation: synchronous
// JSON by default, SSE when the request asks to stream.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conversationID := r.PathValue("id")
	userID := r.Header.Get("X-User-Id")

	ctx = observability.WithConversationID(ctx, conversationID)

	var turn domain.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&turn); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if turn.ModelHint != "" {
		ctx = observability.WithModel(ctx, turn.ModelHint)
	}

	logger := observability.FromContext(ctx)
	logger.Info("turn request received",
		zap.String("conversation_id", conversationID),
		zap.String("model", turn.ModelHint),
		zap.Bool("stream", turn.Stream),
	)

	if turn.Stream {
		h.handleStream(ctx, w, conversationID, userID, turn)
		return
	}

	finalized, err := h.orchestrator.Generate(ctx, conversationID, userID, turn)
	if err != nil {
		logger.Error("generation failed", zap.Error(err))
		h.writeError(ctx, w, err)
		return
	}

	logger.Info("generation succeeded",
		zap.Int("tokens", finalized.Result.TotalTokens),
		zap.String("provider", finalized.Result.Provider),
		zap.Bool("recorded", finalized.RecordErr == nil),
	)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(finalized); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) handleStream(
	ctx context.Context,
	w http.ResponseWriter,
	conversationID, userID string,
	turn domain.TurnRequest,
) {
	logger := observability.FromContext(ctx)
	logger.Info("stream request started")

	chunks, err := h.orchestrator.StreamGenerate(ctx, conversationID, userID, turn)
	if err != nil {
		logger.Error("stream failed", zap.Error(err))
		h.writeError(ctx, w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Set headers for SSE.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for chunk := range chunks {
		if chunk.Err != nil {
			logger.Error("stream chunk error", zap.Error(chunk.Err))
			// Send error as event.
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", chunk.Err.Error())
			flusher.Flush()
			return
		}

		// Send chunk as event.
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", string(data))
		flusher.Flush()

		if chunk.Done {
			logger.Info("stream completed")
			break
		}
	}
}

// HandlePutCompanion creates or replaces a companion persona.
func (h *Handler) HandlePutCompanion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	var companion domain.Companion
	if err := json.NewDecoder(r.Body).Decode(&companion); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	companion.ID = r.PathValue("id")
	if companion.Name == "" {
		http.Error(w, "companion name is required", http.StatusBadRequest)
		return
	}

	if err := h.companions.PutCompanion(ctx, &companion); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	logger.Info("companion stored", zap.String("companion_id", companion.ID))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(companion); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// HandleProviders lists the registered provider names.
func (h *Handler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string][]string{
		"providers": h.resolver.List(),
	}); err != nil {
		observability.FromContext(r.Context()).Error("failed to encode response", zap.Error(err))
	}
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		// Already written status, can't change it, just log.
		return
	}
}

// writeError maps domain errors onto HTTP statuses.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var validationErr *domain.ValidationError
	var unknownErr *domain.UnknownProviderError
	var providerErr *domain.ProviderError
	switch {
	case errors.As(err, &validationErr), errors.As(err, &unknownErr):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &providerErr):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		observability.FromContext(ctx).Error("request failed", zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}
