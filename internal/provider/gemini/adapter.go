// Package gemini adapts the Google Gemini API to the domain.Provider
// contract using the official genai SDK. Gemini takes the system
// prompt as a top-level system instruction and names the assistant
// role "model"; both translations happen here.
package gemini

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/hearthly/hearth/internal/domain"
	"github.com/hearthly/hearth/internal/observability"
	"github.com/hearthly/hearth/internal/tokens"
)

const providerName = "gemini"

// tokenDivisor documents the characters-per-token ratio used for
// estimates when the API reports no usage metadata. Gemini's tokenizer
// lands near four characters per token on English text.
const tokenDivisor = 4

// Provider implements domain.Provider for Gemini.
type Provider struct {
	models       *genai.Models
	defaultModel string
	timeout      time.Duration
}

// NewProvider creates a new Gemini provider.
func NewProvider(ctx context.Context, config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("Gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	return &Provider{
		models:       client.Models,
		defaultModel: config.Model,
		timeout:      time.Duration(config.Timeout) * time.Second,
	}, nil
}

// Generate sends a completion request and returns the full response.
func (p *Provider) Generate(ctx context.Context, req *domain.GenerationRequest) (*domain.GenerationResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Gemini API")

	// The SDK has no client-level request timeout; bound the sync call
	// here. Streams are bounded by the caller instead.
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	model, contents, cfg := p.toSDKRequest(req)

	resp, err := p.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		logger.Error("Gemini API call failed", observability.Error(err))
		return nil, &domain.ProviderError{Provider: providerName, Err: err}
	}

	promptTokens, completionTokens := usageCounts(resp)
	finish := domain.FinishStop
	if len(resp.Candidates) > 0 {
		finish = mapFinishReason(ctx, resp.Candidates[0].FinishReason)
	}

	return &domain.GenerationResult{
		Content:          visibleText(resp),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Provider:         providerName,
		Model:            model,
		FinishReason:     finish,
	}, nil
}

// GenerateStream sends a completion request and bridges the SDK's
// iterator to the chunk-channel contract. The iterator is consumed by
// the producing goroutine only; cancelling ctx stops iteration and the
// SDK tears down the connection.
func (p *Provider) GenerateStream(ctx context.Context, req *domain.GenerationRequest) (<-chan domain.StreamChunk, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Gemini streaming API")

	model, contents, cfg := p.toSDKRequest(req)
	stream := p.models.GenerateContentStream(ctx, model, contents, cfg)

	out := make(chan domain.StreamChunk)

	go func() {
		defer close(out)

		completionTokens := 0
		previous := ""

		for resp, err := range stream {
			if err != nil {
				if ctx.Err() != nil {
					// Cancelled by the caller: no terminal chunk at all.
					return
				}
				logger.Error("Gemini stream failed", observability.Error(err))
				select {
				case out <- domain.StreamChunk{Done: true, Err: &domain.ProviderError{Provider: providerName, Err: err}}:
				case <-ctx.Done():
				}
				return
			}

			if _, n := usageCounts(resp); n > 0 {
				completionTokens = n
			}

			// The SDK may resend the full text so far; only the suffix
			// beyond what was already relayed is a new delta.
			text := visibleText(resp)
			delta := text
			if strings.HasPrefix(text, previous) {
				delta = text[len(previous):]
			}
			if delta != "" {
				previous += delta
				select {
				case out <- domain.StreamChunk{Text: delta}:
				case <-ctx.Done():
					return
				}
			}
		}

		if ctx.Err() != nil {
			return
		}

		select {
		case out <- domain.StreamChunk{Done: true, CompletionTokens: completionTokens, Model: model}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

// EstimateTokens approximates with ceil(characters / 4); see
// tokenDivisor for why.
func (p *Provider) EstimateTokens(text string) int {
	return tokens.Estimate(text, tokenDivisor)
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return providerName
}

// Available reports whether the client is configured; no active probe.
func (p *Provider) Available(_ context.Context) bool {
	return true
}

func (p *Provider) toSDKRequest(req *domain.GenerationRequest) (string, []*genai.Content, *genai.GenerateContentConfig) {
	model := req.ModelHint
	if model == "" {
		model = p.defaultModel
	}

	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, msg := range req.History {
		role := genai.RoleUser
		if msg.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	contents = append(contents, &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: req.UserText}},
	})

	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	// Set unconditionally: 0 is a valid deterministic request, not an
	// unset value.
	cfg.Temperature = genai.Ptr(float32(req.Temperature))
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	return model, contents, cfg
}

// visibleText joins the non-thought text parts of the first candidate.
func visibleText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

func usageCounts(resp *genai.GenerateContentResponse) (prompt, completion int) {
	if resp == nil || resp.UsageMetadata == nil {
		return 0, 0
	}
	return int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount)
}

// mapFinishReason maps Gemini finish reasons to canonical ones.
// Unknown codes map to error and are logged, never treated as stop.
func mapFinishReason(ctx context.Context, reason genai.FinishReason) domain.FinishReason {
	switch reason {
	case genai.FinishReasonStop, genai.FinishReasonUnspecified:
		return domain.FinishStop
	case genai.FinishReasonMaxTokens:
		return domain.FinishLength
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
		return domain.FinishContentFilter
	default:
		observability.FromContext(ctx).Warn("unknown Gemini finish reason",
			observability.String("finish_reason", string(reason)),
		)
		return domain.FinishError
	}
}

var _ domain.Provider = (*Provider)(nil)
