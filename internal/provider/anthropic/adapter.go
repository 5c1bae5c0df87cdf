// Package anthropic adapts the Anthropic Messages API to the
// domain.Provider contract over a plain HTTP client. The system prompt
// travels as the top-level system field, per Anthropic's convention,
// not as a system-role message.
package anthropic

import (
	"context"
	"errors"

	"github.com/hearthly/hearth/internal/domain"
	"github.com/hearthly/hearth/internal/observability"
	"github.com/hearthly/hearth/internal/tokens"
)

const providerName = "anthropic"

// tokenDivisor documents the characters-per-token ratio used for
// estimates. Anthropic does not distribute its tokenizer, so the
// shared four-characters-per-token heuristic applies.
const tokenDivisor = 4

// defaultMaxTokens satisfies the Messages API requirement that
// max_tokens is always present.
const defaultMaxTokens = 1024

// Provider implements domain.Provider for Anthropic.
type Provider struct {
	client       *Client
	defaultModel string
}

// NewProvider creates a new Anthropic provider.
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	return &Provider{
		client:       NewClient(config),
		defaultModel: config.Model,
	}, nil
}

// Generate sends a completion request and returns the full response.
func (p *Provider) Generate(ctx context.Context, req *domain.GenerationRequest) (*domain.GenerationResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Anthropic API")

	resp, err := p.client.Complete(ctx, p.toAPIRequest(req))
	if err != nil {
		logger.Error("Anthropic API call failed", observability.Error(err))
		return nil, &domain.ProviderError{Provider: providerName, Err: err}
	}

	logger.Debug("Anthropic API call succeeded",
		observability.Int("prompt_tokens", resp.Usage.InputTokens),
		observability.Int("completion_tokens", resp.Usage.OutputTokens),
	)

	return &domain.GenerationResult{
		Content:          resp.Text(),
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		Provider:         providerName,
		Model:            resp.Model,
		FinishReason:     mapStopReason(ctx, resp.StopReason),
	}, nil
}

// GenerateStream sends a completion request and returns the chunk
// sequence translated from the Messages API SSE events.
func (p *Provider) GenerateStream(ctx context.Context, req *domain.GenerationRequest) (<-chan domain.StreamChunk, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Anthropic streaming API")

	apiReq := p.toAPIRequest(req)
	results, err := p.client.Stream(ctx, apiReq)
	if err != nil {
		logger.Error("Anthropic stream setup failed", observability.Error(err))
		return nil, &domain.ProviderError{Provider: providerName, Err: err}
	}

	out := make(chan domain.StreamChunk)

	go func() {
		defer close(out)
		defer logger.Debug("Anthropic stream completed")

		for result := range results {
			chunk := p.toChunk(ctx, result, apiReq.Model)
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Done {
				return
			}
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

func (p *Provider) toAPIRequest(req *domain.GenerationRequest) apiRequest {
	messages := make([]apiMessage, 0, len(req.History)+1)
	for _, msg := range req.History {
		messages = append(messages, apiMessage{Role: string(msg.Role), Content: msg.Content})
	}
	messages = append(messages, apiMessage{Role: string(domain.RoleUser), Content: req.UserText})

	model := req.ModelHint
	if model == "" {
		model = p.defaultModel
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return apiRequest{
		Model:       model,
		System:      req.SystemPrompt,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
}

func (p *Provider) toChunk(ctx context.Context, result StreamResult, model string) domain.StreamChunk {
	if result.Err != nil {
		return domain.StreamChunk{
			Done: true,
			Err:  &domain.ProviderError{Provider: providerName, Err: result.Err},
		}
	}
	if result.Done {
		// Stop reason is validated here so unknown vendor codes are
		// logged even on the streaming path.
		mapStopReason(ctx, result.StopReason)
		return domain.StreamChunk{Done: true, CompletionTokens: result.OutputTokens, Model: model}
	}
	return domain.StreamChunk{Text: result.Delta}
}

// mapStopReason maps Anthropic stop reasons to canonical finish
// reasons. Unknown codes map to error and are logged, never treated as
// a clean stop.
func mapStopReason(ctx context.Context, reason string) domain.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence", "":
		return domain.FinishStop
	case "max_tokens":
		return domain.FinishLength
	case "refusal":
		return domain.FinishContentFilter
	default:
		observability.FromContext(ctx).Warn("unknown Anthropic stop reason",
			observability.String("stop_reason", reason),
		)
		return domain.FinishError
	}
}

var _ domain.Provider = (*Provider)(nil)
