// Package openai adapts the OpenAI Chat Completions API to the
// domain.Provider contract using the official SDK, converting between
// canonical generation types and SDK types.
package openai

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hearthly/hearth/internal/domain"
	"github.com/hearthly/hearth/internal/observability"
	"github.com/hearthly/hearth/internal/tokens"
)

const providerName = "openai"

// tokenDivisor documents the characters-per-token ratio used for
// estimates when the API reports no usage. OpenAI's tiktoken averages
// close to four characters per token on English chat text.
const tokenDivisor = 4

// Provider implements domain.Provider for OpenAI.
type Provider struct {
	client       openai.Client
	defaultModel string
}

// NewProvider creates a new OpenAI provider.
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.Timeout)*time.Second))
	}

	return &Provider{
		client:       openai.NewClient(opts...),
		defaultModel: config.Model,
	}, nil
}

// Generate sends a completion request and returns the full response.
func (p *Provider) Generate(ctx context.Context, req *domain.GenerationRequest) (*domain.GenerationResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI API")

	params := p.toSDKParams(req)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Error("OpenAI API call failed", observability.Error(err))
		return nil, &domain.ProviderError{Provider: providerName, Err: err}
	}

	logger.Debug("OpenAI API call succeeded",
		observability.Int("prompt_tokens", int(resp.Usage.PromptTokens)),
		observability.Int("completion_tokens", int(resp.Usage.CompletionTokens)),
	)

	return p.toResult(ctx, resp), nil
}

// GenerateStream sends a completion request and returns the chunk
// sequence. The producing goroutine owns the SDK stream and closes it
// on every exit path, so early termination never leaks the connection.
func (p *Provider) GenerateStream(ctx context.Context, req *domain.GenerationRequest) (<-chan domain.StreamChunk, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI streaming API")

	model := p.model(req)
	params := p.toSDKParams(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	out := make(chan domain.StreamChunk)

	go func() {
		defer close(out)
		defer stream.Close()

		completionTokens := 0

		for stream.Next() {
			chunk := stream.Current()

			// Usage arrives on a trailing chunk with no choices when
			// include_usage is set.
			if chunk.Usage.CompletionTokens > 0 {
				completionTokens = int(chunk.Usage.CompletionTokens)
			}

			if len(chunk.Choices) == 0 {
				continue
			}

			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}

			select {
			case out <- domain.StreamChunk{Text: delta}:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
			if ctx.Err() != nil {
				// Cancelled by the caller: no terminal chunk at all.
				return
			}
			logger.Error("OpenAI stream failed", observability.Error(err))
			select {
			case out <- domain.StreamChunk{Done: true, Err: &domain.ProviderError{Provider: providerName, Err: err}}:
			case <-ctx.Done():
			}
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

// Available reports whether the client is configured. The SDK manages
// connection liveness itself, so no active probe is made.
func (p *Provider) Available(_ context.Context) bool {
	return true
}

// model picks the request hint when present, the configured default
// otherwise.
func (p *Provider) model(req *domain.GenerationRequest) string {
	if req.ModelHint != "" {
		return req.ModelHint
	}
	return p.defaultModel
}

// toSDKParams converts the canonical request to SDK parameters. The
// system prompt is injected as a dedicated system-role message, per
// OpenAI's convention.
func (p *Provider) toSDKParams(req *domain.GenerationRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	for _, msg := range req.Messages() {
		switch msg.Role {
		case domain.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case domain.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model(req)),
		Messages: messages,
	}

	// Set unconditionally: 0 is a valid deterministic request, not an
	// unset value.
	params.Temperature = openai.Float(req.Temperature)

	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	return params
}

// toResult converts an SDK response to a canonical result, mapping the
// vendor finish-reason vocabulary onto the canonical one.
func (p *Provider) toResult(ctx context.Context, resp *openai.ChatCompletion) *domain.GenerationResult {
	content := ""
	finish := domain.FinishStop
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		finish = mapFinishReason(ctx, string(resp.Choices[0].FinishReason))
	}

	return &domain.GenerationResult{
		Content:          content,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
		Provider:         providerName,
		Model:            string(resp.Model),
		FinishReason:     finish,
	}
}

// mapFinishReason maps OpenAI finish reasons to canonical ones.
// Unknown codes map to error and are logged, never treated as stop.
func mapFinishReason(ctx context.Context, reason string) domain.FinishReason {
	switch reason {
	case "stop", "":
		return domain.FinishStop
	case "length":
		return domain.FinishLength
	case "content_filter":
		return domain.FinishContentFilter
	default:
		observability.FromContext(ctx).Warn("unknown OpenAI finish reason",
			observability.String("finish_reason", reason),
		)
		return domain.FinishError
	}
}

var _ domain.Provider = (*Provider)(nil)
