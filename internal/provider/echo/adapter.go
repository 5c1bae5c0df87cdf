// Package echo provides a testing provider that echoes the user turn
// back as the assistant response. It implements the domain.Provider
// interface without external API calls, giving deterministic responses
// for development and tests.
package echo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hearthly/hearth/internal/domain"
	"github.com/hearthly/hearth/internal/observability"
)

const (
	providerName = "echo"
	chunkDelay   = 10 * time.Millisecond
)

// Provider implements the domain.Provider interface for echo testing.
type Provider struct{}

// NewProvider creates a new echo provider. No configuration is
// required as this provider operates entirely in-memory.
func NewProvider() *Provider {
	return &Provider{}
}

// Generate echoes the user text back as the assistant response.
func (p *Provider) Generate(ctx context.Context, req *domain.GenerationRequest) (*domain.GenerationResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("echoing request")

	content := echoContent(req)
	promptTokens := p.EstimateTokens(req.SystemPrompt) + p.EstimateTokens(req.UserText)
	completionTokens := p.EstimateTokens(content)

	return &domain.GenerationResult{
		Content:          content,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Provider:         providerName,
		Model:            providerName,
		FinishReason:     domain.FinishStop,
	}, nil
}

// GenerateStream echoes the user text word by word, then emits one
// terminal chunk carrying the completion token count.
func (p *Provider) GenerateStream(ctx context.Context, req *domain.GenerationRequest) (<-chan domain.StreamChunk, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("streaming echo request")

	content := echoContent(req)
	completionTokens := p.EstimateTokens(content)

	out := make(chan domain.StreamChunk)

	go func() {
		defer close(out)

		words := strings.Fields(content)
		for i, word := range words {
			delta := word
			if i < len(words)-1 {
				delta += " "
			}

			select {
			case out <- domain.StreamChunk{Text: delta}:
				time.Sleep(chunkDelay)
			case <-ctx.Done():
				return
			}
		}

		select {
		case out <- domain.StreamChunk{Done: true, CompletionTokens: completionTokens, Model: providerName}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

// EstimateTokens counts whitespace-separated words. Good enough for a
// provider whose output is the input.
func (p *Provider) EstimateTokens(text string) int {
	return len(strings.Fields(text))
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return providerName
}

// Available always reports true; there is nothing to be down.
func (p *Provider) Available(_ context.Context) bool {
	return true
}

func echoContent(req *domain.GenerationRequest) string {
	return "You said: " + req.UserText
}

var _ domain.Provider = (*Provider)(nil)
