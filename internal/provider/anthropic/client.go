package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client wraps the HTTP client for the Anthropic Messages API.
type Client struct {
	apiKey     string
	baseURL    string
	version    string
	httpClient *http.Client
}

// NewClient creates a new Anthropic HTTP client.
func NewClient(config Config) *Client {
	return &Client{
		apiKey:  config.APIKey,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		version: config.Version,
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
	}
}

// Messages API request/response structures.
type apiRequest struct {
	Model       string       `json:"model"`
	System      string       `json:"system,omitempty"`
	Messages    []apiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens"`
	// Always serialized so an explicit temperature of 0 reaches the API.
	Temperature float64 `json:"temperature"`
	Stream      bool         `json:"stream,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response represents a non-streaming Messages API response.
type Response struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Text joins the text blocks of the response content.
func (r *Response) Text() string {
	var b strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// StreamResult is a single event decoded from the SSE stream.
// StopReason and OutputTokens are only set on the terminal result.
type StreamResult struct {
	Delta        string
	StopReason   string
	OutputTokens int
	Done         bool
	Err          error
}

// streamEvent mirrors the union of SSE payloads this client consumes.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a non-streaming request.
func (c *Client) Complete(ctx context.Context, req apiRequest) (*Response, error) {
	if c.apiKey == "" {
		return nil, errors.New("API key is not configured")
	}

	resp, err := c.execute(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var apiResp Response
	if decodeErr := json.NewDecoder(resp.Body).Decode(&apiResp); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	return &apiResp, nil
}

// Stream sends a streaming request. The returned channel is closed by
// the reading goroutine, which also owns closing the response body, so
// cancelling ctx releases the connection without caller involvement.
func (c *Client) Stream(ctx context.Context, req apiRequest) (<-chan StreamResult, error) {
	if c.apiKey == "" {
		return nil, errors.New("API key is not configured")
	}

	req.Stream = true

	//nolint:bodyclose // Response body is closed in processStream goroutine
	resp, err := c.execute(ctx, req)
	if err != nil {
		return nil, err
	}

	results := make(chan StreamResult)
	go c.processStream(ctx, resp, results)

	return results, nil
}

// execute builds and sends the HTTP request, failing on any non-200.
func (c *Client) execute(ctx context.Context, req apiRequest) (*http.Response, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/v1/messages",
		bytes.NewReader(reqBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)
	httpReq.Header.Set("Anthropic-Version", c.version)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}

// processStream reads SSE lines until message_stop, an error event, or
// stream end. Exactly one terminal result is sent per stream unless ctx
// is cancelled first.
func (c *Client) processStream(ctx context.Context, resp *http.Response, results chan<- StreamResult) {
	defer close(results)
	defer resp.Body.Close()

	var stopReason string
	var outputTokens int

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		data, found := strings.CutPrefix(line, "data: ")
		if !found {
			continue
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			c.send(ctx, results, StreamResult{Err: fmt.Errorf("failed to decode stream event: %w", err)})
			return
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Text != "" {
				if !c.send(ctx, results, StreamResult{Delta: event.Delta.Text}) {
					return
				}
			}
		case "message_delta":
			// Carries the stop reason and the final output token count.
			if event.Delta.StopReason != "" {
				stopReason = event.Delta.StopReason
			}
			if event.Usage.OutputTokens > 0 {
				outputTokens = event.Usage.OutputTokens
			}
		case "message_stop":
			c.send(ctx, results, StreamResult{
				Done:         true,
				StopReason:   stopReason,
				OutputTokens: outputTokens,
			})
			return
		case "error":
			c.send(ctx, results, StreamResult{
				Err: fmt.Errorf("stream error (%s): %s", event.Error.Type, event.Error.Message),
			})
			return
		}
	}

	if err := scanner.Err(); err != nil {
		c.send(ctx, results, StreamResult{Err: fmt.Errorf("stream read failed: %w", err)})
		return
	}

	// Stream ended without message_stop.
	c.send(ctx, results, StreamResult{Err: errors.New("stream ended before message_stop")})
}

// send delivers a result unless the caller cancelled.
func (c *Client) send(ctx context.Context, results chan<- StreamResult, result StreamResult) bool {
	select {
	case results <- result:
		return true
	case <-ctx.Done():
		return false
	}
}
