// Package perception is memchat's boundary with the language model. It holds
// the OpenAI-compatible chat-completion client and the lexical operation
// classifier that decides how a turn will be executed.
package perception

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"memchat/internal/config"
	"memchat/internal/logging"
	"memchat/internal/types"
)

// Client talks to an OpenAI-compatible chat-completion endpoint
// (llama.cpp server, vLLM, LM Studio, OpenAI itself).
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// Compile-time interface check.
var _ types.LLMClient = (*Client)(nil)

// NewClient creates a client from the llm section of the configuration.
func NewClient(cfg config.LLMConfig) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   4096,
		temperature: 0.7,
		httpClient: &http.Client{
			Timeout: cfg.ParsedTimeout(),
		},
	}
}

// Complete sends a conversation and returns the full text response.
func (c *Client) Complete(ctx context.Context, messages []types.Message) (string, error) {
	resp, err := c.CompleteWithTools(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CompleteWithTools sends a conversation plus tool declarations and returns
// both the text and any native structured calls the model produced.
func (c *Client) CompleteWithTools(ctx context.Context, messages []types.Message, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	req := ChatRequest{
		Model:       c.model,
		Messages:    mapMessages(messages),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	if len(tools) > 0 {
		req.Tools = mapToolDefinitions(tools)
	}

	timer := logging.StartTimer(logging.CategoryAPI, "chat completion")
	defer timer.Stop()
	logging.APIDebug("request: model=%s messages=%d tools=%d", c.model, len(messages), len(tools))

	var wire ChatResponse
	if err := c.post(ctx, "/chat/completions", req, &wire); err != nil {
		logging.APIError("completion failed: %v", err)
		return nil, err
	}
	if wire.Error != nil {
		return nil, fmt.Errorf("API error: %s (%s)", wire.Error.Message, wire.Error.Type)
	}
	if len(wire.Choices) == 0 {
		return nil, fmt.Errorf("API returned no choices")
	}

	choice := wire.Choices[0]
	out := &types.LLMToolResponse{
		Text:       choice.Message.Content,
		StopReason: choice.FinishReason,
		Usage: types.UsageMetadata{
			InputTokens:  wire.Usage.PromptTokens,
			OutputTokens: wire.Usage.CompletionTokens,
			TotalTokens:  wire.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		call, err := mapToolCall(tc)
		if err != nil {
			logging.APIError("discarding unparseable tool call %q: %v", tc.Function.Name, err)
			continue
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}
	logging.APIDebug("response: stop=%s text=%d bytes calls=%d tokens=%d",
		out.StopReason, len(out.Text), len(out.ToolCalls), out.Usage.TotalTokens)
	return out, nil
}

// mapToolCall converts a wire tool call to the internal representation,
// decoding the JSON-encoded argument string.
func mapToolCall(tc ChatToolCall) (types.ToolCall, error) {
	input := map[string]interface{}{}
	args := strings.TrimSpace(tc.Function.Arguments)
	if args != "" {
		if err := json.Unmarshal([]byte(args), &input); err != nil {
			return types.ToolCall{}, fmt.Errorf("invalid arguments JSON: %w", err)
		}
	}
	return types.ToolCall{
		ID:    tc.ID,
		Name:  tc.Function.Name,
		Input: input,
	}, nil
}

// CompleteWithStreaming sends a conversation and streams the response text
// chunk by chunk. The content channel closes when the stream ends; exactly
// one error (or nil) is delivered on the error channel.
func (c *Client) CompleteWithStreaming(ctx context.Context, messages []types.Message) (<-chan string, <-chan error) {
	contentChan := make(chan string, 64)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		req := ChatRequest{
			Model:         c.model,
			Messages:      mapMessages(messages),
			MaxTokens:     c.maxTokens,
			Temperature:   c.temperature,
			Stream:        true,
			StreamOptions: &StreamOptions{IncludeUsage: true},
		}

		body, err := json.Marshal(req)
		if err != nil {
			errorChan <- fmt.Errorf("failed to marshal request: %w", err)
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			errorChan <- fmt.Errorf("failed to create request: %w", err)
			return
		}
		c.setHeaders(httpReq)
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			errorChan <- fmt.Errorf("request failed: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			errorChan <- fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(data))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				if payload == "[DONE]" {
					return
				}
				continue
			}

			var chunk ChatResponse
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				logging.APIDebug("skipping malformed stream chunk: %v", err)
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			if delta == nil || delta.Content == "" {
				continue
			}
			select {
			case contentChan <- delta.Content:
			case <-ctx.Done():
				errorChan <- ctx.Err()
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errorChan <- fmt.Errorf("stream read failed: %w", err)
		}
	}()

	return contentChan, errorChan
}

// post sends a JSON request and decodes the JSON response, retrying once on
// 429 with a short backoff. Non-2xx responses become errors carrying the
// response body for diagnosis.
func (c *Client) post(ctx context.Context, path string, reqBody, respBody interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	const maxAttempts = 3
	backoff := time.Second

	for attempt := 1; ; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		c.setHeaders(httpReq)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxAttempts {
			resp.Body.Close()
			logging.API("rate limited, retrying in %v (attempt %d/%d)", backoff, attempt, maxAttempts)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("failed to read response: %w", readErr)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(data), 512))
		}
		if err := json.Unmarshal(data, respBody); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
