package session

import (
	"context"
	"fmt"
	"sync"

	"memchat/internal/types"
)

// scriptedClient plays back canned responses. Streaming calls consume
// streamChunks; tool calls consume toolResponses in order; plain completions
// consume completions in order.
type scriptedClient struct {
	mu sync.Mutex

	streamChunks  []string
	completions   []string
	toolResponses []*types.LLMToolResponse

	streamCalls   int
	completeCalls int
	toolCalls     int
	seenTools     [][]types.ToolDefinition
	seenMessages  [][]types.Message
}

var _ types.LLMClient = (*scriptedClient)(nil)

func (s *scriptedClient) Complete(ctx context.Context, messages []types.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completeCalls++
	s.seenMessages = append(s.seenMessages, messages)
	if len(s.completions) == 0 {
		return "", fmt.Errorf("scripted client: no completion queued")
	}
	out := s.completions[0]
	s.completions = s.completions[1:]
	return out, nil
}

func (s *scriptedClient) CompleteWithTools(ctx context.Context, messages []types.Message, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolCalls++
	s.seenTools = append(s.seenTools, tools)
	s.seenMessages = append(s.seenMessages, messages)
	if len(s.toolResponses) == 0 {
		return nil, fmt.Errorf("scripted client: no tool response queued")
	}
	out := s.toolResponses[0]
	s.toolResponses = s.toolResponses[1:]
	return out, nil
}

func (s *scriptedClient) CompleteWithStreaming(ctx context.Context, messages []types.Message) (<-chan string, <-chan error) {
	s.mu.Lock()
	s.streamCalls++
	s.seenMessages = append(s.seenMessages, messages)
	chunks := append([]string(nil), s.streamChunks...)
	s.mu.Unlock()

	contentChan := make(chan string, len(chunks))
	errorChan := make(chan error, 1)
	for _, c := range chunks {
		contentChan <- c
	}
	close(contentChan)
	close(errorChan)
	return contentChan, errorChan
}

func nativeCall(name string, kv ...string) *types.LLMToolResponse {
	input := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		input[kv[i]] = kv[i+1]
	}
	return &types.LLMToolResponse{
		ToolCalls:  []types.ToolCall{{ID: "call_1", Name: name, Input: input}},
		StopReason: "tool_calls",
	}
}

func textResponse(text string) *types.LLMToolResponse {
	return &types.LLMToolResponse{Text: text, StopReason: "end_turn"}
}
