package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"memchat/internal/config"
	"memchat/internal/types"
)

func testClient(url string) *Client {
	return NewClient(config.LLMConfig{
		BaseURL: url,
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: "10s",
	})
}

func TestComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) != 2 {
			t.Errorf("messages = %d, want 2", len(req.Messages))
		}
		if req.Stream {
			t.Error("non-streaming request has stream=true")
		}

		fmt.Fprint(w, `{
			"choices": [{"message": {"role": "assistant", "content": "Hi Matt!"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13}
		}`)
	}))
	defer server.Close()

	client := testClient(server.URL)
	got, err := client.Complete(context.Background(), []types.Message{
		{Role: types.RoleSystem, Content: "You are helpful."},
		{Role: types.RoleUser, Content: "Hello"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Hi Matt!" {
		t.Errorf("Complete = %q", got)
	}
}

func TestCompleteWithToolsNativeCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Tools) != 1 || req.Tools[0].Function.Name != "add_memory" {
			t.Errorf("tools not forwarded: %+v", req.Tools)
		}
		fmt.Fprint(w, `{
			"choices": [{
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "add_memory", "arguments": "{\"content\": \"name is Matt\", \"importance\": 8}"}
					}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"total_tokens": 20}
		}`)
	}))
	defer server.Close()

	client := testClient(server.URL)
	resp, err := client.CompleteWithTools(context.Background(),
		[]types.Message{{Role: types.RoleUser, Content: "Remember my name is Matt"}},
		[]types.ToolDefinition{{Name: "add_memory", Description: "store", InputSchema: map[string]interface{}{"type": "object"}}},
	)
	if err != nil {
		t.Fatalf("CompleteWithTools: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.Name != "add_memory" || call.ID != "call_1" {
		t.Errorf("call = %+v", call)
	}
	if call.Input["content"] != "name is Matt" {
		t.Errorf("content arg = %v", call.Input["content"])
	}
	// JSON numbers decode as float64.
	if call.Input["importance"] != float64(8) {
		t.Errorf("importance arg = %v", call.Input["importance"])
	}
	if resp.StopReason != "tool_calls" {
		t.Errorf("stop reason = %q", resp.StopReason)
	}
}

func TestCompleteWithToolsMalformedArgumentsDiscarded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"choices": [{
				"message": {
					"role": "assistant",
					"content": "done",
					"tool_calls": [{"id": "bad", "type": "function", "function": {"name": "x", "arguments": "{not json"}}]
				},
				"finish_reason": "tool_calls"
			}]
		}`)
	}))
	defer server.Close()

	resp, err := testClient(server.URL).CompleteWithTools(context.Background(),
		[]types.Message{{Role: types.RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("CompleteWithTools: %v", err)
	}
	if len(resp.ToolCalls) != 0 {
		t.Errorf("malformed call not discarded: %+v", resp.ToolCalls)
	}
	if resp.Text != "done" {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error": {"message": "boom"}}`)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Complete(context.Background(),
		[]types.Message{{Role: types.RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestCompleteRateLimitRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"choices": [{"message": {"content": "ok"}, "finish_reason": "stop"}]}`)
	}))
	defer server.Close()

	got, err := testClient(server.URL).Complete(context.Background(),
		[]types.Message{{Role: types.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("Complete after retry: %v", err)
	}
	if got != "ok" {
		t.Errorf("Complete = %q", got)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestCompleteWithStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("streaming request has stream=false")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		chunks := []string{"Hel", "lo ", "Matt"}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", c)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	contentChan, errorChan := testClient(server.URL).CompleteWithStreaming(
		context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}})

	var full string
	for chunk := range contentChan {
		full += chunk
	}
	if err := <-errorChan; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if full != "Hello Matt" {
		t.Errorf("streamed text = %q", full)
	}
}

func TestCompleteWithStreamingCancellation(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")
		flusher.Flush()
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	contentChan, errorChan := testClient(server.URL).CompleteWithStreaming(
		ctx, []types.Message{{Role: types.RoleUser, Content: "hi"}})

	<-started
	cancel()

	for range contentChan {
	}
	select {
	case <-errorChan:
		// Either a context error or clean close; the channel must not hang.
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not terminate after cancellation")
	}
}
