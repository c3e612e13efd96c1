package protocol

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"memchat/internal/types"
)

func TestNormalizeTaggedRoundTrip(t *testing.T) {
	resp := &types.LLMToolResponse{
		Text: "<function=add_memory>\n<parameter=content>hello</parameter>\n</function>",
	}
	text, calls := Normalize(resp)
	if text != "" {
		t.Errorf("remaining text = %q, want empty", text)
	}
	want := []types.ToolInvocationRequest{{
		ToolName:  "add_memory",
		Arguments: []types.Argument{{Name: "content", Value: "hello"}},
		Origin:    types.OriginTagged,
	}}
	if diff := cmp.Diff(want, calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeMultipleParametersKeepOrder(t *testing.T) {
	resp := &types.LLMToolResponse{
		Text: `I'll save that.
<function=add_memory>
<parameter=content>User's name is Matt</parameter>
<parameter=kind>fact</parameter>
<parameter=importance>0.9</parameter>
</function>
Done.`,
	}
	text, calls := Normalize(resp)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	want := []types.Argument{
		{Name: "content", Value: "User's name is Matt"},
		{Name: "kind", Value: "fact"},
		{Name: "importance", Value: "0.9"},
	}
	if diff := cmp.Diff(want, calls[0].Arguments); diff != "" {
		t.Errorf("arguments mismatch (-want +got):\n%s", diff)
	}
	if text != "I'll save that.\nDone." {
		t.Errorf("remaining text = %q", text)
	}
}

func TestNormalizeWithoutClosingFunctionTag(t *testing.T) {
	resp := &types.LLMToolResponse{
		Text: "<function=search_memories>\n<parameter=query>name</parameter>",
	}
	_, calls := Normalize(resp)
	if len(calls) != 1 || calls[0].ToolName != "search_memories" {
		t.Fatalf("calls = %+v", calls)
	}
	if v, ok := calls[0].Argument("query"); !ok || v != "name" {
		t.Errorf("query = %q, %v", v, ok)
	}
}

func TestNormalizeMultipleCalls(t *testing.T) {
	resp := &types.LLMToolResponse{
		Text: `<function=add_memory><parameter=content>a</parameter></function>
<function=add_memory><parameter=content>b</parameter></function>`,
	}
	_, calls := Normalize(resp)
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if v, _ := calls[0].Argument("content"); v != "a" {
		t.Errorf("first call content = %q", v)
	}
	if v, _ := calls[1].Argument("content"); v != "b" {
		t.Errorf("second call content = %q", v)
	}
}

func TestNormalizeMalformedBlocksLeftVerbatim(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no parameters", "Use <function=add_memory> to store things."},
		{"unterminated parameter", "<function=add_memory>\n<parameter=content>hello"},
		{"unterminated parameter tag", "<function=add_memory>\n<parameter=content hello"},
		{"name with spaces", "<function=not a name>\n<parameter=x>1</parameter>"},
		{"prose resembling syntax", "the <function= tag is part of the grammar"},
		{"empty name", "<function=>\n<parameter=x>1</parameter>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, calls := Normalize(&types.LLMToolResponse{Text: tt.text})
			if len(calls) != 0 {
				t.Errorf("calls = %+v, want none", calls)
			}
			if text != tt.text {
				t.Errorf("text altered:\n got %q\nwant %q", text, tt.text)
			}
		})
	}
}

func TestNormalizeNativePrecedence(t *testing.T) {
	// A response with native calls also contains a tagged block; the tagged
	// scan must be skipped entirely, never merged.
	resp := &types.LLMToolResponse{
		Text: "<function=delete_memory><parameter=id>123</parameter></function>",
		ToolCalls: []types.ToolCall{{
			ID:   "call_1",
			Name: "add_memory",
			Input: map[string]interface{}{
				"content":    "hello",
				"importance": 0.5,
			},
		}},
	}
	text, calls := Normalize(resp)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1 (native only)", len(calls))
	}
	if calls[0].ToolName != "add_memory" || calls[0].Origin != types.OriginNative {
		t.Errorf("call = %+v", calls[0])
	}
	if v, _ := calls[0].Argument("importance"); v != "0.5" {
		t.Errorf("importance stringified as %q", v)
	}
	// The tagged block stays in the text untouched.
	if text != resp.Text {
		t.Errorf("text altered: %q", text)
	}
}

func TestNormalizeNilAndPlainText(t *testing.T) {
	if text, calls := Normalize(nil); text != "" || calls != nil {
		t.Errorf("nil response: %q, %+v", text, calls)
	}
	plain := "The capital of France is Paris."
	text, calls := Normalize(&types.LLMToolResponse{Text: plain})
	if text != plain || len(calls) != 0 {
		t.Errorf("plain text: %q, %+v", text, calls)
	}
}

func TestNormalizeValueWhitespaceTrimmed(t *testing.T) {
	resp := &types.LLMToolResponse{
		Text: "<function=add_memory>\n<parameter=content>\n  hello world  \n</parameter>\n</function>",
	}
	_, calls := Normalize(resp)
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	if v, _ := calls[0].Argument("content"); v != "hello world" {
		t.Errorf("content = %q", v)
	}
}
