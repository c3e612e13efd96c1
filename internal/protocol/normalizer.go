// Package protocol converts raw model output into canonical tool invocations.
// Some models emit a tagged-text call encoding inside the response body
// instead of (or in addition to) the native structured call list:
//
//	<function=add_memory>
//	<parameter=content>User's name is Matt</parameter>
//	<parameter=kind>fact</parameter>
//	</function>
//
// The closing </function> tag is optional and the format is whitespace
// tolerant. Normalization is pure and stateless; it is safe to call from any
// number of goroutines.
package protocol

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"memchat/internal/logging"
	"memchat/internal/types"
)

const (
	functionOpen   = "<function="
	functionClose  = "</function>"
	parameterOpen  = "<parameter="
	parameterClose = "</parameter>"
)

// Normalize extracts canonical tool invocations from one inference response.
//
// Native structured calls take strict precedence: when the response carries
// any, the tagged-text scan is skipped entirely for that response, so the two
// encodings are never merged. Without native calls the text is scanned for
// tagged blocks; each well-formed block becomes an invocation and is removed
// from the returned text, while malformed blocks are left verbatim — model
// output is the one input this layer does not control, so parsing is
// best-effort and never an error.
func Normalize(resp *types.LLMToolResponse) (string, []types.ToolInvocationRequest) {
	if resp == nil {
		return "", nil
	}

	if len(resp.ToolCalls) > 0 {
		calls := make([]types.ToolInvocationRequest, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			calls = append(calls, fromNativeCall(tc))
		}
		logging.ProtocolDebug("native path: %d calls, tagged scan skipped", len(calls))
		return resp.Text, calls
	}

	text, calls := extractTagged(resp.Text)
	if len(calls) > 0 {
		logging.Protocol("tagged path: converted %d call(s)", len(calls))
	}
	return text, calls
}

// fromNativeCall converts a structured call, stringifying argument values.
// Coercion back to schema types happens in the dispatcher; keeping string
// values here gives native and tagged calls an identical downstream shape.
func fromNativeCall(tc types.ToolCall) types.ToolInvocationRequest {
	req := types.ToolInvocationRequest{
		ToolName: tc.Name,
		Origin:   types.OriginNative,
	}
	for _, name := range sortedKeys(tc.Input) {
		req.Arguments = append(req.Arguments, types.Argument{
			Name:  name,
			Value: stringify(tc.Input[name]),
		})
	}
	return req
}

// extractTagged scans text for tagged call blocks. Well-formed blocks are
// removed from the text and returned as invocations; anything else passes
// through unchanged.
func extractTagged(text string) (string, []types.ToolInvocationRequest) {
	var (
		out   strings.Builder
		calls []types.ToolInvocationRequest
		pos   = 0
	)

	for {
		idx := strings.Index(text[pos:], functionOpen)
		if idx < 0 {
			out.WriteString(text[pos:])
			break
		}
		start := pos + idx

		call, end, ok := parseBlock(text, start)
		if !ok {
			// Not a call: emit through the opening marker and keep scanning
			// after it, so prose that merely resembles the syntax survives.
			out.WriteString(text[pos : start+len(functionOpen)])
			pos = start + len(functionOpen)
			continue
		}

		out.WriteString(text[pos:start])
		calls = append(calls, call)
		pos = end
	}

	return out.String(), calls
}

// parseBlock attempts to parse one tagged call starting at the functionOpen
// marker at text[start]. It requires a sane function name and at least one
// well-formed parameter tag; otherwise reports !ok without consuming input.
// Returns the invocation and the index just past the block (including an
// optional closing tag and one trailing newline).
func parseBlock(text string, start int) (types.ToolInvocationRequest, int, bool) {
	var zero types.ToolInvocationRequest

	i := start + len(functionOpen)
	nameEnd := strings.IndexByte(text[i:], '>')
	if nameEnd < 0 {
		return zero, 0, false
	}
	name := text[i : i+nameEnd]
	if !validName(name) {
		return zero, 0, false
	}
	i += nameEnd + 1

	var args []types.Argument
	for {
		j := skipSpace(text, i)
		if !strings.HasPrefix(text[j:], parameterOpen) {
			break
		}
		k := j + len(parameterOpen)
		keyEnd := strings.IndexByte(text[k:], '>')
		if keyEnd < 0 {
			return zero, 0, false // unterminated parameter tag
		}
		key := text[k : k+keyEnd]
		if !validName(key) {
			return zero, 0, false
		}
		valStart := k + keyEnd + 1
		valEnd := strings.Index(text[valStart:], parameterClose)
		if valEnd < 0 {
			return zero, 0, false // unterminated parameter value
		}
		args = append(args, types.Argument{
			Name:  key,
			Value: strings.TrimSpace(text[valStart : valStart+valEnd]),
		})
		i = valStart + valEnd + len(parameterClose)
	}

	// A function tag with no parameters is prose, not a call.
	if len(args) == 0 {
		return zero, 0, false
	}

	j := skipSpace(text, i)
	if strings.HasPrefix(text[j:], functionClose) {
		i = j + len(functionClose)
	}
	// Swallow one trailing newline so removal doesn't leave a blank line.
	if i < len(text) && text[i] == '\n' {
		i++
	}

	return types.ToolInvocationRequest{
		ToolName:  name,
		Arguments: args,
		Origin:    types.OriginTagged,
	}, i, true
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

// sortedKeys returns map keys in a stable order. Native call maps have no
// wire order to preserve, so deterministic ordering keeps request
// fingerprints stable across retries.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stringify renders a native argument value the way the tagged encoding
// would have carried it.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		// Nested objects/arrays keep their JSON form.
		if data, err := json.Marshal(t); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", t)
	}
}

// validName accepts identifier-style tool/parameter names. Anything with
// spaces or angle brackets is prose.
func validName(s string) bool {
	if s == "" || len(s) > 128 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.':
		default:
			return false
		}
	}
	return true
}
