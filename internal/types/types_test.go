package types

import "testing"

func TestArgumentLookup(t *testing.T) {
	req := ToolInvocationRequest{
		ToolName: "add_memory",
		Arguments: []Argument{
			{Name: "content", Value: "hello"},
			{Name: "kind", Value: "fact"},
		},
	}

	if v, ok := req.Argument("content"); !ok || v != "hello" {
		t.Errorf("Argument(content) = %q, %v", v, ok)
	}
	if _, ok := req.Argument("absent"); ok {
		t.Error("absent argument reported present")
	}

	m := req.ArgumentMap()
	if len(m) != 2 || m["kind"] != "fact" {
		t.Errorf("ArgumentMap = %v", m)
	}
}

func TestArgumentMapLaterDuplicateWins(t *testing.T) {
	req := ToolInvocationRequest{
		Arguments: []Argument{
			{Name: "k", Value: "first"},
			{Name: "k", Value: "second"},
		},
	}
	if m := req.ArgumentMap(); m["k"] != "second" {
		t.Errorf("duplicate handling = %q", m["k"])
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base := ToolInvocationRequest{
		ToolName:  "read_file",
		Arguments: []Argument{{Name: "path", Value: "a.txt"}},
	}
	same := ToolInvocationRequest{
		ToolName:  "read_file",
		Arguments: []Argument{{Name: "path", Value: "a.txt"}},
	}
	if base.Fingerprint() != same.Fingerprint() {
		t.Error("identical requests have different fingerprints")
	}

	other := ToolInvocationRequest{
		ToolName:  "read_file",
		Arguments: []Argument{{Name: "path", Value: "b.txt"}},
	}
	if base.Fingerprint() == other.Fingerprint() {
		t.Error("different arguments share a fingerprint")
	}
}
