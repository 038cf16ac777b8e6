package collab

import "testing"

func TestToolResult_Visit_Exhaustive(t *testing.T) {
	cases := []struct {
		name   string
		result ToolResult
		want   string
	}{
		{"text", NewTextResult("c1", "hello"), "text"},
		{"error", NewErrorResult("c2", ErrCodeTimeout, "peer timed out"), "error"},
		{"data", ToolResult{Kind: KindData, CallID: "c3", Data: &DataResult{Data: map[string]any{"k": "v"}}}, "data"},
		{"artifact", ToolResult{Kind: KindArtifact, CallID: "c4", Artifact: &ArtifactResult{Filename: "out.txt", Version: 1}}, "artifact"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			tc.result.Visit(
				func(TextResult) { got = "text" },
				func(DataResult) { got = "data" },
				func(ArtifactResult) { got = "artifact" },
				func(ErrorResult) { got = "error" },
			)
			if got != tc.want {
				t.Errorf("Visit dispatched to %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewErrorResult_CarriesCodeAndCallID(t *testing.T) {
	r := NewErrorResult("call-1", ErrCodePermissionDenied, "self-delegation")
	if r.Kind != KindError {
		t.Fatalf("Kind = %v, want KindError", r.Kind)
	}
	if r.CallID != "call-1" {
		t.Errorf("CallID = %q, want call-1", r.CallID)
	}
	if r.Error == nil || r.Error.Code != ErrCodePermissionDenied || r.Error.Message != "self-delegation" {
		t.Errorf("Error = %+v", r.Error)
	}
}

func TestNewTextResult(t *testing.T) {
	r := NewTextResult("call-2", "done")
	if r.Kind != KindText || r.Text == nil || r.Text.Text != "done" {
		t.Errorf("NewTextResult = %+v", r)
	}
}
