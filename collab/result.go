package collab

// ToolResult is a sealed set of result variants fed back to the LLM after a
// tool call, peer delegation, or parallel-fan-out completes (spec §9 design
// note: replaces the source's isinstance-based dynamic dispatch with an
// exhaustive closed set). Exactly one of the Text/Data/Artifact/Error
// fields is meaningful, selected by Kind.
type ToolResult struct {
	Kind ResultKind

	Text     *TextResult
	Data     *DataResult
	Artifact *ArtifactResult
	Error    *ErrorResult

	// CallID correlates this result back to the originating ToolCall.ID so
	// parallel aggregation can order/attribute results (spec §3 ParallelInvocation).
	CallID string
}

type ResultKind string

const (
	KindText     ResultKind = "text"
	KindData     ResultKind = "data"
	KindArtifact ResultKind = "artifact"
	KindError    ResultKind = "error"
)

type TextResult struct {
	Text string
}

type DataResult struct {
	Data map[string]any
}

type ArtifactResult struct {
	Filename string
	Version  int
	MimeType string
}

// ErrorResult covers ToolError, PeerError, and the TIMEOUT/PermissionDenied
// specializations (spec §7). Code is a short machine-readable tag
// ("TIMEOUT", "PERMISSION_DENIED", ...); Message is human-readable.
type ErrorResult struct {
	Code    string
	Message string
}

// Visit performs exhaustive dispatch over the sealed ToolResult variants.
// Exactly one of the four functions is invoked per call.
func (r ToolResult) Visit(
	onText func(TextResult),
	onData func(DataResult),
	onArtifact func(ArtifactResult),
	onError func(ErrorResult),
) {
	switch r.Kind {
	case KindText:
		if r.Text != nil {
			onText(*r.Text)
		}
	case KindData:
		if r.Data != nil {
			onData(*r.Data)
		}
	case KindArtifact:
		if r.Artifact != nil {
			onArtifact(*r.Artifact)
		}
	case KindError:
		if r.Error != nil {
			onError(*r.Error)
		}
	}
}

// NewErrorResult builds a sealed ErrorResult-kind ToolResult, used for
// timeout synthesis (spec §4.5) and permission denial (spec §7).
func NewErrorResult(callID, code, message string) ToolResult {
	return ToolResult{
		Kind:   KindError,
		CallID: callID,
		Error:  &ErrorResult{Code: code, Message: message},
	}
}

// NewTextResult builds a sealed TextResult-kind ToolResult.
func NewTextResult(callID, text string) ToolResult {
	return ToolResult{Kind: KindText, CallID: callID, Text: &TextResult{Text: text}}
}

// Error codes used by the timeout/permission specializations (spec §7).
const (
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodePermissionDenied  = "PERMISSION_DENIED"
	ErrCodeTransportFailed   = "TRANSPORT_FAILED"
	ErrCodeLLMFailed         = "LLM_FAILED"
	ErrCodeCheckpointUnavail = "CHECKPOINT_UNAVAILABLE"
)
