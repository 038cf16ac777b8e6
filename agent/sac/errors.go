package sac

import "fmt"

// The error taxonomy from spec §7, expressed as concrete Go types rather
// than an enum of "kinds" — each wraps its cause and carries the
// machine-readable code the terminal response reports. Only CheckpointError
// and programmer errors (panics) are allowed to propagate out of the
// Agent Core unhandled; every other kind is caught at the collaborator
// boundary and turned into a collab.ToolResult or a terminal response.
type (
	// TransportError wraps a broker publish/subscribe failure. Terminal
	// after the retry budget is exhausted: the task fails with
	// TRANSPORT_FAILED.
	TransportError struct {
		Topic string
		Err   error
	}

	// LlmError wraps a model call failure or malformed output. Retried up
	// to llm_retry_max_attempts; terminal failure reports LLM_FAILED.
	LlmError struct {
		Attempt int
		Err     error
	}

	// ToolError wraps a local tool panic/error. Not terminal — captured as
	// a collab.ErrorResult and fed back to the LLM.
	ToolError struct {
		ToolName string
		Err      error
	}

	// PeerError wraps an error response from a peer agent. Treated like
	// ToolError: fed back as a result, not terminal.
	PeerError struct {
		PeerAgentName string
		Code          string
		Message       string
	}

	// TimeoutError is a PeerError specialization synthesized by the
	// Timeout Sweeper (spec §4.5).
	TimeoutError struct {
		SubTaskID     string
		PeerToolName  string
		PeerAgentName string
	}

	// PermissionDeniedError wraps an AccessValidator rejection. Fed back to
	// the LLM as a tool error; not terminal.
	PermissionDeniedError struct {
		TargetAgent string
		Reason      string
	}

	// CancelledError signals a user-requested cancellation. The task
	// transitions to TERMINAL with state "canceled"; never retried.
	CancelledError struct {
		TaskID string
	}

	// CheckpointError wraps a database-unavailable condition on the
	// Checkpoint Store. This is the only class the core cannot safely
	// recover from: it refuses to transition to awaiting_peer/
	// awaiting_parallel and instead fails the task with
	// CHECKPOINT_UNAVAILABLE (spec §7). It is the one kind allowed to
	// propagate out of the Agent Core unhandled.
	CheckpointError struct {
		TaskID string
		Err    error
	}
)

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error publishing to %s: %v", e.Topic, e.Err)
}
func (e *TransportError) Unwrap() error { return e.Err }

func (e *LlmError) Error() string {
	return fmt.Sprintf("llm invocation failed (attempt %d): %v", e.Attempt, e.Err)
}
func (e *LlmError) Unwrap() error { return e.Err }

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.ToolName, e.Err)
}
func (e *ToolError) Unwrap() error { return e.Err }

func (e *PeerError) Error() string {
	return fmt.Sprintf("peer %q returned error %s: %s", e.PeerAgentName, e.Code, e.Message)
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("peer sub-task %s (tool %q, peer %q) timed out", e.SubTaskID, e.PeerToolName, e.PeerAgentName)
}

// AsPeerError converts a TimeoutError to the PeerError shape the result
// integration path expects (spec §4.5: "synthesized as a PeerError with
// code TIMEOUT").
func (e *TimeoutError) AsPeerError() *PeerError {
	return &PeerError{PeerAgentName: e.PeerAgentName, Code: "TIMEOUT", Message: e.Error()}
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied delegating to %q: %s", e.TargetAgent, e.Reason)
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("task %s cancelled", e.TaskID)
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint store unavailable for task %s: %v", e.TaskID, e.Err)
}
func (e *CheckpointError) Unwrap() error { return e.Err }

// Error codes reported on terminal failure responses (spec §7).
const (
	CodeTransportFailed       = "TRANSPORT_FAILED"
	CodeLLMFailed             = "LLM_FAILED"
	CodeCheckpointUnavailable = "CHECKPOINT_UNAVAILABLE"
	CodeTimeout               = "TIMEOUT"
	CodePermissionDenied      = "PERMISSION_DENIED"
)
