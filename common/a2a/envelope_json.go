package a2a

import "encoding/json"

// MarshalJSON flattens Result's oneof into a single JSON object keyed by
// "kind", the way the wire format in spec §6 expects it (task / status-update
// / artifact-update are siblings of "kind" at the top level, not nested).
func (r Result) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case "task":
		type wire struct {
			Kind      string     `json:"kind"`
			ID        string     `json:"id"`
			ContextID string     `json:"contextId"`
			Status    TaskStatus `json:"status"`
			Artifacts []Artifact `json:"artifacts,omitempty"`
		}
		if r.Task == nil {
			return nil, errResultMismatch("task", "Task")
		}
		return json.Marshal(wire{
			Kind:      "task",
			ID:        r.Task.ID,
			ContextID: r.Task.ContextID,
			Status:    r.Task.Status,
			Artifacts: r.Task.Artifacts,
		})
	case "status-update":
		if r.StatusUpdate == nil {
			return nil, errResultMismatch("status-update", "StatusUpdate")
		}
		type wire struct {
			Kind      string `json:"kind"`
			TaskID    string `json:"task_id"`
			ContextID string `json:"context_id"`
			Final     bool   `json:"final"`
			Status    any    `json:"status"`
		}
		return json.Marshal(wire{
			Kind:      "status-update",
			TaskID:    r.StatusUpdate.TaskID,
			ContextID: r.StatusUpdate.ContextID,
			Final:     r.StatusUpdate.Final,
			Status:    r.StatusUpdate.Status,
		})
	case "artifact-update":
		if r.ArtifactUpdate == nil {
			return nil, errResultMismatch("artifact-update", "ArtifactUpdate")
		}
		type wire struct {
			Kind     string   `json:"kind"`
			TaskID   string   `json:"task_id"`
			Artifact Artifact `json:"artifact"`
		}
		return json.Marshal(wire{
			Kind:     "artifact-update",
			TaskID:   r.ArtifactUpdate.TaskID,
			Artifact: r.ArtifactUpdate.Artifact,
		})
	default:
		return nil, errUnknownResultKind(r.Kind)
	}
}

// UnmarshalJSON reconstructs the oneof from the "kind" discriminator.
func (r *Result) UnmarshalJSON(data []byte) error {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	r.Kind = probe.Kind

	switch probe.Kind {
	case "task":
		var wire struct {
			ID        string     `json:"id"`
			ContextID string     `json:"contextId"`
			Status    TaskStatus `json:"status"`
			Artifacts []Artifact `json:"artifacts,omitempty"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return err
		}
		r.Task = &TaskResult{
			ID:        wire.ID,
			ContextID: wire.ContextID,
			Status:    wire.Status,
			Artifacts: wire.Artifacts,
		}
	case "status-update":
		var su StatusUpdate
		if err := json.Unmarshal(data, &su); err != nil {
			return err
		}
		r.StatusUpdate = &su
	case "artifact-update":
		var au ArtifactUpdate
		if err := json.Unmarshal(data, &au); err != nil {
			return err
		}
		r.ArtifactUpdate = &au
	default:
		return errUnknownResultKind(probe.Kind)
	}
	return nil
}

type resultMismatchError struct {
	kind  string
	field string
}

func (e *resultMismatchError) Error() string {
	return "a2a: result kind " + e.kind + " requires non-nil " + e.field
}

func errResultMismatch(kind, field string) error {
	return &resultMismatchError{kind: kind, field: field}
}

type unknownResultKindError struct{ kind string }

func (e *unknownResultKindError) Error() string {
	return "a2a: unknown result kind " + e.kind
}

func errUnknownResultKind(kind string) error {
	return &unknownResultKindError{kind: kind}
}
