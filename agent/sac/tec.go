// Package sac implements the Agent Core (spec §4.3): the task lifecycle
// state machine that owns a task from arrival to terminal response. This
// is the hardest component of the runtime — LLM turn orchestration, tool
// dispatch, peer delegation, parallel aggregation, checkpoint/restore, and
// cancellation all live here.
//
// Grounded on the teacher's pkg/agent (Agent/Checkpointable interfaces,
// execution_state.go's to/from-checkpoint-dict pattern) generalized from a
// single-process reasoning loop to the broker-mediated, suspend/resume
// turn algorithm spec §4.3 describes.
package sac

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/solacelabs/sam-core/collab"
)

// TaskState is a value from the state machine in spec §4.3.
type TaskState string

const (
	StateNew             TaskState = "new"
	StateRunning         TaskState = "running"
	StateAwaitingTool    TaskState = "awaiting_tool"
	StateAwaitingPeer    TaskState = "awaiting_peer"
	StateAwaitingParallel TaskState = "awaiting_parallel"
	StateTerminal        TaskState = "terminal"
	StateCancelled       TaskState = "cancelled"
	StateFailed          TaskState = "failed"
)

// A2AContext is the routing metadata carried on a Task (spec §3).
type A2AContext struct {
	SessionID        string
	UserID           string
	ParentTaskID     string
	OriginatorGateway string
	ReplyTo          string
	StatusTo         string
}

// ArtifactRef is one entry of TEC's produced_artifacts list (spec §3).
type ArtifactRef struct {
	Filename string
	Version  int
}

// ArtifactSignal is a pending artifact-update event to deliver to the
// requester (spec §3 produced_artifacts vs artifact_signals_to_return).
type ArtifactSignal struct {
	Filename string
	Version  int
	MimeType string
}

// TokenUsageTotals tracks TEC's token_usage bullet (spec §3): totals plus
// a per-(model,source) breakdown.
type TokenUsageTotals struct {
	InputTokens       int
	OutputTokens      int
	CachedInputTokens int
	BySource          map[string]collab.TokenUsage // key: model+"/"+source
}

func newTokenUsageTotals() TokenUsageTotals {
	return TokenUsageTotals{BySource: make(map[string]collab.TokenUsage)}
}

func (t *TokenUsageTotals) Add(u collab.TokenUsage) {
	t.InputTokens += u.InputTokens
	t.OutputTokens += u.OutputTokens
	t.CachedInputTokens += u.CachedInputTokens
	key := u.Model + "/" + u.Source
	entry := t.BySource[key]
	entry.Model = u.Model
	entry.Source = u.Source
	entry.InputTokens += u.InputTokens
	entry.OutputTokens += u.OutputTokens
	entry.CachedInputTokens += u.CachedInputTokens
	t.BySource[key] = entry
}

// TaskExecutionContext (TEC) is the per-task in-memory state bundle
// (spec §3, §4.2). Every mutating method acquires Mu itself, so it must not
// be called while Mu is already held; direct field access must hold Mu.
// The lock is never held across I/O — callers read-copy-compute-writeback.
type TaskExecutionContext struct {
	Mu sync.Mutex

	TaskID    string
	AgentName string
	A2A       A2AContext

	State TaskState

	// RunBasedResponseBuffer accumulates text across LLM turns pending
	// final emission (spec §3).
	RunBasedResponseBuffer string

	ProducedArtifacts        []ArtifactRef
	ArtifactSignalsToReturn  []ArtifactSignal

	CurrentInvocationID string

	// Messages is the prompt history assembled for this task's LLM turns
	// (spec §4.3 step 2: "system instructions + task history + current
	// buffer"). It must survive checkpoint/restore so a resumed task can
	// re-assemble the exact prompt context a crashed process would have
	// used (supplement: §3 names run_based_response_buffer but the turn
	// algorithm's step 2 requires the underlying message list to persist
	// too, since session/history storage is out of this core's scope).
	Messages []collab.Message

	// Flags is an opaque string->value map used for idempotency guards
	// (spec §3).
	Flags map[string]any

	// SecurityContext is opaque bearer-token material. It must never be
	// logged (spec §3) — callers should avoid %+v-ing the whole TEC.
	SecurityContext map[string]any

	TokenUsage TokenUsageTotals

	// Transient fields: never checkpointed, freshly initialized by
	// NewTaskExecutionContext and FromCheckpointDict (spec §4.2).
	StreamingBuffer   string
	CancelRequested   bool
	MessageHandle     any // the broker.MessageHandle of the in-flight request, if any
}

// NewTaskExecutionContext creates an empty TEC for a newly arrived task
// (spec §4.2 "new").
func NewTaskExecutionContext(taskID, agentName string, a2aCtx A2AContext) *TaskExecutionContext {
	return &TaskExecutionContext{
		TaskID:          taskID,
		AgentName:       agentName,
		A2A:             a2aCtx,
		State:           StateNew,
		Flags:           make(map[string]any),
		SecurityContext: make(map[string]any),
		TokenUsage:      newTokenUsageTotals(),
	}
}

// checkpointDict is the exact shape persisted into TaskCheckpoint.TECBlob.
// It excludes every field spec §4.2 names as transient: streaming buffer,
// cancellation signal, broker message handle, lock, scheduler handle.
type checkpointDict struct {
	TaskID    string      `json:"task_id"`
	AgentName string      `json:"agent_name"`
	A2A       A2AContext  `json:"a2a_context"`
	State     TaskState   `json:"state"`

	RunBasedResponseBuffer  string           `json:"run_based_response_buffer"`
	ProducedArtifacts       []ArtifactRef    `json:"produced_artifacts"`
	ArtifactSignalsToReturn []ArtifactSignal `json:"artifact_signals_to_return"`

	CurrentInvocationID string             `json:"current_invocation_id"`
	Messages            []collab.Message   `json:"messages"`
	Flags               map[string]any     `json:"flags"`
	SecurityContext     map[string]any     `json:"security_context"`
	TokenUsage          TokenUsageTotals   `json:"token_usage"`
}

// ToCheckpointDict serializes the checkpointable subset of TEC to a plain
// JSON-ready map, deep-copying nested maps/slices so later mutation of the
// live TEC cannot alias into the persisted blob (spec §4.2).
func (t *TaskExecutionContext) ToCheckpointDict() (json.RawMessage, error) {
	t.Mu.Lock()
	defer t.Mu.Unlock()

	dict := checkpointDict{
		TaskID:                  t.TaskID,
		AgentName:               t.AgentName,
		A2A:                     t.A2A,
		State:                   t.State,
		RunBasedResponseBuffer:  t.RunBasedResponseBuffer,
		ProducedArtifacts:       append([]ArtifactRef(nil), t.ProducedArtifacts...),
		ArtifactSignalsToReturn: append([]ArtifactSignal(nil), t.ArtifactSignalsToReturn...),
		CurrentInvocationID:     t.CurrentInvocationID,
		Messages:                append([]collab.Message(nil), t.Messages...),
		Flags:                   deepCopyMap(t.Flags),
		SecurityContext:         deepCopyMap(t.SecurityContext),
		TokenUsage:              deepCopyTokenUsage(t.TokenUsage),
	}

	blob, err := json.Marshal(dict)
	if err != nil {
		return nil, fmt.Errorf("sac: marshal checkpoint dict: %w", err)
	}
	return blob, nil
}

// FromCheckpointDict rebuilds a TEC from a persisted blob, freshly
// initializing all transient fields. TEC holds no peer sub-task or
// parallel-call maps: those rows stay only in the Checkpoint Store and are
// looked up on demand (spec §4.2).
func FromCheckpointDict(blob json.RawMessage) (*TaskExecutionContext, error) {
	var dict checkpointDict
	if err := json.Unmarshal(blob, &dict); err != nil {
		return nil, fmt.Errorf("sac: unmarshal checkpoint dict: %w", err)
	}
	if dict.Flags == nil {
		dict.Flags = make(map[string]any)
	}
	if dict.SecurityContext == nil {
		dict.SecurityContext = make(map[string]any)
	}
	if dict.TokenUsage.BySource == nil {
		dict.TokenUsage.BySource = make(map[string]collab.TokenUsage)
	}
	return &TaskExecutionContext{
		TaskID:                  dict.TaskID,
		AgentName:               dict.AgentName,
		A2A:                     dict.A2A,
		State:                   dict.State,
		RunBasedResponseBuffer:  dict.RunBasedResponseBuffer,
		ProducedArtifacts:       dict.ProducedArtifacts,
		ArtifactSignalsToReturn: dict.ArtifactSignalsToReturn,
		CurrentInvocationID:     dict.CurrentInvocationID,
		Messages:                dict.Messages,
		Flags:                   dict.Flags,
		SecurityContext:         dict.SecurityContext,
		TokenUsage:              dict.TokenUsage,
		// Transient fields left at zero value: StreamingBuffer "",
		// CancelRequested false, MessageHandle nil.
	}, nil
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func deepCopyTokenUsage(t TokenUsageTotals) TokenUsageTotals {
	out := TokenUsageTotals{
		InputTokens:       t.InputTokens,
		OutputTokens:      t.OutputTokens,
		CachedInputTokens: t.CachedInputTokens,
		BySource:          make(map[string]collab.TokenUsage, len(t.BySource)),
	}
	for k, v := range t.BySource {
		out.BySource[k] = v
	}
	return out
}

// AppendArtifact records a produced artifact. produced_artifacts is
// append-only within a turn and survives checkpoint (spec §3 invariant).
func (t *TaskExecutionContext) AppendArtifact(ref ArtifactRef) {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	t.ProducedArtifacts = append(t.ProducedArtifacts, ref)
}

// QueueArtifactSignal records an artifact-update event still owed to the
// requester (spec §9 open question: all artifact-update events for a task
// MUST precede its terminal response on the same topic).
func (t *TaskExecutionContext) QueueArtifactSignal(sig ArtifactSignal) {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	t.ArtifactSignalsToReturn = append(t.ArtifactSignalsToReturn, sig)
}

// DrainArtifactSignals returns and clears the pending artifact signals,
// used right before finalization so they are guaranteed to have been
// published already (spec §9).
func (t *TaskExecutionContext) DrainArtifactSignals() []ArtifactSignal {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	out := t.ArtifactSignalsToReturn
	t.ArtifactSignalsToReturn = nil
	return out
}

// IsCancelled reports the cancellation signal (spec §5).
func (t *TaskExecutionContext) IsCancelled() bool {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	return t.CancelRequested
}

// RequestCancel sets the cancellation signal (spec §5). It is checked at
// every suspension point and before emitting the next publish.
func (t *TaskExecutionContext) RequestCancel() {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	t.CancelRequested = true
}

// SetState transitions TEC to a new state under lock.
func (t *TaskExecutionContext) SetState(s TaskState) {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	t.State = s
}

// GetState reads the current state under lock.
func (t *TaskExecutionContext) GetState() TaskState {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	return t.State
}
