// Package checkpoint implements the Checkpoint Store (spec §4.4): durable,
// database-backed persistence of paused tasks, peer-sub-task correlations,
// and parallel-tool aggregators. The destructive claim on peer_sub_task is
// the mutual-exclusion primitive of the whole system (spec §3, §4.4, §8).
package checkpoint

import "encoding/json"

// TaskCheckpoint is the `paused_task` row (spec §4.4): the serializable part
// of a TaskExecutionContext, opaque to this package. agent/sac owns the
// shape via TEC.ToCheckpointDict/FromCheckpointDict; this package only
// persists the blob.
type TaskCheckpoint struct {
	TaskID    string
	AgentName string
	TECBlob   json.RawMessage
}

// PeerSubTask is the `peer_sub_task` row (spec §3, §4.4). It is the
// correlation record for exactly one outstanding delegated call.
type PeerSubTask struct {
	SubTaskID         string
	LogicalTaskID     string
	AgentName         string
	PeerToolName      string
	PeerAgentName     string
	FunctionCallID    string
	InvocationID      string
	DeadlineEpochMS   int64
}

// ParallelInvocation is the `parallel_invocation` row (spec §3, §4.4): the
// aggregator for N>1 fanned-out tool/peer calls within one LLM turn.
type ParallelInvocation struct {
	TaskID       string
	InvocationID string
	Total        int
	Completed    int
	Results      []json.RawMessage // each a serialized collab.ToolResult
}

// Stats summarizes outstanding checkpoint state for one agent identity,
// used by the `stats` CLI subcommand (SPEC_FULL supplement, grounded on the
// teacher's checkpoint.Manager.GetStats).
type Stats struct {
	AgentName          string
	PausedTasks        int
	OutstandingSubTasks int
	PendingAggregators int
}
