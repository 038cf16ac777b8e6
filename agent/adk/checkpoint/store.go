package checkpoint

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Restore when no checkpoint row exists for the
// given task (spec §4.4 restore returns None in that case — we use a
// sentinel error instead, the idiomatic Go shape).
var ErrNotFound = errors.New("checkpoint: not found")

// Store is the Checkpoint Store contract (spec §4.4). All multi-row
// operations run at the backend's strongest isolation that permits the
// destructive claim without lost updates (read-committed with row locks is
// sufficient per spec).
type Store interface {
	// Checkpoint transactionally upserts the paused_task row, replaces the
	// peer_sub_task rows for task.TaskID, and upserts the parallel_invocation
	// rows. subTasks fully replace the prior set for this task; aggregators
	// are upserted one by one, and existing aggregator rows not named in
	// aggregators are kept.
	Checkpoint(ctx context.Context, task TaskCheckpoint, subTasks []PeerSubTask, aggregators []ParallelInvocation) error

	// Restore loads the paused_task row. Returns ErrNotFound if absent.
	// Per spec §3/§4.4 invariant, this never loads peer_sub_task or
	// parallel_invocation rows into the caller's in-memory state — those
	// remain looked up on demand via ClaimPeerSubTask/RecordParallelResult.
	Restore(ctx context.Context, taskID string) (TaskCheckpoint, error)

	// ClaimPeerSubTask is the at-most-one-claim mutual-exclusion primitive
	// (spec §3, §4.4, §8 property 1). It atomically reads and removes the
	// row; a second caller for the same sub_task_id gets ErrNotFound.
	ClaimPeerSubTask(ctx context.Context, subTaskID string) (PeerSubTask, error)

	// RecordParallelResult atomically appends result to the aggregator's
	// results and increments completed, returning the new (completed,
	// total) so the caller can decide whether the aggregator is complete
	// (spec §4.4). It is an error to call this for an aggregator that does
	// not exist (the ParallelInvocation row must have been written by
	// Checkpoint first).
	RecordParallelResult(ctx context.Context, taskID, invocationID string, result []byte) (completed, total int, err error)

	// GetParallelInvocation reads the current aggregator state without
	// mutating it (used after RecordParallelResult reports completion, to
	// fetch the full result set for feeding back to the LLM).
	GetParallelInvocation(ctx context.Context, taskID, invocationID string) (ParallelInvocation, error)

	// ResetTimeoutDeadline updates a sub-task's deadline (e.g. on manual
	// extension). Returns false if the sub-task no longer exists (already
	// claimed or expired).
	ResetTimeoutDeadline(ctx context.Context, subTaskID string, newDeadlineEpochMS int64) (bool, error)

	// SweepExpiredTimeouts atomically claims every peer_sub_task row for
	// agentName whose deadline has passed, equivalent to running
	// ClaimPeerSubTask on each expired row inside one transaction
	// (spec §4.4, §4.5, §8 property 6).
	SweepExpiredTimeouts(ctx context.Context, agentName string, nowEpochMS int64) ([]PeerSubTask, error)

	// CleanupTask removes all rows across the three tables for taskID
	// (spec §4.4, called on finalization and cancellation).
	CleanupTask(ctx context.Context, taskID string) error

	// Stats reports outstanding checkpoint state for an agent identity
	// (SPEC_FULL supplement).
	Stats(ctx context.Context, agentName string) (Stats, error)

	// Close releases underlying resources (DB connections, etc).
	Close() error
}
