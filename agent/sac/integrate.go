package sac

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/solacelabs/sam-core/agent/adk/checkpoint"
	"github.com/solacelabs/sam-core/collab"
	"github.com/solacelabs/sam-core/common/a2a"
)

// integratePeerResponse handles an inbound peer terminal response (spec
// §4.3 step 4). It destructively claims the peer_sub_task row first: a
// claim miss means a duplicate or late delivery (the sub-task was already
// claimed by this same handler, by the timeout sweeper, or by cancellation
// cleanup) and the message is simply dropped, which is the idempotency
// guarantee the at-least-once broker delivery model requires.
func (c *Core) integratePeerResponse(ctx context.Context, subTaskID string, env *a2a.Envelope) {
	peer, err := c.Checkpoints.ClaimPeerSubTask(ctx, subTaskID)
	if err != nil {
		c.Metrics.RecordPeerClaim(c.AgentName, "lost")
		if err != checkpoint.ErrNotFound {
			c.Logger.Error("claim peer sub-task failed", "sub_task_id", subTaskID, "error", err)
		}
		return
	}
	c.Metrics.RecordPeerClaim(c.AgentName, "won")

	result := peerResultFromEnvelope(peer, env)

	if peer.InvocationID != "" {
		c.integrateParallelResult(ctx, peer.LogicalTaskID, peer.InvocationID, result)
		return
	}

	c.resumeTask(ctx, peer.LogicalTaskID, resultToMessage(result))
}

// integrateParallelResult records one fanned-out call's result against its
// aggregator (spec §3 ParallelInvocation, §8 property 2: monotonic,
// exactly-once-per-call completion count) and resumes the task once every
// call has reported.
func (c *Core) integrateParallelResult(ctx context.Context, taskID, invocationID string, result collab.ToolResult) {
	blob, err := json.Marshal(result)
	if err != nil {
		c.Logger.Error("marshal parallel result failed", "task_id", taskID, "invocation_id", invocationID, "error", err)
		return
	}

	completed, total, err := c.Checkpoints.RecordParallelResult(ctx, taskID, invocationID, blob)
	if err != nil {
		c.Logger.Error("record parallel result failed", "task_id", taskID, "invocation_id", invocationID, "error", err)
		return
	}

	if completed < total {
		// Aggregator still open; nothing to resume yet.
		return
	}

	agg, err := c.Checkpoints.GetParallelInvocation(ctx, taskID, invocationID)
	if err != nil {
		c.Logger.Error("fetch completed aggregator failed", "task_id", taskID, "invocation_id", invocationID, "error", err)
		return
	}

	messages := make([]collab.Message, 0, len(agg.Results))
	for _, raw := range agg.Results {
		r, err := unmarshalResult(raw)
		if err != nil {
			continue
		}
		messages = append(messages, resultToMessage(r))
	}
	c.resumeTask(ctx, taskID, messages...)
}

// resumeTask restores a TEC (from residency or the checkpoint store) and
// re-enters the turn loop with newly available messages (spec §4.3 step 4
// "restore if necessary").
func (c *Core) resumeTask(ctx context.Context, taskID string, messages ...collab.Message) {
	tec, ok := c.resident.get(taskID)
	if !ok {
		restored, err := c.restoreTask(ctx, taskID)
		if err != nil {
			c.Logger.Error("restore task for resume failed", "task_id", taskID, "error", err)
			return
		}
		tec = restored
	}

	tec.SetState(StateRunning)
	c.resident.put(tec)
	c.Metrics.SetActiveTasks(c.AgentName, c.resident.count())

	c.runTurnLoop(ctx, tec, messages)
}

// ResumeTask is the operational entry point for manually resuming a paused
// task from its checkpoint with no new messages, e.g. after a process crash
// (spec §8 Scenario F: crash-restore continues the turn loop from the last
// durable checkpoint). It is the same path integratePeerResponse and
// integrateTimeout use internally; the `resume` CLI subcommand calls this
// directly for operator-triggered recovery.
func (c *Core) ResumeTask(ctx context.Context, taskID string) error {
	if _, ok := c.resident.get(taskID); ok {
		return fmt.Errorf("sac: task %s is already resident", taskID)
	}
	c.resumeTask(ctx, taskID)
	return nil
}

func (c *Core) restoreTask(ctx context.Context, taskID string) (*TaskExecutionContext, error) {
	cp, err := c.Checkpoints.Restore(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("sac: restore task %s: %w", taskID, err)
	}
	tec, err := FromCheckpointDict(cp.TECBlob)
	if err != nil {
		return nil, fmt.Errorf("sac: rebuild tec for task %s: %w", taskID, err)
	}
	return tec, nil
}

// peerResultFromEnvelope converts a peer's terminal response envelope into
// the sealed ToolResult the turn loop feeds back to the LLM (spec §4.3
// step 4).
func peerResultFromEnvelope(peer checkpoint.PeerSubTask, env *a2a.Envelope) collab.ToolResult {
	if env == nil || env.Result == nil || env.Result.Task == nil {
		return collab.NewErrorResult(peer.FunctionCallID, collab.ErrCodeTransportFailed, "peer response missing task result")
	}
	status := env.Result.Task.Status
	switch status.State {
	case a2a.TaskStateCompleted:
		text := ""
		if status.Message != nil {
			text = a2a.TextOf(status.Message)
		}
		return collab.NewTextResult(peer.FunctionCallID, text)
	case a2a.TaskStateCanceled:
		return collab.NewErrorResult(peer.FunctionCallID, collab.ErrCodeTimeout, "peer task was canceled")
	default:
		code := status.ErrorCode
		if code == "" {
			code = collab.ErrCodeLLMFailed
		}
		return collab.NewErrorResult(peer.FunctionCallID, code, status.ErrorMsg)
	}
}
