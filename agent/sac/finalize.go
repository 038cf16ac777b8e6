package sac

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/solacelabs/sam-core/common/a2a"
)

// finalizeSuccess emits the terminal "completed" response and retires the
// task (spec §4.3 step 5). Any queued artifact-update events are published
// to the task's StatusTo topic first, then the terminal response is
// published to its ReplyTo topic; the two go to different topics.
func (c *Core) finalizeSuccess(ctx context.Context, tec *TaskExecutionContext) {
	c.flushArtifactSignals(ctx, tec)

	tec.Mu.Lock()
	text := tec.RunBasedResponseBuffer
	if text == "" {
		text = tec.StreamingBuffer
	}
	artifacts := buildArtifactList(tec.ProducedArtifacts)
	replyTo := tec.A2A.ReplyTo
	sessionID := tec.A2A.SessionID
	tec.Mu.Unlock()

	env := &a2a.Envelope{
		JSONRPC: a2a.ProtocolVersion,
		ID:      uuid.NewString(),
		Result: &a2a.Result{
			Kind: "task",
			Task: &a2a.TaskResult{
				ID:        tec.TaskID,
				ContextID: sessionID,
				Status: a2a.TaskStatus{
					State:     a2a.TaskStateCompleted,
					Message:   a2a.NewTextMessage(a2a.RoleAgent, uuid.NewString(), text),
					Timestamp: time.Now(),
				},
				Artifacts: artifacts,
			},
		},
	}

	c.publishTerminal(ctx, tec, replyTo, env, "completed")
}

// finalizeFailed emits the terminal "failed" response (spec §7: every
// non-CheckpointError failure path still reaches the requester as a
// terminal task result, never a silently dropped message).
func (c *Core) finalizeFailed(ctx context.Context, tec *TaskExecutionContext, code, message string) {
	tec.Mu.Lock()
	replyTo := tec.A2A.ReplyTo
	sessionID := tec.A2A.SessionID
	tec.Mu.Unlock()

	env := &a2a.Envelope{
		JSONRPC: a2a.ProtocolVersion,
		ID:      uuid.NewString(),
		Result: &a2a.Result{
			Kind: "task",
			Task: &a2a.TaskResult{
				ID:        tec.TaskID,
				ContextID: sessionID,
				Status: a2a.TaskStatus{
					State:     a2a.TaskStateFailed,
					Timestamp: time.Now(),
					ErrorCode: code,
					ErrorMsg:  message,
				},
			},
		},
	}

	c.publishTerminal(ctx, tec, replyTo, env, "failed")
}

// finalizeCancelled emits the terminal "canceled" response (spec §5, §9
// open question: artifacts already in flight may still complete, but the
// terminal response must not reference any artifact that has not already
// been signalled).
func (c *Core) finalizeCancelled(ctx context.Context, tec *TaskExecutionContext) {
	c.flushArtifactSignals(ctx, tec)

	tec.Mu.Lock()
	replyTo := tec.A2A.ReplyTo
	sessionID := tec.A2A.SessionID
	artifacts := buildArtifactList(tec.ProducedArtifacts)
	tec.Mu.Unlock()

	env := &a2a.Envelope{
		JSONRPC: a2a.ProtocolVersion,
		ID:      uuid.NewString(),
		Result: &a2a.Result{
			Kind: "task",
			Task: &a2a.TaskResult{
				ID:        tec.TaskID,
				ContextID: sessionID,
				Status: a2a.TaskStatus{
					State:     a2a.TaskStateCanceled,
					Timestamp: time.Now(),
				},
				Artifacts: artifacts,
			},
		},
	}

	c.publishTerminal(ctx, tec, replyTo, env, "canceled")
}

// publishTerminal sends the terminal envelope, retires the TEC from
// residency, deletes its checkpoint rows, and records metrics. Terminal
// state is set before publish so a concurrent cancel request or duplicate
// peer response sees the task as already finished (spec §8 property 4:
// terminal irrevocability).
func (c *Core) publishTerminal(ctx context.Context, tec *TaskExecutionContext, replyTo string, env *a2a.Envelope, state string) {
	tec.SetState(StateTerminal)

	if replyTo != "" {
		if err := c.Broker.Publish(ctx, replyTo, env, a2a.UserProperties{}); err != nil {
			c.Logger.Error("failed to publish terminal response", "task_id", tec.TaskID, "error", err)
		}
	}

	if err := c.Checkpoints.CleanupTask(ctx, tec.TaskID); err != nil {
		c.Logger.Error("failed to clean up checkpoint rows after terminal response", "task_id", tec.TaskID, "error", err)
	}

	c.evictResident(tec)
	c.Metrics.RecordTerminal(c.AgentName, state)
}

// flushArtifactSignals publishes any artifact-update events queued during
// the run on the task's status topic, draining them so finalize never
// re-sends one (spec §9 open question).
func (c *Core) flushArtifactSignals(ctx context.Context, tec *TaskExecutionContext) {
	signals := tec.DrainArtifactSignals()
	if len(signals) == 0 {
		return
	}
	tec.Mu.Lock()
	statusTo := tec.A2A.StatusTo
	sessionID := tec.A2A.SessionID
	tec.Mu.Unlock()
	if statusTo == "" {
		return
	}
	for _, sig := range signals {
		env := &a2a.Envelope{
			JSONRPC: a2a.ProtocolVersion,
			ID:      uuid.NewString(),
			Result: &a2a.Result{
				Kind: "artifact-update",
				ArtifactUpdate: &a2a.ArtifactUpdate{
					TaskID: tec.TaskID,
					Artifact: a2a.Artifact{
						Filename: sig.Filename,
						Version:  sig.Version,
						MimeType: sig.MimeType,
					},
				},
			},
		}
		_ = sessionID
		if err := c.Broker.Publish(ctx, statusTo, env, a2a.UserProperties{}); err != nil {
			c.Logger.Warn("failed to publish artifact update", "task_id", tec.TaskID, "filename", sig.Filename, "error", err)
		}
	}
}

func buildArtifactList(refs []ArtifactRef) []a2a.Artifact {
	if len(refs) == 0 {
		return nil
	}
	out := make([]a2a.Artifact, 0, len(refs))
	for _, r := range refs {
		out = append(out, a2a.Artifact{Filename: r.Filename, Version: r.Version})
	}
	return out
}
