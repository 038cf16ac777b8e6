package sac

import (
	"context"
	"errors"

	"github.com/solacelabs/sam-core/agent/adk/checkpoint"
)

// cancelTask handles a tasks/cancel request (spec §5). If the task is
// resident (running locally or awaiting a local suspension point), the
// cancellation signal is set and observed at the next suspension check. If
// the task is suspended awaiting a peer/parallel response, it is restored,
// marked cancelled, and finalized immediately: any peer responses that
// arrive afterward are absorbed by the destructive claim and dropped,
// since CleanupTask has already removed their correlation rows.
func (c *Core) cancelTask(ctx context.Context, taskID, reason string) {
	if tec, ok := c.resident.get(taskID); ok {
		tec.RequestCancel()
		if tec.GetState() != StateRunning && tec.GetState() != StateAwaitingTool {
			// Not actively mid-turn: finalize right away rather than
			// waiting for a suspension point that will never arrive on
			// this process (the response that would resume it is exactly
			// what is being cancelled).
			c.finalizeCancelled(ctx, tec)
		}
		return
	}

	tec, err := c.restoreTask(ctx, taskID)
	if err != nil {
		if !errors.Is(err, checkpoint.ErrNotFound) {
			c.Logger.Error("restore task for cancellation failed", "task_id", taskID, "error", err)
		}
		return
	}
	tec.RequestCancel()
	c.finalizeCancelled(ctx, tec)
}
