package sac

import (
	"context"
	"time"

	"github.com/solacelabs/sam-core/agent/adk/checkpoint"
	"github.com/solacelabs/sam-core/collab"
)

func errorResultFromPeerError(callID string, pe *PeerError) collab.ToolResult {
	return collab.NewErrorResult(callID, pe.Code, pe.Message)
}

// RunTimeoutSweeper runs the Timeout Sweeper loop (spec §4.5) until ctx is
// cancelled. Every interval it destructively claims every expired
// peer_sub_task row for this agent in one transaction (spec §8 property 6:
// a sub-task is claimed by either a genuine peer response or the sweeper,
// never both) and synthesizes a TIMEOUT result for each, feeding it back
// through the same integration path a real peer response would take.
func (c *Core) RunTimeoutSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepOnce(ctx)
		}
	}
}

func (c *Core) sweepOnce(ctx context.Context) {
	expired, err := c.Checkpoints.SweepExpiredTimeouts(ctx, c.AgentName, nowEpochMS())
	if err != nil {
		c.Logger.Error("timeout sweep failed", "agent_name", c.AgentName, "error", err)
		return
	}
	c.Metrics.RecordSweep(c.AgentName, len(expired))

	if stats, err := c.Checkpoints.Stats(ctx, c.AgentName); err == nil {
		c.Metrics.SetAggregatorsOpen(c.AgentName, stats.PendingAggregators)
	}

	for _, peer := range expired {
		c.Metrics.RecordPeerTimeout(c.AgentName)
		c.integrateTimeout(ctx, peer)
	}
}

// integrateTimeout feeds a sweeper-synthesized TimeoutError into the same
// resume path integratePeerResponse uses for a genuine response, so the
// turn loop cannot distinguish a late peer from an expired one.
func (c *Core) integrateTimeout(ctx context.Context, peer checkpoint.PeerSubTask) {
	te := &TimeoutError{SubTaskID: peer.SubTaskID, PeerToolName: peer.PeerToolName, PeerAgentName: peer.PeerAgentName}
	pe := te.AsPeerError()
	result := errorResultFromPeerError(peer.FunctionCallID, pe)

	if peer.InvocationID != "" {
		c.integrateParallelResult(ctx, peer.LogicalTaskID, peer.InvocationID, result)
		return
	}
	c.resumeTask(ctx, peer.LogicalTaskID, resultToMessage(result))
}
