package sac

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/solacelabs/sam-core/agent/adk/checkpoint"
	"github.com/solacelabs/sam-core/collab"
	"github.com/solacelabs/sam-core/common/a2a"
	"github.com/solacelabs/sam-core/tracing"
)

// runTurnLoop is the turn algorithm of spec §4.3, steps 2-5. It always
// starts at step 2 (LLM invocation) — both a freshly intaken task and a
// resumed one (after peer/parallel integration) re-enter here.
func (c *Core) runTurnLoop(ctx context.Context, tec *TaskExecutionContext, newMessages []collab.Message) {
	tec.Mu.Lock()
	tec.Messages = append(tec.Messages, newMessages...)
	tec.Mu.Unlock()

	for {
		if tec.IsCancelled() {
			c.finalizeCancelled(ctx, tec)
			return
		}

		turnCtx, span := tracing.Tracer().Start(ctx, "agent.turn",
			oteltrace.WithAttributes(attribute.String("task_id", tec.TaskID), attribute.String("agent_name", c.AgentName)))

		start := time.Now()
		invokeResult, turnText, err := c.invokeLLMWithRetry(turnCtx, tec)
		c.Metrics.RecordTurn(c.AgentName, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			if tec.IsCancelled() {
				c.finalizeCancelled(ctx, tec)
				return
			}
			c.finalizeFailed(ctx, tec, CodeLLMFailed, err.Error())
			return
		}
		span.End()
		c.Metrics.RecordLLMTokens(c.AgentName, invokeResult.Usage.Model, invokeResult.Usage.InputTokens, invokeResult.Usage.OutputTokens)

		tec.Mu.Lock()
		tec.TokenUsage.Add(invokeResult.Usage)
		tec.RunBasedResponseBuffer = turnText
		tec.Messages = append(tec.Messages, collab.Message{Role: "assistant", Content: turnText})
		tec.Mu.Unlock()

		switch len(invokeResult.ToolCalls) {
		case 0:
			// K=0: the LLM's text is the final answer for this turn.
			c.finalizeSuccess(ctx, tec)
			return

		case 1:
			call := invokeResult.ToolCalls[0]
			if c.Tools.IsPeerDelegation(call.Name) {
				suspended, result := c.delegateOnePeer(ctx, tec, call)
				if suspended {
					return
				}
				tec.Mu.Lock()
				tec.Messages = append(tec.Messages, resultToMessage(result))
				tec.Mu.Unlock()
				continue
			}
			result := c.runLocalTool(ctx, tec, call)
			tec.Mu.Lock()
			tec.Messages = append(tec.Messages, resultToMessage(result))
			tec.Mu.Unlock()
			continue

		default:
			suspended := c.delegateParallel(ctx, tec, invokeResult.ToolCalls)
			if suspended {
				return
			}
			// delegateParallel returns true on every path (peer calls
			// outstanding, local calls running on their own goroutine, or
			// the task already failed), so this continue is not reached.
			continue
		}
	}
}

// invokeLLMWithRetry assembles the prompt, calls the LLM client, streams
// text chunks into status-update events, and retries on LlmError up to
// LLMRetryMaxAttempts (spec §4.3 step 2, §7). It returns the full
// assembled text of this turn alongside the structured result: callers
// need it both for the prompt history and for the eventual terminal
// response.
func (c *Core) invokeLLMWithRetry(ctx context.Context, tec *TaskExecutionContext) (collab.InvokeResult, string, error) {
	tec.Mu.Lock()
	messages := append([]collab.Message(nil), tec.Messages...)
	tec.Mu.Unlock()

	var lastErr error
	attempts := c.LLMRetryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		if tec.IsCancelled() {
			return collab.InvokeResult{}, "", &CancelledError{TaskID: tec.TaskID}
		}
		c.Metrics.RecordLLMInvocation(c.AgentName)
		textCh, resultCh, err := c.LLM.Invoke(ctx, collab.InvokeRequest{Messages: messages})
		if err != nil {
			lastErr = &LlmError{Attempt: attempt, Err: err}
			continue
		}

		// Stream text chunks out as status-update events (spec §4.3 step 2).
		// Discard-and-restart on retry is the documented choice for the
		// open question in spec §9 about sticky partial-stream behavior:
		// a retried attempt's text is thrown away, not appended to, the
		// prior attempt's partial output.
		var turnText string
		for chunk := range textCh {
			if tec.IsCancelled() {
				break
			}
			turnText += chunk
			c.publishStatus(ctx, tec, chunk)
		}

		result, ok := <-resultCh
		if !ok {
			lastErr = &LlmError{Attempt: attempt, Err: fmt.Errorf("llm client closed result channel without a result")}
			continue
		}
		if result.Err != nil {
			lastErr = &LlmError{Attempt: attempt, Err: result.Err}
			c.Metrics.RecordLLMError(c.AgentName)
			continue
		}
		return result, turnText, nil
	}
	return collab.InvokeResult{}, "", lastErr
}

// publishStatus emits one non-final status-update event to the requester's
// status topic (spec §4.3 streaming contract). It is a no-op once the task
// has begun finalizing (spec §8 property 4: terminal irrevocability).
func (c *Core) publishStatus(ctx context.Context, tec *TaskExecutionContext, text string) {
	tec.Mu.Lock()
	state := tec.State
	statusTo := tec.A2A.StatusTo
	sessionID := tec.A2A.SessionID
	tec.StreamingBuffer += text
	tec.Mu.Unlock()

	if state == StateTerminal || statusTo == "" {
		return
	}

	env := &a2a.Envelope{
		JSONRPC: a2a.ProtocolVersion,
		ID:      uuid.NewString(),
		Result: &a2a.Result{
			Kind: "status-update",
			StatusUpdate: &a2a.StatusUpdate{
				TaskID:    tec.TaskID,
				ContextID: sessionID,
				Final:     false,
			},
		},
	}
	env.Result.StatusUpdate.Status.State = "working"
	env.Result.StatusUpdate.Status.Message = a2a.NewTextMessage(a2a.RoleAgent, uuid.NewString(), text)
	env.Result.StatusUpdate.Status.Timestamp = time.Now()

	if err := c.Broker.Publish(ctx, statusTo, env, a2a.UserProperties{}); err != nil {
		c.Logger.Warn("failed to publish status update", "task_id", tec.TaskID, "error", err)
	}
}

// runLocalTool executes one local tool call synchronously (state =
// awaiting_tool, spec §4.3 step 3 K=1 local case). Middleware wraps the
// call per spec §9.
func (c *Core) runLocalTool(ctx context.Context, tec *TaskExecutionContext, call collab.ToolCall) collab.ToolResult {
	toolCtx, span := tracing.Tracer().Start(ctx, "agent.tool",
		oteltrace.WithAttributes(attribute.String("task_id", tec.TaskID), attribute.String("tool_name", call.Name)))
	defer span.End()

	tec.SetState(StateAwaitingTool)
	defer tec.SetState(StateRunning)

	tc := collab.ToolContext{TaskID: tec.TaskID, InvocationID: tec.CurrentInvocationID, ToolName: call.Name, Call: call}
	result, err := collab.RunMiddleware(c.Middleware, tc, func() (collab.ToolResult, error) {
		return c.LocalTools.Run(toolCtx, call)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.Metrics.RecordToolError(c.AgentName, call.Name)
		return collab.NewErrorResult(call.ID, collab.ErrCodeLLMFailed, err.Error())
	}
	return result
}

// delegateOnePeer handles the K=1 peer-delegation branch (spec §4.3 step 3).
// On success it returns (true, zero-value) after checkpointing and
// suspending; on a synchronous rejection (permission denied) it returns
// (false, errorResult) so the caller feeds the error straight back to the
// LLM without suspending. If the checkpoint write fails, the task is failed
// with CHECKPOINT_UNAVAILABLE and it returns (true, zero-value) so the
// caller's loop stops.
func (c *Core) delegateOnePeer(ctx context.Context, tec *TaskExecutionContext, call collab.ToolCall) (suspended bool, result collab.ToolResult) {
	spec, _ := c.Tools.Lookup(call.Name)

	if err := c.checkAccess(ctx, tec, spec.PeerAgentName); err != nil {
		return false, collab.NewErrorResult(call.ID, collab.ErrCodePermissionDenied, err.Error())
	}

	subTaskID := uuid.NewString()
	_, span := tracing.Tracer().Start(ctx, "agent.peer_delegate", oteltrace.WithAttributes(
		attribute.String("task_id", tec.TaskID),
		attribute.String("sub_task_id", subTaskID),
		attribute.String("peer_agent_name", spec.PeerAgentName),
	))
	defer span.End()
	deadline := time.Now().Add(time.Duration(c.DefaultPeerTimeoutSec) * time.Second).UnixMilli()

	// InvocationID is left empty: a lone peer delegation is not part of any
	// ParallelInvocation aggregator, so integratePeerResponse must treat it
	// as a direct resume rather than an aggregator contribution.
	peer := checkpoint.PeerSubTask{
		SubTaskID:       subTaskID,
		LogicalTaskID:   tec.TaskID,
		AgentName:       c.AgentName,
		PeerToolName:    call.Name,
		PeerAgentName:   spec.PeerAgentName,
		FunctionCallID:  call.ID,
		DeadlineEpochMS: deadline,
	}

	if !c.checkpointAndSuspend(ctx, tec, StateAwaitingPeer, []checkpoint.PeerSubTask{peer}, nil) {
		span.SetStatus(codes.Error, "checkpoint store unavailable")
		c.finalizeFailed(ctx, tec, CodeCheckpointUnavailable, "checkpoint store unavailable")
		return true, collab.ToolResult{}
	}

	if err := c.publishPeerRequest(ctx, tec, spec.PeerAgentName, subTaskID, call); err != nil {
		span.RecordError(err)
		c.Logger.Error("failed to publish peer delegation after checkpoint", "task_id", tec.TaskID, "sub_task_id", subTaskID, "error", err)
	}
	c.Metrics.RecordPeerDelegation(c.AgentName, spec.PeerAgentName)
	c.evictResident(tec)
	return true, collab.ToolResult{}
}

// delegateParallel handles the K>1 branch (spec §4.3 step 3). Peer calls are
// published and suspended; local calls run on a separate goroutine and
// their results are routed through the same aggregation path as a peer
// response. Returns true if the task suspended (the caller's loop must
// always stop here: either peer round-trips are outstanding, or the local
// batch is still draining on its own goroutine).
func (c *Core) delegateParallel(ctx context.Context, tec *TaskExecutionContext, calls []collab.ToolCall) bool {
	invocationID := uuid.NewString()
	tec.SetState(StateAwaitingParallel)
	tec.Mu.Lock()
	tec.CurrentInvocationID = invocationID
	tec.Mu.Unlock()

	var peerSubTasks []checkpoint.PeerSubTask
	var locals []collab.ToolCall

	for _, call := range calls {
		spec, _ := c.Tools.Lookup(call.Name)
		if spec.PeerAgentName != "" {
			peerSubTasks = append(peerSubTasks, checkpoint.PeerSubTask{
				SubTaskID:       uuid.NewString(),
				LogicalTaskID:   tec.TaskID,
				AgentName:       c.AgentName,
				PeerToolName:    call.Name,
				PeerAgentName:   spec.PeerAgentName,
				FunctionCallID:  call.ID,
				InvocationID:    invocationID,
				DeadlineEpochMS: time.Now().Add(time.Duration(c.DefaultPeerTimeoutSec) * time.Second).UnixMilli(),
			})
		} else {
			locals = append(locals, call)
		}
	}

	aggregator := checkpoint.ParallelInvocation{
		TaskID:       tec.TaskID,
		InvocationID: invocationID,
		Total:        len(calls),
		Completed:    0,
	}

	if !c.checkpointAndSuspend(ctx, tec, StateAwaitingParallel, peerSubTasks, []checkpoint.ParallelInvocation{aggregator}) {
		c.finalizeFailed(ctx, tec, CodeCheckpointUnavailable, "checkpoint store unavailable")
		return true
	}

	for _, ps := range peerSubTasks {
		call := callForSubTask(calls, ps.FunctionCallID)
		_, span := tracing.Tracer().Start(ctx, "agent.peer_delegate", oteltrace.WithAttributes(
			attribute.String("task_id", tec.TaskID),
			attribute.String("sub_task_id", ps.SubTaskID),
			attribute.String("peer_agent_name", ps.PeerAgentName),
		))
		if err := c.publishPeerRequest(ctx, tec, ps.PeerAgentName, ps.SubTaskID, call); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.Logger.Error("failed to publish parallel peer delegation", "task_id", tec.TaskID, "sub_task_id", ps.SubTaskID, "error", err)
		}
		span.End()
		c.Metrics.RecordPeerDelegation(c.AgentName, ps.PeerAgentName)
	}

	if len(locals) > 0 {
		go c.runLocalParallel(context.WithoutCancel(ctx), tec, invocationID, locals)
	}

	if len(peerSubTasks) > 0 {
		c.evictResident(tec)
		return true
	}
	// All-local batch: still suspended conceptually (aggregator row
	// exists), but we keep the TEC resident since no peer round-trip is
	// outstanding; runLocalParallel will complete the aggregator and
	// resume the loop itself, so the caller's loop must stop here too.
	return true
}

func callForSubTask(calls []collab.ToolCall, functionCallID string) collab.ToolCall {
	for _, c := range calls {
		if c.ID == functionCallID {
			return c
		}
	}
	return collab.ToolCall{}
}

// runLocalParallel executes local tool calls from a K>1 batch concurrently
// and feeds each result through the same aggregation path a peer response
// would take (spec §4.3 step 3).
func (c *Core) runLocalParallel(ctx context.Context, tec *TaskExecutionContext, invocationID string, locals []collab.ToolCall) {
	var wg sync.WaitGroup
	for _, call := range locals {
		wg.Add(1)
		go func(call collab.ToolCall) {
			defer wg.Done()
			result := c.runLocalTool(ctx, tec, call)
			c.integrateParallelResult(ctx, tec.TaskID, invocationID, result)
		}(call)
	}
	wg.Wait()
}

func resultToMessage(r collab.ToolResult) collab.Message {
	content := ""
	r.Visit(
		func(t collab.TextResult) { content = t.Text },
		func(d collab.DataResult) { content = fmt.Sprintf("%v", d.Data) },
		func(a collab.ArtifactResult) { content = fmt.Sprintf("artifact %s v%d", a.Filename, a.Version) },
		func(e collab.ErrorResult) { content = fmt.Sprintf("error %s: %s", e.Code, e.Message) },
	)
	return collab.Message{Role: "tool", Content: content}
}

// checkAccess validates a peer delegation via the AccessValidator,
// rejecting self-delegation unconditionally (spec §6, §8).
func (c *Core) checkAccess(ctx context.Context, tec *TaskExecutionContext, targetAgent string) error {
	if targetAgent == c.AgentName {
		return &PermissionDeniedError{TargetAgent: targetAgent, Reason: "agents must not delegate to themselves"}
	}
	if c.Access == nil {
		return nil
	}
	tec.Mu.Lock()
	secCtx := deepCopyMap(tec.SecurityContext)
	tec.Mu.Unlock()
	if err := c.Access.ValidateAgentAccess(ctx, secCtx, targetAgent); err != nil {
		return &PermissionDeniedError{TargetAgent: targetAgent, Reason: err.Error()}
	}
	return nil
}

// publishPeerRequest sends a message/send request to a peer agent with
// replyTo/statusTo scoped to this delegation's sub_task_id (spec §4.3
// step 3).
func (c *Core) publishPeerRequest(ctx context.Context, tec *TaskExecutionContext, peerAgent, subTaskID string, call collab.ToolCall) error {
	argsText := fmt.Sprintf("%v", call.Arguments)
	msg := a2a.NewTextMessage(a2a.RoleUser, uuid.NewString(), argsText)
	msg.Metadata = a2a.MessageMetadata{AgentName: peerAgent, ParentTaskID: tec.TaskID}

	env := &a2a.Envelope{
		JSONRPC: a2a.ProtocolVersion,
		ID:      uuid.NewString(),
		Method:  a2a.MethodMessageSend,
		Params:  &a2a.RequestParams{Message: msg},
	}
	props := a2a.UserProperties{
		ReplyTo:  a2a.ResponseTopic(c.Namespace, c.AgentName, subTaskID),
		StatusTo: a2a.StatusTopic(c.Namespace, c.AgentName, subTaskID),
	}
	topic := a2a.RequestTopic(c.Namespace, peerAgent)
	return c.Broker.Publish(ctx, topic, env, props)
}

// checkpointAndSuspend writes the checkpoint and transitions state. On
// checkpoint failure (CheckpointError), the core refuses the transition
// per spec §7 and returns false so the caller can fail the task instead.
func (c *Core) checkpointAndSuspend(ctx context.Context, tec *TaskExecutionContext, state TaskState, subTasks []checkpoint.PeerSubTask, aggregators []checkpoint.ParallelInvocation) bool {
	blob, err := tec.ToCheckpointDict()
	if err != nil {
		c.Logger.Error("failed to serialize checkpoint dict", "task_id", tec.TaskID, "error", err)
		return false
	}
	tc := checkpoint.TaskCheckpoint{TaskID: tec.TaskID, AgentName: c.AgentName, TECBlob: blob}
	if err := c.Checkpoints.Checkpoint(ctx, tc, subTasks, aggregators); err != nil {
		c.Metrics.RecordCheckpointError(c.AgentName)
		c.Logger.Error("checkpoint write failed", "task_id", tec.TaskID, "error", err)
		return false
	}
	c.Metrics.RecordCheckpointWrite(c.AgentName)
	tec.SetState(state)
	return true
}

func (c *Core) evictResident(tec *TaskExecutionContext) {
	c.resident.evict(tec.TaskID)
	c.Metrics.SetActiveTasks(c.AgentName, c.resident.count())
}
