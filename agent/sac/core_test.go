package sac

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/solacelabs/sam-core/agent/adk/checkpoint"
	"github.com/solacelabs/sam-core/broker"
	"github.com/solacelabs/sam-core/collab"
	"github.com/solacelabs/sam-core/common/a2a"
)

// --- test doubles -----------------------------------------------------

// llmStep is one scripted response a scriptedLLM yields on successive
// Invoke calls; the last step repeats if more calls arrive than steps.
type llmStep struct {
	text      string
	toolCalls []collab.ToolCall
	err       error
}

type scriptedLLM struct {
	mu      sync.Mutex
	calls   int
	steps   []llmStep
	invoked []collab.InvokeRequest
}

func (s *scriptedLLM) Invoke(ctx context.Context, req collab.InvokeRequest) (<-chan string, <-chan collab.InvokeResult, error) {
	s.mu.Lock()
	idx := s.calls
	s.calls++
	s.invoked = append(s.invoked, req)
	s.mu.Unlock()

	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	step := s.steps[idx]

	textCh := make(chan string, 1)
	resultCh := make(chan collab.InvokeResult, 1)
	if step.text != "" {
		textCh <- step.text
	}
	close(textCh)
	resultCh <- collab.InvokeResult{ToolCalls: step.toolCalls, Usage: collab.TokenUsage{Model: "test-model", Source: "test"}, Err: step.err}
	close(resultCh)
	return textCh, resultCh, nil
}

func (s *scriptedLLM) requestAt(i int) (collab.InvokeRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.invoked) {
		return collab.InvokeRequest{}, false
	}
	return s.invoked[i], true
}

type funcToolRunner func(ctx context.Context, call collab.ToolCall) (collab.ToolResult, error)

func (f funcToolRunner) Run(ctx context.Context, call collab.ToolCall) (collab.ToolResult, error) {
	return f(ctx, call)
}

type noopArtifactStore struct{}

func (noopArtifactStore) Save(ctx context.Context, taskID, filename string, data []byte, mimeType string) (int, error) {
	return 1, nil
}
func (noopArtifactStore) Load(ctx context.Context, filename string, version int) ([]byte, error) {
	return nil, nil
}

// --- harness ------------------------------------------------------------

func newTestCore(agentName, namespace string, br broker.Adapter, store checkpoint.Store, llm collab.LlmClient, tools collab.ToolRegistry, localTools collab.LocalToolRunner) *Core {
	return New(agentName, namespace, br, store, llm, tools, localTools, noopArtifactStore{}, nil, 4, 2, 30)
}

func subscribeCapture(t *testing.T, br broker.Adapter, pattern string) <-chan *broker.Message {
	t.Helper()
	ch := make(chan *broker.Message, 16)
	if err := br.Subscribe(context.Background(), pattern, func(ctx context.Context, msg *broker.Message) error {
		ch <- msg
		return nil
	}); err != nil {
		t.Fatalf("Subscribe(%s): %v", pattern, err)
	}
	return ch
}

func waitForTerminal(t *testing.T, ch <-chan *broker.Message, timeout time.Duration) *a2a.Envelope {
	t.Helper()
	select {
	case msg := <-ch:
		return msg.Envelope
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for a terminal response")
		return nil
	}
}

func sendEnvelope(br broker.Adapter, namespace, agentName, userText, replyTo string) error {
	msg := a2a.NewTextMessage(a2a.RoleUser, uuid.NewString(), userText)
	env := &a2a.Envelope{
		JSONRPC: a2a.ProtocolVersion,
		ID:      uuid.NewString(),
		Method:  a2a.MethodMessageSend,
		Params:  &a2a.RequestParams{Message: msg},
	}
	return br.Publish(context.Background(), a2a.RequestTopic(namespace, agentName), env, a2a.UserProperties{ReplyTo: replyTo})
}

const testTimeout = 2 * time.Second

// --- scenarios ------------------------------------------------------------

func TestCore_ZeroToolCalls_FinalizesSuccess(t *testing.T) {
	br := broker.NewMemory()
	store := checkpoint.NewMemoryStore()
	llm := &scriptedLLM{steps: []llmStep{{text: "hello there"}}}
	core := newTestCore("agent-a", "ns", br, store, llm, collab.NewRegistry(), funcToolRunner(nil))

	if err := core.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	replyTopic := "ns/test/reply/1"
	replies := subscribeCapture(t, br, replyTopic)

	if err := sendEnvelope(br, "ns", "agent-a", "hi", replyTopic); err != nil {
		t.Fatalf("sendEnvelope: %v", err)
	}

	env := waitForTerminal(t, replies, testTimeout)
	if env.Result == nil || env.Result.Task == nil {
		t.Fatalf("terminal envelope missing task result: %+v", env)
	}
	if env.Result.Task.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("State = %v, want completed", env.Result.Task.Status.State)
	}
	if got := a2a.TextOf(env.Result.Task.Status.Message); got != "hello there" {
		t.Errorf("final text = %q, want %q", got, "hello there")
	}

	if _, err := store.Restore(context.Background(), env.Result.Task.ID); err != checkpoint.ErrNotFound {
		t.Errorf("checkpoint row should be cleaned up after finalize, err=%v", err)
	}
}

func TestCore_LocalToolCall_ThenFinalizes(t *testing.T) {
	br := broker.NewMemory()
	store := checkpoint.NewMemoryStore()
	llm := &scriptedLLM{steps: []llmStep{
		{toolCalls: []collab.ToolCall{{ID: "c1", Name: "lookup", Arguments: map[string]any{"q": "widgets"}}}},
		{text: "found 3 widgets"},
	}}
	tools := collab.NewRegistry()
	tools.Register(collab.ToolDefinition{Name: "lookup"})

	var toolCalled int32
	localTools := funcToolRunner(func(ctx context.Context, call collab.ToolCall) (collab.ToolResult, error) {
		toolCalled++
		return collab.NewTextResult(call.ID, "3 widgets"), nil
	})

	core := newTestCore("agent-a", "ns", br, store, llm, tools, localTools)
	if err := core.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	replyTopic := "ns/test/reply/2"
	replies := subscribeCapture(t, br, replyTopic)
	if err := sendEnvelope(br, "ns", "agent-a", "how many widgets", replyTopic); err != nil {
		t.Fatalf("sendEnvelope: %v", err)
	}

	env := waitForTerminal(t, replies, testTimeout)
	if got := a2a.TextOf(env.Result.Task.Status.Message); got != "found 3 widgets" {
		t.Errorf("final text = %q, want %q", got, "found 3 widgets")
	}
	if toolCalled != 1 {
		t.Errorf("local tool called %d times, want 1", toolCalled)
	}
}

func TestCore_PeerDelegation_RoundTrip(t *testing.T) {
	br := broker.NewMemory()
	namespace := "ns"

	requesterStore := checkpoint.NewMemoryStore()
	requesterLLM := &scriptedLLM{steps: []llmStep{
		{toolCalls: []collab.ToolCall{{ID: "c1", Name: "ask-billing", Arguments: map[string]any{"q": "balance"}}}},
		{text: "your balance is reported"},
	}}
	requesterTools := collab.NewRegistry()
	requesterTools.Register(collab.ToolDefinition{Name: "ask-billing", PeerAgentName: "billing-agent"})
	requester := newTestCore("agent-a", namespace, br, requesterStore, requesterLLM, requesterTools, funcToolRunner(nil))

	billingStore := checkpoint.NewMemoryStore()
	billingLLM := &scriptedLLM{steps: []llmStep{{text: "balance is $42"}}}
	billing := newTestCore("billing-agent", namespace, br, billingStore, billingLLM, collab.NewRegistry(), funcToolRunner(nil))

	if err := requester.Start(context.Background()); err != nil {
		t.Fatalf("requester.Start: %v", err)
	}
	if err := billing.Start(context.Background()); err != nil {
		t.Fatalf("billing.Start: %v", err)
	}

	replyTopic := "ns/test/reply/3"
	replies := subscribeCapture(t, br, replyTopic)
	if err := sendEnvelope(br, namespace, "agent-a", "what is my balance", replyTopic); err != nil {
		t.Fatalf("sendEnvelope: %v", err)
	}

	env := waitForTerminal(t, replies, testTimeout)
	if env.Result.Task.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("State = %v, want completed", env.Result.Task.Status.State)
	}
	if got := a2a.TextOf(env.Result.Task.Status.Message); got != "your balance is reported" {
		t.Errorf("final text = %q, want %q", got, "your balance is reported")
	}
}

func TestCore_SelfDelegation_RejectedWithoutSuspending(t *testing.T) {
	br := broker.NewMemory()
	store := checkpoint.NewMemoryStore()
	llm := &scriptedLLM{steps: []llmStep{
		{toolCalls: []collab.ToolCall{{ID: "c1", Name: "ask-self", Arguments: map[string]any{}}}},
		{text: "gave up after denial"},
	}}
	tools := collab.NewRegistry()
	tools.Register(collab.ToolDefinition{Name: "ask-self", PeerAgentName: "agent-a"})
	core := newTestCore("agent-a", "ns", br, store, llm, tools, funcToolRunner(nil))
	if err := core.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	replyTopic := "ns/test/reply/4"
	replies := subscribeCapture(t, br, replyTopic)
	if err := sendEnvelope(br, "ns", "agent-a", "delegate to myself", replyTopic); err != nil {
		t.Fatalf("sendEnvelope: %v", err)
	}

	env := waitForTerminal(t, replies, testTimeout)
	if got := a2a.TextOf(env.Result.Task.Status.Message); got != "gave up after denial" {
		t.Errorf("final text = %q, want %q", got, "gave up after denial")
	}

	secondReq, ok := llm.requestAt(1)
	if !ok {
		t.Fatalf("expected a second LLM invocation after the denial was fed back")
	}
	last := secondReq.Messages[len(secondReq.Messages)-1]
	if !strings.Contains(last.Content, collab.ErrCodePermissionDenied) {
		t.Errorf("fed-back tool message = %q, want it to mention %s", last.Content, collab.ErrCodePermissionDenied)
	}
}

// TestCore_CancelTask_Direct exercises cancellation via cancelTask once a
// task has suspended awaiting a peer response (spec §5): the cancel arrives
// after the task has already been evicted to the checkpoint store, so it
// must be restored, marked cancelled, and finalized immediately rather than
// waiting for a peer response that will never come.
func TestCore_CancelTask_Direct(t *testing.T) {
	br := broker.NewMemory()
	store := checkpoint.NewMemoryStore()
	llm := &scriptedLLM{steps: []llmStep{
		{toolCalls: []collab.ToolCall{{ID: "c1", Name: "ask-billing", Arguments: map[string]any{}}}},
	}}
	tools := collab.NewRegistry()
	tools.Register(collab.ToolDefinition{Name: "ask-billing", PeerAgentName: "billing-agent"})
	core := newTestCore("agent-a", "ns", br, store, llm, tools, funcToolRunner(nil))

	taskID := uuid.NewString()
	tec := NewTaskExecutionContext(taskID, "agent-a", A2AContext{SessionID: taskID, ReplyTo: "ns/test/reply/6"})
	tec.SetState(StateRunning)
	core.resident.put(tec)

	replies := subscribeCapture(t, br, "ns/test/reply/6")

	core.runTurnLoop(context.Background(), tec, []collab.Message{{Role: "user", Content: "please ask billing"}})

	// The turn suspended awaiting a peer; confirm it is no longer resident
	// and a checkpoint row exists before cancelling.
	if _, ok := core.resident.get(taskID); ok {
		t.Fatalf("task should have been evicted after suspending on peer delegation")
	}
	if _, err := store.Restore(context.Background(), taskID); err != nil {
		t.Fatalf("expected a checkpoint row for the suspended task: %v", err)
	}

	core.cancelTask(context.Background(), taskID, "user changed their mind")

	env := waitForTerminal(t, replies, testTimeout)
	if env.Result.Task.Status.State != a2a.TaskStateCanceled {
		t.Fatalf("State = %v, want canceled", env.Result.Task.Status.State)
	}
	if _, err := store.Restore(context.Background(), taskID); err != checkpoint.ErrNotFound {
		t.Errorf("checkpoint row should be cleaned up after cancellation, err=%v", err)
	}
}

func TestCore_ParallelLocalToolFanout_Aggregates(t *testing.T) {
	br := broker.NewMemory()
	store := checkpoint.NewMemoryStore()
	llm := &scriptedLLM{steps: []llmStep{
		{toolCalls: []collab.ToolCall{
			{ID: "c1", Name: "lookup-a", Arguments: map[string]any{}},
			{ID: "c2", Name: "lookup-b", Arguments: map[string]any{}},
		}},
		{text: "combined both results"},
	}}
	tools := collab.NewRegistry()
	tools.Register(collab.ToolDefinition{Name: "lookup-a"})
	tools.Register(collab.ToolDefinition{Name: "lookup-b"})

	localTools := funcToolRunner(func(ctx context.Context, call collab.ToolCall) (collab.ToolResult, error) {
		return collab.NewTextResult(call.ID, fmt.Sprintf("result for %s", call.Name)), nil
	})

	core := newTestCore("agent-a", "ns", br, store, llm, tools, localTools)
	if err := core.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	replyTopic := "ns/test/reply/7"
	replies := subscribeCapture(t, br, replyTopic)
	if err := sendEnvelope(br, "ns", "agent-a", "look up both", replyTopic); err != nil {
		t.Fatalf("sendEnvelope: %v", err)
	}

	env := waitForTerminal(t, replies, testTimeout)
	if got := a2a.TextOf(env.Result.Task.Status.Message); got != "combined both results" {
		t.Errorf("final text = %q, want %q", got, "combined both results")
	}
}

func TestCore_TimeoutSweeper_SynthesizesTimeoutResult(t *testing.T) {
	br := broker.NewMemory()
	store := checkpoint.NewMemoryStore()
	llm := &scriptedLLM{steps: []llmStep{
		{toolCalls: []collab.ToolCall{{ID: "c1", Name: "ask-billing", Arguments: map[string]any{}}}},
		{text: "billing never answered"},
	}}
	tools := collab.NewRegistry()
	tools.Register(collab.ToolDefinition{Name: "ask-billing", PeerAgentName: "billing-agent"})
	// No billing-agent subscriber: the peer request goes unanswered.
	core := newTestCore("agent-a", "ns", br, store, llm, tools, funcToolRunner(nil))
	core.DefaultPeerTimeoutSec = 0 // expires immediately

	taskID := uuid.NewString()
	tec := NewTaskExecutionContext(taskID, "agent-a", A2AContext{SessionID: taskID, ReplyTo: "ns/test/reply/8"})
	tec.SetState(StateRunning)
	core.resident.put(tec)

	replies := subscribeCapture(t, br, "ns/test/reply/8")

	core.runTurnLoop(context.Background(), tec, []collab.Message{{Role: "user", Content: "ask billing"}})

	core.sweepOnce(context.Background())

	env := waitForTerminal(t, replies, testTimeout)
	if got := a2a.TextOf(env.Result.Task.Status.Message); got != "billing never answered" {
		t.Errorf("final text = %q, want %q", got, "billing never answered")
	}

	secondReq, ok := llm.requestAt(1)
	if !ok {
		t.Fatalf("expected a second LLM invocation after the timeout was fed back")
	}
	last := secondReq.Messages[len(secondReq.Messages)-1]
	if !strings.Contains(last.Content, "TIMEOUT") {
		t.Errorf("fed-back tool message = %q, want it to mention TIMEOUT", last.Content)
	}
}
