package sac

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/solacelabs/sam-core/agent/adk/checkpoint"
	"github.com/solacelabs/sam-core/broker"
	"github.com/solacelabs/sam-core/collab"
	"github.com/solacelabs/sam-core/common/a2a"
	"github.com/solacelabs/sam-core/metrics"
)

// Core is the Agent Core (spec §4.3): the task lifecycle state machine.
// One Core instance serves one agent identity; multiple processes of the
// same agent_name share a Checkpoint Store and coordinate purely through
// the destructive-claim primitive (spec §5).
type Core struct {
	AgentName string
	Namespace string

	Broker      broker.Adapter
	Checkpoints checkpoint.Store
	LLM         collab.LlmClient
	Tools       collab.ToolRegistry
	LocalTools  collab.LocalToolRunner
	Artifacts   collab.ArtifactStore
	Access      collab.AccessValidator
	Middleware  []collab.ToolMiddleware

	Metrics *metrics.Metrics
	Logger  *slog.Logger

	WorkerPoolSize        int
	LLMRetryMaxAttempts   int
	DefaultPeerTimeoutSec int

	pool     *WorkerPool
	resident *residentTasks
}

// Option configures a Core at construction.
type Option func(*Core)

func WithMetrics(m *metrics.Metrics) Option { return func(c *Core) { c.Metrics = m } }
func WithLogger(l *slog.Logger) Option      { return func(c *Core) { c.Logger = l } }
func WithMiddleware(mw ...collab.ToolMiddleware) Option {
	return func(c *Core) { c.Middleware = append(c.Middleware, mw...) }
}

// New constructs a Core and its bounded worker pool.
func New(agentName, namespace string, br broker.Adapter, cp checkpoint.Store,
	llm collab.LlmClient, tools collab.ToolRegistry, localTools collab.LocalToolRunner,
	artifacts collab.ArtifactStore, access collab.AccessValidator,
	workerPoolSize, llmRetryMaxAttempts, defaultPeerTimeoutSec int, opts ...Option) *Core {

	c := &Core{
		AgentName:             agentName,
		Namespace:             namespace,
		Broker:                br,
		Checkpoints:           cp,
		LLM:                   llm,
		Tools:                 tools,
		LocalTools:            localTools,
		Artifacts:             artifacts,
		Access:                access,
		WorkerPoolSize:        workerPoolSize,
		LLMRetryMaxAttempts:   llmRetryMaxAttempts,
		DefaultPeerTimeoutSec: defaultPeerTimeoutSec,
		Logger:                slog.Default(),
		resident:              newResidentTasks(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pool = NewWorkerPool(workerPoolSize, func(n int) { c.Metrics.SetWorkerPoolBusy(c.AgentName, n) })
	return c
}

// Start subscribes the Broker Adapter to this agent's request topic and
// response wildcard topic (spec §4.1 topic families). The status topic is
// not subscribed, so inbound peer status updates are not consumed. Each
// inbound message is routed to a worker pool slot.
func (c *Core) Start(ctx context.Context) error {
	if err := c.Broker.Subscribe(ctx, a2a.RequestTopic(c.Namespace, c.AgentName), c.handleRequestMessage); err != nil {
		return fmt.Errorf("sac: subscribe request topic: %w", err)
	}
	if err := c.Broker.Subscribe(ctx, a2a.ResponseWildcard(c.Namespace, c.AgentName), c.handleResponseMessage); err != nil {
		return fmt.Errorf("sac: subscribe response topic: %w", err)
	}
	return nil
}

// handleRequestMessage is the broker.Handler for inbound task requests
// (spec §4.3 step 1 "request intake").
func (c *Core) handleRequestMessage(ctx context.Context, msg *broker.Message) error {
	env := msg.Envelope
	if env == nil {
		return nil
	}
	switch env.Method {
	case a2a.MethodMessageSend, a2a.MethodMessageStream:
		props := msg.Properties
		return c.submitTurn(ctx, func(turnCtx context.Context) {
			c.intakeNewTask(turnCtx, env, props)
		})
	case a2a.MethodTasksCancel:
		if env.Params == nil {
			return nil
		}
		return c.submitTurn(ctx, func(turnCtx context.Context) {
			c.cancelTask(turnCtx, env.Params.TaskID, env.Params.Reason)
		})
	default:
		c.Logger.Warn("unknown request method", "method", env.Method)
		return nil
	}
}

// handleResponseMessage is the broker.Handler for inbound peer responses
// (spec §4.3 step 4 "result integration").
func (c *Core) handleResponseMessage(ctx context.Context, msg *broker.Message) error {
	subTaskID := lastTopicSegment(msg.Topic)
	return c.submitTurn(ctx, func(turnCtx context.Context) {
		c.integratePeerResponse(turnCtx, subTaskID, msg.Envelope)
	})
}

func (c *Core) submitTurn(ctx context.Context, fn func(context.Context)) error {
	return c.pool.Submit(ctx, fn)
}

func lastTopicSegment(topic string) string {
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '/' {
			return topic[i+1:]
		}
	}
	return topic
}

// intakeNewTask handles a message/send or message/stream request, building
// a new TEC and starting the turn loop (spec §4.3 step 1).
func (c *Core) intakeNewTask(ctx context.Context, env *a2a.Envelope, props a2a.UserProperties) {
	if env.Params == nil || env.Params.Message == nil {
		c.Logger.Warn("request missing message")
		return
	}
	msg := env.Params.Message

	taskID := msg.Metadata.ParentTaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}

	a2aCtx := A2AContext{
		SessionID:    taskID,
		ParentTaskID: msg.Metadata.ParentTaskID,
		ReplyTo:      props.ReplyTo,
		StatusTo:     props.StatusTo,
		UserID:       props.UserID,
	}

	tec := NewTaskExecutionContext(taskID, c.AgentName, a2aCtx)
	tec.SetState(StateRunning)
	c.resident.put(tec)
	c.Metrics.SetActiveTasks(c.AgentName, c.resident.count())

	history := []collab.Message{{Role: "user", Content: a2a.TextOf(msg)}}
	c.runTurnLoop(ctx, tec, history)
}

func unmarshalResult(b json.RawMessage) (collab.ToolResult, error) {
	var r collab.ToolResult
	if err := json.Unmarshal(b, &r); err != nil {
		return collab.ToolResult{}, err
	}
	return r, nil
}

func nowEpochMS() int64 {
	return time.Now().UnixMilli()
}
