package sac

import (
	"context"
	"testing"
	"time"

	"github.com/solacelabs/sam-core/agent/adk/checkpoint"
	"github.com/solacelabs/sam-core/broker"
	"github.com/solacelabs/sam-core/collab"
)

func TestRuntime_StartSubscribesAndShutdownDrains(t *testing.T) {
	br := broker.NewMemory()
	store := checkpoint.NewMemoryStore()
	llm := &scriptedLLM{steps: []llmStep{{text: "hi"}}}
	core := newTestCore("agent-a", "ns", br, store, llm, collab.NewRegistry(), funcToolRunner(nil))
	rt := NewRuntime(core, 5*time.Millisecond, 5*time.Millisecond)

	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	replyTopic := "ns/test/reply/rt1"
	replies := subscribeCapture(t, br, replyTopic)
	if err := sendEnvelope(br, "ns", "agent-a", "hello", replyTopic); err != nil {
		t.Fatalf("sendEnvelope: %v", err)
	}
	waitForTerminal(t, replies, testTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := rt.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestRuntime_ShutdownWithoutStartIsSafe(t *testing.T) {
	br := broker.NewMemory()
	store := checkpoint.NewMemoryStore()
	core := newTestCore("agent-a", "ns", br, store, &scriptedLLM{}, collab.NewRegistry(), funcToolRunner(nil))
	rt := NewRuntime(core, time.Second, time.Second)

	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown without Start: %v", err)
	}
}

func TestRuntime_ShutdownStopsBackgroundLoopsBeforeReturning(t *testing.T) {
	br := broker.NewMemory()
	store := checkpoint.NewMemoryStore()
	core := newTestCore("agent-a", "ns", br, store, &scriptedLLM{}, collab.NewRegistry(), funcToolRunner(nil))
	rt := NewRuntime(core, time.Millisecond, time.Millisecond)

	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := rt.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case <-rt.done:
	default:
		t.Errorf("done channel should be closed once Shutdown returns")
	}
}
