package sac

import (
	"testing"

	"github.com/solacelabs/sam-core/collab"
)

func TestTaskExecutionContext_CheckpointRoundTrip(t *testing.T) {
	tec := NewTaskExecutionContext("t1", "agent-a", A2AContext{SessionID: "t1", UserID: "u1"})
	tec.SetState(StateAwaitingPeer)
	tec.Messages = []collab.Message{{Role: "user", Content: "hi"}}
	tec.Flags["idempotent:call-1"] = true
	tec.TokenUsage.Add(collab.TokenUsage{InputTokens: 10, OutputTokens: 5, Model: "m1", Source: "llm"})
	tec.AppendArtifact(ArtifactRef{Filename: "out.txt", Version: 1})
	tec.StreamingBuffer = "partial"
	tec.CancelRequested = true

	blob, err := tec.ToCheckpointDict()
	if err != nil {
		t.Fatalf("ToCheckpointDict: %v", err)
	}

	restored, err := FromCheckpointDict(blob)
	if err != nil {
		t.Fatalf("FromCheckpointDict: %v", err)
	}

	if restored.TaskID != "t1" || restored.AgentName != "agent-a" {
		t.Errorf("identity mismatch: %+v", restored)
	}
	if restored.State != StateAwaitingPeer {
		t.Errorf("State = %v, want StateAwaitingPeer", restored.State)
	}
	if len(restored.Messages) != 1 || restored.Messages[0].Content != "hi" {
		t.Errorf("Messages = %+v", restored.Messages)
	}
	if restored.Flags["idempotent:call-1"] != true {
		t.Errorf("Flags = %+v", restored.Flags)
	}
	if restored.TokenUsage.InputTokens != 10 || restored.TokenUsage.OutputTokens != 5 {
		t.Errorf("TokenUsage = %+v", restored.TokenUsage)
	}
	if len(restored.ProducedArtifacts) != 1 || restored.ProducedArtifacts[0].Filename != "out.txt" {
		t.Errorf("ProducedArtifacts = %+v", restored.ProducedArtifacts)
	}

	// Transient fields must never survive a restore (spec §4.2).
	if restored.StreamingBuffer != "" {
		t.Errorf("StreamingBuffer = %q, want empty after restore", restored.StreamingBuffer)
	}
	if restored.CancelRequested {
		t.Errorf("CancelRequested = true, want false after restore")
	}
	if restored.MessageHandle != nil {
		t.Errorf("MessageHandle = %v, want nil after restore", restored.MessageHandle)
	}
}

func TestTaskExecutionContext_ToCheckpointDict_DeepCopiesMutableState(t *testing.T) {
	tec := NewTaskExecutionContext("t1", "agent-a", A2AContext{})
	tec.Flags["k"] = "v1"

	blob, err := tec.ToCheckpointDict()
	if err != nil {
		t.Fatalf("ToCheckpointDict: %v", err)
	}

	// Mutating the live TEC after snapshotting must not alter the blob
	// already taken (spec §4.2 deep-copy requirement).
	tec.Flags["k"] = "v2"

	restored, err := FromCheckpointDict(blob)
	if err != nil {
		t.Fatalf("FromCheckpointDict: %v", err)
	}
	if restored.Flags["k"] != "v1" {
		t.Errorf("Flags[k] = %v, want v1 (snapshot must not alias live state)", restored.Flags["k"])
	}
}

func TestTaskExecutionContext_ArtifactSignalQueueDrain(t *testing.T) {
	tec := NewTaskExecutionContext("t1", "agent-a", A2AContext{})
	tec.QueueArtifactSignal(ArtifactSignal{Filename: "a.txt", Version: 1})
	tec.QueueArtifactSignal(ArtifactSignal{Filename: "b.txt", Version: 1})

	drained := tec.DrainArtifactSignals()
	if len(drained) != 2 {
		t.Fatalf("drained %d signals, want 2", len(drained))
	}

	if more := tec.DrainArtifactSignals(); len(more) != 0 {
		t.Errorf("second drain returned %+v, want empty", more)
	}
}

func TestTaskExecutionContext_CancelSignal(t *testing.T) {
	tec := NewTaskExecutionContext("t1", "agent-a", A2AContext{})
	if tec.IsCancelled() {
		t.Fatalf("new TEC should not be cancelled")
	}
	tec.RequestCancel()
	if !tec.IsCancelled() {
		t.Errorf("IsCancelled should report true after RequestCancel")
	}
}

func TestTaskExecutionContext_SetGetState(t *testing.T) {
	tec := NewTaskExecutionContext("t1", "agent-a", A2AContext{})
	if tec.GetState() != StateNew {
		t.Fatalf("new TEC state = %v, want StateNew", tec.GetState())
	}
	tec.SetState(StateRunning)
	if tec.GetState() != StateRunning {
		t.Errorf("GetState = %v, want StateRunning", tec.GetState())
	}
}

func TestTokenUsageTotals_AddAccumulatesBySource(t *testing.T) {
	totals := newTokenUsageTotals()
	totals.Add(collab.TokenUsage{InputTokens: 5, OutputTokens: 2, Model: "m1", Source: "llm"})
	totals.Add(collab.TokenUsage{InputTokens: 3, OutputTokens: 1, Model: "m1", Source: "llm"})
	totals.Add(collab.TokenUsage{InputTokens: 1, OutputTokens: 1, Model: "m2", Source: "peer"})

	if totals.InputTokens != 9 || totals.OutputTokens != 4 {
		t.Errorf("totals = %+v, want InputTokens=9 OutputTokens=4", totals)
	}
	entry, ok := totals.BySource["m1/llm"]
	if !ok || entry.InputTokens != 8 || entry.OutputTokens != 3 {
		t.Errorf("BySource[m1/llm] = %+v", entry)
	}
	if len(totals.BySource) != 2 {
		t.Errorf("BySource has %d entries, want 2", len(totals.BySource))
	}
}
