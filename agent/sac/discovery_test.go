package sac

import (
	"context"
	"testing"
	"time"

	"github.com/solacelabs/sam-core/agent/adk/checkpoint"
	"github.com/solacelabs/sam-core/broker"
	"github.com/solacelabs/sam-core/collab"
	"github.com/solacelabs/sam-core/common/a2a"
)

func TestBuildAgentCard_NoLister_CardHasNoSkills(t *testing.T) {
	br := broker.NewMemory()
	store := checkpoint.NewMemoryStore()
	core := newTestCore("agent-a", "ns", br, store, &scriptedLLM{}, plainToolRegistry{}, funcToolRunner(nil))

	card := core.BuildAgentCard()
	if card.AgentName != "agent-a" || card.Namespace != "ns" {
		t.Errorf("card identity = %+v", card)
	}
	if len(card.Skills) != 0 {
		t.Errorf("Skills = %+v, want empty when ToolRegistry is not a ToolLister", card.Skills)
	}
}

func TestBuildAgentCard_ListsRegisteredTools(t *testing.T) {
	br := broker.NewMemory()
	store := checkpoint.NewMemoryStore()
	tools := collab.NewRegistry()
	tools.Register(collab.ToolDefinition{Name: "ask-billing", PeerAgentName: "billing-agent", RequiredScopes: []string{"billing:read"}})
	core := newTestCore("agent-a", "ns", br, store, &scriptedLLM{}, tools, funcToolRunner(nil))

	card := core.BuildAgentCard()
	if len(card.Skills) != 1 {
		t.Fatalf("Skills = %+v, want 1 entry", card.Skills)
	}
	skill := card.Skills[0]
	if skill.ToolName != "ask-billing" {
		t.Errorf("ToolName = %q, want ask-billing", skill.ToolName)
	}
	if len(skill.RequiredScopes) != 1 || skill.RequiredScopes[0] != "billing:read" {
		t.Errorf("RequiredScopes = %+v", skill.RequiredScopes)
	}
}

func TestRunDiscoveryPublisher_PublishesToDiscoveryTopic(t *testing.T) {
	br := broker.NewMemory()
	store := checkpoint.NewMemoryStore()
	tools := collab.NewRegistry()
	tools.Register(collab.ToolDefinition{Name: "ask-billing", PeerAgentName: "billing-agent"})
	core := newTestCore("agent-a", "ns", br, store, &scriptedLLM{}, tools, funcToolRunner(nil))

	cards := subscribeCapture(t, br, a2a.DiscoveryTopic("ns"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go core.RunDiscoveryPublisher(ctx, 5*time.Millisecond)

	msg := <-cards
	if msg.Envelope.Method != "discovery/agentcard" {
		t.Fatalf("Method = %q, want discovery/agentcard", msg.Envelope.Method)
	}
	fields := msg.Envelope.Params.Message.Parts[0].Data
	if fields["agent_name"] != "agent-a" {
		t.Errorf("agent_name = %v, want agent-a", fields["agent_name"])
	}
}

func TestRunDiscoveryPublisher_NonPositiveIntervalDisablesPublishing(t *testing.T) {
	br := broker.NewMemory()
	store := checkpoint.NewMemoryStore()
	core := newTestCore("agent-a", "ns", br, store, &scriptedLLM{}, collab.NewRegistry(), funcToolRunner(nil))

	cards := subscribeCapture(t, br, a2a.DiscoveryTopic("ns"))

	done := make(chan struct{})
	go func() {
		core.RunDiscoveryPublisher(context.Background(), 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatalf("RunDiscoveryPublisher with interval<=0 did not return promptly")
	}
	select {
	case msg := <-cards:
		t.Fatalf("unexpected publish with interval<=0: %+v", msg)
	case <-time.After(20 * time.Millisecond):
	}
}

// plainToolRegistry satisfies collab.ToolRegistry without also implementing
// sac.ToolLister, exercising BuildAgentCard's fallback path.
type plainToolRegistry struct{}

func (plainToolRegistry) Lookup(name string) (collab.ToolSpec, bool) { return collab.ToolSpec{}, false }
func (plainToolRegistry) IsPeerDelegation(name string) bool          { return false }
