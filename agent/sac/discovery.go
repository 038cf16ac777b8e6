package sac

import (
	"context"
	"encoding/json"
	"time"

	"github.com/solacelabs/sam-core/collab"
	"github.com/solacelabs/sam-core/common/a2a"
)

// AgentCard describes one agent identity for discovery (spec §3): name,
// the skills/tools it exposes, and their call signatures. Peers consume
// these to build their own delegation catalog; the Agent Core itself never
// reads cards other than its own.
type AgentCard struct {
	AgentName string           `json:"agent_name"`
	Namespace string           `json:"namespace"`
	Skills    []AgentCardSkill `json:"skills"`
}

type AgentCardSkill struct {
	ToolName        string         `json:"tool_name"`
	RequiredScopes  []string       `json:"required_scopes,omitempty"`
	ParameterSchema map[string]any `json:"parameter_schema,omitempty"`
}

// BuildAgentCard assembles this Core's card from its ToolRegistry, if the
// registry also implements the optional ToolLister interface; otherwise the
// card carries no skills (a valid, if uninteresting, heartbeat).
func (c *Core) BuildAgentCard() AgentCard {
	card := AgentCard{AgentName: c.AgentName, Namespace: c.Namespace}
	lister, ok := c.Tools.(ToolLister)
	if !ok {
		return card
	}
	for _, spec := range lister.ListTools() {
		card.Skills = append(card.Skills, AgentCardSkill{
			ToolName:        spec.Name,
			RequiredScopes:  spec.RequiredScopes,
			ParameterSchema: spec.ParameterSchema,
		})
	}
	return card
}

// ToolLister is an optional extension a collab.ToolRegistry implementation
// may satisfy to support discovery publishing (spec §3 AgentCard "skills").
// The core ToolRegistry contract (spec §6) deliberately omits enumeration
// since lookup-by-name is all the turn loop needs.
type ToolLister interface {
	ListTools() []collab.ToolSpec
}

// RunDiscoveryPublisher periodically publishes this agent's AgentCard to
// the namespace discovery topic until ctx is cancelled (spec §3, §5: "a
// single dedicated background worker runs the discovery heartbeat
// publisher"). An interval <= 0 disables publishing entirely.
func (c *Core) RunDiscoveryPublisher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.publishAgentCard(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.publishAgentCard(ctx)
		}
	}
}

func (c *Core) publishAgentCard(ctx context.Context) {
	card := c.BuildAgentCard()
	data, err := json.Marshal(card)
	if err != nil {
		c.Logger.Error("marshal agent card failed", "agent_name", c.AgentName, "error", err)
		return
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		c.Logger.Error("decode agent card failed", "agent_name", c.AgentName, "error", err)
		return
	}

	env := &a2a.Envelope{
		JSONRPC: a2a.ProtocolVersion,
		ID:      c.AgentName,
		Method:  "discovery/agentcard",
		Params: &a2a.RequestParams{
			Message: &a2a.Message{
				Role: a2a.RoleAgent,
				Kind: "message",
				Parts: []a2a.Part{
					{Kind: a2a.PartKindData, Data: fields},
				},
			},
		},
	}

	if err := c.Broker.Publish(ctx, a2a.DiscoveryTopic(c.Namespace), env, a2a.UserProperties{}); err != nil {
		c.Logger.Warn("publish agent card failed", "agent_name", c.AgentName, "error", err)
	}
}
