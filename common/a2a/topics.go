package a2a

import "fmt"

// Topics are namespaced forward-slash paths: {namespace}/a2a/v1/... (spec §6).
// These four families are the only ones the core cares about; gateways and
// other collaborators may define additional topics outside this package.

// RequestTopic is where inbound task requests for an agent arrive.
func RequestTopic(namespace, agentName string) string {
	return fmt.Sprintf("%s/a2a/v1/agent/request/%s", namespace, agentName)
}

// ResponseTopic is where a peer's terminal response for a delegated
// sub-task arrives, scoped to the delegating agent.
func ResponseTopic(namespace, delegatingAgent, subTaskID string) string {
	return fmt.Sprintf("%s/a2a/v1/agent/response/%s/%s", namespace, delegatingAgent, subTaskID)
}

// StatusTopic is where a peer's streaming status updates for a delegated
// sub-task arrive, scoped to the delegating agent.
func StatusTopic(namespace, delegatingAgent, subTaskID string) string {
	return fmt.Sprintf("%s/a2a/v1/agent/status/%s/%s", namespace, delegatingAgent, subTaskID)
}

// DiscoveryTopic is the single topic all agent cards are heartbeat-published to.
func DiscoveryTopic(namespace string) string {
	return namespace + "/a2a/v1/discovery/agentcards"
}

// RequestWildcard subscribes to every agent's inbound requests. Wildcard
// syntax follows the broker's own convention (`*` single level, `>` rest);
// this helper uses the single-level "*" form, which package broker's
// in-memory matcher supports ("+" is not recognized there).
func RequestWildcard(namespace string) string {
	return fmt.Sprintf("%s/a2a/v1/agent/request/*", namespace)
}

// ResponseWildcard subscribes to all peer responses destined for one agent.
func ResponseWildcard(namespace, delegatingAgent string) string {
	return fmt.Sprintf("%s/a2a/v1/agent/response/%s/*", namespace, delegatingAgent)
}

// StatusWildcard subscribes to all peer status updates destined for one agent.
func StatusWildcard(namespace, delegatingAgent string) string {
	return fmt.Sprintf("%s/a2a/v1/agent/status/%s/*", namespace, delegatingAgent)
}
