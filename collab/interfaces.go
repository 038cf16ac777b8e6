// Package collab declares the narrow interfaces the core consumes from
// external collaborators (spec §6): the LLM client, tool registry, artifact
// store, access validator, and gateway. None of these are implemented here
// beyond small reference/test doubles — real implementations live outside
// this module's scope (spec §1).
package collab

import "context"

// LlmClient is the model-serving collaborator (spec §6).
type LlmClient interface {
	// Invoke sends messages and available tools to the model. It may yield
	// text chunks on the returned channel before returning the final
	// ToolCalls and Usage. The channel is closed when the call completes
	// (successfully or not); a non-nil error supersedes any partial text.
	Invoke(ctx context.Context, req InvokeRequest) (<-chan string, <-chan InvokeResult, error)
}

// InvokeRequest bundles one LLM turn's input.
type InvokeRequest struct {
	Messages []Message
	Tools    []ToolSpec
}

// Message is a minimal chat message; the concrete shape is owned by the
// LLM client's prompt assembly, not by this contract.
type Message struct {
	Role    string
	Content string
}

// ToolCall is one function call the model asked to make.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// TokenUsage mirrors the TEC token_usage breakdown (spec §3).
type TokenUsage struct {
	InputTokens       int
	OutputTokens      int
	CachedInputTokens int
	Model             string
	Source            string
}

// InvokeResult is the non-streamed tail of an LLM turn.
type InvokeResult struct {
	ToolCalls []ToolCall
	Usage     TokenUsage
	Err       error
}

// ToolRegistry resolves tool names to specs and tells the core whether a
// tool name is a local tool or a peer-agent delegation (spec §6).
type ToolRegistry interface {
	Lookup(name string) (ToolSpec, bool)
	IsPeerDelegation(name string) bool
}

// ToolSpec describes one callable tool, including the peer agent it
// delegates to (if any).
type ToolSpec struct {
	Name             string
	RequiredScopes   []string
	ParameterSchema  map[string]any
	PeerAgentName    string // set iff this tool is a peer delegation
}

// LocalToolRunner executes a local (non-peer) tool synchronously.
type LocalToolRunner interface {
	Run(ctx context.Context, call ToolCall) (ToolResult, error)
}

// ArtifactStore persists task output artifacts (spec §6).
type ArtifactStore interface {
	Save(ctx context.Context, taskID, filename string, data []byte, mimeType string) (version int, err error)
	Load(ctx context.Context, filename string, version int) ([]byte, error)
}

// AccessValidator authorizes peer delegation (spec §6). It must be called
// before every peer delegation and must reject self-delegation (spec §8
// boundary behavior).
type AccessValidator interface {
	ValidateAgentAccess(ctx context.Context, userConfig map[string]any, targetAgent string) error
}

// PermissionDeniedError is returned by AccessValidator implementations.
type PermissionDeniedError struct {
	TargetAgent string
	Reason      string
}

func (e *PermissionDeniedError) Error() string {
	return "permission denied delegating to " + e.TargetAgent + ": " + e.Reason
}
