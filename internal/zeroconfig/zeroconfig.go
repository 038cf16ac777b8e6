// Package zeroconfig provides the null-object collaborators sam-agent
// wires in when no custom LlmClient/ToolRegistry/ArtifactStore has been
// supplied, mirroring the teacher's zero-config CreateZeroConfig escape
// hatch: enough to start the process and exercise the turn loop end to
// end, without requiring a real model provider (spec §1 deliberately
// excludes concrete LLM provider SDKs from this module's scope).
package zeroconfig

import (
	"context"

	"github.com/solacelabs/sam-core/collab"
)

// EchoLLM is a deterministic LlmClient stand-in: it streams the latest
// user message's content back verbatim as a single chunk and returns no
// tool calls, so a turn always terminates at K=0 without ever reaching a
// real model. Real deployments pass their own collab.LlmClient to
// sac.New instead of this one.
type EchoLLM struct{}

func (EchoLLM) Invoke(ctx context.Context, req collab.InvokeRequest) (<-chan string, <-chan collab.InvokeResult, error) {
	textCh := make(chan string, 1)
	resultCh := make(chan collab.InvokeResult, 1)

	reply := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			reply = req.Messages[i].Content
			break
		}
	}

	textCh <- reply
	close(textCh)
	resultCh <- collab.InvokeResult{Usage: collab.TokenUsage{Model: "zeroconfig-echo", Source: "zeroconfig"}}
	close(resultCh)
	return textCh, resultCh, nil
}

// NoopLocalTools rejects every call: a zero-config agent advertises no
// local tools, so collab.ToolRegistry.Lookup should never resolve one to
// begin with, but this satisfies LocalToolRunner for wiring purposes.
type NoopLocalTools struct{}

func (NoopLocalTools) Run(ctx context.Context, call collab.ToolCall) (collab.ToolResult, error) {
	return collab.NewErrorResult(call.ID, collab.ErrCodeLLMFailed, "no local tools configured"), nil
}

// NoopArtifacts discards artifact data: Save reports version 0 with no
// error and Load returns no data. Zero-config runs never produce artifacts
// since EchoLLM never calls a tool.
type NoopArtifacts struct{}

func (NoopArtifacts) Save(ctx context.Context, taskID, filename string, data []byte, mimeType string) (int, error) {
	return 0, nil
}

func (NoopArtifacts) Load(ctx context.Context, filename string, version int) ([]byte, error) {
	return nil, nil
}
