package collab

// ToolContext is the immutable context passed to tool-call middleware
// (spec §9 design note: replaces before/after callbacks with side-effect
// captures with an explicit middleware list receiving an immutable struct).
type ToolContext struct {
	TaskID       string
	InvocationID string
	ToolName     string
	Call         ToolCall
}

// ToolMiddleware is a (pre, post) pair invoked around each tool call. Pre
// runs before dispatch and may short-circuit by returning a non-nil
// *ToolResult (e.g. a cached/idempotent replay). Post runs after dispatch
// and may rewrite the result (e.g. redaction) but never runs concurrently
// with the call it wraps.
type ToolMiddleware struct {
	Pre  func(ToolContext) (*ToolResult, error)
	Post func(ToolContext, ToolResult) (ToolResult, error)
}

// RunMiddleware applies pre-hooks in order until one short-circuits, then
// (absent a short-circuit) calls next and applies post-hooks in reverse
// registration order, matching typical middleware-stack semantics.
func RunMiddleware(mws []ToolMiddleware, tc ToolContext, next func() (ToolResult, error)) (ToolResult, error) {
	for _, mw := range mws {
		if mw.Pre == nil {
			continue
		}
		res, err := mw.Pre(tc)
		if err != nil {
			return ToolResult{}, err
		}
		if res != nil {
			return *res, nil
		}
	}

	result, err := next()
	if err != nil {
		return ToolResult{}, err
	}

	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i].Post == nil {
			continue
		}
		result, err = mws[i].Post(tc, result)
		if err != nil {
			return ToolResult{}, err
		}
	}
	return result, nil
}
