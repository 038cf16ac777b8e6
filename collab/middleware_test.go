package collab

import (
	"errors"
	"testing"
)

func TestRunMiddleware_NoMiddleware_CallsNext(t *testing.T) {
	called := false
	result, err := RunMiddleware(nil, ToolContext{ToolName: "t"}, func() (ToolResult, error) {
		called = true
		return NewTextResult("c1", "ok"), nil
	})
	if err != nil {
		t.Fatalf("RunMiddleware: %v", err)
	}
	if !called {
		t.Errorf("next was not called")
	}
	if result.Text == nil || result.Text.Text != "ok" {
		t.Errorf("result = %+v", result)
	}
}

func TestRunMiddleware_PreShortCircuits(t *testing.T) {
	nextCalled := false
	shortCircuit := NewTextResult("c1", "cached")
	mws := []ToolMiddleware{
		{Pre: func(ToolContext) (*ToolResult, error) { return &shortCircuit, nil }},
	}

	result, err := RunMiddleware(mws, ToolContext{}, func() (ToolResult, error) {
		nextCalled = true
		return ToolResult{}, nil
	})
	if err != nil {
		t.Fatalf("RunMiddleware: %v", err)
	}
	if nextCalled {
		t.Errorf("next should not run after a Pre short-circuit")
	}
	if result.Text == nil || result.Text.Text != "cached" {
		t.Errorf("result = %+v, want the short-circuited value", result)
	}
}

func TestRunMiddleware_PreErrorAbortsBeforeNext(t *testing.T) {
	nextCalled := false
	mws := []ToolMiddleware{
		{Pre: func(ToolContext) (*ToolResult, error) { return nil, errors.New("boom") }},
	}
	_, err := RunMiddleware(mws, ToolContext{}, func() (ToolResult, error) {
		nextCalled = true
		return ToolResult{}, nil
	})
	if err == nil {
		t.Fatalf("expected error from Pre")
	}
	if nextCalled {
		t.Errorf("next should not run after a Pre error")
	}
}

func TestRunMiddleware_PostRunsInReverseOrder(t *testing.T) {
	var order []string
	mws := []ToolMiddleware{
		{Post: func(tc ToolContext, r ToolResult) (ToolResult, error) {
			order = append(order, "first")
			return r, nil
		}},
		{Post: func(tc ToolContext, r ToolResult) (ToolResult, error) {
			order = append(order, "second")
			return r, nil
		}},
	}

	_, err := RunMiddleware(mws, ToolContext{}, func() (ToolResult, error) {
		return NewTextResult("c1", "x"), nil
	})
	if err != nil {
		t.Fatalf("RunMiddleware: %v", err)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("post hook order = %v, want [second first]", order)
	}
}

func TestRunMiddleware_PostCanRewriteResult(t *testing.T) {
	mws := []ToolMiddleware{
		{Post: func(tc ToolContext, r ToolResult) (ToolResult, error) {
			return NewTextResult(r.CallID, "redacted"), nil
		}},
	}
	result, err := RunMiddleware(mws, ToolContext{}, func() (ToolResult, error) {
		return NewTextResult("c1", "secret"), nil
	})
	if err != nil {
		t.Fatalf("RunMiddleware: %v", err)
	}
	if result.Text == nil || result.Text.Text != "redacted" {
		t.Errorf("result = %+v, want rewritten to redacted", result)
	}
}

func TestRunMiddleware_NextErrorSkipsPost(t *testing.T) {
	postCalled := false
	mws := []ToolMiddleware{
		{Post: func(tc ToolContext, r ToolResult) (ToolResult, error) {
			postCalled = true
			return r, nil
		}},
	}
	_, err := RunMiddleware(mws, ToolContext{}, func() (ToolResult, error) {
		return ToolResult{}, errors.New("dispatch failed")
	})
	if err == nil {
		t.Fatalf("expected error from next")
	}
	if postCalled {
		t.Errorf("post should not run when next fails")
	}
}
