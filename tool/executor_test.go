//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	decl *Declaration
	fn   func(ctx context.Context, jsonArgs []byte) (any, error)
}

func (f *fakeTool) Declaration() *Declaration { return f.decl }

func (f *fakeTool) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	return f.fn(ctx, jsonArgs)
}

// declOnlyTool implements Tool but not CallableTool.
type declOnlyTool struct {
	decl *Declaration
}

func (d *declOnlyTool) Declaration() *Declaration { return d.decl }

func echoTool() *fakeTool {
	return &fakeTool{
		decl: &Declaration{
			Name:        "echo",
			Description: "Echoes the input text.",
			InputSchema: &Schema{
				Type:     "object",
				Required: []string{"text"},
				Properties: map[string]*Schema{
					"text": {Type: "string"},
				},
			},
		},
		fn: func(_ context.Context, jsonArgs []byte) (any, error) {
			var input struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(jsonArgs, &input); err != nil {
				return nil, err
			}
			return input.Text, nil
		},
	}
}

func TestNewExecutor(t *testing.T) {
	exec, err := NewExecutor([]Tool{echoTool()})
	require.NoError(t, err)
	require.NotNil(t, exec)
	assert.Equal(t, DefaultTimeout, exec.Timeout())

	_, ok := exec.Lookup("echo")
	assert.True(t, ok)
	_, ok = exec.Lookup("missing")
	assert.False(t, ok)
}

func TestNewExecutorRejectsDuplicates(t *testing.T) {
	_, err := NewExecutor([]Tool{echoTool(), echoTool()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tool name")
}

func TestNewExecutorRejectsUnnamed(t *testing.T) {
	_, err := NewExecutor([]Tool{&declOnlyTool{decl: &Declaration{}}})
	require.Error(t, err)
}

func TestExecuteSuccess(t *testing.T) {
	exec, err := NewExecutor([]Tool{echoTool()})
	require.NoError(t, err)

	result := exec.Execute(context.Background(), Call{
		ID:        "call-1",
		Name:      "echo",
		Arguments: json.RawMessage(`{"text":"hello"}`),
	})
	assert.False(t, result.Failed())
	assert.Equal(t, "call-1", result.CallID)
	assert.Equal(t, "echo", result.Name)
	assert.Equal(t, "hello", result.Output)
	assert.GreaterOrEqual(t, result.Duration, time.Duration(0))
}

func TestExecuteAssignsCallID(t *testing.T) {
	exec, err := NewExecutor([]Tool{echoTool()})
	require.NoError(t, err)

	result := exec.Execute(context.Background(), Call{
		Name:      "echo",
		Arguments: json.RawMessage(`{"text":"hi"}`),
	})
	assert.NotEmpty(t, result.CallID)
}

func TestExecuteUnknownTool(t *testing.T) {
	exec, err := NewExecutor([]Tool{echoTool()})
	require.NoError(t, err)

	result := exec.Execute(context.Background(), Call{ID: "call-2", Name: "nope"})
	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, "unknown tool")
	assert.Equal(t, "call-2", result.CallID)
	assert.Nil(t, result.Output)
}

func TestExecuteNotCallable(t *testing.T) {
	exec, err := NewExecutor([]Tool{&declOnlyTool{decl: &Declaration{Name: "static"}}})
	require.NoError(t, err)

	result := exec.Execute(context.Background(), Call{Name: "static"})
	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, "not callable")
}

func TestExecuteInvalidArguments(t *testing.T) {
	exec, err := NewExecutor([]Tool{echoTool()})
	require.NoError(t, err)

	// Missing the required "text" property.
	result := exec.Execute(context.Background(), Call{
		Name:      "echo",
		Arguments: json.RawMessage(`{}`),
	})
	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, "invalid arguments")
}

func TestExecuteToolErrorBecomesResult(t *testing.T) {
	failing := &fakeTool{
		decl: &Declaration{Name: "failing"},
		fn: func(_ context.Context, _ []byte) (any, error) {
			return nil, errors.New("backend unavailable")
		},
	}
	exec, err := NewExecutor([]Tool{failing})
	require.NoError(t, err)

	result := exec.Execute(context.Background(), Call{ID: "call-3", Name: "failing"})
	assert.True(t, result.Failed())
	assert.Equal(t, "backend unavailable", result.Error)
	assert.Equal(t, "call-3", result.CallID)
}

func TestExecuteRecoversPanic(t *testing.T) {
	panicking := &fakeTool{
		decl: &Declaration{Name: "panicking"},
		fn: func(_ context.Context, _ []byte) (any, error) {
			panic("boom")
		},
	}
	exec, err := NewExecutor([]Tool{panicking})
	require.NoError(t, err)

	result := exec.Execute(context.Background(), Call{Name: "panicking"})
	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, "panicked")
	assert.Contains(t, result.Error, "boom")
}

func TestExecuteTimeout(t *testing.T) {
	slow := &fakeTool{
		decl: &Declaration{Name: "slow"},
		fn: func(ctx context.Context, _ []byte) (any, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return "done", nil
			}
		},
	}
	exec, err := NewExecutor([]Tool{slow}, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, exec.Timeout())

	result := exec.Execute(context.Background(), Call{Name: "slow"})
	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, "timed out")
}

func TestExecuteAllPreservesOrder(t *testing.T) {
	exec, err := NewExecutor([]Tool{echoTool()})
	require.NoError(t, err)

	results := exec.ExecuteAll(context.Background(), []Call{
		{ID: "a", Name: "echo", Arguments: json.RawMessage(`{"text":"first"}`)},
		{ID: "b", Name: "missing"},
		{ID: "c", Name: "echo", Arguments: json.RawMessage(`{"text":"third"}`)},
	})
	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].Output)
	assert.True(t, results[1].Failed())
	assert.Equal(t, "third", results[2].Output)
	assert.Equal(t, []string{"a", "b", "c"}, []string{results[0].CallID, results[1].CallID, results[2].CallID})
}

func TestDeclarations(t *testing.T) {
	beta := &fakeTool{decl: &Declaration{Name: "beta"}, fn: func(_ context.Context, _ []byte) (any, error) { return nil, nil }}
	exec, err := NewExecutor([]Tool{echoTool(), beta})
	require.NoError(t, err)

	decls := exec.Declarations()
	require.Len(t, decls, 2)
	assert.Equal(t, "beta", decls[0].Name)
	assert.Equal(t, "echo", decls[1].Name)
}
