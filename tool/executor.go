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
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	itelemetry "trpc.group/trpc-go/trpc-graph-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-graph-go/log"
	"trpc.group/trpc-go/trpc-graph-go/telemetry/trace"
)

// DefaultTimeout bounds a single tool call when no timeout option is given.
const DefaultTimeout = 30 * time.Second

// Call is a request to invoke a named tool with JSON-encoded arguments.
// The ID correlates the call with its result across logs and events; when
// empty the executor assigns one.
type Call struct {
	// ID is the unique identifier of this call.
	ID string `json:"id,omitempty"`
	// Name is the name of the tool to invoke.
	Name string `json:"name"`
	// Arguments holds the JSON-encoded arguments for the tool.
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Result is the outcome of a single tool call. Failures are carried in the
// Error field rather than returned as Go errors: a failing tool call is data
// for the graph to react to, not a reason to abort execution.
type Result struct {
	// CallID matches the ID of the originating call.
	CallID string `json:"call_id"`
	// Name is the name of the tool that was invoked.
	Name string `json:"name"`
	// Output is the tool's return value on success.
	Output any `json:"output,omitempty"`
	// Error describes the failure when the call did not succeed.
	Error string `json:"error,omitempty"`
	// Duration is the wall time spent on the call.
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the call produced an error instead of an output.
func (r Result) Failed() bool {
	return r.Error != ""
}

// Executor runs tool calls against a fixed set of registered tools.
// The tool set is immutable after construction, so an Executor is safe for
// concurrent use by multiple goroutines.
type Executor struct {
	tools   map[string]Tool
	timeout time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTimeout sets the per-call timeout. Non-positive values keep the default.
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// NewExecutor creates an executor over the given tools.
// Every tool must carry a declaration with a unique, non-empty name.
func NewExecutor(tools []Tool, opts ...ExecutorOption) (*Executor, error) {
	e := &Executor{
		tools:   make(map[string]Tool, len(tools)),
		timeout: DefaultTimeout,
	}
	for _, t := range tools {
		if t == nil {
			return nil, fmt.Errorf("tool must not be nil")
		}
		decl := t.Declaration()
		if decl == nil || decl.Name == "" {
			return nil, fmt.Errorf("tool declaration must have a name")
		}
		if _, exists := e.tools[decl.Name]; exists {
			return nil, fmt.Errorf("duplicate tool name: %s", decl.Name)
		}
		e.tools[decl.Name] = t
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Lookup returns the registered tool with the given name.
func (e *Executor) Lookup(name string) (Tool, bool) {
	t, ok := e.tools[name]
	return t, ok
}

// Declarations returns the declarations of all registered tools, sorted by name.
func (e *Executor) Declarations() []*Declaration {
	decls := make([]*Declaration, 0, len(e.tools))
	for _, t := range e.tools {
		decls = append(decls, t.Declaration())
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })
	return decls
}

// Timeout returns the per-call timeout.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Execute runs a single tool call and always returns a result: unknown tools,
// invalid arguments, tool errors, panics and timeouts all surface as failed
// results carrying the same call ID, never as panics or lost calls.
func (e *Executor) Execute(ctx context.Context, call Call) Result {
	if call.ID == "" {
		call.ID = uuid.New().String()
	}
	start := time.Now()

	ctx, span := trace.Tracer.Start(ctx, itelemetry.NewExecuteToolSpanName(call.Name))
	defer span.End()

	log.Debugf("Executing tool %s, call_id: %s", call.Name, call.ID)
	result := e.execute(ctx, call)
	result.Duration = time.Since(start)
	itelemetry.TraceToolCall(span, call.Name, call.ID, call.Arguments, result.Output, result.Error)
	if result.Failed() {
		log.Errorf("Tool %s failed, call_id: %s, error: %s", call.Name, call.ID, result.Error)
	} else {
		log.Debugf("Tool %s completed, call_id: %s, duration: %s", call.Name, call.ID, result.Duration)
	}
	return result
}

// ExecuteAll runs the calls sequentially and returns one result per call, in order.
func (e *Executor) ExecuteAll(ctx context.Context, calls []Call) []Result {
	results := make([]Result, 0, len(calls))
	for _, call := range calls {
		results = append(results, e.Execute(ctx, call))
	}
	return results
}

func (e *Executor) execute(ctx context.Context, call Call) Result {
	result := Result{CallID: call.ID, Name: call.Name}

	t, ok := e.tools[call.Name]
	if !ok {
		result.Error = fmt.Sprintf("unknown tool: %s", call.Name)
		return result
	}
	callable, ok := t.(CallableTool)
	if !ok {
		result.Error = fmt.Sprintf("tool %s is not callable", call.Name)
		return result
	}

	args := call.Arguments
	if len(args) == 0 {
		args = []byte("{}")
	}
	if err := ValidateArguments(t.Declaration().InputSchema, args); err != nil {
		result.Error = fmt.Sprintf("invalid arguments for tool %s: %v", call.Name, err)
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		output any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		output, err := callable.Call(ctx, args)
		done <- outcome{output: output, err: err}
	}()

	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			result.Error = fmt.Sprintf("tool %s timed out after %s", call.Name, e.timeout)
		} else {
			result.Error = fmt.Sprintf("tool %s canceled: %v", call.Name, ctx.Err())
		}
	case o := <-done:
		if o.err != nil {
			result.Error = o.err.Error()
		} else {
			result.Output = o.output
		}
	}
	return result
}
