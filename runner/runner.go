//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package runner provides a thread-oriented API over the graph executor.
// Each thread maps to a checkpoint lineage: Run starts or continues a thread,
// Resume feeds a value into its pending interrupt, RunFrom branches off an
// earlier checkpoint and History lists the thread's checkpoints newest first.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-graph-go/event"
	"trpc.group/trpc-go/trpc-graph-go/graph"
)

// DefaultPoolSize is the default bound on concurrently executing threads.
const DefaultPoolSize = 64

// streamBufferSize is the buffer of channels returned by Stream.
const streamBufferSize = 64

// authorRunner marks events emitted by the runner itself.
const authorRunner = "graph-runner"

// ErrRunnerClosed is returned for operations on a closed runner.
var ErrRunnerClosed = errors.New("runner is closed")

// Status classifies the outcome of a run.
type Status string

const (
	// StatusCompleted means the graph reached End.
	StatusCompleted Status = "completed"
	// StatusInterrupted means a node paused the run waiting for a resume value.
	StatusInterrupted Status = "interrupted"
	// StatusFailed means the run stopped with an error.
	StatusFailed Status = "failed"
)

// Interrupt describes a paused run.
type Interrupt struct {
	// Payload is the value the interrupting node exposed, typically a prompt.
	Payload any `json:"payload"`
	// NodeID is the node that paused; resuming re-enters it.
	NodeID string `json:"nodeId"`
	// TaskID keys resume values when resuming with a map.
	TaskID string `json:"taskId,omitempty"`
	// CheckpointID is the interrupt checkpoint, empty without a saver.
	CheckpointID string `json:"checkpointId,omitempty"`
}

// Result is the outcome of Run, Resume or RunFrom.
type Result struct {
	// Status is completed, interrupted or failed.
	Status Status `json:"status"`
	// FinalState is the cleaned final state, set when Status is completed.
	FinalState graph.State `json:"finalState,omitempty"`
	// Interrupt is set when Status is interrupted.
	Interrupt *Interrupt `json:"interrupt,omitempty"`
	// Err is set when Status is failed.
	Err error `json:"-"`
}

// RunError is a failure reported by the execution event stream. It keeps the
// stable error type alongside the message.
type RunError struct {
	Type    string
	Message string
}

// Error implements the error interface.
func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Option is a function that configures a Runner.
type Option func(*options)

// options holds the configuration options for a Runner.
type options struct {
	saver        graph.CheckpointSaver
	executorOpts []graph.ExecutorOption
	poolSize     int
}

// WithCheckpointSaver sets the saver backing thread persistence. Without a
// saver runs still execute but nothing is checkpointed, and Resume, RunFrom
// and History report the saver as not configured.
func WithCheckpointSaver(saver graph.CheckpointSaver) Option {
	return func(opts *options) {
		opts.saver = saver
	}
}

// WithExecutorOptions forwards options to the underlying graph executor.
func WithExecutorOptions(execOpts ...graph.ExecutorOption) Option {
	return func(opts *options) {
		opts.executorOpts = append(opts.executorOpts, execOpts...)
	}
}

// WithPoolSize bounds the number of concurrently executing threads.
// Non-positive values keep the default.
func WithPoolSize(size int) Option {
	return func(opts *options) {
		if size > 0 {
			opts.poolSize = size
		}
	}
}

// Runner executes a compiled graph on named threads. Steps of one thread are
// serialized by a per-thread mutex held only while actively stepping, never
// across an interrupt pause. Distinct threads run concurrently on a bounded
// goroutine pool. A Runner is safe for concurrent use.
type Runner struct {
	executor *graph.Executor
	saver    graph.CheckpointSaver
	manager  *graph.CheckpointManager
	pool     *ants.Pool

	mu      sync.Mutex
	threads map[string]*sync.Mutex
	closed  bool
}

// New creates a runner for the given compiled graph.
func New(g *graph.Graph, opts ...Option) (*Runner, error) {
	options := options{poolSize: DefaultPoolSize}
	for _, opt := range opts {
		opt(&options)
	}

	execOpts := options.executorOpts
	if options.saver != nil {
		execOpts = append(execOpts, graph.WithCheckpointSaver(options.saver))
	}
	executor, err := graph.NewExecutor(g, execOpts...)
	if err != nil {
		return nil, err
	}
	pool, err := ants.NewPool(options.poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	r := &Runner{
		executor: executor,
		saver:    options.saver,
		pool:     pool,
		threads:  make(map[string]*sync.Mutex),
	}
	if options.saver != nil {
		r.manager = graph.NewCheckpointManager(options.saver)
	}
	return r, nil
}

// Run executes the graph on the given thread, blocking until the run
// completes, pauses on an interrupt or fails. With a saver configured the
// thread continues from its latest checkpoint and the input is merged into
// the restored state.
func (r *Runner) Run(ctx context.Context, threadID string, input graph.State) (*Result, error) {
	return r.step(ctx, threadID, input, "")
}

// Resume feeds a value into the thread's pending interrupt and re-enters the
// interrupted node. Returns graph.ErrNoPendingInterrupt when the thread has
// no interrupt to resume.
func (r *Runner) Resume(ctx context.Context, threadID string, value any) (*Result, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread id must not be empty")
	}
	if r.manager == nil {
		return nil, fmt.Errorf("checkpoint saver is not configured")
	}
	tuple, err := r.manager.Latest(ctx, threadID, "")
	if err != nil {
		return nil, err
	}
	if tuple == nil || !tuple.Checkpoint.IsInterrupted() {
		return nil, graph.ErrNoPendingInterrupt
	}
	input := graph.State{
		graph.StateKeyCommand: graph.NewResumeCommand().WithResume(value),
	}
	return r.step(ctx, threadID, input, "")
}

// RunFrom branches the thread off an earlier checkpoint: execution restarts
// from the checkpoint's recorded next nodes and new checkpoints chain to it,
// leaving the existing history untouched.
func (r *Runner) RunFrom(
	ctx context.Context, threadID, checkpointID string, input graph.State,
) (*Result, error) {
	if checkpointID == "" {
		return nil, fmt.Errorf("checkpoint id must not be empty")
	}
	if r.saver == nil {
		return nil, fmt.Errorf("checkpoint saver is not configured")
	}
	return r.step(ctx, threadID, input, checkpointID)
}

// Stream executes the graph on the given thread and returns the live event
// stream. The channel is closed after the terminal completed, interrupted or
// error event; the thread stays locked until then.
func (r *Runner) Stream(
	ctx context.Context, threadID string, input graph.State,
) (<-chan *event.Event, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread id must not be empty")
	}
	lock, err := r.threadLock(threadID)
	if err != nil {
		return nil, err
	}

	out := make(chan *event.Event, streamBufferSize)
	submitErr := r.pool.Submit(func() {
		lock.Lock()
		defer lock.Unlock()
		defer close(out)
		events, err := r.executor.Execute(ctx, input, r.executeOptions(threadID, "")...)
		if err != nil {
			out <- event.NewErrorEvent(uuid.New().String(), authorRunner,
				graph.ErrorTypeGraphExecution, err.Error())
			return
		}
		for ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	})
	if submitErr != nil {
		return nil, fmt.Errorf("failed to submit stream task: %w", submitErr)
	}
	return out, nil
}

// Close releases the worker pool. Subsequent operations fail with
// ErrRunnerClosed; runs already in flight finish normally.
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.pool.Release()
	return nil
}

type stepOutcome struct {
	result *Result
	err    error
}

// step runs one thread step on the pool and waits for its outcome.
func (r *Runner) step(
	ctx context.Context, threadID string, input graph.State, checkpointID string,
) (*Result, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread id must not be empty")
	}
	lock, err := r.threadLock(threadID)
	if err != nil {
		return nil, err
	}

	outCh := make(chan stepOutcome, 1)
	submitErr := r.pool.Submit(func() {
		lock.Lock()
		defer lock.Unlock()
		events, err := r.executor.Execute(ctx, input, r.executeOptions(threadID, checkpointID)...)
		if err != nil {
			outCh <- stepOutcome{err: err}
			return
		}
		outCh <- stepOutcome{result: collectResult(events)}
	})
	if submitErr != nil {
		return nil, fmt.Errorf("failed to submit run task: %w", submitErr)
	}

	select {
	case out := <-outCh:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// executeOptions builds the checkpoint configuration for a thread step.
func (r *Runner) executeOptions(threadID, checkpointID string) []graph.ExecuteOption {
	if r.saver == nil {
		return nil
	}
	return []graph.ExecuteOption{
		graph.WithCheckpointConfig(graph.CreateCheckpointConfig(threadID, checkpointID, "")),
	}
}

// threadLock returns the mutex serializing steps of one thread.
func (r *Runner) threadLock(threadID string) (*sync.Mutex, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRunnerClosed
	}
	lock, ok := r.threads[threadID]
	if !ok {
		lock = &sync.Mutex{}
		r.threads[threadID] = lock
	}
	return lock, nil
}

// collectResult drains the event stream and folds the terminal event into a
// Result.
func collectResult(events <-chan *event.Event) *Result {
	var terminal *event.Event
	for ev := range events {
		if ev.Done {
			terminal = ev
		}
	}
	if terminal == nil {
		return &Result{
			Status: StatusFailed,
			Err:    fmt.Errorf("event stream closed without a terminal event"),
		}
	}
	switch terminal.Kind {
	case event.KindCompleted:
		return &Result{Status: StatusCompleted, FinalState: graph.State(terminal.FinalState)}
	case event.KindInterrupted:
		result := &Result{Status: StatusInterrupted, Interrupt: &Interrupt{}}
		if terminal.Interrupt != nil {
			result.Interrupt = &Interrupt{
				Payload:      terminal.Interrupt.Payload,
				NodeID:       terminal.Interrupt.NodeID,
				TaskID:       terminal.Interrupt.TaskID,
				CheckpointID: terminal.Interrupt.CheckpointID,
			}
		}
		return result
	default:
		return &Result{Status: StatusFailed, Err: errorFromEvent(terminal)}
	}
}

// errorFromEvent rebuilds a typed error from a terminal error event.
func errorFromEvent(ev *event.Event) error {
	if ev.Error == nil {
		return fmt.Errorf("graph execution failed")
	}
	if ev.Error.Type == graph.ErrorTypeNoPendingInterrupt {
		return graph.ErrNoPendingInterrupt
	}
	return &RunError{Type: ev.Error.Type, Message: ev.Error.Message}
}
