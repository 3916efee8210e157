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

package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"trpc.group/trpc-go/trpc-graph-go/event"
	itelemetry "trpc.group/trpc-go/trpc-graph-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-graph-go/log"
	"trpc.group/trpc-go/trpc-graph-go/telemetry/trace"
)

const (
	// AuthorGraphExecutor is the author of the graph executor.
	AuthorGraphExecutor = "graph-executor"

	defaultChannelBufferSize = 256
	defaultMaxSteps          = 100
)

// Executor executes a graph with the given initial state.
// The execution model is an iterative step loop: route to the next node,
// invoke it, merge its update through the schema reducers, then persist a
// checkpoint. One node runs per step; there is no recursion.
type Executor struct {
	graph             *Graph
	channelBufferSize int
	maxSteps          int
	checkpointSaver   CheckpointSaver
	checkpointManager *CheckpointManager
}

// ExecutorOption is a function that configures an Executor.
type ExecutorOption func(*ExecutorOptions)

// ExecutorOptions contains configuration options for creating an Executor.
type ExecutorOptions struct {
	// ChannelBufferSize is the buffer size for event channels (default: 256).
	ChannelBufferSize int
	// MaxSteps is the maximum number of steps for graph execution.
	MaxSteps int
	// CheckpointSaver persists checkpoints after every completed node.
	CheckpointSaver CheckpointSaver
}

// WithChannelBufferSize sets the buffer size for event channels.
func WithChannelBufferSize(size int) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.ChannelBufferSize = size
	}
}

// WithMaxSteps sets the maximum number of steps for graph execution.
func WithMaxSteps(maxSteps int) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.MaxSteps = maxSteps
	}
}

// WithCheckpointSaver sets the checkpoint saver used to persist execution
// state. Without a saver, runs are not resumable and interrupts cannot be
// continued.
func WithCheckpointSaver(saver CheckpointSaver) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.CheckpointSaver = saver
	}
}

// NewExecutor creates a new graph executor.
func NewExecutor(graph *Graph, opts ...ExecutorOption) (*Executor, error) {
	if err := graph.validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	var options ExecutorOptions
	options.ChannelBufferSize = defaultChannelBufferSize
	options.MaxSteps = defaultMaxSteps
	// Apply function options.
	for _, opt := range opts {
		opt(&options)
	}
	e := &Executor{
		graph:             graph,
		channelBufferSize: options.ChannelBufferSize,
		maxSteps:          options.MaxSteps,
		checkpointSaver:   options.CheckpointSaver,
	}
	if e.checkpointSaver != nil {
		e.checkpointManager = NewCheckpointManager(e.checkpointSaver)
	}
	return e, nil
}

// ExecuteOption configures a single execution.
type ExecuteOption func(*ExecuteOptions)

// ExecuteOptions contains per-execution configuration.
type ExecuteOptions struct {
	// InvocationID identifies this execution in events and traces.
	InvocationID string
	// CheckpointConfig selects the lineage, namespace and optionally a
	// specific checkpoint to restore before running.
	CheckpointConfig map[string]any
}

// WithInvocationID sets the invocation ID for the execution.
func WithInvocationID(id string) ExecuteOption {
	return func(opts *ExecuteOptions) {
		opts.InvocationID = id
	}
}

// WithCheckpointConfig sets the checkpoint configuration for the execution.
func WithCheckpointConfig(config map[string]any) ExecuteOption {
	return func(opts *ExecuteOptions) {
		opts.CheckpointConfig = config
	}
}

// Execute executes the graph with the given initial state. It returns a
// channel of events terminated by exactly one completed, interrupted or
// error event, after which the channel is closed.
func (e *Executor) Execute(
	ctx context.Context,
	initialState State,
	opts ...ExecuteOption,
) (<-chan *event.Event, error) {
	var options ExecuteOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.InvocationID == "" {
		options.InvocationID = uuid.New().String()
	}
	if initialState == nil {
		initialState = State{}
	}

	eventChan := make(chan *event.Event, e.channelBufferSize)
	go func() {
		defer close(eventChan)
		ctx, span := trace.Tracer.Start(ctx, itelemetry.SpanNameExecuteGraph)
		defer span.End()
		span.SetAttributes(
			attribute.String("trpc.go.graph.invocation_id", options.InvocationID),
			attribute.String("trpc.go.graph.name", e.graph.Name()),
		)

		execCtx := &ExecutionContext{
			Graph:        e.graph,
			EventChan:    eventChan,
			InvocationID: options.InvocationID,
		}
		if err := e.run(ctx, execCtx, initialState, options.CheckpointConfig); err != nil {
			span.SetAttributes(attribute.String("trpc.go.graph.error", err.Error()))
			log.Errorf("graph execution failed: invocation=%s error=%v", options.InvocationID, err)
			errorEvent := event.NewErrorEvent(
				options.InvocationID, AuthorGraphExecutor,
				errorTypeOf(err), err.Error())
			select {
			case eventChan <- errorEvent:
			case <-ctx.Done():
			}
		}
	}()
	return eventChan, nil
}

// runPlan is the prepared starting point of an execution: the working
// state, the node to run first and the step numbering to continue from.
type runPlan struct {
	state         State
	startNode     string
	startStep     int
	parentCkptID  string
	fieldVersions map[string]int64
	// resumeTarget is the interrupted node being re-entered, if any.
	// Staged resume values are cleared once it completes.
	resumeTarget string
}

// run prepares the starting point and drives the step loop.
func (e *Executor) run(
	ctx context.Context,
	execCtx *ExecutionContext,
	initialState State,
	checkpointConfig map[string]any,
) error {
	plan, err := e.prepare(ctx, initialState, checkpointConfig)
	if err != nil {
		return err
	}
	return e.executeLoop(ctx, execCtx, plan, checkpointConfig)
}

// prepare builds the run plan, either from scratch or by restoring the
// lineage's checkpoint state.
func (e *Executor) prepare(
	ctx context.Context,
	initialState State,
	checkpointConfig map[string]any,
) (*runPlan, error) {
	resumeCmd := extractResumeCommand(initialState)

	lineageID := GetLineageID(checkpointConfig)
	if e.checkpointManager != nil && lineageID != "" {
		tuple, err := e.loadCheckpoint(ctx, checkpointConfig)
		if err != nil {
			return nil, err
		}
		if tuple != nil {
			return e.planFromCheckpoint(tuple, initialState, resumeCmd, checkpointConfig)
		}
	}

	// Fresh execution. Resuming requires an existing interrupted checkpoint.
	if resumeCmd != nil {
		return nil, ErrNoPendingInterrupt
	}
	return e.planFresh(initialState)
}

// loadCheckpoint fetches the checkpoint the config points at, or the
// lineage's latest when no specific ID is given.
func (e *Executor) loadCheckpoint(
	ctx context.Context, checkpointConfig map[string]any,
) (*CheckpointTuple, error) {
	if GetCheckpointID(checkpointConfig) != "" {
		tuple, err := e.checkpointManager.GetTuple(ctx, checkpointConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to load checkpoint: %w", err)
		}
		if tuple == nil {
			return nil, ErrCheckpointNotFound
		}
		return tuple, nil
	}
	tuple, err := e.checkpointManager.Latest(
		ctx, GetLineageID(checkpointConfig), GetNamespace(checkpointConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to load latest checkpoint: %w", err)
	}
	return tuple, nil
}

// planFresh validates the caller's initial state against the schema and
// starts at the entry point with step 0.
func (e *Executor) planFresh(initialState State) (*runPlan, error) {
	schema := e.graph.Schema()
	state, err := schema.Apply(schema.ApplyDefaults(State{}), initialState)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(state); err != nil {
		return nil, err
	}
	entryPoint := e.graph.EntryPoint()
	if entryPoint == "" {
		return nil, errors.New("no entry point found")
	}
	return &runPlan{
		state:         state,
		startNode:     entryPoint,
		startStep:     0,
		fieldVersions: make(map[string]int64),
	}, nil
}

// planFromCheckpoint restores state from a stored checkpoint and stages
// resume values when the checkpoint is paused on an interrupt.
func (e *Executor) planFromCheckpoint(
	tuple *CheckpointTuple,
	initialState State,
	resumeCmd *ResumeCommand,
	checkpointConfig map[string]any,
) (*runPlan, error) {
	ckpt := tuple.Checkpoint
	state := make(State, len(ckpt.StateValues))
	maps.Copy(state, ckpt.StateValues)
	state = e.graph.Schema().ApplyDefaults(state)

	plan := &runPlan{
		state:        state,
		parentCkptID: ckpt.ID,
		startStep:    0,
		fieldVersions: func() map[string]int64 {
			versions := make(map[string]int64, len(ckpt.FieldVersions))
			maps.Copy(versions, ckpt.FieldVersions)
			return versions
		}(),
	}
	if tuple.Metadata != nil {
		plan.startStep = tuple.Metadata.Step + 1
	}

	if ckpt.IsInterrupted() {
		// Re-enter the node that paused. Resume values are staged into
		// state so the node's interrupt call yields them instead of
		// pausing again.
		plan.startNode = ckpt.InterruptState.NodeID
		plan.resumeTarget = ckpt.InterruptState.NodeID
		plan.startStep = ckpt.InterruptState.Step + 1
		stageResumeValues(plan.state, resumeCmd, GetResumeMap(checkpointConfig))
		return plan, nil
	}

	if resumeCmd != nil {
		// A resume was requested but nothing is paused.
		return nil, ErrNoPendingInterrupt
	}

	// Continue from where the checkpoint left off.
	if len(ckpt.NextNodes) > 0 {
		plan.startNode = ckpt.NextNodes[0]
	} else {
		plan.startNode = e.graph.EntryPoint()
	}
	if plan.startNode == End {
		// Completed lineage; rerun from the entry point over the stored
		// state only when the caller supplies new input.
		merged, err := e.graph.Schema().Apply(plan.state, initialState)
		if err != nil {
			return nil, err
		}
		plan.state = merged
		plan.startNode = e.graph.EntryPoint()
	}
	return plan, nil
}

// extractResumeCommand pulls a staged resume command out of the caller's
// initial state.
func extractResumeCommand(initialState State) *ResumeCommand {
	cmdVal, ok := initialState[StateKeyCommand]
	if !ok {
		return nil
	}
	delete(initialState, StateKeyCommand)
	switch cmd := cmdVal.(type) {
	case *ResumeCommand:
		return cmd
	case *Command:
		if cmd.Resume != nil || len(cmd.ResumeMap) > 0 {
			return &ResumeCommand{Resume: cmd.Resume, ResumeMap: cmd.ResumeMap}
		}
	}
	return nil
}

// stageResumeValues places resume values where Interrupt() will find them.
func stageResumeValues(state State, resumeCmd *ResumeCommand, cfgResumeMap map[string]any) {
	resumeMap, _ := state[StateKeyResumeMap].(map[string]any)
	if resumeMap == nil {
		resumeMap = make(map[string]any)
	}
	maps.Copy(resumeMap, cfgResumeMap)
	if resumeCmd != nil {
		maps.Copy(resumeMap, resumeCmd.ResumeMap)
		if resumeCmd.Resume != nil {
			state[StateKeyResume] = resumeCmd.Resume
		}
	}
	if len(resumeMap) > 0 {
		state[StateKeyResumeMap] = resumeMap
	}
}

// executeLoop is the iterative step loop.
func (e *Executor) executeLoop(
	ctx context.Context,
	execCtx *ExecutionContext,
	plan *runPlan,
	checkpointConfig map[string]any,
) error {
	state := plan.state
	state[StateKeyExecContext] = execCtx

	currentNodeID := plan.startNode
	step := plan.startStep
	parentCkptID := plan.parentCkptID
	resumeTarget := plan.resumeTarget
	var writeSeq int64
	var nodesRun int

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if currentNodeID == End {
			e.emit(ctx, execCtx, event.NewCompletedEvent(
				execCtx.InvocationID, AuthorGraphExecutor, publicState(state)))
			return nil
		}
		nodesRun++
		if nodesRun > e.maxSteps {
			return fmt.Errorf("maximum execution steps (%d) exceeded", e.maxSteps)
		}

		node, exists := e.graph.Node(currentNodeID)
		if !exists {
			return fmt.Errorf("node %s not found", currentNodeID)
		}
		state[StateKeyCurrentNode] = currentNodeID

		e.emit(ctx, execCtx, event.New(execCtx.InvocationID, AuthorGraphExecutor,
			event.KindNodeStart, event.WithNode(node.ID, node.Name), event.WithStep(step)))

		result, err := e.invokeNode(ctx, execCtx, node, state)
		if err != nil {
			if interruptErr, ok := GetInterruptError(err); ok {
				return e.handleInterrupt(ctx, execCtx, state, interruptErr, node,
					step, parentCkptID, checkpointConfig, plan.fieldVersions)
			}
			return &NodeExecutionError{NodeID: node.ID, Err: err}
		}

		delta, nextOverride, err := e.extractResult(state, result, node.ID)
		if err != nil {
			return err
		}
		if delta != nil {
			merged, err := e.graph.Schema().Apply(state, delta)
			if err != nil {
				return err
			}
			merged[StateKeyExecContext] = execCtx
			state = merged
		}

		e.emit(ctx, execCtx, event.New(execCtx.InvocationID, AuthorGraphExecutor,
			event.KindNodeEnd, event.WithNode(node.ID, node.Name), event.WithStep(step),
			event.WithStateDelta(marshalDelta(delta))))

		nextNodeID := nextOverride
		if nextNodeID == "" {
			nextNodeID, err = e.selectNextNode(ctx, state, node.ID)
			if err != nil {
				return err
			}
		}

		if resumeTarget == node.ID {
			// The interrupted node has completed; staged resume values
			// must not leak into later nodes.
			ClearAllResumeValues(state)
			resumeTarget = ""
		}

		if e.checkpointSaver != nil && GetLineageID(checkpointConfig) != "" {
			ckptID, err := e.putLoopCheckpoint(
				ctx, state, delta, step, nextNodeID, parentCkptID, checkpointConfig,
				plan.fieldVersions, &writeSeq, node.ID)
			if err != nil {
				return fmt.Errorf("failed to store checkpoint: %w", err)
			}
			e.emit(ctx, execCtx, event.New(execCtx.InvocationID, AuthorGraphExecutor,
				event.KindCheckpoint, event.WithNode(node.ID, node.Name), event.WithStep(step),
				event.WithCheckpoint(&event.CheckpointInfo{
					CheckpointID: ckptID,
					Source:       CheckpointSourceLoop,
					Step:         step,
					NextNodes:    []string{nextNodeID},
				})))
			parentCkptID = ckptID
		}

		step++
		currentNodeID = nextNodeID
	}
}

// invokeNode runs a single node function inside a trace span.
func (e *Executor) invokeNode(
	ctx context.Context,
	execCtx *ExecutionContext,
	node *Node,
	state State,
) (any, error) {
	ctx, span := trace.Tracer.Start(ctx, itelemetry.NewExecuteNodeSpanName(node.ID))
	defer span.End()

	span.SetAttributes(
		attribute.String("trpc.go.graph.node_id", node.ID),
		attribute.String("trpc.go.graph.node_name", node.Name),
		attribute.String("trpc.go.graph.node_type", string(node.Type)),
		attribute.String("trpc.go.graph.invocation_id", execCtx.InvocationID),
	)

	if node.Function == nil {
		return nil, nil
	}
	result, err := node.Function(ctx, state)
	if err != nil {
		if !IsInterruptError(err) {
			span.SetAttributes(attribute.String("trpc.go.graph.error", err.Error()))
		}
		return nil, err
	}
	return result, nil
}

// extractResult normalizes a node result into a state delta and an
// optional routing override.
func (e *Executor) extractResult(state State, result any, nodeID string) (State, string, error) {
	switch r := result.(type) {
	case nil:
		return nil, "", nil
	case *Command:
		if r.Resume != nil || len(r.ResumeMap) > 0 {
			stageResumeValues(state, &ResumeCommand{Resume: r.Resume, ResumeMap: r.ResumeMap}, nil)
		}
		if r.GoTo != "" {
			if err := e.validateGoTo(nodeID, r.GoTo); err != nil {
				return nil, "", err
			}
		}
		return r.Update, r.GoTo, nil
	case State:
		return r, "", nil
	default:
		return nil, "", &NodeExecutionError{
			NodeID: nodeID,
			Err:    fmt.Errorf("node function returned invalid result type: %T", result),
		}
	}
}

// validateGoTo rejects dynamic routes to nodes that do not exist.
func (e *Executor) validateGoTo(fromNodeID, target string) error {
	if target == End {
		return nil
	}
	if _, ok := e.graph.Node(target); ok {
		return nil
	}
	allowed := e.graph.NodeIDs()
	sort.Strings(allowed)
	return &RoutingError{NodeID: fromNodeID, Result: target, Allowed: append(allowed, End)}
}

// selectNextNode selects the next node based on edges and conditional logic.
func (e *Executor) selectNextNode(
	ctx context.Context,
	state State,
	currentNodeID string,
) (string, error) {
	// Check for conditional edges first.
	if condEdge, exists := e.graph.ConditionalEdge(currentNodeID); exists {
		conditionResult, err := condEdge.Condition(ctx, state)
		if err != nil {
			return "", fmt.Errorf("conditional edge evaluation failed at node %s: %w", currentNodeID, err)
		}
		// The path map is a closed set; unmapped results never fall
		// through to a default.
		if nextNode, exists := condEdge.PathMap[conditionResult]; exists {
			return nextNode, nil
		}
		allowed := make([]string, 0, len(condEdge.PathMap))
		for label := range condEdge.PathMap {
			allowed = append(allowed, label)
		}
		sort.Strings(allowed)
		return "", &RoutingError{NodeID: currentNodeID, Result: conditionResult, Allowed: allowed}
	}
	// Check for regular edges.
	edges := e.graph.Edges(currentNodeID)
	if len(edges) == 0 {
		// No outgoing edges, assume we should go to End.
		return End, nil
	}
	return edges[0].To, nil
}

// handleInterrupt persists a paused checkpoint and terminates the stream
// with an interrupted event.
func (e *Executor) handleInterrupt(
	ctx context.Context,
	execCtx *ExecutionContext,
	state State,
	interruptErr *InterruptError,
	node *Node,
	step int,
	parentCkptID string,
	checkpointConfig map[string]any,
	fieldVersions map[string]int64,
) error {
	interruptErr.NodeID = node.ID
	interruptErr.TaskID = node.ID
	interruptErr.Step = step

	var ckptID string
	if e.checkpointSaver != nil && GetLineageID(checkpointConfig) != "" {
		versions := make(map[string]int64, len(fieldVersions))
		maps.Copy(versions, fieldVersions)
		ckpt := NewCheckpoint(snapshotStateValues(state), versions)
		ckpt.ParentCheckpointID = parentCkptID
		ckpt.NextNodes = []string{node.ID}
		ckpt.SetInterruptState(node.ID, node.ID, interruptErr.Value, step, []string{node.ID})
		metadata := NewCheckpointMetadata(CheckpointSourceInterrupt, step)
		cfg := CreateCheckpointConfig(
			GetLineageID(checkpointConfig), "", GetNamespace(checkpointConfig))
		if _, err := e.checkpointSaver.Put(ctx, PutRequest{
			Config:     cfg,
			Checkpoint: ckpt,
			Metadata:   metadata,
		}); err != nil {
			return fmt.Errorf("failed to store interrupt checkpoint: %w", err)
		}
		ckptID = ckpt.ID
		e.emit(ctx, execCtx, event.New(execCtx.InvocationID, AuthorGraphExecutor,
			event.KindCheckpoint, event.WithNode(node.ID, node.Name), event.WithStep(step),
			event.WithCheckpoint(&event.CheckpointInfo{
				CheckpointID: ckptID,
				Source:       CheckpointSourceInterrupt,
				Step:         step,
				NextNodes:    []string{node.ID},
			})))
	}

	log.Infof("graph interrupted: invocation=%s node=%s step=%d",
		execCtx.InvocationID, node.ID, step)
	e.emit(ctx, execCtx, event.NewInterruptedEvent(
		execCtx.InvocationID, AuthorGraphExecutor, &event.InterruptInfo{
			Payload:      interruptErr.Value,
			NodeID:       node.ID,
			TaskID:       interruptErr.TaskID,
			CheckpointID: ckptID,
		}))
	return nil
}

// putLoopCheckpoint stores the post-node state as a loop checkpoint along
// with the per-field pending writes the node produced.
func (e *Executor) putLoopCheckpoint(
	ctx context.Context,
	state State,
	delta State,
	step int,
	nextNodeID string,
	parentCkptID string,
	checkpointConfig map[string]any,
	fieldVersions map[string]int64,
	writeSeq *int64,
	taskID string,
) (string, error) {
	updatedFields := bumpFieldVersions(fieldVersions, state, delta)

	versions := make(map[string]int64, len(fieldVersions))
	maps.Copy(versions, fieldVersions)

	ckpt := NewCheckpoint(snapshotStateValues(state), versions)
	ckpt.ParentCheckpointID = parentCkptID
	ckpt.UpdatedFields = updatedFields
	ckpt.NextNodes = []string{nextNodeID}

	writes := make([]PendingWrite, 0, len(delta))
	for _, key := range updatedFields {
		if _, inDelta := delta[key]; !inDelta {
			continue
		}
		*writeSeq++
		writes = append(writes, PendingWrite{
			TaskID:   taskID,
			Key:      key,
			Value:    deepCopyAny(delta[key]),
			Sequence: *writeSeq,
		})
	}

	cfg := CreateCheckpointConfig(
		GetLineageID(checkpointConfig), "", GetNamespace(checkpointConfig))
	_, err := e.checkpointSaver.PutFull(ctx, PutFullRequest{
		Config:        cfg,
		Checkpoint:    ckpt,
		Metadata:      NewCheckpointMetadata(CheckpointSourceLoop, step),
		NewVersions:   versions,
		PendingWrites: writes,
	})
	if err != nil {
		return "", err
	}
	return ckpt.ID, nil
}

// bumpFieldVersions advances the version of every field the delta touched
// and registers fields seen for the first time. It returns the sorted list
// of updated fields.
func bumpFieldVersions(fieldVersions map[string]int64, state State, delta State) []string {
	updated := make(map[string]bool)
	for key := range state {
		if isInternalStateKey(key) {
			continue
		}
		if _, seen := fieldVersions[key]; !seen {
			fieldVersions[key] = DefaultFieldVersion
			updated[key] = true
		}
	}
	for key := range delta {
		if isInternalStateKey(key) {
			continue
		}
		if !updated[key] {
			fieldVersions[key]++
			updated[key] = true
		}
	}
	result := make([]string, 0, len(updated))
	for key := range updated {
		result = append(result, key)
	}
	sort.Strings(result)
	return result
}

// snapshotStateValues deep-copies state for persistence, excluding values
// that cannot or must not be serialized. Interrupt bookkeeping is kept so
// a resumed node sees its previously consumed interrupt values.
func snapshotStateValues(state State) map[string]any {
	values := make(map[string]any, len(state))
	for k, v := range state {
		switch k {
		case StateKeyExecContext, StateKeyCommand, StateKeyCurrentNode:
			continue
		}
		values[k] = deepCopyAny(v)
	}
	return values
}

// marshalDelta serializes a state delta for node_end events. Values that
// fail to serialize are skipped.
func marshalDelta(delta State) map[string][]byte {
	if len(delta) == 0 {
		return nil
	}
	result := make(map[string][]byte, len(delta))
	for k, v := range delta {
		if isInternalStateKey(k) {
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			continue
		}
		result[k] = data
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// emit sends an event without blocking past context cancellation.
func (e *Executor) emit(ctx context.Context, execCtx *ExecutionContext, ev *event.Event) {
	if execCtx.EventChan == nil {
		return
	}
	select {
	case execCtx.EventChan <- ev:
	case <-ctx.Done():
	case <-time.After(30 * time.Second):
		log.Warnf("event emission timed out: invocation=%s kind=%s",
			execCtx.InvocationID, ev.Kind)
	}
}

// errorTypeOf maps an execution error to its event error type.
func errorTypeOf(err error) string {
	switch {
	case errors.Is(err, ErrNoPendingInterrupt):
		return ErrorTypeNoPendingInterrupt
	default:
	}
	if _, ok := AsSchemaError(err); ok {
		return ErrorTypeSchema
	}
	if _, ok := AsRoutingError(err); ok {
		return ErrorTypeRouting
	}
	if _, ok := AsNodeExecutionError(err); ok {
		return ErrorTypeNodeExecution
	}
	return ErrorTypeGraphExecution
}
