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
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-graph-go/event"
)

// SubgraphResult carries the outcome of a nested graph execution to the
// output mapper.
type SubgraphResult struct {
	// FinalState is the child graph's final state, internal keys stripped.
	FinalState State
	// RawStateDelta accumulates the serialized per-node deltas the child
	// emitted, last write per key.
	RawStateDelta map[string][]byte
}

// SubgraphInputMapper builds the child graph's input state from the parent
// state.
type SubgraphInputMapper func(parent State) State

// SubgraphOutputMapper converts the child graph's result into a state delta
// for the parent graph. Returning nil applies no update.
type SubgraphOutputMapper func(parent State, result SubgraphResult) State

type subgraphOptions struct {
	inputMapper  SubgraphInputMapper
	outputMapper SubgraphOutputMapper
	executorOpts []ExecutorOption
}

// SubgraphOption configures a subgraph node.
type SubgraphOption func(*subgraphOptions)

// WithSubgraphInputMapper overrides how the parent state is projected into
// the child graph's input.
func WithSubgraphInputMapper(mapper SubgraphInputMapper) SubgraphOption {
	return func(o *subgraphOptions) {
		o.inputMapper = mapper
	}
}

// WithSubgraphOutputMapper overrides how the child graph's final state is
// folded back into the parent state.
func WithSubgraphOutputMapper(mapper SubgraphOutputMapper) SubgraphOption {
	return func(o *subgraphOptions) {
		o.outputMapper = mapper
	}
}

// WithSubgraphExecutorOptions sets options for the executor that runs the
// child graph, e.g. a step limit.
func WithSubgraphExecutorOptions(opts ...ExecutorOption) SubgraphOption {
	return func(o *subgraphOptions) {
		o.executorOpts = append(o.executorOpts, opts...)
	}
}

// NewSubgraphNodeFunc creates a node function that runs a compiled graph as
// a nested workflow. The child's events are forwarded into the parent's
// stream, minus the child's own terminal events. When the child interrupts,
// the interrupt propagates to the parent and the whole subgraph node is
// re-entered on resume; interrupt bookkeeping is shared with the child so
// already-answered interrupts replay their recorded values.
func NewSubgraphNodeFunc(subgraph *Graph, opts ...SubgraphOption) NodeFunc {
	options := &subgraphOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.inputMapper == nil {
		options.inputMapper = defaultSubgraphInput(subgraph)
	}
	if options.outputMapper == nil {
		options.outputMapper = defaultSubgraphOutput(subgraph)
	}

	exec, execErr := NewExecutor(subgraph, options.executorOpts...)

	return func(ctx context.Context, state State) (any, error) {
		if execErr != nil {
			return nil, fmt.Errorf("subgraph executor: %w", execErr)
		}
		invocationID, execCtx := extractExecutionContext(state)
		nodeID, _ := state[StateKeyCurrentNode].(string)

		// Share the used-interrupt map with the child so a resumed child run
		// replays earlier interrupts from the record instead of consuming
		// fresh resume values.
		if _, ok := state[StateKeyUsedInterrupts].(map[string]any); !ok {
			state[StateKeyUsedInterrupts] = make(map[string]any)
		}

		childInvocationID := uuid.New().String()
		if invocationID != "" && nodeID != "" {
			childInvocationID = fmt.Sprintf("%s/%s", invocationID, nodeID)
		}

		events, err := exec.Execute(ctx, options.inputMapper(state),
			WithInvocationID(childInvocationID))
		if err != nil {
			return nil, err
		}

		result := SubgraphResult{RawStateDelta: make(map[string][]byte)}
		var interruptInfo *event.InterruptInfo
		var failure *event.ErrorInfo
		for evt := range events {
			switch evt.Kind {
			case event.KindCompleted:
				result.FinalState = State(evt.FinalState)
			case event.KindInterrupted:
				if evt.Interrupt != nil {
					info := *evt.Interrupt
					interruptInfo = &info
				}
			case event.KindError:
				if evt.Error != nil {
					info := *evt.Error
					failure = &info
				}
			default:
				for key, value := range evt.StateDelta {
					result.RawStateDelta[key] = value
				}
				execCtx.EmitEvent(ctx, evt)
			}
		}

		if interruptInfo != nil {
			interruptErr := NewInterruptError(interruptInfo.Payload)
			interruptErr.NodeID = interruptInfo.NodeID
			interruptErr.TaskID = interruptInfo.TaskID
			if nodeID != "" {
				interruptErr.Path = []string{nodeID, interruptInfo.NodeID}
			}
			return nil, interruptErr
		}
		if failure != nil {
			return nil, fmt.Errorf("subgraph failed: %s: %s", failure.Type, failure.Message)
		}
		if result.FinalState == nil {
			return nil, fmt.Errorf("subgraph terminated without a final state")
		}
		return options.outputMapper(state, result), nil
	}
}

// defaultSubgraphInput projects the parent state onto the child's declared
// fields and passes resume bookkeeping through so nested interrupts can be
// answered.
func defaultSubgraphInput(subgraph *Graph) SubgraphInputMapper {
	schema := subgraph.Schema()
	return func(parent State) State {
		child := State{}
		for _, name := range schema.FieldNames() {
			if value, ok := parent[name]; ok {
				child[name] = value
			}
		}
		for _, key := range []string{StateKeyResume, StateKeyResumeMap, StateKeyUsedInterrupts} {
			if value, ok := parent[key]; ok {
				child[key] = value
			}
		}
		return child
	}
}

// defaultSubgraphOutput computes a parent delta from the child's final
// state. Fields with an append-style reducer contribute only the elements
// the child added, so applying the delta through the parent's reducer does
// not duplicate what the parent already holds. Other fields are replaced
// when their value changed.
func defaultSubgraphOutput(subgraph *Graph) SubgraphOutputMapper {
	schema := subgraph.Schema()
	return func(parent State, result SubgraphResult) State {
		delta := State{}
		for _, name := range schema.FieldNames() {
			field, ok := schema.Field(name)
			if !ok {
				continue
			}
			finalValue, ok := result.FinalState[name]
			if !ok {
				continue
			}
			parentValue, hasParent := parent[name]
			if isAppendReducer(field.Reducer) {
				if suffix, handled := sliceSuffix(parentValue, finalValue, hasParent); handled {
					if suffix != nil {
						delta[name] = suffix
					}
					continue
				}
			}
			if hasParent && reflect.DeepEqual(parentValue, finalValue) {
				continue
			}
			delta[name] = finalValue
		}
		if len(delta) == 0 {
			return nil
		}
		return delta
	}
}

// isAppendReducer reports whether the reducer is one of the built-in
// append-style reducers.
func isAppendReducer(reducer StateReducer) bool {
	if reducer == nil {
		return false
	}
	ptr := reflect.ValueOf(reducer).Pointer()
	return ptr == reflect.ValueOf(AppendReducer).Pointer() ||
		ptr == reflect.ValueOf(StringSliceReducer).Pointer() ||
		ptr == reflect.ValueOf(MessageReducer).Pointer()
}

// sliceSuffix returns the elements of final beyond the base prefix. The
// second return value reports whether the prefix relationship held; when it
// did and nothing was appended, the suffix is nil.
func sliceSuffix(baseValue, finalValue any, hasBase bool) (any, bool) {
	fv := reflect.ValueOf(finalValue)
	if !fv.IsValid() || fv.Kind() != reflect.Slice {
		return nil, false
	}
	if !hasBase || baseValue == nil {
		if fv.Len() == 0 {
			return nil, true
		}
		return finalValue, true
	}
	bv := reflect.ValueOf(baseValue)
	if bv.Kind() != reflect.Slice || bv.Type() != fv.Type() || bv.Len() > fv.Len() {
		return nil, false
	}
	if !reflect.DeepEqual(bv.Interface(), fv.Slice(0, bv.Len()).Interface()) {
		return nil, false
	}
	if fv.Len() == bv.Len() {
		return nil, true
	}
	return fv.Slice(bv.Len(), fv.Len()).Interface(), true
}
