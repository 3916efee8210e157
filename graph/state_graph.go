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
	"errors"
	"fmt"
	"reflect"

	"trpc.group/trpc-go/trpc-graph-go/tool"
)

// StateGraph provides a fluent interface for building graphs.
// This is the primary public API for creating executable graphs.
//
// StateGraph provides:
//   - Type-safe state management with schemas and reducers
//   - Conditional routing and dynamic node execution
//   - Command support for combined state updates and routing
//
// Example usage:
//
//	schema := NewStateSchema().AddField("counter", StateField{...})
//	graph, err := NewStateGraph(schema).
//	  AddNode("increment", incrementFunc).
//	  SetEntryPoint("increment").
//	  SetFinishPoint("increment").
//	  Compile()
//
// The compiled Graph can then be executed with NewExecutor(graph).
type StateGraph struct {
	graph *Graph
	// errs collects builder mistakes (duplicate node IDs, dangling edges)
	// so chained calls stay fluent; Compile surfaces them.
	errs []error
}

// NewStateGraph creates a new graph builder with the given state schema.
func NewStateGraph(schema *StateSchema) *StateGraph {
	return &StateGraph{
		graph: New(schema),
	}
}

// recordErr keeps a builder error for Compile to report.
func (sg *StateGraph) recordErr(err error) {
	if err != nil {
		sg.errs = append(sg.errs, err)
	}
}

// Option is a function that configures a Node.
type Option func(*Node)

// WithName sets the name of the node.
func WithName(name string) Option {
	return func(node *Node) {
		node.Name = name
	}
}

// WithDescription sets the description of the node.
func WithDescription(description string) Option {
	return func(node *Node) {
		node.Description = description
	}
}

// WithNodeType sets the node type used for visualization and event metadata.
func WithNodeType(nodeType NodeType) Option {
	return func(node *Node) {
		node.Type = nodeType
	}
}

// WithDestinations declares the nodes a dynamically routing node may jump
// to via Command.GoTo. Keys are target node IDs, values are optional
// labels shown in visualizations.
func WithDestinations(destinations map[string]string) Option {
	return func(node *Node) {
		node.destinations = destinations
	}
}

// SetName sets the graph name shown in visualizations and debug surfaces.
func (sg *StateGraph) SetName(name string) *StateGraph {
	sg.graph.mu.Lock()
	defer sg.graph.mu.Unlock()
	sg.graph.name = name
	return sg
}

// SetDescription sets the graph description.
func (sg *StateGraph) SetDescription(description string) *StateGraph {
	sg.graph.mu.Lock()
	defer sg.graph.mu.Unlock()
	sg.graph.description = description
	return sg
}

// AddNode adds a node with the given ID and function.
// The name and description of the node can be set with the options.
func (sg *StateGraph) AddNode(id string, function NodeFunc, opts ...Option) *StateGraph {
	node := &Node{
		ID:       id,
		Name:     id,
		Function: function,
		Type:     NodeTypeFunction,
	}
	for _, opt := range opts {
		opt(node)
	}
	sg.recordErr(sg.graph.addNode(node))
	return sg
}

// AddToolsNode adds a node that executes the tool calls pending in state
// through the given tool executor.
func (sg *StateGraph) AddToolsNode(
	id string,
	executor *tool.Executor,
	opts ...Option,
) *StateGraph {
	opts = append([]Option{WithNodeType(NodeTypeTool)}, opts...)
	sg.AddNode(id, NewToolsNodeFunc(executor), opts...)
	return sg
}

// AddSubgraphNode adds a node that runs a compiled graph as a nested
// workflow.
func (sg *StateGraph) AddSubgraphNode(
	id string,
	subgraph *Graph,
	opts ...Option,
) *StateGraph {
	nodeOpts := []Option{WithNodeType(NodeTypeSubgraph)}
	nodeOpts = append(nodeOpts, opts...)
	sg.AddNode(id, NewSubgraphNodeFunc(subgraph), nodeOpts...)
	return sg
}

// AddEdge adds a normal edge between two nodes.
func (sg *StateGraph) AddEdge(from, to string) *StateGraph {
	edge := &Edge{
		From: from,
		To:   to,
	}
	sg.recordErr(sg.graph.addEdge(edge))
	return sg
}

// AddConditionalEdges adds conditional routing from a node.
func (sg *StateGraph) AddConditionalEdges(
	from string,
	condition ConditionalFunc,
	pathMap map[string]string,
) *StateGraph {
	condEdge := &ConditionalEdge{
		From:      from,
		Condition: condition,
		PathMap:   pathMap,
	}
	sg.recordErr(sg.graph.addConditionalEdge(condEdge))
	return sg
}

// AddToolsConditionalEdges adds conditional routing from a node to a tools
// node. If the state has pending tool calls, route to the tools node.
// Otherwise, route to the fallback node.
func (sg *StateGraph) AddToolsConditionalEdges(
	fromNode string,
	toToolsNode string,
	fallbackNode string,
) *StateGraph {
	condition := func(ctx context.Context, state State) (string, error) {
		if calls, ok := state[StateKeyToolCalls].([]tool.Call); ok && len(calls) > 0 {
			return toToolsNode, nil
		}
		return fallbackNode, nil
	}
	condEdge := &ConditionalEdge{
		From:      fromNode,
		Condition: condition,
		PathMap: map[string]string{
			toToolsNode:  toToolsNode,
			fallbackNode: fallbackNode,
		},
	}
	sg.recordErr(sg.graph.addConditionalEdge(condEdge))
	return sg
}

// SetEntryPoint sets the entry point of the graph.
// This is equivalent to addEdge(Start, nodeId).
func (sg *StateGraph) SetEntryPoint(nodeID string) *StateGraph {
	sg.recordErr(sg.graph.setEntryPoint(nodeID))
	// Also add an edge from Start to make it explicit
	sg.AddEdge(Start, nodeID)
	return sg
}

// SetFinishPoint adds an edge from the node to End.
// This is equivalent to addEdge(nodeId, End).
func (sg *StateGraph) SetFinishPoint(nodeID string) *StateGraph {
	sg.AddEdge(nodeID, End)
	return sg
}

// Compile compiles the graph and returns it for execution.
// Builder errors accumulated while chaining are reported here.
func (sg *StateGraph) Compile() (*Graph, error) {
	if len(sg.errs) > 0 {
		return nil, fmt.Errorf("invalid graph: %w", errors.Join(sg.errs...))
	}
	if err := sg.graph.validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	return sg.graph, nil
}

// MustCompile compiles the graph or panics if invalid.
func (sg *StateGraph) MustCompile() *Graph {
	graph, err := sg.Compile()
	if err != nil {
		panic(err)
	}
	return graph
}

// extractExecutionContext extracts execution context from state.
func extractExecutionContext(state State) (string, *ExecutionContext) {
	if execCtx, exists := state[StateKeyExecContext]; exists {
		if execContext, ok := execCtx.(*ExecutionContext); ok {
			return execContext.InvocationID, execContext
		}
	}
	return "", nil
}

// MessagesStateSchema creates a state schema optimized for message-based
// workflows, with a conversation log, pending tool calls and results.
func MessagesStateSchema() *StateSchema {
	schema := NewStateSchema()
	schema.AddField(StateKeyMessages, StateField{
		Type:    reflect.TypeOf([]Message{}),
		Reducer: MessageReducer,
		Default: func() any { return []Message{} },
	})
	schema.AddField(StateKeyUserInput, StateField{
		Type:    reflect.TypeOf(""),
		Reducer: DefaultReducer,
	})
	schema.AddField(StateKeyLastResponse, StateField{
		Type:    reflect.TypeOf(""),
		Reducer: DefaultReducer,
	})
	schema.AddField(StateKeyMetadata, StateField{
		Type:    reflect.TypeOf(map[string]any{}),
		Reducer: MergeReducer,
		Default: func() any { return make(map[string]any) },
	})
	schema.AddField(StateKeyToolCalls, StateField{
		Type:    reflect.TypeOf([]tool.Call{}),
		Reducer: DefaultReducer,
	})
	schema.AddField(StateKeyToolResults, StateField{
		Type:    reflect.TypeOf([]tool.Result{}),
		Reducer: DefaultReducer,
	})
	return schema
}
