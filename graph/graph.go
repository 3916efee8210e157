//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package graph provides graph-based workflow execution functionality.
package graph

import (
	"context"
	"fmt"
	"sync"

	"trpc.group/trpc-go/trpc-graph-go/event"
)

// Special node identifiers for graph routing.
const (
	// Start represents the virtual start node for routing.
	Start = "__start__"
	// End represents the virtual end node for routing.
	End = "__end__"
)

// Error types for graph execution.
const (
	ErrorTypeGraphExecution     = "graph_execution_error"
	ErrorTypeNodeExecution      = "node_execution_error"
	ErrorTypeRouting            = "routing_error"
	ErrorTypeSchema             = "schema_error"
	ErrorTypeTool               = "tool_error"
	ErrorTypeTimeout            = "timeout_error"
	ErrorTypeNoPendingInterrupt = "no_pending_interrupt_error"
)

// NodeType categorizes nodes for visualization and event metadata.
type NodeType string

// Node types.
const (
	NodeTypeFunction   NodeType = "function"
	NodeTypeTool       NodeType = "tool"
	NodeTypeSubgraph   NodeType = "subgraph"
	NodeTypeSupervisor NodeType = "supervisor"
	NodeTypeWorker     NodeType = "worker"
)

// NodeFunc is a function that can be executed by a node.
// Node function signature: (state) -> updated_state or Command.
type NodeFunc func(ctx context.Context, state State) (any, error)

// NodeResult represents the result of executing a node function.
// It can be either a State update or a Command for combined state update + routing.
type NodeResult any

// ConditionalFunc is a function that determines the next node based on state.
// Conditional edge function signature.
type ConditionalFunc func(ctx context.Context, state State) (string, error)

// Node represents a node in the graph.
// Nodes are primarily functions with metadata.
type Node struct {
	ID          string
	Name        string
	Description string
	Function    NodeFunc
	Type        NodeType

	// Declared destinations for dynamic routing visualization and static checks.
	// Keys are target node IDs; values are optional labels.
	destinations map[string]string
}

// Edge represents an edge in the graph.
// Simplified edge pattern.
type Edge struct {
	From string
	To   string
}

// ConditionalEdge represents a conditional edge with routing logic.
// The condition result must be a key of PathMap; unmapped results fail
// the run with a RoutingError.
type ConditionalEdge struct {
	From      string
	Condition ConditionalFunc
	PathMap   map[string]string // Maps condition result to target node.
}

// Graph represents a directed graph of nodes and edges.
// This is the compiled runtime structure created by StateGraph.Compile().
// Users typically don't create Graph instances directly. Instead, use:
//   - StateGraph for building graphs with compatible patterns.
//
// The Graph type is the immutable runtime representation that gets executed
// by the Executor.
type Graph struct {
	mu               sync.RWMutex
	schema           *StateSchema
	nodes            map[string]*Node
	edges            map[string][]*Edge
	conditionalEdges map[string]*ConditionalEdge
	entryPoint       string
	name             string
	description      string
}

// New creates a new empty graph with the given state schema.
func New(schema *StateSchema) *Graph {
	if schema == nil {
		schema = NewStateSchema()
	}

	return &Graph{
		schema:           schema,
		nodes:            make(map[string]*Node),
		edges:            make(map[string][]*Edge),
		conditionalEdges: make(map[string]*ConditionalEdge),
	}
}

// Name returns the graph name.
func (g *Graph) Name() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.name
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, exists := g.nodes[id]
	return node, exists
}

// NodeIDs returns the IDs of all registered nodes.
func (g *Graph) NodeIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	return ids
}

// Edges returns all outgoing edges from a node.
func (g *Graph) Edges(nodeID string) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[nodeID]
}

// ConditionalEdge returns the conditional edge from a node.
func (g *Graph) ConditionalEdge(nodeID string) (*ConditionalEdge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	edge, exists := g.conditionalEdges[nodeID]
	return edge, exists
}

// EntryPoint returns the entry point node ID.
func (g *Graph) EntryPoint() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.entryPoint
}

// Schema returns the state schema.
func (g *Graph) Schema() *StateSchema {
	return g.schema
}

// validate validates the graph structure.
func (g *Graph) validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.entryPoint == "" {
		return fmt.Errorf("graph must have an entry point")
	}
	if _, exists := g.nodes[g.entryPoint]; !exists {
		return fmt.Errorf("entry point node %s does not exist", g.entryPoint)
	}
	// Validate declared destinations exist.
	for _, n := range g.nodes {
		if n == nil || len(n.destinations) == 0 {
			continue
		}
		for to := range n.destinations {
			if to == End {
				continue
			}
			if _, ok := g.nodes[to]; !ok {
				return fmt.Errorf("node %s declares destination %s which does not exist", n.ID, to)
			}
		}
	}
	return nil
}

// ExecutionContext carries per-run plumbing that nodes may use to emit
// events. It is stored in state under StateKeyExecContext.
type ExecutionContext struct {
	Graph        *Graph
	EventChan    chan<- *event.Event
	InvocationID string
}

// EmitEvent sends an event to the execution stream without blocking
// forever: if the consumer stopped reading, the event is dropped.
func (ec *ExecutionContext) EmitEvent(ctx context.Context, e *event.Event) {
	if ec == nil || ec.EventChan == nil || e == nil {
		return
	}
	select {
	case ec.EventChan <- e:
	case <-ctx.Done():
	}
}

// Command represents a command that combines state updates with routing.
type Command struct {
	Update    State
	GoTo      string
	Resume    any
	ResumeMap map[string]any
}

// addNode adds a node to the graph.
func (g *Graph) addNode(node *Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if node.ID == "" {
		return fmt.Errorf("node ID cannot be empty for %+v", node)
	}
	if node.ID == Start || node.ID == End {
		return fmt.Errorf("node ID %s is reserved", node.ID)
	}
	if _, exists := g.nodes[node.ID]; exists {
		return fmt.Errorf("node with ID %s already exists for %+v", node.ID, node)
	}
	g.nodes[node.ID] = node
	return nil
}

// addEdge adds an edge to the graph.
func (g *Graph) addEdge(edge *Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if edge.From == "" || edge.To == "" {
		return fmt.Errorf("edge from and to cannot be empty")
	}
	// Allow Start and End as special nodes
	if edge.From != Start {
		if _, exists := g.nodes[edge.From]; !exists {
			return fmt.Errorf("source node %s does not exist", edge.From)
		}
	}
	if edge.To != End {
		if _, exists := g.nodes[edge.To]; !exists {
			return fmt.Errorf("target node %s does not exist", edge.To)
		}
	}
	g.edges[edge.From] = append(g.edges[edge.From], edge)
	return nil
}

// addConditionalEdge adds a conditional edge to the graph.
func (g *Graph) addConditionalEdge(condEdge *ConditionalEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if condEdge.From == "" {
		return fmt.Errorf("conditional edge from cannot be empty")
	}
	if condEdge.From != Start {
		if _, exists := g.nodes[condEdge.From]; !exists {
			return fmt.Errorf("source node %s does not exist", condEdge.From)
		}
	}
	// Validate all target nodes in path map
	for _, to := range condEdge.PathMap {
		if to != End {
			if _, exists := g.nodes[to]; !exists {
				return fmt.Errorf("target node %s does not exist", to)
			}
		}
	}
	g.conditionalEdges[condEdge.From] = condEdge
	return nil
}

// setEntryPoint sets the entry point of the graph.
func (g *Graph) setEntryPoint(nodeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if nodeID != "" {
		if _, exists := g.nodes[nodeID]; !exists {
			return fmt.Errorf("entry point node %s does not exist", nodeID)
		}
	}
	g.entryPoint = nodeID
	return nil
}
