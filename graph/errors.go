//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Errors.
var (
	ErrLineageIDRequired                = errors.New("lineage_id is required")
	ErrLineageIDEmpty                   = errors.New("lineage_id cannot be empty")
	ErrLineageIDAndCheckpointIDRequired = errors.New("lineage_id and checkpoint_id are required")
	ErrCheckpointNotFound               = errors.New("checkpoint not found")
	// ErrNoPendingInterrupt is returned when a resume is requested for a
	// thread whose latest checkpoint is not paused on an interrupt.
	ErrNoPendingInterrupt = errors.New("no pending interrupt to resume")
)

// SchemaError reports a state update that violates the graph's state schema,
// such as writing to an undeclared field or a value of the wrong type.
type SchemaError struct {
	// Field is the offending state field.
	Field string
	// Reason describes the violation.
	Reason string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error on field %q: %s", e.Field, e.Reason)
}

// NodeExecutionError wraps an error returned by a node function, attaching
// the node it came from.
type NodeExecutionError struct {
	// NodeID is the node whose function failed.
	NodeID string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s failed: %v", e.NodeID, e.Err)
}

// Unwrap returns the underlying error.
func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

// RoutingError reports a conditional route whose result is outside the
// declared path map. Routing never falls back silently; an unmapped result
// always fails the run.
type RoutingError struct {
	// NodeID is the node whose outgoing route failed.
	NodeID string
	// Result is the label the condition returned.
	Result string
	// Allowed lists the labels the path map declares.
	Allowed []string
}

// Error implements the error interface.
func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing error at node %s: result %q not in path map (allowed: %s)",
		e.NodeID, e.Result, strings.Join(e.Allowed, ", "))
}

// AsSchemaError reports whether err is a SchemaError and returns it.
func AsSchemaError(err error) (*SchemaError, bool) {
	var se *SchemaError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// AsRoutingError reports whether err is a RoutingError and returns it.
func AsRoutingError(err error) (*RoutingError, bool) {
	var re *RoutingError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// AsNodeExecutionError reports whether err is a NodeExecutionError and
// returns it.
func AsNodeExecutionError(err error) (*NodeExecutionError, bool) {
	var ne *NodeExecutionError
	if errors.As(err, &ne) {
		return ne, true
	}
	return nil, false
}
