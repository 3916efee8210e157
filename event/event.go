//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package event provides the event stream emitted by graph execution.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies what a stream event describes.
type Kind string

// Event kinds emitted during graph execution, in execution order.
// A stream is terminated by exactly one of KindCompleted, KindInterrupted
// or KindError.
const (
	KindNodeStart   Kind = "node_start"
	KindNodeEnd     Kind = "node_end"
	KindToolStart   Kind = "tool_start"
	KindToolEnd     Kind = "tool_end"
	KindToken       Kind = "token"
	KindCheckpoint  Kind = "checkpoint"
	KindError       Kind = "error"
	KindInterrupted Kind = "interrupted"
	KindCompleted   Kind = "completed"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// ErrorInfo carries error details on KindError events.
type ErrorInfo struct {
	// Type is the error category, e.g. "node_execution_error".
	Type string `json:"type"`
	// Message is the human-readable error message.
	Message string `json:"message"`
}

// ToolInfo carries tool call details on KindToolStart and KindToolEnd events.
type ToolInfo struct {
	// CallID correlates a tool result back to its originating call.
	CallID string `json:"callId"`
	// Name is the tool name.
	Name string `json:"name"`
	// Arguments is the raw JSON argument payload.
	Arguments string `json:"arguments,omitempty"`
	// Output is the serialized tool output, set on KindToolEnd.
	Output string `json:"output,omitempty"`
	// Error is the tool error text, set on KindToolEnd when the call failed.
	Error string `json:"error,omitempty"`
	// Duration is how long the call took, set on KindToolEnd.
	Duration time.Duration `json:"duration,omitempty"`
}

// CheckpointInfo carries checkpoint details on KindCheckpoint events.
type CheckpointInfo struct {
	// CheckpointID is the identifier of the stored checkpoint.
	CheckpointID string `json:"checkpointId"`
	// Source indicates how the checkpoint was created ("loop", "interrupt", ...).
	Source string `json:"source"`
	// Step is the checkpoint step sequence number.
	Step int `json:"step"`
	// NextNodes are the nodes the checkpoint will execute on resume.
	NextNodes []string `json:"nextNodes,omitempty"`
}

// InterruptInfo carries pause details on KindInterrupted events.
type InterruptInfo struct {
	// Payload is the value the node passed to the interrupt call.
	Payload any `json:"payload"`
	// NodeID is the node that interrupted.
	NodeID string `json:"nodeId"`
	// TaskID identifies the interrupted task for keyed resume values.
	TaskID string `json:"taskId,omitempty"`
	// CheckpointID is the checkpoint to resume from.
	CheckpointID string `json:"checkpointId,omitempty"`
}

// Event represents a single entry in a graph execution stream.
type Event struct {
	// ID is the unique identifier of the event.
	ID string `json:"id"`

	// InvocationID groups all events of one execution.
	InvocationID string `json:"invocationId"`

	// Author is the component that emitted the event.
	Author string `json:"author"`

	// Kind describes what the event carries.
	Kind Kind `json:"kind"`

	// NodeID is the graph node the event relates to, when applicable.
	NodeID string `json:"nodeId,omitempty"`

	// NodeName is the display name of that node.
	NodeName string `json:"nodeName,omitempty"`

	// Step is the execution step the event belongs to.
	Step int `json:"step,omitempty"`

	// Timestamp is when the event was created.
	Timestamp time.Time `json:"timestamp"`

	// Token is an incremental output fragment on KindToken events.
	Token string `json:"token,omitempty"`

	// StateDelta contains the serialized per-field delta a node produced.
	StateDelta map[string][]byte `json:"stateDelta,omitempty"`

	// Error is set on KindError events.
	Error *ErrorInfo `json:"error,omitempty"`

	// Tool is set on tool call events.
	Tool *ToolInfo `json:"tool,omitempty"`

	// Checkpoint is set on KindCheckpoint events.
	Checkpoint *CheckpointInfo `json:"checkpoint,omitempty"`

	// Interrupt is set on KindInterrupted events.
	Interrupt *InterruptInfo `json:"interrupt,omitempty"`

	// FinalState carries the cleaned final state on KindCompleted events.
	// It is a snapshot; consumers must not mutate it.
	FinalState map[string]any `json:"finalState,omitempty"`

	// Done marks the terminal event of a stream.
	Done bool `json:"done,omitempty"`
}

// Clone creates a deep copy of the event envelope. Payload values inside
// FinalState are shared; the maps themselves are copied.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	if e.StateDelta != nil {
		clone.StateDelta = make(map[string][]byte, len(e.StateDelta))
		for k, v := range e.StateDelta {
			b := make([]byte, len(v))
			copy(b, v)
			clone.StateDelta[k] = b
		}
	}
	if e.FinalState != nil {
		clone.FinalState = make(map[string]any, len(e.FinalState))
		for k, v := range e.FinalState {
			clone.FinalState[k] = v
		}
	}
	if e.Error != nil {
		errCopy := *e.Error
		clone.Error = &errCopy
	}
	if e.Tool != nil {
		toolCopy := *e.Tool
		clone.Tool = &toolCopy
	}
	if e.Checkpoint != nil {
		cpCopy := *e.Checkpoint
		cpCopy.NextNodes = append([]string(nil), e.Checkpoint.NextNodes...)
		clone.Checkpoint = &cpCopy
	}
	if e.Interrupt != nil {
		intCopy := *e.Interrupt
		clone.Interrupt = &intCopy
	}
	return &clone
}

// IsTerminal reports whether the event closes its stream.
func (e *Event) IsTerminal() bool {
	return e.Done
}

// New creates a new Event with a generated ID and timestamp.
func New(invocationID, author string, kind Kind, opts ...Option) *Event {
	e := &Event{
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		InvocationID: invocationID,
		Author:       author,
		Kind:         kind,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewErrorEvent creates a terminal error event with the given details.
func NewErrorEvent(invocationID, author, errorType, errorMessage string) *Event {
	return &Event{
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		InvocationID: invocationID,
		Author:       author,
		Kind:         KindError,
		Error: &ErrorInfo{
			Type:    errorType,
			Message: errorMessage,
		},
		Done: true,
	}
}

// NewCompletedEvent creates the terminal event of a successful run.
func NewCompletedEvent(invocationID, author string, finalState map[string]any) *Event {
	return &Event{
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		InvocationID: invocationID,
		Author:       author,
		Kind:         KindCompleted,
		FinalState:   finalState,
		Done:         true,
	}
}

// NewInterruptedEvent creates the terminal event of a paused run.
func NewInterruptedEvent(invocationID, author string, info *InterruptInfo) *Event {
	return &Event{
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		InvocationID: invocationID,
		Author:       author,
		Kind:         KindInterrupted,
		Interrupt:    info,
		Done:         true,
	}
}
