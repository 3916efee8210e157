//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package event

// Option modifies an event at construction time.
type Option func(*Event)

// WithNode records the node the event relates to.
func WithNode(nodeID, nodeName string) Option {
	return func(e *Event) {
		e.NodeID = nodeID
		e.NodeName = nodeName
	}
}

// WithStep records the execution step the event belongs to.
func WithStep(step int) Option {
	return func(e *Event) {
		e.Step = step
	}
}

// WithStateDelta attaches the serialized state delta a node produced.
func WithStateDelta(delta map[string][]byte) Option {
	return func(e *Event) {
		e.StateDelta = delta
	}
}

// WithToken attaches an incremental output fragment.
func WithToken(token string) Option {
	return func(e *Event) {
		e.Token = token
	}
}

// WithTool attaches tool call details.
func WithTool(info *ToolInfo) Option {
	return func(e *Event) {
		e.Tool = info
	}
}

// WithCheckpoint attaches checkpoint details.
func WithCheckpoint(info *CheckpointInfo) Option {
	return func(e *Event) {
		e.Checkpoint = info
	}
}
