//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package graph

// Config map keys (used under config["configurable"])
const (
	CfgKeyConfigurable = "configurable"
	CfgKeyLineageID    = "lineage_id"
	CfgKeyCheckpointID = "checkpoint_id"
	CfgKeyCheckpointNS = "checkpoint_ns"
	CfgKeyResumeMap    = "resume_map"
)

// State map keys (stored into execution state). Keys with the double
// underscore prefix are internal bookkeeping; they bypass schema
// validation and never appear in caller-visible final state.
const (
	StateKeyCommand        = "__command__"
	StateKeyResume         = "__resume__"
	StateKeyResumeMap      = "__resume_map__"
	StateKeyNextNodes      = "__next_nodes__"
	StateKeyUsedInterrupts = "__used_interrupts__"
	StateKeyExecContext    = "__exec_context__"
	StateKeyCurrentNode    = "__current_node__"
	StateKeyToolCalls      = "tool_calls"
	StateKeyToolResults    = "tool_results"
	StateKeyMessages       = "messages"
	StateKeyNext           = "next"
	StateKeyUserInput      = "user_input"
	StateKeyLastResponse   = "last_response"
	StateKeyMetadata       = "metadata"
)

// isInternalStateKey reports whether key is bookkeeping state stripped
// from snapshots and final state.
func isInternalStateKey(key string) bool {
	switch key {
	case StateKeyCommand,
		StateKeyResume,
		StateKeyResumeMap,
		StateKeyNextNodes,
		StateKeyUsedInterrupts,
		StateKeyExecContext,
		StateKeyCurrentNode:
		return true
	}
	return false
}
