//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

// Package schema defines JSON payload structs used by the debug HTTP server.
// These types are internal and only exist to facilitate request/response
// marshalling.
package schema

import (
	"trpc.group/trpc-go/trpc-graph-go/runner"
)

// RunRequest starts a run on a thread. A non-empty CheckpointID forks the
// thread off that checkpoint instead of continuing from the latest one.
type RunRequest struct {
	Input        map[string]any `json:"input,omitempty"`
	CheckpointID string         `json:"checkpointId,omitempty"`
}

// ResumeRequest feeds a value into the thread's pending interrupt.
type ResumeRequest struct {
	Value any `json:"value"`
}

// RunResponse is the JSON form of a runner result. Error carries the failure
// message for failed runs; it is empty otherwise.
type RunResponse struct {
	Status     string            `json:"status"`
	FinalState map[string]any    `json:"finalState,omitempty"`
	Interrupt  *runner.Interrupt `json:"interrupt,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// HistoryResponse wraps the checkpoint records of a thread, newest first.
type HistoryResponse struct {
	ThreadID string              `json:"threadId"`
	Records  []runner.StepRecord `json:"records"`
}

// NewRunResponse flattens a runner result for JSON transport.
func NewRunResponse(result *runner.Result) RunResponse {
	resp := RunResponse{
		Status:     string(result.Status),
		FinalState: result.FinalState,
		Interrupt:  result.Interrupt,
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	return resp
}
