//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package runner

import (
	"context"
	"fmt"
	"time"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

// StepRecord summarizes one checkpoint of a thread.
type StepRecord struct {
	// CheckpointID identifies the checkpoint.
	CheckpointID string `json:"checkpointId"`
	// ParentCheckpointID is the previous checkpoint in the chain, empty at
	// the root.
	ParentCheckpointID string `json:"parentCheckpointId,omitempty"`
	// Step is the checkpoint step sequence number.
	Step int `json:"step"`
	// Source records how the checkpoint was created (input, loop, interrupt,
	// fork).
	Source string `json:"source"`
	// Timestamp is the checkpoint creation time.
	Timestamp time.Time `json:"timestamp"`
	// NextNodes are the nodes execution continues with when restarting here.
	NextNodes []string `json:"nextNodes,omitempty"`
	// State is the checkpointed state snapshot.
	State graph.State `json:"state"`
}

// HistoryOption narrows a History query.
type HistoryOption func(*historyOptions)

// historyOptions holds the narrowing options for History.
type historyOptions struct {
	limit  int
	before string
}

// WithHistoryLimit caps the number of returned records. Non-positive values
// return the full history.
func WithHistoryLimit(limit int) HistoryOption {
	return func(opts *historyOptions) {
		opts.limit = limit
	}
}

// WithHistoryBefore returns only records strictly older than the given
// checkpoint, for paging through long histories.
func WithHistoryBefore(checkpointID string) HistoryOption {
	return func(opts *historyOptions) {
		opts.before = checkpointID
	}
}

// History lists the thread's checkpoints newest first.
func (r *Runner) History(
	ctx context.Context, threadID string, opts ...HistoryOption,
) ([]StepRecord, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread id must not be empty")
	}
	if r.manager == nil {
		return nil, fmt.Errorf("checkpoint saver is not configured")
	}
	var options historyOptions
	for _, opt := range opts {
		opt(&options)
	}

	filter := graph.NewCheckpointFilter()
	if options.limit > 0 {
		filter = filter.WithLimit(options.limit)
	}
	if options.before != "" {
		filter = filter.WithBefore(graph.CreateCheckpointConfig(threadID, options.before, ""))
	}

	tuples, err := r.manager.ListCheckpoints(
		ctx, graph.CreateCheckpointConfig(threadID, "", ""), filter)
	if err != nil {
		return nil, err
	}
	records := make([]StepRecord, 0, len(tuples))
	for _, tuple := range tuples {
		records = append(records, newStepRecord(tuple))
	}
	return records, nil
}

// newStepRecord flattens a checkpoint tuple into a StepRecord.
func newStepRecord(tuple *graph.CheckpointTuple) StepRecord {
	record := StepRecord{
		CheckpointID: tuple.Checkpoint.ID,
		Timestamp:    tuple.Checkpoint.Timestamp,
		NextNodes:    tuple.Checkpoint.NextNodes,
		State:        graph.State(tuple.Checkpoint.StateValues),
	}
	if tuple.Metadata != nil {
		record.Step = tuple.Metadata.Step
		record.Source = tuple.Metadata.Source
	}
	if tuple.ParentConfig != nil {
		record.ParentCheckpointID = graph.GetCheckpointID(tuple.ParentConfig)
	}
	return record
}
