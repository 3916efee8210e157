//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides in-memory checkpoint storage for graph execution
// state persistence and recovery. It is suitable for tests and single-process
// use; nothing survives a restart.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

// Saver is an in-memory implementation of graph.CheckpointSaver.
// Checkpoints are stored per lineage and namespace; stored and returned
// checkpoints are copies, so callers cannot mutate the history.
type Saver struct {
	mu sync.RWMutex
	// lineageID -> namespace -> checkpointID -> tuple
	storage map[string]map[string]map[string]*graph.CheckpointTuple
	// lineageID -> namespace -> checkpointID -> writes
	writes map[string]map[string]map[string][]graph.PendingWrite

	maxCheckpointsPerLineage int
}

// NewSaver creates a new in-memory checkpoint saver.
func NewSaver() *Saver {
	return &Saver{
		storage:                  make(map[string]map[string]map[string]*graph.CheckpointTuple),
		writes:                   make(map[string]map[string]map[string][]graph.PendingWrite),
		maxCheckpointsPerLineage: graph.DefaultMaxCheckpointsPerLineage,
	}
}

// WithMaxCheckpointsPerLineage bounds how many checkpoints are kept per
// lineage and namespace; the oldest are pruned first.
func (s *Saver) WithMaxCheckpointsPerLineage(max int) *Saver {
	s.maxCheckpointsPerLineage = max
	return s
}

// Get retrieves a checkpoint by configuration.
func (s *Saver) Get(ctx context.Context, config map[string]any) (*graph.Checkpoint, error) {
	tuple, err := s.GetTuple(ctx, config)
	if err != nil {
		return nil, err
	}
	if tuple == nil {
		return nil, nil
	}
	return tuple.Checkpoint, nil
}

// GetTuple retrieves a checkpoint tuple by configuration. When the config
// names no checkpoint ID, the newest checkpoint wins; an empty namespace
// searches across all namespaces.
func (s *Saver) GetTuple(ctx context.Context, config map[string]any) (*graph.CheckpointTuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lineageID := graph.GetLineageID(config)
	if lineageID == "" {
		return nil, graph.ErrLineageIDRequired
	}
	namespace := graph.GetNamespace(config)
	checkpointID := graph.GetCheckpointID(config)

	namespaces, exists := s.storage[lineageID]
	if !exists {
		return nil, nil
	}

	var tuple *graph.CheckpointTuple
	if checkpointID == "" {
		tuple = latestTuple(namespaces, namespace)
		if tuple == nil {
			return nil, nil
		}
		checkpointID = tuple.Checkpoint.ID
		// Reflect the resolved ID back into the caller's config.
		if configurable, ok := config[graph.CfgKeyConfigurable].(map[string]any); ok {
			configurable[graph.CfgKeyCheckpointID] = checkpointID
		}
	} else {
		tuple = findByID(namespaces, namespace, checkpointID)
		if tuple == nil {
			return nil, nil
		}
	}
	return s.tupleWithWrites(tuple, lineageID, namespace, checkpointID), nil
}

// latestTuple returns the newest tuple in the namespace, or across all
// namespaces when namespace is empty.
func latestTuple(
	namespaces map[string]map[string]*graph.CheckpointTuple,
	namespace string,
) *graph.CheckpointTuple {
	var latest *graph.CheckpointTuple
	consider := func(checkpoints map[string]*graph.CheckpointTuple) {
		for _, tuple := range checkpoints {
			if tuple.Checkpoint == nil {
				continue
			}
			if latest == nil || tuple.Checkpoint.Timestamp.After(latest.Checkpoint.Timestamp) {
				latest = tuple
			}
		}
	}
	if namespace == "" {
		for _, checkpoints := range namespaces {
			consider(checkpoints)
		}
	} else {
		consider(namespaces[namespace])
	}
	return latest
}

// findByID returns the tuple with the given checkpoint ID, searching all
// namespaces when namespace is empty.
func findByID(
	namespaces map[string]map[string]*graph.CheckpointTuple,
	namespace, checkpointID string,
) *graph.CheckpointTuple {
	if namespace != "" {
		return namespaces[namespace][checkpointID]
	}
	for _, checkpoints := range namespaces {
		if tuple, exists := checkpoints[checkpointID]; exists {
			return tuple
		}
	}
	return nil
}

// tupleWithWrites returns a defensive copy of the tuple including any
// pending writes stored for it.
func (s *Saver) tupleWithWrites(
	tuple *graph.CheckpointTuple,
	lineageID, namespace, checkpointID string,
) *graph.CheckpointTuple {
	result := &graph.CheckpointTuple{
		Config:       tuple.Config,
		Checkpoint:   tuple.Checkpoint.Copy(),
		Metadata:     tuple.Metadata,
		ParentConfig: tuple.ParentConfig,
	}
	if writes, exists := s.writes[lineageID][namespace][checkpointID]; exists {
		result.PendingWrites = make([]graph.PendingWrite, len(writes))
		copy(result.PendingWrites, writes)
	}
	return result
}

// List retrieves checkpoints matching the filter, newest first.
func (s *Saver) List(
	ctx context.Context,
	config map[string]any,
	filter *graph.CheckpointFilter,
) ([]*graph.CheckpointTuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lineageID := graph.GetLineageID(config)
	if lineageID == "" {
		return nil, graph.ErrLineageIDRequired
	}
	namespace := graph.GetNamespace(config)

	namespaces, exists := s.storage[lineageID]
	if !exists {
		return nil, nil
	}

	var results []*graph.CheckpointTuple
	collect := func(ns string, checkpoints map[string]*graph.CheckpointTuple) {
		for checkpointID, tuple := range checkpoints {
			if !passesFilter(tuple, checkpoints, filter) {
				continue
			}
			results = append(results, s.tupleWithWrites(tuple, lineageID, ns, checkpointID))
		}
	}
	if namespace == "" {
		for ns, checkpoints := range namespaces {
			collect(ns, checkpoints)
		}
	} else {
		collect(namespace, namespaces[namespace])
	}

	// Newest first. The limit applies after sorting so map iteration order
	// cannot bias which checkpoints survive.
	sort.Slice(results, func(i, j int) bool {
		return results[i].Checkpoint.Timestamp.After(results[j].Checkpoint.Timestamp)
	})
	if filter != nil && filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

// Put stores a checkpoint and returns the config updated with its ID.
func (s *Saver) Put(ctx context.Context, req graph.PutRequest) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store(req.Config, req.Checkpoint, req.Metadata, nil)
}

// PutWrites stores intermediate writes linked to a checkpoint.
func (s *Saver) PutWrites(ctx context.Context, req graph.PutWritesRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lineageID := graph.GetLineageID(req.Config)
	checkpointID := graph.GetCheckpointID(req.Config)
	if lineageID == "" || checkpointID == "" {
		return graph.ErrLineageIDAndCheckpointIDRequired
	}
	namespace := graph.GetNamespace(req.Config)

	s.storeWrites(lineageID, namespace, checkpointID, req.Writes)
	return nil
}

// PutFull atomically stores a checkpoint together with its pending writes.
func (s *Saver) PutFull(ctx context.Context, req graph.PutFullRequest) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store(req.Config, req.Checkpoint, req.Metadata, req.PendingWrites)
}

// store saves a checkpoint (and optional writes) under the config's lineage
// and namespace. The caller must hold the write lock.
func (s *Saver) store(
	config map[string]any,
	checkpoint *graph.Checkpoint,
	metadata *graph.CheckpointMetadata,
	pendingWrites []graph.PendingWrite,
) (map[string]any, error) {
	lineageID := graph.GetLineageID(config)
	if lineageID == "" {
		return nil, graph.ErrLineageIDRequired
	}
	if checkpoint == nil {
		return nil, fmt.Errorf("checkpoint cannot be nil")
	}
	namespace := graph.GetNamespace(config)

	if s.storage[lineageID] == nil {
		s.storage[lineageID] = make(map[string]map[string]*graph.CheckpointTuple)
	}
	if s.storage[lineageID][namespace] == nil {
		s.storage[lineageID][namespace] = make(map[string]*graph.CheckpointTuple)
	}

	// The returned config names this checkpoint so follow-up writes and
	// resumes target it directly.
	updatedConfig := graph.CreateCheckpointConfig(lineageID, checkpoint.ID, namespace)

	tuple := &graph.CheckpointTuple{
		Config:     updatedConfig,
		Checkpoint: checkpoint.Copy(),
		Metadata:   metadata,
	}
	if parentID := checkpoint.ParentCheckpointID; parentID != "" {
		tuple.ParentConfig = graph.CreateCheckpointConfig(
			lineageID, parentID, s.findParentNamespace(lineageID, parentID))
	}
	s.storage[lineageID][namespace][checkpoint.ID] = tuple

	if len(pendingWrites) > 0 {
		s.storeWrites(lineageID, namespace, checkpoint.ID, pendingWrites)
	}

	s.pruneOldCheckpoints(lineageID, namespace)
	return updatedConfig, nil
}

func (s *Saver) storeWrites(lineageID, namespace, checkpointID string, writes []graph.PendingWrite) {
	if s.writes[lineageID] == nil {
		s.writes[lineageID] = make(map[string]map[string][]graph.PendingWrite)
	}
	if s.writes[lineageID][namespace] == nil {
		s.writes[lineageID][namespace] = make(map[string][]graph.PendingWrite)
	}
	stored := make([]graph.PendingWrite, len(writes))
	copy(stored, writes)
	s.writes[lineageID][namespace][checkpointID] = stored
}

// DeleteLineage removes all checkpoints for a lineage.
func (s *Saver) DeleteLineage(ctx context.Context, lineageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.storage, lineageID)
	delete(s.writes, lineageID)
	return nil
}

// Close releases resources held by the saver.
func (s *Saver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.storage = make(map[string]map[string]map[string]*graph.CheckpointTuple)
	s.writes = make(map[string]map[string]map[string][]graph.PendingWrite)
	return nil
}

// pruneOldCheckpoints drops the oldest checkpoints beyond the per-lineage
// limit. The caller must hold the write lock.
func (s *Saver) pruneOldCheckpoints(lineageID, namespace string) {
	checkpoints := s.storage[lineageID][namespace]
	if s.maxCheckpointsPerLineage <= 0 || len(checkpoints) <= s.maxCheckpointsPerLineage {
		return
	}

	ids := make([]string, 0, len(checkpoints))
	for id, tuple := range checkpoints {
		if tuple.Checkpoint != nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return checkpoints[ids[i]].Checkpoint.Timestamp.Before(checkpoints[ids[j]].Checkpoint.Timestamp)
	})
	for _, id := range ids[:len(ids)-s.maxCheckpointsPerLineage] {
		delete(checkpoints, id)
		delete(s.writes[lineageID][namespace], id)
	}
}

// passesFilter reports whether a checkpoint matches the filter criteria.
func passesFilter(
	tuple *graph.CheckpointTuple,
	checkpoints map[string]*graph.CheckpointTuple,
	filter *graph.CheckpointFilter,
) bool {
	if filter == nil {
		return true
	}
	if beforeID := graph.GetCheckpointID(filter.Before); beforeID != "" {
		before, exists := checkpoints[beforeID]
		if !exists || !tuple.Checkpoint.Timestamp.Before(before.Checkpoint.Timestamp) {
			return false
		}
	}
	if filter.Metadata != nil {
		if tuple.Metadata == nil || tuple.Metadata.Extra == nil {
			return false
		}
		for key, value := range filter.Metadata {
			if tuple.Metadata.Extra[key] != value {
				return false
			}
		}
	}
	return true
}

// findParentNamespace locates the namespace holding the parent checkpoint.
// An empty result lets later lookups search across namespaces.
func (s *Saver) findParentNamespace(lineageID, parentID string) string {
	for ns, checkpoints := range s.storage[lineageID] {
		if _, exists := checkpoints[parentID]; exists {
			return ns
		}
	}
	return ""
}
