//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package redis provides Redis-backed checkpoint storage for graph execution
// state persistence and recovery. Checkpoints are shared across processes, so
// several runners can resume the same lineage.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

var _ graph.CheckpointSaver = (*Saver)(nil)

// checkpointRecord is the JSON value stored per checkpoint.
type checkpointRecord struct {
	Checkpoint *graph.Checkpoint         `json:"checkpoint"`
	Metadata   *graph.CheckpointMetadata `json:"metadata"`
	ParentID   string                    `json:"parent_id,omitempty"`
}

// writeRecord is the JSON value stored per pending write. Index keeps members
// unique inside the sorted set even when two writes carry identical payloads.
type writeRecord struct {
	TaskID   string `json:"task_id"`
	Key      string `json:"key"`
	Value    any    `json:"value"`
	Sequence int64  `json:"sequence"`
	Index    int    `json:"index"`
}

// options configures the saver.
type options struct {
	client                   redis.UniversalClient
	url                      string
	maxCheckpointsPerLineage int
}

// Option is the option for the redis checkpoint saver.
type Option func(*options)

// WithClient sets the redis client. The caller keeps ownership and Close will
// not close it.
func WithClient(client redis.UniversalClient) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithClientURL builds the redis client from a URL.
// scheme: redis://<username>:<password>@<host>:<port>/<db>?<options>
func WithClientURL(url string) Option {
	return func(o *options) {
		o.url = url
	}
}

// WithMaxCheckpointsPerLineage bounds how many checkpoints are kept per
// lineage and namespace; the oldest are pruned first. Zero disables pruning.
func WithMaxCheckpointsPerLineage(max int) Option {
	return func(o *options) {
		o.maxCheckpointsPerLineage = max
	}
}

// Saver is a Redis-backed implementation of graph.CheckpointSaver.
// storage structure:
// Checkpoints: graph:ckpt:{lineage}:{ns} -> hash [checkpointID -> checkpointRecord(json)]
// Order index: graph:ckpt:index:{lineage}:{ns} -> sorted set [checkpointID, score: timestamp]
// Writes: graph:ckpt:writes:{lineage}:{ns}:{checkpointID} -> sorted set [writeRecord(json), score: sequence]
// Namespaces: graph:ckpt:ns:{lineage} -> set [namespace]
type Saver struct {
	client                   redis.UniversalClient
	ownsClient               bool
	maxCheckpointsPerLineage int
}

// NewSaver creates a new redis checkpoint saver. A client or a client URL is
// required.
func NewSaver(opts ...Option) (*Saver, error) {
	o := options{maxCheckpointsPerLineage: graph.DefaultMaxCheckpointsPerLineage}
	for _, opt := range opts {
		opt(&o)
	}

	saver := &Saver{maxCheckpointsPerLineage: o.maxCheckpointsPerLineage}
	switch {
	case o.client != nil:
		saver.client = o.client
	case o.url != "":
		redisOpts, err := redis.ParseURL(o.url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url %s: %w", o.url, err)
		}
		saver.client = redis.NewClient(redisOpts)
		saver.ownsClient = true
	default:
		return nil, errors.New("redis client is required")
	}
	return saver, nil
}

func checkpointKey(lineageID, namespace string) string {
	return fmt.Sprintf("graph:ckpt:%s:%s", lineageID, namespace)
}

func indexKey(lineageID, namespace string) string {
	return fmt.Sprintf("graph:ckpt:index:%s:%s", lineageID, namespace)
}

func writesKey(lineageID, namespace, checkpointID string) string {
	return fmt.Sprintf("graph:ckpt:writes:%s:%s:%s", lineageID, namespace, checkpointID)
}

func namespacesKey(lineageID string) string {
	return fmt.Sprintf("graph:ckpt:ns:%s", lineageID)
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

// GetTuple retrieves a checkpoint tuple by configuration. Without a
// checkpoint ID the newest entry wins; an empty namespace searches across all
// namespaces.
func (s *Saver) GetTuple(ctx context.Context, config map[string]any) (*graph.CheckpointTuple, error) {
	lineageID := graph.GetLineageID(config)
	if lineageID == "" {
		return nil, graph.ErrLineageIDRequired
	}
	namespace := graph.GetNamespace(config)
	checkpointID := graph.GetCheckpointID(config)

	namespaces, err := s.resolveNamespaces(ctx, lineageID, namespace)
	if err != nil || len(namespaces) == 0 {
		return nil, err
	}

	if checkpointID == "" {
		resolvedNS, resolvedID, err := s.newestCheckpoint(ctx, lineageID, namespaces)
		if err != nil || resolvedID == "" {
			return nil, err
		}
		return s.loadTuple(ctx, lineageID, resolvedNS, resolvedID)
	}
	for _, ns := range namespaces {
		tuple, err := s.loadTuple(ctx, lineageID, ns, checkpointID)
		if err != nil {
			return nil, err
		}
		if tuple != nil {
			return tuple, nil
		}
	}
	return nil, nil
}

// resolveNamespaces returns the namespaces to search. An empty namespace
// expands to every namespace registered for the lineage.
func (s *Saver) resolveNamespaces(ctx context.Context, lineageID, namespace string) ([]string, error) {
	if namespace != "" {
		return []string{namespace}, nil
	}
	namespaces, err := s.client.SMembers(ctx, namespacesKey(lineageID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	sort.Strings(namespaces)
	return namespaces, nil
}

// newestCheckpoint finds the checkpoint with the highest timestamp score
// across the given namespaces.
func (s *Saver) newestCheckpoint(
	ctx context.Context,
	lineageID string,
	namespaces []string,
) (string, string, error) {
	var bestNS, bestID string
	var bestScore float64
	for _, ns := range namespaces {
		entries, err := s.client.ZRevRangeWithScores(ctx, indexKey(lineageID, ns), 0, 0).Result()
		if err != nil {
			return "", "", fmt.Errorf("read checkpoint index: %w", err)
		}
		if len(entries) == 0 {
			continue
		}
		id, _ := entries[0].Member.(string)
		if bestID == "" || entries[0].Score > bestScore {
			bestNS, bestID, bestScore = ns, id, entries[0].Score
		}
	}
	return bestNS, bestID, nil
}

// loadTuple fetches one checkpoint record and its writes. Returns nil when
// the checkpoint does not exist.
func (s *Saver) loadTuple(
	ctx context.Context,
	lineageID, namespace, checkpointID string,
) (*graph.CheckpointTuple, error) {
	data, err := s.client.HGet(ctx, checkpointKey(lineageID, namespace), checkpointID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var record checkpointRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}

	writes, err := s.loadWrites(ctx, lineageID, namespace, checkpointID)
	if err != nil {
		return nil, err
	}

	tuple := &graph.CheckpointTuple{
		Config:        graph.CreateCheckpointConfig(lineageID, checkpointID, namespace),
		Checkpoint:    record.Checkpoint,
		Metadata:      record.Metadata,
		PendingWrites: writes,
	}
	if record.ParentID != "" {
		tuple.ParentConfig = graph.CreateCheckpointConfig(lineageID, record.ParentID, namespace)
	}
	return tuple, nil
}

func (s *Saver) loadWrites(
	ctx context.Context,
	lineageID, namespace, checkpointID string,
) ([]graph.PendingWrite, error) {
	members, err := s.client.ZRange(ctx, writesKey(lineageID, namespace, checkpointID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read writes: %w", err)
	}
	var writes []graph.PendingWrite
	for _, member := range members {
		var record writeRecord
		if err := json.Unmarshal([]byte(member), &record); err != nil {
			return nil, fmt.Errorf("unmarshal write: %w", err)
		}
		writes = append(writes, graph.PendingWrite{
			TaskID:   record.TaskID,
			Key:      record.Key,
			Value:    record.Value,
			Sequence: record.Sequence,
		})
	}
	return writes, nil
}

// indexedTuple pairs a tuple with its timestamp score for cross-namespace
// ordering.
type indexedTuple struct {
	tuple *graph.CheckpointTuple
	score float64
}

// List retrieves checkpoints for the lineage, newest first, honoring the
// Before, Limit and Metadata filters.
func (s *Saver) List(
	ctx context.Context,
	config map[string]any,
	filter *graph.CheckpointFilter,
) ([]*graph.CheckpointTuple, error) {
	lineageID := graph.GetLineageID(config)
	if lineageID == "" {
		return nil, graph.ErrLineageIDRequired
	}
	namespace := graph.GetNamespace(config)

	namespaces, err := s.resolveNamespaces(ctx, lineageID, namespace)
	if err != nil || len(namespaces) == 0 {
		return nil, err
	}

	beforeScore, err := s.beforeScore(ctx, lineageID, namespaces, filter)
	if err != nil {
		return nil, err
	}

	var collected []indexedTuple
	for _, ns := range namespaces {
		entries, err := s.client.ZRevRangeWithScores(ctx, indexKey(lineageID, ns), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("read checkpoint index: %w", err)
		}
		for _, entry := range entries {
			if beforeScore != nil && entry.Score >= *beforeScore {
				continue
			}
			id, _ := entry.Member.(string)
			tuple, err := s.loadTuple(ctx, lineageID, ns, id)
			if err != nil {
				return nil, err
			}
			if tuple == nil || !matchesMetadata(tuple, filter) {
				continue
			}
			collected = append(collected, indexedTuple{tuple: tuple, score: entry.Score})
		}
	}

	sort.Slice(collected, func(i, j int) bool {
		return collected[i].score > collected[j].score
	})
	results := make([]*graph.CheckpointTuple, 0, len(collected))
	for _, entry := range collected {
		results = append(results, entry.tuple)
		if filter != nil && filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results, nil
}

// beforeScore resolves the Before filter to a timestamp score bound.
func (s *Saver) beforeScore(
	ctx context.Context,
	lineageID string,
	namespaces []string,
	filter *graph.CheckpointFilter,
) (*float64, error) {
	if filter == nil {
		return nil, nil
	}
	beforeID := graph.GetCheckpointID(filter.Before)
	if beforeID == "" {
		return nil, nil
	}
	for _, ns := range namespaces {
		score, err := s.client.ZScore(ctx, indexKey(lineageID, ns), beforeID).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve before filter: %w", err)
		}
		return &score, nil
	}
	return nil, nil
}

func matchesMetadata(tuple *graph.CheckpointTuple, filter *graph.CheckpointFilter) bool {
	if filter == nil || filter.Metadata == nil {
		return true
	}
	if tuple.Metadata == nil || tuple.Metadata.Extra == nil {
		return false
	}
	for key, value := range filter.Metadata {
		if tuple.Metadata.Extra[key] != value {
			return false
		}
	}
	return true
}

// Put stores a checkpoint and returns the config updated with its ID.
func (s *Saver) Put(ctx context.Context, req graph.PutRequest) (map[string]any, error) {
	return s.store(ctx, req.Config, req.Checkpoint, req.Metadata, nil)
}

// PutWrites stores intermediate writes linked to a checkpoint. Existing
// writes for the checkpoint are replaced.
func (s *Saver) PutWrites(ctx context.Context, req graph.PutWritesRequest) error {
	lineageID := graph.GetLineageID(req.Config)
	checkpointID := graph.GetCheckpointID(req.Config)
	if lineageID == "" || checkpointID == "" {
		return graph.ErrLineageIDAndCheckpointIDRequired
	}
	namespace := graph.GetNamespace(req.Config)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return storeWrites(ctx, pipe, lineageID, namespace, checkpointID, req.Writes)
	})
	if err != nil {
		return fmt.Errorf("store writes: %w", err)
	}
	return nil
}

// PutFull atomically stores a checkpoint together with its pending writes.
func (s *Saver) PutFull(ctx context.Context, req graph.PutFullRequest) (map[string]any, error) {
	return s.store(ctx, req.Config, req.Checkpoint, req.Metadata, req.PendingWrites)
}

// store saves a checkpoint (and optional writes) in one transaction, then
// prunes the lineage.
func (s *Saver) store(
	ctx context.Context,
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
		return nil, errors.New("checkpoint cannot be nil")
	}
	namespace := graph.GetNamespace(config)

	record, err := json.Marshal(checkpointRecord{
		Checkpoint: checkpoint,
		Metadata:   metadata,
		ParentID:   checkpoint.ParentCheckpointID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	ts := checkpoint.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, namespacesKey(lineageID), namespace)
		pipe.HSet(ctx, checkpointKey(lineageID, namespace), checkpoint.ID, record)
		pipe.ZAdd(ctx, indexKey(lineageID, namespace), redis.Z{
			Score:  float64(ts.UnixNano()),
			Member: checkpoint.ID,
		})
		if len(pendingWrites) > 0 {
			return storeWrites(ctx, pipe, lineageID, namespace, checkpoint.ID, pendingWrites)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store checkpoint: %w", err)
	}

	if err := s.pruneOldCheckpoints(ctx, lineageID, namespace); err != nil {
		return nil, err
	}
	return graph.CreateCheckpointConfig(lineageID, checkpoint.ID, namespace), nil
}

func storeWrites(
	ctx context.Context,
	pipe redis.Pipeliner,
	lineageID, namespace, checkpointID string,
	writes []graph.PendingWrite,
) error {
	key := writesKey(lineageID, namespace, checkpointID)
	pipe.Del(ctx, key)
	for idx, write := range writes {
		seq := write.Sequence
		if seq == 0 {
			seq = int64(idx + 1)
		}
		member, err := json.Marshal(writeRecord{
			TaskID:   write.TaskID,
			Key:      write.Key,
			Value:    write.Value,
			Sequence: seq,
			Index:    idx,
		})
		if err != nil {
			return fmt.Errorf("marshal write: %w", err)
		}
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(seq), Member: member})
	}
	return nil
}

// pruneOldCheckpoints drops the oldest checkpoints beyond the per-lineage
// limit, together with their writes.
func (s *Saver) pruneOldCheckpoints(ctx context.Context, lineageID, namespace string) error {
	if s.maxCheckpointsPerLineage <= 0 {
		return nil
	}
	count, err := s.client.ZCard(ctx, indexKey(lineageID, namespace)).Result()
	if err != nil {
		return fmt.Errorf("count checkpoints: %w", err)
	}
	excess := count - int64(s.maxCheckpointsPerLineage)
	if excess <= 0 {
		return nil
	}

	victims, err := s.client.ZRange(ctx, indexKey(lineageID, namespace), 0, excess-1).Result()
	if err != nil {
		return fmt.Errorf("select prune victims: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range victims {
			pipe.ZRem(ctx, indexKey(lineageID, namespace), id)
			pipe.HDel(ctx, checkpointKey(lineageID, namespace), id)
			pipe.Del(ctx, writesKey(lineageID, namespace, id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("prune checkpoints: %w", err)
	}
	return nil
}

// DeleteLineage removes all checkpoints, writes and index entries for a
// lineage.
func (s *Saver) DeleteLineage(ctx context.Context, lineageID string) error {
	if lineageID == "" {
		return graph.ErrLineageIDRequired
	}
	namespaces, err := s.client.SMembers(ctx, namespacesKey(lineageID)).Result()
	if err != nil {
		return fmt.Errorf("list namespaces: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, ns := range namespaces {
			ids, err := s.client.HKeys(ctx, checkpointKey(lineageID, ns)).Result()
			if err != nil {
				return fmt.Errorf("list checkpoints: %w", err)
			}
			for _, id := range ids {
				pipe.Del(ctx, writesKey(lineageID, ns, id))
			}
			pipe.Del(ctx, checkpointKey(lineageID, ns))
			pipe.Del(ctx, indexKey(lineageID, ns))
		}
		pipe.Del(ctx, namespacesKey(lineageID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete lineage: %w", err)
	}
	return nil
}

// Close releases the client when the saver created it from a URL. Injected
// clients stay open for their owner.
func (s *Saver) Close() error {
	if s.ownsClient && s.client != nil {
		return s.client.Close()
	}
	return nil
}
