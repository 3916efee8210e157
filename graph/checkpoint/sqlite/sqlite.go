//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides SQLite-backed checkpoint storage for graph
// execution state persistence and recovery. Checkpoints and metadata are
// stored as JSON blobs, pending writes row per state field.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

const (
	createCheckpointsTable = "CREATE TABLE IF NOT EXISTS checkpoints (" +
		"lineage_id TEXT NOT NULL, " +
		"checkpoint_ns TEXT NOT NULL, " +
		"checkpoint_id TEXT NOT NULL, " +
		"parent_checkpoint_id TEXT, " +
		"ts INTEGER NOT NULL, " +
		"checkpoint_json BLOB NOT NULL, " +
		"metadata_json BLOB NOT NULL, " +
		"PRIMARY KEY (lineage_id, checkpoint_ns, checkpoint_id)" +
		")"

	createWritesTable = "CREATE TABLE IF NOT EXISTS checkpoint_writes (" +
		"lineage_id TEXT NOT NULL, " +
		"checkpoint_ns TEXT NOT NULL, " +
		"checkpoint_id TEXT NOT NULL, " +
		"task_id TEXT NOT NULL, " +
		"idx INTEGER NOT NULL, " +
		"field TEXT NOT NULL, " +
		"value_json BLOB NOT NULL, " +
		"seq INTEGER NOT NULL, " +
		"PRIMARY KEY (lineage_id, checkpoint_ns, checkpoint_id, task_id, idx)" +
		")"

	insertCheckpoint = "INSERT OR REPLACE INTO checkpoints (" +
		"lineage_id, checkpoint_ns, checkpoint_id, parent_checkpoint_id, ts, " +
		"checkpoint_json, metadata_json) VALUES (?, ?, ?, ?, ?, ?, ?)"

	insertWrite = "INSERT OR REPLACE INTO checkpoint_writes (" +
		"lineage_id, checkpoint_ns, checkpoint_id, task_id, idx, field, value_json, seq) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?)"

	selectLatestInNS = "SELECT checkpoint_json, metadata_json, parent_checkpoint_id, checkpoint_id " +
		"FROM checkpoints WHERE lineage_id = ? AND checkpoint_ns = ? " +
		"ORDER BY ts DESC LIMIT 1"

	selectLatestAnyNS = "SELECT checkpoint_json, metadata_json, parent_checkpoint_id, checkpoint_id, checkpoint_ns " +
		"FROM checkpoints WHERE lineage_id = ? ORDER BY ts DESC LIMIT 1"

	selectByID = "SELECT checkpoint_json, metadata_json, parent_checkpoint_id " +
		"FROM checkpoints WHERE lineage_id = ? AND checkpoint_ns = ? AND checkpoint_id = ? LIMIT 1"

	selectByIDAnyNS = "SELECT checkpoint_json, metadata_json, parent_checkpoint_id, checkpoint_ns " +
		"FROM checkpoints WHERE lineage_id = ? AND checkpoint_id = ? LIMIT 1"

	selectWrites = "SELECT task_id, field, value_json, seq FROM checkpoint_writes " +
		"WHERE lineage_id = ? AND checkpoint_ns = ? AND checkpoint_id = ? ORDER BY seq"

	deleteLineageCheckpoints = "DELETE FROM checkpoints WHERE lineage_id = ?"
	deleteLineageWrites      = "DELETE FROM checkpoint_writes WHERE lineage_id = ?"
)

// Saver is a SQLite-backed implementation of graph.CheckpointSaver.
// It expects an initialized *sql.DB with a SQLite driver and creates the
// required tables on construction. Suitable for durable single-node use.
type Saver struct {
	db *sql.DB
}

// NewSaver creates a new saver using the provided DB.
func NewSaver(db *sql.DB) (*Saver, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(createCheckpointsTable); err != nil {
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	if _, err := db.Exec(createWritesTable); err != nil {
		return nil, fmt.Errorf("create writes table: %w", err)
	}
	return &Saver{db: db}, nil
}

// Get returns the checkpoint for the given config.
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

// checkpointRow is a scanned checkpoints table row.
type checkpointRow struct {
	checkpointJSON []byte
	metadataJSON   []byte
	parentID       string
	checkpointID   string
	namespace      string
}

// GetTuple returns the checkpoint tuple for the given config. Without a
// checkpoint ID the newest row wins; an empty namespace searches across all
// namespaces.
func (s *Saver) GetTuple(ctx context.Context, config map[string]any) (*graph.CheckpointTuple, error) {
	lineageID := graph.GetLineageID(config)
	if lineageID == "" {
		return nil, graph.ErrLineageIDRequired
	}
	namespace := graph.GetNamespace(config)
	checkpointID := graph.GetCheckpointID(config)

	row, err := s.queryRow(ctx, lineageID, namespace, checkpointID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s.buildTuple(ctx, lineageID, row)
}

func (s *Saver) queryRow(ctx context.Context, lineageID, namespace, checkpointID string) (*checkpointRow, error) {
	var r checkpointRow
	switch {
	case checkpointID == "" && namespace == "":
		row := s.db.QueryRowContext(ctx, selectLatestAnyNS, lineageID)
		if err := row.Scan(&r.checkpointJSON, &r.metadataJSON, &r.parentID, &r.checkpointID, &r.namespace); err != nil {
			return nil, err
		}
	case checkpointID == "":
		row := s.db.QueryRowContext(ctx, selectLatestInNS, lineageID, namespace)
		if err := row.Scan(&r.checkpointJSON, &r.metadataJSON, &r.parentID, &r.checkpointID); err != nil {
			return nil, err
		}
		r.namespace = namespace
	case namespace == "":
		row := s.db.QueryRowContext(ctx, selectByIDAnyNS, lineageID, checkpointID)
		if err := row.Scan(&r.checkpointJSON, &r.metadataJSON, &r.parentID, &r.namespace); err != nil {
			return nil, err
		}
		r.checkpointID = checkpointID
	default:
		row := s.db.QueryRowContext(ctx, selectByID, lineageID, namespace, checkpointID)
		if err := row.Scan(&r.checkpointJSON, &r.metadataJSON, &r.parentID); err != nil {
			return nil, err
		}
		r.checkpointID = checkpointID
		r.namespace = namespace
	}
	return &r, nil
}

// buildTuple constructs a CheckpointTuple from a scanned row, loading the
// pending writes alongside.
func (s *Saver) buildTuple(ctx context.Context, lineageID string, row *checkpointRow) (*graph.CheckpointTuple, error) {
	var ckpt graph.Checkpoint
	if err := json.Unmarshal(row.checkpointJSON, &ckpt); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	var meta graph.CheckpointMetadata
	if err := json.Unmarshal(row.metadataJSON, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	writes, err := s.loadWrites(ctx, lineageID, row.namespace, row.checkpointID)
	if err != nil {
		return nil, err
	}

	tuple := &graph.CheckpointTuple{
		Config:        graph.CreateCheckpointConfig(lineageID, row.checkpointID, row.namespace),
		Checkpoint:    &ckpt,
		Metadata:      &meta,
		PendingWrites: writes,
	}
	if row.parentID != "" {
		tuple.ParentConfig = graph.CreateCheckpointConfig(lineageID, row.parentID, row.namespace)
	}
	return tuple, nil
}

// List returns checkpoints for the lineage, newest first, honoring the
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

	beforeTs, err := s.beforeTimestamp(ctx, lineageID, namespace, filter)
	if err != nil {
		return nil, err
	}

	query := "SELECT checkpoint_id, checkpoint_ns FROM checkpoints WHERE lineage_id = ?"
	args := []any{lineageID}
	if namespace != "" {
		query += " AND checkpoint_ns = ?"
		args = append(args, namespace)
	}
	if beforeTs != nil {
		query += " AND ts < ?"
		args = append(args, *beforeTs)
	}
	query += " ORDER BY ts DESC"
	if filter != nil && filter.Limit > 0 && filter.Metadata == nil {
		// The SQL limit only applies when no post-scan filtering can drop rows.
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select checkpoints: %w", err)
	}
	defer rows.Close()

	var tuples []*graph.CheckpointTuple
	for rows.Next() {
		var checkpointID, ns string
		if err := rows.Scan(&checkpointID, &ns); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		tuple, err := s.GetTuple(ctx, graph.CreateCheckpointConfig(lineageID, checkpointID, ns))
		if err != nil {
			return nil, err
		}
		if tuple == nil || !matchesMetadata(tuple, filter) {
			continue
		}
		tuples = append(tuples, tuple)
		if filter != nil && filter.Limit > 0 && len(tuples) >= filter.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter checkpoints: %w", err)
	}
	return tuples, nil
}

// beforeTimestamp resolves the Before filter to a timestamp bound.
func (s *Saver) beforeTimestamp(
	ctx context.Context,
	lineageID, namespace string,
	filter *graph.CheckpointFilter,
) (*int64, error) {
	if filter == nil {
		return nil, nil
	}
	beforeID := graph.GetCheckpointID(filter.Before)
	if beforeID == "" {
		return nil, nil
	}

	query := "SELECT ts FROM checkpoints WHERE lineage_id = ? AND checkpoint_id = ?"
	args := []any{lineageID, beforeID}
	if namespace != "" {
		query += " AND checkpoint_ns = ?"
		args = append(args, namespace)
	}
	query += " ORDER BY ts DESC LIMIT 1"

	var ts int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve before filter: %w", err)
	}
	return &ts, nil
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

// Put stores the checkpoint and returns the config updated with its ID.
func (s *Saver) Put(ctx context.Context, req graph.PutRequest) (map[string]any, error) {
	lineageID := graph.GetLineageID(req.Config)
	if lineageID == "" {
		return nil, graph.ErrLineageIDRequired
	}
	if req.Checkpoint == nil {
		return nil, errors.New("checkpoint cannot be nil")
	}
	namespace := graph.GetNamespace(req.Config)

	metadata := req.Metadata
	if metadata == nil {
		metadata = graph.NewCheckpointMetadata(graph.CheckpointSourceUpdate, 0)
	}
	if err := s.insertCheckpointRow(ctx, s.db, lineageID, namespace, req.Checkpoint, metadata); err != nil {
		return nil, err
	}
	return graph.CreateCheckpointConfig(lineageID, req.Checkpoint.ID, namespace), nil
}

// PutWrites stores write entries for a checkpoint.
func (s *Saver) PutWrites(ctx context.Context, req graph.PutWritesRequest) error {
	lineageID := graph.GetLineageID(req.Config)
	checkpointID := graph.GetCheckpointID(req.Config)
	if lineageID == "" || checkpointID == "" {
		return graph.ErrLineageIDAndCheckpointIDRequired
	}
	namespace := graph.GetNamespace(req.Config)

	for idx, write := range req.Writes {
		if err := s.insertWriteRow(ctx, s.db, lineageID, namespace, checkpointID, idx, write); err != nil {
			return err
		}
	}
	return nil
}

// PutFull atomically stores a checkpoint with its pending writes.
func (s *Saver) PutFull(ctx context.Context, req graph.PutFullRequest) (map[string]any, error) {
	lineageID := graph.GetLineageID(req.Config)
	if lineageID == "" {
		return nil, graph.ErrLineageIDRequired
	}
	if req.Checkpoint == nil {
		return nil, errors.New("checkpoint cannot be nil")
	}
	namespace := graph.GetNamespace(req.Config)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.insertCheckpointRow(ctx, tx, lineageID, namespace, req.Checkpoint, req.Metadata); err != nil {
		return nil, err
	}
	for idx, write := range req.PendingWrites {
		if err := s.insertWriteRow(ctx, tx, lineageID, namespace, req.Checkpoint.ID, idx, write); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return graph.CreateCheckpointConfig(lineageID, req.Checkpoint.ID, namespace), nil
}

// execer lets checkpoint and write inserts run on either the DB or a
// transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Saver) insertCheckpointRow(
	ctx context.Context,
	ex execer,
	lineageID, namespace string,
	checkpoint *graph.Checkpoint,
	metadata *graph.CheckpointMetadata,
) error {
	checkpointJSON, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	// UnixNano ordering; zero timestamps get the current time so every row
	// remains sortable.
	ts := checkpoint.Timestamp.UnixNano()
	if checkpoint.Timestamp.IsZero() {
		ts = time.Now().UTC().UnixNano()
	}
	if _, err := ex.ExecContext(ctx, insertCheckpoint,
		lineageID, namespace, checkpoint.ID, checkpoint.ParentCheckpointID,
		ts, checkpointJSON, metadataJSON); err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

func (s *Saver) insertWriteRow(
	ctx context.Context,
	ex execer,
	lineageID, namespace, checkpointID string,
	idx int,
	write graph.PendingWrite,
) error {
	valueJSON, err := json.Marshal(write.Value)
	if err != nil {
		return fmt.Errorf("marshal write value: %w", err)
	}
	seq := write.Sequence
	if seq == 0 {
		seq = int64(idx + 1)
	}
	if _, err := ex.ExecContext(ctx, insertWrite,
		lineageID, namespace, checkpointID, write.TaskID, idx,
		write.Key, valueJSON, seq); err != nil {
		return fmt.Errorf("insert write: %w", err)
	}
	return nil
}

// DeleteLineage deletes all checkpoints and writes for the lineage.
func (s *Saver) DeleteLineage(ctx context.Context, lineageID string) error {
	if lineageID == "" {
		return graph.ErrLineageIDRequired
	}
	if _, err := s.db.ExecContext(ctx, deleteLineageCheckpoints, lineageID); err != nil {
		return fmt.Errorf("delete checkpoints: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, deleteLineageWrites, lineageID); err != nil {
		return fmt.Errorf("delete writes: %w", err)
	}
	return nil
}

// Close releases resources held by the saver.
func (s *Saver) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Saver) loadWrites(
	ctx context.Context,
	lineageID, namespace, checkpointID string,
) ([]graph.PendingWrite, error) {
	rows, err := s.db.QueryContext(ctx, selectWrites, lineageID, namespace, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("select writes: %w", err)
	}
	defer rows.Close()

	var writes []graph.PendingWrite
	for rows.Next() {
		var write graph.PendingWrite
		var valueJSON []byte
		if err := rows.Scan(&write.TaskID, &write.Key, &valueJSON, &write.Sequence); err != nil {
			return nil, fmt.Errorf("scan write: %w", err)
		}
		if err := json.Unmarshal(valueJSON, &write.Value); err != nil {
			return nil, fmt.Errorf("unmarshal write: %w", err)
		}
		writes = append(writes, write)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter writes: %w", err)
	}
	return writes, nil
}
