//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

// putCheckpoint stores a checkpoint with an explicit timestamp so ordering
// assertions do not depend on the wall clock.
func putCheckpoint(
	t *testing.T,
	saver *Saver,
	lineageID, namespace string,
	ts time.Time,
	step int,
	stateValues map[string]any,
) *graph.Checkpoint {
	t.Helper()

	ckpt := graph.NewCheckpoint(stateValues, map[string]int64{"counter": int64(step)})
	ckpt.Timestamp = ts
	cfg := graph.CreateCheckpointConfig(lineageID, "", namespace)
	_, err := saver.Put(context.Background(), graph.PutRequest{
		Config:     cfg,
		Checkpoint: ckpt,
		Metadata:   graph.NewCheckpointMetadata(graph.CheckpointSourceLoop, step),
	})
	require.NoError(t, err)
	return ckpt
}

func TestPutAndGet(t *testing.T) {
	saver := NewSaver()
	defer saver.Close()

	ckpt := graph.NewCheckpoint(map[string]any{"counter": 1}, nil)
	cfg := graph.CreateCheckpointConfig("lineage-1", "", "")
	updated, err := saver.Put(context.Background(), graph.PutRequest{
		Config:     cfg,
		Checkpoint: ckpt,
		Metadata:   graph.NewCheckpointMetadata(graph.CheckpointSourceInput, -1),
	})
	require.NoError(t, err)
	assert.Equal(t, ckpt.ID, graph.GetCheckpointID(updated))

	got, err := saver.Get(context.Background(), updated)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ckpt.ID, got.ID)
	// Stored values keep their Go types across the round trip.
	assert.Equal(t, 1, got.StateValues["counter"])
}

func TestGetRequiresLineageID(t *testing.T) {
	saver := NewSaver()

	_, err := saver.GetTuple(context.Background(), map[string]any{})
	assert.ErrorIs(t, err, graph.ErrLineageIDRequired)
}

func TestGetTupleLatest(t *testing.T) {
	saver := NewSaver()
	base := time.Now().UTC()

	putCheckpoint(t, saver, "lineage-1", "", base, 0, map[string]any{"counter": 1})
	putCheckpoint(t, saver, "lineage-1", "", base.Add(time.Second), 1, map[string]any{"counter": 2})
	newest := putCheckpoint(t, saver, "lineage-1", "", base.Add(2*time.Second), 2, map[string]any{"counter": 3})

	cfg := graph.CreateCheckpointConfig("lineage-1", "", "")
	tuple, err := saver.GetTuple(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, tuple)
	assert.Equal(t, newest.ID, tuple.Checkpoint.ID)
	assert.Equal(t, 3, tuple.Checkpoint.StateValues["counter"])
	// The resolved checkpoint ID is reflected back into the caller's config.
	assert.Equal(t, newest.ID, graph.GetCheckpointID(cfg))
}

func TestGetTupleMissing(t *testing.T) {
	saver := NewSaver()

	tuple, err := saver.GetTuple(context.Background(),
		graph.CreateCheckpointConfig("no-such-lineage", "", ""))
	require.NoError(t, err)
	assert.Nil(t, tuple)

	putCheckpoint(t, saver, "lineage-1", "", time.Now().UTC(), 0, map[string]any{"counter": 1})
	tuple, err = saver.GetTuple(context.Background(),
		graph.CreateCheckpointConfig("lineage-1", "no-such-checkpoint", ""))
	require.NoError(t, err)
	assert.Nil(t, tuple)
}

func TestStoredCheckpointIsIsolated(t *testing.T) {
	saver := NewSaver()

	state := map[string]any{"items": []string{"a"}}
	ckpt := graph.NewCheckpoint(state, nil)
	cfg := graph.CreateCheckpointConfig("lineage-1", "", "")
	updated, err := saver.Put(context.Background(), graph.PutRequest{
		Config:     cfg,
		Checkpoint: ckpt,
		Metadata:   graph.NewCheckpointMetadata(graph.CheckpointSourceLoop, 0),
	})
	require.NoError(t, err)

	// Mutating the caller's state after Put must not affect the stored copy.
	state["items"] = append(state["items"].([]string), "b")
	state["extra"] = true

	got, err := saver.Get(context.Background(), updated)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.StateValues["items"])
	assert.NotContains(t, got.StateValues, "extra")

	// Mutating a returned checkpoint must not affect later reads.
	got.StateValues["items"] = []string{"tampered"}
	again, err := saver.Get(context.Background(), updated)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again.StateValues["items"])
}

func TestListNewestFirst(t *testing.T) {
	saver := NewSaver()
	base := time.Now().UTC()

	var ids []string
	for i := 0; i < 3; i++ {
		ckpt := putCheckpoint(t, saver, "lineage-1", "",
			base.Add(time.Duration(i)*time.Second), i, map[string]any{"counter": i})
		ids = append(ids, ckpt.ID)
	}

	tuples, err := saver.List(context.Background(),
		graph.CreateCheckpointConfig("lineage-1", "", ""), nil)
	require.NoError(t, err)
	require.Len(t, tuples, 3)
	assert.Equal(t, ids[2], tuples[0].Checkpoint.ID)
	assert.Equal(t, ids[1], tuples[1].Checkpoint.ID)
	assert.Equal(t, ids[0], tuples[2].Checkpoint.ID)
}

func TestListWithLimitAndBefore(t *testing.T) {
	saver := NewSaver()
	base := time.Now().UTC()

	var ids []string
	for i := 0; i < 4; i++ {
		ckpt := putCheckpoint(t, saver, "lineage-1", "",
			base.Add(time.Duration(i)*time.Second), i, map[string]any{"counter": i})
		ids = append(ids, ckpt.ID)
	}

	filter := graph.NewCheckpointFilter().WithLimit(2)
	tuples, err := saver.List(context.Background(),
		graph.CreateCheckpointConfig("lineage-1", "", ""), filter)
	require.NoError(t, err)
	require.Len(t, tuples, 2)
	assert.Equal(t, ids[3], tuples[0].Checkpoint.ID)
	assert.Equal(t, ids[2], tuples[1].Checkpoint.ID)

	before := graph.CreateCheckpointConfig("lineage-1", ids[2], "")
	filter = graph.NewCheckpointFilter().WithBefore(before)
	tuples, err = saver.List(context.Background(),
		graph.CreateCheckpointConfig("lineage-1", "", ""), filter)
	require.NoError(t, err)
	require.Len(t, tuples, 2)
	assert.Equal(t, ids[1], tuples[0].Checkpoint.ID)
	assert.Equal(t, ids[0], tuples[1].Checkpoint.ID)
}

func TestListMetadataFilter(t *testing.T) {
	saver := NewSaver()
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		ckpt := graph.NewCheckpoint(map[string]any{"counter": i}, nil)
		ckpt.Timestamp = base.Add(time.Duration(i) * time.Second)
		meta := graph.NewCheckpointMetadata(graph.CheckpointSourceLoop, i)
		if i == 1 {
			meta.Extra["branch"] = "experiment"
		}
		_, err := saver.Put(context.Background(), graph.PutRequest{
			Config:     graph.CreateCheckpointConfig("lineage-1", "", ""),
			Checkpoint: ckpt,
			Metadata:   meta,
		})
		require.NoError(t, err)
	}

	filter := graph.NewCheckpointFilter().WithMetadata("branch", "experiment")
	tuples, err := saver.List(context.Background(),
		graph.CreateCheckpointConfig("lineage-1", "", ""), filter)
	require.NoError(t, err)
	require.Len(t, tuples, 1)
	assert.Equal(t, 1, tuples[0].Checkpoint.StateValues["counter"])
}

func TestPutFullStoresWrites(t *testing.T) {
	saver := NewSaver()

	ckpt := graph.NewCheckpoint(map[string]any{"counter": 1}, nil)
	writes := []graph.PendingWrite{
		{TaskID: "node-a", Key: "counter", Value: 1, Sequence: 1},
		{TaskID: "node-a", Key: "messages", Value: "hello", Sequence: 2},
	}
	updated, err := saver.PutFull(context.Background(), graph.PutFullRequest{
		Config:        graph.CreateCheckpointConfig("lineage-1", "", ""),
		Checkpoint:    ckpt,
		Metadata:      graph.NewCheckpointMetadata(graph.CheckpointSourceLoop, 0),
		PendingWrites: writes,
	})
	require.NoError(t, err)

	tuple, err := saver.GetTuple(context.Background(), updated)
	require.NoError(t, err)
	require.NotNil(t, tuple)
	require.Len(t, tuple.PendingWrites, 2)
	assert.Equal(t, "counter", tuple.PendingWrites[0].Key)
	assert.Equal(t, int64(2), tuple.PendingWrites[1].Sequence)
}

func TestPutWritesRequiresIDs(t *testing.T) {
	saver := NewSaver()

	err := saver.PutWrites(context.Background(), graph.PutWritesRequest{
		Config: graph.CreateCheckpointConfig("lineage-1", "", ""),
		Writes: []graph.PendingWrite{{TaskID: "node-a", Key: "counter", Value: 1}},
	})
	assert.ErrorIs(t, err, graph.ErrLineageIDAndCheckpointIDRequired)
}

func TestParentConfig(t *testing.T) {
	saver := NewSaver()
	base := time.Now().UTC()

	parent := putCheckpoint(t, saver, "lineage-1", "", base, 0, map[string]any{"counter": 1})

	child := parent.Fork()
	child.Timestamp = base.Add(time.Second)
	updated, err := saver.Put(context.Background(), graph.PutRequest{
		Config:     graph.CreateCheckpointConfig("lineage-1", "", ""),
		Checkpoint: child,
		Metadata:   graph.NewCheckpointMetadata(graph.CheckpointSourceFork, 1),
	})
	require.NoError(t, err)

	tuple, err := saver.GetTuple(context.Background(), updated)
	require.NoError(t, err)
	require.NotNil(t, tuple)
	assert.Equal(t, parent.ID, tuple.Checkpoint.ParentCheckpointID)
	require.NotNil(t, tuple.ParentConfig)
	assert.Equal(t, parent.ID, graph.GetCheckpointID(tuple.ParentConfig))
}

func TestMaxCheckpointsPruning(t *testing.T) {
	saver := NewSaver().WithMaxCheckpointsPerLineage(2)
	base := time.Now().UTC()

	var ids []string
	for i := 0; i < 4; i++ {
		ckpt := putCheckpoint(t, saver, "lineage-1", "",
			base.Add(time.Duration(i)*time.Second), i, map[string]any{"counter": i})
		ids = append(ids, ckpt.ID)
	}

	tuples, err := saver.List(context.Background(),
		graph.CreateCheckpointConfig("lineage-1", "", ""), nil)
	require.NoError(t, err)
	require.Len(t, tuples, 2)
	assert.Equal(t, ids[3], tuples[0].Checkpoint.ID)
	assert.Equal(t, ids[2], tuples[1].Checkpoint.ID)

	// Pruned checkpoints are gone for direct lookups too.
	tuple, err := saver.GetTuple(context.Background(),
		graph.CreateCheckpointConfig("lineage-1", ids[0], ""))
	require.NoError(t, err)
	assert.Nil(t, tuple)
}

func TestDeleteLineage(t *testing.T) {
	saver := NewSaver()

	putCheckpoint(t, saver, "lineage-1", "", time.Now().UTC(), 0, map[string]any{"counter": 1})
	putCheckpoint(t, saver, "lineage-2", "", time.Now().UTC(), 0, map[string]any{"counter": 2})

	require.NoError(t, saver.DeleteLineage(context.Background(), "lineage-1"))

	tuple, err := saver.GetTuple(context.Background(),
		graph.CreateCheckpointConfig("lineage-1", "", ""))
	require.NoError(t, err)
	assert.Nil(t, tuple)

	tuple, err = saver.GetTuple(context.Background(),
		graph.CreateCheckpointConfig("lineage-2", "", ""))
	require.NoError(t, err)
	require.NotNil(t, tuple)
	assert.Equal(t, 2, tuple.Checkpoint.StateValues["counter"])
}

func TestNamespaceIsolation(t *testing.T) {
	saver := NewSaver()
	base := time.Now().UTC()

	mainCkpt := putCheckpoint(t, saver, "lineage-1", "main", base, 0, map[string]any{"counter": 1})
	sideCkpt := putCheckpoint(t, saver, "lineage-1", "side", base.Add(time.Second), 0, map[string]any{"counter": 2})

	tuple, err := saver.GetTuple(context.Background(),
		graph.CreateCheckpointConfig("lineage-1", "", "main"))
	require.NoError(t, err)
	require.NotNil(t, tuple)
	assert.Equal(t, mainCkpt.ID, tuple.Checkpoint.ID)

	// An empty namespace searches across namespaces and finds the newest.
	crossNS := map[string]any{
		graph.CfgKeyConfigurable: map[string]any{
			graph.CfgKeyLineageID:    "lineage-1",
			graph.CfgKeyCheckpointNS: "",
		},
	}
	tuple, err = saver.GetTuple(context.Background(), crossNS)
	require.NoError(t, err)
	require.NotNil(t, tuple)
	assert.Equal(t, sideCkpt.ID, tuple.Checkpoint.ID)
}

func TestClose(t *testing.T) {
	saver := NewSaver()
	putCheckpoint(t, saver, "lineage-1", "", time.Now().UTC(), 0, map[string]any{"counter": 1})

	require.NoError(t, saver.Close())

	tuple, err := saver.GetTuple(context.Background(),
		graph.CreateCheckpointConfig("lineage-1", "", ""))
	require.NoError(t, err)
	assert.Nil(t, tuple)
}
