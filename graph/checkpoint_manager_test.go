//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package graph_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-graph-go/graph"
	"trpc.group/trpc-go/trpc-graph-go/graph/checkpoint/inmemory"
)

// putCheckpoint stores a checkpoint with a fixed timestamp so ordering in
// the tests does not depend on the clock.
func putCheckpoint(
	t *testing.T,
	saver graph.CheckpointSaver,
	lineageID, namespace string,
	values map[string]any,
	ts time.Time,
	step int,
) *graph.Checkpoint {
	t.Helper()
	ckpt := graph.NewCheckpoint(values, nil)
	ckpt.Timestamp = ts
	_, err := saver.Put(context.Background(), graph.PutRequest{
		Config:     graph.CreateCheckpointConfig(lineageID, "", namespace),
		Checkpoint: ckpt,
		Metadata:   graph.NewCheckpointMetadata(graph.CheckpointSourceInput, step),
	})
	require.NoError(t, err)
	return ckpt
}

func TestManagerCreateCheckpointCarriesVersions(t *testing.T) {
	manager := graph.NewCheckpointManager(inmemory.NewSaver())
	ctx := context.Background()
	cfg := graph.CreateCheckpointConfig("lin-versions", "", "")

	first, err := manager.CreateCheckpoint(ctx, cfg,
		graph.State{"a": 1, "b": "x"}, graph.CheckpointSourceInput, 0)
	require.NoError(t, err)
	assert.Empty(t, first.ParentCheckpointID)
	assert.Equal(t, map[string]int64{"a": 1, "b": 1}, first.FieldVersions)
	assert.Equal(t, []string{"a", "b"}, first.UpdatedFields)

	// Only the changed field is bumped; the parent is the previous latest.
	second, err := manager.CreateCheckpoint(ctx, cfg,
		graph.State{"a": 2, "b": "x"}, graph.CheckpointSourceUpdate, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ParentCheckpointID)
	assert.Equal(t, map[string]int64{"a": 2, "b": 1}, second.FieldVersions)
	assert.Equal(t, []string{"a"}, second.UpdatedFields)
}

func TestManagerLatestSearchesAcrossNamespaces(t *testing.T) {
	saver := inmemory.NewSaver()
	manager := graph.NewCheckpointManager(saver)
	ctx := context.Background()

	base := time.Now().UTC()
	putCheckpoint(t, saver, "lin-ns", "", map[string]any{"v": "main"}, base, 0)
	branch := putCheckpoint(t, saver, "lin-ns", "experiment",
		map[string]any{"v": "branch"}, base.Add(time.Second), 1)

	// An empty namespace searches every namespace of the lineage.
	latest, err := manager.Latest(ctx, "lin-ns", "")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, branch.ID, latest.Checkpoint.ID)

	scoped, err := manager.Latest(ctx, "lin-ns", "experiment")
	require.NoError(t, err)
	require.NotNil(t, scoped)
	assert.Equal(t, branch.ID, scoped.Checkpoint.ID)

	missing, err := manager.Latest(ctx, "lin-ns", "virgin")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestManagerGotoAndResumeFromCheckpoint(t *testing.T) {
	saver := inmemory.NewSaver()
	manager := graph.NewCheckpointManager(saver)
	ctx := context.Background()

	base := time.Now().UTC()
	first := putCheckpoint(t, saver, "lin-goto", "", map[string]any{"mark": "one"}, base, 0)
	putCheckpoint(t, saver, "lin-goto", "", map[string]any{"mark": "two"}, base.Add(time.Second), 1)

	// Goto targets a specific checkpoint, not the latest one.
	tuple, err := manager.Goto(ctx, "lin-goto", "", first.ID)
	require.NoError(t, err)
	require.NotNil(t, tuple)
	assert.Equal(t, first.ID, tuple.Checkpoint.ID)
	assert.Equal(t, "one", tuple.Checkpoint.StateValues["mark"])

	state, err := manager.ResumeFromCheckpoint(ctx,
		graph.CreateCheckpointConfig("lin-goto", first.ID, ""))
	require.NoError(t, err)
	assert.Equal(t, "one", state["mark"])

	_, err = manager.ResumeFromCheckpoint(ctx,
		graph.CreateCheckpointConfig("lin-goto", "no-such-id", ""))
	require.ErrorIs(t, err, graph.ErrCheckpointNotFound)
}

func TestManagerBranchFrom(t *testing.T) {
	saver := inmemory.NewSaver()
	manager := graph.NewCheckpointManager(saver)
	ctx := context.Background()

	source := putCheckpoint(t, saver, "lin-branch", "", map[string]any{"cursor": 5}, time.Now().UTC(), 4)

	branch, err := manager.BranchFrom(ctx, "lin-branch", "", source.ID, "experiment")
	require.NoError(t, err)
	require.NotNil(t, branch)

	// The branch is a fork: new identity, same state, source step kept.
	assert.NotEqual(t, source.ID, branch.Checkpoint.ID)
	assert.Equal(t, source.ID, branch.Checkpoint.ParentCheckpointID)
	assert.Equal(t, 5, branch.Checkpoint.StateValues["cursor"])
	require.NotNil(t, branch.Metadata)
	assert.Equal(t, graph.CheckpointSourceFork, branch.Metadata.Source)
	assert.Equal(t, 4, branch.Metadata.Step)

	// The branch lives in the new namespace.
	scoped, err := manager.Latest(ctx, "lin-branch", "experiment")
	require.NoError(t, err)
	require.NotNil(t, scoped)
	assert.Equal(t, branch.Checkpoint.ID, scoped.Checkpoint.ID)

	// Both checkpoints remain part of the lineage.
	all, err := manager.ListCheckpoints(ctx,
		graph.CreateCheckpointConfig("lin-branch", "", ""), nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// The parent resolves across namespaces.
	parent, err := manager.GetParent(ctx,
		graph.CreateCheckpointConfig("lin-branch", branch.Checkpoint.ID, "experiment"))
	require.NoError(t, err)
	require.NotNil(t, parent)
	assert.Equal(t, source.ID, parent.Checkpoint.ID)

	// The source itself has no parent.
	orphan, err := manager.GetParent(ctx,
		graph.CreateCheckpointConfig("lin-branch", source.ID, ""))
	require.NoError(t, err)
	assert.Nil(t, orphan)
}

func TestManagerBranchToNewLineage(t *testing.T) {
	saver := inmemory.NewSaver()
	manager := graph.NewCheckpointManager(saver)
	ctx := context.Background()

	source := putCheckpoint(t, saver, "lin-old", "", map[string]any{"seed": 7}, time.Now().UTC(), 2)

	moved, err := manager.BranchToNewLineage(ctx, "lin-old", "", source.ID, "lin-new", "")
	require.NoError(t, err)
	require.NotNil(t, moved)
	assert.Equal(t, source.ID, moved.Checkpoint.ParentCheckpointID)
	assert.Equal(t, 7, moved.Checkpoint.StateValues["seed"])
	require.NotNil(t, moved.Metadata)
	assert.Equal(t, graph.CheckpointSourceFork, moved.Metadata.Source)
	assert.Equal(t, "lin-old", moved.Metadata.Extra["source_lineage"])
	assert.Equal(t, source.ID, moved.Metadata.Extra["source_checkpoint"])

	latest, err := manager.Latest(ctx, "lin-new", "")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, moved.Checkpoint.ID, latest.Checkpoint.ID)

	// The source lineage is untouched.
	oldLatest, err := manager.Latest(ctx, "lin-old", "")
	require.NoError(t, err)
	require.NotNil(t, oldLatest)
	assert.Equal(t, source.ID, oldLatest.Checkpoint.ID)
}

func TestManagerCheckpointTree(t *testing.T) {
	saver := inmemory.NewSaver()
	manager := graph.NewCheckpointManager(saver)
	ctx := context.Background()

	base := time.Now().UTC()
	root := putCheckpoint(t, saver, "lin-tree", "", map[string]any{"n": 0}, base, 0)

	// A fork taken immediately, then a regular successor a bit later.
	branch, err := manager.BranchFrom(ctx, "lin-tree", "", root.ID, "fork-ns")
	require.NoError(t, err)

	child := graph.NewCheckpoint(map[string]any{"n": 1}, nil)
	child.ParentCheckpointID = root.ID
	child.Timestamp = base.Add(2 * time.Second)
	_, err = saver.Put(ctx, graph.PutRequest{
		Config:     graph.CreateCheckpointConfig("lin-tree", "", ""),
		Checkpoint: child,
		Metadata:   graph.NewCheckpointMetadata(graph.CheckpointSourceLoop, 1),
	})
	require.NoError(t, err)

	tree, err := manager.GetCheckpointTree(ctx, "lin-tree")
	require.NoError(t, err)
	require.NotNil(t, tree.Root)
	assert.Equal(t, root.ID, tree.Root.Checkpoint.Checkpoint.ID)
	assert.Len(t, tree.Branches, 3)

	// Children are ordered oldest first.
	require.Len(t, tree.Root.Children, 2)
	assert.Equal(t, branch.Checkpoint.ID, tree.Root.Children[0].Checkpoint.Checkpoint.ID)
	assert.Equal(t, child.ID, tree.Root.Children[1].Checkpoint.Checkpoint.ID)

	children, err := manager.ListChildren(ctx,
		graph.CreateCheckpointConfig("lin-tree", root.ID, ""))
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, branch.Checkpoint.ID, children[0].Checkpoint.ID)
	assert.Equal(t, child.ID, children[1].Checkpoint.ID)
}

func TestManagerDeleteLineage(t *testing.T) {
	saver := inmemory.NewSaver()
	manager := graph.NewCheckpointManager(saver)
	ctx := context.Background()

	base := time.Now().UTC()
	putCheckpoint(t, saver, "lin-del", "", map[string]any{"n": 1}, base, 0)
	putCheckpoint(t, saver, "lin-del", "side", map[string]any{"n": 2}, base.Add(time.Second), 1)

	require.NoError(t, manager.DeleteLineage(ctx, "lin-del"))

	latest, err := manager.Latest(ctx, "lin-del", "")
	require.NoError(t, err)
	assert.Nil(t, latest)

	all, err := manager.ListCheckpoints(ctx,
		graph.CreateCheckpointConfig("lin-del", "", ""), nil)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestManagerWithoutSaver(t *testing.T) {
	manager := graph.NewCheckpointManager(nil)
	ctx := context.Background()
	cfg := graph.CreateCheckpointConfig("lin-none", "", "")

	_, err := manager.CreateCheckpoint(ctx, cfg, graph.State{}, graph.CheckpointSourceInput, 0)
	assert.ErrorContains(t, err, "saver is not configured")

	_, err = manager.Latest(ctx, "lin-none", "")
	assert.ErrorContains(t, err, "saver is not configured")

	_, err = manager.ListCheckpoints(ctx, cfg, nil)
	assert.ErrorContains(t, err, "saver is not configured")

	assert.Error(t, manager.DeleteLineage(ctx, "lin-none"))

	// ResumeFromCheckpoint treats a missing saver as "nothing to restore".
	state, err := manager.ResumeFromCheckpoint(ctx, cfg)
	require.NoError(t, err)
	assert.Nil(t, state)
}
