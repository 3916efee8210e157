//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCheckpoint(t *testing.T) {
	ckpt := NewCheckpoint(nil, nil)

	assert.Equal(t, CheckpointVersion, ckpt.Version)
	assert.NotEmpty(t, ckpt.ID)
	assert.Equal(t, time.UTC, ckpt.Timestamp.Location())
	assert.NotNil(t, ckpt.StateValues)
	assert.NotNil(t, ckpt.FieldVersions)

	other := NewCheckpoint(nil, nil)
	assert.NotEqual(t, ckpt.ID, other.ID)
}

func TestCheckpointCopyIsDeepAndTyped(t *testing.T) {
	ckpt := NewCheckpoint(map[string]any{
		"counter": 3,
		"nested":  map[string]any{"k": "v"},
		"list":    []string{"a"},
	}, map[string]int64{"counter": 2})
	ckpt.NextNodes = []string{"next"}
	ckpt.UpdatedFields = []string{"counter"}

	clone := ckpt.Copy()

	// Same identity, independent storage.
	assert.Equal(t, ckpt.ID, clone.ID)
	assert.Equal(t, ckpt.Timestamp, clone.Timestamp)

	ckpt.StateValues["counter"] = 99
	ckpt.StateValues["nested"].(map[string]any)["k"] = "changed"
	ckpt.FieldVersions["counter"] = 9
	ckpt.NextNodes[0] = "changed"

	assert.Equal(t, 3, clone.StateValues["counter"], "values keep their Go type through Copy")
	assert.Equal(t, "v", clone.StateValues["nested"].(map[string]any)["k"])
	assert.Equal(t, int64(2), clone.FieldVersions["counter"])
	assert.Equal(t, []string{"next"}, clone.NextNodes)
}

func TestCheckpointCopyInterruptState(t *testing.T) {
	ckpt := NewCheckpoint(nil, nil)
	ckpt.SetInterruptState("approve", "approve", "proceed?", 4, []string{"approve"})
	ckpt.AddResumeValue(true)

	clone := ckpt.Copy()
	require.NotNil(t, clone.InterruptState)
	assert.Equal(t, "approve", clone.InterruptState.NodeID)
	assert.Equal(t, "proceed?", clone.InterruptState.InterruptValue)
	assert.Equal(t, 4, clone.InterruptState.Step)
	assert.Equal(t, []any{true}, clone.InterruptState.ResumeValues)

	ckpt.InterruptState.Path[0] = "changed"
	assert.Equal(t, "approve", clone.InterruptState.Path[0])
}

func TestCheckpointFork(t *testing.T) {
	ckpt := NewCheckpoint(map[string]any{"counter": 1}, nil)

	forked := ckpt.Fork()

	assert.NotEqual(t, ckpt.ID, forked.ID)
	assert.Equal(t, ckpt.ID, forked.ParentCheckpointID)
	assert.False(t, forked.Timestamp.Before(ckpt.Timestamp))
	assert.Equal(t, 1, forked.StateValues["counter"])
}

func TestCheckpointInterruptHelpers(t *testing.T) {
	ckpt := NewCheckpoint(nil, nil)
	assert.False(t, ckpt.IsInterrupted())
	assert.Nil(t, ckpt.GetInterruptValue())
	assert.Nil(t, ckpt.GetResumeValues())

	ckpt.SetInterruptState("ask", "task-1", "question", 2, []string{"ask"})
	assert.True(t, ckpt.IsInterrupted())
	assert.Equal(t, "question", ckpt.GetInterruptValue())

	ckpt.AddResumeValue("answer")
	assert.Equal(t, []any{"answer"}, ckpt.GetResumeValues())

	ckpt.ClearInterruptState()
	assert.False(t, ckpt.IsInterrupted())
}

func TestNewCheckpointMetadata(t *testing.T) {
	meta := NewCheckpointMetadata(CheckpointSourceLoop, 5)
	assert.Equal(t, CheckpointSourceLoop, meta.Source)
	assert.Equal(t, 5, meta.Step)
	assert.NotNil(t, meta.Parents)
	assert.NotNil(t, meta.Extra)
}

func TestCheckpointConfigToMap(t *testing.T) {
	config := NewCheckpointConfig("lineage-1").
		WithCheckpointID("ckpt-1").
		WithNamespace("branch").
		WithResumeMap(map[string]any{"task": "yes"}).
		WithExtra("tag", "demo").
		ToMap()

	assert.Equal(t, "lineage-1", GetLineageID(config))
	assert.Equal(t, "ckpt-1", GetCheckpointID(config))
	assert.Equal(t, "branch", GetNamespace(config))
	assert.Equal(t, map[string]any{"task": "yes"}, GetResumeMap(config))
	assert.Equal(t, "demo", config["tag"])
}

func TestNewCheckpointConfigPanicsOnEmptyLineage(t *testing.T) {
	assert.Panics(t, func() { NewCheckpointConfig("") })
	assert.Panics(t, func() { CreateCheckpointConfig("", "", "") })
}

func TestCreateCheckpointConfig(t *testing.T) {
	config := CreateCheckpointConfig("lineage-1", "", "")

	assert.Equal(t, "lineage-1", GetLineageID(config))
	assert.Empty(t, GetCheckpointID(config))
	// The namespace key is always present, even for the default namespace.
	configurable := config[CfgKeyConfigurable].(map[string]any)
	_, ok := configurable[CfgKeyCheckpointNS]
	assert.True(t, ok)
}

func TestConfigExtractorsOnMissingData(t *testing.T) {
	assert.Empty(t, GetLineageID(nil))
	assert.Empty(t, GetCheckpointID(nil))
	assert.Equal(t, DefaultCheckpointNamespace, GetNamespace(nil))
	assert.Nil(t, GetResumeMap(nil))

	empty := map[string]any{}
	assert.Empty(t, GetLineageID(empty))
	assert.Equal(t, DefaultCheckpointNamespace, GetNamespace(empty))
}

func TestCheckpointFilterBuilders(t *testing.T) {
	before := CreateCheckpointConfig("lineage-1", "ckpt-9", "")
	filter := NewCheckpointFilter().
		WithBefore(before).
		WithLimit(10).
		WithMetadata("source", CheckpointSourceLoop)

	assert.Equal(t, before, filter.Before)
	assert.Equal(t, 10, filter.Limit)
	assert.Equal(t, CheckpointSourceLoop, filter.Metadata["source"])
}

func TestBumpFieldVersions(t *testing.T) {
	versions := map[string]int64{}
	state := State{"counter": 1, "log": []string{"a"}, StateKeyCurrentNode: "a"}

	// First sighting registers every public field at the default version.
	updated := bumpFieldVersions(versions, state, nil)
	assert.Equal(t, []string{"counter", "log"}, updated)
	assert.Equal(t, int64(DefaultFieldVersion), versions["counter"])
	assert.NotContains(t, versions, StateKeyCurrentNode)

	// A delta bumps only the touched field.
	updated = bumpFieldVersions(versions, state, State{"counter": 2})
	assert.Equal(t, []string{"counter"}, updated)
	assert.Equal(t, int64(2), versions["counter"])
	assert.Equal(t, int64(1), versions["log"])
}

func TestSnapshotStateValues(t *testing.T) {
	state := State{
		"counter":           1,
		"nested":            map[string]any{"k": "v"},
		StateKeyExecContext: &ExecutionContext{},
		StateKeyCommand:     &Command{},
		StateKeyCurrentNode: "a",
	}

	snapshot := snapshotStateValues(state)

	assert.Equal(t, 1, snapshot["counter"])
	assert.NotContains(t, snapshot, StateKeyExecContext)
	assert.NotContains(t, snapshot, StateKeyCommand)
	assert.NotContains(t, snapshot, StateKeyCurrentNode)

	// The snapshot is detached from the live state.
	state["nested"].(map[string]any)["k"] = "changed"
	assert.Equal(t, "v", snapshot["nested"].(map[string]any)["k"])
}

func TestMarshalDelta(t *testing.T) {
	assert.Nil(t, marshalDelta(nil))
	assert.Nil(t, marshalDelta(State{}))
	assert.Nil(t, marshalDelta(State{StateKeyCurrentNode: "a"}))

	delta := marshalDelta(State{"counter": 3, StateKeyResume: "skip", "bad": func() {}})
	require.NotNil(t, delta)
	assert.Equal(t, "3", string(delta["counter"]))
	assert.NotContains(t, delta, StateKeyResume)
	// Unserializable values are dropped, not fatal.
	assert.NotContains(t, delta, "bad")
}
