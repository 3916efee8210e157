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

func TestDeepCopyAnyScalars(t *testing.T) {
	assert.Nil(t, deepCopyAny(nil))
	assert.Equal(t, 42, deepCopyAny(42))
	assert.Equal(t, "text", deepCopyAny("text"))
	assert.Equal(t, 1.5, deepCopyAny(1.5))
	assert.Equal(t, true, deepCopyAny(true))

	now := time.Now()
	assert.Equal(t, now, deepCopyAny(now))
}

func TestDeepCopyAnyMapIsolation(t *testing.T) {
	original := map[string]any{
		"counter": 1,
		"nested":  map[string]any{"inner": []any{1, "two"}},
	}

	copied := deepCopyAny(original).(map[string]any)
	original["counter"] = 99
	original["nested"].(map[string]any)["inner"].([]any)[0] = 99

	assert.Equal(t, 1, copied["counter"])
	assert.Equal(t, 1, copied["nested"].(map[string]any)["inner"].([]any)[0])
}

func TestDeepCopyAnyTypedSlices(t *testing.T) {
	strs := []string{"a", "b"}
	copiedStrs := deepCopyAny(strs).([]string)
	strs[0] = "z"
	assert.Equal(t, []string{"a", "b"}, copiedStrs)

	ints := []int{1, 2}
	copiedInts := deepCopyAny(ints).([]int)
	ints[0] = 9
	assert.Equal(t, []int{1, 2}, copiedInts)

	msgs := []Message{NewUserMessage("hi")}
	copiedMsgs := deepCopyAny(msgs).([]Message)
	msgs[0].Content = "changed"
	assert.Equal(t, "hi", copiedMsgs[0].Content)
}

func TestDeepCopyAnyStructAndPointer(t *testing.T) {
	type payload struct {
		Name string
		Tags []string
	}

	src := &payload{Name: "p", Tags: []string{"x"}}
	copied, ok := deepCopyAny(src).(*payload)
	require.True(t, ok)
	require.NotSame(t, src, copied)

	src.Name = "changed"
	src.Tags[0] = "changed"
	assert.Equal(t, "p", copied.Name)
	assert.Equal(t, []string{"x"}, copied.Tags)
}

func TestDeepCopyAnyCyclicMap(t *testing.T) {
	cyclic := map[string]any{"value": 1}
	cyclic["self"] = cyclic

	// Must terminate and preserve the cycle in the copy.
	copied := deepCopyAny(cyclic).(map[string]any)
	assert.Equal(t, 1, copied["value"])

	inner, ok := copied["self"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, inner["value"])

	cyclic["value"] = 2
	assert.Equal(t, 1, copied["value"])
}

func TestDeepCopyAnyDropsFunctions(t *testing.T) {
	copied := deepCopyAny(map[string]any{"fn": func() {}}).(map[string]any)
	assert.Nil(t, copied["fn"])
}
