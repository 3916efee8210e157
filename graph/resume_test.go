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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterruptPausesWithPrompt(t *testing.T) {
	state := State{}
	value, err := Interrupt(context.Background(), state, "approval", "proceed?")

	require.Error(t, err)
	assert.Nil(t, value)

	interruptErr, ok := GetInterruptError(err)
	require.True(t, ok)
	assert.Equal(t, "proceed?", interruptErr.Value)
	assert.False(t, interruptErr.Timestamp.IsZero())
}

func TestInterruptConsumesStagedResumeValue(t *testing.T) {
	state := State{StateKeyResume: true}

	value, err := Interrupt(context.Background(), state, "approval", "proceed?")
	require.NoError(t, err)
	assert.Equal(t, true, value)
	// Consumed so it cannot leak into another interrupt key.
	assert.NotContains(t, state, StateKeyResume)
}

func TestInterruptReplaysUsedValueOnReexecution(t *testing.T) {
	state := State{StateKeyResume: "first answer"}

	value, err := Interrupt(context.Background(), state, "approval", "proceed?")
	require.NoError(t, err)
	assert.Equal(t, "first answer", value)

	// The node re-executes from the top after a later interrupt; the same
	// key yields the recorded value instead of consuming anything new.
	state[StateKeyResume] = "second answer"
	value, err = Interrupt(context.Background(), state, "approval", "proceed?")
	require.NoError(t, err)
	assert.Equal(t, "first answer", value)

	// A different key consumes the fresh value.
	value, err = Interrupt(context.Background(), state, "confirmation", "sure?")
	require.NoError(t, err)
	assert.Equal(t, "second answer", value)
}

func TestInterruptUsesKeyedResumeMap(t *testing.T) {
	state := State{StateKeyResumeMap: map[string]any{"approval": "yes", "other": "no"}}

	value, err := Interrupt(context.Background(), state, "approval", "proceed?")
	require.NoError(t, err)
	assert.Equal(t, "yes", value)

	resumeMap := state[StateKeyResumeMap].(map[string]any)
	assert.NotContains(t, resumeMap, "approval")
	assert.Equal(t, "no", resumeMap["other"])
}

func TestInterruptUnkeyedValueWinsOverMap(t *testing.T) {
	state := State{
		StateKeyResume:    "direct",
		StateKeyResumeMap: map[string]any{"approval": "mapped"},
	}

	value, err := Interrupt(context.Background(), state, "approval", "proceed?")
	require.NoError(t, err)
	assert.Equal(t, "direct", value)
}

func TestResumeValueTyped(t *testing.T) {
	ctx := context.Background()

	state := State{StateKeyResume: 42}
	value, ok := ResumeValue[int](ctx, state, "any")
	require.True(t, ok)
	assert.Equal(t, 42, value)
	assert.NotContains(t, state, StateKeyResume)

	// Wrong type does not consume the value.
	state = State{StateKeyResume: "text"}
	_, ok = ResumeValue[int](ctx, state, "any")
	assert.False(t, ok)
	assert.Contains(t, state, StateKeyResume)

	state = State{StateKeyResumeMap: map[string]any{"task": "answer"}}
	text, ok := ResumeValue[string](ctx, state, "task")
	require.True(t, ok)
	assert.Equal(t, "answer", text)
	assert.NotContains(t, state[StateKeyResumeMap].(map[string]any), "task")
}

func TestResumeValueOrDefault(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "fallback", ResumeValueOrDefault(ctx, State{}, "task", "fallback"))
	assert.Equal(t, "staged",
		ResumeValueOrDefault(ctx, State{StateKeyResume: "staged"}, "task", "fallback"))
}

func TestHasResumeValue(t *testing.T) {
	assert.False(t, HasResumeValue(State{}, "task"))
	assert.True(t, HasResumeValue(State{StateKeyResume: 1}, "task"))
	assert.True(t, HasResumeValue(State{StateKeyResumeMap: map[string]any{"task": 1}}, "task"))
	assert.False(t, HasResumeValue(State{StateKeyResumeMap: map[string]any{"other": 1}}, "task"))
}

func TestClearResumeValue(t *testing.T) {
	state := State{StateKeyResumeMap: map[string]any{"task": 1, "keep": 2}}
	ClearResumeValue(state, "task")
	resumeMap := state[StateKeyResumeMap].(map[string]any)
	assert.NotContains(t, resumeMap, "task")
	assert.Contains(t, resumeMap, "keep")
}

func TestClearAllResumeValues(t *testing.T) {
	state := State{
		StateKeyResume:    1,
		StateKeyResumeMap: map[string]any{"task": 1},
	}
	ClearAllResumeValues(state)
	assert.NotContains(t, state, StateKeyResume)
	assert.NotContains(t, state, StateKeyResumeMap)
}

func TestResumeCommandBuilders(t *testing.T) {
	cmd := NewResumeCommand().WithResume("answer")
	assert.Equal(t, "answer", cmd.Resume)

	cmd = NewResumeCommand().AddResumeValue("task-1", true).AddResumeValue("task-2", false)
	assert.Equal(t, map[string]any{"task-1": true, "task-2": false}, cmd.ResumeMap)

	cmd = (&ResumeCommand{}).AddResumeValue("task", 1)
	assert.Equal(t, 1, cmd.ResumeMap["task"])

	cmd = NewResumeCommand().WithResumeMap(map[string]any{"k": "v"})
	assert.Equal(t, "v", cmd.ResumeMap["k"])
}
