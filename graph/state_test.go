package graph

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterSchema() *StateSchema {
	return NewStateSchema().
		AddField("counter", StateField{
			Type:    reflect.TypeOf(0),
			Reducer: DefaultReducer,
			Default: func() any { return 0 },
		}).
		AddField("log", StateField{
			Type:    reflect.TypeOf([]string{}),
			Reducer: StringSliceReducer,
			Default: func() any { return []string{} },
		})
}

func TestStateClone(t *testing.T) {
	original := State{"a": 1, "b": "x"}
	clone := original.Clone()

	clone["a"] = 2
	clone["c"] = true

	assert.Equal(t, 1, original["a"])
	assert.NotContains(t, original, "c")
}

func TestSchemaAddFieldDefaultsReducer(t *testing.T) {
	schema := NewStateSchema().AddField("plain", StateField{Type: reflect.TypeOf("")})
	field, ok := schema.Field("plain")
	require.True(t, ok)
	require.NotNil(t, field.Reducer)
	assert.Equal(t, "new", field.Reducer("old", "new"))
}

func TestSchemaFieldNames(t *testing.T) {
	names := counterSchema().FieldNames()
	assert.ElementsMatch(t, []string{"counter", "log"}, names)
}

func TestSchemaApplyMergesThroughReducers(t *testing.T) {
	schema := counterSchema()
	current := State{"counter": 1, "log": []string{"first"}}

	merged, err := schema.Apply(current, State{"counter": 2, "log": []string{"second"}})
	require.NoError(t, err)

	assert.Equal(t, 2, merged["counter"])
	assert.Equal(t, []string{"first", "second"}, merged["log"])
	// The input state is never mutated.
	assert.Equal(t, 1, current["counter"])
	assert.Equal(t, []string{"first"}, current["log"])
}

func TestSchemaApplyRejectsUndeclaredField(t *testing.T) {
	schema := counterSchema()
	_, err := schema.Apply(State{}, State{"surprise": 1})
	require.Error(t, err)

	schemaErr, ok := AsSchemaError(err)
	require.True(t, ok)
	assert.Equal(t, "surprise", schemaErr.Field)
}

func TestSchemaApplyInternalKeysBypassSchema(t *testing.T) {
	schema := counterSchema()
	merged, err := schema.Apply(State{}, State{"__scratch__": "ok"})
	require.NoError(t, err)
	assert.Equal(t, "ok", merged["__scratch__"])
}

func TestSchemaApplyUsesDefaultAsExisting(t *testing.T) {
	schema := counterSchema()
	// "log" is absent, so the reducer sees the default empty slice.
	merged, err := schema.Apply(State{}, State{"log": []string{"only"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, merged["log"])
}

func TestSchemaApplyDefaults(t *testing.T) {
	schema := counterSchema()
	state := schema.ApplyDefaults(State{"counter": 5})

	assert.Equal(t, 5, state["counter"])
	assert.Equal(t, []string{}, state["log"])
}

func TestSchemaValidate(t *testing.T) {
	schema := NewStateSchema().
		AddField("name", StateField{Type: reflect.TypeOf(""), Required: true}).
		AddField("count", StateField{Type: reflect.TypeOf(0)})

	tests := []struct {
		name    string
		state   State
		wantErr string
	}{
		{name: "valid", state: State{"name": "ok", "count": 3}},
		{name: "internal keys are skipped", state: State{"name": "ok", "__hidden__": struct{}{}}},
		{name: "nil value passes the type check", state: State{"name": "ok", "count": nil}},
		{name: "undeclared field", state: State{"name": "ok", "extra": 1}, wantErr: "not declared"},
		{name: "missing required field", state: State{"count": 1}, wantErr: "required field is missing"},
		{name: "wrong type", state: State{"name": 42}, wantErr: "wrong type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate(tt.state)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			_, ok := AsSchemaError(err)
			assert.True(t, ok)
		})
	}
}

func TestPublicStateStripsInternalKeys(t *testing.T) {
	state := State{
		"counter":           3,
		StateKeyExecContext: &ExecutionContext{},
		StateKeyCurrentNode: "a",
		StateKeyResume:      "value",
	}
	public := publicState(state)

	assert.Equal(t, State{"counter": 3}, public)
}

func TestDefaultReducer(t *testing.T) {
	assert.Equal(t, "new", DefaultReducer("old", "new"))
	assert.Nil(t, DefaultReducer("old", nil))
}

func TestAppendReducer(t *testing.T) {
	merged := AppendReducer(nil, []any{1})
	assert.Equal(t, []any{1}, merged)

	merged = AppendReducer([]any{1}, []any{2, 3})
	assert.Equal(t, []any{1, 2, 3}, merged)

	// Non-slice inputs fall back to replacement.
	assert.Equal(t, "x", AppendReducer([]any{1}, "x"))
}

func TestAppendReducerDoesNotAliasExisting(t *testing.T) {
	existing := []any{1}
	merged := AppendReducer(existing, []any{2}).([]any)
	merged[0] = 99
	assert.Equal(t, 1, existing[0])
}

func TestStringSliceReducer(t *testing.T) {
	merged := StringSliceReducer(nil, []string{"a"})
	assert.Equal(t, []string{"a"}, merged)

	merged = StringSliceReducer([]string{"a"}, []string{"b"})
	assert.Equal(t, []string{"a", "b"}, merged)

	assert.Equal(t, 7, StringSliceReducer([]string{"a"}, 7))
}

func TestMergeReducer(t *testing.T) {
	merged := MergeReducer(nil, map[string]any{"a": 1})
	assert.Equal(t, map[string]any{"a": 1}, merged)

	merged = MergeReducer(map[string]any{"a": 1, "b": 2}, map[string]any{"b": 3, "c": 4})
	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 4}, merged)

	assert.Equal(t, "x", MergeReducer(map[string]any{}, "x"))
}

func TestMessageReducer(t *testing.T) {
	first := NewUserMessage("hi")
	second := NewAssistantMessage("bot", "hello")

	merged := MessageReducer(nil, []Message{first})
	assert.Equal(t, []Message{first}, merged)

	merged = MessageReducer([]Message{first}, []Message{second})
	assert.Equal(t, []Message{first, second}, merged)

	// A bare message is appended as a single element.
	merged = MessageReducer([]Message{first}, second)
	assert.Equal(t, []Message{first, second}, merged)

	assert.Equal(t, 1, MessageReducer([]Message{first}, 1))
}
