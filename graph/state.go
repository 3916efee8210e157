package graph

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// State represents the state that flows through the graph.
// This is the shared data structure that flows between nodes.
type State map[string]any

// Clone creates a shallow copy of the state map. Values are shared;
// checkpointing deep-copies separately.
func (s State) Clone() State {
	clone := make(State, len(s))
	for k, v := range s {
		clone[k] = v
	}
	return clone
}

// StateReducer is a function that determines how state updates are merged.
// It takes existing and new values and returns the merged result.
type StateReducer func(existing, update any) any

// StateField defines a field in the state schema with its type and reducer.
type StateField struct {
	Type     reflect.Type
	Reducer  StateReducer
	Default  func() any
	Required bool
}

// StateSchema defines the structure and behavior of graph state.
// Every field a node may write must be declared here; updates to
// undeclared fields are rejected with a SchemaError.
type StateSchema struct {
	mu     sync.RWMutex
	Fields map[string]StateField
}

// NewStateSchema creates a new state schema.
func NewStateSchema() *StateSchema {
	return &StateSchema{
		Fields: make(map[string]StateField),
	}
}

// AddField adds a field to the state schema.
func (s *StateSchema) AddField(name string, field StateField) *StateSchema {
	s.mu.Lock()
	defer s.mu.Unlock()

	if field.Reducer == nil {
		field.Reducer = DefaultReducer
	}

	s.Fields[name] = field
	return s
}

// Field returns the declared field and whether it exists.
func (s *StateSchema) Field(name string) (StateField, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	field, ok := s.Fields[name]
	return field, ok
}

// FieldNames returns the declared field names.
func (s *StateSchema) FieldNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	return names
}

// Apply merges an update into the current state using the declared
// reducers and returns the merged state. The current state is not
// mutated. Updates to fields the schema does not declare fail with a
// SchemaError; keys with the internal "__" prefix bypass the schema.
func (s *StateSchema) Apply(current State, update State) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := current.Clone()
	for key, updateValue := range update {
		if strings.HasPrefix(key, "__") {
			result[key] = updateValue
			continue
		}
		field, exists := s.Fields[key]
		if !exists {
			return nil, &SchemaError{Field: key, Reason: "field is not declared in the state schema"}
		}
		currentValue, hasCurrentValue := result[key]
		if !hasCurrentValue && field.Default != nil {
			currentValue = field.Default()
		}
		result[key] = field.Reducer(currentValue, updateValue)
	}
	return result, nil
}

// ApplyDefaults fills in defaults for declared fields the state does not
// carry yet. The input state is not mutated.
func (s *StateSchema) ApplyDefaults(state State) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := state.Clone()
	for name, field := range s.Fields {
		if _, exists := result[name]; !exists && field.Default != nil {
			result[name] = field.Default()
		}
	}
	return result
}

// Validate validates a state against the schema. Undeclared non-internal
// fields, missing required fields and type mismatches are reported as
// SchemaErrors.
func (s *StateSchema) Validate(state State) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for name := range state {
		if strings.HasPrefix(name, "__") {
			continue
		}
		if _, exists := s.Fields[name]; !exists {
			return &SchemaError{Field: name, Reason: "field is not declared in the state schema"}
		}
	}
	for name, field := range s.Fields {
		value, exists := state[name]

		if field.Required && !exists {
			return &SchemaError{Field: name, Reason: "required field is missing"}
		}

		if exists && value != nil && field.Type != nil {
			valueType := reflect.TypeOf(value)
			if !valueType.AssignableTo(field.Type) {
				return &SchemaError{
					Field:  name,
					Reason: fmt.Sprintf("wrong type: expected %v, got %v", field.Type, valueType),
				}
			}
		}
	}
	return nil
}

// publicState returns a copy of the state with internal bookkeeping keys
// removed. This is what callers see as final state and in snapshots.
func publicState(state State) State {
	result := make(State, len(state))
	for k, v := range state {
		if isInternalStateKey(k) {
			continue
		}
		result[k] = v
	}
	return result
}

// Common reducer functions.

// DefaultReducer overwrites the existing value with the update.
func DefaultReducer(existing, update any) any {
	return update
}

// AppendReducer appends update to existing slice.
func AppendReducer(existing, update any) any {
	if existing == nil {
		existing = []any{}
	}

	existingSlice, ok1 := existing.([]any)
	updateSlice, ok2 := update.([]any)

	if !ok1 || !ok2 {
		// Fallback to default behavior if not slices
		return update
	}
	return append(append([]any{}, existingSlice...), updateSlice...)
}

// StringSliceReducer appends string slices specifically.
func StringSliceReducer(existing, update any) any {
	if existing == nil {
		existing = []string{}
	}

	existingSlice, ok1 := existing.([]string)
	updateSlice, ok2 := update.([]string)

	if !ok1 || !ok2 {
		// Fallback to default behavior if not string slices
		return update
	}
	return append(append([]string{}, existingSlice...), updateSlice...)
}

// MergeReducer merges update map into existing map.
func MergeReducer(existing, update any) any {
	if existing == nil {
		existing = make(map[string]any)
	}

	existingMap, ok1 := existing.(map[string]any)
	updateMap, ok2 := update.(map[string]any)

	if !ok1 || !ok2 {
		// Fallback to default behavior if not maps
		return update
	}

	result := make(map[string]any)
	for k, v := range existingMap {
		result[k] = v
	}
	for k, v := range updateMap {
		result[k] = v
	}
	return result
}

// MessageReducer appends message slices. A bare Message update is
// treated as a single-element append.
func MessageReducer(existing, update any) any {
	if existing == nil {
		existing = []Message{}
	}
	existingMsgs, ok := existing.([]Message)
	if !ok {
		return update
	}
	switch u := update.(type) {
	case []Message:
		return append(append([]Message{}, existingMsgs...), u...)
	case Message:
		return append(append([]Message{}, existingMsgs...), u)
	default:
		return update
	}
}
