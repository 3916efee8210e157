//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package graph

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"trpc.group/trpc-go/trpc-graph-go/log"
)

// FinishLabel is the routing label a supervisor selector returns to end the
// run. It maps to End.
const FinishLabel = "FINISH"

// SupervisorSelector picks the next worker from the state. It returns a
// member node ID or FinishLabel.
type SupervisorSelector func(ctx context.Context, state State) (string, error)

// NewSupervisorNodeFunc creates a node function that dispatches to one of
// its member workers based on the selector's decision. A selection outside
// the member set fails with a RoutingError; it is never silently treated as
// a finish.
func NewSupervisorNodeFunc(selector SupervisorSelector, members ...string) NodeFunc {
	memberSet := make(map[string]struct{}, len(members))
	for _, member := range members {
		memberSet[member] = struct{}{}
	}
	allowed := make([]string, 0, len(members)+1)
	allowed = append(allowed, members...)
	allowed = append(allowed, FinishLabel)
	sort.Strings(allowed)

	return func(ctx context.Context, state State) (any, error) {
		next, err := selector(ctx, state)
		if err != nil {
			return nil, fmt.Errorf("supervisor selector: %w", err)
		}
		if next == FinishLabel || next == End {
			return &Command{
				Update: State{StateKeyNext: End},
				GoTo:   End,
			}, nil
		}
		if _, ok := memberSet[next]; !ok {
			nodeID, _ := state[StateKeyCurrentNode].(string)
			return nil, &RoutingError{NodeID: nodeID, Result: next, Allowed: allowed}
		}
		return &Command{
			Update: State{StateKeyNext: next},
			GoTo:   next,
		}, nil
	}
}

type workerOptions struct {
	reportToHistory bool
}

// WorkerOption configures a worker node.
type WorkerOption func(*workerOptions)

// WithWorkerReportToHistory controls where a worker's finish report goes.
// When true (the default) the report is appended to the shared message
// history; when false it is only logged.
func WithWorkerReportToHistory(report bool) WorkerOption {
	return func(o *workerOptions) {
		o.reportToHistory = report
	}
}

// NewWorkerNodeFunc wraps a node function so that it hands control back to
// its supervisor after completing. The worker's state delta is preserved;
// its finish report is either appended to the message history or logged,
// depending on WithWorkerReportToHistory.
func NewWorkerNodeFunc(work NodeFunc, supervisorID string, opts ...WorkerOption) NodeFunc {
	options := &workerOptions{reportToHistory: true}
	for _, opt := range opts {
		opt(options)
	}

	return func(ctx context.Context, state State) (any, error) {
		workerID, _ := state[StateKeyCurrentNode].(string)

		var update State
		goTo := supervisorID
		if work != nil {
			result, err := work(ctx, state)
			if err != nil {
				// Interrupts and failures propagate unchanged.
				return nil, err
			}
			switch r := result.(type) {
			case nil:
			case State:
				update = r.Clone()
			case *Command:
				if r != nil {
					if r.Update != nil {
						update = r.Update.Clone()
					}
					if r.GoTo != "" {
						goTo = r.GoTo
					}
				}
			default:
				return nil, fmt.Errorf("worker %s returned unsupported result type %T", workerID, result)
			}
		}

		report := fmt.Sprintf("%s finished", workerID)
		if s, ok := update[StateKeyLastResponse].(string); ok && s != "" {
			report = s
		}
		if options.reportToHistory {
			if update == nil {
				update = State{}
			}
			messages, _ := update[StateKeyMessages].([]Message)
			update[StateKeyMessages] = append(messages, NewAssistantMessage(workerID, report))
		} else {
			log.Infof("worker finished: worker=%s report=%s", workerID, report)
		}

		return &Command{Update: update, GoTo: goTo}, nil
	}
}

// AddSupervisorNode adds a supervisor node that dispatches to the given
// member workers. The members and End are declared as destinations for
// validation and visualization.
func (sg *StateGraph) AddSupervisorNode(
	id string,
	selector SupervisorSelector,
	members []string,
	opts ...Option,
) *StateGraph {
	destinations := make(map[string]string, len(members)+1)
	for _, member := range members {
		destinations[member] = member
	}
	destinations[End] = FinishLabel
	nodeOpts := []Option{WithNodeType(NodeTypeSupervisor), WithDestinations(destinations)}
	nodeOpts = append(nodeOpts, opts...)
	sg.AddNode(id, NewSupervisorNodeFunc(selector, members...), nodeOpts...)
	return sg
}

// AddWorkerNode adds a worker node that returns control to the supervisor
// when its work completes.
func (sg *StateGraph) AddWorkerNode(
	id string,
	work NodeFunc,
	supervisorID string,
	workerOpts []WorkerOption,
	opts ...Option,
) *StateGraph {
	nodeOpts := []Option{
		WithNodeType(NodeTypeWorker),
		WithDestinations(map[string]string{supervisorID: supervisorID}),
	}
	nodeOpts = append(nodeOpts, opts...)
	sg.AddNode(id, NewWorkerNodeFunc(work, supervisorID, workerOpts...), nodeOpts...)
	return sg
}

// SupervisorStateSchema creates a message-based state schema extended with
// the supervisor's routing decision.
func SupervisorStateSchema() *StateSchema {
	schema := MessagesStateSchema()
	schema.AddField(StateKeyNext, StateField{
		Type:    reflect.TypeOf(""),
		Reducer: DefaultReducer,
	})
	return schema
}
