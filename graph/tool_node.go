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
	"encoding/json"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-graph-go/event"
	"trpc.group/trpc-go/trpc-graph-go/tool"
)

// NewToolsNodeFunc creates a node function that executes the tool calls
// pending in state through the given executor. Each call produces a
// tool_start and a tool_end event sharing the call ID, and the outcomes are
// written back as tool results plus tool messages in the conversation log.
// Failed calls become failed results; they never abort the node.
func NewToolsNodeFunc(executor *tool.Executor) NodeFunc {
	return func(ctx context.Context, state State) (any, error) {
		calls, _ := state[StateKeyToolCalls].([]tool.Call)
		if len(calls) == 0 {
			return nil, nil
		}

		invocationID, execCtx := extractExecutionContext(state)
		nodeID, _ := state[StateKeyCurrentNode].(string)
		nodeName := nodeID
		if execCtx != nil && execCtx.Graph != nil {
			if node, ok := execCtx.Graph.Node(nodeID); ok && node.Name != "" {
				nodeName = node.Name
			}
		}

		results := make([]tool.Result, 0, len(calls))
		toolMessages := make([]Message, 0, len(calls))
		for _, call := range calls {
			if call.ID == "" {
				call.ID = uuid.New().String()
			}
			execCtx.EmitEvent(ctx, event.New(invocationID, nodeID, event.KindToolStart,
				event.WithNode(nodeID, nodeName),
				event.WithTool(&event.ToolInfo{
					CallID:    call.ID,
					Name:      call.Name,
					Arguments: string(call.Arguments),
				})))

			result := executor.Execute(ctx, call)
			results = append(results, result)
			toolMessages = append(toolMessages, toolResultMessage(result))

			execCtx.EmitEvent(ctx, event.New(invocationID, nodeID, event.KindToolEnd,
				event.WithNode(nodeID, nodeName),
				event.WithTool(&event.ToolInfo{
					CallID:   result.CallID,
					Name:     result.Name,
					Output:   marshalToolOutput(result),
					Error:    result.Error,
					Duration: result.Duration,
				})))
		}

		return State{
			StateKeyToolResults: results,
			StateKeyMessages:    toolMessages,
			// Clear the pending calls so routing does not loop back here.
			StateKeyToolCalls: []tool.Call{},
		}, nil
	}
}

// toolResultMessage converts a tool result into a conversation message.
func toolResultMessage(result tool.Result) Message {
	content := marshalToolOutput(result)
	if result.Failed() {
		content = result.Error
	}
	return NewToolMessage(result.CallID, result.Name, content)
}

// marshalToolOutput serializes a tool output for messages and events.
func marshalToolOutput(result tool.Result) string {
	if result.Output == nil {
		return ""
	}
	if s, ok := result.Output.(string); ok {
		return s
	}
	data, err := json.Marshal(result.Output)
	if err != nil {
		return ""
	}
	return string(data)
}
