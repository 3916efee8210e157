//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package graph

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Message is a conversation entry accumulated in graph state. Workflows
// that do not exchange messages can ignore it entirely.
type Message struct {
	// Role is who produced the message: user, assistant, system or tool.
	Role string `json:"role"`
	// Name identifies the producing node or tool, when useful.
	Name string `json:"name,omitempty"`
	// Content is the message text.
	Content string `json:"content"`
	// ToolCallID links a tool message back to the call that produced it.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(name, content string) Message {
	return Message{Role: RoleAssistant, Name: name, Content: content}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewToolMessage creates a tool result message.
func NewToolMessage(toolCallID, name, content string) Message {
	return Message{Role: RoleTool, Name: name, Content: content, ToolCallID: toolCallID}
}
