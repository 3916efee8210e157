//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package telemetry

import "testing"

// Test span name helpers for simple formatting and empty name edge case.
func TestSpanNameHelpers(t *testing.T) {
	if got := NewExecuteNodeSpanName("ask_question"); got != "execute_node ask_question" {
		t.Fatalf("NewExecuteNodeSpanName got %q", got)
	}
	if got := NewExecuteNodeSpanName(""); got != "execute_node" {
		t.Fatalf("NewExecuteNodeSpanName empty got %q", got)
	}
	if got := NewExecuteToolSpanName("read_file"); got != "execute_tool read_file" {
		t.Fatalf("NewExecuteToolSpanName got %q", got)
	}
	if got := NewExecuteToolSpanName(""); got != "execute_tool" {
		t.Fatalf("NewExecuteToolSpanName empty got %q", got)
	}
}
