//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package telemetry provides telemetry and observability functionality for the trpc-graph-go framework.
// It holds the shared service identity, span naming and attribute conventions
// used by the tracing and metrics packages.
package telemetry

import (
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// telemetry service constants.
const (
	ServiceName      = "telemetry"
	ServiceVersion   = "v0.1.0"
	ServiceNamespace = "trpc-go-graph"
	InstrumentName   = "trpc.graph.go"

	SpanNameExecuteGraph      = "execute_graph"
	SpanNamePrefixExecuteNode = "execute_node"
	SpanNamePrefixExecuteTool = "execute_tool"
)

const (
	// ProtocolGRPC uses gRPC protocol for OTLP exporter.
	ProtocolGRPC string = "grpc"
	// ProtocolHTTP uses HTTP protocol for OTLP exporter.
	ProtocolHTTP string = "http"
)

// telemetry attributes constants.
var (
	KeyToolName   = "trpc.go.graph.tool_name"
	KeyToolCallID = "trpc.go.graph.tool_call_id"
	KeyError      = "trpc.go.graph.error"
)

// NewExecuteNodeSpanName returns the span name for a node execution.
func NewExecuteNodeSpanName(nodeID string) string {
	if nodeID == "" {
		return SpanNamePrefixExecuteNode
	}
	return fmt.Sprintf("%s %s", SpanNamePrefixExecuteNode, nodeID)
}

// NewExecuteToolSpanName returns the span name for a tool execution.
func NewExecuteToolSpanName(toolName string) string {
	if toolName == "" {
		return SpanNamePrefixExecuteTool
	}
	return fmt.Sprintf("%s %s", SpanNamePrefixExecuteTool, toolName)
}

// TraceToolCall records a completed tool call on the span, including the raw
// arguments and either the serialized output or the failure message.
func TraceToolCall(span trace.Span, toolName, callID string, args []byte, output any, callErr string) {
	span.SetAttributes(
		attribute.String("gen_ai.system", "trpc.go.graph"),
		attribute.String("gen_ai.operation.name", "tool.execute"),
		attribute.String(KeyToolName, toolName),
		attribute.String(KeyToolCallID, callID),
		attribute.String("trpc.go.graph.tool_call_args", string(args)),
	)

	if callErr != "" {
		span.SetAttributes(attribute.String(KeyError, callErr))
		return
	}
	if bts, err := json.Marshal(output); err == nil {
		span.SetAttributes(attribute.String("trpc.go.graph.tool_response", string(bts)))
	} else {
		span.SetAttributes(attribute.String("trpc.go.graph.tool_response", "<not json serializable>"))
	}
}

// NewGRPCConn creates a new gRPC connection to the OpenTelemetry Collector.
func NewGRPCConn(endpoint string) (*grpc.ClientConn, error) {
	// It connects the OpenTelemetry Collector through gRPC connection.
	conn, err := grpc.NewClient(endpoint,
		// Note the use of insecure transport here. TLS is recommended in production.
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
	}

	return conn, err
}
