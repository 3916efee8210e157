//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package telemetry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// stubSpan is a minimal implementation of trace.Span that records the
// attributes passed to SetAttributes. We embed the noop span so we do not
// have to implement the full interface.

type stubSpan struct {
	trace.Span
	attrs []attribute.KeyValue
}

func (s *stubSpan) SetAttributes(kv ...attribute.KeyValue) {
	s.attrs = append(s.attrs, kv...)
	s.Span.SetAttributes(kv...)
}

func (s *stubSpan) attr(key string) (string, bool) {
	for _, kv := range s.attrs {
		if string(kv.Key) == key {
			return kv.Value.AsString(), true
		}
	}
	return "", false
}

func newStubSpan() *stubSpan {
	_, baseSpan := noop.NewTracerProvider().Tracer("test").Start(context.Background(), "test")
	return &stubSpan{Span: baseSpan}
}

func TestTraceToolCall_Success(t *testing.T) {
	span := newStubSpan()
	args, _ := json.Marshal(map[string]string{"city": "Shenzhen"})

	TraceToolCall(span, "weather", "call-1", args, map[string]any{"temp": 21}, "")

	name, ok := span.attr(KeyToolName)
	require.True(t, ok)
	require.Equal(t, "weather", name)

	callID, ok := span.attr(KeyToolCallID)
	require.True(t, ok)
	require.Equal(t, "call-1", callID)

	rsp, ok := span.attr("trpc.go.graph.tool_response")
	require.True(t, ok)
	require.JSONEq(t, `{"temp":21}`, rsp)

	_, hasErr := span.attr(KeyError)
	require.False(t, hasErr)
}

func TestTraceToolCall_Failure(t *testing.T) {
	span := newStubSpan()

	TraceToolCall(span, "weather", "call-2", []byte(`{}`), nil, "service unavailable")

	errMsg, ok := span.attr(KeyError)
	require.True(t, ok)
	require.Equal(t, "service unavailable", errMsg)

	_, hasRsp := span.attr("trpc.go.graph.tool_response")
	require.False(t, hasRsp)
}

func TestTraceToolCall_UnserializableOutput(t *testing.T) {
	span := newStubSpan()

	TraceToolCall(span, "chan_tool", "call-3", nil, make(chan int), "")

	rsp, ok := span.attr("trpc.go.graph.tool_response")
	require.True(t, ok)
	require.Equal(t, "<not json serializable>", rsp)
}

// TestNewGRPCConn_LazyDial ensures a connection handle is returned without an
// immediate error. gRPC dials lazily, so even unreachable targets succeed here.
func TestNewGRPCConn_LazyDial(t *testing.T) {
	conn, err := NewGRPCConn("localhost:4317")
	require.NoError(t, err)
	require.NotNil(t, conn)
	_ = conn.Close()
}
