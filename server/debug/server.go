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

// Package debug provides an HTTP server for driving graph threads during
// development: run, resume, history and SSE streaming over a single compiled
// graph, plus its rendered topology.
package debug

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"trpc.group/trpc-go/trpc-graph-go/graph"
	"trpc.group/trpc-go/trpc-graph-go/log"
	"trpc.group/trpc-go/trpc-graph-go/runner"
	"trpc.group/trpc-go/trpc-graph-go/server/debug/internal/schema"
)

// Server exposes HTTP endpoints over a compiled graph. Internally it drives a
// runner, so thread semantics (serialization, checkpoint lineage, interrupt
// state) match the programmatic API exactly.
type Server struct {
	graph  *graph.Graph
	runner *runner.Runner
	router *mux.Router

	runnerOpts []runner.Option // Extra options applied to the internal runner.
}

// Option configures the Server instance.
type Option func(*Server)

// WithRunnerOptions appends runner.Option values applied when the server
// constructs its internal runner, e.g. a checkpoint saver.
func WithRunnerOptions(opts ...runner.Option) Option {
	return func(s *Server) { s.runnerOpts = append(s.runnerOpts, opts...) }
}

// New creates a debug HTTP server around one compiled graph. The behaviour
// can be tweaked via functional options.
func New(g *graph.Graph, opts ...Option) (*Server, error) {
	if g == nil {
		return nil, fmt.Errorf("graph must not be nil")
	}
	s := &Server{
		graph:  g,
		router: mux.NewRouter(),
	}

	// Apply user-provided options.
	for _, opt := range opts {
		opt(s)
	}

	r, err := runner.New(g, s.runnerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	s.runner = r

	// Add CORS middleware so browser UIs can talk to the server directly.
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
	})
	s.router.Use(c.Handler)
	s.registerRoutes()
	return s, nil
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

// Close shuts down the internal runner.
func (s *Server) Close() error { return s.runner.Close() }

// registerRoutes sets up all REST endpoints.
func (s *Server) registerRoutes() {
	// Thread APIs.
	s.router.HandleFunc("/threads/{threadId}/run",
		s.handleRun).Methods(http.MethodPost)
	s.router.HandleFunc("/threads/{threadId}/resume",
		s.handleResume).Methods(http.MethodPost)
	s.router.HandleFunc("/threads/{threadId}/history",
		s.handleHistory).Methods(http.MethodGet)
	s.router.HandleFunc("/threads/{threadId}/run_sse",
		s.handleRunSSE).Methods(http.MethodPost)

	// Graph topology.
	s.router.HandleFunc("/graph", s.handleGraph).Methods(http.MethodGet)

	// OPTIONS handlers to allow CORS pre-flight.
	preflight := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	s.router.HandleFunc("/threads/{threadId}/run", preflight).Methods(http.MethodOptions)
	s.router.HandleFunc("/threads/{threadId}/resume", preflight).Methods(http.MethodOptions)
	s.router.HandleFunc("/threads/{threadId}/run_sse", preflight).Methods(http.MethodOptions)
}

// ---- Handlers -----------------------------------------------------------

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	log.Infof("handleRun called: path=%s", r.URL.Path)
	threadID := mux.Vars(r)["threadId"]

	var req schema.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var (
		result *runner.Result
		err    error
	)
	if req.CheckpointID != "" {
		result, err = s.runner.RunFrom(r.Context(), threadID, req.CheckpointID, req.Input)
	} else {
		result, err = s.runner.Run(r.Context(), threadID, req.Input)
	}
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	s.writeJSON(w, schema.NewRunResponse(result))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	log.Infof("handleResume called: path=%s", r.URL.Path)
	threadID := mux.Vars(r)["threadId"]

	var req schema.ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	result, err := s.runner.Resume(r.Context(), threadID, req.Value)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	s.writeJSON(w, schema.NewRunResponse(result))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	log.Infof("handleHistory called: path=%s", r.URL.Path)
	threadID := mux.Vars(r)["threadId"]

	var opts []runner.HistoryOption
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit: "+err.Error(), http.StatusBadRequest)
			return
		}
		opts = append(opts, runner.WithHistoryLimit(limit))
	}
	if v := r.URL.Query().Get("before"); v != "" {
		opts = append(opts, runner.WithHistoryBefore(v))
	}

	records, err := s.runner.History(r.Context(), threadID, opts...)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	if records == nil {
		records = []runner.StepRecord{}
	}
	s.writeJSON(w, schema.HistoryResponse{ThreadID: threadID, Records: records})
}

func (s *Server) handleRunSSE(w http.ResponseWriter, r *http.Request) {
	log.Infof("handleRunSSE called: path=%s", r.URL.Path)
	threadID := mux.Vars(r)["threadId"]

	var req schema.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	if req.CheckpointID != "" {
		http.Error(w, "checkpointId is not supported on the streaming endpoint",
			http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	events, err := s.runner.Stream(r.Context(), threadID, req.Input)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Errorf("Error marshalling SSE event: %v", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	log.Infof("handleRunSSE finished for thread %s", threadID)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	log.Infof("handleGraph called: path=%s", r.URL.Path)

	var out string
	switch format := r.URL.Query().Get("format"); format {
	case "", "mermaid":
		out = s.graph.Mermaid()
	case "dot":
		out = s.graph.DOT()
	default:
		http.Error(w, fmt.Sprintf("unknown format %q", format), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(out))
}

// ---- helpers ------------------------------------------------------------

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// statusForError maps runner errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, graph.ErrNoPendingInterrupt):
		return http.StatusConflict
	case errors.Is(err, runner.ErrRunnerClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
