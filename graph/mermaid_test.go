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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMermaidBasicStructure(t *testing.T) {
	mmd := vizTestGraph(t).Mermaid()

	assert.True(t, strings.HasPrefix(mmd, "---\ntitle: demo\n---\n"))
	assert.Contains(t, mmd, "flowchart LR\n")

	// Virtual start/finish stadiums and the entry edge.
	assert.Contains(t, mmd, mermaidID(Start)+`(["start"])`)
	assert.Contains(t, mmd, mermaidID(End)+`(["finish"])`)
	assert.Contains(t, mmd, mermaidID(Start)+" --> plan")

	// All nodes are declared as rects.
	for _, id := range []string{"plan", "work", "tools", "jump"} {
		assert.Contains(t, mmd, "  "+id+`["`+id+`"]`)
	}

	// Static edges solid, conditional and destination edges dotted + labeled.
	assert.Contains(t, mmd, "plan --> work")
	assert.Contains(t, mmd, `tools -.->|"again"| plan`)
	assert.Contains(t, mmd, `tools -.->|"stop"| `+mermaidID(End))
	assert.Contains(t, mmd, `jump -.->|"dispatch"| work`)
}

func TestMermaidHideStartEnd(t *testing.T) {
	mmd := vizTestGraph(t).Mermaid(WithIncludeStartEnd(false))

	assert.NotContains(t, mmd, `(["start"])`)
	assert.NotContains(t, mmd, `(["finish"])`)
	assert.NotContains(t, mmd, mermaidID(Start)+" -->")
	// The entry point gets a thicker border instead.
	assert.Contains(t, mmd, "style plan stroke-width:3px")
}

func TestMermaidWithoutDestinations(t *testing.T) {
	mmd := vizTestGraph(t).Mermaid(WithIncludeDestinations(false))
	assert.NotContains(t, mmd, `|"dispatch"|`)
}

func TestMermaidDirectionAndTitle(t *testing.T) {
	g := vizTestGraph(t)

	assert.Contains(t, g.Mermaid(WithRankDir(RankDirTB)), "flowchart TB")
	assert.Contains(t, g.Mermaid(WithGraphLabel("custom")), "title: custom\n")
}

func TestMermaidIdentifierSanitization(t *testing.T) {
	assert.Equal(t, "my_node_1", mermaidID("my node-1"))
	assert.Equal(t, "__start__", mermaidID(Start))
	// Mermaid reserves the end keyword for subgraph blocks.
	assert.Equal(t, "_end", mermaidID("end"))
}

func TestMermaidLabelEscaping(t *testing.T) {
	assert.Equal(t, "say #quot;hi#quot;", mermaidLabel(`say "hi"`))
	assert.Equal(t, "line<br/>break", mermaidLabel("line\nbreak"))
}

func TestWriteMermaid(t *testing.T) {
	g := vizTestGraph(t)

	var sb strings.Builder
	require.NoError(t, g.WriteMermaid(&sb))
	assert.Equal(t, g.Mermaid(), sb.String())
}
