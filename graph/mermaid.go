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
	"fmt"
	"io"
	"sort"
	"strings"
)

// Mermaid returns a Mermaid flowchart representation of the graph. The same
// VizOptions apply as for DOT. Static edges are solid, conditional edges and
// declared destinations dotted with the branch label where one exists.
func (g *Graph) Mermaid(opts ...VizOption) string {
	o := defaultVizOptions()
	for _, fn := range opts {
		fn(o)
	}

	// Snapshot data under read lock.
	g.mu.RLock()
	nodeIDs := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)
	edgesCopy := copyEdges(g.edges)
	condCopy := copyConditionalEdges(g.conditionalEdges)
	entry := g.entryPoint
	if o.GraphLabel == "" {
		o.GraphLabel = g.name
	}
	g.mu.RUnlock()

	var b strings.Builder
	if o.GraphLabel != "" {
		fmt.Fprintf(&b, "---\ntitle: %s\n---\n", o.GraphLabel)
	}
	fmt.Fprintf(&b, "flowchart %s\n", o.RankDir)
	writeMermaidStartEnd(&b, o)
	writeMermaidNodes(&b, g, nodeIDs)
	writeMermaidRuntimeEdges(&b, edgesCopy, o)
	writeMermaidConditionalEdges(&b, condCopy, o)
	writeMermaidDestinations(&b, g, nodeIDs, o)
	writeMermaidEntryHighlight(&b, entry, o)
	return b.String()
}

// WriteMermaid writes the Mermaid representation to the provided writer.
func (g *Graph) WriteMermaid(w io.Writer, opts ...VizOption) error {
	_, err := io.WriteString(w, g.Mermaid(opts...))
	return err
}

// writeMermaidStartEnd optionally emits Start/End stadium nodes.
func writeMermaidStartEnd(b *strings.Builder, o *VizOptions) {
	if !o.IncludeStartEnd {
		return
	}
	fmt.Fprintf(b, "  %s([\"start\"])\n", mermaidID(Start))
	fmt.Fprintf(b, "  %s([\"finish\"])\n", mermaidID(End))
}

// writeMermaidNodes emits node declarations shaped by NodeType.
func writeMermaidNodes(b *strings.Builder, g *Graph, nodeIDs []string) {
	for _, id := range nodeIDs {
		n := g.nodes[id]
		label := n.Name
		if label == "" {
			label = n.ID
		}
		opening, closing := mermaidShape(n.Type)
		fmt.Fprintf(b, "  %s%s\"%s\"%s\n",
			mermaidID(n.ID), opening, mermaidLabel(label), closing)
	}
}

// writeMermaidRuntimeEdges emits solid edges (optionally skipping Start/End).
func writeMermaidRuntimeEdges(b *strings.Builder, edges map[string][]*Edge, o *VizOptions) {
	var fromIDs []string
	for from := range edges {
		fromIDs = append(fromIDs, from)
	}
	sort.Strings(fromIDs)
	for _, from := range fromIDs {
		for _, e := range edges[from] {
			if !o.IncludeStartEnd && (e.From == Start || e.To == End) {
				continue
			}
			fmt.Fprintf(b, "  %s --> %s\n", mermaidID(e.From), mermaidID(e.To))
		}
	}
}

// writeMermaidConditionalEdges emits dotted edges labeled with the branch key.
func writeMermaidConditionalEdges(b *strings.Builder, cond map[string]*ConditionalEdge, o *VizOptions) {
	var fromIDs []string
	for from := range cond {
		fromIDs = append(fromIDs, from)
	}
	sort.Strings(fromIDs)
	for _, from := range fromIDs {
		ce := cond[from]
		keys := make([]string, 0, len(ce.PathMap))
		for k := range ce.PathMap {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			to := ce.PathMap[k]
			if !o.IncludeStartEnd && (from == Start || to == End) {
				continue
			}
			fmt.Fprintf(b, "  %s -.->|\"%s\"| %s\n",
				mermaidID(from), mermaidLabel(k), mermaidID(to))
		}
	}
}

// writeMermaidDestinations emits dotted edges for declared destinations.
func writeMermaidDestinations(b *strings.Builder, g *Graph, nodeIDs []string, o *VizOptions) {
	if !o.IncludeDestinations {
		return
	}
	for _, id := range nodeIDs {
		n := g.nodes[id]
		if n.destinations == nil {
			continue
		}
		var dstIDs []string
		for to := range n.destinations {
			dstIDs = append(dstIDs, to)
		}
		sort.Strings(dstIDs)
		for _, to := range dstIDs {
			if !o.IncludeStartEnd && to == End {
				continue
			}
			if lbl := n.destinations[to]; lbl != "" {
				fmt.Fprintf(b, "  %s -.->|\"%s\"| %s\n",
					mermaidID(n.ID), mermaidLabel(lbl), mermaidID(to))
			} else {
				fmt.Fprintf(b, "  %s -.-> %s\n", mermaidID(n.ID), mermaidID(to))
			}
		}
	}
}

// writeMermaidEntryHighlight emphasizes entry when Start node is hidden.
func writeMermaidEntryHighlight(b *strings.Builder, entry string, o *VizOptions) {
	if o.IncludeStartEnd || entry == "" {
		return
	}
	fmt.Fprintf(b, "  style %s stroke-width:3px\n", mermaidID(entry))
}

// mermaidShape returns the bracket pair for a node type.
func mermaidShape(nt NodeType) (string, string) {
	if nt == NodeTypeSupervisor {
		return "{", "}"
	}
	return "[", "]"
}

// mermaidID sanitizes an identifier for Mermaid; anything outside
// [A-Za-z0-9_] becomes an underscore.
func mermaidID(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	// "end" is a reserved Mermaid flowchart keyword.
	if b.String() == "end" {
		return "_end"
	}
	return b.String()
}

// mermaidLabel escapes label text for Mermaid quoted strings.
func mermaidLabel(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	s = strings.ReplaceAll(s, "\n", "<br/>")
	return s
}
