package graph

import "github.com/ryandielhenn/zephyrgraph/pkg/lww"

// State is the complete add/remove history of a graph. Gossip ships the whole
// thing on every round rather than a delta.
type State struct {
	VerticesAdded   map[VertexID]lww.Timestamp
	VerticesRemoved map[VertexID]lww.Timestamp
	EdgesAdded      map[Edge]lww.Timestamp
	EdgesRemoved    map[Edge]lww.Timestamp
}

// Snapshot copies the four timestamp maps.
func (g *Graph) Snapshot() State {
	return State{
		VerticesAdded:   g.vertices.Added(),
		VerticesRemoved: g.vertices.Removed(),
		EdgesAdded:      g.edges.Added(),
		EdgesRemoved:    g.edges.Removed(),
	}
}

// Merge folds a remote state into the graph. Every map is joined by taking
// the larger timestamp per key; timestamps are adopted as carried, never
// rewritten. Edge keys are canonicalized before they touch the local set.
func (g *Graph) Merge(s State) {
	g.vertices.Merge(s.VerticesAdded, s.VerticesRemoved)
	g.edges.Merge(g.canonical(s.EdgesAdded), g.canonical(s.EdgesRemoved))
}

func (g *Graph) canonical(in map[Edge]lww.Timestamp) map[Edge]lww.Timestamp {
	out := make(map[Edge]lww.Timestamp, len(in))
	for e, ts := range in {
		k := g.edge(e.U, e.V)
		if cur, ok := out[k]; !ok || cur < ts {
			out[k] = ts
		}
	}
	return out
}
