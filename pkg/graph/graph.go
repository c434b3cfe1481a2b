// Package graph implements a replicated graph built from two last-writer-wins
// sets, one for vertices and one for edges. Replicas converge by exchanging
// full State snapshots and merging them pointwise.
//
// A Graph is owned by a single goroutine; nothing here takes a lock.
package graph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ryandielhenn/zephyrgraph/pkg/lww"
)

var (
	ErrDuplicate       = errors.New("already exists")
	ErrInvalidEndpoint = errors.New("endpoint does not exist")
	ErrNotFound        = errors.New("not found")
	ErrUnreachable     = errors.New("unreachable")
	ErrCorruptPath     = errors.New("corrupt predecessor chain")
)

type Graph struct {
	vertices      *lww.Set[VertexID]
	edges         *lww.Set[Edge]
	bidirectional bool
}

// New returns an empty graph. Both sets share clock so that a vertex removal
// and the edge removals it cascades into are ordered after any earlier add.
func New(bidirectional bool, clock *lww.Clock) *Graph {
	if clock == nil {
		clock = lww.NewClock(nil)
	}
	return &Graph{
		vertices:      lww.NewSet[VertexID](clock),
		edges:         lww.NewSet[Edge](clock),
		bidirectional: bidirectional,
	}
}

func (g *Graph) Bidirectional() bool { return g.bidirectional }

func (g *Graph) edge(u, v VertexID) Edge { return NewEdge(u, v, g.bidirectional) }

func (g *Graph) AddVertex(u VertexID) error {
	if g.ContainsVertex(u) {
		return fmt.Errorf("vertex %d: %w", u, ErrDuplicate)
	}
	g.vertices.Add(u)
	return nil
}

func (g *Graph) AddEdge(u, v VertexID) error {
	if !g.ContainsVertex(u) {
		return fmt.Errorf("vertex %d: %w", u, ErrInvalidEndpoint)
	}
	if !g.ContainsVertex(v) {
		return fmt.Errorf("vertex %d: %w", v, ErrInvalidEndpoint)
	}
	e := g.edge(u, v)
	if g.edges.Present(e) {
		return fmt.Errorf("edge %s: %w", e, ErrDuplicate)
	}
	g.edges.Add(e)
	return nil
}

// RemoveVertex tombstones u and every present edge touching it.
func (g *Graph) RemoveVertex(u VertexID) error {
	if !g.ContainsVertex(u) {
		return fmt.Errorf("vertex %d: %w", u, ErrNotFound)
	}
	g.vertices.Remove(u)
	for _, e := range g.edges.Candidates() {
		if e.U != u && e.V != u {
			continue
		}
		if g.edges.Present(e) {
			g.edges.Remove(e)
		}
	}
	return nil
}

// RemoveEdge writes a tombstone whether or not the edge is present.
func (g *Graph) RemoveEdge(u, v VertexID) {
	g.edges.Remove(g.edge(u, v))
}

func (g *Graph) ContainsVertex(u VertexID) bool {
	return g.vertices.Present(u)
}

func (g *Graph) ContainsEdge(u, v VertexID) bool {
	return g.edges.Present(g.edge(u, v))
}

// Vertices lists present vertices in ascending order.
func (g *Graph) Vertices() []VertexID {
	out := make([]VertexID, 0, g.vertices.Len())
	for _, u := range g.vertices.Candidates() {
		if g.vertices.Present(u) {
			out = append(out, u)
		}
	}
	slices.Sort(out)
	return out
}

// Neighbors scans every present vertex and keeps those joined to u by a
// present edge. The result is sorted ascending. Cost is linear in the
// vertex count; there is no adjacency index.
func (g *Graph) Neighbors(u VertexID) ([]VertexID, error) {
	if !g.ContainsVertex(u) {
		return []VertexID{}, fmt.Errorf("vertex %d: %w", u, ErrNotFound)
	}
	out := make([]VertexID, 0)
	for _, w := range g.Vertices() {
		if g.ContainsEdge(u, w) {
			out = append(out, w)
		}
	}
	return out, nil
}

// FindPath runs a breadth-first search from source, expanding neighbors in
// ascending order, and returns the first shortest path found to target.
// source == target yields the one-vertex path.
func (g *Graph) FindPath(source, target VertexID) ([]VertexID, error) {
	if !g.ContainsVertex(source) {
		return []VertexID{}, fmt.Errorf("source %d: %w", source, ErrNotFound)
	}

	prev := map[VertexID]VertexID{source: source}
	queue := []VertexID{source}
	for head := 0; head < len(queue); head++ {
		u := queue[head]
		if u == target {
			return tracePath(prev, source, target)
		}
		next, err := g.Neighbors(u)
		if err != nil {
			return []VertexID{}, err
		}
		for _, v := range next {
			if _, seen := prev[v]; seen {
				continue
			}
			prev[v] = u
			queue = append(queue, v)
		}
	}
	return []VertexID{}, fmt.Errorf("path %d -> %d: %w", source, target, ErrUnreachable)
}

func tracePath(prev map[VertexID]VertexID, source, target VertexID) ([]VertexID, error) {
	path := []VertexID{target}
	for cur := target; cur != source; {
		p, ok := prev[cur]
		if !ok || len(path) > len(prev) {
			return []VertexID{}, fmt.Errorf("path %d -> %d: %w", source, target, ErrCorruptPath)
		}
		path = append(path, p)
		cur = p
	}
	slices.Reverse(path)
	return path, nil
}

// Clear removes vertices until none are left and reports how many removals it
// issued. A vertex whose merged add timestamp is ahead of the local clock
// survives its tombstone; Clear gives up once a pass makes no progress.
func (g *Graph) Clear() (int, error) {
	n := 0
	prev := -1
	for {
		vs := g.Vertices()
		if len(vs) == 0 {
			return n, nil
		}
		if len(vs) == prev {
			return n, fmt.Errorf("clear: %d vertices outlived their tombstones", len(vs))
		}
		prev = len(vs)
		for _, u := range vs {
			if g.RemoveVertex(u) == nil {
				n++
			}
		}
	}
}

// Size counts present vertices and edges.
func (g *Graph) Size() (vertices, edges int) {
	vertices = len(g.Vertices())
	for _, e := range g.edges.Candidates() {
		if g.edges.Present(e) {
			edges++
		}
	}
	return vertices, edges
}
