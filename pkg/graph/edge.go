package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// VertexID identifies a vertex. The facade addresses vertices by integer.
type VertexID int64

// Edge is the storage key for an edge. Build it with NewEdge so the
// canonical ordering holds everywhere an edge is used as a map key.
type Edge struct {
	U VertexID
	V VertexID
}

// NewEdge returns the canonical key for (u, v). Undirected graphs store the
// smaller endpoint first; directed graphs keep the pair as given.
func NewEdge(u, v VertexID, bidirectional bool) Edge {
	if bidirectional && u > v {
		u, v = v, u
	}
	return Edge{U: u, V: v}
}

// String renders the wire form "u_v".
func (e Edge) String() string {
	return strconv.FormatInt(int64(e.U), 10) + "_" + strconv.FormatInt(int64(e.V), 10)
}

// ParseEdge reads the "u_v" wire form. The result is not canonicalized;
// the graph does that when it consumes the key.
func ParseEdge(s string) (Edge, error) {
	us, vs, ok := strings.Cut(s, "_")
	if !ok {
		return Edge{}, fmt.Errorf("edge key %q: missing separator", s)
	}
	u, err := strconv.ParseInt(us, 10, 64)
	if err != nil {
		return Edge{}, fmt.Errorf("edge key %q: %w", s, err)
	}
	v, err := strconv.ParseInt(vs, 10, 64)
	if err != nil {
		return Edge{}, fmt.Errorf("edge key %q: %w", s, err)
	}
	return Edge{U: VertexID(u), V: VertexID(v)}, nil
}
