package gossip

import (
	"errors"
	"fmt"

	"github.com/ryandielhenn/zephyrgraph/pkg/graph"
	"github.com/ryandielhenn/zephyrgraph/pkg/lww"
)

var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the merge payload exchanged between nodes. Edge keys travel as
// "u_v" strings; receivers parse and re-canonicalize them.
type Envelope struct {
	UUID   string `json:"uuid"`
	Origin string `json:"origin"`
	// Sender is the last hop. Relays overwrite it and keep Origin.
	Sender string `json:"sender,omitempty"`

	VerticesAdded   map[graph.VertexID]lww.Timestamp `json:"vertices_added"`
	VerticesRemoved map[graph.VertexID]lww.Timestamp `json:"vertices_removed"`
	EdgesAdded      map[string]lww.Timestamp         `json:"edges_added"`
	EdgesRemoved    map[string]lww.Timestamp         `json:"edges_removed"`
}

// RegisterRequest announces TheirAddress to a peer. MyAddress is whoever is
// making the announcement, so the receiver can skip it when relaying.
type RegisterRequest struct {
	TheirAddress string `json:"their_address"`
	MyAddress    string `json:"my_address"`
}

func NewEnvelope(id, origin string, s graph.State) Envelope {
	return Envelope{
		UUID:            id,
		Origin:          origin,
		Sender:          origin,
		VerticesAdded:   s.VerticesAdded,
		VerticesRemoved: s.VerticesRemoved,
		EdgesAdded:      encodeEdges(s.EdgesAdded),
		EdgesRemoved:    encodeEdges(s.EdgesRemoved),
	}
}

// State decodes the payload into a graph state ready for Merge.
func (e Envelope) State() (graph.State, error) {
	if e.UUID == "" {
		return graph.State{}, fmt.Errorf("%w: missing uuid", ErrMalformedEnvelope)
	}
	added, err := decodeEdges(e.EdgesAdded)
	if err != nil {
		return graph.State{}, err
	}
	removed, err := decodeEdges(e.EdgesRemoved)
	if err != nil {
		return graph.State{}, err
	}
	return graph.State{
		VerticesAdded:   e.VerticesAdded,
		VerticesRemoved: e.VerticesRemoved,
		EdgesAdded:      added,
		EdgesRemoved:    removed,
	}, nil
}

func encodeEdges(in map[graph.Edge]lww.Timestamp) map[string]lww.Timestamp {
	out := make(map[string]lww.Timestamp, len(in))
	for e, ts := range in {
		out[e.String()] = ts
	}
	return out
}

func decodeEdges(in map[string]lww.Timestamp) (map[graph.Edge]lww.Timestamp, error) {
	out := make(map[graph.Edge]lww.Timestamp, len(in))
	for k, ts := range in {
		e, err := graph.ParseEdge(k)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
		if cur, ok := out[e]; !ok || cur < ts {
			out[e] = ts
		}
	}
	return out, nil
}
