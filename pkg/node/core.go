package node

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgraph/internal/telemetry"
	"github.com/ryandielhenn/zephyrgraph/pkg/gossip"
	"github.com/ryandielhenn/zephyrgraph/pkg/graph"
	"github.com/ryandielhenn/zephyrgraph/pkg/membership"
)

type Op string

const (
	OpAddVertex    Op = "add_vertex"
	OpAddEdge      Op = "add_edge"
	OpRemoveVertex Op = "remove_vertex"
	OpRemoveEdge   Op = "remove_edge"
	OpExistsVertex Op = "exists_vertex"
	OpExistsEdge   Op = "exists_edge"
	OpGetNeighbors Op = "get_neighbors"
	OpFindPath     Op = "find_path"
	OpClear        Op = "clear"
	OpBroadcast    Op = "broadcast"
	OpGetFriend    Op = "get_friend"
	OpRegister     Op = "register"
	OpMerge        Op = "merge"
	OpAddPeer      Op = "add_peer"
	OpInfo         Op = "info"
)

func (o Op) mutates() bool {
	switch o {
	case OpAddVertex, OpAddEdge, OpRemoveVertex, OpRemoveEdge, OpClear, OpMerge, OpRegister, OpAddPeer:
		return true
	}
	return false
}

// Command is one instruction for the core actor. Only the fields relevant
// to Op are read.
type Command struct {
	Op       Op
	U, V     graph.VertexID
	Envelope gossip.Envelope
	Register gossip.RegisterRequest
}

type planKind int

const (
	planBroadcast planKind = iota + 1
	planRelay
	planAnnounce
)

// fanoutPlan is peer traffic a command wants sent once the actor is done with it.
type fanoutPlan struct {
	kind    planKind
	env     gossip.Envelope
	newAddr string
	targets []string
}

type result struct {
	resp Response
	plan *fanoutPlan
}

// Info is a point-in-time summary of the replica.
type Info struct {
	Address       string `json:"address"`
	Bidirectional bool   `json:"bidirectional"`
	Vertices      int    `json:"vertices"`
	Edges         int    `json:"edges"`
	Peers         int    `json:"peers"`
}

// core is the state owned by the actor goroutine.
type core struct {
	self    string
	graph   *graph.Graph
	members *membership.Table
	gsp     *gossip.Coordinator
	log     *zap.Logger
}

func reply(r Response) result { return result{resp: r} }

func (c *core) apply(cmd Command) result {
	u, v := cmd.U, cmd.V
	switch cmd.Op {
	case OpAddVertex:
		if err := c.graph.AddVertex(u); err != nil {
			return reply(Failure("", err.Error()))
		}
		return reply(Success("", fmt.Sprintf("Successfully added vertex %d", u)))

	case OpAddEdge:
		if err := c.graph.AddEdge(u, v); err != nil {
			return reply(Failure("", err.Error()))
		}
		return reply(Success("", fmt.Sprintf("Successfully added edge %d-%d", u, v)))

	case OpRemoveVertex:
		if err := c.graph.RemoveVertex(u); err != nil {
			return reply(Failure("", err.Error()))
		}
		return reply(Success("", fmt.Sprintf("Successfully removed vertex %d", u)))

	case OpRemoveEdge:
		c.graph.RemoveEdge(u, v)
		return reply(Success("", fmt.Sprintf("Successfully removed edge %d-%d", u, v)))

	case OpExistsVertex:
		ok := c.graph.ContainsVertex(u)
		return reply(Success(ok, fmt.Sprintf("check_exists %d: %t", u, ok)))

	case OpExistsEdge:
		ok := c.graph.ContainsEdge(u, v)
		return reply(Success(ok, fmt.Sprintf("check_exists %d-%d: %t", u, v, ok)))

	case OpGetNeighbors:
		ns, err := c.graph.Neighbors(u)
		if err != nil {
			return reply(Failure(ns, err.Error()))
		}
		return reply(Success(ns, fmt.Sprintf("Successfully get neighbors of %d", u)))

	case OpFindPath:
		return reply(c.findPath(u, v))

	case OpClear:
		removed, err := c.graph.Clear()
		if err != nil {
			c.log.Warn("clear incomplete", zap.Int("removed", removed), zap.Error(err))
			return reply(Failure(false, err.Error()))
		}
		return reply(Success(true, "Successfully clear database"))

	case OpBroadcast:
		env := c.gsp.NewRound(c.graph.Snapshot())
		return result{
			resp: Success("", ""),
			plan: &fanoutPlan{kind: planBroadcast, env: env, targets: c.members.List()},
		}

	case OpGetFriend:
		return reply(Success(c.members.List(), "Successfully returned friend list"))

	case OpRegister:
		return c.register(cmd.Register)

	case OpAddPeer:
		addr := NormalizeAddress(cmd.Register.TheirAddress)
		if addr == "" || addr == c.self {
			return reply(Failure("", "invalid peer address"))
		}
		return reply(Success(c.members.Register(addr), "peer recorded"))

	case OpMerge:
		return c.merge(cmd.Envelope)

	case OpInfo:
		nv, ne := c.graph.Size()
		return reply(Success(Info{
			Address:       c.self,
			Bidirectional: c.graph.Bidirectional(),
			Vertices:      nv,
			Edges:         ne,
			Peers:         c.members.Len(),
		}, "ok"))
	}
	return reply(Failure("", fmt.Sprintf("unknown command %q", cmd.Op)))
}

func (c *core) findPath(u, v graph.VertexID) Response {
	path, err := c.graph.FindPath(u, v)
	switch {
	case err == nil:
		return Success(path, fmt.Sprintf("Successfully finding path from %d to %d: %v", u, v, path))
	case errors.Is(err, graph.ErrCorruptPath):
		c.log.Error("path search failed", zap.Int64("from", int64(u)), zap.Int64("to", int64(v)), zap.Error(err))
	}
	return Failure(path, fmt.Sprintf("Could not find path from %d to %d", u, v))
}

// register handles a membership announcement. A newly learned address is
// relayed to every other peer except the new node and the announcer. There
// is no round id here: a node relays a given address at most once because
// the second announcement finds it already registered.
func (c *core) register(req gossip.RegisterRequest) result {
	addr := NormalizeAddress(req.TheirAddress)
	if addr == "" {
		return reply(Failure("", "their_address is required"))
	}
	if addr == c.self {
		return reply(Success("", "Refusing to register own address"))
	}
	if !c.members.Register(addr) {
		return reply(Success("", "Cluster address has already been registered!"))
	}
	c.log.Info("registered peer", zap.String("peer", addr), zap.String("announcer", req.MyAddress))

	targets := c.members.Except(addr, NormalizeAddress(req.MyAddress), c.self)
	return result{
		resp: Success("", "Successfully register cluster address"),
		plan: &fanoutPlan{kind: planAnnounce, newAddr: addr, targets: targets},
	}
}

// merge applies a peer's envelope once and relays it onward.
func (c *core) merge(env gossip.Envelope) result {
	state, err := env.State()
	if err != nil {
		telemetry.Merges.WithLabelValues("malformed").Inc()
		c.log.Error("dropping envelope", zap.String("uuid", env.UUID), zap.String("sender", env.Sender), zap.Error(err))
		return reply(Failure("", err.Error()))
	}
	if !c.gsp.Admit(env.UUID) {
		telemetry.Merges.WithLabelValues("duplicate").Inc()
		return reply(Success("[]", fmt.Sprintf("This uuid %s has already been merged", env.UUID)))
	}

	c.graph.Merge(state)
	telemetry.Merges.WithLabelValues("applied").Inc()

	targets := c.gsp.RelayTargets(c.members.List(), env)
	c.log.Debug("merged envelope",
		zap.String("uuid", env.UUID),
		zap.String("origin", env.Origin),
		zap.Int("relay_targets", len(targets)))
	return result{
		resp: Success("True", "Successfully merged!"),
		plan: &fanoutPlan{kind: planRelay, env: env, targets: targets},
	}
}

// observe refreshes replica gauges after a mutating command.
func (c *core) observe() {
	nv, ne := c.graph.Size()
	telemetry.GraphVertices.Set(float64(nv))
	telemetry.GraphEdges.Set(float64(ne))
	telemetry.ClusterPeers.Set(float64(c.members.Len()))
}
