package node

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgraph/internal/telemetry"
	"github.com/ryandielhenn/zephyrgraph/pkg/gossip"
	"github.com/ryandielhenn/zephyrgraph/pkg/graph"
	"github.com/ryandielhenn/zephyrgraph/pkg/membership"
)

var ErrStopped = errors.New("node stopped")

type Config struct {
	// Address is the externally reachable base URL of this node and its identity.
	Address       string
	Bidirectional bool
	// QueueSize is the capacity of the inbound command queue.
	QueueSize int
	Gossip    gossip.Config
}

// Node is a single replica. All commands, local or from peers, pass through
// one queue and are applied by one goroutine (Run), so the graph and the
// membership table are never touched concurrently from the command path.
// Peer fan-out happens outside that goroutine.
type Node struct {
	addr string
	core *core
	gsp  *gossip.Coordinator
	log  *zap.Logger

	cmds chan request
	done chan struct{}

	// background relays outlive the request that triggered them
	bg       context.Context
	cancelBg context.CancelFunc
	relays   sync.WaitGroup
}

type request struct {
	cmd   Command
	reply chan result
}

func New(cfg Config, tr gossip.Transport, log *zap.Logger) *Node {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	addr := NormalizeAddress(cfg.Address)
	cfg.Gossip.Self = addr

	gsp := gossip.New(cfg.Gossip, tr, log)
	bg, cancel := context.WithCancel(context.Background())
	n := &Node{
		addr:     addr,
		gsp:      gsp,
		log:      log.Named("node").With(zap.String("self", addr)),
		cmds:     make(chan request, cfg.QueueSize),
		done:     make(chan struct{}),
		bg:       bg,
		cancelBg: cancel,
	}
	n.core = &core{
		self:    addr,
		graph:   graph.New(cfg.Bidirectional, nil),
		members: membership.New(),
		gsp:     gsp,
		log:     n.log,
	}
	return n
}

func (n *Node) Addr() string { return n.addr }

// Run applies queued commands one at a time until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	defer close(n.done)
	defer n.cancelBg()
	n.log.Info("core actor started")
	for {
		select {
		case <-ctx.Done():
			n.log.Info("core actor stopping")
			return ctx.Err()
		case req := <-n.cmds:
			telemetry.QueueDepth.Dec()
			req.reply <- n.step(req.cmd)
		}
	}
}

// Execute queues cmd, waits for the actor's answer, then performs any peer
// fan-out the command asked for. Broadcasts wait for their fan-out; relays
// triggered by inbound merges and registrations run in the background.
func (n *Node) Execute(ctx context.Context, cmd Command) Response {
	req := request{cmd: cmd, reply: make(chan result, 1)}

	telemetry.QueueDepth.Inc()
	select {
	case n.cmds <- req:
	case <-n.done:
		telemetry.QueueDepth.Dec()
		return Failure("", ErrStopped.Error())
	case <-ctx.Done():
		telemetry.QueueDepth.Dec()
		return Failure("", ctx.Err().Error())
	}

	var res result
	select {
	case res = <-req.reply:
	case <-n.done:
		return Failure("", ErrStopped.Error())
	case <-ctx.Done():
		return Failure("", ctx.Err().Error())
	}

	if res.plan == nil {
		return res.resp
	}
	return n.dispatch(ctx, res)
}

func (n *Node) dispatch(ctx context.Context, res result) Response {
	p := res.plan
	switch p.kind {
	case planBroadcast:
		report := n.gsp.Fanout(ctx, p.env, p.targets)
		n.log.Info("broadcast complete",
			zap.String("uuid", report.UUID),
			zap.Int("delivered", len(report.Delivered)),
			zap.Int("failed", len(report.Failed)))
		return Success(report, fmt.Sprintf("Successfully broadcast with uuid: %s", report.UUID))
	case planRelay:
		n.background(func(ctx context.Context) {
			n.gsp.Fanout(ctx, p.env, p.targets)
		})
	case planAnnounce:
		n.background(func(ctx context.Context) {
			n.gsp.Announce(ctx, p.newAddr, p.targets)
		})
	}
	return res.resp
}

func (n *Node) background(fn func(context.Context)) {
	n.relays.Add(1)
	go func() {
		defer n.relays.Done()
		fn(n.bg)
	}()
}

// Wait blocks until background relays started so far have finished.
func (n *Node) Wait() { n.relays.Wait() }

// AddPeer records addr in the membership table without announcing it.
func (n *Node) AddPeer(ctx context.Context, addr string) Response {
	return n.Execute(ctx, Command{Op: OpAddPeer, Register: gossip.RegisterRequest{TheirAddress: addr}})
}

// Join adds friend locally and asks friend to register this node, which
// floods the news to the rest of friend's cluster.
func (n *Node) Join(ctx context.Context, friend string) error {
	friend = NormalizeAddress(friend)
	if resp := n.AddPeer(ctx, friend); !resp.OK() {
		return errors.New(resp.Message)
	}
	if err := n.gsp.Join(ctx, friend); err != nil {
		return fmt.Errorf("join %s: %w", friend, err)
	}
	n.log.Info("joined cluster", zap.String("friend", friend))
	return nil
}

func (n *Node) step(cmd Command) (res result) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("command panicked",
				zap.String("op", string(cmd.Op)),
				zap.Any("panic", r),
				zap.Stack("stack"))
			res = result{resp: Failure("", "An error occurred")}
		}
		telemetry.CommandsTotal.WithLabelValues(string(cmd.Op), string(res.resp.Status)).Inc()
	}()

	res = n.core.apply(cmd)
	if cmd.Op.mutates() {
		n.core.observe()
	}
	return res
}
