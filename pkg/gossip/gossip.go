package gossip

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ryandielhenn/zephyrgraph/internal/telemetry"
	"github.com/ryandielhenn/zephyrgraph/pkg/dedup"
	"github.com/ryandielhenn/zephyrgraph/pkg/graph"
)

type Config struct {
	// Self is this node's externally reachable address. It is the node's identity.
	Self string
	// Timeout bounds each individual peer send. Failed sends are not retried.
	Timeout time.Duration
	// Parallelism caps concurrent sends within one fan-out.
	Parallelism int
	// SeenCapacity and SeenTTL bound the round de-duplication cache.
	// Zero keeps every UUID for the life of the process.
	SeenCapacity int
	SeenTTL      time.Duration
}

// Coordinator owns the round cache and performs best-effort fan-out.
type Coordinator struct {
	self        string
	transport   Transport
	seen        *dedup.Cache
	timeout     time.Duration
	parallelism int
	log         *zap.Logger
}

// Report summarizes one fan-out. Failed peers were logged and skipped.
type Report struct {
	UUID      string   `json:"uuid,omitempty"`
	Delivered []string `json:"delivered"`
	Failed    []string `json:"failed"`
}

func New(cfg Config, tr Transport, log *zap.Logger) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 8
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		self:        cfg.Self,
		transport:   tr,
		seen:        dedup.New(cfg.SeenCapacity, cfg.SeenTTL),
		timeout:     cfg.Timeout,
		parallelism: cfg.Parallelism,
		log:         log.Named("gossip"),
	}
}

func (c *Coordinator) Self() string { return c.self }

// NewRound wraps a snapshot in an envelope with a fresh UUID. The UUID is
// marked as seen so the round's echoes are dropped when they come back.
func (c *Coordinator) NewRound(s graph.State) Envelope {
	env := NewEnvelope(uuid.NewString(), c.self, s)
	c.seen.Mark(env.UUID)
	return env
}

// Admit records a round UUID and reports whether it is new.
func (c *Coordinator) Admit(id string) bool {
	return c.seen.Mark(id)
}

// RelayTargets filters peers down to those that should receive a relay of env:
// everyone except this node, the hop it came from, and the round's origin.
func (c *Coordinator) RelayTargets(peers []string, env Envelope) []string {
	out := make([]string, 0, len(peers))
	for _, p := range peers {
		if p == c.self || p == env.Sender || p == env.Origin {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Fanout sends env to every target in parallel. The envelope goes out with
// this node as Sender.
func (c *Coordinator) Fanout(ctx context.Context, env Envelope, targets []string) Report {
	env.Sender = c.self
	r := c.fanout(ctx, "merge", targets, func(ctx context.Context, addr string) error {
		return c.transport.SendMerge(ctx, addr, env)
	})
	r.UUID = env.UUID
	return r
}

// Announce tells every target that newAddr has joined, signed as this node.
func (c *Coordinator) Announce(ctx context.Context, newAddr string, targets []string) Report {
	req := RegisterRequest{TheirAddress: newAddr, MyAddress: c.self}
	return c.fanout(ctx, "register", targets, func(ctx context.Context, addr string) error {
		return c.transport.SendRegister(ctx, addr, req)
	})
}

// Join introduces this node to friend using the register handshake.
func (c *Coordinator) Join(ctx context.Context, friend string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	err := c.transport.SendRegister(ctx, friend, RegisterRequest{TheirAddress: c.self, MyAddress: c.self})
	c.count("register", err)
	return err
}

func (c *Coordinator) fanout(ctx context.Context, kind string, targets []string, send func(context.Context, string) error) Report {
	var (
		mu sync.Mutex
		r  = Report{Delivered: []string{}, Failed: []string{}}
		g  errgroup.Group
	)
	g.SetLimit(c.parallelism)

	for _, addr := range targets {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			err := send(sctx, addr)
			c.count(kind, err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.log.Warn("peer send failed",
					zap.String("kind", kind),
					zap.String("peer", addr),
					zap.Error(err))
				r.Failed = append(r.Failed, addr)
				return nil
			}
			c.log.Debug("peer send ok", zap.String("kind", kind), zap.String("peer", addr))
			r.Delivered = append(r.Delivered, addr)
			return nil
		})
	}
	_ = g.Wait()
	return r
}

func (c *Coordinator) count(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	telemetry.GossipSends.WithLabelValues(kind, result).Inc()
}
