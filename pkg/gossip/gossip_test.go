package gossip

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ryandielhenn/zephyrgraph/pkg/graph"
	"github.com/ryandielhenn/zephyrgraph/pkg/lww"
)

type sent struct {
	addr string
	env  Envelope
	reg  RegisterRequest
}

// recordingTransport captures sends and fails for addresses listed in down.
type recordingTransport struct {
	mu    sync.Mutex
	down  map[string]bool
	delay time.Duration
	calls []sent
}

func (r *recordingTransport) SendMerge(ctx context.Context, addr string, env Envelope) error {
	return r.record(ctx, sent{addr: addr, env: env})
}

func (r *recordingTransport) SendRegister(ctx context.Context, addr string, req RegisterRequest) error {
	return r.record(ctx, sent{addr: addr, reg: req})
}

func (r *recordingTransport) record(ctx context.Context, s sent) error {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
	if r.down[s.addr] {
		return errors.New("connection refused")
	}
	return nil
}

func (r *recordingTransport) addrs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.addr)
	}
	return out
}

func sampleState() graph.State {
	return graph.State{
		VerticesAdded:   map[graph.VertexID]lww.Timestamp{1: 10, 2: 11},
		VerticesRemoved: map[graph.VertexID]lww.Timestamp{2: 12},
		EdgesAdded:      map[graph.Edge]lww.Timestamp{{U: 1, V: 2}: 13},
		EdgesRemoved:    map[graph.Edge]lww.Timestamp{},
	}
}

func TestNewRoundMarksSeen(t *testing.T) {
	c := New(Config{Self: "http://a"}, &recordingTransport{}, zaptest.NewLogger(t))
	env := c.NewRound(sampleState())

	require.NotEmpty(t, env.UUID)
	assert.Equal(t, "http://a", env.Origin)
	assert.Equal(t, "http://a", env.Sender)
	assert.Equal(t, lww.Timestamp(13), env.EdgesAdded["1_2"])
	assert.False(t, c.Admit(env.UUID), "own round must be suppressed on echo")

	other := c.NewRound(sampleState())
	assert.NotEqual(t, env.UUID, other.UUID)
}

func TestAdmitOnce(t *testing.T) {
	c := New(Config{Self: "http://a"}, &recordingTransport{}, nil)
	assert.True(t, c.Admit("round-1"))
	assert.False(t, c.Admit("round-1"))
	assert.True(t, c.Admit("round-2"))
}

func TestRelayTargetsExcludesSelfSenderOrigin(t *testing.T) {
	c := New(Config{Self: "http://b"}, &recordingTransport{}, nil)
	env := Envelope{UUID: "x", Origin: "http://a", Sender: "http://c"}

	got := c.RelayTargets([]string{"http://a", "http://b", "http://c", "http://d", "http://e"}, env)
	assert.Equal(t, []string{"http://d", "http://e"}, got)
}

func TestFanoutSkipsFailures(t *testing.T) {
	tr := &recordingTransport{down: map[string]bool{"http://dead": true}}
	c := New(Config{Self: "http://a", Parallelism: 2}, tr, zaptest.NewLogger(t))

	env := c.NewRound(sampleState())
	r := c.Fanout(context.Background(), env, []string{"http://b", "http://dead", "http://c"})

	assert.Equal(t, env.UUID, r.UUID)
	assert.ElementsMatch(t, []string{"http://b", "http://c"}, r.Delivered)
	assert.Equal(t, []string{"http://dead"}, r.Failed)
	assert.ElementsMatch(t, []string{"http://b", "http://dead", "http://c"}, tr.addrs())
}

func TestFanoutRewritesSender(t *testing.T) {
	tr := &recordingTransport{}
	c := New(Config{Self: "http://relay"}, tr, nil)

	in := Envelope{UUID: "u1", Origin: "http://origin", Sender: "http://origin"}
	c.Fanout(context.Background(), in, []string{"http://next"})

	require.Len(t, tr.calls, 1)
	assert.Equal(t, "http://relay", tr.calls[0].env.Sender)
	assert.Equal(t, "http://origin", tr.calls[0].env.Origin)
	assert.Equal(t, "u1", tr.calls[0].env.UUID)
}

func TestFanoutTimeoutIsPerPeer(t *testing.T) {
	tr := &recordingTransport{delay: 200 * time.Millisecond}
	c := New(Config{Self: "http://a", Timeout: 20 * time.Millisecond}, tr, zaptest.NewLogger(t))

	start := time.Now()
	r := c.Fanout(context.Background(), Envelope{UUID: "slow"}, []string{"http://b", "http://c"})

	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Empty(t, r.Delivered)
	assert.ElementsMatch(t, []string{"http://b", "http://c"}, r.Failed)
}

func TestFanoutNoTargets(t *testing.T) {
	c := New(Config{Self: "http://a"}, &recordingTransport{}, nil)
	r := c.Fanout(context.Background(), Envelope{UUID: "x"}, nil)
	assert.Empty(t, r.Delivered)
	assert.Empty(t, r.Failed)
}

func TestAnnounceSignsAsSelf(t *testing.T) {
	tr := &recordingTransport{}
	c := New(Config{Self: "http://b"}, tr, nil)

	r := c.Announce(context.Background(), "http://new", []string{"http://c"})
	assert.Equal(t, []string{"http://c"}, r.Delivered)
	require.Len(t, tr.calls, 1)
	assert.Equal(t, RegisterRequest{TheirAddress: "http://new", MyAddress: "http://b"}, tr.calls[0].reg)
}

func TestJoin(t *testing.T) {
	tr := &recordingTransport{}
	c := New(Config{Self: "http://new"}, tr, nil)

	require.NoError(t, c.Join(context.Background(), "http://friend"))
	require.Len(t, tr.calls, 1)
	assert.Equal(t, "http://friend", tr.calls[0].addr)
	assert.Equal(t, RegisterRequest{TheirAddress: "http://new", MyAddress: "http://new"}, tr.calls[0].reg)

	tr.down = map[string]bool{"http://gone": true}
	assert.Error(t, c.Join(context.Background(), "http://gone"))
}
