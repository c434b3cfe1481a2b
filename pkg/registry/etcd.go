// Package registry is optional etcd-backed peer discovery. Each node keeps a
// leased key under a shared prefix; the rest of the cluster lists and watches
// that prefix. Membership is append-only, so only PUT events matter.
package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const DefaultPrefix = "/zephyrgraph/nodes/"

func NewClient(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
}

// NodeKey is the key a node registers under.
func NodeKey(prefix, id string) string {
	return strings.TrimRight(prefix, "/") + "/" + id
}

// RegisterNode writes addr under the node's key with a lease of ttl seconds
// and keeps the lease alive until cancel is called.
func RegisterNode(ctx context.Context, cli *clientv3.Client, prefix, id, addr string, ttl int64) (clientv3.LeaseID, context.CancelFunc, error) {
	lease, err := cli.Grant(ctx, ttl)
	if err != nil {
		return 0, nil, fmt.Errorf("grant lease: %w", err)
	}
	if _, err := cli.Put(ctx, NodeKey(prefix, id), addr, clientv3.WithLease(lease.ID)); err != nil {
		return 0, nil, fmt.Errorf("put %s: %w", NodeKey(prefix, id), err)
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := cli.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		return 0, nil, fmt.Errorf("keepalive: %w", err)
	}
	// drain acks so the client does not log a full channel
	go func() {
		for range ch {
		}
	}()
	return lease.ID, cancel, nil
}

// ListPeers returns id -> address for every registered node and the revision
// the listing was taken at.
func ListPeers(ctx context.Context, cli *clientv3.Client, prefix string) (map[string]string, int64, error) {
	resp, err := cli.Get(ctx, strings.TrimRight(prefix, "/")+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, 0, err
	}
	return PeersFromKVs(prefix, resp.Kvs), resp.Header.Revision, nil
}

func PeersFromKVs(prefix string, kvs []*mvccpb.KeyValue) map[string]string {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		if id, ok := nodeID(prefix, kv.Key); ok && len(kv.Value) > 0 {
			out[id] = string(kv.Value)
		}
	}
	return out
}

// WatchPeers calls fn for every node that registers after revision rev. It
// returns when ctx is done. Deletions (expired leases) are ignored.
func WatchPeers(ctx context.Context, cli *clientv3.Client, prefix string, rev int64, log *zap.Logger, fn func(id, addr string)) {
	if log == nil {
		log = zap.NewNop()
	}
	opts := []clientv3.OpOption{clientv3.WithPrefix()}
	if rev > 0 {
		opts = append(opts, clientv3.WithRev(rev+1))
	}
	for wresp := range cli.Watch(ctx, strings.TrimRight(prefix, "/")+"/", opts...) {
		if err := wresp.Err(); err != nil {
			log.Warn("peer watch", zap.Error(err))
			continue
		}
		for _, ev := range wresp.Events {
			if id, addr, ok := PeerFromEvent(prefix, ev); ok {
				fn(id, addr)
			}
		}
	}
}

// PeerFromEvent extracts a registration from a watch event.
func PeerFromEvent(prefix string, ev *clientv3.Event) (id, addr string, ok bool) {
	if ev == nil || ev.Type != mvccpb.PUT || ev.Kv == nil || len(ev.Kv.Value) == 0 {
		return "", "", false
	}
	id, ok = nodeID(prefix, ev.Kv.Key)
	return id, string(ev.Kv.Value), ok
}

func nodeID(prefix string, key []byte) (string, bool) {
	id, ok := strings.CutPrefix(string(key), strings.TrimRight(prefix, "/")+"/")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
