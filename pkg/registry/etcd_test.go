package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

func TestNodeKey(t *testing.T) {
	assert.Equal(t, "/zephyrgraph/nodes/n1", NodeKey(DefaultPrefix, "n1"))
	assert.Equal(t, "/x/n1", NodeKey("/x", "n1"))
}

func TestPeersFromKVs(t *testing.T) {
	kvs := []*mvccpb.KeyValue{
		{Key: []byte("/zephyrgraph/nodes/a"), Value: []byte("http://a:8000")},
		{Key: []byte("/zephyrgraph/nodes/b"), Value: []byte("http://b:8000")},
		{Key: []byte("/zephyrgraph/nodes/"), Value: []byte("http://nobody")},
		{Key: []byte("/other/c"), Value: []byte("http://c:8000")},
		{Key: []byte("/zephyrgraph/nodes/d"), Value: nil},
	}
	assert.Equal(t, map[string]string{
		"a": "http://a:8000",
		"b": "http://b:8000",
	}, PeersFromKVs(DefaultPrefix, kvs))
}

func TestPeerFromEvent(t *testing.T) {
	put := &clientv3.Event{
		Type: mvccpb.PUT,
		Kv:   &mvccpb.KeyValue{Key: []byte("/zephyrgraph/nodes/a"), Value: []byte("http://a:8000")},
	}
	id, addr, ok := PeerFromEvent(DefaultPrefix, put)
	assert.True(t, ok)
	assert.Equal(t, "a", id)
	assert.Equal(t, "http://a:8000", addr)

	del := &clientv3.Event{
		Type: mvccpb.DELETE,
		Kv:   &mvccpb.KeyValue{Key: []byte("/zephyrgraph/nodes/a")},
	}
	_, _, ok = PeerFromEvent(DefaultPrefix, del)
	assert.False(t, ok)

	_, _, ok = PeerFromEvent(DefaultPrefix, nil)
	assert.False(t, ok)
}
