package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultNeedsAddress(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.Bidirectional)
	require.Error(t, cfg.Validate())

	cfg.Address = "http://localhost:8000"
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.DiscoveryEnabled())
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
address = "http://10.0.0.2:8000"
listen = ":9000"
friend = "http://10.0.0.1:8000"
bidirectional = false

[gossip]
timeout = "750ms"
parallelism = 4
seen_capacity = 10000
seen_ttl = "1h"

[node]
queue_size = 64

[etcd]
endpoints = ["http://etcd:2379"]
id = "n2"

[log]
level = "debug"
development = true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://10.0.0.2:8000", cfg.Address)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.False(t, cfg.Bidirectional)
	assert.Equal(t, 750*time.Millisecond, cfg.Gossip.Timeout)
	assert.Equal(t, time.Hour, cfg.Gossip.SeenTTL)
	assert.Equal(t, 10000, cfg.Gossip.SeenCapacity)
	assert.Equal(t, 64, cfg.Node.QueueSize)
	assert.True(t, cfg.DiscoveryEnabled())
	// untouched keys keep their defaults
	assert.Equal(t, "/zephyrgraph/nodes/", cfg.Etcd.Prefix)
	assert.Equal(t, int64(10), cfg.Etcd.LeaseTTL)
	assert.True(t, cfg.Log.Development)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "address = \"x\"\nlisten_port = 1\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen_port")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, env(map[string]string{
		"SELF_ADDR":        "http://me:8000",
		"FRIEND_ADDR":      " http://friend:8000 ",
		"LISTEN_ADDR":      ":7000",
		"ETCD_ENDPOINTS":   "http://e1:2379, http://e2:2379,",
		"BIDIRECTIONAL":    "false",
		"ZEPHYR_LOG_LEVEL": "warn",
	}))
	require.NoError(t, err)
	assert.Equal(t, "http://me:8000", cfg.Address)
	assert.Equal(t, "http://friend:8000", cfg.Friend)
	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, []string{"http://e1:2379", "http://e2:2379"}, cfg.Etcd.Endpoints)
	assert.False(t, cfg.Bidirectional)
	assert.Equal(t, "warn", cfg.Log.Level)

	require.Error(t, ApplyEnv(&cfg, env(map[string]string{"BIDIRECTIONAL": "sideways"})))
}

func TestValidateRanges(t *testing.T) {
	base := Default()
	base.Address = "http://a:1"

	cases := map[string]func(*Config){
		"zero timeout":     func(c *Config) { c.Gossip.Timeout = 0 },
		"zero parallelism": func(c *Config) { c.Gossip.Parallelism = 0 },
		"zero queue":       func(c *Config) { c.Node.QueueSize = 0 },
		"bad level":        func(c *Config) { c.Log.Level = "loud" },
		"empty endpoint":   func(c *Config) { c.Etcd.Endpoints = []string{""} },
		"no listen":        func(c *Config) { c.Listen = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			cfg.Etcd.Endpoints = nil
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
