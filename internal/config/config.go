// Package config loads node settings from an optional TOML file, then
// environment overrides. Command-line flags are applied by the caller before
// Validate.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	// Address is how peers reach this node, e.g. "http://10.0.0.2:8000".
	Address string `toml:"address" validate:"required"`
	// Listen is the local bind address of the HTTP facade.
	Listen string `toml:"listen" validate:"required"`
	// Friend, when set, is contacted at boot to join its cluster.
	Friend        string `toml:"friend"`
	Bidirectional bool   `toml:"bidirectional"`

	Gossip GossipConfig `toml:"gossip"`
	Node   NodeConfig   `toml:"node"`
	Etcd   EtcdConfig   `toml:"etcd"`
	Log    LogConfig    `toml:"log"`
}

type GossipConfig struct {
	Timeout      time.Duration `toml:"timeout" validate:"gt=0"`
	Parallelism  int           `toml:"parallelism" validate:"gte=1"`
	SeenCapacity int           `toml:"seen_capacity" validate:"gte=0"`
	SeenTTL      time.Duration `toml:"seen_ttl" validate:"gte=0"`
}

type NodeConfig struct {
	QueueSize int `toml:"queue_size" validate:"gte=1"`
}

// EtcdConfig enables discovery when Endpoints is non-empty.
type EtcdConfig struct {
	Endpoints []string `toml:"endpoints" validate:"dive,required"`
	Prefix    string   `toml:"prefix" validate:"required"`
	ID        string   `toml:"id"`
	LeaseTTL  int64    `toml:"lease_ttl" validate:"gte=1"`
}

type LogConfig struct {
	Level       string `toml:"level" validate:"oneof=debug info warn error"`
	Development bool   `toml:"development"`
}

var validate = validator.New()

func Default() Config {
	return Config{
		Listen:        ":8000",
		Bidirectional: true,
		Gossip: GossipConfig{
			Timeout:     2 * time.Second,
			Parallelism: 8,
		},
		Node: NodeConfig{QueueSize: 256},
		Etcd: EtcdConfig{
			Prefix:   "/zephyrgraph/nodes/",
			LeaseTTL: 10,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load starts from Default, overlays the TOML file at path (skipped when
// path is empty) and then the process environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			sort.Strings(keys)
			return Config{}, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from environment variables read through lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("SELF_ADDR", &cfg.Address)
	str("LISTEN_ADDR", &cfg.Listen)
	str("FRIEND_ADDR", &cfg.Friend)
	str("SELF_ID", &cfg.Etcd.ID)
	str("ZEPHYR_LOG_LEVEL", &cfg.Log.Level)

	if v, ok := lookup("ETCD_ENDPOINTS"); ok && strings.TrimSpace(v) != "" {
		var eps []string
		for _, ep := range strings.Split(v, ",") {
			if ep = strings.TrimSpace(ep); ep != "" {
				eps = append(eps, ep)
			}
		}
		cfg.Etcd.Endpoints = eps
	}
	if v, ok := lookup("BIDIRECTIONAL"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BIDIRECTIONAL=%q: %w", v, err)
		}
		cfg.Bidirectional = b
	}
	return nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// DiscoveryEnabled reports whether etcd discovery should run.
func (c Config) DiscoveryEnabled() bool { return len(c.Etcd.Endpoints) > 0 }
