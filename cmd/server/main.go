package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ryandielhenn/zephyrgraph/internal/config"
	"github.com/ryandielhenn/zephyrgraph/internal/logging"
	"github.com/ryandielhenn/zephyrgraph/internal/telemetry"
	"github.com/ryandielhenn/zephyrgraph/pkg/gossip"
	"github.com/ryandielhenn/zephyrgraph/pkg/node"
	"github.com/ryandielhenn/zephyrgraph/pkg/registry"
)

// set with -ldflags "-X main.version=... -X main.gitSHA=..."
var (
	version = "dev"
	gitSHA  = "unknown"
)

var (
	configPath    string
	flagAddress   string
	flagListen    string
	flagFriend    string
	flagBidir     bool
	flagLogLevel  string
	flagDevLogger bool
)

func main() {
	root := &cobra.Command{
		Use:           "zephyrgraph",
		Short:         "Replicated graph node (LWW CRDT over HTTP gossip)",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	f := root.Flags()
	f.StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	f.StringVar(&flagAddress, "address", "", "address peers use to reach this node (SELF_ADDR)")
	f.StringVar(&flagListen, "listen", "", "local listen address (LISTEN_ADDR)")
	f.StringVar(&flagFriend, "friend", "", "existing cluster member to join at boot (FRIEND_ADDR)")
	f.BoolVar(&flagBidir, "bidirectional", true, "treat edges as undirected")
	f.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")
	f.BoolVar(&flagDevLogger, "dev", false, "human readable console logs")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "zephyrgraph %s (%s)\n", version, gitSHA)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	f := cmd.Flags()
	if f.Changed("address") {
		cfg.Address = flagAddress
	}
	if f.Changed("listen") {
		cfg.Listen = flagListen
	}
	if f.Changed("friend") {
		cfg.Friend = flagFriend
	}
	if f.Changed("bidirectional") {
		cfg.Bidirectional = flagBidir
	}
	if f.Changed("log-level") {
		cfg.Log.Level = flagLogLevel
	}
	if f.Changed("dev") {
		cfg.Log.Development = flagDevLogger
	}
	return cfg, cfg.Validate()
}

func run(cmd *cobra.Command, _ []string) error {
	// 1. Configuration and logging
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer log.Sync()
	telemetry.SetBuildInfo(version, gitSHA)

	// 2. Initialize this node: graph replica, membership table, gossip
	n := node.New(node.Config{
		Address:       cfg.Address,
		Bidirectional: cfg.Bidirectional,
		QueueSize:     cfg.Node.QueueSize,
		Gossip: gossip.Config{
			Timeout:      cfg.Gossip.Timeout,
			Parallelism:  cfg.Gossip.Parallelism,
			SeenCapacity: cfg.Gossip.SeenCapacity,
			SeenTTL:      cfg.Gossip.SeenTTL,
		},
	}, gossip.NewHTTPTransport(cfg.Gossip.Timeout), log)
	log.Info("boot",
		zap.String("self", n.Addr()),
		zap.String("listen", cfg.Listen),
		zap.Bool("bidirectional", cfg.Bidirectional),
		zap.String("version", version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := n.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	// 3. Wire up HTTP facade
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           n.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		err := srv.Shutdown(shutdownCtx)
		n.Wait()
		return err
	})

	// 4. Join an existing cluster through a friend
	if cfg.Friend != "" {
		g.Go(func() error {
			joinFriend(ctx, n, cfg.Friend, log)
			return nil
		})
	}

	// 5. Optional etcd discovery
	if cfg.DiscoveryEnabled() {
		cli, err := registry.NewClient(cfg.Etcd.Endpoints)
		if err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("etcd client: %w", err)
		}
		defer cli.Close()
		g.Go(func() error {
			return discover(ctx, cli, n, cfg.Etcd, log)
		})
	}

	return g.Wait()
}

// joinFriend retries the register handshake until it succeeds or ctx ends;
// the friend may still be starting.
func joinFriend(ctx context.Context, n *node.Node, friend string, log *zap.Logger) {
	backoff := 250 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err := n.Join(ctx, friend)
		if err == nil {
			return
		}
		log.Warn("join failed", zap.String("friend", friend), zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
}

func discover(ctx context.Context, cli *clientv3.Client, n *node.Node, cfg config.EtcdConfig, log *zap.Logger) error {
	log = log.Named("registry")
	id := cfg.ID
	if id == "" {
		id = n.Addr()
	}

	peers, rev, err := registry.ListPeers(ctx, cli, cfg.Prefix)
	if err != nil {
		return fmt.Errorf("list peers: %w", err)
	}
	for peerID, addr := range peers {
		addPeer(ctx, n, peerID, addr, log)
	}

	leaseID, cancel, err := registry.RegisterNode(ctx, cli, cfg.Prefix, id, n.Addr(), cfg.LeaseTTL)
	if err != nil {
		return fmt.Errorf("register with etcd: %w", err)
	}
	defer func() {
		cancel()
		revokeCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		_, _ = cli.Revoke(revokeCtx, leaseID)
	}()
	log.Info("registered", zap.String("id", id), zap.Int64("lease", int64(leaseID)))

	registry.WatchPeers(ctx, cli, cfg.Prefix, rev, log, func(peerID, addr string) {
		addPeer(ctx, n, peerID, addr, log)
	})
	return nil
}

func addPeer(ctx context.Context, n *node.Node, id, addr string, log *zap.Logger) {
	if node.NormalizeAddress(addr) == n.Addr() {
		return
	}
	if r := n.AddPeer(ctx, addr); r.OK() {
		log.Debug("peer discovered", zap.String("id", id), zap.String("addr", addr))
	}
}
