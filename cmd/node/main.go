// Package main implements the ringcache cache node: an LRU cache with
// per-entry expiry, served over TCP and announced to the dispatcher.
//
// The node:
//   - binds its listener, then announces "host:port" to the dispatcher
//   - answers set, get and delete on any number of connections
//   - optionally fills misses from, and writes through to, a backing store
//   - optionally re-announces so it rejoins after a failed health check
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│                  Node                   │
//	├─────────────────────────────────────────┤
//	│  TCP  listen_addr   line protocol       │
//	│  UDP  → dispatcher_announce_addr        │
//	│  HTTP metrics_addr  /metrics (optional) │
//	├─────────────────────────────────────────┤
//	│  cache.Engine     LRU + TTL             │
//	│  storage.Client   backing store (opt.)  │
//	│  node.Service     protocol + announce   │
//	└─────────────────────────────────────────┘
//
// Example usage:
//
//	# Three nodes on one host
//	./node -port 8080 &
//	./node -port 8081 &
//	./node -port 8082 &
//
//	# With a backing store and a slower re-announce
//	RINGCACHE_BACKING_STORE_ADDR=127.0.0.1:9092 \
//	RINGCACHE_ANNOUNCE_INTERVAL=10s \
//	./node -config node.toml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/ringcache/internal/cache"
	"github.com/dreamware/ringcache/internal/config"
	"github.com/dreamware/ringcache/internal/logging"
	"github.com/dreamware/ringcache/internal/metrics"
	"github.com/dreamware/ringcache/internal/node"
	"github.com/dreamware/ringcache/internal/storage"
)

// logFatal is a variable to allow mocking fatal exits in tests.
var logFatal = logrus.Fatalf

var (
	configPath = flag.String("config", "", "path to a TOML config file")
	port       = flag.Int("port", 0, "port to listen on and announce; overrides listen_addr and public_addr ports")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configPath, *port)
	if err != nil {
		logFatal("config: %v", err)
		return
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		logFatal("node: %v", err)
		return
	}
	log.Info("node stopped")
}

// loadConfig loads the node configuration and applies the -port override.
func loadConfig(path string, port int) (config.Node, error) {
	cfg, err := config.LoadNode(path)
	if err != nil {
		return cfg, err
	}
	if port != 0 {
		return cfg.WithPort(port)
	}
	return cfg, nil
}

// run binds the listener and serves until ctx is canceled.
func run(ctx context.Context, cfg config.Node, log logrus.FieldLogger) error {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}
	return serve(ctx, cfg, ln, log)
}

// serve builds the engine and node service around an already bound
// listener.
func serve(ctx context.Context, cfg config.Node, ln net.Listener, log logrus.FieldLogger) error {
	g, ctx := errgroup.WithContext(ctx)

	var m cache.Metrics = cache.NoopMetrics{}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.NewCache(reg, "ringcache", prometheus.Labels{"node": cfg.PublicAddr})
		g.Go(func() error { return metrics.Serve(ctx, cfg.MetricsAddr, reg, log) })
	}

	engine, err := cache.New(cache.Options{Capacity: cfg.Capacity, Metrics: m})
	if err != nil {
		ln.Close()
		return err
	}

	var backend storage.Backend
	if cfg.BackingStoreAddr != "" {
		backend = storage.NewClient(cfg.BackingStoreAddr, cfg.BackingStoreTimeout.Duration)
	}

	svc := node.New(engine, node.Options{
		PublicAddr:       cfg.PublicAddr,
		AnnounceAddr:     cfg.DispatcherAnnounceAddr,
		AnnounceInterval: cfg.AnnounceInterval.Duration,
		Backend:          backend,
		FillTTL:          cfg.FillTTL.Duration,
		WriteThrough:     cfg.WriteThrough,
		IdleTimeout:      cfg.IdleTimeout.Duration,
		MaxConns:         cfg.MaxConnections,
	}, log)

	log.WithFields(logrus.Fields{
		"listen":   ln.Addr().String(),
		"public":   cfg.PublicAddr,
		"capacity": cfg.Capacity,
		"store":    cfg.BackingStoreAddr,
	}).Info("node starting")

	g.Go(func() error { return svc.Run(ctx, ln) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
