// Package main implements the ringcache dispatcher, the single entry point
// clients talk to.
//
// The dispatcher:
//   - admits cache nodes that announce themselves over UDP
//   - routes each client request to the node owning the key
//   - replicates writes, and mirrors reads, to the owner's successor
//   - removes nodes that fail their periodic health probe
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│               Dispatcher                │
//	├─────────────────────────────────────────┤
//	│  TCP  :9090  client requests            │
//	│  UDP  :9091  node announcements         │
//	│  HTTP metrics_addr  /metrics (optional) │
//	├─────────────────────────────────────────┤
//	│  ring.Ring              membership      │
//	│  dispatcher.Dispatcher  routing         │
//	│  dispatcher.HealthMonitor  liveness     │
//	└─────────────────────────────────────────┘
//
// Configuration comes from an optional TOML file (-config) overridden by
// RINGCACHE_* environment variables; see package config.
//
// Example usage:
//
//	./dispatcher -config dispatcher.toml
//	RINGCACHE_HEALTH_INTERVAL=2s ./dispatcher
//
//	# Talk to it like any client
//	printf 'set user:1 alice 60\n' | nc localhost 9090
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

	"github.com/dreamware/ringcache/internal/config"
	"github.com/dreamware/ringcache/internal/dispatcher"
	"github.com/dreamware/ringcache/internal/logging"
	"github.com/dreamware/ringcache/internal/metrics"
	"github.com/dreamware/ringcache/internal/ring"
)

// logFatal is a variable to allow mocking fatal exits in tests.
var logFatal = logrus.Fatalf

var configPath = flag.String("config", "", "path to a TOML config file")

func main() {
	flag.Parse()

	cfg, err := config.LoadDispatcher(*configPath)
	if err != nil {
		logFatal("config: %v", err)
		return
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		logFatal("dispatcher: %v", err)
		return
	}
	log.Info("dispatcher stopped")
}

// run binds the client and announcement sockets and serves until ctx is
// canceled.
func run(ctx context.Context, cfg config.Dispatcher, log logrus.FieldLogger) error {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}
	pc, err := net.ListenPacket("udp", cfg.AnnounceAddr)
	if err != nil {
		ln.Close()
		return fmt.Errorf("listen announcements %s: %w", cfg.AnnounceAddr, err)
	}
	return serve(ctx, cfg, ln, pc, log)
}

// serve wires the ring, dispatcher, health monitor and optional metrics
// endpoint around already bound sockets.
func serve(ctx context.Context, cfg config.Dispatcher, ln net.Listener, pc net.PacketConn, log logrus.FieldLogger) error {
	g, ctx := errgroup.WithContext(ctx)

	var m dispatcher.Metrics = dispatcher.NoopMetrics{}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.NewDispatcher(reg, "ringcache")
		g.Go(func() error { return metrics.Serve(ctx, cfg.MetricsAddr, reg, log) })
	}

	r := ring.New(cfg.MaxNodes)
	d := dispatcher.New(r, dispatcher.Options{
		ForwardTimeout: cfg.ForwardTimeout.Duration,
		ClientTimeout:  cfg.ClientTimeout.Duration,
		MaxConnections: cfg.MaxConnections,
	}, m, log)
	hm := dispatcher.NewHealthMonitor(r, dispatcher.HealthOptions{
		Interval:    cfg.HealthInterval.Duration,
		Timeout:     cfg.ProbeTimeout.Duration,
		MaxFailures: cfg.FailureThreshold,
		Concurrency: cfg.ProbeConcurrency,
	}, m, log)

	log.WithFields(logrus.Fields{
		"listen":    ln.Addr().String(),
		"announce":  pc.LocalAddr().String(),
		"max_nodes": cfg.MaxNodes,
	}).Info("dispatcher starting")

	g.Go(func() error { return d.Run(ctx, ln, pc, hm) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
