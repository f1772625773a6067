// Package main implements the ringcache reference backing store: an
// in-memory key/value table served over the same line protocol as the cache
// nodes, seeded with key0..key(N-1) = value0..value(N-1).
//
// Nodes configured with backing_store_addr fill cache misses from it.
//
// Example usage:
//
//	./store                          # :9092, ten seeded keys
//	RINGCACHE_SEED=1000 ./store -config store.toml
//
//	printf 'get key3\n' | nc localhost 9092   # value3
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/ringcache/internal/config"
	"github.com/dreamware/ringcache/internal/logging"
	"github.com/dreamware/ringcache/internal/storage"
)

// logFatal is a variable to allow mocking fatal exits in tests.
var logFatal = logrus.Fatalf

var configPath = flag.String("config", "", "path to a TOML config file")

func main() {
	flag.Parse()

	cfg, err := config.LoadStore(*configPath)
	if err != nil {
		logFatal("config: %v", err)
		return
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		logFatal("store: %v", err)
		return
	}
	log.Info("store stopped")
}

func run(ctx context.Context, cfg config.Store, log logrus.FieldLogger) error {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}
	return serve(ctx, cfg, ln, log)
}

func serve(ctx context.Context, cfg config.Store, ln net.Listener, log logrus.FieldLogger) error {
	table := storage.SeededTable(cfg.Seed)
	log.WithField("keys", table.Stats().Keys).Info("store seeded")
	return storage.NewServer(table, cfg.IdleTimeout.Duration, cfg.MaxConnections, log).Serve(ctx, ln)
}
