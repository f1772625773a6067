package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/ringcache/internal/cluster"
	"github.com/dreamware/ringcache/internal/config"
	"github.com/dreamware/ringcache/internal/protocol"
	"github.com/dreamware/ringcache/internal/storage"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestLoadConfigPortOverride(t *testing.T) {
	cfg, err := loadConfig("", 8083)
	require.NoError(t, err)
	assert.Equal(t, ":8083", cfg.ListenAddr)
	assert.Equal(t, "127.0.0.1:8083", cfg.PublicAddr)

	cfg, err = loadConfig("", 0)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr, "no override keeps the configured port")

	_, err = loadConfig("", -1)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

// TestServe starts a node with a backing store and metrics, then checks the
// announcement, a miss fill and the exported hit counter.
func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storeLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	store := storage.NewServer(storage.SeededTable(10), time.Second, 0, quietLogger())
	go func() { _ = store.Serve(ctx, storeLn) }()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := config.DefaultNode()
	cfg.PublicAddr = ln.Addr().String()
	cfg.DispatcherAnnounceAddr = pc.LocalAddr().String()
	cfg.BackingStoreAddr = storeLn.Addr().String()
	cfg.MetricsAddr = freeAddr(t)

	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, ln, quietLogger()) }()

	buf := make([]byte, 64)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, cfg.PublicAddr, string(buf[:n]))

	reply, err := cluster.Exchange(ctx, cfg.PublicAddr, "get key2", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "value2", reply, "miss filled from the store")

	reply, err = cluster.Exchange(ctx, cfg.PublicAddr, "get key2", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "value2", reply)

	reply, err = cluster.Exchange(ctx, cfg.PublicAddr, "get nothing", time.Second)
	require.NoError(t, err)
	assert.Equal(t, protocol.ReplyNull, reply)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.MetricsAddr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(b), "ringcache_cache_hits_total") &&
			strings.Contains(string(b), "ringcache_cache_entries")
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestRunBindFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := config.DefaultNode()
	cfg.ListenAddr = busy.Addr().String()
	assert.Error(t, run(context.Background(), cfg, quietLogger()))
}

// TestMainFunction tests the main function with signal handling
func TestMainFunction(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"node"}

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	t.Setenv("RINGCACHE_LISTEN_ADDR", "127.0.0.1:0")
	t.Setenv("RINGCACHE_DISPATCHER_ANNOUNCE_ADDR", pc.LocalAddr().String())
	t.Setenv("RINGCACHE_LOG_LEVEL", "error")

	oldLogFatal := logFatal
	defer func() { logFatal = oldLogFatal }()
	fatal := make(chan string, 1)
	logFatal = func(format string, args ...interface{}) {
		fatal <- format
	}

	done := make(chan bool)
	go func() {
		defer func() { done <- true }()
		main()
	}()

	// The announcement proves the node is up
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	_, _, err = pc.ReadFrom(buf)
	require.NoError(t, err)

	process, _ := os.FindProcess(os.Getpid())
	require.NoError(t, process.Signal(syscall.SIGTERM))

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("main did not shut down within timeout")
	}
	select {
	case f := <-fatal:
		t.Errorf("unexpected fatal: %s", f)
	default:
	}
}
