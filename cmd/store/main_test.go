package main

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/ringcache/internal/cluster"
	"github.com/dreamware/ringcache/internal/config"
	"github.com/dreamware/ringcache/internal/protocol"
)

func TestServe(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := config.DefaultStore()
	cfg.Seed = 3

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, ln, log) }()

	addr := ln.Addr().String()
	for _, step := range []struct{ line, want string }{
		{"get key2", "value2"},
		{"get key3", protocol.ReplyNull},
		{"set key3 three", protocol.ReplyOK},
		{"get key3", "three"},
		{"delete key0", protocol.ReplyOK},
		{"get key0", protocol.ReplyNull},
	} {
		reply, err := cluster.Exchange(context.Background(), addr, step.line, time.Second)
		require.NoError(t, err, step.line)
		assert.Equal(t, step.want, reply, step.line)
	}

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

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := config.DefaultStore()
	cfg.ListenAddr = busy.Addr().String()
	assert.Error(t, run(context.Background(), cfg, log))
}
