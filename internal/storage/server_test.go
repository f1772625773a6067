package storage

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/ringcache/internal/cluster"
	"github.com/dreamware/ringcache/internal/protocol"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// startStore serves table on an ephemeral port for the duration of the test.
func startStore(t *testing.T, table *Table) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(table, time.Second, 0, quietLogger())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func TestServerHandle(t *testing.T) {
	ctx := context.Background()
	s := NewServer(SeededTable(2), 0, 0, quietLogger())

	tests := []struct {
		line string
		want string
	}{
		{"get key1", "value1"},
		{"get key9", protocol.ReplyNull},
		{"set fresh v 30", protocol.ReplyOK},
		{"get fresh", "v"},
		{"set plain v2", protocol.ReplyOK},
		{"get plain", "v2"},
		{"delete key0", protocol.ReplyOK},
		{"get key0", protocol.ReplyNull},
		{"delete key0", protocol.ReplyOK},
		{"frobnicate", protocol.ReplyInvalid},
		{"get", protocol.ReplyInvalid},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Handle(ctx, tt.line), tt.line)
	}
}

func TestClientAgainstServer(t *testing.T) {
	ctx := context.Background()
	table := SeededTable(10)
	c := NewClient(startStore(t, table), time.Second)

	v, err := c.Get(ctx, "key7")
	require.NoError(t, err)
	assert.Equal(t, "value7", v)

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, c.Set(ctx, "k", "v"))
	got, err := table.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = table.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestClientUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := NewClient(addr, 200*time.Millisecond)
	_, err = c.Get(context.Background(), "key1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, cluster.ErrTransport))
	assert.False(t, errors.Is(err, ErrKeyNotFound))
}
