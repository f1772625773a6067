package protocol

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParse covers every command shape and the malformed inputs the
// dispatcher answers with "Invalid command".
func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Request
		wantErr bool
	}{
		{name: "set with ttl", line: "set k v 10", want: Request{Command: CmdSet, Key: "k", Value: "v", TTL: 10}},
		{name: "set without ttl", line: "set k v", want: Request{Command: CmdSet, Key: "k", Value: "v"}},
		{name: "set negative ttl", line: "set k v -1", want: Request{Command: CmdSet, Key: "k", Value: "v", TTL: -1}},
		{name: "get", line: "get k", want: Request{Command: CmdGet, Key: "k"}},
		{name: "delete", line: "delete k", want: Request{Command: CmdDelete, Key: "k"}},
		{name: "upper case command", line: "GET k", want: Request{Command: CmdGet, Key: "k"}},
		{name: "extra whitespace", line: "  get   k  ", want: Request{Command: CmdGet, Key: "k"}},
		{name: "empty", line: "", wantErr: true},
		{name: "blank", line: "   ", wantErr: true},
		{name: "get without key", line: "get", wantErr: true},
		{name: "delete without key", line: "delete", wantErr: true},
		{name: "get with extra args", line: "get a b", wantErr: true},
		{name: "set without value", line: "set k", wantErr: true},
		{name: "set bad ttl", line: "set k v soon", wantErr: true},
		{name: "set too many args", line: "set k v 1 2", wantErr: true},
		{name: "unknown command", line: "incr k", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.line)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidCommand)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestLine(t *testing.T) {
	assert.Equal(t, "set k v 5", Request{Command: CmdSet, Key: "k", Value: "v", TTL: 5}.Line())
	assert.Equal(t, "set k v 0", Request{Command: CmdSet, Key: "k", Value: "v"}.Line())
	assert.Equal(t, "get k", Request{Command: CmdGet, Key: "k"}.Line())
	assert.Equal(t, "delete k", Request{Command: CmdDelete, Key: "k"}.Line())
}

func TestReplyLabels(t *testing.T) {
	assert.Equal(t, "Primary Server: 127.0.0.1:8080 | Response: OK", PrimaryReply("127.0.0.1:8080", ReplyOK))
	assert.Equal(t, "Replica Server: 127.0.0.1:8081 | Response: null", ReplicaReply("127.0.0.1:8081", ReplyNull))
}

func TestReadLine(t *testing.T) {
	t.Run("newline and crlf", func(t *testing.T) {
		r := NewReader(strings.NewReader("get a\r\nget b\n"))
		line, err := ReadLine(r)
		require.NoError(t, err)
		assert.Equal(t, "get a", line)

		line, err = ReadLine(r)
		require.NoError(t, err)
		assert.Equal(t, "get b", line)

		_, err = ReadLine(r)
		assert.Error(t, err)
	})

	t.Run("final line without newline", func(t *testing.T) {
		r := NewReader(strings.NewReader("get a"))
		line, err := ReadLine(r)
		require.NoError(t, err)
		assert.Equal(t, "get a", line)
	})

	t.Run("too long", func(t *testing.T) {
		r := NewReader(strings.NewReader(strings.Repeat("x", MaxLineLength+10) + "\n"))
		_, err := ReadLine(r)
		assert.ErrorIs(t, err, ErrLineTooLong)
	})

	t.Run("resync after too long", func(t *testing.T) {
		r := NewReader(strings.NewReader(strings.Repeat("x", 3*MaxLineLength) + "\nget b\n"))
		_, err := ReadLine(r)
		require.ErrorIs(t, err, ErrLineTooLong)
		require.NoError(t, DiscardLine(r))

		line, err := ReadLine(r)
		require.NoError(t, err)
		assert.Equal(t, "get b", line)
	})
}

func TestWriteLine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLine(&buf, "OK"))
	assert.Equal(t, "OK\n", buf.String())
}
