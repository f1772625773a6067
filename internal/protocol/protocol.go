// Package protocol implements the line-oriented text protocol spoken between
// clients, the dispatcher, cache nodes and the backing store.
//
// Every request and every reply is a single newline-terminated line:
//
//	set <key> <value> [ttl]
//	get <key>
//	delete <key>
//
// Replies are plain text: "OK", the stored value, "null", or one of the
// error strings defined below.
package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MaxLineLength bounds a single request or reply line, including the newline.
const MaxLineLength = 1024

// Command names.
const (
	CmdSet    = "set"
	CmdGet    = "get"
	CmdDelete = "delete"
)

// Reply strings shared by every component.
const (
	ReplyOK         = "OK"
	ReplyNull       = "null"
	ReplyInvalid    = "Invalid command"
	ReplyNoServer   = "Error: No available server"
	ReplyConnFailed = "Error: Server connection failed"
)

var (
	// ErrInvalidCommand is returned by Parse for any malformed request.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrLineTooLong is returned by ReadLine when a line exceeds MaxLineLength.
	ErrLineTooLong = errors.New("line too long")
)

// Request is a parsed protocol line.
type Request struct {
	Command string
	Key     string
	Value   string
	// TTL is in seconds; zero or negative means no expiry.
	TTL int
}

// Parse splits a request line into a Request.
//
// The command is matched case-insensitively. get and delete take exactly one
// key; set takes a key, a value and an optional integer TTL.
func Parse(line string) (Request, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return Request{}, fmt.Errorf("%w: empty line", ErrInvalidCommand)
	}

	cmd := strings.ToLower(parts[0])
	switch cmd {
	case CmdGet, CmdDelete:
		if len(parts) != 2 {
			return Request{}, fmt.Errorf("%w: %s requires exactly one key", ErrInvalidCommand, cmd)
		}
		return Request{Command: cmd, Key: parts[1]}, nil
	case CmdSet:
		if len(parts) < 3 || len(parts) > 4 {
			return Request{}, fmt.Errorf("%w: set requires a key, a value and an optional ttl", ErrInvalidCommand)
		}
		req := Request{Command: cmd, Key: parts[1], Value: parts[2]}
		if len(parts) == 4 {
			ttl, err := strconv.Atoi(parts[3])
			if err != nil {
				return Request{}, fmt.Errorf("%w: ttl %q is not an integer", ErrInvalidCommand, parts[3])
			}
			req.TTL = ttl
		}
		return req, nil
	default:
		return Request{}, fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, parts[0])
	}
}

// Line renders the request back into its canonical wire form.
func (r Request) Line() string {
	switch r.Command {
	case CmdSet:
		return fmt.Sprintf("%s %s %s %d", r.Command, r.Key, r.Value, r.TTL)
	default:
		return r.Command + " " + r.Key
	}
}

// PrimaryReply labels a reply that came from the key's owner.
func PrimaryReply(addr, reply string) string {
	return fmt.Sprintf("Primary Server: %s | Response: %s", addr, reply)
}

// ReplicaReply labels a reply that came from the owner's successor.
func ReplicaReply(addr, reply string) string {
	return fmt.Sprintf("Replica Server: %s | Response: %s", addr, reply)
}

// NewReader wraps r in a reader whose buffer is exactly MaxLineLength, so
// ReadLine can detect oversized lines without unbounded buffering.
func NewReader(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, MaxLineLength)
}

// ReadLine reads one line and strips the trailing "\n" or "\r\n".
// A final line terminated by EOF instead of a newline is still returned.
func ReadLine(r *bufio.Reader) (string, error) {
	raw, err := r.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return "", ErrLineTooLong
	}
	if err != nil {
		if errors.Is(err, io.EOF) && len(raw) > 0 {
			return strings.TrimRight(string(raw), "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(string(raw), "\r\n"), nil
}

// DiscardLine skips the remainder of the current line, newline included.
// Call it after ReadLine reports ErrLineTooLong to resynchronize.
func DiscardLine(r *bufio.Reader) error {
	for {
		_, err := r.ReadSlice('\n')
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

// WriteLine writes s followed by a newline.
func WriteLine(w io.Writer, s string) error {
	_, err := io.WriteString(w, s+"\n")
	return err
}
