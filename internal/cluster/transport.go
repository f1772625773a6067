package cluster

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dreamware/ringcache/internal/protocol"
)

// ErrTransport marks any connect, send or receive failure towards a peer.
// Callers convert it into a text reply; it never changes ring membership.
var ErrTransport = errors.New("transport failure")

// Exchange sends one request line to addr and waits for one reply line.
// The whole round trip, dial included, is bounded by timeout.
func Exchange(ctx context.Context, addr, line string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dial(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := protocol.WriteLine(conn, line); err != nil {
		return "", fmt.Errorf("%w: send to %s: %w", ErrTransport, addr, err)
	}
	reply, err := protocol.ReadLine(protocol.NewReader(conn))
	if err != nil {
		return "", fmt.Errorf("%w: receive from %s: %w", ErrTransport, addr, err)
	}
	return reply, nil
}

// Send delivers one request line to addr without waiting for the reply.
func Send(ctx context.Context, addr, line string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dial(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := protocol.WriteLine(conn, line); err != nil {
		return fmt.Errorf("%w: send to %s: %w", ErrTransport, addr, err)
	}
	return nil
}

// Probe reports whether a TCP connection to addr can be established.
func Probe(ctx context.Context, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dial(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Announce sends self ("host:port") as a single datagram to the dispatcher's
// announcement address. Delivery is not acknowledged.
func Announce(ctx context.Context, dispatcherAddr, self string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dial(ctx, "udp", dispatcherAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(self)); err != nil {
		return fmt.Errorf("%w: announce to %s: %w", ErrTransport, dispatcherAddr, err)
	}
	return nil
}

func dial(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: set deadline on %s: %w", ErrTransport, addr, err)
		}
	}
	return conn, nil
}
