package cluster

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/dreamware/ringcache/internal/protocol"
)

// acceptBackoff is how long Serve waits after a non-fatal Accept error.
const acceptBackoff = 10 * time.Millisecond

// ConnHandler serves one accepted connection. The server closes conn when
// the handler returns.
type ConnHandler func(ctx context.Context, conn net.Conn)

// Server is a TCP accept loop that runs each connection on its own goroutine.
// Concurrency is bounded by a weighted semaphore when maxConns > 0.
// Thread-safe: Serve may only be called once; Active may be called at any time.
type Server struct {
	handler ConnHandler
	sem     *semaphore.Weighted
	log     logrus.FieldLogger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer creates a server that dispatches connections to handler.
// A maxConns of zero or less leaves concurrency unbounded.
func NewServer(handler ConnHandler, maxConns int, log logrus.FieldLogger) *Server {
	s := &Server{
		handler: handler,
		log:     log,
		conns:   make(map[net.Conn]struct{}),
	}
	if maxConns > 0 {
		s.sem = semaphore.NewWeighted(int64(maxConns))
	}
	return s
}

// Serve accepts connections on ln until ctx is canceled or ln is closed.
// On return the listener is closed, every open connection has been closed
// and every handler has finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		ln.Close()
	}()
	defer s.drain()

	for {
		if s.sem != nil {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return nil
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			s.release()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.WithError(err).Warn("accept failed")
			time.Sleep(acceptBackoff)
			continue
		}

		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release()
			defer s.untrack(conn)
			s.handler(ctx, conn)
		}()
	}
}

// Active returns the number of connections currently being served.
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) release() {
	if s.sem != nil {
		s.sem.Release(1)
	}
}

// drain closes every open connection and waits for their handlers.
func (s *Server) drain() {
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// LineHandler adapts a request/reply function into a ConnHandler that reads
// request lines until the peer closes the connection or stays idle for
// longer than idle. Each reply is written as one line. A line longer than
// protocol.MaxLineLength is skipped and answered with "Invalid command".
func LineHandler(handle func(ctx context.Context, line string) string, idle time.Duration) ConnHandler {
	return func(ctx context.Context, conn net.Conn) {
		r := protocol.NewReader(conn)
		for {
			if idle > 0 {
				if err := conn.SetReadDeadline(time.Now().Add(idle)); err != nil {
					return
				}
			}
			var reply string
			line, err := protocol.ReadLine(r)
			switch {
			case errors.Is(err, protocol.ErrLineTooLong):
				if err := protocol.DiscardLine(r); err != nil {
					_ = protocol.WriteLine(conn, protocol.ReplyInvalid)
					return
				}
				reply = protocol.ReplyInvalid
			case err != nil:
				return
			default:
				reply = handle(ctx, line)
			}

			if idle > 0 {
				if err := conn.SetWriteDeadline(time.Now().Add(idle)); err != nil {
					return
				}
			}
			if err := protocol.WriteLine(conn, reply); err != nil {
				return
			}
		}
	}
}
