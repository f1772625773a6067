package storage

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/ringcache/internal/cluster"
	"github.com/dreamware/ringcache/internal/protocol"
)

// Server exposes a Backend over the line protocol. Each connection may carry
// any number of requests. A ttl on set is accepted and ignored.
type Server struct {
	backend Backend
	log     logrus.FieldLogger
	srv     *cluster.Server
}

// NewServer wraps backend. idle bounds how long a connection may sit between
// requests; maxConns bounds concurrent connections (0 = unbounded).
func NewServer(backend Backend, idle time.Duration, maxConns int, log logrus.FieldLogger) *Server {
	s := &Server{backend: backend, log: log.WithField("component", "store")}
	s.srv = cluster.NewServer(cluster.LineHandler(s.Handle, idle), maxConns, log)
	return s
}

// Serve accepts connections on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.WithField("addr", ln.Addr().String()).Info("store listening")
	return s.srv.Serve(ctx, ln)
}

// Handle executes one request line and returns the reply line.
func (s *Server) Handle(ctx context.Context, line string) string {
	req, err := protocol.Parse(line)
	if err != nil {
		s.log.WithError(err).Debug("rejected request")
		return protocol.ReplyInvalid
	}

	switch req.Command {
	case protocol.CmdGet:
		v, err := s.backend.Get(ctx, req.Key)
		if errors.Is(err, ErrKeyNotFound) {
			return protocol.ReplyNull
		}
		if err != nil {
			s.log.WithError(err).WithField("key", req.Key).Warn("get failed")
			return protocol.ReplyNull
		}
		return v
	case protocol.CmdSet:
		if err := s.backend.Set(ctx, req.Key, req.Value); err != nil {
			s.log.WithError(err).WithField("key", req.Key).Warn("set failed")
		}
		return protocol.ReplyOK
	default:
		if err := s.backend.Delete(ctx, req.Key); err != nil {
			s.log.WithError(err).WithField("key", req.Key).Warn("delete failed")
		}
		return protocol.ReplyOK
	}
}
