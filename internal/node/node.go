package node

import (
	"context"
	"errors"
	"math"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dreamware/ringcache/internal/cache"
	"github.com/dreamware/ringcache/internal/cluster"
	"github.com/dreamware/ringcache/internal/protocol"
	"github.com/dreamware/ringcache/internal/storage"
)

// DefaultAnnounceTimeout bounds a single announcement datagram.
const DefaultAnnounceTimeout = time.Second

// Options configures a Service. Only PublicAddr and AnnounceAddr are needed
// to join a cluster; everything else has a usable zero value.
type Options struct {
	// PublicAddr is the host:port the dispatcher should route to and probe.
	PublicAddr string

	// AnnounceAddr is the dispatcher's UDP announcement address. Empty
	// disables announcing.
	AnnounceAddr string

	// AnnounceInterval re-sends the announcement periodically so a node
	// removed by a failed health check rejoins. Zero announces once.
	AnnounceInterval time.Duration

	// AnnounceTimeout bounds each announcement. Zero means
	// DefaultAnnounceTimeout.
	AnnounceTimeout time.Duration

	// Backend, when set, fills get misses. Nil disables filling.
	Backend storage.Backend

	// FillTTL is the ttl given to values filled from Backend. Zero keeps
	// them until evicted.
	FillTTL time.Duration

	// WriteThrough mirrors set and delete into Backend.
	WriteThrough bool

	// IdleTimeout closes a client connection idle for longer. Zero waits
	// forever.
	IdleTimeout time.Duration

	// MaxConns bounds concurrent client connections. Zero is unbounded.
	MaxConns int
}

// Service is a cache node: a cache.Engine served over the line protocol,
// optionally backed by a storage.Backend.
//
// Thread-safe: the engine serializes its own state and concurrent misses
// for one key share a single backend lookup.
type Service struct {
	engine *cache.Engine
	opts   Options
	log    logrus.FieldLogger
	fills  singleflight.Group
}

// New creates a node service around engine.
func New(engine *cache.Engine, opts Options, log logrus.FieldLogger) *Service {
	if opts.AnnounceTimeout <= 0 {
		opts.AnnounceTimeout = DefaultAnnounceTimeout
	}
	return &Service{
		engine: engine,
		opts:   opts,
		log:    log.WithFields(logrus.Fields{"component": "node", "addr": opts.PublicAddr}),
	}
}

// Engine returns the underlying cache engine.
func (s *Service) Engine() *cache.Engine { return s.engine }

// Handle executes one request line against the engine and returns the reply.
//
//	set k v [ttl] → OK
//	get k         → value | null
//	delete k      → OK
//	otherwise     → Invalid command
func (s *Service) Handle(ctx context.Context, line string) string {
	req, err := protocol.Parse(line)
	if err != nil {
		s.log.WithError(err).Debug("rejected request")
		return protocol.ReplyInvalid
	}

	switch req.Command {
	case protocol.CmdSet:
		s.engine.Set(req.Key, req.Value, ttlDuration(req.TTL))
		if s.opts.WriteThrough && s.opts.Backend != nil {
			if err := s.opts.Backend.Set(ctx, req.Key, req.Value); err != nil {
				s.log.WithError(err).WithField("key", req.Key).Warn("write-through set failed")
			}
		}
		return protocol.ReplyOK

	case protocol.CmdGet:
		if v, ok := s.engine.Get(req.Key); ok {
			return v
		}
		if v, ok := s.fill(ctx, req.Key); ok {
			return v
		}
		return protocol.ReplyNull

	default:
		s.engine.Delete(req.Key)
		if s.opts.WriteThrough && s.opts.Backend != nil {
			if err := s.opts.Backend.Delete(ctx, req.Key); err != nil {
				s.log.WithError(err).WithField("key", req.Key).Warn("write-through delete failed")
			}
		}
		return protocol.ReplyOK
	}
}

// fill loads key from the backend after a miss and caches it. Concurrent
// fills for the same key share one lookup. A backend failure is a miss.
func (s *Service) fill(ctx context.Context, key string) (string, bool) {
	if s.opts.Backend == nil {
		return "", false
	}

	v, err, _ := s.fills.Do(key, func() (any, error) {
		v, err := s.opts.Backend.Get(ctx, key)
		if err != nil {
			return "", err
		}
		// A set that landed during the lookup is newer than the store.
		v, _ = s.engine.SetIfAbsent(key, v, s.opts.FillTTL)
		return v, nil
	})
	if errors.Is(err, storage.ErrKeyNotFound) {
		return "", false
	}
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("backend fill failed")
		return "", false
	}
	return v.(string), true
}

// maxTTLSeconds is the largest ttl representable as a time.Duration.
const maxTTLSeconds = math.MaxInt64 / int64(time.Second)

// ttlDuration converts a ttl in seconds, saturating instead of overflowing.
// Zero or negative means no expiry.
func ttlDuration(secs int) time.Duration {
	if secs <= 0 {
		return 0
	}
	if int64(secs) > maxTTLSeconds {
		return math.MaxInt64
	}
	return time.Duration(secs) * time.Second
}

// Serve answers client connections on ln until ctx is canceled.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	srv := cluster.NewServer(cluster.LineHandler(s.Handle, s.opts.IdleTimeout), s.opts.MaxConns, s.log)
	s.log.WithField("listen", ln.Addr().String()).Info("node listening")
	return srv.Serve(ctx, ln)
}

// Announce sends one announcement to the dispatcher.
func (s *Service) Announce(ctx context.Context) error {
	return cluster.Announce(ctx, s.opts.AnnounceAddr, s.opts.PublicAddr, s.opts.AnnounceTimeout)
}

// RunAnnouncer announces once and then, if AnnounceInterval is set, again on
// every tick until ctx is canceled. Failures are logged and retried on the
// next tick.
func (s *Service) RunAnnouncer(ctx context.Context) error {
	if s.opts.AnnounceAddr == "" {
		return nil
	}

	s.announce(ctx)
	if s.opts.AnnounceInterval <= 0 {
		return nil
	}

	ticker := time.NewTicker(s.opts.AnnounceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.announce(ctx)
		}
	}
}

func (s *Service) announce(ctx context.Context) {
	if err := s.Announce(ctx); err != nil {
		s.log.WithError(err).WithField("dispatcher", s.opts.AnnounceAddr).Warn("announce failed")
		return
	}
	s.log.WithField("dispatcher", s.opts.AnnounceAddr).Debug("announced")
}

// Run serves ln and runs the announcer until ctx is canceled. The listener
// must already be bound so the dispatcher's first probe finds it.
func (s *Service) Run(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Serve(ctx, ln) })
	g.Go(func() error { return s.RunAnnouncer(ctx) })
	return g.Wait()
}
