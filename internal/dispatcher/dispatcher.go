package dispatcher

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/ringcache/internal/cluster"
	"github.com/dreamware/ringcache/internal/protocol"
	"github.com/dreamware/ringcache/internal/ring"
)

// DefaultForwardTimeout bounds each forward to a node when Options leaves it
// unset.
const DefaultForwardTimeout = 2 * time.Second

// Options tunes a Dispatcher.
type Options struct {
	// ForwardTimeout bounds each primary or replica round trip, dial
	// included.
	ForwardTimeout time.Duration
	// ClientTimeout bounds reading the request and writing the replies on a
	// client connection. Zero disables the deadline.
	ClientTimeout time.Duration
	// MaxConnections bounds concurrently served clients. Zero is unbounded.
	MaxConnections int
}

// Dispatcher routes client requests to the ring member owning the key and
// replicates them to that member's successor.
//
// Thread-safe: every connection runs on its own goroutine; the ring is only
// read under its own lock and never across network calls.
type Dispatcher struct {
	ring    *ring.Ring
	opts    Options
	metrics Metrics
	log     logrus.FieldLogger

	// replicas tracks fire-and-forget set/delete replication.
	replicas sync.WaitGroup
}

// New creates a dispatcher routing over r. A nil metrics sink discards
// events.
func New(r *ring.Ring, opts Options, metrics Metrics, log logrus.FieldLogger) *Dispatcher {
	if opts.ForwardTimeout <= 0 {
		opts.ForwardTimeout = DefaultForwardTimeout
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Dispatcher{
		ring:    r,
		opts:    opts,
		metrics: metrics,
		log:     log.WithField("component", "dispatcher"),
	}
}

// Ring returns the membership ring the dispatcher routes over.
func (d *Dispatcher) Ring() *ring.Ring { return d.ring }

// Dispatch routes one request line and passes each reply line to emit, in
// order:
//
//	Primary Server: <owner> | Response: <reply>
//	Replica Server: <successor> | Response: <reply>   (get only)
//
// or a single error line. set and delete are replicated in the background;
// their reply never waits on the successor.
func (d *Dispatcher) Dispatch(ctx context.Context, line string, emit func(string)) {
	req, err := protocol.Parse(line)
	if err != nil {
		d.log.WithError(err).Debug("rejected request")
		d.metrics.Request("unknown", OutcomeInvalid)
		emit(protocol.ReplyInvalid)
		return
	}
	log := d.log.WithFields(logrus.Fields{"command": req.Command, "key": req.Key})

	owner, ok := d.ring.Owner(req.Key)
	if !ok {
		log.Warn("no node available")
		d.metrics.Request(req.Command, OutcomeNoServer)
		emit(protocol.ReplyNoServer)
		return
	}

	reply, err := cluster.Exchange(ctx, owner.Address, line, d.opts.ForwardTimeout)
	if err != nil {
		log.WithError(err).WithField("owner", owner.Address).Warn("primary forward failed")
		d.metrics.Request(req.Command, OutcomeConnFailed)
		emit(protocol.ReplyConnFailed)
		return
	}
	d.metrics.Request(req.Command, OutcomeOK)
	emit(protocol.PrimaryReply(owner.Address, reply))

	succ, ok := d.ring.Successor(owner.Address)
	if !ok || succ.Address == owner.Address {
		return
	}

	if req.Command != protocol.CmdGet {
		d.replicateAsync(req.Command, succ.Address, line)
		return
	}

	reply, err = cluster.Exchange(ctx, succ.Address, line, d.opts.ForwardTimeout)
	if err != nil {
		log.WithError(err).WithField("replica", succ.Address).Warn("replica read failed")
		d.metrics.Replication(req.Command, OutcomeConnFailed)
		return
	}
	d.metrics.Replication(req.Command, OutcomeOK)
	emit(protocol.ReplicaReply(succ.Address, reply))
}

// replicateAsync sends line to addr on its own goroutine. The outcome is
// only logged and counted.
func (d *Dispatcher) replicateAsync(command, addr, line string) {
	d.replicas.Add(1)
	go func() {
		defer d.replicas.Done()
		if err := cluster.Send(context.Background(), addr, line, d.opts.ForwardTimeout); err != nil {
			d.log.WithError(err).WithFields(logrus.Fields{"command": command, "replica": addr}).Warn("replication failed")
			d.metrics.Replication(command, OutcomeConnFailed)
			return
		}
		d.metrics.Replication(command, OutcomeOK)
	}()
}

// WaitReplication blocks until every background replication has finished.
func (d *Dispatcher) WaitReplication() {
	d.replicas.Wait()
}

// handleConn serves one client: a single request line, its reply lines,
// then close.
func (d *Dispatcher) handleConn(ctx context.Context, conn net.Conn) {
	if d.opts.ClientTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(d.opts.ClientTimeout)); err != nil {
			return
		}
	}

	r := protocol.NewReader(conn)
	line, err := protocol.ReadLine(r)
	if errors.Is(err, protocol.ErrLineTooLong) {
		d.metrics.Request("unknown", OutcomeInvalid)
		_ = protocol.DiscardLine(r)
		_ = protocol.WriteLine(conn, protocol.ReplyInvalid)
		return
	}
	if err != nil {
		d.log.WithError(err).WithField("client", conn.RemoteAddr().String()).Debug("client read failed")
		return
	}

	if d.opts.ClientTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(d.opts.ClientTimeout + 2*d.opts.ForwardTimeout))
	}
	d.Dispatch(ctx, line, func(reply string) {
		if err := protocol.WriteLine(conn, reply); err != nil {
			d.log.WithError(err).Debug("client write failed")
		}
	})
}

// Serve accepts clients on ln until ctx is canceled.
func (d *Dispatcher) Serve(ctx context.Context, ln net.Listener) error {
	d.log.WithField("listen", ln.Addr().String()).Info("dispatcher listening")
	srv := cluster.NewServer(d.handleConn, d.opts.MaxConnections, d.log)
	return srv.Serve(ctx, ln)
}

// Run serves clients on ln, admits announcements from pc and runs hm until
// ctx is canceled or one of them fails. Background replication is drained
// before Run returns.
func (d *Dispatcher) Run(ctx context.Context, ln net.Listener, pc net.PacketConn, hm *HealthMonitor) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Serve(ctx, ln) })
	g.Go(func() error { return d.ListenAnnouncements(ctx, pc) })
	if hm != nil {
		g.Go(func() error {
			hm.Start(ctx)
			return nil
		})
	}
	err := g.Wait()
	d.WaitReplication()
	return err
}
