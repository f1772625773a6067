package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/dreamware/ringcache/internal/protocol"
	"github.com/dreamware/ringcache/internal/ring"
)

// readBackoff is how long ListenAnnouncements waits after a read error.
const readBackoff = 10 * time.Millisecond

// ErrInvalidAnnouncement is returned by Admit for a payload that is not a
// host:port address.
var ErrInvalidAnnouncement = errors.New("invalid announcement")

// Admit adds the node named by an announcement payload to the ring.
// Surrounding whitespace and NUL padding are ignored.
func (d *Dispatcher) Admit(payload string) (ring.Node, error) {
	addr := strings.TrimSpace(strings.Trim(payload, "\x00"))
	if err := validateAddress(addr); err != nil {
		d.metrics.Announcement(AnnounceInvalid)
		return ring.Node{}, err
	}

	n, err := d.ring.Add(addr)
	log := d.log.WithField("node", addr)
	switch {
	case err == nil:
		d.metrics.Announcement(AnnounceAdded)
		d.metrics.Members(d.ring.Len())
		log.WithField("hash", n.Hash).Info("node joined")
	case errors.Is(err, ring.ErrDuplicateAddress):
		d.metrics.Announcement(AnnounceDuplicate)
		log.Debug("node already a member")
	case errors.Is(err, ring.ErrCapacityExceeded):
		d.metrics.Announcement(AnnounceFull)
		log.WithField("capacity", d.ring.Capacity()).Warn("ring full, announcement dropped")
	case errors.Is(err, ring.ErrHashCollision):
		d.metrics.Announcement(AnnounceCollision)
		log.Warn("hash collides with a member, announcement dropped")
	}
	return n, err
}

func validateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidAnnouncement, addr, err)
	}
	if host == "" {
		return fmt.Errorf("%w: %q: missing host", ErrInvalidAnnouncement, addr)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("%w: %q: bad port", ErrInvalidAnnouncement, addr)
	}
	return nil
}

// ListenAnnouncements reads announcement datagrams from pc and admits each
// one until ctx is canceled or pc is closed. Other read errors are logged
// and reading resumes. pc is closed on return.
func (d *Dispatcher) ListenAnnouncements(ctx context.Context, pc net.PacketConn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		pc.Close()
	}()

	d.log.WithField("announce", pc.LocalAddr().String()).Info("accepting announcements")
	buf := make([]byte, protocol.MaxLineLength)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			d.log.WithError(err).Warn("announcement read failed")
			time.Sleep(readBackoff)
			continue
		}
		if _, err := d.Admit(string(buf[:n])); err != nil && errors.Is(err, ErrInvalidAnnouncement) {
			d.log.WithError(err).WithField("from", from.String()).Warn("dropped announcement")
		}
	}
}
