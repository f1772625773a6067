package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/ringcache/internal/cluster"
	"github.com/dreamware/ringcache/internal/ring"
)

// NodeHealth tracks the probe history of one ring member.
type NodeHealth struct {
	LastCheck        time.Time // Timestamp of the last probe
	LastHealthy      time.Time // Timestamp of the last successful probe
	Address          string    // Member address
	ConsecutiveFails int       // Failed probes since the last success
}

// HealthOptions tunes a HealthMonitor. Zero values take the defaults.
type HealthOptions struct {
	Interval    time.Duration // Time between check rounds (default 5s)
	Timeout     time.Duration // Bound on a single probe (default 1s)
	MaxFailures int           // Consecutive failures before removal (default 1)
	Concurrency int           // Probes in flight per round (default 8)
}

func (o HealthOptions) withDefaults() HealthOptions {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Second
	}
	if o.MaxFailures <= 0 {
		o.MaxFailures = 1
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	return o
}

// HealthMonitor periodically probes every ring member and removes the ones
// that stop accepting connections. It is the only component that removes
// members; a removed node rejoins by announcing again.
//
// Each round snapshots the members, probes them concurrently without holding
// the ring lock, then removes those that reached MaxFailures.
// Thread-safe: all methods are safe for concurrent access.
type HealthMonitor struct {
	ring      *ring.Ring
	opts      HealthOptions
	metrics   Metrics
	log       logrus.FieldLogger
	checkFunc func(ctx context.Context, addr string) error
	onRemoved func(addr string)

	mu    sync.RWMutex
	nodes map[string]*NodeHealth
}

// NewHealthMonitor creates a monitor for r. A nil metrics sink discards
// events.
//
// Example:
//
//	hm := NewHealthMonitor(r, HealthOptions{Interval: 5 * time.Second}, nil, log)
//	go hm.Start(ctx)
func NewHealthMonitor(r *ring.Ring, opts HealthOptions, metrics Metrics, log logrus.FieldLogger) *HealthMonitor {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	h := &HealthMonitor{
		ring:    r,
		opts:    opts.withDefaults(),
		metrics: metrics,
		log:     log.WithField("component", "health"),
		nodes:   make(map[string]*NodeHealth),
	}
	h.checkFunc = h.probe
	return h
}

// SetCheckFunction replaces the TCP connect probe. Call before Start.
func (h *HealthMonitor) SetCheckFunction(check func(ctx context.Context, addr string) error) {
	h.checkFunc = check
}

// SetOnRemoved registers a callback run after a member is removed. Call
// before Start.
func (h *HealthMonitor) SetOnRemoved(callback func(addr string)) {
	h.onRemoved = callback
}

// Start runs check rounds every Interval until ctx is canceled. The first
// round runs one interval after Start so freshly announced nodes are not
// probed before they finish starting.
func (h *HealthMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(h.opts.Interval)
	defer ticker.Stop()

	h.log.WithField("interval", h.opts.Interval).Info("health monitor started")
	for {
		select {
		case <-ticker.C:
			h.CheckNow(ctx)
		case <-ctx.Done():
			h.log.Info("health monitor stopped")
			return
		}
	}
}

// CheckNow runs one round and returns the addresses it removed.
func (h *HealthMonitor) CheckNow(ctx context.Context) []string {
	members := h.ring.Members()
	results := make([]error, len(members))

	g := new(errgroup.Group)
	g.SetLimit(h.opts.Concurrency)
	for i, m := range members {
		i, m := i, m
		g.Go(func() error {
			results[i] = h.checkFunc(ctx, m.Address)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		// Probes were cut short by shutdown, not by dead nodes.
		return nil
	}

	now := time.Now()
	var failed []string

	h.mu.Lock()
	seen := make(map[string]bool, len(members))
	for i, m := range members {
		seen[m.Address] = true
		health, ok := h.nodes[m.Address]
		if !ok {
			health = &NodeHealth{Address: m.Address, LastHealthy: now}
			h.nodes[m.Address] = health
		}
		health.LastCheck = now

		if err := results[i]; err != nil {
			health.ConsecutiveFails++
			h.log.WithError(err).WithFields(logrus.Fields{
				"node":    m.Address,
				"attempt": health.ConsecutiveFails,
				"max":     h.opts.MaxFailures,
			}).Warn("health check failed")
			if health.ConsecutiveFails >= h.opts.MaxFailures {
				failed = append(failed, m.Address)
				delete(h.nodes, m.Address)
			}
			continue
		}
		health.ConsecutiveFails = 0
		health.LastHealthy = now
	}
	for addr := range h.nodes {
		if !seen[addr] {
			delete(h.nodes, addr)
		}
	}
	h.mu.Unlock()

	var removed []string
	for _, addr := range failed {
		if err := h.ring.Remove(addr); err != nil {
			if !errors.Is(err, ring.ErrNotFound) {
				h.log.WithError(err).WithField("node", addr).Error("remove failed")
			}
			continue
		}
		removed = append(removed, addr)
		h.metrics.Removal()
		h.log.WithField("node", addr).Warn("node removed from ring")
		if h.onRemoved != nil {
			h.onRemoved(addr)
		}
	}
	h.metrics.Members(h.ring.Len())
	return removed
}

// GetNodeHealth returns a copy of the probe history for addr.
func (h *HealthMonitor) GetNodeHealth(addr string) (NodeHealth, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, ok := h.nodes[addr]
	if !ok {
		return NodeHealth{}, false
	}
	return *health, true
}

func (h *HealthMonitor) probe(ctx context.Context, addr string) error {
	return cluster.Probe(ctx, addr, h.opts.Timeout)
}
