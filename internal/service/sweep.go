package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"todaride/internal/domain"
	"todaride/internal/events"
	"todaride/internal/observability"
	"todaride/internal/repository"
)

const sweepLeaseName = "presence-sweep"

// SweepGate admits at most one sweep per interval within a process.
type SweepGate struct {
	interval time.Duration
	lastRun  atomic.Int64
}

// NewSweepGate creates a gate with the given minimum spacing.
func NewSweepGate(interval time.Duration) *SweepGate {
	return &SweepGate{interval: interval}
}

// TryAcquire claims the slot for now. Exactly one of any set of concurrent
// callers inside the same interval wins.
func (g *SweepGate) TryAcquire(now time.Time) bool {
	for {
		last := g.lastRun.Load()
		if last != 0 && now.UnixNano()-last < int64(g.interval) {
			return false
		}
		if g.lastRun.CompareAndSwap(last, now.UnixNano()) {
			return true
		}
	}
}

// Lease coordinates sweeps across instances.
type Lease interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
}

// PresenceSweeper flips drivers with stale heartbeats offline.
type PresenceSweeper struct {
	emitter
	store  repository.Store
	gate   *SweepGate
	lease  Lease
	maxAge time.Duration
	now    Clock
}

// NewPresenceSweeper creates a sweeper. lease may be nil for single-instance runs.
func NewPresenceSweeper(store repository.Store, gate *SweepGate, lease Lease, publisher events.Publisher, log logrus.FieldLogger, maxAge time.Duration) *PresenceSweeper {
	return &PresenceSweeper{
		emitter: emitter{publisher: publisher, log: log},
		store:   store,
		gate:    gate,
		lease:   lease,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (s *PresenceSweeper) WithClock(now Clock) *PresenceSweeper {
	s.now = now
	return s
}

// Sweep runs the stale sweep if the gate admits it and returns how many
// drivers were flipped. Failures are logged, never returned.
func (s *PresenceSweeper) Sweep(ctx context.Context) int {
	now := s.now()
	if !s.gate.TryAcquire(now) {
		return 0
	}

	log := s.log.WithField("op", "sweep_stale_presence")

	if s.lease != nil {
		ok, err := s.lease.TryAcquire(ctx, sweepLeaseName, s.gate.interval)
		if err != nil {
			log.WithError(err).Warn("sweep lease unavailable, sweeping locally")
		} else if !ok {
			return 0
		}
	}

	var stale []*domain.DriverPresence
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		stale, err = tx.Presence().MarkStaleOffline(ctx, now.Add(-s.maxAge), now)
		return err
	})
	if err != nil {
		log.WithError(err).Error("stale presence sweep failed")
		return 0
	}

	for _, p := range stale {
		s.emit(ctx, events.PresenceUpdated(p, now))
	}

	flipped := len(stale)
	if flipped > 0 {
		observability.PresenceSweptTotal.Add(float64(flipped))
		log.WithField("flipped", flipped).Info("stale drivers marked offline")
	}
	return flipped
}

// Run sweeps on every tick until ctx is cancelled.
func (s *PresenceSweeper) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
