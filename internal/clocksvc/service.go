// Package clocksvc implements Berkeley-style clock averaging, per
// spec §4.6: periodically poll every current neighbor's local time,
// average it together with this node's own, and apply the difference
// as an additive offset rather than touching the system clock.
package clocksvc

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orbitmesh/satnode/internal/meshmetrics"
	"github.com/orbitmesh/satnode/internal/meshnet"
)

// TimeFetcher retrieves a neighbor's locally-adjusted time. Backed by
// the transport client's get_local_time call.
type TimeFetcher interface {
	FetchLocalTime(ctx context.Context, peer meshnet.PeerId) (time.Time, error)
}

// NeighborLister supplies the current neighbor set to poll. Backed by
// neighbor.Table.
type NeighborLister interface {
	Snapshot() []meshnet.PeerId
}

// offsetNanos is stored as an int64 so LocalTime can read it without a
// lock from any goroutine (spec §5: "clock offset reads must not
// block on the sync round").
type Service struct {
	fetcher   TimeFetcher
	neighbors NeighborLister
	logger    *slog.Logger
	metrics   *meshmetrics.Metrics

	syncInterval time.Duration
	fetchTimeout time.Duration

	offsetNanos atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config bundles Service construction parameters.
type Config struct {
	Fetcher      TimeFetcher
	Neighbors    NeighborLister
	Logger       *slog.Logger
	Metrics      *meshmetrics.Metrics
	SyncInterval time.Duration
	FetchTimeout time.Duration // default 2s if zero
}

// New creates a clock Service with a zero initial offset.
func New(cfg Config) *Service {
	timeout := cfg.FetchTimeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	return &Service{
		fetcher:      cfg.Fetcher,
		neighbors:    cfg.Neighbors,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		syncInterval: cfg.SyncInterval,
		fetchTimeout: timeout,
	}
}

// Start begins the periodic synchronization loop.
func (s *Service) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.syncLoop()
}

// Close stops the synchronization loop and waits for it to exit.
func (s *Service) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// LocalTime returns this node's adjusted local time: wall-clock time
// plus the currently-applied Berkeley offset. Lock-free so readers
// (including inbound get_local_time requests) never block on a
// sync round in progress.
func (s *Service) LocalTime() time.Time {
	offset := time.Duration(s.offsetNanos.Load())
	return time.Now().Add(offset)
}

func (s *Service) syncLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.syncOnce()
		}
	}
}

// syncOnce implements the Berkeley algorithm of spec §4.6: fetch every
// neighbor's local time (best-effort, unreachable neighbors skipped),
// average the responses together with this node's own local time
// (wall clock plus the current offset), and apply the mean-minus-self difference as an additive
// offset adjustment.
func (s *Service) syncOnce() {
	if s.fetcher == nil {
		return
	}
	self := s.LocalTime()
	samples := []time.Time{self}

	for _, n := range s.neighbors.Snapshot() {
		ctx, cancel := context.WithTimeout(s.ctx, s.fetchTimeout)
		t, err := s.fetcher.FetchLocalTime(ctx, n)
		cancel()
		if err != nil {
			if s.logger != nil {
				s.logger.Debug("clock sync: neighbor unreachable", "peer", n, "error", err, "component", "general")
			}
			continue
		}
		samples = append(samples, t)
	}

	if len(samples) < 2 {
		return // no neighbors answered; nothing to average against
	}

	var sumNanos int64
	for _, t := range samples {
		sumNanos += t.UnixNano()
	}
	mean := sumNanos / int64(len(samples))
	adjustment := time.Duration(mean - self.UnixNano())

	newOffset := time.Duration(s.offsetNanos.Load()) + adjustment
	s.offsetNanos.Store(int64(newOffset))

	if s.metrics != nil {
		s.metrics.ClockAdjustmentSeconds.Observe(adjustment.Seconds())
	}
	if s.logger != nil {
		s.logger.Info("clock synchronized", "adjustment", adjustment, "samples", len(samples), "component", "general")
	}
}
