// Package position implements periodic position broadcast and the
// circular-orbit mobility model of spec §4.1.
package position

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/orbitmesh/satnode/internal/config"
	"github.com/orbitmesh/satnode/internal/meshnet"
)

// Sender transmits this node's {id, position} to another peer's
// update_position endpoint. Backed by the transport client.
type Sender interface {
	SendPosition(ctx context.Context, peer meshnet.PeerId, self meshnet.PeerId, pos meshnet.Position) error
}

// NeighborUpdater reacts to an inbound position report. Backed by
// neighbor.Table.UpdatePosition.
type NeighborUpdater interface {
	UpdatePosition(selfPos meshnet.Position, nid meshnet.PeerId, pos meshnet.Position)
}

// maxBroadcastFanout bounds the concurrency of one broadcast round so
// a large deployment's [MinPeerID,MaxPeerID] span cannot open an
// unbounded number of simultaneous outbound connections.
const maxBroadcastFanout = 32

// Service owns one peer's current position, its mobility model (ground
// stations are stationary), and the broadcast/update loops of spec §4.1.
type Service struct {
	self     meshnet.PeerId
	isGround bool
	minID    meshnet.PeerId
	maxID    meshnet.PeerId

	mobility config.MobilityConfig
	epoch    time.Time

	sender    Sender
	neighbors NeighborUpdater
	logger    *slog.Logger

	mu  sync.RWMutex
	pos meshnet.Position

	broadcastInterval time.Duration
	updateInterval    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	broadcastsInFlight atomic.Int32
}

// Config bundles Service construction parameters.
type Config struct {
	Self              meshnet.PeerId
	IsGround          bool
	MinPeerID         meshnet.PeerId
	MaxPeerID         meshnet.PeerId
	InitialPosition   meshnet.Position
	Mobility          config.MobilityConfig
	BroadcastInterval time.Duration
	UpdateInterval    time.Duration
	Sender            Sender
	Neighbors         NeighborUpdater
	Logger            *slog.Logger
}

// New creates a position Service.
func New(cfg Config) *Service {
	return &Service{
		self:              cfg.Self,
		isGround:          cfg.IsGround,
		minID:             cfg.MinPeerID,
		maxID:             cfg.MaxPeerID,
		mobility:          cfg.Mobility,
		pos:               cfg.InitialPosition,
		sender:            cfg.Sender,
		neighbors:         cfg.Neighbors,
		logger:            cfg.Logger,
		broadcastInterval: cfg.BroadcastInterval,
		updateInterval:    cfg.UpdateInterval,
	}
}

// Position returns the current position.
func (s *Service) Position() meshnet.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pos
}

// Start begins the broadcast and mobility-update loops. Ground
// stations never move, per spec §4.1, so their mobility-update loop
// is a no-op scheduler left running for uniformity with satellites.
func (s *Service) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.epoch = time.Now()
	s.wg.Add(2)
	go s.broadcastLoop()
	go s.mobilityLoop()
}

// Close stops the background loops and waits for them to exit.
func (s *Service) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Service) broadcastLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.broadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.broadcastOnce()
		}
	}
}

// broadcastOnce fans out this node's position to every ID in
// [minID, maxID] other than itself, per spec §4.1 ("every possible
// peer address" — discovery has no a-priori neighbor knowledge, so the
// broadcast set is the whole deployment address space, not just
// current neighbors). Bounded concurrency via errgroup avoids opening
// MaxPeerID-MinPeerID simultaneous connections from one node.
func (s *Service) broadcastOnce() {
	if s.sender == nil {
		return
	}
	pos := s.Position()

	g, ctx := errgroup.WithContext(s.ctx)
	g.SetLimit(maxBroadcastFanout)

	for id := s.minID; id <= s.maxID; id++ {
		id := id
		if id == s.self {
			continue
		}
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := s.sender.SendPosition(sendCtx, id, s.self, pos); err != nil && s.logger != nil {
				s.logger.Debug("position broadcast failed", "peer", id, "error", err, "component", "general")
			}
			return nil
		})
	}
	// Errors are swallowed per-send above; g.Wait only blocks for
	// completion and never itself fails, since every branch returns nil.
	_ = g.Wait()
}

func (s *Service) mobilityLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.updateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.advance()
		}
	}
}

// advance applies the default circular-orbit mobility model of spec
// §4.1: x = cx + r*cos(w*t), y = cy + r*sin(w*t), z unchanged. Ground
// stations are stationary and skip this entirely.
func (s *Service) advance() {
	if s.isGround {
		return
	}
	m := s.mobility
	if m.Radius == 0 {
		// No orbit configured: hold the initial position rather than
		// snapping to an unconfigured (zero-valued) orbit center.
		return
	}
	t := time.Since(s.epoch).Seconds()

	s.mu.Lock()
	s.pos.X = m.CenterX + m.Radius*math.Cos(m.Omega*t)
	s.pos.Y = m.CenterY + m.Radius*math.Sin(m.Omega*t)
	s.mu.Unlock()
}

// HandleReport processes an inbound {id, pos} report received from
// another peer's broadcast, forwarding it to the neighbor table for
// admission/refresh (spec §4.1 step 2, §4.2).
func (s *Service) HandleReport(nid meshnet.PeerId, pos meshnet.Position) {
	if s.neighbors == nil {
		return
	}
	s.neighbors.UpdatePosition(s.Position(), nid, pos)
}
