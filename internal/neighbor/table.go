// Package neighbor implements proximity-based neighbor discovery and
// liveness tracking, per spec §4.2. Structured like pkg/p2pnet's
// PeerManager: a mutex-guarded map, background heartbeat/monitor
// loops, and admit/evict callbacks that drive RoutingTable and
// KeyAgent without those packages importing this one.
package neighbor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/orbitmesh/satnode/internal/meshmetrics"
	"github.com/orbitmesh/satnode/internal/meshnet"
)

// Neighbor tracks the lifecycle state of a single direct neighbor.
type Neighbor struct {
	ID              meshnet.PeerId
	Position        meshnet.Position
	Distance        float64
	LastHeartbeat   time.Time
}

// Info is a read-only snapshot for API responses.
type Info struct {
	ID            uint16  `json:"id"`
	Distance      float64 `json:"distance"`
	LastHeartbeat string  `json:"last_heartbeat,omitempty"`
}

// AdmitFunc is called when a peer is admitted as a neighbor
// (distance <= range) and again on every later in-range position
// report from it. Used to wire RoutingTable.AddDirectRoute and
// KeyAgent.InitiateExchange without an import cycle.
type AdmitFunc func(id meshnet.PeerId, dist float64)

// EvictFunc is called when a neighbor is evicted (heartbeat timeout).
// Used to wire RoutingTable's next-hop pruning.
type EvictFunc func(id meshnet.PeerId)

// Table is the concurrency-safe neighbor table of spec §4.2.
type Table struct {
	self meshnet.PeerId
	rng  float64 // discovery range R

	logger  *slog.Logger
	metrics *meshmetrics.Metrics

	onAdmit AdmitFunc // nil-safe
	onEvict EvictFunc // nil-safe

	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	sendHeartbeat     func(ctx context.Context, peer meshnet.PeerId, ts time.Time) error

	mu        sync.RWMutex
	neighbors map[meshnet.PeerId]*Neighbor

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config bundles the construction-time parameters for Table.
type Config struct {
	Self              meshnet.PeerId
	Range             float64
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	Logger            *slog.Logger
	Metrics           *meshmetrics.Metrics
	SendHeartbeat     func(ctx context.Context, peer meshnet.PeerId, ts time.Time) error
}

// New creates a neighbor Table.
func New(cfg Config) *Table {
	return &Table{
		self:              cfg.Self,
		rng:               cfg.Range,
		logger:            cfg.Logger,
		metrics:           cfg.Metrics,
		heartbeatInterval: cfg.HeartbeatInterval,
		heartbeatTimeout:  cfg.HeartbeatTimeout,
		sendHeartbeat:     cfg.SendHeartbeat,
		neighbors:         make(map[meshnet.PeerId]*Neighbor),
	}
}

// SetCallbacks wires the admit/evict hooks. Must be called before Start.
func (t *Table) SetCallbacks(onAdmit AdmitFunc, onEvict EvictFunc) {
	t.onAdmit = onAdmit
	t.onEvict = onEvict
}

// Start begins the heartbeat-send and eviction-monitor loops.
func (t *Table) Start(ctx context.Context) {
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.wg.Add(2)
	go t.heartbeatLoop()
	go t.monitorLoop()
}

// Close stops the background loops and waits for them to exit.
func (t *Table) Close() {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
}

// UpdatePosition implements spec §4.2's reaction to a received
// {nid, pos} position report: admits the peer as a neighbor if within
// range, and otherwise leaves existing membership untouched (eviction
// is heartbeat-driven only, never distance-driven).
func (t *Table) UpdatePosition(selfPos meshnet.Position, nid meshnet.PeerId, pos meshnet.Position) {
	if nid == t.self {
		return
	}
	dist := selfPos.Distance(pos)

	if dist > t.rng {
		// Out of range: do NOT evict. Eviction is heartbeat-driven only.
		return
	}

	t.mu.Lock()
	n, existed := t.neighbors[nid]
	if !existed {
		n = &Neighbor{ID: nid, LastHeartbeat: time.Now()}
		t.neighbors[nid] = n
	}
	n.Position = pos
	n.Distance = dist
	t.mu.Unlock()

	if !existed {
		if t.metrics != nil {
			t.metrics.NeighborsAdmittedTotal.WithLabelValues().Inc()
			t.metrics.NeighborCount.Set(float64(t.Count()))
		}
		if t.logger != nil {
			t.logger.Info("neighbor admitted", "peer", nid, "distance", dist, "component", "general")
		}
	}
	if t.onAdmit != nil {
		// Fires on first admission and on every subsequent in-range
		// update, so RoutingTable's direct-route cost and KeyAgent's
		// exchange-if-absent check both stay current (spec §4.2).
		t.onAdmit(nid, dist)
	}
}

// Heartbeat records a liveness beacon from a neighbor (spec §4.2). A
// heartbeat from a peer not yet in the table is ignored; it will be
// admitted by its own position broadcast.
func (t *Table) Heartbeat(nid meshnet.PeerId, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.neighbors[nid]; ok {
		n.LastHeartbeat = ts
	}
}

// Contains reports whether id is a current neighbor.
func (t *Table) Contains(id meshnet.PeerId) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.neighbors[id]
	return ok
}

// Distance returns the last known distance to a neighbor, or false if
// it is not a current neighbor.
func (t *Table) Distance(id meshnet.PeerId) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.neighbors[id]
	if !ok {
		return 0, false
	}
	return n.Distance, true
}

// Snapshot returns a copy of the current neighbor IDs, safe to
// iterate without holding the table lock (spec §5: "iteration over
// neighbors for broadcast MUST snapshot the set").
func (t *Table) Snapshot() []meshnet.PeerId {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]meshnet.PeerId, 0, len(t.neighbors))
	for id := range t.neighbors {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the current neighbor count.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.neighbors)
}

// Infos returns a read-only snapshot for the transport API.
func (t *Table) Infos() []Info {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Info, 0, len(t.neighbors))
	for _, n := range t.neighbors {
		info := Info{ID: uint16(n.ID), Distance: n.Distance}
		if !n.LastHeartbeat.IsZero() {
			info.LastHeartbeat = n.LastHeartbeat.Format(time.RFC3339)
		}
		out = append(out, info)
	}
	return out
}

func (t *Table) heartbeatLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.sendHeartbeats()
		}
	}
}

func (t *Table) sendHeartbeats() {
	if t.sendHeartbeat == nil {
		return
	}
	now := time.Now()
	for _, id := range t.Snapshot() {
		ctx, cancel := context.WithTimeout(t.ctx, 5*time.Second)
		if err := t.sendHeartbeat(ctx, id, now); err != nil && t.logger != nil {
			t.logger.Warn("heartbeat send failed", "peer", id, "error", err, "component", "general")
		}
		cancel()
	}
}

func (t *Table) monitorLoop() {
	defer t.wg.Done()
	// Runs at the same cadence as the heartbeat loop, per spec §4.2.
	ticker := time.NewTicker(t.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.evictStale()
		}
	}
}

func (t *Table) evictStale() {
	deadline := time.Now().Add(-t.heartbeatTimeout)

	t.mu.Lock()
	var evicted []meshnet.PeerId
	for id, n := range t.neighbors {
		if n.LastHeartbeat.Before(deadline) {
			evicted = append(evicted, id)
			delete(t.neighbors, id)
		}
	}
	t.mu.Unlock()

	for _, id := range evicted {
		if t.metrics != nil {
			t.metrics.NeighborsEvictedTotal.WithLabelValues("heartbeat_timeout").Inc()
			t.metrics.NeighborCount.Set(float64(t.Count()))
		}
		if t.logger != nil {
			t.logger.Warn("neighbor evicted", "peer", id, "reason", "heartbeat_timeout", "component", "general")
		}
		if t.onEvict != nil {
			t.onEvict(id)
		}
	}
}
