// Package routing implements the distance-vector RoutingTable of
// spec §4.3: merge advertisements, propagate on change, and resolve
// the next hop for a destination (or fall back to flood).
package routing

import (
	"log/slog"
	"sync"

	"github.com/orbitmesh/satnode/internal/meshmetrics"
	"github.com/orbitmesh/satnode/internal/meshnet"
)

// Entry is one row of the distance-vector table.
type Entry struct {
	NextHop meshnet.PeerId
	Cost    float64
}

// Advert is the wire shape of a routing-table propagation: dest -> [next_hop, cost].
// The advertised next hop is the advertiser's own next hop; recipients
// ignore it, use the sender as their next hop, and take the sender's
// cost plus their distance to the sender as their cost.
type Advert map[meshnet.PeerId]Entry

// PropagateFunc sends this node's routing table to a neighbor. Wired
// to the transport client; kept as a narrow interface so this package
// has no network dependency.
type PropagateFunc func(to meshnet.PeerId, table Advert)

// NeighborSource answers "is sender a current neighbor, and at what
// distance" — backed by the neighbor.Table, injected to avoid an
// import cycle (routing must not import neighbor).
type NeighborSource interface {
	Contains(id meshnet.PeerId) bool
	Distance(id meshnet.PeerId) (float64, bool)
	Snapshot() []meshnet.PeerId
}

// Table is the concurrency-safe distance-vector routing table.
type Table struct {
	self meshnet.PeerId

	logger    *slog.Logger
	metrics   *meshmetrics.Metrics
	neighbors NeighborSource
	propagate PropagateFunc // nil-safe, settable after construction for tests

	mu     sync.RWMutex
	routes map[meshnet.PeerId]Entry
}

// New creates a RoutingTable.
func New(self meshnet.PeerId, neighbors NeighborSource, logger *slog.Logger, metrics *meshmetrics.Metrics) *Table {
	return &Table{
		self:      self,
		logger:    logger,
		metrics:   metrics,
		neighbors: neighbors,
		routes:    make(map[meshnet.PeerId]Entry),
	}
}

// SetPropagate wires the function used to push the full table to
// every neighbor. Must be called before AddDirectRoute/AdvertiseFromNeighbor
// can have any network effect; safe to leave nil in unit tests that only
// check internal route state.
func (t *Table) SetPropagate(fn PropagateFunc) {
	t.propagate = fn
}

// AddDirectRoute installs or refreshes the always-present direct
// route to a neighbor: Route[n] = (n, distance(n)), per spec §4.3's
// stated invariant. Called from NeighborTable's admit callback.
func (t *Table) AddDirectRoute(n meshnet.PeerId, dist float64) {
	t.mu.Lock()
	existing, ok := t.routes[n]
	changed := !ok || existing.NextHop != n || existing.Cost != dist
	if changed {
		t.routes[n] = Entry{NextHop: n, Cost: dist}
	}
	t.mu.Unlock()

	if changed {
		if t.metrics != nil {
			t.metrics.RouteCount.Set(float64(t.Count()))
		}
		t.Propagate()
	}
}

// RemoveNextHop prunes every route whose next hop is n, per spec §4.3
// ("next_hop ∈ NeighborTable for every live route; pruned when
// next_hop is evicted"). Called from NeighborTable's evict callback.
func (t *Table) RemoveNextHop(n meshnet.PeerId) {
	t.mu.Lock()
	var removed bool
	for dest, e := range t.routes {
		if e.NextHop == n {
			delete(t.routes, dest)
			removed = true
		}
	}
	t.mu.Unlock()

	if removed {
		if t.metrics != nil {
			t.metrics.RouteCount.Set(float64(t.Count()))
		}
		t.Propagate()
	}
}

// AdvertiseFromNeighbor merges an advertisement received from sender,
// per spec §4.3. Advertisements from non-neighbors are rejected with
// a warning (ErrNotNeighbor), not an error return — spec §7 treats
// this as a logged-and-ignored condition, never fatal.
func (t *Table) AdvertiseFromNeighbor(sender meshnet.PeerId, table Advert) {
	if !t.neighbors.Contains(sender) {
		if t.logger != nil {
			t.logger.Warn("routing advertisement from non-neighbor", "sender", sender, "component", "routing")
		}
		return
	}
	distToSender, ok := t.neighbors.Distance(sender)
	if !ok {
		return // evicted between Contains and Distance; next round will settle
	}

	t.mu.Lock()
	dirty := false
	for dest, remote := range table {
		if dest == t.self {
			continue
		}
		newCost := distToSender + remote.Cost
		current, exists := t.routes[dest]
		if !exists || newCost < current.Cost {
			t.routes[dest] = Entry{NextHop: sender, Cost: newCost}
			dirty = true
		}
		// Equal cost: keep the existing route (tie-break avoids churn).
	}
	t.mu.Unlock()

	if dirty {
		if t.metrics != nil {
			t.metrics.RouteCount.Set(float64(t.Count()))
		}
		t.Propagate()
	}
}

// Propagate sends the full routing table to every current neighbor.
func (t *Table) Propagate() {
	if t.propagate == nil {
		return
	}
	snap := t.Snapshot()
	for _, n := range t.neighbors.Snapshot() {
		t.propagate(n, snap)
	}
	if t.metrics != nil {
		t.metrics.RoutingPropagationsTotal.WithLabelValues().Inc()
	}
}

// NextHop resolves the forwarding decision of spec §4.3: "self" means
// deliver locally (ok=true, hop=self); a known route returns its next
// hop; otherwise ok is false and the caller should flood.
func (t *Table) NextHop(dst meshnet.PeerId) (hop meshnet.PeerId, ok bool) {
	if dst == t.self {
		return t.self, true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, exists := t.routes[dst]
	if !exists {
		return 0, false
	}
	return e.NextHop, true
}

// Snapshot returns a copy of the routing table suitable for
// advertisement or API responses.
func (t *Table) Snapshot() Advert {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(Advert, len(t.routes))
	for dest, e := range t.routes {
		out[dest] = e
	}
	return out
}

// Count returns the number of routes currently held.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routes)
}
