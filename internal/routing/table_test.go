package routing

import (
	"sync"
	"testing"

	"github.com/orbitmesh/satnode/internal/meshnet"
)

type fakeNeighbors struct {
	mu        sync.Mutex
	distances map[meshnet.PeerId]float64
}

func newFakeNeighbors(d map[meshnet.PeerId]float64) *fakeNeighbors {
	return &fakeNeighbors{distances: d}
}

func (f *fakeNeighbors) Contains(id meshnet.PeerId) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.distances[id]
	return ok
}

func (f *fakeNeighbors) Distance(id meshnet.PeerId) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.distances[id]
	return d, ok
}

func (f *fakeNeighbors) Snapshot() []meshnet.PeerId {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]meshnet.PeerId, 0, len(f.distances))
	for id := range f.distances {
		ids = append(ids, id)
	}
	return ids
}

func TestAddDirectRoute(t *testing.T) {
	tbl := New(1, newFakeNeighbors(nil), nil, nil)
	tbl.AddDirectRoute(2, 4.5)

	hop, ok := tbl.NextHop(2)
	if !ok || hop != 2 {
		t.Errorf("NextHop(2) = (%v, %v), want (2, true)", hop, ok)
	}
	if tbl.Count() != 1 {
		t.Errorf("Count() = %d, want 1", tbl.Count())
	}
}

func TestNextHopSelf(t *testing.T) {
	tbl := New(1, newFakeNeighbors(nil), nil, nil)
	hop, ok := tbl.NextHop(1)
	if !ok || hop != 1 {
		t.Errorf("NextHop(self) = (%v, %v), want (1, true)", hop, ok)
	}
}

func TestNextHopNoRoute(t *testing.T) {
	tbl := New(1, newFakeNeighbors(nil), nil, nil)
	if _, ok := tbl.NextHop(99); ok {
		t.Error("NextHop() for unknown destination should report ok=false")
	}
}

func TestAdvertiseFromNeighborRejectsNonNeighbor(t *testing.T) {
	tbl := New(1, newFakeNeighbors(map[meshnet.PeerId]float64{}), nil, nil)
	tbl.AdvertiseFromNeighbor(2, Advert{3: {NextHop: 3, Cost: 1}})
	if tbl.Count() != 0 {
		t.Error("advertisement from a non-neighbor must be ignored")
	}
}

func TestAdvertiseFromNeighborMergesLowerCost(t *testing.T) {
	tbl := New(1, newFakeNeighbors(map[meshnet.PeerId]float64{2: 3.0}), nil, nil)
	tbl.AdvertiseFromNeighbor(2, Advert{5: {NextHop: 5, Cost: 1.0}})

	hop, ok := tbl.NextHop(5)
	if !ok || hop != 2 {
		t.Fatalf("NextHop(5) = (%v, %v), want (2, true)", hop, ok)
	}
	snap := tbl.Snapshot()
	if snap[5].Cost != 4.0 {
		t.Errorf("Cost to 5 = %v, want 4.0 (3.0 + 1.0)", snap[5].Cost)
	}
}

func TestAdvertiseFromNeighborKeepsExistingOnTie(t *testing.T) {
	neighbors := newFakeNeighbors(map[meshnet.PeerId]float64{2: 1.0, 3: 1.0})
	tbl := New(1, neighbors, nil, nil)
	tbl.AdvertiseFromNeighbor(2, Advert{9: {NextHop: 9, Cost: 2.0}}) // total cost 3.0, next hop 2
	tbl.AdvertiseFromNeighbor(3, Advert{9: {NextHop: 9, Cost: 2.0}}) // same total cost via 3

	hop, _ := tbl.NextHop(9)
	if hop != 2 {
		t.Errorf("NextHop(9) = %v, want 2 (existing route kept on cost tie)", hop)
	}
}

func TestAdvertiseFromNeighborSkipsSelf(t *testing.T) {
	tbl := New(1, newFakeNeighbors(map[meshnet.PeerId]float64{2: 1.0}), nil, nil)
	tbl.AdvertiseFromNeighbor(2, Advert{1: {NextHop: 1, Cost: 0}})
	if tbl.Count() != 0 {
		t.Error("a route to self must never be installed")
	}
}

func TestRemoveNextHopPrunesDependentRoutes(t *testing.T) {
	tbl := New(1, newFakeNeighbors(map[meshnet.PeerId]float64{2: 1.0}), nil, nil)
	tbl.AddDirectRoute(2, 1.0)
	tbl.AdvertiseFromNeighbor(2, Advert{9: {NextHop: 9, Cost: 3.0}})

	if tbl.Count() != 2 {
		t.Fatalf("Count() = %d, want 2 before eviction", tbl.Count())
	}
	tbl.RemoveNextHop(2)
	if tbl.Count() != 0 {
		t.Errorf("Count() = %d, want 0 after next-hop eviction", tbl.Count())
	}
}

func TestPropagateSendsToEveryNeighbor(t *testing.T) {
	neighbors := newFakeNeighbors(map[meshnet.PeerId]float64{2: 1.0, 3: 1.0})
	tbl := New(1, neighbors, nil, nil)

	var mu sync.Mutex
	sent := map[meshnet.PeerId]bool{}
	tbl.SetPropagate(func(to meshnet.PeerId, table Advert) {
		mu.Lock()
		sent[to] = true
		mu.Unlock()
	})

	tbl.AddDirectRoute(2, 1.0)

	mu.Lock()
	defer mu.Unlock()
	if !sent[2] || !sent[3] {
		t.Errorf("expected propagation to both neighbors, got %v", sent)
	}
}
