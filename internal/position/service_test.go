package position

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/orbitmesh/satnode/internal/config"
	"github.com/orbitmesh/satnode/internal/meshnet"
)

type fakeSender struct {
	mu    sync.Mutex
	calls map[meshnet.PeerId]meshnet.Position
}

func (f *fakeSender) SendPosition(ctx context.Context, peer, self meshnet.PeerId, pos meshnet.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[meshnet.PeerId]meshnet.Position)
	}
	f.calls[peer] = pos
	return nil
}

type fakeNeighborUpdater struct {
	mu       sync.Mutex
	reported map[meshnet.PeerId]meshnet.Position
}

func (f *fakeNeighborUpdater) UpdatePosition(selfPos meshnet.Position, nid meshnet.PeerId, pos meshnet.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reported == nil {
		f.reported = make(map[meshnet.PeerId]meshnet.Position)
	}
	f.reported[nid] = pos
}

func TestBroadcastOnceSkipsSelf(t *testing.T) {
	sender := &fakeSender{}
	svc := New(Config{
		Self: 5, MinPeerID: 1, MaxPeerID: 10,
		Sender: sender,
	})
	svc.ctx = context.Background()

	svc.broadcastOnce()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if _, sentToSelf := sender.calls[5]; sentToSelf {
		t.Error("broadcastOnce must not send a position report to self")
	}
	if len(sender.calls) != 9 {
		t.Errorf("expected 9 broadcast targets, got %d", len(sender.calls))
	}
}

func TestGroundStationDoesNotMove(t *testing.T) {
	svc := New(Config{
		Self: 1001, IsGround: true,
		InitialPosition: meshnet.Position{X: 10, Y: 20, Z: 0},
		Mobility:        config.MobilityConfig{Radius: 5, Omega: 1},
	})
	svc.epoch = time.Now().Add(-time.Hour)
	svc.advance()

	got := svc.Position()
	if got.X != 10 || got.Y != 20 {
		t.Errorf("ground station moved: got %+v, want (10, 20, 0)", got)
	}
}

func TestSatelliteFollowsCircularOrbit(t *testing.T) {
	svc := New(Config{
		Self: 1,
		Mobility: config.MobilityConfig{
			CenterX: 0, CenterY: 0, Radius: 100, Omega: math.Pi / 2, // quarter turn per second
		},
	})
	svc.epoch = time.Now().Add(-1 * time.Second)
	svc.advance()

	got := svc.Position()
	if math.Abs(got.X) > 1 || math.Abs(got.Y-100) > 1 {
		t.Errorf("after a quarter orbit, position = %+v, want approximately (0, 100, _)", got)
	}
}

func TestSatelliteWithUnconfiguredMobilityHoldsInitialPosition(t *testing.T) {
	svc := New(Config{
		Self:            3,
		InitialPosition: meshnet.Position{X: 42, Y: -7, Z: 0},
		// Mobility left at its zero value, as config.Defaults leaves it.
	})
	svc.epoch = time.Now().Add(-time.Hour)
	svc.advance()

	got := svc.Position()
	if got.X != 42 || got.Y != -7 {
		t.Errorf("advance() with unconfigured mobility moved the node: got %+v, want (42, -7, 0)", got)
	}
}

func TestHandleReportForwardsToNeighborUpdater(t *testing.T) {
	updater := &fakeNeighborUpdater{}
	svc := New(Config{Self: 1, Neighbors: updater})

	svc.HandleReport(2, meshnet.Position{X: 1, Y: 2, Z: 3})

	updater.mu.Lock()
	defer updater.mu.Unlock()
	if updater.reported[2] != (meshnet.Position{X: 1, Y: 2, Z: 3}) {
		t.Errorf("HandleReport did not forward to the neighbor updater: got %+v", updater.reported)
	}
}
