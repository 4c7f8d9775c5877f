// Package peer is the composition root of a satnode process: it wires
// every protocol component (position, neighbor, routing, key
// agreement, packet engine, clock, transport) into one running peer,
// following the same construct-then-Start(ctx) shape the teacher uses
// for pkg/p2pnet's Network type.
package peer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/orbitmesh/satnode/internal/clocksvc"
	"github.com/orbitmesh/satnode/internal/config"
	"github.com/orbitmesh/satnode/internal/imagestore"
	"github.com/orbitmesh/satnode/internal/keyagent"
	"github.com/orbitmesh/satnode/internal/meshmetrics"
	"github.com/orbitmesh/satnode/internal/meshnet"
	"github.com/orbitmesh/satnode/internal/neighbor"
	"github.com/orbitmesh/satnode/internal/packet"
	"github.com/orbitmesh/satnode/internal/position"
	"github.com/orbitmesh/satnode/internal/routing"
	"github.com/orbitmesh/satnode/internal/transport"
)

// Peer is one running satnode process.
type Peer struct {
	cfg    config.PeerConfig
	self   meshnet.PeerId
	logger *slog.Logger

	metrics   *meshmetrics.Metrics
	addr      meshnet.AddressBook
	client    *transport.Client
	identity  *keyagent.Agent
	neighbors *neighbor.Table
	routes    *routing.Table
	engine    *packet.Engine
	positions *position.Service
	clock     *clocksvc.Service
	images    *imagestore.Store
	server    *transport.Server
}

// New constructs a Peer from cfg, wiring every component together.
// It does not start any background loop or listener; call Start for that.
func New(cfg config.PeerConfig, logger *slog.Logger) (*Peer, error) {
	self := meshnet.PeerId(cfg.Node.ID)
	kind := self.Kind()

	metrics := meshmetrics.New(fmt.Sprintf("%d", cfg.Node.ID), "dev")

	addr := meshnet.AddressBook{Host: cfg.Network.ListenHost, BasePort: cfg.Network.BasePort}
	client := transport.NewClient(self, addr, nil)

	priv, err := keyagent.LoadOrCreateIdentity(cfg.Crypto.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("peer: load identity: %w", err)
	}
	identity := keyagent.New(self, priv, logger)
	identity.WireSender(client)

	imgDir := cfg.Images.Directory
	if imgDir == "" {
		imgDir = "received_images"
	}
	store, err := imagestore.New(imgDir, logger)
	if err != nil {
		return nil, fmt.Errorf("peer: init image store: %w", err)
	}

	neighbors := neighbor.New(neighbor.Config{
		Self:              self,
		Range:             cfg.Discovery.Range,
		HeartbeatInterval: cfg.Heartbeat.Interval,
		HeartbeatTimeout:  cfg.Heartbeat.Timeout,
		Logger:            logger,
		Metrics:           metrics,
		SendHeartbeat:     client.SendHeartbeat,
	})

	routes := routing.New(self, neighbors, logger, metrics)
	routes.SetPropagate(func(to meshnet.PeerId, table routing.Advert) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.PropagateRoutes(ctx, to, table); err != nil {
			logger.Warn("routing propagation failed", "peer", to, "error", err, "component", "routing")
		}
	})

	neighbors.SetCallbacks(
		func(id meshnet.PeerId, dist float64) {
			routes.AddDirectRoute(id, dist)
			if !identity.HasSession(id) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := identity.InitiateExchange(ctx, id); err != nil {
					logger.Warn("key exchange initiation failed", "peer", id, "error", err, "component", "general")
				}
			}
		},
		func(id meshnet.PeerId) {
			routes.RemoveNextHop(id)
		},
	)

	engine := packet.New(packet.Config{
		Self:           self,
		Router:         routes,
		Neighbors:      neighbors,
		Crypto:         identity,
		Sender:         client,
		Images:         store,
		Logger:         logger,
		Metrics:        metrics,
		ImageBufferTTL: cfg.Images.BufferTTL,
	})

	positions := position.New(position.Config{
		Self:              self,
		IsGround:          cfg.Node.IsGround,
		MinPeerID:         meshnet.PeerId(cfg.Network.MinPeerID),
		MaxPeerID:         meshnet.PeerId(cfg.Network.MaxPeerID),
		InitialPosition:   meshnet.Position{X: cfg.Node.X, Y: cfg.Node.Y, Z: cfg.Node.Z},
		Mobility:          cfg.Discovery.Mobility,
		BroadcastInterval: cfg.Discovery.BroadcastInterval,
		UpdateInterval:    cfg.Discovery.PositionUpdateInterval,
		Sender:            client,
		Neighbors:         neighbors,
		Logger:            logger,
	})

	clock := clocksvc.New(clocksvc.Config{
		Fetcher:      client,
		Neighbors:    neighbors,
		Logger:       logger,
		Metrics:      metrics,
		SyncInterval: cfg.Clock.SyncInterval,
	})

	server := transport.NewServer(transport.Deps{
		Self:      self,
		Kind:      kind,
		Packets:   engine,
		Keys:      identity,
		Positions: positions,
		Heartbeat: neighbors,
		Routes:    routes,
		Clock:     clock,
		Images:    store,
		Logger:    logger,
		Metrics:   metrics,
	})

	return &Peer{
		cfg:       cfg,
		self:      self,
		logger:    logger,
		metrics:   metrics,
		addr:      addr,
		client:    client,
		identity:  identity,
		neighbors: neighbors,
		routes:    routes,
		engine:    engine,
		positions: positions,
		clock:     clock,
		images:    store,
		server:    server,
	}, nil
}

// Start begins every background loop and the HTTP listener. It blocks
// until the listener stops (ctx cancellation or a fatal accept error).
func (p *Peer) Start(ctx context.Context) error {
	p.neighbors.Start(ctx)
	p.positions.Start(ctx)
	p.clock.Start(ctx)
	p.engine.Start(ctx, p.cfg.Images.BufferTTL/5+time.Second)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p.server.Shutdown(shutdownCtx)
	}()

	addr := fmt.Sprintf("%s:%d", p.cfg.Network.ListenHost, p.cfg.Network.BasePort+int(p.cfg.Node.ID))
	err := p.server.ListenAndServe(addr)

	p.neighbors.Close()
	p.positions.Close()
	p.clock.Close()
	p.engine.Close()

	return err
}

// Fail puts the node into the FAILED state (spec §4.8).
func (p *Peer) Fail() { p.server.Fail() }

// Recover returns the node to the ACTIVE state.
func (p *Peer) Recover() { p.server.Recover() }

// Metrics returns this peer's metrics collectors and their registry.
func (p *Peer) Metrics() *meshmetrics.Metrics {
	return p.metrics
}

// KeyFilePath returns the resolved identity key file path, mostly for
// CLI status output.
func (p *Peer) KeyFilePath() string {
	if p.cfg.Crypto.KeyFile == "" {
		return ""
	}
	abs, err := filepath.Abs(p.cfg.Crypto.KeyFile)
	if err != nil {
		return p.cfg.Crypto.KeyFile
	}
	return abs
}
