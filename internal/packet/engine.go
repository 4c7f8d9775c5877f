package packet

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orbitmesh/satnode/internal/meshmetrics"
	"github.com/orbitmesh/satnode/internal/meshnet"
)

const protocolVersion uint8 = 1

// startingTTL is the hop budget assigned to a packet at origination,
// per spec §4.5. It decrements on every hop, including the
// originating one — S1's trace shows TTL on the wire at 9 after the
// first send, not 10.
const startingTTL uint32 = 10

// Router resolves a destination to a next hop, or reports no route so
// the engine can flood. Backed by routing.Table.
type Router interface {
	NextHop(dst meshnet.PeerId) (hop meshnet.PeerId, ok bool)
}

// NeighborLister supplies the flood fallback's fan-out set. Backed by
// neighbor.Table.
type NeighborLister interface {
	Snapshot() []meshnet.PeerId
}

// KeyCrypto is the subset of keyagent.Agent the engine needs: sealing
// outbound payloads under a hop key and opening inbound ones under the
// previous hop's key (spec §9.1's resolution of hop-vs-e2e
// encryption), plus on-demand exchange when a key is missing.
type KeyCrypto interface {
	HasSession(peer meshnet.PeerId) bool
	InitiateExchange(ctx context.Context, peer meshnet.PeerId) error
	Seal(hop meshnet.PeerId, plaintext []byte) ([]byte, error)
	Open(fromHop meshnet.PeerId, sealed []byte) ([]byte, error)
}

// Sender transmits a fully-assembled wire packet to the next hop.
// Backed by the transport client's "receive" call.
type Sender interface {
	SendPacket(ctx context.Context, hop meshnet.PeerId, wire []byte) error
}

// ImagePersister is notified whenever a full image has been
// reassembled and inflated for delivery. Backed by internal/imagestore.
type ImagePersister interface {
	SaveImage(src meshnet.PeerId, data []byte) error
}

// Engine is the per-node packet forwarding/delivery state machine of
// spec §4.5: source send, per-hop forward, and local delivery,
// including TTL handling, on-demand key exchange, and flood fallback.
type Engine struct {
	self meshnet.PeerId

	router    Router
	neighbors NeighborLister
	crypto    KeyCrypto
	sender    Sender
	images    ImagePersister

	logger  *slog.Logger
	metrics *meshmetrics.Metrics

	seq          atomic.Uint32
	reasm        *reassembler
	lastReceived atomic.Pointer[ReceivedPacket]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config bundles Engine construction parameters.
type Config struct {
	Self               meshnet.PeerId
	Router             Router
	Neighbors          NeighborLister
	Crypto             KeyCrypto
	Sender             Sender
	Images             ImagePersister
	Logger         *slog.Logger
	Metrics        *meshmetrics.Metrics
	ImageBufferTTL time.Duration
}

// New creates a packet Engine.
func New(cfg Config) *Engine {
	return &Engine{
		self:      cfg.Self,
		router:    cfg.Router,
		neighbors: cfg.Neighbors,
		crypto:    cfg.Crypto,
		sender:    cfg.Sender,
		images:    cfg.Images,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		reasm:     newReassembler(cfg.ImageBufferTTL, cfg.Metrics),
	}
}

// Start begins the image-buffer TTL janitor loop.
func (e *Engine) Start(ctx context.Context, janitorPeriod time.Duration) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go e.janitorLoop(janitorPeriod)
}

// Close stops the janitor loop and waits for it to exit.
func (e *Engine) Close() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

func (e *Engine) janitorLoop(period time.Duration) {
	defer e.wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.reasm.sweep()
		}
	}
}

func (e *Engine) nextSeq() uint32 {
	return e.seq.Add(1)
}

// Send originates a packet of msgType carrying plaintext to dst, per
// spec §4.5's source path: build the packet with a fresh TTL, then
// enter the same forward path used for relayed traffic.
func (e *Engine) Send(ctx context.Context, dst meshnet.PeerId, msgType uint8, plaintext []byte) error {
	p := Packet{
		Version: protocolVersion,
		MsgType: msgType,
		Src:     e.self,
		Dst:     dst,
		Seq:     e.nextSeq(),
		TTL:     startingTTL,
		Payload: plaintext,
	}
	if e.metrics != nil {
		e.metrics.PacketsSentTotal.WithLabelValues(msgTypeLabel(msgType)).Inc()
	}
	return e.forward(ctx, p, e.self)
}

// SendImage compresses, chunks, and sends data as a sequence of
// TypeImageChunk packets to dst, per spec §4.5/§6.
func (e *Engine) SendImage(ctx context.Context, dst meshnet.PeerId, data []byte) error {
	compressed := deflate(data)
	chunks := SplitChunks(compressed)
	total := len(chunks)
	for i, chunk := range chunks {
		payload := EncodeChunk(i+1, total, chunk)
		if err := e.Send(ctx, dst, TypeImageChunk, payload); err != nil {
			return err
		}
	}
	return nil
}

// forward implements spec §4.5's per-hop handling of a plaintext
// packet: local delivery if addressed to self, otherwise TTL-guard,
// route-or-flood, and seal-under-hop-key before transmission. fromHop
// is e.self for locally-originated packets (nothing to re-seal back
// to) and the previous hop for relayed/received packets.
func (e *Engine) forward(ctx context.Context, p Packet, fromHop meshnet.PeerId) error {
	if p.Dst == e.self {
		e.deliverLocal(p)
		return nil
	}

	if p.TTL == 0 {
		if e.metrics != nil {
			e.metrics.PacketsDroppedTotal.WithLabelValues("ttl").Inc()
		}
		if e.logger != nil {
			e.logger.Warn("packet dropped: ttl expired", "src", p.Src, "dst", p.Dst, "component", "general")
		}
		return meshnet.ErrTTLExpired
	}
	p.TTL--

	if hop, ok := e.router.NextHop(p.Dst); ok {
		return e.transmit(ctx, p, hop, "routed")
	}

	// No route: flood to every current neighbor, per spec §4.5.
	var firstErr error
	for _, n := range e.neighbors.Snapshot() {
		if n == fromHop {
			continue // don't reflect a relayed packet back to its sender
		}
		if err := e.transmit(ctx, p, n, "flood"); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// transmit seals p's payload under hop's session key and sends it,
// triggering a key exchange and retrying once if no session key yet
// exists (spec §7: "on send: trigger exchange, retry once; if still
// missing, drop").
func (e *Engine) transmit(ctx context.Context, p Packet, hop meshnet.PeerId, mode string) error {
	sealed, err := e.crypto.Seal(hop, p.Payload)
	if err == meshnet.ErrKeyMissing {
		if xerr := e.crypto.InitiateExchange(ctx, hop); xerr != nil && e.logger != nil {
			e.logger.Warn("key exchange initiation failed", "peer", hop, "error", xerr, "component", "general")
		}
		sealed, err = e.crypto.Seal(hop, p.Payload)
		if err == meshnet.ErrKeyMissing {
			if e.metrics != nil {
				e.metrics.PacketsDroppedTotal.WithLabelValues("nokey").Inc()
			}
			if e.logger != nil {
				e.logger.Warn("packet dropped: no session key", "hop", hop, "dst", p.Dst, "component", "general")
			}
			return err
		}
	}
	if err != nil {
		if e.metrics != nil {
			e.metrics.PacketsDroppedTotal.WithLabelValues("crypto").Inc()
		}
		return err
	}

	wire := MarshalWire(Packet{
		Version: p.Version,
		MsgType: p.MsgType,
		Src:     p.Src,
		Dst:     p.Dst,
		Seq:     p.Seq,
		TTL:     p.TTL,
		Payload: sealed,
	})

	if err := e.sender.SendPacket(ctx, hop, wire); err != nil {
		if e.metrics != nil {
			e.metrics.PacketsDroppedTotal.WithLabelValues("offline").Inc()
		}
		if e.logger != nil {
			e.logger.Warn("packet send failed", "hop", hop, "error", err, "component", "general")
		}
		return err
	}
	if e.metrics != nil {
		e.metrics.PacketsForwardedTotal.WithLabelValues(mode).Inc()
	}
	return nil
}

// Receive handles an inbound wire packet received directly from
// fromHop: parses the header, opens the payload under fromHop's
// session key (spec §9.1), and either delivers/reassembles locally or
// re-enters forward with the decrypted payload.
func (e *Engine) Receive(ctx context.Context, fromHop meshnet.PeerId, wire []byte) error {
	p, err := UnmarshalWire(wire)
	if err != nil {
		if e.metrics != nil {
			e.metrics.PacketsDroppedTotal.WithLabelValues("parse").Inc()
		}
		if e.logger != nil {
			e.logger.Error("packet dropped: parse error", "from", fromHop, "error", err, "component", "general")
		}
		return err
	}

	plaintext, err := e.crypto.Open(fromHop, p.Payload)
	if err != nil {
		reason := "crypto"
		if err == meshnet.ErrKeyMissing {
			reason = "nokey"
		}
		if e.metrics != nil {
			e.metrics.PacketsDroppedTotal.WithLabelValues(reason).Inc()
		}
		if e.logger != nil {
			e.logger.Warn("packet dropped: cannot open payload", "from", fromHop, "error", err, "component", "general")
		}
		return err
	}
	p.Payload = plaintext

	return e.forward(ctx, p, fromHop)
}

// ReceivedPacket is a snapshot of the most recent packet delivered to
// this node, per spec §4.5 ("record as last received packet, treat
// payload as delivered"). Backs GET /get_last_received_packet.
type ReceivedPacket struct {
	Src     meshnet.PeerId
	MsgType uint8
	Seq     uint32
	Payload []byte
	At      time.Time
}

// LastReceived returns the most recent packet delivered to this node,
// or ok=false if none has arrived yet.
func (e *Engine) LastReceived() (ReceivedPacket, bool) {
	p := e.lastReceived.Load()
	if p == nil {
		return ReceivedPacket{}, false
	}
	return *p, true
}

// deliverLocal handles a packet addressed to this node: every delivery
// updates the last-received record, data packets are otherwise just
// logged, and image chunks are fed to the reassembler and persisted
// once complete.
func (e *Engine) deliverLocal(p Packet) {
	e.lastReceived.Store(&ReceivedPacket{
		Src:     p.Src,
		MsgType: p.MsgType,
		Seq:     p.Seq,
		Payload: p.Payload,
		At:      time.Now(),
	})
	switch p.MsgType {
	case TypeImageChunk:
		index, total, data, err := DecodeChunk(p.Payload)
		if err != nil {
			if e.metrics != nil {
				e.metrics.PacketsDroppedTotal.WithLabelValues("parse").Inc()
			}
			if e.logger != nil {
				e.logger.Error("image chunk dropped: parse error", "src", p.Src, "error", err, "component", "general")
			}
			return
		}
		image, complete, err := e.reasm.addChunk(p.Src, index, total, data)
		if err != nil {
			if e.logger != nil {
				e.logger.Error("image reassembly failed", "src", p.Src, "error", err, "component", "general")
			}
			return
		}
		if complete && e.images != nil {
			if err := e.images.SaveImage(p.Src, image); err != nil && e.logger != nil {
				e.logger.Error("image persist failed", "src", p.Src, "error", err, "component", "general")
			}
		}
	default:
		if e.logger != nil {
			e.logger.Info("packet delivered", "src", p.Src, "msg_type", p.MsgType, "seq", p.Seq, "component", "general")
		}
	}
	if e.metrics != nil {
		e.metrics.PacketsDeliveredTotal.WithLabelValues(msgTypeLabel(p.MsgType)).Inc()
	}
}

func msgTypeLabel(t uint8) string {
	switch t {
	case TypeData:
		return "data"
	case TypeImageChunk:
		return "image_chunk"
	case TypeControl:
		return "control"
	default:
		return "unknown"
	}
}
