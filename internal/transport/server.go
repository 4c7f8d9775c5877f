// Package transport is the HTTP surface of a satnode peer: an
// operator/inter-peer API served at the deterministic address of spec
// §6 (host:BasePort+id), plus the matching client used by every other
// component to reach peers by ID. Modeled on the teacher's
// internal/daemon package, adapted from a Unix-socket admin API to a
// plain TCP mesh API — there is no operator-local trust boundary here,
// so bearer-token auth and cookie files are dropped; the wire-level
// confidentiality is provided by the packet engine's own AEAD layer,
// not by transport auth.
package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/orbitmesh/satnode/internal/meshmetrics"
	"github.com/orbitmesh/satnode/internal/meshnet"
	"github.com/orbitmesh/satnode/internal/neighbor"
	"github.com/orbitmesh/satnode/internal/packet"
	"github.com/orbitmesh/satnode/internal/routing"
)

// maxRequestBodySize limits JSON request bodies, as the teacher's
// daemon handlers do for the same reason: an unbounded body is a
// trivial memory-exhaustion vector.
const maxRequestBodySize = 1 << 20 // 1 MB

// PacketReceiver accepts an inbound wire packet from a named hop.
// Backed by packet.Engine.
type PacketReceiver interface {
	Receive(ctx context.Context, fromHop meshnet.PeerId, wire []byte) error
	Send(ctx context.Context, dst meshnet.PeerId, msgType uint8, plaintext []byte) error
	SendImage(ctx context.Context, dst meshnet.PeerId, data []byte) error
	LastReceived() (packet.ReceivedPacket, bool)
}

// ImageCapturer synthesizes a placeholder image and persists it,
// returning its path. Backed by internal/imagestore (satnode has no
// real camera, spec §1 Non-goals).
type ImageCapturer interface {
	CaptureImage() (string, error)
}

// KeyHandler accepts an inbound key-exchange message.
// Backed by keyagent.Agent.
type KeyHandler interface {
	HandleExchange(peer meshnet.PeerId, pubKeyPEM string) error
}

// PositionHandler accepts an inbound position report.
// Backed by position.Service.
type PositionHandler interface {
	HandleReport(nid meshnet.PeerId, pos meshnet.Position)
	Position() meshnet.Position
}

// HeartbeatHandler accepts an inbound liveness beacon and reports the
// current neighbor/route set. Backed by neighbor.Table.
type HeartbeatHandler interface {
	Heartbeat(nid meshnet.PeerId, ts time.Time)
	Infos() []neighbor.Info
	Count() int
}

// RoutingHandler accepts an inbound routing advertisement and reports
// the current table. Backed by routing.Table.
type RoutingHandler interface {
	AdvertiseFromNeighbor(sender meshnet.PeerId, table routing.Advert)
	Snapshot() routing.Advert
	Count() int
}

// ClockHandler reports this node's Berkeley-adjusted local time.
// Backed by clocksvc.Service.
type ClockHandler interface {
	LocalTime() time.Time
}

// Server is the satnode peer's HTTP API, exposing every endpoint a
// neighbor or operator needs to drive the mesh protocols of spec §4.
type Server struct {
	self meshnet.PeerId
	kind meshnet.PeerKind

	packets   PacketReceiver
	keys      KeyHandler
	positions PositionHandler
	heartbeat HeartbeatHandler
	routes    RoutingHandler
	clock     ClockHandler
	images    ImageCapturer

	logger  *slog.Logger
	metrics *meshmetrics.Metrics

	state      atomic.Int32 // meshnet.PeerState
	httpServer *http.Server
}

// Deps bundles the component interfaces a Server is wired against.
type Deps struct {
	Self      meshnet.PeerId
	Kind      meshnet.PeerKind
	Packets   PacketReceiver
	Keys      KeyHandler
	Positions PositionHandler
	Heartbeat HeartbeatHandler
	Routes    RoutingHandler
	Clock     ClockHandler
	Images    ImageCapturer
	Logger    *slog.Logger
	Metrics   *meshmetrics.Metrics
}

// NewServer creates a transport Server. The node starts ACTIVE.
func NewServer(d Deps) *Server {
	return &Server{
		self:      d.Self,
		kind:      d.Kind,
		packets:   d.Packets,
		keys:      d.Keys,
		positions: d.Positions,
		heartbeat: d.Heartbeat,
		routes:    d.Routes,
		clock:     d.Clock,
		images:    d.Images,
		logger:    d.Logger,
		metrics:   d.Metrics,
	}
}

// State returns the node's current lifecycle state.
func (s *Server) State() meshnet.PeerState {
	return meshnet.PeerState(s.state.Load())
}

// Fail puts the node into the FAILED state, per spec §4.8: every
// inbound call except get_info, fail and recover returns a structured
// offline response. The background loops (position broadcast,
// heartbeats, neighbor monitor, clock sync) do not check this state
// and keep sending while the node is FAILED.
func (s *Server) Fail() {
	s.state.Store(int32(meshnet.StateFailed))
	if s.logger != nil {
		s.logger.Warn("node failed", "component", "general")
	}
}

// Recover returns the node to the ACTIVE state.
func (s *Server) Recover() {
	s.state.Store(int32(meshnet.StateActive))
	if s.logger != nil {
		s.logger.Info("node recovered", "component", "general")
	}
}

// ListenAndServe starts the HTTP server on addr (host:BasePort+id) and
// blocks until it stops.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      instrument(mux, s.metrics),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	if s.logger != nil {
		s.logger.Info("transport listening", "addr", addr, "component", "general")
	}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /receive", s.handleReceive)
	mux.HandleFunc("POST /exchange_key", s.handleExchangeKey)
	mux.HandleFunc("POST /update_position", s.handleUpdatePosition)
	mux.HandleFunc("POST /heartbeat", s.handleHeartbeat)
	mux.HandleFunc("POST /receive_routing_table", s.handleReceiveRoutingTable)
	mux.HandleFunc("GET /get_local_time", s.handleGetLocalTime)
	mux.HandleFunc("GET /get_neighbors", s.handleGetNeighbors)
	mux.HandleFunc("GET /get_routing_table", s.handleGetRoutingTable)
	mux.HandleFunc("GET /get_info", s.handleGetInfo)
	mux.HandleFunc("GET /get_last_received_packet", s.handleGetLastReceivedPacket)
	mux.HandleFunc("POST /fail", s.handleFail)
	mux.HandleFunc("POST /recover", s.handleRecover)
	mux.HandleFunc("POST /send", s.handleSend)
	mux.HandleFunc("POST /transmit_image", s.handleTransmitImage)
	mux.HandleFunc("POST /capture_image", s.handleCaptureImage)
}

// offline short-circuits every handler when the node is FAILED, per
// spec §4.8. Returns true if the request was handled (i.e. the caller
// should return without doing anything else).
func (s *Server) offline(w http.ResponseWriter) bool {
	if s.State() != meshnet.StateFailed {
		return false
	}
	respondError(w, http.StatusServiceUnavailable, meshnet.ErrNodeOffline.Error())
	return true
}

func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	if s.offline(w) {
		return
	}
	var req PacketRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	wire, err := base64.StdEncoding.DecodeString(req.WireB64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid wire_b64")
		return
	}
	if err := s.packets.Receive(r.Context(), meshnet.PeerId(req.FromHop), wire); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleExchangeKey(w http.ResponseWriter, r *http.Request) {
	if s.offline(w) {
		return
	}
	var req ExchangeKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.keys.HandleExchange(meshnet.PeerId(req.ID), req.PubKeyPEM); err != nil {
		if s.metrics != nil {
			s.metrics.KeyExchangesTotal.WithLabelValues("error").Inc()
		}
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.KeyExchangesTotal.WithLabelValues("ok").Inc()
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	if s.offline(w) {
		return
	}
	var req PositionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.positions.HandleReport(meshnet.PeerId(req.ID), meshnet.Position{X: req.X, Y: req.Y, Z: req.Z})
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if s.offline(w) {
		return
	}
	var req HeartbeatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.heartbeat.Heartbeat(meshnet.PeerId(req.ID), time.Unix(0, req.Timestamp))
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReceiveRoutingTable(w http.ResponseWriter, r *http.Request) {
	if s.offline(w) {
		return
	}
	var req RoutingTableRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	advert := make(routing.Advert, len(req.Routes))
	for dest, e := range req.Routes {
		advert[meshnet.PeerId(dest)] = routing.Entry{NextHop: meshnet.PeerId(e.NextHop), Cost: e.Cost}
	}
	s.routes.AdvertiseFromNeighbor(meshnet.PeerId(req.Sender), advert)
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetLocalTime(w http.ResponseWriter, r *http.Request) {
	if s.offline(w) {
		return
	}
	respondJSON(w, http.StatusOK, LocalTimeResponse{UnixNano: s.clock.LocalTime().UnixNano()})
}

func (s *Server) handleGetNeighbors(w http.ResponseWriter, r *http.Request) {
	if s.offline(w) {
		return
	}
	respondJSON(w, http.StatusOK, NeighborsResponse{Neighbors: s.heartbeat.Infos()})
}

func (s *Server) handleGetRoutingTable(w http.ResponseWriter, r *http.Request) {
	if s.offline(w) {
		return
	}
	snap := s.routes.Snapshot()
	out := make(map[uint16]RouteEntry, len(snap))
	for dest, e := range snap {
		out[uint16(dest)] = RouteEntry{NextHop: uint16(e.NextHop), Cost: e.Cost}
	}
	respondJSON(w, http.StatusOK, RoutesResponse{Routes: out})
}

func (s *Server) handleGetInfo(w http.ResponseWriter, r *http.Request) {
	pos := s.positions.Position()
	respondJSON(w, http.StatusOK, InfoResponse{
		ID:        uint16(s.self),
		Kind:      s.kind.String(),
		State:     s.State().String(),
		X:         pos.X,
		Y:         pos.Y,
		Z:         pos.Z,
		Neighbors: s.heartbeat.Count(),
		Routes:    s.routes.Count(),
	})
}

func (s *Server) handleGetLastReceivedPacket(w http.ResponseWriter, r *http.Request) {
	if s.offline(w) {
		return
	}
	last, ok := s.packets.LastReceived()
	if !ok {
		respondError(w, http.StatusNotFound, "no packet received yet")
		return
	}
	respondJSON(w, http.StatusOK, LastReceivedResponse{
		Src:        uint16(last.Src),
		MsgType:    last.MsgType,
		Seq:        last.Seq,
		PayloadB64: base64.StdEncoding.EncodeToString(last.Payload),
		UnixNano:   last.At.UnixNano(),
	})
}

func (s *Server) handleCaptureImage(w http.ResponseWriter, r *http.Request) {
	if s.offline(w) {
		return
	}
	path, err := s.images.CaptureImage()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, CaptureImageResponse{ImagePath: path})
}

func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	s.Fail()
	respondJSON(w, http.StatusOK, map[string]string{"status": "FAILED"})
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	s.Recover()
	respondJSON(w, http.StatusOK, map[string]string{"status": "ACTIVE"})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if s.offline(w) {
		return
	}
	var req SendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	payload, err := base64.StdEncoding.DecodeString(req.PayloadB64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload_b64")
		return
	}
	if err := s.packets.Send(r.Context(), meshnet.PeerId(req.Dst), packet.TypeData, payload); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleTransmitImage(w http.ResponseWriter, r *http.Request) {
	if s.offline(w) {
		return
	}
	var req TransmitImageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.ImageB64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid image_b64")
		return
	}
	if err := s.packets.SendImage(r.Context(), meshnet.PeerId(req.Dst), data); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "transmitting"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(DataResponse{Data: data})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

// instrument wraps next with request-count and duration metrics,
// labeled by sanitized path and status, matching the teacher's
// InstrumentHandler in spirit (zero overhead when metrics is nil).
func instrument(next http.Handler, metrics *meshmetrics.Metrics) http.Handler {
	if metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rec.status)
		metrics.APIRequestsTotal.WithLabelValues(r.URL.Path, status).Inc()
		metrics.APIRequestDurationSeconds.WithLabelValues(r.URL.Path).Observe(duration)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}
