package keyagent

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"sync"

	"github.com/orbitmesh/satnode/internal/meshnet"
)

// ExchangeSender performs the outbound half of the key-exchange
// protocol of spec §4.4 step 1: sending {id, pub_pem_b64} to a peer's
// exchange endpoint. Implemented by internal/transport's client; kept
// as a narrow interface here so KeyAgent has no network dependency of
// its own and is trivially testable.
type ExchangeSender interface {
	SendExchangeKey(ctx context.Context, peer meshnet.PeerId, selfID meshnet.PeerId, pubKeyPEM string) error
}

// Agent is a peer's long-term identity plus its per-neighbor session
// key state. Safe for concurrent use.
type Agent struct {
	self meshnet.PeerId
	priv *ecdsa.PrivateKey
	pub  *ecdsa.PublicKey

	logger *slog.Logger
	sender ExchangeSender // nil until WireSender is called

	mu        sync.RWMutex
	peerPub   map[meshnet.PeerId]*ecdsa.PublicKey
	shared    map[meshnet.PeerId]SharedKey
	inflight  map[meshnet.PeerId]bool // exchanges currently being derived; guards atomicity
}

// New creates a KeyAgent for self using the given long-term identity.
func New(self meshnet.PeerId, priv *ecdsa.PrivateKey, logger *slog.Logger) *Agent {
	return &Agent{
		self:     self,
		priv:     priv,
		pub:      &priv.PublicKey,
		logger:   logger,
		peerPub:  make(map[meshnet.PeerId]*ecdsa.PublicKey),
		shared:   make(map[meshnet.PeerId]SharedKey),
		inflight: make(map[meshnet.PeerId]bool),
	}
}

// WireSender attaches the transport-level sender used to initiate
// exchanges. Must be called once before InitiateExchange.
func (a *Agent) WireSender(sender ExchangeSender) {
	a.sender = sender
}

// PublicKeyPEM returns this peer's own PEM/base64 public key, for
// embedding in exchange requests.
func (a *Agent) PublicKeyPEM() (string, error) {
	return EncodePublicKey(a.pub)
}

// HasSession reports whether a session key already exists with peer.
func (a *Agent) HasSession(peer meshnet.PeerId) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.shared[peer]
	return ok
}

// InitiateExchange sends this peer's public key to neighbor's
// exchange endpoint (spec §4.4 step 1). It does not itself record a
// shared key — that happens in HandleExchange when the neighbor's
// reply (or its own outbound exchange to us) arrives, since ECDH is
// symmetric and either side completing its half is sufficient.
func (a *Agent) InitiateExchange(ctx context.Context, peer meshnet.PeerId) error {
	if a.sender == nil {
		return fmt.Errorf("keyagent: no exchange sender wired")
	}
	pubPEM, err := a.PublicKeyPEM()
	if err != nil {
		return err
	}
	if err := a.sender.SendExchangeKey(ctx, peer, a.self, pubPEM); err != nil {
		return fmt.Errorf("%w: %v", meshnet.ErrTransportFailure, err)
	}
	return nil
}

// HandleExchange processes an inbound {id, pub_pem_b64} exchange
// message (spec §4.4 step 2): records the peer's public key and
// derives the shared session key. The inflight guard ensures a
// partial derivation is never observable by a concurrent reader
// (spec §5: "session-key writes during key exchange are atomic").
func (a *Agent) HandleExchange(peer meshnet.PeerId, pubKeyPEM string) error {
	peerPub, err := DecodePublicKey(pubKeyPEM)
	if err != nil {
		return fmt.Errorf("%w: %v", meshnet.ErrCryptoFailure, err)
	}

	a.mu.Lock()
	if a.inflight[peer] {
		a.mu.Unlock()
		return nil // another goroutine is already deriving this peer's key
	}
	a.inflight[peer] = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.inflight, peer)
		a.mu.Unlock()
	}()

	shared, err := deriveSharedKey(a.priv, peerPub)
	if err != nil {
		return fmt.Errorf("%w: %v", meshnet.ErrCryptoFailure, err)
	}

	a.mu.Lock()
	a.peerPub[peer] = peerPub
	a.shared[peer] = shared
	a.mu.Unlock()

	a.logger.Info("established symmetric key", "peer", peer, "component", "general")
	return nil
}

// Seal encrypts plaintext for hop, returning ErrKeyMissing if no
// session key exists yet.
func (a *Agent) Seal(hop meshnet.PeerId, plaintext []byte) ([]byte, error) {
	a.mu.RLock()
	key, ok := a.shared[hop]
	a.mu.RUnlock()
	if !ok {
		return nil, meshnet.ErrKeyMissing
	}
	return Seal(key, plaintext)
}

// Open decrypts a sealed payload received from fromHop, returning
// ErrKeyMissing if no session key exists, or a wrapped
// ErrCryptoFailure on authentication failure.
func (a *Agent) Open(fromHop meshnet.PeerId, sealed []byte) ([]byte, error) {
	a.mu.RLock()
	key, ok := a.shared[fromHop]
	a.mu.RUnlock()
	if !ok {
		return nil, meshnet.ErrKeyMissing
	}
	plaintext, err := Open(key, sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", meshnet.ErrCryptoFailure, err)
	}
	return plaintext, nil
}
