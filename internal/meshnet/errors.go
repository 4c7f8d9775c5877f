package meshnet

import "errors"

// Error kinds and disposition are specified in spec §7. None of these
// aborts the peer: every loop and handler logs the error (with
// node_id and a component tag) and continues.
var (
	// ErrTransportFailure is a send timeout or connection refusal.
	// Logged, iteration continues, no retry.
	ErrTransportFailure = errors.New("transport failure")

	// ErrParseError is a malformed header or chunk metadata. The
	// packet is dropped and logged at error level.
	ErrParseError = errors.New("parse error")

	// ErrKeyMissing means no session key exists with the peer needed
	// for this operation. On send: trigger exchange, retry once; if
	// still missing, drop. On receive: drop, log.
	ErrKeyMissing = errors.New("key missing")

	// ErrCryptoFailure is a decryption/authentication failure. The
	// packet is dropped and logged at error level.
	ErrCryptoFailure = errors.New("crypto failure")

	// ErrNodeOffline means the peer's state is FAILED. Inbound calls
	// return a structured "offline" response carrying this error's
	// text; the background loops do not consult the state.
	ErrNodeOffline = errors.New("node offline")

	// ErrNotNeighbor is a routing advertisement from a peer that is
	// not a current neighbor. Warning, ignored.
	ErrNotNeighbor = errors.New("sender is not a neighbor")

	// ErrTTLExpired is a packet whose TTL reached zero before
	// delivery. Dropped, logged.
	ErrTTLExpired = errors.New("ttl expired")

	// ErrNoRoute reports that no route to a destination is known.
	// RoutingTable.NextHop does not return it: it reports a missing
	// route with ok=false, and the packet engine then floods.
	ErrNoRoute = errors.New("no route to destination")
)
