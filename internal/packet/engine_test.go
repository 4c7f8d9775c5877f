package packet

import (
	"context"
	"sync"
	"testing"

	"github.com/orbitmesh/satnode/internal/meshnet"
)

type fakeRouter struct {
	routes map[meshnet.PeerId]meshnet.PeerId
}

func (f *fakeRouter) NextHop(dst meshnet.PeerId) (meshnet.PeerId, bool) {
	hop, ok := f.routes[dst]
	return hop, ok
}

type fakeNeighbors struct {
	ids []meshnet.PeerId
}

func (f *fakeNeighbors) Snapshot() []meshnet.PeerId { return f.ids }

type fakeCrypto struct {
	mu          sync.Mutex
	sessions    map[meshnet.PeerId]bool
	exchangeErr error
}

func newFakeCrypto(withSessions ...meshnet.PeerId) *fakeCrypto {
	c := &fakeCrypto{sessions: make(map[meshnet.PeerId]bool)}
	for _, id := range withSessions {
		c.sessions[id] = true
	}
	return c
}

func (f *fakeCrypto) HasSession(peer meshnet.PeerId) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[peer]
}

func (f *fakeCrypto) InitiateExchange(ctx context.Context, peer meshnet.PeerId) error {
	if f.exchangeErr != nil {
		return f.exchangeErr
	}
	f.mu.Lock()
	f.sessions[peer] = true
	f.mu.Unlock()
	return nil
}

func (f *fakeCrypto) Seal(hop meshnet.PeerId, plaintext []byte) ([]byte, error) {
	if !f.HasSession(hop) {
		return nil, meshnet.ErrKeyMissing
	}
	return append([]byte("sealed:"), plaintext...), nil
}

func (f *fakeCrypto) Open(fromHop meshnet.PeerId, sealed []byte) ([]byte, error) {
	if !f.HasSession(fromHop) {
		return nil, meshnet.ErrKeyMissing
	}
	const prefix = "sealed:"
	if len(sealed) < len(prefix) {
		return nil, meshnet.ErrCryptoFailure
	}
	return sealed[len(prefix):], nil
}

type fakeSender struct {
	mu     sync.Mutex
	sentTo map[meshnet.PeerId][][]byte
}

func newFakeSender() *fakeSender {
	return &fakeSender{sentTo: make(map[meshnet.PeerId][][]byte)}
}

func (f *fakeSender) SendPacket(ctx context.Context, hop meshnet.PeerId, wire []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentTo[hop] = append(f.sentTo[hop], wire)
	return nil
}

type fakeImages struct {
	mu    sync.Mutex
	saved map[meshnet.PeerId][]byte
}

func (f *fakeImages) SaveImage(src meshnet.PeerId, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[meshnet.PeerId][]byte)
	}
	f.saved[src] = data
	return nil
}

func newTestEngine(self meshnet.PeerId, router *fakeRouter, neighbors *fakeNeighbors, crypto *fakeCrypto, sender *fakeSender, images *fakeImages) *Engine {
	return New(Config{
		Self:      self,
		Router:    router,
		Neighbors: neighbors,
		Crypto:    crypto,
		Sender:    sender,
		Images:    images,
	})
}

func TestSendLocalDelivery(t *testing.T) {
	router := &fakeRouter{routes: map[meshnet.PeerId]meshnet.PeerId{}}
	e := newTestEngine(1, router, &fakeNeighbors{}, newFakeCrypto(), newFakeSender(), &fakeImages{})

	if err := e.Send(context.Background(), 1, TypeData, []byte("to myself")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got, ok := e.LastReceived()
	if !ok {
		t.Fatal("LastReceived() ok = false, want a recorded delivery")
	}
	if string(got.Payload) != "to myself" || got.Src != 1 || got.MsgType != TypeData {
		t.Errorf("LastReceived() = %+v, want payload %q from src 1", got, "to myself")
	}
}

func TestSendRoutedDecrementsTTL(t *testing.T) {
	router := &fakeRouter{routes: map[meshnet.PeerId]meshnet.PeerId{2: 2}}
	sender := newFakeSender()
	e := newTestEngine(1, router, &fakeNeighbors{}, newFakeCrypto(2), sender, &fakeImages{})

	if err := e.Send(context.Background(), 2, TypeData, []byte("hi")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	wires := sender.sentTo[2]
	if len(wires) != 1 {
		t.Fatalf("expected 1 packet sent to hop 2, got %d", len(wires))
	}
	p, err := UnmarshalWire(wires[0])
	if err != nil {
		t.Fatal(err)
	}
	if p.TTL != startingTTL-1 {
		t.Errorf("TTL = %d, want %d", p.TTL, startingTTL-1)
	}
}

func TestForwardDropsOnTTLExpired(t *testing.T) {
	router := &fakeRouter{routes: map[meshnet.PeerId]meshnet.PeerId{2: 2}}
	e := newTestEngine(1, router, &fakeNeighbors{}, newFakeCrypto(2), newFakeSender(), &fakeImages{})

	p := Packet{Version: 1, MsgType: TypeData, Src: 9, Dst: 2, TTL: 0, Payload: []byte("x")}
	err := e.forward(context.Background(), p, 9)
	if err != meshnet.ErrTTLExpired {
		t.Errorf("forward() error = %v, want ErrTTLExpired", err)
	}
}

func TestForwardFloodsWhenNoRoute(t *testing.T) {
	router := &fakeRouter{routes: map[meshnet.PeerId]meshnet.PeerId{}}
	neighbors := &fakeNeighbors{ids: []meshnet.PeerId{2, 3, 9}}
	sender := newFakeSender()
	e := newTestEngine(1, router, neighbors, newFakeCrypto(2, 3), sender, &fakeImages{})

	p := Packet{Version: 1, MsgType: TypeData, Src: 1, Dst: 5, TTL: 10, Payload: []byte("x")}
	// fromHop 9 should be excluded from the flood (don't reflect back).
	if err := e.forward(context.Background(), p, 9); err != nil {
		t.Fatalf("forward() error = %v", err)
	}
	if len(sender.sentTo[2]) != 1 || len(sender.sentTo[3]) != 1 {
		t.Errorf("expected exactly one flood packet each to 2 and 3, got %v", sender.sentTo)
	}
	if len(sender.sentTo[9]) != 0 {
		t.Error("packet must not be reflected back to its originating hop")
	}
}

func TestTransmitRetriesExchangeOnceThenSends(t *testing.T) {
	router := &fakeRouter{routes: map[meshnet.PeerId]meshnet.PeerId{2: 2}}
	crypto := newFakeCrypto() // no session with 2 until an exchange runs
	crypto.exchangeErr = nil
	sender := newFakeSender()
	e := newTestEngine(1, router, &fakeNeighbors{}, crypto, sender, &fakeImages{})

	// crypto.InitiateExchange grants a session as a side effect in this fake,
	// so Seal should succeed on the retry.
	if err := e.Send(context.Background(), 2, TypeData, []byte("hi")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(sender.sentTo[2]) != 1 {
		t.Fatalf("expected packet sent after successful retry, got %d", len(sender.sentTo[2]))
	}
}

func TestReceiveAndDeliverImageChunks(t *testing.T) {
	router := &fakeRouter{routes: map[meshnet.PeerId]meshnet.PeerId{}}
	images := &fakeImages{}
	crypto := newFakeCrypto(7)
	e := newTestEngine(1, router, &fakeNeighbors{}, crypto, newFakeSender(), images)

	original := []byte("a tiny picture of earth")
	compressed := deflate(original)
	chunks := SplitChunks(compressed)

	for i, c := range chunks {
		payload := EncodeChunk(i+1, len(chunks), c)
		sealed, err := crypto.Seal(7, payload)
		if err != nil {
			t.Fatal(err)
		}
		p := Packet{Version: 1, MsgType: TypeImageChunk, Src: 7, Dst: 1, Seq: uint32(i), TTL: 10, Payload: sealed}
		wire := MarshalWire(p)
		if err := e.Receive(context.Background(), 7, wire); err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
	}

	images.mu.Lock()
	got := images.saved[7]
	images.mu.Unlock()
	if string(got) != string(original) {
		t.Errorf("saved image = %q, want %q", got, original)
	}
}

func TestReceiveRecordsLastReceivedPacket(t *testing.T) {
	router := &fakeRouter{routes: map[meshnet.PeerId]meshnet.PeerId{}}
	crypto := newFakeCrypto(9)
	e := newTestEngine(2, router, &fakeNeighbors{}, crypto, newFakeSender(), &fakeImages{})

	sealed, err := crypto.Seal(9, []byte("hi"))
	if err != nil {
		t.Fatal(err)
	}
	p := Packet{Version: 1, MsgType: TypeData, Src: 9, Dst: 2, Seq: 3, TTL: 10, Payload: sealed}
	if err := e.Receive(context.Background(), 9, MarshalWire(p)); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	got, ok := e.LastReceived()
	if !ok {
		t.Fatal("LastReceived() ok = false, want a recorded delivery")
	}
	if string(got.Payload) != "hi" || got.Src != 9 || got.Seq != 3 {
		t.Errorf("LastReceived() = %+v, want payload \"hi\" from src 9 seq 3", got)
	}
}

func TestReceiveDropsOnKeyMissing(t *testing.T) {
	router := &fakeRouter{routes: map[meshnet.PeerId]meshnet.PeerId{}}
	e := newTestEngine(1, router, &fakeNeighbors{}, newFakeCrypto(), newFakeSender(), &fakeImages{})

	p := Packet{Version: 1, MsgType: TypeData, Src: 9, Dst: 1, TTL: 10, Payload: []byte("anything")}
	err := e.Receive(context.Background(), 9, MarshalWire(p))
	if err != meshnet.ErrKeyMissing {
		t.Errorf("Receive() error = %v, want ErrKeyMissing", err)
	}
}
