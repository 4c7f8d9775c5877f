package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/orbitmesh/satnode/internal/meshnet"
	"github.com/orbitmesh/satnode/internal/routing"
)

// Client is the outbound half of the mesh HTTP API: it resolves a
// peer ID to its deterministic address via an Addresser and issues the
// request, implementing every narrow sender interface the engine,
// position service, routing table, key agent, and clock service need.
type Client struct {
	self       meshnet.PeerId
	addr       meshnet.Addresser
	httpClient *http.Client
}

// NewClient creates a transport Client. httpClient may be nil to use a
// default client with a 5s timeout, per spec §7's "bounded timeout on
// every outbound call."
func NewClient(self meshnet.PeerId, addr meshnet.Addresser, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{self: self, addr: addr, httpClient: httpClient}
}

func (c *Client) post(ctx context.Context, peer meshnet.PeerId, path string, body any) ([]byte, int, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, 0, err
	}
	url := c.addr.AddressFor(peer) + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, peer meshnet.PeerId, path string) ([]byte, int, error) {
	url := c.addr.AddressFor(peer) + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", meshnet.ErrTransportFailure, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: %v", meshnet.ErrTransportFailure, err)
	}
	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return data, resp.StatusCode, fmt.Errorf("%w: %s", meshnet.ErrTransportFailure, errResp.Error)
		}
		return data, resp.StatusCode, fmt.Errorf("%w: status %d", meshnet.ErrTransportFailure, resp.StatusCode)
	}
	return data, resp.StatusCode, nil
}

// SendPacket implements packet.Sender.
func (c *Client) SendPacket(ctx context.Context, hop meshnet.PeerId, wire []byte) error {
	_, _, err := c.post(ctx, hop, "/receive", PacketRequest{
		FromHop: uint16(c.self),
		WireB64: base64.StdEncoding.EncodeToString(wire),
	})
	return err
}

// SendExchangeKey implements keyagent.ExchangeSender.
func (c *Client) SendExchangeKey(ctx context.Context, peer meshnet.PeerId, selfID meshnet.PeerId, pubKeyPEM string) error {
	_, _, err := c.post(ctx, peer, "/exchange_key", ExchangeKeyRequest{
		ID:        uint16(selfID),
		PubKeyPEM: pubKeyPEM,
	})
	return err
}

// SendPosition implements position.Sender.
func (c *Client) SendPosition(ctx context.Context, peer meshnet.PeerId, self meshnet.PeerId, pos meshnet.Position) error {
	_, _, err := c.post(ctx, peer, "/update_position", PositionRequest{
		ID: uint16(self), X: pos.X, Y: pos.Y, Z: pos.Z,
	})
	return err
}

// SendHeartbeat matches neighbor.Table's sendHeartbeat signature.
func (c *Client) SendHeartbeat(ctx context.Context, peer meshnet.PeerId, ts time.Time) error {
	_, _, err := c.post(ctx, peer, "/heartbeat", HeartbeatRequest{ID: uint16(c.self), Timestamp: ts.UnixNano()})
	return err
}

// PropagateRoutes sends this node's routing table to peer. Wrapped by
// a closure matching routing.PropagateFunc in the composition root,
// since that type carries no error return or context.
func (c *Client) PropagateRoutes(ctx context.Context, to meshnet.PeerId, table routing.Advert) error {
	routes := make(map[uint16]RouteEntry, len(table))
	for dest, e := range table {
		routes[uint16(dest)] = RouteEntry{NextHop: uint16(e.NextHop), Cost: e.Cost}
	}
	_, _, err := c.post(ctx, to, "/receive_routing_table", RoutingTableRequest{
		Sender: uint16(c.self),
		Routes: routes,
	})
	return err
}

// FetchLocalTime implements clocksvc.TimeFetcher.
func (c *Client) FetchLocalTime(ctx context.Context, peer meshnet.PeerId) (time.Time, error) {
	data, _, err := c.get(ctx, peer, "/get_local_time")
	if err != nil {
		return time.Time{}, err
	}
	var env struct {
		Data LocalTimeResponse `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", meshnet.ErrParseError, err)
	}
	return time.Unix(0, env.Data.UnixNano), nil
}
