package transport

import "github.com/orbitmesh/satnode/internal/neighbor"

// PacketRequest is the body of POST /receive: a fully-assembled wire
// packet forwarded by the immediately preceding hop.
type PacketRequest struct {
	FromHop uint16 `json:"from_hop"`
	WireB64 string `json:"wire_b64"`
}

// ExchangeKeyRequest is the body of POST /exchange_key, spec §4.4 step 1.
type ExchangeKeyRequest struct {
	ID         uint16 `json:"id"`
	PubKeyPEM  string `json:"pub_key_pem_b64"`
}

// PositionRequest is the body of POST /update_position, spec §4.1 step 2.
type PositionRequest struct {
	ID uint16  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
}

// HeartbeatRequest is the body of POST /heartbeat, spec §4.2.
type HeartbeatRequest struct {
	ID        uint16 `json:"id"`
	Timestamp int64  `json:"timestamp"` // unix nanoseconds
}

// RouteEntry is the wire shape of one routing-table row.
type RouteEntry struct {
	NextHop uint16  `json:"next_hop"`
	Cost    float64 `json:"cost"`
}

// RoutingTableRequest is the body of POST /receive_routing_table, spec §4.3.
type RoutingTableRequest struct {
	Sender uint16                `json:"sender"`
	Routes map[uint16]RouteEntry `json:"routes"`
}

// LocalTimeResponse is returned by GET /get_local_time, spec §4.6.
type LocalTimeResponse struct {
	UnixNano int64 `json:"unix_nano"`
}

// NeighborsResponse is returned by GET /get_neighbors.
type NeighborsResponse struct {
	Neighbors []neighbor.Info `json:"neighbors"`
}

// RoutesResponse is returned by GET /get_routing_table.
type RoutesResponse struct {
	Routes map[uint16]RouteEntry `json:"routes"`
}

// InfoResponse is returned by GET /get_info.
type InfoResponse struct {
	ID       uint16  `json:"id"`
	Kind     string  `json:"kind"`
	State    string  `json:"state"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Neighbors int    `json:"neighbor_count"`
	Routes   int     `json:"route_count"`
}

// SendRequest is the body of POST /send: originate a data packet from
// the CLI or an operator script.
type SendRequest struct {
	Dst       uint16 `json:"dst"`
	PayloadB64 string `json:"payload_b64"`
}

// TransmitImageRequest is the body of POST /transmit_image: originate
// a chunked image transfer to dst, spec §4.5/§6.
type TransmitImageRequest struct {
	Dst       uint16 `json:"dst"`
	ImageB64  string `json:"image_b64"`
}

// LastReceivedResponse is returned by GET /get_last_received_packet,
// spec §4.5's "record as last received packet" requirement.
type LastReceivedResponse struct {
	Src        uint16 `json:"src"`
	MsgType    uint8  `json:"msg_type"`
	Seq        uint32 `json:"seq"`
	PayloadB64 string `json:"payload_b64"`
	UnixNano   int64  `json:"unix_nano"`
}

// CaptureImageResponse is returned by POST /capture_image, spec §4.7/§6.
type CaptureImageResponse struct {
	ImagePath string `json:"image_path"`
}

// ErrorResponse is returned on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DataResponse wraps a successful response payload.
type DataResponse struct {
	Data any `json:"data"`
}
