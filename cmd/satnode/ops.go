package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
)

// opClient is a minimal HTTP client for operator commands, which
// address a running peer directly by its base URL rather than by
// PeerId (that indirection belongs to the mesh's internal transport.Client).
type opClient struct {
	base string
	http *http.Client
}

func newOpClient(addr string) *opClient {
	return &opClient{base: addr, http: &http.Client{Timeout: 5 * time.Second}}
}

func (c *opClient) get(path string, out any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp, out)
}

func (c *opClient) post(path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp, out)
}

func decodeEnvelope(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(data, &errResp)
		return fmt.Errorf("peer returned %d: %s", resp.StatusCode, errResp.Error)
	}
	if out == nil {
		return nil
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	return json.Unmarshal(env.Data, out)
}

func runStatus(args []string) {
	if len(args) < 1 {
		color.Red("usage: satnode status <peer-addr>")
		os.Exit(1)
	}
	var info struct {
		ID            uint16  `json:"id"`
		Kind          string  `json:"kind"`
		State         string  `json:"state"`
		X             float64 `json:"x"`
		Y             float64 `json:"y"`
		Z             float64 `json:"z"`
		NeighborCount int     `json:"neighbor_count"`
		RouteCount    int     `json:"route_count"`
	}
	if err := newOpClient(args[0]).get("/get_info", &info); err != nil {
		color.Red("status failed: %v", err)
		os.Exit(1)
	}
	color.Green("peer %d (%s) — %s", info.ID, info.Kind, info.State)
	fmt.Printf("  position:  (%.3f, %.3f, %.3f)\n", info.X, info.Y, info.Z)
	fmt.Printf("  neighbors: %d\n", info.NeighborCount)
	fmt.Printf("  routes:    %d\n", info.RouteCount)
}

func runNeighbors(args []string) {
	if len(args) < 1 {
		color.Red("usage: satnode neighbors <peer-addr>")
		os.Exit(1)
	}
	var resp struct {
		Neighbors []struct {
			ID            uint16  `json:"id"`
			Distance      float64 `json:"distance"`
			LastHeartbeat string  `json:"last_heartbeat,omitempty"`
		} `json:"neighbors"`
	}
	if err := newOpClient(args[0]).get("/get_neighbors", &resp); err != nil {
		color.Red("neighbors failed: %v", err)
		os.Exit(1)
	}
	if len(resp.Neighbors) == 0 {
		fmt.Println("no neighbors")
		return
	}
	for _, n := range resp.Neighbors {
		fmt.Printf("  %d  distance=%.3f  last_heartbeat=%s\n", n.ID, n.Distance, n.LastHeartbeat)
	}
}

func runRoutes(args []string) {
	if len(args) < 1 {
		color.Red("usage: satnode routes <peer-addr>")
		os.Exit(1)
	}
	var resp struct {
		Routes map[string]struct {
			NextHop uint16  `json:"next_hop"`
			Cost    float64 `json:"cost"`
		} `json:"routes"`
	}
	if err := newOpClient(args[0]).get("/get_routing_table", &resp); err != nil {
		color.Red("routes failed: %v", err)
		os.Exit(1)
	}
	if len(resp.Routes) == 0 {
		fmt.Println("no routes")
		return
	}
	for dest, e := range resp.Routes {
		fmt.Printf("  %s -> next_hop=%d cost=%.3f\n", dest, e.NextHop, e.Cost)
	}
}

func runSend(args []string) {
	if len(args) < 3 {
		color.Red("usage: satnode send <peer-addr> <dst-id> <message>")
		os.Exit(1)
	}
	dst, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		color.Red("invalid dst-id: %v", err)
		os.Exit(1)
	}
	body := struct {
		Dst        uint16 `json:"dst"`
		PayloadB64 string `json:"payload_b64"`
	}{Dst: uint16(dst), PayloadB64: base64.StdEncoding.EncodeToString([]byte(args[2]))}

	if err := newOpClient(args[0]).post("/send", body, nil); err != nil {
		color.Red("send failed: %v", err)
		os.Exit(1)
	}
	color.Green("sent")
}

func runCaptureImage(args []string) {
	if len(args) < 1 {
		color.Red("usage: satnode capture-image <peer-addr>")
		os.Exit(1)
	}
	var resp struct {
		ImagePath string `json:"image_path"`
	}
	if err := newOpClient(args[0]).post("/capture_image", struct{}{}, &resp); err != nil {
		color.Red("capture failed: %v", err)
		os.Exit(1)
	}
	color.Green("captured image at %s", resp.ImagePath)
}

func runTransmitImage(args []string) {
	if len(args) < 3 {
		color.Red("usage: satnode transmit-image <peer-addr> <dst-id> <file>")
		os.Exit(1)
	}
	dst, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		color.Red("invalid dst-id: %v", err)
		os.Exit(1)
	}
	data, err := os.ReadFile(args[2])
	if err != nil {
		color.Red("read failed: %v", err)
		os.Exit(1)
	}
	body := struct {
		Dst      uint16 `json:"dst"`
		ImageB64 string `json:"image_b64"`
	}{Dst: uint16(dst), ImageB64: base64.StdEncoding.EncodeToString(data)}

	if err := newOpClient(args[0]).post("/transmit_image", body, nil); err != nil {
		color.Red("transmit failed: %v", err)
		os.Exit(1)
	}
	color.Green("transmitting %d bytes to %d", len(data), dst)
}

func runFail(args []string) {
	if len(args) < 1 {
		color.Red("usage: satnode fail <peer-addr>")
		os.Exit(1)
	}
	if err := newOpClient(args[0]).post("/fail", struct{}{}, nil); err != nil {
		color.Red("fail command failed: %v", err)
		os.Exit(1)
	}
	color.Yellow("node marked FAILED")
}

func runRecover(args []string) {
	if len(args) < 1 {
		color.Red("usage: satnode recover <peer-addr>")
		os.Exit(1)
	}
	if err := newOpClient(args[0]).post("/recover", struct{}{}, nil); err != nil {
		color.Red("recover command failed: %v", err)
		os.Exit(1)
	}
	color.Green("node recovered")
}

func runLocalTime(args []string) {
	if len(args) < 1 {
		color.Red("usage: satnode local-time <peer-addr>")
		os.Exit(1)
	}
	var resp struct {
		UnixNano int64 `json:"unix_nano"`
	}
	if err := newOpClient(args[0]).get("/get_local_time", &resp); err != nil {
		color.Red("local-time failed: %v", err)
		os.Exit(1)
	}
	fmt.Println(time.Unix(0, resp.UnixNano).Format(time.RFC3339Nano))
}
