// Package config holds the YAML-backed configuration for a satellite
// mesh peer: node identity, discovery/routing/heartbeat timings, the
// mobility model, crypto key storage, and optional telemetry.
package config

import "time"

// CurrentConfigVersion is the latest configuration schema version.
// Bump this when adding fields that require migration.
const CurrentConfigVersion = 1

// PeerConfig is the full configuration for one satnode process.
type PeerConfig struct {
	Version   int             `yaml:"version,omitempty"`
	Node      NodeConfig      `yaml:"node"`
	Network   NetworkConfig   `yaml:"network"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Crypto    CryptoConfig    `yaml:"crypto"`
	Clock     ClockConfig     `yaml:"clock"`
	Images    ImageConfig     `yaml:"images,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// NodeConfig identifies this peer and its initial position.
type NodeConfig struct {
	ID       uint16  `yaml:"id"`
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Z        float64 `yaml:"z"`
	IsGround bool    `yaml:"is_ground,omitempty"`
}

// NetworkConfig controls how this peer is reached and how it reaches
// the rest of the deployment.
type NetworkConfig struct {
	ListenHost string `yaml:"listen_host"`
	BasePort   int    `yaml:"base_port"`
	// MinPeerID/MaxPeerID bound the deployment's address space: the
	// PositionService broadcasts to every ID in [MinPeerID, MaxPeerID]
	// other than itself, per spec §4.1 ("every possible peer address").
	MinPeerID uint16 `yaml:"min_peer_id"`
	MaxPeerID uint16 `yaml:"max_peer_id"`
}

// DiscoveryConfig controls proximity-based neighbor discovery.
type DiscoveryConfig struct {
	Range                  float64        `yaml:"range"`
	BroadcastInterval      time.Duration  `yaml:"broadcast_interval"`
	PositionUpdateInterval time.Duration  `yaml:"position_update_interval"`
	Mobility               MobilityConfig `yaml:"mobility,omitempty"`
}

// MobilityConfig parameterizes the default circular mobility model of
// spec §4.1: x = cx + r*cos(w*t), y = cy + r*sin(w*t), z unchanged.
type MobilityConfig struct {
	CenterX float64 `yaml:"center_x"`
	CenterY float64 `yaml:"center_y"`
	Radius  float64 `yaml:"radius"`
	Omega   float64 `yaml:"omega"`
}

// HeartbeatConfig controls liveness tracking.
type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// CryptoConfig controls long-term identity key storage.
type CryptoConfig struct {
	KeyFile string `yaml:"key_file"`
}

// ClockConfig controls the Berkeley-averaging clock service.
type ClockConfig struct {
	SyncInterval time.Duration `yaml:"sync_interval"`
}

// ImageConfig controls received-image persistence and reassembly.
type ImageConfig struct {
	Directory string        `yaml:"directory,omitempty"`
	BufferTTL time.Duration `yaml:"buffer_ttl,omitempty"`
}

// TelemetryConfig holds observability settings. Disabled by default.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// MetricsConfig controls Prometheus metrics exposure.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"` // e.g. "127.0.0.1:9091"; Defaults() leaves it empty
}

// Defaults returns a PeerConfig with every spec §4 default interval
// applied, for a node that has not supplied a YAML file.
func Defaults(id uint16, x, y, z float64, isGround bool) PeerConfig {
	return PeerConfig{
		Version: CurrentConfigVersion,
		Node:    NodeConfig{ID: id, X: x, Y: y, Z: z, IsGround: isGround},
		Network: NetworkConfig{
			ListenHost: "127.0.0.1",
			BasePort:   9000,
			MinPeerID:  1,
			MaxPeerID:  1099,
		},
		Discovery: DiscoveryConfig{
			Range:                  10.0,
			BroadcastInterval:      3 * time.Second,
			PositionUpdateInterval: 10 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			Interval: 5 * time.Second,
			Timeout:  7 * time.Second,
		},
		Clock: ClockConfig{
			SyncInterval: 5 * time.Second,
		},
		Images: ImageConfig{
			Directory: "received_images",
			BufferTTL: 5 * time.Minute,
		},
	}
}
