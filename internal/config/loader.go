package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// checkConfigFilePermissions rejects a config file with overly
// permissive permissions. Config files carry key-file paths and
// deployment topology. Returns an error if the file grants any
// permission to group or others.
func checkConfigFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // file access errors are handled by the caller
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("config file %s has overly permissive mode %04o; expected 0600 — fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// Load reads and parses a peer config file. Zero-valued durations and
// deployment bounds are not auto-defaulted here: fields the file omits
// stay zero, and nothing from Defaults() is merged in.
func Load(path string) (*PeerConfig, error) {
	if err := checkConfigFilePermissions(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg PeerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.Version > CurrentConfigVersion {
		return nil, fmt.Errorf("%w: version %d is newer than supported version %d; please upgrade satnode", ErrConfigVersionTooNew, cfg.Version, CurrentConfigVersion)
	}

	return &cfg, nil
}

// Validate checks that required fields are present and well-formed.
func Validate(cfg *PeerConfig) error {
	if cfg.Network.BasePort <= 0 || cfg.Network.BasePort > 65535 {
		return fmt.Errorf("network.base_port must be a valid TCP port")
	}
	if cfg.Network.MaxPeerID < cfg.Network.MinPeerID {
		return fmt.Errorf("network.max_peer_id must be >= network.min_peer_id")
	}
	if cfg.Discovery.Range <= 0 {
		return fmt.Errorf("discovery.range must be positive")
	}
	if cfg.Heartbeat.Timeout <= cfg.Heartbeat.Interval {
		return fmt.Errorf("heartbeat.timeout must be greater than heartbeat.interval")
	}
	return nil
}
