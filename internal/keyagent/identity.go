// Package keyagent implements a peer's long-term asymmetric identity,
// per-neighbor ECDH key agreement, and ChaCha20-Poly1305 authenticated
// encryption of forwarded payloads, per spec §4.4.
package keyagent

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// LoadOrCreateIdentity loads an existing P-256 identity keypair from a
// PEM file, or generates and persists a new one. Mirrors the
// load-or-create idiom of pkg/p2pnet's identity loader, adapted from
// libp2p's Ed25519 host identity to the spec-mandated P-256 curve
// used for per-neighbor key agreement.
func LoadOrCreateIdentity(path string) (*ecdsa.PrivateKey, error) {
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			priv, err := parseECPrivateKeyPEM(data)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal key from %s: %w", path, err)
			}
			return priv, nil
		}
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}

	if path != "" {
		data, err := marshalECPrivateKeyPEM(priv)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal private key: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create key directory for %s: %w", path, err)
		}
		if err := os.WriteFile(path, data, 0600); err != nil {
			return nil, fmt.Errorf("failed to save key to %s: %w", path, err)
		}
	}

	return priv, nil
}

func parseECPrivateKeyPEM(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	return x509.ParseECPrivateKey(block.Bytes)
}

func marshalECPrivateKeyPEM(priv *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}
