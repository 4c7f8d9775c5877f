package keyagent

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
)

// EncodePublicKey returns the PEM-encoded SubjectPublicKeyInfo of pub,
// base64-encoded for transport in a JSON request body, per spec §4.4:
// "PublicKey() returns the PEM-encoded SubjectPublicKeyInfo, base64
// over the wire."
func EncodePublicKey(pub *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return base64.StdEncoding.EncodeToString(block), nil
}

// DecodePublicKey reverses EncodePublicKey.
func DecodePublicKey(b64 string) (*ecdsa.PublicKey, error) {
	block, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("base64 decode public key: %w", err)
	}
	pemBlock, _ := pem.Decode(block)
	if pemBlock == nil {
		return nil, fmt.Errorf("no PEM block found in public key")
	}
	pub, err := x509.ParsePKIXPublicKey(pemBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not P-256 ECDSA")
	}
	return ecPub, nil
}
