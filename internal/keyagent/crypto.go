package keyagent

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// SharedKey is a 32-byte symmetric key derived via ECDH + HKDF-SHA256.
type SharedKey [32]byte

// deriveSharedKey performs ECDH between priv and peerPub, then
// stretches the raw ECDH secret into a 32-byte symmetric key with
// HKDF-SHA256, no salt, no info, per spec §4.4.
func deriveSharedKey(priv *ecdsa.PrivateKey, peerPub *ecdsa.PublicKey) (SharedKey, error) {
	var zero SharedKey

	localECDH, err := priv.ECDH()
	if err != nil {
		return zero, fmt.Errorf("convert private key to ECDH: %w", err)
	}
	peerECDH, err := peerPub.ECDH()
	if err != nil {
		return zero, fmt.Errorf("convert peer public key to ECDH: %w", err)
	}
	secret, err := localECDH.ECDH(peerECDH)
	if err != nil {
		return zero, fmt.Errorf("ECDH exchange: %w", err)
	}

	kdf := hkdf.New(sha256.New, secret, nil, nil)
	var key SharedKey
	if _, err := io.ReadFull(kdf, key[:]); err != nil {
		return zero, fmt.Errorf("HKDF expand: %w", err)
	}
	return key, nil
}

// Seal authenticates and encrypts plaintext under key, producing
// nonce(12) || ciphertext || tag(16). This is the §9 open-question-5
// upgrade the spec recommends: ChaCha20-Poly1305 AEAD with a random
// 12-byte nonce in place of raw, unauthenticated ChaCha20.
func Seal(key SharedKey, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("init AEAD: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, plaintext, nil)
	return out, nil
}

// Open verifies and decrypts a Seal-produced ciphertext. Returns an
// error on any authentication failure or malformed input; Agent.Open
// wraps it in ErrCryptoFailure. Callers should treat any error as a
// dropped packet.
func Open(key SharedKey, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("init AEAD: %w", err)
	}
	if len(sealed) < chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, ciphertext := sealed[:chacha20poly1305.NonceSize], sealed[chacha20poly1305.NonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("authenticate/decrypt: %w", err)
	}
	return plaintext, nil
}
