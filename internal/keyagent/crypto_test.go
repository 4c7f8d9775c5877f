package keyagent

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
)

func mustGenerateKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return priv
}

func TestDeriveSharedKeySymmetric(t *testing.T) {
	a := mustGenerateKey(t)
	b := mustGenerateKey(t)

	keyAB, err := deriveSharedKey(a, &b.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	keyBA, err := deriveSharedKey(b, &a.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	if keyAB != keyBA {
		t.Error("ECDH must derive the same shared key from either side")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	a := mustGenerateKey(t)
	b := mustGenerateKey(t)
	key, err := deriveSharedKey(a, &b.PublicKey)
	if err != nil {
		t.Fatal(err)
	}

	plaintext := []byte("position report: (1,2,3)")
	sealed, err := Seal(key, plaintext)
	if err != nil {
		t.Fatal(err)
	}
	opened, err := Open(key, sealed)
	if err != nil {
		t.Fatal(err)
	}
	if string(opened) != string(plaintext) {
		t.Errorf("Open() = %q, want %q", opened, plaintext)
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	a := mustGenerateKey(t)
	b := mustGenerateKey(t)
	key, err := deriveSharedKey(a, &b.PublicKey)
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := Seal(key, []byte("original"))
	if err != nil {
		t.Fatal(err)
	}
	sealed[len(sealed)-1] ^= 0xFF // flip a bit in the auth tag

	if _, err := Open(key, sealed); err == nil {
		t.Error("Open() must reject a tampered ciphertext")
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	a := mustGenerateKey(t)
	b := mustGenerateKey(t)
	c := mustGenerateKey(t)

	key1, _ := deriveSharedKey(a, &b.PublicKey)
	key2, _ := deriveSharedKey(a, &c.PublicKey)

	sealed, err := Seal(key1, []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Open(key2, sealed); err == nil {
		t.Error("Open() must fail when decrypted with an unrelated key")
	}
}

func TestEncodeDecodePublicKeyRoundTrip(t *testing.T) {
	priv := mustGenerateKey(t)
	encoded, err := EncodePublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodePublicKey(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.X.Cmp(priv.PublicKey.X) != 0 || decoded.Y.Cmp(priv.PublicKey.Y) != 0 {
		t.Error("decoded public key does not match original")
	}
}
