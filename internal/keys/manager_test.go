package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadOrGenerate_FreshKeypair(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")

	m, err := LoadOrGenerate(dir)
	if err != nil {
		t.Fatalf("LoadOrGenerate: %v", err)
	}

	for _, file := range []string{"private_ed25519.der", "public_ed25519.der"} {
		if _, err := os.Stat(filepath.Join(dir, file)); err != nil {
			t.Errorf("expected %s to be persisted: %v", file, err)
		}
	}

	jwk := m.PublicJwk()
	if jwk.Kty != "OKP" || jwk.Crv != "Ed25519" || jwk.Alg != "EdDSA" || jwk.Use != "sig" {
		t.Errorf("unexpected JWK shape: %+v", jwk)
	}
	if jwk.Kid != KidPrimary {
		t.Errorf("Kid = %q, want %q", jwk.Kid, KidPrimary)
	}

	// Signing with the manager's key must verify with its public key.
	msg := []byte("runelink")
	sig := ed25519.Sign(m.SigningKey(), msg)
	if !ed25519.Verify(m.VerificationKey(), msg, sig) {
		t.Error("signature did not verify against the manager's public key")
	}
}

func TestLoadOrGenerate_Reload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")

	first, err := LoadOrGenerate(dir)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := LoadOrGenerate(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !first.VerificationKey().Equal(second.VerificationKey()) {
		t.Error("reload produced a different keypair")
	}
}

func TestLoadOrGenerate_MismatchedKeys(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	if _, err := LoadOrGenerate(dir); err != nil {
		t.Fatalf("generate: %v", err)
	}

	// Replace the public key file with one from a different keypair.
	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(otherPub)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "public_ed25519.der"), pubDER, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := LoadOrGenerate(dir); err == nil || !strings.Contains(err.Error(), "does not match") {
		t.Errorf("LoadOrGenerate err = %v, want mismatch error", err)
	}
}

func TestManagerStringHidesPrivateKey(t *testing.T) {
	m, err := LoadOrGenerate(filepath.Join(t.TempDir(), "keys"))
	if err != nil {
		t.Fatalf("LoadOrGenerate: %v", err)
	}
	s := m.String()
	if strings.Contains(s, string(m.SigningKey())) {
		t.Error("String() leaks private key material")
	}
}
