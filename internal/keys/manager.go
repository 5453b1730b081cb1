// Package keys manages a server instance's long-lived Ed25519 signing
// keypair and resolves peer hosts' published JWKS documents. Private key
// material never leaves this package through logs or serialization.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/runelink/runelink/internal/models"
)

// KidPrimary is the key id published for the instance's signing key.
const KidPrimary = "primary"

const (
	privateKeyFile = "private_ed25519.der"
	publicKeyFile  = "public_ed25519.der"
)

// Manager holds the instance signing keypair and its published JWK.
type Manager struct {
	signingKey ed25519.PrivateKey
	verifyKey  ed25519.PublicKey
	publicSPKI []byte
	publicJwk  models.PublicJwk
	dir        string
}

// LoadOrGenerate loads the keypair from dir if both DER files exist, or
// generates a fresh Ed25519 keypair and persists it (creating dir). A loaded
// public key that disagrees with the private key is an error.
func LoadOrGenerate(dir string) (*Manager, error) {
	privPath := filepath.Join(dir, privateKeyFile)
	pubPath := filepath.Join(dir, publicKeyFile)

	_, privErr := os.Stat(privPath)
	_, pubErr := os.Stat(pubPath)
	if privErr == nil && pubErr == nil {
		return loadFromDisk(dir, privPath, pubPath)
	}

	// Generate new keypair: PKCS#8 DER for the private key, SPKI DER for
	// the public key.
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating Ed25519 keypair: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("encoding private key (pkcs8): %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("encoding public key (spki): %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	if err := os.WriteFile(privPath, privDER, 0o600); err != nil {
		return nil, fmt.Errorf("writing private key: %w", err)
	}
	if err := os.WriteFile(pubPath, pubDER, 0o644); err != nil {
		return nil, fmt.Errorf("writing public key: %w", err)
	}

	return newManager(dir, priv, pub, pubDER), nil
}

func loadFromDisk(dir, privPath, pubPath string) (*Manager, error) {
	privDER, err := os.ReadFile(privPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	pubDER, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}

	privAny, err := x509.ParsePKCS8PrivateKey(privDER)
	if err != nil {
		return nil, fmt.Errorf("invalid private key (expected PKCS#8 DER): %w", err)
	}
	priv, ok := privAny.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not Ed25519")
	}

	pubAny, err := x509.ParsePKIXPublicKey(pubDER)
	if err != nil {
		return nil, fmt.Errorf("invalid public key (expected SPKI DER): %w", err)
	}
	pub, ok := pubAny.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not Ed25519")
	}

	derived := priv.Public().(ed25519.PublicKey)
	if !derived.Equal(pub) {
		return nil, fmt.Errorf("public key does not match private key")
	}

	return newManager(dir, priv, pub, pubDER), nil
}

func newManager(dir string, priv ed25519.PrivateKey, pub ed25519.PublicKey, pubSPKI []byte) *Manager {
	return &Manager{
		signingKey: priv,
		verifyKey:  pub,
		publicSPKI: pubSPKI,
		publicJwk: models.PublicJwk{
			Kty: "OKP",
			Crv: "Ed25519",
			Alg: "EdDSA",
			Kid: KidPrimary,
			Use: "sig",
			X:   base64.RawURLEncoding.EncodeToString(pub),
		},
		dir: dir,
	}
}

// SigningKey returns the Ed25519 private key for JWT signing.
func (m *Manager) SigningKey() ed25519.PrivateKey {
	return m.signingKey
}

// VerificationKey returns the raw 32-byte Ed25519 public key.
func (m *Manager) VerificationKey() ed25519.PublicKey {
	return m.verifyKey
}

// PublicKeySPKI returns the public key in SPKI DER form.
func (m *Manager) PublicKeySPKI() []byte {
	return m.publicSPKI
}

// PublicJwk returns the published JWK for the signing key.
func (m *Manager) PublicJwk() models.PublicJwk {
	return m.publicJwk
}

// Jwks returns the full published key set.
func (m *Manager) Jwks() models.JwksResponse {
	return models.JwksResponse{Keys: []models.PublicJwk{m.publicJwk}}
}

func (m *Manager) String() string {
	return fmt.Sprintf("keys.Manager{kid: %s, dir: %s}", m.publicJwk.Kid, m.dir)
}
