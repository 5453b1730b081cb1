package keys

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/runelink/runelink/internal/models"
)

func jwksHandler(fetches *atomic.Int64, keys func() []models.PublicJwk) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		fetches.Add(1)
		json.NewEncoder(w).Encode(models.JwksResponse{Keys: keys()})
	}
}

func testJwk(t *testing.T, kid string) (models.PublicJwk, ed25519.PublicKey) {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	return models.PublicJwk{
		Kty: "OKP", Crv: "Ed25519", Alg: "EdDSA", Kid: kid, Use: "sig",
		X: base64.RawURLEncoding.EncodeToString(pub),
	}, pub
}

func TestResolverCachesFetches(t *testing.T) {
	jwk, pub := testJwk(t, "primary")
	var fetches atomic.Int64
	srv := httptest.NewServer(jwksHandler(&fetches, func() []models.PublicJwk {
		return []models.PublicJwk{jwk}
	}))
	defer srv.Close()

	r := NewResolver(srv.Client())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		key, err := r.VerificationKey(ctx, srv.URL, "primary")
		if err != nil {
			t.Fatalf("VerificationKey: %v", err)
		}
		if !key.Equal(pub) {
			t.Fatal("resolved key mismatch")
		}
	}
	if got := fetches.Load(); got != 1 {
		t.Errorf("fetches = %d, want 1 (cache hit expected)", got)
	}
}

func TestResolverRefreshesOnKidMiss(t *testing.T) {
	first, _ := testJwk(t, "primary")
	rotated, rotatedPub := testJwk(t, "rotated")
	keys := []models.PublicJwk{first}
	var fetches atomic.Int64
	srv := httptest.NewServer(jwksHandler(&fetches, func() []models.PublicJwk { return keys }))
	defer srv.Close()

	r := NewResolver(srv.Client())
	ctx := context.Background()

	if _, err := r.VerificationKey(ctx, srv.URL, "primary"); err != nil {
		t.Fatalf("initial fetch: %v", err)
	}

	// Peer rotates its key; a kid miss must force exactly one refresh.
	keys = []models.PublicJwk{rotated}
	key, err := r.VerificationKey(ctx, srv.URL, "rotated")
	if err != nil {
		t.Fatalf("VerificationKey after rotation: %v", err)
	}
	if !key.Equal(rotatedPub) {
		t.Error("resolved rotated key mismatch")
	}
	if got := fetches.Load(); got != 2 {
		t.Errorf("fetches = %d, want 2", got)
	}

	// A kid that never appears fails after the forced refresh.
	if _, err := r.VerificationKey(ctx, srv.URL, "absent"); err == nil {
		t.Error("expected error for unknown kid")
	}
}

func TestResolverExpiresCache(t *testing.T) {
	jwk, _ := testJwk(t, "primary")
	var fetches atomic.Int64
	srv := httptest.NewServer(jwksHandler(&fetches, func() []models.PublicJwk {
		return []models.PublicJwk{jwk}
	}))
	defer srv.Close()

	r := NewResolverWithTTL(srv.Client(), 10*time.Millisecond)
	ctx := context.Background()

	if _, err := r.VerificationKey(ctx, srv.URL, "primary"); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := r.VerificationKey(ctx, srv.URL, "primary"); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if got := fetches.Load(); got != 2 {
		t.Errorf("fetches = %d, want 2 after TTL expiry", got)
	}
}

func TestResolverRejectsNonEd25519(t *testing.T) {
	var fetches atomic.Int64
	srv := httptest.NewServer(jwksHandler(&fetches, func() []models.PublicJwk {
		return []models.PublicJwk{{Kty: "RSA", Crv: "", Alg: "RS256", Kid: "primary", Use: "sig"}}
	}))
	defer srv.Close()

	r := NewResolver(srv.Client())
	if _, err := r.VerificationKey(context.Background(), srv.URL, "primary"); err == nil {
		t.Error("expected error for non-Ed25519 key")
	}
}
