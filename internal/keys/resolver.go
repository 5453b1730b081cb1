package keys

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/runelink/runelink/internal/models"
)

// DefaultJwksTTL is how long a fetched JWKS is served from cache.
const DefaultJwksTTL = 10 * time.Minute

// Resolver fetches and caches peer hosts' published JWKS documents, keyed by
// issuer URL. Concurrent lookups for the same issuer share one fetch.
type Resolver struct {
	client *http.Client
	cache  *TTLCache[models.JwksResponse]
	group  singleflight.Group
}

// NewResolver creates a Resolver over the given HTTP client.
func NewResolver(client *http.Client) *Resolver {
	return NewResolverWithTTL(client, DefaultJwksTTL)
}

// NewResolverWithTTL creates a Resolver with an explicit cache TTL.
func NewResolverWithTTL(client *http.Client, ttl time.Duration) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{
		client: client,
		cache:  NewTTLCache[models.JwksResponse](ttl, 500),
	}
}

// VerificationKey returns the Ed25519 public key published by the issuer
// under the given kid. On a kid miss inside a cached JWKS the document is
// force-refreshed once before giving up.
func (r *Resolver) VerificationKey(ctx context.Context, issuer, kid string) (ed25519.PublicKey, error) {
	if jwks, ok := r.cache.Get(issuer); ok {
		if key, err := keyFromJwks(jwks, kid); err == nil {
			return key, nil
		}
		// kid miss in a cached document; the peer may have rotated.
		r.cache.Invalidate(issuer)
	}

	jwks, err := r.fetch(ctx, issuer)
	if err != nil {
		return nil, err
	}
	return keyFromJwks(jwks, kid)
}

// fetch GETs {issuer}/.well-known/jwks.json, deduplicating concurrent
// fetches for the same issuer.
func (r *Resolver) fetch(ctx context.Context, issuer string) (models.JwksResponse, error) {
	result, err, _ := r.group.Do(issuer, func() (any, error) {
		if jwks, ok := r.cache.Get(issuer); ok {
			return jwks, nil
		}

		url := issuer + "/.well-known/jwks.json"
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("building JWKS request for %s: %w", issuer, err)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching JWKS from %s: %w", issuer, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, fmt.Errorf("fetching JWKS from %s: status %d: %s", issuer, resp.StatusCode, body)
		}

		var jwks models.JwksResponse
		if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
			return nil, fmt.Errorf("decoding JWKS from %s: %w", issuer, err)
		}

		r.cache.Set(issuer, jwks)
		return jwks, nil
	})
	if err != nil {
		return models.JwksResponse{}, err
	}
	return result.(models.JwksResponse), nil
}

// keyFromJwks extracts the Ed25519 key with the given kid.
func keyFromJwks(jwks models.JwksResponse, kid string) (ed25519.PublicKey, error) {
	for _, jwk := range jwks.Keys {
		if jwk.Kid != kid {
			continue
		}
		if jwk.Kty != "OKP" || jwk.Crv != "Ed25519" {
			return nil, fmt.Errorf("key %q is not an Ed25519 OKP key", kid)
		}
		raw, err := base64.RawURLEncoding.DecodeString(jwk.X)
		if err != nil {
			return nil, fmt.Errorf("decoding key %q: %w", kid, err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("key %q has %d bytes, want %d", kid, len(raw), ed25519.PublicKeySize)
		}
		return ed25519.PublicKey(raw), nil
	}
	return nil, fmt.Errorf("no key %q in JWKS", kid)
}
