package token

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/runelink/runelink/internal/keys"
	"github.com/runelink/runelink/internal/models"
)

func newTestService(t *testing.T, issuer string) *Service {
	t.Helper()
	km, err := keys.LoadOrGenerate(filepath.Join(t.TempDir(), "keys"))
	if err != nil {
		t.Fatalf("LoadOrGenerate: %v", err)
	}
	return NewService(km, keys.NewResolver(http.DefaultClient), issuer)
}

func TestClientAccessRoundTrip(t *testing.T) {
	svc := newTestService(t, "http://h1:7000")
	ref := models.NewUserRef("alice", "h1")

	signed, claims, err := svc.IssueClientAccess(ref, "default", "openid", AccessTokenLifetime)
	if err != nil {
		t.Fatalf("IssueClientAccess: %v", err)
	}
	if claims.Iss != "http://h1:7000" || claims.Sub != "alice@h1" {
		t.Errorf("claims = %+v", claims)
	}

	got, err := svc.VerifyClientAccess(signed)
	if err != nil {
		t.Fatalf("VerifyClientAccess: %v", err)
	}
	if got.Sub != "alice@h1" || got.Scope != "openid" || got.ClientID != "default" {
		t.Errorf("verified claims = %+v", got)
	}
}

func TestClientAccessRejectsForeignIssuer(t *testing.T) {
	issuerSvc := newTestService(t, "http://h2:7000")
	localSvc := newTestService(t, "http://h1:7000")

	signed, _, err := issuerSvc.IssueClientAccess(models.NewUserRef("bob", "h2"), "default", "openid", AccessTokenLifetime)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := localSvc.VerifyClientAccess(signed); err == nil {
		t.Error("accepted a token from a different issuer and key")
	}
}

func TestClientAccessRejectsExpired(t *testing.T) {
	svc := newTestService(t, "http://h1:7000")
	signed, _, err := svc.IssueClientAccess(models.NewUserRef("alice", "h1"), "default", "openid", -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.VerifyClientAccess(signed); err == nil {
		t.Error("accepted an expired token")
	}
}

// federationPair builds two services whose resolvers can fetch each other's
// JWKS over httptest servers, returning them with their issuers.
func federationPair(t *testing.T) (caller, callee *Service) {
	t.Helper()

	callerKeys, err := keys.LoadOrGenerate(filepath.Join(t.TempDir(), "caller"))
	if err != nil {
		t.Fatalf("caller keys: %v", err)
	}
	calleeKeys, err := keys.LoadOrGenerate(filepath.Join(t.TempDir(), "callee"))
	if err != nil {
		t.Fatalf("callee keys: %v", err)
	}

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	// Both instances share one test listener; issuers are distinguished by
	// path prefix so each publishes its own JWKS document.
	mux.HandleFunc("/caller/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(callerKeys.Jwks())
	})
	mux.HandleFunc("/callee/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(calleeKeys.Jwks())
	})

	resolver := keys.NewResolver(srv.Client())
	caller = NewService(callerKeys, resolver, srv.URL+"/caller")
	callee = NewService(calleeKeys, resolver, srv.URL+"/callee")
	return caller, callee
}

func TestFederationRoundTrip(t *testing.T) {
	caller, callee := federationPair(t)

	signed, err := caller.issueFederationForIssuer(callee.Issuer(), nil, FederationDialLifetime)
	if err != nil {
		t.Fatalf("IssueFederation: %v", err)
	}

	claims, err := callee.VerifyFederation(context.Background(), signed)
	if err != nil {
		t.Fatalf("VerifyFederation: %v", err)
	}
	if claims.Iss != caller.Issuer() || claims.Sub != caller.Issuer() {
		t.Errorf("claims = %+v", claims)
	}
	if claims.UserRef != nil {
		t.Error("server-only token must not carry a user_ref")
	}
}

func TestFederationDelegatedCarriesUserRef(t *testing.T) {
	caller, callee := federationPair(t)
	ref := models.NewUserRef("alice", "h1")

	signed, err := caller.issueFederationForIssuer(callee.Issuer(), &ref, FederationTokenLifetime)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := callee.VerifyFederation(context.Background(), signed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserRef == nil || *claims.UserRef != ref {
		t.Errorf("UserRef = %v, want %v", claims.UserRef, ref)
	}
}

func TestFederationRejectsWrongAudience(t *testing.T) {
	caller, callee := federationPair(t)

	// Token addressed to the caller itself must not verify on the callee.
	signed, err := caller.issueFederationForIssuer(caller.Issuer(), nil, FederationDialLifetime)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := callee.VerifyFederation(context.Background(), signed); err == nil {
		t.Error("accepted a token with the wrong audience")
	}
}

func TestNewRefreshToken(t *testing.T) {
	svc := newTestService(t, "http://h1:7000")
	ref := models.NewUserRef("alice", "h1")

	rt, err := svc.NewRefreshToken(ref, "default")
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	if len(rt.Token) != 43 { // 32 bytes base64url without padding
		t.Errorf("token length = %d, want 43", len(rt.Token))
	}
	if rt.Revoked {
		t.Error("fresh token must not be revoked")
	}
	if got := rt.ExpiresAt.Sub(rt.IssuedAt); got != RefreshTokenLifetime {
		t.Errorf("lifetime = %v, want %v", got, RefreshTokenLifetime)
	}

	other, err := svc.NewRefreshToken(ref, "default")
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	if other.Token == rt.Token {
		t.Error("two refresh tokens must not collide")
	}
}
