package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/runelink/runelink/internal/app"
	"github.com/runelink/runelink/internal/config"
	"github.com/runelink/runelink/internal/keys"
	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/token"
	"github.com/runelink/runelink/internal/ws"
)

// testInstance builds an Instance with everything except a database, enough
// to exercise the handlers that never touch the store.
func testInstance(t *testing.T) *Instance {
	t.Helper()
	cfg := &config.Server{LocalHostRaw: "h1", Port: 7000}
	km, err := keys.LoadOrGenerate(filepath.Join(t.TempDir(), "keys"))
	if err != nil {
		t.Fatalf("LoadOrGenerate: %v", err)
	}
	resolver := keys.NewResolver(http.DefaultClient)
	state := &app.State{
		Config:   cfg,
		Keys:     km,
		Tokens:   token.NewService(km, resolver, cfg.APIURL()),
		Resolver: resolver,
		ClientWs: ws.NewClientManager(),
	}
	return &Instance{State: state}
}

func TestHandlePing(t *testing.T) {
	s := testInstance(t)
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"bare", "/ping", "pong"},
		{"with id", "/ping?id=7", "pong (7)"},
		{"with msg", "/ping?msg=hello", `pong: "hello"`},
		{"with both", "/ping?id=7&msg=hello", `pong (7): "hello"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.handlePing(rec, httptest.NewRequest(http.MethodGet, tc.url, nil))
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d", rec.Code)
			}
			if got := rec.Body.String(); got != tc.want {
				t.Errorf("body = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestHandleDiscovery(t *testing.T) {
	s := testInstance(t)
	rec := httptest.NewRecorder()
	s.handleDiscovery(rec, httptest.NewRequest(http.MethodGet, "/.well-known/openid-configuration", nil))

	var doc models.OidcDiscoveryDocument
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decoding discovery: %v", err)
	}
	if doc.Issuer != "http://h1:7000" {
		t.Errorf("issuer = %q", doc.Issuer)
	}
	if doc.JwksURI != "http://h1:7000/.well-known/jwks.json" {
		t.Errorf("jwks_uri = %q", doc.JwksURI)
	}
	if len(doc.GrantTypesSupported) != 2 {
		t.Errorf("grant types = %v", doc.GrantTypesSupported)
	}
}

func TestHandleJwks(t *testing.T) {
	s := testInstance(t)
	rec := httptest.NewRecorder()
	s.handleJwks(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))

	var jwks models.JwksResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &jwks); err != nil {
		t.Fatalf("decoding jwks: %v", err)
	}
	if len(jwks.Keys) != 1 || jwks.Keys[0].Kid != "primary" || jwks.Keys[0].Crv != "Ed25519" {
		t.Errorf("jwks = %+v", jwks)
	}
}

func TestAuthErrorBody(t *testing.T) {
	s := testInstance(t)

	// A bearer-less request to an authenticated endpoint yields the
	// {"error": "Unauthorized: ..."} envelope with status 401.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/channels", nil)
	if _, err := s.clientSession(req, nil); err == nil {
		t.Fatal("expected auth failure without bearer token")
	} else {
		respondErr(rec, err)
	}

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["error"] != "Unauthorized: Missing bearer token" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing", "", ""},
		{"bearer", "Bearer abc", "abc"},
		{"case insensitive", "bearer abc", "abc"},
		{"wrong scheme", "Basic abc", ""},
		{"no token", "Bearer", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			if got := bearerToken(r); got != tc.want {
				t.Errorf("bearerToken = %q, want %q", got, tc.want)
			}
		})
	}
}
