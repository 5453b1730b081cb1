package models

import "time"

// LocalAccount holds the password hash for a locally registered user.
type LocalAccount struct {
	UserName     string    `json:"user_name"`
	UserHost     string    `json:"user_host"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SignupRequest is the body of POST /auth/signup.
type SignupRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// RefreshToken is an opaque long-lived credential bound to a user and client.
type RefreshToken struct {
	Token     string    `json:"token"`
	UserName  string    `json:"user_name"`
	UserHost  string    `json:"user_host"`
	ClientID  string    `json:"client_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

// TokenResponse is the OAuth2 token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// OidcDiscoveryDocument is served from /.well-known/openid-configuration.
type OidcDiscoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	JwksURI                           string   `json:"jwks_uri"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

// AuthTokenPasswordRequest is the structured password grant used over WS.
type AuthTokenPasswordRequest struct {
	Username string  `json:"username"`
	Password string  `json:"password"`
	Scope    *string `json:"scope,omitempty"`
	ClientID *string `json:"client_id,omitempty"`
}

// AuthTokenRefreshRequest is the structured refresh grant used over WS.
type AuthTokenRefreshRequest struct {
	RefreshToken string  `json:"refresh_token"`
	Scope        *string `json:"scope,omitempty"`
	ClientID     *string `json:"client_id,omitempty"`
}

// AuthTokenAccessRequest authenticates an open websocket with an access JWT.
type AuthTokenAccessRequest struct {
	AccessToken string `json:"access_token"`
}

// PublicJwk is a single published JSON Web Key.
type PublicJwk struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	X   string `json:"x"`
}

// JwksResponse is served from /.well-known/jwks.json.
type JwksResponse struct {
	Keys []PublicJwk `json:"keys"`
}
