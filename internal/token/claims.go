// Package token issues and validates Runelink's JWTs: OIDC-style client
// access tokens (valid only on the issuing home server) and federation
// tokens (server-only or carrying user delegation), plus opaque refresh
// tokens. All JWTs are signed with EdDSA over the instance keypair.
package token

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/runelink/runelink/internal/models"
)

// ClientAccessClaims are the claims of a client access token.
type ClientAccessClaims struct {
	Iss      string   `json:"iss"`
	Sub      string   `json:"sub"`
	Aud      []string `json:"aud"`
	Exp      int64    `json:"exp"`
	Iat      int64    `json:"iat"`
	Scope    string   `json:"scope"`
	ClientID string   `json:"client_id"`
}

// FederationClaims are the claims of a server-to-server federation token.
// The token authenticates the calling server (iss == sub); UserRef is set
// iff the token carries user delegation.
type FederationClaims struct {
	Iss     string          `json:"iss"`
	Sub     string          `json:"sub"`
	Aud     []string        `json:"aud"`
	Exp     int64           `json:"exp"`
	Iat     int64           `json:"iat"`
	UserRef *models.UserRef `json:"user_ref,omitempty"`
}

func (c *ClientAccessClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(unixTime(c.Exp)), nil
}

func (c *ClientAccessClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(unixTime(c.Iat)), nil
}

func (c *ClientAccessClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

func (c *ClientAccessClaims) GetIssuer() (string, error) {
	return c.Iss, nil
}

func (c *ClientAccessClaims) GetSubject() (string, error) {
	return c.Sub, nil
}

func (c *ClientAccessClaims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings(c.Aud), nil
}

func (c *FederationClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(unixTime(c.Exp)), nil
}

func (c *FederationClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(unixTime(c.Iat)), nil
}

func (c *FederationClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

func (c *FederationClaims) GetIssuer() (string, error) {
	return c.Iss, nil
}

func (c *FederationClaims) GetSubject() (string, error) {
	return c.Sub, nil
}

func (c *FederationClaims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings(c.Aud), nil
}

// HasAudience reports whether aud contains the given audience.
func (c *FederationClaims) HasAudience(aud string) bool {
	for _, a := range c.Aud {
		if a == aud {
			return true
		}
	}
	return false
}
