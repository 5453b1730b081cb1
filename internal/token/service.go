package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/runelink/runelink/internal/apperr"
	"github.com/runelink/runelink/internal/hostutil"
	"github.com/runelink/runelink/internal/keys"
	"github.com/runelink/runelink/internal/models"
)

// Token lifetimes.
const (
	AccessTokenLifetime     = time.Hour
	FederationDialLifetime  = 5 * time.Minute
	FederationTokenLifetime = time.Hour
	RefreshTokenLifetime    = 30 * 24 * time.Hour
)

// DefaultClientID is used when a token request names no client.
const DefaultClientID = "default"

// DefaultScope is granted when a token request names no scope.
const DefaultScope = "openid"

func unixTime(ts int64) time.Time {
	return time.Unix(ts, 0)
}

// Service issues and validates Runelink JWTs for one server instance.
type Service struct {
	keys     *keys.Manager
	resolver *keys.Resolver
	issuer   string
}

// NewService creates a token service. issuer is the instance's canonical API
// URL; resolver is used to verify inbound federation tokens.
func NewService(km *keys.Manager, resolver *keys.Resolver, issuer string) *Service {
	return &Service{keys: km, resolver: resolver, issuer: issuer}
}

// Issuer returns the canonical issuer URL of this instance.
func (s *Service) Issuer() string {
	return s.issuer
}

// IssueClientAccess mints a client access token for a local user.
func (s *Service) IssueClientAccess(ref models.UserRef, clientID, scope string, lifetime time.Duration) (string, *ClientAccessClaims, error) {
	now := time.Now().UTC()
	claims := &ClientAccessClaims{
		Iss:      s.issuer,
		Sub:      ref.Subject(),
		Aud:      []string{s.issuer},
		Exp:      now.Add(lifetime).Unix(),
		Iat:      now.Unix(),
		Scope:    scope,
		ClientID: clientID,
	}
	signed, err := s.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// VerifyClientAccess validates a client access token against the local key,
// requiring this instance as both issuer and audience and a parseable
// name@host subject.
func (s *Service) VerifyClientAccess(tokenString string) (*ClientAccessClaims, error) {
	claims := &ClientAccessClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return s.keys.VerificationKey(), nil
		},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, apperr.Auth("Invalid or expired token")
	}
	if _, ok := models.ParseSubject(claims.Sub); !ok {
		return nil, apperr.Auth("Invalid token subject (expected name@host)")
	}
	return claims, nil
}

// IssueFederation mints a federation token addressed to targetHost. A
// non-nil delegated user makes the token act "on behalf of" that user.
func (s *Service) IssueFederation(targetHost string, delegated *models.UserRef, lifetime time.Duration) (string, error) {
	return s.issueFederationForIssuer(hostutil.APIURL(targetHost), delegated, lifetime)
}

// issueFederationForIssuer mints a federation token whose audience is the
// target's exact issuer URL.
func (s *Service) issueFederationForIssuer(audience string, delegated *models.UserRef, lifetime time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := &FederationClaims{
		Iss:     s.issuer,
		Sub:     s.issuer,
		Aud:     []string{audience},
		Exp:     now.Add(lifetime).Unix(),
		Iat:     now.Unix(),
		UserRef: delegated,
	}
	return s.sign(claims)
}

// VerifyFederation validates an inbound federation token: the signature is
// checked against the issuer's published JWKS, and aud must contain this
// instance's API URL.
func (s *Service) VerifyFederation(ctx context.Context, tokenString string) (*FederationClaims, error) {
	claims := &FederationClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				kid = keys.KidPrimary
			}
			iss, err := t.Claims.GetIssuer()
			if err != nil || iss == "" {
				return nil, fmt.Errorf("federation token missing issuer")
			}
			return s.resolver.VerificationKey(ctx, iss, kid)
		},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, apperr.Auth("Invalid or expired federation token")
	}
	if !claims.HasAudience(s.issuer) {
		return nil, apperr.Auth("Federation token not addressed to this server")
	}
	return claims, nil
}

// NewRefreshToken mints a 256-bit random refresh token bound to a user and
// client.
func (s *Service) NewRefreshToken(ref models.UserRef, clientID string) (*models.RefreshToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generating refresh token: %w", err)
	}
	now := time.Now().UTC()
	return &models.RefreshToken{
		Token:     base64.RawURLEncoding.EncodeToString(raw),
		UserName:  ref.Name,
		UserHost:  ref.Host,
		ClientID:  clientID,
		IssuedAt:  now,
		ExpiresAt: now.Add(RefreshTokenLifetime),
		Revoked:   false,
	}, nil
}

func (s *Service) sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	t.Header["kid"] = keys.KidPrimary
	signed, err := t.SignedString(s.keys.SigningKey())
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
