package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/runelink/runelink/internal/apperr"
	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/ops"
	"github.com/runelink/runelink/internal/token"
)

// handleDiscovery serves the OIDC discovery document.
func (s *Instance) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ops.OidcDiscovery(s.State))
}

// handleJwks serves the instance's public key set.
func (s *Instance) handleJwks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.State.Keys.Jwks())
}

// handleSignup creates a local account: a user row plus an argon2id password
// hash.
func (s *Instance) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErr(w, apperr.BadRequest("Invalid request body"))
		return
	}
	if req.Name == "" || req.Password == "" {
		respondErr(w, apperr.BadRequest("Both name and password are required"))
		return
	}

	newUser := models.NewUser{
		Name: req.Name,
		Host: s.State.Config.LocalHost(),
		Role: models.RoleUser,
	}
	user, err := s.State.Store.InsertUser(r.Context(), &newUser)
	if err != nil {
		respondErr(w, err)
		return
	}

	hash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		respondErr(w, apperr.Internal("hashing password failed"))
		return
	}
	if err := s.State.Store.InsertAccount(r.Context(), user.Ref(), hash); err != nil {
		respondErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// handleToken implements the OAuth2 token endpoint with password and
// refresh_token grants.
func (s *Instance) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondErr(w, apperr.BadRequest("Invalid form body"))
		return
	}
	grantType := r.PostFormValue("grant_type")
	clientID := r.PostFormValue("client_id")
	if clientID == "" {
		clientID = token.DefaultClientID
	}
	scope := r.PostFormValue("scope")
	if scope == "" {
		scope = token.DefaultScope
	}

	switch grantType {
	case "password":
		username := r.PostFormValue("username")
		password := r.PostFormValue("password")
		if username == "" {
			respondErr(w, apperr.BadRequest("missing username"))
			return
		}
		if password == "" {
			respondErr(w, apperr.BadRequest("missing password"))
			return
		}

		ref := models.NewUserRef(username, s.State.Config.LocalHost())
		user, err := s.State.Store.GetUserByRef(r.Context(), ref)
		if err != nil {
			respondErr(w, err)
			return
		}
		account, err := s.State.Store.GetAccountByUser(r.Context(), user.Ref())
		if err != nil {
			respondErr(w, err)
			return
		}
		match, err := argon2id.ComparePasswordAndHash(password, account.PasswordHash)
		if err != nil || !match {
			respondErr(w, apperr.Auth("invalid credentials"))
			return
		}

		accessToken, claims, err := s.State.Tokens.IssueClientAccess(user.Ref(), clientID, scope, token.AccessTokenLifetime)
		if err != nil {
			respondErr(w, err)
			return
		}

		rt, err := s.State.Tokens.NewRefreshToken(user.Ref(), clientID)
		if err != nil {
			respondErr(w, err)
			return
		}
		if err := s.State.Store.InsertRefreshToken(r.Context(), rt); err != nil {
			respondErr(w, err)
			return
		}

		writeJSON(w, http.StatusOK, models.TokenResponse{
			AccessToken:  accessToken,
			TokenType:    "Bearer",
			ExpiresIn:    int64(token.AccessTokenLifetime.Seconds()),
			RefreshToken: rt.Token,
			Scope:        claims.Scope,
		})

	case "refresh_token":
		refreshToken := r.PostFormValue("refresh_token")
		if refreshToken == "" {
			respondErr(w, apperr.BadRequest("missing refresh_token"))
			return
		}
		rt, err := s.State.Store.GetRefreshToken(r.Context(), refreshToken)
		if err != nil {
			respondErr(w, err)
			return
		}
		if rt.Revoked || !rt.ExpiresAt.After(time.Now().UTC()) {
			respondErr(w, apperr.Auth("refresh token expired or revoked"))
			return
		}

		ref := models.NewUserRef(rt.UserName, rt.UserHost)
		accessToken, claims, err := s.State.Tokens.IssueClientAccess(ref, clientID, scope, token.AccessTokenLifetime)
		if err != nil {
			respondErr(w, err)
			return
		}

		// TODO: refresh token rotation; the same token is returned for now.
		writeJSON(w, http.StatusOK, models.TokenResponse{
			AccessToken:  accessToken,
			TokenType:    "Bearer",
			ExpiresIn:    int64(token.AccessTokenLifetime.Seconds()),
			RefreshToken: rt.Token,
			Scope:        claims.Scope,
		})

	default:
		respondErr(w, apperr.BadRequest("unsupported grant_type"))
	}
}

// handleUserinfo is a stub pending a real userinfo implementation.
func (s *Instance) handleUserinfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"error":   "not_implemented",
		"message": "Userinfo endpoint not yet implemented",
	})
}

// handleRegisterClient is a stub pending dynamic client registration.
func (s *Instance) handleRegisterClient(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"error":   "not_implemented",
		"message": "Client registration not yet implemented",
	})
}
