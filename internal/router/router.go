// Package router dispatches typed websocket requests to domain operations:
// it builds the operation's auth requirement, authorizes the connection's
// principal, runs the operation, and answers with a typed reply or error
// envelope. It also routes federation responses back to their waiters and
// feeds inbound federation updates to locally interested clients.
package router

import (
	"context"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/apperr"
	"github.com/runelink/runelink/internal/app"
	"github.com/runelink/runelink/internal/auth"
	"github.com/runelink/runelink/internal/hostutil"
	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/token"
	"github.com/runelink/runelink/internal/wire"
	"github.com/runelink/runelink/internal/ws"
)

// Router dispatches websocket traffic for one server instance.
type Router struct {
	state *app.State
}

// New creates a router over the instance state.
func New(state *app.State) *Router {
	return &Router{state: state}
}

// Dialer returns the federation auto-dial hook: it mints a short-lived
// server-only federation token and opens the websocket, registering the
// connection with the federation manager.
func (r *Router) Dialer() ws.Dialer {
	return func(ctx context.Context, host string) bool {
		bearer, err := r.state.Tokens.IssueFederation(host, nil, token.FederationDialLifetime)
		if err != nil {
			r.state.Logger.Warn("failed creating federation token",
				"host", host, "error", err.Error())
			return false
		}
		return ws.DialFederation(ctx, r.state.Federation, r.state.HTTPClient, host, bearer, r, r.state.Logger)
	}
}

// wsError converts an operation failure into the wire error payload.
func wsError(err error) wire.WsError {
	appErr := apperr.From(err)
	return wire.WsError{Code: appErr.WsCode(), Message: appErr.Error()}
}

// authorizeClient authorizes a client websocket request: the connection must
// be authenticated, and its user is wrapped as a client principal.
func (r *Router) authorizeClient(ctx context.Context, connID uuid.UUID, req *auth.Requirement) (*auth.Session, error) {
	ref, ok := r.state.ClientWs.AuthenticatedUser(connID)
	if !ok {
		return nil, apperr.Auth("Client websocket connection is not authenticated")
	}
	claims := &token.ClientAccessClaims{
		Iss: r.state.Tokens.Issuer(),
		Sub: ref.Subject(),
		Aud: []string{r.state.Tokens.Issuer()},
	}
	return auth.Authorize(ctx, r.state.Store, auth.ClientPrincipal(claims), req)
}

// authorizeFederation authorizes a federation websocket request: the
// connection must be bound to a host, and the delegated user (if any) rides
// along in the synthesized claims.
func (r *Router) authorizeFederation(ctx context.Context, connID uuid.UUID, delegated *models.UserRef, req *auth.Requirement) (*auth.Session, error) {
	host, ok := r.state.Federation.AuthenticatedHost(connID)
	if !ok {
		return nil, apperr.Auth("Federation websocket connection is not authenticated")
	}
	claims := &token.FederationClaims{
		Iss:     hostutil.APIURL(host),
		Sub:     hostutil.APIURL(host),
		Aud:     []string{r.state.Tokens.Issuer()},
		UserRef: delegated,
	}
	return auth.Authorize(ctx, r.state.Store, auth.FederationPrincipal(claims), req)
}
