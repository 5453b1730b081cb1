package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/runelink/runelink/internal/hostutil"
	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/ws"
)

// handleClientWs upgrades a client websocket. A valid access token in the
// Authorization header authenticates the connection immediately; without
// one the socket starts unauthenticated and may authenticate in-band.
func (s *Instance) handleClientWs(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.State.Logger.Warn("client websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	connID, outboundCh, done := s.State.ClientWs.Register()

	if tokenString := bearerToken(r); tokenString != "" {
		if claims, err := s.State.Tokens.VerifyClientAccess(tokenString); err == nil {
			if ref, ok := models.ParseSubject(claims.Sub); ok {
				s.State.ClientWs.Authenticate(connID, ref)
			}
		}
	}

	go ws.RunClientSocket(context.WithoutCancel(r.Context()), conn, s.State.ClientWs,
		connID, outboundCh, done, s.Handler, s.State.Logger)
}

// handleFederationWs upgrades an inbound federation websocket. The peer's
// federation JWT binds the connection to the host named by its issuer.
func (s *Instance) handleFederationWs(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.State.Logger.Warn("federation websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	connID, outboundCh, done := s.State.Federation.Register()

	if tokenString := bearerToken(r); tokenString != "" {
		if claims, err := s.State.Tokens.VerifyFederation(r.Context(), tokenString); err == nil {
			host := hostutil.FromIssuer(claims.Iss)
			s.State.Federation.Authenticate(connID, hostutil.Pad(host))
		}
	}

	go ws.RunFederationSocket(context.WithoutCancel(r.Context()), conn, s.State.Federation,
		connID, outboundCh, done, s.Handler, s.State.Logger)
}
