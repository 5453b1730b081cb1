// Package api implements the Runelink HTTP surface using the chi router:
// the OIDC endpoints, the REST resource routes with their target_host
// forwarding, and the websocket upgrade endpoints. Handlers authorize
// through the same requirement trees as the websocket router.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/runelink/runelink/internal/apperr"
	"github.com/runelink/runelink/internal/app"
	"github.com/runelink/runelink/internal/auth"
	"github.com/runelink/runelink/internal/router"
)

// Instance is the HTTP server of one Runelink server instance.
type Instance struct {
	State   *app.State
	Router  *chi.Mux
	Handler *router.Router

	server *http.Server
}

// NewInstance builds the HTTP server for one instance and installs the
// federation dialer on its manager.
func NewInstance(state *app.State) *Instance {
	inst := &Instance{
		State:   state,
		Router:  chi.NewRouter(),
		Handler: router.New(state),
	}
	state.Federation.SetDialer(inst.Handler.Dialer())

	inst.registerMiddleware()
	inst.registerRoutes()
	return inst
}

func (s *Instance) registerMiddleware() {
	s.Router.Use(middleware.RequestID)
	s.Router.Use(middleware.RealIP)
	s.Router.Use(slogMiddleware(s.State.Logger))
	s.Router.Use(middleware.Recoverer)
}

func (s *Instance) registerRoutes() {
	s.Router.Get("/ping", s.handlePing)

	// OIDC discovery and auth endpoints.
	s.Router.Get("/.well-known/openid-configuration", s.handleDiscovery)
	s.Router.Get("/.well-known/jwks.json", s.handleJwks)
	s.Router.Post("/auth/signup", s.handleSignup)
	s.Router.Post("/auth/token", s.handleToken)
	s.Router.Get("/auth/userinfo", s.handleUserinfo)
	s.Router.Post("/auth/register", s.handleRegisterClient)

	// Websocket upgrades.
	s.Router.Get("/ws/client", s.handleClientWs)
	s.Router.Get("/ws/federation", s.handleFederationWs)

	// Prometheus metrics.
	s.Router.Method(http.MethodGet, "/metrics", s.State.Metrics.Handler())

	// Users.
	s.Router.Get("/users", s.handleUsersGetAll)
	s.Router.Post("/users", s.handleUsersCreate)
	s.Router.Get("/users/{host}/{name}", s.handleUsersGetByRef)
	s.Router.Delete("/users/{host}/{name}", s.handleUsersDelete)
	s.Router.Get("/users/{host}/{name}/hosts", s.handleUsersGetAssociatedHosts)
	s.Router.Get("/users/{host}/{name}/servers", s.handleMembershipsGetByUser)

	// Servers.
	s.Router.Get("/servers", s.handleServersGetAll)
	s.Router.Post("/servers", s.handleServersCreate)
	s.Router.Get("/servers/{serverID}", s.handleServersGetByID)
	s.Router.Delete("/servers/{serverID}", s.handleServersDelete)
	s.Router.Get("/servers/{serverID}/with_channels", s.handleServersGetWithChannels)

	// Channels.
	s.Router.Get("/channels", s.handleChannelsGetAll)
	s.Router.Get("/servers/{serverID}/channels", s.handleChannelsGetByServer)
	s.Router.Post("/servers/{serverID}/channels", s.handleChannelsCreate)
	s.Router.Get("/servers/{serverID}/channels/{channelID}", s.handleChannelsGetByID)
	s.Router.Delete("/servers/{serverID}/channels/{channelID}", s.handleChannelsDelete)

	// Messages.
	s.Router.Get("/messages", s.handleMessagesGetAll)
	s.Router.Get("/servers/{serverID}/messages", s.handleMessagesGetByServer)
	s.Router.Get("/servers/{serverID}/channels/{channelID}/messages", s.handleMessagesGetByChannel)
	s.Router.Post("/servers/{serverID}/channels/{channelID}/messages", s.handleMessagesCreate)
	s.Router.Get("/servers/{serverID}/channels/{channelID}/messages/{messageID}", s.handleMessagesGetByID)
	s.Router.Delete("/servers/{serverID}/channels/{channelID}/messages/{messageID}", s.handleMessagesDelete)

	// Memberships.
	s.Router.Get("/servers/{serverID}/users", s.handleMembershipsGetMembersByServer)
	s.Router.Post("/servers/{serverID}/users", s.handleMembershipsCreate)
	s.Router.Get("/servers/{serverID}/users/{host}/{name}", s.handleMembershipsGetByUserAndServer)
	s.Router.Delete("/servers/{serverID}/users/{host}/{name}", s.handleMembershipsDelete)
}

// Start begins listening on the instance's configured port.
func (s *Instance) Start() error {
	addr := fmt.Sprintf("0.0.0.0:%d", s.State.Config.Port)
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	s.State.Logger.Info("HTTP server starting",
		slog.String("host", s.State.Config.LocalHostWithPort()),
		slog.String("listen", addr),
	)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Instance) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.State.Logger.Info("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}

// handlePing answers the liveness probe, echoing the optional id and msg
// query parameters.
func (s *Instance) handlePing(w http.ResponseWriter, r *http.Request) {
	msg := ""
	if v := r.URL.Query().Get("msg"); v != "" {
		msg = fmt.Sprintf(": %q", v)
	}
	id := ""
	if v := r.URL.Query().Get("id"); v != "" {
		id = fmt.Sprintf(" (%s)", v)
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "pong%s%s", id, msg)
}

// targetHost returns the target_host query parameter, nil when absent.
func targetHost(r *http.Request) *string {
	if v := r.URL.Query().Get("target_host"); v != "" {
		return &v
	}
	return nil
}

// writeJSON writes a JSON response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes the error envelope {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// respondErr maps an operation failure onto its HTTP rendering.
func respondErr(w http.ResponseWriter, err error) {
	appErr := apperr.From(err)
	writeError(w, appErr.HTTPStatus(), appErr.Error())
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// clientSession authenticates the request's bearer token as a client access
// token and authorizes it against the requirement.
func (s *Instance) clientSession(r *http.Request, req *auth.Requirement) (*auth.Session, error) {
	tokenString := bearerToken(r)
	if tokenString == "" {
		return nil, apperr.Auth("Missing bearer token")
	}
	claims, err := s.State.Tokens.VerifyClientAccess(tokenString)
	if err != nil {
		return nil, err
	}
	return auth.Authorize(r.Context(), s.State.Store, auth.ClientPrincipal(claims), req)
}

// slogMiddleware logs each request with slog.
func slogMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.LogAttrs(r.Context(), slog.LevelInfo, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
