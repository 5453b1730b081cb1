// Package app assembles the per-instance application state. Construction
// order breaks the cycle between the federation manager and the state it
// dials with: key manager, database, and store come first, the pools stand
// alone, and the federation dialer is installed after the handler router
// exists.
package app

import (
	"log/slog"
	"net/http"

	"github.com/runelink/runelink/internal/config"
	"github.com/runelink/runelink/internal/database"
	"github.com/runelink/runelink/internal/keys"
	"github.com/runelink/runelink/internal/store"
	"github.com/runelink/runelink/internal/token"
	"github.com/runelink/runelink/internal/ws"
)

// State is the shared state of one server instance. Cluster mode runs
// several States in one process, sharing only the HTTP client.
type State struct {
	Config     *config.Server
	DB         *database.DB
	Store      *store.Store
	HTTPClient *http.Client
	Keys       *keys.Manager
	Tokens     *token.Service
	Resolver   *keys.Resolver
	ClientWs   *ws.ClientManager
	Federation *ws.FederationManager
	Routing    *ws.RoutingIndex
	Metrics    *Metrics
	Logger     *slog.Logger
}

// New assembles the state for one instance. The federation dialer is not yet
// installed; the caller wires it once the handler router exists.
func New(cfg *config.Server, db *database.DB, httpClient *http.Client, km *keys.Manager, logger *slog.Logger) *State {
	st := store.New(db.Pool, cfg.LocalHost())
	resolver := keys.NewResolver(httpClient)

	state := &State{
		Config:     cfg,
		DB:         db,
		Store:      st,
		HTTPClient: httpClient,
		Keys:       km,
		Tokens:     token.NewService(km, resolver, cfg.APIURL()),
		Resolver:   resolver,
		ClientWs:   ws.NewClientManager(),
		Federation: ws.NewFederationManager(logger),
		Routing:    ws.NewRoutingIndex(st, cfg.LocalHost()),
		Logger:     logger,
	}
	state.Metrics = newMetrics(state)
	state.Federation.OnRequestOutcome = state.Metrics.ObserveFederationRequest
	return state
}
