package ops

import (
	"context"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/app"
	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/wire"
)

// FanoutTargets are the recipients of one server-scoped update.
type FanoutTargets struct {
	LocalUsers  []models.UserRef
	RemoteHosts []string
}

// resolveServerTargets resolves the interested parties for a change on a
// locally hosted server: every local member and every distinct peer host
// with members.
func resolveServerTargets(ctx context.Context, state *app.State, serverID uuid.UUID) (FanoutTargets, error) {
	localUsers, err := state.Routing.UsersForLocalServer(ctx, serverID)
	if err != nil {
		return FanoutTargets{}, err
	}
	remoteHosts, err := state.Routing.HostsForServer(ctx, serverID)
	if err != nil {
		return FanoutTargets{}, err
	}
	return FanoutTargets{LocalUsers: localUsers, RemoteHosts: remoteHosts}, nil
}

// fanoutUpdate delivers the client update to every local target user's
// connections and the federation update once to each remote host. All sends
// are best effort.
func fanoutUpdate(state *app.State, targets FanoutTargets, clientUpdate wire.ClientUpdate, federationUpdate wire.FederationUpdate) {
	for _, ref := range targets.LocalUsers {
		state.ClientWs.SendUpdateToUser(ref, clientUpdate)
	}
	state.Federation.SendUpdateToHosts(targets.RemoteHosts, federationUpdate)
}

// fanoutServerUpdate resolves targets and delivers in one step; resolution
// failures are logged and the update is skipped (the commit already
// happened, fanout is best effort).
func fanoutServerUpdate(ctx context.Context, state *app.State, serverID uuid.UUID, clientUpdate wire.ClientUpdate, federationUpdate wire.FederationUpdate) {
	targets, err := resolveServerTargets(ctx, state, serverID)
	if err != nil {
		state.Logger.Warn("failed to resolve fanout targets", "server_id", serverID, "error", err.Error())
		return
	}
	fanoutUpdate(state, targets, clientUpdate, federationUpdate)
}
