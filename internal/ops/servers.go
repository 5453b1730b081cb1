package ops

import (
	"context"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/apperr"
	"github.com/runelink/runelink/internal/app"
	"github.com/runelink/runelink/internal/auth"
	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/wire"
)

// CreateServer creates a server locally, or on the target host with the
// creator's delegation. The creator becomes an admin member; on the
// federated path the remote server and the creator's membership are
// mirrored locally so the home host knows the user belongs to it.
func CreateServer(ctx context.Context, state *app.State, session *auth.Session, newServer *models.NewServer, targetHost *string) (*models.Server, error) {
	if !state.Config.IsRemoteHost(targetHost) {
		server, err := state.Store.InsertServer(ctx, newServer)
		if err != nil {
			return nil, err
		}
		if session.UserRef == nil {
			return nil, apperr.Internal("Session missing user identity for server creation")
		}
		userRef := *session.UserRef
		if err := state.Store.EnsureUserExists(ctx, userRef); err != nil {
			return nil, err
		}
		newMembership := models.NewServerMembership{
			UserRef:    userRef,
			ServerID:   server.ID,
			ServerHost: server.Host,
			Role:       models.ServerRoleAdmin,
		}
		if _, err := state.Store.InsertLocalMembership(ctx, &newMembership); err != nil {
			return nil, err
		}
		fanoutServerUpdate(ctx, state, server.ID,
			wire.ClientUpdate{Event: wire.EventServerUpserted, Server: server},
			wire.FederationUpdate{Event: wire.EventServerUpserted, Server: server})
		return server, nil
	}

	host := *targetHost
	if session.UserRef == nil {
		return nil, apperr.Internal("User reference required for federated server creation")
	}
	userRef := *session.UserRef
	reply, err := request(ctx, state, host, &userRef, wire.FederationRequest{
		Action:    wire.ActionServersCreate,
		NewServer: newServer,
	})
	if err != nil {
		return nil, err
	}
	if reply.Result != wire.ActionServersCreate || reply.Server == nil {
		return nil, apperr.Internalf("Unexpected federation reply from %s for servers.create", host)
	}
	server := reply.Server

	// Mirror the remote server and the creator's admin membership.
	if err := state.Store.UpsertRemoteServer(ctx, server); err != nil {
		return nil, err
	}
	syncedAt := server.CreatedAt
	remoteMembership := models.ServerMembership{
		Server:    *server,
		UserRef:   userRef,
		Role:      models.ServerRoleAdmin,
		JoinedAt:  server.CreatedAt,
		UpdatedAt: server.UpdatedAt,
		SyncedAt:  &syncedAt,
	}
	if _, err := state.Store.InsertRemoteMembership(ctx, &remoteMembership); err != nil {
		return nil, err
	}
	return server, nil
}

// GetAllServers lists servers, locally or from the target host (public).
func GetAllServers(ctx context.Context, state *app.State, targetHost *string) ([]models.Server, error) {
	if !state.Config.IsRemoteHost(targetHost) {
		return state.Store.GetAllServers(ctx)
	}
	host := *targetHost
	reply, err := request(ctx, state, host, nil, wire.FederationRequest{Action: wire.ActionServersGetAll})
	if err != nil {
		return nil, err
	}
	if reply.Result != wire.ActionServersGetAll {
		return nil, apperr.Internalf("Unexpected federation reply from %s for servers.get_all", host)
	}
	return reply.Servers, nil
}

// GetServerByID fetches a server, locally or from the target host (public).
func GetServerByID(ctx context.Context, state *app.State, serverID uuid.UUID, targetHost *string) (*models.Server, error) {
	if !state.Config.IsRemoteHost(targetHost) {
		return state.Store.GetServerByID(ctx, serverID)
	}
	host := *targetHost
	reply, err := request(ctx, state, host, nil, wire.FederationRequest{
		Action:   wire.ActionServersGetByID,
		ServerID: &serverID,
	})
	if err != nil {
		return nil, err
	}
	if reply.Result != wire.ActionServersGetByID || reply.Server == nil {
		return nil, apperr.Internalf("Unexpected federation reply from %s for servers.get_by_id", host)
	}
	return reply.Server, nil
}

// GetServerWithChannels fetches a server and its channels; the federated
// path requires the caller's delegation since channel listings are
// member-scoped.
func GetServerWithChannels(ctx context.Context, state *app.State, session *auth.Session, serverID uuid.UUID, targetHost *string) (*models.ServerWithChannels, error) {
	if !state.Config.IsRemoteHost(targetHost) {
		server, err := state.Store.GetServerByID(ctx, serverID)
		if err != nil {
			return nil, err
		}
		channels, err := state.Store.GetChannelsByServer(ctx, serverID)
		if err != nil {
			return nil, err
		}
		return &models.ServerWithChannels{Server: *server, Channels: channels}, nil
	}

	host := *targetHost
	if session.UserRef == nil {
		return nil, apperr.Internal("User reference required for federated server fetching")
	}
	reply, err := request(ctx, state, host, session.UserRef, wire.FederationRequest{
		Action:   wire.ActionServersGetWithChannels,
		ServerID: &serverID,
	})
	if err != nil {
		return nil, err
	}
	if reply.Result != wire.ActionServersGetWithChannels || reply.ServerFull == nil {
		return nil, apperr.Internalf("Unexpected federation reply from %s for servers.get_with_channels", host)
	}
	return reply.ServerFull, nil
}

// DeleteServer deletes a server, locally (with fanout) or on the target
// host.
func DeleteServer(ctx context.Context, state *app.State, session *auth.Session, serverID uuid.UUID, targetHost *string) error {
	if !state.Config.IsRemoteHost(targetHost) {
		// Resolve targets before the delete removes the membership rows.
		targets, err := resolveServerTargets(ctx, state, serverID)
		if err != nil {
			return err
		}
		if err := state.Store.DeleteServer(ctx, serverID); err != nil {
			return err
		}
		fanoutUpdate(state, targets,
			wire.ClientUpdate{Event: wire.EventServerDeleted, ServerID: &serverID},
			wire.FederationUpdate{Event: wire.EventServerDeleted, ServerID: &serverID})
		return nil
	}

	host := *targetHost
	if session.UserRef == nil {
		return apperr.Internal("User reference required for federated server deletion")
	}
	reply, err := request(ctx, state, host, session.UserRef, wire.FederationRequest{
		Action:   wire.ActionServersDelete,
		ServerID: &serverID,
	})
	if err != nil {
		return err
	}
	if reply.Result != wire.ActionServersDelete {
		return apperr.Internalf("Unexpected federation reply from %s for servers.delete", host)
	}
	return nil
}

// Auth requirements for server operations.

func ServersCreateAuth() *auth.Requirement {
	return auth.Always().OrAdmin().ClientOnly()
}

func ServersGetWithChannelsAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.ServerMember(serverID).OrAdmin().ClientOnly()
}

func ServersDeleteAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.ServerAdmin(serverID).OrAdmin().ClientOnly()
}

func FederatedServersCreateAuth() *auth.Requirement {
	return auth.Always().FederatedOnly()
}

func FederatedServersGetWithChannelsAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.ServerMember(serverID).FederatedOnly()
}

func FederatedServersDeleteAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.ServerAdmin(serverID).FederatedOnly()
}
