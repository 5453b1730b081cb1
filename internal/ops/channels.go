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

// CreateChannel creates a channel, locally (with fanout) or on the target
// host with the caller's delegation.
func CreateChannel(ctx context.Context, state *app.State, session *auth.Session, serverID uuid.UUID, newChannel *models.NewChannel, targetHost *string) (*models.Channel, error) {
	if !state.Config.IsRemoteHost(targetHost) {
		channel, err := state.Store.InsertChannel(ctx, serverID, newChannel)
		if err != nil {
			return nil, err
		}
		fanoutServerUpdate(ctx, state, serverID,
			wire.ClientUpdate{Event: wire.EventChannelUpserted, Channel: channel},
			wire.FederationUpdate{Event: wire.EventChannelUpserted, Channel: channel})
		return channel, nil
	}

	host := *targetHost
	if session.UserRef == nil {
		return nil, apperr.Internal("User reference required for federated channel creation")
	}
	reply, err := request(ctx, state, host, session.UserRef, wire.FederationRequest{
		Action:     wire.ActionChannelsCreate,
		ServerID:   &serverID,
		NewChannel: newChannel,
	})
	if err != nil {
		return nil, err
	}
	if reply.Result != wire.ActionChannelsCreate || reply.Channel == nil {
		return nil, apperr.Internalf("Unexpected federation reply from %s for channels.create", host)
	}
	return reply.Channel, nil
}

// GetAllChannels lists every channel, locally or from the target host.
func GetAllChannels(ctx context.Context, state *app.State, session *auth.Session, targetHost *string) ([]models.Channel, error) {
	if !state.Config.IsRemoteHost(targetHost) {
		return state.Store.GetAllChannels(ctx)
	}
	host := *targetHost
	if session.UserRef == nil {
		return nil, apperr.Internal("User reference required for federated channel fetching")
	}
	reply, err := request(ctx, state, host, session.UserRef, wire.FederationRequest{Action: wire.ActionChannelsGetAll})
	if err != nil {
		return nil, err
	}
	if reply.Result != wire.ActionChannelsGetAll {
		return nil, apperr.Internalf("Unexpected federation reply from %s for channels.get_all", host)
	}
	return reply.Channels, nil
}

// GetChannelsByServer lists a server's channels, locally or from the target
// host.
func GetChannelsByServer(ctx context.Context, state *app.State, session *auth.Session, serverID uuid.UUID, targetHost *string) ([]models.Channel, error) {
	if !state.Config.IsRemoteHost(targetHost) {
		return state.Store.GetChannelsByServer(ctx, serverID)
	}
	host := *targetHost
	if session.UserRef == nil {
		return nil, apperr.Internal("User reference required for federated channel fetching")
	}
	reply, err := request(ctx, state, host, session.UserRef, wire.FederationRequest{
		Action:   wire.ActionChannelsGetByServer,
		ServerID: &serverID,
	})
	if err != nil {
		return nil, err
	}
	if reply.Result != wire.ActionChannelsGetByServer {
		return nil, apperr.Internalf("Unexpected federation reply from %s for channels.get_by_server", host)
	}
	return reply.Channels, nil
}

// GetChannelByID fetches one channel, verifying it belongs to the named
// server rather than leaking the existence of channels on other servers.
func GetChannelByID(ctx context.Context, state *app.State, session *auth.Session, serverID, channelID uuid.UUID, targetHost *string) (*models.Channel, error) {
	if !state.Config.IsRemoteHost(targetHost) {
		channel, err := state.Store.GetChannelByID(ctx, channelID)
		if err != nil {
			return nil, err
		}
		if channel.ServerID != serverID {
			return nil, apperr.Auth("Channel not found in specified server")
		}
		return channel, nil
	}
	host := *targetHost
	if session.UserRef == nil {
		return nil, apperr.Internal("User reference required for federated channel fetching")
	}
	reply, err := request(ctx, state, host, session.UserRef, wire.FederationRequest{
		Action:    wire.ActionChannelsGetByID,
		ServerID:  &serverID,
		ChannelID: &channelID,
	})
	if err != nil {
		return nil, err
	}
	if reply.Result != wire.ActionChannelsGetByID || reply.Channel == nil {
		return nil, apperr.Internalf("Unexpected federation reply from %s for channels.get_by_id", host)
	}
	return reply.Channel, nil
}

// DeleteChannel deletes a channel, locally (with fanout) or on the target
// host. The channel must belong to the named server.
func DeleteChannel(ctx context.Context, state *app.State, session *auth.Session, serverID, channelID uuid.UUID, targetHost *string) error {
	if !state.Config.IsRemoteHost(targetHost) {
		channel, err := state.Store.GetChannelByID(ctx, channelID)
		if err != nil {
			return err
		}
		if channel.ServerID != serverID {
			return apperr.Auth("Channel not found in specified server")
		}
		if err := state.Store.DeleteChannel(ctx, channelID); err != nil {
			return err
		}
		fanoutServerUpdate(ctx, state, serverID,
			wire.ClientUpdate{Event: wire.EventChannelDeleted, ServerID: &serverID, ChannelID: &channelID},
			wire.FederationUpdate{Event: wire.EventChannelDeleted, ServerID: &serverID, ChannelID: &channelID})
		return nil
	}

	host := *targetHost
	if session.UserRef == nil {
		return apperr.Internal("User reference required for federated channel deletion")
	}
	reply, err := request(ctx, state, host, session.UserRef, wire.FederationRequest{
		Action:    wire.ActionChannelsDelete,
		ServerID:  &serverID,
		ChannelID: &channelID,
	})
	if err != nil {
		return err
	}
	if reply.Result != wire.ActionChannelsDelete {
		return apperr.Internalf("Unexpected federation reply from %s for channels.delete", host)
	}
	return nil
}

// Auth requirements for channel operations.

func ChannelsCreateAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.ServerAdmin(serverID).OrAdmin().ClientOnly()
}

func ChannelsGetAllAuth() *auth.Requirement {
	return auth.HostAdmin().ClientOnly()
}

func ChannelsGetByServerAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.ServerMember(serverID).OrAdmin().ClientOnly()
}

func ChannelsGetByIDAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.ServerMember(serverID).OrAdmin().ClientOnly()
}

func ChannelsDeleteAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.ServerAdmin(serverID).OrAdmin().ClientOnly()
}

func FederatedChannelsCreateAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.ServerAdmin(serverID).FederatedOnly()
}

// FederatedChannelsGetAllAuth is disabled: a host-wide listing would leak
// untargeted data to peers.
func FederatedChannelsGetAllAuth() *auth.Requirement {
	return auth.Never().FederatedOnly()
}

func FederatedChannelsGetByServerAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.ServerMember(serverID).FederatedOnly()
}

func FederatedChannelsGetByIDAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.ServerMember(serverID).FederatedOnly()
}

func FederatedChannelsDeleteAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.ServerAdmin(serverID).FederatedOnly()
}
