package router

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/wire"
)

// handleFederationUpdate converts an inbound federation update into the
// matching client update and delivers it to the local users interested in
// the originating server. The server lives on the peer, so interest is read
// from the mirrored membership rows.
func (r *Router) handleFederationUpdate(ctx context.Context, update *wire.FederationUpdate) error {
	if update.Event == wire.EventRemoteUserDeleted {
		if update.UserRef == nil {
			return fmt.Errorf("remote_user_deleted update missing user_ref")
		}
		r.state.ClientWs.BroadcastUpdate(wire.ClientUpdate{
			Event:   wire.EventUserDeleted,
			UserRef: update.UserRef,
		})
		return nil
	}

	serverID, clientUpdate, err := mapFederationUpdate(update)
	if err != nil {
		return err
	}

	users, err := r.state.Routing.UsersForRemoteServer(ctx, serverID)
	if err != nil {
		return err
	}
	r.state.ClientWs.SendUpdateToUsers(users, clientUpdate)
	return nil
}

// mapFederationUpdate extracts the originating server id and builds the
// client-side rendering of a federation update.
func mapFederationUpdate(update *wire.FederationUpdate) (uuid.UUID, wire.ClientUpdate, error) {
	switch update.Event {
	case wire.EventMembershipUpserted:
		if update.Membership == nil {
			return uuid.Nil, wire.ClientUpdate{}, fmt.Errorf("membership_upserted update missing membership")
		}
		return update.Membership.Server.ID, wire.ClientUpdate{
			Event:      wire.EventMembershipUpserted,
			Membership: update.Membership,
		}, nil

	case wire.EventMembershipDeleted:
		if update.ServerID == nil || update.UserRef == nil {
			return uuid.Nil, wire.ClientUpdate{}, fmt.Errorf("membership_deleted update missing server_id or user_ref")
		}
		return *update.ServerID, wire.ClientUpdate{
			Event:    wire.EventMembershipDeleted,
			ServerID: update.ServerID,
			UserRef:  update.UserRef,
		}, nil

	case wire.EventServerUpserted:
		if update.Server == nil {
			return uuid.Nil, wire.ClientUpdate{}, fmt.Errorf("server_upserted update missing server")
		}
		return update.Server.ID, wire.ClientUpdate{
			Event:  wire.EventServerUpserted,
			Server: update.Server,
		}, nil

	case wire.EventServerDeleted:
		if update.ServerID == nil {
			return uuid.Nil, wire.ClientUpdate{}, fmt.Errorf("server_deleted update missing server_id")
		}
		return *update.ServerID, wire.ClientUpdate{
			Event:    wire.EventServerDeleted,
			ServerID: update.ServerID,
		}, nil

	case wire.EventChannelUpserted:
		if update.Channel == nil {
			return uuid.Nil, wire.ClientUpdate{}, fmt.Errorf("channel_upserted update missing channel")
		}
		return update.Channel.ServerID, wire.ClientUpdate{
			Event:   wire.EventChannelUpserted,
			Channel: update.Channel,
		}, nil

	case wire.EventChannelDeleted:
		if update.ServerID == nil || update.ChannelID == nil {
			return uuid.Nil, wire.ClientUpdate{}, fmt.Errorf("channel_deleted update missing server_id or channel_id")
		}
		return *update.ServerID, wire.ClientUpdate{
			Event:     wire.EventChannelDeleted,
			ServerID:  update.ServerID,
			ChannelID: update.ChannelID,
		}, nil

	case wire.EventMessageUpserted:
		if update.ServerID == nil || update.Message == nil {
			return uuid.Nil, wire.ClientUpdate{}, fmt.Errorf("message_upserted update missing server_id or message")
		}
		return *update.ServerID, wire.ClientUpdate{
			Event:   wire.EventMessageUpserted,
			Message: update.Message,
		}, nil

	case wire.EventMessageDeleted:
		if update.ServerID == nil || update.ChannelID == nil || update.MessageID == nil {
			return uuid.Nil, wire.ClientUpdate{}, fmt.Errorf("message_deleted update missing ids")
		}
		return *update.ServerID, wire.ClientUpdate{
			Event:     wire.EventMessageDeleted,
			ServerID:  update.ServerID,
			ChannelID: update.ChannelID,
			MessageID: update.MessageID,
		}, nil

	default:
		return uuid.Nil, wire.ClientUpdate{}, fmt.Errorf("unknown federation update event %q", update.Event)
	}
}
