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

// verifyMessageScope checks that the message belongs to the channel and the
// channel to the server, returning auth errors rather than not-found so a
// forged path does not reveal what exists elsewhere.
func verifyMessageScope(ctx context.Context, state *app.State, serverID, channelID, messageID uuid.UUID) (*models.Message, error) {
	message, err := state.Store.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.ChannelID != channelID {
		return nil, apperr.Auth("Message not found in specified channel")
	}
	channel, err := state.Store.GetChannelByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.ServerID != serverID {
		return nil, apperr.Auth("Message not found in specified server")
	}
	return message, nil
}

// CreateMessage creates a message, locally (with fanout) or on the target
// host with the caller's delegation.
func CreateMessage(ctx context.Context, state *app.State, session *auth.Session, serverID, channelID uuid.UUID, newMessage *models.NewMessage, targetHost *string) (*models.Message, error) {
	if !state.Config.IsRemoteHost(targetHost) {
		channel, err := state.Store.GetChannelByID(ctx, channelID)
		if err != nil {
			return nil, err
		}
		if channel.ServerID != serverID {
			return nil, apperr.Auth("Channel not found in specified server")
		}
		if err := state.Store.EnsureUserExists(ctx, newMessage.Author); err != nil {
			return nil, err
		}
		message, err := state.Store.InsertMessage(ctx, channelID, newMessage)
		if err != nil {
			return nil, err
		}
		fanoutServerUpdate(ctx, state, serverID,
			wire.ClientUpdate{Event: wire.EventMessageUpserted, Message: message},
			wire.FederationUpdate{Event: wire.EventMessageUpserted, ServerID: &serverID, Message: message})
		return message, nil
	}

	host := *targetHost
	if session.UserRef == nil {
		return nil, apperr.Internal("User reference required for federated message creation")
	}
	reply, err := request(ctx, state, host, session.UserRef, wire.FederationRequest{
		Action:     wire.ActionMessagesCreate,
		ServerID:   &serverID,
		ChannelID:  &channelID,
		NewMessage: newMessage,
	})
	if err != nil {
		return nil, err
	}
	if reply.Result != wire.ActionMessagesCreate || reply.Message == nil {
		return nil, apperr.Internalf("Unexpected federation reply from %s for messages.create", host)
	}
	return reply.Message, nil
}

// GetAllMessages lists every message, locally or from the target host.
func GetAllMessages(ctx context.Context, state *app.State, session *auth.Session, targetHost *string) ([]models.Message, error) {
	if !state.Config.IsRemoteHost(targetHost) {
		return state.Store.GetAllMessages(ctx)
	}
	host := *targetHost
	if session.UserRef == nil {
		return nil, apperr.Internal("User reference required for federated message fetching")
	}
	reply, err := request(ctx, state, host, session.UserRef, wire.FederationRequest{Action: wire.ActionMessagesGetAll})
	if err != nil {
		return nil, err
	}
	if reply.Result != wire.ActionMessagesGetAll {
		return nil, apperr.Internalf("Unexpected federation reply from %s for messages.get_all", host)
	}
	return reply.Messages, nil
}

// GetMessagesByServer lists a server's messages, locally or from the target
// host.
func GetMessagesByServer(ctx context.Context, state *app.State, session *auth.Session, serverID uuid.UUID, targetHost *string) ([]models.Message, error) {
	if !state.Config.IsRemoteHost(targetHost) {
		return state.Store.GetMessagesByServer(ctx, serverID)
	}
	host := *targetHost
	if session.UserRef == nil {
		return nil, apperr.Internal("User reference required for federated message fetching")
	}
	reply, err := request(ctx, state, host, session.UserRef, wire.FederationRequest{
		Action:   wire.ActionMessagesGetByServer,
		ServerID: &serverID,
	})
	if err != nil {
		return nil, err
	}
	if reply.Result != wire.ActionMessagesGetByServer {
		return nil, apperr.Internalf("Unexpected federation reply from %s for messages.get_by_server", host)
	}
	return reply.Messages, nil
}

// GetMessagesByChannel lists a channel's messages, locally or from the
// target host.
func GetMessagesByChannel(ctx context.Context, state *app.State, session *auth.Session, serverID, channelID uuid.UUID, targetHost *string) ([]models.Message, error) {
	if !state.Config.IsRemoteHost(targetHost) {
		return state.Store.GetMessagesByChannel(ctx, channelID)
	}
	host := *targetHost
	if session.UserRef == nil {
		return nil, apperr.Internal("User reference required for federated message fetching")
	}
	reply, err := request(ctx, state, host, session.UserRef, wire.FederationRequest{
		Action:    wire.ActionMessagesGetByChannel,
		ServerID:  &serverID,
		ChannelID: &channelID,
	})
	if err != nil {
		return nil, err
	}
	if reply.Result != wire.ActionMessagesGetByChannel {
		return nil, apperr.Internalf("Unexpected federation reply from %s for messages.get_by_channel", host)
	}
	return reply.Messages, nil
}

// GetMessageByID fetches one message with server and channel scope checks.
func GetMessageByID(ctx context.Context, state *app.State, session *auth.Session, serverID, channelID, messageID uuid.UUID, targetHost *string) (*models.Message, error) {
	if !state.Config.IsRemoteHost(targetHost) {
		return verifyMessageScope(ctx, state, serverID, channelID, messageID)
	}
	host := *targetHost
	if session.UserRef == nil {
		return nil, apperr.Internal("User reference required for federated message fetching")
	}
	reply, err := request(ctx, state, host, session.UserRef, wire.FederationRequest{
		Action:    wire.ActionMessagesGetByID,
		ServerID:  &serverID,
		ChannelID: &channelID,
		MessageID: &messageID,
	})
	if err != nil {
		return nil, err
	}
	if reply.Result != wire.ActionMessagesGetByID || reply.Message == nil {
		return nil, apperr.Internalf("Unexpected federation reply from %s for messages.get_by_id", host)
	}
	return reply.Message, nil
}

// DeleteMessage deletes a message, locally (with fanout) or on the target
// host.
func DeleteMessage(ctx context.Context, state *app.State, session *auth.Session, serverID, channelID, messageID uuid.UUID, targetHost *string) error {
	if !state.Config.IsRemoteHost(targetHost) {
		if _, err := verifyMessageScope(ctx, state, serverID, channelID, messageID); err != nil {
			return err
		}
		if err := state.Store.DeleteMessage(ctx, messageID); err != nil {
			return err
		}
		fanoutServerUpdate(ctx, state, serverID,
			wire.ClientUpdate{Event: wire.EventMessageDeleted, ServerID: &serverID, ChannelID: &channelID, MessageID: &messageID},
			wire.FederationUpdate{Event: wire.EventMessageDeleted, ServerID: &serverID, ChannelID: &channelID, MessageID: &messageID})
		return nil
	}

	host := *targetHost
	if session.UserRef == nil {
		return apperr.Internal("User reference required for federated message deletion")
	}
	reply, err := request(ctx, state, host, session.UserRef, wire.FederationRequest{
		Action:    wire.ActionMessagesDelete,
		ServerID:  &serverID,
		ChannelID: &channelID,
		MessageID: &messageID,
	})
	if err != nil {
		return err
	}
	if reply.Result != wire.ActionMessagesDelete {
		return apperr.Internalf("Unexpected federation reply from %s for messages.delete", host)
	}
	return nil
}

// Auth requirements for message operations.

func MessagesCreateAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.ServerMember(serverID).OrAdmin().ClientOnly()
}

func MessagesGetAllAuth() *auth.Requirement {
	return auth.HostAdmin().ClientOnly()
}

func MessagesGetByServerAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.ServerMember(serverID).OrAdmin().ClientOnly()
}

func MessagesGetByChannelAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.ServerMember(serverID).OrAdmin().ClientOnly()
}

func MessagesGetByIDAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.ServerMember(serverID).OrAdmin().ClientOnly()
}

// messagesDeleteBase consults the store to decide whether the author may
// delete alongside server admins; an authorless message is admin-only.
func messagesDeleteBase(ctx context.Context, state *app.State, serverID, messageID uuid.UUID) (*auth.Requirement, error) {
	message, err := state.Store.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.Author != nil {
		return auth.Or(auth.User(message.Author.Ref()), auth.ServerAdmin(serverID)), nil
	}
	return auth.ServerAdmin(serverID), nil
}

// MessagesDeleteRemoteAuth is the local gate for a delete that will be
// delegated: the caller just needs a client identity, the home host
// enforces the author rule.
func MessagesDeleteRemoteAuth() *auth.Requirement {
	return auth.Client()
}

// MessagesDeleteAuth is an async requirement factory: the author decides
// the rule, so the store is consulted first.
func MessagesDeleteAuth(ctx context.Context, state *app.State, serverID, messageID uuid.UUID) (*auth.Requirement, error) {
	base, err := messagesDeleteBase(ctx, state, serverID, messageID)
	if err != nil {
		return nil, err
	}
	return base.OrAdmin().ClientOnly(), nil
}

func FederatedMessagesCreateAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.ServerMember(serverID).FederatedOnly()
}

// FederatedMessagesGetAllAuth is disabled: a host-wide listing would leak
// untargeted data to peers.
func FederatedMessagesGetAllAuth() *auth.Requirement {
	return auth.Never().FederatedOnly()
}

func FederatedMessagesGetByServerAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.ServerMember(serverID).FederatedOnly()
}

func FederatedMessagesGetByChannelAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.ServerMember(serverID).FederatedOnly()
}

func FederatedMessagesGetByIDAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.ServerMember(serverID).FederatedOnly()
}

// FederatedMessagesDeleteAuth mirrors the client rule over federation. It
// does not yet verify the author shares the server's host.
func FederatedMessagesDeleteAuth(ctx context.Context, state *app.State, serverID, messageID uuid.UUID) (*auth.Requirement, error) {
	base, err := messagesDeleteBase(ctx, state, serverID, messageID)
	if err != nil {
		return nil, err
	}
	return base.FederatedOnly(), nil
}
