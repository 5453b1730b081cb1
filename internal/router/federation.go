package router

import (
	"context"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/apperr"
	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/ops"
	"github.com/runelink/runelink/internal/wire"
)

// HandleFederationEnvelope dispatches one inbound federation frame:
// requests run an operation under the federated auth rule, replies and
// errors complete their waiting callers, and updates feed the ingress.
func (r *Router) HandleFederationEnvelope(ctx context.Context, connID uuid.UUID, env *wire.FederationEnvelope) {
	switch env.Type {
	case wire.TypeRequest:
		requestID := *env.RequestID
		reply, err := r.handleFederationRequest(ctx, connID, env.DelegatedUserRef, env.Request)
		if err != nil {
			if !r.state.Federation.SendErrorToConnection(connID, &requestID, wsError(err)) {
				r.state.Logger.Warn("failed to send federation websocket error", "request_id", requestID)
			}
			return
		}
		if !r.state.Federation.SendReplyToConnection(connID, requestID, *reply) {
			r.state.Logger.Warn("failed to send federation websocket reply", "request_id", requestID)
		}

	case wire.TypeReply, wire.TypeError:
		if !r.state.Federation.ResolveResponse(env) {
			r.state.Logger.Warn("unmatched federation websocket response envelope")
		}

	case wire.TypeUpdate:
		if err := r.handleFederationUpdate(ctx, env.Update); err != nil {
			r.state.Logger.Warn("failed handling federation websocket update", "error", err.Error())
		}
	}
}

// handleFederationRequest runs one typed federation request. Delegated user
// references ride through to the auth rule and the operation's session.
func (r *Router) handleFederationRequest(ctx context.Context, connID uuid.UUID, delegated *models.UserRef, req *wire.FederationRequest) (*wire.FederationReply, error) {
	switch req.Action {
	case wire.ActionConnectionState:
		state := wire.FederationConnectionState{State: wire.StateUnauthenticated}
		if host, ok := r.state.Federation.AuthenticatedHost(connID); ok {
			state = wire.FederationConnectionState{State: wire.StateAuthenticated, Host: &host}
		}
		return &wire.FederationReply{Result: wire.ActionConnectionState, ConnectionState: &state}, nil

	case wire.ActionUsersGetAll:
		users, err := ops.GetAllUsers(ctx, r.state, nil)
		if err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionUsersGetAll, Users: users}, nil

	case wire.ActionUsersGetByRef:
		if req.UserRef == nil {
			return nil, apperr.BadRequest("Missing user_ref")
		}
		user, err := ops.GetUserByRef(ctx, r.state, *req.UserRef)
		if err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionUsersGetByRef, User: user}, nil

	case wire.ActionUsersGetAssociatedHosts:
		if req.UserRef == nil {
			return nil, apperr.BadRequest("Missing user_ref")
		}
		hosts, err := ops.GetAssociatedHosts(ctx, r.state, *req.UserRef, nil)
		if err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionUsersGetAssociatedHosts, Hosts: hosts}, nil

	case wire.ActionUsersDelete:
		if req.UserRef == nil {
			return nil, apperr.BadRequest("Missing user_ref")
		}
		session, err := r.authorizeFederation(ctx, connID, req.UserRef, ops.FederatedUsersDeleteAuth(*req.UserRef))
		if err != nil {
			return nil, err
		}
		if err := ops.DeleteRemoteUserRecord(ctx, r.state, session, *req.UserRef); err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionUsersDelete}, nil

	case wire.ActionMembershipsCreate:
		if req.ServerID == nil || req.NewMembership == nil {
			return nil, apperr.BadRequest("Missing server_id or new_membership")
		}
		if *req.ServerID != req.NewMembership.ServerID {
			return nil, apperr.BadRequest("Server ID in path does not match server ID in membership")
		}
		userHost := req.NewMembership.UserRef.Host
		if !r.state.Config.IsRemoteHost(&userHost) {
			return nil, apperr.BadRequest("User host in membership should not match local host")
		}
		ref := req.NewMembership.UserRef
		session, err := r.authorizeFederation(ctx, connID, &ref, ops.FederatedMembershipsCreateAuth(*req.ServerID, ref))
		if err != nil {
			return nil, err
		}
		membership, err := ops.CreateMembership(ctx, r.state, session, req.NewMembership)
		if err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionMembershipsCreate, Membership: membership}, nil

	case wire.ActionMembershipsGetByUser:
		if req.UserRef == nil {
			return nil, apperr.BadRequest("Missing user_ref")
		}
		memberships, err := ops.GetMembershipsByUser(ctx, r.state, *req.UserRef)
		if err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionMembershipsGetByUser, Memberships: memberships}, nil

	case wire.ActionMembershipsDelete:
		if req.ServerID == nil || req.UserRef == nil {
			return nil, apperr.BadRequest("Missing server_id or user_ref")
		}
		session, err := r.authorizeFederation(ctx, connID, req.UserRef, ops.FederatedMembershipsDeleteAuth(*req.ServerID, *req.UserRef))
		if err != nil {
			return nil, err
		}
		if err := ops.DeleteMembership(ctx, r.state, session, *req.ServerID, *req.UserRef, nil); err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionMembershipsDelete}, nil

	case wire.ActionMembershipsGetMembersByServer:
		if req.ServerID == nil {
			return nil, apperr.BadRequest("Missing server_id")
		}
		members, err := ops.GetMembersByServer(ctx, r.state, *req.ServerID, nil)
		if err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionMembershipsGetMembersByServer, Members: members}, nil

	case wire.ActionMembershipsGetByUserAndServer:
		if req.ServerID == nil || req.UserRef == nil {
			return nil, apperr.BadRequest("Missing server_id or user_ref")
		}
		member, err := ops.GetMemberByUserAndServer(ctx, r.state, *req.ServerID, *req.UserRef, nil)
		if err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionMembershipsGetByUserAndServer, Member: member}, nil

	case wire.ActionServersCreate:
		if req.NewServer == nil {
			return nil, apperr.BadRequest("Missing new_server")
		}
		session, err := r.authorizeFederation(ctx, connID, delegated, ops.FederatedServersCreateAuth())
		if err != nil {
			return nil, err
		}
		server, err := ops.CreateServer(ctx, r.state, session, req.NewServer, nil)
		if err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionServersCreate, Server: server}, nil

	case wire.ActionServersDelete:
		if req.ServerID == nil {
			return nil, apperr.BadRequest("Missing server_id")
		}
		session, err := r.authorizeFederation(ctx, connID, delegated, ops.FederatedServersDeleteAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		if err := ops.DeleteServer(ctx, r.state, session, *req.ServerID, nil); err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionServersDelete}, nil

	case wire.ActionServersGetAll:
		servers, err := ops.GetAllServers(ctx, r.state, nil)
		if err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionServersGetAll, Servers: servers}, nil

	case wire.ActionServersGetByID:
		if req.ServerID == nil {
			return nil, apperr.BadRequest("Missing server_id")
		}
		server, err := ops.GetServerByID(ctx, r.state, *req.ServerID, nil)
		if err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionServersGetByID, Server: server}, nil

	case wire.ActionServersGetWithChannels:
		if req.ServerID == nil {
			return nil, apperr.BadRequest("Missing server_id")
		}
		session, err := r.authorizeFederation(ctx, connID, delegated, ops.FederatedServersGetWithChannelsAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		full, err := ops.GetServerWithChannels(ctx, r.state, session, *req.ServerID, nil)
		if err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionServersGetWithChannels, ServerFull: full}, nil

	case wire.ActionChannelsCreate:
		if req.ServerID == nil || req.NewChannel == nil {
			return nil, apperr.BadRequest("Missing server_id or new_channel")
		}
		session, err := r.authorizeFederation(ctx, connID, delegated, ops.FederatedChannelsCreateAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		channel, err := ops.CreateChannel(ctx, r.state, session, *req.ServerID, req.NewChannel, nil)
		if err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionChannelsCreate, Channel: channel}, nil

	case wire.ActionChannelsGetAll:
		session, err := r.authorizeFederation(ctx, connID, delegated, ops.FederatedChannelsGetAllAuth())
		if err != nil {
			return nil, err
		}
		channels, err := ops.GetAllChannels(ctx, r.state, session, nil)
		if err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionChannelsGetAll, Channels: channels}, nil

	case wire.ActionChannelsGetByServer:
		if req.ServerID == nil {
			return nil, apperr.BadRequest("Missing server_id")
		}
		session, err := r.authorizeFederation(ctx, connID, delegated, ops.FederatedChannelsGetByServerAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		channels, err := ops.GetChannelsByServer(ctx, r.state, session, *req.ServerID, nil)
		if err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionChannelsGetByServer, Channels: channels}, nil

	case wire.ActionChannelsGetByID:
		if req.ServerID == nil || req.ChannelID == nil {
			return nil, apperr.BadRequest("Missing server_id or channel_id")
		}
		session, err := r.authorizeFederation(ctx, connID, delegated, ops.FederatedChannelsGetByIDAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		channel, err := ops.GetChannelByID(ctx, r.state, session, *req.ServerID, *req.ChannelID, nil)
		if err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionChannelsGetByID, Channel: channel}, nil

	case wire.ActionChannelsDelete:
		if req.ServerID == nil || req.ChannelID == nil {
			return nil, apperr.BadRequest("Missing server_id or channel_id")
		}
		session, err := r.authorizeFederation(ctx, connID, delegated, ops.FederatedChannelsDeleteAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		if err := ops.DeleteChannel(ctx, r.state, session, *req.ServerID, *req.ChannelID, nil); err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionChannelsDelete}, nil

	case wire.ActionMessagesCreate:
		if req.ServerID == nil || req.ChannelID == nil || req.NewMessage == nil {
			return nil, apperr.BadRequest("Missing server_id, channel_id, or new_message")
		}
		session, err := r.authorizeFederation(ctx, connID, delegated, ops.FederatedMessagesCreateAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		message, err := ops.CreateMessage(ctx, r.state, session, *req.ServerID, *req.ChannelID, req.NewMessage, nil)
		if err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionMessagesCreate, Message: message}, nil

	case wire.ActionMessagesGetAll:
		session, err := r.authorizeFederation(ctx, connID, delegated, ops.FederatedMessagesGetAllAuth())
		if err != nil {
			return nil, err
		}
		messages, err := ops.GetAllMessages(ctx, r.state, session, nil)
		if err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionMessagesGetAll, Messages: messages}, nil

	case wire.ActionMessagesGetByServer:
		if req.ServerID == nil {
			return nil, apperr.BadRequest("Missing server_id")
		}
		session, err := r.authorizeFederation(ctx, connID, delegated, ops.FederatedMessagesGetByServerAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		messages, err := ops.GetMessagesByServer(ctx, r.state, session, *req.ServerID, nil)
		if err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionMessagesGetByServer, Messages: messages}, nil

	case wire.ActionMessagesGetByChannel:
		if req.ServerID == nil || req.ChannelID == nil {
			return nil, apperr.BadRequest("Missing server_id or channel_id")
		}
		session, err := r.authorizeFederation(ctx, connID, delegated, ops.FederatedMessagesGetByChannelAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		messages, err := ops.GetMessagesByChannel(ctx, r.state, session, *req.ServerID, *req.ChannelID, nil)
		if err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionMessagesGetByChannel, Messages: messages}, nil

	case wire.ActionMessagesGetByID:
		if req.ServerID == nil || req.ChannelID == nil || req.MessageID == nil {
			return nil, apperr.BadRequest("Missing server_id, channel_id, or message_id")
		}
		session, err := r.authorizeFederation(ctx, connID, delegated, ops.FederatedMessagesGetByIDAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		message, err := ops.GetMessageByID(ctx, r.state, session, *req.ServerID, *req.ChannelID, *req.MessageID, nil)
		if err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionMessagesGetByID, Message: message}, nil

	case wire.ActionMessagesDelete:
		if req.ServerID == nil || req.ChannelID == nil || req.MessageID == nil {
			return nil, apperr.BadRequest("Missing server_id, channel_id, or message_id")
		}
		requirement, err := ops.FederatedMessagesDeleteAuth(ctx, r.state, *req.ServerID, *req.MessageID)
		if err != nil {
			return nil, err
		}
		session, err := r.authorizeFederation(ctx, connID, delegated, requirement)
		if err != nil {
			return nil, err
		}
		if err := ops.DeleteMessage(ctx, r.state, session, *req.ServerID, *req.ChannelID, *req.MessageID, nil); err != nil {
			return nil, err
		}
		return &wire.FederationReply{Result: wire.ActionMessagesDelete}, nil

	default:
		return nil, apperr.BadRequest("Unknown action")
	}
}
