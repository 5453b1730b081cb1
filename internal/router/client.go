package router

import (
	"context"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/apperr"
	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/ops"
	"github.com/runelink/runelink/internal/wire"
)

// HandleClientEnvelope dispatches one inbound client frame. Only request
// envelopes are meaningful from clients; anything else is logged and
// dropped.
func (r *Router) HandleClientEnvelope(ctx context.Context, connID uuid.UUID, env *wire.ClientEnvelope) {
	switch env.Type {
	case wire.TypeRequest:
		requestID := *env.RequestID
		reply, err := r.handleClientRequest(ctx, connID, env.Request)
		if err != nil {
			if !r.state.ClientWs.SendErrorToConnection(connID, &requestID, wsError(err)) {
				r.state.Logger.Warn("failed to send client websocket error", "request_id", requestID)
			}
			return
		}
		if !r.state.ClientWs.SendReplyToConnection(connID, requestID, *reply) {
			r.state.Logger.Warn("failed to send client websocket reply", "request_id", requestID)
		}
	default:
		r.state.Logger.Warn("ignoring client websocket envelope", "type", env.Type)
	}
}

// handleClientRequest runs one typed client request and produces its typed
// reply; the reply's result tag always matches the request's action.
func (r *Router) handleClientRequest(ctx context.Context, connID uuid.UUID, req *wire.ClientRequest) (*wire.ClientReply, error) {
	switch req.Action {
	case wire.ActionPing:
		return &wire.ClientReply{Result: wire.ActionPing}, nil

	case wire.ActionOidcDiscovery:
		doc := ops.OidcDiscovery(r.state)
		return &wire.ClientReply{Result: wire.ActionOidcDiscovery, Discovery: &doc}, nil

	case wire.ActionOidcJwks:
		jwks := r.state.Keys.Jwks()
		return &wire.ClientReply{Result: wire.ActionOidcJwks, Jwks: &jwks}, nil

	case wire.ActionConnectionState:
		state := wire.ClientConnectionState{State: wire.StateUnauthenticated}
		if ref, ok := r.state.ClientWs.AuthenticatedUser(connID); ok {
			state = wire.ClientConnectionState{State: wire.StateAuthenticated, UserRef: &ref}
		}
		return &wire.ClientReply{Result: wire.ActionConnectionState, ConnectionState: &state}, nil

	case wire.ActionAuthTokenAccess:
		if req.TokenAccess == nil {
			return nil, apperr.BadRequest("Missing access token")
		}
		claims, err := r.state.Tokens.VerifyClientAccess(req.TokenAccess.AccessToken)
		if err != nil {
			return nil, err
		}
		ref, ok := models.ParseSubject(claims.Sub)
		if !ok {
			return nil, apperr.Auth("Invalid token subject (expected name@host)")
		}
		if !r.state.ClientWs.Authenticate(connID, ref) {
			return nil, apperr.Internal("Client websocket connection not registered")
		}
		return &wire.ClientReply{
			Result: wire.ActionAuthTokenAccess,
			ConnectionState: &wire.ClientConnectionState{
				State: wire.StateAuthenticated, UserRef: &ref,
			},
		}, nil

	case wire.ActionAuthSignup, wire.ActionAuthTokenPassword, wire.ActionAuthTokenRefresh,
		wire.ActionAuthUserinfo, wire.ActionAuthRegisterClient:
		return nil, apperr.BadRequest("This auth operation is not implemented over websocket")

	case wire.ActionUsersCreate:
		if req.NewUser == nil {
			return nil, apperr.BadRequest("Missing new_user")
		}
		session, err := r.authorizeClient(ctx, connID, ops.UsersCreateAuth())
		if err != nil {
			return nil, err
		}
		user, err := ops.CreateUser(ctx, r.state, session, req.NewUser)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionUsersCreate, User: user}, nil

	case wire.ActionUsersGetAll:
		users, err := ops.GetAllUsers(ctx, r.state, req.TargetHost)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionUsersGetAll, Users: users}, nil

	case wire.ActionUsersGetByRef:
		if req.UserRef == nil {
			return nil, apperr.BadRequest("Missing user_ref")
		}
		user, err := ops.GetUserByRef(ctx, r.state, *req.UserRef)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionUsersGetByRef, User: user}, nil

	case wire.ActionUsersGetAssociatedHosts:
		if req.UserRef == nil {
			return nil, apperr.BadRequest("Missing user_ref")
		}
		hosts, err := ops.GetAssociatedHosts(ctx, r.state, *req.UserRef, req.TargetHost)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionUsersGetAssociatedHosts, Hosts: hosts}, nil

	case wire.ActionUsersDelete:
		if req.UserRef == nil {
			return nil, apperr.BadRequest("Missing user_ref")
		}
		session, err := r.authorizeClient(ctx, connID, ops.UsersDeleteAuth(*req.UserRef))
		if err != nil {
			return nil, err
		}
		if err := ops.DeleteHomeUser(ctx, r.state, session, *req.UserRef); err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionUsersDelete}, nil

	case wire.ActionMembershipsGetByUser:
		if req.UserRef == nil {
			return nil, apperr.BadRequest("Missing user_ref")
		}
		memberships, err := ops.GetMembershipsByUser(ctx, r.state, *req.UserRef)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionMembershipsGetByUser, Memberships: memberships}, nil

	case wire.ActionMembershipsGetMembersByServer:
		if req.ServerID == nil {
			return nil, apperr.BadRequest("Missing server_id")
		}
		members, err := ops.GetMembersByServer(ctx, r.state, *req.ServerID, req.TargetHost)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionMembershipsGetMembersByServer, Members: members}, nil

	case wire.ActionMembershipsGetByUserAndServer:
		if req.ServerID == nil || req.UserRef == nil {
			return nil, apperr.BadRequest("Missing server_id or user_ref")
		}
		member, err := ops.GetMemberByUserAndServer(ctx, r.state, *req.ServerID, *req.UserRef, req.TargetHost)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionMembershipsGetByUserAndServer, Member: member}, nil

	case wire.ActionMembershipsCreate:
		if req.ServerID == nil || req.NewMembership == nil {
			return nil, apperr.BadRequest("Missing server_id or new_membership")
		}
		if *req.ServerID != req.NewMembership.ServerID {
			return nil, apperr.BadRequest("Server ID in path does not match server ID in membership")
		}
		session, err := r.authorizeClient(ctx, connID, ops.MembershipsCreateAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		membership, err := ops.CreateMembership(ctx, r.state, session, req.NewMembership)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionMembershipsCreate, Membership: membership}, nil

	case wire.ActionMembershipsDelete:
		if req.ServerID == nil || req.UserRef == nil {
			return nil, apperr.BadRequest("Missing server_id or user_ref")
		}
		session, err := r.authorizeClient(ctx, connID, ops.MembershipsDeleteAuth(*req.ServerID, *req.UserRef))
		if err != nil {
			return nil, err
		}
		if err := ops.DeleteMembership(ctx, r.state, session, *req.ServerID, *req.UserRef, req.TargetHost); err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionMembershipsDelete}, nil

	case wire.ActionServersCreate:
		if req.NewServer == nil {
			return nil, apperr.BadRequest("Missing new_server")
		}
		session, err := r.authorizeClient(ctx, connID, ops.ServersCreateAuth())
		if err != nil {
			return nil, err
		}
		server, err := ops.CreateServer(ctx, r.state, session, req.NewServer, req.TargetHost)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionServersCreate, Server: server}, nil

	case wire.ActionServersGetAll:
		servers, err := ops.GetAllServers(ctx, r.state, req.TargetHost)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionServersGetAll, Servers: servers}, nil

	case wire.ActionServersGetByID:
		if req.ServerID == nil {
			return nil, apperr.BadRequest("Missing server_id")
		}
		server, err := ops.GetServerByID(ctx, r.state, *req.ServerID, req.TargetHost)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionServersGetByID, Server: server}, nil

	case wire.ActionServersGetWithChannels:
		if req.ServerID == nil {
			return nil, apperr.BadRequest("Missing server_id")
		}
		session, err := r.authorizeClient(ctx, connID, ops.ServersGetWithChannelsAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		full, err := ops.GetServerWithChannels(ctx, r.state, session, *req.ServerID, req.TargetHost)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionServersGetWithChannels, ServerFull: full}, nil

	case wire.ActionServersDelete:
		if req.ServerID == nil {
			return nil, apperr.BadRequest("Missing server_id")
		}
		session, err := r.authorizeClient(ctx, connID, ops.ServersDeleteAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		if err := ops.DeleteServer(ctx, r.state, session, *req.ServerID, req.TargetHost); err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionServersDelete}, nil

	case wire.ActionChannelsCreate:
		if req.ServerID == nil || req.NewChannel == nil {
			return nil, apperr.BadRequest("Missing server_id or new_channel")
		}
		session, err := r.authorizeClient(ctx, connID, ops.ChannelsCreateAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		channel, err := ops.CreateChannel(ctx, r.state, session, *req.ServerID, req.NewChannel, req.TargetHost)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionChannelsCreate, Channel: channel}, nil

	case wire.ActionChannelsGetAll:
		session, err := r.authorizeClient(ctx, connID, ops.ChannelsGetAllAuth())
		if err != nil {
			return nil, err
		}
		channels, err := ops.GetAllChannels(ctx, r.state, session, req.TargetHost)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionChannelsGetAll, Channels: channels}, nil

	case wire.ActionChannelsGetByServer:
		if req.ServerID == nil {
			return nil, apperr.BadRequest("Missing server_id")
		}
		session, err := r.authorizeClient(ctx, connID, ops.ChannelsGetByServerAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		channels, err := ops.GetChannelsByServer(ctx, r.state, session, *req.ServerID, req.TargetHost)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionChannelsGetByServer, Channels: channels}, nil

	case wire.ActionChannelsGetByID:
		if req.ServerID == nil || req.ChannelID == nil {
			return nil, apperr.BadRequest("Missing server_id or channel_id")
		}
		session, err := r.authorizeClient(ctx, connID, ops.ChannelsGetByIDAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		channel, err := ops.GetChannelByID(ctx, r.state, session, *req.ServerID, *req.ChannelID, req.TargetHost)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionChannelsGetByID, Channel: channel}, nil

	case wire.ActionChannelsDelete:
		if req.ServerID == nil || req.ChannelID == nil {
			return nil, apperr.BadRequest("Missing server_id or channel_id")
		}
		session, err := r.authorizeClient(ctx, connID, ops.ChannelsDeleteAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		if err := ops.DeleteChannel(ctx, r.state, session, *req.ServerID, *req.ChannelID, req.TargetHost); err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionChannelsDelete}, nil

	case wire.ActionMessagesCreate:
		if req.ServerID == nil || req.ChannelID == nil || req.NewMessage == nil {
			return nil, apperr.BadRequest("Missing server_id, channel_id, or new_message")
		}
		session, err := r.authorizeClient(ctx, connID, ops.MessagesCreateAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		message, err := ops.CreateMessage(ctx, r.state, session, *req.ServerID, *req.ChannelID, req.NewMessage, req.TargetHost)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionMessagesCreate, Message: message}, nil

	case wire.ActionMessagesGetAll:
		session, err := r.authorizeClient(ctx, connID, ops.MessagesGetAllAuth())
		if err != nil {
			return nil, err
		}
		messages, err := ops.GetAllMessages(ctx, r.state, session, req.TargetHost)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionMessagesGetAll, Messages: messages}, nil

	case wire.ActionMessagesGetByServer:
		if req.ServerID == nil {
			return nil, apperr.BadRequest("Missing server_id")
		}
		session, err := r.authorizeClient(ctx, connID, ops.MessagesGetByServerAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		messages, err := ops.GetMessagesByServer(ctx, r.state, session, *req.ServerID, req.TargetHost)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionMessagesGetByServer, Messages: messages}, nil

	case wire.ActionMessagesGetByChannel:
		if req.ServerID == nil || req.ChannelID == nil {
			return nil, apperr.BadRequest("Missing server_id or channel_id")
		}
		session, err := r.authorizeClient(ctx, connID, ops.MessagesGetByChannelAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		messages, err := ops.GetMessagesByChannel(ctx, r.state, session, *req.ServerID, *req.ChannelID, req.TargetHost)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionMessagesGetByChannel, Messages: messages}, nil

	case wire.ActionMessagesGetByID:
		if req.ServerID == nil || req.ChannelID == nil || req.MessageID == nil {
			return nil, apperr.BadRequest("Missing server_id, channel_id, or message_id")
		}
		session, err := r.authorizeClient(ctx, connID, ops.MessagesGetByIDAuth(*req.ServerID))
		if err != nil {
			return nil, err
		}
		message, err := ops.GetMessageByID(ctx, r.state, session, *req.ServerID, *req.ChannelID, *req.MessageID, req.TargetHost)
		if err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionMessagesGetByID, Message: message}, nil

	case wire.ActionMessagesDelete:
		if req.ServerID == nil || req.ChannelID == nil || req.MessageID == nil {
			return nil, apperr.BadRequest("Missing server_id, channel_id, or message_id")
		}
		requirement := ops.MessagesDeleteRemoteAuth()
		if !r.state.Config.IsRemoteHost(req.TargetHost) {
			built, err := ops.MessagesDeleteAuth(ctx, r.state, *req.ServerID, *req.MessageID)
			if err != nil {
				return nil, err
			}
			requirement = built
		}
		session, err := r.authorizeClient(ctx, connID, requirement)
		if err != nil {
			return nil, err
		}
		if err := ops.DeleteMessage(ctx, r.state, session, *req.ServerID, *req.ChannelID, *req.MessageID, req.TargetHost); err != nil {
			return nil, err
		}
		return &wire.ClientReply{Result: wire.ActionMessagesDelete}, nil

	default:
		return nil, apperr.BadRequest("Unknown action")
	}
}
