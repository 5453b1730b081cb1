package wire

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/models"
)

var clientActions = map[string]bool{
	ActionPing: true, ActionOidcDiscovery: true, ActionOidcJwks: true,
	ActionConnectionState: true, ActionAuthSignup: true,
	ActionAuthTokenPassword: true, ActionAuthTokenRefresh: true,
	ActionAuthTokenAccess: true, ActionAuthUserinfo: true,
	ActionAuthRegisterClient: true,
	ActionUsersCreate:        true, ActionUsersGetAll: true,
	ActionUsersGetByRef: true, ActionUsersGetAssociatedHosts: true,
	ActionUsersDelete: true,
	ActionMembershipsCreate: true, ActionMembershipsGetByUser: true,
	ActionMembershipsGetMembersByServer: true,
	ActionMembershipsGetByUserAndServer: true, ActionMembershipsDelete: true,
	ActionServersCreate: true, ActionServersGetAll: true,
	ActionServersGetByID: true, ActionServersGetWithChannels: true,
	ActionServersDelete: true,
	ActionChannelsCreate: true, ActionChannelsGetAll: true,
	ActionChannelsGetByServer: true, ActionChannelsGetByID: true,
	ActionChannelsDelete: true,
	ActionMessagesCreate: true, ActionMessagesGetAll: true,
	ActionMessagesGetByServer: true, ActionMessagesGetByChannel: true,
	ActionMessagesGetByID: true, ActionMessagesDelete: true,
}

var federationActions = map[string]bool{
	ActionConnectionState: true,
	ActionUsersGetAll:     true, ActionUsersGetByRef: true,
	ActionUsersGetAssociatedHosts: true, ActionUsersDelete: true,
	ActionMembershipsCreate: true, ActionMembershipsGetByUser: true,
	ActionMembershipsGetMembersByServer: true,
	ActionMembershipsGetByUserAndServer: true, ActionMembershipsDelete: true,
	ActionServersCreate: true, ActionServersGetAll: true,
	ActionServersGetByID: true, ActionServersGetWithChannels: true,
	ActionServersDelete: true,
	ActionChannelsCreate: true, ActionChannelsGetAll: true,
	ActionChannelsGetByServer: true, ActionChannelsGetByID: true,
	ActionChannelsDelete: true,
	ActionMessagesCreate: true, ActionMessagesGetAll: true,
	ActionMessagesGetByServer: true, ActionMessagesGetByChannel: true,
	ActionMessagesGetByID: true, ActionMessagesDelete: true,
}

var clientEvents = map[string]bool{
	EventUserUpserted: true, EventUserDeleted: true,
	EventMembershipUpserted: true, EventMembershipDeleted: true,
	EventServerUpserted: true, EventServerDeleted: true,
	EventChannelUpserted: true, EventChannelDeleted: true,
	EventMessageUpserted: true, EventMessageDeleted: true,
}

var federationEvents = map[string]bool{
	EventMembershipUpserted: true, EventMembershipDeleted: true,
	EventServerUpserted: true, EventServerDeleted: true,
	EventChannelUpserted: true, EventChannelDeleted: true,
	EventMessageUpserted: true, EventMessageDeleted: true,
	EventRemoteUserDeleted: true,
}

// ParseClientEnvelope decodes and validates a client websocket frame.
func ParseClientEnvelope(data []byte) (*ClientEnvelope, error) {
	var env ClientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding client envelope: %w", err)
	}
	switch env.Type {
	case TypeRequest:
		if env.RequestID == nil || env.Request == nil {
			return nil, fmt.Errorf("client request envelope missing request_id or request")
		}
		if !clientActions[env.Request.Action] {
			return nil, fmt.Errorf("unknown client request action %q", env.Request.Action)
		}
	case TypeReply:
		if env.RequestID == nil || env.Reply == nil {
			return nil, fmt.Errorf("client reply envelope missing request_id or reply")
		}
		if !clientActions[env.Reply.Result] {
			return nil, fmt.Errorf("unknown client reply result %q", env.Reply.Result)
		}
	case TypeError:
		if env.Error == nil {
			return nil, fmt.Errorf("client error envelope missing error")
		}
	case TypeUpdate:
		if env.Update == nil {
			return nil, fmt.Errorf("client update envelope missing update")
		}
		if !clientEvents[env.Update.Event] {
			return nil, fmt.Errorf("unknown client update event %q", env.Update.Event)
		}
	default:
		return nil, fmt.Errorf("unknown client envelope type %q", env.Type)
	}
	return &env, nil
}

// ParseFederationEnvelope decodes and validates a federation websocket frame.
func ParseFederationEnvelope(data []byte) (*FederationEnvelope, error) {
	var env FederationEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding federation envelope: %w", err)
	}
	switch env.Type {
	case TypeRequest:
		if env.RequestID == nil || env.Request == nil {
			return nil, fmt.Errorf("federation request envelope missing request_id or request")
		}
		if !federationActions[env.Request.Action] {
			return nil, fmt.Errorf("unknown federation request action %q", env.Request.Action)
		}
	case TypeReply:
		if env.RequestID == nil || env.Reply == nil {
			return nil, fmt.Errorf("federation reply envelope missing request_id or reply")
		}
		if !federationActions[env.Reply.Result] {
			return nil, fmt.Errorf("unknown federation reply result %q", env.Reply.Result)
		}
	case TypeError:
		if env.Error == nil {
			return nil, fmt.Errorf("federation error envelope missing error")
		}
	case TypeUpdate:
		if env.Update == nil {
			return nil, fmt.Errorf("federation update envelope missing update")
		}
		if !federationEvents[env.Update.Event] {
			return nil, fmt.Errorf("unknown federation update event %q", env.Update.Event)
		}
	default:
		return nil, fmt.Errorf("unknown federation envelope type %q", env.Type)
	}
	return &env, nil
}

// ClientRequestEnvelope frames a client request.
func ClientRequestEnvelope(requestID uuid.UUID, req ClientRequest) ClientEnvelope {
	return ClientEnvelope{Type: TypeRequest, RequestID: &requestID, Request: &req}
}

// ClientReplyEnvelope frames a client reply with a fresh event id.
func ClientReplyEnvelope(requestID uuid.UUID, reply ClientReply) ClientEnvelope {
	return ClientEnvelope{Type: TypeReply, RequestID: &requestID, EventID: NewEventID(), Reply: &reply}
}

// ClientErrorEnvelope frames a client error with a fresh event id.
func ClientErrorEnvelope(requestID *uuid.UUID, wsErr WsError) ClientEnvelope {
	return ClientEnvelope{Type: TypeError, RequestID: requestID, EventID: NewEventID(), Error: &wsErr}
}

// ClientUpdateEnvelope frames a client update with a fresh event id.
func ClientUpdateEnvelope(update ClientUpdate) ClientEnvelope {
	return ClientEnvelope{Type: TypeUpdate, EventID: NewEventID(), Update: &update}
}

// FederationRequestEnvelope frames a federation request with a fresh event id.
func FederationRequestEnvelope(requestID uuid.UUID, delegated *models.UserRef, req FederationRequest) FederationEnvelope {
	return FederationEnvelope{
		Type:             TypeRequest,
		RequestID:        &requestID,
		EventID:          NewEventID(),
		DelegatedUserRef: delegated,
		Request:          &req,
	}
}

// FederationReplyEnvelope frames a federation reply with a fresh event id.
func FederationReplyEnvelope(requestID uuid.UUID, reply FederationReply) FederationEnvelope {
	return FederationEnvelope{Type: TypeReply, RequestID: &requestID, EventID: NewEventID(), Reply: &reply}
}

// FederationErrorEnvelope frames a federation error with a fresh event id.
func FederationErrorEnvelope(requestID *uuid.UUID, wsErr WsError) FederationEnvelope {
	return FederationEnvelope{Type: TypeError, RequestID: requestID, EventID: NewEventID(), Error: &wsErr}
}

// FederationUpdateEnvelope frames a federation update with a fresh event id.
func FederationUpdateEnvelope(update FederationUpdate) FederationEnvelope {
	return FederationEnvelope{Type: TypeUpdate, EventID: NewEventID(), Update: &update}
}
