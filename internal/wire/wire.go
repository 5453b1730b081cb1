// Package wire defines the JSON websocket protocol shared by the client and
// federation transports: an outer envelope tagged by "type" and typed
// request/reply/update unions tagged by "action", "result", and "event".
//
// Unions are encoded flat: the tag field sits next to the variant's payload
// fields. Parsing rejects unknown tags; the socket loop drops and logs the
// offending frame.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/models"
)

// Envelope type tags.
const (
	TypeRequest = "request"
	TypeReply   = "reply"
	TypeError   = "error"
	TypeUpdate  = "update"
)

// WsError is the error payload carried in an error envelope.
type WsError struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

func (e WsError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Connection state values.
const (
	StateUnauthenticated = "unauthenticated"
	StateAuthenticated   = "authenticated"
)

// ClientConnectionState reports whether a client socket is authenticated.
type ClientConnectionState struct {
	State   string          `json:"state"`
	UserRef *models.UserRef `json:"user_ref,omitempty"`
}

// FederationConnectionState reports whether a federation socket is
// authenticated to a peer host.
type FederationConnectionState struct {
	State string  `json:"state"`
	Host  *string `json:"host,omitempty"`
}

// Request action tags. The client union accepts all of them; the federation
// union accepts connection_state and the data actions except users_create.
const (
	ActionPing            = "ping"
	ActionOidcDiscovery   = "oidc_discovery"
	ActionOidcJwks        = "oidc_jwks"
	ActionConnectionState = "connection_state"

	ActionAuthSignup         = "auth_signup"
	ActionAuthTokenPassword  = "auth_token_password"
	ActionAuthTokenRefresh   = "auth_token_refresh"
	ActionAuthTokenAccess    = "auth_token_access"
	ActionAuthUserinfo       = "auth_userinfo"
	ActionAuthRegisterClient = "auth_register_client"

	ActionUsersCreate             = "users_create"
	ActionUsersGetAll             = "users_get_all"
	ActionUsersGetByRef           = "users_get_by_ref"
	ActionUsersGetAssociatedHosts = "users_get_associated_hosts"
	ActionUsersDelete             = "users_delete"

	ActionMembershipsCreate                = "memberships_create"
	ActionMembershipsGetByUser             = "memberships_get_by_user"
	ActionMembershipsGetMembersByServer    = "memberships_get_members_by_server"
	ActionMembershipsGetByUserAndServer    = "memberships_get_by_user_and_server"
	ActionMembershipsDelete                = "memberships_delete"

	ActionServersCreate          = "servers_create"
	ActionServersGetAll          = "servers_get_all"
	ActionServersGetByID         = "servers_get_by_id"
	ActionServersGetWithChannels = "servers_get_with_channels"
	ActionServersDelete          = "servers_delete"

	ActionChannelsCreate      = "channels_create"
	ActionChannelsGetAll      = "channels_get_all"
	ActionChannelsGetByServer = "channels_get_by_server"
	ActionChannelsGetByID     = "channels_get_by_id"
	ActionChannelsDelete      = "channels_delete"

	ActionMessagesCreate       = "messages_create"
	ActionMessagesGetAll       = "messages_get_all"
	ActionMessagesGetByServer  = "messages_get_by_server"
	ActionMessagesGetByChannel = "messages_get_by_channel"
	ActionMessagesGetByID      = "messages_get_by_id"
	ActionMessagesDelete       = "messages_delete"
)

// Update event tags.
const (
	EventUserUpserted      = "user_upserted"
	EventUserDeleted       = "user_deleted"
	EventMembershipUpserted = "membership_upserted"
	EventMembershipDeleted  = "membership_deleted"
	EventServerUpserted    = "server_upserted"
	EventServerDeleted     = "server_deleted"
	EventChannelUpserted   = "channel_upserted"
	EventChannelDeleted    = "channel_deleted"
	EventMessageUpserted   = "message_upserted"
	EventMessageDeleted    = "message_deleted"
	EventRemoteUserDeleted = "remote_user_deleted"
)

// ClientRequest is the flat union of client websocket requests, tagged by
// Action. Only the fields belonging to the tagged variant are set.
type ClientRequest struct {
	Action string `json:"action"`

	TargetHost *string    `json:"target_host,omitempty"`
	ServerID   *uuid.UUID `json:"server_id,omitempty"`
	ChannelID  *uuid.UUID `json:"channel_id,omitempty"`
	MessageID  *uuid.UUID `json:"message_id,omitempty"`

	UserRef       *models.UserRef             `json:"user_ref,omitempty"`
	NewUser       *models.NewUser             `json:"new_user,omitempty"`
	NewServer     *models.NewServer           `json:"new_server,omitempty"`
	NewChannel    *models.NewChannel          `json:"new_channel,omitempty"`
	NewMessage    *models.NewMessage          `json:"new_message,omitempty"`
	NewMembership *models.NewServerMembership `json:"new_membership,omitempty"`

	Signup        *models.SignupRequest            `json:"signup,omitempty"`
	TokenPassword *models.AuthTokenPasswordRequest `json:"token_password,omitempty"`
	TokenRefresh  *models.AuthTokenRefreshRequest  `json:"token_refresh,omitempty"`
	TokenAccess   *models.AuthTokenAccessRequest   `json:"token_access,omitempty"`
}

// ClientReply is the flat union of client websocket replies, tagged by
// Result. The result tag always matches the request's action tag.
type ClientReply struct {
	Result string `json:"result"`

	User        *models.User               `json:"user,omitempty"`
	Users       []models.User              `json:"users,omitempty"`
	Hosts       []string                   `json:"hosts,omitempty"`
	Server      *models.Server             `json:"server,omitempty"`
	Servers     []models.Server            `json:"servers,omitempty"`
	ServerFull  *models.ServerWithChannels `json:"server_with_channels,omitempty"`
	Channel     *models.Channel            `json:"channel,omitempty"`
	Channels    []models.Channel           `json:"channels,omitempty"`
	Message     *models.Message            `json:"message,omitempty"`
	Messages    []models.Message           `json:"messages,omitempty"`
	Membership  *models.FullServerMembership `json:"membership,omitempty"`
	Memberships []models.ServerMembership  `json:"memberships,omitempty"`
	Member      *models.ServerMember       `json:"member,omitempty"`
	Members     []models.ServerMember      `json:"members,omitempty"`

	Token           *models.TokenResponse        `json:"token,omitempty"`
	Discovery       *models.OidcDiscoveryDocument `json:"discovery,omitempty"`
	Jwks            *models.JwksResponse         `json:"jwks,omitempty"`
	ConnectionState *ClientConnectionState       `json:"connection_state,omitempty"`
}

// FederationRequest is the flat union of federation websocket requests.
type FederationRequest struct {
	Action string `json:"action"`

	ServerID  *uuid.UUID `json:"server_id,omitempty"`
	ChannelID *uuid.UUID `json:"channel_id,omitempty"`
	MessageID *uuid.UUID `json:"message_id,omitempty"`

	UserRef       *models.UserRef             `json:"user_ref,omitempty"`
	NewServer     *models.NewServer           `json:"new_server,omitempty"`
	NewChannel    *models.NewChannel          `json:"new_channel,omitempty"`
	NewMessage    *models.NewMessage          `json:"new_message,omitempty"`
	NewMembership *models.NewServerMembership `json:"new_membership,omitempty"`
}

// FederationReply is the flat union of federation websocket replies.
type FederationReply struct {
	Result string `json:"result"`

	User        *models.User               `json:"user,omitempty"`
	Users       []models.User              `json:"users,omitempty"`
	Hosts       []string                   `json:"hosts,omitempty"`
	Server      *models.Server             `json:"server,omitempty"`
	Servers     []models.Server            `json:"servers,omitempty"`
	ServerFull  *models.ServerWithChannels `json:"server_with_channels,omitempty"`
	Channel     *models.Channel            `json:"channel,omitempty"`
	Channels    []models.Channel           `json:"channels,omitempty"`
	Message     *models.Message            `json:"message,omitempty"`
	Messages    []models.Message           `json:"messages,omitempty"`
	Membership  *models.FullServerMembership `json:"membership,omitempty"`
	Memberships []models.ServerMembership  `json:"memberships,omitempty"`
	Member      *models.ServerMember       `json:"member,omitempty"`
	Members     []models.ServerMember      `json:"members,omitempty"`

	ConnectionState *FederationConnectionState `json:"connection_state,omitempty"`
}

// ClientUpdate is a push-only event delivered to client connections.
type ClientUpdate struct {
	Event string `json:"event"`

	User       *models.User                 `json:"user,omitempty"`
	UserRef    *models.UserRef              `json:"user_ref,omitempty"`
	Membership *models.FullServerMembership `json:"membership,omitempty"`
	Server     *models.Server               `json:"server,omitempty"`
	Channel    *models.Channel              `json:"channel,omitempty"`
	Message    *models.Message              `json:"message,omitempty"`

	ServerID  *uuid.UUID `json:"server_id,omitempty"`
	ChannelID *uuid.UUID `json:"channel_id,omitempty"`
	MessageID *uuid.UUID `json:"message_id,omitempty"`
}

// FederationUpdate is a push-only event delivered to peer hosts. Message
// events carry an explicit server id so the receiving host can route to its
// interested local users without the remote channel cached.
type FederationUpdate struct {
	Event string `json:"event"`

	UserRef    *models.UserRef              `json:"user_ref,omitempty"`
	Membership *models.FullServerMembership `json:"membership,omitempty"`
	Server     *models.Server               `json:"server,omitempty"`
	Channel    *models.Channel              `json:"channel,omitempty"`
	Message    *models.Message              `json:"message,omitempty"`

	ServerID  *uuid.UUID `json:"server_id,omitempty"`
	ChannelID *uuid.UUID `json:"channel_id,omitempty"`
	MessageID *uuid.UUID `json:"message_id,omitempty"`
}

// ClientEnvelope frames a client websocket message.
type ClientEnvelope struct {
	Type      string     `json:"type"`
	RequestID *uuid.UUID `json:"request_id,omitempty"`
	EventID   *uuid.UUID `json:"event_id,omitempty"`

	Request *ClientRequest `json:"request,omitempty"`
	Reply   *ClientReply   `json:"reply,omitempty"`
	Error   *WsError       `json:"error,omitempty"`
	Update  *ClientUpdate  `json:"update,omitempty"`
}

// FederationEnvelope frames a federation websocket message.
type FederationEnvelope struct {
	Type             string          `json:"type"`
	RequestID        *uuid.UUID      `json:"request_id,omitempty"`
	EventID          *uuid.UUID      `json:"event_id,omitempty"`
	DelegatedUserRef *models.UserRef `json:"delegated_user_ref,omitempty"`

	Request *FederationRequest `json:"request,omitempty"`
	Reply   *FederationReply   `json:"reply,omitempty"`
	Error   *WsError           `json:"error,omitempty"`
	Update  *FederationUpdate  `json:"update,omitempty"`
}

// NewEventID allocates a fresh event id pointer.
func NewEventID() *uuid.UUID {
	id := uuid.New()
	return &id
}
