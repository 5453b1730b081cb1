// Package models defines the Runelink domain entities shared by the store,
// the HTTP API, and the websocket wire format. Entities are plain structs
// with JSON tags; timestamps are UTC.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserRole is the host-level role of a user account.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// ServerRole is the per-server role of a member.
type ServerRole string

const (
	ServerRoleMember ServerRole = "member"
	ServerRoleAdmin  ServerRole = "admin"
)

// UserRef is the stable identity of a user across federation.
type UserRef struct {
	Name string `json:"name"`
	Host string `json:"host"`
}

// NewUserRef builds a UserRef from its parts.
func NewUserRef(name, host string) UserRef {
	return UserRef{Name: name, Host: host}
}

// Subject returns the canonical "name@host" subject form.
func (r UserRef) Subject() string {
	return r.Name + "@" + r.Host
}

func (r UserRef) String() string {
	return r.Subject()
}

// ParseSubject parses a "name@host" subject into a UserRef. The split is on
// the first '@'; both parts must be non-empty.
func ParseSubject(sub string) (UserRef, bool) {
	name, host, ok := strings.Cut(sub, "@")
	if !ok || name == "" || host == "" {
		return UserRef{}, false
	}
	return UserRef{Name: name, Host: host}, true
}

// User is a user account. Remote users exist locally only as cached records.
type User struct {
	Name      string    `json:"name"`
	Host      string    `json:"host"`
	Role      UserRole  `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ref returns the user's federation identity.
func (u User) Ref() UserRef {
	return UserRef{Name: u.Name, Host: u.Host}
}

// NewUser is the input shape for creating a user.
type NewUser struct {
	Name string   `json:"name"`
	Host string   `json:"host"`
	Role UserRole `json:"role"`
}

// Server is a guild. Host is the authoritative home host; a Server row on a
// non-home host is a cached mirror.
type Server struct {
	ID          uuid.UUID `json:"id"`
	Host        string    `json:"host"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Verbose returns a debug-friendly "title (id)" form.
func (s Server) Verbose() string {
	return fmt.Sprintf("%s (%s)", s.Title, s.ID)
}

// NewServer is the input shape for creating a server.
type NewServer struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

// ServerWithChannels bundles a server with its channel list.
type ServerWithChannels struct {
	Server   Server    `json:"server"`
	Channels []Channel `json:"channels"`
}

// Channel lives on the same host as its server.
type Channel struct {
	ID          uuid.UUID `json:"id"`
	ServerID    uuid.UUID `json:"server_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewChannel is the input shape for creating a channel.
type NewChannel struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

// Message lives on the same host as its channel. Author is nil when the
// authoring user has since been deleted.
type Message struct {
	ID        uuid.UUID `json:"id"`
	ChannelID uuid.UUID `json:"channel_id"`
	Author    *User     `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewMessage is the input shape for creating a message.
type NewMessage struct {
	Author UserRef `json:"author"`
	Body   string  `json:"body"`
}

// ServerMembership ties a user reference to a server. SyncedAt is nil for
// native rows and set for rows mirroring a membership whose home is another
// host.
type ServerMembership struct {
	Server    Server     `json:"server"`
	UserRef   UserRef    `json:"user_ref"`
	Role      ServerRole `json:"role"`
	JoinedAt  time.Time  `json:"joined_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	SyncedAt  *time.Time `json:"synced_at"`
}

// AsFull attaches a full user record to a membership.
func (m ServerMembership) AsFull(user User) FullServerMembership {
	return FullServerMembership{
		Server:    m.Server,
		User:      user,
		Role:      m.Role,
		JoinedAt:  m.JoinedAt,
		UpdatedAt: m.UpdatedAt,
		SyncedAt:  m.SyncedAt,
	}
}

// FullServerMembership is a membership with the user record resolved.
type FullServerMembership struct {
	Server    Server     `json:"server"`
	User      User       `json:"user"`
	Role      ServerRole `json:"role"`
	JoinedAt  time.Time  `json:"joined_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	SyncedAt  *time.Time `json:"synced_at"`
}

// AsMembership collapses the full membership back to a UserRef-keyed one.
func (f FullServerMembership) AsMembership() ServerMembership {
	return ServerMembership{
		Server:    f.Server,
		UserRef:   f.User.Ref(),
		Role:      f.Role,
		JoinedAt:  f.JoinedAt,
		UpdatedAt: f.UpdatedAt,
		SyncedAt:  f.SyncedAt,
	}
}

// AsMember drops the server, keeping the user-facing member view.
func (f FullServerMembership) AsMember() ServerMember {
	return ServerMember{
		User:      f.User,
		Role:      f.Role,
		JoinedAt:  f.JoinedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// ServerMember is the member view returned by member listings.
type ServerMember struct {
	User      User       `json:"user"`
	Role      ServerRole `json:"role"`
	JoinedAt  time.Time  `json:"joined_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewServerMembership is the input shape for joining a server. ServerHost is
// the home host of the server so the caller's host can route the join.
type NewServerMembership struct {
	UserRef    UserRef    `json:"user_ref"`
	ServerID   uuid.UUID  `json:"server_id"`
	ServerHost string     `json:"server_host"`
	Role       ServerRole `json:"role"`
}
