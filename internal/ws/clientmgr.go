package ws

import (
	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/wire"
)

// ClientManager is a typed veneer over the client pool: call sites hand it
// typed replies, errors, and updates and it wraps them in envelopes with
// fresh event ids.
type ClientManager struct {
	pool *ClientPool
}

// NewClientManager creates a manager over a fresh pool.
func NewClientManager() *ClientManager {
	return &ClientManager{pool: NewClientPool()}
}

// Register tracks a new unauthenticated connection.
func (m *ClientManager) Register() (uuid.UUID, <-chan wire.ClientEnvelope, <-chan struct{}) {
	return m.pool.Register()
}

// Authenticate attaches a user to a connection.
func (m *ClientManager) Authenticate(connID uuid.UUID, ref models.UserRef) bool {
	return m.pool.Authenticate(connID, ref)
}

// Deregister drops a connection.
func (m *ClientManager) Deregister(connID uuid.UUID) bool {
	return m.pool.Deregister(connID)
}

// AuthenticatedUser returns the user attached to a connection, if any.
func (m *ClientManager) AuthenticatedUser(connID uuid.UUID) (models.UserRef, bool) {
	return m.pool.AuthenticatedUser(connID)
}

// ConnectionCount returns the number of live client connections.
func (m *ClientManager) ConnectionCount() int {
	return m.pool.Len()
}

// SendUpdateToConnection pushes an update to one connection.
func (m *ClientManager) SendUpdateToConnection(connID uuid.UUID, update wire.ClientUpdate) bool {
	return m.pool.SendToConnection(connID, wire.ClientUpdateEnvelope(update))
}

// SendUpdateToUser pushes an update to every live connection of a user.
func (m *ClientManager) SendUpdateToUser(ref models.UserRef, update wire.ClientUpdate) int {
	return m.pool.SendToUser(ref, wire.ClientUpdateEnvelope(update))
}

// SendUpdateToUsers pushes an update to every live connection of a set of
// users.
func (m *ClientManager) SendUpdateToUsers(refs []models.UserRef, update wire.ClientUpdate) int {
	return m.pool.SendToUsers(refs, wire.ClientUpdateEnvelope(update))
}

// SendReplyToConnection answers a request on its originating connection.
func (m *ClientManager) SendReplyToConnection(connID uuid.UUID, requestID uuid.UUID, reply wire.ClientReply) bool {
	return m.pool.SendToConnection(connID, wire.ClientReplyEnvelope(requestID, reply))
}

// SendErrorToConnection reports a failure on a connection, scoped to the
// originating request when known.
func (m *ClientManager) SendErrorToConnection(connID uuid.UUID, requestID *uuid.UUID, wsErr wire.WsError) bool {
	return m.pool.SendToConnection(connID, wire.ClientErrorEnvelope(requestID, wsErr))
}

// BroadcastUpdate pushes an update to every client connection.
func (m *ClientManager) BroadcastUpdate(update wire.ClientUpdate) int {
	return m.pool.Broadcast(wire.ClientUpdateEnvelope(update))
}
