package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/apperr"
	"github.com/runelink/runelink/internal/hostutil"
	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/wire"
)

// RequestTimeout is the default deadline for a federation RPC.
const RequestTimeout = 10 * time.Second

// pendingResult is the outcome delivered to a waiting federation RPC caller.
type pendingResult struct {
	reply *wire.FederationReply
	err   *wire.WsError
}

// Dialer opens a federation connection to a peer host and registers it with
// the manager. It reports whether, afterwards, the pool has a live
// connection for the host. Set during application assembly to break the
// cycle between the manager and the state it dials with.
type Dialer func(ctx context.Context, host string) bool

// FederationManager combines the federation pool with request/reply
// correlation so callers send typed requests without building envelopes.
type FederationManager struct {
	pool   *FederationPool
	logger *slog.Logger

	pendingMu sync.Mutex
	pending   map[uuid.UUID]chan pendingResult

	dialer Dialer

	// OnRequestOutcome, when set, observes each RPC outcome
	// (ok, remote_error, timeout, unavailable, closed) for metrics.
	OnRequestOutcome func(outcome string)
}

// NewFederationManager creates a manager over a fresh pool.
func NewFederationManager(logger *slog.Logger) *FederationManager {
	return &FederationManager{
		pool:    NewFederationPool(),
		logger:  logger,
		pending: make(map[uuid.UUID]chan pendingResult),
	}
}

// SetDialer installs the auto-dial hook.
func (m *FederationManager) SetDialer(d Dialer) {
	m.dialer = d
}

// Register tracks a new unauthenticated connection.
func (m *FederationManager) Register() (uuid.UUID, <-chan wire.FederationEnvelope, <-chan struct{}) {
	return m.pool.Register()
}

// Authenticate binds a connection to a peer host, evicting any predecessor.
func (m *FederationManager) Authenticate(connID uuid.UUID, host string) bool {
	return m.pool.Authenticate(connID, host)
}

// Deregister drops a connection.
func (m *FederationManager) Deregister(connID uuid.UUID) bool {
	return m.pool.Deregister(connID)
}

// AuthenticatedHost returns the host bound to a connection, if any.
func (m *FederationManager) AuthenticatedHost(connID uuid.UUID) (string, bool) {
	return m.pool.AuthenticatedHost(connID)
}

// ConnectionCount returns the number of live federation connections.
func (m *FederationManager) ConnectionCount() int {
	return m.pool.Len()
}

// SendRequestToHost sends a typed request to a peer host and waits for the
// correlated reply. The host is auto-dialed if no connection is live. On
// timeout the waiter is removed so a late reply is dropped.
func (m *FederationManager) SendRequestToHost(ctx context.Context, host string, delegated *models.UserRef, req wire.FederationRequest, timeout time.Duration) (*wire.FederationReply, error) {
	host = hostutil.Pad(host)
	if !m.ensureConnection(ctx, host) {
		m.observe("unavailable")
		return nil, apperr.Internalf("No active federation connection for host '%s'", host)
	}

	requestID := uuid.New()
	waiter := make(chan pendingResult, 1)
	m.pendingMu.Lock()
	m.pending[requestID] = waiter
	m.pendingMu.Unlock()

	env := wire.FederationRequestEnvelope(requestID, delegated, req)
	if !m.pool.SendToHost(host, env) {
		m.logger.Warn("failed to send federation request", slog.String("host", host))
		m.removeWaiter(requestID)
		m.observe("unavailable")
		return nil, apperr.Internalf("No active federation connection for host '%s'", host)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result, ok := <-waiter:
		if !ok {
			m.observe("closed")
			return nil, apperr.Internalf("Request '%s' waiter dropped before completion", requestID)
		}
		if result.err != nil {
			m.observe("remote_error")
			return nil, apperr.FromWsCode(result.err.Code, result.err.Message)
		}
		m.observe("ok")
		return result.reply, nil
	case <-timer.C:
		m.removeWaiter(requestID)
		m.observe("timeout")
		return nil, apperr.Internalf("Timed out waiting for request '%s' reply from '%s'", requestID, host)
	case <-ctx.Done():
		m.removeWaiter(requestID)
		m.observe("timeout")
		return nil, apperr.Internalf("Timed out waiting for request '%s' reply from '%s'", requestID, host)
	}
}

// SendUpdateToHost pushes an update to one peer host, best effort.
func (m *FederationManager) SendUpdateToHost(host string, update wire.FederationUpdate) bool {
	return m.pool.SendToHost(hostutil.Pad(host), wire.FederationUpdateEnvelope(update))
}

// SendUpdateToHosts pushes an update once to each of a set of peer hosts.
func (m *FederationManager) SendUpdateToHosts(hosts []string, update wire.FederationUpdate) int {
	padded := make([]string, len(hosts))
	for i, h := range hosts {
		padded[i] = hostutil.Pad(h)
	}
	return m.pool.SendToHosts(padded, wire.FederationUpdateEnvelope(update))
}

// SendReplyToConnection answers a request on its originating connection.
func (m *FederationManager) SendReplyToConnection(connID uuid.UUID, requestID uuid.UUID, reply wire.FederationReply) bool {
	return m.pool.SendToConnection(connID, wire.FederationReplyEnvelope(requestID, reply))
}

// SendErrorToConnection reports a failure on a connection.
func (m *FederationManager) SendErrorToConnection(connID uuid.UUID, requestID *uuid.UUID, wsErr wire.WsError) bool {
	return m.pool.SendToConnection(connID, wire.FederationErrorEnvelope(requestID, wsErr))
}

// BroadcastUpdate pushes an update to every federation connection.
func (m *FederationManager) BroadcastUpdate(update wire.FederationUpdate) int {
	return m.pool.Broadcast(wire.FederationUpdateEnvelope(update))
}

// ResolveResponse routes an inbound reply or error envelope to its waiting
// caller. It reports false for unmatched responses, which the handler logs
// and drops; a waiter is completed at most once.
func (m *FederationManager) ResolveResponse(env *wire.FederationEnvelope) bool {
	var requestID uuid.UUID
	var result pendingResult
	switch {
	case env.Type == wire.TypeReply && env.RequestID != nil:
		requestID = *env.RequestID
		result = pendingResult{reply: env.Reply}
	case env.Type == wire.TypeError && env.RequestID != nil:
		requestID = *env.RequestID
		result = pendingResult{err: env.Error}
	default:
		return false
	}

	m.pendingMu.Lock()
	waiter, ok := m.pending[requestID]
	delete(m.pending, requestID)
	m.pendingMu.Unlock()

	if !ok {
		return false
	}
	waiter <- result
	return true
}

// PendingCount returns the number of outstanding federation RPCs.
func (m *FederationManager) PendingCount() int {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	return len(m.pending)
}

// ensureConnection auto-dials the host when no connection is live, then
// re-checks the pool.
func (m *FederationManager) ensureConnection(ctx context.Context, host string) bool {
	if m.pool.HasHost(host) {
		return true
	}
	if m.dialer == nil || !m.dialer(ctx, host) {
		return false
	}
	return m.pool.HasHost(host)
}

func (m *FederationManager) removeWaiter(requestID uuid.UUID) {
	m.pendingMu.Lock()
	delete(m.pending, requestID)
	m.pendingMu.Unlock()
}

func (m *FederationManager) observe(outcome string) {
	if m.OnRequestOutcome != nil {
		m.OnRequestOutcome(outcome)
	}
}
