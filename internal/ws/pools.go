// Package ws implements Runelink's websocket layer: the client and
// federation connection pools, the typed managers over them, the
// per-connection socket loops, and the routing index used for fanout.
//
// A socket is owned by exactly one goroutine (its socket loop); every other
// goroutine reaches it only through its outbound channel. Pools guard their
// indices with a read-write lock and perform sends after releasing it; a
// connection that refuses a send is deregistered under a subsequent write
// lock.
package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/wire"
)

// outboundBuffer is the per-connection outbound queue capacity. A connection
// whose queue is full refuses the send and is dropped from the pool.
const outboundBuffer = 256

// outbound is a per-connection send queue. done is closed exactly once on
// deregistration so senders never write to a dead connection.
type outbound[T any] struct {
	ch        chan T
	done      chan struct{}
	closeOnce sync.Once
}

func newOutbound[T any]() *outbound[T] {
	return &outbound[T]{
		ch:   make(chan T, outboundBuffer),
		done: make(chan struct{}),
	}
}

// trySend enqueues v unless the connection is closed or its queue is full.
func (o *outbound[T]) trySend(v T) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.ch <- v:
		return true
	case <-o.done:
		return false
	default:
		return false
	}
}

func (o *outbound[T]) close() {
	o.closeOnce.Do(func() { close(o.done) })
}

// clientConn is one tracked client websocket connection.
type clientConn struct {
	out         *outbound[wire.ClientEnvelope]
	userRef     *models.UserRef
	connectedAt time.Time
}

// ClientPool tracks client websocket connections, indexed by connection id
// and, once authenticated, by user.
type ClientPool struct {
	mu     sync.RWMutex
	conns  map[uuid.UUID]*clientConn
	byUser map[models.UserRef]map[uuid.UUID]struct{}
}

// NewClientPool creates an empty client pool.
func NewClientPool() *ClientPool {
	return &ClientPool{
		conns:  make(map[uuid.UUID]*clientConn),
		byUser: make(map[models.UserRef]map[uuid.UUID]struct{}),
	}
}

// Register tracks a fresh, unauthenticated connection and returns its id and
// the channels its socket loop drains.
func (p *ClientPool) Register() (uuid.UUID, <-chan wire.ClientEnvelope, <-chan struct{}) {
	connID := uuid.New()
	out := newOutbound[wire.ClientEnvelope]()

	p.mu.Lock()
	p.conns[connID] = &clientConn{out: out, connectedAt: time.Now().UTC()}
	p.mu.Unlock()

	return connID, out.ch, out.done
}

// Authenticate attaches a user to a connection, replacing any prior user for
// that connection in the secondary index.
func (p *ClientPool) Authenticate(connID uuid.UUID, ref models.UserRef) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, ok := p.conns[connID]
	if !ok {
		return false
	}
	if conn.userRef != nil {
		p.removeFromUserIndex(*conn.userRef, connID)
	}
	conn.userRef = &ref
	set, ok := p.byUser[ref]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		p.byUser[ref] = set
	}
	set[connID] = struct{}{}
	return true
}

// Deregister removes a connection from both indices and closes its queue.
func (p *ClientPool) Deregister(connID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeConn(connID)
}

// AuthenticatedUser returns the user attached to a connection, if any.
func (p *ClientPool) AuthenticatedUser(connID uuid.UUID) (models.UserRef, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conn, ok := p.conns[connID]
	if !ok || conn.userRef == nil {
		return models.UserRef{}, false
	}
	return *conn.userRef, true
}

// Len returns the number of tracked connections.
func (p *ClientPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// SendToConnection delivers an envelope to one connection.
func (p *ClientPool) SendToConnection(connID uuid.UUID, env wire.ClientEnvelope) bool {
	p.mu.RLock()
	conn, ok := p.conns[connID]
	p.mu.RUnlock()
	if !ok {
		return false
	}
	if conn.out.trySend(env) {
		return true
	}
	p.Deregister(connID)
	return false
}

// SendToUser delivers an envelope to every live connection of a user and
// returns the number of successful sends.
func (p *ClientPool) SendToUser(ref models.UserRef, env wire.ClientEnvelope) int {
	return p.sendToMany(p.collectUserTargets(ref), env)
}

// SendToUsers delivers an envelope to every live connection of a set of
// users, deduplicating connections.
func (p *ClientPool) SendToUsers(refs []models.UserRef, env wire.ClientEnvelope) int {
	seen := make(map[uuid.UUID]struct{})
	targets := []target[wire.ClientEnvelope]{}

	p.mu.RLock()
	for _, ref := range refs {
		for connID := range p.byUser[ref] {
			if _, dup := seen[connID]; dup {
				continue
			}
			seen[connID] = struct{}{}
			if conn, ok := p.conns[connID]; ok {
				targets = append(targets, target[wire.ClientEnvelope]{connID, conn.out})
			}
		}
	}
	p.mu.RUnlock()

	return p.sendToMany(targets, env)
}

// Broadcast delivers an envelope to every tracked connection.
func (p *ClientPool) Broadcast(env wire.ClientEnvelope) int {
	targets := []target[wire.ClientEnvelope]{}
	p.mu.RLock()
	for connID, conn := range p.conns {
		targets = append(targets, target[wire.ClientEnvelope]{connID, conn.out})
	}
	p.mu.RUnlock()
	return p.sendToMany(targets, env)
}

type target[T any] struct {
	connID uuid.UUID
	out    *outbound[T]
}

func (p *ClientPool) collectUserTargets(ref models.UserRef) []target[wire.ClientEnvelope] {
	targets := []target[wire.ClientEnvelope]{}
	p.mu.RLock()
	for connID := range p.byUser[ref] {
		if conn, ok := p.conns[connID]; ok {
			targets = append(targets, target[wire.ClientEnvelope]{connID, conn.out})
		}
	}
	p.mu.RUnlock()
	return targets
}

// sendToMany copies the target list outside the lock, attempts every send,
// then deregisters the stale connections in one write-lock pass.
func (p *ClientPool) sendToMany(targets []target[wire.ClientEnvelope], env wire.ClientEnvelope) int {
	sent := 0
	var stale []uuid.UUID
	for _, t := range targets {
		if t.out.trySend(env) {
			sent++
		} else {
			stale = append(stale, t.connID)
		}
	}
	if len(stale) > 0 {
		p.mu.Lock()
		for _, connID := range stale {
			p.removeConn(connID)
		}
		p.mu.Unlock()
	}
	return sent
}

// removeFromUserIndex must be called with the write lock held.
func (p *ClientPool) removeFromUserIndex(ref models.UserRef, connID uuid.UUID) {
	if set, ok := p.byUser[ref]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(p.byUser, ref)
		}
	}
}

// removeConn must be called with the write lock held.
func (p *ClientPool) removeConn(connID uuid.UUID) bool {
	conn, ok := p.conns[connID]
	if !ok {
		return false
	}
	delete(p.conns, connID)
	if conn.userRef != nil {
		p.removeFromUserIndex(*conn.userRef, connID)
	}
	conn.out.close()
	return true
}

// federationConn is one tracked federation websocket connection.
type federationConn struct {
	out         *outbound[wire.FederationEnvelope]
	host        *string
	connectedAt time.Time
}

// FederationPool tracks federation connections. Each peer host has at most
// one live connection; authenticating a connection to a host evicts any
// predecessor for that host.
type FederationPool struct {
	mu     sync.RWMutex
	conns  map[uuid.UUID]*federationConn
	byHost map[string]uuid.UUID
}

// NewFederationPool creates an empty federation pool.
func NewFederationPool() *FederationPool {
	return &FederationPool{
		conns:  make(map[uuid.UUID]*federationConn),
		byHost: make(map[string]uuid.UUID),
	}
}

// Register tracks a fresh, unauthenticated connection and returns its id and
// the channels its socket loop drains.
func (p *FederationPool) Register() (uuid.UUID, <-chan wire.FederationEnvelope, <-chan struct{}) {
	connID := uuid.New()
	out := newOutbound[wire.FederationEnvelope]()

	p.mu.Lock()
	p.conns[connID] = &federationConn{out: out, connectedAt: time.Now().UTC()}
	p.mu.Unlock()

	return connID, out.ch, out.done
}

// Authenticate binds a connection to a peer host, evicting any existing
// connection for that host.
func (p *FederationPool) Authenticate(connID uuid.UUID, host string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, ok := p.conns[connID]
	if !ok {
		return false
	}
	if conn.host != nil {
		p.removeFromHostIndex(*conn.host, connID)
	}
	if existing, ok := p.byHost[host]; ok && existing != connID {
		p.removeConn(existing)
	}
	p.byHost[host] = connID
	conn.host = &host
	return true
}

// Deregister removes a connection from both indices and closes its queue.
func (p *FederationPool) Deregister(connID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeConn(connID)
}

// AuthenticatedHost returns the host bound to a connection, if any.
func (p *FederationPool) AuthenticatedHost(connID uuid.UUID) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conn, ok := p.conns[connID]
	if !ok || conn.host == nil {
		return "", false
	}
	return *conn.host, true
}

// HasHost reports whether a peer host currently has a live connection.
func (p *FederationPool) HasHost(host string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	connID, ok := p.byHost[host]
	if !ok {
		return false
	}
	_, ok = p.conns[connID]
	return ok
}

// Len returns the number of tracked connections.
func (p *FederationPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// SendToConnection delivers an envelope to one connection.
func (p *FederationPool) SendToConnection(connID uuid.UUID, env wire.FederationEnvelope) bool {
	p.mu.RLock()
	conn, ok := p.conns[connID]
	p.mu.RUnlock()
	if !ok {
		return false
	}
	if conn.out.trySend(env) {
		return true
	}
	p.Deregister(connID)
	return false
}

// SendToHost delivers an envelope to the connection bound to a host.
func (p *FederationPool) SendToHost(host string, env wire.FederationEnvelope) bool {
	p.mu.RLock()
	connID, ok := p.byHost[host]
	var conn *federationConn
	if ok {
		conn = p.conns[connID]
	}
	p.mu.RUnlock()
	if conn == nil {
		return false
	}
	if conn.out.trySend(env) {
		return true
	}
	p.Deregister(connID)
	return false
}

// SendToHosts delivers an envelope once to each of a set of hosts,
// deduplicating, and returns the number of successful sends.
func (p *FederationPool) SendToHosts(hosts []string, env wire.FederationEnvelope) int {
	unique := make(map[string]struct{}, len(hosts))
	targets := []target[wire.FederationEnvelope]{}

	p.mu.RLock()
	for _, host := range hosts {
		if _, dup := unique[host]; dup {
			continue
		}
		unique[host] = struct{}{}
		connID, ok := p.byHost[host]
		if !ok {
			continue
		}
		if conn, ok := p.conns[connID]; ok {
			targets = append(targets, target[wire.FederationEnvelope]{connID, conn.out})
		}
	}
	p.mu.RUnlock()

	sent := 0
	var stale []uuid.UUID
	for _, t := range targets {
		if t.out.trySend(env) {
			sent++
		} else {
			stale = append(stale, t.connID)
		}
	}
	if len(stale) > 0 {
		p.mu.Lock()
		for _, connID := range stale {
			p.removeConn(connID)
		}
		p.mu.Unlock()
	}
	return sent
}

// Broadcast delivers an envelope to every tracked connection.
func (p *FederationPool) Broadcast(env wire.FederationEnvelope) int {
	targets := []target[wire.FederationEnvelope]{}
	p.mu.RLock()
	for connID, conn := range p.conns {
		targets = append(targets, target[wire.FederationEnvelope]{connID, conn.out})
	}
	p.mu.RUnlock()

	sent := 0
	var stale []uuid.UUID
	for _, t := range targets {
		if t.out.trySend(env) {
			sent++
		} else {
			stale = append(stale, t.connID)
		}
	}
	if len(stale) > 0 {
		p.mu.Lock()
		for _, connID := range stale {
			p.removeConn(connID)
		}
		p.mu.Unlock()
	}
	return sent
}

// removeFromHostIndex must be called with the write lock held.
func (p *FederationPool) removeFromHostIndex(host string, connID uuid.UUID) {
	if p.byHost[host] == connID {
		delete(p.byHost, host)
	}
}

// removeConn must be called with the write lock held.
func (p *FederationPool) removeConn(connID uuid.UUID) bool {
	conn, ok := p.conns[connID]
	if !ok {
		return false
	}
	delete(p.conns, connID)
	if conn.host != nil {
		p.removeFromHostIndex(*conn.host, connID)
	}
	conn.out.close()
	return true
}
