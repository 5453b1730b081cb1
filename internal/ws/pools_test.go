package ws

import (
	"testing"

	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/wire"
)

func drain(ch <-chan wire.ClientEnvelope) []wire.ClientEnvelope {
	var out []wire.ClientEnvelope
	for {
		select {
		case env := <-ch:
			out = append(out, env)
		default:
			return out
		}
	}
}

func drainFed(ch <-chan wire.FederationEnvelope) []wire.FederationEnvelope {
	var out []wire.FederationEnvelope
	for {
		select {
		case env := <-ch:
			out = append(out, env)
		default:
			return out
		}
	}
}

func testUpdate() wire.ClientEnvelope {
	return wire.ClientUpdateEnvelope(wire.ClientUpdate{
		Event:   wire.EventUserUpserted,
		User:    &models.User{Name: "alice", Host: "h1"},
	})
}

func TestClientPoolUserIndex(t *testing.T) {
	pool := NewClientPool()
	alice := models.NewUserRef("alice", "h1")

	connID, ch, _ := pool.Register()
	if _, ok := pool.AuthenticatedUser(connID); ok {
		t.Error("fresh connection must be unauthenticated")
	}

	if !pool.Authenticate(connID, alice) {
		t.Fatal("Authenticate failed")
	}

	// An authenticated connection is reachable by user sends.
	if sent := pool.SendToUser(alice, testUpdate()); sent != 1 {
		t.Errorf("SendToUser = %d, want 1", sent)
	}
	if got := len(drain(ch)); got != 1 {
		t.Errorf("delivered = %d, want 1", got)
	}

	// ...and disappears from the index after deregistration.
	if !pool.Deregister(connID) {
		t.Fatal("Deregister failed")
	}
	if sent := pool.SendToUser(alice, testUpdate()); sent != 0 {
		t.Errorf("SendToUser after deregister = %d, want 0", sent)
	}
	if pool.Len() != 0 {
		t.Errorf("Len = %d, want 0", pool.Len())
	}
}

func TestClientPoolReauthenticateReplacesUser(t *testing.T) {
	pool := NewClientPool()
	alice := models.NewUserRef("alice", "h1")
	bob := models.NewUserRef("bob", "h1")

	connID, ch, _ := pool.Register()
	pool.Authenticate(connID, alice)
	pool.Authenticate(connID, bob)

	if sent := pool.SendToUser(alice, testUpdate()); sent != 0 {
		t.Errorf("old user still reaches the connection: sent = %d", sent)
	}
	if sent := pool.SendToUser(bob, testUpdate()); sent != 1 {
		t.Errorf("new user does not reach the connection: sent = %d", sent)
	}
	drain(ch)
}

func TestClientPoolSendToUsersDeduplicates(t *testing.T) {
	pool := NewClientPool()
	alice := models.NewUserRef("alice", "h1")

	c1, ch1, _ := pool.Register()
	c2, ch2, _ := pool.Register()
	pool.Authenticate(c1, alice)
	pool.Authenticate(c2, alice)

	// Listing the same user twice must deliver once per connection.
	sent := pool.SendToUsers([]models.UserRef{alice, alice}, testUpdate())
	if sent != 2 {
		t.Errorf("SendToUsers = %d, want 2", sent)
	}
	if len(drain(ch1)) != 1 || len(drain(ch2)) != 1 {
		t.Error("each connection must receive exactly one copy")
	}
}

func TestClientPoolDropsFullConnections(t *testing.T) {
	pool := NewClientPool()
	alice := models.NewUserRef("alice", "h1")
	connID, _, done := pool.Register()
	pool.Authenticate(connID, alice)

	for i := 0; i < outboundBuffer; i++ {
		if sent := pool.SendToUser(alice, testUpdate()); sent != 1 {
			t.Fatalf("send %d refused", i)
		}
	}
	// The queue is full: the refusing connection must be deregistered.
	if sent := pool.SendToUser(alice, testUpdate()); sent != 0 {
		t.Errorf("overflow send = %d, want 0", sent)
	}
	select {
	case <-done:
	default:
		t.Error("stale connection was not closed")
	}
	if pool.Len() != 0 {
		t.Errorf("Len = %d, want 0 after overflow", pool.Len())
	}
}

func fedUpdate() wire.FederationEnvelope {
	return wire.FederationUpdateEnvelope(wire.FederationUpdate{
		Event:  wire.EventServerUpserted,
		Server: &models.Server{Title: "g"},
	})
}

func TestFederationPoolHostIndex(t *testing.T) {
	pool := NewFederationPool()

	connID, ch, _ := pool.Register()
	if pool.HasHost("h2:7000") {
		t.Error("HasHost before authenticate")
	}
	pool.Authenticate(connID, "h2:7000")
	if !pool.HasHost("h2:7000") {
		t.Error("HasHost after authenticate")
	}

	// send_to_host reaches exactly one connection.
	if !pool.SendToHost("h2:7000", fedUpdate()) {
		t.Error("SendToHost failed")
	}
	if got := len(drainFed(ch)); got != 1 {
		t.Errorf("delivered = %d, want 1", got)
	}

	pool.Deregister(connID)
	if pool.HasHost("h2:7000") {
		t.Error("HasHost after deregister")
	}
	if pool.SendToHost("h2:7000", fedUpdate()) {
		t.Error("SendToHost succeeded after deregister")
	}
}

func TestFederationPoolAuthenticateEvictsPredecessor(t *testing.T) {
	pool := NewFederationPool()

	c1, _, done1 := pool.Register()
	pool.Authenticate(c1, "h2:7000")
	c2, ch2, _ := pool.Register()
	pool.Authenticate(c2, "h2:7000")

	// Simultaneous dials to one host: only the newest connection survives.
	select {
	case <-done1:
	default:
		t.Error("predecessor connection was not closed")
	}
	if pool.Len() != 1 {
		t.Errorf("Len = %d, want 1", pool.Len())
	}
	if !pool.SendToHost("h2:7000", fedUpdate()) {
		t.Error("SendToHost after eviction failed")
	}
	if got := len(drainFed(ch2)); got != 1 {
		t.Errorf("survivor delivered = %d, want 1", got)
	}
}

func TestFederationPoolSendToHostsDeduplicates(t *testing.T) {
	pool := NewFederationPool()

	c1, ch1, _ := pool.Register()
	pool.Authenticate(c1, "h2:7000")
	c2, ch2, _ := pool.Register()
	pool.Authenticate(c2, "h3:7000")

	sent := pool.SendToHosts([]string{"h2:7000", "h3:7000", "h2:7000", "h4:7000"}, fedUpdate())
	if sent != 2 {
		t.Errorf("SendToHosts = %d, want 2", sent)
	}
	if len(drainFed(ch1)) != 1 || len(drainFed(ch2)) != 1 {
		t.Error("each host must receive exactly one copy")
	}
}
