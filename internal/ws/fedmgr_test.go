package ws

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/wire"
)

func newTestFedMgr() *FederationManager {
	return NewFederationManager(slog.Default())
}

// connectHost registers and authenticates a fake peer connection, returning
// its outbound channel so the test can inspect what would hit the socket.
func connectHost(t *testing.T, m *FederationManager, host string) (uuid.UUID, <-chan wire.FederationEnvelope) {
	t.Helper()
	connID, ch, _ := m.Register()
	if !m.Authenticate(connID, host) {
		t.Fatalf("authenticate %s failed", host)
	}
	return connID, ch
}

func TestSendRequestToHostCorrelatesReply(t *testing.T) {
	m := newTestFedMgr()
	_, ch := connectHost(t, m, "h2:7000")

	type result struct {
		reply *wire.FederationReply
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := m.SendRequestToHost(context.Background(), "h2",
			nil, wire.FederationRequest{Action: wire.ActionServersGetAll}, time.Second)
		done <- result{reply, err}
	}()

	// The request frame shows up on the peer connection's outbound queue.
	var env wire.FederationEnvelope
	select {
	case env = <-ch:
	case <-time.After(time.Second):
		t.Fatal("request never sent")
	}
	if env.Type != wire.TypeRequest || env.Request.Action != wire.ActionServersGetAll {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	// Answer it: the waiter completes with the typed reply.
	reply := wire.FederationReplyEnvelope(*env.RequestID, wire.FederationReply{Result: wire.ActionServersGetAll})
	if !m.ResolveResponse(&reply) {
		t.Fatal("ResolveResponse did not match the waiter")
	}

	res := <-done
	if res.err != nil {
		t.Fatalf("SendRequestToHost: %v", res.err)
	}
	if res.reply.Result != wire.ActionServersGetAll {
		t.Errorf("reply result = %q", res.reply.Result)
	}
	if m.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0", m.PendingCount())
	}

	// A second resolve for the same request id finds no waiter.
	if m.ResolveResponse(&reply) {
		t.Error("waiter completed twice")
	}
}

func TestSendRequestToHostRemoteError(t *testing.T) {
	m := newTestFedMgr()
	_, ch := connectHost(t, m, "h2:7000")

	done := make(chan error, 1)
	go func() {
		_, err := m.SendRequestToHost(context.Background(), "h2",
			nil, wire.FederationRequest{Action: wire.ActionServersGetByID}, time.Second)
		done <- err
	}()

	env := <-ch
	errEnv := wire.FederationErrorEnvelope(env.RequestID, wire.WsError{
		Code: "not_found", Message: "Resource not found",
	})
	if !m.ResolveResponse(&errEnv) {
		t.Fatal("error envelope did not match the waiter")
	}

	err := <-done
	if err == nil || !strings.Contains(err.Error(), "Resource not found") {
		t.Errorf("err = %v, want remote not-found", err)
	}
}

func TestSendRequestToHostTimeoutRemovesWaiter(t *testing.T) {
	m := newTestFedMgr()
	_, ch := connectHost(t, m, "h2:7000")

	_, err := m.SendRequestToHost(context.Background(), "h2",
		nil, wire.FederationRequest{Action: wire.ActionServersGetAll}, 20*time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "Timed out") {
		t.Fatalf("err = %v, want timeout", err)
	}
	if m.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0 after timeout", m.PendingCount())
	}

	// A late reply is dropped, not delivered to a later waiter.
	env := <-ch
	late := wire.FederationReplyEnvelope(*env.RequestID, wire.FederationReply{Result: wire.ActionServersGetAll})
	if m.ResolveResponse(&late) {
		t.Error("late reply matched a waiter")
	}
}

func TestSendRequestToNeverConnectedHost(t *testing.T) {
	m := newTestFedMgr()
	dialAttempts := 0
	m.SetDialer(func(ctx context.Context, host string) bool {
		dialAttempts++
		return false
	})

	_, err := m.SendRequestToHost(context.Background(), "h9",
		nil, wire.FederationRequest{Action: wire.ActionServersGetAll}, time.Second)
	if err == nil || !strings.Contains(err.Error(), "No active federation connection") {
		t.Fatalf("err = %v, want host unavailable", err)
	}
	if dialAttempts != 1 {
		t.Errorf("dial attempts = %d, want exactly 1", dialAttempts)
	}
	// Dial failure must not leave a dangling waiter.
	if m.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0", m.PendingCount())
	}
}

func TestSendRequestAutoDial(t *testing.T) {
	m := newTestFedMgr()
	dialed := make(chan (<-chan wire.FederationEnvelope), 1)
	m.SetDialer(func(ctx context.Context, host string) bool {
		// Simulate a successful dial: register and bind a connection.
		connID, outCh, _ := m.Register()
		dialed <- outCh
		return m.Authenticate(connID, host)
	})

	done := make(chan error, 1)
	go func() {
		_, err := m.SendRequestToHost(context.Background(), "h2",
			nil, wire.FederationRequest{Action: wire.ActionServersGetAll}, time.Second)
		done <- err
	}()

	// Wait for the dialed connection to carry the request, then reply.
	var ch <-chan wire.FederationEnvelope
	select {
	case ch = <-dialed:
	case <-time.After(time.Second):
		t.Fatal("dialer never invoked")
	}
	var env wire.FederationEnvelope
	select {
	case env = <-ch:
	case <-time.After(time.Second):
		t.Fatal("request never sent on dialed connection")
	}
	reply := wire.FederationReplyEnvelope(*env.RequestID, wire.FederationReply{Result: wire.ActionServersGetAll})
	m.ResolveResponse(&reply)

	if err := <-done; err != nil {
		t.Fatalf("SendRequestToHost after auto-dial: %v", err)
	}
}

func TestBroadcastAndTargetedUpdates(t *testing.T) {
	m := newTestFedMgr()
	_, ch2 := connectHost(t, m, "h2:7000")
	_, ch3 := connectHost(t, m, "h3:7000")

	update := wire.FederationUpdate{Event: wire.EventServerDeleted, ServerID: wire.NewEventID()}
	if sent := m.SendUpdateToHosts([]string{"h2", "h3", "h2"}, update); sent != 2 {
		t.Errorf("SendUpdateToHosts = %d, want 2", sent)
	}
	if len(drainFed(ch2)) != 1 || len(drainFed(ch3)) != 1 {
		t.Error("hosts did not each receive one update")
	}

	if sent := m.BroadcastUpdate(update); sent != 2 {
		t.Errorf("BroadcastUpdate = %d, want 2", sent)
	}
}
