package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseSubject(t *testing.T) {
	tests := []struct {
		name string
		sub  string
		want UserRef
		ok   bool
	}{
		{"simple", "alice@h1", UserRef{Name: "alice", Host: "h1"}, true},
		{"with port", "alice@h1:7000", UserRef{Name: "alice", Host: "h1:7000"}, true},
		{"missing at", "alice", UserRef{}, false},
		{"empty name", "@h1", UserRef{}, false},
		{"empty host", "alice@", UserRef{}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseSubject(tc.sub)
			if ok != tc.ok || got != tc.want {
				t.Errorf("ParseSubject(%q) = %v, %v; want %v, %v", tc.sub, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestSubjectRoundTrip(t *testing.T) {
	ref := NewUserRef("bob", "h2:8080")
	got, ok := ParseSubject(ref.Subject())
	if !ok || got != ref {
		t.Errorf("round trip = %v, %v", got, ok)
	}
}

func TestFullMembershipConversions(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	synced := now.Add(time.Minute)
	user := User{Name: "alice", Host: "h1", Role: RoleUser, CreatedAt: now, UpdatedAt: now}
	full := FullServerMembership{
		Server: Server{
			ID:        uuid.New(),
			Host:      "h2",
			Title:     "g2",
			CreatedAt: now,
			UpdatedAt: now,
		},
		User:      user,
		Role:      ServerRoleMember,
		JoinedAt:  now,
		UpdatedAt: now,
		SyncedAt:  &synced,
	}

	// FullServerMembership -> ServerMembership preserves every field, with
	// user_ref reconstructed from the user record.
	membership := full.AsMembership()
	if membership.UserRef != user.Ref() {
		t.Errorf("UserRef = %v, want %v", membership.UserRef, user.Ref())
	}
	if membership.Server != full.Server || membership.Role != full.Role ||
		!membership.JoinedAt.Equal(full.JoinedAt) || membership.SyncedAt != full.SyncedAt {
		t.Error("membership fields not preserved")
	}

	// ServerMembership + user -> FullServerMembership round-trips.
	back := membership.AsFull(user)
	if back.User != user || back.Server != full.Server || back.Role != full.Role {
		t.Error("AsFull did not round-trip")
	}

	member := full.AsMember()
	if member.User != user || member.Role != full.Role {
		t.Error("AsMember dropped fields")
	}
}

func TestMessageJSON(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	msg := Message{
		ID:        uuid.New(),
		ChannelID: uuid.New(),
		Author:    &User{Name: "alice", Host: "h1", Role: RoleUser, CreatedAt: now, UpdatedAt: now},
		Body:      "hello",
		CreatedAt: now,
		UpdatedAt: now,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != msg.ID || got.Body != msg.Body || got.Author == nil || got.Author.Name != "alice" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}
