package router

import (
	"testing"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/wire"
)

func idPtr(id uuid.UUID) *uuid.UUID { return &id }

func TestMapFederationUpdate(t *testing.T) {
	serverID := uuid.New()
	channelID := uuid.New()
	messageID := uuid.New()
	ref := models.NewUserRef("alice", "h1")

	tests := []struct {
		name       string
		update     wire.FederationUpdate
		wantServer uuid.UUID
		wantEvent  string
	}{
		{
			"membership upserted",
			wire.FederationUpdate{
				Event: wire.EventMembershipUpserted,
				Membership: &models.FullServerMembership{
					Server: models.Server{ID: serverID, Host: "h2"},
					User:   models.User{Name: "bob", Host: "h2"},
				},
			},
			serverID, wire.EventMembershipUpserted,
		},
		{
			"membership deleted",
			wire.FederationUpdate{Event: wire.EventMembershipDeleted, ServerID: idPtr(serverID), UserRef: &ref},
			serverID, wire.EventMembershipDeleted,
		},
		{
			"server upserted",
			wire.FederationUpdate{Event: wire.EventServerUpserted, Server: &models.Server{ID: serverID}},
			serverID, wire.EventServerUpserted,
		},
		{
			"channel upserted routes by the channel's server",
			wire.FederationUpdate{Event: wire.EventChannelUpserted, Channel: &models.Channel{ID: channelID, ServerID: serverID}},
			serverID, wire.EventChannelUpserted,
		},
		{
			"message upserted uses the explicit server id",
			wire.FederationUpdate{
				Event:    wire.EventMessageUpserted,
				ServerID: idPtr(serverID),
				Message:  &models.Message{ID: messageID, ChannelID: channelID, Body: "hi"},
			},
			serverID, wire.EventMessageUpserted,
		},
		{
			"message deleted",
			wire.FederationUpdate{
				Event:     wire.EventMessageDeleted,
				ServerID:  idPtr(serverID),
				ChannelID: idPtr(channelID),
				MessageID: idPtr(messageID),
			},
			serverID, wire.EventMessageDeleted,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gotServer, clientUpdate, err := mapFederationUpdate(&tc.update)
			if err != nil {
				t.Fatalf("mapFederationUpdate: %v", err)
			}
			if gotServer != tc.wantServer {
				t.Errorf("server id = %v, want %v", gotServer, tc.wantServer)
			}
			if clientUpdate.Event != tc.wantEvent {
				t.Errorf("event = %q, want %q", clientUpdate.Event, tc.wantEvent)
			}
		})
	}
}

func TestMapFederationUpdateRejectsIncomplete(t *testing.T) {
	tests := []struct {
		name   string
		update wire.FederationUpdate
	}{
		{"membership upserted without payload", wire.FederationUpdate{Event: wire.EventMembershipUpserted}},
		{"message upserted without server id", wire.FederationUpdate{
			Event:   wire.EventMessageUpserted,
			Message: &models.Message{},
		}},
		{"unknown event", wire.FederationUpdate{Event: "bogus"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := mapFederationUpdate(&tc.update); err == nil {
				t.Error("expected error")
			}
		})
	}
}
