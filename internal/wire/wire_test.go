package wire

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/models"
)

func strPtr(s string) *string { return &s }

func idPtr(id uuid.UUID) *uuid.UUID { return &id }

func sampleServer() models.Server {
	now := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	return models.Server{
		ID:          uuid.New(),
		Host:        "h2:7000",
		Title:       "g2",
		Description: strPtr("general"),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestClientEnvelopeRoundTrip(t *testing.T) {
	serverID := uuid.New()
	tests := []struct {
		name string
		env  ClientEnvelope
	}{
		{
			"request servers_create",
			ClientRequestEnvelope(uuid.New(), ClientRequest{
				Action:     ActionServersCreate,
				NewServer:  &models.NewServer{Title: "g1"},
				TargetHost: strPtr("h2"),
			}),
		},
		{
			"request ping",
			ClientRequestEnvelope(uuid.New(), ClientRequest{Action: ActionPing}),
		},
		{
			"request messages_delete",
			ClientRequestEnvelope(uuid.New(), ClientRequest{
				Action:    ActionMessagesDelete,
				ServerID:  idPtr(serverID),
				ChannelID: idPtr(uuid.New()),
				MessageID: idPtr(uuid.New()),
			}),
		},
		{
			"reply servers_get_all",
			ClientReplyEnvelope(uuid.New(), ClientReply{
				Result:  ActionServersGetAll,
				Servers: []models.Server{sampleServer()},
			}),
		},
		{
			"reply connection_state",
			ClientReplyEnvelope(uuid.New(), ClientReply{
				Result: ActionConnectionState,
				ConnectionState: &ClientConnectionState{
					State:   StateAuthenticated,
					UserRef: &models.UserRef{Name: "alice", Host: "h1"},
				},
			}),
		},
		{
			"error scoped to request",
			ClientErrorEnvelope(idPtr(uuid.New()), WsError{Code: "auth_error", Message: "Unauthorized: nope"}),
		},
		{
			"update channel_upserted",
			ClientUpdateEnvelope(ClientUpdate{
				Event:   EventChannelUpserted,
				Channel: &models.Channel{ID: uuid.New(), ServerID: serverID, Title: "c1"},
			}),
		},
		{
			"update membership_deleted",
			ClientUpdateEnvelope(ClientUpdate{
				Event:    EventMembershipDeleted,
				ServerID: idPtr(serverID),
				UserRef:  &models.UserRef{Name: "bob", Host: "h2"},
			}),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.env)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			got, err := ParseClientEnvelope(data)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if !reflect.DeepEqual(*got, tc.env) {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", *got, tc.env)
			}
		})
	}
}

func TestFederationEnvelopeRoundTrip(t *testing.T) {
	serverID := uuid.New()
	delegated := &models.UserRef{Name: "alice", Host: "h1"}
	tests := []struct {
		name string
		env  FederationEnvelope
	}{
		{
			"delegated memberships_create",
			FederationRequestEnvelope(uuid.New(), delegated, FederationRequest{
				Action:   ActionMembershipsCreate,
				ServerID: idPtr(serverID),
				NewMembership: &models.NewServerMembership{
					UserRef:    *delegated,
					ServerID:   serverID,
					ServerHost: "h2",
					Role:       models.ServerRoleMember,
				},
			}),
		},
		{
			"server-only servers_get_all",
			FederationRequestEnvelope(uuid.New(), nil, FederationRequest{Action: ActionServersGetAll}),
		},
		{
			"reply servers_create",
			func() FederationEnvelope {
				s := sampleServer()
				return FederationReplyEnvelope(uuid.New(), FederationReply{Result: ActionServersCreate, Server: &s})
			}(),
		},
		{
			"update message_upserted carries server_id",
			FederationUpdateEnvelope(FederationUpdate{
				Event:    EventMessageUpserted,
				ServerID: idPtr(serverID),
				Message:  &models.Message{ID: uuid.New(), ChannelID: uuid.New(), Body: "hi"},
			}),
		},
		{
			"update remote_user_deleted",
			FederationUpdateEnvelope(FederationUpdate{
				Event:   EventRemoteUserDeleted,
				UserRef: delegated,
			}),
		},
		{
			"error without request id",
			FederationErrorEnvelope(nil, WsError{Code: "internal_error", Message: "boom"}),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.env)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			got, err := ParseFederationEnvelope(data)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if !reflect.DeepEqual(*got, tc.env) {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", *got, tc.env)
			}
		})
	}
}

func TestParseRejectsUnknownVariants(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown type", `{"type":"nonsense"}`},
		{"unknown action", `{"type":"request","request_id":"7b8a1ab6-9c5a-4a4f-9a68-3f2c8a3d7e11","request":{"action":"bogus"}}`},
		{"missing request id", `{"type":"request","request":{"action":"ping"}}`},
		{"unknown event", `{"type":"update","event_id":"7b8a1ab6-9c5a-4a4f-9a68-3f2c8a3d7e11","update":{"event":"bogus"}}`},
		{"not json", `{{{`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseClientEnvelope([]byte(tc.data)); err == nil {
				t.Errorf("ParseClientEnvelope accepted %q", tc.data)
			}
		})
	}

	// The client-only auth actions are not valid federation actions.
	data := `{"type":"request","request_id":"7b8a1ab6-9c5a-4a4f-9a68-3f2c8a3d7e11","request":{"action":"auth_signup"}}`
	if _, err := ParseFederationEnvelope([]byte(data)); err == nil {
		t.Error("federation parse accepted a client-only action")
	}
}
