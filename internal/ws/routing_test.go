package ws

import (
	"context"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/models"
)

type fakeMembershipSource struct {
	local  map[uuid.UUID][]models.UserRef
	remote map[uuid.UUID][]models.UserRef
}

func (f *fakeMembershipSource) GetUserRefsByLocalServer(_ context.Context, serverID uuid.UUID) ([]models.UserRef, error) {
	return f.local[serverID], nil
}

func (f *fakeMembershipSource) GetUserRefsByRemoteServer(_ context.Context, serverID uuid.UUID) ([]models.UserRef, error) {
	return f.remote[serverID], nil
}

func TestRoutingIndex(t *testing.T) {
	serverID := uuid.New()
	remoteServerID := uuid.New()
	source := &fakeMembershipSource{
		local: map[uuid.UUID][]models.UserRef{
			serverID: {
				models.NewUserRef("alice", "h1"),
				models.NewUserRef("bob", "h2:7000"),
				models.NewUserRef("carol", "h2:7000"),
				models.NewUserRef("dave", "h3:7001"),
			},
		},
		remote: map[uuid.UUID][]models.UserRef{
			remoteServerID: {models.NewUserRef("alice", "h1")},
		},
	}
	idx := NewRoutingIndex(source, "h1")
	ctx := context.Background()

	hosts, err := idx.HostsForServer(ctx, serverID)
	if err != nil {
		t.Fatalf("HostsForServer: %v", err)
	}
	// Distinct hosts, local host excluded, stable order.
	if want := []string{"h2:7000", "h3:7001"}; !reflect.DeepEqual(hosts, want) {
		t.Errorf("HostsForServer = %v, want %v", hosts, want)
	}

	users, err := idx.UsersForLocalServer(ctx, serverID)
	if err != nil {
		t.Fatalf("UsersForLocalServer: %v", err)
	}
	if want := []models.UserRef{models.NewUserRef("alice", "h1")}; !reflect.DeepEqual(users, want) {
		t.Errorf("UsersForLocalServer = %v, want %v", users, want)
	}

	remote, err := idx.UsersForRemoteServer(ctx, remoteServerID)
	if err != nil {
		t.Fatalf("UsersForRemoteServer: %v", err)
	}
	if len(remote) != 1 || remote[0].Name != "alice" {
		t.Errorf("UsersForRemoteServer = %v", remote)
	}
}
