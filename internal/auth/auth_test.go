package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/apperr"
	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/token"
)

// fakeDirectory serves canned users and membership roles and counts queries
// so memoization is observable.
type fakeDirectory struct {
	users       map[models.UserRef]models.User
	roles       map[string]models.ServerRole
	userQueries int
	roleQueries int
}

func roleKey(serverID uuid.UUID, ref models.UserRef) string {
	return serverID.String() + "/" + ref.Subject()
}

func (d *fakeDirectory) GetUserByRef(_ context.Context, ref models.UserRef) (*models.User, error) {
	d.userQueries++
	if u, ok := d.users[ref]; ok {
		return &u, nil
	}
	return nil, apperr.NotFound()
}

func (d *fakeDirectory) MembershipRole(_ context.Context, serverID uuid.UUID, ref models.UserRef) (models.ServerRole, error) {
	d.roleQueries++
	if role, ok := d.roles[roleKey(serverID, ref)]; ok {
		return role, nil
	}
	return "", apperr.NotFound()
}

func clientPrincipal(sub string) Principal {
	return ClientPrincipal(&token.ClientAccessClaims{Sub: sub})
}

func federationPrincipal(delegated *models.UserRef) Principal {
	return FederationPrincipal(&token.FederationClaims{
		Iss:     "http://h2:7000",
		Sub:     "http://h2:7000",
		UserRef: delegated,
	})
}

func TestAuthorize(t *testing.T) {
	alice := models.NewUserRef("alice", "h1")
	bob := models.NewUserRef("bob", "h1")
	root := models.NewUserRef("root", "h1")
	serverID := uuid.New()
	otherServer := uuid.New()

	dir := &fakeDirectory{
		users: map[models.UserRef]models.User{
			alice: {Name: "alice", Host: "h1", Role: models.RoleUser},
			root:  {Name: "root", Host: "h1", Role: models.RoleAdmin},
		},
		roles: map[string]models.ServerRole{
			roleKey(serverID, alice): models.ServerRoleAdmin,
			roleKey(serverID, bob):   models.ServerRoleMember,
		},
	}

	tests := []struct {
		name      string
		principal Principal
		req       *Requirement
		wantOK    bool
		reason    string
	}{
		{"always grants", clientPrincipal("alice@h1"), Always(), true, ""},
		{"never denies", clientPrincipal("alice@h1"), Never(), false, "disabled"},
		{"client ok", clientPrincipal("alice@h1"), Client(), true, ""},
		{"client denies federation", federationPrincipal(nil), Client(), false, "Client authentication"},
		{"host admin grants", clientPrincipal("root@h1"), HostAdmin(), true, ""},
		{"host admin denies plain user", clientPrincipal("alice@h1"), HostAdmin(), false, "Host admin"},
		{"user match", clientPrincipal("alice@h1"), User(alice), true, ""},
		{"user mismatch", clientPrincipal("bob@h1"), User(alice), false, "authenticated as"},
		{"server member grants", clientPrincipal("bob@h1"), ServerMember(serverID), true, ""},
		{"server member denies outsider", clientPrincipal("root@h1"), ServerMember(serverID), false, "membership"},
		{"server admin grants", clientPrincipal("alice@h1"), ServerAdmin(serverID), true, ""},
		{"server admin denies member", clientPrincipal("bob@h1"), ServerAdmin(serverID), false, "admin role"},
		{"server admin denies other server", clientPrincipal("alice@h1"), ServerAdmin(otherServer), false, "admin role"},
		{"federated user match", federationPrincipal(&alice), FederatedUser(alice), true, ""},
		{"federated user mismatch", federationPrincipal(&bob), FederatedUser(alice), false, "delegated"},
		{"federated user denies client", clientPrincipal("alice@h1"), FederatedUser(alice), false, "Federation authentication"},
		{"or admin fallback", clientPrincipal("root@h1"), ServerMember(serverID).OrAdmin(), true, ""},
		{"or short circuit", clientPrincipal("bob@h1"), Or(ServerMember(serverID), Never()), true, ""},
		{"client only denies federation", federationPrincipal(&alice), Always().ClientOnly(), false, "not available over federation"},
		{"federated only denies client", clientPrincipal("alice@h1"), Always().FederatedOnly(), false, "only available over federation"},
		{"federated member via delegation", federationPrincipal(&bob), ServerMember(serverID).FederatedOnly(), true, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			session, err := Authorize(context.Background(), dir, tc.principal, tc.req)
			if tc.wantOK {
				if err != nil {
					t.Fatalf("Authorize err = %v, want grant", err)
				}
				if session == nil {
					t.Fatal("granted but session is nil")
				}
				return
			}
			if err == nil {
				t.Fatal("Authorize granted, want denial")
			}
			appErr := apperr.From(err)
			if appErr.Kind != apperr.KindAuth {
				t.Errorf("kind = %v, want auth", appErr.Kind)
			}
			if tc.reason != "" && !strings.Contains(appErr.Message, tc.reason) {
				t.Errorf("reason = %q, want containing %q", appErr.Message, tc.reason)
			}
		})
	}
}

func TestSessionMemoizesLookups(t *testing.T) {
	alice := models.NewUserRef("alice", "h1")
	serverID := uuid.New()
	dir := &fakeDirectory{
		users: map[models.UserRef]models.User{
			alice: {Name: "alice", Host: "h1", Role: models.RoleAdmin},
		},
		roles: map[string]models.ServerRole{
			roleKey(serverID, alice): models.ServerRoleMember,
		},
	}

	// Both Or branches consult the membership, which must be queried once;
	// ServerMember grants, so the admin fallback is not evaluated. The user
	// lookup's memoization is checked through the two LookupUser calls below.
	req := Or(ServerAdmin(serverID), ServerMember(serverID)).OrAdmin()
	session, err := Authorize(context.Background(), dir, clientPrincipal("alice@h1"), req)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if dir.roleQueries != 1 {
		t.Errorf("roleQueries = %d, want 1 (memoized)", dir.roleQueries)
	}

	if _, err := session.LookupUser(context.Background()); err != nil {
		t.Fatalf("LookupUser: %v", err)
	}
	if _, err := session.LookupUser(context.Background()); err != nil {
		t.Fatalf("LookupUser: %v", err)
	}
	if dir.userQueries != 1 {
		t.Errorf("userQueries = %d, want 1 (memoized)", dir.userQueries)
	}
}

func TestAuthorizeRejectsBadSubject(t *testing.T) {
	dir := &fakeDirectory{}
	if _, err := Authorize(context.Background(), dir, clientPrincipal("no-at-sign"), Always()); err == nil {
		t.Error("accepted a malformed subject")
	}
}

func TestSessionCarriesFederationClaims(t *testing.T) {
	alice := models.NewUserRef("alice", "h1")
	dir := &fakeDirectory{}
	session, err := Authorize(context.Background(), dir, federationPrincipal(&alice), Always())
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if session.Federation == nil || session.Federation.Iss != "http://h2:7000" {
		t.Errorf("Federation claims not carried: %+v", session.Federation)
	}
	if session.UserRef == nil || *session.UserRef != alice {
		t.Errorf("UserRef = %v, want %v", session.UserRef, alice)
	}
}
