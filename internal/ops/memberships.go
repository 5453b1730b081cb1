package ops

import (
	"context"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/apperr"
	"github.com/runelink/runelink/internal/app"
	"github.com/runelink/runelink/internal/auth"
	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/wire"
)

// CreateMembership joins a user to a server. For a remote server the join is
// proxied to the server's home host and the result mirrored locally; for a
// local server a remote user is first resolved (and cached) via federation.
func CreateMembership(ctx context.Context, state *app.State, session *auth.Session, newMembership *models.NewServerMembership) (*models.FullServerMembership, error) {
	serverHost := newMembership.ServerHost
	if state.Config.IsRemoteHost(&serverHost) {
		// The home server only creates remote memberships for its own users.
		userHost := newMembership.UserRef.Host
		if state.Config.IsRemoteHost(&userHost) {
			return nil, apperr.BadRequest("User host in membership does not match local host")
		}
		userRef := newMembership.UserRef
		reply, err := request(ctx, state, serverHost, &userRef, wire.FederationRequest{
			Action:        wire.ActionMembershipsCreate,
			ServerID:      &newMembership.ServerID,
			NewMembership: newMembership,
		})
		if err != nil {
			return nil, err
		}
		if reply.Result != wire.ActionMembershipsCreate || reply.Membership == nil {
			return nil, apperr.Internalf("Unexpected federation reply from %s for memberships.create", serverHost)
		}
		full := reply.Membership

		// Mirror the remote server and the membership locally; synced_at
		// comes from the cached row.
		if err := state.Store.UpsertRemoteServer(ctx, &full.Server); err != nil {
			return nil, err
		}
		cached, err := state.Store.InsertRemoteMembership(ctx, ptr(full.AsMembership()))
		if err != nil {
			return nil, err
		}
		result := cached.AsFull(full.User)
		return &result, nil
	}

	// A remote user joining a local server must exist locally first.
	if newMembership.UserRef.Host != state.Config.LocalHost() {
		if _, err := state.Store.GetUserByRef(ctx, newMembership.UserRef); err != nil {
			if !apperr.IsNotFound(err) {
				return nil, err
			}
			host := newMembership.UserRef.Host
			userRef := newMembership.UserRef
			reply, err := request(ctx, state, host, nil, wire.FederationRequest{
				Action:  wire.ActionUsersGetByRef,
				UserRef: &userRef,
			})
			if err != nil {
				return nil, err
			}
			if reply.Result != wire.ActionUsersGetByRef || reply.User == nil {
				return nil, apperr.Internalf("Unexpected federation reply from %s for users.get_by_ref", host)
			}
			if err := state.Store.UpsertRemoteUser(ctx, reply.User); err != nil {
				return nil, err
			}
		}
	}

	member, err := state.Store.InsertLocalMembership(ctx, newMembership)
	if err != nil {
		return nil, err
	}
	membership, err := state.Store.GetLocalMembershipByUserAndServer(ctx, newMembership.ServerID, newMembership.UserRef)
	if err != nil {
		return nil, err
	}
	full := membership.AsFull(member.User)

	fanoutServerUpdate(ctx, state, newMembership.ServerID,
		wire.ClientUpdate{Event: wire.EventMembershipUpserted, Membership: &full},
		wire.FederationUpdate{Event: wire.EventMembershipUpserted, Membership: &full})
	return &full, nil
}

// GetMembersByServer lists a server's members, locally or from the target
// host (public).
func GetMembersByServer(ctx context.Context, state *app.State, serverID uuid.UUID, targetHost *string) ([]models.ServerMember, error) {
	if !state.Config.IsRemoteHost(targetHost) {
		return state.Store.GetMembersByServer(ctx, serverID)
	}
	host := *targetHost
	reply, err := request(ctx, state, host, nil, wire.FederationRequest{
		Action:   wire.ActionMembershipsGetMembersByServer,
		ServerID: &serverID,
	})
	if err != nil {
		return nil, err
	}
	if reply.Result != wire.ActionMembershipsGetMembersByServer {
		return nil, apperr.Internalf("Unexpected federation reply from %s for memberships.get_members_by_server", host)
	}
	return reply.Members, nil
}

// GetMemberByUserAndServer fetches one member, locally or from the target
// host (public).
func GetMemberByUserAndServer(ctx context.Context, state *app.State, serverID uuid.UUID, ref models.UserRef, targetHost *string) (*models.ServerMember, error) {
	if !state.Config.IsRemoteHost(targetHost) {
		return state.Store.GetLocalMemberByUserAndServer(ctx, serverID, ref)
	}
	host := *targetHost
	reply, err := request(ctx, state, host, nil, wire.FederationRequest{
		Action:   wire.ActionMembershipsGetByUserAndServer,
		ServerID: &serverID,
		UserRef:  &ref,
	})
	if err != nil {
		return nil, err
	}
	if reply.Result != wire.ActionMembershipsGetByUserAndServer || reply.Member == nil {
		return nil, apperr.Internalf("Unexpected federation reply from %s for memberships.get_by_user_and_server", host)
	}
	return reply.Member, nil
}

// GetMembershipsByUser lists a user's memberships from the local store,
// native and mirrored (public).
func GetMembershipsByUser(ctx context.Context, state *app.State, ref models.UserRef) ([]models.ServerMembership, error) {
	return state.Store.GetMembershipsByUser(ctx, ref)
}

// DeleteMembership removes a membership. The caller must be leaving as
// themselves; a remote server is told via federation and the local mirror
// removed best-effort.
func DeleteMembership(ctx context.Context, state *app.State, session *auth.Session, serverID uuid.UUID, ref models.UserRef, targetHost *string) error {
	if session.UserRef == nil {
		return apperr.Auth("User reference required for leaving server")
	}
	sessionRef := *session.UserRef
	if sessionRef != ref {
		return apperr.BadRequest("User identity in path does not match authenticated user")
	}

	if !state.Config.IsRemoteHost(targetHost) {
		// The leaving user still gets the update, and their home host is
		// told so it can clean its mirror.
		targets, err := resolveServerTargets(ctx, state, serverID)
		if err != nil {
			return err
		}
		if !containsRef(targets.LocalUsers, ref) {
			targets.LocalUsers = append(targets.LocalUsers, ref)
		}
		if ref.Host != state.Config.LocalHost() {
			targets.RemoteHosts = append(targets.RemoteHosts, ref.Host)
		}

		if _, err := state.Store.GetLocalMemberByUserAndServer(ctx, serverID, ref); err != nil {
			return err
		}
		if err := state.Store.DeleteLocalMembership(ctx, serverID, ref); err != nil {
			return err
		}
		fanoutUpdate(state, targets,
			wire.ClientUpdate{Event: wire.EventMembershipDeleted, ServerID: &serverID, UserRef: &sessionRef},
			wire.FederationUpdate{Event: wire.EventMembershipDeleted, ServerID: &serverID, UserRef: &sessionRef})
		return nil
	}

	host := *targetHost
	reply, err := request(ctx, state, host, &ref, wire.FederationRequest{
		Action:   wire.ActionMembershipsDelete,
		ServerID: &serverID,
		UserRef:  &ref,
	})
	if err != nil {
		return err
	}
	if reply.Result != wire.ActionMembershipsDelete {
		return apperr.Internalf("Unexpected federation reply from %s for memberships.delete", host)
	}
	// Best-effort removal of the local mirror row.
	if err := state.Store.DeleteRemoteMembership(ctx, serverID, ref); err != nil && !apperr.IsNotFound(err) {
		state.Logger.Warn("failed to delete mirrored membership",
			"server_id", serverID, "user", ref.Subject(), "error", err.Error())
	}
	return nil
}

func containsRef(refs []models.UserRef, ref models.UserRef) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}

func ptr[T any](v T) *T { return &v }

// Auth requirements for membership operations.

func MembershipsCreateAuth(serverID uuid.UUID) *auth.Requirement {
	return auth.Always().OrAdmin().ClientOnly()
}

func MembershipsDeleteAuth(serverID uuid.UUID, ref models.UserRef) *auth.Requirement {
	return auth.Or(auth.User(ref), auth.ServerAdmin(serverID)).OrAdmin().ClientOnly()
}

func FederatedMembershipsCreateAuth(serverID uuid.UUID, ref models.UserRef) *auth.Requirement {
	return auth.FederatedUser(ref).FederatedOnly()
}

func FederatedMembershipsDeleteAuth(serverID uuid.UUID, ref models.UserRef) *auth.Requirement {
	return auth.FederatedUser(ref).FederatedOnly()
}
