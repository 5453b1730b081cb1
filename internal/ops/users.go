package ops

import (
	"context"

	"github.com/runelink/runelink/internal/apperr"
	"github.com/runelink/runelink/internal/app"
	"github.com/runelink/runelink/internal/auth"
	"github.com/runelink/runelink/internal/hostutil"
	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/wire"
)

// CreateUser creates a user record and broadcasts it to local clients.
func CreateUser(ctx context.Context, state *app.State, session *auth.Session, newUser *models.NewUser) (*models.User, error) {
	user, err := state.Store.InsertUser(ctx, newUser)
	if err != nil {
		return nil, err
	}
	state.ClientWs.BroadcastUpdate(wire.ClientUpdate{Event: wire.EventUserUpserted, User: user})
	return user, nil
}

// GetAllUsers lists users, locally or from the target host (public).
func GetAllUsers(ctx context.Context, state *app.State, targetHost *string) ([]models.User, error) {
	if !state.Config.IsRemoteHost(targetHost) {
		return state.Store.GetAllUsers(ctx)
	}
	host := *targetHost
	reply, err := request(ctx, state, host, nil, wire.FederationRequest{Action: wire.ActionUsersGetAll})
	if err != nil {
		return nil, err
	}
	if reply.Result != wire.ActionUsersGetAll {
		return nil, apperr.Internalf("Unexpected federation reply from %s for users.get_all", host)
	}
	return reply.Users, nil
}

// GetUserByRef fetches a user from their home host: locally when the ref is
// local, otherwise via federation (public).
func GetUserByRef(ctx context.Context, state *app.State, ref models.UserRef) (*models.User, error) {
	refHost := ref.Host
	if !state.Config.IsRemoteHost(&refHost) {
		return state.Store.GetUserByRef(ctx, ref)
	}
	reply, err := request(ctx, state, refHost, nil, wire.FederationRequest{
		Action:  wire.ActionUsersGetByRef,
		UserRef: &ref,
	})
	if err != nil {
		return nil, err
	}
	if reply.Result != wire.ActionUsersGetByRef || reply.User == nil {
		return nil, apperr.Internalf("Unexpected federation reply from %s for users.get_by_ref", refHost)
	}
	return reply.User, nil
}

// GetAssociatedHosts lists the hosts where a user holds memberships,
// locally or from the target host (public).
func GetAssociatedHosts(ctx context.Context, state *app.State, ref models.UserRef, targetHost *string) ([]string, error) {
	if !state.Config.IsRemoteHost(targetHost) {
		return state.Store.GetAssociatedHosts(ctx, ref)
	}
	host := *targetHost
	reply, err := request(ctx, state, host, nil, wire.FederationRequest{
		Action:  wire.ActionUsersGetAssociatedHosts,
		UserRef: &ref,
	})
	if err != nil {
		return nil, err
	}
	if reply.Result != wire.ActionUsersGetAssociatedHosts {
		return nil, apperr.Internalf("Unexpected federation reply from %s for users.get_associated_hosts", host)
	}
	return reply.Hosts, nil
}

// DeleteHomeUser deletes a user from their home host, broadcasting the
// deletion to local clients and telling every host holding mirrored
// memberships to drop its cached record.
func DeleteHomeUser(ctx context.Context, state *app.State, session *auth.Session, ref models.UserRef) error {
	user, err := state.Store.GetUserByRef(ctx, ref)
	if err != nil {
		return err
	}
	if user.Host != state.Config.LocalHost() {
		return apperr.BadRequest("Can only delete users from their home server")
	}

	foreignHosts, err := state.Store.GetRemoteServerHostsForUser(ctx, ref)
	if err != nil {
		return err
	}

	if err := state.Store.DeleteUser(ctx, ref); err != nil {
		return err
	}
	state.ClientWs.BroadcastUpdate(wire.ClientUpdate{Event: wire.EventUserDeleted, UserRef: &ref})
	state.Federation.SendUpdateToHosts(foreignHosts,
		wire.FederationUpdate{Event: wire.EventRemoteUserDeleted, UserRef: &ref})
	return nil
}

// DeleteRemoteUserRecord removes a cached remote user on behalf of their
// home host. Only the home host may request it, and only for its own users.
func DeleteRemoteUserRecord(ctx context.Context, state *app.State, session *auth.Session, ref models.UserRef) error {
	if session.UserRef == nil {
		return apperr.Auth("User reference required for federated user deletion")
	}
	sessionRef := *session.UserRef
	if sessionRef != ref {
		return apperr.BadRequest("User identity in path does not match user reference in token")
	}
	if sessionRef.Host == state.Config.LocalHost() {
		return apperr.BadRequest("Cannot delete local users via federation")
	}

	if session.Federation == nil {
		return apperr.Auth("Federation claims required")
	}
	if session.Federation.Iss != hostutil.APIURL(sessionRef.Host) {
		return apperr.Auth("Only the home server can delete a user")
	}

	if err := state.Store.DeleteUser(ctx, ref); err != nil {
		return err
	}
	state.ClientWs.BroadcastUpdate(wire.ClientUpdate{Event: wire.EventUserDeleted, UserRef: &ref})
	return nil
}

// Auth requirements for user operations.

func UsersCreateAuth() *auth.Requirement {
	return auth.Client()
}

func UsersDeleteAuth(ref models.UserRef) *auth.Requirement {
	return auth.User(ref).OrAdmin().ClientOnly()
}

func FederatedUsersDeleteAuth(ref models.UserRef) *auth.Requirement {
	return auth.FederatedUser(ref).FederatedOnly()
}
