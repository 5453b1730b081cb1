package ws

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/models"
)

// MembershipSource is the store view the routing index reads.
type MembershipSource interface {
	GetUserRefsByLocalServer(ctx context.Context, serverID uuid.UUID) ([]models.UserRef, error)
	GetUserRefsByRemoteServer(ctx context.Context, serverID uuid.UUID) ([]models.UserRef, error)
}

// RoutingIndex answers, for a server, which local users subscribe to it and
// which peer hosts have members on it. It is a stateless view over the
// store.
type RoutingIndex struct {
	source    MembershipSource
	localHost string
}

// NewRoutingIndex creates a routing index.
func NewRoutingIndex(source MembershipSource, localHost string) *RoutingIndex {
	return &RoutingIndex{source: source, localHost: localHost}
}

// HostsForServer returns the distinct hosts holding memberships on a locally
// hosted server, excluding the local host.
func (r *RoutingIndex) HostsForServer(ctx context.Context, serverID uuid.UUID) ([]string, error) {
	refs, err := r.source.GetUserRefsByLocalServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	unique := make(map[string]struct{})
	for _, ref := range refs {
		if ref.Host != r.localHost {
			unique[ref.Host] = struct{}{}
		}
	}
	hosts := make([]string, 0, len(unique))
	for host := range unique {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return hosts, nil
}

// UsersForLocalServer returns the local user refs with a membership on a
// locally hosted server.
func (r *RoutingIndex) UsersForLocalServer(ctx context.Context, serverID uuid.UUID) ([]models.UserRef, error) {
	refs, err := r.source.GetUserRefsByLocalServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	local := make([]models.UserRef, 0, len(refs))
	for _, ref := range refs {
		if ref.Host == r.localHost {
			local = append(local, ref)
		}
	}
	return local, nil
}

// UsersForRemoteServer returns the local user refs holding cached
// memberships on a remote server.
func (r *RoutingIndex) UsersForRemoteServer(ctx context.Context, serverID uuid.UUID) ([]models.UserRef, error) {
	return r.source.GetUserRefsByRemoteServer(ctx, serverID)
}
