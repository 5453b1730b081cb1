package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/models"
)

// InsertLocalMembership creates a native membership row on a locally hosted
// server and returns the resulting member view.
func (s *Store) InsertLocalMembership(ctx context.Context, newMembership *models.NewServerMembership) (*models.ServerMember, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO server_users (server_id, user_name, user_host, role)
		 VALUES ($1, $2, $3, $4)`,
		newMembership.ServerID, newMembership.UserRef.Name,
		newMembership.UserRef.Host, newMembership.Role)
	if err != nil {
		return nil, mapErr(err)
	}
	return s.GetLocalMemberByUserAndServer(ctx, newMembership.ServerID, newMembership.UserRef)
}

// GetLocalMemberByUserAndServer fetches the member view of one native
// membership, with the user record resolved.
func (s *Store) GetLocalMemberByUserAndServer(ctx context.Context, serverID uuid.UUID, ref models.UserRef) (*models.ServerMember, error) {
	var member models.ServerMember
	err := s.pool.QueryRow(ctx,
		`SELECT u.name, u.host, u.role, u.created_at, u.updated_at,
		        su.role, su.created_at, su.updated_at
		 FROM server_users su
		 JOIN users u ON u.name = su.user_name AND u.host = su.user_host
		 WHERE su.server_id = $1 AND su.user_name = $2 AND su.user_host = $3`,
		serverID, ref.Name, ref.Host,
	).Scan(
		&member.User.Name, &member.User.Host, &member.User.Role,
		&member.User.CreatedAt, &member.User.UpdatedAt,
		&member.Role, &member.JoinedAt, &member.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &member, nil
}

// GetLocalMembershipByUserAndServer fetches one native membership keyed by
// user reference.
func (s *Store) GetLocalMembershipByUserAndServer(ctx context.Context, serverID uuid.UUID, ref models.UserRef) (*models.ServerMembership, error) {
	m := models.ServerMembership{UserRef: ref}
	m.Server.Host = s.localHost
	err := s.pool.QueryRow(ctx,
		`SELECT sv.id, sv.title, sv.description, sv.created_at, sv.updated_at,
		        su.role, su.created_at, su.updated_at
		 FROM server_users su
		 JOIN servers sv ON sv.id = su.server_id
		 WHERE su.server_id = $1 AND su.user_name = $2 AND su.user_host = $3`,
		serverID, ref.Name, ref.Host,
	).Scan(
		&m.Server.ID, &m.Server.Title, &m.Server.Description,
		&m.Server.CreatedAt, &m.Server.UpdatedAt,
		&m.Role, &m.JoinedAt, &m.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

// GetMembersByServer lists the members of a locally hosted server.
func (s *Store) GetMembersByServer(ctx context.Context, serverID uuid.UUID) ([]models.ServerMember, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT u.name, u.host, u.role, u.created_at, u.updated_at,
		        su.role, su.created_at, su.updated_at
		 FROM server_users su
		 JOIN users u ON u.name = su.user_name AND u.host = su.user_host
		 WHERE su.server_id = $1
		 ORDER BY u.name, u.host`, serverID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	members := []models.ServerMember{}
	for rows.Next() {
		var member models.ServerMember
		if err := rows.Scan(
			&member.User.Name, &member.User.Host, &member.User.Role,
			&member.User.CreatedAt, &member.User.UpdatedAt,
			&member.Role, &member.JoinedAt, &member.UpdatedAt); err != nil {
			return nil, mapErr(err)
		}
		members = append(members, member)
	}
	return members, mapErr(rows.Err())
}

// GetMembershipsByUser lists all memberships of a user: native rows on this
// host plus mirrored rows for remote servers.
func (s *Store) GetMembershipsByUser(ctx context.Context, ref models.UserRef) ([]models.ServerMembership, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sv.id, $3::text AS host, sv.title, sv.description,
		        sv.created_at, sv.updated_at,
		        su.role, su.created_at, su.updated_at, NULL::timestamptz
		   FROM server_users su
		   JOIN servers sv ON sv.id = su.server_id
		  WHERE su.user_name = $1 AND su.user_host = $2
		 UNION ALL
		 SELECT cs.id, cs.host, cs.title, cs.description,
		        cs.remote_created_at, cs.remote_updated_at,
		        m.role, m.remote_created_at, m.remote_updated_at, m.synced_at
		   FROM user_remote_server_memberships m
		   JOIN cached_remote_servers cs ON cs.id = m.remote_server_id
		  WHERE m.user_name = $1 AND m.user_host = $2
		 ORDER BY 8`,
		ref.Name, ref.Host, s.localHost)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	memberships := []models.ServerMembership{}
	for rows.Next() {
		m := models.ServerMembership{UserRef: ref}
		if err := rows.Scan(
			&m.Server.ID, &m.Server.Host, &m.Server.Title, &m.Server.Description,
			&m.Server.CreatedAt, &m.Server.UpdatedAt,
			&m.Role, &m.JoinedAt, &m.UpdatedAt, &m.SyncedAt); err != nil {
			return nil, mapErr(err)
		}
		memberships = append(memberships, m)
	}
	return memberships, mapErr(rows.Err())
}

// InsertRemoteMembership mirrors a membership whose home is another host and
// returns the stored row with its synced_at stamp.
func (s *Store) InsertRemoteMembership(ctx context.Context, membership *models.ServerMembership) (*models.ServerMembership, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_remote_server_memberships
		     (user_name, user_host, remote_server_id, role,
		      remote_created_at, remote_updated_at, synced_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (remote_server_id, user_name, user_host) DO UPDATE
		 SET role = EXCLUDED.role,
		     remote_updated_at = EXCLUDED.remote_updated_at,
		     synced_at = now()`,
		membership.UserRef.Name, membership.UserRef.Host,
		membership.Server.ID, membership.Role,
		membership.JoinedAt, membership.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}

	m := models.ServerMembership{UserRef: membership.UserRef}
	var syncedAt time.Time
	err = s.pool.QueryRow(ctx,
		`SELECT cs.id, cs.host, cs.title, cs.description,
		        cs.remote_created_at, cs.remote_updated_at,
		        m.role, m.remote_created_at, m.remote_updated_at, m.synced_at
		 FROM cached_remote_servers cs
		 JOIN user_remote_server_memberships m ON cs.id = m.remote_server_id
		 WHERE m.user_name = $1 AND m.user_host = $2 AND m.remote_server_id = $3`,
		membership.UserRef.Name, membership.UserRef.Host, membership.Server.ID,
	).Scan(
		&m.Server.ID, &m.Server.Host, &m.Server.Title, &m.Server.Description,
		&m.Server.CreatedAt, &m.Server.UpdatedAt,
		&m.Role, &m.JoinedAt, &m.UpdatedAt, &syncedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	m.SyncedAt = &syncedAt
	return &m, nil
}

// DeleteLocalMembership removes a native membership row.
func (s *Store) DeleteLocalMembership(ctx context.Context, serverID uuid.UUID, ref models.UserRef) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM server_users
		 WHERE server_id = $1 AND user_name = $2 AND user_host = $3`,
		serverID, ref.Name, ref.Host)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return notFound()
	}
	return nil
}

// DeleteRemoteMembership removes a mirrored membership row.
func (s *Store) DeleteRemoteMembership(ctx context.Context, serverID uuid.UUID, ref models.UserRef) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM user_remote_server_memberships
		 WHERE remote_server_id = $1 AND user_name = $2 AND user_host = $3`,
		serverID, ref.Name, ref.Host)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return notFound()
	}
	return nil
}

// GetUserRefsByLocalServer lists the user refs holding native memberships on
// a locally hosted server.
func (s *Store) GetUserRefsByLocalServer(ctx context.Context, serverID uuid.UUID) ([]models.UserRef, error) {
	return s.queryUserRefs(ctx,
		`SELECT user_name, user_host FROM server_users
		 WHERE server_id = $1 ORDER BY user_name, user_host`, serverID)
}

// GetUserRefsByRemoteServer lists the local user refs holding mirrored
// memberships on a remote server.
func (s *Store) GetUserRefsByRemoteServer(ctx context.Context, serverID uuid.UUID) ([]models.UserRef, error) {
	return s.queryUserRefs(ctx,
		`SELECT user_name, user_host FROM user_remote_server_memberships
		 WHERE remote_server_id = $1 ORDER BY user_name, user_host`, serverID)
}

// MembershipRole looks up a user's role on a server, consulting native rows
// first and remote mirrors second. Used by the authorization engine.
func (s *Store) MembershipRole(ctx context.Context, serverID uuid.UUID, ref models.UserRef) (models.ServerRole, error) {
	var role models.ServerRole
	err := s.pool.QueryRow(ctx,
		`SELECT role FROM server_users
		 WHERE server_id = $1 AND user_name = $2 AND user_host = $3
		 UNION ALL
		 SELECT role FROM user_remote_server_memberships
		 WHERE remote_server_id = $1 AND user_name = $2 AND user_host = $3
		 LIMIT 1`,
		serverID, ref.Name, ref.Host,
	).Scan(&role)
	if err != nil {
		return "", mapErr(err)
	}
	return role, nil
}

func (s *Store) queryUserRefs(ctx context.Context, sql string, args ...any) ([]models.UserRef, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	refs := []models.UserRef{}
	for rows.Next() {
		var ref models.UserRef
		if err := rows.Scan(&ref.Name, &ref.Host); err != nil {
			return nil, mapErr(err)
		}
		refs = append(refs, ref)
	}
	return refs, mapErr(rows.Err())
}
