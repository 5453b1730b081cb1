package store

import (
	"context"

	"github.com/runelink/runelink/internal/apperr"
	"github.com/runelink/runelink/internal/models"
)

// InsertUser creates a user row and returns the stored record.
func (s *Store) InsertUser(ctx context.Context, newUser *models.NewUser) (*models.User, error) {
	role := newUser.Role
	if role == "" {
		role = models.RoleUser
	}
	var user models.User
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (name, host, role)
		 VALUES ($1, $2, $3)
		 RETURNING name, host, role, created_at, updated_at`,
		newUser.Name, newUser.Host, role,
	).Scan(&user.Name, &user.Host, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &user, nil
}

// GetAllUsers lists every user record known to this host.
func (s *Store) GetAllUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, host, role, created_at, updated_at
		 FROM users ORDER BY host, name`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.Name, &u.Host, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, mapErr(err)
		}
		users = append(users, u)
	}
	return users, mapErr(rows.Err())
}

// GetUserByRef fetches a user by its federation identity.
func (s *Store) GetUserByRef(ctx context.Context, ref models.UserRef) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT name, host, role, created_at, updated_at
		 FROM users WHERE name = $1 AND host = $2`,
		ref.Name, ref.Host,
	).Scan(&u.Name, &u.Host, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

// EnsureUserExists inserts a bare user row if none exists, for foreign-key
// integrity when a federated identity first shows up.
func (s *Store) EnsureUserExists(ctx context.Context, ref models.UserRef) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (name, host) VALUES ($1, $2)
		 ON CONFLICT (name, host) DO NOTHING`,
		ref.Name, ref.Host)
	return mapErr(err)
}

// UpsertRemoteUser mirrors a remotely fetched user record.
func (s *Store) UpsertRemoteUser(ctx context.Context, user *models.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (name, host, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (name, host) DO UPDATE
		 SET role = EXCLUDED.role, updated_at = EXCLUDED.updated_at`,
		user.Name, user.Host, user.Role, user.CreatedAt, user.UpdatedAt)
	return mapErr(err)
}

// DeleteUser removes a user row; dependent rows cascade.
func (s *Store) DeleteUser(ctx context.Context, ref models.UserRef) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM users WHERE name = $1 AND host = $2`,
		ref.Name, ref.Host)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound()
	}
	return nil
}

// GetAssociatedHosts returns the distinct hosts where a user holds
// memberships: the local host for native rows plus the home hosts of
// mirrored remote memberships.
func (s *Store) GetAssociatedHosts(ctx context.Context, ref models.UserRef) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT $3::text AS host
		   FROM server_users
		  WHERE user_name = $1 AND user_host = $2
		 UNION
		 SELECT DISTINCT s.host
		   FROM user_remote_server_memberships m
		   JOIN cached_remote_servers s ON s.id = m.remote_server_id
		  WHERE m.user_name = $1 AND m.user_host = $2
		 ORDER BY host`,
		ref.Name, ref.Host, s.localHost)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	hosts := []string{}
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, mapErr(err)
		}
		hosts = append(hosts, h)
	}
	return hosts, mapErr(rows.Err())
}

// GetRemoteServerHostsForUser returns the distinct home hosts of the remote
// servers a user belongs to, for notifying them on account deletion.
func (s *Store) GetRemoteServerHostsForUser(ctx context.Context, ref models.UserRef) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT s.host
		   FROM user_remote_server_memberships m
		   JOIN cached_remote_servers s ON s.id = m.remote_server_id
		  WHERE m.user_name = $1 AND m.user_host = $2`,
		ref.Name, ref.Host)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	hosts := []string{}
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, mapErr(err)
		}
		hosts = append(hosts, h)
	}
	return hosts, mapErr(rows.Err())
}
