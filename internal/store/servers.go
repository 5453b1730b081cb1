package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/models"
)

// InsertServer creates a server hosted on this instance.
func (s *Store) InsertServer(ctx context.Context, newServer *models.NewServer) (*models.Server, error) {
	server := models.Server{Host: s.localHost}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO servers (title, description)
		 VALUES ($1, $2)
		 RETURNING id, title, description, created_at, updated_at`,
		newServer.Title, newServer.Description,
	).Scan(&server.ID, &server.Title, &server.Description, &server.CreatedAt, &server.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &server, nil
}

// GetAllServers lists the servers hosted on this instance.
func (s *Store) GetAllServers(ctx context.Context) ([]models.Server, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, description, created_at, updated_at
		 FROM servers ORDER BY created_at`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	servers := []models.Server{}
	for rows.Next() {
		server := models.Server{Host: s.localHost}
		if err := rows.Scan(&server.ID, &server.Title, &server.Description, &server.CreatedAt, &server.UpdatedAt); err != nil {
			return nil, mapErr(err)
		}
		servers = append(servers, server)
	}
	return servers, mapErr(rows.Err())
}

// GetServerByID fetches a locally hosted server.
func (s *Store) GetServerByID(ctx context.Context, id uuid.UUID) (*models.Server, error) {
	server := models.Server{Host: s.localHost}
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, description, created_at, updated_at
		 FROM servers WHERE id = $1`, id,
	).Scan(&server.ID, &server.Title, &server.Description, &server.CreatedAt, &server.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &server, nil
}

// DeleteServer removes a locally hosted server; channels, messages, and
// memberships cascade.
func (s *Store) DeleteServer(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM servers WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return notFound()
	}
	return nil
}

// UpsertRemoteServer mirrors a server whose home is another host.
func (s *Store) UpsertRemoteServer(ctx context.Context, server *models.Server) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cached_remote_servers
		     (id, host, title, description, remote_created_at, remote_updated_at, synced_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (id) DO UPDATE
		 SET host = EXCLUDED.host,
		     title = EXCLUDED.title,
		     description = EXCLUDED.description,
		     remote_updated_at = EXCLUDED.remote_updated_at,
		     synced_at = now()`,
		server.ID, server.Host, server.Title, server.Description,
		server.CreatedAt, server.UpdatedAt)
	return mapErr(err)
}

// GetCachedRemoteServer fetches a mirrored remote server.
func (s *Store) GetCachedRemoteServer(ctx context.Context, id uuid.UUID) (*models.Server, error) {
	var server models.Server
	err := s.pool.QueryRow(ctx,
		`SELECT id, host, title, description, remote_created_at, remote_updated_at
		 FROM cached_remote_servers WHERE id = $1`, id,
	).Scan(&server.ID, &server.Host, &server.Title, &server.Description, &server.CreatedAt, &server.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &server, nil
}
