package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/models"
)

// InsertChannel creates a channel under a locally hosted server.
func (s *Store) InsertChannel(ctx context.Context, serverID uuid.UUID, newChannel *models.NewChannel) (*models.Channel, error) {
	var ch models.Channel
	err := s.pool.QueryRow(ctx,
		`INSERT INTO channels (server_id, title, description)
		 VALUES ($1, $2, $3)
		 RETURNING id, server_id, title, description, created_at, updated_at`,
		serverID, newChannel.Title, newChannel.Description,
	).Scan(&ch.ID, &ch.ServerID, &ch.Title, &ch.Description, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &ch, nil
}

// GetAllChannels lists every channel on this host.
func (s *Store) GetAllChannels(ctx context.Context) ([]models.Channel, error) {
	return s.queryChannels(ctx,
		`SELECT id, server_id, title, description, created_at, updated_at
		 FROM channels ORDER BY created_at`)
}

// GetChannelsByServer lists the channels of a locally hosted server.
func (s *Store) GetChannelsByServer(ctx context.Context, serverID uuid.UUID) ([]models.Channel, error) {
	return s.queryChannels(ctx,
		`SELECT id, server_id, title, description, created_at, updated_at
		 FROM channels WHERE server_id = $1 ORDER BY created_at`, serverID)
}

// GetChannelByID fetches one channel.
func (s *Store) GetChannelByID(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	var ch models.Channel
	err := s.pool.QueryRow(ctx,
		`SELECT id, server_id, title, description, created_at, updated_at
		 FROM channels WHERE id = $1`, id,
	).Scan(&ch.ID, &ch.ServerID, &ch.Title, &ch.Description, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &ch, nil
}

// DeleteChannel removes a channel; its messages cascade.
func (s *Store) DeleteChannel(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return notFound()
	}
	return nil
}

func (s *Store) queryChannels(ctx context.Context, sql string, args ...any) ([]models.Channel, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	channels := []models.Channel{}
	for rows.Next() {
		var ch models.Channel
		if err := rows.Scan(&ch.ID, &ch.ServerID, &ch.Title, &ch.Description, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
			return nil, mapErr(err)
		}
		channels = append(channels, ch)
	}
	return channels, mapErr(rows.Err())
}
