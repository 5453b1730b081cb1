package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/models"
)

const messageColumns = `
	m.id, m.channel_id, m.body, m.created_at, m.updated_at,
	u.name, u.host, u.role, u.created_at, u.updated_at`

const messageFrom = `
	FROM messages m
	LEFT JOIN users u ON u.name = m.author_name AND u.host = m.author_host`

// InsertMessage creates a message in a channel and returns it with the
// author record resolved.
func (s *Store) InsertMessage(ctx context.Context, channelID uuid.UUID, newMessage *models.NewMessage) (*models.Message, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (channel_id, author_name, author_host, body)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		channelID, newMessage.Author.Name, newMessage.Author.Host, newMessage.Body,
	).Scan(&id)
	if err != nil {
		return nil, mapErr(err)
	}
	return s.GetMessageByID(ctx, id)
}

// GetAllMessages lists every message on this host.
func (s *Store) GetAllMessages(ctx context.Context) ([]models.Message, error) {
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+messageFrom+` ORDER BY m.created_at`)
}

// GetMessagesByServer lists messages across all channels of a server.
func (s *Store) GetMessagesByServer(ctx context.Context, serverID uuid.UUID) ([]models.Message, error) {
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+messageFrom+`
		 JOIN channels c ON c.id = m.channel_id
		 WHERE c.server_id = $1 ORDER BY m.created_at`, serverID)
}

// GetMessagesByChannel lists a channel's messages in creation order.
func (s *Store) GetMessagesByChannel(ctx context.Context, channelID uuid.UUID) ([]models.Message, error) {
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+messageFrom+`
		 WHERE m.channel_id = $1 ORDER BY m.created_at`, channelID)
}

// GetMessageByID fetches one message with its author resolved.
func (s *Store) GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+messageFrom+` WHERE m.id = $1`, id)
	msg, err := scanMessage(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return msg, nil
}

// DeleteMessage removes a message.
func (s *Store) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return notFound()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var name, host *string
	var role *models.UserRole
	var createdAt, updatedAt *time.Time
	err := row.Scan(
		&msg.ID, &msg.ChannelID, &msg.Body, &msg.CreatedAt, &msg.UpdatedAt,
		&name, &host, &role, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if name != nil && host != nil && role != nil && createdAt != nil && updatedAt != nil {
		msg.Author = &models.User{
			Name:      *name,
			Host:      *host,
			Role:      *role,
			CreatedAt: *createdAt,
			UpdatedAt: *updatedAt,
		}
	}
	return &msg, nil
}

func (s *Store) queryMessages(ctx context.Context, sql string, args ...any) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		messages = append(messages, *msg)
	}
	return messages, mapErr(rows.Err())
}
