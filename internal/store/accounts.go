package store

import (
	"context"

	"github.com/runelink/runelink/internal/models"
)

// InsertAccount stores the password hash for a local user.
func (s *Store) InsertAccount(ctx context.Context, ref models.UserRef, passwordHash string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO local_accounts (user_name, user_host, password_hash)
		 VALUES ($1, $2, $3)`,
		ref.Name, ref.Host, passwordHash)
	return mapErr(err)
}

// GetAccountByUser fetches the local account of a user.
func (s *Store) GetAccountByUser(ctx context.Context, ref models.UserRef) (*models.LocalAccount, error) {
	var account models.LocalAccount
	err := s.pool.QueryRow(ctx,
		`SELECT user_name, user_host, password_hash, created_at, updated_at
		 FROM local_accounts WHERE user_name = $1 AND user_host = $2`,
		ref.Name, ref.Host,
	).Scan(&account.UserName, &account.UserHost, &account.PasswordHash,
		&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &account, nil
}

// InsertRefreshToken persists a freshly minted refresh token.
func (s *Store) InsertRefreshToken(ctx context.Context, rt *models.RefreshToken) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO refresh_tokens
		     (token, user_name, user_host, client_id, issued_at, expires_at, revoked)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rt.Token, rt.UserName, rt.UserHost, rt.ClientID,
		rt.IssuedAt, rt.ExpiresAt, rt.Revoked)
	return mapErr(err)
}

// GetRefreshToken fetches a refresh token by its opaque value.
func (s *Store) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	err := s.pool.QueryRow(ctx,
		`SELECT token, user_name, user_host, client_id, issued_at, expires_at, revoked
		 FROM refresh_tokens WHERE token = $1`, token,
	).Scan(&rt.Token, &rt.UserName, &rt.UserHost, &rt.ClientID,
		&rt.IssuedAt, &rt.ExpiresAt, &rt.Revoked)
	if err != nil {
		return nil, mapErr(err)
	}
	return &rt, nil
}
