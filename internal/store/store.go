// Package store implements the SQL queries backing Runelink's domain
// operations. It speaks pgx directly (no ORM) and translates database
// failures into the application error kinds: unique violations become
// conflicts, missing rows become not-found.
package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/runelink/runelink/internal/apperr"
)

// pgUniqueViolation is the PostgreSQL error code for unique violations.
const pgUniqueViolation = "23505"

// Store runs queries for one server instance. localHost is the instance's
// host identity, used to stamp locally stored servers and memberships.
type Store struct {
	pool      *pgxpool.Pool
	localHost string
}

// New creates a Store over the given pool.
func New(pool *pgxpool.Pool, localHost string) *Store {
	return &Store{pool: pool, localHost: localHost}
}

// LocalHost returns the host identity this store stamps on local rows.
func (s *Store) LocalHost() string {
	return s.localHost
}

// notFound is the zero-row outcome shared by delete helpers.
func notFound() error {
	return apperr.NotFound()
}

// mapErr converts a pgx error into an application error.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound()
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgUniqueViolation {
			return apperr.Conflict()
		}
		return apperr.Wrap(apperr.KindDatabase, pgErr.Message, err)
	}
	return apperr.Wrap(apperr.KindDatabase, err.Error(), err)
}
