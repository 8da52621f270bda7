// Package store persists the debate pipeline's state in PostgreSQL.
//
// It owns every table the pipeline touches: legislatures, debates and their
// speakers, contributions, topics, transcripts, media assets, votes,
// summaries, categories, and published posts. Structured sub-fields (source
// URLs, metadata, segments) are serialised as JSONB.
//
// All methods accept any [DB]; both *pgxpool.Pool and *pgx.Conn satisfy the
// interface, so tests can run against a single connection while production
// uses a pool.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when an insert violates a uniqueness constraint,
// e.g. a debate with the same (legislature_id, external_id) already exists.
var ErrConflict = errors.New("store: conflict")

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store provides access to all pipeline tables.
type Store struct {
	db DB

	// maxRetries is the per-stage retry budget before a debate is parked in
	// the error status.
	maxRetries int
}

// Option is a functional option for [New].
type Option func(*Store)

// WithMaxRetries overrides the default retry budget of 3.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// New creates a [Store] backed by the given database connection or pool. The
// caller is responsible for calling [Store.Migrate] to ensure the schema
// exists before issuing queries.
func New(db DB, opts ...Option) *Store {
	s := &Store{db: db, maxRetries: 3}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Migrate executes the [Schema] DDL against the database, creating all tables
// and indexes if they do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// isDuplicateKeyError reports whether err is a PostgreSQL unique violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// emptySlice returns s if non-nil, otherwise an empty non-nil slice. This
// ensures JSONB columns store `[]` instead of `null`.
func emptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// emptyMap returns m if non-nil, otherwise an empty non-nil map. This ensures
// JSONB columns store `{}` instead of `null`.
func emptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
