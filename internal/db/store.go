package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound reports that no row matched the lookup predicates. It is an
	// expected outcome, not a storage failure.
	ErrNotFound = errors.New("db: not found")

	// ErrDuplicate reports a unique-constraint violation on insert.
	ErrDuplicate = errors.New("db: duplicate")
)

// Querier is the query surface the store needs from a pgx pool. pgxmock
// implements it too, so store methods can be tested without a server.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store runs all relational reads and writes. It holds no per-request state
// and is safe for concurrent use.
type Store struct {
	q Querier
}

func NewStore(q Querier) *Store {
	return &Store{q: q}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
