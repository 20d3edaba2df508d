package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the database handle services run against. *pgxpool.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// querier is the subset of DB that pgx.Tx also implements.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pageCursor appends a keyset condition for lists ordered by
// (created_at DESC, id DESC). The cursor is the id of the last row returned.
func pageCursor(query string, args []any, table, cursor string) (string, []any) {
	if cursor == "" {
		return query, args
	}
	args = append(args, cursor)
	query += fmt.Sprintf(` AND (created_at, id) < (SELECT created_at, id FROM %s WHERE id = $%d)`, table, len(args))
	return query, args
}

// pageLimit appends the ordering and a limit one past the page size so the
// caller can tell whether more rows exist.
func pageLimit(query string, args []any, limit int) (string, []any) {
	args = append(args, limit+1)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))
	return query, args
}

// trimPage cuts a limit+1 result down to limit and reports whether more exist.
func trimPage[T any](items []T, limit int) ([]T, bool) {
	if len(items) > limit {
		return items[:limit], true
	}
	return items, false
}
