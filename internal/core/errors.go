package core

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error classes returned by services. Callers match them with errors.Is;
// anything else is an internal failure.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrNoContent    = errors.New("no content")
	ErrConflict     = errors.New("conflict")
)

// Postgres error codes the services translate.
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
