package pg

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrInvalidConfig       = errors.New("pg: invalid connection config")
	ErrConnectionFailed    = errors.New("pg: failed to connect")
	ErrHealthcheckFailed   = errors.New("pg: healthcheck failed")
	ErrMigrationFailed     = errors.New("pg: failed to apply migrations")
	ErrMigrationsDirAbsent = errors.New("pg: migrations directory not found")
)

// IsNotFound reports whether err is pgx.ErrNoRows, for uniform "row does
// not exist" handling across stores.
func IsNotFound(err error) bool {
	return err != nil && errors.Is(err, pgx.ErrNoRows)
}

// IsDuplicateKey reports a unique constraint violation (SQLSTATE 23505).
// The subscription stores rely on this to detect a lost auto-provision
// race and re-read the winning row.
func IsDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return err != nil && errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsForeignKeyViolation reports a referential integrity violation
// (SQLSTATE 23503).
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return err != nil && errors.As(err, &pgErr) && pgErr.Code == "23503"
}
