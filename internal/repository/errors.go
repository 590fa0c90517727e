package repository

import (
	"errors"

	"github.com/jackc/pgconn"
)

// Storage errors shared by all repositories.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when an insert hits a unique constraint.
	ErrDuplicateKey = errors.New("duplicate key")
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint errors.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
