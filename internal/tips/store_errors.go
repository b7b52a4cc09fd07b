package tips

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sundayezeilo/tips/internal/errx"
)

// ErrNotConfigured is returned by operations that need a connection before
// Configure has supplied a server, or when no driver is available.
var ErrNotConfigured = errors.New("tip store is not configured")

// ErrParentHidden is returned by AddEdit when the parent has been deleted or
// superseded.
var ErrParentHidden = errors.New("parent tip has been deleted or superseded")

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ""
	}
	return pgErr.Code
}

func mapStoreError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errx.E(op, errx.NotFound, err)
	}
	if errors.Is(err, ErrParentHidden) {
		return errx.E(op, errx.Conflict, err)
	}

	switch pgErrorCode(err) {
	case pgUniqueViolation:
		return errx.E(op, errx.Conflict, err)
	case pgForeignKeyViolation, pgCheckViolation, pgNotNullViolation:
		return errx.E(op, errx.Invalid, err)
	default:
		return errx.E(op, errx.Unavailable, err)
	}
}
