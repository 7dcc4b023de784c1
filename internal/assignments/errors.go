package assignments

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrSchemaUnavailable marks "relation does not exist" and
	// "permission denied" store failures. Both switch the reconciler into
	// fallback mode instead of surfacing as errors: the client cannot tell
	// a missing migration from a denied one, and neither is retryable by
	// repeating the call.
	ErrSchemaUnavailable = errors.New("assignment table unavailable")

	// ErrFallback is returned by mutation entry points while in fallback mode.
	ErrFallback = errors.New("assignments are in fallback mode")

	// ErrBadGesture is returned when a gesture operation arrives in the
	// wrong state (e.g. BeginDrag while already dragging).
	ErrBadGesture = errors.New("invalid gesture for current state")
)

// Postgres error codes that indicate the schema itself is unusable.
const (
	pgUndefinedTable        = "42P01"
	pgInsufficientPrivilege = "42501"
)

// ClassifyStoreError wraps schema-absence and permission failures in
// ErrSchemaUnavailable; anything else passes through as a transient error.
func ClassifyStoreError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUndefinedTable, pgInsufficientPrivilege:
			return errors.Join(ErrSchemaUnavailable, err)
		}
	}
	return err
}
