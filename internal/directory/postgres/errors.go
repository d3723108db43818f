package postgres

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mollebakken/artconnect/internal/identity"
)

// mapPostgresError maps PostgreSQL-specific errors to the structured codes
// the session manager classifies on. Connection-class failures come back as
// network faults so they enter the bounded retry procedure; everything else
// passes through unchanged.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection:
		return &identity.Error{Code: identity.CodeNetwork, Message: "database connection error", Err: err}

	case pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown,
		pgerrcode.TooManyConnections,
		pgerrcode.InsufficientResources:
		return &identity.Error{Code: identity.CodeUnavailable, Message: "database unavailable", Err: err}

	default:
		return err
	}
}
