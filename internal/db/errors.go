package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsSerializationFailure reports whether postgres aborted the transaction
// because a concurrent one committed a conflicting change.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 = serialization_failure
		return pgErr.Code == "40001"
	}
	return false
}
