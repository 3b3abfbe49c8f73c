package store

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// execRequireRows validates that an ExecContext result affected at least
// one row, surfacing notFoundErr when it didn't.
func execRequireRows(result sql.Result, err, notFoundErr error) error {
	if err != nil {
		return err
	}
	n, affectedErr := result.RowsAffected()
	if affectedErr != nil {
		return affectedErr
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), which this store maps to ErrConflict. The website/inline
// XOR rule is a check constraint instead; see isCheckViolation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// isCheckViolation reports whether err is a Postgres check_violation
// (SQLSTATE 23514), used to surface XOR/range constraint failures.
func isCheckViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23514"
	}
	return false
}
