package database

import (
	"errors"

	"github.com/lib/pq"
)

// Postgres SQLSTATE codes that indicate two writers raced for the same rows.
const (
	codeUniqueViolation      pq.ErrorCode = "23505"
	codeSerializationFailure pq.ErrorCode = "40001"
	codeDeadlockDetected     pq.ErrorCode = "40P01"
)

// IsWriteRace reports whether err is a unique violation, serialization
// failure or deadlock raised by Postgres. Such writes are safe to retry.
func IsWriteRace(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case codeUniqueViolation, codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation
}
