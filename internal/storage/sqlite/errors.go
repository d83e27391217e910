package sqlite

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/sandevgo/mnemo/internal/core"
)

// wrapErr classifies a driver error into a StorageIOError.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *core.StorageIOError
	if errors.As(err, &se) {
		return err
	}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		return err
	}
	return &core.StorageIOError{Op: op, Err: err, Retryable: isTransient(err)}
}

func isTransient(err error) bool {
	if errors.Is(err, sql.ErrConnDone) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "disk i/o error")
}

func isDuplicateError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
