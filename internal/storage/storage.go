// Package storage defines the error vocabulary shared by the persistence layer.
// Repositories translate driver errors into these values; services match them with errors.Is.
package storage

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique index rejects an insert
	ErrDuplicate = errors.New("duplicate record")
	// ErrVersionConflict is returned when a version-guarded update matched no row
	ErrVersionConflict = errors.New("concurrent modification")
	// ErrStateChanged is returned when a status-guarded update matched no row
	ErrStateChanged = errors.New("state precondition failed")
	// ErrOutOfOrder is returned when a lesson would break the contiguous order of its course
	ErrOutOfOrder = errors.New("lesson order index out of sequence")
	// ErrTransient marks an error worth retrying
	ErrTransient = errors.New("transient storage failure")
)

// MySQL server error numbers
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// Classify wraps a driver error with the matching sentinel, keeping the original in the chain.
// op names the failed operation for the error message.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry:
			return fmt.Errorf("%s: %w: %w", op, ErrDuplicate, err)
		case mysqlDeadlock, mysqlLockWaitTimeout:
			return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
		}
	}

	if errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryable reports whether an operation that failed with err may succeed when repeated
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrVersionConflict)
}
