package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	// ErrSlotConflict: a concurrent booking claimed the same table/slot between
	// selection and commit, and retries were exhausted.
	ErrSlotConflict = errors.New("slot already booked")
	// ErrNotFound: the reservation, table or branch does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState: the requested transition is not legal from the current status.
	ErrInvalidState = errors.New("invalid reservation state")
	// ErrInvalidInput: the request itself is malformed (party size, slot, status).
	ErrInvalidInput = errors.New("invalid input")
	// ErrStorageUnavailable: the store failed; nothing was committed.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

const mysqlDuplicateEntry = 1062

// isUniqueViolation recognizes duplicate-key errors from gorm's translator,
// the MySQL driver and SQLite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}

// translateStorageError maps store errors onto the engine's error set.
// Errors already in the set pass through untouched.
func translateStorageError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSlotConflict), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidState), errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrStorageUnavailable):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, ErrSlotConflict)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
	}
}
