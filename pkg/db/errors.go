package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	pkgerrors "github.com/tillstock/tillstock-backend/pkg/errors"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation. When
// constraintName is set, the violation must reference that constraint (or, on
// sqlite which does not name partial indexes in its message, the indexed columns
// listed in sqliteColumns).
func IsUniqueViolation(err error, constraintName string, sqliteColumns ...string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) && constraintName == "" {
		return true
	}

	if pg, ok := pkgerrors.PostgresDetails(err); ok {
		if pg.Code != pgUniqueViolation {
			return false
		}
		return constraintName == "" || pg.Constraint == constraintName
	}

	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		if constraintName == "" || strings.Contains(msg, constraintName) {
			return true
		}
		for _, col := range sqliteColumns {
			if strings.Contains(msg, col) {
				return true
			}
		}
		return false
	}

	if constraintName != "" {
		return strings.Contains(msg, "duplicate key value") && strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value")
}

// IsNotFound reports whether err is gorm's record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
