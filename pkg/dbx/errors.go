package dbx

import (
	"errors"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Constraint classifies integrity-constraint violations across drivers.
type Constraint int

const (
	ConstraintNone Constraint = iota
	ConstraintUnique
	ConstraintForeignKey
)

// ClassifyConstraint reports which integrity constraint err violated, if any.
func ClassifyConstraint(err error) Constraint {
	if err == nil {
		return ConstraintNone
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return ConstraintUnique
		case "23503":
			return ConstraintForeignKey
		}
		return ConstraintNone
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return ConstraintUnique
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return ConstraintForeignKey
		}
		msg := liteErr.Error()
		switch {
		case strings.Contains(msg, "UNIQUE constraint failed"):
			return ConstraintUnique
		case strings.Contains(msg, "FOREIGN KEY constraint failed"):
			return ConstraintForeignKey
		}
	}

	return ConstraintNone
}

// IsUniqueViolation reports whether err is a unique or primary-key violation.
func IsUniqueViolation(err error) bool {
	return ClassifyConstraint(err) == ConstraintUnique
}

// IsForeignKeyViolation reports whether err is a foreign-key violation.
func IsForeignKeyViolation(err error) bool {
	return ClassifyConstraint(err) == ConstraintForeignKey
}
