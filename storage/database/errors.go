package database

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/avsnarang/scholarise/core"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// IsUniqueViolation reports whether err was raised by a unique index (postgres or sqlite).
func IsUniqueViolation(err error) bool {
	switch e := errors.Cause(err).(type) {
	case *pq.Error:
		return e.Code == pqUniqueViolation
	case *sqlite.Error:
		return e.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || e.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// IsForeignKeyViolation reports whether err was raised by a foreign key (postgres or sqlite).
func IsForeignKeyViolation(err error) bool {
	switch e := errors.Cause(err).(type) {
	case *pq.Error:
		return e.Code == pqForeignKeyViolation
	case *sqlite.Error:
		return e.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return false
}

// TrapUniqueErr maps unique violations to core.ErrUniqueViolation and wraps anything else with msg.
func TrapUniqueErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if IsUniqueViolation(err) {
		return errors.Wrap(core.ErrUniqueViolation, msg)
	}
	return errors.Wrap(err, msg)
}

// WithSavepoint runs fn inside a savepoint when exec is a transaction: a failing statement is rolled
// back alone and the transaction stays usable (postgres aborts the whole transaction otherwise).
func WithSavepoint(ctx context.Context, exec core.DBExecutor, name string, fn func() error) error {
	if _, ok := exec.(*sqlx.Tx); !ok {
		return fn()
	}
	if _, err := exec.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return errors.Wrap(err, "creating savepoint")
	}
	if err := fn(); err != nil {
		if _, rbErr := exec.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Wrap(rbErr, "rolling back to savepoint")
		}
		_, _ = exec.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
		return err
	}
	_, err := exec.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return errors.Wrap(err, "releasing savepoint")
}
