package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/avsnarang/scholarise/core"
)

// repo holds the default executor of a repository; services may pass a transaction instead.
type repo struct {
	exec core.DBExecutor
}

func (r repo) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return r.exec
}

func newID() string {
	return uuid.New().String()
}

// validIDs reports whether every id is a UUID. Lookups with malformed ids are "not found".
func validIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

// trapNoRowsErr maps sql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// mustAffect turns an update that matched no row into core.ErrStaleWrite.
func mustAffect(res sql.Result, err error, msg string) error {
	if err != nil {
		return errors.Wrap(err, msg)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return errors.Wrap(core.ErrStaleWrite, msg)
	}
	return nil
}

func rowsAffected(res sql.Result, err error, msg string) (int, error) {
	if err != nil {
		return 0, errors.Wrap(err, msg)
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, msg)
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func nullTime(t time.Time) null.Time {
	return null.NewTime(t.UTC(), !t.IsZero())
}

func nullTimePtr(t *time.Time) null.Time {
	if t == nil || t.IsZero() {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

func timePtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

// likeArg builds a case-insensitive "contains" argument, to be compared with LOWER(column).
func likeArg(s string) string {
	return "%" + strings.ToLower(s) + "%"
}

// where accumulates AND-ed conditions with "?" placeholders.
type where struct {
	conds []string
	args  []interface{}
}

func newWhere(cond string, args ...interface{}) *where {
	w := new(where)
	return w.and(cond, args...)
}

func (w *where) and(cond string, args ...interface{}) *where {
	w.conds = append(w.conds, "("+cond+")")
	w.args = append(w.args, args...)
	return w
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// selectIn runs a query holding "IN (?)" clauses expanded by sqlx.In.
func selectIn(ctx context.Context, exe core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	q, args, err := sqlx.In(query, args...)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, exe, dest, exe.Rebind(q), args...)
}

func execIn(ctx context.Context, exe core.DBExecutor, query string, args ...interface{}) (sql.Result, error) {
	q, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}
	return exe.ExecContext(ctx, exe.Rebind(q), args...)
}

type statusCount struct {
	Status string `db:"status"`
	Count  int    `db:"count"`
}

// countByStatus runs a "SELECT status, COUNT(*) AS count ... GROUP BY status" query.
func countByStatus(ctx context.Context, exe core.DBExecutor, query string, args ...interface{}) (map[string]int, error) {
	var rows []statusCount
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(query), args...); err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// latestWithPrefix returns the highest value of column starting with prefix ("" when none).
// Values of a sequence share their width, so text ordering matches numeric ordering.
func latestWithPrefix(ctx context.Context, exe core.DBExecutor, table, column, schoolID, prefix string) (string, error) {
	var value string
	q := "SELECT " + column + " FROM " + table + " WHERE school_id = ? AND " + column + " LIKE ? " +
		"ORDER BY LENGTH(" + column + ") DESC, " + column + " DESC LIMIT 1"
	err := sqlx.GetContext(ctx, exe, &value, exe.Rebind(q), schoolID, prefix+"%")
	if errors.Cause(err) == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}
