package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/dashboard"
)

type dashboardCounter struct {
	repo
}

var _ dashboard.Counter = (*dashboardCounter)(nil) // interface compliance check

func NewDashboardCounter(exec core.DBExecutor) *dashboardCounter {
	return &dashboardCounter{repo{exec: exec}}
}

func (r dashboardCounter) count(ctx context.Context, query, schoolID, msg string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.exec, &n, r.exec.Rebind(query), schoolID)
	return n, errors.Wrap(err, msg)
}

func (r dashboardCounter) CountStudents(ctx context.Context, schoolID string) (int, error) {
	return r.count(ctx, "SELECT COUNT(*) FROM students WHERE school_id = ? AND is_active = TRUE", schoolID, "counting students")
}

func (r dashboardCounter) CountStaff(ctx context.Context, schoolID string) (int, error) {
	return r.count(ctx, "SELECT COUNT(*) FROM staff WHERE school_id = ? AND is_active = TRUE", schoolID, "counting staff")
}

func (r dashboardCounter) CountClasses(ctx context.Context, schoolID string) (int, error) {
	return r.count(ctx, "SELECT COUNT(*) FROM classes WHERE school_id = ?", schoolID, "counting classes")
}
