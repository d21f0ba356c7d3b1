package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/courtesy"
)

const courtesyCallColumns = "id, school_id, student_id, called_by, call_date, purpose, feedback, rating, " +
	"follow_up_required, follow_up_date, status, created_at, updated_at"

type courtesyCallRow struct {
	ID               string    `db:"id"`
	SchoolID         string    `db:"school_id"`
	StudentID        string    `db:"student_id"`
	CalledBy         string    `db:"called_by"`
	CallDate         core.Date `db:"call_date"`
	Purpose          string    `db:"purpose"`
	Feedback         string    `db:"feedback"`
	Rating           int       `db:"rating"`
	FollowUpRequired bool      `db:"follow_up_required"`
	FollowUpDate     core.Date `db:"follow_up_date"`
	Status           string    `db:"status"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

type courtesyRepository struct {
	repo
}

var _ courtesy.Repository = (*courtesyRepository)(nil) // interface compliance check

func NewCourtesyRepository(exec core.DBExecutor) *courtesyRepository {
	return &courtesyRepository{repo{exec: exec}}
}

func (courtesyRepository) unboil(row courtesyCallRow) courtesy.Call {
	return courtesy.Call{
		ID:               row.ID,
		SchoolID:         row.SchoolID,
		StudentID:        row.StudentID,
		CalledBy:         row.CalledBy,
		CallDate:         row.CallDate,
		Purpose:          row.Purpose,
		Feedback:         row.Feedback,
		Rating:           row.Rating,
		FollowUpRequired: row.FollowUpRequired,
		FollowUpDate:     row.FollowUpDate,
		Status:           row.Status,
		CreatedAt:        row.CreatedAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
	}
}

func (r courtesyRepository) CreateCall(ctx context.Context, c courtesy.Call, exec ...core.DBExecutor) (courtesy.Call, error) {
	exe := r.getExec(exec)
	c.ID = newID()
	c.CreatedAt, c.UpdatedAt = c.CreatedAt.UTC(), c.UpdatedAt.UTC()
	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO courtesy_calls ("+courtesyCallColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		c.ID, c.SchoolID, c.StudentID, c.CalledBy, c.CallDate, c.Purpose, c.Feedback, c.Rating, c.FollowUpRequired,
		c.FollowUpDate, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return courtesy.Call{}, errors.Wrap(err, "inserting courtesy call")
	}
	return c, nil
}

func (r courtesyRepository) QueryCalls(ctx context.Context, schoolID string, filter *courtesy.QueryFilter, exec ...core.DBExecutor) ([]courtesy.Call, error) {
	exe := r.getExec(exec)
	w := newWhere("school_id = ?", schoolID)
	if filter != nil {
		if filter.StudentID != "" {
			w.and("student_id = ?", filter.StudentID)
		}
		if filter.CalledBy != "" {
			w.and("called_by = ?", filter.CalledBy)
		}
		if filter.Purpose != "" {
			w.and("purpose = ?", filter.Purpose)
		}
		if filter.Status != "" {
			w.and("status = ?", filter.Status)
		}
		if !filter.From.IsZero() {
			w.and("call_date >= ?", filter.From)
		}
		if !filter.To.IsZero() {
			w.and("call_date <= ?", filter.To)
		}
		if filter.PendingFollowUp {
			w.and("follow_up_required = ? AND status = ?", true, courtesy.StatusOpen)
		}
	}
	order := " ORDER BY call_date DESC, created_at DESC"
	if filter != nil && filter.PendingFollowUp {
		order = " ORDER BY follow_up_date ASC"
	}

	var rows []courtesyCallRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind("SELECT "+courtesyCallColumns+" FROM courtesy_calls"+w.String()+order), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting courtesy calls")
	}
	calls := make([]courtesy.Call, 0, len(rows))
	for _, row := range rows {
		calls = append(calls, r.unboil(row))
	}
	return calls, nil
}

func (r courtesyRepository) GetCall(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (courtesy.Call, error) {
	if !validIDs(id) {
		return courtesy.Call{}, courtesy.ErrNotFound
	}
	exe := r.getExec(exec)
	var row courtesyCallRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(
		"SELECT "+courtesyCallColumns+" FROM courtesy_calls WHERE school_id = ? AND id = ?"), schoolID, id)
	if err != nil {
		return courtesy.Call{}, trapNoRowsErr(err, courtesy.ErrNotFound, "selecting courtesy call")
	}
	return r.unboil(row), nil
}

func (r courtesyRepository) UpdateCall(ctx context.Context, c courtesy.Call, exec ...core.DBExecutor) (courtesy.Call, error) {
	exe := r.getExec(exec)
	c.UpdatedAt = c.UpdatedAt.UTC()
	res, err := exe.ExecContext(ctx, exe.Rebind(
		"UPDATE courtesy_calls SET purpose = ?, feedback = ?, rating = ?, follow_up_required = ?, follow_up_date = ?, "+
			"status = ?, updated_at = ? WHERE school_id = ? AND id = ?"),
		c.Purpose, c.Feedback, c.Rating, c.FollowUpRequired, c.FollowUpDate, c.Status, c.UpdatedAt, c.SchoolID, c.ID,
	)
	n, err := rowsAffected(res, err, "updating courtesy call")
	if err != nil {
		return courtesy.Call{}, err
	}
	if n == 0 {
		return courtesy.Call{}, courtesy.ErrNotFound
	}
	return c, nil
}

func (r courtesyRepository) DeleteCall(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error {
	if !validIDs(id) {
		return courtesy.ErrNotFound
	}
	exe := r.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM courtesy_calls WHERE school_id = ? AND id = ?"), schoolID, id)
	n, err := rowsAffected(res, err, "deleting courtesy call")
	if err != nil {
		return err
	}
	if n == 0 {
		return courtesy.ErrNotFound
	}
	return nil
}
