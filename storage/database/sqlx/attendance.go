package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/attendance"
)

const attendanceColumns = "id, school_id, student_id, class_id, date, status, remarks, marked_by, marked_at"

type attendanceRow struct {
	ID        string      `db:"id"`
	SchoolID  string      `db:"school_id"`
	StudentID string      `db:"student_id"`
	ClassID   string      `db:"class_id"`
	Date      core.Date   `db:"date"`
	Status    string      `db:"status"`
	Remarks   null.String `db:"remarks"`
	MarkedBy  null.String `db:"marked_by"`
	MarkedAt  time.Time   `db:"marked_at"`
}

type attendanceRepository struct {
	repo
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(exec core.DBExecutor) *attendanceRepository {
	return &attendanceRepository{repo{exec: exec}}
}

func (attendanceRepository) unboil(row attendanceRow) attendance.Record {
	return attendance.Record{
		ID:        row.ID,
		SchoolID:  row.SchoolID,
		StudentID: row.StudentID,
		ClassID:   row.ClassID,
		Date:      row.Date,
		Status:    row.Status,
		Remarks:   row.Remarks.String,
		MarkedBy:  row.MarkedBy.String,
		MarkedAt:  row.MarkedAt.UTC(),
	}
}

func (r attendanceRepository) UpsertRecords(ctx context.Context, records []attendance.Record, exec ...core.DBExecutor) error {
	exe := r.getExec(exec)
	q := exe.Rebind("INSERT INTO attendance_records (" + attendanceColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) " +
		"ON CONFLICT (student_id, date) DO UPDATE SET class_id = excluded.class_id, status = excluded.status, " +
		"remarks = excluded.remarks, marked_by = excluded.marked_by, marked_at = excluded.marked_at")
	for _, rec := range records {
		_, err := exe.ExecContext(ctx, q,
			newID(), rec.SchoolID, rec.StudentID, rec.ClassID, rec.Date, rec.Status, nullString(rec.Remarks),
			nullString(rec.MarkedBy), rec.MarkedAt.UTC(),
		)
		if err != nil {
			return errors.Wrap(err, "upserting attendance record")
		}
	}
	return nil
}

func (r attendanceRepository) QueryRecords(ctx context.Context, schoolID string, filter *attendance.QueryFilter, exec ...core.DBExecutor) ([]attendance.Record, error) {
	exe := r.getExec(exec)
	w := newWhere("school_id = ?", schoolID)
	if filter != nil {
		if filter.ClassID != "" {
			w.and("class_id = ?", filter.ClassID)
		}
		if filter.StudentID != "" {
			w.and("student_id = ?", filter.StudentID)
		}
		if filter.Status != "" {
			w.and("status = ?", filter.Status)
		}
		if !filter.From.IsZero() {
			w.and("date >= ?", filter.From)
		}
		if !filter.To.IsZero() {
			w.and("date <= ?", filter.To)
		}
	}
	q := "SELECT " + attendanceColumns + " FROM attendance_records" + w.String() + " ORDER BY date DESC, student_id ASC"

	var rows []attendanceRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting attendance records")
	}
	records := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, r.unboil(row))
	}
	return records, nil
}

func (r attendanceRepository) CountByStatus(ctx context.Context, schoolID, studentID string, from, to core.Date, exec ...core.DBExecutor) (map[string]int, error) {
	w := newWhere("school_id = ?", schoolID)
	if studentID != "" {
		w.and("student_id = ?", studentID)
	}
	if !from.IsZero() {
		w.and("date >= ?", from)
	}
	if !to.IsZero() {
		w.and("date <= ?", to)
	}
	counts, err := countByStatus(ctx, r.getExec(exec),
		"SELECT status, COUNT(*) AS count FROM attendance_records"+w.String()+" GROUP BY status", w.args...)
	return counts, errors.Wrap(err, "counting attendance records")
}
