package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/exam"
	"github.com/avsnarang/scholarise/storage/database"
)

const (
	examColumns    = "id, school_id, class_id, name, academic_year, term, start_date, end_date, status, created_at, updated_at"
	subjectColumns = "id, exam_id, name, max_marks, pass_marks, exam_date"
	markColumns    = "id, school_id, exam_id, subject_id, student_id, marks, is_absent, remarks, entered_by, updated_at"
)

type (
	examRow struct {
		ID           string      `db:"id"`
		SchoolID     string      `db:"school_id"`
		ClassID      string      `db:"class_id"`
		Name         string      `db:"name"`
		AcademicYear string      `db:"academic_year"`
		Term         null.String `db:"term"`
		StartDate    core.Date   `db:"start_date"`
		EndDate      core.Date   `db:"end_date"`
		Status       string      `db:"status"`
		CreatedAt    time.Time   `db:"created_at"`
		UpdatedAt    time.Time   `db:"updated_at"`
	}

	subjectRow struct {
		ID        string    `db:"id"`
		ExamID    string    `db:"exam_id"`
		Name      string    `db:"name"`
		MaxMarks  int       `db:"max_marks"`
		PassMarks int       `db:"pass_marks"`
		ExamDate  core.Date `db:"exam_date"`
	}

	markRow struct {
		ID        string      `db:"id"`
		SchoolID  string      `db:"school_id"`
		ExamID    string      `db:"exam_id"`
		SubjectID string      `db:"subject_id"`
		StudentID string      `db:"student_id"`
		Marks     int         `db:"marks"`
		IsAbsent  bool        `db:"is_absent"`
		Remarks   null.String `db:"remarks"`
		EnteredBy null.String `db:"entered_by"`
		UpdatedAt time.Time   `db:"updated_at"`
	}
)

type examRepository struct {
	repo
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(exec core.DBExecutor) *examRepository {
	return &examRepository{repo{exec: exec}}
}

func unboilExam(row examRow) exam.Exam {
	return exam.Exam{
		ID:           row.ID,
		SchoolID:     row.SchoolID,
		ClassID:      row.ClassID,
		Name:         row.Name,
		AcademicYear: row.AcademicYear,
		Term:         row.Term.String,
		StartDate:    row.StartDate,
		EndDate:      row.EndDate,
		Status:       row.Status,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

func (r examRepository) CreateExam(ctx context.Context, ex exam.Exam, exec ...core.DBExecutor) (exam.Exam, error) {
	exe := r.getExec(exec)
	ex.ID = newID()
	ex.CreatedAt, ex.UpdatedAt = ex.CreatedAt.UTC(), ex.UpdatedAt.UTC()
	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO exams ("+examColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		ex.ID, ex.SchoolID, ex.ClassID, ex.Name, ex.AcademicYear, nullString(ex.Term), ex.StartDate, ex.EndDate,
		ex.Status, ex.CreatedAt, ex.UpdatedAt,
	)
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "inserting exam")
	}
	return ex, nil
}

func (r examRepository) QueryExams(ctx context.Context, schoolID string, filter *exam.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]exam.Exam, error) {
	exe := r.getExec(exec)
	w := newWhere("school_id = ?", schoolID)
	if filter != nil {
		if filter.ClassID != "" {
			w.and("class_id = ?", filter.ClassID)
		}
		if filter.AcademicYear != "" {
			w.and("academic_year = ?", filter.AcademicYear)
		}
		if filter.Status != "" {
			w.and("status = ?", filter.Status)
		}
	}
	q := "SELECT " + examColumns + " FROM exams" + w.String() +
		core.OrderByClause(ordering, []string{"name", "start_date", "end_date", "created_at"}, "start_date DESC")

	var rows []examRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting exams")
	}
	exams := make([]exam.Exam, 0, len(rows))
	for _, row := range rows {
		exams = append(exams, unboilExam(row))
	}
	return exams, nil
}

func (r examRepository) GetExam(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (exam.Exam, error) {
	if !validIDs(id) {
		return exam.Exam{}, exam.ErrNotFound
	}
	exe := r.getExec(exec)
	var row examRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(
		"SELECT "+examColumns+" FROM exams WHERE school_id = ? AND id = ?"), schoolID, id)
	if err != nil {
		return exam.Exam{}, trapNoRowsErr(err, exam.ErrNotFound, "selecting exam")
	}
	return unboilExam(row), nil
}

func (r examRepository) UpdateExam(ctx context.Context, ex exam.Exam, exec ...core.DBExecutor) (exam.Exam, error) {
	exe := r.getExec(exec)
	ex.UpdatedAt = ex.UpdatedAt.UTC()
	res, err := exe.ExecContext(ctx, exe.Rebind(
		"UPDATE exams SET name = ?, term = ?, start_date = ?, end_date = ?, updated_at = ? WHERE school_id = ? AND id = ?"),
		ex.Name, nullString(ex.Term), ex.StartDate, ex.EndDate, ex.UpdatedAt, ex.SchoolID, ex.ID,
	)
	n, err := rowsAffected(res, err, "updating exam")
	if err != nil {
		return exam.Exam{}, err
	}
	if n == 0 {
		return exam.Exam{}, exam.ErrNotFound
	}
	return ex, nil
}

func (r examRepository) SetExamStatus(ctx context.Context, schoolID, id, from, to string, exec ...core.DBExecutor) error {
	exe := r.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind(
		"UPDATE exams SET status = ?, updated_at = ? WHERE school_id = ? AND id = ? AND status = ?"),
		to, core.Now().UTC(), schoolID, id, from,
	)
	return mustAffect(res, err, "updating exam status")
}

func (r examRepository) DeleteExam(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error {
	if !validIDs(id) {
		return exam.ErrNotFound
	}
	exe := r.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM exams WHERE school_id = ? AND id = ?"), schoolID, id)
	n, err := rowsAffected(res, err, "deleting exam")
	if err != nil {
		return err
	}
	if n == 0 {
		return exam.ErrNotFound
	}
	return nil
}

// Subjects

func unboilSubject(row subjectRow) exam.Subject {
	return exam.Subject{
		ID:        row.ID,
		ExamID:    row.ExamID,
		Name:      row.Name,
		MaxMarks:  row.MaxMarks,
		PassMarks: row.PassMarks,
		ExamDate:  row.ExamDate,
	}
}

func (r examRepository) CreateSubject(ctx context.Context, sub exam.Subject, exec ...core.DBExecutor) (exam.Subject, error) {
	exe := r.getExec(exec)
	sub.ID = newID()
	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO exam_subjects ("+subjectColumns+") VALUES (?, ?, ?, ?, ?, ?)"),
		sub.ID, sub.ExamID, sub.Name, sub.MaxMarks, sub.PassMarks, sub.ExamDate,
	)
	if err != nil {
		return exam.Subject{}, database.TrapUniqueErr(err, "inserting exam subject")
	}
	return sub, nil
}

func (r examRepository) QuerySubjects(ctx context.Context, examID string, exec ...core.DBExecutor) ([]exam.Subject, error) {
	exe := r.getExec(exec)
	var rows []subjectRow
	err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(
		"SELECT "+subjectColumns+" FROM exam_subjects WHERE exam_id = ? ORDER BY name ASC"), examID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting exam subjects")
	}
	subjects := make([]exam.Subject, 0, len(rows))
	for _, row := range rows {
		subjects = append(subjects, unboilSubject(row))
	}
	return subjects, nil
}

func (r examRepository) GetSubject(ctx context.Context, examID, id string, exec ...core.DBExecutor) (exam.Subject, error) {
	if !validIDs(id) {
		return exam.Subject{}, exam.ErrSubjectNotFound
	}
	exe := r.getExec(exec)
	var row subjectRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(
		"SELECT "+subjectColumns+" FROM exam_subjects WHERE exam_id = ? AND id = ?"), examID, id)
	if err != nil {
		return exam.Subject{}, trapNoRowsErr(err, exam.ErrSubjectNotFound, "selecting exam subject")
	}
	return unboilSubject(row), nil
}

// Marks

func (r examRepository) UpsertMarks(ctx context.Context, marks []exam.Mark, exec ...core.DBExecutor) error {
	exe := r.getExec(exec)
	q := exe.Rebind("INSERT INTO exam_marks (" + markColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) " +
		"ON CONFLICT (subject_id, student_id) DO UPDATE SET marks = excluded.marks, is_absent = excluded.is_absent, " +
		"remarks = excluded.remarks, entered_by = excluded.entered_by, updated_at = excluded.updated_at")
	for _, m := range marks {
		_, err := exe.ExecContext(ctx, q,
			newID(), m.SchoolID, m.ExamID, m.SubjectID, m.StudentID, m.Marks, m.IsAbsent, nullString(m.Remarks),
			nullString(m.EnteredBy), m.UpdatedAt.UTC(),
		)
		if err != nil {
			return errors.Wrap(err, "upserting exam mark")
		}
	}
	return nil
}

func (r examRepository) QueryMarks(ctx context.Context, schoolID, examID, studentID string, exec ...core.DBExecutor) ([]exam.Mark, error) {
	exe := r.getExec(exec)
	w := newWhere("school_id = ?", schoolID).and("exam_id = ?", examID)
	if studentID != "" {
		w.and("student_id = ?", studentID)
	}
	var rows []markRow
	err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(
		"SELECT "+markColumns+" FROM exam_marks"+w.String()+" ORDER BY student_id ASC, subject_id ASC"), w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "selecting exam marks")
	}
	marks := make([]exam.Mark, 0, len(rows))
	for _, row := range rows {
		marks = append(marks, exam.Mark{
			ID:        row.ID,
			SchoolID:  row.SchoolID,
			ExamID:    row.ExamID,
			SubjectID: row.SubjectID,
			StudentID: row.StudentID,
			Marks:     row.Marks,
			IsAbsent:  row.IsAbsent,
			Remarks:   row.Remarks.String,
			EnteredBy: row.EnteredBy.String,
			UpdatedAt: row.UpdatedAt.UTC(),
		})
	}
	return marks, nil
}
