package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/class"
	"github.com/avsnarang/scholarise/storage/database"
)

const classColumns = "id, school_id, name, section, capacity, class_teacher_id, created_at, updated_at"

type classRow struct {
	ID             string      `db:"id"`
	SchoolID       string      `db:"school_id"`
	Name           string      `db:"name"`
	Section        string      `db:"section"`
	Capacity       int         `db:"capacity"`
	ClassTeacherID null.String `db:"class_teacher_id"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

type classRepository struct {
	repo
}

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(exec core.DBExecutor) *classRepository {
	return &classRepository{repo{exec: exec}}
}

func (classRepository) boil(cls class.Class) classRow {
	return classRow{
		ID:             cls.ID,
		SchoolID:       cls.SchoolID,
		Name:           cls.Name,
		Section:        cls.Section,
		Capacity:       cls.Capacity,
		ClassTeacherID: nullString(cls.ClassTeacherID),
		CreatedAt:      cls.CreatedAt.UTC(),
		UpdatedAt:      cls.UpdatedAt.UTC(),
	}
}

func (classRepository) unboil(row classRow) class.Class {
	return class.Class{
		ID:             row.ID,
		SchoolID:       row.SchoolID,
		Name:           row.Name,
		Section:        row.Section,
		Capacity:       row.Capacity,
		ClassTeacherID: row.ClassTeacherID.String,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
}

func (r classRepository) CreateClass(ctx context.Context, cls class.Class, exec ...core.DBExecutor) (class.Class, error) {
	exe := r.getExec(exec)
	cls.ID = newID()
	row := r.boil(cls)
	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO classes ("+classColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)"),
		row.ID, row.SchoolID, row.Name, row.Section, row.Capacity, row.ClassTeacherID, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return class.Class{}, database.TrapUniqueErr(err, "inserting class")
	}
	return r.unboil(row), nil
}

func (r classRepository) QueryClasses(ctx context.Context, schoolID string, filter *class.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]class.Class, error) {
	exe := r.getExec(exec)
	w := newWhere("school_id = ?", schoolID)
	if filter != nil {
		if filter.Search != "" {
			val := likeArg(filter.Search)
			w.and("LOWER(name) LIKE ? OR LOWER(section) LIKE ?", val, val)
		}
		if filter.TeacherID != "" {
			w.and("class_teacher_id = ?", filter.TeacherID)
		}
	}
	q := "SELECT " + classColumns + " FROM classes" + w.String() +
		core.OrderByClause(ordering, []string{"name", "section", "capacity", "created_at"}, "name ASC, section ASC")

	var rows []classRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting classes")
	}
	classes := make([]class.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, r.unboil(row))
	}
	return classes, nil
}

func (r classRepository) GetClass(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (class.Class, error) {
	if !validIDs(id) {
		return class.Class{}, class.ErrNotFound
	}
	exe := r.getExec(exec)
	var row classRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(
		"SELECT "+classColumns+" FROM classes WHERE school_id = ? AND id = ?"), schoolID, id)
	if err != nil {
		return class.Class{}, trapNoRowsErr(err, class.ErrNotFound, "selecting class")
	}
	return r.unboil(row), nil
}

func (r classRepository) UpdateClass(ctx context.Context, cls class.Class, exec ...core.DBExecutor) (class.Class, error) {
	exe := r.getExec(exec)
	row := r.boil(cls)
	res, err := exe.ExecContext(ctx, exe.Rebind(
		"UPDATE classes SET name = ?, section = ?, capacity = ?, class_teacher_id = ?, updated_at = ? "+
			"WHERE school_id = ? AND id = ?"),
		row.Name, row.Section, row.Capacity, row.ClassTeacherID, row.UpdatedAt, row.SchoolID, row.ID,
	)
	n, err := rowsAffected(res, err, "updating class")
	if err != nil {
		return class.Class{}, database.TrapUniqueErr(err, "updating class")
	}
	if n == 0 {
		return class.Class{}, class.ErrNotFound
	}
	return r.unboil(row), nil
}

func (r classRepository) DeleteClass(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error {
	if !validIDs(id) {
		return class.ErrNotFound
	}
	exe := r.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM classes WHERE school_id = ? AND id = ?"), schoolID, id)
	if database.IsForeignKeyViolation(err) {
		return class.ErrClassNotEmpty
	}
	n, err := rowsAffected(res, err, "deleting class")
	if err != nil {
		return err
	}
	if n == 0 {
		return class.ErrNotFound
	}
	return nil
}

func (r classRepository) CountActiveStudents(ctx context.Context, schoolID, classID string, exec ...core.DBExecutor) (int, error) {
	exe := r.getExec(exec)
	var count int
	err := sqlx.GetContext(ctx, exe, &count, exe.Rebind(
		"SELECT COUNT(*) FROM students WHERE school_id = ? AND class_id = ? AND is_active = ?"), schoolID, classID, true)
	return count, errors.Wrap(err, "counting class students")
}
