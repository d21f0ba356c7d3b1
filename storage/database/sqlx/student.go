package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/student"
	"github.com/avsnarang/scholarise/storage/database"
)

const studentColumns = "id, school_id, registration_no, first_name, last_name, date_of_birth, gender, class_id, " +
	"guardian_name, guardian_phone, guardian_email, admission_date, application_id, is_active, created_at, updated_at"

type studentRow struct {
	ID             string      `db:"id"`
	SchoolID       string      `db:"school_id"`
	RegistrationNo string      `db:"registration_no"`
	FirstName      string      `db:"first_name"`
	LastName       string      `db:"last_name"`
	DateOfBirth    core.Date   `db:"date_of_birth"`
	Gender         string      `db:"gender"`
	ClassID        string      `db:"class_id"`
	GuardianName   string      `db:"guardian_name"`
	GuardianPhone  string      `db:"guardian_phone"`
	GuardianEmail  null.String `db:"guardian_email"`
	AdmissionDate  core.Date   `db:"admission_date"`
	ApplicationID  null.String `db:"application_id"`
	IsActive       bool        `db:"is_active"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

type studentRepository struct {
	repo
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(exec core.DBExecutor) *studentRepository {
	return &studentRepository{repo{exec: exec}}
}

func (studentRepository) boil(stu student.Student) studentRow {
	return studentRow{
		ID:             stu.ID,
		SchoolID:       stu.SchoolID,
		RegistrationNo: stu.RegistrationNo,
		FirstName:      stu.FirstName,
		LastName:       stu.LastName,
		DateOfBirth:    stu.DateOfBirth,
		Gender:         stu.Gender,
		ClassID:        stu.ClassID,
		GuardianName:   stu.GuardianName,
		GuardianPhone:  stu.GuardianPhone,
		GuardianEmail:  nullString(stu.GuardianEmail),
		AdmissionDate:  stu.AdmissionDate,
		ApplicationID:  nullString(stu.ApplicationID),
		IsActive:       stu.IsActive,
		CreatedAt:      stu.CreatedAt.UTC(),
		UpdatedAt:      stu.UpdatedAt.UTC(),
	}
}

func (studentRepository) unboil(row studentRow) student.Student {
	return student.Student{
		ID:             row.ID,
		SchoolID:       row.SchoolID,
		RegistrationNo: row.RegistrationNo,
		FirstName:      row.FirstName,
		LastName:       row.LastName,
		DateOfBirth:    row.DateOfBirth,
		Gender:         row.Gender,
		ClassID:        row.ClassID,
		GuardianName:   row.GuardianName,
		GuardianPhone:  row.GuardianPhone,
		GuardianEmail:  row.GuardianEmail.String,
		AdmissionDate:  row.AdmissionDate,
		ApplicationID:  row.ApplicationID.String,
		IsActive:       row.IsActive,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
}

func (r studentRepository) CreateStudent(ctx context.Context, stu student.Student, exec ...core.DBExecutor) (student.Student, error) {
	exe := r.getExec(exec)
	stu.ID = newID()
	row := r.boil(stu)
	err := database.WithSavepoint(ctx, exe, "create_student", func() error {
		_, err := exe.ExecContext(ctx, exe.Rebind(
			"INSERT INTO students ("+studentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
			row.ID, row.SchoolID, row.RegistrationNo, row.FirstName, row.LastName, row.DateOfBirth, row.Gender,
			row.ClassID, row.GuardianName, row.GuardianPhone, row.GuardianEmail, row.AdmissionDate,
			row.ApplicationID, row.IsActive, row.CreatedAt, row.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return student.Student{}, database.TrapUniqueErr(err, "inserting student")
	}
	return r.unboil(row), nil
}

func (r studentRepository) LatestRegistrationNo(ctx context.Context, schoolID, prefix string, exec ...core.DBExecutor) (string, error) {
	regNo, err := latestWithPrefix(ctx, r.getExec(exec), "students", "registration_no", schoolID, prefix)
	return regNo, errors.Wrap(err, "selecting latest registration number")
}

func (r studentRepository) QueryStudents(ctx context.Context, schoolID string, filter *student.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]student.Student, error) {
	exe := r.getExec(exec)
	w := newWhere("school_id = ?", schoolID)
	if filter != nil {
		if filter.Search != "" {
			val := likeArg(filter.Search)
			w.and("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(registration_no) LIKE ? "+
				"OR LOWER(guardian_name) LIKE ?", val, val, val, val)
		}
		if filter.ClassID != "" {
			w.and("class_id = ?", filter.ClassID)
		}
		if filter.IDs != nil {
			if len(filter.IDs) == 0 {
				return []student.Student{}, nil
			}
			w.and("id IN (?)", filter.IDs)
		}
		if filter.IsActive != nil {
			w.and("is_active = ?", *filter.IsActive)
		}
	}
	q := "SELECT " + studentColumns + " FROM students" + w.String() +
		core.OrderByClause(ordering,
			[]string{"registration_no", "first_name", "last_name", "admission_date", "created_at"},
			"first_name ASC, last_name ASC")

	var rows []studentRow
	if err := selectIn(ctx, exe, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, r.unboil(row))
	}
	return students, nil
}

func (r studentRepository) GetStudent(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (student.Student, error) {
	if !validIDs(id) {
		return student.Student{}, student.ErrNotFound
	}
	exe := r.getExec(exec)
	var row studentRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(
		"SELECT "+studentColumns+" FROM students WHERE school_id = ? AND id = ?"), schoolID, id)
	if err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "selecting student")
	}
	return r.unboil(row), nil
}

func (r studentRepository) UpdateStudent(ctx context.Context, stu student.Student, exec ...core.DBExecutor) (student.Student, error) {
	exe := r.getExec(exec)
	row := r.boil(stu)
	res, err := exe.ExecContext(ctx, exe.Rebind(
		"UPDATE students SET first_name = ?, last_name = ?, date_of_birth = ?, gender = ?, class_id = ?, "+
			"guardian_name = ?, guardian_phone = ?, guardian_email = ?, is_active = ?, updated_at = ? "+
			"WHERE school_id = ? AND id = ?"),
		row.FirstName, row.LastName, row.DateOfBirth, row.Gender, row.ClassID, row.GuardianName, row.GuardianPhone,
		row.GuardianEmail, row.IsActive, row.UpdatedAt, row.SchoolID, row.ID,
	)
	n, err := rowsAffected(res, err, "updating student")
	if err != nil {
		return student.Student{}, err
	}
	if n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return r.unboil(row), nil
}

func (r studentRepository) DeleteStudentsByID(ctx context.Context, schoolID string, ids []string, exec ...core.DBExecutor) (int, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validIDs(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}
	res, err := execIn(ctx, r.getExec(exec), "DELETE FROM students WHERE school_id = ? AND id IN (?)", schoolID, valid)
	return rowsAffected(res, err, "deleting students")
}
