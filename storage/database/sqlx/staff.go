package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/staff"
	"github.com/avsnarang/scholarise/storage/database"
)

const staffColumns = "id, school_id, user_id, employee_code, name, email, phone, designation, department, join_date, " +
	"is_active, created_at, updated_at"

type staffRow struct {
	ID           string      `db:"id"`
	SchoolID     string      `db:"school_id"`
	UserID       null.String `db:"user_id"`
	EmployeeCode string      `db:"employee_code"`
	Name         string      `db:"name"`
	Email        null.String `db:"email"`
	Phone        null.String `db:"phone"`
	Designation  null.String `db:"designation"`
	Department   null.String `db:"department"`
	JoinDate     core.Date   `db:"join_date"`
	IsActive     bool        `db:"is_active"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

type staffRepository struct {
	repo
}

var _ staff.Repository = (*staffRepository)(nil) // interface compliance check

func NewStaffRepository(exec core.DBExecutor) *staffRepository {
	return &staffRepository{repo{exec: exec}}
}

func (staffRepository) boil(stf staff.Staff) staffRow {
	return staffRow{
		ID:           stf.ID,
		SchoolID:     stf.SchoolID,
		UserID:       nullString(stf.UserID),
		EmployeeCode: stf.EmployeeCode,
		Name:         stf.Name,
		Email:        nullString(stf.Email),
		Phone:        nullString(stf.Phone),
		Designation:  nullString(stf.Designation),
		Department:   nullString(stf.Department),
		JoinDate:     stf.JoinDate,
		IsActive:     stf.IsActive,
		CreatedAt:    stf.CreatedAt.UTC(),
		UpdatedAt:    stf.UpdatedAt.UTC(),
	}
}

func (staffRepository) unboil(row staffRow) staff.Staff {
	return staff.Staff{
		ID:           row.ID,
		SchoolID:     row.SchoolID,
		UserID:       row.UserID.String,
		EmployeeCode: row.EmployeeCode,
		Name:         row.Name,
		Email:        row.Email.String,
		Phone:        row.Phone.String,
		Designation:  row.Designation.String,
		Department:   row.Department.String,
		JoinDate:     row.JoinDate,
		IsActive:     row.IsActive,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

func (r staffRepository) CreateStaff(ctx context.Context, stf staff.Staff, exec ...core.DBExecutor) (staff.Staff, error) {
	exe := r.getExec(exec)
	stf.ID = newID()
	row := r.boil(stf)
	err := database.WithSavepoint(ctx, exe, "create_staff", func() error {
		_, err := exe.ExecContext(ctx, exe.Rebind(
			"INSERT INTO staff ("+staffColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
			row.ID, row.SchoolID, row.UserID, row.EmployeeCode, row.Name, row.Email, row.Phone, row.Designation,
			row.Department, row.JoinDate, row.IsActive, row.CreatedAt, row.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return staff.Staff{}, database.TrapUniqueErr(err, "inserting staff")
	}
	return r.unboil(row), nil
}

func (r staffRepository) LatestEmployeeCode(ctx context.Context, schoolID, prefix string, exec ...core.DBExecutor) (string, error) {
	code, err := latestWithPrefix(ctx, r.getExec(exec), "staff", "employee_code", schoolID, prefix)
	return code, errors.Wrap(err, "selecting latest employee code")
}

func (r staffRepository) QueryStaff(ctx context.Context, schoolID string, filter *staff.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]staff.Staff, error) {
	exe := r.getExec(exec)
	w := newWhere("school_id = ?", schoolID)
	if filter != nil {
		if filter.Search != "" {
			val := likeArg(filter.Search)
			w.and("LOWER(name) LIKE ? OR LOWER(employee_code) LIKE ? OR LOWER(email) LIKE ?", val, val, val)
		}
		if filter.Department != "" {
			w.and("LOWER(department) = LOWER(?)", filter.Department)
		}
		if filter.IsActive != nil {
			w.and("is_active = ?", *filter.IsActive)
		}
	}
	q := "SELECT " + staffColumns + " FROM staff" + w.String() +
		core.OrderByClause(ordering, []string{"name", "employee_code", "department", "join_date", "created_at"}, "name ASC")

	var rows []staffRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting staff")
	}
	members := make([]staff.Staff, 0, len(rows))
	for _, row := range rows {
		members = append(members, r.unboil(row))
	}
	return members, nil
}

func (r staffRepository) get(ctx context.Context, exe core.DBExecutor, w *where) (staff.Staff, error) {
	var row staffRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind("SELECT "+staffColumns+" FROM staff"+w.String()), w.args...)
	if err != nil {
		return staff.Staff{}, trapNoRowsErr(err, staff.ErrNotFound, "selecting staff")
	}
	return r.unboil(row), nil
}

func (r staffRepository) GetStaff(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (staff.Staff, error) {
	if !validIDs(id) {
		return staff.Staff{}, staff.ErrNotFound
	}
	return r.get(ctx, r.getExec(exec), newWhere("school_id = ?", schoolID).and("id = ?", id))
}

func (r staffRepository) GetStaffByUser(ctx context.Context, schoolID, userID string, exec ...core.DBExecutor) (staff.Staff, error) {
	if !validIDs(userID) {
		return staff.Staff{}, staff.ErrNotFound
	}
	return r.get(ctx, r.getExec(exec), newWhere("school_id = ?", schoolID).and("user_id = ?", userID))
}

func (r staffRepository) UpdateStaff(ctx context.Context, stf staff.Staff, exec ...core.DBExecutor) (staff.Staff, error) {
	exe := r.getExec(exec)
	row := r.boil(stf)
	res, err := exe.ExecContext(ctx, exe.Rebind(
		"UPDATE staff SET name = ?, email = ?, phone = ?, designation = ?, department = ?, join_date = ?, "+
			"is_active = ?, updated_at = ? WHERE school_id = ? AND id = ?"),
		row.Name, row.Email, row.Phone, row.Designation, row.Department, row.JoinDate, row.IsActive, row.UpdatedAt,
		row.SchoolID, row.ID,
	)
	n, err := rowsAffected(res, err, "updating staff")
	if err != nil {
		return staff.Staff{}, err
	}
	if n == 0 {
		return staff.Staff{}, staff.ErrNotFound
	}
	return r.unboil(row), nil
}

func (r staffRepository) DeleteStaff(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error {
	if !validIDs(id) {
		return staff.ErrNotFound
	}
	exe := r.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM staff WHERE school_id = ? AND id = ?"), schoolID, id)
	n, err := rowsAffected(res, err, "deleting staff")
	if err != nil {
		return err
	}
	if n == 0 {
		return staff.ErrNotFound
	}
	return nil
}
