package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/school"
	"github.com/avsnarang/scholarise/storage/database"
)

const schoolColumns = "id, name, code, address, phone, email, is_active, created_at, updated_at"

type schoolRow struct {
	ID        string      `db:"id"`
	Name      string      `db:"name"`
	Code      string      `db:"code"`
	Address   null.String `db:"address"`
	Phone     null.String `db:"phone"`
	Email     null.String `db:"email"`
	IsActive  bool        `db:"is_active"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

type schoolRepository struct {
	repo
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(exec core.DBExecutor) *schoolRepository {
	return &schoolRepository{repo{exec: exec}}
}

func (schoolRepository) boil(sch school.School) schoolRow {
	return schoolRow{
		ID:        sch.ID,
		Name:      sch.Name,
		Code:      sch.Code,
		Address:   nullString(sch.Address),
		Phone:     nullString(sch.Phone),
		Email:     nullString(sch.Email),
		IsActive:  sch.IsActive,
		CreatedAt: sch.CreatedAt.UTC(),
		UpdatedAt: sch.UpdatedAt.UTC(),
	}
}

func (schoolRepository) unboil(row schoolRow) school.School {
	return school.School{
		ID:        row.ID,
		Name:      row.Name,
		Code:      row.Code,
		Address:   row.Address.String,
		Phone:     row.Phone.String,
		Email:     row.Email.String,
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

func (r schoolRepository) CreateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	exe := r.getExec(exec)
	sch.ID = newID()
	row := r.boil(sch)
	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO schools ("+schoolColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		row.ID, row.Name, row.Code, row.Address, row.Phone, row.Email, row.IsActive, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return school.School{}, database.TrapUniqueErr(err, "inserting school")
	}
	return sch, nil
}

func (r schoolRepository) QuerySchools(ctx context.Context, filter *school.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]school.School, error) {
	exe := r.getExec(exec)
	w := new(where)
	if filter != nil {
		if filter.Search != "" {
			val := likeArg(filter.Search)
			w.and("LOWER(name) LIKE ? OR LOWER(code) LIKE ?", val, val)
		}
		if filter.IsActive != nil {
			w.and("is_active = ?", *filter.IsActive)
		}
	}
	q := "SELECT " + schoolColumns + " FROM schools" + w.String() +
		core.OrderByClause(ordering, []string{"name", "code", "created_at"}, "name ASC")

	var rows []schoolRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting schools")
	}
	schools := make([]school.School, 0, len(rows))
	for _, row := range rows {
		schools = append(schools, r.unboil(row))
	}
	return schools, nil
}

func (r schoolRepository) get(ctx context.Context, exe core.DBExecutor, cond string, arg string) (school.School, error) {
	var row schoolRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind("SELECT "+schoolColumns+" FROM schools WHERE "+cond), arg)
	if err != nil {
		return school.School{}, trapNoRowsErr(err, school.ErrNotFound, "selecting school")
	}
	return r.unboil(row), nil
}

func (r schoolRepository) GetSchool(ctx context.Context, id string, exec ...core.DBExecutor) (school.School, error) {
	if !validIDs(id) {
		return school.School{}, school.ErrNotFound
	}
	return r.get(ctx, r.getExec(exec), "id = ?", id)
}

func (r schoolRepository) GetSchoolByCode(ctx context.Context, code string, exec ...core.DBExecutor) (school.School, error) {
	return r.get(ctx, r.getExec(exec), "code = ?", code)
}

func (r schoolRepository) UpdateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	exe := r.getExec(exec)
	row := r.boil(sch)
	res, err := exe.ExecContext(ctx, exe.Rebind(
		"UPDATE schools SET name = ?, address = ?, phone = ?, email = ?, is_active = ?, updated_at = ? WHERE id = ?"),
		row.Name, row.Address, row.Phone, row.Email, row.IsActive, row.UpdatedAt, row.ID,
	)
	if n, err := rowsAffected(res, err, "updating school"); err != nil {
		return school.School{}, err
	} else if n == 0 {
		return school.School{}, school.ErrNotFound
	}
	return sch, nil
}

func (r schoolRepository) DeleteSchool(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validIDs(id) {
		return school.ErrNotFound
	}
	exe := r.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM schools WHERE id = ?"), id)
	if database.IsForeignKeyViolation(err) {
		return school.ErrSchoolInUse
	}
	n, err := rowsAffected(res, err, "deleting school")
	if err != nil {
		return err
	}
	if n == 0 {
		return school.ErrNotFound
	}
	return nil
}
