package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/user"
	"github.com/avsnarang/scholarise/storage/database"
)

const userColumns = "id, school_id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login"

type userRow struct {
	ID           string      `db:"id"`
	SchoolID     null.String `db:"school_id"`
	Name         null.String `db:"name"`
	Username     null.String `db:"username"`
	Email        null.String `db:"email"`
	IsActive     bool        `db:"is_active"`
	Roles        string      `db:"roles"` // ",role1,role2,"
	PasswordHash string      `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

type userRepository struct {
	repo
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{repo{exec: exec}}
}

func joinRoles(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	return "," + strings.Join(roles, ",") + ","
}

func splitRoles(s string) []string {
	roles := make([]string, 0)
	for _, role := range strings.Split(strings.Trim(s, ","), ",") {
		if role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}

func (userRepository) boil(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		SchoolID:     nullString(usr.SchoolID),
		Name:         nullString(usr.Name),
		Username:     nullString(usr.Username),
		Email:        nullString(usr.Email),
		IsActive:     usr.IsActive,
		Roles:        joinRoles(usr.Roles),
		PasswordHash: string(usr.PasswordHash),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    nullTime(usr.LastLogin),
	}
}

func (userRepository) unboil(row userRow) user.User {
	usr := user.User{
		ID:           row.ID,
		SchoolID:     row.SchoolID.String,
		Name:         row.Name.String,
		Username:     row.Username.String,
		Email:        row.Email.String,
		IsActive:     row.IsActive,
		Roles:        splitRoles(row.Roles),
		PasswordHash: []byte(row.PasswordHash),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.LastLogin.Valid {
		usr.LastLogin = row.LastLogin.Time.UTC()
	}
	return usr
}

func (r userRepository) unboilSlice(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, r.unboil(row))
	}
	return users
}

func (r userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	exe := r.getExec(exec)
	check := func(column, value string, exists error) error {
		if value == "" {
			return nil
		}
		q := "SELECT COUNT(*) FROM users WHERE " + column + " = ?"
		args := []interface{}{value}
		if len(excludedUsers) > 0 {
			ids := make([]string, 0, len(excludedUsers))
			for _, u := range excludedUsers {
				ids = append(ids, u.ID)
			}
			q += " AND id NOT IN (?)"
			args = append(args, ids)
		}
		q, args, err := sqlx.In(q, args...)
		if err != nil {
			return errors.Wrap(err, "checking user uniqueness")
		}
		var count int
		if err = sqlx.GetContext(ctx, exe, &count, exe.Rebind(q), args...); err != nil {
			return errors.Wrap(err, "checking user uniqueness")
		}
		if count > 0 {
			return exists
		}
		return nil
	}

	if err := check("username", username, user.ErrUsernameExists); err != nil {
		return err
	}
	return check("email", email, user.ErrEmailExists)
}

func (r userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := r.getExec(exec)
	usr.ID = newID()
	row := r.boil(usr)
	err := database.WithSavepoint(ctx, exe, "create_user", func() error {
		_, err := exe.ExecContext(ctx, exe.Rebind(
			"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
			row.ID, row.SchoolID, row.Name, row.Username, row.Email, row.IsActive, row.Roles, row.PasswordHash,
			row.CreatedAt, row.UpdatedAt, row.LastLogin,
		)
		return err
	})
	if err != nil {
		return user.User{}, database.TrapUniqueErr(err, "inserting user")
	}
	return r.unboil(row), nil
}

func (r userRepository) QueryUsers(ctx context.Context, schoolID string, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	exe := r.getExec(exec)
	w := new(where)
	if schoolID != "" {
		w.and("school_id = ?", schoolID)
	}

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := likeArg(filter.Search)
			w.and("LOWER(name) LIKE ? OR LOWER(username) LIKE ? OR LOWER(email) LIKE ?", val, val, val)
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			conds := make([]string, 0, len(filter.Roles))
			args := make([]interface{}, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				conds = append(conds, "roles LIKE ?")
				args = append(args, "%,"+role+"%")
			}
			w.and(strings.Join(conds, " OR "), args...)
		}
		if filter.IsActive != nil {
			w.and("is_active = ?", *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			w.and("created_at >= ?", filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			w.and("created_at <= ?", filter.CreatedTo.UTC())
		}
	}

	q := "SELECT " + userColumns + " FROM users" + w.String() +
		core.OrderByClause(ordering, []string{"name", "username", "email", "created_at", "last_login"}, "created_at DESC")
	var rows []userRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	return r.unboilSlice(rows), nil
}

func (r userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	exe := r.getExec(exec)
	var w *where
	switch {
	case filter.ID != "":
		if !validIDs(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		w = newWhere("id = ?", filter.ID)
	case filter.Username != "":
		w = newWhere("username = ?", filter.Username)
	case filter.Email != "":
		w = newWhere("email = ?", filter.Email)
	case filter.UsernameOrEmail != "":
		w = newWhere("username = ? OR email = ?", filter.UsernameOrEmail, filter.UsernameOrEmail)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind("SELECT "+userColumns+" FROM users"+w.String()+" LIMIT 1"), w.args...)
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "selecting user")
	}
	return r.unboil(row), nil
}

func (r userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := r.getExec(exec)
	row := r.boil(usr)
	res, err := exe.ExecContext(ctx, exe.Rebind(
		"UPDATE users SET name = ?, username = ?, email = ?, is_active = ?, roles = ?, password_hash = ?, "+
			"updated_at = ?, last_login = ? WHERE id = ?"),
		row.Name, row.Username, row.Email, row.IsActive, row.Roles, row.PasswordHash, row.UpdatedAt, row.LastLogin, row.ID,
	)
	n, err := rowsAffected(res, err, "updating user")
	if err != nil {
		return user.User{}, database.TrapUniqueErr(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return r.unboil(row), nil
}

func (r userRepository) DeleteUsersByID(ctx context.Context, schoolID string, ids []string, exec ...core.DBExecutor) (int, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validIDs(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}

	exe := r.getExec(exec)
	q := "DELETE FROM users WHERE id IN (?)"
	args := []interface{}{valid}
	if schoolID != "" {
		q += " AND school_id = ?"
		args = append(args, schoolID)
	}
	res, err := execIn(ctx, exe, q, args...)
	return rowsAffected(res, err, "deleting users")
}
