package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/user"
	"github.com/avsnarang/scholarise/tests"
)

func Test_userRepository(t *testing.T) {
	db := testutil.PrepareDB(t)
	ctx := context.Background()
	repo := NewUserRepository(db)
	sch := testutil.CreateSchool(t, NewSchoolRepository(db), "Green Hills School", "GHS")
	other := testutil.CreateSchool(t, NewSchoolRepository(db), "Riverside Academy", "RSA")

	t0 := time.Now().Add(-time.Hour)
	admin := testutil.CreateUser(t, repo, sch.ID, "Admin", "admin", "admin@ghs.in", "s3cr3t!pass", []string{user.RoleAdmin}, true, t0)
	principal := testutil.CreateUser(t, repo, sch.ID, "Principal", "principal", "principal@ghs.in", "", []string{user.RoleAdminPrincipal}, true, t0.Add(time.Minute))
	teacher := testutil.CreateUser(t, repo, sch.ID, "Teacher Tina", "", "tina@ghs.in", "", []string{user.RoleTeacher}, false, t0.Add(2*time.Minute))
	outsider := testutil.CreateUser(t, repo, other.ID, "Outsider", "outsider", "out@rsa.in", "", []string{user.RoleAdmin}, true, t0.Add(3*time.Minute))

	t.Run("uniqueness", func(t *testing.T) {
		assert.Equal(t, user.ErrUsernameExists, repo.CheckUsernameUniqueness(ctx, "admin", "new@ghs.in", nil))
		assert.Equal(t, user.ErrEmailExists, repo.CheckUsernameUniqueness(ctx, "newbie", "tina@ghs.in", nil))
		assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "admin", "admin@ghs.in", []user.User{admin}))
		// users without a username do not clash on ""
		assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "", "fresh@ghs.in", nil))

		_, err := repo.CreateUser(ctx, user.User{SchoolID: sch.ID, Name: "Dup", Username: "admin", Email: "dup@ghs.in"})
		assert.Equal(t, core.ErrUniqueViolation, errors.Cause(err))
	})

	t.Run("query", func(t *testing.T) {
		all, err := repo.QueryUsers(ctx, sch.ID, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{teacher.ID, principal.ID, admin.ID}, ids(all))

		admins, err := repo.QueryUsers(ctx, sch.ID, &user.QueryFilter{Roles: []string{user.RoleAdmin}}, []core.DBOrdering{{Field: "name", Ascending: true}})
		require.NoError(t, err)
		assert.Equal(t, []string{admin.ID, principal.ID}, ids(admins))

		active := false
		inactive, err := repo.QueryUsers(ctx, sch.ID, &user.QueryFilter{IsActive: &active}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{teacher.ID}, ids(inactive))

		found, err := repo.QueryUsers(ctx, "", &user.QueryFilter{Search: "SIDER"}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{outsider.ID}, ids(found))
	})

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: "admin@ghs.in"})
		require.NoError(t, err)
		assert.Equal(t, admin.ID, got.ID)
		assert.NoError(t, got.CheckPassword("s3cr3t!pass"))
		assert.Equal(t, []string{user.RoleAdmin}, got.Roles)

		_, err = repo.GetUser(ctx, user.GetFilter{ID: "lol"})
		assert.Equal(t, user.ErrNotFound, err)
		_, err = repo.GetUser(ctx, user.GetFilter{})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("delete is scoped to the school", func(t *testing.T) {
		n, err := repo.DeleteUsersByID(ctx, sch.ID, []string{outsider.ID, "lol"})
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		n, err = repo.DeleteUsersByID(ctx, sch.ID, []string{teacher.ID})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func ids(users []user.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}
