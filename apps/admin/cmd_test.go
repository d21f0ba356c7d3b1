package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/leave"
	"github.com/avsnarang/scholarise/core/payroll"
	"github.com/avsnarang/scholarise/core/school"
	"github.com/avsnarang/scholarise/core/user"
	"github.com/avsnarang/scholarise/storage/database"
	sqlxrepos "github.com/avsnarang/scholarise/storage/database/sqlx"
	"github.com/avsnarang/scholarise/tests"
)

func setup(t *testing.T) *commandLine {
	conf := testutil.TestConfig()
	conf.Debug = true
	conf.Database.Engine = database.EngineSQLite
	return newCommandLine(conf, testutil.PrepareDB(t), core.NopLogger())
}

// run executes the CLI with args (without program name) and returns its output.
func run(cli *commandLine, args ...string) (string, error) {
	var out bytes.Buffer
	root := cli.rootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.Execute()
	return out.String(), err
}

func withPassword(t *testing.T, pwd string) {
	orig := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	var calls []string
	origUp, origDown, origStatus := migrateUpFunc, migrateDownFunc, migrateStatusFunc
	migrateUpFunc = func(*sqlx.DB, ...bool) error { calls = append(calls, "up"); return nil }
	migrateDownFunc = func(*sqlx.DB) error { calls = append(calls, "down"); return nil }
	migrateStatusFunc = func(*sqlx.DB) error { return errors.New("no migrations table") }
	t.Cleanup(func() { migrateUpFunc, migrateDownFunc, migrateStatusFunc = origUp, origDown, origStatus })

	tests := []struct {
		name       string
		args       []string
		wantErrStr string
	}{
		{name: "up", args: []string{"migrate", "up"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status fails", args: []string{"migrate", "status"}, wantErrStr: "no migrations table"},
		{name: "no extra args", args: []string{"migrate", "up", "2"}, wantErrStr: `unknown command "2" for "admin migrate up"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(cli, tt.args...)
			if tt.wantErrStr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrStr)
				return
			}
			assert.NoError(t, err)
		})
	}
	assert.Equal(t, []string{"up", "down"}, calls)
}

func Test_commandLine_addSchool(t *testing.T) {
	cli := setup(t)

	out, err := run(cli, "addschool", "--name", "Green Hills School", "--code", "ghs", "--phone", "+91 98000 00000")
	require.NoError(t, err)
	assert.Contains(t, out, "school GHS created")

	sch, err := cli.schSvc.GetByCode(context.Background(), "GHS")
	require.NoError(t, err)
	assert.Equal(t, "Green Hills School", sch.Name)
	assert.Equal(t, "+919800000000", sch.Phone)

	_, err = run(cli, "addschool", "--name", "Other", "--code", "GHS")
	assert.EqualError(t, err, school.ErrCodeExists.Error())

	_, err = run(cli, "addschool", "--name", "Other", "--code", "G-1")
	assert.Error(t, err)

	_, err = run(cli, "addschool", "--code", "OTH")
	assert.Error(t, err, "name is required")
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()
	sch := testutil.CreateSchool(t, sqlxrepos.NewSchoolRepository(cli.db), "Green Hills School", "GHS")

	t.Run("empty password", func(t *testing.T) {
		withPassword(t, "")
		_, err := run(cli, "adduser", "--username", "root")
		assert.Equal(t, errEmptyPassword, err)
	})

	t.Run("unknown school", func(t *testing.T) {
		withPassword(t, "s3cret!pass")
		_, err := run(cli, "adduser", "--username", "someone", "--school", "XYZ")
		assert.True(t, core.IsNotFound(err), err)
	})

	t.Run("platform admin", func(t *testing.T) {
		withPassword(t, "s3cret!pass")
		out, err := run(cli, "adduser", "--username", "Root", "--email", "root@test.in")
		require.NoError(t, err)
		assert.Contains(t, out, `user "root" created`)

		usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: "root"})
		require.NoError(t, err)
		assert.Equal(t, "", usr.SchoolID)
		assert.Equal(t, []string{user.RolePlatform}, usr.Roles)
		assert.NoError(t, usr.CheckPassword("s3cret!pass"))
	})

	t.Run("school admin", func(t *testing.T) {
		withPassword(t, "s3cret!pass")
		_, err := run(cli, "adduser", "--username", "principal", "--name", "Anita Rao", "--school", "ghs", "--role", user.RoleAdminPrincipal)
		require.NoError(t, err)

		usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: "principal"})
		require.NoError(t, err)
		assert.Equal(t, sch.ID, usr.SchoolID)
		assert.Equal(t, "Anita Rao", usr.Name)
		assert.Equal(t, []string{user.RoleAdminPrincipal}, usr.Roles)
	})

	t.Run("existing user is reactivated", func(t *testing.T) {
		old := testutil.CreateUser(t, cli.usrRepo, sch.ID, "Clerk", "clerk", "clerk@test.in", "old", []string{user.RoleStaffClerk}, false)

		withPassword(t, "n3w!pass")
		out, err := run(cli, "adduser", "--username", "clerk", "--school", "GHS")
		require.NoError(t, err)
		assert.Contains(t, out, "updated")

		usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{ID: old.ID})
		require.NoError(t, err)
		assert.True(t, usr.IsActive)
		assert.Equal(t, []string{user.RoleAdmin}, usr.Roles)
		assert.NoError(t, usr.CheckPassword("n3w!pass"))
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	usr := testutil.CreateUser(t, cli.usrRepo, "", "User", "awe", "awe@test.in", "mdr", nil, true)

	tests := []struct {
		name    string
		args    []string
		pwd     string
		wantErr func(err error) bool
	}{
		{name: "no username", args: []string{"resetpassword"}, pwd: "lol", wantErr: func(err error) bool { return err != nil }},
		{name: "no password", args: []string{"resetpassword", "--username", "awe"}, wantErr: func(err error) bool { return err == errEmptyPassword }},
		{name: "user not found", args: []string{"resetpassword", "--username", "lol"}, pwd: "lol", wantErr: core.IsNotFound},
		{name: "reset with username", args: []string{"resetpassword", "--username", "AWE"}, pwd: "lol"},
		{name: "reset with email", args: []string{"resetpassword", "--username", usr.Email}, pwd: "lmao"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withPassword(t, tt.pwd)
			_, err := run(cli, tt.args...)
			if tt.wantErr != nil {
				assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
				return
			}
			require.NoError(t, err)

			refreshed, err := cli.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.NoError(t, refreshed.CheckPassword(tt.pwd))
		})
	}
}

func Test_commandLine_jobs(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()
	schRepo := sqlxrepos.NewSchoolRepository(cli.db)
	staffRepo := sqlxrepos.NewStaffRepository(cli.db)

	sch := testutil.CreateSchool(t, schRepo, "Green Hills School", "GHS")
	testutil.CreateSchool(t, schRepo, "Riverside Academy", "RSA")
	stf := testutil.CreateStaff(t, staffRepo, sch.ID, "Sunita Verma", "EMP-0001")
	testutil.CreatePolicy(t, sqlxrepos.NewLeaveRepository(cli.db), sch.ID, "CL", 12, 5)

	t.Run("leave init-balances", func(t *testing.T) {
		out, err := run(cli, "leave", "init-balances", "--school", "GHS", "--year", "2027")
		require.NoError(t, err)
		assert.Equal(t, "GHS: 1 balances created for 2027\n", out)

		balances, err := cli.leaveSvc.QueryBalances(ctx, sch.ID, &leave.BalanceFilter{Year: 2027})
		require.NoError(t, err)
		require.Len(t, balances, 1)
		assert.Equal(t, stf.ID, balances[0].StaffID)

		out, err = run(cli, "leave", "init-balances", "--school", "GHS", "--year", "2027")
		require.NoError(t, err)
		assert.Equal(t, "GHS: 0 balances created for 2027\n", out)

		_, err = run(cli, "leave", "init-balances", "--year", "2027")
		assert.Error(t, err, "school is required")
	})

	t.Run("payroll generate", func(t *testing.T) {
		_, err := cli.payrollSvc.SetStructure(ctx, sch.ID, payroll.SetStructure{StaffID: stf.ID, Basic: 2500000, Allowances: 250000})
		require.NoError(t, err)

		out, err := run(cli, "payroll", "generate", "--school", "GHS", "--year", "2027", "--month", "2")
		require.NoError(t, err)
		assert.Equal(t, "GHS 2027-02: 1 payslips generated, 0 paid skipped\n", out)

		slips, err := cli.payrollSvc.QueryPayslips(ctx, sch.ID, &payroll.QueryFilter{Year: 2027, Month: 2})
		require.NoError(t, err)
		require.Len(t, slips, 1)
		assert.Equal(t, int64(2750000), slips[0].Net)

		_, err = run(cli, "payroll", "generate", "--school", "GHS", "--year", "2027", "--month", "13")
		assert.Error(t, err)
	})

	t.Run("admissions expire-offers", func(t *testing.T) {
		out, err := run(cli, "admissions", "expire-offers")
		require.NoError(t, err)
		assert.Equal(t, "GHS: 0 offers expired\nRSA: 0 offers expired\n", out)

		out, err = run(cli, "admissions", "expire-offers", "--school", "rsa")
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("%s: 0 offers expired\n", "RSA"), out)
	})
}
