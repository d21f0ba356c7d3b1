package tests

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avsnarang/scholarise/apps/api/echo"
	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/courtesy"
	"github.com/avsnarang/scholarise/core/dashboard"
	"github.com/avsnarang/scholarise/core/leave"
	"github.com/avsnarang/scholarise/core/payroll"
	"github.com/avsnarang/scholarise/core/staff"
	"github.com/avsnarang/scholarise/core/user"
	"github.com/avsnarang/scholarise/tests"
)

func Test_staffApi_accounts(t *testing.T) {
	f := setup(t)
	sch := testutil.CreateSchool(t, f.schRepo, "Green Hills School", "GHS")
	principal := f.token(t, f.createUser(t, sch.ID, "Principal", "principal", user.RoleAdminPrincipal))
	clerk := f.token(t, f.createUser(t, sch.ID, "Clerk", "clerk", user.RoleStaffClerk))

	newAccount := func(uname string, roles ...string) staff.NewStaffWithLogin {
		return staff.NewStaffWithLogin{
			NewStaff:        staff.NewStaff{Name: "Asha Menon", Department: "Accounts", Phone: "+91 98333 33333"},
			Username:        uname,
			Password:        "Ledger#2026",
			PasswordConfirm: "Ledger#2026",
			Roles:           roles,
		}
	}

	runHTTPTests(t, f, []httpTest{
		{name: "clerks cannot manage staff", method: http.MethodPost, path: "/api/staff/accounts", token: clerk, body: marchallObj(t, newAccount("asha", user.RoleStaffAccountant)), wantCode: http.StatusForbidden},
		{name: "student roles are not staff roles", method: http.MethodPost, path: "/api/staff/accounts", token: principal, body: marchallObj(t, newAccount("asha", user.RoleStudent)), wantCode: http.StatusBadRequest},
		{name: "admin roles", method: http.MethodPost, path: "/api/staff/accounts", token: principal, body: marchallObj(t, newAccount("asha", user.RoleAdminOwner)), wantCode: http.StatusBadRequest},
		{name: "no staff profile", path: "/api/staff/me", token: principal, wantCode: http.StatusNotFound},
	})

	var resp echoapi.StaffAccountResponse
	rec := f.do(t, http.MethodPost, "/api/staff/accounts", principal, newAccount("Asha", user.RoleStaffAccountant), &resp)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "asha", resp.User.Username)
	assert.Equal(t, []string{user.RoleStaffAccountant}, resp.User.Roles)
	assert.Equal(t, resp.User.ID, resp.Staff.UserID)
	assert.Equal(t, "EMP-0001", resp.Staff.EmployeeCode)
	assert.Equal(t, "+919833333333", resp.Staff.Phone)

	// the new account can sign in and find its profile
	var login echoapi.LoginResponse
	rec = f.do(t, http.MethodPost, "/api/users/login", "", echoapi.LoginRequest{Username: "asha", Password: "Ledger#2026"}, &login)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var me staff.Staff
	rec = f.do(t, http.MethodGet, "/api/staff/me", login.Token, nil, &me)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, resp.Staff.ID, me.ID)

	// usernames are unique across the platform
	rec = f.do(t, http.MethodPost, "/api/staff/accounts", principal, newAccount("asha"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var members []staff.Staff
	rec = f.do(t, http.MethodGet, "/api/staff?department=accounts", principal, nil, &members)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, members, 1)
}

func Test_payrollApi(t *testing.T) {
	f := setup(t)
	sch := testutil.CreateSchool(t, f.schRepo, "Green Hills School", "GHS")
	admin := f.token(t, f.createUser(t, sch.ID, "Admin", "admin", user.RoleAdmin))
	accountant := f.token(t, f.createUser(t, sch.ID, "Accountant", "accountant", user.RoleStaffAccountant))
	teacher := f.token(t, f.createUser(t, sch.ID, "Teacher", "teacher", user.RoleTeacher))

	sunita := testutil.CreateStaff(t, f.staffRepo, sch.ID, "Sunita Verma", "EMP-0001")
	rahul := testutil.CreateStaff(t, f.staffRepo, sch.ID, "Rahul Jain", "EMP-0002")

	runHTTPTests(t, f, []httpTest{
		{name: "teachers cannot see payroll", path: "/api/payroll/payslips", token: teacher, wantCode: http.StatusForbidden},
		{
			name: "unknown staff", method: http.MethodPost, path: "/api/payroll/structures", token: accountant,
			body:     marchallObj(t, payroll.SetStructure{StaffID: "5a0f7f5e-7d8e-4cd1-8e6c-8f1f1b3b2c11", Basic: 100}),
			wantCode: http.StatusBadRequest,
		},
		{name: "bad period", method: http.MethodPost, path: "/api/payroll/generate", token: accountant, body: marchallObj(t, payroll.Period{Year: 2026, Month: 13}), wantCode: http.StatusBadRequest},
	})

	for _, ss := range []payroll.SetStructure{
		{StaffID: sunita.ID, Basic: 3000000, Allowances: 500000, Deductions: 200000},
		{StaffID: rahul.ID, Basic: 2500000},
	} {
		rec := f.do(t, http.MethodPost, "/api/payroll/structures", accountant, ss, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	// two days of unpaid leave for sunita, in the second week of the period
	year := core.Today().Year() + 1
	unpaid := false
	var policy leave.Policy
	rec := f.do(t, http.MethodPost, "/api/leave/policies", admin, leave.NewPolicy{Name: "Leave without pay", Code: "LWP", DaysPerYear: 30, IsPaid: &unpaid}, &policy)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/api/leave/balances/initialize", admin, leave.InitBalances{Year: year}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	mon := core.NewDate(year, time.March, 8)
	for mon.Weekday() != time.Monday {
		mon = mon.AddDays(1)
	}
	var req leave.Request
	rec = f.do(t, http.MethodPost, "/api/leave/requests", admin, map[string]interface{}{
		"policy_id":  policy.ID,
		"start_date": mon,
		"end_date":   mon.AddDays(1),
		"staff_id":   sunita.ID,
	}, &req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, sunita.ID, req.StaffID)
	rec = f.do(t, http.MethodPost, "/api/leave/requests/"+req.ID+"/approve", admin, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	period := payroll.Period{Year: year, Month: int(time.March)}
	first, last := period.Bounds()
	workingDays := core.WorkingDays(first, last, f.conf.Leave.WeekendDays)

	var res payroll.GenerateResult
	rec = f.do(t, http.MethodPost, "/api/payroll/generate", accountant, period, &res)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, res.Generated, 2)
	assert.Equal(t, 0, res.Skipped)

	slips := make(map[string]payroll.Payslip)
	for _, s := range res.Generated {
		slips[s.StaffID] = s
	}
	s := slips[sunita.ID]
	gross, leaveDeduction, net := payroll.Compute(payroll.Structure{Basic: 3000000, Allowances: 500000, Deductions: 200000}, workingDays, 2)
	assert.Equal(t, workingDays, s.WorkingDays)
	assert.Equal(t, 2, s.UnpaidLeaveDays)
	assert.Equal(t, int64(3500000), gross)
	assert.Equal(t, gross, s.Gross)
	assert.Equal(t, leaveDeduction, s.LeaveDeduction)
	assert.Equal(t, net, s.Net)
	assert.Equal(t, payroll.StatusDraft, s.Status)

	r := slips[rahul.ID]
	assert.Equal(t, 0, r.UnpaidLeaveDays)
	assert.Equal(t, int64(2500000), r.Net)

	var paid payroll.Payslip
	rec = f.do(t, http.MethodPost, "/api/payroll/payslips/"+s.ID+"/pay", accountant, nil, &paid)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, payroll.StatusPaid, paid.Status)
	assert.NotNil(t, paid.PaidAt)

	rec = f.do(t, http.MethodPost, "/api/payroll/payslips/"+s.ID+"/pay", accountant, nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// regenerating leaves paid slips untouched
	rec = f.do(t, http.MethodPost, "/api/payroll/generate", accountant, period, &res)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, res.Generated, 1)
	assert.Equal(t, 1, res.Skipped)

	var listed []payroll.Payslip
	rec = f.do(t, http.MethodGet, "/api/payroll/payslips?year="+strconv.Itoa(year)+"&month=3&status=paid", accountant, nil, &listed)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, listed, 1)
	assert.Equal(t, s.ID, listed[0].ID)
}

func Test_courtesyApi(t *testing.T) {
	f := setup(t)
	sch := testutil.CreateSchool(t, f.schRepo, "Green Hills School", "GHS")
	cls := testutil.CreateClass(t, f.classRepo, sch.ID, "Grade 2", "A", 0)
	anika := testutil.CreateStudent(t, f.stuRepo, sch.ID, cls.ID, "GHS260001", "Anika", "Bose")

	admin := f.token(t, f.createUser(t, sch.ID, "Admin", "admin", user.RoleAdmin))
	teacherUsr := f.createUser(t, sch.ID, "Teacher", "teacher", user.RoleTeacher)
	teacher := f.token(t, teacherUsr)
	colleague := f.token(t, f.createUser(t, sch.ID, "Colleague", "colleague", user.RoleTeacher))

	today := core.Today()
	runHTTPTests(t, f, []httpTest{
		{
			name: "follow-up date required", method: http.MethodPost, path: "/api/courtesy-calls", token: teacher,
			body:     marchallObj(t, courtesy.NewCall{StudentID: anika.ID, Purpose: courtesy.PurposeAcademic, Feedback: "doing well", FollowUpRequired: true}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"follow_up_date": "a follow-up date is required"}),
		},
		{
			name: "rating out of range", method: http.MethodPost, path: "/api/courtesy-calls", token: teacher,
			body: marchallObj(t, courtesy.NewCall{StudentID: anika.ID, Purpose: courtesy.PurposeAcademic, Feedback: "doing well", Rating: 6}), wantCode: http.StatusBadRequest,
		},
	})

	var closed, open courtesy.Call
	rec := f.do(t, http.MethodPost, "/api/courtesy-calls", teacher, courtesy.NewCall{StudentID: anika.ID, Purpose: "Academic", Feedback: "doing well", Rating: 5}, &closed)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, courtesy.StatusClosed, closed.Status)
	assert.Equal(t, teacherUsr.ID, closed.CalledBy)
	assert.Equal(t, today.String(), closed.CallDate.String())

	rec = f.do(t, http.MethodPost, "/api/courtesy-calls", teacher, courtesy.NewCall{
		StudentID:        anika.ID,
		Purpose:          courtesy.PurposeFee,
		Feedback:         "asked for an instalment plan",
		FollowUpRequired: true,
		FollowUpDate:     today.AddDays(3),
	}, &open)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, courtesy.StatusOpen, open.Status)

	runHTTPTests(t, f, []httpTest{
		{name: "colleagues do not see the call", path: "/api/courtesy-calls/" + open.ID, token: colleague, wantCode: http.StatusNotFound},
		{name: "admins see every call", path: "/api/courtesy-calls/" + open.ID, token: admin},
	})

	var calls []courtesy.Call
	rec = f.do(t, http.MethodGet, "/api/courtesy-calls", colleague, nil, &calls)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, calls, 0)

	rec = f.do(t, http.MethodGet, "/api/courtesy-calls?pending_follow_up=true", teacher, nil, &calls)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, calls, 1)
	assert.Equal(t, open.ID, calls[0].ID)

	rec = f.do(t, http.MethodPost, "/api/courtesy-calls/"+open.ID+"/close", teacher, nil, &open)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, courtesy.StatusClosed, open.Status)

	rec = f.do(t, http.MethodPut, "/api/courtesy-calls/"+open.ID, teacher, map[string]string{"feedback": "rewritten"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "closed follow-ups are frozen")

	rec = f.do(t, http.MethodDelete, "/api/courtesy-calls/"+closed.ID, colleague, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/courtesy-calls/"+closed.ID, teacher, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func Test_dashboardApi(t *testing.T) {
	f := setup(t)
	sch := testutil.CreateSchool(t, f.schRepo, "Green Hills School", "GHS")
	cls := testutil.CreateClass(t, f.classRepo, sch.ID, "Grade 2", "A", 0)
	testutil.CreateStudent(t, f.stuRepo, sch.ID, cls.ID, "GHS260001", "Anika", "Bose")
	testutil.CreateStudent(t, f.stuRepo, sch.ID, cls.ID, "GHS260002", "Kabir", "Das")
	testutil.CreateStaff(t, f.staffRepo, sch.ID, "Sunita Verma", "EMP-0001")

	other := testutil.CreateSchool(t, f.schRepo, "Riverside Academy", "RSA")
	testutil.CreateClass(t, f.classRepo, other.ID, "Grade 2", "A", 0)

	admin := f.token(t, f.createUser(t, sch.ID, "Admin", "admin", user.RoleAdmin))
	student := f.token(t, f.createUser(t, sch.ID, "Anika", "anika", user.RoleStudent))

	rec := f.do(t, http.MethodGet, "/api/dashboard", student, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var sum dashboard.Summary
	rec = f.do(t, http.MethodGet, "/api/dashboard", admin, nil, &sum)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, sum.Students)
	assert.Equal(t, 1, sum.Staff)
	assert.Equal(t, 1, sum.Classes)
	assert.Equal(t, 0, sum.PendingLeaveRequests)
	assert.Equal(t, 0, sum.MessagesLast7Days)
}
