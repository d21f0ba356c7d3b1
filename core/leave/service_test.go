package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/leave"
	"github.com/avsnarang/scholarise/core/staff"
	sqlxrepos "github.com/avsnarang/scholarise/storage/database/sqlx"
	"github.com/avsnarang/scholarise/tests"
)

type fixture struct {
	svc      leave.Service
	repo     leave.Repository
	schoolID string
	member   staff.Staff
	policy   leave.Policy
	year     int
}

// setup returns a staff member holding a balance of 12 days for next year,
// so that requests always start in the future.
func setup(t *testing.T) fixture {
	db := testutil.PrepareDB(t)
	repo := sqlxrepos.NewLeaveRepository(db)
	staffRepo := sqlxrepos.NewStaffRepository(db)

	sch := testutil.CreateSchool(t, sqlxrepos.NewSchoolRepository(db), "Green Hills School", "GHS")
	f := fixture{
		svc:      leave.NewService(db, repo, staffRepo, testutil.TestConfig()),
		repo:     repo,
		schoolID: sch.ID,
		member:   testutil.CreateStaff(t, staffRepo, sch.ID, "Sunita Verma", "EMP-0001"),
		policy:   testutil.CreatePolicy(t, repo, sch.ID, "CL", 12, 5),
		year:     core.Today().Year() + 1,
	}
	n, err := f.svc.InitializeBalances(context.Background(), sch.ID, f.year)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	return f
}

// week returns the monday of the second full week of the fixture year.
func (f fixture) week() core.Date {
	d := core.NewDate(f.year, time.January, 8)
	for d.Weekday() != time.Monday {
		d = d.AddDays(1)
	}
	return d
}

func (f fixture) balance(t *testing.T) leave.Balance {
	b, err := f.repo.GetBalance(context.Background(), f.schoolID, f.member.ID, f.policy.ID, f.year)
	require.NoError(t, err)
	require.Equal(t, b.Total-b.Used, b.Remaining)
	return b
}

func (f fixture) apply(t *testing.T, from, to core.Date) leave.Request {
	r, err := f.svc.Apply(context.Background(), f.schoolID, f.member.ID, leave.NewRequest{
		PolicyID:  f.policy.ID,
		StartDate: from,
		EndDate:   to,
		Reason:    "family function",
	})
	require.NoError(t, err)
	return r
}

func requireValidationErr(t *testing.T, err error, want error) {
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, want, verr.Err)
}

func TestService_ledger(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	mon := f.week()

	// monday to sunday: sunday is not a working day
	r := f.apply(t, mon, mon.AddDays(6))
	assert.Equal(t, 6, r.Days)
	assert.Equal(t, leave.StatusPending, r.Status)

	// pending requests hold no days
	assert.Equal(t, 12, f.balance(t).Remaining)

	r, err := f.svc.Approve(ctx, f.schoolID, r.ID, "reviewer", leave.Review{Note: "ok"})
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, r.Status)
	assert.NotNil(t, r.ReviewedAt)

	b := f.balance(t)
	assert.Equal(t, 6, b.Used)
	assert.Equal(t, 6, b.Remaining)

	// approving twice is a transition error and debits nothing
	_, err = f.svc.Approve(ctx, f.schoolID, r.ID, "reviewer", leave.Review{})
	assert.True(t, core.IsTransitionError(err), "got %v", err)
	assert.Equal(t, 6, f.balance(t).Remaining)

	// cancelling an approved leave before it starts credits the days back
	r, err = f.svc.Cancel(ctx, f.schoolID, r.ID, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCancelled, r.Status)
	b = f.balance(t)
	assert.Equal(t, 0, b.Used)
	assert.Equal(t, 12, b.Remaining)

	pending, err := f.svc.CountPending(ctx, f.schoolID)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestService_Apply(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	mon := f.week()

	first := f.apply(t, mon, mon.AddDays(1))

	tests := []struct {
		name     string
		policyID string
		from, to core.Date
		wantErr  error
	}{
		{name: "overlap", from: mon.AddDays(1), to: mon.AddDays(2), wantErr: leave.ErrOverlap},
		{name: "weekend only", from: mon.AddDays(6), to: mon.AddDays(6), wantErr: leave.ErrNoWorkingDays},
		{name: "more than the balance", from: mon.AddDays(7), to: mon.AddDays(21), wantErr: leave.ErrInsufficientBalance},
		{name: "no balance that year", from: mon.AddDays(-365), to: mon.AddDays(-364), wantErr: leave.ErrNoBalance},
		{name: "unknown policy", policyID: "5a0f7f5e-7d8e-4cd1-8e6c-8f1f1b3b2c11", from: mon.AddDays(7), to: mon.AddDays(7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policyID := f.policy.ID
			if tt.policyID != "" {
				policyID = tt.policyID
			}
			_, err := f.svc.Apply(ctx, f.schoolID, f.member.ID, leave.NewRequest{PolicyID: policyID, StartDate: tt.from, EndDate: tt.to})
			if tt.wantErr != nil {
				requireValidationErr(t, err, tt.wantErr)
				return
			}
			assert.Error(t, err)
		})
	}

	// a rejected request frees its period
	_, err := f.svc.Reject(ctx, f.schoolID, first.ID, "reviewer", leave.Review{Note: "exams week"})
	require.NoError(t, err)
	f.apply(t, mon.AddDays(1), mon.AddDays(2))
	assert.Equal(t, 12, f.balance(t).Remaining)
}

func TestService_approveChecksBalance(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	mon := f.week()

	// both fit the balance on their own, not together
	r1 := f.apply(t, mon, mon.AddDays(5))             // 6 days
	r2 := f.apply(t, mon.AddDays(7), mon.AddDays(13)) // 6 days
	r3 := f.apply(t, mon.AddDays(14), mon.AddDays(14))

	_, err := f.svc.Approve(ctx, f.schoolID, r1.ID, "reviewer", leave.Review{})
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, f.schoolID, r2.ID, "reviewer", leave.Review{})
	require.NoError(t, err)
	assert.Equal(t, 0, f.balance(t).Remaining)

	_, err = f.svc.Approve(ctx, f.schoolID, r3.ID, "reviewer", leave.Review{})
	requireValidationErr(t, err, leave.ErrInsufficientBalance)

	// the failed approval left the request pending
	r3, err = f.svc.GetRequest(ctx, f.schoolID, r3.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, r3.Status)
	b := f.balance(t)
	assert.Equal(t, 12, b.Used)
	assert.Equal(t, 0, b.Remaining)
}

func TestService_Cancel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	mon := f.week()

	r := f.apply(t, mon, mon)

	_, err := f.svc.Cancel(ctx, f.schoolID, r.ID, "3f0e2e0b-4c8a-4c4e-bb55-6a1f2f0c9d10")
	requireValidationErr(t, err, leave.ErrNotRequester)

	// pending: no credit
	r, err = f.svc.Cancel(ctx, f.schoolID, r.ID, "")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCancelled, r.Status)
	assert.Equal(t, 12, f.balance(t).Remaining)

	_, err = f.svc.Cancel(ctx, f.schoolID, r.ID, "")
	assert.True(t, core.IsTransitionError(err), "got %v", err)

	_, err = f.svc.Approve(ctx, f.schoolID, r.ID, "reviewer", leave.Review{})
	assert.True(t, core.IsTransitionError(err), "got %v", err)
}

func TestService_InitializeBalances(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	mon := f.week()

	r := f.apply(t, mon, mon.AddDays(3)) // 4 days
	_, err := f.svc.Approve(ctx, f.schoolID, r.ID, "reviewer", leave.Review{})
	require.NoError(t, err)

	// idempotent
	n, err := f.svc.InitializeBalances(ctx, f.schoolID, f.year)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 8, f.balance(t).Remaining)

	// 8 days left, at most 5 carried forward
	n, err = f.svc.InitializeBalances(ctx, f.schoolID, f.year+1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	balances, err := f.svc.QueryBalances(ctx, f.schoolID, &leave.BalanceFilter{StaffID: f.member.ID, Year: f.year + 1})
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, 17, balances[0].Total)
	assert.Equal(t, 17, balances[0].Remaining)
	assert.Equal(t, 0, balances[0].Used)

	// policies in use cannot be deleted
	err = f.svc.DeletePolicy(ctx, f.schoolID, f.policy.ID)
	requireValidationErr(t, err, leave.ErrPolicyInUse)
}
