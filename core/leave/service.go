package leave

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/staff"
)

var (
	// errors
	ErrPolicyNotFound  = core.NewNotFoundError("leave policy")
	ErrRequestNotFound = core.NewNotFoundError("leave request")
	ErrBalanceNotFound = core.NewNotFoundError("leave balance")

	ErrPolicyCodeExists    = errors.New("a leave policy with this code already exists")
	ErrPolicyInUse         = errors.New("leave policy still has balances or requests")
	ErrPolicyInactive      = errors.New("leave policy is not active")
	ErrNoWorkingDays       = errors.New("the requested period has no working days")
	ErrOverlap             = errors.New("the requested period overlaps another leave request")
	ErrNoBalance           = errors.New("no leave balance for this policy and year")
	ErrInsufficientBalance = errors.New("insufficient leave balance")
	ErrNotRequester        = errors.New("only the requester can cancel this request")
	ErrLeaveStarted        = errors.New("an approved leave can only be cancelled before it starts")
)

type (
	Repository interface {
		// CreatePolicy fails with core.ErrUniqueViolation when the code is taken.
		CreatePolicy(ctx context.Context, p Policy, exec ...core.DBExecutor) (Policy, error)
		QueryPolicies(ctx context.Context, schoolID string, isActive *bool, exec ...core.DBExecutor) ([]Policy, error)
		GetPolicy(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Policy, error)
		UpdatePolicy(ctx context.Context, p Policy, exec ...core.DBExecutor) (Policy, error)
		// DeletePolicy fails with ErrPolicyInUse when balances or requests reference the policy.
		DeletePolicy(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error

		// CreateBalance fails with core.ErrUniqueViolation (transaction kept usable) when the
		// (staff, policy, year) balance exists.
		CreateBalance(ctx context.Context, b Balance, exec ...core.DBExecutor) (Balance, error)
		GetBalance(ctx context.Context, schoolID, staffID, policyID string, year int, exec ...core.DBExecutor) (Balance, error)
		QueryBalances(ctx context.Context, schoolID string, filter *BalanceFilter, exec ...core.DBExecutor) ([]Balance, error)
		// DebitBalance moves days from remaining to used; core.ErrStaleWrite when remaining < days.
		DebitBalance(ctx context.Context, schoolID, staffID, policyID string, year, days int, at time.Time, exec ...core.DBExecutor) error
		// CreditBalance gives back days previously debited; core.ErrStaleWrite when used < days.
		CreditBalance(ctx context.Context, schoolID, staffID, policyID string, year, days int, at time.Time, exec ...core.DBExecutor) error

		CreateRequest(ctx context.Context, r Request, exec ...core.DBExecutor) (Request, error)
		GetRequest(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Request, error)
		QueryRequests(ctx context.Context, schoolID string, filter *RequestFilter, exec ...core.DBExecutor) ([]Request, error)
		// HasOverlap reports whether a pending or approved request of the staff member intersects [from, to].
		HasOverlap(ctx context.Context, schoolID, staffID string, from, to core.Date, exec ...core.DBExecutor) (bool, error)
		// SetRequestStatus is a guarded write: core.ErrStaleWrite when the request is no longer in status from.
		SetRequestStatus(ctx context.Context, r Request, from string, exec ...core.DBExecutor) error
		CountRequests(ctx context.Context, schoolID, status string, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		CreatePolicy(ctx context.Context, schoolID string, np NewPolicy) (Policy, error)
		QueryPolicies(ctx context.Context, schoolID string, isActive *bool) ([]Policy, error)
		GetPolicy(ctx context.Context, schoolID, id string) (Policy, error)
		UpdatePolicy(ctx context.Context, schoolID, id string, up UpdatePolicy) (Policy, error)
		DeletePolicy(ctx context.Context, schoolID, id string) error

		// InitializeBalances creates the missing balances of every active staff member for every
		// active policy, carrying forward what is left of the previous year. It returns the number created.
		InitializeBalances(ctx context.Context, schoolID string, year int) (int, error)
		QueryBalances(ctx context.Context, schoolID string, filter *BalanceFilter) ([]Balance, error)

		Apply(ctx context.Context, schoolID, staffID string, nr NewRequest) (Request, error)
		GetRequest(ctx context.Context, schoolID, id string) (Request, error)
		QueryRequests(ctx context.Context, schoolID string, filter *RequestFilter) ([]Request, error)
		// Approve approves a pending request and debits its days from the balance, atomically.
		Approve(ctx context.Context, schoolID, id, reviewerID string, rv Review) (Request, error)
		Reject(ctx context.Context, schoolID, id, reviewerID string, rv Review) (Request, error)
		// Cancel cancels a pending request, or an approved one that has not started (crediting its days back).
		// A non empty staffID must be the requester's.
		Cancel(ctx context.Context, schoolID, id, staffID string) (Request, error)
		CountPending(ctx context.Context, schoolID string) (int, error)
	}

	service struct {
		db        core.DB
		repo      Repository
		staffRepo staff.Repository
		weekend   []time.Weekday
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, staffRepo staff.Repository, conf *core.Config) Service {
	return &service{db: db, repo: repo, staffRepo: staffRepo, weekend: conf.Leave.WeekendDays}
}

// Policies

func (svc *service) CreatePolicy(ctx context.Context, schoolID string, np NewPolicy) (Policy, error) {
	now := core.Now()
	p, err := svc.repo.CreatePolicy(ctx, Policy{
		SchoolID:        schoolID,
		Name:            np.Name,
		Code:            np.Code,
		DaysPerYear:     np.DaysPerYear,
		IsPaid:          *np.IsPaid,
		MaxCarryForward: np.MaxCarryForward,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if errors.Cause(err) == core.ErrUniqueViolation {
		return Policy{}, core.NewValidationError(ErrPolicyCodeExists, core.FieldError{Field: "code", Error: ErrPolicyCodeExists.Error()})
	}
	return p, err
}

func (svc *service) QueryPolicies(ctx context.Context, schoolID string, isActive *bool) ([]Policy, error) {
	return svc.repo.QueryPolicies(ctx, schoolID, isActive)
}

func (svc *service) GetPolicy(ctx context.Context, schoolID, id string) (Policy, error) {
	return svc.repo.GetPolicy(ctx, schoolID, id)
}

func (svc *service) UpdatePolicy(ctx context.Context, schoolID, id string, up UpdatePolicy) (Policy, error) {
	p, err := svc.repo.GetPolicy(ctx, schoolID, id)
	if err != nil {
		return Policy{}, err
	}
	if up.Name != nil {
		p.Name = *up.Name
	}
	if up.DaysPerYear != nil {
		p.DaysPerYear = *up.DaysPerYear
	}
	if up.IsPaid != nil {
		p.IsPaid = *up.IsPaid
	}
	if up.MaxCarryForward != nil {
		p.MaxCarryForward = *up.MaxCarryForward
	}
	if up.IsActive != nil {
		p.IsActive = *up.IsActive
	}
	p.UpdatedAt = core.Now()
	return svc.repo.UpdatePolicy(ctx, p)
}

func (svc *service) DeletePolicy(ctx context.Context, schoolID, id string) error {
	err := svc.repo.DeletePolicy(ctx, schoolID, id)
	if errors.Cause(err) == ErrPolicyInUse {
		return core.NewValidationError(ErrPolicyInUse)
	}
	return err
}

// Balances

func (svc *service) InitializeBalances(ctx context.Context, schoolID string, year int) (int, error) {
	var created int
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		active := true
		members, err := svc.staffRepo.QueryStaff(ctx, schoolID, &staff.QueryFilter{IsActive: &active}, nil, exec)
		if err != nil {
			return errors.Wrap(err, "querying staff")
		}
		policies, err := svc.repo.QueryPolicies(ctx, schoolID, &active, exec)
		if err != nil {
			return errors.Wrap(err, "querying policies")
		}

		now := core.Now()
		for _, m := range members {
			for _, p := range policies {
				total := p.DaysPerYear
				prev, err := svc.repo.GetBalance(ctx, schoolID, m.ID, p.ID, year-1, exec)
				switch {
				case err == nil:
					total += prev.CarryForward(p)
				case !core.IsNotFound(err):
					return err
				}

				_, err = svc.repo.CreateBalance(ctx, Balance{
					SchoolID:  schoolID,
					StaffID:   m.ID,
					PolicyID:  p.ID,
					Year:      year,
					Total:     total,
					Remaining: total,
					CreatedAt: now,
					UpdatedAt: now,
				}, exec)
				if err != nil {
					if errors.Cause(err) == core.ErrUniqueViolation {
						continue // already initialized
					}
					return err
				}
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func (svc *service) QueryBalances(ctx context.Context, schoolID string, filter *BalanceFilter) ([]Balance, error) {
	return svc.repo.QueryBalances(ctx, schoolID, filter)
}

// Requests

func (svc *service) Apply(ctx context.Context, schoolID, staffID string, nr NewRequest) (Request, error) {
	var r Request
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		p, err := svc.repo.GetPolicy(ctx, schoolID, nr.PolicyID, exec)
		if err != nil {
			if core.IsNotFound(err) {
				return core.NewValidationError(err, core.FieldError{Field: "policy_id", Error: err.Error()})
			}
			return err
		}
		if !p.IsActive {
			return core.NewValidationError(ErrPolicyInactive, core.FieldError{Field: "policy_id", Error: ErrPolicyInactive.Error()})
		}

		days := core.WorkingDays(nr.StartDate, nr.EndDate, svc.weekend)
		if days <= 0 {
			return core.NewValidationError(ErrNoWorkingDays, core.FieldError{Field: "end_date", Error: ErrNoWorkingDays.Error()})
		}

		overlap, err := svc.repo.HasOverlap(ctx, schoolID, staffID, nr.StartDate, nr.EndDate, exec)
		if err != nil {
			return err
		}
		if overlap {
			return core.NewValidationError(ErrOverlap)
		}

		bal, err := svc.repo.GetBalance(ctx, schoolID, staffID, p.ID, nr.StartDate.Year(), exec)
		if err != nil {
			if core.IsNotFound(err) {
				return core.NewValidationError(ErrNoBalance)
			}
			return err
		}
		if bal.Remaining < days {
			return core.NewValidationError(ErrInsufficientBalance)
		}

		now := core.Now()
		r, err = svc.repo.CreateRequest(ctx, Request{
			SchoolID:  schoolID,
			StaffID:   staffID,
			PolicyID:  p.ID,
			StartDate: nr.StartDate,
			EndDate:   nr.EndDate,
			Days:      days,
			Reason:    nr.Reason,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}, exec)
		return err
	})
	if err != nil {
		return Request{}, err
	}
	return r, nil
}

func (svc *service) GetRequest(ctx context.Context, schoolID, id string) (Request, error) {
	return svc.repo.GetRequest(ctx, schoolID, id)
}

func (svc *service) QueryRequests(ctx context.Context, schoolID string, filter *RequestFilter) ([]Request, error) {
	return svc.repo.QueryRequests(ctx, schoolID, filter)
}

func (svc *service) Approve(ctx context.Context, schoolID, id, reviewerID string, rv Review) (Request, error) {
	return svc.review(ctx, schoolID, id, reviewerID, rv, StatusApproved)
}

func (svc *service) Reject(ctx context.Context, schoolID, id, reviewerID string, rv Review) (Request, error) {
	return svc.review(ctx, schoolID, id, reviewerID, rv, StatusRejected)
}

func (svc *service) review(ctx context.Context, schoolID, id, reviewerID string, rv Review, to string) (Request, error) {
	var r Request
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		r, err = svc.repo.GetRequest(ctx, schoolID, id, exec)
		if err != nil {
			return err
		}
		from := r.Status
		if from != StatusPending || !Transitions.CanMove(from, to) {
			return core.NewTransitionError("leave request", from, to)
		}

		now := core.Now()
		r.Status = to
		r.ReviewedBy = reviewerID
		r.ReviewNote = rv.Note
		r.ReviewedAt = &now
		r.UpdatedAt = now
		if err = svc.repo.SetRequestStatus(ctx, r, from, exec); err != nil {
			return core.GuardTransition(err, "leave request", from, to)
		}

		if to == StatusApproved {
			err = svc.repo.DebitBalance(ctx, schoolID, r.StaffID, r.PolicyID, r.StartDate.Year(), r.Days, now, exec)
			if errors.Cause(err) == core.ErrStaleWrite {
				return core.NewValidationError(ErrInsufficientBalance)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	return r, nil
}

func (svc *service) Cancel(ctx context.Context, schoolID, id, staffID string) (Request, error) {
	var r Request
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		r, err = svc.repo.GetRequest(ctx, schoolID, id, exec)
		if err != nil {
			return err
		}
		if staffID != "" && r.StaffID != staffID {
			return core.NewValidationError(ErrNotRequester)
		}
		from := r.Status
		if !Transitions.CanMove(from, StatusCancelled) {
			return core.NewTransitionError("leave request", from, StatusCancelled)
		}
		if from == StatusApproved && !r.StartDate.After(core.Today()) {
			return core.NewValidationError(ErrLeaveStarted)
		}

		now := core.Now()
		r.Status = StatusCancelled
		r.UpdatedAt = now
		if err = svc.repo.SetRequestStatus(ctx, r, from, exec); err != nil {
			return core.GuardTransition(err, "leave request", from, StatusCancelled)
		}
		if from == StatusApproved {
			err = svc.repo.CreditBalance(ctx, schoolID, r.StaffID, r.PolicyID, r.StartDate.Year(), r.Days, now, exec)
			return errors.Wrap(err, "crediting leave balance")
		}
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	return r, nil
}

func (svc *service) CountPending(ctx context.Context, schoolID string) (int, error) {
	return svc.repo.CountRequests(ctx, schoolID, StatusPending)
}
