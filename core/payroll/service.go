package payroll

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/leave"
	"github.com/avsnarang/scholarise/core/staff"
)

var (
	// errors
	ErrStructureNotFound = core.NewNotFoundError("salary structure")
	ErrPayslipNotFound   = core.NewNotFoundError("payslip")
)

type (
	Repository interface {
		// UpsertStructure creates the structure of s.StaffID or replaces its amounts.
		UpsertStructure(ctx context.Context, s Structure, exec ...core.DBExecutor) (Structure, error)
		GetStructure(ctx context.Context, schoolID, staffID string, exec ...core.DBExecutor) (Structure, error)
		QueryStructures(ctx context.Context, schoolID string, exec ...core.DBExecutor) ([]Structure, error)

		GetPayslip(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Payslip, error)
		GetPayslipFor(ctx context.Context, schoolID, staffID string, year, month int, exec ...core.DBExecutor) (Payslip, error)
		// SavePayslip inserts p, or updates it when p.ID is set.
		SavePayslip(ctx context.Context, p Payslip, exec ...core.DBExecutor) (Payslip, error)
		QueryPayslips(ctx context.Context, schoolID string, filter *QueryFilter, exec ...core.DBExecutor) ([]Payslip, error)
		// SetPayslipStatus is a guarded write: core.ErrStaleWrite when the payslip is no longer in status from.
		SetPayslipStatus(ctx context.Context, schoolID, id, from, to string, at time.Time, exec ...core.DBExecutor) error
	}

	Service interface {
		SetStructure(ctx context.Context, schoolID string, ss SetStructure) (Structure, error)
		GetStructure(ctx context.Context, schoolID, staffID string) (Structure, error)
		QueryStructures(ctx context.Context, schoolID string) ([]Structure, error)

		// Generate computes the payslips of a month for every active staff member with a structure.
		// Drafts are recomputed, paid slips are skipped.
		Generate(ctx context.Context, schoolID string, period Period) (GenerateResult, error)
		GetPayslip(ctx context.Context, schoolID, id string) (Payslip, error)
		QueryPayslips(ctx context.Context, schoolID string, filter *QueryFilter) ([]Payslip, error)
		MarkPaid(ctx context.Context, schoolID, id string) (Payslip, error)
	}

	service struct {
		db        core.DB
		repo      Repository
		staffRepo staff.Repository
		leaveRepo leave.Repository
		weekend   []time.Weekday
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, staffRepo staff.Repository, leaveRepo leave.Repository, conf *core.Config) Service {
	return &service{
		db:        db,
		repo:      repo,
		staffRepo: staffRepo,
		leaveRepo: leaveRepo,
		weekend:   conf.Leave.WeekendDays,
	}
}

func (svc *service) SetStructure(ctx context.Context, schoolID string, ss SetStructure) (Structure, error) {
	if _, err := svc.staffRepo.GetStaff(ctx, schoolID, ss.StaffID); err != nil {
		if core.IsNotFound(err) {
			return Structure{}, core.NewValidationError(err, core.FieldError{Field: "staff_id", Error: err.Error()})
		}
		return Structure{}, err
	}
	now := core.Now()
	return svc.repo.UpsertStructure(ctx, Structure{
		SchoolID:      schoolID,
		StaffID:       ss.StaffID,
		Basic:         ss.Basic,
		Allowances:    ss.Allowances,
		Deductions:    ss.Deductions,
		EffectiveFrom: ss.EffectiveFrom,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (svc *service) GetStructure(ctx context.Context, schoolID, staffID string) (Structure, error) {
	return svc.repo.GetStructure(ctx, schoolID, staffID)
}

func (svc *service) QueryStructures(ctx context.Context, schoolID string) ([]Structure, error) {
	return svc.repo.QueryStructures(ctx, schoolID)
}

func (svc *service) Generate(ctx context.Context, schoolID string, period Period) (GenerateResult, error) {
	res := GenerateResult{Generated: make([]Payslip, 0)}
	first, last := period.Bounds()
	workingDays := core.WorkingDays(first, last, svc.weekend)

	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		structures, err := svc.repo.QueryStructures(ctx, schoolID, exec)
		if err != nil {
			return err
		}
		active := true
		members, err := svc.staffRepo.QueryStaff(ctx, schoolID, &staff.QueryFilter{IsActive: &active}, nil, exec)
		if err != nil {
			return errors.Wrap(err, "querying staff")
		}
		isActive := make(map[string]bool, len(members))
		for _, m := range members {
			isActive[m.ID] = true
		}

		unpaid, err := svc.unpaidDays(ctx, exec, schoolID, first, last)
		if err != nil {
			return err
		}

		now := core.Now()
		for _, s := range structures {
			if !isActive[s.StaffID] {
				continue
			}
			slip, err := svc.repo.GetPayslipFor(ctx, schoolID, s.StaffID, period.Year, period.Month, exec)
			switch {
			case err == nil:
				if slip.Status == StatusPaid {
					res.Skipped++
					continue
				}
			case core.IsNotFound(err):
				slip = Payslip{SchoolID: schoolID, StaffID: s.StaffID, Year: period.Year, Month: period.Month, Status: StatusDraft}
			default:
				return err
			}

			slip.WorkingDays = workingDays
			slip.UnpaidLeaveDays = unpaid[s.StaffID]
			slip.Deductions = s.Deductions
			slip.Gross, slip.LeaveDeduction, slip.Net = Compute(s, workingDays, slip.UnpaidLeaveDays)
			slip.GeneratedAt = now

			if slip, err = svc.repo.SavePayslip(ctx, slip, exec); err != nil {
				return err
			}
			res.Generated = append(res.Generated, slip)
		}
		return nil
	})
	if err != nil {
		return GenerateResult{}, err
	}
	return res, nil
}

// unpaidDays counts, per staff member, the working days of [first, last] covered by approved
// requests on unpaid policies.
func (svc *service) unpaidDays(ctx context.Context, exec core.DBExecutor, schoolID string, first, last core.Date) (map[string]int, error) {
	policies, err := svc.leaveRepo.QueryPolicies(ctx, schoolID, nil, exec)
	if err != nil {
		return nil, errors.Wrap(err, "querying leave policies")
	}
	unpaidPolicy := make(map[string]bool)
	for _, p := range policies {
		if !p.IsPaid {
			unpaidPolicy[p.ID] = true
		}
	}

	days := make(map[string]int)
	if len(unpaidPolicy) == 0 {
		return days, nil
	}
	requests, err := svc.leaveRepo.QueryRequests(ctx, schoolID, &leave.RequestFilter{
		Status: leave.StatusApproved,
		From:   first,
		To:     last,
	}, exec)
	if err != nil {
		return nil, errors.Wrap(err, "querying leave requests")
	}
	for _, r := range requests {
		if !unpaidPolicy[r.PolicyID] {
			continue
		}
		if from, to, ok := core.OverlapDays(r.StartDate, r.EndDate, first, last); ok {
			days[r.StaffID] += core.WorkingDays(from, to, svc.weekend)
		}
	}
	return days, nil
}

func (svc *service) GetPayslip(ctx context.Context, schoolID, id string) (Payslip, error) {
	return svc.repo.GetPayslip(ctx, schoolID, id)
}

func (svc *service) QueryPayslips(ctx context.Context, schoolID string, filter *QueryFilter) ([]Payslip, error) {
	return svc.repo.QueryPayslips(ctx, schoolID, filter)
}

func (svc *service) MarkPaid(ctx context.Context, schoolID, id string) (Payslip, error) {
	slip, err := svc.repo.GetPayslip(ctx, schoolID, id)
	if err != nil {
		return Payslip{}, err
	}
	if !Transitions.CanMove(slip.Status, StatusPaid) {
		return Payslip{}, core.NewTransitionError("payslip", slip.Status, StatusPaid)
	}
	now := core.Now()
	if err = svc.repo.SetPayslipStatus(ctx, schoolID, id, slip.Status, StatusPaid, now); err != nil {
		return Payslip{}, core.GuardTransition(err, "payslip", slip.Status, StatusPaid)
	}
	slip.Status = StatusPaid
	slip.PaidAt = &now
	return slip, nil
}
