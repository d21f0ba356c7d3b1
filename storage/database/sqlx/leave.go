package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/leave"
	"github.com/avsnarang/scholarise/storage/database"
)

const (
	leavePolicyColumns = "id, school_id, name, code, days_per_year, is_paid, max_carry_forward, is_active, " +
		"created_at, updated_at"
	leaveBalanceColumns = "id, school_id, staff_id, policy_id, year, total, used, remaining, created_at, updated_at"
	leaveRequestColumns = "id, school_id, staff_id, policy_id, start_date, end_date, days, reason, status, " +
		"reviewed_by, review_note, reviewed_at, created_at, updated_at"
)

type (
	leavePolicyRow struct {
		ID              string    `db:"id"`
		SchoolID        string    `db:"school_id"`
		Name            string    `db:"name"`
		Code            string    `db:"code"`
		DaysPerYear     int       `db:"days_per_year"`
		IsPaid          bool      `db:"is_paid"`
		MaxCarryForward int       `db:"max_carry_forward"`
		IsActive        bool      `db:"is_active"`
		CreatedAt       time.Time `db:"created_at"`
		UpdatedAt       time.Time `db:"updated_at"`
	}

	leaveBalanceRow struct {
		ID        string    `db:"id"`
		SchoolID  string    `db:"school_id"`
		StaffID   string    `db:"staff_id"`
		PolicyID  string    `db:"policy_id"`
		Year      int       `db:"year"`
		Total     int       `db:"total"`
		Used      int       `db:"used"`
		Remaining int       `db:"remaining"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	leaveRequestRow struct {
		ID         string      `db:"id"`
		SchoolID   string      `db:"school_id"`
		StaffID    string      `db:"staff_id"`
		PolicyID   string      `db:"policy_id"`
		StartDate  core.Date   `db:"start_date"`
		EndDate    core.Date   `db:"end_date"`
		Days       int         `db:"days"`
		Reason     null.String `db:"reason"`
		Status     string      `db:"status"`
		ReviewedBy null.String `db:"reviewed_by"`
		ReviewNote null.String `db:"review_note"`
		ReviewedAt null.Time   `db:"reviewed_at"`
		CreatedAt  time.Time   `db:"created_at"`
		UpdatedAt  time.Time   `db:"updated_at"`
	}
)

type leaveRepository struct {
	repo
}

var _ leave.Repository = (*leaveRepository)(nil) // interface compliance check

func NewLeaveRepository(exec core.DBExecutor) *leaveRepository {
	return &leaveRepository{repo{exec: exec}}
}

// Policies

func unboilPolicy(row leavePolicyRow) leave.Policy {
	return leave.Policy{
		ID:              row.ID,
		SchoolID:        row.SchoolID,
		Name:            row.Name,
		Code:            row.Code,
		DaysPerYear:     row.DaysPerYear,
		IsPaid:          row.IsPaid,
		MaxCarryForward: row.MaxCarryForward,
		IsActive:        row.IsActive,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
}

func (r leaveRepository) CreatePolicy(ctx context.Context, p leave.Policy, exec ...core.DBExecutor) (leave.Policy, error) {
	exe := r.getExec(exec)
	p.ID = newID()
	p.CreatedAt, p.UpdatedAt = p.CreatedAt.UTC(), p.UpdatedAt.UTC()
	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO leave_policies ("+leavePolicyColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		p.ID, p.SchoolID, p.Name, p.Code, p.DaysPerYear, p.IsPaid, p.MaxCarryForward, p.IsActive, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return leave.Policy{}, database.TrapUniqueErr(err, "inserting leave policy")
	}
	return p, nil
}

func (r leaveRepository) QueryPolicies(ctx context.Context, schoolID string, isActive *bool, exec ...core.DBExecutor) ([]leave.Policy, error) {
	exe := r.getExec(exec)
	w := newWhere("school_id = ?", schoolID)
	if isActive != nil {
		w.and("is_active = ?", *isActive)
	}
	var rows []leavePolicyRow
	err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(
		"SELECT "+leavePolicyColumns+" FROM leave_policies"+w.String()+" ORDER BY code ASC"), w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "selecting leave policies")
	}
	policies := make([]leave.Policy, 0, len(rows))
	for _, row := range rows {
		policies = append(policies, unboilPolicy(row))
	}
	return policies, nil
}

func (r leaveRepository) GetPolicy(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (leave.Policy, error) {
	if !validIDs(id) {
		return leave.Policy{}, leave.ErrPolicyNotFound
	}
	exe := r.getExec(exec)
	var row leavePolicyRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(
		"SELECT "+leavePolicyColumns+" FROM leave_policies WHERE school_id = ? AND id = ?"), schoolID, id)
	if err != nil {
		return leave.Policy{}, trapNoRowsErr(err, leave.ErrPolicyNotFound, "selecting leave policy")
	}
	return unboilPolicy(row), nil
}

func (r leaveRepository) UpdatePolicy(ctx context.Context, p leave.Policy, exec ...core.DBExecutor) (leave.Policy, error) {
	exe := r.getExec(exec)
	p.UpdatedAt = p.UpdatedAt.UTC()
	res, err := exe.ExecContext(ctx, exe.Rebind(
		"UPDATE leave_policies SET name = ?, days_per_year = ?, is_paid = ?, max_carry_forward = ?, is_active = ?, "+
			"updated_at = ? WHERE school_id = ? AND id = ?"),
		p.Name, p.DaysPerYear, p.IsPaid, p.MaxCarryForward, p.IsActive, p.UpdatedAt, p.SchoolID, p.ID,
	)
	n, err := rowsAffected(res, err, "updating leave policy")
	if err != nil {
		return leave.Policy{}, err
	}
	if n == 0 {
		return leave.Policy{}, leave.ErrPolicyNotFound
	}
	return p, nil
}

func (r leaveRepository) DeletePolicy(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error {
	if !validIDs(id) {
		return leave.ErrPolicyNotFound
	}
	exe := r.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM leave_policies WHERE school_id = ? AND id = ?"), schoolID, id)
	if database.IsForeignKeyViolation(err) {
		return leave.ErrPolicyInUse
	}
	n, err := rowsAffected(res, err, "deleting leave policy")
	if err != nil {
		return err
	}
	if n == 0 {
		return leave.ErrPolicyNotFound
	}
	return nil
}

// Balances

func unboilBalance(row leaveBalanceRow) leave.Balance {
	return leave.Balance{
		ID:        row.ID,
		SchoolID:  row.SchoolID,
		StaffID:   row.StaffID,
		PolicyID:  row.PolicyID,
		Year:      row.Year,
		Total:     row.Total,
		Used:      row.Used,
		Remaining: row.Remaining,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

func (r leaveRepository) CreateBalance(ctx context.Context, b leave.Balance, exec ...core.DBExecutor) (leave.Balance, error) {
	exe := r.getExec(exec)
	b.ID = newID()
	b.CreatedAt, b.UpdatedAt = b.CreatedAt.UTC(), b.UpdatedAt.UTC()
	err := database.WithSavepoint(ctx, exe, "create_leave_balance", func() error {
		_, err := exe.ExecContext(ctx, exe.Rebind(
			"INSERT INTO leave_balances ("+leaveBalanceColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
			b.ID, b.SchoolID, b.StaffID, b.PolicyID, b.Year, b.Total, b.Used, b.Remaining, b.CreatedAt, b.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return leave.Balance{}, database.TrapUniqueErr(err, "inserting leave balance")
	}
	return b, nil
}

func (r leaveRepository) GetBalance(ctx context.Context, schoolID, staffID, policyID string, year int, exec ...core.DBExecutor) (leave.Balance, error) {
	if !validIDs(staffID, policyID) {
		return leave.Balance{}, leave.ErrBalanceNotFound
	}
	exe := r.getExec(exec)
	var row leaveBalanceRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(
		"SELECT "+leaveBalanceColumns+" FROM leave_balances "+
			"WHERE school_id = ? AND staff_id = ? AND policy_id = ? AND year = ?"),
		schoolID, staffID, policyID, year)
	if err != nil {
		return leave.Balance{}, trapNoRowsErr(err, leave.ErrBalanceNotFound, "selecting leave balance")
	}
	return unboilBalance(row), nil
}

func (r leaveRepository) QueryBalances(ctx context.Context, schoolID string, filter *leave.BalanceFilter, exec ...core.DBExecutor) ([]leave.Balance, error) {
	exe := r.getExec(exec)
	w := newWhere("school_id = ?", schoolID)
	if filter != nil {
		if filter.StaffID != "" {
			w.and("staff_id = ?", filter.StaffID)
		}
		if filter.PolicyID != "" {
			w.and("policy_id = ?", filter.PolicyID)
		}
		if filter.Year != 0 {
			w.and("year = ?", filter.Year)
		}
	}
	var rows []leaveBalanceRow
	err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(
		"SELECT "+leaveBalanceColumns+" FROM leave_balances"+w.String()+" ORDER BY year DESC, staff_id ASC, policy_id ASC"),
		w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "selecting leave balances")
	}
	balances := make([]leave.Balance, 0, len(rows))
	for _, row := range rows {
		balances = append(balances, unboilBalance(row))
	}
	return balances, nil
}

func (r leaveRepository) DebitBalance(ctx context.Context, schoolID, staffID, policyID string, year, days int, at time.Time, exec ...core.DBExecutor) error {
	exe := r.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind(
		"UPDATE leave_balances SET used = used + ?, remaining = remaining - ?, updated_at = ? "+
			"WHERE school_id = ? AND staff_id = ? AND policy_id = ? AND year = ? AND remaining >= ?"),
		days, days, at.UTC(), schoolID, staffID, policyID, year, days,
	)
	return mustAffect(res, err, "debiting leave balance")
}

func (r leaveRepository) CreditBalance(ctx context.Context, schoolID, staffID, policyID string, year, days int, at time.Time, exec ...core.DBExecutor) error {
	exe := r.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind(
		"UPDATE leave_balances SET used = used - ?, remaining = remaining + ?, updated_at = ? "+
			"WHERE school_id = ? AND staff_id = ? AND policy_id = ? AND year = ? AND used >= ?"),
		days, days, at.UTC(), schoolID, staffID, policyID, year, days,
	)
	return mustAffect(res, err, "crediting leave balance")
}

// Requests

func boilRequest(req leave.Request) leaveRequestRow {
	return leaveRequestRow{
		ID:         req.ID,
		SchoolID:   req.SchoolID,
		StaffID:    req.StaffID,
		PolicyID:   req.PolicyID,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Days:       req.Days,
		Reason:     nullString(req.Reason),
		Status:     req.Status,
		ReviewedBy: nullString(req.ReviewedBy),
		ReviewNote: nullString(req.ReviewNote),
		ReviewedAt: nullTimePtr(req.ReviewedAt),
		CreatedAt:  req.CreatedAt.UTC(),
		UpdatedAt:  req.UpdatedAt.UTC(),
	}
}

func unboilRequest(row leaveRequestRow) leave.Request {
	return leave.Request{
		ID:         row.ID,
		SchoolID:   row.SchoolID,
		StaffID:    row.StaffID,
		PolicyID:   row.PolicyID,
		StartDate:  row.StartDate,
		EndDate:    row.EndDate,
		Days:       row.Days,
		Reason:     row.Reason.String,
		Status:     row.Status,
		ReviewedBy: row.ReviewedBy.String,
		ReviewNote: row.ReviewNote.String,
		ReviewedAt: timePtr(row.ReviewedAt),
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
}

func (r leaveRepository) CreateRequest(ctx context.Context, req leave.Request, exec ...core.DBExecutor) (leave.Request, error) {
	exe := r.getExec(exec)
	req.ID = newID()
	row := boilRequest(req)
	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO leave_requests ("+leaveRequestColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		row.ID, row.SchoolID, row.StaffID, row.PolicyID, row.StartDate, row.EndDate, row.Days, row.Reason, row.Status,
		row.ReviewedBy, row.ReviewNote, row.ReviewedAt, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return leave.Request{}, errors.Wrap(err, "inserting leave request")
	}
	return unboilRequest(row), nil
}

func (r leaveRepository) GetRequest(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (leave.Request, error) {
	if !validIDs(id) {
		return leave.Request{}, leave.ErrRequestNotFound
	}
	exe := r.getExec(exec)
	var row leaveRequestRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(
		"SELECT "+leaveRequestColumns+" FROM leave_requests WHERE school_id = ? AND id = ?"), schoolID, id)
	if err != nil {
		return leave.Request{}, trapNoRowsErr(err, leave.ErrRequestNotFound, "selecting leave request")
	}
	return unboilRequest(row), nil
}

func (r leaveRepository) QueryRequests(ctx context.Context, schoolID string, filter *leave.RequestFilter, exec ...core.DBExecutor) ([]leave.Request, error) {
	exe := r.getExec(exec)
	w := newWhere("school_id = ?", schoolID)
	if filter != nil {
		if filter.StaffID != "" {
			w.and("staff_id = ?", filter.StaffID)
		}
		if filter.PolicyID != "" {
			w.and("policy_id = ?", filter.PolicyID)
		}
		if filter.Status != "" {
			w.and("status = ?", filter.Status)
		}
		if !filter.From.IsZero() {
			w.and("end_date >= ?", filter.From)
		}
		if !filter.To.IsZero() {
			w.and("start_date <= ?", filter.To)
		}
	}
	var rows []leaveRequestRow
	err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(
		"SELECT "+leaveRequestColumns+" FROM leave_requests"+w.String()+" ORDER BY start_date DESC, created_at DESC"),
		w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "selecting leave requests")
	}
	requests := make([]leave.Request, 0, len(rows))
	for _, row := range rows {
		requests = append(requests, unboilRequest(row))
	}
	return requests, nil
}

func (r leaveRepository) HasOverlap(ctx context.Context, schoolID, staffID string, from, to core.Date, exec ...core.DBExecutor) (bool, error) {
	exe := r.getExec(exec)
	q, args, err := sqlx.In(
		"SELECT COUNT(*) FROM leave_requests WHERE school_id = ? AND staff_id = ? AND status IN (?) "+
			"AND start_date <= ? AND end_date >= ?",
		schoolID, staffID, []string{leave.StatusPending, leave.StatusApproved}, to, from,
	)
	if err != nil {
		return false, errors.Wrap(err, "checking leave overlap")
	}
	var count int
	if err = sqlx.GetContext(ctx, exe, &count, exe.Rebind(q), args...); err != nil {
		return false, errors.Wrap(err, "checking leave overlap")
	}
	return count > 0, nil
}

func (r leaveRepository) SetRequestStatus(ctx context.Context, req leave.Request, from string, exec ...core.DBExecutor) error {
	exe := r.getExec(exec)
	row := boilRequest(req)
	res, err := exe.ExecContext(ctx, exe.Rebind(
		"UPDATE leave_requests SET status = ?, reviewed_by = ?, review_note = ?, reviewed_at = ?, updated_at = ? "+
			"WHERE school_id = ? AND id = ? AND status = ?"),
		row.Status, row.ReviewedBy, row.ReviewNote, row.ReviewedAt, row.UpdatedAt, row.SchoolID, row.ID, from,
	)
	return mustAffect(res, err, "updating leave request status")
}

func (r leaveRepository) CountRequests(ctx context.Context, schoolID, status string, exec ...core.DBExecutor) (int, error) {
	exe := r.getExec(exec)
	w := newWhere("school_id = ?", schoolID)
	if status != "" {
		w.and("status = ?", status)
	}
	var count int
	err := sqlx.GetContext(ctx, exe, &count, exe.Rebind("SELECT COUNT(*) FROM leave_requests"+w.String()), w.args...)
	return count, errors.Wrap(err, "counting leave requests")
}
