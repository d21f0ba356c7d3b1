package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/payroll"
)

const (
	structureColumns = "id, school_id, staff_id, basic, allowances, deductions, effective_from, created_at, updated_at"
	payslipColumns   = "id, school_id, staff_id, year, month, working_days, unpaid_leave_days, gross, leave_deduction, " +
		"deductions, net, status, generated_at, paid_at"
)

type (
	structureRow struct {
		ID            string    `db:"id"`
		SchoolID      string    `db:"school_id"`
		StaffID       string    `db:"staff_id"`
		Basic         int64     `db:"basic"`
		Allowances    int64     `db:"allowances"`
		Deductions    int64     `db:"deductions"`
		EffectiveFrom core.Date `db:"effective_from"`
		CreatedAt     time.Time `db:"created_at"`
		UpdatedAt     time.Time `db:"updated_at"`
	}

	payslipRow struct {
		ID              string    `db:"id"`
		SchoolID        string    `db:"school_id"`
		StaffID         string    `db:"staff_id"`
		Year            int       `db:"year"`
		Month           int       `db:"month"`
		WorkingDays     int       `db:"working_days"`
		UnpaidLeaveDays int       `db:"unpaid_leave_days"`
		Gross           int64     `db:"gross"`
		LeaveDeduction  int64     `db:"leave_deduction"`
		Deductions      int64     `db:"deductions"`
		Net             int64     `db:"net"`
		Status          string    `db:"status"`
		GeneratedAt     time.Time `db:"generated_at"`
		PaidAt          null.Time `db:"paid_at"`
	}
)

type payrollRepository struct {
	repo
}

var _ payroll.Repository = (*payrollRepository)(nil) // interface compliance check

func NewPayrollRepository(exec core.DBExecutor) *payrollRepository {
	return &payrollRepository{repo{exec: exec}}
}

func unboilStructure(row structureRow) payroll.Structure {
	return payroll.Structure{
		ID:            row.ID,
		SchoolID:      row.SchoolID,
		StaffID:       row.StaffID,
		Basic:         row.Basic,
		Allowances:    row.Allowances,
		Deductions:    row.Deductions,
		EffectiveFrom: row.EffectiveFrom,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

func (r payrollRepository) UpsertStructure(ctx context.Context, s payroll.Structure, exec ...core.DBExecutor) (payroll.Structure, error) {
	exe := r.getExec(exec)
	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO salary_structures ("+structureColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) "+
			"ON CONFLICT (staff_id) DO UPDATE SET basic = excluded.basic, allowances = excluded.allowances, "+
			"deductions = excluded.deductions, effective_from = excluded.effective_from, updated_at = excluded.updated_at"),
		newID(), s.SchoolID, s.StaffID, s.Basic, s.Allowances, s.Deductions, s.EffectiveFrom, s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
	)
	if err != nil {
		return payroll.Structure{}, errors.Wrap(err, "upserting salary structure")
	}
	return r.GetStructure(ctx, s.SchoolID, s.StaffID, exe)
}

func (r payrollRepository) GetStructure(ctx context.Context, schoolID, staffID string, exec ...core.DBExecutor) (payroll.Structure, error) {
	if !validIDs(staffID) {
		return payroll.Structure{}, payroll.ErrStructureNotFound
	}
	exe := r.getExec(exec)
	var row structureRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(
		"SELECT "+structureColumns+" FROM salary_structures WHERE school_id = ? AND staff_id = ?"), schoolID, staffID)
	if err != nil {
		return payroll.Structure{}, trapNoRowsErr(err, payroll.ErrStructureNotFound, "selecting salary structure")
	}
	return unboilStructure(row), nil
}

func (r payrollRepository) QueryStructures(ctx context.Context, schoolID string, exec ...core.DBExecutor) ([]payroll.Structure, error) {
	exe := r.getExec(exec)
	var rows []structureRow
	err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(
		"SELECT "+structureColumns+" FROM salary_structures WHERE school_id = ? ORDER BY created_at ASC"), schoolID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting salary structures")
	}
	structures := make([]payroll.Structure, 0, len(rows))
	for _, row := range rows {
		structures = append(structures, unboilStructure(row))
	}
	return structures, nil
}

func boilPayslip(p payroll.Payslip) payslipRow {
	return payslipRow{
		ID:              p.ID,
		SchoolID:        p.SchoolID,
		StaffID:         p.StaffID,
		Year:            p.Year,
		Month:           p.Month,
		WorkingDays:     p.WorkingDays,
		UnpaidLeaveDays: p.UnpaidLeaveDays,
		Gross:           p.Gross,
		LeaveDeduction:  p.LeaveDeduction,
		Deductions:      p.Deductions,
		Net:             p.Net,
		Status:          p.Status,
		GeneratedAt:     p.GeneratedAt.UTC(),
		PaidAt:          nullTimePtr(p.PaidAt),
	}
}

func unboilPayslip(row payslipRow) payroll.Payslip {
	return payroll.Payslip{
		ID:              row.ID,
		SchoolID:        row.SchoolID,
		StaffID:         row.StaffID,
		Year:            row.Year,
		Month:           row.Month,
		WorkingDays:     row.WorkingDays,
		UnpaidLeaveDays: row.UnpaidLeaveDays,
		Gross:           row.Gross,
		LeaveDeduction:  row.LeaveDeduction,
		Deductions:      row.Deductions,
		Net:             row.Net,
		Status:          row.Status,
		GeneratedAt:     row.GeneratedAt.UTC(),
		PaidAt:          timePtr(row.PaidAt),
	}
}

func (r payrollRepository) getPayslip(ctx context.Context, exe core.DBExecutor, w *where) (payroll.Payslip, error) {
	var row payslipRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind("SELECT "+payslipColumns+" FROM payslips"+w.String()), w.args...)
	if err != nil {
		return payroll.Payslip{}, trapNoRowsErr(err, payroll.ErrPayslipNotFound, "selecting payslip")
	}
	return unboilPayslip(row), nil
}

func (r payrollRepository) GetPayslip(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (payroll.Payslip, error) {
	if !validIDs(id) {
		return payroll.Payslip{}, payroll.ErrPayslipNotFound
	}
	return r.getPayslip(ctx, r.getExec(exec), newWhere("school_id = ?", schoolID).and("id = ?", id))
}

func (r payrollRepository) GetPayslipFor(ctx context.Context, schoolID, staffID string, year, month int, exec ...core.DBExecutor) (payroll.Payslip, error) {
	if !validIDs(staffID) {
		return payroll.Payslip{}, payroll.ErrPayslipNotFound
	}
	w := newWhere("school_id = ?", schoolID).and("staff_id = ?", staffID).and("year = ?", year).and("month = ?", month)
	return r.getPayslip(ctx, r.getExec(exec), w)
}

func (r payrollRepository) SavePayslip(ctx context.Context, p payroll.Payslip, exec ...core.DBExecutor) (payroll.Payslip, error) {
	exe := r.getExec(exec)
	if p.ID == "" {
		p.ID = newID()
		row := boilPayslip(p)
		_, err := exe.ExecContext(ctx, exe.Rebind(
			"INSERT INTO payslips ("+payslipColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
			row.ID, row.SchoolID, row.StaffID, row.Year, row.Month, row.WorkingDays, row.UnpaidLeaveDays, row.Gross,
			row.LeaveDeduction, row.Deductions, row.Net, row.Status, row.GeneratedAt, row.PaidAt,
		)
		if err != nil {
			return payroll.Payslip{}, errors.Wrap(err, "inserting payslip")
		}
		return unboilPayslip(row), nil
	}

	row := boilPayslip(p)
	res, err := exe.ExecContext(ctx, exe.Rebind(
		"UPDATE payslips SET working_days = ?, unpaid_leave_days = ?, gross = ?, leave_deduction = ?, deductions = ?, "+
			"net = ?, status = ?, generated_at = ?, paid_at = ? WHERE school_id = ? AND id = ?"),
		row.WorkingDays, row.UnpaidLeaveDays, row.Gross, row.LeaveDeduction, row.Deductions, row.Net, row.Status,
		row.GeneratedAt, row.PaidAt, row.SchoolID, row.ID,
	)
	n, err := rowsAffected(res, err, "updating payslip")
	if err != nil {
		return payroll.Payslip{}, err
	}
	if n == 0 {
		return payroll.Payslip{}, payroll.ErrPayslipNotFound
	}
	return unboilPayslip(row), nil
}

func (r payrollRepository) QueryPayslips(ctx context.Context, schoolID string, filter *payroll.QueryFilter, exec ...core.DBExecutor) ([]payroll.Payslip, error) {
	exe := r.getExec(exec)
	w := newWhere("school_id = ?", schoolID)
	if filter != nil {
		if filter.StaffID != "" {
			w.and("staff_id = ?", filter.StaffID)
		}
		if filter.Year != 0 {
			w.and("year = ?", filter.Year)
		}
		if filter.Month != 0 {
			w.and("month = ?", filter.Month)
		}
		if filter.Status != "" {
			w.and("status = ?", filter.Status)
		}
	}
	var rows []payslipRow
	err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(
		"SELECT "+payslipColumns+" FROM payslips"+w.String()+" ORDER BY year DESC, month DESC, staff_id ASC"), w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "selecting payslips")
	}
	payslips := make([]payroll.Payslip, 0, len(rows))
	for _, row := range rows {
		payslips = append(payslips, unboilPayslip(row))
	}
	return payslips, nil
}

func (r payrollRepository) SetPayslipStatus(ctx context.Context, schoolID, id, from, to string, at time.Time, exec ...core.DBExecutor) error {
	exe := r.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind(
		"UPDATE payslips SET status = ?, paid_at = ? WHERE school_id = ? AND id = ? AND status = ?"),
		to, at.UTC(), schoolID, id, from,
	)
	return mustAffect(res, err, "updating payslip status")
}
