package payroll

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/avsnarang/scholarise/core"
)

// Payslip statuses
const (
	StatusDraft = "draft"
	StatusPaid  = "paid"
)

var Transitions = core.StateMachine{
	StatusDraft: {StatusPaid},
	StatusPaid:  {},
}

// Structure is the salary of a staff member; amounts are in minor units.
type Structure struct {
	ID            string    `json:"id"`
	SchoolID      string    `json:"school_id"`
	StaffID       string    `json:"staff_id"`
	Basic         int64     `json:"basic"`
	Allowances    int64     `json:"allowances"`
	Deductions    int64     `json:"deductions"`
	EffectiveFrom core.Date `json:"effective_from"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

func (s Structure) Gross() int64 { return s.Basic + s.Allowances }

type SetStructure struct {
	StaffID       string    `json:"staff_id" validate:"required,uuid"`
	Basic         int64     `json:"basic" validate:"gte=0"`
	Allowances    int64     `json:"allowances" validate:"gte=0"`
	Deductions    int64     `json:"deductions" validate:"gte=0"`
	EffectiveFrom core.Date `json:"effective_from"` // defaults to today
}

func (ss *SetStructure) Validate(validate *validator.Validate) error {
	ss.StaffID = core.CleanString(ss.StaffID)
	if ss.EffectiveFrom.IsZero() {
		ss.EffectiveFrom = core.Today()
	}
	return validate.Struct(ss)
}

type Payslip struct {
	ID              string     `json:"id"`
	SchoolID        string     `json:"school_id"`
	StaffID         string     `json:"staff_id"`
	Year            int        `json:"year"`
	Month           int        `json:"month"`
	WorkingDays     int        `json:"working_days"`
	UnpaidLeaveDays int        `json:"unpaid_leave_days"`
	Gross           int64      `json:"gross"`
	LeaveDeduction  int64      `json:"leave_deduction"`
	Deductions      int64      `json:"deductions"`
	Net             int64      `json:"net"`
	Status          string     `json:"status"`
	GeneratedAt     time.Time  `json:"generated_at"` // UTC
	PaidAt          *time.Time `json:"paid_at"`      // UTC
}

type Period struct {
	Year  int `json:"year" validate:"required,gte=2000,lte=2100"`
	Month int `json:"month" validate:"required,gte=1,lte=12"`
}

// Bounds returns the first and last day of the month.
func (p Period) Bounds() (first, last core.Date) {
	first = core.NewDate(p.Year, time.Month(p.Month), 1)
	last = core.DateOf(first.Time.AddDate(0, 1, -1))
	return first, last
}

type QueryFilter struct {
	StaffID string
	Year    int
	Month   int
	Status  string
}

func (qf *QueryFilter) Clean() {
	qf.StaffID = core.CleanString(qf.StaffID)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}

// GenerateResult sums up a payroll run.
type GenerateResult struct {
	Generated []Payslip `json:"generated"`
	Skipped   int       `json:"skipped"` // paid slips left untouched
}

// Compute fills the amounts of a payslip:
// LeaveDeduction = Gross * unpaidDays / workingDays (rounded half up),
// Net = max(0, Gross - LeaveDeduction - Deductions).
func Compute(s Structure, workingDays, unpaidDays int) (gross, leaveDeduction, net int64) {
	gross = s.Gross()
	if workingDays > 0 && unpaidDays > 0 {
		num := gross * int64(unpaidDays)
		leaveDeduction = (2*num + int64(workingDays)) / (2 * int64(workingDays))
	}
	net = gross - leaveDeduction - s.Deductions
	if net < 0 {
		net = 0
	}
	return gross, leaveDeduction, net
}
