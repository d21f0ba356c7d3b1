package leave

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/avsnarang/scholarise/core"
)

// Request statuses
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

var Transitions = core.StateMachine{
	StatusPending:   {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:  {StatusCancelled},
	StatusRejected:  {},
	StatusCancelled: {},
}

type Policy struct {
	ID              string    `json:"id"`
	SchoolID        string    `json:"school_id"`
	Name            string    `json:"name"`
	Code            string    `json:"code"`
	DaysPerYear     int       `json:"days_per_year"`
	IsPaid          bool      `json:"is_paid"`
	MaxCarryForward int       `json:"max_carry_forward"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

type NewPolicy struct {
	Name            string `json:"name" validate:"required,notblank"`
	Code            string `json:"code" validate:"required,leavecode"`
	DaysPerYear     int    `json:"days_per_year" validate:"gte=0,lte=366"`
	IsPaid          *bool  `json:"is_paid"` // defaults to true
	MaxCarryForward int    `json:"max_carry_forward" validate:"gte=0,lte=366"`
}

func (np *NewPolicy) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	np.Code = normalizeCode(np.Code)
	if np.IsPaid == nil {
		paid := true
		np.IsPaid = &paid
	}
	return validate.Struct(np)
}

type UpdatePolicy struct {
	Name            *string `json:"name" validate:"omitempty,notblank"`
	DaysPerYear     *int    `json:"days_per_year" validate:"omitempty,gte=0,lte=366"`
	IsPaid          *bool   `json:"is_paid"`
	MaxCarryForward *int    `json:"max_carry_forward" validate:"omitempty,gte=0,lte=366"`
	IsActive        *bool   `json:"is_active"`
}

func (up *UpdatePolicy) Validate(validate *validator.Validate) error {
	if up.Name != nil {
		*up.Name = core.CleanString(*up.Name)
	}
	return validate.Struct(up)
}

// Balance is the ledger of a staff member for a policy and a year.
// Remaining == Total - Used and never goes below 0.
type Balance struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	StaffID   string    `json:"staff_id"`
	PolicyID  string    `json:"policy_id"`
	Year      int       `json:"year"`
	Total     int       `json:"total"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// CarryForward returns the days of b that move to the next year under p.
func (b Balance) CarryForward(p Policy) int {
	if b.Remaining < p.MaxCarryForward {
		return b.Remaining
	}
	return p.MaxCarryForward
}

type BalanceFilter struct {
	StaffID  string
	PolicyID string
	Year     int
}

func (bf *BalanceFilter) Clean() {
	bf.StaffID = core.CleanString(bf.StaffID)
	bf.PolicyID = core.CleanString(bf.PolicyID)
}

type InitBalances struct {
	Year int `json:"year" validate:"required,gte=2000,lte=2100"`
}

type Request struct {
	ID         string     `json:"id"`
	SchoolID   string     `json:"school_id"`
	StaffID    string     `json:"staff_id"`
	PolicyID   string     `json:"policy_id"`
	StartDate  core.Date  `json:"start_date"`
	EndDate    core.Date  `json:"end_date"`
	Days       int        `json:"days"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	ReviewedBy string     `json:"reviewed_by"`
	ReviewNote string     `json:"review_note"`
	ReviewedAt *time.Time `json:"reviewed_at"` // UTC
	CreatedAt  time.Time  `json:"created_at"`  // UTC
	UpdatedAt  time.Time  `json:"updated_at"`  // UTC
}

type NewRequest struct {
	PolicyID  string    `json:"policy_id" validate:"required,uuid"`
	StartDate core.Date `json:"start_date" validate:"required"`
	EndDate   core.Date `json:"end_date" validate:"required"`
	Reason    string    `json:"reason" validate:"max=1000"`
}

func (nr *NewRequest) Validate(validate *validator.Validate) error {
	nr.PolicyID = core.CleanString(nr.PolicyID)
	nr.Reason = core.CleanString(nr.Reason)
	if err := validate.Struct(nr); err != nil {
		return err
	}
	if nr.EndDate.Before(nr.StartDate) {
		return core.NewFieldError("end_date", "end date cannot precede start date")
	}
	if nr.StartDate.Year() != nr.EndDate.Year() {
		return core.NewFieldError("end_date", "a request cannot span two calendar years")
	}
	return nil
}

type Review struct {
	Note string `json:"note" validate:"max=500"`
}

func (r *Review) Validate(validate *validator.Validate) error {
	r.Note = core.CleanString(r.Note)
	return validate.Struct(r)
}

type RequestFilter struct {
	StaffID  string
	PolicyID string
	Status   string
	From     core.Date // requests ending on or after From
	To       core.Date // requests starting on or before To
}

func (rf *RequestFilter) Clean() {
	rf.StaffID = core.CleanString(rf.StaffID)
	rf.PolicyID = core.CleanString(rf.PolicyID)
	rf.Status = core.CleanString(rf.Status, true /* lower */)
}
