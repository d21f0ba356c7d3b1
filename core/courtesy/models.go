package courtesy

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/avsnarang/scholarise/core"
)

// Purposes
const (
	PurposeGeneral    = "general"
	PurposeAcademic   = "academic"
	PurposeAttendance = "attendance"
	PurposeFee        = "fee"
	PurposeBehaviour  = "behaviour"
)

// Statuses
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

var Purposes = []string{PurposeGeneral, PurposeAcademic, PurposeAttendance, PurposeFee, PurposeBehaviour}

type Call struct {
	ID               string    `json:"id"`
	SchoolID         string    `json:"school_id"`
	StudentID        string    `json:"student_id"`
	CalledBy         string    `json:"called_by"`
	CallDate         core.Date `json:"call_date"`
	Purpose          string    `json:"purpose"`
	Feedback         string    `json:"feedback"`
	Rating           int       `json:"rating"` // 0 when not rated
	FollowUpRequired bool      `json:"follow_up_required"`
	FollowUpDate     core.Date `json:"follow_up_date"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"` // UTC
	UpdatedAt        time.Time `json:"updated_at"` // UTC
}

type NewCall struct {
	StudentID        string    `json:"student_id" validate:"required,uuid"`
	CallDate         core.Date `json:"call_date" validate:"notfuture"` // defaults to today
	Purpose          string    `json:"purpose" validate:"required,callpurpose"`
	Feedback         string    `json:"feedback" validate:"required,notblank,max=2000"`
	Rating           int       `json:"rating" validate:"gte=0,lte=5"`
	FollowUpRequired bool      `json:"follow_up_required"`
	FollowUpDate     core.Date `json:"follow_up_date"`
}

func (nc *NewCall) Validate(validate *validator.Validate) error {
	nc.StudentID = core.CleanString(nc.StudentID)
	nc.Purpose = core.CleanString(nc.Purpose, true /* lower */)
	nc.Feedback = core.CleanString(nc.Feedback)
	if nc.CallDate.IsZero() {
		nc.CallDate = core.Today()
	}
	if err := validate.Struct(nc); err != nil {
		return err
	}
	if !nc.FollowUpRequired {
		nc.FollowUpDate = core.Date{}
	}
	return checkFollowUp(nc.FollowUpRequired, nc.CallDate, nc.FollowUpDate)
}

type UpdateCall struct {
	Purpose          *string    `json:"purpose" validate:"omitempty,callpurpose"`
	Feedback         *string    `json:"feedback" validate:"omitempty,notblank,max=2000"`
	Rating           *int       `json:"rating" validate:"omitempty,gte=0,lte=5"`
	FollowUpRequired *bool      `json:"follow_up_required"`
	FollowUpDate     *core.Date `json:"follow_up_date"`
}

func (uc *UpdateCall) Validate(orig Call, validate *validator.Validate) error {
	if uc.Purpose != nil {
		*uc.Purpose = core.CleanString(*uc.Purpose, true /* lower */)
	}
	if uc.Feedback != nil {
		*uc.Feedback = core.CleanString(*uc.Feedback)
	}
	if err := validate.Struct(uc); err != nil {
		return err
	}
	required, date := orig.FollowUpRequired, orig.FollowUpDate
	if uc.FollowUpRequired != nil {
		required = *uc.FollowUpRequired
	}
	if uc.FollowUpDate != nil {
		date = *uc.FollowUpDate
	}
	if !required {
		return nil
	}
	return checkFollowUp(required, orig.CallDate, date)
}

func checkFollowUp(required bool, callDate, followUp core.Date) error {
	if !required {
		return nil
	}
	if followUp.IsZero() {
		return core.NewFieldError("follow_up_date", "a follow-up date is required")
	}
	if followUp.Before(callDate) {
		return core.NewFieldError("follow_up_date", "follow-up date cannot precede the call date")
	}
	return nil
}

type QueryFilter struct {
	StudentID       string
	CalledBy        string
	Purpose         string
	Status          string
	From            core.Date
	To              core.Date
	PendingFollowUp bool // open calls needing a follow-up
}

func (qf *QueryFilter) Clean() {
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.CalledBy = core.CleanString(qf.CalledBy)
	qf.Purpose = core.CleanString(qf.Purpose, true /* lower */)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}
