package student

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/avsnarang/scholarise/core"
)

// Genders
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

type Student struct {
	ID             string    `json:"id"`
	SchoolID       string    `json:"school_id"`
	RegistrationNo string    `json:"registration_no"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	DateOfBirth    core.Date `json:"date_of_birth"`
	Gender         string    `json:"gender"`
	ClassID        string    `json:"class_id"`
	GuardianName   string    `json:"guardian_name"`
	GuardianPhone  string    `json:"guardian_phone"`
	GuardianEmail  string    `json:"guardian_email"`
	AdmissionDate  core.Date `json:"admission_date"`
	ApplicationID  string    `json:"application_id"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
}

func (s Student) FullName() string {
	return core.CleanString(s.FirstName + " " + s.LastName)
}

// NewStudent contains information needed to admit a Student.
type NewStudent struct {
	FirstName     string    `json:"first_name" validate:"required,notblank"`
	LastName      string    `json:"last_name" validate:"required,notblank"`
	DateOfBirth   core.Date `json:"date_of_birth" validate:"required,notfuture"`
	Gender        string    `json:"gender" validate:"required,oneof=male female other"`
	ClassID       string    `json:"class_id" validate:"required,uuid"`
	GuardianName  string    `json:"guardian_name" validate:"required,notblank"`
	GuardianPhone string    `json:"guardian_phone" validate:"required,phone"`
	GuardianEmail string    `json:"guardian_email" validate:"omitempty,email"`
	AdmissionDate core.Date `json:"admission_date"` // defaults to today
	ApplicationID string    `json:"-"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.Gender = core.CleanString(ns.Gender, true /* lower */)
	ns.ClassID = core.CleanString(ns.ClassID)
	ns.GuardianName = core.CleanString(ns.GuardianName)
	ns.GuardianPhone = core.NormalizePhone(ns.GuardianPhone)
	ns.GuardianEmail = core.CleanString(ns.GuardianEmail, true /* lower */)
	return validate.Struct(ns)
}

// UpdateStudent defines what information may be provided to modify an existing Student.
// The registration number never changes.
type UpdateStudent struct {
	FirstName     *string    `json:"first_name" validate:"omitempty,notblank"`
	LastName      *string    `json:"last_name" validate:"omitempty,notblank"`
	DateOfBirth   *core.Date `json:"date_of_birth" validate:"omitempty,notfuture"`
	Gender        *string    `json:"gender" validate:"omitempty,oneof=male female other"`
	ClassID       *string    `json:"class_id" validate:"omitempty,uuid"`
	GuardianName  *string    `json:"guardian_name" validate:"omitempty,notblank"`
	GuardianPhone *string    `json:"guardian_phone" validate:"omitempty,phone"`
	GuardianEmail *string    `json:"guardian_email" validate:"omitempty,email"`
	IsActive      *bool      `json:"is_active"`
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	for _, s := range []*string{us.FirstName, us.LastName, us.ClassID, us.GuardianName} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	if us.Gender != nil {
		*us.Gender = core.CleanString(*us.Gender, true /* lower */)
	}
	if us.GuardianPhone != nil {
		*us.GuardianPhone = core.NormalizePhone(*us.GuardianPhone)
	}
	if us.GuardianEmail != nil {
		*us.GuardianEmail = core.CleanString(*us.GuardianEmail, true /* lower */)
	}
	return validate.Struct(us)
}

type QueryFilter struct {
	Search   string
	ClassID  string
	IDs      []string
	IsActive *bool
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.ClassID = core.CleanString(qf.ClassID)
}
