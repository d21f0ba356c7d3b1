package staff

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/user"
)

type Staff struct {
	ID           string    `json:"id"`
	SchoolID     string    `json:"school_id"`
	UserID       string    `json:"user_id"`
	EmployeeCode string    `json:"employee_code"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Designation  string    `json:"designation"`
	Department   string    `json:"department"`
	JoinDate     core.Date `json:"join_date"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

// NewStaff contains information needed to create a new Staff member.
// An empty EmployeeCode is generated ("EMP-0001", ...).
type NewStaff struct {
	UserID       string    `json:"user_id" validate:"omitempty,uuid"`
	EmployeeCode string    `json:"employee_code" validate:"omitempty,max=20,alphanum_"`
	Name         string    `json:"name" validate:"required,notblank"`
	Email        string    `json:"email" validate:"omitempty,email"`
	Phone        string    `json:"phone" validate:"omitempty,phone"`
	Designation  string    `json:"designation"`
	Department   string    `json:"department"`
	JoinDate     core.Date `json:"join_date"` // defaults to today
}

func (ns *NewStaff) Validate(validate *validator.Validate) error {
	ns.clean()
	return validate.Struct(ns)
}

func (ns *NewStaff) clean() {
	ns.UserID = core.CleanString(ns.UserID)
	ns.EmployeeCode = core.CleanString(ns.EmployeeCode)
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Phone = core.NormalizePhone(ns.Phone)
	ns.Designation = core.CleanString(ns.Designation)
	ns.Department = core.CleanString(ns.Department)
}

// NewStaffWithLogin creates a Staff member together with their User account (clerks, accountants...).
type NewStaffWithLogin struct {
	NewStaff
	Username        string   `json:"username" validate:"required,min=4,alphanum_"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles,staffroles"`
}

func (nl *NewStaffWithLogin) Validate(validate *validator.Validate) error {
	nl.clean()
	nl.UserID = ""
	nl.Username = core.CleanString(nl.Username, true /* lower */)
	if len(nl.Roles) == 0 {
		nl.Roles = []string{user.RoleStaffClerk}
	}
	return validate.Struct(nl)
}

// NewUser returns the User account to create for the staff member.
func (nl NewStaffWithLogin) NewUser(schoolID string) user.NewUser {
	return user.NewUser{
		SchoolID:        schoolID,
		Name:            nl.Name,
		Username:        nl.Username,
		Email:           nl.Email,
		Password:        nl.Password,
		PasswordConfirm: nl.PasswordConfirm,
		Roles:           nl.Roles,
	}
}

type UpdateStaff struct {
	Name        *string    `json:"name" validate:"omitempty,notblank"`
	Email       *string    `json:"email" validate:"omitempty,email"`
	Phone       *string    `json:"phone" validate:"omitempty,phone"`
	Designation *string    `json:"designation"`
	Department  *string    `json:"department"`
	JoinDate    *core.Date `json:"join_date"`
	IsActive    *bool      `json:"is_active"`
}

func (us *UpdateStaff) Validate(validate *validator.Validate) error {
	for _, s := range []*string{us.Name, us.Designation, us.Department} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	if us.Email != nil {
		*us.Email = core.CleanString(*us.Email, true /* lower */)
	}
	if us.Phone != nil {
		*us.Phone = core.NormalizePhone(*us.Phone)
	}
	return validate.Struct(us)
}

type QueryFilter struct {
	Search     string
	Department string
	IsActive   *bool
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Department = core.CleanString(qf.Department)
}
