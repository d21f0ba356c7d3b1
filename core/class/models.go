package class

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/avsnarang/scholarise/core"
)

type Class struct {
	ID             string    `json:"id"`
	SchoolID       string    `json:"school_id"`
	Name           string    `json:"name"`
	Section        string    `json:"section"`
	Capacity       int       `json:"capacity"` // 0: unlimited
	ClassTeacherID string    `json:"class_teacher_id"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
}

// HasRoomFor reports whether count students (already enrolled) leave room for one more.
func (c Class) HasRoomFor(count int) bool {
	return c.Capacity == 0 || count < c.Capacity
}

type NewClass struct {
	Name           string `json:"name" validate:"required,notblank,max=50"`
	Section        string `json:"section" validate:"max=10"`
	Capacity       int    `json:"capacity" validate:"gte=0"`
	ClassTeacherID string `json:"class_teacher_id" validate:"omitempty,uuid"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Section = core.CleanString(nc.Section)
	nc.ClassTeacherID = core.CleanString(nc.ClassTeacherID)
	return validate.Struct(nc)
}

type UpdateClass struct {
	Name           *string `json:"name" validate:"omitempty,notblank,max=50"`
	Section        *string `json:"section" validate:"omitempty,max=10"`
	Capacity       *int    `json:"capacity" validate:"omitempty,gte=0"`
	ClassTeacherID *string `json:"class_teacher_id" validate:"omitempty,uuid"`
}

func (uc *UpdateClass) Validate(validate *validator.Validate) error {
	if uc.Name != nil {
		*uc.Name = core.CleanString(*uc.Name)
	}
	if uc.Section != nil {
		*uc.Section = core.CleanString(*uc.Section)
	}
	if uc.ClassTeacherID != nil {
		*uc.ClassTeacherID = core.CleanString(*uc.ClassTeacherID)
	}
	return validate.Struct(uc)
}

type QueryFilter struct {
	Search    string
	TeacherID string
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.TeacherID = core.CleanString(qf.TeacherID)
}
