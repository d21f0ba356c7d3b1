package exam

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/avsnarang/scholarise/core"
)

// Statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

var Transitions = core.StateMachine{
	StatusDraft:     {StatusPublished},
	StatusPublished: {},
}

type Exam struct {
	ID           string    `json:"id"`
	SchoolID     string    `json:"school_id"`
	ClassID      string    `json:"class_id"`
	Name         string    `json:"name"`
	AcademicYear string    `json:"academic_year"`
	Term         string    `json:"term"`
	StartDate    core.Date `json:"start_date"`
	EndDate      core.Date `json:"end_date"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

func (e Exam) IsPublished() bool { return e.Status == StatusPublished }

type NewExam struct {
	ClassID      string    `json:"class_id" validate:"required,uuid"`
	Name         string    `json:"name" validate:"required,notblank"`
	AcademicYear string    `json:"academic_year" validate:"required,academicyear"`
	Term         string    `json:"term"`
	StartDate    core.Date `json:"start_date" validate:"required"`
	EndDate      core.Date `json:"end_date" validate:"required"`
}

func (ne *NewExam) Validate(validate *validator.Validate) error {
	ne.ClassID = core.CleanString(ne.ClassID)
	ne.Name = core.CleanString(ne.Name)
	ne.AcademicYear = core.CleanString(ne.AcademicYear)
	ne.Term = core.CleanString(ne.Term)
	if err := validate.Struct(ne); err != nil {
		return err
	}
	return checkDates(ne.StartDate, ne.EndDate)
}

// UpdateExam modifies a draft Exam.
type UpdateExam struct {
	Name      *string    `json:"name" validate:"omitempty,notblank"`
	Term      *string    `json:"term"`
	StartDate *core.Date `json:"start_date"`
	EndDate   *core.Date `json:"end_date"`
}

func (ue *UpdateExam) Validate(orig Exam, validate *validator.Validate) error {
	if ue.Name != nil {
		*ue.Name = core.CleanString(*ue.Name)
	}
	if ue.Term != nil {
		*ue.Term = core.CleanString(*ue.Term)
	}
	if err := validate.Struct(ue); err != nil {
		return err
	}
	start, end := orig.StartDate, orig.EndDate
	if ue.StartDate != nil {
		start = *ue.StartDate
	}
	if ue.EndDate != nil {
		end = *ue.EndDate
	}
	return checkDates(start, end)
}

func checkDates(start, end core.Date) error {
	if end.Before(start) {
		return core.NewFieldError("end_date", "end date cannot precede start date")
	}
	return nil
}

type QueryFilter struct {
	ClassID      string
	AcademicYear string
	Status       string
}

func (qf *QueryFilter) Clean() {
	qf.ClassID = core.CleanString(qf.ClassID)
	qf.AcademicYear = core.CleanString(qf.AcademicYear)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}

type Subject struct {
	ID        string    `json:"id"`
	ExamID    string    `json:"exam_id"`
	Name      string    `json:"name"`
	MaxMarks  int       `json:"max_marks"`
	PassMarks int       `json:"pass_marks"`
	ExamDate  core.Date `json:"exam_date"`
}

type NewSubject struct {
	Name      string    `json:"name" validate:"required,notblank"`
	MaxMarks  int       `json:"max_marks" validate:"required,gt=0"`
	PassMarks int       `json:"pass_marks" validate:"required,gt=0,ltefield=MaxMarks"`
	ExamDate  core.Date `json:"exam_date"`
}

func (ns *NewSubject) Validate(ex Exam, validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	if err := validate.Struct(ns); err != nil {
		return err
	}
	if !ns.ExamDate.IsZero() && (ns.ExamDate.Before(ex.StartDate) || ns.ExamDate.After(ex.EndDate)) {
		return core.NewFieldError("exam_date", "exam date must fall within the exam period")
	}
	return nil
}

type Mark struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	ExamID    string    `json:"exam_id"`
	SubjectID string    `json:"subject_id"`
	StudentID string    `json:"student_id"`
	Marks     int       `json:"marks"`
	IsAbsent  bool      `json:"is_absent"`
	Remarks   string    `json:"remarks"`
	EnteredBy string    `json:"entered_by"`
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type MarkEntry struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
	Marks     int    `json:"marks" validate:"gte=0"`
	IsAbsent  bool   `json:"is_absent"`
	Remarks   string `json:"remarks" validate:"max=255"`
}

// EnterMarks records the marks of a subject; existing marks of the listed students are replaced.
type EnterMarks struct {
	SubjectID string      `json:"subject_id" validate:"required,uuid"`
	Entries   []MarkEntry `json:"entries" validate:"required,min=1,dive"`
}

func (em *EnterMarks) Validate(validate *validator.Validate) error {
	em.SubjectID = core.CleanString(em.SubjectID)
	for i := range em.Entries {
		em.Entries[i].StudentID = core.CleanString(em.Entries[i].StudentID)
		em.Entries[i].Remarks = core.CleanString(em.Entries[i].Remarks)
		if em.Entries[i].IsAbsent {
			em.Entries[i].Marks = 0
		}
	}
	return validate.Struct(em)
}

type SubjectResult struct {
	SubjectID string `json:"subject_id"`
	Subject   string `json:"subject"`
	Marks     int    `json:"marks"`
	MaxMarks  int    `json:"max_marks"`
	IsAbsent  bool   `json:"is_absent"`
	Passed    bool   `json:"passed"`
}

type Result struct {
	StudentID      string          `json:"student_id"`
	RegistrationNo string          `json:"registration_no"`
	Name           string          `json:"name"`
	Subjects       []SubjectResult `json:"subjects"`
	Total          int             `json:"total"`
	MaxTotal       int             `json:"max_total"`
	Percentage     float64         `json:"percentage"`
	Grade          string          `json:"grade"`
	Passed         bool            `json:"passed"`
	Rank           int             `json:"rank"`
}

type Results struct {
	Exam     Exam      `json:"exam"`
	Subjects []Subject `json:"subjects"`
	Results  []Result  `json:"results"`
}
