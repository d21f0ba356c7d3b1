package attendance

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/avsnarang/scholarise/core"
)

// Statuses
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
	StatusExcused = "excused"
)

var Statuses = []string{StatusPresent, StatusAbsent, StatusLate, StatusExcused}

type Record struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	StudentID string    `json:"student_id"`
	ClassID   string    `json:"class_id"`
	Date      core.Date `json:"date"`
	Status    string    `json:"status"`
	Remarks   string    `json:"remarks"`
	MarkedBy  string    `json:"marked_by"`
	MarkedAt  time.Time `json:"marked_at"` // UTC
}

type Entry struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
	Status    string `json:"status" validate:"required,attstatus"`
	Remarks   string `json:"remarks" validate:"max=255"`
}

// MarkClass holds the attendance of (some of) the students of a class for one day.
type MarkClass struct {
	ClassID string    `json:"class_id" validate:"required,uuid"`
	Date    core.Date `json:"date" validate:"required,notfuture"`
	Entries []Entry   `json:"entries" validate:"required,min=1,dive"`
}

func (mc *MarkClass) Validate(validate *validator.Validate) error {
	mc.ClassID = core.CleanString(mc.ClassID)
	seen := make(map[string]bool, len(mc.Entries))
	for i := range mc.Entries {
		e := &mc.Entries[i]
		e.StudentID = core.CleanString(e.StudentID)
		e.Status = core.CleanString(e.Status, true /* lower */)
		e.Remarks = core.CleanString(e.Remarks)
	}
	if err := validate.Struct(mc); err != nil {
		return err
	}
	for _, e := range mc.Entries {
		if seen[e.StudentID] {
			return core.NewFieldError("entries", "a student is listed more than once")
		}
		seen[e.StudentID] = true
	}
	return nil
}

type QueryFilter struct {
	ClassID   string
	StudentID string
	Status    string
	From      core.Date
	To        core.Date
}

func (qf *QueryFilter) Clean() {
	qf.ClassID = core.CleanString(qf.ClassID)
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}

// RegisterEntry is one line of a class register; Status is empty when the student was not marked.
type RegisterEntry struct {
	StudentID      string `json:"student_id"`
	RegistrationNo string `json:"registration_no"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	Remarks        string `json:"remarks"`
}

type Register struct {
	ClassID string          `json:"class_id"`
	Date    core.Date       `json:"date"`
	Entries []RegisterEntry `json:"entries"`
}

type Summary struct {
	StudentID  string    `json:"student_id"`
	From       core.Date `json:"from"`
	To         core.Date `json:"to"`
	Present    int       `json:"present"`
	Absent     int       `json:"absent"`
	Late       int       `json:"late"`
	Excused    int       `json:"excused"`
	Total      int       `json:"total"`
	Percentage float64   `json:"percentage"`
}

// NewSummary computes the attendance percentage: (present + late) / (total - excused).
func NewSummary(studentID string, counts map[string]int) Summary {
	s := Summary{
		StudentID: studentID,
		Present:   counts[StatusPresent],
		Absent:    counts[StatusAbsent],
		Late:      counts[StatusLate],
		Excused:   counts[StatusExcused],
	}
	s.Total = s.Present + s.Absent + s.Late + s.Excused
	if denom := s.Total - s.Excused; denom > 0 {
		s.Percentage = math.Round(float64(s.Present+s.Late)*10000/float64(denom)) / 100
	}
	return s
}
