package attendance

import (
	"context"

	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/class"
	"github.com/avsnarang/scholarise/core/student"
)

var (
	// errors
	ErrStudentNotInClass = errors.New("student is not an active member of this class")
)

type (
	Repository interface {
		// UpsertRecords inserts the records, replacing the status, remarks & marker of those already
		// stored for the same (student, date).
		UpsertRecords(ctx context.Context, records []Record, exec ...core.DBExecutor) error
		QueryRecords(ctx context.Context, schoolID string, filter *QueryFilter, exec ...core.DBExecutor) ([]Record, error)
		// CountByStatus counts the records of a student (all students when studentID is empty) per status.
		CountByStatus(ctx context.Context, schoolID, studentID string, from, to core.Date, exec ...core.DBExecutor) (map[string]int, error)
	}

	Service interface {
		MarkClass(ctx context.Context, schoolID, markedBy string, mc MarkClass) ([]Record, error)
		Query(ctx context.Context, schoolID string, filter *QueryFilter) ([]Record, error)
		ClassRegister(ctx context.Context, schoolID, classID string, date core.Date) (Register, error)
		StudentSummary(ctx context.Context, schoolID, studentID string, from, to core.Date) (Summary, error)
		// DaySummary counts the records of all students for date per status.
		DaySummary(ctx context.Context, schoolID string, date core.Date) (map[string]int, error)
	}

	service struct {
		db       core.DB
		repo     Repository
		stuRepo  student.Repository
		classSvc class.Service
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, stuRepo student.Repository, classSvc class.Service) Service {
	return &service{db: db, repo: repo, stuRepo: stuRepo, classSvc: classSvc}
}

func (svc *service) MarkClass(ctx context.Context, schoolID, markedBy string, mc MarkClass) ([]Record, error) {
	var records []Record
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		if _, err := svc.classSvc.Get(ctx, schoolID, mc.ClassID, exec); err != nil {
			if core.IsNotFound(err) {
				return core.NewValidationError(err, core.FieldError{Field: "class_id", Error: err.Error()})
			}
			return err
		}

		ids := make([]string, len(mc.Entries))
		for i, e := range mc.Entries {
			ids[i] = e.StudentID
		}
		active := true
		members, err := svc.stuRepo.QueryStudents(ctx, schoolID, &student.QueryFilter{
			ClassID:  mc.ClassID,
			IDs:      ids,
			IsActive: &active,
		}, nil, exec)
		if err != nil {
			return errors.Wrap(err, "finding class members")
		}
		inClass := make(map[string]bool, len(members))
		for _, m := range members {
			inClass[m.ID] = true
		}

		now := core.Now()
		records = make([]Record, 0, len(mc.Entries))
		for _, e := range mc.Entries {
			if !inClass[e.StudentID] {
				return core.NewValidationError(ErrStudentNotInClass, core.FieldError{Field: "entries", Error: ErrStudentNotInClass.Error() + ": " + e.StudentID})
			}
			records = append(records, Record{
				SchoolID:  schoolID,
				StudentID: e.StudentID,
				ClassID:   mc.ClassID,
				Date:      mc.Date,
				Status:    e.Status,
				Remarks:   e.Remarks,
				MarkedBy:  markedBy,
				MarkedAt:  now,
			})
		}
		if err = svc.repo.UpsertRecords(ctx, records, exec); err != nil {
			return err
		}
		records, err = svc.repo.QueryRecords(ctx, schoolID, &QueryFilter{ClassID: mc.ClassID, From: mc.Date, To: mc.Date}, exec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (svc *service) Query(ctx context.Context, schoolID string, filter *QueryFilter) ([]Record, error) {
	return svc.repo.QueryRecords(ctx, schoolID, filter)
}

func (svc *service) ClassRegister(ctx context.Context, schoolID, classID string, date core.Date) (Register, error) {
	if _, err := svc.classSvc.Get(ctx, schoolID, classID); err != nil {
		return Register{}, err
	}
	active := true
	members, err := svc.stuRepo.QueryStudents(ctx, schoolID, &student.QueryFilter{ClassID: classID, IsActive: &active},
		[]core.DBOrdering{{Field: "first_name", Ascending: true}, {Field: "last_name", Ascending: true}})
	if err != nil {
		return Register{}, err
	}
	records, err := svc.repo.QueryRecords(ctx, schoolID, &QueryFilter{ClassID: classID, From: date, To: date})
	if err != nil {
		return Register{}, err
	}
	byStudent := make(map[string]Record, len(records))
	for _, r := range records {
		byStudent[r.StudentID] = r
	}

	reg := Register{ClassID: classID, Date: date, Entries: make([]RegisterEntry, 0, len(members))}
	for _, m := range members {
		r := byStudent[m.ID]
		reg.Entries = append(reg.Entries, RegisterEntry{
			StudentID:      m.ID,
			RegistrationNo: m.RegistrationNo,
			Name:           m.FullName(),
			Status:         r.Status,
			Remarks:        r.Remarks,
		})
	}
	return reg, nil
}

func (svc *service) StudentSummary(ctx context.Context, schoolID, studentID string, from, to core.Date) (Summary, error) {
	if _, err := svc.stuRepo.GetStudent(ctx, schoolID, studentID); err != nil {
		return Summary{}, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return Summary{}, core.NewFieldError("to", "end date cannot precede start date")
	}
	counts, err := svc.repo.CountByStatus(ctx, schoolID, studentID, from, to)
	if err != nil {
		return Summary{}, err
	}
	s := NewSummary(studentID, counts)
	s.From, s.To = from, to
	return s, nil
}

func (svc *service) DaySummary(ctx context.Context, schoolID string, date core.Date) (map[string]int, error) {
	counts, err := svc.repo.CountByStatus(ctx, schoolID, "", date, date)
	if err != nil {
		return nil, err
	}
	day := make(map[string]int, len(Statuses))
	for _, s := range Statuses {
		day[s] = counts[s]
	}
	return day, nil
}
