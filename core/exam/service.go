package exam

import (
	"context"

	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/class"
	"github.com/avsnarang/scholarise/core/student"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("exam")
	ErrSubjectNotFound = core.NewNotFoundError("subject")

	ErrExamPublished     = errors.New("a published exam cannot be changed")
	ErrSubjectExists     = errors.New("the exam already has a subject with this name")
	ErrNoSubjects        = errors.New("an exam needs at least one subject to be published")
	ErrMarksTooHigh      = errors.New("marks cannot exceed the maximum marks of the subject")
	ErrStudentNotInClass = errors.New("student is not an active member of the exam's class")
)

type (
	Repository interface {
		CreateExam(ctx context.Context, ex Exam, exec ...core.DBExecutor) (Exam, error)
		QueryExams(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Exam, error)
		GetExam(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Exam, error)
		UpdateExam(ctx context.Context, ex Exam, exec ...core.DBExecutor) (Exam, error)
		// SetExamStatus is a guarded write: core.ErrStaleWrite when the exam is no longer in status from.
		SetExamStatus(ctx context.Context, schoolID, id, from, to string, exec ...core.DBExecutor) error
		DeleteExam(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error

		// CreateSubject fails with core.ErrUniqueViolation when the exam has a subject with the same name.
		CreateSubject(ctx context.Context, sub Subject, exec ...core.DBExecutor) (Subject, error)
		QuerySubjects(ctx context.Context, examID string, exec ...core.DBExecutor) ([]Subject, error)
		GetSubject(ctx context.Context, examID, id string, exec ...core.DBExecutor) (Subject, error)

		// UpsertMarks replaces the marks already stored for the same (subject, student).
		UpsertMarks(ctx context.Context, marks []Mark, exec ...core.DBExecutor) error
		// QueryMarks lists the marks of an exam, only those of studentID when it is not empty.
		QueryMarks(ctx context.Context, schoolID, examID, studentID string, exec ...core.DBExecutor) ([]Mark, error)
	}

	Service interface {
		Create(ctx context.Context, schoolID string, ne NewExam) (Exam, error)
		Query(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Exam, error)
		Get(ctx context.Context, schoolID, id string) (Exam, error)
		Update(ctx context.Context, schoolID, id string, ue UpdateExam) (Exam, error)
		Delete(ctx context.Context, schoolID, id string) error

		AddSubject(ctx context.Context, schoolID, examID string, ns NewSubject) (Subject, error)
		QuerySubjects(ctx context.Context, schoolID, examID string) ([]Subject, error)

		EnterMarks(ctx context.Context, schoolID, examID, enteredBy string, em EnterMarks) ([]Mark, error)
		QueryMarks(ctx context.Context, schoolID, examID, studentID string) ([]Mark, error)

		Publish(ctx context.Context, schoolID, id string) (Exam, error)
		// Results computes the results of an exam. With publishedOnly, draft exams are not found.
		Results(ctx context.Context, schoolID, id string, publishedOnly bool) (Results, error)
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

func (svc *service) Create(ctx context.Context, schoolID string, ne NewExam) (Exam, error) {
	if _, err := svc.classSvc.Get(ctx, schoolID, ne.ClassID); err != nil {
		if core.IsNotFound(err) {
			return Exam{}, core.NewValidationError(err, core.FieldError{Field: "class_id", Error: err.Error()})
		}
		return Exam{}, err
	}
	now := core.Now()
	return svc.repo.CreateExam(ctx, Exam{
		SchoolID:     schoolID,
		ClassID:      ne.ClassID,
		Name:         ne.Name,
		AcademicYear: ne.AcademicYear,
		Term:         ne.Term,
		StartDate:    ne.StartDate,
		EndDate:      ne.EndDate,
		Status:       StatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (svc *service) Query(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Exam, error) {
	return svc.repo.QueryExams(ctx, schoolID, filter, ordering)
}

func (svc *service) Get(ctx context.Context, schoolID, id string) (Exam, error) {
	return svc.repo.GetExam(ctx, schoolID, id)
}

func (svc *service) getDraft(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Exam, error) {
	ex, err := svc.repo.GetExam(ctx, schoolID, id, exec...)
	if err != nil {
		return Exam{}, err
	}
	if ex.IsPublished() {
		return Exam{}, core.NewValidationError(ErrExamPublished)
	}
	return ex, nil
}

func (svc *service) Update(ctx context.Context, schoolID, id string, ue UpdateExam) (Exam, error) {
	ex, err := svc.getDraft(ctx, schoolID, id)
	if err != nil {
		return Exam{}, err
	}
	if ue.Name != nil {
		ex.Name = *ue.Name
	}
	if ue.Term != nil {
		ex.Term = *ue.Term
	}
	if ue.StartDate != nil {
		ex.StartDate = *ue.StartDate
	}
	if ue.EndDate != nil {
		ex.EndDate = *ue.EndDate
	}
	ex.UpdatedAt = core.Now()
	return svc.repo.UpdateExam(ctx, ex)
}

func (svc *service) Delete(ctx context.Context, schoolID, id string) error {
	if _, err := svc.getDraft(ctx, schoolID, id); err != nil {
		return err
	}
	return svc.repo.DeleteExam(ctx, schoolID, id)
}

func (svc *service) AddSubject(ctx context.Context, schoolID, examID string, ns NewSubject) (Subject, error) {
	if _, err := svc.getDraft(ctx, schoolID, examID); err != nil {
		return Subject{}, err
	}
	sub, err := svc.repo.CreateSubject(ctx, Subject{
		ExamID:    examID,
		Name:      ns.Name,
		MaxMarks:  ns.MaxMarks,
		PassMarks: ns.PassMarks,
		ExamDate:  ns.ExamDate,
	})
	if errors.Cause(err) == core.ErrUniqueViolation {
		return Subject{}, core.NewValidationError(ErrSubjectExists, core.FieldError{Field: "name", Error: ErrSubjectExists.Error()})
	}
	return sub, err
}

func (svc *service) QuerySubjects(ctx context.Context, schoolID, examID string) ([]Subject, error) {
	if _, err := svc.repo.GetExam(ctx, schoolID, examID); err != nil {
		return nil, err
	}
	return svc.repo.QuerySubjects(ctx, examID)
}

func (svc *service) EnterMarks(ctx context.Context, schoolID, examID, enteredBy string, em EnterMarks) ([]Mark, error) {
	var marks []Mark
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		ex, err := svc.getDraft(ctx, schoolID, examID, exec)
		if err != nil {
			return err
		}
		sub, err := svc.repo.GetSubject(ctx, examID, em.SubjectID, exec)
		if err != nil {
			if core.IsNotFound(err) {
				return core.NewValidationError(err, core.FieldError{Field: "subject_id", Error: err.Error()})
			}
			return err
		}

		ids := make([]string, len(em.Entries))
		for i, e := range em.Entries {
			ids[i] = e.StudentID
		}
		active := true
		members, err := svc.stuRepo.QueryStudents(ctx, schoolID, &student.QueryFilter{
			ClassID:  ex.ClassID,
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
		marks = make([]Mark, 0, len(em.Entries))
		for _, e := range em.Entries {
			if !inClass[e.StudentID] {
				return core.NewValidationError(ErrStudentNotInClass, core.FieldError{Field: "entries", Error: ErrStudentNotInClass.Error() + ": " + e.StudentID})
			}
			if e.Marks > sub.MaxMarks {
				return core.NewValidationError(ErrMarksTooHigh, core.FieldError{Field: "entries", Error: ErrMarksTooHigh.Error()})
			}
			marks = append(marks, Mark{
				SchoolID:  schoolID,
				ExamID:    examID,
				SubjectID: sub.ID,
				StudentID: e.StudentID,
				Marks:     e.Marks,
				IsAbsent:  e.IsAbsent,
				Remarks:   e.Remarks,
				EnteredBy: enteredBy,
				UpdatedAt: now,
			})
		}
		return svc.repo.UpsertMarks(ctx, marks, exec)
	})
	if err != nil {
		return nil, err
	}
	return marks, nil
}

func (svc *service) QueryMarks(ctx context.Context, schoolID, examID, studentID string) ([]Mark, error) {
	if _, err := svc.repo.GetExam(ctx, schoolID, examID); err != nil {
		return nil, err
	}
	return svc.repo.QueryMarks(ctx, schoolID, examID, studentID)
}

func (svc *service) Publish(ctx context.Context, schoolID, id string) (Exam, error) {
	ex, err := svc.repo.GetExam(ctx, schoolID, id)
	if err != nil {
		return Exam{}, err
	}
	if !Transitions.CanMove(ex.Status, StatusPublished) {
		return Exam{}, core.NewTransitionError("exam", ex.Status, StatusPublished)
	}
	subjects, err := svc.repo.QuerySubjects(ctx, id)
	if err != nil {
		return Exam{}, err
	}
	if len(subjects) == 0 {
		return Exam{}, core.NewValidationError(ErrNoSubjects)
	}
	if err = svc.repo.SetExamStatus(ctx, schoolID, id, ex.Status, StatusPublished); err != nil {
		return Exam{}, core.GuardTransition(err, "exam", ex.Status, StatusPublished)
	}
	ex.Status = StatusPublished
	return ex, nil
}

func (svc *service) Results(ctx context.Context, schoolID, id string, publishedOnly bool) (Results, error) {
	ex, err := svc.repo.GetExam(ctx, schoolID, id)
	if err != nil {
		return Results{}, err
	}
	if publishedOnly && !ex.IsPublished() {
		return Results{}, ErrNotFound
	}
	subjects, err := svc.repo.QuerySubjects(ctx, id)
	if err != nil {
		return Results{}, err
	}
	marks, err := svc.repo.QueryMarks(ctx, schoolID, id, "")
	if err != nil {
		return Results{}, err
	}

	// the active members of the class, plus anyone marked who has since left it
	active := true
	members, err := svc.stuRepo.QueryStudents(ctx, schoolID, &student.QueryFilter{ClassID: ex.ClassID, IsActive: &active}, nil)
	if err != nil {
		return Results{}, err
	}
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		seen[m.ID] = true
	}
	var missing []string
	for _, m := range marks {
		if !seen[m.StudentID] {
			seen[m.StudentID] = true
			missing = append(missing, m.StudentID)
		}
	}
	if len(missing) > 0 {
		others, err := svc.stuRepo.QueryStudents(ctx, schoolID, &student.QueryFilter{IDs: missing}, nil)
		if err != nil {
			return Results{}, err
		}
		members = append(members, others...)
	}

	students := make([]ResultStudent, len(members))
	for i, m := range members {
		students[i] = ResultStudent{ID: m.ID, RegistrationNo: m.RegistrationNo, Name: m.FullName()}
	}
	return Results{
		Exam:     ex,
		Subjects: subjects,
		Results:  ComputeResults(subjects, marks, students),
	}, nil
}
