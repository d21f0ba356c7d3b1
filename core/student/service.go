package student

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/class"
	"github.com/avsnarang/scholarise/core/school"
)

// registration numbers: <SCHOOLCODE><YY><seq>, e.g. GHS260007
const registrationSeqWidth = 4

var (
	// errors
	ErrNotFound = core.NewNotFoundError("student")
)

type (
	Repository interface {
		// CreateStudent inserts stu; a taken registration number fails with core.ErrUniqueViolation
		// without aborting the surrounding transaction.
		CreateStudent(ctx context.Context, stu Student, exec ...core.DBExecutor) (Student, error)
		// LatestRegistrationNo returns the highest registration number starting with prefix ("" when none).
		LatestRegistrationNo(ctx context.Context, schoolID, prefix string, exec ...core.DBExecutor) (string, error)
		QueryStudents(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Student, error)
		GetStudent(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Student, error)
		UpdateStudent(ctx context.Context, stu Student, exec ...core.DBExecutor) (Student, error)
		DeleteStudentsByID(ctx context.Context, schoolID string, ids []string, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		Create(ctx context.Context, schoolID string, ns NewStudent) (Student, error)
		// Admit creates the Student within the caller's transaction.
		Admit(ctx context.Context, exec core.DBExecutor, schoolID string, ns NewStudent) (Student, error)
		Query(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error)
		Get(ctx context.Context, schoolID, id string) (Student, error)
		Update(ctx context.Context, schoolID, id string, us UpdateStudent) (Student, error)
		Delete(ctx context.Context, schoolID string, ids ...string) error
	}

	service struct {
		db       core.DB
		repo     Repository
		schRepo  school.Repository
		classSvc class.Service
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, schRepo school.Repository, classSvc class.Service) Service {
	return &service{db: db, repo: repo, schRepo: schRepo, classSvc: classSvc}
}

// RegistrationPrefix returns the prefix shared by the registration numbers of a school for a year.
func RegistrationPrefix(schoolCode string, year int) string {
	return fmt.Sprintf("%s%02d", schoolCode, year%100)
}

func (svc *service) Create(ctx context.Context, schoolID string, ns NewStudent) (Student, error) {
	var stu Student
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		stu, err = svc.Admit(ctx, exec, schoolID, ns)
		return err
	})
	return stu, err
}

func (svc *service) Admit(ctx context.Context, exec core.DBExecutor, schoolID string, ns NewStudent) (Student, error) {
	sch, err := svc.schRepo.GetSchool(ctx, schoolID, exec)
	if err != nil {
		return Student{}, errors.Wrap(err, "finding school")
	}
	if err = svc.classSvc.EnsureRoom(ctx, schoolID, ns.ClassID, "class_id", exec); err != nil {
		return Student{}, err
	}

	now := core.Now()
	admDate := ns.AdmissionDate
	if admDate.IsZero() {
		admDate = core.Today()
	}
	stu := Student{
		SchoolID:      schoolID,
		FirstName:     ns.FirstName,
		LastName:      ns.LastName,
		DateOfBirth:   ns.DateOfBirth,
		Gender:        ns.Gender,
		ClassID:       ns.ClassID,
		GuardianName:  ns.GuardianName,
		GuardianPhone: ns.GuardianPhone,
		GuardianEmail: ns.GuardianEmail,
		AdmissionDate: admDate,
		ApplicationID: ns.ApplicationID,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	seq := core.Sequence{Prefix: RegistrationPrefix(sch.Code, admDate.Year()), Width: registrationSeqWidth}
	_, err = core.AllocateUnique(ctx, seq, core.SequenceMaxAttempts,
		func(ctx context.Context) (string, error) {
			return svc.repo.LatestRegistrationNo(ctx, schoolID, seq.Prefix, exec)
		},
		func(ctx context.Context, regNo string) error {
			stu.RegistrationNo = regNo
			created, err := svc.repo.CreateStudent(ctx, stu, exec)
			if err == nil {
				stu = created
			}
			return err
		},
	)
	if err != nil {
		return Student{}, errors.Wrap(err, "allocating registration number")
	}
	return stu, nil
}

func (svc *service) Query(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error) {
	return svc.repo.QueryStudents(ctx, schoolID, filter, ordering)
}

func (svc *service) Get(ctx context.Context, schoolID, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, schoolID, id)
}

func (svc *service) Update(ctx context.Context, schoolID, id string, us UpdateStudent) (Student, error) {
	var stu Student
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		stu, err = svc.repo.GetStudent(ctx, schoolID, id, exec)
		if err != nil {
			return err
		}

		reactivated := us.IsActive != nil && *us.IsActive && !stu.IsActive
		classChanged := us.ClassID != nil && *us.ClassID != stu.ClassID
		if classChanged || reactivated {
			classID := stu.ClassID
			if classChanged {
				classID = *us.ClassID
			}
			if err = svc.classSvc.EnsureRoom(ctx, schoolID, classID, "class_id", exec); err != nil {
				return err
			}
		}

		if us.FirstName != nil {
			stu.FirstName = *us.FirstName
		}
		if us.LastName != nil {
			stu.LastName = *us.LastName
		}
		if us.DateOfBirth != nil {
			stu.DateOfBirth = *us.DateOfBirth
		}
		if us.Gender != nil {
			stu.Gender = *us.Gender
		}
		if us.ClassID != nil {
			stu.ClassID = *us.ClassID
		}
		if us.GuardianName != nil {
			stu.GuardianName = *us.GuardianName
		}
		if us.GuardianPhone != nil {
			stu.GuardianPhone = *us.GuardianPhone
		}
		if us.GuardianEmail != nil {
			stu.GuardianEmail = *us.GuardianEmail
		}
		if us.IsActive != nil {
			stu.IsActive = *us.IsActive
		}
		stu.UpdatedAt = core.Now()

		stu, err = svc.repo.UpdateStudent(ctx, stu, exec)
		return err
	})
	return stu, err
}

func (svc *service) Delete(ctx context.Context, schoolID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := svc.repo.DeleteStudentsByID(ctx, schoolID, ids)
	return err
}
