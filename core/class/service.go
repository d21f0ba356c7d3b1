package class

import (
	"context"

	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/user"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("class")
	ErrClassExists    = errors.New("a class with this name and section already exists")
	ErrClassNotEmpty  = errors.New("class still has active students")
	ErrClassFull      = errors.New("class is full")
	ErrCapacityTooLow = errors.New("capacity is lower than the number of active students")
	ErrInvalidTeacher = errors.New("class teacher must be a teacher of this school")
)

type (
	Repository interface {
		CreateClass(ctx context.Context, cls Class, exec ...core.DBExecutor) (Class, error)
		QueryClasses(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Class, error)
		GetClass(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Class, error)
		UpdateClass(ctx context.Context, cls Class, exec ...core.DBExecutor) (Class, error)
		DeleteClass(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error
		CountActiveStudents(ctx context.Context, schoolID, classID string, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		Create(ctx context.Context, schoolID string, nc NewClass) (Class, error)
		Query(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Class, error)
		Get(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Class, error)
		Update(ctx context.Context, schoolID, id string, uc UpdateClass) (Class, error)
		Delete(ctx context.Context, schoolID, id string) error
		// EnsureRoom returns ErrClassFull (as a validation error on field) when the class cannot take one more student.
		EnsureRoom(ctx context.Context, schoolID, classID, field string, exec ...core.DBExecutor) error
	}

	service struct {
		repo   Repository
		usrSvc user.Service
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, usrSvc user.Service) Service {
	return &service{repo: repo, usrSvc: usrSvc}
}

func (svc *service) checkTeacher(ctx context.Context, schoolID, teacherID string) error {
	if teacherID == "" {
		return nil
	}
	usr, err := svc.usrSvc.GetByID(ctx, teacherID)
	if err != nil && !core.IsNotFound(err) {
		return errors.Wrap(err, "finding class teacher")
	}
	if err != nil || usr.SchoolID != schoolID || !usr.IsTeacher() {
		return core.NewValidationError(ErrInvalidTeacher, core.FieldError{Field: "class_teacher_id", Error: ErrInvalidTeacher.Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, schoolID string, nc NewClass) (Class, error) {
	if err := svc.checkTeacher(ctx, schoolID, nc.ClassTeacherID); err != nil {
		return Class{}, err
	}
	now := core.Now()
	cls, err := svc.repo.CreateClass(ctx, Class{
		SchoolID:       schoolID,
		Name:           nc.Name,
		Section:        nc.Section,
		Capacity:       nc.Capacity,
		ClassTeacherID: nc.ClassTeacherID,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if errors.Cause(err) == core.ErrUniqueViolation {
		return Class{}, core.NewValidationError(ErrClassExists, core.FieldError{Field: "name", Error: ErrClassExists.Error()})
	}
	return cls, err
}

func (svc *service) Query(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Class, error) {
	return svc.repo.QueryClasses(ctx, schoolID, filter, ordering)
}

func (svc *service) Get(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Class, error) {
	return svc.repo.GetClass(ctx, schoolID, id, exec...)
}

func (svc *service) Update(ctx context.Context, schoolID, id string, uc UpdateClass) (Class, error) {
	cls, err := svc.repo.GetClass(ctx, schoolID, id)
	if err != nil {
		return Class{}, err
	}
	if uc.Name != nil {
		cls.Name = *uc.Name
	}
	if uc.Section != nil {
		cls.Section = *uc.Section
	}
	if uc.ClassTeacherID != nil {
		if err = svc.checkTeacher(ctx, schoolID, *uc.ClassTeacherID); err != nil {
			return Class{}, err
		}
		cls.ClassTeacherID = *uc.ClassTeacherID
	}
	if uc.Capacity != nil {
		if *uc.Capacity > 0 {
			count, err := svc.repo.CountActiveStudents(ctx, schoolID, id)
			if err != nil {
				return Class{}, err
			}
			if count > *uc.Capacity {
				return Class{}, core.NewValidationError(ErrCapacityTooLow, core.FieldError{Field: "capacity", Error: ErrCapacityTooLow.Error()})
			}
		}
		cls.Capacity = *uc.Capacity
	}
	cls.UpdatedAt = core.Now()

	cls, err = svc.repo.UpdateClass(ctx, cls)
	if errors.Cause(err) == core.ErrUniqueViolation {
		return Class{}, core.NewValidationError(ErrClassExists, core.FieldError{Field: "name", Error: ErrClassExists.Error()})
	}
	return cls, err
}

func (svc *service) Delete(ctx context.Context, schoolID, id string) error {
	if _, err := svc.repo.GetClass(ctx, schoolID, id); err != nil {
		return err
	}
	count, err := svc.repo.CountActiveStudents(ctx, schoolID, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return core.NewValidationError(ErrClassNotEmpty)
	}
	return svc.repo.DeleteClass(ctx, schoolID, id)
}

func (svc *service) EnsureRoom(ctx context.Context, schoolID, classID, field string, exec ...core.DBExecutor) error {
	cls, err := svc.repo.GetClass(ctx, schoolID, classID, exec...)
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
		}
		return err
	}
	count, err := svc.repo.CountActiveStudents(ctx, schoolID, classID, exec...)
	if err != nil {
		return err
	}
	if !cls.HasRoomFor(count) {
		return core.NewValidationError(ErrClassFull, core.FieldError{Field: field, Error: ErrClassFull.Error()})
	}
	return nil
}
