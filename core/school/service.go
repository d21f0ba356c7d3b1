package school

import (
	"context"

	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("school")
	ErrCodeExists  = errors.New("a school with this code already exists")
	ErrSchoolInUse = errors.New("school still has users or students")
)

type (
	Repository interface {
		CreateSchool(ctx context.Context, sch School, exec ...core.DBExecutor) (School, error)
		QuerySchools(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]School, error)
		GetSchool(ctx context.Context, id string, exec ...core.DBExecutor) (School, error)
		GetSchoolByCode(ctx context.Context, code string, exec ...core.DBExecutor) (School, error)
		UpdateSchool(ctx context.Context, sch School, exec ...core.DBExecutor) (School, error)
		DeleteSchool(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	Service interface {
		Create(ctx context.Context, ns NewSchool) (School, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]School, error)
		Get(ctx context.Context, id string) (School, error)
		GetByCode(ctx context.Context, code string) (School, error)
		Update(ctx context.Context, id string, us UpdateSchool) (School, error)
		Delete(ctx context.Context, id string) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, ns NewSchool) (School, error) {
	now := core.Now()
	sch := School{
		Name:      ns.Name,
		Code:      ns.Code,
		Address:   ns.Address,
		Phone:     ns.Phone,
		Email:     ns.Email,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sch, err := svc.repo.CreateSchool(ctx, sch)
	if errors.Cause(err) == core.ErrUniqueViolation {
		return School{}, core.NewValidationError(ErrCodeExists, core.FieldError{Field: "code", Error: ErrCodeExists.Error()})
	}
	return sch, errors.Wrap(err, "creating school")
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]School, error) {
	return svc.repo.QuerySchools(ctx, filter, ordering)
}

func (svc *service) Get(ctx context.Context, id string) (School, error) {
	return svc.repo.GetSchool(ctx, id)
}

func (svc *service) GetByCode(ctx context.Context, code string) (School, error) {
	return svc.repo.GetSchoolByCode(ctx, core.CleanString(code))
}

func (svc *service) Update(ctx context.Context, id string, us UpdateSchool) (School, error) {
	sch, err := svc.repo.GetSchool(ctx, id)
	if err != nil {
		return School{}, err
	}
	sch.Name = us.Name
	sch.Address = us.Address
	sch.Phone = us.Phone
	sch.Email = us.Email
	if us.IsActive != nil {
		sch.IsActive = *us.IsActive
	}
	sch.UpdatedAt = core.Now()
	return svc.repo.UpdateSchool(ctx, sch)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	err := svc.repo.DeleteSchool(ctx, id)
	if errors.Cause(err) == ErrSchoolInUse {
		return core.NewValidationError(ErrSchoolInUse)
	}
	return err
}
