package courtesy

import (
	"context"

	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/student"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("courtesy call")

	ErrCallClosed = errors.New("a closed call cannot be changed")
)

type (
	Repository interface {
		CreateCall(ctx context.Context, c Call, exec ...core.DBExecutor) (Call, error)
		QueryCalls(ctx context.Context, schoolID string, filter *QueryFilter, exec ...core.DBExecutor) ([]Call, error)
		GetCall(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Call, error)
		UpdateCall(ctx context.Context, c Call, exec ...core.DBExecutor) (Call, error)
		DeleteCall(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error
	}

	// Service scopes every call to its caller unless callerID is empty.
	Service interface {
		Log(ctx context.Context, schoolID, calledBy string, nc NewCall) (Call, error)
		Get(ctx context.Context, schoolID, callerID, id string) (Call, error)
		Query(ctx context.Context, schoolID, callerID string, filter *QueryFilter) ([]Call, error)
		Update(ctx context.Context, schoolID, callerID, id string, uc UpdateCall) (Call, error)
		Close(ctx context.Context, schoolID, callerID, id string) (Call, error)
		Delete(ctx context.Context, schoolID, callerID, id string) error
	}

	service struct {
		repo    Repository
		stuRepo student.Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, stuRepo student.Repository) Service {
	return &service{repo: repo, stuRepo: stuRepo}
}

func (svc *service) Log(ctx context.Context, schoolID, calledBy string, nc NewCall) (Call, error) {
	if _, err := svc.stuRepo.GetStudent(ctx, schoolID, nc.StudentID); err != nil {
		if core.IsNotFound(err) {
			return Call{}, core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
		}
		return Call{}, err
	}

	status := StatusClosed
	if nc.FollowUpRequired {
		status = StatusOpen
	}
	now := core.Now()
	return svc.repo.CreateCall(ctx, Call{
		SchoolID:         schoolID,
		StudentID:        nc.StudentID,
		CalledBy:         calledBy,
		CallDate:         nc.CallDate,
		Purpose:          nc.Purpose,
		Feedback:         nc.Feedback,
		Rating:           nc.Rating,
		FollowUpRequired: nc.FollowUpRequired,
		FollowUpDate:     nc.FollowUpDate,
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
}

func (svc *service) Get(ctx context.Context, schoolID, callerID, id string) (Call, error) {
	c, err := svc.repo.GetCall(ctx, schoolID, id)
	if err != nil {
		return Call{}, err
	}
	if callerID != "" && c.CalledBy != callerID {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (svc *service) Query(ctx context.Context, schoolID, callerID string, filter *QueryFilter) ([]Call, error) {
	if filter == nil {
		filter = &QueryFilter{}
	}
	if callerID != "" {
		filter.CalledBy = callerID
	}
	return svc.repo.QueryCalls(ctx, schoolID, filter)
}

func (svc *service) Update(ctx context.Context, schoolID, callerID, id string, uc UpdateCall) (Call, error) {
	c, err := svc.Get(ctx, schoolID, callerID, id)
	if err != nil {
		return Call{}, err
	}
	if c.Status == StatusClosed && c.FollowUpRequired {
		return Call{}, core.NewValidationError(ErrCallClosed)
	}
	if uc.Purpose != nil {
		c.Purpose = *uc.Purpose
	}
	if uc.Feedback != nil {
		c.Feedback = *uc.Feedback
	}
	if uc.Rating != nil {
		c.Rating = *uc.Rating
	}
	if uc.FollowUpRequired != nil {
		c.FollowUpRequired = *uc.FollowUpRequired
	}
	if uc.FollowUpDate != nil {
		c.FollowUpDate = *uc.FollowUpDate
	}
	if c.FollowUpRequired {
		c.Status = StatusOpen
	} else {
		c.FollowUpDate = core.Date{}
		c.Status = StatusClosed
	}
	c.UpdatedAt = core.Now()
	return svc.repo.UpdateCall(ctx, c)
}

func (svc *service) Close(ctx context.Context, schoolID, callerID, id string) (Call, error) {
	c, err := svc.Get(ctx, schoolID, callerID, id)
	if err != nil {
		return Call{}, err
	}
	if c.Status == StatusClosed {
		return c, nil
	}
	c.Status = StatusClosed
	c.UpdatedAt = core.Now()
	return svc.repo.UpdateCall(ctx, c)
}

func (svc *service) Delete(ctx context.Context, schoolID, callerID, id string) error {
	if _, err := svc.Get(ctx, schoolID, callerID, id); err != nil {
		return err
	}
	return svc.repo.DeleteCall(ctx, schoolID, id)
}
