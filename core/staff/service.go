package staff

import (
	"context"

	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/user"
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("staff")
	ErrEmployeeCodeTaken = errors.New("this employee code is already used")
	ErrUserAlreadyStaff  = errors.New("this user already has a staff profile")
	ErrInvalidUser       = errors.New("user must belong to this school")

	employeeSeq = core.Sequence{Prefix: "EMP-", Width: 4}
)

type (
	Repository interface {
		CreateStaff(ctx context.Context, stf Staff, exec ...core.DBExecutor) (Staff, error)
		LatestEmployeeCode(ctx context.Context, schoolID, prefix string, exec ...core.DBExecutor) (string, error)
		QueryStaff(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Staff, error)
		GetStaff(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Staff, error)
		GetStaffByUser(ctx context.Context, schoolID, userID string, exec ...core.DBExecutor) (Staff, error)
		UpdateStaff(ctx context.Context, stf Staff, exec ...core.DBExecutor) (Staff, error)
		DeleteStaff(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error
	}

	Service interface {
		Create(ctx context.Context, schoolID string, ns NewStaff) (Staff, error)
		// CreateWithLogin creates the staff member and their User account in one transaction.
		CreateWithLogin(ctx context.Context, schoolID string, nl NewStaffWithLogin) (Staff, user.User, error)
		Query(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Staff, error)
		Get(ctx context.Context, schoolID, id string) (Staff, error)
		GetByUser(ctx context.Context, schoolID, userID string) (Staff, error)
		Update(ctx context.Context, schoolID, id string, us UpdateStaff) (Staff, error)
		Delete(ctx context.Context, schoolID, id string) error
	}

	service struct {
		db     core.DB
		repo   Repository
		usrSvc user.Service
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, usrSvc user.Service) Service {
	return &service{db: db, repo: repo, usrSvc: usrSvc}
}

func (svc *service) Create(ctx context.Context, schoolID string, ns NewStaff) (Staff, error) {
	if ns.UserID != "" {
		usr, err := svc.usrSvc.GetByID(ctx, ns.UserID)
		if err != nil && !core.IsNotFound(err) {
			return Staff{}, errors.Wrap(err, "finding user")
		}
		if err != nil || usr.SchoolID != schoolID {
			return Staff{}, core.NewValidationError(ErrInvalidUser, core.FieldError{Field: "user_id", Error: ErrInvalidUser.Error()})
		}
	}

	var stf Staff
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		stf, err = svc.create(ctx, exec, schoolID, ns)
		return err
	})
	return stf, err
}

func (svc *service) create(ctx context.Context, exec core.DBExecutor, schoolID string, ns NewStaff) (Staff, error) {
	now := core.Now()
	joinDate := ns.JoinDate
	if joinDate.IsZero() {
		joinDate = core.Today()
	}
	stf := Staff{
		SchoolID:     schoolID,
		UserID:       ns.UserID,
		EmployeeCode: ns.EmployeeCode,
		Name:         ns.Name,
		Email:        ns.Email,
		Phone:        ns.Phone,
		Designation:  ns.Designation,
		Department:   ns.Department,
		JoinDate:     joinDate,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	insert := func(ctx context.Context, code string) error {
		stf.EmployeeCode = code
		created, err := svc.repo.CreateStaff(ctx, stf, exec)
		if err == nil {
			stf = created
		}
		return err
	}

	if ns.EmployeeCode != "" {
		if err := insert(ctx, ns.EmployeeCode); err != nil {
			return Staff{}, svc.trapUniqueErr(ctx, exec, schoolID, ns, err)
		}
		return stf, nil
	}

	_, err := core.AllocateUnique(ctx, employeeSeq, core.SequenceMaxAttempts,
		func(ctx context.Context) (string, error) {
			return svc.repo.LatestEmployeeCode(ctx, schoolID, employeeSeq.Prefix, exec)
		},
		insert,
	)
	if err != nil {
		return Staff{}, svc.trapUniqueErr(ctx, exec, schoolID, ns, err)
	}
	return stf, nil
}

// trapUniqueErr tells which unique index an insert hit: (school, employee code) or (school, user).
func (svc *service) trapUniqueErr(ctx context.Context, exec core.DBExecutor, schoolID string, ns NewStaff, err error) error {
	if errors.Cause(err) != core.ErrUniqueViolation {
		return err
	}
	if ns.UserID != "" {
		if _, gErr := svc.repo.GetStaffByUser(ctx, schoolID, ns.UserID, exec); gErr == nil {
			return core.NewValidationError(ErrUserAlreadyStaff, core.FieldError{Field: "user_id", Error: ErrUserAlreadyStaff.Error()})
		}
	}
	return core.NewValidationError(ErrEmployeeCodeTaken, core.FieldError{Field: "employee_code", Error: ErrEmployeeCodeTaken.Error()})
}

func (svc *service) CreateWithLogin(ctx context.Context, schoolID string, nl NewStaffWithLogin) (Staff, user.User, error) {
	var (
		stf Staff
		usr user.User
	)
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		usr, err = svc.usrSvc.Create(ctx, nl.NewUser(schoolID), exec)
		if err != nil {
			return errors.Wrap(err, "creating user")
		}
		ns := nl.NewStaff
		ns.UserID = usr.ID
		stf, err = svc.create(ctx, exec, schoolID, ns)
		return err
	})
	if err != nil {
		return Staff{}, user.User{}, err
	}
	return stf, usr, nil
}

func (svc *service) Query(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Staff, error) {
	return svc.repo.QueryStaff(ctx, schoolID, filter, ordering)
}

func (svc *service) Get(ctx context.Context, schoolID, id string) (Staff, error) {
	return svc.repo.GetStaff(ctx, schoolID, id)
}

func (svc *service) GetByUser(ctx context.Context, schoolID, userID string) (Staff, error) {
	return svc.repo.GetStaffByUser(ctx, schoolID, userID)
}

func (svc *service) Update(ctx context.Context, schoolID, id string, us UpdateStaff) (Staff, error) {
	stf, err := svc.repo.GetStaff(ctx, schoolID, id)
	if err != nil {
		return Staff{}, err
	}
	if us.Name != nil {
		stf.Name = *us.Name
	}
	if us.Email != nil {
		stf.Email = *us.Email
	}
	if us.Phone != nil {
		stf.Phone = *us.Phone
	}
	if us.Designation != nil {
		stf.Designation = *us.Designation
	}
	if us.Department != nil {
		stf.Department = *us.Department
	}
	if us.JoinDate != nil && !us.JoinDate.IsZero() {
		stf.JoinDate = *us.JoinDate
	}
	if us.IsActive != nil {
		stf.IsActive = *us.IsActive
	}
	stf.UpdatedAt = core.Now()
	return svc.repo.UpdateStaff(ctx, stf)
}

func (svc *service) Delete(ctx context.Context, schoolID, id string) error {
	return svc.repo.DeleteStaff(ctx, schoolID, id)
}
