package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/class"
	"github.com/avsnarang/scholarise/core/leave"
	"github.com/avsnarang/scholarise/core/school"
	"github.com/avsnarang/scholarise/core/staff"
	"github.com/avsnarang/scholarise/core/student"
	"github.com/avsnarang/scholarise/core/user"
	"github.com/avsnarang/scholarise/storage/database"
)

// PrepareDB opens a migrated in-memory database, closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	if err = database.Migrate(db, true /* quiet */); err != nil {
		t.Fatalf("PrepareDB().Migrate(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// NewValidator returns a validator with the custom tags registered.
func NewValidator() *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	return validate
}

// TestConfig is the configuration services get in tests.
func TestConfig() *core.Config {
	return &core.Config{
		Env:                       "TEST",
		TestMode:                  true,
		AppName:                   "Scholarise",
		SecretKey:                 "test-secret",
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmailStr:       "Scholarise <noreply@localhost>",
		PasswordResetTimeoutDelta: time.Hour,
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: time.Hour,
			DisableReqLogs:            true,
		},
		RateLimit: core.RateLimitConfig{Limit: 100, Window: time.Minute},
		WhatsApp:  core.WhatsAppConfig{VerifyToken: "verify-me", SendConcurrency: 2},
		Leave:     core.LeaveConfig{WeekendDays: []time.Weekday{time.Sunday}},
	}
}

func CreateSchool(t *testing.T, repo school.Repository, name, code string) school.School {
	t.Helper()
	now := core.Now()
	sch, err := repo.CreateSchool(context.Background(), school.School{
		Name:      name,
		Code:      code,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateSchool() failed: %v", err)
	}
	return sch
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	schoolID, name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := core.Now()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		SchoolID:  schoolID,
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateClass(t *testing.T, repo class.Repository, schoolID, name, section string, capacity int) class.Class {
	t.Helper()
	now := core.Now()
	cls, err := repo.CreateClass(context.Background(), class.Class{
		SchoolID:  schoolID,
		Name:      name,
		Section:   section,
		Capacity:  capacity,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	return cls
}

func CreateStudent(t *testing.T, repo student.Repository, schoolID, classID, regNo, firstName, lastName string) student.Student {
	t.Helper()
	now := core.Now()
	stu, err := repo.CreateStudent(context.Background(), student.Student{
		SchoolID:       schoolID,
		RegistrationNo: regNo,
		FirstName:      firstName,
		LastName:       lastName,
		DateOfBirth:    core.NewDate(2015, time.March, 4),
		Gender:         "female",
		ClassID:        classID,
		GuardianName:   "Guardian of " + firstName,
		GuardianPhone:  "+919800000001",
		AdmissionDate:  core.Today(),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return stu
}

func CreateStaff(t *testing.T, repo staff.Repository, schoolID, name, code string) staff.Staff {
	t.Helper()
	now := core.Now()
	stf, err := repo.CreateStaff(context.Background(), staff.Staff{
		SchoolID:     schoolID,
		EmployeeCode: code,
		Name:         name,
		JoinDate:     core.NewDate(2020, time.April, 1),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("CreateStaff() failed: %v", err)
	}
	return stf
}

func CreatePolicy(t *testing.T, repo leave.Repository, schoolID, code string, daysPerYear, maxCarry int) leave.Policy {
	t.Helper()
	now := core.Now()
	p, err := repo.CreatePolicy(context.Background(), leave.Policy{
		SchoolID:        schoolID,
		Name:            code + " leave",
		Code:            code,
		DaysPerYear:     daysPerYear,
		IsPaid:          true,
		MaxCarryForward: maxCarry,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		t.Fatalf("CreatePolicy() failed: %v", err)
	}
	return p
}
