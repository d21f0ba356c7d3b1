package student_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/class"
	"github.com/avsnarang/scholarise/core/student"
	"github.com/avsnarang/scholarise/core/user"
	sqlxrepos "github.com/avsnarang/scholarise/storage/database/sqlx"
	"github.com/avsnarang/scholarise/tests"
)

type nopMailer struct{}

func (nopMailer) SendMessages(...*core.EmailMessage) {}

// racingRepo simulates a concurrent admission: before each of the first `races` inserts,
// another student takes the registration number about to be used.
type racingRepo struct {
	student.Repository
	races int
	taken []string
}

func (r *racingRepo) CreateStudent(ctx context.Context, stu student.Student, exec ...core.DBExecutor) (student.Student, error) {
	if r.races > 0 {
		r.races--
		rival := stu
		rival.FirstName = "Rival"
		if _, err := r.Repository.CreateStudent(ctx, rival, exec...); err != nil {
			return student.Student{}, err
		}
		r.taken = append(r.taken, stu.RegistrationNo)
	}
	return r.Repository.CreateStudent(ctx, stu, exec...)
}

func newStudent(classID string, admitted core.Date) student.NewStudent {
	return student.NewStudent{
		FirstName:     "Anika",
		LastName:      "Bose",
		DateOfBirth:   core.NewDate(2016, time.January, 20),
		Gender:        "female",
		ClassID:       classID,
		GuardianName:  "Ritu Bose",
		GuardianPhone: "+919822222222",
		AdmissionDate: admitted,
	}
}

func TestService_registrationNumbers(t *testing.T) {
	db := testutil.PrepareDB(t)
	ctx := context.Background()

	schRepo := sqlxrepos.NewSchoolRepository(db)
	classRepo := sqlxrepos.NewClassRepository(db)
	stuRepo := sqlxrepos.NewStudentRepository(db)
	usrSvc := user.NewServiceMock(sqlxrepos.NewUserRepository(db), nopMailer{}, testutil.TestConfig())
	classSvc := class.NewService(classRepo, usrSvc)

	sch := testutil.CreateSchool(t, schRepo, "Green Hills School", "GHS")
	cls := testutil.CreateClass(t, classRepo, sch.ID, "Grade 3", "A", 0)
	admitted := core.NewDate(2026, time.April, 1)

	t.Run("sequential", func(t *testing.T) {
		svc := student.NewService(db, stuRepo, schRepo, classSvc)
		for i := 1; i <= 3; i++ {
			stu, err := svc.Create(ctx, sch.ID, newStudent(cls.ID, admitted))
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("GHS26%04d", i), stu.RegistrationNo)
			assert.Equal(t, admitted, stu.AdmissionDate)
			assert.True(t, stu.IsActive)
		}
	})

	t.Run("year of admission", func(t *testing.T) {
		svc := student.NewService(db, stuRepo, schRepo, classSvc)
		stu, err := svc.Create(ctx, sch.ID, newStudent(cls.ID, core.NewDate(2025, time.December, 31)))
		require.NoError(t, err)
		assert.Equal(t, "GHS250001", stu.RegistrationNo)
	})

	t.Run("continues after gaps", func(t *testing.T) {
		testutil.CreateStudent(t, stuRepo, sch.ID, cls.ID, "GHS260041", "Imported", "Record")
		svc := student.NewService(db, stuRepo, schRepo, classSvc)
		stu, err := svc.Create(ctx, sch.ID, newStudent(cls.ID, admitted))
		require.NoError(t, err)
		assert.Equal(t, "GHS260042", stu.RegistrationNo)
	})

	t.Run("retries when the number is taken", func(t *testing.T) {
		repo := &racingRepo{Repository: stuRepo, races: 2}
		svc := student.NewService(db, repo, schRepo, classSvc)
		stu, err := svc.Create(ctx, sch.ID, newStudent(cls.ID, admitted))
		require.NoError(t, err)
		assert.Equal(t, []string{"GHS260043", "GHS260044"}, repo.taken)
		assert.Equal(t, "GHS260045", stu.RegistrationNo)

		// the rivals were committed alongside
		got, err := stuRepo.QueryStudents(ctx, sch.ID, &student.QueryFilter{Search: "Rival"}, nil)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		repo := &racingRepo{Repository: stuRepo, races: core.SequenceMaxAttempts}
		svc := student.NewService(db, repo, schRepo, classSvc)
		_, err := svc.Create(ctx, sch.ID, newStudent(cls.ID, admitted))
		assert.Equal(t, core.ErrSequenceExhausted, errors.Cause(err))

		// rolled back as a whole
		got, err := stuRepo.QueryStudents(ctx, sch.ID, &student.QueryFilter{Search: "Rival"}, nil)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("numbers are per school", func(t *testing.T) {
		other := testutil.CreateSchool(t, schRepo, "Riverside Academy", "RSA")
		otherCls := testutil.CreateClass(t, classRepo, other.ID, "Grade 3", "A", 0)
		svc := student.NewService(db, stuRepo, schRepo, classSvc)
		stu, err := svc.Create(ctx, other.ID, newStudent(otherCls.ID, admitted))
		require.NoError(t, err)
		assert.Equal(t, "RSA260001", stu.RegistrationNo)

		// a class of another school is not found
		_, err = svc.Create(ctx, sch.ID, newStudent(otherCls.ID, admitted))
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr), "got %v", err)
		assert.Equal(t, "class_id", verr.Fields[0].Field)
	})
}

func TestService_classCapacity(t *testing.T) {
	db := testutil.PrepareDB(t)
	ctx := context.Background()

	schRepo := sqlxrepos.NewSchoolRepository(db)
	classRepo := sqlxrepos.NewClassRepository(db)
	stuRepo := sqlxrepos.NewStudentRepository(db)
	usrSvc := user.NewServiceMock(sqlxrepos.NewUserRepository(db), nopMailer{}, testutil.TestConfig())
	svc := student.NewService(db, stuRepo, schRepo, class.NewService(classRepo, usrSvc))

	sch := testutil.CreateSchool(t, schRepo, "Green Hills School", "GHS")
	small := testutil.CreateClass(t, classRepo, sch.ID, "Grade 4", "A", 2)
	roomy := testutil.CreateClass(t, classRepo, sch.ID, "Grade 4", "B", 0)

	first, err := svc.Create(ctx, sch.ID, newStudent(small.ID, core.Today()))
	require.NoError(t, err)
	_, err = svc.Create(ctx, sch.ID, newStudent(small.ID, core.Today()))
	require.NoError(t, err)

	_, err = svc.Create(ctx, sch.ID, newStudent(small.ID, core.Today()))
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, class.ErrClassFull, verr.Err)

	// moving out frees a seat
	_, err = svc.Update(ctx, sch.ID, first.ID, student.UpdateStudent{ClassID: &roomy.ID})
	require.NoError(t, err)
	_, err = svc.Create(ctx, sch.ID, newStudent(small.ID, core.Today()))
	require.NoError(t, err)

	// moving back into the full class is refused
	_, err = svc.Update(ctx, sch.ID, first.ID, student.UpdateStudent{ClassID: &small.ID})
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, class.ErrClassFull, verr.Err)
}
