package admission_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/admission"
	"github.com/avsnarang/scholarise/core/class"
	"github.com/avsnarang/scholarise/core/school"
	"github.com/avsnarang/scholarise/core/student"
	"github.com/avsnarang/scholarise/core/user"
	sqlxrepos "github.com/avsnarang/scholarise/storage/database/sqlx"
	"github.com/avsnarang/scholarise/tests"
)

type mailRecorder struct {
	mu   sync.Mutex
	sent []*core.EmailMessage
}

func (m *mailRecorder) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, messages...)
}

type fixture struct {
	db      *sqlx.DB
	svc     admission.Service
	repo    admission.Repository
	stuRepo student.Repository
	mails   *mailRecorder
	school  school.School
	class   class.Class
}

func setup(t *testing.T) fixture {
	db := testutil.PrepareDB(t)
	conf := testutil.TestConfig()

	schRepo := sqlxrepos.NewSchoolRepository(db)
	classRepo := sqlxrepos.NewClassRepository(db)
	stuRepo := sqlxrepos.NewStudentRepository(db)
	repo := sqlxrepos.NewAdmissionRepository(db)
	mails := new(mailRecorder)

	usrSvc := user.NewServiceMock(sqlxrepos.NewUserRepository(db), mails, conf)
	classSvc := class.NewService(classRepo, usrSvc)
	stuSvc := student.NewService(db, stuRepo, schRepo, classSvc)

	sch := testutil.CreateSchool(t, schRepo, "Green Hills School", "GHS")
	return fixture{
		db:      db,
		svc:     admission.NewService(db, repo, schRepo, classSvc, stuSvc, mails, core.NopLogger()),
		repo:    repo,
		stuRepo: stuRepo,
		mails:   mails,
		school:  sch,
		class:   testutil.CreateClass(t, classRepo, sch.ID, "Grade 1", "A", 30),
	}
}

func newApplication(name string) admission.NewApplication {
	return admission.NewApplication{
		AcademicYear:  "2026-2027",
		StudentName:   name,
		DateOfBirth:   core.NewDate(2019, time.June, 2),
		Gender:        "male",
		GradeApplying: "Grade 1",
		ParentName:    "Parent of " + name,
		ParentPhone:   "+919811111111",
		ParentEmail:   "parent@test.in",
	}
}

// toAssessed moves a fresh application to "assessed" with a passing score.
func (f fixture) toAssessed(t *testing.T, appID string) {
	ctx := context.Background()
	_, err := f.svc.TransitionApplication(ctx, f.school.ID, appID, admission.StatusChange{Status: admission.AppUnderReview})
	require.NoError(t, err)
	a, err := f.svc.ScheduleAssessment(ctx, f.school.ID, appID, admission.NewAssessment{
		ScheduledAt: time.Now().Add(24 * time.Hour),
		MaxScore:    100,
		PassScore:   40,
	})
	require.NoError(t, err)
	score := 72
	a, err = f.svc.RecordAssessmentResult(ctx, f.school.ID, a.ID, admission.AssessmentResult{Score: &score})
	require.NoError(t, err)
	require.Equal(t, admission.ResultPassed, a.Result)
}

func TestService_leadToEnrolment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	schID := f.school.ID

	lead, err := f.svc.CreateLead(ctx, schID, admission.NewLead{
		StudentName:   "Aarav Sharma",
		ParentName:    "Meera Sharma",
		ParentPhone:   "+919811111111",
		GradeApplying: "Grade 1",
		Source:        admission.SourceWalkIn,
	})
	require.NoError(t, err)
	assert.Equal(t, admission.LeadNew, lead.Status)

	// a new lead cannot be converted
	_, err = f.svc.CreateApplicationFromLead(ctx, schID, lead.ID, newApplication("Aarav Sharma"))
	assert.True(t, core.IsTransitionError(err), "got %v", err)

	for _, status := range []string{admission.LeadContacted, admission.LeadQualified} {
		lead, err = f.svc.TransitionLead(ctx, schID, lead.ID, admission.StatusChange{Status: status})
		require.NoError(t, err)
	}

	app, err := f.svc.CreateApplicationFromLead(ctx, schID, lead.ID, newApplication("Aarav Sharma"))
	require.NoError(t, err)
	assert.Equal(t, admission.AppSubmitted, app.Status)
	assert.Equal(t, lead.ID, app.LeadID)
	assert.Equal(t, fmt.Sprintf("APP-GHS-%d-00001", time.Now().UTC().Year()), app.ApplicationNo)

	lead, err = f.svc.GetLead(ctx, schID, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, admission.LeadConverted, lead.Status)

	// converted leads are frozen
	_, err = f.svc.TransitionLead(ctx, schID, lead.ID, admission.StatusChange{Status: admission.LeadLost})
	assert.True(t, core.IsTransitionError(err), "got %v", err)

	// enrolment needs an accepted offer
	_, err = f.svc.Enroll(ctx, schID, app.ID)
	assert.True(t, core.IsTransitionError(err), "got %v", err)

	f.toAssessed(t, app.ID)

	offer, err := f.svc.CreateOffer(ctx, schID, app.ID, admission.NewOffer{
		ClassID:   f.class.ID,
		FeeAmount: 1250000,
		ExpiresAt: core.Today().AddDays(7),
	})
	require.NoError(t, err)
	assert.Equal(t, admission.OfferPending, offer.Status)
	require.Len(t, f.mails.sent, 1)
	assert.Equal(t, "admission_offer", f.mails.sent[0].TemplateName)

	offer, err = f.svc.AcceptOffer(ctx, schID, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, admission.OfferAccepted, offer.Status)
	assert.NotNil(t, offer.RespondedAt)

	stu, err := f.svc.Enroll(ctx, schID, app.ID)
	require.NoError(t, err)
	assert.Equal(t, "Aarav", stu.FirstName)
	assert.Equal(t, "Sharma", stu.LastName)
	assert.Equal(t, f.class.ID, stu.ClassID)
	assert.Equal(t, app.ID, stu.ApplicationID)
	assert.Equal(t, student.RegistrationPrefix("GHS", core.Today().Year())+"0001", stu.RegistrationNo)

	app, err = f.svc.GetApplication(ctx, schID, app.ID)
	require.NoError(t, err)
	assert.Equal(t, admission.AppEnrolled, app.Status)
	assert.Equal(t, stu.ID, app.StudentID)

	// terminal
	_, err = f.svc.Enroll(ctx, schID, app.ID)
	assert.True(t, core.IsTransitionError(err), "got %v", err)

	stats, err := f.svc.Stats(ctx, schID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Applications[admission.AppEnrolled])
	assert.Equal(t, 0, stats.Applications[admission.AppSubmitted])
	assert.Equal(t, 1, stats.Leads[admission.LeadConverted])
	assert.Equal(t, 1, stats.Offers[admission.OfferAccepted])
	assert.Equal(t, float64(100), stats.ConversionRate)
}

func TestService_enrollNeedsLastName(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	schID := f.school.ID

	app, err := f.svc.CreateApplication(ctx, schID, newApplication("Aarav"))
	require.NoError(t, err)
	f.toAssessed(t, app.ID)
	offer, err := f.svc.CreateOffer(ctx, schID, app.ID, admission.NewOffer{ClassID: f.class.ID, ExpiresAt: core.Today().AddDays(7)})
	require.NoError(t, err)
	_, err = f.svc.AcceptOffer(ctx, schID, offer.ID)
	require.NoError(t, err)

	_, err = f.svc.Enroll(ctx, schID, app.ID)
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "student_name", verr.Fields[0].Field)

	// nothing was admitted
	app, err = f.svc.GetApplication(ctx, schID, app.ID)
	require.NoError(t, err)
	assert.Equal(t, admission.AppAccepted, app.Status)
	assert.Empty(t, app.StudentID)
}

func TestService_applicationNumbers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	prefix := admission.ApplicationPrefix("GHS", time.Now().UTC().Year())

	for i := 1; i <= 3; i++ {
		app, err := f.svc.CreateApplication(ctx, f.school.ID, newApplication(fmt.Sprintf("Child %d", i)))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("%s%05d", prefix, i), app.ApplicationNo)
	}

	// numbers are scoped to the school
	other := testutil.CreateSchool(t, sqlxrepos.NewSchoolRepository(f.db), "Riverside Academy", "RSA")
	app, err := f.svc.CreateApplication(ctx, other.ID, newApplication("Child 4"))
	require.NoError(t, err)
	assert.Equal(t, admission.ApplicationPrefix("RSA", time.Now().UTC().Year())+"00001", app.ApplicationNo)

	// unknown school
	_, err = f.svc.CreateApplication(ctx, "2c9a4f0e-8b1d-4b8e-9f3e-0c5d7a6b1f00", newApplication("Child 5"))
	assert.True(t, core.IsNotFound(err), "got %v", err)
}

func TestService_manualTransitions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	schID := f.school.ID

	app, err := f.svc.CreateApplication(ctx, schID, newApplication("Kabir Rao"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		status  string
		wantErr bool
	}{
		{name: "offered is not manual", status: admission.AppOffered, wantErr: true},
		{name: "enrolled is not manual", status: admission.AppEnrolled, wantErr: true},
		{name: "unknown status", status: "lol", wantErr: true},
		{name: "under review", status: admission.AppUnderReview},
		{name: "back to submitted is not allowed", status: admission.AppSubmitted, wantErr: true},
		{name: "rejected", status: admission.AppRejected},
		{name: "rejected is terminal", status: admission.AppWithdrawn, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.TransitionApplication(ctx, schID, app.ID, admission.StatusChange{Status: tt.status, Note: "checked"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, "checked", got.StatusNote)
		})
	}
}

func TestService_offers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	schID := f.school.ID

	newOffer := func(expires core.Date) admission.NewOffer {
		return admission.NewOffer{ClassID: f.class.ID, FeeAmount: 500000, ExpiresAt: expires}
	}

	t.Run("one pending offer per application", func(t *testing.T) {
		app, err := f.svc.CreateApplication(ctx, schID, newApplication("Ira Das"))
		require.NoError(t, err)
		f.toAssessed(t, app.ID)

		_, err = f.svc.CreateOffer(ctx, schID, app.ID, newOffer(core.Today().AddDays(3)))
		require.NoError(t, err)
		_, err = f.svc.CreateOffer(ctx, schID, app.ID, newOffer(core.Today().AddDays(3)))
		assert.True(t, core.IsTransitionError(err), "got %v", err)
	})

	t.Run("unknown class", func(t *testing.T) {
		app, err := f.svc.CreateApplication(ctx, schID, newApplication("Tara Nair"))
		require.NoError(t, err)
		f.toAssessed(t, app.ID)

		no := newOffer(core.Today().AddDays(3))
		no.ClassID = "6f1c8a4e-3a43-4d0b-9d3a-1a1f8c7d1e22"
		_, err = f.svc.CreateOffer(ctx, schID, app.ID, no)
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr), "got %v", err)
		assert.Equal(t, "class_id", verr.Fields[0].Field)
	})

	t.Run("accepting an expired offer expires it", func(t *testing.T) {
		app, err := f.svc.CreateApplication(ctx, schID, newApplication("Vihaan Iyer"))
		require.NoError(t, err)
		f.toAssessed(t, app.ID)

		o, err := f.repo.CreateOffer(ctx, admission.Offer{
			SchoolID:      schID,
			ApplicationID: app.ID,
			ClassID:       f.class.ID,
			ExpiresAt:     core.Today().AddDays(-1),
			Status:        admission.OfferPending,
			CreatedAt:     core.Now(),
		})
		require.NoError(t, err)
		require.NoError(t, f.repo.SetApplicationStatus(ctx, schID, app.ID, admission.AppAssessed, admission.AppOffered, "", "", core.Now()))

		_, err = f.svc.AcceptOffer(ctx, schID, o.ID)
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr), "got %v", err)
		assert.Equal(t, admission.ErrOfferExpired, verr.Err)

		o, err = f.repo.GetOffer(ctx, schID, o.ID)
		require.NoError(t, err)
		assert.Equal(t, admission.OfferExpired, o.Status)

		app, err = f.svc.GetApplication(ctx, schID, app.ID)
		require.NoError(t, err)
		assert.Equal(t, admission.AppUnderReview, app.Status)
	})

	t.Run("withdrawing revokes the pending offer", func(t *testing.T) {
		app, err := f.svc.CreateApplication(ctx, schID, newApplication("Anaya Gupta"))
		require.NoError(t, err)
		f.toAssessed(t, app.ID)
		o, err := f.svc.CreateOffer(ctx, schID, app.ID, newOffer(core.Today().AddDays(3)))
		require.NoError(t, err)

		app, err = f.svc.TransitionApplication(ctx, schID, app.ID, admission.StatusChange{Status: admission.AppWithdrawn})
		require.NoError(t, err)
		assert.Equal(t, admission.AppWithdrawn, app.Status)

		o, err = f.repo.GetOffer(ctx, schID, o.ID)
		require.NoError(t, err)
		assert.Equal(t, admission.OfferRevoked, o.Status)
	})

	t.Run("declined is terminal", func(t *testing.T) {
		app, err := f.svc.CreateApplication(ctx, schID, newApplication("Reyansh Kumar"))
		require.NoError(t, err)
		f.toAssessed(t, app.ID)
		o, err := f.svc.CreateOffer(ctx, schID, app.ID, newOffer(core.Today()))
		require.NoError(t, err)

		o, err = f.svc.DeclineOffer(ctx, schID, o.ID)
		require.NoError(t, err)
		assert.Equal(t, admission.OfferDeclined, o.Status)

		_, err = f.svc.AcceptOffer(ctx, schID, o.ID)
		assert.True(t, core.IsTransitionError(err), "got %v", err)
		app, err = f.svc.GetApplication(ctx, schID, app.ID)
		require.NoError(t, err)
		assert.Equal(t, admission.AppDeclined, app.Status)
	})
}

func TestService_ExpireOffers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	schID := f.school.ID

	app, err := f.svc.CreateApplication(ctx, schID, newApplication("Diya Menon"))
	require.NoError(t, err)
	f.toAssessed(t, app.ID)
	o, err := f.svc.CreateOffer(ctx, schID, app.ID, admission.NewOffer{ClassID: f.class.ID, ExpiresAt: core.Today()})
	require.NoError(t, err)

	// not expired on its last day
	n, err := f.svc.ExpireOffers(ctx, schID, core.Today())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.svc.ExpireOffers(ctx, schID, core.Today().AddDays(1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	o, err = f.repo.GetOffer(ctx, schID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, admission.OfferExpired, o.Status)
	app, err = f.svc.GetApplication(ctx, schID, app.ID)
	require.NoError(t, err)
	assert.Equal(t, admission.AppUnderReview, app.Status)
	assert.Equal(t, "offer expired", app.StatusNote)

	// a new offer can be made once the old one expired
	_, err = f.svc.TransitionApplication(ctx, schID, app.ID, admission.StatusChange{Status: admission.AppUnderReview})
	assert.Error(t, err) // already under review
	_, err = f.svc.CreateOffer(ctx, schID, app.ID, admission.NewOffer{ClassID: f.class.ID, ExpiresAt: core.Today().AddDays(5)})
	assert.NoError(t, err)
}

func TestService_classFullOnEnrolment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	schID := f.school.ID

	classRepo := sqlxrepos.NewClassRepository(f.db)
	full := testutil.CreateClass(t, classRepo, schID, "Grade 2", "B", 1)
	testutil.CreateStudent(t, f.stuRepo, schID, full.ID, "GHS990001", "Existing", "Pupil")

	app, err := f.svc.CreateApplication(ctx, schID, newApplication("Late Comer"))
	require.NoError(t, err)
	f.toAssessed(t, app.ID)
	o, err := f.svc.CreateOffer(ctx, schID, app.ID, admission.NewOffer{ClassID: full.ID, ExpiresAt: core.Today().AddDays(2)})
	require.NoError(t, err)
	_, err = f.svc.AcceptOffer(ctx, schID, o.ID)
	require.NoError(t, err)

	_, err = f.svc.Enroll(ctx, schID, app.ID)
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, class.ErrClassFull, verr.Err)

	// nothing was written
	app, err = f.svc.GetApplication(ctx, schID, app.ID)
	require.NoError(t, err)
	assert.Equal(t, admission.AppAccepted, app.Status)
	students, err := f.stuRepo.QueryStudents(ctx, schID, &student.QueryFilter{ClassID: full.ID}, nil)
	require.NoError(t, err)
	assert.Len(t, students, 1)
}
