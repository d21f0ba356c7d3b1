package tests

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/admission"
	"github.com/avsnarang/scholarise/core/student"
	"github.com/avsnarang/scholarise/core/user"
	"github.com/avsnarang/scholarise/tests"
)

func Test_admissionApi_leadToEnrolment(t *testing.T) {
	f := setup(t)
	sch := testutil.CreateSchool(t, f.schRepo, "Green Hills School", "GHS")
	cls := testutil.CreateClass(t, f.classRepo, sch.ID, "Grade 1", "A", 30)
	clerk := f.token(t, f.createUser(t, sch.ID, "Clerk", "clerk", user.RoleStaffClerk))
	teacher := f.token(t, f.createUser(t, sch.ID, "Teacher", "teacher", user.RoleTeacher))

	var lead admission.Lead
	rec := f.do(t, http.MethodPost, "/api/admissions/leads", clerk, admission.NewLead{
		StudentName:   "Aarav Sharma",
		ParentName:    "Meera Sharma",
		ParentPhone:   "+91 98111 11111",
		ParentEmail:   "Meera@Test.in",
		GradeApplying: "Grade 1",
		Source:        "Walk_In",
	}, &lead)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, admission.LeadNew, lead.Status)
	assert.Equal(t, "+919811111111", lead.ParentPhone)
	assert.Equal(t, admission.SourceWalkIn, lead.Source)

	leadPath := "/api/admissions/leads/" + lead.ID
	runHTTPTests(t, f, []httpTest{
		{name: "no permission", path: "/api/admissions/leads", token: teacher, wantCode: http.StatusForbidden},
		{
			name: "required fields", method: http.MethodPost, path: "/api/admissions/leads", token: clerk,
			body:     marchallObj(t, map[string]string{"source": "carrier pigeon"}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "a new lead cannot apply", method: http.MethodPost, path: leadPath + "/application", token: clerk,
			body:     marchallObj(t, admission.NewApplication{AcademicYear: "2026-2027", DateOfBirth: core.NewDate(2019, time.June, 2), Gender: "male"}),
			wantCode: http.StatusConflict,
		},
		{
			name: "applications need a full name", method: http.MethodPost, path: "/api/admissions/applications", token: clerk,
			body: marchallObj(t, admission.NewApplication{
				AcademicYear: "2026-2027", StudentName: "Aarav", DateOfBirth: core.NewDate(2019, time.June, 2), Gender: "male",
				GradeApplying: "Grade 1", ParentName: "Meera Sharma", ParentPhone: "+919811111111",
			}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"student_name": "enter the first and last name"}),
		},
		{
			name: "new cannot skip to qualified", method: http.MethodPost, path: leadPath + "/status", token: clerk,
			body: marchallObj(t, admission.StatusChange{Status: admission.LeadQualified}), wantCode: http.StatusConflict,
		},
		{
			name: "converted is not a manual status", method: http.MethodPost, path: leadPath + "/status", token: clerk,
			body: marchallObj(t, admission.StatusChange{Status: admission.LeadConverted}), wantCode: http.StatusBadRequest,
		},
	})

	for _, status := range []string{admission.LeadContacted, admission.LeadQualified} {
		rec = f.do(t, http.MethodPost, leadPath+"/status", clerk, admission.StatusChange{Status: status}, &lead)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, status, lead.Status)
	}

	// contact details come from the lead
	var app admission.Application
	rec = f.do(t, http.MethodPost, leadPath+"/application", clerk, admission.NewApplication{
		AcademicYear: "2026-2027",
		DateOfBirth:  core.NewDate(2019, time.June, 2),
		Gender:       "male",
	}, &app)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, lead.ID, app.LeadID)
	assert.Equal(t, "Aarav Sharma", app.StudentName)
	assert.Equal(t, "Meera Sharma", app.ParentName)
	assert.Equal(t, "meera@test.in", app.ParentEmail)
	assert.Equal(t, admission.AppSubmitted, app.Status)
	assert.Equal(t, fmt.Sprintf("APP-GHS-%d-00001", time.Now().UTC().Year()), app.ApplicationNo)

	rec = f.do(t, http.MethodGet, leadPath, clerk, nil, &lead)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, admission.LeadConverted, lead.Status)

	appPath := "/api/admissions/applications/" + app.ID
	runHTTPTests(t, f, []httpTest{
		{name: "enrol without an offer", method: http.MethodPost, path: appPath + "/enroll", token: clerk, wantCode: http.StatusConflict},
		{
			name: "offered is not a manual status", method: http.MethodPost, path: appPath + "/status", token: clerk,
			body:     marchallObj(t, admission.StatusChange{Status: admission.AppOffered}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"status": admission.ErrStatusNotSettable.Error()}),
		},
	})

	rec = f.do(t, http.MethodPost, appPath+"/status", clerk, admission.StatusChange{Status: admission.AppUnderReview, Note: "documents ok"}, &app)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, admission.AppUnderReview, app.Status)
	assert.Equal(t, "documents ok", app.StatusNote)

	var assessment admission.Assessment
	rec = f.do(t, http.MethodPost, appPath+"/assessments", clerk, admission.NewAssessment{
		ScheduledAt: time.Now().Add(48 * time.Hour),
		MaxScore:    50,
		PassScore:   20,
	}, &assessment)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, admission.ResultPending, assessment.Result)

	score := 41
	rec = f.do(t, http.MethodPost, "/api/admissions/assessments/"+assessment.ID+"/result", clerk, admission.AssessmentResult{Score: &score, Remarks: "bright"}, &assessment)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, admission.ResultPassed, assessment.Result)
	assert.NotNil(t, assessment.CompletedAt)

	var assessments []admission.Assessment
	rec = f.do(t, http.MethodGet, appPath+"/assessments", clerk, nil, &assessments)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, assessments, 1)

	var offer admission.Offer
	rec = f.do(t, http.MethodPost, appPath+"/offers", clerk, admission.NewOffer{
		ClassID:   cls.ID,
		FeeAmount: 1250000,
		ExpiresAt: core.Today().AddDays(7),
	}, &offer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, admission.OfferPending, offer.Status)

	rec = f.do(t, http.MethodPost, appPath+"/offers", clerk, admission.NewOffer{ClassID: cls.ID, ExpiresAt: core.Today().AddDays(7)}, nil)
	assert.NotEqual(t, http.StatusCreated, rec.Code, "a second pending offer")

	rec = f.do(t, http.MethodPost, "/api/admissions/offers/"+offer.ID+"/accept", clerk, nil, &offer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, admission.OfferAccepted, offer.Status)

	rec = f.do(t, http.MethodPost, "/api/admissions/offers/"+offer.ID+"/revoke", clerk, nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var stu student.Student
	rec = f.do(t, http.MethodPost, appPath+"/enroll", clerk, nil, &stu)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Aarav", stu.FirstName)
	assert.Equal(t, "Sharma", stu.LastName)
	assert.Equal(t, cls.ID, stu.ClassID)
	assert.Equal(t, student.RegistrationPrefix("GHS", core.Today().Year())+"0001", stu.RegistrationNo)

	rec = f.do(t, http.MethodGet, appPath, clerk, nil, &app)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, admission.AppEnrolled, app.Status)
	assert.Equal(t, stu.ID, app.StudentID)

	var stats admission.FunnelStats
	rec = f.do(t, http.MethodGet, "/api/admissions/stats", clerk, nil, &stats)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, stats.Leads[admission.LeadConverted])
	assert.Equal(t, 1, stats.Applications[admission.AppEnrolled])
	assert.Equal(t, 1, stats.Offers[admission.OfferAccepted])
	assert.Equal(t, float64(100), stats.ConversionRate)
}

func Test_admissionApi_queries(t *testing.T) {
	f := setup(t)
	sch := testutil.CreateSchool(t, f.schRepo, "Green Hills School", "GHS")
	other := testutil.CreateSchool(t, f.schRepo, "Riverside Academy", "RSA")
	clerk := f.token(t, f.createUser(t, sch.ID, "Clerk", "clerk", user.RoleStaffClerk))
	otherClerk := f.token(t, f.createUser(t, other.ID, "Other Clerk", "otherclerk", user.RoleStaffClerk))

	newLead := func(name, source string) admission.NewLead {
		return admission.NewLead{
			StudentName:   name,
			ParentName:    "Parent of " + name,
			ParentPhone:   "+919822222222",
			GradeApplying: "Grade 2",
			Source:        source,
		}
	}
	var first admission.Lead
	rec := f.do(t, http.MethodPost, "/api/admissions/leads", clerk, newLead("Ira Das", admission.SourceWebsite), &first)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/api/admissions/leads", clerk, newLead("Kabir Rao", admission.SourceReferral), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/api/admissions/leads", otherClerk, newLead("Zoya Khan", admission.SourceWebsite), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var leads []admission.Lead
	rec = f.do(t, http.MethodGet, "/api/admissions/leads", clerk, nil, &leads)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, leads, 2)

	rec = f.do(t, http.MethodGet, "/api/admissions/leads?source=website", clerk, nil, &leads)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, leads, 1)
	assert.Equal(t, first.ID, leads[0].ID)

	rec = f.do(t, http.MethodGet, "/api/admissions/leads?search=kabir", clerk, nil, &leads)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, leads, 1)
	assert.Equal(t, "Kabir Rao", leads[0].StudentName)

	runHTTPTests(t, f, []httpTest{
		{name: "malformed date", path: "/api/admissions/leads?created_from=yesterday", token: clerk, wantCode: http.StatusBadRequest},
		{name: "lead of another school", path: "/api/admissions/leads/" + first.ID, token: otherClerk, wantCode: http.StatusNotFound},
		{name: "delete", method: http.MethodDelete, path: "/api/admissions/leads/" + first.ID, token: clerk, wantCode: http.StatusNoContent},
		{name: "deleted", path: "/api/admissions/leads/" + first.ID, token: clerk, wantCode: http.StatusNotFound},
	})
}
