package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avsnarang/scholarise/core/school"
	"github.com/avsnarang/scholarise/core/student"
	"github.com/avsnarang/scholarise/core/user"
	"github.com/avsnarang/scholarise/tests"
)

func Test_schoolApi(t *testing.T) {
	f := setup(t)
	platform := f.token(t, f.createUser(t, "", "Platform", "platform", user.RolePlatform))

	var green school.School
	rec := f.do(t, http.MethodPost, "/api/schools", platform, school.NewSchool{Name: " Green Hills School ", Code: "ghs", Phone: "+91 98000 00000"}, &green)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Green Hills School", green.Name)
	assert.Equal(t, "GHS", green.Code)
	assert.Equal(t, "+919800000000", green.Phone)
	assert.True(t, green.IsActive)

	admin := f.token(t, f.createUser(t, green.ID, "Admin", "admin", user.RoleAdmin))

	runHTTPTests(t, f, []httpTest{
		{name: "no token", path: "/api/schools", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "school admins cannot manage schools", path: "/api/schools", token: admin, wantCode: http.StatusForbidden},
		{
			name: "code taken", method: http.MethodPost, path: "/api/schools", token: platform,
			body:     marchallObj(t, school.NewSchool{Name: "Other", Code: "GHS"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"code": school.ErrCodeExists.Error()}),
		},
		{
			name: "bad code", method: http.MethodPost, path: "/api/schools", token: platform,
			body:     marchallObj(t, school.NewSchool{Name: "Other", Code: "G-1"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"code": "code must be 2 to 8 uppercase letters or digits"}),
		},
		{name: "unknown", path: "/api/schools/5a0f7f5e-7d8e-4cd1-8e6c-8f1f1b3b2c11", token: platform, wantCode: http.StatusNotFound},
		{name: "in use", method: http.MethodDelete, path: "/api/schools/" + green.ID, token: platform, wantCode: http.StatusBadRequest},
	})

	t.Run("update and query", func(t *testing.T) {
		inactive := false
		var got school.School
		rec := f.do(t, http.MethodPut, "/api/schools/"+green.ID, platform, school.UpdateSchool{Address: "12 Mall Road", IsActive: &inactive}, &got)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "Green Hills School", got.Name)
		assert.Equal(t, "12 Mall Road", got.Address)
		assert.False(t, got.IsActive)

		testutil.CreateSchool(t, f.schRepo, "Riverside Academy", "RSA")
		var schools []school.School
		rec = f.do(t, http.MethodGet, "/api/schools?is_active=true", platform, nil, &schools)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Len(t, schools, 1)
		assert.Equal(t, "RSA", schools[0].Code)

		rec = f.do(t, http.MethodGet, "/api/schools?search=green", platform, nil, &schools)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Len(t, schools, 1)
		assert.Equal(t, green.ID, schools[0].ID)
	})

	t.Run("delete", func(t *testing.T) {
		var empty school.School
		rec := f.do(t, http.MethodPost, "/api/schools", platform, school.NewSchool{Name: "Empty", Code: "EMP"}, &empty)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		rec = f.do(t, http.MethodDelete, "/api/schools/"+empty.ID, platform, nil, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = f.do(t, http.MethodGet, "/api/schools/"+empty.ID, platform, nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_tenancy(t *testing.T) {
	f := setup(t)

	green := testutil.CreateSchool(t, f.schRepo, "Green Hills School", "GHS")
	river := testutil.CreateSchool(t, f.schRepo, "Riverside Academy", "RSA")
	greenCls := testutil.CreateClass(t, f.classRepo, green.ID, "Grade 1", "A", 0)
	riverCls := testutil.CreateClass(t, f.classRepo, river.ID, "Grade 1", "A", 0)
	anika := testutil.CreateStudent(t, f.stuRepo, green.ID, greenCls.ID, "GHS260001", "Anika", "Bose")
	kabir := testutil.CreateStudent(t, f.stuRepo, river.ID, riverCls.ID, "RSA260001", "Kabir", "Das")

	admin := f.token(t, f.createUser(t, green.ID, "Admin", "admin", user.RoleAdmin))
	platform := f.token(t, f.createUser(t, "", "Platform", "platform", user.RolePlatform))

	runHTTPTests(t, f, []httpTest{
		{name: "own student", path: "/api/students/" + anika.ID, token: admin},
		{name: "student of another school", path: "/api/students/" + kabir.ID, token: admin, wantCode: http.StatusNotFound},
		{name: "class of another school", path: "/api/classes/" + riverCls.ID, token: admin, wantCode: http.StatusNotFound},
		{
			name: "update across schools", method: http.MethodPut, path: "/api/students/" + kabir.ID, token: admin,
			body: marchallObj(t, map[string]string{"first_name": "Hacked"}), wantCode: http.StatusNotFound,
		},
		{name: "delete across schools", method: http.MethodDelete, path: "/api/students/" + kabir.ID, token: admin, wantCode: http.StatusNotFound},
		{
			name: "platform admin without a school", path: "/api/students", token: platform,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "select a school with the X-School-ID header"}),
		},
	})

	t.Run("listing only shows own school", func(t *testing.T) {
		var students []student.Student
		rec := f.do(t, http.MethodGet, "/api/students", admin, nil, &students)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Len(t, students, 1)
		assert.Equal(t, anika.ID, students[0].ID)
	})

	t.Run("platform admin selects a school", func(t *testing.T) {
		var students []student.Student
		rec := f.do(t, http.MethodGet, "/api/students", platform, nil, &students, "X-School-ID", river.ID)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Len(t, students, 1)
		assert.Equal(t, kabir.ID, students[0].ID)
	})

	t.Run("school admins cannot switch schools", func(t *testing.T) {
		var students []student.Student
		rec := f.do(t, http.MethodGet, "/api/students", admin, nil, &students, "X-School-ID", river.ID)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Len(t, students, 1)
		assert.Equal(t, anika.ID, students[0].ID)
	})

	t.Run("a deleted student is gone", func(t *testing.T) {
		rec := f.do(t, http.MethodDelete, "/api/students/"+anika.ID, admin, nil, nil)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		rec = f.do(t, http.MethodGet, "/api/students/"+anika.ID, admin, nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
