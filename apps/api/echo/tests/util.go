package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"

	. "github.com/avsnarang/scholarise/apps/api/echo"
	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/admission"
	"github.com/avsnarang/scholarise/core/attendance"
	"github.com/avsnarang/scholarise/core/class"
	"github.com/avsnarang/scholarise/core/courtesy"
	"github.com/avsnarang/scholarise/core/dashboard"
	"github.com/avsnarang/scholarise/core/exam"
	"github.com/avsnarang/scholarise/core/leave"
	"github.com/avsnarang/scholarise/core/payroll"
	"github.com/avsnarang/scholarise/core/school"
	"github.com/avsnarang/scholarise/core/staff"
	"github.com/avsnarang/scholarise/core/student"
	"github.com/avsnarang/scholarise/core/user"
	"github.com/avsnarang/scholarise/core/whatsapp"
	"github.com/avsnarang/scholarise/services/email"
	"github.com/avsnarang/scholarise/services/ratelimit"
	"github.com/avsnarang/scholarise/services/whatsapp"
	sqlxrepos "github.com/avsnarang/scholarise/storage/database/sqlx"
	"github.com/avsnarang/scholarise/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type fixture struct {
	app  *Server
	conf *core.Config
	db   *sqlx.DB

	usrRepo   user.Repository
	schRepo   school.Repository
	classRepo class.Repository
	stuRepo   student.Repository
	staffRepo staff.Repository
	leaveRepo leave.Repository
}

type setupOption func(conf *core.Config)

func setup(t *testing.T, opts ...setupOption) fixture {
	conf := testutil.TestConfig()
	for _, opt := range opts {
		opt(conf)
	}

	// set up DB & repos
	db := testutil.PrepareDB(t)
	f := fixture{
		conf:      conf,
		db:        db,
		usrRepo:   sqlxrepos.NewUserRepository(db),
		schRepo:   sqlxrepos.NewSchoolRepository(db),
		classRepo: sqlxrepos.NewClassRepository(db),
		stuRepo:   sqlxrepos.NewStudentRepository(db),
		staffRepo: sqlxrepos.NewStaffRepository(db),
		leaveRepo: sqlxrepos.NewLeaveRepository(db),
	}

	// set up services
	logger := core.NopLogger()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewServiceMock(f.usrRepo, mailSvc, conf)
	classSvc := class.NewService(f.classRepo, usrSvc)
	stuSvc := student.NewService(db, f.stuRepo, f.schRepo, classSvc)
	admSvc := admission.NewService(db, sqlxrepos.NewAdmissionRepository(db), f.schRepo, classSvc, stuSvc, mailSvc, logger)
	attSvc := attendance.NewService(db, sqlxrepos.NewAttendanceRepository(db), f.stuRepo, classSvc)
	leaveSvc := leave.NewService(db, f.leaveRepo, f.staffRepo, conf)
	waSvc := whatsapp.NewService(db, sqlxrepos.NewWhatsAppRepository(db), f.stuRepo, wasvc.NewConsoleSender(logger), conf, logger)

	limiter, err := ratelimit.NewMemoryLimiter(conf.RateLimit.Limit, conf.RateLimit.Window)
	if err != nil {
		t.Fatalf("NewMemoryLimiter(): %v", err)
	}
	validate, translator := NewValidator()

	// set up server
	f.app = NewServer(conf, logger, validate, translator, limiter, Services{
		User:       usrSvc,
		School:     school.NewService(f.schRepo),
		Class:      classSvc,
		Student:    stuSvc,
		Staff:      staff.NewService(db, f.staffRepo, usrSvc),
		Admission:  admSvc,
		Attendance: attSvc,
		Exam:       exam.NewService(db, sqlxrepos.NewExamRepository(db), f.stuRepo, classSvc),
		Leave:      leaveSvc,
		Payroll:    payroll.NewService(db, sqlxrepos.NewPayrollRepository(db), f.staffRepo, f.leaveRepo, conf),
		Courtesy:   courtesy.NewService(sqlxrepos.NewCourtesyRepository(db), f.stuRepo),
		WhatsApp:   waSvc,
		Dashboard:  dashboard.NewService(sqlxrepos.NewDashboardCounter(db), admSvc, attSvc, leaveSvc, waSvc),
	})
	return f
}

// createUser creates an active user with the password "pwd".
func (f fixture) createUser(t *testing.T, schoolID, name, uname string, roles ...string) user.User {
	return testutil.CreateUser(t, f.usrRepo, schoolID, name, uname, uname+"@test.in", "pwd", roles, true)
}

func (f fixture) token(t *testing.T, usr user.User) string {
	return getToken(t, f.conf, usr)
}

// do serves a JSON request and decodes the response into out, when given.
func (f fixture) do(t *testing.T, method, path, token string, body interface{}, out interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var data []byte
	if body != nil {
		data = marchallObj(t, body)
	}
	req, rec := newAuthRequest(method, path, token, data)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	f.app.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decoding %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	claims := GetUserClaims(conf, usr)
	token, err := GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, f fixture, tests []httpTest) {
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			f.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func futureDate(days int) core.Date {
	return core.Today().AddDays(days)
}
