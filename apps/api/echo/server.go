package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"go.uber.org/dig"

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
	"github.com/avsnarang/scholarise/services/ratelimit"
)

// Services holds the domain services the API is built on.
type Services struct {
	dig.In

	User       user.Service
	School     school.Service
	Class      class.Service
	Student    student.Service
	Staff      staff.Service
	Admission  admission.Service
	Attendance attendance.Service
	Exam       exam.Service
	Leave      leave.Service
	Payroll    payroll.Service
	Courtesy   courtesy.Service
	WhatsApp   whatsapp.Service
	Dashboard  dashboard.Service
}

type Server struct {
	conf       *core.Config
	logger     core.Logger
	validate   *validator.Validate
	translator ut.Translator
	limiter    ratelimit.Limiter
	svc        Services
	jwtConfig  middleware.JWTConfig

	app      *echo.Echo
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(
	conf *core.Config,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
	limiter ratelimit.Limiter,
	svc Services,
) *Server {
	s := &Server{
		conf:       conf,
		logger:     logger,
		validate:   validate,
		translator: translator,
		limiter:    limiter,
		svc:        svc,
		jwtConfig:  newJWTConfig(conf),
		app:        echo.New(),
		errors:     make(chan error, 1),
		shutdown:   make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.Server.ReadTimeout = s.conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = s.conf.Server.WriteTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.conf.Debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.logger, s.translator, s.SignalShutdown)
	s.app.Debug = s.conf.Debug && !s.conf.TestMode

	s.app.GET("/", home)

	g := s.app.Group("/api")
	s.registerUserAPI(g)
	s.registerSchoolAPI(g)
	s.registerClassAPI(g)
	s.registerStudentAPI(g)
	s.registerStaffAPI(g)
	s.registerAdmissionAPI(g)
	s.registerAttendanceAPI(g)
	s.registerExamAPI(g)
	s.registerLeaveAPI(g)
	s.registerPayrollAPI(g)
	s.registerCourtesyAPI(g)
	s.registerWhatsAppAPI(g)
	s.registerDashboardAPI(g)
}

// group returns an authenticated group; with needSchool, requests must resolve to a school.
func (s *Server) group(g *echo.Group, prefix string, needSchool bool) *echo.Group {
	mws := []echo.MiddlewareFunc{middleware.JWTWithConfig(s.jwtConfig), s.contextMiddleware}
	if needSchool {
		mws = append(mws, requireSchool)
	}
	return g.Group(prefix, mws...)
}

// Start blocks until the server stops; failures are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// SignalShutdown asks the owner of the server to shut it down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Scholarise API!")
}
