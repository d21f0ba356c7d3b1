package dig_container

import (
	"log"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/avsnarang/scholarise/apps/api/echo"
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
	emailsvc "github.com/avsnarang/scholarise/services/email"
	logsvc "github.com/avsnarang/scholarise/services/logger"
	"github.com/avsnarang/scholarise/services/ratelimit"
	wasvc "github.com/avsnarang/scholarise/services/whatsapp"
	"github.com/avsnarang/scholarise/storage/database"
	sqlxrepos "github.com/avsnarang/scholarise/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Cleanup collects the release functions of the resources opened by the container.
// They run in reverse order.
type Cleanup struct {
	mu  sync.Mutex
	fns []func()
}

func (c *Cleanup) add(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, fn)
}

func (c *Cleanup) Run() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.fns) - 1; i >= 0; i-- {
		c.fns[i]()
	}
	c.fns = nil
}

func newCleanup() *Cleanup { return new(Cleanup) }

func newRollbarLogger(conf *core.Config, cleanup *Cleanup) *logsvc.RollbarLogger {
	logger := logsvc.NewRollbarLogger(logsvc.NewZap(conf, "api"), conf)
	cleanup.add(logger.Sync)
	return logger
}

func newLogger(l *logsvc.RollbarLogger) core.Logger { return l }

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(logsvc.NewZap(conf, "db"), conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam, cleanup *Cleanup) (*sqlx.DB, core.DB, core.DBExecutor) {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal("setting up database", err)
	}
	cleanup.add(func() {
		if err := db.Close(); err != nil {
			loggerParam.Logger.Error("closing database", err)
		}
	})
	return db, db, db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newLimiter(conf *core.Config, logger core.Logger, cleanup *Cleanup) (ratelimit.Limiter, error) {
	limiter, release, err := ratelimit.New(conf, logger)
	if err != nil {
		return nil, err
	}
	cleanup.add(release)
	return limiter, nil
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newCleanup))
	must(c.Provide(newRollbarLogger))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(newLimiter))
	must(c.Provide(wasvc.NewSender))
	must(c.Provide(echoapi.NewValidator))

	// repositories
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewSchoolRepository, dig.As(new(school.Repository))))
	must(c.Provide(sqlxrepos.NewClassRepository, dig.As(new(class.Repository))))
	must(c.Provide(sqlxrepos.NewStudentRepository, dig.As(new(student.Repository))))
	must(c.Provide(sqlxrepos.NewStaffRepository, dig.As(new(staff.Repository))))
	must(c.Provide(sqlxrepos.NewAdmissionRepository, dig.As(new(admission.Repository))))
	must(c.Provide(sqlxrepos.NewAttendanceRepository, dig.As(new(attendance.Repository))))
	must(c.Provide(sqlxrepos.NewExamRepository, dig.As(new(exam.Repository))))
	must(c.Provide(sqlxrepos.NewLeaveRepository, dig.As(new(leave.Repository))))
	must(c.Provide(sqlxrepos.NewPayrollRepository, dig.As(new(payroll.Repository))))
	must(c.Provide(sqlxrepos.NewCourtesyRepository, dig.As(new(courtesy.Repository))))
	must(c.Provide(sqlxrepos.NewWhatsAppRepository, dig.As(new(whatsapp.Repository))))
	must(c.Provide(sqlxrepos.NewDashboardCounter, dig.As(new(dashboard.Counter))))

	// services
	must(c.Provide(user.NewService))
	must(c.Provide(school.NewService))
	must(c.Provide(class.NewService))
	must(c.Provide(student.NewService))
	must(c.Provide(staff.NewService))
	must(c.Provide(admission.NewService))
	must(c.Provide(attendance.NewService))
	must(c.Provide(exam.NewService))
	must(c.Provide(leave.NewService))
	must(c.Provide(payroll.NewService))
	must(c.Provide(courtesy.NewService))
	must(c.Provide(whatsapp.NewService))
	must(c.Provide(dashboard.NewService))

	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
