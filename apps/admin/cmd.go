package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/admission"
	"github.com/avsnarang/scholarise/core/class"
	"github.com/avsnarang/scholarise/core/leave"
	"github.com/avsnarang/scholarise/core/payroll"
	"github.com/avsnarang/scholarise/core/school"
	"github.com/avsnarang/scholarise/core/student"
	"github.com/avsnarang/scholarise/core/user"
	emailsvc "github.com/avsnarang/scholarise/services/email"
	sqlxrepos "github.com/avsnarang/scholarise/storage/database/sqlx"
)

var readPasswordFunc = term.ReadPassword // mockable

type commandLine struct {
	conf     *core.Config
	db       *sqlx.DB
	logger   core.Logger
	validate *validator.Validate

	usrRepo    user.Repository
	usrSvc     user.Service
	schSvc     school.Service
	leaveSvc   leave.Service
	payrollSvc payroll.Service
	admSvc     admission.Service
}

func newCommandLine(conf *core.Config, db *sqlx.DB, logger core.Logger) *commandLine {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	school.InitValidators(validate, translator)

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	usrRepo := sqlxrepos.NewUserRepository(db)
	schRepo := sqlxrepos.NewSchoolRepository(db)
	staffRepo := sqlxrepos.NewStaffRepository(db)
	leaveRepo := sqlxrepos.NewLeaveRepository(db)

	usrSvc := user.NewService(usrRepo, mailSvc, conf, logger)
	classSvc := class.NewService(sqlxrepos.NewClassRepository(db), usrSvc)
	stuSvc := student.NewService(db, sqlxrepos.NewStudentRepository(db), schRepo, classSvc)

	return &commandLine{
		conf:       conf,
		db:         db,
		logger:     logger,
		validate:   validate,
		usrRepo:    usrRepo,
		usrSvc:     usrSvc,
		schSvc:     school.NewService(schRepo),
		leaveSvc:   leave.NewService(db, leaveRepo, staffRepo, conf),
		payrollSvc: payroll.NewService(db, sqlxrepos.NewPayrollRepository(db), staffRepo, leaveRepo, conf),
		admSvc:     admission.NewService(db, sqlxrepos.NewAdmissionRepository(db), schRepo, classSvc, stuSvc, mailSvc, logger),
	}
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "admin",
		Short:        "Scholarise administration commands",
		SilenceUsage: true,
	}
	root.AddCommand(
		cli.migrateCmd(),
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.addSchoolCmd(),
		cli.leaveCmd(),
		cli.payrollCmd(),
		cli.admissionsCmd(),
	)
	return root
}

// promptPassword reads a password from the terminal without echoing it.
func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errEmptyPassword
	}
	return string(pwd), nil
}

// schoolByCode resolves the --school flag.
func (cli *commandLine) schoolByCode(cmd *cobra.Command, code string) (school.School, error) {
	code = strings.ToUpper(core.CleanString(code))
	if code == "" {
		return school.School{}, errSchoolRequired
	}
	return cli.schSvc.GetByCode(cmd.Context(), code)
}
