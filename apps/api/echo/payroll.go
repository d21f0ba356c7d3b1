package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core/payroll"
	"github.com/avsnarang/scholarise/core/user"
)

func (s *Server) registerPayrollAPI(g *echo.Group) {
	pg := s.group(g, "/payroll", true)
	pg.Use(can(user.PermPayrollManage))

	pg.POST("/structures", s.setSalaryStructure)
	pg.GET("/structures", s.querySalaryStructures)
	pg.GET("/structures/:staff_id", s.retrieveSalaryStructure)

	pg.POST("/generate", s.generatePayslips)
	pg.GET("/payslips", s.queryPayslips)
	pg.GET("/payslips/:id", s.retrievePayslip)
	pg.POST("/payslips/:id/pay", s.markPayslipPaid)
}

func (s *Server) setSalaryStructure(ctx echo.Context) error {
	var data payroll.SetStructure
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetStructure")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	st, err := s.svc.Payroll.SetStructure(ctx.Request().Context(), getSchoolID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "setting salary structure")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (s *Server) querySalaryStructures(ctx echo.Context) error {
	structures, err := s.svc.Payroll.QueryStructures(ctx.Request().Context(), getSchoolID(ctx))
	if err != nil {
		return errors.Wrap(err, "querying salary structures")
	}
	if structures == nil {
		structures = []payroll.Structure{}
	}
	return ctx.JSON(http.StatusOK, structures)
}

func (s *Server) retrieveSalaryStructure(ctx echo.Context) error {
	st, err := s.svc.Payroll.GetStructure(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("staff_id"))
	if err != nil {
		return errors.Wrap(err, "getting salary structure")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (s *Server) generatePayslips(ctx echo.Context) error {
	var data payroll.Period
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Period")
	}
	if err := s.validate.Struct(data); err != nil {
		return err
	}
	res, err := s.svc.Payroll.Generate(ctx.Request().Context(), getSchoolID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "generating payslips")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (s *Server) queryPayslips(ctx echo.Context) error {
	q := newQueryParams(ctx)
	filter := &payroll.QueryFilter{
		StaffID: q.String("staff_id"),
		Year:    q.Int("year"),
		Month:   q.Int("month"),
		Status:  q.String("status"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	slips, err := s.svc.Payroll.QueryPayslips(ctx.Request().Context(), getSchoolID(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying payslips")
	}
	if slips == nil {
		slips = []payroll.Payslip{}
	}
	return ctx.JSON(http.StatusOK, slips)
}

func (s *Server) retrievePayslip(ctx echo.Context) error {
	slip, err := s.svc.Payroll.GetPayslip(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting payslip")
	}
	return ctx.JSON(http.StatusOK, slip)
}

func (s *Server) markPayslipPaid(ctx echo.Context) error {
	slip, err := s.svc.Payroll.MarkPaid(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "marking payslip paid")
	}
	return ctx.JSON(http.StatusOK, slip)
}
