package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/attendance"
	"github.com/avsnarang/scholarise/core/user"
)

func (s *Server) registerAttendanceAPI(g *echo.Group) {
	ag := s.group(g, "/attendance", true)
	read := can(user.PermAttendanceRead, user.PermAttendanceMark)
	ag.POST("", s.markAttendance, can(user.PermAttendanceMark))
	ag.GET("", s.queryAttendance, read)
	ag.GET("/register", s.classRegister, read)
	ag.GET("/summary", s.attendanceDaySummary, read)
	ag.GET("/students/:id/summary", s.studentAttendanceSummary, read)
}

func (s *Server) markAttendance(ctx echo.Context) error {
	var data attendance.MarkClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkClass")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	records, err := s.svc.Attendance.MarkClass(ctx.Request().Context(), getSchoolID(ctx), getContextUser(ctx).ID, data)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return ctx.JSON(http.StatusOK, records)
}

func (s *Server) queryAttendance(ctx echo.Context) error {
	q := newQueryParams(ctx)
	filter := &attendance.QueryFilter{
		ClassID:   q.String("class_id"),
		StudentID: q.String("student_id"),
		Status:    q.String("status"),
		From:      q.Date("from"),
		To:        q.Date("to"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	records, err := s.svc.Attendance.Query(ctx.Request().Context(), getSchoolID(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	if records == nil {
		records = []attendance.Record{}
	}
	return ctx.JSON(http.StatusOK, records)
}

// classRegister returns every student of a class with their status for the day, marked or not.
func (s *Server) classRegister(ctx echo.Context) error {
	q := newQueryParams(ctx)
	classID, date := q.String("class_id"), q.Date("date")
	if err := q.Err(); err != nil {
		return err
	}
	if classID == "" {
		return core.NewFieldError("class_id", "this field is required")
	}
	if date.IsZero() {
		date = core.Today()
	}
	reg, err := s.svc.Attendance.ClassRegister(ctx.Request().Context(), getSchoolID(ctx), classID, date)
	if err != nil {
		return errors.Wrap(err, "getting class register")
	}
	return ctx.JSON(http.StatusOK, reg)
}

func (s *Server) attendanceDaySummary(ctx echo.Context) error {
	q := newQueryParams(ctx)
	date := q.Date("date")
	if err := q.Err(); err != nil {
		return err
	}
	if date.IsZero() {
		date = core.Today()
	}
	counts, err := s.svc.Attendance.DaySummary(ctx.Request().Context(), getSchoolID(ctx), date)
	if err != nil {
		return errors.Wrap(err, "summarizing attendance")
	}
	return ctx.JSON(http.StatusOK, counts)
}

func (s *Server) studentAttendanceSummary(ctx echo.Context) error {
	q := newQueryParams(ctx)
	from, to := q.Date("from"), q.Date("to")
	if err := q.Err(); err != nil {
		return err
	}
	sum, err := s.svc.Attendance.StudentSummary(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"), from, to)
	if err != nil {
		return errors.Wrap(err, "summarizing student attendance")
	}
	return ctx.JSON(http.StatusOK, sum)
}
