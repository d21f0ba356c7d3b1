package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core/courtesy"
	"github.com/avsnarang/scholarise/core/user"
)

func (s *Server) registerCourtesyAPI(g *echo.Group) {
	cg := s.group(g, "/courtesy-calls", true)
	cg.Use(can(user.PermCourtesyManage))
	cg.POST("", s.logCall)
	cg.GET("", s.queryCalls)
	cg.GET("/:id", s.retrieveCall)
	cg.PUT("/:id", s.updateCall)
	cg.POST("/:id/close", s.closeCall)
	cg.DELETE("/:id", s.destroyCall)
}

// callerScope restricts calls to the ones the user logged, unless they manage users.
func callerScope(ctx echo.Context) string {
	if userCan(ctx, user.PermUsersManage) {
		return ""
	}
	return getContextUser(ctx).ID
}

func (s *Server) logCall(ctx echo.Context) error {
	var data courtesy.NewCall
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCall")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	call, err := s.svc.Courtesy.Log(ctx.Request().Context(), getSchoolID(ctx), getContextUser(ctx).ID, data)
	if err != nil {
		return errors.Wrap(err, "logging courtesy call")
	}
	return ctx.JSON(http.StatusCreated, call)
}

func (s *Server) queryCalls(ctx echo.Context) error {
	q := newQueryParams(ctx)
	filter := &courtesy.QueryFilter{
		StudentID: q.String("student_id"),
		CalledBy:  q.String("called_by"),
		Purpose:   q.String("purpose"),
		Status:    q.String("status"),
		From:      q.Date("from"),
		To:        q.Date("to"),
	}
	if pending := q.Bool("pending_follow_up"); pending != nil {
		filter.PendingFollowUp = *pending
	}
	if err := q.Err(); err != nil {
		return err
	}
	calls, err := s.svc.Courtesy.Query(ctx.Request().Context(), getSchoolID(ctx), callerScope(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying courtesy calls")
	}
	if calls == nil {
		calls = []courtesy.Call{}
	}
	return ctx.JSON(http.StatusOK, calls)
}

func (s *Server) retrieveCall(ctx echo.Context) error {
	call, err := s.svc.Courtesy.Get(ctx.Request().Context(), getSchoolID(ctx), callerScope(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting courtesy call")
	}
	return ctx.JSON(http.StatusOK, call)
}

func (s *Server) updateCall(ctx echo.Context) error {
	call, err := s.svc.Courtesy.Get(ctx.Request().Context(), getSchoolID(ctx), callerScope(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting courtesy call")
	}
	var data courtesy.UpdateCall
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCall")
	}
	if err = data.Validate(call, s.validate); err != nil {
		return err
	}
	call, err = s.svc.Courtesy.Update(ctx.Request().Context(), getSchoolID(ctx), callerScope(ctx), call.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating courtesy call")
	}
	return ctx.JSON(http.StatusOK, call)
}

func (s *Server) closeCall(ctx echo.Context) error {
	call, err := s.svc.Courtesy.Close(ctx.Request().Context(), getSchoolID(ctx), callerScope(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "closing courtesy call")
	}
	return ctx.JSON(http.StatusOK, call)
}

func (s *Server) destroyCall(ctx echo.Context) error {
	if err := s.svc.Courtesy.Delete(ctx.Request().Context(), getSchoolID(ctx), callerScope(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting courtesy call")
	}
	return ctx.NoContent(http.StatusNoContent)
}
