package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/staff"
	"github.com/avsnarang/scholarise/core/user"
)

func (s *Server) registerStaffAPI(g *echo.Group) {
	sg := s.group(g, "/staff", true)
	manage := can(user.PermStaffManage)
	sg.GET("/me", s.retrieveOwnStaff)
	sg.POST("", s.createStaff, manage)
	sg.POST("/accounts", s.createStaffWithLogin, manage)
	sg.GET("", s.queryStaff, manage)
	sg.GET("/:id", s.retrieveStaff, manage)
	sg.PUT("/:id", s.updateStaff, manage)
	sg.DELETE("/:id", s.destroyStaff, manage)
}

type StaffAccountResponse struct {
	Staff staff.Staff `json:"staff"`
	User  user.User   `json:"user"`
}

func (s *Server) createStaff(ctx echo.Context) error {
	var data staff.NewStaff
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStaff")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	stf, err := s.svc.Staff.Create(ctx.Request().Context(), getSchoolID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating staff")
	}
	return ctx.JSON(http.StatusCreated, stf)
}

// createStaffWithLogin creates a staff member (e.g. a clerk) along with their user account.
func (s *Server) createStaffWithLogin(ctx echo.Context) error {
	var data staff.NewStaffWithLogin
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStaffWithLogin")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	if user.MaxRolePriority(data.Roles) > user.MaxRolePriority(getContextUser(ctx).Roles) {
		return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errNoPermsToSetRoles})
	}
	stf, usr, err := s.svc.Staff.CreateWithLogin(ctx.Request().Context(), getSchoolID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating staff with login")
	}
	return ctx.JSON(http.StatusCreated, StaffAccountResponse{Staff: stf, User: usr})
}

func (s *Server) queryStaff(ctx echo.Context) error {
	q := newQueryParams(ctx)
	filter := &staff.QueryFilter{
		Search:     q.String("search"),
		Department: q.String("department"),
		IsActive:   q.Bool("is_active"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	members, err := s.svc.Staff.Query(ctx.Request().Context(), getSchoolID(ctx), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying staff")
	}
	if members == nil {
		members = []staff.Staff{}
	}
	return ctx.JSON(http.StatusOK, members)
}

func (s *Server) retrieveStaff(ctx echo.Context) error {
	stf, err := s.svc.Staff.Get(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting staff")
	}
	return ctx.JSON(http.StatusOK, stf)
}

func (s *Server) retrieveOwnStaff(ctx echo.Context) error {
	stf, err := s.svc.Staff.GetByUser(ctx.Request().Context(), getSchoolID(ctx), getContextUser(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "getting own staff profile")
	}
	return ctx.JSON(http.StatusOK, stf)
}

func (s *Server) updateStaff(ctx echo.Context) error {
	var data staff.UpdateStaff
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStaff")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	stf, err := s.svc.Staff.Update(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating staff")
	}
	return ctx.JSON(http.StatusOK, stf)
}

func (s *Server) destroyStaff(ctx echo.Context) error {
	if err := s.svc.Staff.Delete(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting staff")
	}
	return ctx.NoContent(http.StatusNoContent)
}
