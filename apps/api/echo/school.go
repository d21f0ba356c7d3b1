package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core/school"
	"github.com/avsnarang/scholarise/core/user"
)

func (s *Server) registerSchoolAPI(g *echo.Group) {
	sg := s.group(g, "/schools", false)
	sg.Use(can(user.PermSchoolsManage))
	sg.POST("", s.createSchool)
	sg.GET("", s.querySchools)
	sg.GET("/:id", s.retrieveSchool)
	sg.PUT("/:id", s.updateSchool)
	sg.DELETE("/:id", s.destroySchool)
}

func (s *Server) createSchool(ctx echo.Context) error {
	var data school.NewSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchool")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	sch, err := s.svc.School.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating school")
	}
	return ctx.JSON(http.StatusCreated, sch)
}

func (s *Server) querySchools(ctx echo.Context) error {
	q := newQueryParams(ctx)
	filter := &school.QueryFilter{Search: q.String("search"), IsActive: q.Bool("is_active")}
	if err := q.Err(); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	schools, err := s.svc.School.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying schools")
	}
	if schools == nil {
		schools = []school.School{}
	}
	return ctx.JSON(http.StatusOK, schools)
}

func (s *Server) retrieveSchool(ctx echo.Context) error {
	sch, err := s.svc.School.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting school")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (s *Server) updateSchool(ctx echo.Context) error {
	sch, err := s.svc.School.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting school")
	}
	var data school.UpdateSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSchool")
	}
	if err := data.Validate(sch, s.validate); err != nil {
		return err
	}
	sch, err = s.svc.School.Update(ctx.Request().Context(), sch.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating school")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (s *Server) destroySchool(ctx echo.Context) error {
	if err := s.svc.School.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting school")
	}
	return ctx.NoContent(http.StatusNoContent)
}
