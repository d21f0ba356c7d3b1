package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core/class"
	"github.com/avsnarang/scholarise/core/user"
)

func (s *Server) registerClassAPI(g *echo.Group) {
	cg := s.group(g, "/classes", true)
	manage := can(user.PermClassesManage)
	cg.POST("", s.createClass, manage)
	cg.GET("", s.queryClasses, can(user.PermClassesManage, user.PermStudentsRead))
	cg.GET("/:id", s.retrieveClass, can(user.PermClassesManage, user.PermStudentsRead))
	cg.PUT("/:id", s.updateClass, manage)
	cg.DELETE("/:id", s.destroyClass, manage)
}

func (s *Server) createClass(ctx echo.Context) error {
	var data class.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	cls, err := s.svc.Class.Create(ctx.Request().Context(), getSchoolID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

func (s *Server) queryClasses(ctx echo.Context) error {
	q := newQueryParams(ctx)
	filter := &class.QueryFilter{Search: q.String("search"), TeacherID: q.String("teacher_id")}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	classes, err := s.svc.Class.Query(ctx.Request().Context(), getSchoolID(ctx), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []class.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (s *Server) retrieveClass(ctx echo.Context) error {
	cls, err := s.svc.Class.Get(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (s *Server) updateClass(ctx echo.Context) error {
	var data class.UpdateClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	cls, err := s.svc.Class.Update(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (s *Server) destroyClass(ctx echo.Context) error {
	if err := s.svc.Class.Delete(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}
