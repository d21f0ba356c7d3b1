package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core/student"
	"github.com/avsnarang/scholarise/core/user"
)

func (s *Server) registerStudentAPI(g *echo.Group) {
	sg := s.group(g, "/students", true)
	read := can(user.PermStudentsRead, user.PermStudentsManage)
	manage := can(user.PermStudentsManage)
	sg.POST("", s.createStudent, manage)
	sg.GET("", s.queryStudents, read)
	sg.DELETE("", s.destroyStudents, manage)
	sg.GET("/:id", s.retrieveStudent, read)
	sg.PUT("/:id", s.updateStudent, manage)
	sg.DELETE("/:id", s.destroyStudent, manage)
}

func (s *Server) createStudent(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	stu, err := s.svc.Student.Create(ctx.Request().Context(), getSchoolID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, stu)
}

func (s *Server) queryStudents(ctx echo.Context) error {
	q := newQueryParams(ctx)
	filter := &student.QueryFilter{
		Search:   q.String("search"),
		ClassID:  q.String("class_id"),
		IsActive: q.Bool("is_active"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := s.svc.Student.Query(ctx.Request().Context(), getSchoolID(ctx), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (s *Server) retrieveStudent(ctx echo.Context) error {
	stu, err := s.svc.Student.Get(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	return ctx.JSON(http.StatusOK, stu)
}

func (s *Server) updateStudent(ctx echo.Context) error {
	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	stu, err := s.svc.Student.Update(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, stu)
}

func (s *Server) destroyStudent(ctx echo.Context) error {
	if _, err := s.svc.Student.Get(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "getting student")
	}
	if err := s.svc.Student.Delete(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *Server) destroyStudents(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if err := s.svc.Student.Delete(ctx.Request().Context(), getSchoolID(ctx), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting students")
	}
	return ctx.NoContent(http.StatusNoContent)
}
