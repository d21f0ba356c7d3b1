package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core/exam"
	"github.com/avsnarang/scholarise/core/user"
)

func (s *Server) registerExamAPI(g *echo.Group) {
	eg := s.group(g, "/exams", true)
	read := can(user.PermExamsRead, user.PermExamsManage)
	manage := can(user.PermExamsManage)

	eg.POST("", s.createExam, manage)
	eg.GET("", s.queryExams, read)
	eg.GET("/:id", s.retrieveExam, read)
	eg.PUT("/:id", s.updateExam, manage)
	eg.DELETE("/:id", s.destroyExam, manage)

	eg.POST("/:id/subjects", s.addExamSubject, manage)
	eg.GET("/:id/subjects", s.queryExamSubjects, read)
	eg.POST("/:id/marks", s.enterMarks, manage)
	eg.GET("/:id/marks", s.queryMarks, manage)
	eg.POST("/:id/publish", s.publishExam, manage)
	eg.GET("/:id/results", s.examResults, read)
}

func (s *Server) createExam(ctx echo.Context) error {
	var data exam.NewExam
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewExam")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	ex, err := s.svc.Exam.Create(ctx.Request().Context(), getSchoolID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating exam")
	}
	return ctx.JSON(http.StatusCreated, ex)
}

func (s *Server) queryExams(ctx echo.Context) error {
	q := newQueryParams(ctx)
	filter := &exam.QueryFilter{
		ClassID:      q.String("class_id"),
		AcademicYear: q.String("academic_year"),
		Status:       q.String("status"),
	}
	if !userCan(ctx, user.PermExamsManage) {
		filter.Status = exam.StatusPublished
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	exams, err := s.svc.Exam.Query(ctx.Request().Context(), getSchoolID(ctx), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying exams")
	}
	if exams == nil {
		exams = []exam.Exam{}
	}
	return ctx.JSON(http.StatusOK, exams)
}

func (s *Server) retrieveExam(ctx echo.Context) error {
	ex, err := s.svc.Exam.Get(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting exam")
	}
	if !ex.IsPublished() && !userCan(ctx, user.PermExamsManage) {
		return exam.ErrNotFound
	}
	return ctx.JSON(http.StatusOK, ex)
}

func (s *Server) updateExam(ctx echo.Context) error {
	ex, err := s.svc.Exam.Get(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting exam")
	}
	var data exam.UpdateExam
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateExam")
	}
	if err = data.Validate(ex, s.validate); err != nil {
		return err
	}
	ex, err = s.svc.Exam.Update(ctx.Request().Context(), getSchoolID(ctx), ex.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating exam")
	}
	return ctx.JSON(http.StatusOK, ex)
}

func (s *Server) destroyExam(ctx echo.Context) error {
	if err := s.svc.Exam.Delete(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting exam")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *Server) addExamSubject(ctx echo.Context) error {
	ex, err := s.svc.Exam.Get(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting exam")
	}
	var data exam.NewSubject
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	if err = data.Validate(ex, s.validate); err != nil {
		return err
	}
	sub, err := s.svc.Exam.AddSubject(ctx.Request().Context(), getSchoolID(ctx), ex.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding exam subject")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (s *Server) queryExamSubjects(ctx echo.Context) error {
	subjects, err := s.svc.Exam.QuerySubjects(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying exam subjects")
	}
	if subjects == nil {
		subjects = []exam.Subject{}
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (s *Server) enterMarks(ctx echo.Context) error {
	var data exam.EnterMarks
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnterMarks")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	marks, err := s.svc.Exam.EnterMarks(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"), getContextUser(ctx).ID, data)
	if err != nil {
		return errors.Wrap(err, "entering marks")
	}
	return ctx.JSON(http.StatusOK, marks)
}

func (s *Server) queryMarks(ctx echo.Context) error {
	q := newQueryParams(ctx)
	marks, err := s.svc.Exam.QueryMarks(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"), q.String("student_id"))
	if err != nil {
		return errors.Wrap(err, "querying marks")
	}
	if marks == nil {
		marks = []exam.Mark{}
	}
	return ctx.JSON(http.StatusOK, marks)
}

func (s *Server) publishExam(ctx echo.Context) error {
	ex, err := s.svc.Exam.Publish(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "publishing exam")
	}
	return ctx.JSON(http.StatusOK, ex)
}

func (s *Server) examResults(ctx echo.Context) error {
	publishedOnly := !userCan(ctx, user.PermExamsManage)
	res, err := s.svc.Exam.Results(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"), publishedOnly)
	if err != nil {
		return errors.Wrap(err, "computing exam results")
	}
	return ctx.JSON(http.StatusOK, res)
}
