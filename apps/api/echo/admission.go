package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core/admission"
	"github.com/avsnarang/scholarise/core/user"
)

func (s *Server) registerAdmissionAPI(g *echo.Group) {
	ag := s.group(g, "/admissions", true)
	ag.Use(can(user.PermAdmissionsManage))

	ag.GET("/stats", s.admissionStats)

	ag.POST("/leads", s.createLead)
	ag.GET("/leads", s.queryLeads)
	ag.GET("/leads/:id", s.retrieveLead)
	ag.PUT("/leads/:id", s.updateLead)
	ag.DELETE("/leads/:id", s.destroyLead)
	ag.POST("/leads/:id/status", s.transitionLead)
	ag.POST("/leads/:id/application", s.createApplicationFromLead)

	ag.POST("/applications", s.createApplication)
	ag.GET("/applications", s.queryApplications)
	ag.GET("/applications/:id", s.retrieveApplication)
	ag.POST("/applications/:id/status", s.transitionApplication)
	ag.POST("/applications/:id/assessments", s.scheduleAssessment)
	ag.GET("/applications/:id/assessments", s.queryAssessments)
	ag.POST("/applications/:id/offers", s.createOffer)
	ag.GET("/applications/:id/offers", s.queryOffers)
	ag.POST("/applications/:id/enroll", s.enrollApplication)

	ag.POST("/assessments/:id/result", s.recordAssessmentResult)

	ag.POST("/offers/:id/accept", s.acceptOffer)
	ag.POST("/offers/:id/decline", s.declineOffer)
	ag.POST("/offers/:id/revoke", s.revokeOffer)
}

// Leads

func (s *Server) createLead(ctx echo.Context) error {
	var data admission.NewLead
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLead")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	lead, err := s.svc.Admission.CreateLead(ctx.Request().Context(), getSchoolID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating lead")
	}
	return ctx.JSON(http.StatusCreated, lead)
}

func (s *Server) queryLeads(ctx echo.Context) error {
	q := newQueryParams(ctx)
	filter := &admission.LeadFilter{
		Search:      q.String("search"),
		Status:      q.String("status"),
		Source:      q.String("source"),
		AssignedTo:  q.String("assigned_to"),
		CreatedFrom: q.Time("created_from"),
		CreatedTo:   q.Time("created_to"),
	}
	if due := q.Time("follow_up_due"); !due.IsZero() {
		filter.FollowUpDue = &due
	}
	if err := q.Err(); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	leads, err := s.svc.Admission.QueryLeads(ctx.Request().Context(), getSchoolID(ctx), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying leads")
	}
	if leads == nil {
		leads = []admission.Lead{}
	}
	return ctx.JSON(http.StatusOK, leads)
}

func (s *Server) retrieveLead(ctx echo.Context) error {
	lead, err := s.svc.Admission.GetLead(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting lead")
	}
	return ctx.JSON(http.StatusOK, lead)
}

func (s *Server) updateLead(ctx echo.Context) error {
	var data admission.UpdateLead
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLead")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	lead, err := s.svc.Admission.UpdateLead(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating lead")
	}
	return ctx.JSON(http.StatusOK, lead)
}

func (s *Server) destroyLead(ctx echo.Context) error {
	if err := s.svc.Admission.DeleteLead(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting lead")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *Server) transitionLead(ctx echo.Context) error {
	var data admission.StatusChange
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusChange")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	lead, err := s.svc.Admission.TransitionLead(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "moving lead")
	}
	return ctx.JSON(http.StatusOK, lead)
}

// createApplicationFromLead prefills the application with the lead's contact details.
func (s *Server) createApplicationFromLead(ctx echo.Context) error {
	lead, err := s.svc.Admission.GetLead(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting lead")
	}
	var data admission.NewApplication
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewApplication")
	}
	if err = data.Validate(s.validate, lead); err != nil {
		return err
	}
	app, err := s.svc.Admission.CreateApplicationFromLead(ctx.Request().Context(), getSchoolID(ctx), lead.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating application from lead")
	}
	return ctx.JSON(http.StatusCreated, app)
}

// Applications

func (s *Server) createApplication(ctx echo.Context) error {
	var data admission.NewApplication
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewApplication")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	app, err := s.svc.Admission.CreateApplication(ctx.Request().Context(), getSchoolID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating application")
	}
	return ctx.JSON(http.StatusCreated, app)
}

func (s *Server) queryApplications(ctx echo.Context) error {
	q := newQueryParams(ctx)
	filter := &admission.ApplicationFilter{
		Search:       q.String("search"),
		Status:       q.String("status"),
		AcademicYear: q.String("academic_year"),
		LeadID:       q.String("lead_id"),
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	apps, err := s.svc.Admission.QueryApplications(ctx.Request().Context(), getSchoolID(ctx), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying applications")
	}
	if apps == nil {
		apps = []admission.Application{}
	}
	return ctx.JSON(http.StatusOK, apps)
}

func (s *Server) retrieveApplication(ctx echo.Context) error {
	app, err := s.svc.Admission.GetApplication(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting application")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (s *Server) transitionApplication(ctx echo.Context) error {
	var data admission.StatusChange
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusChange")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	app, err := s.svc.Admission.TransitionApplication(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "moving application")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (s *Server) enrollApplication(ctx echo.Context) error {
	stu, err := s.svc.Admission.Enroll(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "enrolling applicant")
	}
	return ctx.JSON(http.StatusCreated, stu)
}

// Assessments

func (s *Server) scheduleAssessment(ctx echo.Context) error {
	var data admission.NewAssessment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssessment")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	a, err := s.svc.Admission.ScheduleAssessment(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "scheduling assessment")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (s *Server) queryAssessments(ctx echo.Context) error {
	assessments, err := s.svc.Admission.QueryAssessments(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying assessments")
	}
	if assessments == nil {
		assessments = []admission.Assessment{}
	}
	return ctx.JSON(http.StatusOK, assessments)
}

func (s *Server) recordAssessmentResult(ctx echo.Context) error {
	var data admission.AssessmentResult
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssessmentResult")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	a, err := s.svc.Admission.RecordAssessmentResult(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "recording assessment result")
	}
	return ctx.JSON(http.StatusOK, a)
}

// Offers

func (s *Server) createOffer(ctx echo.Context) error {
	var data admission.NewOffer
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewOffer")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	offer, err := s.svc.Admission.CreateOffer(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating offer")
	}
	return ctx.JSON(http.StatusCreated, offer)
}

func (s *Server) queryOffers(ctx echo.Context) error {
	offers, err := s.svc.Admission.QueryOffers(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying offers")
	}
	if offers == nil {
		offers = []admission.Offer{}
	}
	return ctx.JSON(http.StatusOK, offers)
}

func (s *Server) acceptOffer(ctx echo.Context) error {
	offer, err := s.svc.Admission.AcceptOffer(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "accepting offer")
	}
	return ctx.JSON(http.StatusOK, offer)
}

func (s *Server) declineOffer(ctx echo.Context) error {
	offer, err := s.svc.Admission.DeclineOffer(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "declining offer")
	}
	return ctx.JSON(http.StatusOK, offer)
}

func (s *Server) revokeOffer(ctx echo.Context) error {
	offer, err := s.svc.Admission.RevokeOffer(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "revoking offer")
	}
	return ctx.JSON(http.StatusOK, offer)
}

func (s *Server) admissionStats(ctx echo.Context) error {
	stats, err := s.svc.Admission.Stats(ctx.Request().Context(), getSchoolID(ctx))
	if err != nil {
		return errors.Wrap(err, "computing admission stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}
