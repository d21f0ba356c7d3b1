package admission

import (
	"context"
	"fmt"
	"math"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/class"
	"github.com/avsnarang/scholarise/core/school"
	"github.com/avsnarang/scholarise/core/student"
)

// application numbers: APP-<SCHOOLCODE>-<YYYY>-<seq>, e.g. APP-GHS-2026-00042
const applicationSeqWidth = 5

var (
	// errors
	ErrLeadNotFound        = core.NewNotFoundError("lead")
	ErrApplicationNotFound = core.NewNotFoundError("application")
	ErrAssessmentNotFound  = core.NewNotFoundError("assessment")
	ErrOfferNotFound       = core.NewNotFoundError("offer")

	ErrLeadConverted     = errors.New("a converted lead cannot be changed")
	ErrStatusNotSettable = errors.New("this status cannot be set directly")
	ErrScoreTooHigh      = errors.New("score cannot exceed the maximum score")
	ErrAssessmentDone    = errors.New("the result of this assessment is already recorded")
	ErrPendingOffer      = errors.New("the application already has a pending offer")
	ErrOfferExpired      = errors.New("the offer has expired")
	ErrNoAcceptedOffer   = errors.New("the application has no accepted offer")
	ErrIncompleteName    = errors.New("the student's last name is missing")
)

type (
	Repository interface {
		CreateLead(ctx context.Context, lead Lead, exec ...core.DBExecutor) (Lead, error)
		QueryLeads(ctx context.Context, schoolID string, filter *LeadFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Lead, error)
		GetLead(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Lead, error)
		UpdateLead(ctx context.Context, lead Lead, exec ...core.DBExecutor) (Lead, error)
		// SetLeadStatus is a guarded write: core.ErrStaleWrite when the lead is no longer in status from.
		SetLeadStatus(ctx context.Context, schoolID, id, from, to string, at time.Time, exec ...core.DBExecutor) error
		DeleteLead(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error
		CountLeadsByStatus(ctx context.Context, schoolID string, exec ...core.DBExecutor) (map[string]int, error)

		// CreateApplication fails with core.ErrUniqueViolation (transaction kept usable) when the number is taken.
		CreateApplication(ctx context.Context, app Application, exec ...core.DBExecutor) (Application, error)
		LatestApplicationNo(ctx context.Context, schoolID, prefix string, exec ...core.DBExecutor) (string, error)
		QueryApplications(ctx context.Context, schoolID string, filter *ApplicationFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Application, error)
		GetApplication(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Application, error)
		// SetApplicationStatus is a guarded write; studentID is only stored when not empty.
		SetApplicationStatus(ctx context.Context, schoolID, id, from, to, note, studentID string, at time.Time, exec ...core.DBExecutor) error
		CountApplicationsByStatus(ctx context.Context, schoolID string, exec ...core.DBExecutor) (map[string]int, error)

		CreateAssessment(ctx context.Context, a Assessment, exec ...core.DBExecutor) (Assessment, error)
		GetAssessment(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Assessment, error)
		QueryAssessments(ctx context.Context, schoolID, applicationID string, exec ...core.DBExecutor) ([]Assessment, error)
		// SetAssessmentResult is a guarded write on a pending result.
		SetAssessmentResult(ctx context.Context, a Assessment, exec ...core.DBExecutor) error

		// CreateOffer fails with core.ErrUniqueViolation when the application already has a pending offer.
		CreateOffer(ctx context.Context, o Offer, exec ...core.DBExecutor) (Offer, error)
		GetOffer(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Offer, error)
		QueryOffers(ctx context.Context, schoolID, applicationID string, exec ...core.DBExecutor) ([]Offer, error)
		// QueryExpiredOffers lists the pending offers whose expiry date is before today.
		QueryExpiredOffers(ctx context.Context, schoolID string, today core.Date, exec ...core.DBExecutor) ([]Offer, error)
		// SetOfferStatus is a guarded write.
		SetOfferStatus(ctx context.Context, schoolID, id, from, to string, at time.Time, exec ...core.DBExecutor) error
		CountOffersByStatus(ctx context.Context, schoolID string, exec ...core.DBExecutor) (map[string]int, error)
	}

	Service interface {
		CreateLead(ctx context.Context, schoolID string, nl NewLead) (Lead, error)
		QueryLeads(ctx context.Context, schoolID string, filter *LeadFilter, ordering []core.DBOrdering) ([]Lead, error)
		GetLead(ctx context.Context, schoolID, id string) (Lead, error)
		UpdateLead(ctx context.Context, schoolID, id string, ul UpdateLead) (Lead, error)
		TransitionLead(ctx context.Context, schoolID, id string, sc StatusChange) (Lead, error)
		DeleteLead(ctx context.Context, schoolID, id string) error

		CreateApplication(ctx context.Context, schoolID string, na NewApplication) (Application, error)
		// CreateApplicationFromLead submits an application for a qualified lead and converts the lead.
		CreateApplicationFromLead(ctx context.Context, schoolID, leadID string, na NewApplication) (Application, error)
		QueryApplications(ctx context.Context, schoolID string, filter *ApplicationFilter, ordering []core.DBOrdering) ([]Application, error)
		GetApplication(ctx context.Context, schoolID, id string) (Application, error)
		TransitionApplication(ctx context.Context, schoolID, id string, sc StatusChange) (Application, error)

		ScheduleAssessment(ctx context.Context, schoolID, applicationID string, na NewAssessment) (Assessment, error)
		RecordAssessmentResult(ctx context.Context, schoolID, assessmentID string, ar AssessmentResult) (Assessment, error)
		QueryAssessments(ctx context.Context, schoolID, applicationID string) ([]Assessment, error)

		CreateOffer(ctx context.Context, schoolID, applicationID string, no NewOffer) (Offer, error)
		QueryOffers(ctx context.Context, schoolID, applicationID string) ([]Offer, error)
		AcceptOffer(ctx context.Context, schoolID, offerID string) (Offer, error)
		DeclineOffer(ctx context.Context, schoolID, offerID string) (Offer, error)
		RevokeOffer(ctx context.Context, schoolID, offerID string) (Offer, error)
		// ExpireOffers expires the pending offers past their expiry date and returns how many were expired.
		ExpireOffers(ctx context.Context, schoolID string, today core.Date) (int, error)

		// Enroll turns an accepted application into a Student.
		Enroll(ctx context.Context, schoolID, applicationID string) (student.Student, error)

		Stats(ctx context.Context, schoolID string) (FunnelStats, error)
	}

	service struct {
		db       core.DB
		repo     Repository
		schRepo  school.Repository
		classSvc class.Service
		stuSvc   student.Service
		mailSvc  core.EmailService
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.DB,
	repo Repository,
	schRepo school.Repository,
	classSvc class.Service,
	stuSvc student.Service,
	mailSvc core.EmailService,
	logger core.Logger,
) Service {
	return &service{
		db:       db,
		repo:     repo,
		schRepo:  schRepo,
		classSvc: classSvc,
		stuSvc:   stuSvc,
		mailSvc:  mailSvc,
		logger:   logger,
	}
}

// ApplicationPrefix returns the prefix shared by the application numbers of a school for a year.
func ApplicationPrefix(schoolCode string, year int) string {
	return fmt.Sprintf("APP-%s-%04d-", schoolCode, year)
}

// Leads

func (svc *service) CreateLead(ctx context.Context, schoolID string, nl NewLead) (Lead, error) {
	now := core.Now()
	return svc.repo.CreateLead(ctx, Lead{
		SchoolID:      schoolID,
		StudentName:   nl.StudentName,
		ParentName:    nl.ParentName,
		ParentPhone:   nl.ParentPhone,
		ParentEmail:   nl.ParentEmail,
		GradeApplying: nl.GradeApplying,
		Source:        nl.Source,
		Status:        LeadNew,
		AssignedTo:    nl.AssignedTo,
		Notes:         nl.Notes,
		FollowUpAt:    utcPtr(nl.FollowUpAt),
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (svc *service) QueryLeads(ctx context.Context, schoolID string, filter *LeadFilter, ordering []core.DBOrdering) ([]Lead, error) {
	return svc.repo.QueryLeads(ctx, schoolID, filter, ordering)
}

func (svc *service) GetLead(ctx context.Context, schoolID, id string) (Lead, error) {
	return svc.repo.GetLead(ctx, schoolID, id)
}

func (svc *service) UpdateLead(ctx context.Context, schoolID, id string, ul UpdateLead) (Lead, error) {
	lead, err := svc.repo.GetLead(ctx, schoolID, id)
	if err != nil {
		return Lead{}, err
	}
	if lead.Status == LeadConverted {
		return Lead{}, core.NewValidationError(ErrLeadConverted)
	}
	if ul.StudentName != nil {
		lead.StudentName = *ul.StudentName
	}
	if ul.ParentName != nil {
		lead.ParentName = *ul.ParentName
	}
	if ul.ParentPhone != nil {
		lead.ParentPhone = *ul.ParentPhone
	}
	if ul.ParentEmail != nil {
		lead.ParentEmail = *ul.ParentEmail
	}
	if ul.GradeApplying != nil {
		lead.GradeApplying = *ul.GradeApplying
	}
	if ul.Source != nil {
		lead.Source = *ul.Source
	}
	if ul.AssignedTo != nil {
		lead.AssignedTo = *ul.AssignedTo
	}
	if ul.Notes != nil {
		lead.Notes = *ul.Notes
	}
	if ul.FollowUpAt != nil {
		lead.FollowUpAt = utcPtr(ul.FollowUpAt)
	}
	lead.UpdatedAt = core.Now()
	return svc.repo.UpdateLead(ctx, lead)
}

func (svc *service) TransitionLead(ctx context.Context, schoolID, id string, sc StatusChange) (Lead, error) {
	lead, err := svc.repo.GetLead(ctx, schoolID, id)
	if err != nil {
		return Lead{}, err
	}
	if !core.StringInSlice(sc.Status, manualLeadStatuses) {
		if !LeadTransitions.Has(sc.Status) {
			return Lead{}, core.NewFieldError("status", "invalid status")
		}
		return Lead{}, core.NewValidationError(ErrStatusNotSettable, core.FieldError{Field: "status", Error: ErrStatusNotSettable.Error()})
	}
	if !LeadTransitions.CanMove(lead.Status, sc.Status) {
		return Lead{}, core.NewTransitionError("lead", lead.Status, sc.Status)
	}

	now := core.Now()
	if err = svc.repo.SetLeadStatus(ctx, schoolID, id, lead.Status, sc.Status, now); err != nil {
		return Lead{}, core.GuardTransition(err, "lead", lead.Status, sc.Status)
	}
	lead.Status = sc.Status
	lead.UpdatedAt = now
	return lead, nil
}

func (svc *service) DeleteLead(ctx context.Context, schoolID, id string) error {
	lead, err := svc.repo.GetLead(ctx, schoolID, id)
	if err != nil {
		return err
	}
	if lead.Status == LeadConverted {
		return core.NewValidationError(ErrLeadConverted)
	}
	return svc.repo.DeleteLead(ctx, schoolID, id)
}

// Applications

func (svc *service) CreateApplication(ctx context.Context, schoolID string, na NewApplication) (Application, error) {
	var app Application
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		app, err = svc.createApplication(ctx, exec, schoolID, na)
		return err
	})
	return app, err
}

func (svc *service) CreateApplicationFromLead(ctx context.Context, schoolID, leadID string, na NewApplication) (Application, error) {
	var app Application
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		lead, err := svc.repo.GetLead(ctx, schoolID, leadID, exec)
		if err != nil {
			return err
		}
		if !LeadTransitions.CanMove(lead.Status, LeadConverted) {
			return core.NewTransitionError("lead", lead.Status, LeadConverted)
		}
		na.LeadID = lead.ID

		if app, err = svc.createApplication(ctx, exec, schoolID, na); err != nil {
			return err
		}
		err = svc.repo.SetLeadStatus(ctx, schoolID, lead.ID, lead.Status, LeadConverted, app.CreatedAt, exec)
		return core.GuardTransition(err, "lead", lead.Status, LeadConverted)
	})
	return app, err
}

func (svc *service) createApplication(ctx context.Context, exec core.DBExecutor, schoolID string, na NewApplication) (Application, error) {
	sch, err := svc.schRepo.GetSchool(ctx, schoolID, exec)
	if err != nil {
		return Application{}, errors.Wrap(err, "finding school")
	}

	now := core.Now()
	app := Application{
		SchoolID:       schoolID,
		LeadID:         na.LeadID,
		AcademicYear:   na.AcademicYear,
		StudentName:    na.StudentName,
		DateOfBirth:    na.DateOfBirth,
		Gender:         na.Gender,
		GradeApplying:  na.GradeApplying,
		ParentName:     na.ParentName,
		ParentPhone:    na.ParentPhone,
		ParentEmail:    na.ParentEmail,
		PreviousSchool: na.PreviousSchool,
		Status:         AppSubmitted,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	seq := core.Sequence{Prefix: ApplicationPrefix(sch.Code, now.Year()), Width: applicationSeqWidth}
	_, err = core.AllocateUnique(ctx, seq, core.SequenceMaxAttempts,
		func(ctx context.Context) (string, error) {
			return svc.repo.LatestApplicationNo(ctx, schoolID, seq.Prefix, exec)
		},
		func(ctx context.Context, appNo string) error {
			app.ApplicationNo = appNo
			created, err := svc.repo.CreateApplication(ctx, app, exec)
			if err == nil {
				app = created
			}
			return err
		},
	)
	if err != nil {
		return Application{}, errors.Wrap(err, "allocating application number")
	}
	return app, nil
}

func (svc *service) QueryApplications(ctx context.Context, schoolID string, filter *ApplicationFilter, ordering []core.DBOrdering) ([]Application, error) {
	return svc.repo.QueryApplications(ctx, schoolID, filter, ordering)
}

func (svc *service) GetApplication(ctx context.Context, schoolID, id string) (Application, error) {
	return svc.repo.GetApplication(ctx, schoolID, id)
}

func (svc *service) TransitionApplication(ctx context.Context, schoolID, id string, sc StatusChange) (Application, error) {
	if !core.StringInSlice(sc.Status, manualAppStatuses) {
		if !ApplicationTransitions.Has(sc.Status) {
			return Application{}, core.NewFieldError("status", "invalid status")
		}
		return Application{}, core.NewValidationError(ErrStatusNotSettable, core.FieldError{Field: "status", Error: ErrStatusNotSettable.Error()})
	}

	var app Application
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		app, err = svc.repo.GetApplication(ctx, schoolID, id, exec)
		if err != nil {
			return err
		}
		from := app.Status
		// offers are revoked through RevokeOffer
		if !ApplicationTransitions.CanMove(from, sc.Status) || (from == AppOffered && sc.Status == AppUnderReview) {
			return core.NewTransitionError("application", from, sc.Status)
		}

		now := core.Now()
		if from == AppOffered {
			// withdrawing: the pending offer goes with the application
			if err = svc.closePendingOffers(ctx, exec, schoolID, app.ID, OfferRevoked, now); err != nil {
				return err
			}
		}
		if err = svc.repo.SetApplicationStatus(ctx, schoolID, id, from, sc.Status, sc.Note, "", now, exec); err != nil {
			return core.GuardTransition(err, "application", from, sc.Status)
		}
		app.Status = sc.Status
		app.StatusNote = sc.Note
		app.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Application{}, err
	}
	return app, nil
}

func (svc *service) closePendingOffers(ctx context.Context, exec core.DBExecutor, schoolID, appID, to string, at time.Time) error {
	offers, err := svc.repo.QueryOffers(ctx, schoolID, appID, exec)
	if err != nil {
		return err
	}
	for _, o := range offers {
		if o.Status != OfferPending {
			continue
		}
		if err = svc.repo.SetOfferStatus(ctx, schoolID, o.ID, OfferPending, to, at, exec); err != nil {
			return core.GuardTransition(err, "offer", OfferPending, to)
		}
	}
	return nil
}

// Assessments

func (svc *service) ScheduleAssessment(ctx context.Context, schoolID, applicationID string, na NewAssessment) (Assessment, error) {
	var a Assessment
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		app, err := svc.repo.GetApplication(ctx, schoolID, applicationID, exec)
		if err != nil {
			return err
		}
		if !ApplicationTransitions.CanMove(app.Status, AppAssessmentScheduled) {
			return core.NewTransitionError("application", app.Status, AppAssessmentScheduled)
		}

		now := core.Now()
		a, err = svc.repo.CreateAssessment(ctx, Assessment{
			SchoolID:      schoolID,
			ApplicationID: app.ID,
			ScheduledAt:   na.ScheduledAt.UTC(),
			AssessorID:    na.AssessorID,
			MaxScore:      na.MaxScore,
			PassScore:     na.PassScore,
			Result:        ResultPending,
			CreatedAt:     now,
		}, exec)
		if err != nil {
			return err
		}
		err = svc.repo.SetApplicationStatus(ctx, schoolID, app.ID, app.Status, AppAssessmentScheduled, "", "", now, exec)
		return core.GuardTransition(err, "application", app.Status, AppAssessmentScheduled)
	})
	if err != nil {
		return Assessment{}, err
	}
	return a, nil
}

func (svc *service) RecordAssessmentResult(ctx context.Context, schoolID, assessmentID string, ar AssessmentResult) (Assessment, error) {
	var a Assessment
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		a, err = svc.repo.GetAssessment(ctx, schoolID, assessmentID, exec)
		if err != nil {
			return err
		}
		if a.Result != ResultPending {
			return core.NewValidationError(ErrAssessmentDone)
		}
		if *ar.Score > a.MaxScore {
			return core.NewValidationError(ErrScoreTooHigh, core.FieldError{Field: "score", Error: ErrScoreTooHigh.Error()})
		}
		app, err := svc.repo.GetApplication(ctx, schoolID, a.ApplicationID, exec)
		if err != nil {
			return err
		}
		if !ApplicationTransitions.CanMove(app.Status, AppAssessed) {
			return core.NewTransitionError("application", app.Status, AppAssessed)
		}

		now := core.Now()
		score := *ar.Score
		a.Score = &score
		a.Remarks = ar.Remarks
		a.CompletedAt = &now
		a.Result = ResultFailed
		if score >= a.PassScore {
			a.Result = ResultPassed
		}
		if err = svc.repo.SetAssessmentResult(ctx, a, exec); err != nil {
			if errors.Cause(err) == core.ErrStaleWrite {
				return core.NewValidationError(ErrAssessmentDone)
			}
			return err
		}
		err = svc.repo.SetApplicationStatus(ctx, schoolID, app.ID, app.Status, AppAssessed, "", "", now, exec)
		return core.GuardTransition(err, "application", app.Status, AppAssessed)
	})
	if err != nil {
		return Assessment{}, err
	}
	return a, nil
}

func (svc *service) QueryAssessments(ctx context.Context, schoolID, applicationID string) ([]Assessment, error) {
	if _, err := svc.repo.GetApplication(ctx, schoolID, applicationID); err != nil {
		return nil, err
	}
	return svc.repo.QueryAssessments(ctx, schoolID, applicationID)
}

// Offers

func (svc *service) CreateOffer(ctx context.Context, schoolID, applicationID string, no NewOffer) (Offer, error) {
	var (
		o   Offer
		app Application
	)
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		app, err = svc.repo.GetApplication(ctx, schoolID, applicationID, exec)
		if err != nil {
			return err
		}
		if !ApplicationTransitions.CanMove(app.Status, AppOffered) {
			return core.NewTransitionError("application", app.Status, AppOffered)
		}
		if _, err = svc.classSvc.Get(ctx, schoolID, no.ClassID, exec); err != nil {
			if core.IsNotFound(err) {
				return core.NewValidationError(err, core.FieldError{Field: "class_id", Error: err.Error()})
			}
			return err
		}

		now := core.Now()
		o, err = svc.repo.CreateOffer(ctx, Offer{
			SchoolID:      schoolID,
			ApplicationID: app.ID,
			ClassID:       no.ClassID,
			FeeAmount:     no.FeeAmount,
			ExpiresAt:     no.ExpiresAt,
			Status:        OfferPending,
			CreatedAt:     now,
		}, exec)
		if err != nil {
			if errors.Cause(err) == core.ErrUniqueViolation {
				return core.NewValidationError(ErrPendingOffer)
			}
			return err
		}
		err = svc.repo.SetApplicationStatus(ctx, schoolID, app.ID, app.Status, AppOffered, "", "", now, exec)
		return core.GuardTransition(err, "application", app.Status, AppOffered)
	})
	if err != nil {
		return Offer{}, err
	}

	svc.sendOfferMail(ctx, app, o)
	return o, nil
}

func (svc *service) sendOfferMail(ctx context.Context, app Application, o Offer) {
	if app.ParentEmail == "" {
		return
	}
	sch, err := svc.schRepo.GetSchool(ctx, app.SchoolID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending offer email: %v", err), err)
		return
	}
	cls, err := svc.classSvc.Get(ctx, app.SchoolID, o.ClassID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending offer email: %v", err), err)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: app.ParentName, Address: app.ParentEmail}},
		Subject:      "Admission Offer - " + app.StudentName,
		TemplateName: "admission_offer",
		TemplateData: map[string]interface{}{
			"SchoolName":    sch.Name,
			"ParentName":    app.ParentName,
			"StudentName":   app.StudentName,
			"ApplicationNo": app.ApplicationNo,
			"ClassName":     strings.TrimSpace(cls.Name + " " + cls.Section),
			"FeeAmount":     formatMinorUnits(o.FeeAmount),
			"ExpiresAt":     o.ExpiresAt.String(),
		},
	})
}

func (svc *service) QueryOffers(ctx context.Context, schoolID, applicationID string) ([]Offer, error) {
	if _, err := svc.repo.GetApplication(ctx, schoolID, applicationID); err != nil {
		return nil, err
	}
	return svc.repo.QueryOffers(ctx, schoolID, applicationID)
}

// respondToOffer moves a pending offer to offerTo and its application from "offered" to appTo.
func (svc *service) respondToOffer(ctx context.Context, schoolID, offerID, offerTo, appTo string) (Offer, error) {
	var (
		o       Offer
		expired bool
	)
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		o, err = svc.repo.GetOffer(ctx, schoolID, offerID, exec)
		if err != nil {
			return err
		}
		if !OfferTransitions.CanMove(o.Status, offerTo) {
			return core.NewTransitionError("offer", o.Status, offerTo)
		}
		if offerTo == OfferAccepted && o.IsExpired(core.Today()) {
			// the expiry is committed, the acceptance refused
			expired = true
			offerTo, appTo = OfferExpired, AppUnderReview
		}

		now := core.Now()
		if err = svc.repo.SetOfferStatus(ctx, schoolID, o.ID, OfferPending, offerTo, now, exec); err != nil {
			return core.GuardTransition(err, "offer", OfferPending, offerTo)
		}
		err = svc.repo.SetApplicationStatus(ctx, schoolID, o.ApplicationID, AppOffered, appTo, "", "", now, exec)
		if err != nil {
			return core.GuardTransition(err, "application", AppOffered, appTo)
		}
		o.Status = offerTo
		o.RespondedAt = &now
		return nil
	})
	if err != nil {
		return Offer{}, err
	}
	if expired {
		return Offer{}, core.NewValidationError(ErrOfferExpired)
	}
	return o, nil
}

func (svc *service) AcceptOffer(ctx context.Context, schoolID, offerID string) (Offer, error) {
	return svc.respondToOffer(ctx, schoolID, offerID, OfferAccepted, AppAccepted)
}

func (svc *service) DeclineOffer(ctx context.Context, schoolID, offerID string) (Offer, error) {
	return svc.respondToOffer(ctx, schoolID, offerID, OfferDeclined, AppDeclined)
}

func (svc *service) RevokeOffer(ctx context.Context, schoolID, offerID string) (Offer, error) {
	return svc.respondToOffer(ctx, schoolID, offerID, OfferRevoked, AppUnderReview)
}

func (svc *service) ExpireOffers(ctx context.Context, schoolID string, today core.Date) (int, error) {
	var count int
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		offers, err := svc.repo.QueryExpiredOffers(ctx, schoolID, today, exec)
		if err != nil {
			return err
		}
		now := core.Now()
		for _, o := range offers {
			if err = svc.repo.SetOfferStatus(ctx, schoolID, o.ID, OfferPending, OfferExpired, now, exec); err != nil {
				if errors.Cause(err) == core.ErrStaleWrite {
					continue // answered meanwhile
				}
				return err
			}
			err = svc.repo.SetApplicationStatus(ctx, schoolID, o.ApplicationID, AppOffered, AppUnderReview, "offer expired", "", now, exec)
			if err != nil && errors.Cause(err) != core.ErrStaleWrite {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Enrolment

func (svc *service) Enroll(ctx context.Context, schoolID, applicationID string) (student.Student, error) {
	var stu student.Student
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		app, err := svc.repo.GetApplication(ctx, schoolID, applicationID, exec)
		if err != nil {
			return err
		}
		if !ApplicationTransitions.CanMove(app.Status, AppEnrolled) {
			return core.NewTransitionError("application", app.Status, AppEnrolled)
		}
		offers, err := svc.repo.QueryOffers(ctx, schoolID, app.ID, exec)
		if err != nil {
			return err
		}
		var offer *Offer
		for i := range offers {
			if offers[i].Status == OfferAccepted {
				offer = &offers[i]
				break
			}
		}
		if offer == nil {
			return core.NewValidationError(ErrNoAcceptedOffer)
		}

		firstName, lastName := splitName(app.StudentName)
		if lastName == "" {
			return core.NewFieldError("student_name", ErrIncompleteName.Error())
		}
		stu, err = svc.stuSvc.Admit(ctx, exec, schoolID, student.NewStudent{
			FirstName:     firstName,
			LastName:      lastName,
			DateOfBirth:   app.DateOfBirth,
			Gender:        app.Gender,
			ClassID:       offer.ClassID,
			GuardianName:  app.ParentName,
			GuardianPhone: app.ParentPhone,
			GuardianEmail: app.ParentEmail,
			AdmissionDate: core.Today(),
			ApplicationID: app.ID,
		})
		if err != nil {
			return errors.Wrap(err, "admitting student")
		}

		now := core.Now()
		err = svc.repo.SetApplicationStatus(ctx, schoolID, app.ID, app.Status, AppEnrolled, "", stu.ID, now, exec)
		if err != nil {
			return core.GuardTransition(err, "application", app.Status, AppEnrolled)
		}

		if app.LeadID != "" {
			lead, err := svc.repo.GetLead(ctx, schoolID, app.LeadID, exec)
			if err != nil {
				if core.IsNotFound(err) {
					return nil // lead deleted meanwhile
				}
				return err
			}
			if lead.Status != LeadConverted {
				if !LeadTransitions.CanMove(lead.Status, LeadConverted) {
					return core.NewTransitionError("lead", lead.Status, LeadConverted)
				}
				err = svc.repo.SetLeadStatus(ctx, schoolID, lead.ID, lead.Status, LeadConverted, now, exec)
				return core.GuardTransition(err, "lead", lead.Status, LeadConverted)
			}
		}
		return nil
	})
	if err != nil {
		return student.Student{}, err
	}
	return stu, nil
}

// Stats

func (svc *service) Stats(ctx context.Context, schoolID string) (FunnelStats, error) {
	leads, err := svc.repo.CountLeadsByStatus(ctx, schoolID)
	if err != nil {
		return FunnelStats{}, err
	}
	apps, err := svc.repo.CountApplicationsByStatus(ctx, schoolID)
	if err != nil {
		return FunnelStats{}, err
	}
	offers, err := svc.repo.CountOffersByStatus(ctx, schoolID)
	if err != nil {
		return FunnelStats{}, err
	}

	stats := FunnelStats{
		Leads:        fillStatuses(leads, LeadTransitions),
		Applications: fillStatuses(apps, ApplicationTransitions),
		Offers:       fillStatuses(offers, OfferTransitions),
	}
	var total int
	for _, n := range apps {
		total += n
	}
	if total > 0 {
		stats.ConversionRate = math.Round(float64(apps[AppEnrolled])*10000/float64(total)) / 100
	}
	return stats, nil
}

// fillStatuses adds a zero count for every status of sm missing from counts.
func fillStatuses(counts map[string]int, sm core.StateMachine) map[string]int {
	filled := make(map[string]int, len(sm))
	for status := range sm {
		filled[status] = counts[status]
	}
	return filled
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func formatMinorUnits(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC().Truncate(time.Microsecond)
	return &u
}
