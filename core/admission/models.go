package admission

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/avsnarang/scholarise/core"
)

// Lead statuses
const (
	LeadNew       = "new"
	LeadContacted = "contacted"
	LeadQualified = "qualified"
	LeadConverted = "converted"
	LeadLost      = "lost"
)

// Lead sources
const (
	SourceWalkIn   = "walk_in"
	SourceWebsite  = "website"
	SourceReferral = "referral"
	SourceSocial   = "social"
	SourcePhone    = "phone"
	SourceOther    = "other"
)

// Application statuses
const (
	AppSubmitted           = "submitted"
	AppUnderReview         = "under_review"
	AppAssessmentScheduled = "assessment_scheduled"
	AppAssessed            = "assessed"
	AppOffered             = "offered"
	AppAccepted            = "accepted"
	AppEnrolled            = "enrolled"
	AppRejected            = "rejected"
	AppWithdrawn           = "withdrawn"
	AppDeclined            = "declined"
)

// Assessment results
const (
	ResultPending = "pending"
	ResultPassed  = "passed"
	ResultFailed  = "failed"
)

// Offer statuses
const (
	OfferPending  = "pending"
	OfferAccepted = "accepted"
	OfferDeclined = "declined"
	OfferRevoked  = "revoked"
	OfferExpired  = "expired"
)

// DefaultPassPercent is the share of MaxScore needed to pass an assessment when no pass score is given.
const DefaultPassPercent = 40

var (
	LeadTransitions = core.StateMachine{
		LeadNew:       {LeadContacted, LeadLost},
		LeadContacted: {LeadQualified, LeadLost},
		LeadQualified: {LeadConverted, LeadLost},
		LeadLost:      {LeadContacted},
		LeadConverted: {},
	}

	ApplicationTransitions = core.StateMachine{
		AppSubmitted:           {AppUnderReview, AppRejected, AppWithdrawn},
		AppUnderReview:         {AppAssessmentScheduled, AppOffered, AppRejected, AppWithdrawn},
		AppAssessmentScheduled: {AppAssessed, AppWithdrawn},
		AppAssessed:            {AppOffered, AppRejected, AppWithdrawn},
		AppOffered:             {AppAccepted, AppDeclined, AppUnderReview, AppWithdrawn},
		AppAccepted:            {AppEnrolled, AppWithdrawn},
		AppEnrolled:            {},
		AppRejected:            {},
		AppWithdrawn:           {},
		AppDeclined:            {},
	}

	OfferTransitions = core.StateMachine{
		OfferPending:  {OfferAccepted, OfferDeclined, OfferRevoked, OfferExpired},
		OfferAccepted: {},
		OfferDeclined: {},
		OfferRevoked:  {},
		OfferExpired:  {},
	}

	// statuses an application can be moved to directly; the others follow assessments, offers & enrolment.
	manualAppStatuses = []string{AppUnderReview, AppRejected, AppWithdrawn}

	// statuses a lead can be moved to directly; "converted" follows the creation of an application.
	manualLeadStatuses = []string{LeadContacted, LeadQualified, LeadLost}
)

type Lead struct {
	ID            string     `json:"id"`
	SchoolID      string     `json:"school_id"`
	StudentName   string     `json:"student_name"`
	ParentName    string     `json:"parent_name"`
	ParentPhone   string     `json:"parent_phone"`
	ParentEmail   string     `json:"parent_email"`
	GradeApplying string     `json:"grade_applying"`
	Source        string     `json:"source"`
	Status        string     `json:"status"`
	AssignedTo    string     `json:"assigned_to"`
	Notes         string     `json:"notes"`
	FollowUpAt    *time.Time `json:"follow_up_at"` // UTC
	CreatedAt     time.Time  `json:"created_at"`   // UTC
	UpdatedAt     time.Time  `json:"updated_at"`   // UTC
}

type NewLead struct {
	StudentName   string     `json:"student_name" validate:"required,notblank"`
	ParentName    string     `json:"parent_name" validate:"required,notblank"`
	ParentPhone   string     `json:"parent_phone" validate:"required,phone"`
	ParentEmail   string     `json:"parent_email" validate:"omitempty,email"`
	GradeApplying string     `json:"grade_applying" validate:"required,notblank"`
	Source        string     `json:"source" validate:"required,leadsource"`
	AssignedTo    string     `json:"assigned_to" validate:"omitempty,uuid"`
	Notes         string     `json:"notes"`
	FollowUpAt    *time.Time `json:"follow_up_at"`
}

func (nl *NewLead) Validate(validate *validator.Validate) error {
	nl.StudentName = core.CleanString(nl.StudentName)
	nl.ParentName = core.CleanString(nl.ParentName)
	nl.ParentPhone = core.NormalizePhone(nl.ParentPhone)
	nl.ParentEmail = core.CleanString(nl.ParentEmail, true /* lower */)
	nl.GradeApplying = core.CleanString(nl.GradeApplying)
	nl.Source = core.CleanString(nl.Source, true /* lower */)
	nl.AssignedTo = core.CleanString(nl.AssignedTo)
	nl.Notes = core.CleanString(nl.Notes)
	return validate.Struct(nl)
}

// UpdateLead modifies the details of a Lead; its status moves through TransitionLead.
type UpdateLead struct {
	StudentName   *string    `json:"student_name" validate:"omitempty,notblank"`
	ParentName    *string    `json:"parent_name" validate:"omitempty,notblank"`
	ParentPhone   *string    `json:"parent_phone" validate:"omitempty,phone"`
	ParentEmail   *string    `json:"parent_email" validate:"omitempty,email"`
	GradeApplying *string    `json:"grade_applying" validate:"omitempty,notblank"`
	Source        *string    `json:"source" validate:"omitempty,leadsource"`
	AssignedTo    *string    `json:"assigned_to" validate:"omitempty,uuid"`
	Notes         *string    `json:"notes"`
	FollowUpAt    *time.Time `json:"follow_up_at"`
}

func (ul *UpdateLead) Validate(validate *validator.Validate) error {
	for _, s := range []*string{ul.StudentName, ul.ParentName, ul.GradeApplying, ul.AssignedTo, ul.Notes} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	if ul.ParentPhone != nil {
		*ul.ParentPhone = core.NormalizePhone(*ul.ParentPhone)
	}
	if ul.ParentEmail != nil {
		*ul.ParentEmail = core.CleanString(*ul.ParentEmail, true /* lower */)
	}
	if ul.Source != nil {
		*ul.Source = core.CleanString(*ul.Source, true /* lower */)
	}
	return validate.Struct(ul)
}

type LeadFilter struct {
	Search      string
	Status      string
	Source      string
	AssignedTo  string
	FollowUpDue *time.Time // leads to follow up at or before this time
	CreatedFrom time.Time
	CreatedTo   time.Time
}

func (lf *LeadFilter) Clean() {
	lf.Search = core.CleanString(lf.Search)
	lf.Status = core.CleanString(lf.Status, true /* lower */)
	lf.Source = core.CleanString(lf.Source, true /* lower */)
	lf.AssignedTo = core.CleanString(lf.AssignedTo)
}

type Application struct {
	ID             string    `json:"id"`
	SchoolID       string    `json:"school_id"`
	LeadID         string    `json:"lead_id"`
	ApplicationNo  string    `json:"application_no"`
	AcademicYear   string    `json:"academic_year"`
	StudentName    string    `json:"student_name"`
	DateOfBirth    core.Date `json:"date_of_birth"`
	Gender         string    `json:"gender"`
	GradeApplying  string    `json:"grade_applying"`
	ParentName     string    `json:"parent_name"`
	ParentPhone    string    `json:"parent_phone"`
	ParentEmail    string    `json:"parent_email"`
	PreviousSchool string    `json:"previous_school"`
	Status         string    `json:"status"`
	StatusNote     string    `json:"status_note"`
	StudentID      string    `json:"student_id"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
}

// NewApplication contains information needed to submit an Application.
// When created from a Lead, blank student/parent details are copied from it.
type NewApplication struct {
	LeadID         string    `json:"-"`
	AcademicYear   string    `json:"academic_year" validate:"required,academicyear"`
	StudentName    string    `json:"student_name" validate:"required,fullname"`
	DateOfBirth    core.Date `json:"date_of_birth" validate:"required,notfuture"`
	Gender         string    `json:"gender" validate:"required,oneof=male female other"`
	GradeApplying  string    `json:"grade_applying" validate:"required,notblank"`
	ParentName     string    `json:"parent_name" validate:"required,notblank"`
	ParentPhone    string    `json:"parent_phone" validate:"required,phone"`
	ParentEmail    string    `json:"parent_email" validate:"omitempty,email"`
	PreviousSchool string    `json:"previous_school"`
}

func (na *NewApplication) Validate(validate *validator.Validate, lead ...Lead) error {
	na.AcademicYear = core.CleanString(na.AcademicYear)
	na.StudentName = core.CleanString(na.StudentName)
	na.Gender = core.CleanString(na.Gender, true /* lower */)
	na.GradeApplying = core.CleanString(na.GradeApplying)
	na.ParentName = core.CleanString(na.ParentName)
	na.ParentPhone = core.NormalizePhone(na.ParentPhone)
	na.ParentEmail = core.CleanString(na.ParentEmail, true /* lower */)
	na.PreviousSchool = core.CleanString(na.PreviousSchool)

	if len(lead) > 0 {
		l := lead[0]
		na.LeadID = l.ID
		if na.StudentName == "" {
			na.StudentName = l.StudentName
		}
		if na.GradeApplying == "" {
			na.GradeApplying = l.GradeApplying
		}
		if na.ParentName == "" {
			na.ParentName = l.ParentName
		}
		if na.ParentPhone == "" {
			na.ParentPhone = l.ParentPhone
		}
		if na.ParentEmail == "" {
			na.ParentEmail = l.ParentEmail
		}
	}
	return validate.Struct(na)
}

type ApplicationFilter struct {
	Search       string
	Status       string
	AcademicYear string
	LeadID       string
}

func (af *ApplicationFilter) Clean() {
	af.Search = core.CleanString(af.Search)
	af.Status = core.CleanString(af.Status, true /* lower */)
	af.AcademicYear = core.CleanString(af.AcademicYear)
	af.LeadID = core.CleanString(af.LeadID)
}

// StatusChange moves a Lead or an Application to Status.
type StatusChange struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

func (sc *StatusChange) Validate(validate *validator.Validate) error {
	sc.Status = core.CleanString(sc.Status, true /* lower */)
	sc.Note = core.CleanString(sc.Note)
	return validate.Struct(sc)
}

type Assessment struct {
	ID            string     `json:"id"`
	SchoolID      string     `json:"school_id"`
	ApplicationID string     `json:"application_id"`
	ScheduledAt   time.Time  `json:"scheduled_at"` // UTC
	AssessorID    string     `json:"assessor_id"`
	MaxScore      int        `json:"max_score"`
	PassScore     int        `json:"pass_score"`
	Score         *int       `json:"score"`
	Result        string     `json:"result"`
	Remarks       string     `json:"remarks"`
	CompletedAt   *time.Time `json:"completed_at"` // UTC
	CreatedAt     time.Time  `json:"created_at"`   // UTC
}

// NewAssessment schedules an assessment. PassScore defaults to DefaultPassPercent of MaxScore (rounded up).
type NewAssessment struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	AssessorID  string    `json:"assessor_id" validate:"omitempty,uuid"`
	MaxScore    int       `json:"max_score" validate:"required,gt=0"`
	PassScore   int       `json:"pass_score" validate:"gte=0,ltefield=MaxScore"`
}

func (na *NewAssessment) Validate(validate *validator.Validate) error {
	na.AssessorID = core.CleanString(na.AssessorID)
	if err := validate.Struct(na); err != nil {
		return err
	}
	if na.PassScore == 0 {
		na.PassScore = DefaultPassScore(na.MaxScore)
	}
	return nil
}

// DefaultPassScore returns DefaultPassPercent of max, rounded up.
func DefaultPassScore(max int) int {
	return (max*DefaultPassPercent + 99) / 100
}

type AssessmentResult struct {
	Score   *int   `json:"score" validate:"required,gte=0"`
	Remarks string `json:"remarks"`
}

func (ar *AssessmentResult) Validate(validate *validator.Validate) error {
	ar.Remarks = core.CleanString(ar.Remarks)
	return validate.Struct(ar)
}

type Offer struct {
	ID            string     `json:"id"`
	SchoolID      string     `json:"school_id"`
	ApplicationID string     `json:"application_id"`
	ClassID       string     `json:"class_id"`
	FeeAmount     int64      `json:"fee_amount"` // minor units
	ExpiresAt     core.Date  `json:"expires_at"` // last day the offer can be accepted
	Status        string     `json:"status"`
	RespondedAt   *time.Time `json:"responded_at"` // UTC
	CreatedAt     time.Time  `json:"created_at"`   // UTC
}

func (o Offer) IsExpired(today core.Date) bool {
	return today.After(o.ExpiresAt)
}

type NewOffer struct {
	ClassID   string    `json:"class_id" validate:"required,uuid"`
	FeeAmount int64     `json:"fee_amount" validate:"gte=0"`
	ExpiresAt core.Date `json:"expires_at" validate:"required"`
}

func (no *NewOffer) Validate(validate *validator.Validate) error {
	no.ClassID = core.CleanString(no.ClassID)
	if err := validate.Struct(no); err != nil {
		return err
	}
	if no.ExpiresAt.Before(core.Today()) {
		return core.NewFieldError("expires_at", "expiry date cannot be in the past")
	}
	return nil
}

// FunnelStats counts admissions entities per status.
type FunnelStats struct {
	Leads          map[string]int `json:"leads"`
	Applications   map[string]int `json:"applications"`
	Offers         map[string]int `json:"offers"`
	ConversionRate float64        `json:"conversion_rate"` // enrolled / applications, in %
}
