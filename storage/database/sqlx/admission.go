package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/admission"
	"github.com/avsnarang/scholarise/storage/database"
)

const (
	leadColumns = "id, school_id, student_name, parent_name, parent_phone, parent_email, grade_applying, source, " +
		"status, assigned_to, notes, follow_up_at, created_at, updated_at"
	applicationColumns = "id, school_id, lead_id, application_no, academic_year, student_name, date_of_birth, gender, " +
		"grade_applying, parent_name, parent_phone, parent_email, previous_school, status, status_note, student_id, " +
		"created_at, updated_at"
	assessmentColumns = "id, school_id, application_id, scheduled_at, assessor_id, max_score, pass_score, score, " +
		"result, remarks, completed_at, created_at"
	offerColumns = "id, school_id, application_id, class_id, fee_amount, expires_at, status, responded_at, created_at"
)

type (
	leadRow struct {
		ID            string      `db:"id"`
		SchoolID      string      `db:"school_id"`
		StudentName   string      `db:"student_name"`
		ParentName    string      `db:"parent_name"`
		ParentPhone   string      `db:"parent_phone"`
		ParentEmail   null.String `db:"parent_email"`
		GradeApplying string      `db:"grade_applying"`
		Source        string      `db:"source"`
		Status        string      `db:"status"`
		AssignedTo    null.String `db:"assigned_to"`
		Notes         null.String `db:"notes"`
		FollowUpAt    null.Time   `db:"follow_up_at"`
		CreatedAt     time.Time   `db:"created_at"`
		UpdatedAt     time.Time   `db:"updated_at"`
	}

	applicationRow struct {
		ID             string      `db:"id"`
		SchoolID       string      `db:"school_id"`
		LeadID         null.String `db:"lead_id"`
		ApplicationNo  string      `db:"application_no"`
		AcademicYear   string      `db:"academic_year"`
		StudentName    string      `db:"student_name"`
		DateOfBirth    core.Date   `db:"date_of_birth"`
		Gender         string      `db:"gender"`
		GradeApplying  string      `db:"grade_applying"`
		ParentName     string      `db:"parent_name"`
		ParentPhone    string      `db:"parent_phone"`
		ParentEmail    null.String `db:"parent_email"`
		PreviousSchool null.String `db:"previous_school"`
		Status         string      `db:"status"`
		StatusNote     null.String `db:"status_note"`
		StudentID      null.String `db:"student_id"`
		CreatedAt      time.Time   `db:"created_at"`
		UpdatedAt      time.Time   `db:"updated_at"`
	}

	assessmentRow struct {
		ID            string      `db:"id"`
		SchoolID      string      `db:"school_id"`
		ApplicationID string      `db:"application_id"`
		ScheduledAt   time.Time   `db:"scheduled_at"`
		AssessorID    null.String `db:"assessor_id"`
		MaxScore      int         `db:"max_score"`
		PassScore     int         `db:"pass_score"`
		Score         null.Int    `db:"score"`
		Result        string      `db:"result"`
		Remarks       null.String `db:"remarks"`
		CompletedAt   null.Time   `db:"completed_at"`
		CreatedAt     time.Time   `db:"created_at"`
	}

	offerRow struct {
		ID            string    `db:"id"`
		SchoolID      string    `db:"school_id"`
		ApplicationID string    `db:"application_id"`
		ClassID       string    `db:"class_id"`
		FeeAmount     int64     `db:"fee_amount"`
		ExpiresAt     core.Date `db:"expires_at"`
		Status        string    `db:"status"`
		RespondedAt   null.Time `db:"responded_at"`
		CreatedAt     time.Time `db:"created_at"`
	}
)

type admissionRepository struct {
	repo
}

var _ admission.Repository = (*admissionRepository)(nil) // interface compliance check

func NewAdmissionRepository(exec core.DBExecutor) *admissionRepository {
	return &admissionRepository{repo{exec: exec}}
}

// Leads

func boilLead(l admission.Lead) leadRow {
	return leadRow{
		ID:            l.ID,
		SchoolID:      l.SchoolID,
		StudentName:   l.StudentName,
		ParentName:    l.ParentName,
		ParentPhone:   l.ParentPhone,
		ParentEmail:   nullString(l.ParentEmail),
		GradeApplying: l.GradeApplying,
		Source:        l.Source,
		Status:        l.Status,
		AssignedTo:    nullString(l.AssignedTo),
		Notes:         nullString(l.Notes),
		FollowUpAt:    nullTimePtr(l.FollowUpAt),
		CreatedAt:     l.CreatedAt.UTC(),
		UpdatedAt:     l.UpdatedAt.UTC(),
	}
}

func unboilLead(row leadRow) admission.Lead {
	return admission.Lead{
		ID:            row.ID,
		SchoolID:      row.SchoolID,
		StudentName:   row.StudentName,
		ParentName:    row.ParentName,
		ParentPhone:   row.ParentPhone,
		ParentEmail:   row.ParentEmail.String,
		GradeApplying: row.GradeApplying,
		Source:        row.Source,
		Status:        row.Status,
		AssignedTo:    row.AssignedTo.String,
		Notes:         row.Notes.String,
		FollowUpAt:    timePtr(row.FollowUpAt),
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

func (r admissionRepository) CreateLead(ctx context.Context, lead admission.Lead, exec ...core.DBExecutor) (admission.Lead, error) {
	exe := r.getExec(exec)
	lead.ID = newID()
	row := boilLead(lead)
	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO leads ("+leadColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		row.ID, row.SchoolID, row.StudentName, row.ParentName, row.ParentPhone, row.ParentEmail, row.GradeApplying,
		row.Source, row.Status, row.AssignedTo, row.Notes, row.FollowUpAt, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return admission.Lead{}, errors.Wrap(err, "inserting lead")
	}
	return unboilLead(row), nil
}

func (r admissionRepository) QueryLeads(ctx context.Context, schoolID string, filter *admission.LeadFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]admission.Lead, error) {
	exe := r.getExec(exec)
	w := newWhere("school_id = ?", schoolID)
	if filter != nil {
		if filter.Search != "" {
			val := likeArg(filter.Search)
			w.and("LOWER(student_name) LIKE ? OR LOWER(parent_name) LIKE ? OR parent_phone LIKE ?", val, val, val)
		}
		if filter.Status != "" {
			w.and("status = ?", filter.Status)
		}
		if filter.Source != "" {
			w.and("source = ?", filter.Source)
		}
		if filter.AssignedTo != "" {
			w.and("assigned_to = ?", filter.AssignedTo)
		}
		if !filter.CreatedFrom.IsZero() {
			w.and("created_at >= ?", filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			w.and("created_at <= ?", filter.CreatedTo.UTC())
		}
	}
	q := "SELECT " + leadColumns + " FROM leads" + w.String() +
		core.OrderByClause(ordering, []string{"student_name", "status", "follow_up_at", "created_at"}, "created_at DESC")

	var rows []leadRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting leads")
	}
	leads := make([]admission.Lead, 0, len(rows))
	for _, row := range rows {
		leads = append(leads, unboilLead(row))
	}
	return leads, nil
}

func (r admissionRepository) GetLead(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (admission.Lead, error) {
	if !validIDs(id) {
		return admission.Lead{}, admission.ErrLeadNotFound
	}
	exe := r.getExec(exec)
	var row leadRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(
		"SELECT "+leadColumns+" FROM leads WHERE school_id = ? AND id = ?"), schoolID, id)
	if err != nil {
		return admission.Lead{}, trapNoRowsErr(err, admission.ErrLeadNotFound, "selecting lead")
	}
	return unboilLead(row), nil
}

func (r admissionRepository) UpdateLead(ctx context.Context, lead admission.Lead, exec ...core.DBExecutor) (admission.Lead, error) {
	exe := r.getExec(exec)
	row := boilLead(lead)
	res, err := exe.ExecContext(ctx, exe.Rebind(
		"UPDATE leads SET student_name = ?, parent_name = ?, parent_phone = ?, parent_email = ?, grade_applying = ?, "+
			"source = ?, assigned_to = ?, notes = ?, follow_up_at = ?, updated_at = ? WHERE school_id = ? AND id = ?"),
		row.StudentName, row.ParentName, row.ParentPhone, row.ParentEmail, row.GradeApplying, row.Source,
		row.AssignedTo, row.Notes, row.FollowUpAt, row.UpdatedAt, row.SchoolID, row.ID,
	)
	n, err := rowsAffected(res, err, "updating lead")
	if err != nil {
		return admission.Lead{}, err
	}
	if n == 0 {
		return admission.Lead{}, admission.ErrLeadNotFound
	}
	return unboilLead(row), nil
}

func (r admissionRepository) SetLeadStatus(ctx context.Context, schoolID, id, from, to string, at time.Time, exec ...core.DBExecutor) error {
	exe := r.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind(
		"UPDATE leads SET status = ?, updated_at = ? WHERE school_id = ? AND id = ? AND status = ?"),
		to, at.UTC(), schoolID, id, from,
	)
	return mustAffect(res, err, "updating lead status")
}

func (r admissionRepository) DeleteLead(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error {
	if !validIDs(id) {
		return admission.ErrLeadNotFound
	}
	exe := r.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM leads WHERE school_id = ? AND id = ?"), schoolID, id)
	n, err := rowsAffected(res, err, "deleting lead")
	if err != nil {
		return err
	}
	if n == 0 {
		return admission.ErrLeadNotFound
	}
	return nil
}

func (r admissionRepository) CountLeadsByStatus(ctx context.Context, schoolID string, exec ...core.DBExecutor) (map[string]int, error) {
	counts, err := countByStatus(ctx, r.getExec(exec),
		"SELECT status, COUNT(*) AS count FROM leads WHERE school_id = ? GROUP BY status", schoolID)
	return counts, errors.Wrap(err, "counting leads")
}

// Applications

func boilApplication(a admission.Application) applicationRow {
	return applicationRow{
		ID:             a.ID,
		SchoolID:       a.SchoolID,
		LeadID:         nullString(a.LeadID),
		ApplicationNo:  a.ApplicationNo,
		AcademicYear:   a.AcademicYear,
		StudentName:    a.StudentName,
		DateOfBirth:    a.DateOfBirth,
		Gender:         a.Gender,
		GradeApplying:  a.GradeApplying,
		ParentName:     a.ParentName,
		ParentPhone:    a.ParentPhone,
		ParentEmail:    nullString(a.ParentEmail),
		PreviousSchool: nullString(a.PreviousSchool),
		Status:         a.Status,
		StatusNote:     nullString(a.StatusNote),
		StudentID:      nullString(a.StudentID),
		CreatedAt:      a.CreatedAt.UTC(),
		UpdatedAt:      a.UpdatedAt.UTC(),
	}
}

func unboilApplication(row applicationRow) admission.Application {
	return admission.Application{
		ID:             row.ID,
		SchoolID:       row.SchoolID,
		LeadID:         row.LeadID.String,
		ApplicationNo:  row.ApplicationNo,
		AcademicYear:   row.AcademicYear,
		StudentName:    row.StudentName,
		DateOfBirth:    row.DateOfBirth,
		Gender:         row.Gender,
		GradeApplying:  row.GradeApplying,
		ParentName:     row.ParentName,
		ParentPhone:    row.ParentPhone,
		ParentEmail:    row.ParentEmail.String,
		PreviousSchool: row.PreviousSchool.String,
		Status:         row.Status,
		StatusNote:     row.StatusNote.String,
		StudentID:      row.StudentID.String,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
}

func (r admissionRepository) CreateApplication(ctx context.Context, app admission.Application, exec ...core.DBExecutor) (admission.Application, error) {
	exe := r.getExec(exec)
	app.ID = newID()
	row := boilApplication(app)
	err := database.WithSavepoint(ctx, exe, "create_application", func() error {
		_, err := exe.ExecContext(ctx, exe.Rebind(
			"INSERT INTO applications ("+applicationColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
			row.ID, row.SchoolID, row.LeadID, row.ApplicationNo, row.AcademicYear, row.StudentName, row.DateOfBirth,
			row.Gender, row.GradeApplying, row.ParentName, row.ParentPhone, row.ParentEmail, row.PreviousSchool,
			row.Status, row.StatusNote, row.StudentID, row.CreatedAt, row.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return admission.Application{}, database.TrapUniqueErr(err, "inserting application")
	}
	return unboilApplication(row), nil
}

func (r admissionRepository) LatestApplicationNo(ctx context.Context, schoolID, prefix string, exec ...core.DBExecutor) (string, error) {
	no, err := latestWithPrefix(ctx, r.getExec(exec), "applications", "application_no", schoolID, prefix)
	return no, errors.Wrap(err, "selecting latest application number")
}

func (r admissionRepository) QueryApplications(ctx context.Context, schoolID string, filter *admission.ApplicationFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]admission.Application, error) {
	exe := r.getExec(exec)
	w := newWhere("school_id = ?", schoolID)
	if filter != nil {
		if filter.Search != "" {
			val := likeArg(filter.Search)
			w.and("LOWER(student_name) LIKE ? OR LOWER(parent_name) LIKE ? OR LOWER(application_no) LIKE ?", val, val, val)
		}
		if filter.Status != "" {
			w.and("status = ?", filter.Status)
		}
		if filter.AcademicYear != "" {
			w.and("academic_year = ?", filter.AcademicYear)
		}
		if filter.LeadID != "" {
			w.and("lead_id = ?", filter.LeadID)
		}
	}
	q := "SELECT " + applicationColumns + " FROM applications" + w.String() +
		core.OrderByClause(ordering, []string{"application_no", "student_name", "status", "created_at"}, "created_at DESC")

	var rows []applicationRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting applications")
	}
	apps := make([]admission.Application, 0, len(rows))
	for _, row := range rows {
		apps = append(apps, unboilApplication(row))
	}
	return apps, nil
}

func (r admissionRepository) GetApplication(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (admission.Application, error) {
	if !validIDs(id) {
		return admission.Application{}, admission.ErrApplicationNotFound
	}
	exe := r.getExec(exec)
	var row applicationRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(
		"SELECT "+applicationColumns+" FROM applications WHERE school_id = ? AND id = ?"), schoolID, id)
	if err != nil {
		return admission.Application{}, trapNoRowsErr(err, admission.ErrApplicationNotFound, "selecting application")
	}
	return unboilApplication(row), nil
}

func (r admissionRepository) SetApplicationStatus(ctx context.Context, schoolID, id, from, to, note, studentID string, at time.Time, exec ...core.DBExecutor) error {
	exe := r.getExec(exec)
	q := "UPDATE applications SET status = ?, status_note = ?, updated_at = ?"
	args := []interface{}{to, nullString(note), at.UTC()}
	if studentID != "" {
		q += ", student_id = ?"
		args = append(args, studentID)
	}
	q += " WHERE school_id = ? AND id = ? AND status = ?"
	args = append(args, schoolID, id, from)

	res, err := exe.ExecContext(ctx, exe.Rebind(q), args...)
	return mustAffect(res, err, "updating application status")
}

func (r admissionRepository) CountApplicationsByStatus(ctx context.Context, schoolID string, exec ...core.DBExecutor) (map[string]int, error) {
	counts, err := countByStatus(ctx, r.getExec(exec),
		"SELECT status, COUNT(*) AS count FROM applications WHERE school_id = ? GROUP BY status", schoolID)
	return counts, errors.Wrap(err, "counting applications")
}

// Assessments

func boilAssessment(a admission.Assessment) assessmentRow {
	row := assessmentRow{
		ID:            a.ID,
		SchoolID:      a.SchoolID,
		ApplicationID: a.ApplicationID,
		ScheduledAt:   a.ScheduledAt.UTC(),
		AssessorID:    nullString(a.AssessorID),
		MaxScore:      a.MaxScore,
		PassScore:     a.PassScore,
		Result:        a.Result,
		Remarks:       nullString(a.Remarks),
		CompletedAt:   nullTimePtr(a.CompletedAt),
		CreatedAt:     a.CreatedAt.UTC(),
	}
	if a.Score != nil {
		row.Score = null.IntFrom(*a.Score)
	}
	return row
}

func unboilAssessment(row assessmentRow) admission.Assessment {
	a := admission.Assessment{
		ID:            row.ID,
		SchoolID:      row.SchoolID,
		ApplicationID: row.ApplicationID,
		ScheduledAt:   row.ScheduledAt.UTC(),
		AssessorID:    row.AssessorID.String,
		MaxScore:      row.MaxScore,
		PassScore:     row.PassScore,
		Result:        row.Result,
		Remarks:       row.Remarks.String,
		CompletedAt:   timePtr(row.CompletedAt),
		CreatedAt:     row.CreatedAt.UTC(),
	}
	if row.Score.Valid {
		score := row.Score.Int
		a.Score = &score
	}
	return a
}

func (r admissionRepository) CreateAssessment(ctx context.Context, a admission.Assessment, exec ...core.DBExecutor) (admission.Assessment, error) {
	exe := r.getExec(exec)
	a.ID = newID()
	row := boilAssessment(a)
	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO assessments ("+assessmentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		row.ID, row.SchoolID, row.ApplicationID, row.ScheduledAt, row.AssessorID, row.MaxScore, row.PassScore,
		row.Score, row.Result, row.Remarks, row.CompletedAt, row.CreatedAt,
	)
	if err != nil {
		return admission.Assessment{}, errors.Wrap(err, "inserting assessment")
	}
	return unboilAssessment(row), nil
}

func (r admissionRepository) GetAssessment(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (admission.Assessment, error) {
	if !validIDs(id) {
		return admission.Assessment{}, admission.ErrAssessmentNotFound
	}
	exe := r.getExec(exec)
	var row assessmentRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(
		"SELECT "+assessmentColumns+" FROM assessments WHERE school_id = ? AND id = ?"), schoolID, id)
	if err != nil {
		return admission.Assessment{}, trapNoRowsErr(err, admission.ErrAssessmentNotFound, "selecting assessment")
	}
	return unboilAssessment(row), nil
}

func (r admissionRepository) QueryAssessments(ctx context.Context, schoolID, applicationID string, exec ...core.DBExecutor) ([]admission.Assessment, error) {
	exe := r.getExec(exec)
	var rows []assessmentRow
	err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(
		"SELECT "+assessmentColumns+" FROM assessments WHERE school_id = ? AND application_id = ? ORDER BY scheduled_at ASC"),
		schoolID, applicationID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting assessments")
	}
	assessments := make([]admission.Assessment, 0, len(rows))
	for _, row := range rows {
		assessments = append(assessments, unboilAssessment(row))
	}
	return assessments, nil
}

func (r admissionRepository) SetAssessmentResult(ctx context.Context, a admission.Assessment, exec ...core.DBExecutor) error {
	exe := r.getExec(exec)
	row := boilAssessment(a)
	res, err := exe.ExecContext(ctx, exe.Rebind(
		"UPDATE assessments SET score = ?, result = ?, remarks = ?, completed_at = ? "+
			"WHERE school_id = ? AND id = ? AND result = ?"),
		row.Score, row.Result, row.Remarks, row.CompletedAt, row.SchoolID, row.ID, admission.ResultPending,
	)
	return mustAffect(res, err, "recording assessment result")
}

// Offers

func boilOffer(o admission.Offer) offerRow {
	return offerRow{
		ID:            o.ID,
		SchoolID:      o.SchoolID,
		ApplicationID: o.ApplicationID,
		ClassID:       o.ClassID,
		FeeAmount:     o.FeeAmount,
		ExpiresAt:     o.ExpiresAt,
		Status:        o.Status,
		RespondedAt:   nullTimePtr(o.RespondedAt),
		CreatedAt:     o.CreatedAt.UTC(),
	}
}

func unboilOffer(row offerRow) admission.Offer {
	return admission.Offer{
		ID:            row.ID,
		SchoolID:      row.SchoolID,
		ApplicationID: row.ApplicationID,
		ClassID:       row.ClassID,
		FeeAmount:     row.FeeAmount,
		ExpiresAt:     row.ExpiresAt,
		Status:        row.Status,
		RespondedAt:   timePtr(row.RespondedAt),
		CreatedAt:     row.CreatedAt.UTC(),
	}
}

func unboilOffers(rows []offerRow) []admission.Offer {
	offers := make([]admission.Offer, 0, len(rows))
	for _, row := range rows {
		offers = append(offers, unboilOffer(row))
	}
	return offers
}

func (r admissionRepository) CreateOffer(ctx context.Context, o admission.Offer, exec ...core.DBExecutor) (admission.Offer, error) {
	exe := r.getExec(exec)
	o.ID = newID()
	row := boilOffer(o)
	err := database.WithSavepoint(ctx, exe, "create_offer", func() error {
		_, err := exe.ExecContext(ctx, exe.Rebind(
			"INSERT INTO offers ("+offerColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"),
			row.ID, row.SchoolID, row.ApplicationID, row.ClassID, row.FeeAmount, row.ExpiresAt, row.Status,
			row.RespondedAt, row.CreatedAt,
		)
		return err
	})
	if err != nil {
		return admission.Offer{}, database.TrapUniqueErr(err, "inserting offer")
	}
	return unboilOffer(row), nil
}

func (r admissionRepository) GetOffer(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (admission.Offer, error) {
	if !validIDs(id) {
		return admission.Offer{}, admission.ErrOfferNotFound
	}
	exe := r.getExec(exec)
	var row offerRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(
		"SELECT "+offerColumns+" FROM offers WHERE school_id = ? AND id = ?"), schoolID, id)
	if err != nil {
		return admission.Offer{}, trapNoRowsErr(err, admission.ErrOfferNotFound, "selecting offer")
	}
	return unboilOffer(row), nil
}

func (r admissionRepository) QueryOffers(ctx context.Context, schoolID, applicationID string, exec ...core.DBExecutor) ([]admission.Offer, error) {
	exe := r.getExec(exec)
	var rows []offerRow
	err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(
		"SELECT "+offerColumns+" FROM offers WHERE school_id = ? AND application_id = ? ORDER BY created_at DESC"),
		schoolID, applicationID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting offers")
	}
	return unboilOffers(rows), nil
}

func (r admissionRepository) QueryExpiredOffers(ctx context.Context, schoolID string, today core.Date, exec ...core.DBExecutor) ([]admission.Offer, error) {
	exe := r.getExec(exec)
	var rows []offerRow
	err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(
		"SELECT "+offerColumns+" FROM offers WHERE school_id = ? AND status = ? AND expires_at < ? ORDER BY expires_at ASC"),
		schoolID, admission.OfferPending, today)
	if err != nil {
		return nil, errors.Wrap(err, "selecting expired offers")
	}
	return unboilOffers(rows), nil
}

func (r admissionRepository) SetOfferStatus(ctx context.Context, schoolID, id, from, to string, at time.Time, exec ...core.DBExecutor) error {
	exe := r.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind(
		"UPDATE offers SET status = ?, responded_at = ? WHERE school_id = ? AND id = ? AND status = ?"),
		to, at.UTC(), schoolID, id, from,
	)
	return mustAffect(res, err, "updating offer status")
}

func (r admissionRepository) CountOffersByStatus(ctx context.Context, schoolID string, exec ...core.DBExecutor) (map[string]int, error) {
	counts, err := countByStatus(ctx, r.getExec(exec),
		"SELECT status, COUNT(*) AS count FROM offers WHERE school_id = ? GROUP BY status", schoolID)
	return counts, errors.Wrap(err, "counting offers")
}
