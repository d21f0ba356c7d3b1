package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/whatsapp"
	"github.com/avsnarang/scholarise/storage/database"
)

const (
	templateColumns = "id, school_id, name, language, category, body, variables, is_active, created_at, updated_at"
	messageColumns  = "id, school_id, template_id, recipient, recipient_name, params, body, provider_message_id, " +
		"status, error, created_at, updated_at"
	webhookEventColumns = "id, school_id, payload, signature_valid, processed, error, received_at"
)

type (
	templateRow struct {
		ID        string    `db:"id"`
		SchoolID  string    `db:"school_id"`
		Name      string    `db:"name"`
		Language  string    `db:"language"`
		Category  string    `db:"category"`
		Body      string    `db:"body"`
		Variables string    `db:"variables"` // JSON array
		IsActive  bool      `db:"is_active"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	messageRow struct {
		ID                string      `db:"id"`
		SchoolID          string      `db:"school_id"`
		TemplateID        string      `db:"template_id"`
		Recipient         string      `db:"recipient"`
		RecipientName     null.String `db:"recipient_name"`
		Params            string      `db:"params"` // JSON array
		Body              string      `db:"body"`
		ProviderMessageID null.String `db:"provider_message_id"`
		Status            string      `db:"status"`
		Error             null.String `db:"error"`
		CreatedAt         time.Time   `db:"created_at"`
		UpdatedAt         time.Time   `db:"updated_at"`
	}

	webhookEventRow struct {
		ID             string      `db:"id"`
		SchoolID       null.String `db:"school_id"`
		Payload        string      `db:"payload"`
		SignatureValid bool        `db:"signature_valid"`
		Processed      int         `db:"processed"`
		Error          null.String `db:"error"`
		ReceivedAt     time.Time   `db:"received_at"`
	}
)

type whatsappRepository struct {
	repo
}

var _ whatsapp.Repository = (*whatsappRepository)(nil) // interface compliance check

func NewWhatsAppRepository(exec core.DBExecutor) *whatsappRepository {
	return &whatsappRepository{repo{exec: exec}}
}

func encodeStrings(s []string) string {
	if s == nil {
		s = []string{}
	}
	b, _ := json.Marshal(s)
	return string(b)
}

func decodeStrings(s string) []string {
	out := make([]string, 0)
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

// Templates

func boilTemplate(t whatsapp.Template) templateRow {
	return templateRow{
		ID:        t.ID,
		SchoolID:  t.SchoolID,
		Name:      t.Name,
		Language:  t.Language,
		Category:  t.Category,
		Body:      t.Body,
		Variables: encodeStrings(t.Variables),
		IsActive:  t.IsActive,
		CreatedAt: t.CreatedAt.UTC(),
		UpdatedAt: t.UpdatedAt.UTC(),
	}
}

func unboilTemplate(row templateRow) whatsapp.Template {
	return whatsapp.Template{
		ID:        row.ID,
		SchoolID:  row.SchoolID,
		Name:      row.Name,
		Language:  row.Language,
		Category:  row.Category,
		Body:      row.Body,
		Variables: decodeStrings(row.Variables),
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

func (r whatsappRepository) CreateTemplate(ctx context.Context, t whatsapp.Template, exec ...core.DBExecutor) (whatsapp.Template, error) {
	exe := r.getExec(exec)
	t.ID = newID()
	row := boilTemplate(t)
	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO whatsapp_templates ("+templateColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		row.ID, row.SchoolID, row.Name, row.Language, row.Category, row.Body, row.Variables, row.IsActive,
		row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return whatsapp.Template{}, database.TrapUniqueErr(err, "inserting whatsapp template")
	}
	return unboilTemplate(row), nil
}

func (r whatsappRepository) QueryTemplates(ctx context.Context, schoolID string, filter *whatsapp.TemplateFilter, exec ...core.DBExecutor) ([]whatsapp.Template, error) {
	exe := r.getExec(exec)
	w := newWhere("school_id = ?", schoolID)
	if filter != nil {
		if filter.Search != "" {
			val := likeArg(filter.Search)
			w.and("LOWER(name) LIKE ? OR LOWER(body) LIKE ?", val, val)
		}
		if filter.Category != "" {
			w.and("category = ?", filter.Category)
		}
		if filter.IsActive != nil {
			w.and("is_active = ?", *filter.IsActive)
		}
	}
	var rows []templateRow
	err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(
		"SELECT "+templateColumns+" FROM whatsapp_templates"+w.String()+" ORDER BY name ASC, language ASC"), w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "selecting whatsapp templates")
	}
	templates := make([]whatsapp.Template, 0, len(rows))
	for _, row := range rows {
		templates = append(templates, unboilTemplate(row))
	}
	return templates, nil
}

func (r whatsappRepository) GetTemplate(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (whatsapp.Template, error) {
	if !validIDs(id) {
		return whatsapp.Template{}, whatsapp.ErrTemplateNotFound
	}
	exe := r.getExec(exec)
	var row templateRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(
		"SELECT "+templateColumns+" FROM whatsapp_templates WHERE school_id = ? AND id = ?"), schoolID, id)
	if err != nil {
		return whatsapp.Template{}, trapNoRowsErr(err, whatsapp.ErrTemplateNotFound, "selecting whatsapp template")
	}
	return unboilTemplate(row), nil
}

func (r whatsappRepository) UpdateTemplate(ctx context.Context, t whatsapp.Template, exec ...core.DBExecutor) (whatsapp.Template, error) {
	exe := r.getExec(exec)
	row := boilTemplate(t)
	res, err := exe.ExecContext(ctx, exe.Rebind(
		"UPDATE whatsapp_templates SET category = ?, body = ?, variables = ?, is_active = ?, updated_at = ? "+
			"WHERE school_id = ? AND id = ?"),
		row.Category, row.Body, row.Variables, row.IsActive, row.UpdatedAt, row.SchoolID, row.ID,
	)
	n, err := rowsAffected(res, err, "updating whatsapp template")
	if err != nil {
		return whatsapp.Template{}, err
	}
	if n == 0 {
		return whatsapp.Template{}, whatsapp.ErrTemplateNotFound
	}
	return unboilTemplate(row), nil
}

func (r whatsappRepository) DeleteTemplate(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error {
	if !validIDs(id) {
		return whatsapp.ErrTemplateNotFound
	}
	exe := r.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM whatsapp_templates WHERE school_id = ? AND id = ?"), schoolID, id)
	if database.IsForeignKeyViolation(err) {
		return whatsapp.ErrTemplateInUse
	}
	n, err := rowsAffected(res, err, "deleting whatsapp template")
	if err != nil {
		return err
	}
	if n == 0 {
		return whatsapp.ErrTemplateNotFound
	}
	return nil
}

// Messages

func boilMessage(m whatsapp.Message) messageRow {
	return messageRow{
		ID:                m.ID,
		SchoolID:          m.SchoolID,
		TemplateID:        m.TemplateID,
		Recipient:         m.Recipient,
		RecipientName:     nullString(m.RecipientName),
		Params:            encodeStrings(m.Params),
		Body:              m.Body,
		ProviderMessageID: nullString(m.ProviderMessageID),
		Status:            m.Status,
		Error:             nullString(m.Error),
		CreatedAt:         m.CreatedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
	}
}

func unboilMessage(row messageRow) whatsapp.Message {
	return whatsapp.Message{
		ID:                row.ID,
		SchoolID:          row.SchoolID,
		TemplateID:        row.TemplateID,
		Recipient:         row.Recipient,
		RecipientName:     row.RecipientName.String,
		Params:            decodeStrings(row.Params),
		Body:              row.Body,
		ProviderMessageID: row.ProviderMessageID.String,
		Status:            row.Status,
		Error:             row.Error.String,
		CreatedAt:         row.CreatedAt.UTC(),
		UpdatedAt:         row.UpdatedAt.UTC(),
	}
}

func (r whatsappRepository) CreateMessages(ctx context.Context, msgs []whatsapp.Message, exec ...core.DBExecutor) ([]whatsapp.Message, error) {
	exe := r.getExec(exec)
	q := exe.Rebind("INSERT INTO whatsapp_messages (" + messageColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	created := make([]whatsapp.Message, 0, len(msgs))
	for _, m := range msgs {
		m.ID = newID()
		row := boilMessage(m)
		_, err := exe.ExecContext(ctx, q,
			row.ID, row.SchoolID, row.TemplateID, row.Recipient, row.RecipientName, row.Params, row.Body,
			row.ProviderMessageID, row.Status, row.Error, row.CreatedAt, row.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "inserting whatsapp message")
		}
		created = append(created, unboilMessage(row))
	}
	return created, nil
}

func (r whatsappRepository) QueryMessages(ctx context.Context, schoolID string, filter *whatsapp.MessageFilter, exec ...core.DBExecutor) ([]whatsapp.Message, error) {
	exe := r.getExec(exec)
	w := newWhere("school_id = ?", schoolID)
	if filter != nil {
		if filter.TemplateID != "" {
			w.and("template_id = ?", filter.TemplateID)
		}
		if filter.Status != "" {
			w.and("status = ?", filter.Status)
		}
		if filter.Recipient != "" {
			w.and("recipient = ?", filter.Recipient)
		}
		if !filter.Since.IsZero() {
			w.and("created_at >= ?", filter.Since.UTC())
		}
	}
	var rows []messageRow
	err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(
		"SELECT "+messageColumns+" FROM whatsapp_messages"+w.String()+" ORDER BY created_at DESC"), w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "selecting whatsapp messages")
	}
	msgs := make([]whatsapp.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, unboilMessage(row))
	}
	return msgs, nil
}

func (r whatsappRepository) getMessage(ctx context.Context, exe core.DBExecutor, w *where) (whatsapp.Message, error) {
	var row messageRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind("SELECT "+messageColumns+" FROM whatsapp_messages"+w.String()), w.args...)
	if err != nil {
		return whatsapp.Message{}, trapNoRowsErr(err, whatsapp.ErrMessageNotFound, "selecting whatsapp message")
	}
	return unboilMessage(row), nil
}

func (r whatsappRepository) GetMessage(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (whatsapp.Message, error) {
	if !validIDs(id) {
		return whatsapp.Message{}, whatsapp.ErrMessageNotFound
	}
	return r.getMessage(ctx, r.getExec(exec), newWhere("school_id = ?", schoolID).and("id = ?", id))
}

func (r whatsappRepository) FindMessageByProviderID(ctx context.Context, providerID string, exec ...core.DBExecutor) (whatsapp.Message, error) {
	if providerID == "" {
		return whatsapp.Message{}, whatsapp.ErrMessageNotFound
	}
	return r.getMessage(ctx, r.getExec(exec), newWhere("provider_message_id = ?", providerID))
}

func (r whatsappRepository) AdvanceMessage(ctx context.Context, m whatsapp.Message, fromStatuses []string, exec ...core.DBExecutor) error {
	if len(fromStatuses) == 0 {
		return errors.Wrap(core.ErrStaleWrite, "updating whatsapp message")
	}
	row := boilMessage(m)
	res, err := execIn(ctx, r.getExec(exec),
		"UPDATE whatsapp_messages SET status = ?, provider_message_id = ?, error = ?, updated_at = ? "+
			"WHERE school_id = ? AND id = ? AND status IN (?)",
		row.Status, row.ProviderMessageID, row.Error, row.UpdatedAt, row.SchoolID, row.ID, fromStatuses,
	)
	return mustAffect(res, err, "updating whatsapp message")
}

func (r whatsappRepository) CountMessagesSince(ctx context.Context, schoolID string, since time.Time, exec ...core.DBExecutor) (int, error) {
	exe := r.getExec(exec)
	var count int
	err := sqlx.GetContext(ctx, exe, &count, exe.Rebind(
		"SELECT COUNT(*) FROM whatsapp_messages WHERE school_id = ? AND created_at >= ?"), schoolID, since.UTC())
	return count, errors.Wrap(err, "counting whatsapp messages")
}

// Webhook events

func (r whatsappRepository) CreateWebhookEvent(ctx context.Context, ev whatsapp.WebhookEvent, exec ...core.DBExecutor) (whatsapp.WebhookEvent, error) {
	exe := r.getExec(exec)
	ev.ID = newID()
	ev.ReceivedAt = ev.ReceivedAt.UTC()
	_, err := exe.ExecContext(ctx, exe.Rebind(
		"INSERT INTO whatsapp_webhook_events ("+webhookEventColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)"),
		ev.ID, nullString(ev.SchoolID), ev.Payload, ev.SignatureValid, ev.Processed, nullString(ev.Error), ev.ReceivedAt,
	)
	if err != nil {
		return whatsapp.WebhookEvent{}, errors.Wrap(err, "inserting webhook event")
	}
	return ev, nil
}

func (r whatsappRepository) QueryWebhookEvents(ctx context.Context, schoolID string, limit int, exec ...core.DBExecutor) ([]whatsapp.WebhookEvent, error) {
	exe := r.getExec(exec)
	var rows []webhookEventRow
	err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(
		"SELECT "+webhookEventColumns+" FROM whatsapp_webhook_events WHERE school_id = ? ORDER BY received_at DESC LIMIT ?"),
		schoolID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "selecting webhook events")
	}
	events := make([]whatsapp.WebhookEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, whatsapp.WebhookEvent{
			ID:             row.ID,
			SchoolID:       row.SchoolID.String,
			Payload:        row.Payload,
			SignatureValid: row.SignatureValid,
			Processed:      row.Processed,
			Error:          row.Error.String,
			ReceivedAt:     row.ReceivedAt.UTC(),
		})
	}
	return events, nil
}
