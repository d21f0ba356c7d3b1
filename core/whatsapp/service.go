package whatsapp

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/student"
)

var (
	// errors
	ErrTemplateNotFound = core.NewNotFoundError("template")
	ErrMessageNotFound  = core.NewNotFoundError("message")

	ErrTemplateExists   = errors.New("a template with this name and language already exists")
	ErrTemplateInactive = errors.New("template is not active")
	ErrTemplateInUse    = errors.New("template has messages; deactivate it instead")
	ErrNoRecipients     = errors.New("no recipient with a phone number was found")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrVerifyFailed     = errors.New("webhook verification failed")
)

type (
	// Sender delivers a rendered template and returns the provider's message id.
	Sender interface {
		Send(ctx context.Context, msg Outbound) (string, error)
	}

	Repository interface {
		// CreateTemplate fails with core.ErrUniqueViolation when (name, language) is taken.
		CreateTemplate(ctx context.Context, t Template, exec ...core.DBExecutor) (Template, error)
		QueryTemplates(ctx context.Context, schoolID string, filter *TemplateFilter, exec ...core.DBExecutor) ([]Template, error)
		GetTemplate(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Template, error)
		UpdateTemplate(ctx context.Context, t Template, exec ...core.DBExecutor) (Template, error)
		// DeleteTemplate fails with ErrTemplateInUse when messages reference the template.
		DeleteTemplate(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error

		CreateMessages(ctx context.Context, msgs []Message, exec ...core.DBExecutor) ([]Message, error)
		QueryMessages(ctx context.Context, schoolID string, filter *MessageFilter, exec ...core.DBExecutor) ([]Message, error)
		GetMessage(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Message, error)
		// FindMessageByProviderID looks a message up across schools.
		FindMessageByProviderID(ctx context.Context, providerID string, exec ...core.DBExecutor) (Message, error)
		// AdvanceMessage writes status, provider id and error when the message is still in one of fromStatuses;
		// core.ErrStaleWrite otherwise.
		AdvanceMessage(ctx context.Context, m Message, fromStatuses []string, exec ...core.DBExecutor) error
		CountMessagesSince(ctx context.Context, schoolID string, since time.Time, exec ...core.DBExecutor) (int, error)

		CreateWebhookEvent(ctx context.Context, ev WebhookEvent, exec ...core.DBExecutor) (WebhookEvent, error)
		QueryWebhookEvents(ctx context.Context, schoolID string, limit int, exec ...core.DBExecutor) ([]WebhookEvent, error)
	}

	Service interface {
		CreateTemplate(ctx context.Context, schoolID string, nt NewTemplate) (Template, error)
		QueryTemplates(ctx context.Context, schoolID string, filter *TemplateFilter) ([]Template, error)
		GetTemplate(ctx context.Context, schoolID, id string) (Template, error)
		UpdateTemplate(ctx context.Context, schoolID, id string, utp UpdateTemplate) (Template, error)
		DeleteTemplate(ctx context.Context, schoolID, id string) error
		Preview(ctx context.Context, schoolID, id string, params []string) (string, error)

		// Send queues one message per recipient and delivers them concurrently.
		Send(ctx context.Context, schoolID string, sm SendMessage) (SendResult, error)
		QueryMessages(ctx context.Context, schoolID string, filter *MessageFilter) ([]Message, error)
		GetMessage(ctx context.Context, schoolID, id string) (Message, error)
		CountMessagesSince(ctx context.Context, schoolID string, since time.Time) (int, error)

		// VerifyWebhook answers the subscription handshake with the challenge.
		VerifyWebhook(mode, token, challenge string) (string, error)
		// HandleWebhook stores a status callback and applies its statuses.
		HandleWebhook(ctx context.Context, body []byte, signature string) (WebhookEvent, error)
		QueryWebhookEvents(ctx context.Context, schoolID string, limit int) ([]WebhookEvent, error)
	}

	service struct {
		db          core.DB
		repo        Repository
		stuRepo     student.Repository
		sender      Sender
		conf        core.WhatsAppConfig
		logger      core.Logger
		concurrency int
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, stuRepo student.Repository, sender Sender, conf *core.Config, logger core.Logger) Service {
	concurrency := conf.WhatsApp.SendConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &service{
		db:          db,
		repo:        repo,
		stuRepo:     stuRepo,
		sender:      sender,
		conf:        conf.WhatsApp,
		logger:      logger,
		concurrency: concurrency,
	}
}

// Templates

func (svc *service) CreateTemplate(ctx context.Context, schoolID string, nt NewTemplate) (Template, error) {
	now := core.Now()
	t, err := svc.repo.CreateTemplate(ctx, Template{
		SchoolID:  schoolID,
		Name:      nt.Name,
		Language:  nt.Language,
		Category:  nt.Category,
		Body:      nt.Body,
		Variables: nt.Variables,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if errors.Cause(err) == core.ErrUniqueViolation {
		return Template{}, core.NewValidationError(ErrTemplateExists, core.FieldError{Field: "name", Error: ErrTemplateExists.Error()})
	}
	return t, err
}

func (svc *service) QueryTemplates(ctx context.Context, schoolID string, filter *TemplateFilter) ([]Template, error) {
	return svc.repo.QueryTemplates(ctx, schoolID, filter)
}

func (svc *service) GetTemplate(ctx context.Context, schoolID, id string) (Template, error) {
	return svc.repo.GetTemplate(ctx, schoolID, id)
}

func (svc *service) UpdateTemplate(ctx context.Context, schoolID, id string, utp UpdateTemplate) (Template, error) {
	t, err := svc.repo.GetTemplate(ctx, schoolID, id)
	if err != nil {
		return Template{}, err
	}
	if utp.Category != nil {
		t.Category = *utp.Category
	}
	if utp.Body != nil {
		t.Body = *utp.Body
	}
	if utp.Variables != nil {
		t.Variables = utp.Variables
	}
	if utp.IsActive != nil {
		t.IsActive = *utp.IsActive
	}
	t.UpdatedAt = core.Now()
	return svc.repo.UpdateTemplate(ctx, t)
}

func (svc *service) DeleteTemplate(ctx context.Context, schoolID, id string) error {
	err := svc.repo.DeleteTemplate(ctx, schoolID, id)
	if errors.Cause(err) == ErrTemplateInUse {
		return core.NewValidationError(ErrTemplateInUse)
	}
	return err
}

func (svc *service) Preview(ctx context.Context, schoolID, id string, params []string) (string, error) {
	t, err := svc.repo.GetTemplate(ctx, schoolID, id)
	if err != nil {
		return "", err
	}
	return t.Render(params)
}

// Messages

func (svc *service) resolveRecipients(ctx context.Context, schoolID string, sm SendMessage) ([]Recipient, error) {
	var (
		recipients []Recipient
		seen       = make(map[string]bool)
	)
	add := func(r Recipient) {
		phone := PhoneDigits(r.Phone)
		if phone == "" || seen[phone] {
			return
		}
		seen[phone] = true
		r.Phone = phone
		recipients = append(recipients, r)
	}

	for _, r := range sm.Recipients {
		add(r)
	}

	var students []student.Student
	if len(sm.StudentIDs) > 0 {
		found, err := svc.stuRepo.QueryStudents(ctx, schoolID, &student.QueryFilter{IDs: sm.StudentIDs}, nil)
		if err != nil {
			return nil, errors.Wrap(err, "finding students")
		}
		if len(found) != len(uniq(sm.StudentIDs)) {
			return nil, core.NewFieldError("student_ids", "some students do not exist")
		}
		students = append(students, found...)
	}
	if sm.ClassID != "" {
		active := true
		found, err := svc.stuRepo.QueryStudents(ctx, schoolID, &student.QueryFilter{ClassID: sm.ClassID, IsActive: &active}, nil)
		if err != nil {
			return nil, errors.Wrap(err, "finding class members")
		}
		students = append(students, found...)
	}
	for _, stu := range students {
		add(Recipient{Phone: stu.GuardianPhone, Name: stu.GuardianName})
	}

	if len(recipients) == 0 {
		return nil, core.NewValidationError(ErrNoRecipients)
	}
	return recipients, nil
}

func (svc *service) Send(ctx context.Context, schoolID string, sm SendMessage) (SendResult, error) {
	t, err := svc.repo.GetTemplate(ctx, schoolID, sm.TemplateID)
	if err != nil {
		if core.IsNotFound(err) {
			return SendResult{}, core.NewValidationError(err, core.FieldError{Field: "template_id", Error: err.Error()})
		}
		return SendResult{}, err
	}
	if !t.IsActive {
		return SendResult{}, core.NewValidationError(ErrTemplateInactive, core.FieldError{Field: "template_id", Error: ErrTemplateInactive.Error()})
	}

	recipients, err := svc.resolveRecipients(ctx, schoolID, sm)
	if err != nil {
		return SendResult{}, err
	}

	now := core.Now()
	msgs := make([]Message, 0, len(recipients))
	for _, r := range recipients {
		params := sm.Params
		if r.Params != nil {
			params = r.Params
		}
		body, err := t.Render(params)
		if err != nil {
			return SendResult{}, err
		}
		msgs = append(msgs, Message{
			SchoolID:      schoolID,
			TemplateID:    t.ID,
			Recipient:     r.Phone,
			RecipientName: r.Name,
			Params:        params,
			Body:          body,
			Status:        StatusQueued,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	err = core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		msgs, err = svc.repo.CreateMessages(ctx, msgs, exec)
		return err
	})
	if err != nil {
		return SendResult{}, errors.Wrap(err, "queueing messages")
	}

	svc.deliver(ctx, t, msgs)

	res := SendResult{Messages: msgs}
	for _, m := range msgs {
		if m.Status == StatusFailed {
			res.Failed++
		} else {
			res.Sent++
		}
	}
	return res, nil
}

// deliver sends the queued msgs, at most svc.concurrency at a time, and records each outcome in msgs.
func (svc *service) deliver(ctx context.Context, t Template, msgs []Message) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(svc.concurrency)
	for i := range msgs {
		m := &msgs[i]
		g.Go(func() error {
			providerID, err := svc.sender.Send(gctx, Outbound{
				To:           m.Recipient,
				TemplateName: t.Name,
				Language:     t.Language,
				Params:       m.Params,
				Body:         m.Body,
			})
			if err != nil {
				m.Status = StatusFailed
				m.Error = err.Error()
			} else {
				m.Status = StatusSent
				m.ProviderMessageID = providerID
			}
			m.UpdatedAt = core.Now()

			// the outcome is recorded even when the request is cancelled
			if uErr := svc.repo.AdvanceMessage(context.Background(), *m, []string{StatusQueued}); uErr != nil {
				svc.logger.Error(fmt.Sprintf("whatsapp: recording message %s: %v", m.ID, uErr), uErr)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (svc *service) QueryMessages(ctx context.Context, schoolID string, filter *MessageFilter) ([]Message, error) {
	return svc.repo.QueryMessages(ctx, schoolID, filter)
}

func (svc *service) GetMessage(ctx context.Context, schoolID, id string) (Message, error) {
	return svc.repo.GetMessage(ctx, schoolID, id)
}

func (svc *service) CountMessagesSince(ctx context.Context, schoolID string, since time.Time) (int, error) {
	return svc.repo.CountMessagesSince(ctx, schoolID, since)
}

// Webhook

func (svc *service) VerifyWebhook(mode, token, challenge string) (string, error) {
	if mode != "subscribe" || svc.conf.VerifyToken == "" || token != svc.conf.VerifyToken {
		return "", ErrVerifyFailed
	}
	return challenge, nil
}

func (svc *service) HandleWebhook(ctx context.Context, body []byte, signature string) (WebhookEvent, error) {
	ev := WebhookEvent{
		Payload:        string(body),
		SignatureValid: svc.conf.AppSecret == "" || VerifySignature(body, signature, svc.conf.AppSecret),
		ReceivedAt:     core.Now(),
	}
	if !ev.SignatureValid {
		ev.Error = ErrInvalidSignature.Error()
		if _, err := svc.repo.CreateWebhookEvent(ctx, ev); err != nil {
			svc.logger.Error(fmt.Sprintf("whatsapp: storing webhook event: %v", err), err)
		}
		return WebhookEvent{}, ErrInvalidSignature
	}

	updates, err := ParseStatuses(body)
	if err != nil {
		ev.Error = err.Error()
	}
	for _, su := range updates {
		schoolID, applied, err := svc.applyStatus(ctx, su)
		if err != nil {
			ev.Error = err.Error()
			continue
		}
		if ev.SchoolID == "" {
			ev.SchoolID = schoolID
		}
		if applied {
			ev.Processed++
		}
	}
	return svc.repo.CreateWebhookEvent(ctx, ev)
}

// applyStatus moves the message reported by su forward; applied is false for unknown messages and
// stale or backward statuses.
func (svc *service) applyStatus(ctx context.Context, su StatusUpdate) (schoolID string, applied bool, err error) {
	m, err := svc.repo.FindMessageByProviderID(ctx, su.ID)
	if err != nil {
		if core.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	if !CanAdvance(m.Status, su.Status) {
		return m.SchoolID, false, nil
	}
	from := advanceableFrom(su.Status)
	m.Status = su.Status
	if su.Status == StatusFailed {
		m.Error = su.ErrorText()
	}
	m.UpdatedAt = core.Now()
	err = svc.repo.AdvanceMessage(ctx, m, from)
	if errors.Cause(err) == core.ErrStaleWrite {
		return m.SchoolID, false, nil
	}
	return m.SchoolID, err == nil, err
}

func (svc *service) QueryWebhookEvents(ctx context.Context, schoolID string, limit int) ([]WebhookEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return svc.repo.QueryWebhookEvents(ctx, schoolID, limit)
}

func uniq(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
