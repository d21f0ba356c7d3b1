package whatsapp

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/avsnarang/scholarise/core"
)

// Template categories
const (
	CategoryUtility        = "utility"
	CategoryMarketing      = "marketing"
	CategoryAuthentication = "authentication"
)

// Message statuses
const (
	StatusQueued    = "queued"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

var (
	Categories = []string{CategoryUtility, CategoryMarketing, CategoryAuthentication}

	placeholderRegex = regexp.MustCompile(`\{\{\s*(\d+)\s*\}\}`)

	// delivery progress; a status can only move to a higher rank
	statusRank = map[string]int{
		StatusQueued:    0,
		StatusSent:      1,
		StatusDelivered: 2,
		StatusRead:      3,
	}
)

// CanAdvance reports whether a message in status from may move to status to.
// Statuses only move forward; failed is terminal and can only follow queued or sent.
func CanAdvance(from, to string) bool {
	if from == StatusFailed || from == to {
		return false
	}
	if to == StatusFailed {
		return from == StatusQueued || from == StatusSent
	}
	fr, ok1 := statusRank[from]
	tr, ok2 := statusRank[to]
	return ok1 && ok2 && tr > fr
}

// advanceableFrom lists the statuses from which a message may move to `to`.
func advanceableFrom(to string) []string {
	from := make([]string, 0, 4)
	for _, s := range []string{StatusQueued, StatusSent, StatusDelivered, StatusRead} {
		if CanAdvance(s, to) {
			from = append(from, s)
		}
	}
	return from
}

type Template struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	Name      string    `json:"name"`
	Language  string    `json:"language"`
	Category  string    `json:"category"`
	Body      string    `json:"body"`
	Variables []string  `json:"variables"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Render substitutes the placeholders {{1}}..{{n}} of the body with params.
func (t Template) Render(params []string) (string, error) {
	n, err := CountPlaceholders(t.Body)
	if err != nil {
		return "", err
	}
	if len(params) != n {
		return "", core.NewFieldError("params", "expected "+strconv.Itoa(n)+" parameters, got "+strconv.Itoa(len(params)))
	}
	return placeholderRegex.ReplaceAllStringFunc(t.Body, func(ph string) string {
		i, _ := strconv.Atoi(placeholderRegex.FindStringSubmatch(ph)[1])
		return params[i-1]
	}), nil
}

// CountPlaceholders returns the number of distinct placeholders of body, which must be numbered
// contiguously from 1.
func CountPlaceholders(body string) (int, error) {
	seen := make(map[int]bool)
	for _, m := range placeholderRegex.FindAllStringSubmatch(body, -1) {
		i, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, core.NewFieldError("body", "invalid placeholder "+m[0])
		}
		seen[i] = true
	}
	nums := make([]int, 0, len(seen))
	for i := range seen {
		nums = append(nums, i)
	}
	sort.Ints(nums)
	for idx, i := range nums {
		if i != idx+1 {
			return 0, core.NewFieldError("body", "placeholders must be numbered {{1}} to {{n}} without gaps")
		}
	}
	return len(nums), nil
}

type NewTemplate struct {
	Name      string   `json:"name" validate:"required,watemplatename"`
	Language  string   `json:"language" validate:"required,walanguage"`
	Category  string   `json:"category" validate:"required,oneof=utility marketing authentication"`
	Body      string   `json:"body" validate:"required,notblank,max=1024"`
	Variables []string `json:"variables" validate:"dive,required"`
}

func (nt *NewTemplate) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name, true /* lower */)
	nt.Language = core.CleanString(nt.Language)
	if nt.Language == "" {
		nt.Language = "en"
	}
	nt.Category = core.CleanString(nt.Category, true /* lower */)
	nt.Body = strings.TrimSpace(nt.Body)
	for i := range nt.Variables {
		nt.Variables[i] = core.CleanString(nt.Variables[i])
	}
	if err := validate.Struct(nt); err != nil {
		return err
	}
	return checkVariables(nt.Body, nt.Variables)
}

type UpdateTemplate struct {
	Category  *string  `json:"category" validate:"omitempty,oneof=utility marketing authentication"`
	Body      *string  `json:"body" validate:"omitempty,notblank,max=1024"`
	Variables []string `json:"variables" validate:"omitempty,dive,required"`
	IsActive  *bool    `json:"is_active"`
}

func (utp *UpdateTemplate) Validate(orig Template, validate *validator.Validate) error {
	if utp.Category != nil {
		*utp.Category = core.CleanString(*utp.Category, true /* lower */)
	}
	if utp.Body != nil {
		*utp.Body = strings.TrimSpace(*utp.Body)
	}
	for i := range utp.Variables {
		utp.Variables[i] = core.CleanString(utp.Variables[i])
	}
	if err := validate.Struct(utp); err != nil {
		return err
	}
	body, vars := orig.Body, orig.Variables
	if utp.Body != nil {
		body = *utp.Body
	}
	if utp.Variables != nil {
		vars = utp.Variables
	}
	return checkVariables(body, vars)
}

func checkVariables(body string, vars []string) error {
	n, err := CountPlaceholders(body)
	if err != nil {
		return err
	}
	if len(vars) != n {
		return core.NewFieldError("variables", "the body has "+strconv.Itoa(n)+" placeholders but "+strconv.Itoa(len(vars))+" variables are named")
	}
	return nil
}

type TemplateFilter struct {
	Search   string
	Category string
	IsActive *bool
}

func (tf *TemplateFilter) Clean() {
	tf.Search = core.CleanString(tf.Search)
	tf.Category = core.CleanString(tf.Category, true /* lower */)
}

type Message struct {
	ID                string    `json:"id"`
	SchoolID          string    `json:"school_id"`
	TemplateID        string    `json:"template_id"`
	Recipient         string    `json:"recipient"` // E.164 digits, without "+"
	RecipientName     string    `json:"recipient_name"`
	Params            []string  `json:"params"`
	Body              string    `json:"body"`
	ProviderMessageID string    `json:"provider_message_id"`
	Status            string    `json:"status"`
	Error             string    `json:"error"`
	CreatedAt         time.Time `json:"created_at"` // UTC
	UpdatedAt         time.Time `json:"updated_at"` // UTC
}

type Recipient struct {
	Phone  string   `json:"phone" validate:"required,phone"`
	Name   string   `json:"name"`
	Params []string `json:"params"` // overrides SendMessage.Params
}

// SendMessage sends a template to explicit recipients, to the guardians of students and/or to
// the guardians of a class. Phone numbers are deduplicated.
type SendMessage struct {
	TemplateID string      `json:"template_id" validate:"required,uuid"`
	Params     []string    `json:"params"`
	Recipients []Recipient `json:"recipients" validate:"dive"`
	StudentIDs []string    `json:"student_ids" validate:"dive,uuid"`
	ClassID    string      `json:"class_id" validate:"omitempty,uuid"`
}

func (sm *SendMessage) Validate(validate *validator.Validate) error {
	sm.TemplateID = core.CleanString(sm.TemplateID)
	sm.ClassID = core.CleanString(sm.ClassID)
	for i := range sm.Recipients {
		sm.Recipients[i].Name = core.CleanString(sm.Recipients[i].Name)
	}
	for i := range sm.StudentIDs {
		sm.StudentIDs[i] = core.CleanString(sm.StudentIDs[i])
	}
	if err := validate.Struct(sm); err != nil {
		return err
	}
	if len(sm.Recipients) == 0 && len(sm.StudentIDs) == 0 && sm.ClassID == "" {
		return core.NewFieldError("recipients", "at least one recipient, student or class is required")
	}
	return nil
}

type MessageFilter struct {
	TemplateID string
	Status     string
	Recipient  string
	Since      time.Time
}

func (mf *MessageFilter) Clean() {
	mf.TemplateID = core.CleanString(mf.TemplateID)
	mf.Status = core.CleanString(mf.Status, true /* lower */)
	mf.Recipient = PhoneDigits(mf.Recipient)
}

// PhoneDigits normalises a phone number to the E.164 digits expected by the Cloud API.
func PhoneDigits(phone string) string {
	return strings.TrimPrefix(core.NormalizePhone(phone), "+")
}

// WebhookEvent is a raw status callback, kept for the debug panel.
type WebhookEvent struct {
	ID             string    `json:"id"`
	SchoolID       string    `json:"school_id"`
	Payload        string    `json:"payload"`
	SignatureValid bool      `json:"signature_valid"`
	Processed      int       `json:"processed"` // statuses applied
	Error          string    `json:"error"`
	ReceivedAt     time.Time `json:"received_at"` // UTC
}

// Outbound is what a Sender delivers.
type Outbound struct {
	To           string
	TemplateName string
	Language     string
	Params       []string
	Body         string
}

// SendResult sums up a bulk send.
type SendResult struct {
	Messages []Message `json:"messages"`
	Sent     int       `json:"sent"`
	Failed   int       `json:"failed"`
}
