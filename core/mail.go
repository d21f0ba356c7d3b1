package core

import (
	"bytes"
	"encoding/base64"
	htmltmpl "html/template"
	"io"
	"io/fs"
	"net/http"
	"net/mail"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

const emailTemplatesDir = "assets/templates/email"

// mailTemplates is the parsed set of email bodies, keyed by template name.
type mailTemplates struct {
	text map[string]*texttmpl.Template
	html map[string]*htmltmpl.Template
}

var loadedTemplates atomic.Pointer[mailTemplates]

type (
	Attachment struct {
		Content     *bytes.Buffer // base64
		ContentType string
		Filename    string
	}

	// EmailMessage is either a plain BodyStr message or a templated one.
	// Templates receive a ContextData wrapping TemplateData.
	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		Subject     string
		BodyStr     string
		Attachments []Attachment

		TemplateName string
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	EmailService interface {
		// SendMessages sends messages in the background; delivery failures are logged, not returned.
		SendMessages(messages ...*EmailMessage)
	}
)

// Render fills TextContent and HTMLContent. Unknown template names render nothing.
func (m *EmailMessage) Render(frontendBaseURL string) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	set := loadedTemplates.Load()
	if m.TemplateName == "" || set == nil {
		return nil
	}

	data := ContextData{FrontendBaseURL: frontendBaseURL, Data: m.TemplateData}
	var out strings.Builder
	if tmpl, ok := set.text[m.TemplateName]; ok && m.BodyStr == "" {
		if err := tmpl.Execute(&out, data); err != nil {
			return errors.Wrapf(err, "rendering %s.txt", m.TemplateName)
		}
		m.TextContent = out.String()
		out.Reset()
	}
	if tmpl, ok := set.html[m.TemplateName]; ok {
		if err := tmpl.Execute(&out, data); err != nil {
			return errors.Wrapf(err, "rendering %s.gohtml", m.TemplateName)
		}
		m.HTMLContent = out.String()
	}
	return nil
}

// Attach adds the content of r; the content type is sniffed unless given.
func (m *EmailMessage) Attach(r io.Reader, filename string, contentType ...string) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	at := Attachment{
		Filename:    filename,
		Content:     bytes.NewBufferString(base64.StdEncoding.EncodeToString(raw)),
		ContentType: http.DetectContentType(raw),
	}
	if len(contentType) > 0 {
		at.ContentType = contentType[0]
	}
	m.Attachments = append(m.Attachments, at)
	return nil
}

func (m *EmailMessage) AttachFile(name string, contentType ...string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return m.Attach(f, filepath.Base(name), contentType...)
}

func (m *EmailMessage) HasRecipients() bool  { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool     { return m.TextContent != "" || m.HTMLContent != "" }
func (m *EmailMessage) HasAttachments() bool { return len(m.Attachments) > 0 }

// ParseEmailTemplates loads every "<name>.txt" and "<name>.gohtml" under assets/templates/email,
// each layered over the "_base" file of the same extension. Broken templates are logged and skipped.
// When strict, executing a template with a missing key fails.
func ParseEmailTemplates(fsys fs.FS, logger Logger, strict bool) {
	set := &mailTemplates{
		text: make(map[string]*texttmpl.Template),
		html: make(map[string]*htmltmpl.Template),
	}
	missingKey := "missingkey=default"
	if strict {
		missingKey = "missingkey=error"
	}

	entries, err := fs.ReadDir(fsys, emailTemplatesDir)
	if err != nil {
		logger.Error("reading email templates", err)
		return
	}
	for _, e := range entries {
		fname := e.Name()
		if e.IsDir() || strings.HasPrefix(fname, "_") {
			continue
		}
		ext := path.Ext(fname)
		name := strings.TrimSuffix(fname, ext)
		files := []string{path.Join(emailTemplatesDir, "_base"+ext), path.Join(emailTemplatesDir, fname)}

		switch ext {
		case ".txt":
			tmpl, err := texttmpl.ParseFS(fsys, files...)
			if err != nil {
				logger.Error("parsing email template "+fname, err)
				continue
			}
			set.text[name] = tmpl.Option(missingKey)
		case ".gohtml":
			tmpl, err := htmltmpl.ParseFS(fsys, files...)
			if err != nil {
				logger.Error("parsing email template "+fname, err)
				continue
			}
			set.html[name] = tmpl.Option(missingKey)
		}
	}
	loadedTemplates.Store(set)
}
