package emailsvc

import (
	"fmt"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core"
)

// SentMessages records what the console services delivered, for tests and local debugging.
var (
	SentMessages = make([]core.EmailMessage, 0)
	mu           sync.Mutex
)

func ResetSentMessages() {
	mu.Lock()
	SentMessages = SentMessages[:0]
	mu.Unlock()
}

func LastSentMessage() (core.EmailMessage, bool) {
	mu.Lock()
	defer mu.Unlock()
	if n := len(SentMessages); n > 0 {
		return SentMessages[n-1], true
	}
	return core.EmailMessage{}, false
}

// prepareMessage renders msg and reports whether there is anything worth sending.
func prepareMessage(msg *core.EmailMessage, frontendBaseURL string) (bool, error) {
	if err := msg.Render(frontendBaseURL); err != nil {
		return false, errors.Wrap(err, "rendering email")
	}
	return msg.HasRecipients() && (msg.HasContent() || msg.HasAttachments()), nil
}

type consoleService struct {
	defaultFromEmail mail.Address
	subjPrefix       string
	frontendBaseURL  string
	logger           core.Logger
	quiet            bool
}

var _ core.EmailService = (*consoleService)(nil)

// NewConsoleService logs emails as MIME text instead of sending them.
func NewConsoleService(conf *core.Config, logger core.Logger) core.EmailService {
	return &consoleService{
		defaultFromEmail: conf.DefaultFromEmail(),
		subjPrefix:       "[" + conf.AppName + "] ",
		frontendBaseURL:  conf.FrontendBaseURL,
		logger:           logger,
	}
}

func (svc consoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go svc.deliver(msg)
	}
}

func (svc consoleService) deliver(msg *core.EmailMessage) {
	ok, err := prepareMessage(msg, svc.frontendBaseURL)
	if err == nil && ok {
		err = svc.send(*msg)
	}
	if err != nil {
		svc.logger.Error(fmt.Sprintf("console email %q: %v", msg.Subject, err), err)
		return
	}
	if ok {
		mu.Lock()
		SentMessages = append(SentMessages, *msg)
		mu.Unlock()
	}
}

// send writes msg as multipart/alternative, nested in multipart/mixed when it has attachments.
func (svc consoleService) send(msg core.EmailMessage) error {
	var out strings.Builder
	headers := [][2]string{
		{"From", svc.defaultFromEmail.String()},
		{"MIME-Version", "1.0"},
		{"Date", time.Now().Format(time.RFC1123Z)},
		{"Subject", svc.subjPrefix + msg.Subject},
		{"To", joinAddresses(msg.To)},
		{"CC", joinAddresses(msg.Cc)},
		{"BCC", joinAddresses(msg.Bcc)},
	}
	for _, h := range headers {
		out.WriteString(h[0] + ": " + h[1] + "\r\n")
	}

	alt := multipart.NewWriter(&out)
	var mixed *multipart.Writer
	if msg.HasAttachments() {
		mixed = multipart.NewWriter(&out)
		out.WriteString("Content-Type: multipart/mixed; boundary=" + mixed.Boundary() + "\r\n\r\n")
		if _, err := mixed.CreatePart(textproto.MIMEHeader{"Content-Type": {"multipart/alternative; boundary=" + alt.Boundary()}}); err != nil {
			return errors.Wrap(err, "opening alternative part")
		}
	} else {
		out.WriteString("Content-Type: multipart/alternative; boundary=" + alt.Boundary() + "\r\n\r\n")
	}

	if err := writePart(alt, textproto.MIMEHeader{"Content-Type": {"text/plain"}}, msg.TextContent); err != nil {
		return err
	}
	if msg.HTMLContent != "" {
		if err := writePart(alt, textproto.MIMEHeader{"Content-Type": {"text/html"}}, msg.HTMLContent); err != nil {
			return err
		}
	}
	if err := alt.Close(); err != nil {
		return err
	}

	if mixed != nil {
		for _, at := range msg.Attachments {
			hdr := textproto.MIMEHeader{
				"Content-Type":              {at.ContentType},
				"Content-Transfer-Encoding": {"base64"},
				"Content-Disposition":       {"attachment; filename=" + at.Filename},
			}
			if err := writePart(mixed, hdr, at.Content.String()); err != nil {
				return err
			}
		}
		if err := mixed.Close(); err != nil {
			return err
		}
	}

	if !svc.quiet {
		svc.logger.Info(out.String())
	}
	return nil
}

func writePart(w *multipart.Writer, hdr textproto.MIMEHeader, content string) error {
	part, err := w.CreatePart(hdr)
	if err != nil {
		return errors.Wrapf(err, "creating %s part", hdr.Get("Content-Type"))
	}
	_, err = fmt.Fprintf(part, "%s\r\n", content)
	return err
}

func joinAddresses(addrs []mail.Address) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

type consoleServiceMock struct {
	consoleService
}

// NewConsoleServiceMock records messages synchronously and prints nothing.
func NewConsoleServiceMock(conf *core.Config) core.EmailService {
	svc := NewConsoleService(conf, core.NopLogger()).(*consoleService)
	svc.quiet = true
	return &consoleServiceMock{consoleService: *svc}
}

func (svc *consoleServiceMock) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		svc.deliver(msg)
	}
}
