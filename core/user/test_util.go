package user

import "github.com/avsnarang/scholarise/core"

// NewServiceMock returns a Service that sends password reset mails before returning.
func NewServiceMock(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{repo: repo, mailSvc: mailSvc, conf: conf, logger: core.NopLogger(), async: func(fn func()) { fn() }}
}
