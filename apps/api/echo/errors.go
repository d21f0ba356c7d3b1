package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/user"
	"github.com/avsnarang/scholarise/core/whatsapp"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errSchoolUnavailable    = echo.NewHTTPError(http.StatusForbidden, "school unavailable")
	errSchoolRequired       = echo.NewHTTPError(http.StatusBadRequest, "select a school with the "+SchoolHeader+" header")
	errInvalidSchoolHeader  = echo.NewHTTPError(http.StatusBadRequest, "invalid "+SchoolHeader+" header")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// sentinelCodes maps bare domain errors to their HTTP status.
var sentinelCodes = map[error]int{
	core.ErrSequenceExhausted:    http.StatusConflict,
	core.ErrStaleWrite:           http.StatusConflict,
	whatsapp.ErrInvalidSignature: http.StatusUnauthorized,
	whatsapp.ErrVerifyFailed:     http.StatusForbidden,
}

// classifyError resolves err to a status code and a response body.
// ok is false for errors that carry no client-facing meaning.
func classifyError(err error, translator ut.Translator) (code int, body interface{}, ok bool) {
	switch cause := errors.Cause(err).(type) {
	case *echo.HTTPError:
		if cause == middleware.ErrJWTMissing {
			return http.StatusUnauthorized, cause.Message, true
		}
		if inner, isHTTP := cause.Internal.(*echo.HTTPError); isHTTP {
			cause = inner
		}
		return cause.Code, cause.Message, true
	case validator.ValidationErrors:
		fields := make(map[string]string, len(cause))
		for _, fe := range cause {
			fields[fe.Field()] = fe.Translate(translator)
		}
		return http.StatusBadRequest, fields, true
	case *core.ValidationError:
		if cause.Fields == nil {
			return http.StatusBadRequest, cause.Error(), true
		}
		fields := make(map[string]string, len(cause.Fields))
		for _, fe := range cause.Fields {
			fields[fe.Field] = fe.Error
		}
		return http.StatusBadRequest, fields, true
	case *core.NotFoundError:
		return http.StatusNotFound, cause.Error(), true
	case *core.TransitionError:
		return http.StatusConflict, cause.Error(), true
	default:
		if status, known := sentinelCodes[cause]; known {
			return status, cause.Error(), true
		}
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), false
	}
}

// newAppHTTPErrorHandler renders every handler error as JSON.
// Unclassified errors are reported to the logger; a shutdown error also triggers signalShutdown.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		code, body, ok := classifyError(err, translator)
		if !ok {
			usr, _ := ctx.Get(userContextKey).(user.User)
			logger.Error("unhandled request error", errors.WithMessage(err, ctx.Request().URL.Path), usr)
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		switch {
		case ctx.Echo().Debug:
			body = err.Error()
		default:
			if msg, isStr := body.(string); isStr {
				body = echo.Map{"error": msg}
			}
		}

		if ctx.Response().Committed {
			return
		}
		if ctx.Request().Method == http.MethodHead {
			err = ctx.NoContent(code)
		} else {
			err = ctx.JSON(code, body)
		}
		if err != nil {
			ctx.Echo().Logger.Error(err)
		}
	}
}
