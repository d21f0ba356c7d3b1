package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/user"
)

// contextMiddleware loads the authenticated user and resolves the school the request acts on.
// Must run after the JWT middleware.
func (s *Server) contextMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		usr, err := s.svc.User.GetByID(ctx.Request().Context(), claims.Subject)
		if err != nil {
			if core.IsNotFound(err) {
				return errUnauthorized
			}
			return errors.Wrap(err, "finding user by ID")
		}
		if !usr.IsActive {
			return errAccountDeactivated
		}

		schoolID := usr.SchoolID
		if usr.IsPlatformAdmin() {
			schoolID = ctx.Request().Header.Get(SchoolHeader)
			if schoolID != "" {
				if _, err := uuid.Parse(schoolID); err != nil {
					return errInvalidSchoolHeader
				}
			}
		}
		if err = s.checkSchool(ctx.Request().Context(), schoolID); err != nil {
			return err
		}

		ctx.Set(userContextKey, usr)
		ctx.Set(schoolContextKey, schoolID)
		return next(ctx)
	}
}

func requireSchool(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if getSchoolID(ctx) == "" {
			return errSchoolRequired
		}
		return next(ctx)
	}
}

// can only lets through users holding one of perms.
func can(perms ...user.Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr := getContextUser(ctx)
			for _, p := range perms {
				if usr.Can(p) {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}

// rateLimit throttles un-authed endpoints per client IP; limiter failures let requests through.
func (s *Server) rateLimit(name string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if s.limiter == nil {
				return next(ctx)
			}
			info, err := s.limiter.Allow(ctx.Request().Context(), name+":"+ctx.RealIP())
			if err != nil {
				s.logger.Error("rate limiter unavailable", err)
				return next(ctx)
			}
			h := ctx.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			if !info.Allowed {
				retry := int(time.Until(info.ResetAt).Seconds())
				if retry < 1 {
					retry = 1
				}
				h.Set("Retry-After", strconv.Itoa(retry))
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, please try again later")
			}
			return next(ctx)
		}
	}
}
