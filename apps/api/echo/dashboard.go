package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core/user"
)

func (s *Server) registerDashboardAPI(g *echo.Group) {
	dg := s.group(g, "/dashboard", true)
	dg.GET("", s.dashboardSummary, can(user.PermDashboardRead))
}

func (s *Server) dashboardSummary(ctx echo.Context) error {
	sum, err := s.svc.Dashboard.Summary(ctx.Request().Context(), getSchoolID(ctx))
	if err != nil {
		return errors.Wrap(err, "computing dashboard summary")
	}
	return ctx.JSON(http.StatusOK, sum)
}
