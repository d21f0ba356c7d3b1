package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/leave"
	"github.com/avsnarang/scholarise/core/user"
)

const errNoStaffProfile = "you have no staff profile in this school"

func (s *Server) registerLeaveAPI(g *echo.Group) {
	lg := s.group(g, "/leave", true)
	member := can(user.PermLeaveApply, user.PermLeaveApprove, user.PermLeaveManage)
	manage := can(user.PermLeaveManage)
	review := can(user.PermLeaveApprove, user.PermLeaveManage)

	lg.POST("/policies", s.createLeavePolicy, manage)
	lg.GET("/policies", s.queryLeavePolicies, member)
	lg.GET("/policies/:id", s.retrieveLeavePolicy, member)
	lg.PUT("/policies/:id", s.updateLeavePolicy, manage)
	lg.DELETE("/policies/:id", s.destroyLeavePolicy, manage)

	lg.GET("/balances", s.queryLeaveBalances, member)
	lg.POST("/balances/initialize", s.initLeaveBalances, manage)

	lg.POST("/requests", s.applyLeave, can(user.PermLeaveApply, user.PermLeaveManage))
	lg.GET("/requests", s.queryLeaveRequests, member)
	lg.GET("/requests/:id", s.retrieveLeaveRequest, member)
	lg.POST("/requests/:id/approve", s.approveLeave, review)
	lg.POST("/requests/:id/reject", s.rejectLeave, review)
	lg.POST("/requests/:id/cancel", s.cancelLeave, member)
}

// ownStaffID returns the staff profile of the authenticated user.
func (s *Server) ownStaffID(ctx echo.Context) (string, error) {
	stf, err := s.svc.Staff.GetByUser(ctx.Request().Context(), getSchoolID(ctx), getContextUser(ctx).ID)
	if err != nil {
		if core.IsNotFound(err) {
			return "", echo.NewHTTPError(http.StatusForbidden, errNoStaffProfile)
		}
		return "", errors.Wrap(err, "getting own staff profile")
	}
	return stf.ID, nil
}

// scopedStaffID returns the staff a listing is restricted to: the requested one for reviewers,
// the user's own profile otherwise.
func (s *Server) scopedStaffID(ctx echo.Context, requested string) (string, error) {
	if userCan(ctx, user.PermLeaveApprove) || userCan(ctx, user.PermLeaveManage) {
		return requested, nil
	}
	return s.ownStaffID(ctx)
}

// Policies

func (s *Server) createLeavePolicy(ctx echo.Context) error {
	var data leave.NewPolicy
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPolicy")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	p, err := s.svc.Leave.CreatePolicy(ctx.Request().Context(), getSchoolID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating leave policy")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (s *Server) queryLeavePolicies(ctx echo.Context) error {
	q := newQueryParams(ctx)
	isActive := q.Bool("is_active")
	if err := q.Err(); err != nil {
		return err
	}
	policies, err := s.svc.Leave.QueryPolicies(ctx.Request().Context(), getSchoolID(ctx), isActive)
	if err != nil {
		return errors.Wrap(err, "querying leave policies")
	}
	if policies == nil {
		policies = []leave.Policy{}
	}
	return ctx.JSON(http.StatusOK, policies)
}

func (s *Server) retrieveLeavePolicy(ctx echo.Context) error {
	p, err := s.svc.Leave.GetPolicy(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting leave policy")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (s *Server) updateLeavePolicy(ctx echo.Context) error {
	var data leave.UpdatePolicy
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePolicy")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	p, err := s.svc.Leave.UpdatePolicy(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating leave policy")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (s *Server) destroyLeavePolicy(ctx echo.Context) error {
	if err := s.svc.Leave.DeletePolicy(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting leave policy")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Balances

func (s *Server) queryLeaveBalances(ctx echo.Context) error {
	q := newQueryParams(ctx)
	filter := &leave.BalanceFilter{
		StaffID:  q.String("staff_id"),
		PolicyID: q.String("policy_id"),
		Year:     q.Int("year"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	staffID, err := s.scopedStaffID(ctx, filter.StaffID)
	if err != nil {
		return err
	}
	filter.StaffID = staffID

	balances, err := s.svc.Leave.QueryBalances(ctx.Request().Context(), getSchoolID(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying leave balances")
	}
	if balances == nil {
		balances = []leave.Balance{}
	}
	return ctx.JSON(http.StatusOK, balances)
}

func (s *Server) initLeaveBalances(ctx echo.Context) error {
	var data leave.InitBalances
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to InitBalances")
	}
	if err := s.validate.Struct(data); err != nil {
		return err
	}
	n, err := s.svc.Leave.InitializeBalances(ctx.Request().Context(), getSchoolID(ctx), data.Year)
	if err != nil {
		return errors.Wrap(err, "initializing leave balances")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}

// Requests

type applyLeaveRequest struct {
	leave.NewRequest
	StaffID string `json:"staff_id"` // managers may apply on behalf of a staff member
}

func (s *Server) applyLeave(ctx echo.Context) error {
	var data applyLeaveRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRequest")
	}
	if err := data.NewRequest.Validate(s.validate); err != nil {
		return err
	}

	staffID := core.CleanString(data.StaffID)
	if staffID == "" || !userCan(ctx, user.PermLeaveManage) {
		var err error
		if staffID, err = s.ownStaffID(ctx); err != nil {
			return err
		}
	}
	r, err := s.svc.Leave.Apply(ctx.Request().Context(), getSchoolID(ctx), staffID, data.NewRequest)
	if err != nil {
		return errors.Wrap(err, "applying for leave")
	}
	return ctx.JSON(http.StatusCreated, r)
}

func (s *Server) queryLeaveRequests(ctx echo.Context) error {
	q := newQueryParams(ctx)
	filter := &leave.RequestFilter{
		StaffID:  q.String("staff_id"),
		PolicyID: q.String("policy_id"),
		Status:   q.String("status"),
		From:     q.Date("from"),
		To:       q.Date("to"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	staffID, err := s.scopedStaffID(ctx, filter.StaffID)
	if err != nil {
		return err
	}
	filter.StaffID = staffID

	requests, err := s.svc.Leave.QueryRequests(ctx.Request().Context(), getSchoolID(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying leave requests")
	}
	if requests == nil {
		requests = []leave.Request{}
	}
	return ctx.JSON(http.StatusOK, requests)
}

func (s *Server) retrieveLeaveRequest(ctx echo.Context) error {
	r, err := s.svc.Leave.GetRequest(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting leave request")
	}
	staffID, err := s.scopedStaffID(ctx, r.StaffID)
	if err != nil {
		return err
	}
	if staffID != r.StaffID {
		return leave.ErrRequestNotFound
	}
	return ctx.JSON(http.StatusOK, r)
}

func (s *Server) reviewLeave(ctx echo.Context, approve bool) error {
	var data leave.Review
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Review")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	review := s.svc.Leave.Reject
	if approve {
		review = s.svc.Leave.Approve
	}
	r, err := review(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"), getContextUser(ctx).ID, data)
	if err != nil {
		return errors.Wrap(err, "reviewing leave request")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (s *Server) approveLeave(ctx echo.Context) error { return s.reviewLeave(ctx, true) }

func (s *Server) rejectLeave(ctx echo.Context) error { return s.reviewLeave(ctx, false) }

func (s *Server) cancelLeave(ctx echo.Context) error {
	var staffID string
	if !userCan(ctx, user.PermLeaveManage) {
		var err error
		if staffID, err = s.ownStaffID(ctx); err != nil {
			return err
		}
	}
	r, err := s.svc.Leave.Cancel(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"), staffID)
	if err != nil {
		return errors.Wrap(err, "cancelling leave request")
	}
	return ctx.JSON(http.StatusOK, r)
}
