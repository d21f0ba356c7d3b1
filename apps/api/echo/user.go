package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/user"
)

var (
	errUsrNotFoundInCtx  = errors.New("user object not found in echo.Context")
	errNoPermsToSetRoles = "not enough rights to set these roles"
)

func (s *Server) registerUserAPI(g *echo.Group) {
	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/login", s.login, s.rateLimit("login"))
	ug.POST("/password-reset", s.resetPassword, s.rateLimit("password-reset"))
	ug.POST("/password-reset-confirm", s.confirmPasswordReset, s.rateLimit("password-reset-confirm"))

	// authed endpoints
	ag := s.group(ug, "", false)
	ag.POST("/token-refresh", s.refreshTokenHandler)
	ag.POST("/register", s.createUser, can(user.PermUsersManage))
	ag.GET("", s.queryUsers, can(user.PermUsersManage))
	ag.DELETE("", s.destroyUsers, can(user.PermUsersManage))
	ag.GET("/roles", s.queryRoles, can(user.PermUsersManage))

	// detail endpoints
	dg := ag.Group("/:id", s.ctxUserOrManagerMiddleware)
	dg.GET("", s.retrieveUser)
	dg.PUT("", s.updateUser)
	dg.DELETE("", s.destroyUser, can(user.PermUsersManage))
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}
)

// Handlers

func (s *Server) createUser(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(ctx.Request().Context(), s.validate, s.svc.User); err != nil {
		return err
	}

	// ctxUser cannot set a role > their own max role
	ctxUsr := getContextUser(ctx)
	if user.MaxRolePriority(data.Roles) > user.MaxRolePriority(ctxUsr.Roles) {
		return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errNoPermsToSetRoles})
	}
	data.SchoolID = getSchoolID(ctx)
	if data.SchoolID == "" && !user.HasPermission(data.Roles, user.PermSchoolsManage) {
		return errSchoolRequired
	}

	usr, err := s.svc.User.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (s *Server) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	data.Username = core.CleanString(data.Username, true /* lower */)
	if err := s.validate.Struct(&data); err != nil {
		return err
	}

	claims, err := s.authenticate(ctx.Request().Context(), data.Username, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := GenerateToken(s.conf, claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (s *Server) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	data.Email = core.CleanString(data.Email, true /* lower */)
	if err := s.validate.Struct(&data); err != nil {
		return err
	}

	if err := s.svc.User.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil && !core.IsNotFound(err) {
		// do not return errors to attackers
		s.logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (s *Server) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	if err := s.svc.User.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (s *Server) queryUsers(ctx echo.Context) error {
	q := newQueryParams(ctx)
	filter := &user.QueryFilter{
		Search:      q.String("search"),
		Roles:       q.Strings("role"),
		IsActive:    q.Bool("is_active"),
		CreatedFrom: q.Time("created_from"),
		CreatedTo:   q.Time("created_to"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := s.svc.User.Query(ctx.Request().Context(), getSchoolID(ctx), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (s *Server) retrieveUser(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (s *Server) updateUser(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}

	ctxUsr := getContextUser(ctx)
	if outranks(usr, ctxUsr) {
		return errHttpForbidden
	}
	if !ctxUsr.Can(user.PermUsersManage) {
		// only name and password can be changed by the users themselves
		if data.IsActive != nil || data.Roles != nil || data.Username != "" || data.Email != "" {
			return errHttpForbidden
		}
	}

	if err := data.Validate(ctx.Request().Context(), usr, s.validate, s.svc.User); err != nil {
		return err
	}

	// ctxUser cannot set a role > their own max role
	if user.MaxRolePriority(data.Roles) > user.MaxRolePriority(ctxUsr.Roles) {
		return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errNoPermsToSetRoles})
	}

	usr, err := s.svc.User.Update(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (s *Server) destroyUser(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	ctxUsr := getContextUser(ctx)
	if usr.ID == ctxUsr.ID || outranks(usr, ctxUsr) {
		return errHttpForbidden
	}

	if err := s.svc.User.Delete(ctx.Request().Context(), getSchoolID(ctx), usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *Server) destroyUsers(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if len(query.IDs) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	ctxUsr := getContextUser(ctx)
	if core.StringInSlice(ctxUsr.ID, query.IDs) {
		return errHttpForbidden
	}
	schoolID := getSchoolID(ctx)
	for _, id := range query.IDs {
		target, err := s.svc.User.GetByID(ctx.Request().Context(), id)
		if err != nil {
			if core.IsNotFound(err) {
				continue
			}
			return errors.Wrap(err, "finding user by ID")
		}
		if (schoolID == "" || target.SchoolID == schoolID) && outranks(target, ctxUsr) {
			return errHttpForbidden
		}
	}

	if err := s.svc.User.Delete(ctx.Request().Context(), schoolID, query.IDs...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *Server) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (s *Server) refreshTokenHandler(ctx echo.Context) error {
	token, err := s.refreshToken(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

// outranks reports whether target holds a higher role than actor. Nobody outranks themselves.
func outranks(target, actor user.User) bool {
	return target.ID != actor.ID && user.MaxRolePriority(target.Roles) > user.MaxRolePriority(actor.Roles)
}

// ctxUserOrManagerMiddleware loads the target user: yourself, or anyone of your school with users:manage.
func (s *Server) ctxUserOrManagerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		ctxUsr := getContextUser(ctx)
		id := ctx.Param("id")
		if id != ctxUsr.ID && !ctxUsr.Can(user.PermUsersManage) {
			return errHttpNotFound
		}

		usr, err := s.svc.User.GetByID(ctx.Request().Context(), id)
		if err != nil {
			if core.IsNotFound(err) {
				return errHttpNotFound
			}
			return errors.Wrap(err, "finding user by ID")
		}
		if schoolID := getSchoolID(ctx); schoolID != "" && usr.SchoolID != schoolID && usr.ID != ctxUsr.ID {
			return errHttpNotFound
		}
		ctx.Set("object", usr)
		return next(ctx)
	}
}
