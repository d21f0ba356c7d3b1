package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/user"
)

var (
	errEmptyPassword  = errors.New("the password cannot be empty")
	errSchoolRequired = errors.New("a school code is required")
)

func (cli *commandLine) addUserCmd() *cobra.Command {
	var (
		name, uname, email, schoolCode string
		roles                          []string
	)
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user, or reactivate an existing one with a new password",
		Long: `Create a user, or reactivate an existing one with a new password.
Without --school the user is a platform admin; with it, a school admin unless --role is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var schoolID string
			if schoolCode != "" {
				sch, err := cli.schoolByCode(cmd, schoolCode)
				if err != nil {
					return err
				}
				schoolID = sch.ID
			}
			if len(roles) == 0 {
				roles = []string{user.RolePlatform}
				if schoolID != "" {
					roles = []string{user.RoleAdmin}
				}
			}
			pwd, err := promptPassword(cmd, "Enter password:")
			if err != nil {
				return err
			}
			usr, created, err := cli.addUser(cmd, schoolID, name, uname, email, pwd, roles)
			if err != nil {
				return err
			}
			verb := "updated"
			if created {
				verb = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %q %s\n", usr.Username, verb)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name (defaults to the username)")
	cmd.Flags().StringVar(&uname, "username", "", "login username")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&schoolCode, "school", "", "code of the user's school")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role to grant (repeatable)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

// addUser updates or creates a user.User
func (cli *commandLine) addUser(cmd *cobra.Command, schoolID, name, uname, email, pwd string, roles []string) (user.User, bool, error) {
	ctx := cmd.Context()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname})
	switch {
	case err == nil:
		usr.Roles = roles
		usr.IsActive = true
		if schoolID != "" {
			usr.SchoolID = schoolID
		}
		if err = usr.SetPassword(pwd); err != nil {
			return user.User{}, false, err
		}
		usr.UpdatedAt = core.Now()
		usr, err = cli.usrRepo.UpdateUser(ctx, usr)
		return usr, false, err
	case !core.IsNotFound(err):
		return user.User{}, false, err
	}

	if name == "" {
		name = uname
	}
	nu := user.NewUser{
		SchoolID:        schoolID,
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           roles,
	}
	if err = nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
		return user.User{}, false, err
	}
	usr, err = cli.usrSvc.Create(ctx, nu)
	return usr, err == nil, err
}

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var uname string
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password; it is prompted for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := promptPassword(cmd, "Enter password:")
			if err != nil {
				return err
			}
			if err = cli.resetPassword(cmd, uname, pwd); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "password updated")
			return nil
		},
	}
	cmd.Flags().StringVar(&uname, "username", "", "the user's username or email")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (cli *commandLine) resetPassword(cmd *cobra.Command, uname, pwd string) error {
	ctx := cmd.Context()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = core.Now()
	_, err = cli.usrRepo.UpdateUser(ctx, usr)
	return err
}
