package user

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avsnarang/scholarise/core"
)

func newTestValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	return validate
}

func TestPasswordPolicy(t *testing.T) {
	validate := newTestValidator()
	commonPasswords = map[string]struct{}{"password1!": {}}
	defer func() { commonPasswords = nil }()

	tests := []struct {
		name    string
		pwd     string
		wantTag string
	}{
		{name: "too short", pwd: "Ab1!", wantTag: pwdMinLenTag},
		{name: "whitespace", pwd: "Abcd 123!", wantTag: pwdNoSpaceTag},
		{name: "all numeric", pwd: "1234567890", wantTag: pwdNotAllNumTag},
		{name: "no special", pwd: "Abcdefg123", wantTag: pwdComplexityTag},
		{name: "no upper", pwd: "abcdefg123!", wantTag: pwdComplexityTag},
		{name: "similar to username", pwd: "Johndoe1!", wantTag: pwdAttrSimTag},
		{name: "common", pwd: "Password1!", wantTag: pwdNoCommonTag},
		{name: "valid", pwd: "Tr0ub4dor&3x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := NewUser{
				Name:            "Someone",
				Username:        "johndoe",
				Password:        tt.pwd,
				PasswordConfirm: tt.pwd,
			}
			err := validate.Struct(nu)
			if tt.wantTag == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			vErrs, ok := err.(validator.ValidationErrors)
			require.True(t, ok)
			require.Len(t, vErrs, 1)
			assert.Equal(t, "password", vErrs[0].Field())
			assert.Equal(t, tt.wantTag, vErrs[0].Tag())
		})
	}
}

func TestNewUser_usernameOrEmail(t *testing.T) {
	validate := newTestValidator()
	err := validate.Struct(NewUser{Name: "N", Password: "Tr0ub4dor&3x", PasswordConfirm: "Tr0ub4dor&3x"})
	require.Error(t, err)
	vErrs := err.(validator.ValidationErrors)
	fields := make([]string, 0, len(vErrs))
	for _, e := range vErrs {
		fields = append(fields, e.Field())
	}
	assert.ElementsMatch(t, []string{"username", "email"}, fields)
}

func TestAllRolesValidation(t *testing.T) {
	validate := newTestValidator()
	pwd := "Tr0ub4dor&3x"
	ok := NewUser{Name: "N", Email: "n@test.cd", Password: pwd, PasswordConfirm: pwd, Roles: []string{RoleTeacher, RoleStaffClerk}}
	assert.NoError(t, validate.Struct(ok))

	bad := ok
	bad.Roles = []string{RoleTeacher, "king:"}
	err := validate.Struct(bad)
	require.Error(t, err)
	assert.Equal(t, allRolesTag, err.(validator.ValidationErrors)[0].Tag())
}
