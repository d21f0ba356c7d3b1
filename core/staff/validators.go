package staff

import (
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/user"
)

var (
	staffRolesTag  = "staffroles"
	staffRolesText = "only staff and teacher roles can be given to staff accounts"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(staffRolesTag, staffRolesValidation)
	core.RegisterCustomTranslation(validate, translator, staffRolesTag, staffRolesText)
}

func staffRolesValidation(fl validator.FieldLevel) bool {
	roles, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	for _, role := range roles {
		if !(strings.HasPrefix(role, user.RoleStaff) || strings.HasPrefix(role, user.RoleTeacher)) {
			return false
		}
	}
	return true
}
