package attendance

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/avsnarang/scholarise/core"
)

var (
	statusTag  = "attstatus"
	statusText = "status must be one of present, absent, late or excused"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(statusTag, func(fl validator.FieldLevel) bool {
		return core.StringInSlice(fl.Field().String(), Statuses)
	})
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)
}
