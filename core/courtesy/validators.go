package courtesy

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/avsnarang/scholarise/core"
)

var (
	purposeTag  = "callpurpose"
	purposeText = "purpose must be one of general, academic, attendance, fee or behaviour"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(purposeTag, func(fl validator.FieldLevel) bool {
		return core.StringInSlice(fl.Field().String(), Purposes)
	})
	core.RegisterCustomTranslation(validate, translator, purposeTag, purposeText)
}
