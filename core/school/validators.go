package school

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/avsnarang/scholarise/core"
)

var (
	schoolCodeTag  = "schoolcode"
	schoolCodeText = "code must be 2 to 8 uppercase letters or digits"
)

// InitValidators registers the school validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(schoolCodeTag, func(fl validator.FieldLevel) bool {
		return codeRegex.MatchString(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, schoolCodeTag, schoolCodeText)
}
