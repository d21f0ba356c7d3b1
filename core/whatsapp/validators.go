package whatsapp

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/avsnarang/scholarise/core"
)

var (
	templateNameTag   = "watemplatename"
	templateNameText  = "name may only contain lowercase letters, digits and underscores"
	templateNameRegex = regexp.MustCompile(`^[a-z0-9_]{1,512}$`)

	languageTag   = "walanguage"
	languageText  = "language must be a code such as en or en_US"
	languageRegex = regexp.MustCompile(`^[a-z]{2,3}(_[A-Z]{2})?$`)
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(templateNameTag, func(fl validator.FieldLevel) bool {
		return templateNameRegex.MatchString(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, templateNameTag, templateNameText)

	_ = validate.RegisterValidation(languageTag, func(fl validator.FieldLevel) bool {
		return languageRegex.MatchString(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, languageTag, languageText)
}
