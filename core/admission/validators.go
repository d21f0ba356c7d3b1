package admission

import (
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/avsnarang/scholarise/core"
)

var (
	leadSourceTag  = "leadsource"
	leadSourceText = "invalid source"
	leadSources    = []string{SourceWalkIn, SourceWebsite, SourceReferral, SourceSocial, SourcePhone, SourceOther}

	// enrollment splits the name into the student's first and last name
	fullNameTag  = "fullname"
	fullNameText = "enter the first and last name"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(leadSourceTag, func(fl validator.FieldLevel) bool {
		return core.StringInSlice(fl.Field().String(), leadSources)
	})
	core.RegisterCustomTranslation(validate, translator, leadSourceTag, leadSourceText)

	_ = validate.RegisterValidation(fullNameTag, func(fl validator.FieldLevel) bool {
		return len(strings.Fields(fl.Field().String())) >= 2
	})
	core.RegisterCustomTranslation(validate, translator, fullNameTag, fullNameText)
}
