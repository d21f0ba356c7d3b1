package leave

import (
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/avsnarang/scholarise/core"
)

var (
	codeTag   = "leavecode"
	codeText  = "code must be 2 to 10 letters, digits or underscores"
	codeRegex = regexp.MustCompile(`^[A-Z0-9_]{2,10}$`)
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(codeTag, func(fl validator.FieldLevel) bool {
		return codeRegex.MatchString(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, codeTag, codeText)
}

func normalizeCode(code string) string {
	return strings.ToUpper(core.CleanString(code))
}
