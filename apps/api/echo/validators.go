package echoapi

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/admission"
	"github.com/avsnarang/scholarise/core/attendance"
	"github.com/avsnarang/scholarise/core/courtesy"
	"github.com/avsnarang/scholarise/core/leave"
	"github.com/avsnarang/scholarise/core/school"
	"github.com/avsnarang/scholarise/core/staff"
	"github.com/avsnarang/scholarise/core/user"
	"github.com/avsnarang/scholarise/core/whatsapp"
)

// NewValidator returns a validator knowing every custom tag of the domain, along with the
// translator rendering its errors.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()

	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	school.InitValidators(validate, translator)
	staff.InitValidators(validate, translator)
	admission.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
	leave.InitValidators(validate, translator)
	courtesy.InitValidators(validate, translator)
	whatsapp.InitValidators(validate, translator)
	return validate, translator
}
