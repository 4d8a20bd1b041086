package attendance

import (
	"reflect"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/asistencia/core"
)

var (
	teacherStatusTag  = "teacher_status"
	teacherStatusText = "must be one of PRESENTE, TARDANZA or AUSENTE"

	gateActionTag  = "gate_action"
	gateActionText = "must be entrada or salida"

	reasonCategoryTag  = "reason_category"
	reasonCategoryText = "must be one of CITA_MEDICA, EMERGENCIA_FAMILIAR, MALESTAR, TRAMITE_PERSONAL or OTRO"

	withdrawalDecisionTag  = "withdrawal_decision"
	withdrawalDecisionText = "must be AUTORIZAR or RECHAZAR"

	justificationDecisionTag  = "justification_decision"
	justificationDecisionText = "must be APROBADA or RECHAZADA"
)

// InitValidators registers the attendance types and tags on a validator already set up by core.InitValidators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	// Date is validated as its ISO text; the zero value counts as empty.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(Date); ok && !d.IsZero() {
			return d.String()
		}
		return ""
	}, Date{})

	register := func(tag, text string, fn validator.Func) {
		_ = validate.RegisterValidation(tag, fn)
		core.RegisterCustomTranslation(validate, translator, tag, text)
	}
	register(teacherStatusTag, teacherStatusText, func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).IsTeacherStatus()
	})
	register(gateActionTag, gateActionText, func(fl validator.FieldLevel) bool {
		return GateAction(fl.Field().String()).Valid()
	})
	register(reasonCategoryTag, reasonCategoryText, func(fl validator.FieldLevel) bool {
		return ReasonCategory(fl.Field().String()).Valid()
	})
	register(withdrawalDecisionTag, withdrawalDecisionText, func(fl validator.FieldLevel) bool {
		return WithdrawalDecision(fl.Field().String()).Valid()
	})
	register(justificationDecisionTag, justificationDecisionText, func(fl validator.FieldLevel) bool {
		d := JustificationState(fl.Field().String())
		return d == JustificationApproved || d == JustificationRejected
	})
}
