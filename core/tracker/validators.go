package tracker

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/eagleeye/core"
)

var (
	editableStatusTag  = "editablestatus"
	editableStatusText = "status must be one of not_started, in_progress, almost_done or completed"

	requiredTag = "required"
)

// InitValidators registers the tracker validators and their translations.
// core.InitValidators must have been called first.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(editableStatusTag, editableStatusValidation)
	core.RegisterCustomTranslation(validate, translator, editableStatusTag, editableStatusText)

	validate.RegisterStructValidation(assignmentStructValidation, NewAssignment{})
	validate.RegisterStructValidation(assignmentStructValidation, UpdateAssignment{})
}

// Custom Validators

// editableStatusValidation rejects unknown statuses and the derived "overdue" one.
func editableStatusValidation(fl validator.FieldLevel) bool {
	return Status(fl.Field().String()).Editable()
}

// assignmentStructValidation does struct level validation on NewAssignment and UpdateAssignment structs.
func assignmentStructValidation(sl validator.StructLevel) {
	switch asg := sl.Current().Interface().(type) {
	case NewAssignment:
		if asg.DueAt.IsZero() {
			sl.ReportError(asg.DueAt, "due_at", "DueAt", requiredTag, "")
		}
	case UpdateAssignment:
		if asg.DueAt != nil && asg.DueAt.IsZero() {
			sl.ReportError(asg.DueAt, "due_at", "DueAt", requiredTag, "")
		}
	}
}
