package catalog

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/elimu/core"
)

var (
	courseTypeTag  = "coursetype"
	courseTypeText = "must be one of: free, paid"

	moduleTypeTag  = "moduletype"
	moduleTypeText = "must be one of: video, text, pdf, quiz"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(courseTypeTag, courseTypeValidation)
	core.RegisterCustomTranslation(validate, translator, courseTypeTag, courseTypeText)

	_ = validate.RegisterValidation(moduleTypeTag, moduleTypeValidation)
	core.RegisterCustomTranslation(validate, translator, moduleTypeTag, moduleTypeText)
}

func courseTypeValidation(fl validator.FieldLevel) bool {
	val := CourseType(fl.Field().String())
	for _, ct := range CourseTypes {
		if val == ct {
			return true
		}
	}
	return false
}

func moduleTypeValidation(fl validator.FieldLevel) bool {
	val := ModuleType(fl.Field().String())
	for _, mt := range ModuleTypes {
		if val == mt {
			return true
		}
	}
	return false
}
