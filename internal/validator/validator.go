package validator

import (
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
)

var (
	validate *validator.Validate
	once     sync.Once
)

func NewValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		registerSerialCodeTags(validate)
	})
	return validate
}

// GetValidator returns the shared validator, building it on first use
func GetValidator() *validator.Validate {
	return NewValidator()
}

func registerSerialCodeTags(v *validator.Validate) {
	_ = v.RegisterValidation("tenant_code", func(fl validator.FieldLevel) bool {
		return serialcode.IsValidTenantCode(fl.Field().String())
	})
	_ = v.RegisterValidation("serial_prefix", func(fl validator.FieldLevel) bool {
		return serialcode.IsValidPrefix(fl.Field().String())
	})
	_ = v.RegisterValidation("serial_stage", func(fl validator.FieldLevel) bool {
		return serialcode.IsValidStage(int(fl.Field().Int()))
	})
}

func ValidateRequest(req interface{}) error {
	if err := GetValidator().Struct(req); err != nil {
		details := make(map[string]any)
		var validateErrs validator.ValidationErrors
		if ierr.As(err, &validateErrs) {
			for _, err := range validateErrs {
				details[err.Field()] = err.Error()
			}
		}
		return ierr.WithError(err).
			WithHint("Request validation failed").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	return nil
}
