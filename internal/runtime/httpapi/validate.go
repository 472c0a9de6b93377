package httpapi

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	errspkg "github.com/drblury/resourceflow/internal/runtime/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// validateRequest checks v against its validate tags and reports every
// violation as a Validation error.
func validateRequest(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate request: %w", err)
	}

	details := make([]errspkg.FieldViolation, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, errspkg.FieldViolation{
			Field:         fe.Field(),
			Message:       violationMessage(fe),
			RejectedValue: fe.Value(),
		})
	}
	return errspkg.Validation(details...)
}

func violationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be blank"
	case "max":
		return fmt.Sprintf("size must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("size must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return fmt.Sprintf("failed the '%s' check", fe.Tag())
	}
}
