package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/heirloom-app/heirloom/pkg/errors"
)

var validate = newValidator()

var nameRe = regexp.MustCompile(`^[A-Za-z-]+$`)

func newValidator() *validator.Validate {
	v := validator.New()
	// person_name: letters and hyphens only, matching the member name rules
	v.RegisterValidation("person_name", func(fl validator.FieldLevel) bool {
		return nameRe.MatchString(fl.Field().String())
	})
	return v
}

// ValidateStruct validates a struct based on its validation tags and returns
// a validation AppError carrying per-field detail.
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError formats validation errors into a single AppError
func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.NewValidationError(err.Error())
	}

	var messages []string
	fields := make(map[string]interface{}, len(validationErrors))
	for _, e := range validationErrors {
		msg := formatFieldError(e)
		messages = append(messages, msg)
		fields[strings.ToLower(e.Field())] = msg
	}

	return apperrors.NewValidationError(strings.Join(messages, "; ")).
		WithDetails(map[string]interface{}{"fields": fields})
}

// formatFieldError formats a single field validation error
func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "person_name":
		return fmt.Sprintf("%s may only contain letters and -", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
