// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is shared process-wide (it caches struct
// metadata) and carries the custom tags used by motion documents and input
// events:
//
//	motionname  - 1 to 100 word characters or spaces
//	haptics     - "LLL:SSS" three-digit motor pair
//	behavior    - one of protocol.Behaviors
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	motionNameRe = regexp.MustCompile(`^[\w ]{1,100}$`)
	hapticsRe    = regexp.MustCompile(`^\d{3}:\d{3}$`)
)

// ValidationError describes a single field that failed validation.
type ValidationError struct {
	field   string
	tag     string
	param   string
	value   any
	message string
}

// Field returns the JSON field name that failed validation.
func (e *ValidationError) Field() string { return e.field }

// Tag returns the validation tag that failed.
func (e *ValidationError) Tag() string { return e.tag }

// Param returns the tag parameter (e.g. "255" for "max=255").
func (e *ValidationError) Param() string { return e.param }

// Error returns a human-readable message.
func (e *ValidationError) Error() string { return e.message }

// RequestValidationError is a collection of field errors.
type RequestValidationError struct {
	errors []ValidationError
}

// Errors returns the individual field errors.
func (ve *RequestValidationError) Errors() []ValidationError {
	return ve.errors
}

// Error joins all field messages.
func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, 0, len(ve.errors))
	for _, err := range ve.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Fields returns the errors in a JSON-friendly shape.
func (ve *RequestValidationError) Fields() []map[string]any {
	fields := make([]map[string]any, len(ve.errors))
	for i, err := range ve.errors {
		fields[i] = map[string]any{
			"field":   err.field,
			"tag":     err.tag,
			"message": err.message,
		}
	}
	return fields
}

// GetValidator returns the shared validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report JSON names rather than Go field names.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})

		mustRegister("motionname", func(fl validator.FieldLevel) bool {
			return IsMotionName(fl.Field().String())
		})
		mustRegister("haptics", func(fl validator.FieldLevel) bool {
			return hapticsRe.MatchString(fl.Field().String())
		})
		mustRegister("behavior", func(fl validator.FieldLevel) bool {
			_, err := protocol.ParseBehavior(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %s: %v", tag, err))
	}
}

// IsMotionName reports whether s is a legal motion asset name. Names are
// also used as file stems, so this doubles as a path-traversal guard.
func IsMotionName(s string) bool {
	return motionNameRe.MatchString(s)
}

// ValidateStruct validates s. It returns nil on success.
func ValidateStruct(s any) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &RequestValidationError{
			errors: []ValidationError{{field: "unknown", tag: "unknown", message: err.Error()}},
		}
	}

	fieldErrors := make([]ValidationError, len(validationErrs))
	for i, fe := range validationErrs {
		fieldErrors[i] = ValidationError{
			field:   fe.Field(),
			tag:     fe.Tag(),
			param:   fe.Param(),
			value:   fe.Value(),
			message: translateError(fe),
		}
	}
	return &RequestValidationError{errors: fieldErrors}
}

// MissingFields reports absent required fields in the same shape as
// ValidateStruct. It returns nil when no field is given.
func MissingFields(fields ...string) *RequestValidationError {
	if len(fields) == 0 {
		return nil
	}
	errs := make([]ValidationError, len(fields))
	for i, f := range fields {
		errs[i] = ValidationError{
			field:   f,
			tag:     "required",
			message: fmt.Sprintf(errorMessageTemplates["required"], f),
		}
	}
	return &RequestValidationError{errors: errs}
}

var errorMessageTemplates = map[string]string{
	"required":   "%s is required",
	"motionname": "%s must be 1-100 letters, digits, underscores or spaces",
	"haptics":    "%s must look like 000:000",
	"behavior":   "%s must be a known behavior",
	"hexcolor":   "%s must be a hex color",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"min":   "%s must be at least %s",
	"max":   "%s must be at most %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
}

func translateError(fe validator.FieldError) string {
	if template, ok := errorMessageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(template, fe.Field())
	}
	if template, ok := errorMessageWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(template, fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}
