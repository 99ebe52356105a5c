// Package validation checks edit payloads with go-playground/validator and
// reports failures as apperr validation errors keyed by JSON field name.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hugh/easy-diagrams/internal/apperr"
)

type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	return &Validator{v: v}
}

var std = New()

// Struct validates s with the package default validator.
func Struct(s interface{}) error {
	return std.Validate(s)
}

func (v *Validator) Validate(s interface{}) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	fields := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		fields[e.Field()] = friendlyMessage(e)
	}

	return apperr.ValidationWithDetails("validation failed", fields)
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", e.Param())
	case "alphanum":
		return "must contain only letters and digits"
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}
