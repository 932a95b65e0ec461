package validation

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	situation_errors "situation-room/pkg/errors"

	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator and reports failures as
// validation faults naming the offending JSON fields.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New()

	// Report json names rather than Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	return &Validator{validate: v}
}

func (v *Validator) Validate(i interface{}) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	fields := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		fields = append(fields, fe.Field())
	}
	sort.Strings(fields)
	return situation_errors.Validation("invalidrequest", "Missing or invalid fields: {0}", strings.Join(fields, ", "))
}
