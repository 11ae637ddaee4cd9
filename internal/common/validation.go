package common

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// report json names, not Go field names
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// FieldErrors is a failed request validation. It matches ErrValidation.
type FieldErrors struct {
	Fields map[string]string
}

func (e *FieldErrors) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *FieldErrors) Unwrap() error { return ErrValidation }

// Validate checks the `validate` tags of a request struct.
func Validate(v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	fe := &FieldErrors{Fields: make(map[string]string, len(verrs))}
	for _, e := range verrs {
		fe.Fields[e.Field()] = fieldMessage(e)
	}
	return fe
}

// Invalid reports a single bad field found outside struct tags.
func Invalid(field, message string) error {
	return &FieldErrors{Fields: map[string]string{field: message}}
}

func fieldMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "min":
		return "must be at least " + e.Param() + " characters"
	case "max":
		return "must be at most " + e.Param() + " characters"
	case "oneof":
		return "must be one of " + e.Param()
	case "alphanum":
		return "must contain only letters and digits"
	}
	return "failed " + e.Tag() + " check"
}
