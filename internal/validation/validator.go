// Package validation wraps go-playground/validator with the catalog's custom
// rules and turns field failures into the messages shown to users.
//
// Rules registered on top of the built-in set:
//
//	movieyear  integer between MinMovieYear and the current calendar year
//	score      number between 0 and 10
//
// Field names in messages come from the `label` struct tag, falling back to
// the json name.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// MinMovieYear is the year of the earliest surviving motion picture.
const MinMovieYear = 1888

var (
	validate     *validator.Validate
	validateOnce sync.Once

	// currentYear is swapped in tests.
	currentYear = func() int { return time.Now().Year() }
)

// FieldError is one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// RequestValidationError collects field failures. Error returns the first
// message, which is what single-message clients display.
type RequestValidationError struct {
	fields []FieldError
}

func (e *RequestValidationError) Error() string {
	if len(e.fields) == 0 {
		return "validation failed"
	}
	return e.fields[0].Message
}

// Fields returns every failure in struct order.
func (e *RequestValidationError) Fields() []FieldError {
	return e.fields
}

// NewError builds a single-field validation error with a fixed message.
func NewError(field, message string) *RequestValidationError {
	return &RequestValidationError{fields: []FieldError{{Field: field, Tag: "custom", Message: message}}}
}

// IsValidationError reports whether err carries a RequestValidationError.
func IsValidationError(err error) bool {
	var ve *RequestValidationError
	return errors.As(err, &ve)
}

// YearRangeMessage is the user-facing message for an out-of-range year.
func YearRangeMessage() string {
	return fmt.Sprintf("The year must be between %d and %d.", MinMovieYear, currentYear())
}

func get() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			if label := f.Tag.Get("label"); label != "" {
				return label
			}
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return strings.ToLower(f.Name)
			}
			return name
		})
		_ = v.RegisterValidation("movieyear", func(fl validator.FieldLevel) bool {
			year := fl.Field().Int()
			return year >= MinMovieYear && year <= int64(currentYear())
		})
		_ = v.RegisterValidation("score", func(fl validator.FieldLevel) bool {
			score := fl.Field().Float()
			return score >= 0 && score <= 10
		})
		validate = v
	})
	return validate
}

// ValidateStruct runs the struct's validate tags. It returns nil or a
// *RequestValidationError.
func ValidateStruct(s any) error {
	err := get().Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate: %w", err)
	}
	out := &RequestValidationError{fields: make([]FieldError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.fields = append(out.fields, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: message(fe),
		})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s must not be empty.", fe.Field())
	case "movieyear":
		return YearRangeMessage()
	case "score":
		return fmt.Sprintf("The %s must be between 0 and 10.", fe.Field())
	case "max":
		return fmt.Sprintf("The %s must be at most %s characters.", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("The %s must be greater than %s.", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("The %s must be at least %s.", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("The %s is invalid.", fe.Field())
	}
}
