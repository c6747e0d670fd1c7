package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var setupOnce sync.Once

// SetupValidator configures the gin validator: JSON field names in errors and
// the decimal_gte0 rule for shopspring decimals. Safe to call more than once.
func SetupValidator() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("uri"), ",", 2)[0]
			}
			return name
		})
		v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
		_ = v.RegisterValidation("decimal_gte0", decimalGTE0)
	})
}

// decimalValue lets the validator see a decimal.Decimal as its string form
func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		return d.String()
	}
	return nil
}

// decimalGTE0 accepts decimals that are zero or positive
func decimalGTE0(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return false
	}
	d, err := decimal.NewFromString(field.String())
	return err == nil && !d.IsNegative()
}

// BindingError converts a request binding failure into an error the
// FailureTranslator can render: field violations become a validation error,
// unreadable bodies a 400 and oversized bodies a 413.
func BindingError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			details = append(details, fieldPath(e)+": "+getValidationMessage(e))
		}
		return shared.NewValidationError("Request validation failed", details...)
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return dto.NewStatusError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Request body exceeds %d bytes", maxBytes.Limit))
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		return dto.NewStatusError(http.StatusBadRequest, "Request body is not valid JSON",
			fmt.Sprintf("offset %d: %s", syntaxErr.Offset, syntaxErr.Error()))
	case errors.As(err, &typeErr):
		return shared.NewValidationError("Request validation failed",
			fmt.Sprintf("%s: must be of type %s", typeErr.Field, typeErr.Type.String()))
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return dto.NewStatusError(http.StatusBadRequest, "Request body is empty or truncated")
	}
	return dto.NewStatusError(http.StatusBadRequest, "Request could not be parsed")
}

// fieldPath renders the namespace of a field error without the root struct name,
// e.g. "items[0].quantity"
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

// getValidationMessage returns a human-readable validation message
func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		if e.Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		if e.Kind() == reflect.Slice {
			return "Must contain at least " + e.Param() + " entries"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		if e.Kind() == reflect.Slice {
			return "Must contain at most " + e.Param() + " entries"
		}
		return "Must be at most " + e.Param()
	case "uuid":
		return "Invalid UUID format"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gt":
		return "Must be greater than " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "decimal_gte0":
		return "Must not be negative"
	default:
		return "Invalid value"
	}
}
