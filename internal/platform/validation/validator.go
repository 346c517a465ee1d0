// Package validation validates request payloads with struct tags, e.g.
// `validate:"required,max=64"` or `validate:"dive,role"` for role names.
package validation

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"digicheese/backend/internal/identity/domain"
	"digicheese/backend/internal/platform/httpx"
)

var (
	validate *validator.Validate
	once     sync.Once
)

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		// role accepts any spelling ParseRole understands.
		_ = validate.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			_, err := domain.ParseRole(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// Validate checks s against its validate tags. Failures are returned as a 400 httpx.Error
// listing every offending field.
func Validate(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return httpx.Error{Status: http.StatusBadRequest, Code: httpx.CodeValidation, Message: "validation failed"}
	}
	messages := make([]string, 0, len(verrs))
	for _, e := range verrs {
		messages = append(messages, fieldPath(e)+": "+message(e))
	}
	return httpx.Error{Status: http.StatusBadRequest, Code: httpx.CodeValidation, Message: strings.Join(messages, "; ")}
}

// fieldPath drops the top-level struct name from the namespace ("req.roles[1]" -> "roles[1]").
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		switch {
		case e.Kind() == reflect.Slice:
			return "must have at least " + e.Param() + " item(s)"
		case isNumber(e.Kind()):
			return "must be at least " + e.Param()
		}
		return "must be at least " + e.Param() + " characters"
	case "max":
		if isNumber(e.Kind()) {
			return "must be at most " + e.Param()
		}
		return "must be at most " + e.Param() + " characters"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(e.Param(), " ", ", ")
	case "role":
		return "must be one of ADMIN, OP_COLIS, OP_STOCK"
	default:
		return "is invalid"
	}
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
