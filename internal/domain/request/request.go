// Package request holds caller-facing request shapes and validates them
// with struct tags before any service runs.
package request

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"nixcfg/internal/domain/failure"
	"nixcfg/internal/domain/model"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("rebuildop", validateRebuildOperation)
}

type SaveRequest struct {
	Content      string `validate:"required"`
	Path         string `validate:"omitempty,startswith=/"`
	CreateBackup bool
}

type RebuildRequest struct {
	Operation string `validate:"required,rebuildop"`
	Flake     string `validate:"omitempty,max=512"`
	ShowTrace bool
}

type SearchRequest struct {
	Query string `validate:"required,min=2,max=100"`
	Limit int    `validate:"gte=0,lte=500"`
}

type NameRequest struct {
	Name string `validate:"required,min=1,max=255"`
}

func validateRebuildOperation(fl validator.FieldLevel) bool {
	_, err := model.ParseRebuildOperation(fl.Field().String())
	return err == nil
}

// Struct validates v and maps failures onto kind.
func Struct(v any, kind failure.Kind, op string) error {
	if err := validate.Struct(v); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return failure.New(kind, op, formatValidationErrors(validationErrors))
		}
		return failure.Wrap(kind, op, err)
	}
	return nil
}

func formatValidationErrors(errs validator.ValidationErrors) string {
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, formatFieldError(e))
	}
	return "validation failed: " + strings.Join(messages, "; ")
}

func formatFieldError(e validator.FieldError) string {
	field := toSnakeCase(e.Field())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, e.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, e.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %s", field, e.Param())
	case "rebuildop":
		ops := make([]string, 0, 6)
		for _, op := range model.RebuildOperations() {
			ops = append(ops, string(op))
		}
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(ops, ", "))
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}

func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteByte('_')
		}
		if r >= 'A' && r <= 'Z' {
			result.WriteRune(r + 32)
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
