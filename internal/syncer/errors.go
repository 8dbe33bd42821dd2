package syncer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrSyncInterrupted is returned when a sync exceeds its time budget. It
	// is safe to retry.
	ErrSyncInterrupted = errors.New("sync interrupted")
	ErrRemoteItemError = errors.New("provider reports connection error")
	ErrConsentExpired  = errors.New("open finance consent expired")
	// ErrConnectionInactive is returned for connections the user has
	// disconnected. They are never synced again.
	ErrConnectionInactive = errors.New("connection is disconnected")
)

// ValidationError reports malformed sync parameters.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validationError converts the first validator failure into a ValidationError.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}

	fe := fieldErrs[0]
	field := toSnakeCase(fe.Field())
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: field, Message: "is required"}
	case "min", "max":
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be between %d and %d", MinDaysBack, MaxDaysBack)}
	default:
		return &ValidationError{Field: field, Message: fmt.Sprintf("failed %s validation", fe.Tag())}
	}
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
