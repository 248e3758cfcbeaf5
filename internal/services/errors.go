package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrProductsNotFound   = errors.New("products not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOwnerRequired      = errors.New("order owner is required")
	ErrInvalidCode        = errors.New("invalid or expired code")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email is already used by another account")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user account is disabled")
	ErrInvalidToken       = errors.New("invalid token")
	ErrFeedbackNotFound   = errors.New("feedback not found")
)

// ValidationError reports malformed input. Fields maps a json field path to a message.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Message: "validation failed",
		Fields:  map[string]string{field: message},
	}
}

func fieldsError(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Message: "validation failed", Fields: fields}
}

// DeliveryError wraps a failure to hand a message to the outbound transport.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return "failed to deliver message: " + e.Err.Error()
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
