package service

import (
	"errors"
	"fmt"
)

var (
	ErrForbidden             = errors.New("forbidden")
	ErrAuthFailure           = errors.New("invalid username or password")
	ErrSelfDeletionForbidden = errors.New("cannot delete the account you are signed in with")
)

// ValidationError describes a missing or malformed input field.
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

func invalidField(field string, message string) error {
	return &ValidationError{Field: field, Message: message}
}
