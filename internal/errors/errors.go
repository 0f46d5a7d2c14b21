package errors

import (
	"errors"
	"fmt"
)

// Common error types for the API client and session layer
var (
	// Transport errors
	ErrTransport = errors.New("transport failure")
	ErrTimeout   = errors.New("request timed out")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Token errors
	ErrRefreshFailed    = errors.New("token refresh failed")
	ErrValidationFailed = errors.New("token validation failed")

	// Session errors
	ErrInvalidSession = errors.New("invalid persisted session")

	// General errors
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors, discarding nils
func Join(errs ...error) error {
	return errors.Join(errs...)
}
