package auth

import (
	"errors"

	"github.com/comptamaroc/webclient/apiclient"
)

// Failure kinds of the auth operations. Match them with errors.Is.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrRegistration   = errors.New("registration failed")
	ErrTokenRefresh   = errors.New("refresh token exchange failed")
	ErrProfileFetch   = errors.New("user info unavailable")
	ErrPasswordChange = errors.New("password change failed")
)

// Error is a user facing auth failure. Message is the server's message when it sent one.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	for _, err := range []error{e.Kind, e.Err} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func newError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// wrapError prefers the server message over fallback.
func wrapError(kind error, fallback string, err error) *Error {
	msg, ok := apiclient.MessageOf(err)
	if !ok {
		msg = fallback
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// MessageOf returns the user facing message of an auth failure, or err's text.
func MessageOf(err error) string {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
