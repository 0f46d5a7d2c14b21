package apiclient

import "context"

// LoginRedirector sends the user back to the login entry point after the
// session could not be refreshed. The persisted session is already cleared
// when it runs.
type LoginRedirector interface {
	RedirectToLogin(ctx context.Context)
}

// RedirectFunc adapts a function to LoginRedirector.
type RedirectFunc func(ctx context.Context)

func (f RedirectFunc) RedirectToLogin(ctx context.Context) {
	f(ctx)
}
