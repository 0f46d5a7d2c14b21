// Package guard decides what a navigation to an application path should do
// given the current session.
package guard

import (
	"path"
	"slices"
	"strings"
)

const (
	PathRoot      = "/"
	PathLogin     = "/login"
	PathRegister  = "/register"
	PathDashboard = "/dashboard"
)

// protectedPaths are the pages behind the application layout.
var protectedPaths = []string{
	PathDashboard,
	"/clients",
	"/suppliers",
	"/products",
	"/invoices",
	"/accounting",
	"/reports",
	"/settings",
}

// SessionView is what the guard needs to know about the session.
type SessionView interface {
	IsAuthenticated() bool
	IsLoading() bool
}

type Outcome int

const (
	// Allow renders the requested page.
	Allow Outcome = iota
	// Wait renders a spinner until the session has finished loading.
	Wait
	// Redirect replaces the location with Decision.RedirectTo.
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Wait:
		return "wait"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

// Decision is the result of Resolve. From is set when a protected page sent the
// user to the login page, so the login page can return there.
type Decision struct {
	Outcome    Outcome
	RedirectTo string
	From       string
}

func (d Decision) String() string {
	if d.Outcome != Redirect {
		return d.Outcome.String()
	}
	return "redirect " + d.RedirectTo
}

// ProtectedPaths lists the pages that require a signed-in user.
func ProtectedPaths() []string {
	return slices.Clone(protectedPaths)
}

// IsProtected reports whether p is a page that requires a signed-in user.
func IsProtected(p string) bool {
	return slices.Contains(protectedPaths, normalize(p))
}

// Resolve applies the routing table to a navigation to p.
func Resolve(view SessionView, p string) Decision {
	if view.IsLoading() {
		return Decision{Outcome: Wait}
	}

	signedIn := view.IsAuthenticated()
	p = normalize(p)
	switch {
	case p == PathLogin || p == PathRegister:
		if signedIn {
			return redirect(PathDashboard)
		}
		return Decision{Outcome: Allow}
	case slices.Contains(protectedPaths, p):
		if !signedIn {
			return Decision{Outcome: Redirect, RedirectTo: PathLogin, From: p}
		}
		return Decision{Outcome: Allow}
	case p == PathRoot && !signedIn:
		return Decision{Outcome: Redirect, RedirectTo: PathLogin, From: PathRoot}
	}

	// index and unknown paths
	if signedIn {
		return redirect(PathDashboard)
	}
	return redirect(PathLogin)
}

func redirect(to string) Decision {
	return Decision{Outcome: Redirect, RedirectTo: to}
}

// normalize drops the query, fragment and trailing slash of p.
func normalize(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
