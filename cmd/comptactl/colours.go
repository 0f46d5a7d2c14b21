package main

import (
	"fmt"
	"net/http"

	"github.com/comptamaroc/webclient/guard"
)

const (
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	Gray    = "\033[90m" // Bright black, often appears as gray

	ResetColor = "\033[0m"
)

var outcomeColors = map[guard.Outcome]string{
	guard.Allow:    Green,
	guard.Wait:     Yellow,
	guard.Redirect: Cyan,
}

func colour(c, s string) string {
	return c + s + ResetColor
}

var methodColors = map[string]string{
	http.MethodGet:    Green,
	http.MethodPost:   Blue,
	http.MethodPut:    Cyan,
	http.MethodDelete: Yellow,
	http.MethodPatch:  Magenta,
}

// routeLabel renders "[ GET    ] path" with the method coloured.
func routeLabel(method, path string) string {
	c, ok := methodColors[method]
	if !ok {
		c = Gray
	}
	return fmt.Sprintf("[%s] %s", colour(c, fmt.Sprintf(" %-7s", method)), path)
}
