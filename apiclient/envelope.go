package apiclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/comptamaroc/webclient/internal/errors"
)

// Envelope wraps every API response body.
type Envelope[T any] struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      T      `json:"data"`
	Timestamp string `json:"timestamp"`
}

// APIError is a response the server rejected, or a 2xx envelope with success=false.
type APIError struct {
	StatusCode int
	Message    string // server supplied message, may be empty
	RequestID  string
}

func newAPIError(status int, body []byte, requestID string) *APIError {
	e := &APIError{StatusCode: status, RequestID: requestID}
	var env Envelope[json.RawMessage]
	if err := json.Unmarshal(body, &env); err == nil {
		e.Message = env.Message
	}
	return e
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, msg)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return apperrors.ErrUnauthorized
	case http.StatusForbidden:
		return apperrors.ErrForbidden
	}
	return nil
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// MessageOf returns the human readable message the server attached to err.
func MessageOf(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message, true
	}
	return "", false
}

// Decode unwraps the data field of a successful response.
func Decode[T any](res *Response) (T, error) {
	var zero T
	if len(bytes.TrimSpace(res.Body)) == 0 {
		return zero, nil
	}

	var env Envelope[T]
	if err := json.Unmarshal(res.Body, &env); err != nil {
		return zero, fmt.Errorf("%w: decode envelope: %w", apperrors.ErrUnexpectedResponse, err)
	}
	if !env.Success {
		return zero, &APIError{StatusCode: res.StatusCode, Message: env.Message, RequestID: res.RequestID}
	}
	return env.Data, nil
}
