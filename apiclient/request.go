package apiclient

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// RequestOption adjusts a single call.
type RequestOption func(*request)

// WithBearer authorizes the call with token instead of the stored access token.
// Such calls are never refreshed: a 401 means the given token was rejected.
func WithBearer(token string) RequestOption {
	return func(r *request) {
		r.bearer = token
		r.explicitBearer = true
		r.noRefresh = true
	}
}

// WithoutRefresh lets a 401 propagate without attempting a token refresh.
func WithoutRefresh() RequestOption {
	return func(r *request) {
		r.noRefresh = true
	}
}

// request is the immutable description of one logical call. The replay after a
// refresh is built from the same descriptor and keeps its request ID.
type request struct {
	id             string
	method         string
	path           string
	body           []byte
	bearer         string
	explicitBearer bool
	noRefresh      bool
}

func newRequest(method, path string, payload any, opts []RequestOption) (*request, error) {
	r := &request{
		id:     uuid.NewString(),
		method: method,
		path:   path,
	}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		r.body = body
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}
