// Package apiclient is the HTTP client for the Compta Maroc REST API.
//
// Every request is authorized with the access token found in the session store.
// A 401 response triggers at most one token refresh per request, after which the
// original request is replayed once with the new access token. When the refresh
// itself fails the persisted session is cleared and the login redirector runs.
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/comptamaroc/webclient/internal/errors"
	"github.com/comptamaroc/webclient/storage"
	"github.com/comptamaroc/webclient/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTimeout bounds every outgoing request
	DefaultTimeout = 10 * time.Second

	// RefreshPath is the token refresh endpoint, relative to the base URL
	RefreshPath = "/auth/refresh"

	headerRequestID = "X-Request-ID"
	maxBodySize     = 4 << 20
)

// Client sends JSON requests to the API on behalf of the signed-in user.
// It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	store      storage.Store
	redirector LoginRedirector
	metrics    *Metrics
	logger     zerolog.Logger
	refreshes  singleflight.Group
}

// Option defines a function type to modify the Client instance.
type Option func(*Client)

// WithHTTPClient sets the underlying http.Client. It is copied, never mutated.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout overrides DefaultTimeout. Zero keeps the http.Client's own timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLoginRedirector sets what happens after a failed refresh.
func WithLoginRedirector(r LoginRedirector) Option {
	return func(c *Client) {
		if r != nil {
			c.redirector = r
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client for the API rooted at baseURL (e.g. "http://localhost:8080/api")
// that reads and writes tokens in store.
func New(baseURL string, store storage.Store, options ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("[apiclient.New] baseURL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("[apiclient.New] invalid baseURL %q", baseURL)
	}
	if store == nil {
		return nil, errors.New("[apiclient.New] store is required")
	}

	c := &Client{
		baseURL:    baseURL,
		timeout:    DefaultTimeout,
		store:      store,
		redirector: RedirectFunc(func(context.Context) {}),
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}

	hc := http.Client{}
	if c.httpClient != nil {
		hc = *c.httpClient
	}
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	c.httpClient = &hc

	return c, nil
}

// BaseURL returns the API root every path is resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Response is a successful (2xx) API response.
type Response struct {
	StatusCode int
	Body       []byte
	RequestID  string
}

// Do sends a request with a JSON encoded payload (nil for none) and returns the
// 2xx response. Error statuses are returned as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, payload any, opts ...RequestOption) (*Response, error) {
	req, err := newRequest(method, path, payload, opts)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, req)
}

// execute runs the response state machine for a single request:
//
//	INITIAL --2xx/other--> DONE
//	INITIAL --401, not retried--> REFRESHING --ok--> RETRYING --> DONE
//	                                         --fail--> FAILED
//
// The retry marker lives on this call's stack, so overlapping requests never
// share it.
func (c *Client) execute(ctx context.Context, req *request) (*Response, error) {
	retried := false

	accessToken, err := c.authorization(ctx, req)
	if err != nil {
		return nil, err
	}

	for {
		res, err := c.send(ctx, req, accessToken)
		if err != nil {
			return nil, err
		}
		if res.StatusCode != http.StatusUnauthorized || retried || req.noRefresh {
			return res.result()
		}

		// Mark before refreshing so a rejected replay cannot loop
		retried = true
		_, unauthorized := res.result()

		accessToken, err = c.refresh(ctx, unauthorized)
		if err != nil {
			return nil, err
		}
		c.logger.Debug().Str("request_id", req.id).Str("path", req.path).Msg("Replaying request with refreshed token")
	}
}

// authorization is the request interceptor: the explicit bearer when the call
// carries one, otherwise the stored access token ("" when signed out).
func (c *Client) authorization(ctx context.Context, req *request) (string, error) {
	if req.explicitBearer {
		return req.bearer, nil
	}
	accessToken, err := storage.Lookup(ctx, c.store, storage.KeyToken)
	if err != nil {
		return "", fmt.Errorf("read access token: %w", err)
	}
	return accessToken, nil
}

// rawResponse is any response the server produced, successful or not.
type rawResponse struct {
	Response
}

func (r *rawResponse) result() (*Response, error) {
	if r.StatusCode >= 200 && r.StatusCode < 300 {
		return &r.Response, nil
	}
	return nil, newAPIError(r.StatusCode, r.Body, r.RequestID)
}

func (c *Client) send(ctx context.Context, req *request, accessToken string) (*rawResponse, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", req.method, req.path, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(headerRequestID, req.id)
	token.SetAuthHeader(httpReq, accessToken)

	start := time.Now()
	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.observeRequest(req.method, "error")
		return nil, newTransportError(req, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		c.metrics.observeRequest(req.method, "error")
		return nil, newTransportError(req, err)
	}

	c.metrics.observeRequest(req.method, strconv.Itoa(res.StatusCode))
	c.logger.Debug().
		Str("method", req.method).
		Str("path", req.path).
		Int("status", res.StatusCode).
		Str("request_id", req.id).
		Dur("elapsed", time.Since(start)).
		Msg("API request")

	return &rawResponse{Response{StatusCode: res.StatusCode, Body: data, RequestID: req.id}}, nil
}

// TransportError reports a request that produced no HTTP response: DNS failure,
// refused connection, timeout or a broken body.
type TransportError struct {
	Method  string
	Path    string
	Timeout bool
	Err     error
}

func newTransportError(req *request, err error) *TransportError {
	return &TransportError{
		Method:  req.method,
		Path:    req.path,
		Timeout: isTimeout(err),
		Err:     err,
	}
}

func (e *TransportError) Error() string {
	kind := apperrors.ErrTransport
	if e.Timeout {
		kind = apperrors.ErrTimeout
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Method, e.Path, kind, e.Err)
}

func (e *TransportError) Unwrap() []error {
	errs := []error{apperrors.ErrTransport, e.Err}
	if e.Timeout {
		errs = append(errs, apperrors.ErrTimeout)
	}
	return errs
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
