package apiclient

import (
	"context"
	"net/http"
)

func Get[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (T, error) {
	return call[T](ctx, c, http.MethodGet, path, nil, opts)
}

func Post[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	return call[T](ctx, c, http.MethodPost, path, body, opts)
}

func Put[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	return call[T](ctx, c, http.MethodPut, path, body, opts)
}

func Patch[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	return call[T](ctx, c, http.MethodPatch, path, body, opts)
}

func Delete[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (T, error) {
	return call[T](ctx, c, http.MethodDelete, path, nil, opts)
}

func call[T any](ctx context.Context, c *Client, method, path string, body any, opts []RequestOption) (T, error) {
	res, err := c.Do(ctx, method, path, body, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](res)
}
