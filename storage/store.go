// Package storage defines the durable key/value surface that mirrors a signed-in
// session across process restarts.
package storage

import (
	"context"
	"errors"
)

// Keys of the persisted session record. These three keys are the entire durable
// state surface; they are written together and removed together.
const (
	KeyToken        = "token"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
)

// RecordKeys lists the persisted record keys in write order.
var RecordKeys = []string{KeyToken, KeyRefreshToken, KeyUser}

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("key not found")

// Store is a string key/value store.
type Store interface {
	// Get returns the value stored under key or ErrNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set creates or replaces the value stored under key
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// Lookup returns the value under key, or "" when the key is absent.
func Lookup(ctx context.Context, s Store, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

// RemoveAll removes every key, continuing past failures, and reports them joined.
func RemoveAll(ctx context.Context, s Store, keys ...string) error {
	var errs []error
	for _, key := range keys {
		if err := s.Remove(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
