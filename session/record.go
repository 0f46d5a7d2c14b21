package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/comptamaroc/webclient/auth"
	apperrors "github.com/comptamaroc/webclient/internal/errors"
	"github.com/comptamaroc/webclient/storage"
)

// record is the persisted session: token, refreshToken and the JSON encoded user.
type record struct {
	Token        string
	RefreshToken string
	User         string
}

func (r record) empty() bool {
	return r.Token == "" && r.RefreshToken == "" && r.User == ""
}

func (r record) complete() bool {
	return r.Token != "" && r.RefreshToken != "" && r.User != ""
}

func (r record) profile() (*auth.UserProfile, error) {
	var u auth.UserProfile
	if err := json.Unmarshal([]byte(r.User), &u); err != nil {
		return nil, fmt.Errorf("%w: decode user: %w", apperrors.ErrInvalidSession, err)
	}
	return &u, nil
}

func loadRecord(ctx context.Context, store storage.Store) (record, error) {
	var (
		r   record
		err error
	)
	if r.Token, err = storage.Lookup(ctx, store, storage.KeyToken); err != nil {
		return record{}, fmt.Errorf("read %s: %w", storage.KeyToken, err)
	}
	if r.RefreshToken, err = storage.Lookup(ctx, store, storage.KeyRefreshToken); err != nil {
		return record{}, fmt.Errorf("read %s: %w", storage.KeyRefreshToken, err)
	}
	if r.User, err = storage.Lookup(ctx, store, storage.KeyUser); err != nil {
		return record{}, fmt.Errorf("read %s: %w", storage.KeyUser, err)
	}
	return r, nil
}

// saveRecord writes all three keys. A failed write removes whatever was written.
func saveRecord(ctx context.Context, store storage.Store, result *auth.AuthResult) error {
	user, err := json.Marshal(result.Profile())
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	values := map[string]string{
		storage.KeyToken:        result.Token,
		storage.KeyRefreshToken: result.RefreshToken,
		storage.KeyUser:         string(user),
	}
	for _, key := range storage.RecordKeys {
		if err := store.Set(ctx, key, values[key]); err != nil {
			return apperrors.Join(fmt.Errorf("write %s: %w", key, err), clearRecord(ctx, store))
		}
	}
	return nil
}

func clearRecord(ctx context.Context, store storage.Store) error {
	return storage.RemoveAll(context.WithoutCancel(ctx), store, storage.RecordKeys...)
}
