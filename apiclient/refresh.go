package apiclient

import (
	"context"
	"fmt"
	"net/http"

	apperrors "github.com/comptamaroc/webclient/internal/errors"
	"github.com/comptamaroc/webclient/storage"
)

// refreshed is the part of the /auth/refresh payload the client needs.
type refreshed struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// refresh obtains a new access token after a 401. Without a stored refresh token
// the original 401 is returned unchanged. Concurrent requests holding the same
// refresh token share a single exchange.
func (c *Client) refresh(ctx context.Context, unauthorized error) (string, error) {
	refreshToken, err := storage.Lookup(ctx, c.store, storage.KeyRefreshToken)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Unable to read refresh token")
	}
	if refreshToken == "" {
		c.metrics.observeRefresh(RefreshMissing)
		return "", unauthorized
	}

	// The exchange outlives any single caller's cancellation; the client timeout bounds it
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.refreshes.Do(refreshToken, func() (any, error) {
		return c.exchange(shared, refreshToken)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// exchange calls the refresh endpoint authorized by the refresh token, bypassing
// the interceptors, and persists the new pair. Any failure signs the user out.
func (c *Client) exchange(ctx context.Context, refreshToken string) (string, error) {
	pair, err := c.postRefresh(ctx, refreshToken)
	if err == nil {
		err = c.persist(ctx, pair)
	}
	if err != nil {
		c.metrics.observeRefresh(RefreshFailure)
		c.logger.Warn().Err(err).Msg("Token refresh failed, signing out")
		if clearErr := storage.RemoveAll(ctx, c.store, storage.RecordKeys...); clearErr != nil {
			c.logger.Error().Err(clearErr).Msg("Failed to clear persisted session")
		}
		c.redirector.RedirectToLogin(ctx)
		return "", fmt.Errorf("%w: %w", apperrors.ErrRefreshFailed, err)
	}

	c.metrics.observeRefresh(RefreshSuccess)
	return pair.AccessToken, nil
}

func (c *Client) postRefresh(ctx context.Context, refreshToken string) (refreshed, error) {
	req, err := newRequest(http.MethodPost, RefreshPath, struct{}{}, []RequestOption{WithBearer(refreshToken)})
	if err != nil {
		return refreshed{}, err
	}

	raw, err := c.send(ctx, req, refreshToken)
	if err != nil {
		return refreshed{}, err
	}
	res, err := raw.result()
	if err != nil {
		return refreshed{}, err
	}
	pair, err := Decode[refreshed](res)
	if err != nil {
		return refreshed{}, err
	}
	if pair.AccessToken == "" {
		return refreshed{}, fmt.Errorf("%w: refresh response carries no access token", apperrors.ErrUnexpectedResponse)
	}
	return pair, nil
}

func (c *Client) persist(ctx context.Context, pair refreshed) error {
	if err := c.store.Set(ctx, storage.KeyToken, pair.AccessToken); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	// Servers that do not rotate refresh tokens keep the current one
	if pair.RefreshToken == "" {
		return nil
	}
	if err := c.store.Set(ctx, storage.KeyRefreshToken, pair.RefreshToken); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}
