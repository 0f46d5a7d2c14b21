package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/comptamaroc/webclient/apiclient"
	apperrors "github.com/comptamaroc/webclient/internal/errors"
	"github.com/comptamaroc/webclient/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Auth endpoints, relative to the API base URL.
const (
	PathLogin          = "/auth/login"
	PathRegister       = "/auth/register"
	PathLogout         = "/auth/logout"
	PathValidate       = "/auth/validate"
	PathRefresh        = apiclient.RefreshPath
	PathMe             = "/auth/me"
	PathChangePassword = "/auth/change-password"
)

// Service wraps the /auth endpoints of the accounting API.
type Service struct {
	client *apiclient.Client
	store  storage.Store
	logger zerolog.Logger

	mu        sync.RWMutex
	authToken string // active access token held in memory
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a Service issuing requests through client. store is the same
// store the client reads tokens from.
func NewService(client *apiclient.Client, store storage.Store, options ...ServiceOption) (*Service, error) {
	if client == nil {
		return nil, errors.New("[NewService] client is required")
	}
	if store == nil {
		return nil, errors.New("[NewService] store is required")
	}

	s := &Service{
		client: client,
		store:  store,
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Login exchanges credentials for a token pair and the user's profile.
// A 401 here means bad credentials, so it is never refreshed.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, newError(ErrAuthentication, "Email and password are required")
	}

	result, err := apiclient.Post[AuthResult](ctx, s.client, PathLogin,
		LoginRequest{Email: email, Password: password}, apiclient.WithoutRefresh())
	if err != nil {
		return nil, wrapError(ErrAuthentication, "Login failed", err)
	}
	if err := checkIssued(result); err != nil {
		return nil, wrapError(ErrAuthentication, "Login failed", err)
	}
	return &result, nil
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return nil, newError(ErrRegistration, "Email and password are required")
	}

	result, err := apiclient.Post[AuthResult](ctx, s.client, PathRegister, req, apiclient.WithoutRefresh())
	if err != nil {
		return nil, wrapError(ErrRegistration, "Registration failed", err)
	}
	if err := checkIssued(result); err != nil {
		return nil, wrapError(ErrRegistration, "Registration failed", err)
	}
	return &result, nil
}

// Logout tells the server to end the session. It is best-effort: failures are
// logged and never returned.
func (s *Service) Logout(ctx context.Context) {
	if _, err := apiclient.Post[json.RawMessage](ctx, s.client, PathLogout, struct{}{}); err != nil {
		s.logger.Warn().Err(err).Msg("Logout error")
	}
}

// ValidateToken asks the server whether token is still valid. The token is sent as
// the bearer of this call regardless of what is stored. Any failure reads as false.
func (s *Service) ValidateToken(ctx context.Context, token string) bool {
	if strings.TrimSpace(token) == "" {
		return false
	}
	valid, err := apiclient.Get[bool](ctx, s.client, PathValidate, apiclient.WithBearer(token))
	if err != nil {
		s.logger.Debug().Err(err).Msg("Token validation failed")
		return false
	}
	return valid
}

// RefreshToken exchanges refreshToken for a new pair. It does not touch the store.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, newError(ErrTokenRefresh, "Refresh token is required")
	}

	result, err := apiclient.Post[AuthResult](ctx, s.client, PathRefresh, struct{}{}, apiclient.WithBearer(refreshToken))
	if err != nil {
		return nil, wrapError(ErrTokenRefresh, "Token refresh failed", err)
	}
	if result.Token == "" {
		return nil, wrapError(ErrTokenRefresh, "Token refresh failed",
			fmt.Errorf("%w: refresh response carries no token", apperrors.ErrUnexpectedResponse))
	}
	return &result, nil
}

// CurrentUser fetches the profile of the signed-in user.
func (s *Service) CurrentUser(ctx context.Context) (*UserProfile, error) {
	result, err := apiclient.Get[AuthResult](ctx, s.client, PathMe)
	if err != nil {
		return nil, wrapError(ErrProfileFetch, "Failed to get user info", err)
	}
	profile := result.Profile()
	return &profile, nil
}

func (s *Service) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return newError(ErrPasswordChange, "Current and new password are required")
	}

	_, err := apiclient.Post[json.RawMessage](ctx, s.client, PathChangePassword, ChangePasswordRequest{
		CurrentPassword: currentPassword,
		NewPassword:     newPassword,
	})
	if err != nil {
		return wrapError(ErrPasswordChange, "Password change failed", err)
	}
	return nil
}

// IsAuthenticated reports whether an access token is held in memory or persisted.
// It says nothing about the token's validity.
func (s *Service) IsAuthenticated(ctx context.Context) bool {
	if s.AuthToken() != "" {
		return true
	}
	stored, err := storage.Lookup(ctx, s.store, storage.KeyToken)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Failed to read stored token")
		return false
	}
	return stored != ""
}

// SetAuthToken records the active access token; "" clears it.
func (s *Service) SetAuthToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authToken = token
}

func (s *Service) AuthToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authToken
}

func checkIssued(result AuthResult) error {
	if result.Token == "" || result.RefreshToken == "" {
		return fmt.Errorf("%w: response carries no token pair", apperrors.ErrUnexpectedResponse)
	}
	return nil
}
