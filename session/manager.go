// Package session owns the process wide view of who is signed in and keeps it
// mirrored in the persistent store.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/comptamaroc/webclient/apiclient"
	"github.com/comptamaroc/webclient/auth"
	"github.com/comptamaroc/webclient/storage"
	"github.com/comptamaroc/webclient/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrSignedOut is returned by readers that need a signed-in session.
var ErrSignedOut = errors.New("not signed in")

// Authenticator is the subset of the auth service the Manager drives.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*auth.AuthResult, error)
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.AuthResult, error)
	Logout(ctx context.Context)
	ValidateToken(ctx context.Context, token string) bool
	SetAuthToken(token string)
}

var (
	_ Authenticator             = (*auth.Service)(nil)
	_ apiclient.LoginRedirector = (*Manager)(nil)
)

// View is a consistent copy of the session at one instant.
type View struct {
	State           State
	User            *auth.UserProfile
	Token           string
	IsAuthenticated bool
	IsLoading       bool
}

// Manager holds the signed-in user and access token. Mutations are serialized;
// readers never block on network calls.
type Manager struct {
	auth     Authenticator
	store    storage.Store
	logger   zerolog.Logger
	navigate func(ctx context.Context)

	ops sync.Mutex // serializes Start, Login, Register and Logout

	mu    sync.RWMutex
	state State
	user  *auth.UserProfile
	token string
}

// Option defines a function type to modify the Manager instance.
type Option func(*Manager)

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithNavigator sets the hook run when the session is ended by a failed token
// refresh, typically sending the user to the login page.
func WithNavigator(fn func(ctx context.Context)) Option {
	return func(m *Manager) {
		m.navigate = fn
	}
}

func NewManager(authenticator Authenticator, store storage.Store, options ...Option) (*Manager, error) {
	if authenticator == nil {
		return nil, errors.New("[NewManager] authenticator is required")
	}
	if store == nil {
		return nil, errors.New("[NewManager] store is required")
	}

	m := &Manager{
		auth:     authenticator,
		store:    store,
		logger:   log.Logger,
		navigate: func(context.Context) {},
		state:    Loading,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Start restores a persisted session if the server still accepts its token.
// Anything short of a complete, valid record is cleared. Start always leaves the
// Manager Authenticated or Unauthenticated.
func (m *Manager) Start(ctx context.Context) State {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	m.state = Loading
	m.mu.Unlock()

	rec, err := loadRecord(ctx, m.store)
	switch {
	case err != nil:
		m.logger.Warn().Err(err).Msg("Unable to read stored session")
		return m.discard(ctx)
	case rec.empty():
		m.set(Unauthenticated, nil, "")
		return Unauthenticated
	case !rec.complete():
		m.logger.Info().Msg("Discarding incomplete stored session")
		return m.discard(ctx)
	}

	user, err := rec.profile()
	if err != nil {
		m.logger.Warn().Err(err).Msg("Discarding stored session")
		return m.discard(ctx)
	}
	if !m.auth.ValidateToken(ctx, rec.Token) {
		m.logger.Info().Str("email", user.Email).Msg("Stored token rejected, signing out")
		return m.discard(ctx)
	}

	m.set(Authenticated, user, rec.Token)
	m.auth.SetAuthToken(rec.Token)
	m.logger.Info().Str("email", user.Email).Msg("Session restored")
	return Authenticated
}

// Login signs in and persists the session. On failure the error is returned as
// the auth service produced it and the session is left as it was.
func (m *Manager) Login(ctx context.Context, email, password string) (*auth.UserProfile, error) {
	m.ops.Lock()
	defer m.ops.Unlock()

	result, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return m.adopt(ctx, result)
}

// Register creates the account and signs it in, like Login.
func (m *Manager) Register(ctx context.Context, req auth.RegisterRequest) (*auth.UserProfile, error) {
	m.ops.Lock()
	defer m.ops.Unlock()

	result, err := m.auth.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.adopt(ctx, result)
}

// adopt persists result and makes it the live session. If the store cannot hold
// the complete record the manager ends signed out.
func (m *Manager) adopt(ctx context.Context, result *auth.AuthResult) (*auth.UserProfile, error) {
	if err := saveRecord(ctx, m.store, result); err != nil {
		m.set(Unauthenticated, nil, "")
		m.auth.SetAuthToken("")
		return nil, fmt.Errorf("persist session: %w", err)
	}

	profile := result.Profile()
	m.set(Authenticated, &profile, result.Token)
	m.auth.SetAuthToken(result.Token)
	m.logger.Info().Int64("userID", profile.ID).Str("email", profile.Email).Msg("Signed in")
	return copyProfile(&profile), nil
}

// Logout ends the session. The remote logout is best-effort; local state is
// always cleared. The error only reports a store that could not be cleared.
func (m *Manager) Logout(ctx context.Context) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	if m.Token() != "" {
		m.auth.Logout(ctx)
	}

	m.set(Unauthenticated, nil, "")
	m.auth.SetAuthToken("")
	if err := clearRecord(ctx, m.store); err != nil {
		m.logger.Error().Err(err).Msg("Unable to clear stored session")
		return fmt.Errorf("clear session: %w", err)
	}
	m.logger.Info().Msg("Signed out")
	return nil
}

// SignedOut drops the session after the API client gave up on refreshing it,
// then runs the navigator.
func (m *Manager) SignedOut(ctx context.Context) {
	m.set(Unauthenticated, nil, "")
	m.auth.SetAuthToken("")
	if err := clearRecord(ctx, m.store); err != nil {
		m.logger.Warn().Err(err).Msg("Unable to clear stored session")
	}
	m.logger.Info().Msg("Session expired")
	m.navigate(ctx)
}

// RedirectToLogin lets the Manager serve as the API client's LoginRedirector.
func (m *Manager) RedirectToLogin(ctx context.Context) {
	m.SignedOut(ctx)
}

// discard clears the persisted record and settles on Unauthenticated.
func (m *Manager) discard(ctx context.Context) State {
	if err := clearRecord(ctx, m.store); err != nil {
		m.logger.Warn().Err(err).Msg("Unable to clear stored session")
	}
	m.set(Unauthenticated, nil, "")
	m.auth.SetAuthToken("")
	return Unauthenticated
}

func (m *Manager) set(state State, user *auth.UserProfile, accessToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.user = user
	m.token = accessToken
}

func (m *Manager) Snapshot() View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return View{
		State:           m.state,
		User:            copyProfile(m.user),
		Token:           m.token,
		IsAuthenticated: m.user != nil && m.token != "",
		IsLoading:       m.state == Loading,
	}
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// User returns a copy of the signed-in user, or nil.
func (m *Manager) User() *auth.UserProfile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyProfile(m.user)
}

func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil && m.token != ""
}

func (m *Manager) IsLoading() bool {
	return m.State() == Loading
}

// TokenExpiry reads the exp claim of the current access token. Informational only.
func (m *Manager) TokenExpiry() (time.Time, error) {
	accessToken := m.Token()
	if accessToken == "" {
		return time.Time{}, ErrSignedOut
	}
	return token.ExpiresAt(accessToken)
}

func copyProfile(u *auth.UserProfile) *auth.UserProfile {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
