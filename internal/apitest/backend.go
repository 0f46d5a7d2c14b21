// Package apitest is an in-process stand-in for the accounting API. It speaks the
// same envelope and /api/auth contract and lets tests expire tokens and inject
// refresh and logout failures.
package apitest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

const (
	defaultAccessTTL = 15 * time.Minute
	signingSecret    = "apitest-signing-secret"
)

// Route names accepted by Calls.
const (
	RouteLogin          = "login"
	RouteRegister       = "register"
	RouteRefresh        = "refresh"
	RouteLogout         = "logout"
	RouteValidate       = "validate"
	RouteMe             = "me"
	RouteChangePassword = "change-password"
	RouteClients        = "clients"
	RouteClient         = "client"
)

type failure struct {
	status  int
	message string
}

// Backend is the fake API. It is an http.Handler rooted at "/".
type Backend struct {
	router *mux.Router
	users  *userRepo
	tokens *tokenManager
	server *httptest.Server

	accessTTL time.Duration
	nowFunc   func() time.Time
	seed      bool

	mu             sync.Mutex
	calls          map[string]int
	refreshFailure *failure
	logoutFailure  *failure
}

// Option defines a function type to modify the Backend instance.
type Option func(*Backend)

func WithAccessTTL(d time.Duration) Option {
	return func(b *Backend) {
		b.accessTTL = d
	}
}

// WithNowFunc sets the clock used to issue and check token expiry.
func WithNowFunc(now func() time.Time) Option {
	return func(b *Backend) {
		b.nowFunc = now
	}
}

// WithoutSeedUsers starts with no accounts.
func WithoutSeedUsers() Option {
	return func(b *Backend) {
		b.seed = false
	}
}

func New(options ...Option) *Backend {
	b := &Backend{
		users:     newUserRepo(),
		accessTTL: defaultAccessTTL,
		nowFunc:   time.Now,
		seed:      true,
		calls:     make(map[string]int),
	}
	for _, opt := range options {
		opt(b)
	}
	b.tokens = newTokenManager([]byte(signingSecret), b.accessTTL, b.nowFunc)

	if b.seed {
		b.mustAddUser(User{FirstName: "Admin", LastName: "User", Email: AdminEmail, Role: "ADMIN", Active: true}, AdminPassword)
		b.mustAddUser(User{FirstName: "Hassan", LastName: "Alami", Email: AccountantEmail, Role: "ACCOUNTANT", Active: true}, AccountantPassword)
	}

	b.router = b.routes()
	return b
}

// Start serves a new Backend on a local port until the test ends.
func Start(t testing.TB, options ...Option) *Backend {
	t.Helper()
	b := New(options...)
	b.server = httptest.NewServer(b)
	t.Cleanup(b.server.Close)
	return b
}

// BaseURL is the API root, e.g. "http://127.0.0.1:1234/api". Only valid after Start.
func (b *Backend) BaseURL() string {
	if b.server == nil {
		return ""
	}
	return b.server.URL + "/api"
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.router.ServeHTTP(w, r)
}

func (b *Backend) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(recoverPanics, b.countCalls)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found: "+r.URL.Path)
	})

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/login", b.handleLogin).Methods(http.MethodPost).Name(RouteLogin)
	api.HandleFunc("/auth/register", b.handleRegister).Methods(http.MethodPost).Name(RouteRegister)
	api.HandleFunc("/auth/refresh", b.handleRefresh).Methods(http.MethodPost).Name(RouteRefresh)
	api.HandleFunc("/auth/logout", b.handleLogout).Methods(http.MethodPost).Name(RouteLogout)
	api.HandleFunc("/auth/validate", b.handleValidate).Methods(http.MethodGet).Name(RouteValidate)

	protected := api.NewRoute().Subrouter()
	protected.Use(b.requireAuth)
	protected.HandleFunc("/auth/me", b.handleMe).Methods(http.MethodGet).Name(RouteMe)
	protected.HandleFunc("/auth/change-password", b.handleChangePassword).Methods(http.MethodPost).Name(RouteChangePassword)
	protected.HandleFunc("/clients", b.handleClients).Methods(http.MethodGet).Name(RouteClients)
	protected.HandleFunc("/clients/{id:[0-9]+}", b.handleClient).Methods(http.MethodGet).Name(RouteClient)

	return router
}

func (b *Backend) countCalls(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if route := mux.CurrentRoute(r); route != nil && route.GetName() != "" {
			b.mu.Lock()
			b.calls[route.GetName()]++
			b.mu.Unlock()
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanics answers a panicking handler the way the backend's exception
// handler does.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				writeError(w, http.StatusInternalServerError, fmt.Sprintf("An unexpected error occurred: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Calls returns how many requests reached the named route.
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// AddUser creates an account with the given password. ID is assigned.
func (b *Backend) AddUser(user User, password string) (User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("Backend.AddUser HashPassword: %w", err)
	}
	user.PasswordHash = hash
	if user.Role == "" {
		user.Role = defaultRole
	}
	return b.users.insert(user)
}

func (b *Backend) mustAddUser(user User, password string) {
	if _, err := b.AddUser(user, password); err != nil {
		panic(err)
	}
}

func (b *Backend) DeactivateUser(email string) error {
	return b.users.update(email, func(u *User) { u.Active = false })
}

// IssueTokens signs a fresh pair for email without going through /auth/login.
func (b *Backend) IssueTokens(email string) (accessToken, refreshToken string, err error) {
	user, err := b.users.getByEmail(email)
	if err != nil {
		return "", "", err
	}
	return b.issue(user)
}

// ExpireAccessTokens makes every access token issued so far unusable.
func (b *Backend) ExpireAccessTokens() {
	b.tokens.expireAll()
}

func (b *Backend) RevokeRefreshTokens() {
	b.tokens.revokeRefreshTokens()
}

// FailRefresh makes /auth/refresh answer status with message. Status 0 restores it.
func (b *Backend) FailRefresh(status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshFailure = newFailure(status, message)
}

// FailLogout makes /auth/logout answer status with message. Status 0 restores it.
func (b *Backend) FailLogout(status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logoutFailure = newFailure(status, message)
}

func newFailure(status int, message string) *failure {
	if status == 0 {
		return nil
	}
	return &failure{status: status, message: message}
}

func (b *Backend) injected(f **failure) *failure {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *f
}

func (b *Backend) issue(user User) (string, string, error) {
	access, err := b.tokens.createAccessToken(user)
	if err != nil {
		return "", "", err
	}
	refresh, err := b.tokens.createRefreshToken(user.Email)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}
