package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/comptamaroc/webclient/auth"
	"github.com/comptamaroc/webclient/session"
	"github.com/comptamaroc/webclient/storage"
	"github.com/comptamaroc/webclient/storage/memstore"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const exampleUserJSON = `{"id":1,"email":"a@b.com","firstName":"A","lastName":"B","role":"user"}`

var exampleResult = &auth.AuthResult{
	Token:        "T1",
	RefreshToken: "R1",
	ID:           1,
	Email:        "a@b.com",
	FirstName:    "A",
	LastName:     "B",
	Role:         "user",
}

var _ session.Authenticator = (*fakeAuth)(nil)

// fakeAuth records calls and returns canned results.
type fakeAuth struct {
	mu             sync.Mutex
	result         *auth.AuthResult
	err            error
	valid          map[string]bool
	validateCalls  []string
	logoutCalls    int
	loginCalls     int
	registerCalls  int
	activeToken    string
	lastRegistered auth.RegisterRequest
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{valid: make(map[string]bool)}
}

func (f *fakeAuth) Login(_ context.Context, _, _ string) (*auth.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	return f.result, f.err
}

func (f *fakeAuth) Register(_ context.Context, req auth.RegisterRequest) (*auth.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++
	f.lastRegistered = req
	return f.result, f.err
}

func (f *fakeAuth) Logout(_ context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
}

func (f *fakeAuth) ValidateToken(_ context.Context, token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validateCalls = append(f.validateCalls, token)
	return f.valid[token]
}

func (f *fakeAuth) SetAuthToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeToken = token
}

func (f *fakeAuth) active() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeToken
}

// flakyStore fails Set or Get for chosen keys.
type flakyStore struct {
	*memstore.MemStore
	failSet map[string]bool
	failGet bool
}

var errDiskFull = errors.New("disk full")

func (s *flakyStore) Set(ctx context.Context, key, value string) error {
	if s.failSet[key] {
		return errDiskFull
	}
	return s.MemStore.Set(ctx, key, value)
}

func (s *flakyStore) Get(ctx context.Context, key string) (string, error) {
	if s.failGet {
		return "", errDiskFull
	}
	return s.MemStore.Get(ctx, key)
}

type testFixture struct {
	auth      *fakeAuth
	store     *memstore.MemStore
	manager   *session.Manager
	navigated int
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	return setupTestFixtureWithStore(t, memstore.New(), nil)
}

func setupTestFixtureWithStore(t *testing.T, mem *memstore.MemStore, store storage.Store) *testFixture {
	t.Helper()

	f := &testFixture{auth: newFakeAuth(), store: mem}
	if store == nil {
		store = mem
	}
	m, err := session.NewManager(f.auth, store,
		session.WithLogger(zerolog.Nop()),
		session.WithNavigator(func(context.Context) { f.navigated++ }),
	)
	require.NoError(t, err)
	f.manager = m
	return f
}

func (f *testFixture) persist(t *testing.T, values map[string]string) {
	t.Helper()
	for k, v := range values {
		require.NoError(t, f.store.Set(context.Background(), k, v))
	}
}

func requireSignedOut(t *testing.T, f *testFixture) {
	t.Helper()

	view := f.manager.Snapshot()
	require.Equal(t, session.Unauthenticated, view.State)
	require.False(t, view.IsAuthenticated)
	require.False(t, view.IsLoading)
	require.Nil(t, view.User)
	require.Empty(t, view.Token)
	require.Zero(t, f.store.Len())
	require.Empty(t, f.auth.active())
}

func TestStateString(t *testing.T) {
	require.Equal(t, "LOADING", session.Loading.String())
	require.Equal(t, "AUTHENTICATED", session.Authenticated.String())
	require.Equal(t, "UNAUTHENTICATED", session.Unauthenticated.String())
	require.Equal(t, "UNKNOWN", session.State(42).String())
}

func TestNewManager_Validation(t *testing.T) {
	_, err := session.NewManager(nil, memstore.New())
	require.Error(t, err)

	_, err = session.NewManager(newFakeAuth(), nil)
	require.Error(t, err)

	m, err := session.NewManager(newFakeAuth(), memstore.New())
	require.NoError(t, err)
	require.Equal(t, session.Loading, m.State())
	require.True(t, m.IsLoading())
	require.False(t, m.IsAuthenticated())
}

func TestStart(t *testing.T) {
	ctx := context.Background()
	complete := map[string]string{
		storage.KeyToken:        "T1",
		storage.KeyRefreshToken: "R1",
		storage.KeyUser:         exampleUserJSON,
	}

	t.Run("nothing stored", func(t *testing.T) {
		f := setupTestFixture(t)

		require.Equal(t, session.Unauthenticated, f.manager.Start(ctx))
		require.Empty(t, f.auth.validateCalls)
		requireSignedOut(t, f)
	})

	t.Run("valid stored token restores the user", func(t *testing.T) {
		f := setupTestFixture(t)
		f.persist(t, complete)
		f.auth.valid["T1"] = true

		require.Equal(t, session.Authenticated, f.manager.Start(ctx))
		require.Equal(t, []string{"T1"}, f.auth.validateCalls)

		view := f.manager.Snapshot()
		require.True(t, view.IsAuthenticated)
		require.False(t, view.IsLoading)
		require.Equal(t, "T1", view.Token)
		require.Equal(t, &auth.UserProfile{ID: 1, Email: "a@b.com", FirstName: "A", LastName: "B", Role: "user"}, view.User)
		require.Equal(t, "T1", f.auth.active())
		require.Equal(t, complete, f.store.Snapshot())
	})

	t.Run("rejected stored token clears everything", func(t *testing.T) {
		f := setupTestFixture(t)
		f.persist(t, complete)

		require.Equal(t, session.Unauthenticated, f.manager.Start(ctx))
		require.Equal(t, []string{"T1"}, f.auth.validateCalls)
		requireSignedOut(t, f)
	})

	t.Run("partial record is cleared without validation", func(t *testing.T) {
		f := setupTestFixture(t)
		f.persist(t, map[string]string{storage.KeyToken: "T1", storage.KeyUser: exampleUserJSON})
		f.auth.valid["T1"] = true

		require.Equal(t, session.Unauthenticated, f.manager.Start(ctx))
		require.Empty(t, f.auth.validateCalls)
		requireSignedOut(t, f)
	})

	t.Run("undecodable user is cleared", func(t *testing.T) {
		f := setupTestFixture(t)
		f.persist(t, map[string]string{
			storage.KeyToken:        "T1",
			storage.KeyRefreshToken: "R1",
			storage.KeyUser:         "{not json",
		})
		f.auth.valid["T1"] = true

		require.Equal(t, session.Unauthenticated, f.manager.Start(ctx))
		requireSignedOut(t, f)
	})

	t.Run("unreadable store", func(t *testing.T) {
		mem := memstore.New()
		f := setupTestFixtureWithStore(t, mem, &flakyStore{MemStore: mem, failGet: true})
		f.persist(t, complete)
		f.auth.valid["T1"] = true

		require.Equal(t, session.Unauthenticated, f.manager.Start(ctx))
		requireSignedOut(t, f)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("persists all three keys", func(t *testing.T) {
		f := setupTestFixture(t)
		f.manager.Start(ctx)
		f.auth.result = exampleResult

		user, err := f.manager.Login(ctx, "a@b.com", "pw")
		require.NoError(t, err)
		require.Equal(t, "a@b.com", user.Email)

		require.Equal(t, map[string]string{
			storage.KeyToken:        "T1",
			storage.KeyRefreshToken: "R1",
			storage.KeyUser:         exampleUserJSON,
		}, f.store.Snapshot())
		require.True(t, f.manager.IsAuthenticated())
		require.Equal(t, session.Authenticated, f.manager.State())
		require.Equal(t, "T1", f.manager.Token())
		require.Equal(t, "T1", f.auth.active())
	})

	t.Run("failure leaves the session untouched", func(t *testing.T) {
		f := setupTestFixture(t)
		f.manager.Start(ctx)
		wantErr := &auth.Error{Kind: auth.ErrAuthentication, Message: "Invalid email or password"}
		f.auth.err = wantErr

		user, err := f.manager.Login(ctx, "a@b.com", "bad")
		require.Nil(t, user)
		require.Same(t, wantErr, err)
		requireSignedOut(t, f)
	})

	t.Run("failed write leaves no partial record", func(t *testing.T) {
		mem := memstore.New()
		f := setupTestFixtureWithStore(t, mem, &flakyStore{
			MemStore: mem,
			failSet:  map[string]bool{storage.KeyUser: true},
		})
		f.manager.Start(ctx)
		f.auth.result = exampleResult

		_, err := f.manager.Login(ctx, "a@b.com", "pw")
		require.ErrorIs(t, err, errDiskFull)
		requireSignedOut(t, f)
	})

	t.Run("returned user is a copy", func(t *testing.T) {
		f := setupTestFixture(t)
		f.auth.result = exampleResult

		user, err := f.manager.Login(ctx, "a@b.com", "pw")
		require.NoError(t, err)
		user.Email = "changed@b.com"
		require.Equal(t, "a@b.com", f.manager.User().Email)
	})
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.manager.Start(ctx)
	f.auth.result = exampleResult

	req := auth.RegisterRequest{FirstName: "A", LastName: "B", Email: "a@b.com", Password: "pw", RoleName: "USER"}
	user, err := f.manager.Register(ctx, req)
	require.NoError(t, err)
	require.Equal(t, int64(1), user.ID)
	require.Equal(t, req, f.auth.lastRegistered)
	require.Equal(t, 3, f.store.Len())
	require.True(t, f.manager.IsAuthenticated())

	t.Run("failure", func(t *testing.T) {
		f := setupTestFixture(t)
		f.manager.Start(ctx)
		f.auth.err = &auth.Error{Kind: auth.ErrRegistration, Message: "Registration failed"}

		_, err := f.manager.Register(ctx, req)
		require.ErrorIs(t, err, auth.ErrRegistration)
		requireSignedOut(t, f)
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("signed in", func(t *testing.T) {
		f := setupTestFixture(t)
		f.auth.result = exampleResult
		_, err := f.manager.Login(ctx, "a@b.com", "pw")
		require.NoError(t, err)

		require.NoError(t, f.manager.Logout(ctx))
		require.Equal(t, 1, f.auth.logoutCalls)
		requireSignedOut(t, f)
	})

	t.Run("signed out skips the remote call", func(t *testing.T) {
		f := setupTestFixture(t)
		f.manager.Start(ctx)

		require.NoError(t, f.manager.Logout(ctx))
		require.Zero(t, f.auth.logoutCalls)
		requireSignedOut(t, f)
	})

	t.Run("cancelled context still clears", func(t *testing.T) {
		f := setupTestFixture(t)
		f.auth.result = exampleResult
		_, err := f.manager.Login(ctx, "a@b.com", "pw")
		require.NoError(t, err)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		require.NoError(t, f.manager.Logout(cancelled))
		requireSignedOut(t, f)
	})
}

func TestSignedOut(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.auth.result = exampleResult
	_, err := f.manager.Login(ctx, "a@b.com", "pw")
	require.NoError(t, err)

	f.manager.RedirectToLogin(ctx)
	require.Equal(t, 1, f.navigated)
	requireSignedOut(t, f)
}

func TestTokenExpiry(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	_, err := f.manager.TokenExpiry()
	require.ErrorIs(t, err, session.ErrSignedOut)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "a@b.com",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	result := *exampleResult
	result.Token = signed
	f.auth.result = &result
	_, err = f.manager.Login(ctx, "a@b.com", "pw")
	require.NoError(t, err)

	got, err := f.manager.TokenExpiry()
	require.NoError(t, err)
	require.True(t, exp.Equal(got))
}

func TestSnapshotIsConsistentUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.auth.result = exampleResult
	f.manager.Start(ctx)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				view := f.manager.Snapshot()
				if view.IsAuthenticated != (view.User != nil && view.Token != "") {
					t.Errorf("inconsistent view: %+v", view)
					return
				}
			}
		}()
	}

	for i := 0; i < 20; i++ {
		_, err := f.manager.Login(ctx, "a@b.com", "pw")
		require.NoError(t, err)
		require.NoError(t, f.manager.Logout(ctx))
	}
	close(stop)
	wg.Wait()
}
