package apitest

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var errInvalidToken = errors.New("invalid token")

// tokenManager issues HS256 access tokens and opaque refresh tokens. Access
// tokens are only honoured while their jti is live, so they can be expired or
// revoked before their exp claim.
type tokenManager struct {
	secret    []byte
	accessTTL time.Duration
	nowFunc   func() time.Time

	mu      sync.Mutex
	live    map[string]string // access token jti -> email
	refresh map[string]string // refresh token -> email
}

func newTokenManager(secret []byte, accessTTL time.Duration, now func() time.Time) *tokenManager {
	return &tokenManager{
		secret:    secret,
		accessTTL: accessTTL,
		nowFunc:   now,
		live:      make(map[string]string),
		refresh:   make(map[string]string),
	}
}

func (m *tokenManager) createAccessToken(user User) (string, error) {
	now := m.nowFunc()
	jti := uuid.NewString()
	claims := jwt.MapClaims{
		"sub":  user.Email,
		"uid":  user.ID,
		"role": user.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(m.accessTTL).Unix(),
		"jti":  jti,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("tokenManager.createAccessToken: %w", err)
	}

	m.mu.Lock()
	m.live[jti] = user.Email
	m.mu.Unlock()
	return signed, nil
}

func (m *tokenManager) createRefreshToken(email string) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("tokenManager.createRefreshToken: %w", err)
	}
	tokenStr := hex.EncodeToString(tokenBytes)

	m.mu.Lock()
	m.refresh[tokenStr] = email
	m.mu.Unlock()
	return tokenStr, nil
}

// verify returns the email of a live, correctly signed, unexpired access token.
func (m *tokenManager) verify(raw string) (email, jti string, err error) {
	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.nowFunc),
	)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", errInvalidToken, err)
	}
	jti, _ = claims["jti"].(string)

	m.mu.Lock()
	defer m.mu.Unlock()
	email, ok := m.live[jti]
	if !ok {
		return "", "", errInvalidToken
	}
	return email, jti, nil
}

// rotate consumes refreshToken and returns the email it was issued to.
func (m *tokenManager) rotate(refreshToken string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email, ok := m.refresh[refreshToken]
	if !ok {
		return "", errInvalidToken
	}
	delete(m.refresh, refreshToken)
	return email, nil
}

func (m *tokenManager) revoke(jti string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, jti)
}

func (m *tokenManager) expireAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live = make(map[string]string)
}

func (m *tokenManager) revokeRefreshTokens() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh = make(map[string]string)
}
