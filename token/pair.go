package token

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// ErrNoExpiry is returned by ExpiresAt for tokens that carry no readable exp claim.
var ErrNoExpiry = errors.New("token has no expiry claim")

// Pair is the access/refresh credential pair issued by /auth/login, /auth/register
// and /auth/refresh.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// OAuth2 returns the pair as an oauth2.Token of type Bearer.
func (p Pair) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    "Bearer",
	}
}

// Complete reports whether both tokens are present.
func (p Pair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// SetAuthHeader sets "Authorization: Bearer <accessToken>" on r.
// An empty token removes any Authorization header instead.
func SetAuthHeader(r *http.Request, accessToken string) {
	if strings.TrimSpace(accessToken) == "" {
		r.Header.Del("Authorization")
		return
	}
	(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}).SetAuthHeader(r)
}

// ExpiresAt reads the exp claim of a JWT without verifying its signature.
// The result is informational; only the server decides whether a token is valid.
func ExpiresAt(raw string) (time.Time, error) {
	claims := jwtlib.RegisteredClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, errors.Join(ErrNoExpiry, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}

// Subject reads the sub claim of a JWT without verifying its signature.
func Subject(raw string) (string, error) {
	claims := jwtlib.RegisteredClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(raw, &claims); err != nil {
		return "", err
	}
	return claims.Subject, nil
}
