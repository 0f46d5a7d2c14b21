package auth

import (
	"strings"

	"github.com/comptamaroc/webclient/token"
)

// Role names seeded by the accounting backend.
const (
	RoleAdmin      = "ADMIN"
	RoleManager    = "MANAGER"
	RoleAccountant = "ACCOUNTANT"
	RoleUser       = "USER"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	RoleName  string `json:"roleName,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// AuthResult is the data payload of login, register, refresh and me responses.
type AuthResult struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Role         string `json:"role"`
}

// Profile drops the credentials from the result.
func (r AuthResult) Profile() UserProfile {
	return UserProfile{
		ID:        r.ID,
		Email:     r.Email,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Role:      r.Role,
	}
}

func (r AuthResult) Tokens() token.Pair {
	return token.Pair{AccessToken: r.Token, RefreshToken: r.RefreshToken}
}

// UserProfile is the signed-in user as persisted under the "user" key.
type UserProfile struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

func (u UserProfile) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u UserProfile) HasRole(role string) bool {
	return strings.EqualFold(u.Role, role)
}
