package apitest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

type envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

type authResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Role         string `json:"role"`
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerBody struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	RoleName  string `json:"roleName"`
}

type changePasswordBody struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Client is a customer record served by /api/clients.
type Client struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	ICE  string `json:"ice"`
	City string `json:"city"`
}

var sampleClients = []Client{
	{ID: 1, Name: "Atlas Distribution SARL", ICE: "001525784000036", City: "Casablanca"},
	{ID: 2, Name: "Rif Agro SA", ICE: "002233445000021", City: "Tanger"},
	{ID: 3, Name: "Souss Export", ICE: "001998877000054", City: "Agadir"},
}

var knownRoles = map[string]bool{"ADMIN": true, "MANAGER": true, "ACCOUNTANT": true, "USER": true}

type ctxKey struct{}

func writeJSON(w http.ResponseWriter, status int, env envelope) {
	env.Timestamp = time.Now().Format("2006-01-02T15:04:05")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

func bearer(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(header, "Bearer "), true
}

func (b *Backend) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearer(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Full authentication is required to access this resource")
			return
		}
		email, _, err := b.tokens.verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Token expired or invalid")
			return
		}
		user, err := b.users.getByEmail(email)
		if err != nil || !user.Active {
			writeError(w, http.StatusUnauthorized, "User account is deactivated")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
	})
}

func currentUser(r *http.Request) User {
	user, _ := r.Context().Value(ctxKey{}).(User)
	return user
}

func (b *Backend) respondWithTokens(w http.ResponseWriter, status int, message string, user User) {
	access, refresh, err := b.issue(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred: "+err.Error())
		return
	}
	writeData(w, status, message, newAuthResponse(user, access, refresh))
}

func newAuthResponse(user User, access, refresh string) authResponse {
	return authResponse{
		Token:        access,
		RefreshToken: refresh,
		ID:           user.ID,
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Role:         user.Role,
	}
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Validation failed")
		return
	}

	user, err := b.users.getByEmail(body.Email)
	if err != nil || !CheckPasswordHash(body.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if !user.Active {
		writeError(w, http.StatusUnauthorized, "Account is disabled")
		return
	}
	b.respondWithTokens(w, http.StatusOK, "Login successful", user)
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Validation failed")
		return
	}
	role := strings.ToUpper(body.RoleName)
	if role == "" {
		role = defaultRole
	}
	if !knownRoles[role] {
		writeError(w, http.StatusBadRequest, "Role not found: "+body.RoleName)
		return
	}

	user, err := b.AddUser(User{
		Email:     body.Email,
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Role:      role,
		Active:    true,
	}, body.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Email already registered: "+body.Email)
		return
	}
	b.respondWithTokens(w, http.StatusCreated, "User registered successfully", user)
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if f := b.injected(&b.refreshFailure); f != nil {
		writeError(w, f.status, f.message)
		return
	}
	raw, ok := bearer(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid authorization header")
		return
	}
	email, err := b.tokens.rotate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to refresh token: Invalid refresh token")
		return
	}
	user, err := b.users.getByEmail(email)
	if err != nil || !user.Active {
		writeError(w, http.StatusBadRequest, "Failed to refresh token: User account is deactivated")
		return
	}
	access, refresh, err := b.issue(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred: "+err.Error())
		return
	}
	writeData(w, http.StatusOK, "Token refreshed successfully", newAuthResponse(user, access, refresh))
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	if f := b.injected(&b.logoutFailure); f != nil {
		writeError(w, f.status, f.message)
		return
	}
	raw, ok := bearer(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid authorization header")
		return
	}
	if _, jti, err := b.tokens.verify(raw); err == nil {
		b.tokens.revoke(jti)
	}
	writeData(w, http.StatusOK, "Logout successful", nil)
}

func (b *Backend) handleValidate(w http.ResponseWriter, r *http.Request) {
	raw, ok := bearer(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid authorization header")
		return
	}
	valid := false
	if email, _, err := b.tokens.verify(raw); err == nil {
		user, err := b.users.getByEmail(email)
		valid = err == nil && user.Active
	}
	writeData(w, http.StatusOK, "Token validation result", valid)
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request) {
	raw, _ := bearer(r)
	writeData(w, http.StatusOK, "User information retrieved", newAuthResponse(currentUser(r), raw, ""))
}

func (b *Backend) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	// The backend binds these as request parameters; JSON bodies are accepted too.
	body := changePasswordBody{
		CurrentPassword: r.URL.Query().Get("currentPassword"),
		NewPassword:     r.URL.Query().Get("newPassword"),
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Validation failed")
			return
		}
	}
	if body.CurrentPassword == "" || body.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "Validation failed")
		return
	}

	user := currentUser(r)
	if !CheckPasswordHash(body.CurrentPassword, user.PasswordHash) {
		writeError(w, http.StatusBadRequest, "Failed to change password: Current password is incorrect")
		return
	}
	hash, err := HashPassword(body.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred: "+err.Error())
		return
	}
	if err := b.users.update(user.Email, func(u *User) { u.PasswordHash = hash }); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to change password: "+err.Error())
		return
	}
	writeData(w, http.StatusOK, "Password changed successfully", nil)
}

func (b *Backend) handleClients(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, "Clients retrieved", sampleClients)
}

func (b *Backend) handleClient(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	for _, c := range sampleClients {
		if c.ID == id {
			writeData(w, http.StatusOK, "Client retrieved", c)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Client not found with id: "+mux.Vars(r)["id"])
}
