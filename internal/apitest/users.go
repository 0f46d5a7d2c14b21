package apitest

import (
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Seeded accounts, matching the backend's development data.
const (
	AdminEmail         = "admin@comptamaroc.com"
	AdminPassword      = "admin123"
	AccountantEmail    = "hassan@comptamaroc.com"
	AccountantPassword = "accountant123"
)

const defaultRole = "USER"

var (
	errUserExists   = errors.New("user exists")
	errUserNotFound = errors.New("user not found")
)

// User is an account known to the fake backend.
type User struct {
	ID           int64
	Email        string
	FirstName    string
	LastName     string
	Role         string
	PasswordHash string
	Active       bool
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

type userRepo struct {
	users  map[string]*User // keyed by lower-cased email
	nextID int64
	lock   sync.RWMutex
}

func newUserRepo() *userRepo {
	return &userRepo{
		users:  make(map[string]*User),
		nextID: 1,
	}
}

func (ur *userRepo) insert(user User) (User, error) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	key := strings.ToLower(user.Email)
	if _, ok := ur.users[key]; ok {
		return User{}, errUserExists
	}
	user.ID = ur.nextID
	ur.nextID++
	ur.users[key] = &user
	return user, nil
}

func (ur *userRepo) getByEmail(email string) (User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[strings.ToLower(email)]
	if !ok {
		return User{}, errUserNotFound
	}
	return *u, nil
}

func (ur *userRepo) update(email string, fn func(*User)) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[strings.ToLower(email)]
	if !ok {
		return errUserNotFound
	}
	fn(u)
	return nil
}
