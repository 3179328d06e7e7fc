package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const userKey = "user"

// ErrNoUser is returned when nobody is logged in
var ErrNoUser = errors.New("no user logged in")

// User is the identity kept for the logged-in person
type User struct {
	Type  string `json:"type"`
	Email string `json:"email"`
}

// Storage is the key-value store holding the session
type Storage interface {
	GetItem(key string) (string, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// Session reads and writes the logged-in user
type Session struct {
	storage Storage
}

// New creates a Session backed by storage
func New(storage Storage) *Session {
	return &Session{storage: storage}
}

// User returns the logged-in user
func (s *Session) User() (*User, error) {
	raw, err := s.storage.GetItem(userKey)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoUser
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	var user User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("decoding session user: %w", err)
	}
	if user.Email == "" {
		return nil, ErrNoUser
	}
	return &user, nil
}

// Login stores user as the logged-in user
func (s *Session) Login(user User) error {
	user.Email = strings.TrimSpace(user.Email)
	if user.Email == "" {
		return fmt.Errorf("logging in: %w", ErrNoUser)
	}

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encoding session user: %w", err)
	}
	if err := s.storage.SetItem(userKey, string(data)); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// Logout forgets the logged-in user
func (s *Session) Logout() error {
	if err := s.storage.RemoveItem(userKey); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}
