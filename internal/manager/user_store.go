package manager

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"wardwatch/internal/middleware"
)

// User holds authentication data for a staff account using the
// password grant.
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Scopes       []string  `json:"scopes"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserStore manages persistent users with a JSON file backend.
type UserStore struct {
	path  string
	mu    sync.RWMutex
	users map[string]*User
}

// NewUserStore initializes a user store at path.
func NewUserStore(path string) *UserStore {
	return &UserStore{path: path, users: make(map[string]*User)}
}

// Load reads users from disk; a missing file is an empty store.
func (s *UserStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = make(map[string]*User)
	if s.path == "" {
		return errors.New("user store path not set")
	}
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		_ = os.MkdirAll(filepath.Dir(s.path), 0o755)
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	var list []*User
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	for _, u := range list {
		if u != nil && u.Username != "" {
			s.users[u.Username] = u
		}
	}
	return nil
}

// saveLocked writes users to disk atomically with 0600 permissions.
// Caller MUST hold s.mu (write lock).
func (s *UserStore) saveLocked() error {
	list := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		list = append(list, u)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Save persists users to disk.
func (s *UserStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// Put creates or replaces a user and persists the store.
func (s *UserStore) Put(username, passwordHash string, scopes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[username]
	if u == nil {
		u = &User{Username: username, CreatedAt: time.Now().UTC()}
		s.users[username] = u
	}
	u.PasswordHash = passwordHash
	u.Scopes = scopes
	return s.saveLocked()
}

// Verify checks a username/password pair and returns the account on
// success.
func (s *UserStore) Verify(username, password string) (*User, bool) {
	s.mu.RLock()
	u, ok := s.users[username]
	s.mu.RUnlock()
	if !ok || !middleware.CheckSecret(password, u.PasswordHash) {
		return nil, false
	}
	copied := *u
	return &copied, true
}

// IsEmpty reports whether no users exist.
func (s *UserStore) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users) == 0
}
