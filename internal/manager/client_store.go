package manager

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"wardwatch/internal/middleware"
)

// APIClient is one machine credential: a connector identity with a
// bcrypt-hashed secret and its granted scopes.
type APIClient struct {
	ClientID   string   `json:"client_id"`
	SecretHash string   `json:"secret_hash"`
	Scopes     []string `json:"scopes"`
}

// ClientStore manages API client credentials with a JSON file backend.
type ClientStore struct {
	path    string
	mu      sync.RWMutex
	clients map[string]*APIClient
}

// NewClientStore initializes a client store at path.
func NewClientStore(path string) *ClientStore {
	return &ClientStore{path: path, clients: make(map[string]*APIClient)}
}

// Load reads clients from disk; a missing file is an empty store.
func (s *ClientStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients = make(map[string]*APIClient)
	if s.path == "" {
		return errors.New("client store path not set")
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
	var list []*APIClient
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	for _, c := range list {
		if c != nil && c.ClientID != "" {
			s.clients[c.ClientID] = c
		}
	}
	return nil
}

// saveLocked writes clients to disk atomically with 0600 permissions.
// Caller MUST hold s.mu (write lock).
func (s *ClientStore) saveLocked() error {
	list := make([]*APIClient, 0, len(s.clients))
	for _, c := range s.clients {
		list = append(list, c)
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

// Save persists clients to disk.
func (s *ClientStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// Put creates or replaces a client credential and persists the store.
func (s *ClientStore) Put(clientID, secretHash string, scopes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[clientID] = &APIClient{ClientID: clientID, SecretHash: secretHash, Scopes: scopes}
	return s.saveLocked()
}

// Verify checks a client_id/client_secret pair and returns the credential
// record on success.
func (s *ClientStore) Verify(clientID, secret string) (*APIClient, bool) {
	s.mu.RLock()
	c, ok := s.clients[clientID]
	s.mu.RUnlock()
	if !ok || !middleware.CheckSecret(secret, c.SecretHash) {
		return nil, false
	}
	copied := *c
	return &copied, true
}

// IsEmpty reports whether no clients exist.
func (s *ClientStore) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients) == 0
}
