// Package cache is the local key-value snapshot tier: the current profile,
// per-owner item lists, and friend lists, persisted as JSON files under the
// data directory. Reads are tolerant — a missing or corrupt snapshot is
// simply absent — so a cold start degrades to the remote store.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"wishwell/internal/storage"
)

// Store persists snapshots under dir/cache.
type Store struct {
	dir string
	mu  sync.Mutex
}

func NewStore(dataDir string) *Store {
	return &Store{dir: filepath.Join(dataDir, "cache")}
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".json")
}

// sanitizeKey keeps snapshot filenames flat and predictable.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
}

func (s *Store) write(key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling snapshot %q: %w", key, err)
	}
	return os.WriteFile(s.path(key), data, 0o600)
}

// read reports whether a usable snapshot existed.
func (s *Store) read(key string, v any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// Delete removes a snapshot; missing files are not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// --- Typed snapshots ---

func (s *Store) PutItems(ownerID string, items []storage.Item) error {
	return s.write("items_"+ownerID, items)
}

func (s *Store) GetItems(ownerID string) ([]storage.Item, bool) {
	var items []storage.Item
	if !s.read("items_"+ownerID, &items) {
		return nil, false
	}
	return items, true
}

func (s *Store) PutProfile(p storage.Profile) error {
	return s.write("profile", p)
}

func (s *Store) GetProfile() (storage.Profile, bool) {
	var p storage.Profile
	if !s.read("profile", &p) {
		return storage.Profile{}, false
	}
	return p, true
}

func (s *Store) PutFriends(userID string, friendIDs []string) error {
	return s.write("friends_"+userID, friendIDs)
}

func (s *Store) GetFriends(userID string) ([]string, bool) {
	var ids []string
	if !s.read("friends_"+userID, &ids) {
		return nil, false
	}
	return ids, true
}
