// Package screenstore is the local persistent key/value store consumed by
// the sync layer. Its main job is the durable screen identifier: generated
// once per installation and reused for every later connection.
package screenstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

const (
	storeFile   = "screenstore.json"
	screenIDKey = "screen_id"
)

// Store is a small JSON-file-backed key/value store.
type Store struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// Open loads (or initializes) the store under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	s := &Store{
		path:   filepath.Join(dir, storeFile),
		values: make(map[string]string),
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read store: %w", err)
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("parse store: %w", err)
	}
	return s, nil
}

// Get returns the stored value for key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok
}

// Put stores and persists a value.
func (s *Store) Put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.save()
}

// ScreenID returns the durable screen identifier, generating and persisting
// one on first use.
func (s *Store) ScreenID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.values[screenIDKey]; ok && id != "" {
		return id, nil
	}
	id := uuid.NewString()
	s.values[screenIDKey] = id
	if err := s.save(); err != nil {
		return "", err
	}
	return id, nil
}

// save writes the store via a temp file rename so a crash mid-write cannot
// truncate the existing file.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
