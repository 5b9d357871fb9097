package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const authFileName = "auth.json"

// Store owns the auth.json credential file. Every operation works on an
// immutable snapshot; Set and Remove re-load, transform and atomically
// rewrite the file with mode 0600.
type Store struct {
	path string
}

// NewStore binds a store to <dataRoot>/auth.json.
func NewStore(dataRoot string) *Store {
	return &Store{path: filepath.Join(dataRoot, authFileName)}
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// DefaultDataRoot resolves the data directory: $TICKERLENS_HOME when set,
// otherwise ~/.tickerlens.
func DefaultDataRoot() (string, error) {
	if root := os.Getenv("TICKERLENS_HOME"); root != "" {
		return root, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".tickerlens"), nil
}

// Load reads the current snapshot. A missing file yields an empty snapshot;
// entries failing schema validation are dropped silently.
func (s *Store) Load() (map[string]Info, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]Info{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read auth store: %w", err)
	}
	entries, err := decodeEntries(raw)
	if err != nil {
		return nil, fmt.Errorf("parse auth store %s: %w", s.path, err)
	}
	return entries, nil
}

// Get returns the stored entry for a provider, if any.
func (s *Store) Get(provider string) (Info, bool) {
	entries, err := s.Load()
	if err != nil {
		return Info{}, false
	}
	info, ok := entries[provider]
	return info, ok
}

// Set stores or replaces a provider entry.
func (s *Store) Set(provider string, info Info) error {
	if !info.valid() {
		return fmt.Errorf("auth entry for %q fails %s schema validation", provider, info.Type)
	}
	entries, err := s.Load()
	if err != nil {
		return err
	}
	entries[provider] = info
	return s.write(entries)
}

// Remove drops a provider entry. Removing an absent entry is a no-op.
func (s *Store) Remove(provider string) error {
	entries, err := s.Load()
	if err != nil {
		return err
	}
	if _, ok := entries[provider]; !ok {
		return nil
	}
	delete(entries, provider)
	return s.write(entries)
}

// write persists the snapshot atomically: temp file in the same directory,
// mode 0600, then rename over the target.
func (s *Store) write(entries map[string]Info) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create auth directory: %w", err)
	}
	blob, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode auth store: %w", err)
	}

	tmp, err := os.CreateTemp(dir, authFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp auth file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp auth file: %w", err)
	}
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp auth file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp auth file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace auth file: %w", err)
	}
	return nil
}
