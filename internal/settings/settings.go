// Package settings persists the few user settings the bridge keeps between runs.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Settings is the persisted document
type Settings struct {
	// GodotExecutablePath is the editor started in Launch mode
	GodotExecutablePath string `yaml:"godotExecutablePath,omitempty"`
}

// Store is a YAML file holding Settings
type Store struct {
	path string

	mu      sync.Mutex
	current Settings
}

// Open loads the store at path. A missing file yields empty settings.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.current); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	return s, nil
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// GodotExecutablePath returns the configured editor path, or ""
func (s *Store) GodotExecutablePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.GodotExecutablePath
}

// SetGodotExecutablePath stores path and writes the file
func (s *Store) SetGodotExecutablePath(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	next.GodotExecutablePath = path
	if err := s.save(next); err != nil {
		return err
	}
	s.current = next
	return nil
}

func (s *Store) save(settings Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	// Replace atomically through a sibling file
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}

// Memory is an in-memory settings store
type Memory struct {
	mu   sync.Mutex
	path string
}

func (m *Memory) GodotExecutablePath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

func (m *Memory) SetGodotExecutablePath(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.path = path
	return nil
}
