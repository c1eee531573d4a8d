package credstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// credentialFile is the on-disk layout of the credential store.
type credentialFile struct {
	APIKey string `yaml:"api_key"`
}

// Store is a file-backed store for the single API credential.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a credential store backed by the given file path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path cannot be empty")
	}
	return &Store{path: path}, nil
}

// Load reads the stored credential. A missing file is not an error; it
// means no credential has been saved yet.
func (s *Store) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read credential file %s: %w", s.path, err)
	}

	var f credentialFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("failed to parse credential file %s: %w", s.path, err)
	}

	return f.APIKey, nil
}

// Save writes the credential to disk with owner-only permissions. An empty
// credential removes the file.
func (s *Store) Save(credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if credential == "" {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove credential file %s: %w", s.path, err)
		}
		return nil
	}

	data, err := yaml.Marshal(credentialFile{APIKey: credential})
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create credential directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credential file %s: %w", s.path, err)
	}

	return nil
}
