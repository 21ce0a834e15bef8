package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrEmptyPath is returned when a FileStore is created without a path.
var ErrEmptyPath = errors.New("token store path required")

// FileStore keeps the token in a small JSON document:
//
//	{"miniDrive:token": "<token>"}
//
// A missing file means no token. Writes go to a temp file that is renamed
// over the target so a crash never leaves a truncated document.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. Nothing is touched on disk
// until the first Save. It returns [ErrEmptyPath] for an empty path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements [Store]. A missing or empty file, or a document without
// the [Key] entry, reports ok=false. A corrupt document is an error.
func (s *FileStore) Load(context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read token file: %w", err)
	}
	if len(data) == 0 {
		return "", false, nil
	}

	var doc map[string]string
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", false, fmt.Errorf("decode token file: %w", err)
	}
	token, ok := doc[Key]
	if !ok || token == "" {
		return "", false, nil
	}
	return token, true, nil
}

// Save implements [Store]. Parent directories are created with mode 0700
// and the file is written with mode 0600.
func (s *FileStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(map[string]string{Key: token})
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}

// Clear implements [Store] by removing the file.
func (s *FileStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}
