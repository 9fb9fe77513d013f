package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FilePerms restricts the secrets file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the secrets directory.
const DirPerms = 0o700

// FileStore persists secrets as a flat JSON object in a single file.
// Writes are atomic (temp file in the same directory, then rename) so a
// crash mid-write can never leave a truncated store behind.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a file-backed store at path. The file is created
// lazily on the first Set.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Get(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.load()
	if err != nil {
		return "", err
	}

	v, ok := m[key]
	if !ok || v == "" {
		return "", ErrNotFound
	}

	return v, nil
}

func (f *FileStore) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.load()
	if err != nil {
		return err
	}

	m[key] = value

	return f.save(m)
}

// load reads the store file. A missing file is an empty store.
func (f *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("secrets: reading %s: %w", f.path, err)
	}

	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("secrets: decoding %s: %w", f.path, err)
	}

	if m == nil {
		m = map[string]string{}
	}

	return m, nil
}

// save writes the store atomically with 0600 permissions.
// Never logs secret values.
func (f *FileStore) save(m map[string]string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("secrets: encoding: %w", err)
	}

	dir := filepath.Dir(f.path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("secrets: creating directory %s: %w", dir, mkErr)
	}

	tmp, err := os.CreateTemp(dir, ".secrets-*.tmp")
	if err != nil {
		return fmt.Errorf("secrets: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("secrets: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("secrets: writing: %w", err)
	}

	// Flush before rename so a power loss cannot leave an empty store at
	// the final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("secrets: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("secrets: closing: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("secrets: renaming: %w", err)
	}

	success = true

	return nil
}
