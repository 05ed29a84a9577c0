package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// FileStore keeps setting values in a YAML file keyed by setting id.
type FileStore struct {
	path string

	mu     sync.RWMutex
	values map[string]any
}

// NewFileStore loads path, creating it with the registered defaults when it
// does not exist yet.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path, values: make(map[string]any)}

	err := fs.load()
	switch {
	case err == nil:
		return fs, nil
	case os.IsNotExist(err):
		for _, def := range Definitions() {
			fs.values[def.ID] = def.DefaultValue
		}
		if err := fs.save(); err != nil {
			return nil, err
		}
		log.Info().Str("path", path).Msg("created settings file with defaults")
		return fs, nil
	default:
		return nil, err
	}
}

// GetSetting implements Store.
func (fs *FileStore) GetSetting(_ context.Context, id string) (any, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.values[id], nil
}

// SetSetting updates a value and writes the file.
func (fs *FileStore) SetSetting(id string, value any) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.values[id] = value
	return fs.saveLocked()
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return err
	}

	values := make(map[string]any)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse settings file %s: %w", fs.path, err)
	}

	fs.mu.Lock()
	fs.values = values
	fs.mu.Unlock()
	return nil
}

func (fs *FileStore) save() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.saveLocked()
}

func (fs *FileStore) saveLocked() error {
	data, err := yaml.Marshal(fs.values)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if dir := filepath.Dir(fs.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create settings dir: %w", err)
		}
	}
	if err := os.WriteFile(fs.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}
