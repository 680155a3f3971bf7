package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// FileStore persists one JSON document per session key under a directory.
// Writes go through a temp file and rename so a crash never leaves a
// half-written entry.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a file persister
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".sela", "sessions")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	log.Info().Str("dir", dir).Msg("Session file store initialized")

	return &FileStore{dir: dir}, nil
}

func (fs *FileStore) entryPath(key string) string {
	return filepath.Join(fs.dir, key+".json")
}

// Load reads the entry for key; found is false when no file exists
func (fs *FileStore) Load(ctx context.Context, key string) (Entry, bool, error) {
	data, err := os.ReadFile(fs.entryPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("failed to read session file: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("failed to parse session file: %w", err)
	}

	return entry, true, nil
}

// Save writes the entry atomically
func (fs *FileStore) Save(ctx context.Context, key string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	path := fs.entryPath(key)
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	return nil
}

// Keys lists all persisted session keys
func (fs *FileStore) Keys(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}

		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}

	return keys, nil
}

// Close is a no-op for the file store
func (fs *FileStore) Close() error {
	return nil
}
