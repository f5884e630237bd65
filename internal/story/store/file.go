package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"wondertales/internal/domain/session"
)

// FileStore keeps the snapshot as a JSON document on disk.
type FileStore struct {
	mu   sync.Mutex
	dir  string
	file string
}

type fileRecord struct {
	Key         string           `json:"key"`
	Snapshot    session.Snapshot `json:"snapshot"`
	LastUpdated time.Time        `json:"last_updated"`
}

// NewFileStore creates the directory if needed and returns a store writing
// to <dir>/session.json.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStore{
		dir:  dir,
		file: filepath.Join(dir, "session.json"),
	}, nil
}

// Path returns the snapshot file location.
func (fs *FileStore) Path() string {
	return fs.file
}

func (fs *FileStore) Load(ctx context.Context) (session.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return session.Snapshot{}, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	file, err := os.Open(fs.file)
	if err != nil {
		if os.IsNotExist(err) {
			return session.Snapshot{}, ErrNotFound
		}
		return session.Snapshot{}, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	var record fileRecord
	if err := json.NewDecoder(file).Decode(&record); err != nil {
		return session.Snapshot{}, fmt.Errorf("failed to decode snapshot file: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"pages":        len(record.Snapshot.Pages),
		"status":       record.Snapshot.Status,
		"last_updated": record.LastUpdated.Format(time.RFC3339),
	}).Debug("Loaded session snapshot")

	return record.Snapshot.Recovered(), nil
}

// Save writes through a temp file so a crash never leaves half a snapshot.
func (fs *FileStore) Save(ctx context.Context, snapshot session.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	record := fileRecord{
		Key:         DefaultKey,
		Snapshot:    snapshot,
		LastUpdated: time.Now(),
	}

	tmp, err := os.CreateTemp(fs.dir, "session-*.json")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(record); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.file); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

func (fs *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(fs.file); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	logrus.Debug("Cleared session snapshot")
	return nil
}

func (fs *FileStore) Close() error { return nil }
