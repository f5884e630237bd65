package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"wondertales/internal/domain/session"
)

// DefaultKey is the key the session snapshot is stored under.
const DefaultKey = "WONDERTALES_STATE_V3"

// ErrNotFound is returned by Load when no snapshot has been saved.
var ErrNotFound = errors.New("snapshot not found")

// Store persists a single session snapshot. Implementations do plain
// load/save; Load returns the snapshot already recovered from transient
// statuses.
type Store interface {
	Load(ctx context.Context) (session.Snapshot, error)
	Save(ctx context.Context, snapshot session.Snapshot) error
	Clear(ctx context.Context) error
	Close() error
}

type Type string

const (
	TypeFile   Type = "file"
	TypeSQLite Type = "sqlite"
	TypeMemory Type = "memory"
)

type Config struct {
	Type Type
	Path string
}

// New opens the configured store.
func New(cfg Config) (Store, error) {
	switch cfg.Type {
	case TypeMemory:
		return NewMemoryStore(), nil
	case TypeSQLite:
		path := cfg.Path
		if path == "" {
			path = filepath.Join(DefaultDirectory(), "wondertales.db")
		}
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case TypeFile, "":
		dir := cfg.Path
		if dir == "" {
			dir = DefaultDirectory()
		}
		s, err := NewFileStore(dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// DefaultDirectory returns the per-user directory snapshots live in.
func DefaultDirectory() string {
	if cacheDir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cacheDir, "wondertales")
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".wondertales", "state")
	}

	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, "state")
	}

	return "state"
}
