package tier

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stackmem/stackmem/internal/db"
)

// Backend is one physical storage class: get/put/delete by opaque key.
type Backend interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
	Delete(key string) error
}

// sqliteBackend stores payloads as BLOBs in the hot_payloads table. It is
// the fast tier: same file as the rest of the database, no extra I/O hop.
type sqliteBackend struct {
	db *db.DB
}

// NewSQLiteBackend creates the hot-tier backend.
func NewSQLiteBackend(database *db.DB) Backend {
	return &sqliteBackend{db: database}
}

func (b *sqliteBackend) Get(key string) ([]byte, error) {
	var data []byte
	err := b.db.Conn().QueryRow(`SELECT data FROM hot_payloads WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("hot backend: key %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("hot backend: get %q: %w", key, err)
	}
	return data, nil
}

func (b *sqliteBackend) Put(key string, data []byte) error {
	_, err := b.db.Conn().Exec(`
		INSERT INTO hot_payloads (key, data) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data`, key, data)
	if err != nil {
		return fmt.Errorf("hot backend: put %q: %w", key, err)
	}
	return nil
}

func (b *sqliteBackend) Delete(key string) error {
	_, err := b.db.Conn().Exec(`DELETE FROM hot_payloads WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("hot backend: delete %q: %w", key, err)
	}
	return nil
}

// fsBackend stores one file per key under a directory. Used for the warm
// and cold tiers, which hold gzip-compressed payloads.
type fsBackend struct {
	dir  string
	name string
}

// NewFSBackend creates a filesystem-backed tier rooted at dir.
func NewFSBackend(name, dir string) Backend {
	return &fsBackend{dir: dir, name: name}
}

func (b *fsBackend) path(key string) string {
	// Keys are hex trace IDs; no path separators to escape.
	return filepath.Join(b.dir, key+".gz")
}

func (b *fsBackend) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s backend: key %q: %w", b.name, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s backend: get %q: %w", b.name, key, err)
	}
	return data, nil
}

func (b *fsBackend) Put(key string, data []byte) error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("%s backend: mkdir: %w", b.name, err)
	}
	tmp := b.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%s backend: write %q: %w", b.name, key, err)
	}
	if err := os.Rename(tmp, b.path(key)); err != nil {
		return fmt.Errorf("%s backend: rename %q: %w", b.name, key, err)
	}
	return nil
}

func (b *fsBackend) Delete(key string) error {
	err := os.Remove(b.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%s backend: delete %q: %w", b.name, key, err)
	}
	return nil
}
