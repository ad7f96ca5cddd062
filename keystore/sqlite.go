package keystore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps items in a SQLite database.
//
// When an at-rest key is supplied every value is sealed with
// XChaCha20-Poly1305 before it reaches disk. Vault records are already
// encrypted; the at-rest key additionally hides salts, markers and metadata.
// Items are local by construction, so the device-only policy is honoured.
type SQLiteStore struct {
	db     *sql.DB
	dbKey  []byte
	dbPath string

	// generation is bumped on every write so a restored copy of the file
	// can be told apart from the live one
	generation int64

	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the database at path. Use ":memory:"
// for a throwaway store. atRestKey is either empty or 32 bytes.
func NewSQLiteStore(path string, atRestKey []byte) (*SQLiteStore, error) {
	if len(atRestKey) != 0 && len(atRestKey) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("at-rest key must be %d bytes", chacha20poly1305.KeySize)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		dbKey:  atRestKey,
		dbPath: path,
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		device_only INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS _metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO _metadata (key, value, updated_at)
		VALUES ('generation', '0', ?)
	`, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to initialize metadata: %w", err)
	}

	var gen string
	if err := s.db.QueryRow(`SELECT value FROM _metadata WHERE key = 'generation'`).Scan(&gen); err != nil {
		return fmt.Errorf("failed to load generation: %w", err)
	}
	s.generation, err = strconv.ParseInt(gen, 10, 64)
	if err != nil {
		return fmt.Errorf("corrupt generation counter %q: %w", gen, err)
	}
	return nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stored []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM items WHERE key = ?`, key).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get item: %w", err)
	}

	value, err := s.open(stored)
	if err != nil {
		return "", fmt.Errorf("failed to unseal item: %w", err)
	}
	return string(value), nil
}

// ListKeys implements Lister
func (s *SQLiteStore) ListKeys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT key FROM items`)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan item key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) SetItem(ctx context.Context, key, value string, policy *AccessPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := s.seal([]byte(value))
	if err != nil {
		return fmt.Errorf("failed to seal item: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO items (key, value, device_only, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			device_only = excluded.device_only,
			updated_at = excluded.updated_at
	`, key, sealed, boolToInt(deviceOnly(policy)), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store item: %w", err)
	}

	s.bumpGeneration(ctx)
	return nil
}

func (s *SQLiteStore) DeleteItem(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	s.bumpGeneration(ctx)
	return nil
}

// DeviceOnly reports whether key was written with the device-only policy.
func (s *SQLiteStore) DeviceOnly(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var flag int
	err := s.db.QueryRowContext(ctx, `SELECT device_only FROM items WHERE key = ?`, key).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to get item policy: %w", err)
	}
	return flag == 1, nil
}

// Generation returns the write counter.
func (s *SQLiteStore) Generation() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *SQLiteStore) seal(plaintext []byte) ([]byte, error) {
	if len(s.dbKey) == 0 {
		return plaintext, nil
	}
	aead, err := chacha20poly1305.NewX(s.dbKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *SQLiteStore) open(stored []byte) ([]byte, error) {
	if len(s.dbKey) == 0 {
		return stored, nil
	}
	aead, err := chacha20poly1305.NewX(s.dbKey)
	if err != nil {
		return nil, err
	}

	nonceSize := aead.NonceSize()
	if len(stored) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	return aead.Open(nil, stored[:nonceSize], stored[nonceSize:], nil)
}

// bumpGeneration must be called with the write lock held. Counter failures
// do not fail the write that triggered them.
func (s *SQLiteStore) bumpGeneration(ctx context.Context) {
	s.generation++
	s.db.ExecContext(ctx, `
		UPDATE _metadata
		SET value = ?, updated_at = ?
		WHERE key = 'generation'
	`, strconv.FormatInt(s.generation, 10), time.Now().Unix())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
