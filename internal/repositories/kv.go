package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/mangax/internal/shared"
)

// KVStore is the durable string key/value store used for the cache tier and persisted batch state.
//
// Get reports found=false (and a nil error) for a missing key.
type KVStore interface {
	Get(key string) (value string, found bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// SQLiteKVStore implements [KVStore] on the kv_store table.
type SQLiteKVStore struct {
	db *sql.DB
}

// NewKVStore creates a new SQLiteKVStore with the given database connection
func NewKVStore(db *sql.DB) *SQLiteKVStore {
	return &SQLiteKVStore{db: db}
}

// Get returns the value stored under key.
func (s *SQLiteKVStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *SQLiteKVStore) Set(key, value string) error {
	query := `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := s.db.Exec(query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *SQLiteKVStore) Remove(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to remove key %s: %w", key, err)
	}
	return nil
}

// Keys lists every stored key in lexical order.
func (s *SQLiteKVStore) Keys() ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM kv_store ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return keys, nil
}

// Versioned wraps a persisted payload with its schema version.
type Versioned[T any] struct {
	Version int `json:"version"`
	Data    T   `json:"data"`
}

// LoadVersioned decodes the payload stored under key.
//
// found is false when the key is missing. A stored version other than version yields
// [shared.ErrUnsupportedVersion] so callers can ignore data written by another schema.
func LoadVersioned[T any](s KVStore, key string, version int) (data T, found bool, err error) {
	raw, found, err := s.Get(key)
	if err != nil || !found {
		return data, found, err
	}

	var header struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal([]byte(raw), &header); err != nil {
		return data, true, fmt.Errorf("%w: %s: %v", shared.ErrInvalidInput, key, err)
	}
	if header.Version != version {
		return data, true, fmt.Errorf("%w: %s has version %d, want %d", shared.ErrUnsupportedVersion, key, header.Version, version)
	}

	var env Versioned[T]
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return data, true, fmt.Errorf("%w: %s: %v", shared.ErrInvalidInput, key, err)
	}
	return env.Data, true, nil
}

// SaveVersioned encodes data with version and stores it whole under key.
func SaveVersioned[T any](s KVStore, key string, version int, data T) error {
	raw, err := json.Marshal(Versioned[T]{Version: version, Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Set(key, string(raw))
}
