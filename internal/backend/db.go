// Package backend is a reference sync server: a sqlite-backed record
// store behind the wire protocol the coordinator speaks. It exists for
// end-to-end tests and the CLI demo, not for production traffic.
package backend

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB stores records and deletion tombstones in a single sqlite database.
//
// Tables:
//
//	records(kind, id, data, updated_at)     PRIMARY KEY (kind, id)
//	tombstones(kind, id, deleted_at)        PRIMARY KEY (kind, id)
type DB struct {
	mu sync.RWMutex
	db *sql.DB
}

// Open opens (or creates) the database at path. ":memory:" works for
// tests.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS records (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (kind, id)
	)`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS tombstones (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		deleted_at TEXT NOT NULL,
		PRIMARY KEY (kind, id)
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// All returns every live record of a kind.
func (d *DB) All(kind string) ([]map[string]any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.scanRecords("SELECT data FROM records WHERE kind = ? ORDER BY id", kind)
}

func (d *DB) scanRecords(q string, args ...any) ([]map[string]any, error) {
	rows, err := d.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []map[string]any
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Get returns one record. A nil map with a nil error means not found.
func (d *DB) Get(kind, id string) (map[string]any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var raw string
	err := d.db.QueryRow("SELECT data FROM records WHERE kind = ? AND id = ?", kind, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return doc, nil
}

// Put inserts or replaces a record, stamping it with stamp. The record's
// own updated_at field is set to match so clients watermark consistently.
func (d *DB) Put(kind, id string, fields map[string]any, stamp string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	fields["updated_at"] = stamp
	b, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	_, err = d.db.Exec(
		`INSERT INTO records (kind, id, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(kind, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		kind, id, string(b), stamp,
	)
	if err != nil {
		return err
	}
	// A resurrected id is live again.
	_, err = d.db.Exec("DELETE FROM tombstones WHERE kind = ? AND id = ?", kind, id)
	return err
}

// Delete removes the record and leaves a tombstone so incremental syncs
// learn of the deletion. Returns false when the record did not exist.
func (d *DB) Delete(kind, id, stamp string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res, err := d.db.Exec("DELETE FROM records WHERE kind = ? AND id = ?", kind, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	_, err = d.db.Exec(
		`INSERT INTO tombstones (kind, id, deleted_at) VALUES (?, ?, ?)
		 ON CONFLICT(kind, id) DO UPDATE SET deleted_at = excluded.deleted_at`,
		kind, id, stamp,
	)
	return true, err
}

// Tombstoned reports whether an id was deleted.
func (d *DB) Tombstoned(kind, id string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var one int
	err := d.db.QueryRow("SELECT 1 FROM tombstones WHERE kind = ? AND id = ?", kind, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// DeletedSince returns ids of a kind tombstoned strictly after stamp,
// plus the newest tombstone stamp for the kind.
func (d *DB) DeletedSince(kind, stamp string) ([]string, string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rows, err := d.db.Query(
		"SELECT id, deleted_at FROM tombstones WHERE kind = ? AND deleted_at > ? ORDER BY deleted_at",
		kind, stamp,
	)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	var (
		ids  []string
		last string
	)
	for rows.Next() {
		var id, at string
		if err := rows.Scan(&id, &at); err != nil {
			return nil, "", err
		}
		ids = append(ids, id)
		if at > last {
			last = at
		}
	}
	return ids, last, rows.Err()
}

// NextID allocates the next free numeric id for a kind.
func (d *DB) NextID(kind string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var max sql.NullInt64
	err := d.db.QueryRow(
		`SELECT MAX(CAST(id AS INTEGER)) FROM (
			SELECT id FROM records WHERE kind = ?
			UNION ALL
			SELECT id FROM tombstones WHERE kind = ?
		)`, kind, kind,
	).Scan(&max)
	if err != nil {
		return 0, err
	}
	return max.Int64 + 1, nil
}

// idKey normalizes a JSON-decoded id to its storage key.
func idKey(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		if id == float64(int64(id)) {
			return strconv.FormatInt(int64(id), 10)
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("%v", v)
}
