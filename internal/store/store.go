// Package store is a small sqlite cache that makes analyze and grade
// passes resumable: model responses are keyed by a content hash so
// re-runs over unchanged submissions spend no tokens.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type Cache struct {
	db *sql.DB
}

// Open opens (or creates) the cache database at dbPath. Use ":memory:"
// in tests.
func Open(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping cache database: %w", err)
	}
	c := &Cache{db: db}
	if err := c.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return c, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS llm_cache (
		key TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		response TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		course TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Key derives the cache key for one model call.
func Key(model, system, user string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(system))
	h.Write([]byte{0})
	h.Write([]byte(user))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached response for key, or "" when absent.
func (c *Cache) Get(key string) (string, error) {
	var resp string
	err := c.db.QueryRow(`SELECT response FROM llm_cache WHERE key = ?`, key).Scan(&resp)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return resp, err
}

// Put stores a response under key, replacing any previous value.
func (c *Cache) Put(key, model, response string) error {
	_, err := c.db.Exec(
		`INSERT INTO llm_cache (key, model, response, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET model = ?, response = ?`,
		key, model, response, time.Now(), model, response,
	)
	return err
}

// StartRun records the beginning of an action run.
func (c *Cache) StartRun(id, action, course string) error {
	_, err := c.db.Exec(
		`INSERT INTO runs (id, action, course, started_at) VALUES (?, ?, ?, ?)`,
		id, action, course, time.Now(),
	)
	return err
}

// FinishRun stamps a run's completion time.
func (c *Cache) FinishRun(id string) error {
	_, err := c.db.Exec(`UPDATE runs SET finished_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

// CacheSize returns the number of cached responses.
func (c *Cache) CacheSize() (int, error) {
	var n int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM llm_cache`).Scan(&n)
	return n, err
}
