// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache memoizes source lookups across runs. Entries live in memory
// for fast reads and are flushed to a SQLite database in batches: every
// FlushEvery dirty puts, on a background interval, and on Close. A crash
// loses at most the unflushed tail. Entries never expire.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/paperfetch/pkg/types"
)

const (
	defaultFlushEvery    = 10
	defaultFlushInterval = 30 * time.Second
)

// Entry is a memoized lookup result: either a located resource or the reason
// the backend had none.
type Entry struct {
	Backend      string
	URL          string
	PersistentID string
	Failure      string
	StoredAt     time.Time
}

// Negative reports whether the entry records a failed lookup.
func (e Entry) Negative() bool {
	return e.Failure != ""
}

func (e Entry) sameValue(o Entry) bool {
	return e.Backend == o.Backend && e.URL == o.URL &&
		e.PersistentID == o.PersistentID && e.Failure == o.Failure
}

// LookupKey derives the cache key for a (backend, identifier) pair. The
// identifier is whitespace-normalized first, so equivalent titles share a key.
func LookupKey(backend, identifier string) string {
	h := sha256.New()
	h.Write([]byte(backend))
	h.Write([]byte{0})
	h.Write([]byte(types.NormalizeTitle(identifier)))
	return hex.EncodeToString(h.Sum(nil))
}

// Cache is a concurrency-safe request cache. A nil *Cache is a permanent
// miss that discards writes.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	dirty   map[string]struct{}

	flushMu    sync.Mutex
	db         *sql.DB
	path       string
	flushEvery int
	log        *slog.Logger

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Open loads the cache database at cfg.Path and starts the background
// flusher. A corrupt or unreadable database is moved aside and replaced
// with an empty one; if even that fails the cache runs memory-only. Open
// only returns an error when the cache directory cannot be created.
func Open(cfg types.CacheConfig, log *slog.Logger) (*Cache, error) {
	if log == nil {
		log = slog.Default()
	}
	flushEvery := cfg.FlushEvery
	if flushEvery <= 0 {
		flushEvery = defaultFlushEvery
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}

	c := &Cache{
		entries:    make(map[string]Entry),
		dirty:      make(map[string]struct{}),
		path:       cfg.Path,
		flushEvery: flushEvery,
		log:        log,
		kick:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		c.db = c.openStore()
	}

	go c.flushLoop(interval)
	return c, nil
}

// openStore opens and loads the database, recovering from corruption.
func (c *Cache) openStore() *sql.DB {
	db, err := openDB(c.path)
	if err == nil {
		if err = c.load(db); err == nil {
			return db
		}
		db.Close()
	}

	c.log.Warn("cache store unreadable, starting empty", "path", c.path, "error", err)
	c.entries = make(map[string]Entry)

	aside := c.path + ".corrupt"
	if renameErr := os.Rename(c.path, aside); renameErr != nil && !os.IsNotExist(renameErr) {
		c.log.Warn("cannot move corrupt cache aside, running memory-only", "error", renameErr)
		return nil
	}
	db, err = openDB(c.path)
	if err != nil {
		c.log.Warn("cannot recreate cache store, running memory-only", "error", err)
		return nil
	}
	return db
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return db, nil
}

func createSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			key TEXT PRIMARY KEY,
			backend TEXT NOT NULL,
			url TEXT,
			persistent_id TEXT,
			failure TEXT,
			stored_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_backend ON entries(backend)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// load reads every persisted entry into memory.
func (c *Cache) load(db *sql.DB) error {
	rows, err := db.Query(`SELECT key, backend, url, persistent_id, failure, stored_at FROM entries`)
	if err != nil {
		return fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, storedAt string
		var url, pid, failure sql.NullString
		var e Entry
		if err := rows.Scan(&key, &e.Backend, &url, &pid, &failure, &storedAt); err != nil {
			return fmt.Errorf("scanning entry: %w", err)
		}
		e.URL, e.PersistentID, e.Failure = url.String, pid.String, failure.String
		if t, parseErr := time.Parse(time.RFC3339Nano, storedAt); parseErr == nil {
			e.StoredAt = t
		}
		c.entries[key] = e
	}
	return rows.Err()
}

// Get returns the cached entry for (backend, identifier), if any.
func (c *Cache) Get(backend, identifier string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	key := LookupKey(backend, identifier)
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	return e, ok
}

// Put stores an entry. Writing a value equal to the current one is a no-op.
func (c *Cache) Put(backend, identifier string, e Entry) {
	if c == nil {
		return
	}
	e.Backend = backend
	if e.StoredAt.IsZero() {
		e.StoredAt = time.Now().UTC()
	}
	key := LookupKey(backend, identifier)

	c.mu.Lock()
	if old, ok := c.entries[key]; ok && old.sameValue(e) {
		c.mu.Unlock()
		return
	}
	c.entries[key] = e
	c.dirty[key] = struct{}{}
	pending := len(c.dirty)
	c.mu.Unlock()

	if pending >= c.flushEvery {
		select {
		case c.kick <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Flush persists all dirty entries in one transaction. Entries that fail to
// persist stay dirty for the next flush.
func (c *Cache) Flush() error {
	if c == nil {
		return nil
	}
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	if c.db == nil || len(c.dirty) == 0 {
		c.mu.Unlock()
		return nil
	}
	batch := make(map[string]Entry, len(c.dirty))
	for key := range c.dirty {
		batch[key] = c.entries[key]
	}
	c.dirty = make(map[string]struct{})
	c.mu.Unlock()

	if err := c.write(batch); err != nil {
		c.mu.Lock()
		for key := range batch {
			c.dirty[key] = struct{}{}
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Cache) write(batch map[string]Entry) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning cache flush: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO entries
		(key, backend, url, persistent_id, failure, stored_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing cache flush: %w", err)
	}
	defer stmt.Close()

	for key, e := range batch {
		if _, err := stmt.Exec(key, e.Backend, e.URL, e.PersistentID, e.Failure,
			e.StoredAt.UTC().Format(time.RFC3339Nano)); err != nil {
			tx.Rollback()
			return fmt.Errorf("writing cache entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cache flush: %w", err)
	}
	return nil
}

func (c *Cache) flushLoop(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		case <-c.kick:
		}
		if err := c.Flush(); err != nil {
			c.log.Warn("cache flush failed", "error", err)
		}
	}
}

// Close stops the background flusher, flushes the remaining entries, and
// closes the database. It is safe to call more than once.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	var err error
	c.once.Do(func() {
		close(c.stop)
		<-c.done
		err = c.Flush()
		if c.db != nil {
			if closeErr := c.db.Close(); err == nil {
				err = closeErr
			}
		}
	})
	return err
}

// Stats returns the number of cached entries per backend.
func (c *Cache) Stats() map[string]int {
	out := make(map[string]int)
	if c == nil {
		return out
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		out[e.Backend]++
	}
	return out
}

// Purge removes entries from memory and from the store. An empty backend
// matches every backend; failuresOnly restricts the purge to negative
// entries. It returns the number of entries removed.
func (c *Cache) Purge(backend string, failuresOnly bool) (int, error) {
	if c == nil {
		return 0, nil
	}
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	var keys []string
	for key, e := range c.entries {
		if backend != "" && e.Backend != backend {
			continue
		}
		if failuresOnly && !e.Negative() {
			continue
		}
		keys = append(keys, key)
	}
	for _, key := range keys {
		delete(c.entries, key)
		delete(c.dirty, key)
	}
	c.mu.Unlock()

	if c.db == nil || len(keys) == 0 {
		return len(keys), nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning purge: %w", err)
	}
	for _, key := range keys {
		if _, err := tx.Exec(`DELETE FROM entries WHERE key = ?`, key); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("deleting cache entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing purge: %w", err)
	}
	return len(keys), nil
}
