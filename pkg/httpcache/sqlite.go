package httpcache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists cache entries in a local SQLite database so the
// cache survives process restarts.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the cache database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	store := &SQLiteStore{
		db:   db,
		path: dbPath,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return store, nil
}

// initSchema creates the cache table
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		header TEXT NOT NULL,
		body BLOB,
		stored_at INTEGER NOT NULL,
		ttl_ns INTEGER NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_cache_entries_path ON cache_entries(path);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Load reads one entry. A missing row returns (nil, nil); an unreadable row
// returns an error so the cache can purge it.
func (s *SQLiteStore) Load(key string) (*Entry, error) {
	query := `
	SELECT status_code, header, body, stored_at, ttl_ns
	FROM cache_entries WHERE key = ?`

	var (
		statusCode int
		headerJSON string
		body       []byte
		storedAt   int64
		ttlNS      int64
	)

	err := s.db.QueryRow(query, key).Scan(&statusCode, &headerJSON, &body, &storedAt, &ttlNS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entry: %w", err)
	}

	var header http.Header
	if err := json.Unmarshal([]byte(headerJSON), &header); err != nil {
		return nil, fmt.Errorf("corrupt cache entry header: %w", err)
	}

	return &Entry{
		StatusCode: statusCode,
		Header:     header,
		Body:       body,
		StoredAt:   time.Unix(0, storedAt),
		TTL:        time.Duration(ttlNS),
	}, nil
}

// Save upserts an entry (last write wins)
func (s *SQLiteStore) Save(key string, path string, entry *Entry) error {
	headerJSON, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry header: %w", err)
	}

	query := `
	INSERT INTO cache_entries (key, path, status_code, header, body, stored_at, ttl_ns, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, strftime('%s', 'now'))
	ON CONFLICT(key) DO UPDATE SET
		path = excluded.path,
		status_code = excluded.status_code,
		header = excluded.header,
		body = excluded.body,
		stored_at = excluded.stored_at,
		ttl_ns = excluded.ttl_ns,
		updated_at = excluded.updated_at`

	_, err = s.db.Exec(query, key, path, entry.StatusCode, string(headerJSON),
		entry.Body, entry.StoredAt.UnixNano(), int64(entry.TTL))
	if err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}
	return nil
}

// Delete removes one entry
func (s *SQLiteStore) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// DeletePrefix removes every entry whose path starts with the given prefix.
// The prefix is matched literally: LIKE metacharacters in repository names
// (underscores above all) must not widen the match.
func (s *SQLiteStore) DeletePrefix(pathPrefix string) error {
	_, err := s.db.Exec(`DELETE FROM cache_entries WHERE path LIKE ? || '%' ESCAPE '\'`,
		escapeLike(pathPrefix))
	if err != nil {
		return fmt.Errorf("failed to delete cache entries by prefix: %w", err)
	}
	return nil
}

// escapeLike escapes the LIKE pattern metacharacters in a literal string
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
