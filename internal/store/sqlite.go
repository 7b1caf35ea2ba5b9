package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS responses (
	key        TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	payload    BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS responses_created_at ON responses(created_at);
`

// SQLiteStore is a persistent response cache. Entries older than maxAge are
// treated as missing and pruned on write.
type SQLiteStore struct {
	db     *sql.DB
	maxAge time.Duration
	now    func() time.Time
}

// OpenSQLite creates or opens the cache database at path.
func OpenSQLite(path string, maxAge time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to cache database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}

	return &SQLiteStore{db: db, maxAge: maxAge, now: time.Now}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Put stores or replaces the payload under key.
func (s *SQLiteStore) Put(key, kind string, payload []byte) error {
	now := s.now()
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO responses (key, kind, payload, created_at) VALUES (?, ?, ?, ?)`,
		key, kind, payload, now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to cache %s response: %w", kind, err)
	}

	if s.maxAge > 0 {
		cutoff := now.Add(-s.maxAge).UnixNano()
		if _, err := s.db.Exec(`DELETE FROM responses WHERE created_at < ?`, cutoff); err != nil {
			return fmt.Errorf("failed to prune cache: %w", err)
		}
	}
	return nil
}

// Get returns the payload cached under key.
func (s *SQLiteStore) Get(key string) ([]byte, error) {
	var (
		payload   []byte
		createdAt int64
	)
	err := s.db.QueryRow(`SELECT payload, created_at FROM responses WHERE key = ?`, key).Scan(&payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}
	if s.maxAge > 0 && time.Unix(0, createdAt).Before(s.now().Add(-s.maxAge)) {
		return nil, ErrNotFound
	}
	return payload, nil
}
