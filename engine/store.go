package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chazu/tale/compiler/hash"
	"github.com/chazu/tale/pkg/bytecode"
)

// ErrNotFound indicates the requested instance doesn't exist.
var ErrNotFound = errors.New("engine: instance not found")

// Store handles SQLite storage for compiled chains and suspended
// instances. It satisfies cache.Store.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Record is a persisted suspended instance.
type Record struct {
	ID       string
	Source   string
	Snapshot []byte // canonical CBOR, see bytecode.MarshalSnapshot
	Reason   string
	SavedAt  time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS chains (
	key  TEXT PRIMARY KEY,
	data BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS instances (
	id       TEXT PRIMARY KEY,
	source   TEXT NOT NULL,
	snapshot BLOB NOT NULL,
	reason   TEXT NOT NULL DEFAULT '',
	saved_at INTEGER NOT NULL
);`

// OpenStore opens (creating if needed) the database at path. The special
// path ":memory:" gives a private in-memory database.
func OpenStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("engine: creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("engine: opening database: %w", err)
	}
	// one connection: an in-memory database exists per connection, and
	// writes are serialized anyway
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access from other processes
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: creating tables: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// LoadChain returns the stored chain for key.
func (s *Store) LoadChain(ctx context.Context, key hash.Key) (*bytecode.Chain, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM chains WHERE key = ?", key.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("engine: querying chain: %w", err)
	}
	chain, err := bytecode.DecodeChain(data)
	if err != nil {
		return nil, false, fmt.Errorf("engine: chain %s: %w", key.Short(), err)
	}
	return chain, true, nil
}

// StoreChain persists chain under key.
func (s *Store) StoreChain(ctx context.Context, key hash.Key, chain *bytecode.Chain) error {
	data, err := chain.Encode()
	if err != nil {
		return fmt.Errorf("engine: encoding chain: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO chains (key, data) VALUES (?, ?)",
		key.String(), data,
	)
	if err != nil {
		return fmt.Errorf("engine: saving chain: %w", err)
	}
	return nil
}

// SaveInstance persists a suspended instance, replacing an earlier save.
func (s *Store) SaveInstance(ctx context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO instances (id, source, snapshot, reason, saved_at) VALUES (?, ?, ?, ?, ?)",
		r.ID, r.Source, r.Snapshot, r.Reason, r.SavedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("engine: saving instance: %w", err)
	}
	return nil
}

// LoadInstance retrieves a persisted instance.
func (s *Store) LoadInstance(ctx context.Context, id string) (*Record, error) {
	r := &Record{ID: id}
	var savedAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT source, snapshot, reason, saved_at FROM instances WHERE id = ?", id,
	).Scan(&r.Source, &r.Snapshot, &r.Reason, &savedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("engine: querying instance: %w", err)
	}
	r.SavedAt = time.Unix(0, savedAt)
	return r, nil
}

// DeleteInstance removes a persisted instance. Deleting a missing id is
// not an error.
func (s *Store) DeleteInstance(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM instances WHERE id = ?", id); err != nil {
		return fmt.Errorf("engine: deleting instance: %w", err)
	}
	return nil
}

// ListInstances returns the ids of all persisted instances, oldest first.
func (s *Store) ListInstances(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM instances ORDER BY saved_at, id")
	if err != nil {
		return nil, fmt.Errorf("engine: listing instances: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("engine: listing instances: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
