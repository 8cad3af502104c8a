package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// SQLiteBackend stores every namespace in one table keyed by (namespace, id).
type SQLiteBackend struct {
	db *sql.DB
	mu sync.RWMutex
}

// OpenSQLite opens or creates a database at path. Use ":memory:" for an
// in-memory database.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	b := &SQLiteBackend{db: db}
	if err := b.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		namespace TEXT NOT NULL,
		id INTEGER NOT NULL,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (namespace, id)
	);
	`
	_, err := b.db.Exec(schema)
	return err
}

// Namespace returns the keyed store for name.
func (b *SQLiteBackend) Namespace(name string) (KeyedStore, error) {
	if name == "" {
		return nil, errors.New("namespace name is required")
	}
	return &sqliteNamespace{backend: b, name: name}, nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

type sqliteNamespace struct {
	backend *SQLiteBackend
	name    string
}

func (n *sqliteNamespace) Append(ctx context.Context, id int, payload []byte) error {
	n.backend.mu.Lock()
	defer n.backend.mu.Unlock()

	_, err := n.backend.db.ExecContext(ctx,
		"INSERT INTO entries (namespace, id, payload, created_at) VALUES (?, ?, ?, ?)",
		n.name, id, payload, time.Now().Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s/%d", ErrDuplicateKey, n.name, id)
		}
		return fmt.Errorf("insert %s/%d: %w", n.name, id, err)
	}
	return nil
}

func (n *sqliteNamespace) ReadAll(ctx context.Context) ([]Entry, error) {
	n.backend.mu.RLock()
	defer n.backend.mu.RUnlock()

	rows, err := n.backend.db.QueryContext(ctx,
		"SELECT id, payload FROM entries WHERE namespace = ? ORDER BY id ASC", n.name)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", n.name, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan %s: %w", n.name, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", n.name, err)
	}
	return out, nil
}

func (n *sqliteNamespace) ReadByID(ctx context.Context, id int) ([]byte, error) {
	n.backend.mu.RLock()
	defer n.backend.mu.RUnlock()

	var payload []byte
	err := n.backend.db.QueryRowContext(ctx,
		"SELECT payload FROM entries WHERE namespace = ? AND id = ?", n.name, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%d", ErrNotFound, n.name, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%d: %w", n.name, id, err)
	}
	return payload, nil
}

func (n *sqliteNamespace) Delete(ctx context.Context, id int) error {
	n.backend.mu.Lock()
	defer n.backend.mu.Unlock()

	_, err := n.backend.db.ExecContext(ctx,
		"DELETE FROM entries WHERE namespace = ? AND id = ?", n.name, id)
	if err != nil {
		return fmt.Errorf("delete %s/%d: %w", n.name, id, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
