package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig configures a Badger-backed store.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	// Logger receives Badger's internal log lines. Nil silences them.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns durable settings: every append is synced.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{SyncWrites: true}
}

// BadgerBackend keeps each namespace under its own key prefix.
type BadgerBackend struct {
	db *badger.DB
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// OpenBadger opens the database described by cfg.
func OpenBadger(cfg BadgerConfig) (*BadgerBackend, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

// Namespace returns the keyed store for name.
func (b *BadgerBackend) Namespace(name string) (KeyedStore, error) {
	if name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("invalid namespace name %q", name)
	}
	return &badgerNamespace{db: b.db, prefix: []byte(name + "/")}, nil
}

// Close closes the database.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

type badgerNamespace struct {
	db     *badger.DB
	prefix []byte
}

// Ids are zero padded so lexical key order equals numeric order.
func (n *badgerNamespace) key(id int) []byte {
	return fmt.Appendf(append([]byte(nil), n.prefix...), "%012d", id)
}

func (n *badgerNamespace) name() string {
	return strings.TrimSuffix(string(n.prefix), "/")
}

func (n *badgerNamespace) Append(ctx context.Context, id int, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id < 0 {
		return fmt.Errorf("negative id %d", id)
	}
	key := n.key(id)
	err := n.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s/%d", ErrDuplicateKey, n.name(), id)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(key, payload)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return err
		}
		return fmt.Errorf("write %s/%d: %w", n.name(), id, err)
	}
	return nil
}

func (n *badgerNamespace) ReadAll(ctx context.Context) ([]Entry, error) {
	var out []Entry
	err := n.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = n.prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id, err := strconv.Atoi(string(item.Key()[len(n.prefix):]))
			if err != nil {
				return fmt.Errorf("malformed key %q: %w", item.Key(), err)
			}
			payload, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, Entry{ID: id, Payload: payload})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", n.name(), err)
	}
	return out, nil
}

func (n *badgerNamespace) ReadByID(ctx context.Context, id int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var payload []byte
	err := n.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(n.key(id))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s/%d", ErrNotFound, n.name(), id)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%d: %w", n.name(), id, err)
	}
	return payload, nil
}

func (n *badgerNamespace) Delete(ctx context.Context, id int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := n.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(n.key(id))
	})
	if err != nil {
		return fmt.Errorf("delete %s/%d: %w", n.name(), id, err)
	}
	return nil
}
