package store

import (
	"context"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/detecttune/internal/foundation/normalization"
)

// Entry is one stored payload.
type Entry struct {
	ID      int
	Payload []byte
}

// KeyedStore is an append-only map from trial id to payload.
// Append fails with ErrDuplicateKey for an existing id; reads of a missing
// id fail with ErrNotFound. ReadAll returns entries in ascending id order.
type KeyedStore interface {
	Append(ctx context.Context, id int, payload []byte) error
	ReadAll(ctx context.Context) ([]Entry, error)
	ReadByID(ctx context.Context, id int) ([]byte, error)
	Delete(ctx context.Context, id int) error
}

// Backend hands out namespaced keyed stores sharing one underlying database.
type Backend interface {
	Namespace(name string) (KeyedStore, error)
	Close() error
}

// BackendKind selects a Backend implementation.
type BackendKind string

const (
	BackendSQLite BackendKind = "sqlite"
	BackendBadger BackendKind = "badger"
	BackendMemory BackendKind = "memory"
)

var backendNormalizer = normalization.NewNormalizer("store backend", map[string]BackendKind{
	"sqlite": BackendSQLite,
	"badger": BackendBadger,
	"memory": BackendMemory,
}, BackendSQLite)

// ParseBackendKind normalizes a configured backend name.
func ParseBackendKind(raw string) (BackendKind, error) { return backendNormalizer.Parse(raw) }

// BackendOptions configures OpenBackend.
type BackendOptions struct {
	Kind   BackendKind
	Path   string
	Logger *slog.Logger
}

// OpenBackend opens the backend named by opts.Kind.
func OpenBackend(opts BackendOptions) (Backend, error) {
	switch opts.Kind {
	case BackendSQLite, "":
		return OpenSQLite(opts.Path)
	case BackendBadger:
		cfg := DefaultBadgerConfig()
		cfg.Path = opts.Path
		cfg.Logger = opts.Logger
		return OpenBadger(cfg)
	case BackendMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Kind)
	}
}
