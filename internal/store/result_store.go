// Package store persists trial results: an append-only trial table, one
// detail record per trial and the run metadata used to validate resumes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
	"git.home.luguber.info/inful/detecttune/internal/logfields"
	"git.home.luguber.info/inful/detecttune/internal/trial"
)

const (
	namespaceRows    = "rows"
	namespaceDetails = "details"
	namespaceMeta    = "meta"
	metaID           = 0
)

// State is the resume position of a search.
type State struct {
	Next      int
	Persisted int
}

// Options configures a ResultStore.
type Options struct {
	// CSVPath mirrors committed rows into a CSV file when set.
	CSVPath string
	// DetailEventLimit caps events of each kind per subject in detail
	// records. Zero keeps all of them.
	DetailEventLimit int
	Logger           *slog.Logger
}

// ResultStore is the single writer of a run's results. Save is the only
// serialization point of a search.
type ResultStore struct {
	mu      sync.Mutex
	backend Backend
	rows    KeyedStore
	details KeyedStore
	meta    KeyedStore
	opts    Options
	logger  *slog.Logger

	current *Meta
	next    int
	csv     *csvMirror
}

// New opens the result namespaces of backend. The store owns backend and
// closes it on Close.
func New(backend Backend, opts Options) (*ResultStore, error) {
	s := &ResultStore{backend: backend, opts: opts, logger: opts.Logger}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	var err error
	if s.rows, err = backend.Namespace(namespaceRows); err != nil {
		return nil, err
	}
	if s.details, err = backend.Namespace(namespaceDetails); err != nil {
		return nil, err
	}
	if s.meta, err = backend.Namespace(namespaceMeta); err != nil {
		return nil, err
	}
	return s, nil
}

func inconsistent(format string, args ...any) error {
	return derrors.WrapError(ErrInconsistent, derrors.CategoryStore, fmt.Sprintf(format, args...)).
		Fatal().
		UserAction().
		Build()
}

// ReadMeta returns the stored run metadata, or ErrNotFound for a fresh store.
func (s *ResultStore) ReadMeta(ctx context.Context) (Meta, error) {
	payload, err := s.meta.ReadByID(ctx, metaID)
	if err != nil {
		return Meta{}, err
	}
	var m Meta
	if err := json.Unmarshal(payload, &m); err != nil {
		return Meta{}, inconsistent("run metadata is unreadable: %v", err)
	}
	return m, nil
}

// Resume prepares the store for writing trials of the run described by want.
// A fresh store records want; an existing one must match it and hold a
// contiguous id sequence starting at 0. Inconsistencies are reported, never
// repaired. The returned state points at the first trial id not yet stored.
func (s *ResultStore) Resume(ctx context.Context, want Meta) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if want.SchemaVersion == 0 {
		want.SchemaVersion = SchemaVersion
	}
	rows, err := s.loadRows(ctx)
	if err != nil {
		return State{}, err
	}

	stored, err := s.ReadMeta(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		if len(rows) > 0 {
			return State{}, inconsistent("store holds %d trials but no run metadata", len(rows))
		}
		if want.RunID == "" {
			want.RunID = uuid.NewString()
		}
		if want.CreatedAt.IsZero() {
			want.CreatedAt = time.Now().UTC()
		}
		payload, err := json.Marshal(want)
		if err != nil {
			return State{}, fmt.Errorf("marshal run metadata: %w", err)
		}
		if err := s.meta.Append(ctx, metaID, payload); err != nil {
			return State{}, err
		}
		stored = want
	case err != nil:
		return State{}, err
	default:
		if field := stored.compatible(want); field != "" {
			return State{}, derrors.WrapError(ErrInconsistent, derrors.CategoryStore,
				fmt.Sprintf("store was written with a different %s", field)).
				Fatal().
				UserAction().
				WithContext("stored_strategy", stored.Strategy).
				WithContext("stored_metric", stored.Metric).
				WithContext("stored_schema", stored.SchemaVersion).
				Build()
		}
	}

	for i, r := range rows {
		if r.ID != i {
			return State{}, inconsistent("trial ids are not contiguous: expected %d, found %d", i, r.ID)
		}
	}
	n := len(rows)

	// A detail without its row belongs to a trial that never committed.
	if _, err := s.details.ReadByID(ctx, n); err == nil {
		s.logger.Warn("Discarding uncommitted trial detail", logfields.TrialID(n))
		if err := s.details.Delete(ctx, n); err != nil {
			return State{}, err
		}
	} else if !errors.Is(err, ErrNotFound) {
		return State{}, err
	}

	if s.opts.CSVPath != "" {
		if err := s.openMirror(rows, stored.Columns); err != nil {
			return State{}, err
		}
	}

	s.current = &stored
	s.next = n
	return State{Next: n, Persisted: n}, nil
}

func (s *ResultStore) openMirror(rows []TrialRow, columns []string) error {
	if s.csv != nil {
		_ = s.csv.close()
		s.csv = nil
	}
	m, err := openCSVMirror(s.opts.CSVPath, CSVHeader(columns))
	if err != nil {
		return err
	}
	if m.rows > len(rows) {
		_ = m.close()
		return inconsistent("csv mirror %s has %d rows but the store has %d", s.opts.CSVPath, m.rows, len(rows))
	}
	if m.rows < len(rows) {
		s.logger.Warn("Catching up csv mirror",
			logfields.Path(s.opts.CSVPath),
			slog.Int("missing", len(rows)-m.rows))
		for _, r := range rows[m.rows:] {
			if err := m.append(r); err != nil {
				_ = m.close()
				return err
			}
		}
	}
	s.csv = m
	return nil
}

// Meta returns the metadata of the resumed run.
func (s *ResultStore) Meta() (Meta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Meta{}, false
	}
	return *s.current, true
}

// Save persists t immediately: the detail record first, then the row,
// which is the commit point, then the CSV mirror.
func (s *ResultStore) Save(ctx context.Context, t trial.Trial) (TrialRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return TrialRow{}, derrors.InternalError("result store saved to before Resume").Build()
	}
	if t.ID != s.next {
		return TrialRow{}, inconsistent("trial %d saved out of order, expected %d", t.ID, s.next)
	}

	row := RowFromTrial(t)
	detail, err := json.Marshal(DetailFromTrial(t, s.opts.DetailEventLimit))
	if err != nil {
		return TrialRow{}, fmt.Errorf("marshal trial detail: %w", err)
	}
	payload, err := json.Marshal(row)
	if err != nil {
		return TrialRow{}, fmt.Errorf("marshal trial row: %w", err)
	}
	if err := s.details.Append(ctx, t.ID, detail); err != nil {
		return TrialRow{}, err
	}
	if err := s.rows.Append(ctx, t.ID, payload); err != nil {
		return TrialRow{}, err
	}
	s.next++
	if s.csv != nil {
		if err := s.csv.append(row); err != nil {
			// The row is committed; the mirror catches up on the next resume.
			s.logger.Warn("CSV mirror append failed", logfields.TrialID(t.ID), logfields.Error(err))
		}
	}
	return row, nil
}

func (s *ResultStore) loadRows(ctx context.Context) ([]TrialRow, error) {
	entries, err := s.rows.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]TrialRow, 0, len(entries))
	for _, e := range entries {
		var r TrialRow
		if err := json.Unmarshal(e.Payload, &r); err != nil {
			return nil, inconsistent("trial row %d is unreadable: %v", e.ID, err)
		}
		if r.ID != e.ID {
			return nil, inconsistent("trial row stored under id %d claims id %d", e.ID, r.ID)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// Rows returns every committed row in id order.
func (s *ResultStore) Rows(ctx context.Context) ([]TrialRow, error) {
	return s.loadRows(ctx)
}

// Row returns one committed row.
func (s *ResultStore) Row(ctx context.Context, id int) (TrialRow, error) {
	payload, err := s.rows.ReadByID(ctx, id)
	if err != nil {
		return TrialRow{}, err
	}
	var r TrialRow
	if err := json.Unmarshal(payload, &r); err != nil {
		return TrialRow{}, fmt.Errorf("decode trial row %d: %w", id, err)
	}
	return r, nil
}

// Detail returns the detail record of a trial.
func (s *ResultStore) Detail(ctx context.Context, id int) (TrialDetail, error) {
	payload, err := s.details.ReadByID(ctx, id)
	if err != nil {
		return TrialDetail{}, err
	}
	var d TrialDetail
	if err := json.Unmarshal(payload, &d); err != nil {
		return TrialDetail{}, fmt.Errorf("decode trial detail %d: %w", id, err)
	}
	return d, nil
}

// ExportCSV writes the full trial table, every status included.
func (s *ResultStore) ExportCSV(ctx context.Context, w io.Writer, paramColumns []string) error {
	rows, err := s.loadRows(ctx)
	if err != nil {
		return err
	}
	return WriteCSV(w, paramColumns, rows)
}

// Close releases the CSV mirror and the backend.
func (s *ResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.csv != nil {
		errs = append(errs, s.csv.close())
		s.csv = nil
	}
	errs = append(errs, s.backend.Close())
	return errors.Join(errs...)
}
