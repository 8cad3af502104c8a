package store

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
	"git.home.luguber.info/inful/detecttune/internal/matcher"
	"git.home.luguber.info/inful/detecttune/internal/params"
	"git.home.luguber.info/inful/detecttune/internal/trial"
)

func testMeta() Meta {
	return Meta{Strategy: "exhaustive", Metric: "f1", Columns: params.ColumnNames}
}

func sampleTrial(id int) trial.Trial {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	t := trial.Trial{
		ID:        id,
		Params:    params.Set{ZScoreThreshold: float64(id), FLow: 0.25, FHigh: 4, MinWaveMS: 250, MaxWaveMS: 1000},
		Status:    trial.StatusComplete,
		StartedAt: start,
	}
	t.Record(trial.Outcome{
		Fraction: 1,
		Patients: []trial.PatientResult{{
			SubjectID:        1,
			Counts:           trial.Counts{TP: 1, FP: 2, FN: 1},
			GroundTruthTotal: 2,
			Events: []matcher.Event{
				{Kind: matcher.KindTP, Detection: 10, GroundTruth: 12},
				{Kind: matcher.KindFP, Detection: 50, GroundTruth: -1},
				{Kind: matcher.KindFP, Detection: 90, GroundTruth: -1},
				{Kind: matcher.KindFN, Detection: -1, GroundTruth: 400},
			},
		}},
		Counts: trial.Counts{TP: 1, FP: 2, FN: 1},
		Scores: trial.Score(trial.Counts{TP: 1, FP: 2, FN: 1}, trial.ZeroOnEmpty),
	}, trial.MetricF1)
	t.FinishedAt = start.Add(1500 * time.Millisecond)
	return t
}

func newStore(t *testing.T, b Backend, opts Options) *ResultStore {
	t.Helper()
	s, err := New(b, opts)
	require.NoError(t, err)
	return s
}

func TestResumeFreshStoreAssignsRunID(t *testing.T) {
	s := newStore(t, NewMemoryBackend(), Options{})
	state, err := s.Resume(t.Context(), testMeta())
	require.NoError(t, err)
	assert.Equal(t, State{}, state)

	meta, ok := s.Meta()
	require.True(t, ok)
	assert.NotEmpty(t, meta.RunID)
	assert.Equal(t, SchemaVersion, meta.SchemaVersion)
}

func TestSaveBeforeResumeFails(t *testing.T) {
	s := newStore(t, NewMemoryBackend(), Options{})
	_, err := s.Save(t.Context(), sampleTrial(0))
	assert.True(t, derrors.HasCategory(err, derrors.CategoryInternal))
}

func TestResumeScenario(t *testing.T) {
	b := NewMemoryBackend()
	s := newStore(t, b, Options{})
	_, err := s.Resume(t.Context(), testMeta())
	require.NoError(t, err)
	for id := 0; id <= 4; id++ {
		_, err := s.Save(t.Context(), sampleTrial(id))
		require.NoError(t, err)
	}
	firstRun, err := s.Rows(t.Context())
	require.NoError(t, err)
	meta, _ := s.Meta()

	s2 := newStore(t, b, Options{})
	state, err := s2.Resume(t.Context(), testMeta())
	require.NoError(t, err)
	assert.Equal(t, State{Next: 5, Persisted: 5}, state)
	resumedMeta, _ := s2.Meta()
	assert.Equal(t, meta.RunID, resumedMeta.RunID)

	for id := 5; id < 20; id++ {
		_, err := s2.Save(t.Context(), sampleTrial(id))
		require.NoError(t, err)
	}
	rows, err := s2.Rows(t.Context())
	require.NoError(t, err)
	require.Len(t, rows, 20)
	assert.Equal(t, firstRun, rows[:5])
	for i, r := range rows {
		assert.Equal(t, i, r.ID)
	}
}

func TestSaveRejectsOutOfOrderAndDuplicates(t *testing.T) {
	s := newStore(t, NewMemoryBackend(), Options{})
	_, err := s.Resume(t.Context(), testMeta())
	require.NoError(t, err)
	_, err = s.Save(t.Context(), sampleTrial(0))
	require.NoError(t, err)

	_, err = s.Save(t.Context(), sampleTrial(0))
	assert.True(t, errors.Is(err, ErrInconsistent))
	_, err = s.Save(t.Context(), sampleTrial(2))
	assert.True(t, errors.Is(err, ErrInconsistent))
}

func TestResumeRejectsIncompatibleMeta(t *testing.T) {
	b := NewMemoryBackend()
	s := newStore(t, b, Options{})
	_, err := s.Resume(t.Context(), testMeta())
	require.NoError(t, err)

	other := testMeta()
	other.Metric = "balanced"
	_, err = newStore(t, b, Options{}).Resume(t.Context(), other)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInconsistent))
	ce, ok := derrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, derrors.CategoryStore, ce.Category())
	assert.Equal(t, derrors.RetryUserAction, ce.RetryStrategy())
	assert.Contains(t, ce.Message(), "metric")
}

func TestResumeRejectsGap(t *testing.T) {
	b := NewMemoryBackend()
	s := newStore(t, b, Options{})
	_, err := s.Resume(t.Context(), testMeta())
	require.NoError(t, err)
	_, err = s.Save(t.Context(), sampleTrial(0))
	require.NoError(t, err)

	rows, err := b.Namespace(namespaceRows)
	require.NoError(t, err)
	payload, err := rows.ReadByID(t.Context(), 0)
	require.NoError(t, err)
	require.NoError(t, rows.Append(t.Context(), 2, bytes.Replace(payload, []byte(`"id":0`), []byte(`"id":2`), 1)))

	_, err = newStore(t, b, Options{}).Resume(t.Context(), testMeta())
	assert.True(t, errors.Is(err, ErrInconsistent), "got %v", err)
	assert.Contains(t, err.Error(), "not contiguous")
}

func TestResumeRejectsRowsWithoutMeta(t *testing.T) {
	b := NewMemoryBackend()
	rows, err := b.Namespace(namespaceRows)
	require.NoError(t, err)
	require.NoError(t, rows.Append(t.Context(), 0, []byte(`{"id":0}`)))

	_, err = newStore(t, b, Options{}).Resume(t.Context(), testMeta())
	assert.True(t, errors.Is(err, ErrInconsistent))
}

func TestResumeDiscardsUncommittedDetail(t *testing.T) {
	b := NewMemoryBackend()
	s := newStore(t, b, Options{})
	_, err := s.Resume(t.Context(), testMeta())
	require.NoError(t, err)

	details, err := b.Namespace(namespaceDetails)
	require.NoError(t, err)
	require.NoError(t, details.Append(t.Context(), 0, []byte(`{}`)))

	s2 := newStore(t, b, Options{})
	state, err := s2.Resume(t.Context(), testMeta())
	require.NoError(t, err)
	assert.Equal(t, 0, state.Next)
	_, err = s2.Save(t.Context(), sampleTrial(0))
	require.NoError(t, err)
}

func TestDetailTruncatesEventsButKeepsCounts(t *testing.T) {
	s := newStore(t, NewMemoryBackend(), Options{DetailEventLimit: 1})
	_, err := s.Resume(t.Context(), testMeta())
	require.NoError(t, err)
	_, err = s.Save(t.Context(), sampleTrial(0))
	require.NoError(t, err)

	d, err := s.Detail(t.Context(), 0)
	require.NoError(t, err)
	assert.True(t, d.Truncated)
	require.Len(t, d.Patients, 1)
	assert.Len(t, d.Patients[0].Events, 3)
	assert.Equal(t, trial.Counts{TP: 1, FP: 2, FN: 1}, d.Patients[0].Counts)
	assert.Equal(t, 2, d.GroundTruthTotal)

	_, err = s.Detail(t.Context(), 5)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCSVMirror(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "trials.csv")
	b := NewMemoryBackend()

	s := newStore(t, b, Options{CSVPath: csvPath})
	_, err := s.Resume(t.Context(), testMeta())
	require.NoError(t, err)
	for id := range 3 {
		_, err := s.Save(t.Context(), sampleTrial(id))
		require.NoError(t, err)
	}
	require.NoError(t, s.csv.close())
	s.csv = nil

	records := readCSV(t, csvPath)
	require.Len(t, records, 4)
	assert.Equal(t, CSVHeader(params.ColumnNames), records[0])
	assert.Equal(t, "2", records[3][0])
	assert.Equal(t, "complete", records[3][1])

	// Drop the last line and let the next resume catch the mirror up.
	lines := strings.SplitAfter(strings.TrimSpace(readFile(t, csvPath)), "\n")
	require.NoError(t, os.WriteFile(csvPath, []byte(strings.Join(lines[:3], "")), 0o644))

	s2 := newStore(t, b, Options{CSVPath: csvPath})
	_, err = s2.Resume(t.Context(), testMeta())
	require.NoError(t, err)
	require.NoError(t, s2.csv.close())
	s2.csv = nil
	assert.Len(t, readCSV(t, csvPath), 4)
}

func TestCSVMirrorHeaderMismatch(t *testing.T) {
	csvPath := filepath.Join(t.TempDir(), "trials.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("trial_id,status\n"), 0o644))

	s := newStore(t, NewMemoryBackend(), Options{CSVPath: csvPath})
	_, err := s.Resume(t.Context(), testMeta())
	assert.True(t, errors.Is(err, ErrInconsistent))
}

func TestExportCSVIncludesEveryStatus(t *testing.T) {
	s := newStore(t, NewMemoryBackend(), Options{})
	_, err := s.Resume(t.Context(), testMeta())
	require.NoError(t, err)
	pruned := sampleTrial(1)
	pruned.Status = trial.StatusPruned
	for _, tr := range []trial.Trial{sampleTrial(0), pruned} {
		_, err := s.Save(t.Context(), tr)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, s.ExportCSV(t.Context(), &buf, params.ColumnNames))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "pruned", records[2][1])
	header := records[0]
	assert.Equal(t, "1500", records[1][indexOf(header, "duration_ms")])
	assert.Equal(t, "1", records[1][indexOf(header, "tp")])
}

func TestResultStoreOverSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	b, err := OpenSQLite(path)
	require.NoError(t, err)
	s := newStore(t, b, Options{})
	_, err = s.Resume(t.Context(), testMeta())
	require.NoError(t, err)
	_, err = s.Save(t.Context(), sampleTrial(0))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	b, err = OpenSQLite(path)
	require.NoError(t, err)
	s = newStore(t, b, Options{})
	defer func() { _ = s.Close() }()
	state, err := s.Resume(t.Context(), testMeta())
	require.NoError(t, err)
	assert.Equal(t, 1, state.Next)
	row, err := s.Row(t.Context(), 0)
	require.NoError(t, err)
	assert.Equal(t, trial.StatusComplete, row.Status)
	assert.Len(t, row.Steps, 1)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	records, err := csv.NewReader(strings.NewReader(readFile(t, path))).ReadAll()
	require.NoError(t, err)
	return records
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}
