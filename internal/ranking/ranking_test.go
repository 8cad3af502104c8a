package ranking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/detecttune/internal/detector"
	"git.home.luguber.info/inful/detecttune/internal/matcher"
	"git.home.luguber.info/inful/detecttune/internal/params"
	"git.home.luguber.info/inful/detecttune/internal/store"
	"git.home.luguber.info/inful/detecttune/internal/subject"
	"git.home.luguber.info/inful/detecttune/internal/testdetector"
	"git.home.luguber.info/inful/detecttune/internal/trial"
)

func row(id int, status trial.Status, f1, precision float64) store.TrialRow {
	return store.TrialRow{ID: id, Status: status, Scores: trial.Scores{F1: f1, Precision: precision}}
}

func ids(rows []store.TrialRow) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestRankCompleteOnlyDescendingWithIDTieBreak(t *testing.T) {
	rows := []store.TrialRow{
		row(0, trial.StatusComplete, 0.5, 0.9),
		row(1, trial.StatusPruned, 0.99, 0.99),
		row(2, trial.StatusComplete, 0.7, 0.1),
		row(3, trial.StatusFailed, 0, 0),
		row(4, trial.StatusComplete, 0.7, 0.5),
		row(5, trial.StatusComplete, 0.2, 0.2),
	}
	assert.Equal(t, []int{2, 4, 0, 5}, ids(Rank(rows, trial.MetricF1)))
	assert.Equal(t, []int{0, 4, 5, 2}, ids(Rank(rows, trial.MetricPrecision)))
}

func TestTopK(t *testing.T) {
	var rows []store.TrialRow
	for i := range 15 {
		rows = append(rows, row(i, trial.StatusComplete, float64(i)/100, 0))
	}
	top := TopK(rows, trial.MetricF1, 0)
	require.Len(t, top, DefaultTopK)
	assert.Equal(t, 14, top[0].ID)
	assert.Len(t, TopK(rows, trial.MetricF1, 3), 3)
	assert.Len(t, TopK(rows[:2], trial.MetricF1, 5), 2)
}

func TestBest(t *testing.T) {
	_, ok := Best([]store.TrialRow{row(0, trial.StatusPruned, 1, 1)}, trial.MetricF1)
	assert.False(t, ok)

	best, ok := Best([]store.TrialRow{
		row(0, trial.StatusComplete, 0.4, 0),
		row(1, trial.StatusPruned, 0.9, 0),
		row(2, trial.StatusComplete, 0.6, 0),
		row(3, trial.StatusComplete, 0.6, 0),
	}, trial.MetricF1)
	require.True(t, ok)
	assert.Equal(t, 2, best.ID)
}

type details map[int]store.TrialDetail

func (d details) Detail(_ context.Context, id int) (store.TrialDetail, error) {
	if v, ok := d[id]; ok {
		return v, nil
	}
	return store.TrialDetail{}, store.ErrNotFound
}

func replaySetup(factory detector.Factory) (*detector.Builder, *trial.Orchestrator) {
	src := subject.MemorySource{
		1: testdetector.Subject(1, 20000, []int64{2000, 12000}, 5, 16000),
	}
	orch := trial.NewOrchestrator(factory, src, trial.Options{
		Workers: 1,
		Match:   matcher.Options{ChunkSize: 4096, Tolerance: 100, Source: detector.DefaultSource()},
	})
	return detector.NewBuilder(detector.DefaultBase(30000)), orch
}

func validSet(z float64) params.Set {
	return params.Set{ZScoreThreshold: z, FLow: 0.25, FHigh: 4, MinWaveMS: 250, MaxWaveMS: 1000, ZIEDThreshold: 1, RefracMS: 2000}
}

func TestReplayUsesStoredDetailThenReruns(t *testing.T) {
	builder, orch := replaySetup(&testdetector.Factory{})
	stored := details{0: {ID: 0, Counts: trial.Counts{TP: 7}}}
	r := NewReplayer(stored, builder, orch, []int{1}, trial.MetricF1)

	rows := []store.TrialRow{
		{ID: 0, Status: trial.StatusComplete, Params: validSet(1)},
		{ID: 1, Status: trial.StatusComplete, Params: validSet(1)},
	}
	items := r.Replay(t.Context(), rows)
	require.Len(t, items, 2)

	assert.False(t, items[0].Replayed)
	assert.Equal(t, 7, items[0].Detail.Counts.TP)

	assert.True(t, items[1].Replayed)
	assert.False(t, items[1].Empty)
	assert.Equal(t, trial.Counts{TP: 2, FP: 1}, items[1].Detail.Counts)
	require.Len(t, items[1].Detail.Patients, 1)
	assert.Len(t, items[1].Detail.Patients[0].Events, 3)
}

func TestReplayForceRerunsTruncatedDetail(t *testing.T) {
	builder, orch := replaySetup(&testdetector.Factory{})
	stored := details{0: {ID: 0, Truncated: true}}
	r := NewReplayer(stored, builder, orch, []int{1}, trial.MetricF1)
	r.Force = true

	items := r.Replay(t.Context(), []store.TrialRow{{ID: 0, Status: trial.StatusComplete, Params: validSet(1)}})
	require.Len(t, items, 1)
	assert.True(t, items[0].Replayed)
	assert.False(t, items[0].Detail.Truncated)
}

func TestReplayConstructionFailureYieldsEmptyItem(t *testing.T) {
	factory := &testdetector.Factory{FailWhen: func(cfg detector.Config) bool {
		return cfg.Detectors.WavePeak[0].ZScoreThreshold > 2
	}}
	builder, orch := replaySetup(factory)
	r := NewReplayer(details{}, builder, orch, []int{1}, trial.MetricF1)

	items := r.Replay(t.Context(), []store.TrialRow{
		{ID: 0, Status: trial.StatusComplete, Params: validSet(3)},
		{ID: 1, Status: trial.StatusComplete, Params: validSet(1)},
	})
	require.Len(t, items, 2)
	assert.True(t, items[0].Empty)
	assert.False(t, items[1].Empty)
	assert.Equal(t, 2, items[1].Detail.Counts.TP)
}

func TestReplayWithoutOrchestratorReportsEmpty(t *testing.T) {
	r := NewReplayer(details{}, nil, nil, nil, trial.MetricF1)
	items := r.Replay(t.Context(), []store.TrialRow{{ID: 3}})
	require.Len(t, items, 1)
	assert.True(t, items[0].Empty)
}
