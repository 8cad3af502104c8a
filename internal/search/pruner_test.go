package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/detecttune/internal/detector"
	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
	"git.home.luguber.info/inful/detecttune/internal/matcher"
	"git.home.luguber.info/inful/detecttune/internal/params"
	"git.home.luguber.info/inful/detecttune/internal/ranking"
	"git.home.luguber.info/inful/detecttune/internal/store"
	"git.home.luguber.info/inful/detecttune/internal/testdetector"
	"git.home.luguber.info/inful/detecttune/internal/trial"
)

// scripted proposes z=1 (detects everything) except for the listed ids,
// which get a threshold nothing crosses.
type scripted struct {
	blind map[int]bool
}

func (s scripted) Sample(id int, _ []params.Observation) (params.Set, error) {
	set := params.Set{ZScoreThreshold: 1, FLow: 0.25, FHigh: 4, MinWaveMS: 250, MaxWaveMS: 1000, ZIEDThreshold: 1, RefracMS: 2000}
	if s.blind[id] {
		set.ZScoreThreshold = 100
	}
	return set, nil
}

func steps(values ...float64) []trial.Step {
	out := make([]trial.Step, len(values))
	for i, v := range values {
		out[i] = trial.Step{Index: i, Objective: v}
	}
	return out
}

func TestMedianPrunerRules(t *testing.T) {
	p := MedianPruner{NStartupTrials: 2, NWarmupSteps: 1}
	h := NewHistory()
	h.Add(trial.StatusComplete, steps(0.5, 0.6, 0.7))

	assert.False(t, p.ShouldPrune(1, 0.1, h), "not enough complete trials")

	h.Add(trial.StatusComplete, steps(0.5, 0.8, 0.9))
	h.Add(trial.StatusPruned, steps(0.1, 0.2))
	h.Add(trial.StatusFailed, steps(0, 0, 0))

	assert.False(t, p.ShouldPrune(0, 0.0, h), "warmup step")
	// Step 1 peers: 0.6, 0.8, 0.2 -> median 0.6.
	assert.True(t, p.ShouldPrune(1, 0.5, h))
	assert.False(t, p.ShouldPrune(1, 0.6, h), "equal to the median is kept")
	assert.False(t, p.ShouldPrune(5, 0.0, h), "no peers at step")
	assert.False(t, p.ShouldPrune(1, 0.0, nil))
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
}

func TestDefaultMedianPruner(t *testing.T) {
	assert.Equal(t, MedianPruner{NStartupTrials: 5, NWarmupSteps: 1}, NewMedianPruner(3))
}

func TestValidateFractions(t *testing.T) {
	assert.NoError(t, ValidateFractions(DefaultFractions))
	assert.NoError(t, ValidateFractions([]float64{1}))
	assert.Error(t, ValidateFractions(nil))
	assert.Error(t, ValidateFractions([]float64{0.5, 0.25, 1}))
	assert.Error(t, ValidateFractions([]float64{0.1, 0.5}))
	assert.Error(t, ValidateFractions([]float64{0, 1}))
}

func TestHistoryFromRows(t *testing.T) {
	h := HistoryFromRows([]store.TrialRow{
		{ID: 0, Status: trial.StatusComplete, Steps: steps(0.2, 0.4)},
		{ID: 1, Status: trial.StatusPruned, Steps: steps(0.1)},
		{ID: 2, Status: trial.StatusFailed, Steps: steps(0)},
	})
	assert.Equal(t, 1, h.Completed())
	assert.Equal(t, []float64{0.2, 0.1}, h.Values(0))
	assert.Equal(t, []float64{0.4}, h.Values(1))

	obs := h.Observations()
	require.Len(t, obs, 3)
	assert.Equal(t, params.ObservedComplete, obs[0].State)
	assert.Equal(t, []float64{0.2, 0.4}, obs[0].Steps)
	assert.Equal(t, params.ObservedPruned, obs[1].State)
	assert.Equal(t, params.ObservedFailed, obs[2].State)
}

// recordingSampler remembers how many earlier trials each proposal saw.
type recordingSampler struct {
	scripted
	seen     map[int]int
	onSample func(id int)
}

func (r *recordingSampler) Sample(id int, past []params.Observation) (params.Set, error) {
	r.seen[id] = len(past)
	for i, o := range past {
		if o.State == params.ObservedComplete && len(o.Steps) == 0 {
			return params.Set{}, fmt.Errorf("observation %d has no steps", i)
		}
	}
	if r.onSample != nil {
		r.onSample(id)
	}
	return r.scripted.Sample(id, past)
}

func TestInterruptStopsAtFractionBoundary(t *testing.T) {
	backend := store.NewMemoryBackend()
	builder := detector.NewBuilder(detector.DefaultBase(30000))
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	sampler := &recordingSampler{seen: map[int]int{}, onSample: func(id int) {
		if id == 2 {
			cancel()
		}
	}}
	strategy, err := NewAdaptive(sampler, AdaptiveOptions{})
	require.NoError(t, err)
	factory := &testdetector.Factory{}
	orch := trial.NewOrchestrator(factory, source(), trial.Options{
		Workers: 2,
		Match:   matcher.Options{ChunkSize: 1024, Tolerance: 100, Source: detector.DefaultSource()},
		Policy:  trial.VacuousOnEmpty,
	})
	d := NewDriver(strategy, builder, orch, newResults(t, backend), Options{})

	summary, err := d.Run(ctx, Request{Subjects: []int{1, 2}, StartTrial: AutoStart, MaxTrials: 5})
	require.ErrorIs(t, err, ErrInterrupted)
	assert.True(t, summary.Interrupted)
	assert.Equal(t, 2, summary.Completed)
	// Two full trials of three fractions, then one fraction of trial 2.
	assert.Equal(t, int64(2*3*2+2), factory.Built())
	assert.Equal(t, map[int]int{0: 0, 1: 1, 2: 2}, sampler.seen)

	first, err := newResults(t, backend).Rows(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, rowIDs(first))

	resumedSampler := &recordingSampler{seen: map[int]int{}}
	resumedStrategy, err := NewAdaptive(resumedSampler, AdaptiveOptions{})
	require.NoError(t, err)
	results := newResults(t, backend)
	d = NewDriver(resumedStrategy, builder, orchestrator(source(), trial.VacuousOnEmpty), results, Options{})
	summary, err = d.Run(t.Context(), Request{Subjects: []int{1, 2}, StartTrial: AutoStart, MaxTrials: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Resumed)
	assert.Equal(t, 3, summary.Completed)
	assert.Equal(t, map[int]int{2: 2, 3: 3, 4: 4}, resumedSampler.seen)

	rows, err := results.Rows(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, rowIDs(rows))
	assert.Equal(t, first, rows[:2])
}

func TestAdaptiveSamplerErrorIsSearchError(t *testing.T) {
	a, err := NewAdaptive(failingSampler{}, AdaptiveOptions{})
	require.NoError(t, err)
	_, err = a.Propose(0, nil)
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategorySearch))
}

type failingSampler struct{}

func (failingSampler) Sample(int, []params.Observation) (params.Set, error) {
	return params.Set{}, errors.New("sampler broke")
}

func TestPruningScenario(t *testing.T) {
	strategy, err := NewAdaptive(scripted{blind: map[int]bool{5: true}}, AdaptiveOptions{})
	require.NoError(t, err)
	assert.Equal(t, trial.VacuousOnEmpty, strategy.Policy())

	results := newResults(t, store.NewMemoryBackend())
	d := NewDriver(strategy, detector.NewBuilder(detector.DefaultBase(30000)),
		orchestrator(source(), Policy(strategy, "")), results, Options{Metric: trial.MetricF1})

	summary, err := d.Run(t.Context(), Request{Subjects: []int{1, 2}, StartTrial: AutoStart, MaxTrials: 7})
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Completed)
	assert.Equal(t, 1, summary.Pruned)

	rows, err := results.Rows(t.Context())
	require.NoError(t, err)
	require.Len(t, rows, 7)

	pruned := rows[5]
	assert.Equal(t, trial.StatusPruned, pruned.Status)
	// Halted after the second fraction, before full data.
	require.Len(t, pruned.Steps, 2)
	assert.Equal(t, 0.25, pruned.Fraction)
	assert.Zero(t, pruned.Objective)

	for _, r := range rows[:5] {
		assert.Equal(t, trial.StatusComplete, r.Status)
		assert.Len(t, r.Steps, 3)
		assert.Equal(t, 1.0, r.Fraction)
	}

	top := ranking.TopK(rows, trial.MetricF1, 10)
	assert.NotContains(t, rowIDs(top), 5)
	assert.Len(t, top, 6)
}

func TestAdaptiveProposalsAreDeterministic(t *testing.T) {
	sampler := params.NewRandomSampler(params.DefaultSpace(), 42)
	a, err := NewAdaptive(sampler, AdaptiveOptions{Fractions: []float64{0.5, 1}})
	require.NoError(t, err)
	first, err := a.Propose(7, nil)
	require.NoError(t, err)
	again, err := a.Propose(7, nil)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, -1, a.Total())
	assert.Equal(t, []float64{0.5, 1}, a.Fractions())
}
