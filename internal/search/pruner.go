package search

import (
	"slices"

	"git.home.luguber.info/inful/detecttune/internal/params"
	"git.home.luguber.info/inful/detecttune/internal/store"
	"git.home.luguber.info/inful/detecttune/internal/trial"
)

// Pruner decides at a fraction boundary whether a trial stops early.
type Pruner interface {
	ShouldPrune(step int, value float64, h *History) bool
}

// NopPruner never prunes.
type NopPruner struct{}

func (NopPruner) ShouldPrune(int, float64, *History) bool { return false }

// MedianPruner stops a trial whose value at a step is strictly below the
// median of the values other trials reported at that step.
type MedianPruner struct {
	// NStartupTrials is the number of complete trials needed before pruning.
	NStartupTrials int
	// NWarmupSteps is the number of steps a trial runs before it can be pruned.
	NWarmupSteps int
}

// NewMedianPruner returns the default pruner for a trial with the given
// number of steps: 5 startup trials, half the steps as warmup.
func NewMedianPruner(steps int) MedianPruner {
	return MedianPruner{NStartupTrials: 5, NWarmupSteps: steps / 2}
}

func (p MedianPruner) ShouldPrune(step int, value float64, h *History) bool {
	if h == nil || h.Completed() < p.NStartupTrials || step < p.NWarmupSteps {
		return false
	}
	peers := h.Values(step)
	if len(peers) == 0 {
		return false
	}
	return value < median(peers)
}

func median(values []float64) float64 {
	s := slices.Clone(values)
	slices.Sort(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// History holds the per-step values of finished trials and what the
// sampler sees of them.
type History struct {
	completed    int
	steps        map[int][]float64
	observations []params.Observation
}

func NewHistory() *History {
	return &History{steps: make(map[int][]float64)}
}

// HistoryFromRows rebuilds the history of a resumed run.
func HistoryFromRows(rows []store.TrialRow) *History {
	h := NewHistory()
	for _, r := range rows {
		h.Record(r.Params, r.Status, r.Objective, r.Steps)
	}
	return h
}

// Record adds a finished trial for both pruning and sampling.
func (h *History) Record(set params.Set, status trial.Status, objective float64, steps []trial.Step) {
	h.Add(status, steps)
	o := params.Observation{Set: set, Value: objective, Steps: make([]float64, len(steps))}
	for i, s := range steps {
		o.Steps[i] = s.Objective
	}
	switch status {
	case trial.StatusComplete:
		o.State = params.ObservedComplete
	case trial.StatusPruned:
		o.State = params.ObservedPruned
	default:
		o.State = params.ObservedFailed
	}
	h.observations = append(h.observations, o)
}

// Observations returns the recorded trials in id order.
func (h *History) Observations() []params.Observation { return slices.Clip(h.observations) }

// Add records a finished trial. Complete and pruned trials contribute their
// step values; failed trials contribute nothing.
func (h *History) Add(status trial.Status, steps []trial.Step) {
	switch status {
	case trial.StatusComplete:
		h.completed++
	case trial.StatusPruned:
	default:
		return
	}
	for _, s := range steps {
		h.steps[s.Index] = append(h.steps[s.Index], s.Objective)
	}
}

// Completed is the number of complete trials seen.
func (h *History) Completed() int { return h.completed }

// Values returns the values reported at step.
func (h *History) Values(step int) []float64 { return h.steps[step] }
