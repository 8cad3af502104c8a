package params

import (
	"fmt"
	"strconv"

	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/tpe"

	"git.home.luguber.info/inful/detecttune/internal/foundation/normalization"
)

// SamplerKind selects the adaptive sampler.
type SamplerKind string

const (
	SamplerTPE    SamplerKind = "tpe"
	SamplerRandom SamplerKind = "random"
)

var samplerNormalizer = normalization.NewNormalizer("sampler", map[string]SamplerKind{
	"tpe":    SamplerTPE,
	"random": SamplerRandom,
}, SamplerTPE)

// ParseSamplerKind accepts a sampler name; empty input selects tpe.
func ParseSamplerKind(raw string) (SamplerKind, error) { return samplerNormalizer.Parse(raw) }

// DefaultTPEStartupTrials is the number of trials sampled at random before
// the estimator takes over.
const DefaultTPEStartupTrials = 10

// TPESampler proposes sets with a Tree-structured Parzen Estimator fitted to
// the earlier trials. Every proposal replays past into a fresh in-memory
// study whose seed is derived from the trial id, so the same history always
// yields the same proposal.
type TPESampler struct {
	space   Space
	seed    uint64
	startup int
}

// NewTPESampler returns a sampler over space. startup below zero selects
// DefaultTPEStartupTrials.
func NewTPESampler(space Space, seed uint64, startup int) *TPESampler {
	if startup < 0 {
		startup = DefaultTPEStartupTrials
	}
	return &TPESampler{space: space, seed: seed, startup: startup}
}

// tpeParam is one suggested dimension.
type tpeParam struct {
	name string
	dim  Dim
	get  func(Set) float64
	set  func(*Set, float64)
}

const gateParam = "check_sinusoidness"

func (s *TPESampler) params() []tpeParam {
	sp := s.space
	return []tpeParam{
		{"z_score_threshold", sp.ZScoreThreshold, func(x Set) float64 { return x.ZScoreThreshold }, func(x *Set, v float64) { x.ZScoreThreshold = v }},
		{"f_low", sp.FLow, func(x Set) float64 { return x.FLow }, func(x *Set, v float64) { x.FLow = v }},
		{"f_high", sp.FHigh, func(x Set) float64 { return x.FHigh }, func(x *Set, v float64) { x.FHigh = v }},
		{"min_wave_ms", sp.MinWaveMS, func(x Set) float64 { return x.MinWaveMS }, func(x *Set, v float64) { x.MinWaveMS = v }},
		{"max_wave_ms", sp.MaxWaveMS, func(x Set) float64 { return x.MaxWaveMS }, func(x *Set, v float64) { x.MaxWaveMS = v }},
		{"z_ied_threshold", sp.ZIEDThreshold, func(x Set) float64 { return x.ZIEDThreshold }, func(x *Set, v float64) { x.ZIEDThreshold = v }},
		{"refrac_ms", sp.RefracMS, func(x Set) float64 { return x.RefracMS }, func(x *Set, v float64) { x.RefracMS = v }},
	}
}

func (s *TPESampler) sinusoidness() tpeParam {
	return tpeParam{
		name: "sinusoidness_threshold",
		dim:  s.space.SinusoidnessThreshold,
		get:  func(x Set) float64 { return x.SinusoidnessThreshold },
		set:  func(x *Set, v float64) { x.SinusoidnessThreshold = v },
	}
}

// Sample implements Sampler.
func (s *TPESampler) Sample(trialID int, past []Observation) (Set, error) {
	sampler := tpe.NewSampler(
		tpe.SamplerOptionSeed(int64(s.seed^(uint64(trialID)*0x9e3779b97f4a7c15))),
		tpe.SamplerOptionNumberOfStartupTrials(s.startup),
	)
	study, err := goptuna.CreateStudy("detecttune",
		goptuna.StudyOptionDirection(goptuna.StudyDirectionMaximize),
		goptuna.StudyOptionSampler(sampler),
	)
	if err != nil {
		return Set{}, fmt.Errorf("create tpe study: %w", err)
	}
	for _, o := range past {
		if err := s.replay(study, o); err != nil {
			return Set{}, fmt.Errorf("replay trial history: %w", err)
		}
	}

	id, err := study.Storage.CreateNewTrial(study.ID)
	if err != nil {
		return Set{}, fmt.Errorf("create tpe trial: %w", err)
	}
	trial := goptuna.Trial{Study: study, ID: id}

	var set Set
	for _, p := range s.params() {
		v, err := suggest(&trial, p.name, p.dim)
		if err != nil {
			return Set{}, err
		}
		p.set(&set, v)
	}
	set.CheckSinusoidness, err = s.suggestGate(&trial)
	if err != nil {
		return Set{}, err
	}
	if set.CheckSinusoidness {
		p := s.sinusoidness()
		v, err := suggest(&trial, p.name, p.dim)
		if err != nil {
			return Set{}, err
		}
		p.set(&set, v)
	}
	return set.Normalize(), nil
}

// replay records one finished trial in study.
func (s *TPESampler) replay(study *goptuna.Study, o Observation) error {
	st := study.Storage
	id, err := st.CreateNewTrial(study.ID)
	if err != nil {
		return err
	}
	record := func(p tpeParam) error {
		internal, dist, ok := encode(p.dim, p.get(o.Set))
		if !ok {
			return nil
		}
		return st.SetTrialParam(id, p.name, internal, dist)
	}
	for _, p := range s.params() {
		if err := record(p); err != nil {
			return err
		}
	}
	if labels := gateLabels(s.space.CheckSinusoidness); len(labels) > 1 {
		for i, l := range labels {
			if l == strconv.FormatBool(o.Set.CheckSinusoidness) {
				if err := st.SetTrialParam(id, gateParam, float64(i), categorical(labels)); err != nil {
					return err
				}
			}
		}
	}
	if o.Set.CheckSinusoidness {
		if err := record(s.sinusoidness()); err != nil {
			return err
		}
	}

	for step, v := range o.Steps {
		if err := st.SetTrialIntermediateValue(id, step, v); err != nil {
			return err
		}
	}
	switch o.State {
	case ObservedComplete:
		if err := st.SetTrialValue(id, o.Value); err != nil {
			return err
		}
		return st.SetTrialState(id, goptuna.TrialStateComplete)
	case ObservedPruned:
		if err := st.SetTrialValue(id, o.Value); err != nil {
			return err
		}
		return st.SetTrialState(id, goptuna.TrialStatePruned)
	default:
		return st.SetTrialState(id, goptuna.TrialStateFail)
	}
}

func (s *TPESampler) suggestGate(trial *goptuna.Trial) (bool, error) {
	labels := gateLabels(s.space.CheckSinusoidness)
	if len(labels) == 1 {
		return s.space.CheckSinusoidness[0], nil
	}
	v, err := trial.SuggestCategorical(gateParam, labels)
	if err != nil {
		return false, fmt.Errorf("suggest %s: %w", gateParam, err)
	}
	return strconv.ParseBool(v)
}

// gateLabels lists the distinct gate choices in declaration order.
func gateLabels(choices []bool) []string {
	var out []string
	seen := map[bool]bool{}
	for _, c := range choices {
		if !seen[c] {
			seen[c] = true
			out = append(out, strconv.FormatBool(c))
		}
	}
	return out
}

func choiceLabels(choices []float64) []string {
	out := make([]string, len(choices))
	for i, c := range choices {
		out[i] = strconv.FormatFloat(c, 'g', -1, 64)
	}
	return out
}

func categorical(labels []string) goptuna.CategoricalDistribution {
	choices := make([]string, len(labels))
	copy(choices, labels)
	return goptuna.CategoricalDistribution{Choices: choices}
}

// stepHigh is the largest grid point of a stepped range.
func (d Dim) stepHigh() float64 {
	return roundStep(d.Min + float64(d.steps()-1)*d.Step)
}

func suggest(trial *goptuna.Trial, name string, d Dim) (float64, error) {
	switch {
	case len(d.Choices) == 1:
		return d.Choices[0], nil
	case len(d.Choices) > 1:
		v, err := trial.SuggestCategorical(name, choiceLabels(d.Choices))
		if err != nil {
			return 0, fmt.Errorf("suggest %s: %w", name, err)
		}
		return strconv.ParseFloat(v, 64)
	case d.Max == d.Min:
		return d.Min, nil
	case d.Step > 0:
		v, err := trial.SuggestDiscreteFloat(name, d.Min, d.stepHigh(), d.Step)
		if err != nil {
			return 0, fmt.Errorf("suggest %s: %w", name, err)
		}
		return roundStep(v), nil
	default:
		v, err := trial.SuggestFloat(name, d.Min, d.Max)
		if err != nil {
			return 0, fmt.Errorf("suggest %s: %w", name, err)
		}
		return v, nil
	}
}

// encode maps a value to the internal representation and distribution used
// by suggest. ok is false for fixed dimensions and values outside the space.
func encode(d Dim, v float64) (internal float64, dist interface{}, ok bool) {
	switch {
	case len(d.Choices) == 1:
		return 0, nil, false
	case len(d.Choices) > 1:
		for i, c := range d.Choices {
			if c == v {
				return float64(i), categorical(choiceLabels(d.Choices)), true
			}
		}
		return 0, nil, false
	case d.Max == d.Min:
		return 0, nil, false
	case v < d.Min || v > d.Max:
		return 0, nil, false
	case d.Step > 0:
		if v > d.stepHigh() {
			return 0, nil, false
		}
		return v, goptuna.DiscreteUniformDistribution{High: d.stepHigh(), Low: d.Min, Q: d.Step}, true
	default:
		return v, goptuna.UniformDistribution{High: d.Max, Low: d.Min}, true
	}
}
