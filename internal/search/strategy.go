// Package search drives trials over the parameter space, either by
// exhaustive grid enumeration or by adaptive sampling with median pruning.
package search

import (
	"fmt"
	"slices"

	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
	"git.home.luguber.info/inful/detecttune/internal/foundation/normalization"
	"git.home.luguber.info/inful/detecttune/internal/params"
	"git.home.luguber.info/inful/detecttune/internal/trial"
)

// Kind names a search strategy.
type Kind string

const (
	KindExhaustive Kind = "exhaustive"
	KindAdaptive   Kind = "adaptive"
)

var kindNormalizer = normalization.NewNormalizer("search strategy", map[string]Kind{
	"exhaustive": KindExhaustive,
	"grid":       KindExhaustive,
	"adaptive":   KindAdaptive,
	"optuna":     KindAdaptive,
}, KindExhaustive)

// ParseKind accepts a strategy name; empty input selects exhaustive.
func ParseKind(raw string) (Kind, error) { return kindNormalizer.Parse(raw) }

// DefaultFractions are the data fractions an adaptive trial steps through.
var DefaultFractions = []float64{0.1, 0.25, 1.0}

// ErrExhausted is returned when a strategy has no proposal for an id.
var ErrExhausted = derrors.SearchError("search space exhausted").Build()

// Strategy proposes parameter sets and says how to evaluate them.
type Strategy interface {
	Name() Kind
	// Total is the number of proposals, or -1 when unbounded.
	Total() int
	// Propose returns the set for trial id given the trials before it. It is
	// deterministic in id and past so resumed runs see the same proposals.
	Propose(id int, past []params.Observation) (params.Set, error)
	Fractions() []float64
	Pruner() Pruner
	// Policy is the metric policy used unless the operator overrides it.
	Policy() trial.MetricPolicy
}

// Exhaustive walks the grid in enumeration order at full data.
type Exhaustive struct {
	sets []params.Set
}

func NewExhaustive(g params.Grid) (*Exhaustive, error) {
	if err := g.Validate(); err != nil {
		return nil, derrors.ConfigError("invalid search grid").WithCause(err).Build()
	}
	return &Exhaustive{sets: g.Enumerate()}, nil
}

func (e *Exhaustive) Name() Kind                 { return KindExhaustive }
func (e *Exhaustive) Total() int                 { return len(e.sets) }
func (e *Exhaustive) Fractions() []float64       { return []float64{1.0} }
func (e *Exhaustive) Pruner() Pruner             { return NopPruner{} }
func (e *Exhaustive) Policy() trial.MetricPolicy { return trial.ZeroOnEmpty }

func (e *Exhaustive) Propose(id int, _ []params.Observation) (params.Set, error) {
	if id < 0 || id >= len(e.sets) {
		return params.Set{}, fmt.Errorf("%w: trial %d of %d", ErrExhausted, id, len(e.sets))
	}
	return e.sets[id], nil
}

// AdaptiveOptions configures an Adaptive strategy.
type AdaptiveOptions struct {
	Fractions []float64
	Pruner    Pruner
}

// Adaptive samples proposals and evaluates them on growing data fractions.
type Adaptive struct {
	sampler   params.Sampler
	fractions []float64
	pruner    Pruner
}

func NewAdaptive(sampler params.Sampler, opts AdaptiveOptions) (*Adaptive, error) {
	fractions := opts.Fractions
	if len(fractions) == 0 {
		fractions = DefaultFractions
	}
	if err := ValidateFractions(fractions); err != nil {
		return nil, err
	}
	pruner := opts.Pruner
	if pruner == nil {
		pruner = NewMedianPruner(len(fractions))
	}
	return &Adaptive{sampler: sampler, fractions: slices.Clone(fractions), pruner: pruner}, nil
}

// ValidateFractions requires strictly increasing fractions in (0,1] ending at 1.
func ValidateFractions(fractions []float64) error {
	if len(fractions) == 0 {
		return derrors.ConfigError("at least one data fraction is required").Build()
	}
	prev := 0.0
	for _, f := range fractions {
		if f <= prev || f > 1 {
			return derrors.ConfigError("data fractions must increase strictly within (0,1]").
				WithContext("fractions", fractions).Build()
		}
		prev = f
	}
	if prev != 1 {
		return derrors.ConfigError("the last data fraction must be 1").
			WithContext("fractions", fractions).Build()
	}
	return nil
}

func (a *Adaptive) Name() Kind                 { return KindAdaptive }
func (a *Adaptive) Total() int                 { return -1 }
func (a *Adaptive) Fractions() []float64       { return slices.Clone(a.fractions) }
func (a *Adaptive) Pruner() Pruner             { return a.pruner }
func (a *Adaptive) Policy() trial.MetricPolicy { return trial.VacuousOnEmpty }

func (a *Adaptive) Propose(id int, past []params.Observation) (params.Set, error) {
	if id < 0 {
		return params.Set{}, fmt.Errorf("%w: negative trial id %d", ErrExhausted, id)
	}
	set, err := a.sampler.Sample(id, past)
	if err != nil {
		return params.Set{}, derrors.WrapError(err, derrors.CategorySearch, "sample parameters").
			WithContext("trial_id", id).Build()
	}
	return set.Normalize(), nil
}
