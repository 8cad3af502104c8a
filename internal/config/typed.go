package config

import (
	"git.home.luguber.info/inful/detecttune/internal/matcher"
	"git.home.luguber.info/inful/detecttune/internal/params"
	"git.home.luguber.info/inful/detecttune/internal/retry"
	"git.home.luguber.info/inful/detecttune/internal/search"
	"git.home.luguber.info/inful/detecttune/internal/store"
	"git.home.luguber.info/inful/detecttune/internal/trial"
)

// Accessors below assume Load has normalised the configuration.

func (s SearchConfig) Kind() search.Kind {
	k, _ := search.ParseKind(s.Strategy)
	return k
}

func (s SearchConfig) MetricName() trial.Metric {
	m, _ := trial.ParseMetric(s.Metric)
	return m
}

// PolicyOverride returns the configured metric policy, or "" for auto.
func (s SearchConfig) PolicyOverride() trial.MetricPolicy {
	if s.MetricPolicy == "" || s.MetricPolicy == PolicyAuto {
		return ""
	}
	p, _ := trial.ParseMetricPolicy(s.MetricPolicy)
	return p
}

// FractionsOrDefault returns the adaptive step fractions.
func (s SearchConfig) FractionsOrDefault() []float64 {
	if len(s.Fractions) == 0 {
		return search.DefaultFractions
	}
	return s.Fractions
}

// MedianPruner resolves the pruner settings for the configured fractions.
func (s SearchConfig) MedianPruner() search.MedianPruner {
	p := search.NewMedianPruner(len(s.FractionsOrDefault()))
	if s.Pruner.StartupTrials != nil {
		p.NStartupTrials = *s.Pruner.StartupTrials
	}
	if s.Pruner.WarmupSteps != nil {
		p.NWarmupSteps = *s.Pruner.WarmupSteps
	}
	return p
}

// GridOrDefault returns the exhaustive grid.
func (s SearchConfig) GridOrDefault() params.Grid {
	if s.Grid == nil {
		return params.DefaultGrid()
	}
	return *s.Grid
}

// SpaceOrDefault returns the adaptive space.
func (s SearchConfig) SpaceOrDefault() params.Space {
	if s.Space == nil {
		return params.DefaultSpace()
	}
	return *s.Space
}

// SamplerKind returns the normalized adaptive sampler.
func (s SearchConfig) SamplerKind() params.SamplerKind {
	k, _ := params.ParseSamplerKind(s.Sampler)
	return k
}

// NewSampler builds the adaptive sampler over the configured space.
func (s SearchConfig) NewSampler() params.Sampler {
	if s.SamplerKind() == params.SamplerRandom {
		return params.NewRandomSampler(s.SpaceOrDefault(), s.Seed)
	}
	startup := -1
	if s.SamplerStartupTrials != nil {
		startup = *s.SamplerStartupTrials
	}
	return params.NewTPESampler(s.SpaceOrDefault(), s.Seed, startup)
}

// NewStrategy builds the configured search strategy.
func (s SearchConfig) NewStrategy() (search.Strategy, error) {
	if s.Kind() == search.KindAdaptive {
		a, err := search.NewAdaptive(s.NewSampler(), search.AdaptiveOptions{
			Fractions: s.FractionsOrDefault(),
			Pruner:    s.MedianPruner(),
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	e, err := search.NewExhaustive(s.GridOrDefault())
	if err != nil {
		return nil, err
	}
	return e, nil
}

// MatchOptions converts the evaluation settings for the matcher.
func (c *Config) MatchOptions() matcher.Options {
	return matcher.Options{
		ChunkSize: c.Evaluation.ChunkSize,
		Tolerance: matcher.ToleranceSamples(c.Evaluation.ToleranceMS, c.Data.CanonicalRate),
		Source:    c.Evaluation.Source(),
	}
}

func (s StoreConfig) Kind() store.BackendKind {
	k, _ := store.ParseBackendKind(s.Backend)
	return k
}

// Policy converts the retry block.
func (r RetryConfig) Policy() retry.Policy {
	mode, _ := retry.ParseMode(r.Backoff)
	return retry.NewPolicy(mode, r.Initial, r.Max, r.MaxRetries)
}
