package params

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Dim is one adaptive dimension: either a categorical list or a range.
// A range with Step > 0 is discretised to Min + k*Step.
type Dim struct {
	Choices []float64 `yaml:"choices,omitempty"`
	Min     float64   `yaml:"min,omitempty"`
	Max     float64   `yaml:"max,omitempty"`
	Step    float64   `yaml:"step,omitempty"`
}

// Fixed is a single-valued dimension.
func Fixed(v float64) Dim { return Dim{Choices: []float64{v}} }

func (d Dim) validate(name string) error {
	if len(d.Choices) > 0 {
		return nil
	}
	if d.Max < d.Min {
		return fmt.Errorf("%s: max %g below min %g", name, d.Max, d.Min)
	}
	if d.Step < 0 {
		return fmt.Errorf("%s: negative step", name)
	}
	return nil
}

// steps is the number of grid points of a stepped range.
func (d Dim) steps() int {
	return int(math.Floor((d.Max-d.Min)/d.Step+1e-9)) + 1
}

func roundStep(v float64) float64 { return math.Round(v*1e9) / 1e9 }

func (d Dim) sample(r *rand.Rand) float64 {
	if len(d.Choices) > 0 {
		return d.Choices[r.IntN(len(d.Choices))]
	}
	if d.Max == d.Min {
		return d.Min
	}
	if d.Step > 0 {
		v := d.Min + float64(r.IntN(d.steps()))*d.Step
		return roundStep(v)
	}
	return d.Min + r.Float64()*(d.Max-d.Min)
}

// Space declares the adaptive search space.
type Space struct {
	ZScoreThreshold       Dim    `yaml:"z_score_threshold"`
	CheckSinusoidness     []bool `yaml:"check_sinusoidness"`
	FLow                  Dim    `yaml:"f_low"`
	FHigh                 Dim    `yaml:"f_high"`
	MinWaveMS             Dim    `yaml:"min_wave_ms"`
	MaxWaveMS             Dim    `yaml:"max_wave_ms"`
	ZIEDThreshold         Dim    `yaml:"z_ied_threshold"`
	RefracMS              Dim    `yaml:"refrac_ms"`
	SinusoidnessThreshold Dim    `yaml:"sinusoidness_threshold"`
}

// DefaultSpace narrows around the known good region of the slow-wave detector.
func DefaultSpace() Space {
	return Space{
		ZScoreThreshold:       Dim{Choices: []float64{2.25, 2.5, 2.75, 3.0}},
		CheckSinusoidness:     []bool{true, false},
		FLow:                  Dim{Choices: []float64{0.225, 0.25, 0.275}},
		FHigh:                 Dim{Choices: []float64{4.0, 4.25, 4.5, 4.75, 5.0, 5.25}},
		MinWaveMS:             Fixed(250),
		MaxWaveMS:             Dim{Choices: []float64{1100, 1200, 1300, 1400, 1500}},
		ZIEDThreshold:         Dim{Choices: []float64{2.75, 3.0, 3.25, 3.5, 3.75}},
		RefracMS:              Dim{Choices: []float64{2250, 2500, 2750, 3000}},
		SinusoidnessThreshold: Dim{Min: 0.3, Max: 0.8, Step: 0.1},
	}
}

// Validate checks every dimension.
func (s Space) Validate() error {
	if len(s.CheckSinusoidness) == 0 {
		return fmt.Errorf("check_sinusoidness: no choices")
	}
	dims := []Dim{s.ZScoreThreshold, s.FLow, s.FHigh, s.MinWaveMS, s.MaxWaveMS, s.ZIEDThreshold, s.RefracMS}
	names := []string{"z_score_threshold", "f_low", "f_high", "min_wave_ms", "max_wave_ms", "z_ied_threshold", "refrac_ms"}
	for i, d := range dims {
		if err := d.validate(names[i]); err != nil {
			return err
		}
	}
	return s.SinusoidnessThreshold.validate("sinusoidness_threshold")
}

// ObservationState is how an earlier trial ended.
type ObservationState int

const (
	ObservedComplete ObservationState = iota
	ObservedPruned
	ObservedFailed
)

// Observation is an earlier trial as seen by a sampler.
type Observation struct {
	Set   Set
	State ObservationState
	Value float64   // objective of the last evaluated step
	Steps []float64 // objective per evaluated fraction
}

// Sampler proposes parameter sets for adaptive search. past holds the
// trials before trialID in id order.
type Sampler interface {
	Sample(trialID int, past []Observation) (Set, error)
}

// RandomSampler draws uniformly from a Space and ignores past trials. Each
// trial id seeds its own stream, so a resumed search proposes the same sets
// it would have proposed uninterrupted. Proposals may repeat.
type RandomSampler struct {
	space Space
	seed  uint64
}

func NewRandomSampler(space Space, seed uint64) *RandomSampler {
	return &RandomSampler{space: space, seed: seed}
}

func (s *RandomSampler) Sample(trialID int, _ []Observation) (Set, error) {
	r := rand.New(rand.NewPCG(s.seed, uint64(trialID)))
	sp := s.space
	set := Set{
		ZScoreThreshold:   sp.ZScoreThreshold.sample(r),
		CheckSinusoidness: sp.CheckSinusoidness[r.IntN(len(sp.CheckSinusoidness))],
		FLow:              sp.FLow.sample(r),
		FHigh:             sp.FHigh.sample(r),
		MinWaveMS:         sp.MinWaveMS.sample(r),
		MaxWaveMS:         sp.MaxWaveMS.sample(r),
		ZIEDThreshold:     sp.ZIEDThreshold.sample(r),
		RefracMS:          sp.RefracMS.sample(r),
	}
	if set.CheckSinusoidness {
		set.SinusoidnessThreshold = sp.SinusoidnessThreshold.sample(r)
	}
	return set.Normalize(), nil
}
