package params

import (
	"errors"
	"fmt"
)

// Grid declares the value lists of the exhaustive search. The order of the
// independent dimensions below fixes the enumeration order; the last one
// varies fastest.
type Grid struct {
	ZScoreThreshold       []float64 `yaml:"z_score_threshold" validate:"min=1"`
	CheckSinusoidness     []bool    `yaml:"check_sinusoidness" validate:"min=1"`
	FLow                  []float64 `yaml:"f_low" validate:"min=1"`
	FHigh                 []float64 `yaml:"f_high" validate:"min=1"`
	MinWaveMS             []float64 `yaml:"min_wave_ms" validate:"min=1"`
	MaxWaveMS             []float64 `yaml:"max_wave_ms" validate:"min=1"`
	ZIEDThreshold         []float64 `yaml:"z_ied_threshold" validate:"min=1"`
	RefracMS              []float64 `yaml:"refrac_ms" validate:"min=1"`
	SinusoidnessThreshold []float64 `yaml:"sinusoidness_threshold"`
}

// DefaultGrid is the full sweep used when no grid is configured.
func DefaultGrid() Grid {
	return Grid{
		ZScoreThreshold:       []float64{1.0, 1.5, 2.0, 2.5, 3.0, 3.5, 4.0, 4.5, 5.0},
		CheckSinusoidness:     []bool{true, false},
		FLow:                  []float64{0.25},
		FHigh:                 []float64{4.0},
		MinWaveMS:             []float64{250},
		MaxWaveMS:             []float64{1000},
		ZIEDThreshold:         []float64{1.0, 1.5, 2.0, 2.5, 3.0, 3.5, 4.0, 4.5, 5.0},
		RefracMS:              []float64{2000, 2500, 3000},
		SinusoidnessThreshold: []float64{0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9},
	}
}

func (g Grid) independentLens() []int {
	return []int{
		len(g.ZScoreThreshold), len(g.CheckSinusoidness), len(g.FLow), len(g.FHigh),
		len(g.MinWaveMS), len(g.MaxWaveMS), len(g.ZIEDThreshold), len(g.RefracMS),
	}
}

// Validate checks that every dimension has at least one value and that the
// dependent list is present whenever the gate can be on.
func (g Grid) Validate() error {
	for i, n := range g.independentLens() {
		if n == 0 {
			return fmt.Errorf("grid dimension %s is empty", ColumnNames[i])
		}
	}
	for _, on := range g.CheckSinusoidness {
		if on && len(g.SinusoidnessThreshold) == 0 {
			return errors.New("grid enables check_sinusoidness but lists no sinusoidness_threshold values")
		}
	}
	return nil
}

// Size is the number of sets Enumerate yields, computed without enumerating.
func (g Grid) Size() int {
	others := 1
	for i, n := range g.independentLens() {
		if i == 1 {
			continue
		}
		others *= n
	}
	perGate := 0
	for _, on := range g.CheckSinusoidness {
		if on {
			perGate += len(g.SinusoidnessThreshold)
		} else {
			perGate++
		}
	}
	return others * perGate
}

// Enumerate yields the Cartesian product of the independent dimensions; a
// combination with the gate on expands into one set per dependent value, a
// combination with the gate off yields exactly one set carrying the sentinel.
// Indices into the result are stable for a given grid.
func (g Grid) Enumerate() []Set {
	lens := g.independentLens()
	for _, n := range lens {
		if n == 0 {
			return nil
		}
	}
	out := make([]Set, 0, g.Size())
	idx := make([]int, len(lens))
	for {
		base := Set{
			ZScoreThreshold:   g.ZScoreThreshold[idx[0]],
			CheckSinusoidness: g.CheckSinusoidness[idx[1]],
			FLow:              g.FLow[idx[2]],
			FHigh:             g.FHigh[idx[3]],
			MinWaveMS:         g.MinWaveMS[idx[4]],
			MaxWaveMS:         g.MaxWaveMS[idx[5]],
			ZIEDThreshold:     g.ZIEDThreshold[idx[6]],
			RefracMS:          g.RefracMS[idx[7]],
		}
		if base.CheckSinusoidness {
			for _, v := range g.SinusoidnessThreshold {
				s := base
				s.SinusoidnessThreshold = v
				out = append(out, s)
			}
		} else {
			base.SinusoidnessThreshold = SentinelSinusoidness
			out = append(out, base)
		}

		// odometer increment, last dimension fastest
		pos := len(idx) - 1
		for ; pos >= 0; pos-- {
			idx[pos]++
			if idx[pos] < lens[pos] {
				break
			}
			idx[pos] = 0
		}
		if pos < 0 {
			return out
		}
	}
}
