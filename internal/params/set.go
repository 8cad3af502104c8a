// Package params defines the tunable detector parameters, the exhaustive
// grid over them and the adaptive sampling space.
package params

import (
	"fmt"
	"strconv"
)

// SentinelSinusoidness is the dependent value carried whenever the
// sinusoidness gate is off.
const SentinelSinusoidness = 0.0

// Column names in table order. Persisted tables and reports rely on it.
var ColumnNames = []string{
	"z_score_threshold",
	"check_sinusoidness",
	"f_low",
	"f_high",
	"min_wave_ms",
	"max_wave_ms",
	"z_ied_threshold",
	"refrac_ms",
	"sinusoidness_threshold",
}

// Set is one complete assignment of the tunable parameters.
type Set struct {
	ZScoreThreshold       float64 `json:"z_score_threshold" yaml:"z_score_threshold"`
	CheckSinusoidness     bool    `json:"check_sinusoidness" yaml:"check_sinusoidness"`
	FLow                  float64 `json:"f_low" yaml:"f_low"`
	FHigh                 float64 `json:"f_high" yaml:"f_high"`
	MinWaveMS             float64 `json:"min_wave_ms" yaml:"min_wave_ms"`
	MaxWaveMS             float64 `json:"max_wave_ms" yaml:"max_wave_ms"`
	ZIEDThreshold         float64 `json:"z_ied_threshold" yaml:"z_ied_threshold"`
	RefracMS              float64 `json:"refrac_ms" yaml:"refrac_ms"`
	SinusoidnessThreshold float64 `json:"sinusoidness_threshold" yaml:"sinusoidness_threshold"`
}

// Normalize returns a copy with the dependent parameter forced to the
// sentinel when the gate is off.
func (s Set) Normalize() Set {
	if !s.CheckSinusoidness {
		s.SinusoidnessThreshold = SentinelSinusoidness
	}
	return s
}

// Validate rejects sets the detector could never be configured with.
func (s Set) Validate() error {
	switch {
	case s.FLow <= 0 || s.FHigh <= 0:
		return fmt.Errorf("band edges must be positive (f_low=%g, f_high=%g)", s.FLow, s.FHigh)
	case s.FLow >= s.FHigh:
		return fmt.Errorf("f_low %g must be below f_high %g", s.FLow, s.FHigh)
	case s.MinWaveMS <= 0 || s.MinWaveMS > s.MaxWaveMS:
		return fmt.Errorf("wave length bounds invalid (min=%g, max=%g)", s.MinWaveMS, s.MaxWaveMS)
	case s.ZScoreThreshold < 0 || s.ZIEDThreshold < 0:
		return fmt.Errorf("z-score thresholds must be non-negative")
	case s.RefracMS < 0:
		return fmt.Errorf("refrac_ms must be non-negative")
	case s.SinusoidnessThreshold < 0 || s.SinusoidnessThreshold > 1:
		return fmt.Errorf("sinusoidness_threshold %g outside [0,1]", s.SinusoidnessThreshold)
	case !s.CheckSinusoidness && s.SinusoidnessThreshold != SentinelSinusoidness:
		return fmt.Errorf("sinusoidness_threshold must be %g when check_sinusoidness is off", SentinelSinusoidness)
	}
	return nil
}

// Values renders the set in ColumnNames order.
func (s Set) Values() []string {
	return []string{
		formatFloat(s.ZScoreThreshold),
		strconv.FormatBool(s.CheckSinusoidness),
		formatFloat(s.FLow),
		formatFloat(s.FHigh),
		formatFloat(s.MinWaveMS),
		formatFloat(s.MaxWaveMS),
		formatFloat(s.ZIEDThreshold),
		formatFloat(s.RefracMS),
		formatFloat(s.SinusoidnessThreshold),
	}
}

func (s Set) String() string {
	return fmt.Sprintf("z=%g check=%t sin=%g band=%g-%g wave=%g-%g z_ied=%g refrac=%g",
		s.ZScoreThreshold, s.CheckSinusoidness, s.SinusoidnessThreshold,
		s.FLow, s.FHigh, s.MinWaveMS, s.MaxWaveMS, s.ZIEDThreshold, s.RefracMS)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
