// Package detector holds the structured configuration of the external event
// detector, the builder that maps parameter sets onto it, and the contract
// the rest of detecttune uses to drive a detector instance.
package detector

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/detecttune/internal/params"
)

// Component ids the builder writes parameters into.
const (
	SlowWaveFilterID   = "slow_wave_filter"
	IEDFilterID        = "ied_filter"
	SlowWaveDetectorID = "slow_wave_detector"
	IEDDetectorID      = "ied_detector"
	PulseTriggerID     = "pulse_trigger"
)

// Config mirrors the detector's configuration document.
type Config struct {
	Processor Processor `yaml:"processor" json:"processor"`
	Filters   Filters   `yaml:"filters" json:"filters"`
	Detectors Detectors `yaml:"detectors" json:"detectors"`
	Triggers  Triggers  `yaml:"triggers" json:"triggers"`
}

type Processor struct {
	Verbose            bool `yaml:"verbose" json:"verbose"`
	FS                 int  `yaml:"fs" json:"fs"`
	Channel            int  `yaml:"channel" json:"channel"`
	EnableDebugLogging bool `yaml:"enable_debug_logging" json:"enable_debug_logging"`
}

type Filters struct {
	Bandpass []BandpassFilter `yaml:"bandpass_filters" json:"bandpass_filters"`
}

type BandpassFilter struct {
	ID    string  `yaml:"id" json:"id"`
	FLow  float64 `yaml:"f_low" json:"f_low"`
	FHigh float64 `yaml:"f_high" json:"f_high"`
}

type Detectors struct {
	WavePeak []WavePeakDetector `yaml:"wave_peak_detectors" json:"wave_peak_detectors"`
}

type WavePeakDetector struct {
	ID                    string  `yaml:"id" json:"id"`
	FilterID              string  `yaml:"filter_id" json:"filter_id"`
	ZScoreThreshold       float64 `yaml:"z_score_threshold" json:"z_score_threshold"`
	SinusoidnessThreshold float64 `yaml:"sinusoidness_threshold" json:"sinusoidness_threshold"`
	CheckSinusoidness     bool    `yaml:"check_sinusoidness" json:"check_sinusoidness"`
	WavePolarity          string  `yaml:"wave_polarity" json:"wave_polarity"`
	MinWaveLengthMS       float64 `yaml:"min_wave_length_ms,omitempty" json:"min_wave_length_ms,omitempty"`
	MaxWaveLengthMS       float64 `yaml:"max_wave_length_ms,omitempty" json:"max_wave_length_ms,omitempty"`
}

type Triggers struct {
	Pulse []PulseTrigger `yaml:"pulse_triggers" json:"pulse_triggers"`
}

type PulseTrigger struct {
	ID                   string  `yaml:"id" json:"id"`
	ActivationDetectorID string  `yaml:"activation_detector_id" json:"activation_detector_id"`
	InhibitionDetectorID string  `yaml:"inhibition_detector_id" json:"inhibition_detector_id"`
	InhibitionCooldownMS float64 `yaml:"inhibition_cooldown_ms" json:"inhibition_cooldown_ms"`
	PulseCooldownMS      float64 `yaml:"pulse_cooldown_ms" json:"pulse_cooldown_ms"`
}

// DefaultBase is the template every trial configuration starts from.
func DefaultBase(sampleRate int) Config {
	return Config{
		Processor: Processor{FS: sampleRate, Channel: 1},
		Filters: Filters{Bandpass: []BandpassFilter{
			{ID: SlowWaveFilterID, FLow: 0.25, FHigh: 4.0},
			{ID: IEDFilterID, FLow: 80.0, FHigh: 120.0},
		}},
		Detectors: Detectors{WavePeak: []WavePeakDetector{
			{
				ID:                    SlowWaveDetectorID,
				FilterID:              SlowWaveFilterID,
				ZScoreThreshold:       2.5,
				SinusoidnessThreshold: 0.7,
				CheckSinusoidness:     true,
				WavePolarity:          "downwave",
				MinWaveLengthMS:       250,
				MaxWaveLengthMS:       1000,
			},
			{
				ID:              IEDDetectorID,
				FilterID:        IEDFilterID,
				ZScoreThreshold: 3.0,
				WavePolarity:    "upwave",
			},
		}},
		Triggers: Triggers{Pulse: []PulseTrigger{{
			ID:                   PulseTriggerID,
			ActivationDetectorID: SlowWaveDetectorID,
			InhibitionDetectorID: IEDDetectorID,
			InhibitionCooldownMS: 2500,
			PulseCooldownMS:      2500,
		}}},
	}
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := c
	out.Filters.Bandpass = append([]BandpassFilter(nil), c.Filters.Bandpass...)
	out.Detectors.WavePeak = append([]WavePeakDetector(nil), c.Detectors.WavePeak...)
	out.Triggers.Pulse = append([]PulseTrigger(nil), c.Triggers.Pulse...)
	return out
}

// Validate checks referential integrity between components.
func (c Config) Validate() error {
	if c.Processor.FS <= 0 {
		return fmt.Errorf("processor.fs must be positive")
	}
	filters := make(map[string]bool, len(c.Filters.Bandpass))
	for _, f := range c.Filters.Bandpass {
		if f.FLow >= f.FHigh {
			return fmt.Errorf("filter %s: f_low %g must be below f_high %g", f.ID, f.FLow, f.FHigh)
		}
		filters[f.ID] = true
	}
	detectors := make(map[string]bool, len(c.Detectors.WavePeak))
	for _, d := range c.Detectors.WavePeak {
		if !filters[d.FilterID] {
			return fmt.Errorf("detector %s references unknown filter %q", d.ID, d.FilterID)
		}
		detectors[d.ID] = true
	}
	for _, t := range c.Triggers.Pulse {
		if !detectors[t.ActivationDetectorID] {
			return fmt.Errorf("trigger %s references unknown activation detector %q", t.ID, t.ActivationDetectorID)
		}
		if t.InhibitionDetectorID != "" && !detectors[t.InhibitionDetectorID] {
			return fmt.Errorf("trigger %s references unknown inhibition detector %q", t.ID, t.InhibitionDetectorID)
		}
	}
	return nil
}

// YAML renders the configuration document handed to detector processes.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Builder maps parameter sets onto a copy of its base template.
type Builder struct {
	base Config
}

func NewBuilder(base Config) *Builder {
	return &Builder{base: base.Clone()}
}

// Base returns a copy of the template.
func (b *Builder) Base() Config { return b.base.Clone() }

// Build is pure: the same set always yields the same configuration and the
// template is never modified. Components missing from the template are left
// alone.
func (b *Builder) Build(p params.Set) Config {
	p = p.Normalize()
	cfg := b.base.Clone()
	for i := range cfg.Filters.Bandpass {
		if cfg.Filters.Bandpass[i].ID == SlowWaveFilterID {
			cfg.Filters.Bandpass[i].FLow = p.FLow
			cfg.Filters.Bandpass[i].FHigh = p.FHigh
		}
	}
	for i := range cfg.Detectors.WavePeak {
		d := &cfg.Detectors.WavePeak[i]
		switch d.ID {
		case SlowWaveDetectorID:
			d.ZScoreThreshold = p.ZScoreThreshold
			d.CheckSinusoidness = p.CheckSinusoidness
			d.SinusoidnessThreshold = p.SinusoidnessThreshold
			d.MinWaveLengthMS = p.MinWaveMS
			d.MaxWaveLengthMS = p.MaxWaveMS
		case IEDDetectorID:
			d.ZScoreThreshold = p.ZIEDThreshold
		}
	}
	for i := range cfg.Triggers.Pulse {
		if cfg.Triggers.Pulse[i].ID == PulseTriggerID {
			cfg.Triggers.Pulse[i].InhibitionCooldownMS = p.RefracMS
			cfg.Triggers.Pulse[i].PulseCooldownMS = p.RefracMS
		}
	}
	return cfg
}
