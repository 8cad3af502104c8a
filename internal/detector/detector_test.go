package detector

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/detecttune/internal/params"
)

func sampleSet() params.Set {
	return params.Set{
		ZScoreThreshold:       3.0,
		CheckSinusoidness:     true,
		SinusoidnessThreshold: 0.6,
		FLow:                  0.3,
		FHigh:                 4.5,
		MinWaveMS:             200,
		MaxWaveMS:             1200,
		ZIEDThreshold:         3.5,
		RefracMS:              2750,
	}
}

func TestBuilderMapsParameters(t *testing.T) {
	b := NewBuilder(DefaultBase(30000))
	cfg := b.Build(sampleSet())

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30000, cfg.Processor.FS)

	sw := cfg.Filters.Bandpass[0]
	assert.Equal(t, SlowWaveFilterID, sw.ID)
	assert.InDelta(t, 0.3, sw.FLow, 1e-12)
	assert.InDelta(t, 4.5, sw.FHigh, 1e-12)
	assert.InDelta(t, 80.0, cfg.Filters.Bandpass[1].FLow, 1e-12, "IED band untouched")

	det := cfg.Detectors.WavePeak[0]
	assert.InDelta(t, 3.0, det.ZScoreThreshold, 1e-12)
	assert.True(t, det.CheckSinusoidness)
	assert.InDelta(t, 0.6, det.SinusoidnessThreshold, 1e-12)
	assert.InDelta(t, 200.0, det.MinWaveLengthMS, 1e-12)
	assert.InDelta(t, 1200.0, det.MaxWaveLengthMS, 1e-12)
	assert.Equal(t, "downwave", det.WavePolarity)

	assert.InDelta(t, 3.5, cfg.Detectors.WavePeak[1].ZScoreThreshold, 1e-12)

	trig := cfg.Triggers.Pulse[0]
	assert.InDelta(t, 2750.0, trig.InhibitionCooldownMS, 1e-12)
	assert.InDelta(t, 2750.0, trig.PulseCooldownMS, 1e-12)
}

func TestBuilderIsPure(t *testing.T) {
	b := NewBuilder(DefaultBase(30000))
	first := b.Build(sampleSet())
	other := sampleSet()
	other.FLow = 0.1
	_ = b.Build(other)

	assert.Equal(t, first, b.Build(sampleSet()))
	assert.InDelta(t, 0.25, b.Base().Filters.Bandpass[0].FLow, 1e-12)
}

func TestBuilderGateOffUsesSentinel(t *testing.T) {
	p := sampleSet()
	p.CheckSinusoidness = false
	cfg := NewBuilder(DefaultBase(30000)).Build(p)
	assert.False(t, cfg.Detectors.WavePeak[0].CheckSinusoidness)
	assert.Equal(t, params.SentinelSinusoidness, cfg.Detectors.WavePeak[0].SinusoidnessThreshold)
}

func TestConfigValidateReferences(t *testing.T) {
	cfg := DefaultBase(30000)
	cfg.Detectors.WavePeak[0].FilterID = "missing"
	assert.ErrorContains(t, cfg.Validate(), "unknown filter")

	cfg = DefaultBase(30000)
	cfg.Triggers.Pulse[0].ActivationDetectorID = "nope"
	assert.ErrorContains(t, cfg.Validate(), "activation detector")
}

func TestConfigYAMLRoundTripKeys(t *testing.T) {
	data, err := DefaultBase(30000).YAML()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	detectors := doc["detectors"].(map[string]any)["wave_peak_detectors"].([]any)
	ied := detectors[1].(map[string]any)
	_, hasMin := ied["min_wave_length_ms"]
	assert.False(t, hasMin, "IED detector carries no wave length bounds")
	assert.Contains(t, string(data), "pulse_cooldown_ms: 2500")
}

func TestSourceDetection(t *testing.T) {
	src := DefaultSource()
	assert.Equal(t, "detectors:slow_wave_detector:detected", src.DetectedKey())

	idx, ok := src.Detection(Record{src.DetectedKey(): 1, src.StartIndexKey(): 1050})
	require.True(t, ok)
	assert.Equal(t, int64(1050), idx)

	idx, ok = src.Detection(Record{src.DetectedKey(): json.Number("1"), src.StartIndexKey(): json.Number("77.0")})
	require.True(t, ok)
	assert.Equal(t, int64(77), idx)

	idx, ok = src.Detection(Record{src.DetectedKey(): true})
	require.True(t, ok)
	assert.Equal(t, int64(-1), idx)

	_, ok = src.Detection(Record{src.DetectedKey(): 0, src.StartIndexKey(): 5})
	assert.False(t, ok)
	_, ok = src.Detection(Record{"detectors:ied_detector:detected": 1})
	assert.False(t, ok)
}
