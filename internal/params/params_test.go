package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeForcesSentinel(t *testing.T) {
	s := Set{CheckSinusoidness: false, SinusoidnessThreshold: 0.7}.Normalize()
	assert.Equal(t, SentinelSinusoidness, s.SinusoidnessThreshold)

	on := Set{CheckSinusoidness: true, SinusoidnessThreshold: 0.7}.Normalize()
	assert.InDelta(t, 0.7, on.SinusoidnessThreshold, 1e-12)
}

func TestValidate(t *testing.T) {
	good := Set{ZScoreThreshold: 2.5, FLow: 0.25, FHigh: 4, MinWaveMS: 250, MaxWaveMS: 1000, ZIEDThreshold: 3, RefracMS: 2500}
	require.NoError(t, good.Validate())

	bad := good
	bad.FLow = 5
	assert.Error(t, bad.Validate())

	bad = good
	bad.SinusoidnessThreshold = 0.5
	assert.Error(t, bad.Validate(), "dependent must be sentinel with the gate off")

	bad = good
	bad.MinWaveMS = 2000
	assert.Error(t, bad.Validate())
}

func TestValuesFollowColumnOrder(t *testing.T) {
	s := Set{ZScoreThreshold: 2.5, CheckSinusoidness: true, FLow: 0.25, FHigh: 4, MinWaveMS: 250, MaxWaveMS: 1000, ZIEDThreshold: 3, RefracMS: 2500, SinusoidnessThreshold: 0.7}
	vals := s.Values()
	require.Len(t, vals, len(ColumnNames))
	assert.Equal(t, "2.5", vals[0])
	assert.Equal(t, "true", vals[1])
	assert.Equal(t, "0.7", vals[8])
}

func TestGridGateCardinality(t *testing.T) {
	g := Grid{
		ZScoreThreshold:       []float64{2, 3},
		CheckSinusoidness:     []bool{true, false},
		FLow:                  []float64{0.25},
		FHigh:                 []float64{4},
		MinWaveMS:             []float64{250},
		MaxWaveMS:             []float64{1000},
		ZIEDThreshold:         []float64{3},
		RefracMS:              []float64{2000, 3000},
		SinusoidnessThreshold: []float64{0.3, 0.5, 0.7},
	}
	require.NoError(t, g.Validate())

	sets := g.Enumerate()
	// 4 independent combinations per gate value: 3 sets when on, 1 when off.
	assert.Len(t, sets, 4*3+4*1)
	assert.Equal(t, g.Size(), len(sets))

	var on, off int
	for _, s := range sets {
		if s.CheckSinusoidness {
			on++
		} else {
			off++
			assert.Equal(t, SentinelSinusoidness, s.SinusoidnessThreshold)
		}
	}
	assert.Equal(t, 12, on)
	assert.Equal(t, 4, off)
}

func TestGridEnumerationOrderIsStable(t *testing.T) {
	g := Grid{
		ZScoreThreshold:       []float64{1, 2},
		CheckSinusoidness:     []bool{false},
		FLow:                  []float64{0.25},
		FHigh:                 []float64{4},
		MinWaveMS:             []float64{250},
		MaxWaveMS:             []float64{1000},
		ZIEDThreshold:         []float64{3},
		RefracMS:              []float64{2000, 3000},
	}
	sets := g.Enumerate()
	require.Len(t, sets, 4)
	assert.Equal(t, []float64{1, 1, 2, 2}, []float64{sets[0].ZScoreThreshold, sets[1].ZScoreThreshold, sets[2].ZScoreThreshold, sets[3].ZScoreThreshold})
	assert.Equal(t, []float64{2000, 3000, 2000, 3000}, []float64{sets[0].RefracMS, sets[1].RefracMS, sets[2].RefracMS, sets[3].RefracMS})
	assert.Equal(t, sets, g.Enumerate())
}

func TestDefaultGridSize(t *testing.T) {
	g := DefaultGrid()
	// 9 z * 9 z_ied * 3 refrac = 243 combinations; gate on adds 7, off adds 1.
	assert.Equal(t, 243*8, g.Size())
	assert.Len(t, g.Enumerate(), g.Size())
}

func TestGridValidateRejectsMissingDependent(t *testing.T) {
	g := DefaultGrid()
	g.SinusoidnessThreshold = nil
	assert.Error(t, g.Validate())

	g.CheckSinusoidness = []bool{false}
	assert.NoError(t, g.Validate())
}

func TestRandomSamplerDeterministicPerTrial(t *testing.T) {
	space := DefaultSpace()
	require.NoError(t, space.Validate())
	a := NewRandomSampler(space, 42)
	b := NewRandomSampler(space, 42)

	for id := 0; id < 20; id++ {
		sa, err := a.Sample(id, nil)
		require.NoError(t, err)
		sb, err := b.Sample(id, nil)
		require.NoError(t, err)
		assert.Equal(t, sa, sb)
		require.NoError(t, sa.Validate())
		if !sa.CheckSinusoidness {
			assert.Equal(t, SentinelSinusoidness, sa.SinusoidnessThreshold)
		} else {
			assert.GreaterOrEqual(t, sa.SinusoidnessThreshold, 0.3)
			assert.LessOrEqual(t, sa.SinusoidnessThreshold, 0.8)
		}
	}
}

func TestDimStepSampling(t *testing.T) {
	space := DefaultSpace()
	space.CheckSinusoidness = []bool{true}
	s := NewRandomSampler(space, 7)
	allowed := map[float64]bool{0.3: true, 0.4: true, 0.5: true, 0.6: true, 0.7: true, 0.8: true}
	for id := 0; id < 50; id++ {
		set, err := s.Sample(id, nil)
		require.NoError(t, err)
		assert.True(t, allowed[set.SinusoidnessThreshold])
	}
}

// zHistory scores a trial 1 when its z-score threshold is 2.25 and 0
// otherwise.
func zHistory(t *testing.T, n int) []Observation {
	t.Helper()
	r := NewRandomSampler(DefaultSpace(), 3)
	past := make([]Observation, n)
	for i := range past {
		set, err := r.Sample(i, nil)
		require.NoError(t, err)
		set.ZScoreThreshold = DefaultSpace().ZScoreThreshold.Choices[i%4]
		o := Observation{Set: set, State: ObservedComplete}
		if set.ZScoreThreshold == 2.25 {
			o.Value = 1
		}
		o.Steps = []float64{o.Value}
		past[i] = o
	}
	return past
}

func inSpace(t *testing.T, sp Space, set Set) {
	t.Helper()
	require.NoError(t, set.Validate())
	assert.Contains(t, sp.ZScoreThreshold.Choices, set.ZScoreThreshold)
	assert.Contains(t, sp.FHigh.Choices, set.FHigh)
	assert.Contains(t, sp.RefracMS.Choices, set.RefracMS)
	assert.InDelta(t, 250.0, set.MinWaveMS, 0)
	if set.CheckSinusoidness {
		assert.GreaterOrEqual(t, set.SinusoidnessThreshold, 0.3)
		assert.LessOrEqual(t, set.SinusoidnessThreshold, 0.8)
	} else {
		assert.Equal(t, SentinelSinusoidness, set.SinusoidnessThreshold)
	}
}

func TestTPESamplerStaysInSpace(t *testing.T) {
	sp := DefaultSpace()
	s := NewTPESampler(sp, 11, 2)
	past := zHistory(t, 6)
	past[1].State = ObservedPruned
	past[2].State = ObservedFailed
	past[3].Set.RefracMS = 99999 // outside the space, left out of the replay

	for id := 6; id < 16; id++ {
		set, err := s.Sample(id, past)
		require.NoError(t, err)
		inSpace(t, sp, set)
	}
}

func TestTPESamplerDeterministicForSameHistory(t *testing.T) {
	past := zHistory(t, 12)
	a := NewTPESampler(DefaultSpace(), 5, -1)
	b := NewTPESampler(DefaultSpace(), 5, -1)
	for id := 12; id < 18; id++ {
		sa, err := a.Sample(id, past)
		require.NoError(t, err)
		sb, err := b.Sample(id, past)
		require.NoError(t, err)
		assert.Equal(t, sa, sb)
	}
}

func TestTPESamplerFavoursGoodRegion(t *testing.T) {
	past := zHistory(t, 40)
	s := NewTPESampler(DefaultSpace(), 9, 5)
	hits := 0
	for id := 40; id < 60; id++ {
		set, err := s.Sample(id, past)
		require.NoError(t, err)
		if set.ZScoreThreshold == 2.25 {
			hits++
		}
	}
	// Uniform sampling would hit about 5 of 20.
	assert.GreaterOrEqual(t, hits, 12)
}

func TestParseSamplerKind(t *testing.T) {
	k, err := ParseSamplerKind("")
	require.NoError(t, err)
	assert.Equal(t, SamplerTPE, k)
	k, err = ParseSamplerKind("Random")
	require.NoError(t, err)
	assert.Equal(t, SamplerRandom, k)
	_, err = ParseSamplerKind("cmaes")
	assert.Error(t, err)
}
