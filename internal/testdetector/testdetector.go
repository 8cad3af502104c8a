// Package testdetector provides an in-process threshold detector and
// synthetic subjects. Tests use it in place of the external detector, and the
// CLI exposes it as the "synthetic" detector kind for dry runs.
package testdetector

import (
	"context"
	"errors"
	"math"
	"sync/atomic"

	"git.home.luguber.info/inful/detecttune/internal/detector"
	"git.home.luguber.info/inful/detecttune/internal/subject"
)

// ErrBadSample is returned by RunChunk when a chunk contains NaN.
var ErrBadSample = errors.New("signal contains NaN")

// Threshold reports a detection at every rising crossing of the slow-wave
// detector's z-score threshold. It keeps state across chunks like the real
// detector does.
type Threshold struct {
	src       detector.Source
	threshold float64
	prev      float64
	offset    int64
}

func (d *Threshold) RunChunk(ctx context.Context, samples []float64) ([]detector.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []detector.Record
	for i, v := range samples {
		if math.IsNaN(v) {
			return nil, ErrBadSample
		}
		if v > d.threshold && d.prev <= d.threshold {
			out = append(out, detector.Record{
				d.src.DetectedKey():   1,
				d.src.StartIndexKey(): d.offset + int64(i),
			})
		}
		d.prev = v
	}
	d.offset += int64(len(samples))
	return out, nil
}

func (d *Threshold) Close() error { return nil }

// Factory builds Threshold detectors from a configuration.
type Factory struct {
	// FailWhen makes construction fail for matching configurations.
	FailWhen func(cfg detector.Config) bool

	built atomic.Int64
}

// Built returns how many detectors were constructed.
func (f *Factory) Built() int64 { return f.built.Load() }

func (f *Factory) New(_ context.Context, cfg detector.Config) (detector.Detector, error) {
	if f.FailWhen != nil && f.FailWhen(cfg) {
		return nil, errors.New("synthetic construction failure")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	threshold := math.Inf(1)
	for _, d := range cfg.Detectors.WavePeak {
		if d.ID == detector.SlowWaveDetectorID {
			threshold = d.ZScoreThreshold
		}
	}
	f.built.Add(1)
	return &Threshold{src: detector.DefaultSource(), threshold: threshold}, nil
}

// Bump describes a synthetic event in a signal.
type Bump struct {
	At        int64
	Amplitude float64
	Width     int64
}

// Signal renders a zero signal of n samples with the given bumps.
func Signal(n int, bumps ...Bump) []float64 {
	sig := make([]float64, n)
	for _, b := range bumps {
		w := max(b.Width, 1)
		for i := b.At; i < b.At+w && i < int64(n); i++ {
			if i >= 0 {
				sig[i] = b.Amplitude
			}
		}
	}
	return sig
}

// Subject builds a subject of n samples whose ground-truth events are
// rendered as bumps of the given amplitude, plus extra bumps that have no
// ground truth.
func Subject(id, n int, events []int64, amplitude float64, spurious ...int64) subject.Subject {
	bumps := make([]Bump, 0, len(events)+len(spurious))
	gt := make(subject.GroundTruth, 0, len(events))
	for _, e := range events {
		bumps = append(bumps, Bump{At: e, Amplitude: amplitude, Width: 10})
		gt = append(gt, subject.Marker{Index: e, Marker: e})
	}
	for _, e := range spurious {
		bumps = append(bumps, Bump{At: e, Amplitude: amplitude, Width: 10})
	}
	return subject.Subject{ID: id, Signal: Signal(n, bumps...), GroundTruth: gt}
}

// Corrupt returns a copy of s whose signal makes the detector fail.
func Corrupt(s subject.Subject) subject.Subject {
	sig := append([]float64(nil), s.Signal...)
	if len(sig) > 0 {
		sig[len(sig)-1] = math.NaN()
	}
	s.Signal = sig
	return s
}
