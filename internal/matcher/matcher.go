// Package matcher scores a detector run against ground truth with the
// tolerance-window protocol: each positive detection is paired with its
// nearest ground-truth event and counts as a true positive when that event
// lies within the tolerance and has not been claimed yet.
package matcher

import (
	"context"
	"fmt"
	"sort"

	"git.home.luguber.info/inful/detecttune/internal/detector"
	"git.home.luguber.info/inful/detecttune/internal/subject"
)

// DefaultChunkSize is the number of samples handed to the detector per call.
const DefaultChunkSize = 4096

// Kind classifies a matched event.
type Kind string

const (
	KindTP Kind = "TP"
	KindFP Kind = "FP"
	KindFN Kind = "FN"
)

// Event is one classified outcome. Detection is -1 for FN events and
// GroundTruth is -1 for FP events.
type Event struct {
	Kind        Kind  `json:"kind"`
	Detection   int64 `json:"detection"`
	GroundTruth int64 `json:"ground_truth"`
}

// Result is the outcome of evaluating one subject.
type Result struct {
	TP     int     `json:"tp"`
	FP     int     `json:"fp"`
	FN     int     `json:"fn"`
	Events []Event `json:"events"`
}

// Options controls an evaluation.
type Options struct {
	ChunkSize int
	Tolerance int64 // samples
	Source    detector.Source
}

// ToleranceSamples converts a tolerance in milliseconds to samples at rate,
// truncating toward zero.
func ToleranceSamples(ms, rate float64) int64 {
	return int64(ms / 1000 * rate)
}

// Evaluate feeds signal through det in chunks and classifies every positive
// detection. Matching is greedy in detection arrival order: the nearest
// ground-truth event is searched over the whole set, claimed events
// included, so a detection whose nearest event is already claimed becomes a
// false positive even if another unclaimed event is within tolerance.
func Evaluate(ctx context.Context, det detector.Detector, signal []float64, gt subject.GroundTruth, opts Options) (Result, error) {
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	if opts.Source == (detector.Source{}) {
		opts.Source = detector.DefaultSource()
	}

	idx := gt.Indices()
	matched := make([]bool, len(idx))
	var res Result

	for off := 0; off < len(signal); off += chunk {
		end := min(off+chunk, len(signal))
		records, err := det.RunChunk(ctx, signal[off:end])
		if err != nil {
			return Result{}, fmt.Errorf("chunk at sample %d: %w", off, err)
		}
		for _, rec := range records {
			d, ok := opts.Source.Detection(rec)
			if !ok {
				continue
			}
			i := nearest(idx, d)
			if i >= 0 && abs(idx[i]-d) <= opts.Tolerance && !matched[i] {
				matched[i] = true
				res.TP++
				res.Events = append(res.Events, Event{Kind: KindTP, Detection: d, GroundTruth: idx[i]})
				continue
			}
			res.FP++
			res.Events = append(res.Events, Event{Kind: KindFP, Detection: d, GroundTruth: -1})
		}
	}

	for i, m := range matched {
		if !m {
			res.FN++
			res.Events = append(res.Events, Event{Kind: KindFN, Detection: -1, GroundTruth: idx[i]})
		}
	}
	return res, nil
}

// nearest returns the position in sorted of the value closest to v, the
// lower one on ties, or -1 when sorted is empty.
func nearest(sorted []int64, v int64) int {
	if len(sorted) == 0 {
		return -1
	}
	i := sort.Search(len(sorted), func(k int) bool { return sorted[k] >= v })
	switch {
	case i == 0:
		return 0
	case i == len(sorted):
		return i - 1
	case v-sorted[i-1] <= sorted[i]-v:
		return i - 1
	default:
		return i
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
