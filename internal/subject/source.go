package subject

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
)

// Subject is one recording with its ground truth at the canonical rate.
type Subject struct {
	ID          int
	Signal      []float64
	GroundTruth GroundTruth
}

// Slice keeps the leading fraction of the signal (truncating the sample
// count) and drops ground truth beyond it. Fractions >= 1 return s unchanged.
func (s Subject) Slice(fraction float64) Subject {
	if fraction >= 1 {
		return s
	}
	if fraction < 0 {
		fraction = 0
	}
	n := int(float64(len(s.Signal)) * fraction)
	return Subject{
		ID:          s.ID,
		Signal:      s.Signal[:n:n],
		GroundTruth: s.GroundTruth.Truncate(n),
	}
}

// Source loads subjects. Implementations must be safe for concurrent use;
// every call returns data the caller may keep.
type Source interface {
	Load(ctx context.Context, id int) (Subject, error)
}

// FileSource reads subjects from a data directory. Signal files ending in
// .npy are read as NumPy arrays (first row); anything else as raw
// little-endian float32.
type FileSource struct {
	Dir           string
	SignalPattern string // fmt pattern taking the subject id
	MarkerPattern string
	CanonicalRate float64
	MarkerRates   map[int]float64
}

func (f *FileSource) Load(ctx context.Context, id int) (Subject, error) {
	rate, ok := f.MarkerRates[id]
	if !ok || rate <= 0 {
		return Subject{}, derrors.SubjectError("marker sample rate not defined").
			WithContext("subject_id", id).Build()
	}
	if err := ctx.Err(); err != nil {
		return Subject{}, err
	}

	sigPath := filepath.Join(f.Dir, fmt.Sprintf(f.SignalPattern, id))
	signal, err := readSignal(sigPath)
	if err != nil {
		return Subject{}, derrors.WrapError(err, derrors.CategorySubject, "read signal").
			WithContext("subject_id", id).WithContext("path", sigPath).Build()
	}

	mrkPath := filepath.Join(f.Dir, fmt.Sprintf(f.MarkerPattern, id))
	mf, err := os.Open(mrkPath)
	if err != nil {
		return Subject{}, derrors.WrapError(err, derrors.CategorySubject, "open markers").
			WithContext("subject_id", id).WithContext("path", mrkPath).Build()
	}
	defer func() { _ = mf.Close() }()
	raw, err := ParseMarkers(mf)
	if err != nil {
		return Subject{}, derrors.WrapError(err, derrors.CategorySubject, "parse markers").
			WithContext("subject_id", id).WithContext("path", mrkPath).Build()
	}

	return Subject{ID: id, Signal: signal, GroundTruth: NewGroundTruth(raw, rate, f.CanonicalRate)}, nil
}

func readSignal(path string) ([]float64, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = fh.Close() }()
	if strings.EqualFold(filepath.Ext(path), ".npy") {
		return ReadNPYFirstRow(fh)
	}
	return ReadRawFloat32(fh)
}

// MemorySource serves preloaded subjects.
type MemorySource map[int]Subject

func (m MemorySource) Load(_ context.Context, id int) (Subject, error) {
	s, ok := m[id]
	if !ok {
		return Subject{}, derrors.SubjectError("unknown subject").WithContext("subject_id", id).Build()
	}
	return s, nil
}

// Summary describes one subject as seen by Preflight.
type Summary struct {
	ID          int
	Samples     int
	GroundTruth int
	Err         error
}

// Preflight loads every subject concurrently (at most workers at a time) and
// reports what it found. Per-subject failures land in the summaries; only
// cancellation is returned as an error.
func Preflight(ctx context.Context, src Source, ids []int, workers int) ([]Summary, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]Summary, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, id := range ids {
		g.Go(func() error {
			s, err := src.Load(gctx, id)
			out[i] = Summary{ID: id, Samples: len(s.Signal), GroundTruth: len(s.GroundTruth), Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, ctx.Err()
}
