package detector

import (
	"context"
	"fmt"
	"strings"
)

// Record is one output record of a detector chunk run. Keys have the form
// "<kind>:<component id>:<field>".
type Record map[string]any

// Key builds a record key.
func Key(kind, id, field string) string {
	return strings.Join([]string{kind, id, field}, ":")
}

// Source names the component whose detections are evaluated.
type Source struct {
	Kind string `yaml:"kind" json:"kind"`
	ID   string `yaml:"id" json:"id"`
}

// DefaultSource reads detections of the slow-wave detector.
func DefaultSource() Source {
	return Source{Kind: "detectors", ID: SlowWaveDetectorID}
}

func (s Source) DetectedKey() string   { return Key(s.Kind, s.ID, "detected") }
func (s Source) StartIndexKey() string { return Key(s.Kind, s.ID, "wave_start_index") }

// Detection extracts the detection index of r for src. ok is false when the
// record is not a positive detection; a positive record without a start
// index yields -1.
func (s Source) Detection(r Record) (index int64, ok bool) {
	if !isOne(r[s.DetectedKey()]) {
		return 0, false
	}
	v, present := r[s.StartIndexKey()]
	if !present {
		return -1, true
	}
	n, err := toInt64(v)
	if err != nil {
		return -1, true
	}
	return n, true
}

// Detector is a stateful detector instance. RunChunk must see chunks in
// signal order; indices it reports are absolute sample positions.
type Detector interface {
	RunChunk(ctx context.Context, samples []float64) ([]Record, error)
	Close() error
}

// Factory constructs fresh detector instances. Instances are never shared
// between evaluation tasks.
type Factory interface {
	New(ctx context.Context, cfg Config) (Detector, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, cfg Config) (Detector, error)

func (f FactoryFunc) New(ctx context.Context, cfg Config) (Detector, error) { return f(ctx, cfg) }

func isOne(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case nil:
		return false
	default:
		n, err := toFloat(x)
		return err == nil && n == 1
	}
}

func toInt64(v any) (int64, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case interface{ Int64() (int64, error) }:
		n, err := x.Int64()
		if err == nil {
			return float64(n), nil
		}
		if fl, ok := x.(interface{ Float64() (float64, error) }); ok {
			return fl.Float64()
		}
		return 0, err
	default:
		return 0, fmt.Errorf("unsupported numeric value %T", v)
	}
}
