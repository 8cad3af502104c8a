package trial

import (
	"git.home.luguber.info/inful/detecttune/internal/foundation/normalization"
)

// Metric names the quantity a search maximises.
type Metric string

const (
	MetricF1        Metric = "f1"
	MetricPrecision Metric = "precision"
	MetricRecall    Metric = "recall"
	MetricBalanced  Metric = "balanced"
)

var metricNormalizer = normalization.NewNormalizer("metric", map[string]Metric{
	"f1":        MetricF1,
	"precision": MetricPrecision,
	"recall":    MetricRecall,
	"balanced":  MetricBalanced,
}, MetricF1)

// ParseMetric accepts a metric name; empty input selects f1.
func ParseMetric(raw string) (Metric, error) { return metricNormalizer.Parse(raw) }

// MetricNames lists the accepted metric names.
func MetricNames() []string { return metricNormalizer.ValidKeys() }

// MetricPolicy decides precision and recall when their denominator is zero.
type MetricPolicy string

const (
	// ZeroOnEmpty scores an empty denominator as 0.
	ZeroOnEmpty MetricPolicy = "zero_on_empty"
	// VacuousOnEmpty scores an empty denominator as 1: no detections means
	// no wrong detections, no ground truth means nothing was missed.
	VacuousOnEmpty MetricPolicy = "vacuous_on_empty"
)

var policyNormalizer = normalization.NewNormalizer("metric policy", map[string]MetricPolicy{
	"zero_on_empty":    ZeroOnEmpty,
	"zero":             ZeroOnEmpty,
	"vacuous_on_empty": VacuousOnEmpty,
	"vacuous":          VacuousOnEmpty,
}, ZeroOnEmpty)

// ParseMetricPolicy accepts a policy name; empty input selects ZeroOnEmpty.
func ParseMetricPolicy(raw string) (MetricPolicy, error) { return policyNormalizer.Parse(raw) }

// Counts are summed match counts.
type Counts struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	FN int `json:"fn"`
}

func (c Counts) Add(o Counts) Counts {
	return Counts{TP: c.TP + o.TP, FP: c.FP + o.FP, FN: c.FN + o.FN}
}

// Scores are derived from Counts; every value lies in [0,1].
type Scores struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Balanced  float64 `json:"balanced"`
}

// Value returns the score named by m.
func (s Scores) Value(m Metric) float64 {
	switch m {
	case MetricPrecision:
		return s.Precision
	case MetricRecall:
		return s.Recall
	case MetricBalanced:
		return s.Balanced
	default:
		return s.F1
	}
}

// Score derives precision, recall, F1 and the balanced score from c.
func Score(c Counts, policy MetricPolicy) Scores {
	empty := 0.0
	if policy == VacuousOnEmpty {
		empty = 1.0
	}
	s := Scores{Precision: empty, Recall: empty}
	if d := c.TP + c.FP; d > 0 {
		s.Precision = float64(c.TP) / float64(d)
	}
	if d := c.TP + c.FN; d > 0 {
		s.Recall = float64(c.TP) / float64(d)
	}
	if sum := s.Precision + s.Recall; sum > 0 {
		s.F1 = 2 * s.Precision * s.Recall / sum
		s.Balanced = sum / 2
	}
	return s
}
