package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "detecttune"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	subjectDuration *prom.HistogramVec
	subjectResults  *prom.CounterVec
	matches         *prom.CounterVec
	trialDuration   prom.Histogram
	trialOutcomes   *prom.CounterVec
	bestObjective   prom.Gauge
	workers         prom.Gauge
	notifyFailures  prom.Counter
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.subjectDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "subject_evaluation_duration_seconds",
			Help:      "Duration of single-subject evaluations",
			Buckets:   prom.ExponentialBuckets(0.5, 2, 12),
		}, []string{"result"})
		pr.subjectResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "subject_evaluations_total",
			Help:      "Subject evaluations by result",
		}, []string{"result"})
		pr.matches = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "matched_events_total",
			Help:      "Classified events across all evaluations",
		}, []string{"class"})
		pr.trialDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "trial_duration_seconds",
			Help:      "Wall time per trial",
			Buckets:   prom.ExponentialBuckets(1, 2, 14),
		})
		pr.trialOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "trials_total",
			Help:      "Finished trials by status",
		}, []string{"status"})
		pr.bestObjective = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "best_objective",
			Help:      "Best objective among complete trials",
		})
		pr.workers = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "evaluation_workers",
			Help:      "Configured evaluation pool size",
		})
		pr.notifyFailures = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Trial notifications that could not be published",
		})
		reg.MustRegister(pr.subjectDuration, pr.subjectResults, pr.matches, pr.trialDuration,
			pr.trialOutcomes, pr.bestObjective, pr.workers, pr.notifyFailures)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveSubjectDuration(d time.Duration, result ResultLabel) {
	if p == nil || p.subjectDuration == nil {
		return
	}
	p.subjectDuration.WithLabelValues(string(result)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncSubjectResult(result ResultLabel) {
	if p == nil || p.subjectResults == nil {
		return
	}
	p.subjectResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) AddMatchCounts(tp, fp, fn int) {
	if p == nil || p.matches == nil {
		return
	}
	p.matches.WithLabelValues("tp").Add(float64(tp))
	p.matches.WithLabelValues("fp").Add(float64(fp))
	p.matches.WithLabelValues("fn").Add(float64(fn))
}

func (p *PrometheusRecorder) ObserveTrialDuration(d time.Duration) {
	if p == nil || p.trialDuration == nil {
		return
	}
	p.trialDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTrialOutcome(status string) {
	if p == nil || p.trialOutcomes == nil {
		return
	}
	p.trialOutcomes.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) SetBestObjective(v float64) {
	if p == nil || p.bestObjective == nil {
		return
	}
	p.bestObjective.Set(v)
}

func (p *PrometheusRecorder) SetWorkers(n int) {
	if p == nil || p.workers == nil {
		return
	}
	p.workers.Set(float64(n))
}

func (p *PrometheusRecorder) IncNotifyFailure() {
	if p == nil || p.notifyFailures == nil {
		return
	}
	p.notifyFailures.Inc()
}
