package metrics

import "time"

// ResultLabel enumerates per-subject evaluation results.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
)

// Recorder defines observability hooks for trials and subject evaluations.
type Recorder interface {
	ObserveSubjectDuration(d time.Duration, result ResultLabel)
	IncSubjectResult(result ResultLabel)
	AddMatchCounts(tp, fp, fn int)
	ObserveTrialDuration(d time.Duration)
	IncTrialOutcome(status string) // complete|pruned|failed
	SetBestObjective(v float64)
	SetWorkers(n int)
	IncNotifyFailure()
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveSubjectDuration(time.Duration, ResultLabel) {}
func (NoopRecorder) IncSubjectResult(ResultLabel)                      {}
func (NoopRecorder) AddMatchCounts(int, int, int)                      {}
func (NoopRecorder) ObserveTrialDuration(time.Duration)                {}
func (NoopRecorder) IncTrialOutcome(string)                            {}
func (NoopRecorder) SetBestObjective(float64)                          {}
func (NoopRecorder) SetWorkers(int)                                    {}
func (NoopRecorder) IncNotifyFailure()                                 {}
