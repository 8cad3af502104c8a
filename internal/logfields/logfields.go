package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyTrialID    = "trial_id"
	KeySubjectID  = "subject_id"
	KeyFraction   = "fraction"
	KeyStep       = "step"
	KeyStrategy   = "strategy"
	KeyMetric     = "metric"
	KeyStatus     = "status"
	KeyObjective  = "objective"
	KeyWorkers    = "workers"
	KeyBackend    = "backend"
	KeyPath       = "path"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

func RunID(id string) slog.Attr        { return slog.String(KeyRunID, id) }
func TrialID(id int) slog.Attr         { return slog.Int(KeyTrialID, id) }
func SubjectID(id int) slog.Attr       { return slog.Int(KeySubjectID, id) }
func Fraction(f float64) slog.Attr     { return slog.Float64(KeyFraction, f) }
func Step(s int) slog.Attr             { return slog.Int(KeyStep, s) }
func Strategy(name string) slog.Attr   { return slog.String(KeyStrategy, name) }
func Metric(name string) slog.Attr     { return slog.String(KeyMetric, name) }
func Status(s string) slog.Attr        { return slog.String(KeyStatus, s) }
func Objective(v float64) slog.Attr    { return slog.Float64(KeyObjective, v) }
func Workers(n int) slog.Attr          { return slog.Int(KeyWorkers, n) }
func Backend(name string) slog.Attr    { return slog.String(KeyBackend, name) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
