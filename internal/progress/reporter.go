// Package progress logs the state of a running search on a fixed interval.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/detecttune/internal/logfields"
	"git.home.luguber.info/inful/detecttune/internal/search"
)

// Source yields progress snapshots. search.Driver implements it.
type Source interface {
	Progress() search.Progress
}

// Reporter wraps a gocron scheduler running one periodic progress job.
type Reporter struct {
	scheduler gocron.Scheduler
	source    Source
	logger    *slog.Logger
	now       func() time.Time
}

// NewReporter schedules a report of src every interval. Nothing runs until Start.
func NewReporter(src Source, interval time.Duration, logger *slog.Logger) (*Reporter, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("progress interval must be positive, got %s", interval)
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reporter{scheduler: s, source: src, logger: logger, now: time.Now}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(r.Report),
		gocron.WithName("search-progress"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to create progress job: %w", err)
	}
	return r, nil
}

// Start begins periodic reporting.
func (r *Reporter) Start() {
	r.scheduler.Start()
}

// Stop shuts the scheduler down and logs a final report.
func (r *Reporter) Stop(context.Context) error {
	err := r.scheduler.Shutdown()
	r.Report()
	return err
}

// Report logs one snapshot.
func (r *Reporter) Report() {
	p := r.source.Progress()
	attrs := []any{
		logfields.RunID(p.RunID),
		logfields.Strategy(string(p.Strategy)),
		slog.Int("done", p.Done),
		slog.Int("total", p.Total),
		slog.Int("completed", p.Completed),
		slog.Int("pruned", p.Pruned),
		slog.Int("failed", p.Failed),
	}
	if p.Total > 0 {
		attrs = append(attrs, slog.String("percent", fmt.Sprintf("%.1f", 100*float64(p.Done)/float64(p.Total))))
	}
	if eta, ok := Estimate(p, r.now()); ok {
		attrs = append(attrs, slog.Duration("eta", eta))
	}
	if p.Best != nil {
		attrs = append(attrs, slog.Int("best_trial", p.Best.ID), slog.Float64("best_objective", p.Best.Objective))
	}
	r.logger.Info("Search progress", attrs...)
}

// Estimate projects the remaining time from the trials run since p.Started.
func Estimate(p search.Progress, now time.Time) (time.Duration, bool) {
	ran := p.Completed + p.Pruned + p.Failed
	remaining := p.Total - p.Done
	if ran == 0 || remaining <= 0 || p.Started.IsZero() {
		return 0, false
	}
	per := now.Sub(p.Started) / time.Duration(ran)
	return per * time.Duration(remaining), true
}
