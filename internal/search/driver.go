package search

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/detecttune/internal/detector"
	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
	"git.home.luguber.info/inful/detecttune/internal/logfields"
	"git.home.luguber.info/inful/detecttune/internal/metrics"
	"git.home.luguber.info/inful/detecttune/internal/notify"
	"git.home.luguber.info/inful/detecttune/internal/params"
	"git.home.luguber.info/inful/detecttune/internal/ranking"
	"git.home.luguber.info/inful/detecttune/internal/store"
	"git.home.luguber.info/inful/detecttune/internal/trial"
)

var (
	// ErrInterrupted is returned when a run stops early on cancellation.
	ErrInterrupted = derrors.CanceledError("search interrupted").Build()

	// ErrResumeGap is returned when the resume cursor skips unpersisted trials.
	ErrResumeGap = derrors.SearchError("resume cursor is beyond the persisted trials").UserAction().Build()

	// ErrNoSubjects is returned for a request without subjects.
	ErrNoSubjects = derrors.ValidationError("no subjects to evaluate").Build()

	// ErrUnbounded is returned when an adaptive search has no trial budget.
	ErrUnbounded = derrors.ValidationError("adaptive search needs max_trials").Build()
)

// AutoStart asks Run to continue after the last persisted trial.
const AutoStart = -1

// Request describes one search invocation.
type Request struct {
	Subjects []int
	// StartTrial is the resume cursor, or AutoStart.
	StartTrial int
	// MaxTrials bounds the total trial count; zero means the strategy total.
	MaxTrials int
}

// Summary reports the outcome of Run. Counts cover trials run by this call;
// Best covers the whole store.
type Summary struct {
	RunID       string
	Strategy    Kind
	Metric      trial.Metric
	Resumed     int
	Total       int
	Completed   int
	Pruned      int
	Failed      int
	Best        *store.TrialRow
	Interrupted bool
}

// Progress is a point-in-time view of a running search.
type Progress struct {
	RunID     string
	Strategy  Kind
	Done      int
	Total     int
	Completed int
	Pruned    int
	Failed    int
	Best      *store.TrialRow
	Started   time.Time
}

// Options configures a Driver.
type Options struct {
	Metric trial.Metric
	// Policy overrides the strategy's metric policy when set.
	Policy    trial.MetricPolicy
	Publisher notify.Publisher
	Recorder  metrics.Recorder
	Logger    *slog.Logger
}

// Driver runs trials strictly one after another and persists each one
// before starting the next.
type Driver struct {
	strategy  Strategy
	builder   *detector.Builder
	orch      *trial.Orchestrator
	results   *store.ResultStore
	metric    trial.Metric
	publisher notify.Publisher
	recorder  metrics.Recorder
	logger    *slog.Logger

	mu       sync.Mutex
	progress Progress
}

// NewDriver wires a driver. The orchestrator must use the metric policy
// returned by Policy.
func NewDriver(strategy Strategy, builder *detector.Builder, orch *trial.Orchestrator, results *store.ResultStore, opts Options) *Driver {
	d := &Driver{
		strategy:  strategy,
		builder:   builder,
		orch:      orch,
		results:   results,
		metric:    opts.Metric,
		publisher: opts.Publisher,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
	}
	if d.metric == "" {
		d.metric = trial.MetricF1
	}
	if d.publisher == nil {
		d.publisher = notify.Noop{}
	}
	if d.recorder == nil {
		d.recorder = metrics.NoopRecorder{}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Policy resolves the metric policy for strategy: override when set,
// otherwise the strategy default.
func Policy(strategy Strategy, override trial.MetricPolicy) trial.MetricPolicy {
	if override != "" {
		return override
	}
	return strategy.Policy()
}

// Progress returns a snapshot of the current run.
func (d *Driver) Progress() Progress {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.progress
	if p.Best != nil {
		best := *p.Best
		p.Best = &best
	}
	return p
}

// Run executes trials from the resume position up to the trial budget.
// Canceling ctx stops the search at the next fraction boundary. Subject
// tasks already running finish first. A trial cut short is not persisted
// and reruns on resume. Run then returns the summary with ErrInterrupted.
func (d *Driver) Run(ctx context.Context, req Request) (Summary, error) {
	if len(req.Subjects) == 0 {
		return Summary{}, ErrNoSubjects
	}
	total := d.strategy.Total()
	switch {
	case req.MaxTrials > 0 && (total < 0 || req.MaxTrials < total):
		total = req.MaxTrials
	case total < 0:
		return Summary{}, ErrUnbounded
	}

	state, err := d.results.Resume(ctx, store.Meta{
		Strategy: string(d.strategy.Name()),
		Metric:   string(d.metric),
		Columns:  params.ColumnNames,
	})
	if err != nil {
		return Summary{}, err
	}
	meta, _ := d.results.Meta()

	next := state.Next
	if req.StartTrial != AutoStart {
		switch {
		case req.StartTrial > state.Persisted:
			return Summary{}, derrors.WrapError(ErrResumeGap, derrors.CategorySearch, "resume cursor is beyond the persisted trials").
				UserAction().
				WithContext("start_trial", req.StartTrial).
				WithContext("persisted", state.Persisted).
				Build()
		case req.StartTrial < state.Persisted:
			d.logger.Info("Skipping trials already in the store",
				slog.Int("start_trial", req.StartTrial),
				slog.Int("persisted", state.Persisted))
		}
	}

	rows, err := d.results.Rows(ctx)
	if err != nil {
		return Summary{}, err
	}
	history := HistoryFromRows(rows)

	summary := Summary{
		RunID:    meta.RunID,
		Strategy: d.strategy.Name(),
		Metric:   d.metric,
		Resumed:  state.Persisted,
		Total:    total,
	}
	if best, ok := ranking.Best(rows, d.metric); ok {
		summary.Best = &best
		d.recorder.SetBestObjective(best.Objective)
	}
	d.recorder.SetWorkers(d.orch.Workers())

	d.mu.Lock()
	d.progress = Progress{
		RunID:    meta.RunID,
		Strategy: d.strategy.Name(),
		Done:     state.Persisted,
		Total:    total,
		Best:     summary.Best,
		Started:  time.Now(),
	}
	d.mu.Unlock()

	logger := d.logger.With(logfields.RunID(meta.RunID), logfields.Strategy(string(d.strategy.Name())))
	logger.Info("Search starting",
		slog.Int("next_trial", next),
		slog.Int("total", total),
		logfields.Metric(string(d.metric)),
		logfields.Workers(d.orch.Workers()),
		slog.Int("subjects", len(req.Subjects)))

	for id := next; id < total; id++ {
		if ctx.Err() != nil {
			summary.Interrupted = true
			logger.Warn("Search interrupted", slog.Int("next_trial", id))
			return summary, ErrInterrupted
		}

		t, err := d.runTrial(ctx, id, req.Subjects, history)
		if errors.Is(err, errTrialAbandoned) {
			summary.Interrupted = true
			logger.Warn("Search interrupted at a fraction boundary; the trial will be rerun on resume",
				logfields.TrialID(id), slog.Int("steps_done", len(t.Steps)))
			return summary, ErrInterrupted
		}
		if err != nil {
			return summary, err
		}
		row, err := d.results.Save(context.WithoutCancel(ctx), t)
		if err != nil {
			return summary, err
		}
		history.Record(t.Params, t.Status, t.Objective, t.Steps)

		improved := false
		switch row.Status {
		case trial.StatusComplete:
			summary.Completed++
			if summary.Best == nil || ranking.Better(row, *summary.Best, d.metric) {
				best := row
				summary.Best = &best
				improved = true
				d.recorder.SetBestObjective(row.Objective)
			}
		case trial.StatusPruned:
			summary.Pruned++
		default:
			summary.Failed++
		}
		d.recorder.ObserveTrialDuration(row.Duration())
		d.recorder.IncTrialOutcome(string(row.Status))

		d.mu.Lock()
		d.progress.Done = id + 1
		d.progress.Completed, d.progress.Pruned, d.progress.Failed = summary.Completed, summary.Pruned, summary.Failed
		d.progress.Best = summary.Best
		d.mu.Unlock()

		logger.Info("Trial finished",
			logfields.TrialID(id),
			logfields.Status(string(row.Status)),
			logfields.Fraction(row.Fraction),
			logfields.Objective(row.Objective),
			slog.Int("tp", row.Counts.TP), slog.Int("fp", row.Counts.FP), slog.Int("fn", row.Counts.FN),
			logfields.DurationMS(float64(row.Duration().Milliseconds())))

		d.publish(ctx, meta.RunID, row, improved)
	}

	logger.Info("Search finished",
		slog.Int("completed", summary.Completed),
		slog.Int("pruned", summary.Pruned),
		slog.Int("failed", summary.Failed))
	return summary, nil
}

func (d *Driver) publish(ctx context.Context, runID string, row store.TrialRow, best bool) {
	ev := notify.TrialEvent{
		RunID:      runID,
		Strategy:   string(d.strategy.Name()),
		Metric:     string(d.metric),
		TrialID:    row.ID,
		Status:     row.Status,
		Fraction:   row.Fraction,
		Objective:  row.Objective,
		Counts:     row.Counts,
		Scores:     row.Scores,
		Params:     row.Params,
		DurationMS: row.Duration().Milliseconds(),
		FinishedAt: row.FinishedAt,
		Best:       best,
	}
	if err := d.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		d.recorder.IncNotifyFailure()
		d.logger.Warn("Trial notification failed", logfields.TrialID(row.ID), logfields.Error(err))
	}
}

// errTrialAbandoned reports a trial left unfinished at a fraction boundary
// after cancellation. It is never persisted.
var errTrialAbandoned = errors.New("trial abandoned at fraction boundary")

// runTrial evaluates one proposal over the strategy's fractions. The
// returned trial has a terminal status unless err is set; err is reserved
// for conditions that end the whole search.
func (d *Driver) runTrial(ctx context.Context, id int, subjects []int, history *History) (trial.Trial, error) {
	set, err := d.strategy.Propose(id, history.Observations())
	if err != nil {
		return trial.Trial{}, err
	}
	t := trial.Trial{ID: id, Params: set.Normalize(), StartedAt: time.Now().UTC()}

	cfg := d.builder.Build(t.Params)
	if err := errors.Join(t.Params.Validate(), cfg.Validate()); err != nil {
		d.logger.Warn("Proposal rejected", logfields.TrialID(id), logfields.Error(err))
		t.Status = trial.StatusFailed
		t.Error = err.Error()
		t.FinishedAt = time.Now().UTC()
		return t, nil
	}

	fractions := d.strategy.Fractions()
	pruner := d.strategy.Pruner()
	for step, fraction := range fractions {
		if step > 0 && ctx.Err() != nil {
			return t, errTrialAbandoned
		}
		out := d.orch.Run(ctx, id, cfg, subjects, fraction)
		s := t.Record(out, d.metric)
		if out.AllFailed() {
			t.Status = trial.StatusFailed
			t.Error = "every subject failed"
			break
		}
		d.logger.Debug("Trial step finished",
			logfields.TrialID(id), logfields.Step(step), logfields.Fraction(fraction), logfields.Objective(s.Objective))
		if step < len(fractions)-1 && pruner.ShouldPrune(step, s.Objective, history) {
			t.Status = trial.StatusPruned
			break
		}
	}
	if t.Status == "" {
		t.Status = trial.StatusComplete
	}
	t.FinishedAt = time.Now().UTC()
	return t, nil
}
