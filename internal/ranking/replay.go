package ranking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/detecttune/internal/detector"
	"git.home.luguber.info/inful/detecttune/internal/logfields"
	"git.home.luguber.info/inful/detecttune/internal/store"
	"git.home.luguber.info/inful/detecttune/internal/trial"
)

// DetailReader is the read side of the result store the replayer needs.
type DetailReader interface {
	Detail(ctx context.Context, id int) (store.TrialDetail, error)
}

// Item is the replayed breakdown of one ranked trial. Empty is set when
// neither a stored detail nor a re-run could produce one.
type Item struct {
	Row      store.TrialRow
	Detail   store.TrialDetail
	Replayed bool
	Empty    bool
	Err      error
}

// Replayer recovers per-subject breakdowns for ranked trials, from the
// stored detail records when present and by re-running the trial otherwise.
type Replayer struct {
	details  DetailReader
	builder  *detector.Builder
	orch     *trial.Orchestrator
	subjects []int
	metric   trial.Metric
	// Force re-runs trials whose stored events were truncated.
	Force  bool
	logger *slog.Logger
}

// NewReplayer wires a replayer. builder and orch may be nil, in which case
// only stored details are used.
func NewReplayer(details DetailReader, builder *detector.Builder, orch *trial.Orchestrator, subjects []int, metric trial.Metric) *Replayer {
	return &Replayer{
		details:  details,
		builder:  builder,
		orch:     orch,
		subjects: subjects,
		metric:   metric,
		logger:   slog.Default(),
	}
}

// SetLogger overrides the default logger.
func (r *Replayer) SetLogger(l *slog.Logger) {
	if l != nil {
		r.logger = l
	}
}

// Replay produces one item per row, in order. A row that cannot be replayed
// yields an empty item; the batch continues.
func (r *Replayer) Replay(ctx context.Context, rows []store.TrialRow) []Item {
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		if ctx.Err() != nil {
			items = append(items, Item{Row: row, Empty: true, Err: ctx.Err()})
			continue
		}
		items = append(items, r.replayOne(ctx, row))
	}
	return items
}

func (r *Replayer) replayOne(ctx context.Context, row store.TrialRow) Item {
	item := Item{Row: row}
	detail, err := r.details.Detail(ctx, row.ID)
	switch {
	case err == nil && !(detail.Truncated && r.Force):
		item.Detail = detail
		return item
	case err != nil && !errors.Is(err, store.ErrNotFound):
		r.logger.Warn("Reading trial detail failed", logfields.TrialID(row.ID), logfields.Error(err))
	}

	if r.builder == nil || r.orch == nil {
		item.Empty = true
		item.Err = err
		return item
	}
	cfg := r.builder.Build(row.Params)
	if err := cfg.Validate(); err != nil {
		r.logger.Warn("Replay configuration invalid", logfields.TrialID(row.ID), logfields.Error(err))
		item.Empty, item.Err = true, err
		return item
	}

	start := time.Now()
	out := r.orch.Run(ctx, row.ID, cfg, r.subjects, 1.0)
	if out.AllFailed() {
		r.logger.Warn("Replay produced no results", logfields.TrialID(row.ID), slog.Any("failed_subjects", out.Failed))
		item.Empty = true
		return item
	}
	t := trial.Trial{ID: row.ID, Params: row.Params, Status: row.Status, StartedAt: start}
	t.Record(out, r.metric)
	t.FinishedAt = time.Now()
	item.Detail = store.DetailFromTrial(t, 0)
	item.Replayed = true
	return item
}
