package trial

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"git.home.luguber.info/inful/detecttune/internal/detector"
	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
	"git.home.luguber.info/inful/detecttune/internal/logfields"
	"git.home.luguber.info/inful/detecttune/internal/matcher"
	"git.home.luguber.info/inful/detecttune/internal/metrics"
	"git.home.luguber.info/inful/detecttune/internal/subject"
)

// Outcome is the aggregate of one trial over one data fraction.
type Outcome struct {
	Fraction float64
	Patients []PatientResult // sorted by subject id
	Counts   Counts
	Scores   Scores
	Failed   []int // subjects whose task failed, ascending
}

// AllFailed reports whether no subject produced a result.
func (o Outcome) AllFailed() bool { return len(o.Patients) == 0 && len(o.Failed) > 0 }

// Options configures an Orchestrator.
type Options struct {
	Workers int
	Match   matcher.Options
	Policy  MetricPolicy
}

// Orchestrator fans one configuration out over subjects on a bounded pool
// and fans the results back in. Each task owns a fresh detector instance.
type Orchestrator struct {
	factory  detector.Factory
	source   subject.Source
	opts     Options
	recorder metrics.Recorder
	logger   *slog.Logger
}

func NewOrchestrator(factory detector.Factory, source subject.Source, opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Policy == "" {
		opts.Policy = ZeroOnEmpty
	}
	return &Orchestrator{
		factory:  factory,
		source:   source,
		opts:     opts,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
}

// SetRecorder injects a metrics recorder (nil resets to noop).
func (o *Orchestrator) SetRecorder(r metrics.Recorder) {
	if r == nil {
		o.recorder = metrics.NoopRecorder{}
		return
	}
	o.recorder = r
}

func (o *Orchestrator) SetLogger(l *slog.Logger) {
	if l != nil {
		o.logger = l
	}
}

// Workers returns the pool bound.
func (o *Orchestrator) Workers() int { return o.opts.Workers }

type taskResult struct {
	result PatientResult
	err    error
}

// Run evaluates cfg on every subject at the given data fraction. A failing
// subject is logged with its trial and subject id and left out of the
// aggregate; it never aborts the trial. Tasks keep running when ctx is
// canceled so an interrupt drains the in-flight trial.
func (o *Orchestrator) Run(ctx context.Context, trialID int, cfg detector.Config, subjects []int, fraction float64) Outcome {
	taskCtx := context.WithoutCancel(ctx)
	p := pool.NewWithResults[taskResult]().WithMaxGoroutines(o.opts.Workers)
	for _, id := range subjects {
		p.Go(func() taskResult {
			start := time.Now()
			res, err := o.guardedEvaluate(taskCtx, cfg, id, fraction)
			label := metrics.ResultSuccess
			if err != nil {
				label = metrics.ResultFailed
				o.logger.Error("Subject evaluation failed",
					logfields.TrialID(trialID), logfields.SubjectID(id),
					logfields.Fraction(fraction), logfields.Error(err))
			}
			o.recorder.ObserveSubjectDuration(time.Since(start), label)
			o.recorder.IncSubjectResult(label)
			return taskResult{result: res, err: err}
		})
	}

	out := Outcome{Fraction: fraction}
	for _, tr := range p.Wait() {
		if tr.err != nil {
			out.Failed = append(out.Failed, tr.result.SubjectID)
			continue
		}
		out.Patients = append(out.Patients, tr.result)
		out.Counts = out.Counts.Add(tr.result.Counts)
	}
	sort.Slice(out.Patients, func(i, j int) bool { return out.Patients[i].SubjectID < out.Patients[j].SubjectID })
	sort.Ints(out.Failed)
	out.Scores = Score(out.Counts, o.opts.Policy)
	o.recorder.AddMatchCounts(out.Counts.TP, out.Counts.FP, out.Counts.FN)
	return out
}

// guardedEvaluate turns a panic anywhere in the task into the task's error.
func (o *Orchestrator) guardedEvaluate(ctx context.Context, cfg detector.Config, id int, fraction float64) (PatientResult, error) {
	var (
		res PatientResult
		err error
		pc  panics.Catcher
	)
	pc.Try(func() { res, err = o.evaluate(ctx, cfg, id, fraction) })
	if r := pc.Recovered(); r != nil {
		o.logger.Debug("Subject task stack", logfields.SubjectID(id), slog.String("stack", string(r.Stack)))
		return PatientResult{SubjectID: id}, derrors.InternalError("subject task panicked").
			WithCause(fmt.Errorf("panic: %v", r.Value)).
			WithContext("subject_id", id).
			Build()
	}
	return res, err
}

func (o *Orchestrator) evaluate(ctx context.Context, cfg detector.Config, id int, fraction float64) (PatientResult, error) {
	failed := PatientResult{SubjectID: id}
	subj, err := o.source.Load(ctx, id)
	if err != nil {
		return failed, err
	}
	subj = subj.Slice(fraction)

	det, err := o.factory.New(ctx, cfg)
	if err != nil {
		return failed, derrors.WrapError(err, derrors.CategoryDetector, "construct detector").
			WithContext("subject_id", id).Build()
	}
	defer func() {
		if err := det.Close(); err != nil {
			o.logger.Warn("Detector close failed", logfields.SubjectID(id), logfields.Error(err))
		}
	}()
	res, err := matcher.Evaluate(ctx, det, subj.Signal, subj.GroundTruth, o.opts.Match)
	if err != nil {
		return failed, derrors.WrapError(err, derrors.CategoryDetector, "run detector").
			WithContext("subject_id", id).Build()
	}

	counts := Counts{TP: res.TP, FP: res.FP, FN: res.FN}
	s := Score(counts, o.opts.Policy)
	return PatientResult{
		SubjectID:        id,
		Counts:           counts,
		GroundTruthTotal: len(subj.GroundTruth),
		Precision:        s.Precision,
		Recall:           s.Recall,
		Events:           res.Events,
	}, nil
}
