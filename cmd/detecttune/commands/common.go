// Package commands implements the detecttune subcommands.
package commands

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/detecttune/internal/config"
	"git.home.luguber.info/inful/detecttune/internal/detector"
	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
	"git.home.luguber.info/inful/detecttune/internal/logfields"
	"git.home.luguber.info/inful/detecttune/internal/metrics"
	"git.home.luguber.info/inful/detecttune/internal/ranking"
	"git.home.luguber.info/inful/detecttune/internal/search"
	"git.home.luguber.info/inful/detecttune/internal/store"
	"git.home.luguber.info/inful/detecttune/internal/subject"
	"git.home.luguber.info/inful/detecttune/internal/testdetector"
	"git.home.luguber.info/inful/detecttune/internal/trial"
)

// Global is bound into every command's Run.
type Global struct {
	Ctx    context.Context
	Logger *slog.Logger
}

// CLI definition and global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"detecttune.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Search   SearchCmd   `cmd:"" help:"Run or resume the parameter search"`
	Init     InitCmd     `cmd:"" help:"Write an example configuration file"`
	Validate ValidateCmd `cmd:"" help:"Load every subject and report its ground truth"`
	Analyze  AnalyzeCmd  `cmd:"" help:"Rank stored trials"`
	Best     BestCmd     `cmd:"" help:"Write the detector configuration of the best trial"`
	Summary  SummaryCmd  `cmd:"" help:"Show the per-subject breakdown of one trial"`
	Export   ExportCmd   `cmd:"" help:"Export the trial table as CSV"`
	Report   ReportCmd   `cmd:"" help:"Render a Markdown or HTML report of the top trials"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfig reads the configuration and replaces the default logger with
// the one it configures. --verbose still forces debug level.
func loadConfig(root *CLI) (*config.Config, *slog.Logger, error) {
	cfg, res, err := config.Load(root.Config)
	if err != nil {
		return nil, slog.Default(), err
	}
	logging := cfg.Monitoring.Logging
	if root.Verbose {
		logging.Level = config.LogLevelDebug
	}
	logger := logging.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	res.Log(logger)
	return cfg, logger, nil
}

func openResults(cfg *config.Config, logger *slog.Logger) (*store.ResultStore, error) {
	backend, err := store.OpenBackend(store.BackendOptions{
		Kind:   cfg.Store.Kind(),
		Path:   cfg.Store.Path,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	results, err := store.New(backend, store.Options{
		CSVPath:          cfg.Store.CSVPath,
		DetailEventLimit: cfg.Store.DetailEventLimit,
		Logger:           logger,
	})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	logger.Debug("Result store opened", logfields.Backend(string(cfg.Store.Kind())), logfields.Path(cfg.Store.Path))
	return results, nil
}

func closeResults(results *store.ResultStore, logger *slog.Logger) {
	if err := results.Close(); err != nil {
		logger.Warn("Failed to close result store", logfields.Error(err))
	}
}

func newSource(cfg *config.Config) subject.Source {
	return &subject.FileSource{
		Dir:           cfg.Data.Dir,
		SignalPattern: cfg.Data.SignalPattern,
		MarkerPattern: cfg.Data.MarkerPattern,
		CanonicalRate: cfg.Data.CanonicalRate,
		MarkerRates:   cfg.Data.MarkerRates(),
	}
}

func newFactory(cfg *config.Config, logger *slog.Logger) detector.Factory {
	if cfg.Detector.Kind == config.DetectorSynthetic {
		return &testdetector.Factory{}
	}
	return &detector.ExecFactory{
		Command: cfg.Detector.Command,
		Args:    cfg.Detector.Args,
		Env:     cfg.Detector.Env,
		Stderr:  os.Stderr,
		Logger:  logger,
	}
}

func newBuilder(cfg *config.Config) *detector.Builder {
	return detector.NewBuilder(*cfg.Detector.Base)
}

// newOrchestrator builds the orchestrator for strategy's metric policy.
func newOrchestrator(cfg *config.Config, strategy search.Strategy, recorder metrics.Recorder, logger *slog.Logger) *trial.Orchestrator {
	orch := trial.NewOrchestrator(newFactory(cfg, logger), newSource(cfg), trial.Options{
		Workers: cfg.Evaluation.Workers,
		Match:   cfg.MatchOptions(),
		Policy:  search.Policy(strategy, cfg.Search.PolicyOverride()),
	})
	orch.SetRecorder(recorder)
	orch.SetLogger(logger)
	return orch
}

// rankingMetric picks the metric analysis commands rank by: the flag, then
// the metric the run optimised, then the configured one.
func rankingMetric(ctx context.Context, flag string, results *store.ResultStore, cfg *config.Config) (trial.Metric, error) {
	if flag != "" {
		m, err := trial.ParseMetric(flag)
		if err != nil {
			return "", derrors.WrapError(err, derrors.CategoryValidation, "invalid --metric").UserAction().Build()
		}
		return m, nil
	}
	meta, err := results.ReadMeta(ctx)
	switch {
	case err == nil:
		if m, perr := trial.ParseMetric(meta.Metric); perr == nil {
			return m, nil
		}
	case !errors.Is(err, store.ErrNotFound):
		return "", err
	}
	return cfg.Search.MetricName(), nil
}

// newReplayer wires a replayer able to re-run trials with the configured
// detector when no stored detail exists.
func newReplayer(cfg *config.Config, results *store.ResultStore, metric trial.Metric, logger *slog.Logger) (*ranking.Replayer, error) {
	strategy, err := cfg.Search.NewStrategy()
	if err != nil {
		return nil, err
	}
	orch := newOrchestrator(cfg, strategy, metrics.NoopRecorder{}, logger)
	r := ranking.NewReplayer(results, newBuilder(cfg), orch, cfg.Data.IDs(), metric)
	r.SetLogger(logger)
	return r, nil
}
