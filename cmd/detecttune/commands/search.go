package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/detecttune/internal/config"
	"git.home.luguber.info/inful/detecttune/internal/logfields"
	"git.home.luguber.info/inful/detecttune/internal/metrics"
	"git.home.luguber.info/inful/detecttune/internal/notify"
	"git.home.luguber.info/inful/detecttune/internal/progress"
	"git.home.luguber.info/inful/detecttune/internal/search"
)

// SearchCmd implements the 'search' command.
type SearchCmd struct {
	StartTrial int `name:"start-trial" help:"Resume cursor; -1 continues after the last stored trial" default:"-1"`
	MaxTrials  int `name:"max-trials" help:"Override search.max_trials"`
}

func (s *SearchCmd) Run(g *Global, root *CLI) error {
	cfg, logger, err := loadConfig(root)
	if err != nil {
		return err
	}
	summary, err := RunSearch(g.Ctx, cfg, s.StartTrial, s.MaxTrials, logger)
	printSummary(os.Stdout, summary)
	if errors.Is(err, search.ErrInterrupted) {
		logger.Info("Rerun the search command to resume")
	}
	return err
}

// RunSearch wires every collaborator from cfg and runs the search.
func RunSearch(ctx context.Context, cfg *config.Config, startTrial, maxTrials int, logger *slog.Logger) (search.Summary, error) {
	strategy, err := cfg.Search.NewStrategy()
	if err != nil {
		return search.Summary{}, err
	}

	reg := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(reg)
	recorder.SetWorkers(cfg.Evaluation.Workers)
	metricsCtx, stopMetrics := context.WithCancel(context.WithoutCancel(ctx))
	defer stopMetrics()
	if addr := cfg.Monitoring.MetricsAddr; addr != "" {
		go func() {
			if err := metrics.Serve(metricsCtx, addr, reg); err != nil {
				logger.Error("Metrics endpoint failed", logfields.Error(err))
			}
		}()
	}

	results, err := openResults(cfg, logger)
	if err != nil {
		return search.Summary{}, err
	}
	defer closeResults(results, logger)

	var publisher notify.Publisher = notify.Noop{}
	if cfg.Notify.Enabled {
		p, err := notify.ConnectNATS(ctx, notify.NATSConfig{
			URL:     cfg.Notify.NATSURL,
			Subject: cfg.Notify.Subject,
			Stream:  cfg.Notify.Stream,
			Retry:   cfg.Notify.Retry.Policy(),
			Timeout: cfg.Notify.Timeout,
			Logger:  logger,
		})
		if err != nil {
			return search.Summary{}, err
		}
		publisher = p
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("Failed to close notifier", logfields.Error(err))
		}
	}()

	orch := newOrchestrator(cfg, strategy, recorder, logger)
	driver := search.NewDriver(strategy, newBuilder(cfg), orch, results, search.Options{
		Metric:    cfg.Search.MetricName(),
		Policy:    cfg.Search.PolicyOverride(),
		Publisher: publisher,
		Recorder:  recorder,
		Logger:    logger,
	})

	reporter, err := progress.NewReporter(driver, cfg.Monitoring.ProgressInterval, logger)
	if err != nil {
		return search.Summary{}, err
	}
	reporter.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := reporter.Stop(stopCtx); err != nil {
			logger.Warn("Failed to stop progress reporter", logfields.Error(err))
		}
	}()

	if maxTrials <= 0 {
		maxTrials = cfg.Search.MaxTrials
	}

	return driver.Run(ctx, search.Request{
		Subjects:   cfg.Data.IDs(),
		StartTrial: startTrial,
		MaxTrials:  maxTrials,
	})
}

func printSummary(w io.Writer, s search.Summary) {
	if s.RunID == "" {
		return
	}
	_, _ = fmt.Fprintf(w, "Run %s (%s, metric %s)\n", s.RunID, s.Strategy, s.Metric)
	_, _ = fmt.Fprintf(w, "  resumed at trial %d of %d\n", s.Resumed, s.Total)
	_, _ = fmt.Fprintf(w, "  this run: %d complete, %d pruned, %d failed\n", s.Completed, s.Pruned, s.Failed)
	if s.Best != nil {
		_, _ = fmt.Fprintf(w, "  best: trial %d, %s %.4f\n", s.Best.ID, s.Metric, s.Best.Objective)
	}
	if s.Interrupted {
		_, _ = fmt.Fprintln(w, "  interrupted")
	}
}
