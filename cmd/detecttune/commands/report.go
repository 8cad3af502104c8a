package commands

import (
	"io"
	"time"

	"golang.org/x/text/language"

	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
	"git.home.luguber.info/inful/detecttune/internal/ranking"
	"git.home.luguber.info/inful/detecttune/internal/report"
)

// ReportCmd implements the 'report' command.
type ReportCmd struct {
	Top    int    `help:"Number of trials to include" default:"10"`
	Format string `help:"Output format (md, html)" default:"md"`
	Metric string `help:"Metric to rank by; defaults to the run's metric"`
	Lang   string `help:"Language tag for number formatting" default:"en"`
	Force  bool   `help:"Re-run trials whose stored events were truncated"`
	Out    string `short:"o" help:"Output file; stdout when empty" type:"path"`
}

func (r *ReportCmd) Run(g *Global, root *CLI) error {
	format, err := report.ParseFormat(r.Format)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryValidation, "invalid --format").UserAction().Build()
	}
	tag, err := language.Parse(r.Lang)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryValidation, "invalid --lang").UserAction().Build()
	}

	cfg, logger, err := loadConfig(root)
	if err != nil {
		return err
	}
	results, err := openResults(cfg, logger)
	if err != nil {
		return err
	}
	defer closeResults(results, logger)

	metric, err := rankingMetric(g.Ctx, r.Metric, results, cfg)
	if err != nil {
		return err
	}
	rows, err := results.Rows(g.Ctx)
	if err != nil {
		return err
	}
	meta, err := results.ReadMeta(g.Ctx)
	if err != nil && len(rows) > 0 {
		return err
	}

	replayer, err := newReplayer(cfg, results, metric, logger)
	if err != nil {
		return err
	}
	replayer.Force = r.Force

	data := report.Data{
		Meta:        meta,
		Metric:      metric,
		Rows:        rows,
		Items:       replayer.Replay(g.Ctx, ranking.TopK(rows, metric, r.Top)),
		GeneratedAt: time.Now().UTC(),
	}
	renderer := report.NewRenderer(tag)
	return writeOutput(r.Out, func(w io.Writer) error {
		return renderer.Render(w, format, data)
	})
}
