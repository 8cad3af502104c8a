package commands

import (
	"fmt"
	"io"
	"os"

	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
	"git.home.luguber.info/inful/detecttune/internal/ranking"
)

// BestCmd implements the 'best' command: it renders the detector
// configuration of the best complete trial.
type BestCmd struct {
	Out    string `short:"o" help:"Output YAML file; stdout when empty" type:"path"`
	Metric string `help:"Metric to rank by; defaults to the run's metric"`
}

func (b *BestCmd) Run(g *Global, root *CLI) error {
	cfg, logger, err := loadConfig(root)
	if err != nil {
		return err
	}
	results, err := openResults(cfg, logger)
	if err != nil {
		return err
	}
	defer closeResults(results, logger)

	metric, err := rankingMetric(g.Ctx, b.Metric, results, cfg)
	if err != nil {
		return err
	}
	rows, err := results.Rows(g.Ctx)
	if err != nil {
		return err
	}
	best, ok := ranking.Best(rows, metric)
	if !ok {
		return derrors.NotFoundError("no complete trial in the result store").
			WithContext("trials", len(rows)).
			Build()
	}
	data, err := newBuilder(cfg).Build(best.Params).YAML()
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryInternal, "render detector configuration").Build()
	}
	_, _ = fmt.Fprintf(os.Stderr, "Best trial %d: %s %.4f (%s)\n", best.ID, metric, best.Scores.Value(metric), best.Params)
	return writeOutput(b.Out, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
