package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"git.home.luguber.info/inful/detecttune/internal/ranking"
	"git.home.luguber.info/inful/detecttune/internal/store"
	"git.home.luguber.info/inful/detecttune/internal/trial"
)

// AnalyzeCmd implements the 'analyze' command.
type AnalyzeCmd struct {
	Top    int    `help:"Number of trials to show" default:"10"`
	Metric string `help:"Metric to rank by (f1, precision, recall, balanced); defaults to the run's metric"`
}

func (a *AnalyzeCmd) Run(g *Global, root *CLI) error {
	cfg, logger, err := loadConfig(root)
	if err != nil {
		return err
	}
	results, err := openResults(cfg, logger)
	if err != nil {
		return err
	}
	defer closeResults(results, logger)

	metric, err := rankingMetric(g.Ctx, a.Metric, results, cfg)
	if err != nil {
		return err
	}
	rows, err := results.Rows(g.Ctx)
	if err != nil {
		return err
	}
	printRanking(os.Stdout, rows, metric, a.Top)
	return nil
}

func printRanking(w io.Writer, rows []store.TrialRow, metric trial.Metric, k int) {
	top := ranking.TopK(rows, metric, k)
	complete := len(ranking.Rank(rows, metric))
	_, _ = fmt.Fprintf(w, "%d trials stored, %d complete; top %d by %s\n\n", len(rows), complete, len(top), metric)
	if len(top) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RANK\tTRIAL\tVALUE\tF1\tPRECISION\tRECALL\tTP\tFP\tFN\tPARAMS")
	for i, r := range top {
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%.4f\t%.4f\t%.4f\t%.4f\t%d\t%d\t%d\t%s\n",
			i+1, r.ID, r.Scores.Value(metric), r.Scores.F1, r.Scores.Precision, r.Scores.Recall,
			r.Counts.TP, r.Counts.FP, r.Counts.FN, r.Params)
	}
	_ = tw.Flush()
}
