package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
	"git.home.luguber.info/inful/detecttune/internal/ranking"
	"git.home.luguber.info/inful/detecttune/internal/store"
)

// SummaryCmd implements the 'summary' command.
type SummaryCmd struct {
	Trial int  `help:"Trial id; the best trial when negative" default:"-1"`
	Force bool `help:"Re-run the trial when its stored events were truncated"`
}

func (s *SummaryCmd) Run(g *Global, root *CLI) error {
	cfg, logger, err := loadConfig(root)
	if err != nil {
		return err
	}
	results, err := openResults(cfg, logger)
	if err != nil {
		return err
	}
	defer closeResults(results, logger)

	metric, err := rankingMetric(g.Ctx, "", results, cfg)
	if err != nil {
		return err
	}
	var row store.TrialRow
	if s.Trial < 0 {
		rows, err := results.Rows(g.Ctx)
		if err != nil {
			return err
		}
		best, ok := ranking.Best(rows, metric)
		if !ok {
			return derrors.NotFoundError("no complete trial in the result store").Build()
		}
		row = best
	} else if row, err = results.Row(g.Ctx, s.Trial); err != nil {
		return err
	}

	replayer, err := newReplayer(cfg, results, metric, logger)
	if err != nil {
		return err
	}
	replayer.Force = s.Force
	item := replayer.Replay(g.Ctx, []store.TrialRow{row})[0]
	printItem(os.Stdout, item)
	return nil
}

func printItem(w io.Writer, it ranking.Item) {
	r := it.Row
	_, _ = fmt.Fprintf(w, "Trial %d (%s, fraction %g)\n", r.ID, r.Status, r.Fraction)
	_, _ = fmt.Fprintf(w, "  params: %s\n", r.Params)
	_, _ = fmt.Fprintf(w, "  tp %d  fp %d  fn %d  precision %.4f  recall %.4f  f1 %.4f\n",
		r.Counts.TP, r.Counts.FP, r.Counts.FN, r.Scores.Precision, r.Scores.Recall, r.Scores.F1)
	if r.Error != "" {
		_, _ = fmt.Fprintf(w, "  error: %s\n", r.Error)
	}
	if it.Empty {
		_, _ = fmt.Fprintln(w, "\nNo per-subject breakdown is available for this trial.")
		return
	}
	if it.Replayed {
		_, _ = fmt.Fprintln(w, "  breakdown recomputed from a fresh run")
	}
	if it.Detail.Truncated {
		_, _ = fmt.Fprintln(w, "  stored event lists are truncated")
	}
	_, _ = fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SUBJECT\tGT\tTP\tFP\tFN\tPRECISION\tRECALL")
	for _, p := range it.Detail.Patients {
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%.4f\t%.4f\n",
			p.SubjectID, p.GroundTruthTotal, p.Counts.TP, p.Counts.FP, p.Counts.FN, p.Precision, p.Recall)
	}
	_ = tw.Flush()
	if len(it.Detail.FailedSubjects) > 0 {
		_, _ = fmt.Fprintf(w, "failed subjects: %v\n", it.Detail.FailedSubjects)
	}
}
