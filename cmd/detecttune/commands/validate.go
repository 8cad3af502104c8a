package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
	"git.home.luguber.info/inful/detecttune/internal/logfields"
	"git.home.luguber.info/inful/detecttune/internal/subject"
)

// ValidateCmd implements the 'validate' command: it loads every configured
// subject and reports signal length and ground-truth size.
type ValidateCmd struct{}

func (v *ValidateCmd) Run(g *Global, root *CLI) error {
	cfg, logger, err := loadConfig(root)
	if err != nil {
		return err
	}
	summaries, err := subject.Preflight(g.Ctx, newSource(cfg), cfg.Data.IDs(), cfg.Evaluation.Workers)
	if err != nil {
		return err
	}
	failed := printPreflight(os.Stdout, summaries)
	for _, s := range summaries {
		if s.Err != nil {
			logger.Warn("Subject failed to load", logfields.SubjectID(s.ID), logfields.Error(s.Err))
		}
	}
	if failed > 0 {
		return derrors.SubjectError(fmt.Sprintf("%d of %d subjects failed to load", failed, len(summaries))).
			WithContext("failed", failed).
			UserAction().
			Build()
	}
	return nil
}

func printPreflight(w io.Writer, summaries []subject.Summary) int {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SUBJECT\tSAMPLES\tGROUND TRUTH\tSTATUS")
	failed := 0
	for _, s := range summaries {
		status := "ok"
		if s.Err != nil {
			status = "error: " + s.Err.Error()
			failed++
		}
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", s.ID, s.Samples, s.GroundTruth, status)
	}
	_ = tw.Flush()
	return failed
}
