package commands

import (
	"bufio"
	"io"
	"os"

	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
	"git.home.luguber.info/inful/detecttune/internal/params"
)

// ExportCmd implements the 'export' command.
type ExportCmd struct {
	Out string `short:"o" help:"Output file; stdout when empty" type:"path"`
}

func (e *ExportCmd) Run(g *Global, root *CLI) error {
	cfg, logger, err := loadConfig(root)
	if err != nil {
		return err
	}
	results, err := openResults(cfg, logger)
	if err != nil {
		return err
	}
	defer closeResults(results, logger)

	return writeOutput(e.Out, func(w io.Writer) error {
		return results.ExportCSV(g.Ctx, w, params.ColumnNames)
	})
}

// writeOutput runs write against path, or stdout when path is empty.
func writeOutput(path string, write func(io.Writer) error) error {
	if path == "" {
		bw := bufio.NewWriter(os.Stdout)
		if err := write(bw); err != nil {
			return err
		}
		return bw.Flush()
	}
	f, err := os.Create(path)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryValidation, "create output file").
			WithContext("path", path).
			Build()
	}
	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		_ = f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
