package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
)

var leadingColumns = []string{"trial_id", "status", "fraction"}

var trailingColumns = []string{
	"tp", "fp", "fn",
	"precision", "recall", "f1", "balanced",
	"objective", "step_objectives",
	"subjects", "failed_subjects",
	"duration_ms", "error",
}

// CSVHeader returns the table header for the given parameter columns.
func CSVHeader(paramColumns []string) []string {
	header := make([]string, 0, len(leadingColumns)+len(paramColumns)+len(trailingColumns))
	header = append(header, leadingColumns...)
	header = append(header, paramColumns...)
	return append(header, trailingColumns...)
}

func csvRecord(r TrialRow) []string {
	steps := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		steps[i] = formatScore(s.Objective)
	}
	failed := make([]string, len(r.FailedSubjects))
	for i, id := range r.FailedSubjects {
		failed[i] = strconv.Itoa(id)
	}

	rec := []string{strconv.Itoa(r.ID), string(r.Status), formatScore(r.Fraction)}
	rec = append(rec, r.Params.Values()...)
	return append(rec,
		strconv.Itoa(r.Counts.TP),
		strconv.Itoa(r.Counts.FP),
		strconv.Itoa(r.Counts.FN),
		formatScore(r.Scores.Precision),
		formatScore(r.Scores.Recall),
		formatScore(r.Scores.F1),
		formatScore(r.Scores.Balanced),
		formatScore(r.Objective),
		strings.Join(steps, ";"),
		strconv.Itoa(r.Subjects),
		strings.Join(failed, ";"),
		strconv.FormatInt(r.Duration().Milliseconds(), 10),
		r.Error,
	)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCSV writes the header and one record per row.
func WriteCSV(w io.Writer, paramColumns []string, rows []TrialRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader(paramColumns)); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(csvRecord(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// csvMirror appends rows to a CSV file as they are committed.
type csvMirror struct {
	path string
	file *os.File
	w    *csv.Writer
	rows int
}

// openCSVMirror opens path for appending. An existing file must carry
// header; a new file gets it written.
func openCSVMirror(path string, header []string) (*csvMirror, error) {
	rows, err := checkCSV(path, header)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv mirror: %w", err)
	}
	m := &csvMirror{path: path, file: f, w: csv.NewWriter(f), rows: rows}
	if rows < 0 {
		if err := m.write(header); err != nil {
			_ = f.Close()
			return nil, err
		}
		m.rows = 0
	}
	return m, nil
}

// checkCSV returns the data row count of an existing file, or -1 when the
// file does not exist or is empty.
func checkCSV(path string, header []string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open csv mirror: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	got, err := r.Read()
	if errors.Is(err, io.EOF) {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}
	if !slices.Equal(got, header) {
		return 0, inconsistent("csv header of %s does not match the current parameter columns", path)
	}
	n := 0
	for {
		if _, err := r.Read(); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return 0, fmt.Errorf("read csv row %d: %w", n+1, err)
		}
		n++
	}
	return n, nil
}

func (m *csvMirror) write(rec []string) error {
	if err := m.w.Write(rec); err != nil {
		return fmt.Errorf("write csv mirror: %w", err)
	}
	m.w.Flush()
	if err := m.w.Error(); err != nil {
		return fmt.Errorf("flush csv mirror: %w", err)
	}
	return nil
}

func (m *csvMirror) append(r TrialRow) error {
	if err := m.write(csvRecord(r)); err != nil {
		return err
	}
	m.rows++
	return nil
}

func (m *csvMirror) close() error {
	return m.file.Close()
}
