// Package report renders ranked trials as Markdown or HTML.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"git.home.luguber.info/inful/detecttune/internal/foundation/normalization"
	"git.home.luguber.info/inful/detecttune/internal/params"
	"git.home.luguber.info/inful/detecttune/internal/ranking"
	"git.home.luguber.info/inful/detecttune/internal/store"
	"git.home.luguber.info/inful/detecttune/internal/trial"
)

// Format selects the output format.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
)

var formatNormalizer = normalization.NewNormalizer("report format", map[string]Format{
	"md":       FormatMarkdown,
	"markdown": FormatMarkdown,
	"html":     FormatHTML,
}, FormatMarkdown)

// ParseFormat accepts a format name; empty input selects Markdown.
func ParseFormat(raw string) (Format, error) { return formatNormalizer.Parse(raw) }

// Data is everything a report shows.
type Data struct {
	Meta        store.Meta
	Metric      trial.Metric
	Rows        []store.TrialRow // every persisted trial
	Items       []ranking.Item   // ranked trials, best first
	GeneratedAt time.Time
}

type statusCounts struct {
	Complete, Pruned, Failed int
}

func (d Data) counts() statusCounts {
	var c statusCounts
	for _, r := range d.Rows {
		switch r.Status {
		case trial.StatusComplete:
			c.Complete++
		case trial.StatusPruned:
			c.Pruned++
		default:
			c.Failed++
		}
	}
	return c
}

const markdownTemplate = `# Detector tuning report

- Run: {{ .Data.Meta.RunID }}
- Strategy: {{ .Data.Meta.Strategy }}
- Ranked by: {{ .Data.Metric }}
- Trials: {{ num (len .Data.Rows) }} ({{ num .Counts.Complete }} complete, {{ num .Counts.Pruned }} pruned, {{ num .Counts.Failed }} failed)
- Generated: {{ .Data.GeneratedAt.Format "2006-01-02 15:04:05 MST" }}

## Top {{ len .Data.Items }}

| Rank | Trial | {{ .Metric }} | Precision | Recall | F1 | TP | FP | FN |
|---:|---:|---:|---:|---:|---:|---:|---:|---:|
{{- range $i, $it := .Data.Items }}
| {{ inc $i }} | {{ $it.Row.ID }} | {{ score ($it.Row.Scores.Value $.Data.Metric) }} | {{ score $it.Row.Scores.Precision }} | {{ score $it.Row.Scores.Recall }} | {{ score $it.Row.Scores.F1 }} | {{ num $it.Row.Counts.TP }} | {{ num $it.Row.Counts.FP }} | {{ num $it.Row.Counts.FN }} |
{{- end }}
{{ range $i, $it := .Data.Items }}
## {{ inc $i }}. Trial {{ $it.Row.ID }}

| Parameter | Value |
|---|---|
{{- range $p := paramRows $it.Row.Params }}
| {{ index $p 0 }} | {{ index $p 1 }} |
{{- end }}
{{ if $it.Empty }}
No per-subject breakdown is available for this trial.
{{ else }}
{{- if $it.Replayed }}
Breakdown recomputed from a fresh run.
{{ end }}
| Subject | Ground truth | TP | FP | FN | Precision | Recall |
|---:|---:|---:|---:|---:|---:|---:|
{{- range $p := $it.Detail.Patients }}
| {{ $p.SubjectID }} | {{ num $p.GroundTruthTotal }} | {{ num $p.Counts.TP }} | {{ num $p.Counts.FP }} | {{ num $p.Counts.FN }} | {{ score $p.Precision }} | {{ score $p.Recall }} |
{{- end }}
{{ if $it.Detail.FailedSubjects }}
Failed subjects: {{ ints $it.Detail.FailedSubjects }}
{{ end }}
{{- end }}
{{- end }}`

// Renderer turns report data into Markdown or HTML.
type Renderer struct {
	printer *message.Printer
	tmpl    *template.Template
	md      goldmark.Markdown
}

// NewRenderer builds a renderer formatting numbers for tag.
func NewRenderer(tag language.Tag) *Renderer {
	r := &Renderer{
		printer: message.NewPrinter(tag),
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
	r.tmpl = template.Must(template.New("report").Funcs(template.FuncMap{
		"num":       func(n int) string { return r.printer.Sprintf("%d", n) },
		"score":     func(v float64) string { return r.printer.Sprintf("%.4f", v) },
		"inc":       func(i int) int { return i + 1 },
		"paramRows": paramRows,
		"ints":      joinInts,
	}).Parse(markdownTemplate))
	return r
}

func paramRows(s params.Set) [][2]string {
	values := s.Values()
	out := make([][2]string, len(params.ColumnNames))
	for i, name := range params.ColumnNames {
		out[i] = [2]string{name, values[i]}
	}
	return out
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}

// Markdown writes the report as Markdown.
func (r *Renderer) Markdown(w io.Writer, d Data) error {
	if d.GeneratedAt.IsZero() {
		d.GeneratedAt = time.Now().UTC()
	}
	return r.tmpl.Execute(w, struct {
		Data   Data
		Counts statusCounts
		Metric trial.Metric
	}{Data: d, Counts: d.counts(), Metric: d.Metric})
}

// HTML writes the report as a standalone HTML document.
func (r *Renderer) HTML(w io.Writer, d Data) error {
	var src bytes.Buffer
	if err := r.Markdown(&src, d); err != nil {
		return err
	}
	var body bytes.Buffer
	if err := r.md.Convert(src.Bytes(), &body); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	_, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Detector tuning report</title></head>\n<body>\n%s</body></html>\n", body.Bytes())
	return err
}

// Render writes d in format f.
func (r *Renderer) Render(w io.Writer, f Format, d Data) error {
	if f == FormatHTML {
		return r.HTML(w, d)
	}
	return r.Markdown(w, d)
}
