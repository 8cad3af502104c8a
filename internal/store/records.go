package store

import (
	"slices"
	"time"

	"git.home.luguber.info/inful/detecttune/internal/matcher"
	"git.home.luguber.info/inful/detecttune/internal/params"
	"git.home.luguber.info/inful/detecttune/internal/trial"
)

// SchemaVersion is bumped whenever TrialRow or TrialDetail change shape.
const SchemaVersion = 1

// Meta describes the run a store belongs to.
type Meta struct {
	SchemaVersion int       `json:"schema_version"`
	RunID         string    `json:"run_id"`
	Strategy      string    `json:"strategy"`
	Metric        string    `json:"metric"`
	Columns       []string  `json:"columns"`
	CreatedAt     time.Time `json:"created_at"`
}

// compatible reports why other cannot continue m, or "" when it can.
func (m Meta) compatible(other Meta) string {
	switch {
	case m.SchemaVersion != other.SchemaVersion:
		return "schema version"
	case m.Strategy != other.Strategy:
		return "strategy"
	case m.Metric != other.Metric:
		return "metric"
	case !slices.Equal(m.Columns, other.Columns):
		return "parameter columns"
	}
	return ""
}

// TrialRow is one line of the trial table.
type TrialRow struct {
	ID             int          `json:"id"`
	Status         trial.Status `json:"status"`
	Params         params.Set   `json:"params"`
	Fraction       float64      `json:"fraction"`
	Counts         trial.Counts `json:"counts"`
	Scores         trial.Scores `json:"scores"`
	Objective      float64      `json:"objective"`
	Steps          []trial.Step `json:"steps,omitempty"`
	Subjects       int          `json:"subjects"`
	FailedSubjects []int        `json:"failed_subjects,omitempty"`
	Error          string       `json:"error,omitempty"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     time.Time    `json:"finished_at"`
}

// Duration is the wall time the trial took.
func (r TrialRow) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// TrialDetail is the inspection record of one trial. Event lists may be
// truncated; counts are always exact.
type TrialDetail struct {
	ID               int                   `json:"id"`
	Status           trial.Status          `json:"status"`
	Params           params.Set            `json:"params"`
	Fraction         float64               `json:"fraction"`
	Counts           trial.Counts          `json:"counts"`
	Scores           trial.Scores          `json:"scores"`
	GroundTruthTotal int                   `json:"ground_truth_total"`
	Patients         []trial.PatientResult `json:"patients"`
	FailedSubjects   []int                 `json:"failed_subjects,omitempty"`
	Truncated        bool                  `json:"truncated,omitempty"`
}

// RowFromTrial projects t onto its table row.
func RowFromTrial(t trial.Trial) TrialRow {
	return TrialRow{
		ID:             t.ID,
		Status:         t.Status,
		Params:         t.Params,
		Fraction:       t.Fraction,
		Counts:         t.Counts,
		Scores:         t.Scores,
		Objective:      t.Objective,
		Steps:          t.Steps,
		Subjects:       len(t.Patients),
		FailedSubjects: t.FailedSubjects,
		Error:          t.Error,
		StartedAt:      t.StartedAt,
		FinishedAt:     t.FinishedAt,
	}
}

// DetailFromTrial builds the detail record of t keeping at most limit events
// of each kind per subject. A limit of zero keeps every event.
func DetailFromTrial(t trial.Trial, limit int) TrialDetail {
	d := TrialDetail{
		ID:             t.ID,
		Status:         t.Status,
		Params:         t.Params,
		Fraction:       t.Fraction,
		Counts:         t.Counts,
		Scores:         t.Scores,
		Patients:       make([]trial.PatientResult, len(t.Patients)),
		FailedSubjects: t.FailedSubjects,
	}
	for i, p := range t.Patients {
		d.GroundTruthTotal += p.GroundTruthTotal
		events, cut := truncateEvents(p.Events, limit)
		p.Events = events
		d.Truncated = d.Truncated || cut
		d.Patients[i] = p
	}
	return d
}

func truncateEvents(events []matcher.Event, limit int) ([]matcher.Event, bool) {
	if limit <= 0 {
		return events, false
	}
	seen := map[matcher.Kind]int{}
	out := make([]matcher.Event, 0, min(len(events), 3*limit))
	cut := false
	for _, e := range events {
		if seen[e.Kind] >= limit {
			cut = true
			continue
		}
		seen[e.Kind]++
		out = append(out, e)
	}
	return out, cut
}
