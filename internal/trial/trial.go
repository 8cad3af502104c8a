// Package trial evaluates one detector configuration over a set of subjects
// and aggregates the per-subject outcomes into a trial.
package trial

import (
	"time"

	"git.home.luguber.info/inful/detecttune/internal/matcher"
	"git.home.luguber.info/inful/detecttune/internal/params"
)

// Status is the terminal state of a trial.
type Status string

const (
	StatusComplete Status = "complete"
	StatusPruned   Status = "pruned"
	StatusFailed   Status = "failed"
)

// PatientResult is the outcome for one subject.
type PatientResult struct {
	SubjectID        int             `json:"subject_id"`
	Counts           Counts          `json:"counts"`
	GroundTruthTotal int             `json:"ground_truth_total"`
	Precision        float64         `json:"precision"`
	Recall           float64         `json:"recall"`
	Events           []matcher.Event `json:"events,omitempty"`
}

// Step is the aggregate of one data fraction.
type Step struct {
	Index          int     `json:"index"`
	Fraction       float64 `json:"fraction"`
	Counts         Counts  `json:"counts"`
	Scores         Scores  `json:"scores"`
	Objective      float64 `json:"objective"`
	Subjects       int     `json:"subjects"`
	FailedSubjects []int   `json:"failed_subjects,omitempty"`
}

// Trial is one evaluated parameter set. Counts, Scores and Objective belong
// to the last evaluated step; Patients holds that step's breakdown.
type Trial struct {
	ID             int             `json:"id"`
	Params         params.Set      `json:"params"`
	Status         Status          `json:"status"`
	Fraction       float64         `json:"fraction"`
	Counts         Counts          `json:"counts"`
	Scores         Scores          `json:"scores"`
	Objective      float64         `json:"objective"`
	Steps          []Step          `json:"steps,omitempty"`
	Patients       []PatientResult `json:"patients,omitempty"`
	FailedSubjects []int           `json:"failed_subjects,omitempty"`
	Error          string          `json:"error,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}

// Record folds a step outcome into t as its latest step.
func (t *Trial) Record(o Outcome, metric Metric) Step {
	step := Step{
		Index:          len(t.Steps),
		Fraction:       o.Fraction,
		Counts:         o.Counts,
		Scores:         o.Scores,
		Objective:      o.Scores.Value(metric),
		Subjects:       len(o.Patients),
		FailedSubjects: o.Failed,
	}
	t.Steps = append(t.Steps, step)
	t.Fraction = o.Fraction
	t.Counts = o.Counts
	t.Scores = o.Scores
	t.Objective = step.Objective
	t.Patients = o.Patients
	t.FailedSubjects = o.Failed
	return step
}

// Objectives returns the per-step objective values.
func (t *Trial) Objectives() []float64 {
	out := make([]float64, len(t.Steps))
	for i, s := range t.Steps {
		out[i] = s.Objective
	}
	return out
}
