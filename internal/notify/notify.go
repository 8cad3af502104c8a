// Package notify announces finished trials to interested listeners.
package notify

import (
	"context"
	"time"

	"git.home.luguber.info/inful/detecttune/internal/params"
	"git.home.luguber.info/inful/detecttune/internal/trial"
)

// DefaultSubject is the NATS subject trial events are published on.
const DefaultSubject = "detecttune.trials"

// TrialEvent is published once per persisted trial.
type TrialEvent struct {
	RunID      string       `json:"run_id"`
	Strategy   string       `json:"strategy"`
	Metric     string       `json:"metric"`
	TrialID    int          `json:"trial_id"`
	Status     trial.Status `json:"status"`
	Fraction   float64      `json:"fraction"`
	Objective  float64      `json:"objective"`
	Counts     trial.Counts `json:"counts"`
	Scores     trial.Scores `json:"scores"`
	Params     params.Set   `json:"params"`
	DurationMS int64        `json:"duration_ms"`
	FinishedAt time.Time    `json:"finished_at"`
	// Best marks a trial that improved on every earlier complete trial.
	Best bool `json:"best,omitempty"`
}

// Publisher delivers trial events. Failures never affect the search.
type Publisher interface {
	Publish(ctx context.Context, ev TrialEvent) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, TrialEvent) error { return nil }
func (Noop) Close() error                              { return nil }
