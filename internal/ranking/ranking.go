// Package ranking orders persisted trials and replays the best of them.
package ranking

import (
	"slices"

	"git.home.luguber.info/inful/detecttune/internal/store"
	"git.home.luguber.info/inful/detecttune/internal/trial"
)

// DefaultTopK is the number of trials reported when no limit is given.
const DefaultTopK = 10

// Better reports whether a ranks ahead of b under metric: higher value
// first, lower trial id on ties.
func Better(a, b store.TrialRow, metric trial.Metric) bool {
	va, vb := a.Scores.Value(metric), b.Scores.Value(metric)
	if va != vb {
		return va > vb
	}
	return a.ID < b.ID
}

// Rank returns the complete trials of rows ordered by metric. Pruned and
// failed trials never rank.
func Rank(rows []store.TrialRow, metric trial.Metric) []store.TrialRow {
	out := make([]store.TrialRow, 0, len(rows))
	for _, r := range rows {
		if r.Status == trial.StatusComplete {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b store.TrialRow) int {
		switch {
		case Better(a, b, metric):
			return -1
		case Better(b, a, metric):
			return 1
		}
		return 0
	})
	return out
}

// TopK returns at most k ranked trials; k <= 0 selects DefaultTopK.
func TopK(rows []store.TrialRow, metric trial.Metric, k int) []store.TrialRow {
	if k <= 0 {
		k = DefaultTopK
	}
	ranked := Rank(rows, metric)
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// Best returns the top complete trial, if any.
func Best(rows []store.TrialRow, metric trial.Metric) (store.TrialRow, bool) {
	var best store.TrialRow
	found := false
	for _, r := range rows {
		if r.Status != trial.StatusComplete {
			continue
		}
		if !found || Better(r, best, metric) {
			best, found = r, true
		}
	}
	return best, found
}
