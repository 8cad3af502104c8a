// Package subject loads per-subject recordings and their ground-truth event
// markers, converted to the detector's canonical sample rate.
package subject

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Marker is one ground-truth event: its index at the canonical rate and the
// raw marker value it was derived from.
type Marker struct {
	Index  int64 `json:"index"`
	Marker int64 `json:"marker"`
}

// GroundTruth is ordered by ascending canonical index with unique indices.
type GroundTruth []Marker

// NewGroundTruth converts raw markers sampled at markerRate to canonicalRate
// (truncating toward zero). Markers that collapse onto the same canonical
// index keep the last raw value.
func NewGroundTruth(raw []int64, markerRate, canonicalRate float64) GroundTruth {
	byIndex := make(map[int64]int64, len(raw))
	for _, m := range raw {
		byIndex[int64(float64(m)*canonicalRate/markerRate)] = m
	}
	gt := make(GroundTruth, 0, len(byIndex))
	for idx, m := range byIndex {
		gt = append(gt, Marker{Index: idx, Marker: m})
	}
	sort.Slice(gt, func(i, j int) bool { return gt[i].Index < gt[j].Index })
	return gt
}

// Indices returns the canonical indices in order.
func (g GroundTruth) Indices() []int64 {
	out := make([]int64, len(g))
	for i, m := range g {
		out[i] = m.Index
	}
	return out
}

// Truncate drops markers at or beyond n samples.
func (g GroundTruth) Truncate(n int) GroundTruth {
	cut := sort.Search(len(g), func(i int) bool { return g[i].Index >= int64(n) })
	return g[:cut:cut]
}

// ParseMarkers reads a marker file: one header line, then one event per line
// whose first whitespace-separated token is the marker index. Blank lines are
// skipped.
func ParseMarkers(r io.Reader) ([]int64, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read marker header: %w", err)
		}
		return nil, nil
	}
	var out []int64
	line := 1
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		v, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("marker line %d: %w", line, err)
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read markers: %w", err)
	}
	return out, nil
}
