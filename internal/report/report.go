// Package report renders the post-run artifacts an observer checks
// before trusting a night's calibrated lights: an HTML page of outcome
// charts, a machine-readable summary, and a pixel histogram for every
// master calibration frame.
package report

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ridgetop-obs/astroreduce/internal/frame"
	"github.com/ridgetop-obs/astroreduce/internal/reduce"
)

// MasterSummary describes one master calibration frame a run used,
// whether combined during the run or loaded from an earlier one.
type MasterSummary struct {
	Kind     string           `json:"kind"`
	Group    string           `json:"group"`
	Name     string           `json:"name"`
	Path     string           `json:"path,omitempty"`
	Combined int              `json:"combined,omitempty"`
	Loaded   bool             `json:"loaded"`
	Stats    frame.ImageStats `json:"stats"`
}

// GroupSummary aggregates light outcomes for one observation group
// (object, exposure and filter).
type GroupSummary struct {
	Key       string `json:"key"`
	Total     int    `json:"total"`
	Corrected int    `json:"corrected"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// Summary is the run digest the report renders. Everything in it is
// derived from a pipeline result except RunID, which the caller fills
// in when the run is cataloged.
type Summary struct {
	RunID string `json:"run_id,omitempty"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration_ns"`

	Corrected       int   `json:"corrected"`
	Skipped         int   `json:"skipped"`
	Failed          int   `json:"failed"`
	NonFinitePixels int64 `json:"non_finite_pixels"`

	Warnings []string `json:"warnings,omitempty"`

	// StatusCounts and KindCounts tally every frame record in the run,
	// calibration frames included, keyed by status and kind name.
	// FilterCounts tallies the flats and lights that declared a filter.
	StatusCounts map[string]int `json:"status_counts"`
	KindCounts   map[string]int `json:"kind_counts"`
	FilterCounts map[string]int `json:"filter_counts"`

	Masters []MasterSummary `json:"masters"`
	Groups  []GroupSummary  `json:"groups"`
}

// Summarize folds a pipeline result into the digest the report
// renders. Masters appear in the pipeline's order: darks by exposure,
// then flats by filter.
func Summarize(res *reduce.Result) *Summary {
	s := &Summary{
		StartedAt:       res.StartedAt,
		FinishedAt:      res.FinishedAt,
		Duration:        res.FinishedAt.Sub(res.StartedAt),
		Corrected:       res.CorrectedLights,
		Skipped:         res.SkippedLights,
		Failed:          res.FailedLights,
		NonFinitePixels: res.NonFinitePixels,
		Warnings:        append([]string(nil), res.Warnings...),
		StatusCounts:    make(map[string]int),
		KindCounts:      make(map[string]int),
		FilterCounts:    make(map[string]int),
	}

	groups := make(map[string]*GroupSummary)
	for _, r := range res.Records {
		s.StatusCounts[string(r.Status)]++
		s.KindCounts[r.Kind.String()]++
		if filter, ok := recordFilter(r); ok {
			s.FilterCounts[filter]++
		}
		if r.Kind != frame.Light {
			continue
		}
		g := groups[r.Group]
		if g == nil {
			g = &GroupSummary{Key: r.Group}
			groups[r.Group] = g
		}
		g.Total++
		switch r.Status {
		case reduce.StatusCorrected:
			g.Corrected++
		case reduce.StatusSkipped:
			g.Skipped++
		case reduce.StatusFailed:
			g.Failed++
		}
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Groups = append(s.Groups, *groups[k])
	}

	for _, d := range res.Masters.Darks {
		s.Masters = append(s.Masters, masterSummary(
			frame.MasterDark, strconv.Itoa(d.Key)+"s", d.Name, d.Path, d.Frame, d.Loaded()))
	}
	for _, f := range res.Masters.Flats {
		s.Masters = append(s.Masters, masterSummary(
			frame.MasterFlat, f.Key, f.Name, f.Path, f.Frame, f.Loaded()))
	}

	return s
}

// recordFilter recovers the filter from a run record. Flat groups are
// the filter itself; light group keys end with it ("m42/60s/v").
// Darks have no filter and frames dropped before grouping have no key.
func recordFilter(r reduce.FrameRecord) (string, bool) {
	switch r.Kind {
	case frame.Flat, frame.MasterFlat:
		if r.Group != "" {
			return r.Group, true
		}
	case frame.Light:
		if i := strings.LastIndexByte(r.Group, '/'); i >= 0 {
			return r.Group[i+1:], true
		}
	}
	return "", false
}

func masterSummary(kind frame.Kind, group, name, path string, f *frame.Frame, loaded bool) MasterSummary {
	m := MasterSummary{
		Kind:   kind.String(),
		Group:  group,
		Name:   name,
		Path:   path,
		Loaded: loaded,
	}
	if f != nil {
		m.Combined = f.Combined
		m.Stats = f.Image.Stats()
	}
	return m
}

// statusOrder fixes the chart bar order so reports from different runs
// line up side by side.
var statusOrder = []reduce.Status{
	reduce.StatusCombined,
	reduce.StatusCorrected,
	reduce.StatusSkipped,
	reduce.StatusFailed,
}
