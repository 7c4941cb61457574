package report

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/ridgetop-obs/astroreduce/internal/frame"
	"github.com/ridgetop-obs/astroreduce/internal/fsutil"
)

// WriteHTML renders the outcome charts for s as a single HTML page at
// path. The page pulls the echarts runtime from the default assets
// host, so it needs a network connection to display.
func WriteHTML(fsys fsutil.FileSystem, path string, s *Summary) error {
	page := components.NewPage()
	page.PageTitle = "astroreduce run report"
	page.AddCharts(outcomeChart(s), filterChart(s), groupChart(s))
	if c := darkLevelChart(s); c != nil {
		page.AddCharts(c)
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return fsys.WriteFile(path, buf.Bytes(), 0o644)
}

// outcomeChart tallies every frame record in the run by status,
// calibration frames included.
func outcomeChart(s *Summary) *charts.Bar {
	x := make([]string, 0, len(statusOrder))
	y := make([]opts.BarData, 0, len(statusOrder))
	for _, st := range statusOrder {
		x = append(x, string(st))
		y = append(y, opts.BarData{Value: s.StatusCounts[string(st)]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Frame outcomes", Subtitle: runSubtitle(s)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("frames", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// groupChart breaks light outcomes down by observation group.
func groupChart(s *Summary) *charts.Bar {
	x := make([]string, 0, len(s.Groups))
	corrected := make([]opts.BarData, 0, len(s.Groups))
	skipped := make([]opts.BarData, 0, len(s.Groups))
	failed := make([]opts.BarData, 0, len(s.Groups))
	for _, g := range s.Groups {
		x = append(x, g.Key)
		corrected = append(corrected, opts.BarData{Value: g.Corrected})
		skipped = append(skipped, opts.BarData{Value: g.Skipped})
		failed = append(failed, opts.BarData{Value: g.Failed})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Lights by group", Subtitle: fmt.Sprintf("%d groups", len(s.Groups))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("corrected", corrected).
		AddSeries("skipped", skipped).
		AddSeries("failed", failed)
	return bar
}

// filterChart tallies flats and lights by filter. A filter with flats
// but no lights (or the reverse) stands out here before anyone goes
// looking for a missing master.
func filterChart(s *Summary) *charts.Bar {
	filters := make([]string, 0, len(s.FilterCounts))
	for f := range s.FilterCounts {
		filters = append(filters, f)
	}
	sort.Strings(filters)

	y := make([]opts.BarData, 0, len(filters))
	for _, f := range filters {
		y = append(y, opts.BarData{Value: s.FilterCounts[f]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Frames per filter", Subtitle: "flats and lights with a declared filter"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(filters).
		AddSeries("frames", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// darkLevelChart plots the mean pixel level of each master dark
// against its exposure group. Dark current scales with exposure, so a
// bar out of line hints at a light leak or a mislabelled frame.
// Returns nil when the run had no master darks.
func darkLevelChart(s *Summary) *charts.Bar {
	x := make([]string, 0, len(s.Masters))
	y := make([]opts.BarData, 0, len(s.Masters))
	for _, m := range s.Masters {
		if m.Kind != frame.MasterDark.String() {
			continue
		}
		x = append(x, m.Group)
		y = append(y, opts.BarData{Value: m.Stats.Mean})
	}
	if len(x) == 0 {
		return nil
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Master dark level by exposure", Subtitle: "mean pixel value per master dark"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("mean level", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

func runSubtitle(s *Summary) string {
	sub := fmt.Sprintf("%s, took %s", s.StartedAt.Format(time.RFC3339), s.Duration.Round(time.Millisecond))
	if s.RunID != "" {
		sub = "run " + s.RunID + ": " + sub
	}
	return sub
}
