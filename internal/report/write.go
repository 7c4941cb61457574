package report

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ridgetop-obs/astroreduce/internal/fsutil"
	"github.com/ridgetop-obs/astroreduce/internal/reduce"
)

// Write renders the full report bundle under dir: report.html with the
// outcome charts, summary.json, and one pixel histogram PNG per
// master. runID may be empty when the run was not cataloged. The
// summary is returned so callers can log its counts without redoing
// the fold.
func Write(fsys fsutil.FileSystem, dir, runID string, res *reduce.Result) (*Summary, error) {
	s := Summarize(res)
	s.RunID = runID

	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir %s: %w", dir, err)
	}
	if err := writeJSON(fsys, filepath.Join(dir, "summary.json"), s); err != nil {
		return nil, err
	}
	if err := WriteHTML(fsys, filepath.Join(dir, "report.html"), s); err != nil {
		return nil, err
	}

	for _, d := range res.Masters.Darks {
		if d.Frame == nil || d.Frame.Image == nil {
			continue
		}
		if err := WriteHistogram(fsys, filepath.Join(dir, pngName(d.Name)), d.Name, d.Frame.Image); err != nil {
			return nil, err
		}
	}
	for _, f := range res.Masters.Flats {
		if f.Frame == nil || f.Frame.Image == nil {
			continue
		}
		if err := WriteHistogram(fsys, filepath.Join(dir, pngName(f.Name)), f.Name, f.Frame.Image); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func writeJSON(fsys fsutil.FileSystem, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return fsys.WriteFile(path, append(data, '\n'), 0o644)
}

func pngName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".png"
}
