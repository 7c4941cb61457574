package reduce

import (
	"math"
	"sync"

	"github.com/ridgetop-obs/astroreduce/internal/frame"
)

// MasterDark is a combined or loaded master dark keyed by its rounded
// exposure time.
type MasterDark struct {
	Key   int
	Name  string
	Path  string
	Frame *frame.Frame
}

// Loaded reports whether the master came off disk rather than being
// combined this run. Combining leaves the frame's Path empty until the
// sink assigns an output location.
func (m *MasterDark) Loaded() bool {
	return m.Frame != nil && m.Frame.Path != ""
}

// MasterFlat is a combined or loaded master flat keyed by its folded
// filter name. Normalization is computed once on first use and shared
// by every light group that divides by this flat.
type MasterFlat struct {
	Key   string
	Name  string
	Path  string
	Frame *frame.Frame

	normOnce sync.Once
	norm     *frame.Image
	normErr  error
}

// Loaded reports whether the master came off disk rather than being
// combined this run.
func (m *MasterFlat) Loaded() bool {
	return m.Frame != nil && m.Frame.Path != ""
}

// Normalized returns the flat divided by its own median, caching the
// result. Safe for concurrent use. A degenerate flat returns the same
// DegenerateFlatError on every call.
func (m *MasterFlat) Normalized() (*frame.Image, error) {
	m.normOnce.Do(func() {
		m.norm, m.normErr = NormalizeFlat(m.Frame)
	})
	return m.norm, m.normErr
}

// MasterSet holds the master frames available to a run, ordered by key.
type MasterSet struct {
	Darks []*MasterDark
	Flats []*MasterFlat
}

// NearestDark returns the master dark whose exposure key is closest to
// the given exposure time, or nil when the set has no darks. Ties
// resolve to the lower key, so a 25s light with 20s and 30s masters
// available is corrected with the 20s one.
func (s *MasterSet) NearestDark(exposureSecs float64) *MasterDark {
	var best *MasterDark
	var bestDist float64
	for _, d := range s.Darks {
		dist := math.Abs(exposureSecs - float64(d.Key))
		if best == nil || dist < bestDist {
			best = d
			bestDist = dist
		}
	}
	return best
}

// FlatFor returns the master flat matching the filter name, compared
// case-insensitively, or nil when no flat for that filter exists.
// Unlike darks there is no nearest match: a V-band light is never
// divided by an R-band flat.
func (s *MasterSet) FlatFor(filter string) *MasterFlat {
	want := FoldFilter(filter)
	for _, f := range s.Flats {
		if f.Key == want {
			return f
		}
	}
	return nil
}

func (s *MasterSet) darkByKey(key int) *MasterDark {
	for _, d := range s.Darks {
		if d.Key == key {
			return d
		}
	}
	return nil
}
