package reduce

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ridgetop-obs/astroreduce/internal/frame"
)

// RoundExposure maps an exposure time in seconds to the integer key
// used to group dark frames. Rounding is half-to-even, so 10.5s darks
// land in the 10s group and 11.5s darks in the 12s group.
func RoundExposure(secs float64) int {
	return int(math.RoundToEven(secs))
}

// FoldFilter canonicalizes a filter name for grouping and matching.
// Filter comparison is case-insensitive throughout the pipeline.
func FoldFilter(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// GroupDarks buckets dark frames by rounded exposure time. A dark with
// no exposure time in its header (ExposureSecs is NaN) cannot be
// grouped and fails the call.
func GroupDarks(darks []*frame.Frame) (map[int][]*frame.Frame, error) {
	groups := make(map[int][]*frame.Frame)
	for _, d := range darks {
		if math.IsNaN(d.ExposureSecs) {
			return nil, &GroupingError{Path: d.Path, Kind: d.Kind, Missing: "exposure time"}
		}
		key := RoundExposure(d.ExposureSecs)
		groups[key] = append(groups[key], d)
	}
	return groups, nil
}

// GroupFlats buckets flat frames by folded filter name. A flat with no
// filter in its header fails the call.
func GroupFlats(flats []*frame.Frame) (map[string][]*frame.Frame, error) {
	groups := make(map[string][]*frame.Frame)
	for _, f := range flats {
		if f.Filter == "" {
			return nil, &GroupingError{Path: f.Path, Kind: f.Kind, Missing: "filter"}
		}
		key := FoldFilter(f.Filter)
		groups[key] = append(groups[key], f)
	}
	return groups, nil
}

// LightKey identifies a group of light frames that share a target
// object, an exact exposure time and a filter.
type LightKey struct {
	Object       string
	ExposureSecs float64
	Filter       string
}

// String renders the key for logs and run records, e.g. "ngc2264/60s/v".
func (k LightKey) String() string {
	return fmt.Sprintf("%s/%gs/%s", k.Object, k.ExposureSecs, k.Filter)
}

// GroupLights buckets light frames by (object, exposure, filter).
// Unlike darks, light exposure times are not rounded: frames shot at
// 59.8s and 60.2s are different groups even though both would match
// the same master dark. Lights missing an exposure time or filter
// fail the call.
func GroupLights(lights []*frame.Frame) (map[LightKey][]*frame.Frame, error) {
	groups := make(map[LightKey][]*frame.Frame)
	for _, l := range lights {
		if math.IsNaN(l.ExposureSecs) {
			return nil, &GroupingError{Path: l.Path, Kind: l.Kind, Missing: "exposure time"}
		}
		if l.Filter == "" {
			return nil, &GroupingError{Path: l.Path, Kind: l.Kind, Missing: "filter"}
		}
		key := LightKey{
			Object:       l.Object,
			ExposureSecs: l.ExposureSecs,
			Filter:       FoldFilter(l.Filter),
		}
		groups[key] = append(groups[key], l)
	}
	return groups, nil
}

// SortedDarkKeys returns the dark group keys in ascending order.
// Iterating groups through sorted keys keeps run output deterministic.
func SortedDarkKeys(groups map[int][]*frame.Frame) []int {
	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// SortedFlatKeys returns the flat group keys in ascending order.
func SortedFlatKeys(groups map[string][]*frame.Frame) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SortedLightKeys returns light group keys ordered by object, then
// exposure, then filter.
func SortedLightKeys(groups map[LightKey][]*frame.Frame) []LightKey {
	keys := make([]LightKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Object != b.Object {
			return a.Object < b.Object
		}
		if a.ExposureSecs != b.ExposureSecs {
			return a.ExposureSecs < b.ExposureSecs
		}
		return a.Filter < b.Filter
	})
	return keys
}
