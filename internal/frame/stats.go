package frame

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ImageStats holds basic pixel statistics for one image. The run
// report shows them and the provenance catalog stores them with each
// master row.
type ImageStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Median float64 `json:"median"`
	N      int     `json:"n"`
}

// FinitePixels returns the finite samples of im in pixel order,
// excluding any NaN or Inf values left by flat division. The returned
// slice is freshly allocated and safe to reorder.
func (im *Image) FinitePixels() []float64 {
	if im == nil {
		return nil
	}
	finite := make([]float64, 0, len(im.Pix))
	for _, v := range im.Pix {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	return finite
}

// Stats computes pixel statistics over the finite samples of im. The
// median of an even count is the mean of the central pair, matching
// the combine rule. An image with no finite pixels (or a nil one)
// yields the zero value.
func (im *Image) Stats() ImageStats {
	finite := im.FinitePixels()
	if len(finite) == 0 {
		return ImageStats{}
	}
	sort.Float64s(finite)
	n := len(finite)
	median := finite[n/2]
	if n%2 == 0 {
		median = (finite[n/2-1] + finite[n/2]) / 2
	}
	// The n-1 divisor makes a single sample NaN; report 0 instead so
	// the value stays storable and marshalable.
	sd := 0.0
	if n > 1 {
		sd = stat.StdDev(finite, nil)
	}
	return ImageStats{
		Min:    finite[0],
		Max:    finite[n-1],
		Mean:   stat.Mean(finite, nil),
		StdDev: sd,
		Median: median,
		N:      n,
	}
}
