package reduce

import (
	"fmt"

	"github.com/ridgetop-obs/astroreduce/internal/frame"
	"github.com/ridgetop-obs/astroreduce/internal/units"
)

// MasterDarkName returns the output file name for a master dark with
// the given rounded exposure key, e.g. "MDark-Exp30.fts".
func MasterDarkName(key int) string {
	return fmt.Sprintf("MDark-Exp%d.fts", key)
}

// MasterFlatName returns the output file name for a master flat,
// e.g. "MFlat-R.fts". The display spelling of the filter is kept even
// though grouping and matching fold case.
func MasterFlatName(filter string) string {
	return fmt.Sprintf("MFlat-%s.fts", filter)
}

// CalibratedName returns the output file name for a corrected light
// frame. The name encodes object, observation time, CCD temperature,
// binning, exposure and filter so that no two frames of a session
// collide:
//
//	ngc2264-20240115at203000-Tempm15-Bin1-Exp60-V.fts
//
// A frame without a DATE-OBS header falls back to its 1-based index in
// discovery order, which keeps names unique within a run but not
// across runs.
func CalibratedName(f *frame.Frame, index int) string {
	date := units.FormatDateObs(f.DateObs)
	if date == "" {
		date = fmt.Sprintf("%04d", index)
	}
	return fmt.Sprintf("%s-%s-Temp%s-Bin%d-Exp%s-%s.fts",
		f.Object,
		date,
		units.FormatTemperature(f.CCDTemp),
		f.Binning,
		units.FormatExposure(f.ExposureSecs),
		f.Filter,
	)
}
