// Package units formats physical quantities from frame headers into the
// tokens used by output file names. Names must stay stable across runs, so
// every function here is a pure mapping with no locale or time-zone input.
package units

import (
	"math"
	"strconv"
	"strings"
)

// FormatExposure renders an exposure time for a file name. The decimal point
// becomes 's' so the token stays safe in names that use '.' as an extension
// separator: 30 -> "30", 30.4 -> "30s4", 0.001 -> "0s001".
func FormatExposure(secs float64) string {
	s := strconv.FormatFloat(secs, 'f', -1, 64)
	return strings.ReplaceAll(s, ".", "s")
}

// FormatTemperature renders a CCD temperature rounded to the nearest degree,
// with '-' becoming 'm' (file names treat '-' as a field separator):
// -12.3 -> "m12", 5.7 -> "6".
func FormatTemperature(celsius float64) string {
	v := int(math.Round(celsius))
	if v < 0 {
		return "m" + strconv.Itoa(-v)
	}
	return strconv.Itoa(v)
}

// FormatDateObs compacts a FITS DATE-OBS value ("2017-01-02T03:04:05") into a
// name token ("20170102at030405"): '-' and ':' are dropped, 'T' becomes "at".
// The input is not validated; a frame with a malformed DATE-OBS still gets a
// deterministic token.
func FormatDateObs(dateObs string) string {
	r := strings.NewReplacer("-", "", ":", "", "T", "at")
	return r.Replace(dateObs)
}
