// Package fits reads and writes frames as FITS files, the container format
// the observatory's capture programs emit. Only the primary HDU is used:
// pixel data is decoded to float64 honoring BZERO/BSCALE, and the handful of
// header keys the pipeline groups and matches on are lifted into the frame
// metadata. All file access goes through fsutil.FileSystem so the full round
// trip is testable against the in-memory filesystem.
package fits

import (
	"strings"

	"github.com/astrogo/fitsio"
)

// Header keys read from inputs and written back to outputs.
const (
	keyExposure = "EXPTIME"
	keyFilter   = "FILTER"
	keyObject   = "OBJECT"
	keyBinning  = "XBINNING"
	keyCCDTemp  = "CCD-TEMP"
	keyDateObs  = "DATE-OBS"
	keyImageTyp = "IMAGETYP"
	keyCombined = "NCOMBINE"
	keyCalStat  = "CALSTAT"
	keyDarkCor  = "DARKCOR"
	keyFlatCor  = "FLATCOR"
	keyBZero    = "BZERO"
	keyBScale   = "BSCALE"
)

// cardFloat returns the named card as a float64, or def when the card is
// absent. Capture programs are inconsistent about writing reals versus
// integers, so both numeric families are accepted.
func cardFloat(hdr *fitsio.Header, key string, def float64) float64 {
	card := hdr.Get(key)
	if card == nil {
		return def
	}
	switch v := card.Value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// cardInt returns the named card as an int, or def when absent. Real-valued
// cards are truncated.
func cardInt(hdr *fitsio.Header, key string, def int) int {
	card := hdr.Get(key)
	if card == nil {
		return def
	}
	switch v := card.Value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	}
	return def
}

// cardString returns the named card as a trimmed string, or def when absent.
// FITS pads string values to fixed width, so surrounding spaces carry no
// information.
func cardString(hdr *fitsio.Header, key string, def string) string {
	card := hdr.Get(key)
	if card == nil {
		return def
	}
	if s, ok := card.Value.(string); ok {
		return strings.TrimSpace(s)
	}
	return def
}
