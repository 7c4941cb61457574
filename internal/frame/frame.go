// Package frame defines the data contract for exposures moving through the
// reduction pipeline: pixel data plus the header metadata the pipeline groups
// and matches on. Frames are treated as immutable once loaded; operations
// that change pixel data return new frames.
package frame

import (
	"fmt"
	"path/filepath"
)

// Frame is one exposure: raw calibration or science input, or a combined
// master. The zero value is not useful; construct via the fits reader or
// the combine/correct operations.
type Frame struct {
	// Path is the source file the frame was loaded from, or the output
	// path once a derived frame has been persisted. Used for reporting
	// identity, never for computation.
	Path string

	Kind Kind

	// ExposureSecs retains full precision; grouping rounds a copy, never
	// the stored value.
	ExposureSecs float64

	// Filter is the filter wheel identifier as recorded in the header.
	// Matching is case-insensitive; this field keeps the original spelling
	// for output naming.
	Filter string

	// Object is the target name (lights only, from the file name).
	Object string

	Binning int
	CCDTemp float64
	DateObs string

	// Combined is the number of raw frames median-combined into this one.
	// Zero for raw frames, >=1 for masters.
	Combined int

	Image *Image
}

// Name returns the base file name, the identity used in logs and skip
// records.
func (f *Frame) Name() string {
	if f.Path == "" {
		return "(in-memory)"
	}
	return filepath.Base(f.Path)
}

// ShapeString renders the pixel dimensions for error messages, "(no data)"
// when the frame carries none.
func (f *Frame) ShapeString() string {
	if f.Image == nil {
		return "(no data)"
	}
	return fmt.Sprintf("%dx%d", f.Image.Width, f.Image.Height)
}

// WithImage returns a shallow copy of f carrying im as its pixel data. The
// metadata fields are copied by value, so the result can be renamed or
// persisted without touching the source frame.
func (f *Frame) WithImage(im *Image) *Frame {
	out := *f
	out.Image = im
	return &out
}

// CopyMetadata transfers the header values that survive combining from src,
// mirroring what the output writer persists. Pixel data and Path are left
// alone.
func (f *Frame) CopyMetadata(src *Frame) {
	f.ExposureSecs = src.ExposureSecs
	f.Filter = src.Filter
	f.Object = src.Object
	f.Binning = src.Binning
	f.CCDTemp = src.CCDTemp
	f.DateObs = src.DateObs
}
