// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"testing"

	"github.com/ridgetop-obs/astroreduce/internal/frame"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// UniformImage returns a w by h image with every pixel set to v.
func UniformImage(w, h int, v float64) *frame.Image {
	im := frame.NewImage(w, h)
	for i := range im.Pix {
		im.Pix[i] = v
	}
	return im
}

// NewFrame builds a frame with a uniform pixel fill. Calibration
// tests mostly care about metadata and one representative pixel
// level, so a flat fill keeps fixtures short.
func NewFrame(path string, kind frame.Kind, exposure float64, filter string, w, h int, fill float64) *frame.Frame {
	return &frame.Frame{
		Path:         path,
		Kind:         kind,
		ExposureSecs: exposure,
		Filter:       filter,
		Binning:      1,
		Image:        UniformImage(w, h, fill),
	}
}

// NewLight builds a light frame for a named target object.
func NewLight(path, object string, exposure float64, filter string, w, h int, fill float64) *frame.Frame {
	f := NewFrame(path, frame.Light, exposure, filter, w, h, fill)
	f.Object = object
	return f
}

// AssertPixelsEqual fails unless both images share a shape and are
// bit-identical pixel for pixel.
func AssertPixelsEqual(t *testing.T, got, want *frame.Image) {
	t.Helper()
	if got == nil || want == nil {
		t.Fatalf("nil image: got=%v want=%v", got, want)
	}
	if got.Width != want.Width || got.Height != want.Height {
		t.Fatalf("shape [%d %d], want [%d %d]", got.Width, got.Height, want.Width, want.Height)
	}
	for i := range want.Pix {
		if got.Pix[i] != want.Pix[i] {
			t.Fatalf("pixel %d = %v, want %v", i, got.Pix[i], want.Pix[i])
		}
	}
}
