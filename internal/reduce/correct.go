package reduce

import (
	"fmt"
	"math"

	"github.com/ridgetop-obs/astroreduce/internal/frame"
)

// SubtractDark returns f's pixels minus the master dark's, as a new
// image. Neither input is modified.
func SubtractDark(f, dark *frame.Frame) (*frame.Image, error) {
	if f.Image == nil || dark.Image == nil {
		return nil, fmt.Errorf("subtract dark: frame %q has no pixel data", f.Path)
	}
	if !f.Image.SameShape(dark.Image) {
		return nil, &ShapeMismatchError{Path: f.Path, Got: f.ShapeString(), Want: dark.ShapeString()}
	}
	out := frame.NewImage(f.Image.Width, f.Image.Height)
	for i, v := range f.Image.Pix {
		out.Pix[i] = v - dark.Image.Pix[i]
	}
	return out, nil
}

// NormalizeFlat scales a master flat to a mean level of roughly one by
// dividing every pixel by the flat's median. The normalized image is
// returned; the master flat itself is not modified. A zero or
// non-finite median makes the flat unusable and fails the call.
func NormalizeFlat(mflat *frame.Frame) (*frame.Image, error) {
	if mflat.Image == nil {
		return nil, fmt.Errorf("normalize flat: master flat %q has no pixel data", mflat.Filter)
	}
	med := MedianOf(mflat.Image.Pix)
	if med == 0 || math.IsNaN(med) || math.IsInf(med, 0) {
		return nil, &DegenerateFlatError{Filter: mflat.Filter, Reason: fmt.Sprintf("median %v is unusable as a normalization denominator", med)}
	}
	out := frame.NewImage(mflat.Image.Width, mflat.Image.Height)
	for i, v := range mflat.Image.Pix {
		out.Pix[i] = v / med
	}
	return out, nil
}

// DivideFlat divides a science image by a normalized master flat and
// returns the result together with the number of non-finite output
// pixels. im holds f's pixels, possibly already dark-corrected; f is
// only used to identify the frame in errors.
//
// Under NonFiniteFail the divisor is checked first and a flat with any
// zero or non-finite pixel is rejected with DegenerateFlatError before
// a single division happens. Under NonFinitePropagate the division
// always runs and NaN or Inf pixels are carried into the output and
// counted.
func DivideFlat(f *frame.Frame, im, norm *frame.Image, policy NonFinitePolicy) (*frame.Image, int, error) {
	if !im.SameShape(norm) {
		return nil, 0, &ShapeMismatchError{
			Path: f.Path,
			Got:  fmt.Sprintf("%dx%d", im.Width, im.Height),
			Want: fmt.Sprintf("%dx%d", norm.Width, norm.Height),
		}
	}
	if policy == NonFiniteFail {
		bad := 0
		for _, v := range norm.Pix {
			if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				bad++
			}
		}
		if bad > 0 {
			return nil, 0, &DegenerateFlatError{
				Filter:    f.Filter,
				Reason:    "normalized flat has pixels that would divide by zero",
				BadPixels: bad,
			}
		}
	}
	out := frame.NewImage(im.Width, im.Height)
	nonFinite := 0
	for i, v := range im.Pix {
		q := v / norm.Pix[i]
		if math.IsNaN(q) || math.IsInf(q, 0) {
			nonFinite++
		}
		out.Pix[i] = q
	}
	return out, nonFinite, nil
}
