package reduce

import (
	"fmt"
	"sort"

	"github.com/ridgetop-obs/astroreduce/internal/frame"
)

// MedianOf returns the median of xs without modifying it. For an even
// count the median is the mean of the two central values, matching the
// behavior master frames are combined with. Panics on an empty slice.
func MedianOf(xs []float64) float64 {
	tmp := make([]float64, len(xs))
	copy(tmp, xs)
	return medianInPlace(tmp)
}

// medianInPlace sorts xs and returns its median. The caller owns xs
// and accepts that it is reordered.
func medianInPlace(xs []float64) float64 {
	sort.Float64s(xs)
	n := len(xs)
	if n%2 == 1 {
		return xs[n/2]
	}
	return (xs[n/2-1] + xs[n/2]) / 2
}

// Combine median-stacks a group of same-shape frames into a single
// master frame. The result takes its metadata from the first frame of
// the group and records the stack depth in Combined. The input frames
// are not modified, and the result does not alias their pixel buffers.
//
// The per-pixel median is independent of frame order, so any
// permutation of group produces bit-identical output.
func Combine(group []*frame.Frame) (*frame.Frame, error) {
	if len(group) == 0 {
		return nil, fmt.Errorf("combine: empty group")
	}
	lead := group[0]
	if lead.Image == nil {
		return nil, fmt.Errorf("combine: frame %q has no pixel data", lead.Path)
	}
	for _, f := range group[1:] {
		if f.Image == nil {
			return nil, fmt.Errorf("combine: frame %q has no pixel data", f.Path)
		}
		if !lead.Image.SameShape(f.Image) {
			return nil, &ShapeMismatchError{Path: f.Path, Got: f.ShapeString(), Want: lead.ShapeString()}
		}
	}

	out := frame.NewImage(lead.Image.Width, lead.Image.Height)
	stack := make([]float64, len(group))
	for i := range out.Pix {
		for j, f := range group {
			stack[j] = f.Image.Pix[i]
		}
		out.Pix[i] = medianInPlace(stack)
	}

	master := lead.WithImage(out)
	master.Path = ""
	master.Combined = len(group)
	switch lead.Kind {
	case frame.Dark:
		master.Kind = frame.MasterDark
	case frame.Flat:
		master.Kind = frame.MasterFlat
	}
	return master, nil
}
