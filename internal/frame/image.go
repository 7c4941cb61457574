package frame

// Image is a single-plane pixel array in row-major order: the sample at
// column x, row y is Pix[y*Width+x]. All pipeline arithmetic runs on float64
// so that no operation drops below the native precision of any supported
// input sample type; values are neither clipped nor rounded until a frame is
// persisted.
type Image struct {
	Width  int
	Height int
	Pix    []float64
}

// NewImage allocates a zero-filled image of the given dimensions.
func NewImage(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]float64, width*height),
	}
}

// At returns the sample at column x, row y. No bounds checking beyond the
// underlying slice.
func (im *Image) At(x, y int) float64 {
	return im.Pix[y*im.Width+x]
}

// Set stores a sample at column x, row y.
func (im *Image) Set(x, y int, v float64) {
	im.Pix[y*im.Width+x] = v
}

// Clone returns a deep copy. Combine and correct operations return new
// allocations rather than mutating inputs, so group-parallel stages can share
// source frames without aliasing hazards.
func (im *Image) Clone() *Image {
	out := &Image{
		Width:  im.Width,
		Height: im.Height,
		Pix:    make([]float64, len(im.Pix)),
	}
	copy(out.Pix, im.Pix)
	return out
}

// SameShape reports whether two images have identical dimensions. Every
// combine or correct operation requires this; a mismatch is a fatal input
// error, never a silent coercion.
func (im *Image) SameShape(other *Image) bool {
	return other != nil && im.Width == other.Width && im.Height == other.Height
}
