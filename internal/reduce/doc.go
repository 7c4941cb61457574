// Package reduce implements the calibration pipeline for raw CCD frames.
//
// Responsibilities: grouping raw darks, flats and lights by their header
// metadata, median-combining groups into master frames, applying dark
// subtraction and flat-field division to science frames, and naming the
// outputs. The Pipeline type orchestrates the stages in order; the
// stage primitives (GroupDarks, Combine, SubtractDark, DivideFlat, ...)
// are exported and usable on their own.
//
// All pixel math happens on float64 buffers in memory. Operations
// return freshly allocated images and never mutate their inputs, so a
// frame may appear in several groups safely.
//
// No file or database I/O is allowed in this package. Callers provide
// frames with pixels already loaded and receive outputs through the
// Sink interface.
package reduce
