package fits

import (
	"fmt"
	"math"

	"github.com/astrogo/fitsio"

	"github.com/ridgetop-obs/astroreduce/internal/frame"
	"github.com/ridgetop-obs/astroreduce/internal/fsutil"
)

// Info is everything ReadInfo learns about one FITS file: the decoded
// frame plus the storage details the pipeline itself discards.
// Inspection tools print these so a bad input can be diagnosed with the
// same reading path a run would use.
type Info struct {
	Bitpix   int
	ImageTyp string
	Frame    *frame.Frame
}

// ReadFrame loads the primary HDU of a FITS file into a frame, classifying
// it by file name. Pixels come back as float64 regardless of the stored
// BITPIX, with BZERO/BSCALE applied, so downstream arithmetic never sees the
// camera's storage encoding.
func ReadFrame(fsys fsutil.FileSystem, path string) (*frame.Frame, error) {
	info, err := ReadInfo(fsys, path)
	if err != nil {
		return nil, err
	}
	return info.Frame, nil
}

// ReadInfo reads a FITS file the way ReadFrame does, additionally
// retaining the stored BITPIX and the IMAGETYP header value.
func ReadInfo(fsys fsutil.FileSystem, path string) (*Info, error) {
	r, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer f.Close()

	img, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("%s: primary HDU carries no image", path)
	}

	hdr := img.Header()
	axes := hdr.Axes()
	if len(axes) != 2 || axes[0] <= 0 || axes[1] <= 0 {
		return nil, fmt.Errorf("%s: want a 2D image, got NAXIS=%v", path, axes)
	}
	width, height := axes[0], axes[1]

	pix, err := readPixels(img, hdr.Bitpix(), width*height)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(pix) != width*height {
		return nil, fmt.Errorf("%s: %d samples for a %dx%d image", path, len(pix), width, height)
	}
	applyScaling(hdr, pix)

	fr := &frame.Frame{
		Path:  path,
		Kind:  frame.KindFromName(path),
		Image: &frame.Image{Width: width, Height: height, Pix: pix},
	}
	readMetadata(fr, hdr)
	return &Info{
		Bitpix:   hdr.Bitpix(),
		ImageTyp: cardString(hdr, keyImageTyp, ""),
		Frame:    fr,
	}, nil
}

// readPixels decodes the stored samples into float64, one case per BITPIX
// the standard defines. The staging slice element size must match the pixel
// size, so each width gets its own case; fitsio requires the slice to be
// allocated to the pixel count before Read.
func readPixels(img fitsio.Image, bitpix, n int) ([]float64, error) {
	switch bitpix {
	case 8:
		raw := make([]int8, n)
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("read pixels: %w", err)
		}
		out := make([]float64, len(raw))
		for i, v := range raw {
			// 8-bit FITS samples are unsigned bytes.
			out[i] = float64(uint8(v))
		}
		return out, nil
	case 16:
		raw := make([]int16, n)
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("read pixels: %w", err)
		}
		out := make([]float64, len(raw))
		for i, v := range raw {
			out[i] = float64(v)
		}
		return out, nil
	case 32:
		raw := make([]int32, n)
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("read pixels: %w", err)
		}
		out := make([]float64, len(raw))
		for i, v := range raw {
			out[i] = float64(v)
		}
		return out, nil
	case 64:
		raw := make([]int64, n)
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("read pixels: %w", err)
		}
		out := make([]float64, len(raw))
		for i, v := range raw {
			out[i] = float64(v)
		}
		return out, nil
	case -32:
		raw := make([]float32, n)
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("read pixels: %w", err)
		}
		out := make([]float64, len(raw))
		for i, v := range raw {
			out[i] = float64(v)
		}
		return out, nil
	case -64:
		out := make([]float64, n)
		if err := img.Read(&out); err != nil {
			return nil, fmt.Errorf("read pixels: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
}

// applyScaling maps stored samples to physical values in place. The FITS
// convention is physical = BZERO + BSCALE*stored; unsigned 16-bit cameras
// store signed values around BZERO=32768.
func applyScaling(hdr *fitsio.Header, pix []float64) {
	bzero := cardFloat(hdr, keyBZero, 0)
	bscale := cardFloat(hdr, keyBScale, 1)
	if bzero == 0 && bscale == 1 {
		return
	}
	for i, v := range pix {
		pix[i] = bzero + bscale*v
	}
}

// readMetadata lifts the header values the pipeline groups and matches on.
// A missing EXPTIME stays NaN and a missing FILTER stays "" so the grouper
// can tell absent from zero; the remaining fields default to values that
// keep output naming well formed.
func readMetadata(fr *frame.Frame, hdr *fitsio.Header) {
	fr.ExposureSecs = cardFloat(hdr, keyExposure, math.NaN())
	fr.Filter = cardString(hdr, keyFilter, "")
	fr.Binning = cardInt(hdr, keyBinning, 1)
	fr.CCDTemp = cardFloat(hdr, keyCCDTemp, 0)
	fr.DateObs = cardString(hdr, keyDateObs, "")
	fr.Combined = cardInt(hdr, keyCombined, 0)
	if fr.Kind == frame.Light {
		fr.Object = cardString(hdr, keyObject, "")
		if fr.Object == "" {
			fr.Object = frame.ObjectFromName(fr.Path)
		}
	}
}
