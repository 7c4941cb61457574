package fits

import (
	"fmt"
	"io"
	"math"

	"github.com/astrogo/fitsio"

	"github.com/ridgetop-obs/astroreduce/internal/frame"
	"github.com/ridgetop-obs/astroreduce/internal/fsutil"
)

// WriteFrame persists a frame as a single-HDU FITS file at path. Output is
// always BITPIX -64: combined and corrected pixels are float64 already and
// the capture-time integer encoding has no meaning after arithmetic. Extra
// cards are appended after the frame metadata.
func WriteFrame(fsys fsutil.FileSystem, path string, fr *frame.Frame, extra ...fitsio.Card) error {
	if fr.Image == nil {
		return fmt.Errorf("write %s: frame carries no pixel data", path)
	}
	w, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	err = encodeFrame(w, fr, extra)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// encodeFrame writes fr to w as a FITS stream with a single image HDU.
func encodeFrame(w io.Writer, fr *frame.Frame, extra []fitsio.Card) error {
	f, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	if err := appendImage(f, fr, extra); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func appendImage(f *fitsio.File, fr *frame.Frame, extra []fitsio.Card) error {
	im := fitsio.NewImage(-64, []int{fr.Image.Width, fr.Image.Height})
	defer im.Close()

	cards := append(headerCards(fr), extra...)
	if err := im.Header().Append(cards...); err != nil {
		return err
	}
	pix := fr.Image.Pix
	if err := im.Write(&pix); err != nil {
		return err
	}
	return f.Write(im)
}

// headerCards renders the frame metadata as FITS cards. Keys the source had
// no value for stay absent rather than being written with sentinels, so a
// rereading pipeline sees the same gaps.
func headerCards(fr *frame.Frame) []fitsio.Card {
	cards := make([]fitsio.Card, 0, 8)
	if !math.IsNaN(fr.ExposureSecs) {
		cards = append(cards, fitsio.Card{Name: keyExposure, Value: fr.ExposureSecs, Comment: "exposure time in seconds"})
	}
	if fr.Filter != "" {
		cards = append(cards, fitsio.Card{Name: keyFilter, Value: fr.Filter, Comment: "filter wheel position"})
	}
	if fr.Object != "" {
		cards = append(cards, fitsio.Card{Name: keyObject, Value: fr.Object, Comment: "target name"})
	}
	if fr.Binning > 0 {
		cards = append(cards, fitsio.Card{Name: keyBinning, Value: fr.Binning, Comment: "camera binning factor"})
	}
	cards = append(cards, fitsio.Card{Name: keyCCDTemp, Value: fr.CCDTemp, Comment: "sensor temperature in C"})
	if fr.DateObs != "" {
		cards = append(cards, fitsio.Card{Name: keyDateObs, Value: fr.DateObs, Comment: "UTC start of exposure"})
	}
	cards = append(cards, fitsio.Card{Name: keyImageTyp, Value: imageType(fr.Kind), Comment: "frame classification"})
	if fr.Combined > 0 {
		cards = append(cards, fitsio.Card{Name: keyCombined, Value: fr.Combined, Comment: "frames median combined"})
	}
	return cards
}

// imageType renders a Kind using the IMAGETYP vocabulary viewing tools
// expect.
func imageType(k frame.Kind) string {
	switch k {
	case frame.Dark:
		return "Dark Frame"
	case frame.Flat:
		return "Flat Field"
	case frame.MasterDark:
		return "Master Dark"
	case frame.MasterFlat:
		return "Master Flat"
	default:
		return "Light Frame"
	}
}
