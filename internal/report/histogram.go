package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ridgetop-obs/astroreduce/internal/frame"
	"github.com/ridgetop-obs/astroreduce/internal/fsutil"
)

// histogramBins is the bin count for master pixel histograms. Plenty
// for spotting a bimodal dark or a clipped flat without turning the
// plot into a comb.
const histogramBins = 64

// WriteHistogram renders a pixel histogram for im as a PNG at path.
// Non-finite pixels are excluded; an image with none left is an error.
func WriteHistogram(fsys fsutil.FileSystem, path, title string, im *frame.Image) error {
	finite := im.FinitePixels()
	if len(finite) == 0 {
		return fmt.Errorf("histogram %s: no finite pixels", path)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Pixel value"
	p.Y.Label.Text = "Pixels"

	h, err := plotter.NewHist(plotter.Values(finite), histogramBins)
	if err != nil {
		return fmt.Errorf("histogram %s: %w", path, err)
	}
	h.FillColor = color.RGBA{R: 0x42, G: 0x85, B: 0xf4, A: 255}
	p.Add(h)

	wt, err := p.WriterTo(8*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render histogram %s: %w", path, err)
	}
	w, err := fsys.Create(path)
	if err != nil {
		return err
	}
	if _, err := wt.WriteTo(w); err != nil {
		w.Close()
		return fmt.Errorf("write histogram %s: %w", path, err)
	}
	return w.Close()
}
