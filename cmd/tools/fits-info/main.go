// Command fits-info prints the identity, storage encoding, header
// metadata and pixel statistics of FITS files. It reads files through
// the same path the reduction pipeline uses, so what it prints is what
// a run would see.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/ridgetop-obs/astroreduce/internal/fits"
	"github.com/ridgetop-obs/astroreduce/internal/frame"
	"github.com/ridgetop-obs/astroreduce/internal/fsutil"
)

type fileInfo struct {
	Path     string           `json:"path"`
	Kind     string           `json:"kind"`
	Width    int              `json:"width"`
	Height   int              `json:"height"`
	Bitpix   int              `json:"bitpix"`
	ImageTyp string           `json:"imagetyp,omitempty"`
	Exposure *float64         `json:"exptime,omitempty"`
	Filter   string           `json:"filter,omitempty"`
	Object   string           `json:"object,omitempty"`
	Binning  int              `json:"xbinning"`
	CCDTemp  float64          `json:"ccd_temp"`
	DateObs  string           `json:"date_obs,omitempty"`
	Combined int              `json:"ncombine,omitempty"`
	Stats    frame.ImageStats `json:"stats"`
}

func describe(fi *fits.Info) fileInfo {
	fr := fi.Frame
	out := fileInfo{
		Path:     fr.Path,
		Kind:     fr.Kind.String(),
		Width:    fr.Image.Width,
		Height:   fr.Image.Height,
		Bitpix:   fi.Bitpix,
		ImageTyp: fi.ImageTyp,
		Filter:   fr.Filter,
		Object:   fr.Object,
		Binning:  fr.Binning,
		CCDTemp:  fr.CCDTemp,
		DateObs:  fr.DateObs,
		Combined: fr.Combined,
		Stats:    fr.Image.Stats(),
	}
	// A frame without EXPTIME carries NaN, which JSON cannot encode.
	if !math.IsNaN(fr.ExposureSecs) {
		out.Exposure = &fr.ExposureSecs
	}
	return out
}

func printInfo(fi fileInfo) {
	fmt.Printf("%s\n", fi.Path)
	fmt.Printf("  kind      %s", fi.Kind)
	if fi.ImageTyp != "" {
		fmt.Printf("  (IMAGETYP %q)", fi.ImageTyp)
	}
	fmt.Println()
	fmt.Printf("  shape     %dx%d  BITPIX %d\n", fi.Width, fi.Height, fi.Bitpix)
	if fi.Exposure != nil {
		fmt.Printf("  EXPTIME   %g\n", *fi.Exposure)
	}
	if fi.Filter != "" {
		fmt.Printf("  FILTER    %s\n", fi.Filter)
	}
	if fi.Object != "" {
		fmt.Printf("  OBJECT    %s\n", fi.Object)
	}
	fmt.Printf("  XBINNING  %d\n", fi.Binning)
	fmt.Printf("  CCD-TEMP  %g\n", fi.CCDTemp)
	if fi.DateObs != "" {
		fmt.Printf("  DATE-OBS  %s\n", fi.DateObs)
	}
	if fi.Combined > 0 {
		fmt.Printf("  NCOMBINE  %d\n", fi.Combined)
	}
	st := fi.Stats
	fmt.Printf("  pixels    mean %g, median %g, stddev %g, min %g, max %g (%d finite of %d)\n",
		st.Mean, st.Median, st.StdDev, st.Min, st.Max, st.N, fi.Width*fi.Height)
}

func main() {
	jsonOut := flag.Bool("json", false, "machine-readable output")
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: fits-info [-json] file.fts [file.fts ...]")
		os.Exit(2)
	}

	fsys := fsutil.OSFileSystem{}
	infos := make([]fileInfo, 0, flag.NArg())
	failed := false
	for _, path := range flag.Args() {
		fi, err := fits.ReadInfo(fsys, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fits-info: %v\n", err)
			failed = true
			continue
		}
		infos = append(infos, describe(fi))
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(infos); err != nil {
			fmt.Fprintf(os.Stderr, "fits-info: %v\n", err)
			failed = true
		}
	} else {
		for i, fi := range infos {
			if i > 0 {
				fmt.Println()
			}
			printInfo(fi)
		}
	}
	if failed {
		os.Exit(1)
	}
}
