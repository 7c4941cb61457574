package fits

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/astrogo/fitsio"

	"github.com/ridgetop-obs/astroreduce/internal/frame"
	"github.com/ridgetop-obs/astroreduce/internal/fsutil"
	"github.com/ridgetop-obs/astroreduce/internal/reduce"
)

// DirSink persists pipeline outputs as FITS files under per-class output
// directories, creating each directory on first use. Safe for concurrent
// use: calibrated lights arrive from parallel workers.
type DirSink struct {
	fs       fsutil.FileSystem
	mdarkDir string
	mflatDir string
	outDir   string

	mu   sync.Mutex
	made map[string]bool
}

var _ reduce.Sink = (*DirSink)(nil)

// NewDirSink returns a sink writing master darks, master flats and
// calibrated lights to the three given directories.
func NewDirSink(fsys fsutil.FileSystem, mdarkDir, mflatDir, outDir string) *DirSink {
	return &DirSink{
		fs:       fsys,
		mdarkDir: mdarkDir,
		mflatDir: mflatDir,
		outDir:   outDir,
		made:     make(map[string]bool),
	}
}

func (s *DirSink) WriteMasterDark(name string, f *frame.Frame) (string, error) {
	return s.write(s.mdarkDir, name, f)
}

func (s *DirSink) WriteMasterFlat(name string, f *frame.Frame) (string, error) {
	return s.write(s.mflatDir, name, f)
}

// WriteCalibrated records calibration provenance alongside the pixel data:
// CALSTAT says which corrections ran ("D" dark, "F" flat) and DARKCOR /
// FLATCOR name the masters applied, the keys the observatory's viewing
// tools look for.
func (s *DirSink) WriteCalibrated(name string, c *reduce.Calibrated) (string, error) {
	if err := s.ensureDir(s.outDir); err != nil {
		return "", err
	}
	var (
		calstat string
		extra   []fitsio.Card
	)
	if c.DarkUsed != "" {
		calstat += "D"
		extra = append(extra, fitsio.Card{Name: keyDarkCor, Value: c.DarkUsed, Comment: "master dark subtracted"})
	}
	if c.FlatUsed != "" {
		calstat += "F"
		extra = append(extra, fitsio.Card{Name: keyFlatCor, Value: c.FlatUsed, Comment: "master flat divided"})
	}
	if calstat != "" {
		extra = append([]fitsio.Card{{Name: keyCalStat, Value: calstat, Comment: "calibration applied"}}, extra...)
	}
	path := filepath.Join(s.outDir, name)
	if err := WriteFrame(s.fs, path, c.Frame, extra...); err != nil {
		return "", err
	}
	return path, nil
}

func (s *DirSink) write(dir, name string, f *frame.Frame) (string, error) {
	if err := s.ensureDir(dir); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := WriteFrame(s.fs, path, f); err != nil {
		return "", err
	}
	return path, nil
}

func (s *DirSink) ensureDir(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.made[dir] {
		return nil
	}
	if err := s.fs.MkdirAll(dir, os.FileMode(0o755)); err != nil {
		return err
	}
	s.made[dir] = true
	return nil
}
