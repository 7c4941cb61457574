package fits

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ridgetop-obs/astroreduce/internal/frame"
	"github.com/ridgetop-obs/astroreduce/internal/fsutil"
)

// IsFITS reports whether name carries one of the FITS extensions the
// capture programs produce.
func IsFITS(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".fits", ".fts":
		return true
	}
	return false
}

// Discover loads every FITS file under dir, descending into subdirectories
// the way observers nest nights under a season directory. Results are sorted
// by path so reruns see frames in the same order. A missing directory yields
// an empty set: class directories are optional and the caller decides
// whether that deserves a warning.
func Discover(fsys fsutil.FileSystem, dir string) ([]*frame.Frame, error) {
	paths, err := fitsPaths(fsys, dir)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	frames := make([]*frame.Frame, 0, len(paths))
	for _, p := range paths {
		fr, err := ReadFrame(fsys, p)
		if err != nil {
			return nil, err
		}
		frames = append(frames, fr)
	}
	return frames, nil
}

// DiscoverKind returns the frames under dir classified as kind. Input
// directories are per class on the command line, but observers drop stray
// files everywhere; anything that classifies differently is left out.
func DiscoverKind(fsys fsutil.FileSystem, dir string, kind frame.Kind) ([]*frame.Frame, error) {
	all, err := Discover(fsys, dir)
	if err != nil {
		return nil, err
	}
	matched := all[:0]
	for _, fr := range all {
		if fr.Kind == kind {
			matched = append(matched, fr)
		}
	}
	return matched, nil
}

func fitsPaths(fsys fsutil.FileSystem, dir string) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		name := filepath.Join(dir, e.Name())
		if e.IsDir() {
			sub, err := fitsPaths(fsys, name)
			if err != nil {
				return nil, err
			}
			paths = append(paths, sub...)
			continue
		}
		if IsFITS(e.Name()) {
			paths = append(paths, name)
		}
	}
	return paths, nil
}
