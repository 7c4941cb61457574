package reduce

import (
	"fmt"

	"github.com/ridgetop-obs/astroreduce/internal/frame"
)

// GroupingError reports a raw frame that cannot be grouped because a
// required header attribute is absent: exposure time for darks and
// lights, filter name for flats and lights.
type GroupingError struct {
	Path    string
	Kind    frame.Kind
	Missing string
}

func (e *GroupingError) Error() string {
	return fmt.Sprintf("group %s %q: missing %s", e.Kind, e.Path, e.Missing)
}

// ShapeMismatchError reports two pixel arrays of different dimensions
// meeting in a combine or correction step.
type ShapeMismatchError struct {
	Path string
	Got  string
	Want string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("frame %q: shape %s does not match %s", e.Path, e.Got, e.Want)
}

// DegenerateFlatError reports a master flat that cannot be used for
// flat-field division: its normalization denominator is zero or not
// finite, or the normalized array contains pixels that would divide a
// science frame by zero.
type DegenerateFlatError struct {
	Filter    string
	Reason    string
	BadPixels int
}

func (e *DegenerateFlatError) Error() string {
	if e.BadPixels > 0 {
		return fmt.Sprintf("master flat %q: %s (%d pixels)", e.Filter, e.Reason, e.BadPixels)
	}
	return fmt.Sprintf("master flat %q: %s", e.Filter, e.Reason)
}

// MissingMasterError reports a frame that needs a master dark or master
// flat which the run neither built nor loaded.
type MissingMasterError struct {
	Path string
	Want frame.Kind
	Key  string
}

func (e *MissingMasterError) Error() string {
	return fmt.Sprintf("frame %q: no %s available for %s", e.Path, e.Want, e.Key)
}
