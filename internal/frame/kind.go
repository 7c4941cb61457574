package frame

import (
	"path/filepath"
	"strings"
)

// Kind classifies an exposure by its role in the reduction chain.
type Kind int

const (
	Unknown Kind = iota
	Dark
	Flat
	Light
	MasterDark
	MasterFlat
)

// String returns the lowercase name used in logs, output metadata and the
// provenance catalog.
func (k Kind) String() string {
	switch k {
	case Dark:
		return "dark"
	case Flat:
		return "flat"
	case Light:
		return "light"
	case MasterDark:
		return "mdark"
	case MasterFlat:
		return "mflat"
	default:
		return "unknown"
	}
}

// KindFromName classifies a file by the segment of its base name before the
// first '-': "dark", "mdark", "flat" and "mflat" (case-insensitive) map to
// their kinds; every other name is a light exposure.
func KindFromName(name string) Kind {
	base := filepath.Base(name)
	prefix, _, _ := strings.Cut(base, "-")
	switch strings.ToLower(prefix) {
	case "dark":
		return Dark
	case "mdark":
		return MasterDark
	case "flat":
		return Flat
	case "mflat":
		return MasterFlat
	default:
		return Light
	}
}

// ObjectFromName extracts the target name of a light exposure from its file
// name: the segment before the first '-', with the extension stripped for
// names that have no '-'. Returns "unknown" for empty names.
func ObjectFromName(name string) string {
	base := filepath.Base(name)
	obj, _, cut := strings.Cut(base, "-")
	if !cut {
		obj = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if obj == "" {
		return "unknown"
	}
	return obj
}
