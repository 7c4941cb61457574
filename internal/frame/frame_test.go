package frame

import "testing"

func TestKindFromName(t *testing.T) {
	testCases := []struct {
		name     string
		path     string
		expected Kind
	}{
		{"dark_prefix", "dark-30s-001.fts", Dark},
		{"mdark_prefix", "MDark-Exp30.fts", MasterDark},
		{"flat_prefix", "flat-R-003.fits", Flat},
		{"mflat_prefix", "MFlat-R.fts", MasterFlat},
		{"uppercase_dark", "DARK-60s.fts", Dark},
		{"object_name", "m31-20170102at030405-Exp60-R.fts", Light},
		{"no_dash", "ngc7000.fits", Light},
		{"full_path", "/data/darks/dark-30s-001.fts", Dark},
		{"dark_not_prefix", "mydark-30s.fts", Light},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindFromName(tc.path); got != tc.expected {
				t.Errorf("KindFromName(%q) = %v, want %v", tc.path, got, tc.expected)
			}
		})
	}
}

func TestObjectFromName(t *testing.T) {
	testCases := []struct {
		name     string
		path     string
		expected string
	}{
		{"dashed", "m31-001.fts", "m31"},
		{"no_dash", "ngc7000.fits", "ngc7000"},
		{"full_path", "/data/lights/vega-20170102.fts", "vega"},
		{"empty_segment", "-weird.fts", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ObjectFromName(tc.path); got != tc.expected {
				t.Errorf("ObjectFromName(%q) = %q, want %q", tc.path, got, tc.expected)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	pairs := map[Kind]string{
		Dark:       "dark",
		Flat:       "flat",
		Light:      "light",
		MasterDark: "mdark",
		MasterFlat: "mflat",
		Unknown:    "unknown",
	}
	for k, want := range pairs {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestImageCloneIndependence(t *testing.T) {
	im := NewImage(3, 2)
	im.Set(2, 1, 42.5)

	clone := im.Clone()
	clone.Set(2, 1, -1)

	if got := im.At(2, 1); got != 42.5 {
		t.Errorf("source image mutated through clone: got %v, want 42.5", got)
	}
	if got := clone.At(2, 1); got != -1 {
		t.Errorf("clone.At(2,1) = %v, want -1", got)
	}
}

func TestImageSameShape(t *testing.T) {
	a := NewImage(3, 2)
	b := NewImage(3, 2)
	c := NewImage(2, 3)

	if !a.SameShape(b) {
		t.Error("identical dimensions reported as mismatched")
	}
	if a.SameShape(c) {
		t.Error("transposed dimensions reported as matching")
	}
	if a.SameShape(nil) {
		t.Error("nil image reported as matching")
	}
}

func TestWithImageDoesNotAliasMetadata(t *testing.T) {
	f := &Frame{Path: "light-001.fts", Kind: Light, Filter: "R", ExposureSecs: 60}
	im := NewImage(2, 2)

	g := f.WithImage(im)
	g.Filter = "V"

	if f.Filter != "R" {
		t.Errorf("source frame filter mutated: got %q, want R", f.Filter)
	}
	if g.Image != im {
		t.Error("WithImage did not carry the provided image")
	}
}
