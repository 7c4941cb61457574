package reduce

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/ridgetop-obs/astroreduce/internal/frame"
	"github.com/ridgetop-obs/astroreduce/internal/testutil"
)

func TestSubtractDark(t *testing.T) {
	light := testutil.NewLight("l.fts", "m42", 60, "V", 2, 2, 600)
	dark := testutil.NewFrame("md.fts", frame.MasterDark, 60, "", 2, 2, 100)

	out, err := SubtractDark(light, dark)
	testutil.AssertNoError(t, err)
	testutil.AssertPixelsEqual(t, out, testutil.UniformImage(2, 2, 500))
	testutil.AssertPixelsEqual(t, light.Image, testutil.UniformImage(2, 2, 600))
}

func TestSubtractDarkPreservesNegatives(t *testing.T) {
	// an overscan pixel below the dark level stays negative; clamping
	// is an export concern, not a calibration one
	f := testutil.NewFrame("f.fts", frame.Flat, 5, "R", 1, 1, 50)
	dark := testutil.NewFrame("md.fts", frame.MasterDark, 5, "", 1, 1, 80)

	out, err := SubtractDark(f, dark)
	testutil.AssertNoError(t, err)
	if out.Pix[0] != -30 {
		t.Errorf("pixel = %v, want -30", out.Pix[0])
	}
}

func TestSubtractDarkReversible(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	f := testutil.NewLight("l.fts", "m42", 60, "V", 6, 6, 0)
	dark := testutil.NewFrame("md.fts", frame.MasterDark, 60, "", 6, 6, 0)
	for i := range f.Image.Pix {
		// integer-valued pixels keep float64 subtraction exact
		f.Image.Pix[i] = float64(rng.Intn(65536))
		dark.Image.Pix[i] = float64(rng.Intn(1024))
	}

	out, err := SubtractDark(f, dark)
	testutil.AssertNoError(t, err)
	for i := range out.Pix {
		if out.Pix[i]+dark.Image.Pix[i] != f.Image.Pix[i] {
			t.Fatalf("pixel %d not reversible: (%v - %v) + %v != %v",
				i, f.Image.Pix[i], dark.Image.Pix[i], dark.Image.Pix[i], f.Image.Pix[i])
		}
	}
}

func TestSubtractDarkShapeMismatch(t *testing.T) {
	f := testutil.NewLight("l.fts", "m42", 60, "V", 4, 4, 600)
	dark := testutil.NewFrame("md.fts", frame.MasterDark, 60, "", 2, 2, 100)

	_, err := SubtractDark(f, dark)
	var serr *ShapeMismatchError
	if !errors.As(err, &serr) {
		t.Fatalf("error %T, want *ShapeMismatchError", err)
	}
	if serr.Path != "l.fts" {
		t.Errorf("path = %q, want l.fts", serr.Path)
	}
}

func TestNormalizeFlat(t *testing.T) {
	mflat := testutil.NewFrame("mf.fts", frame.MasterFlat, 5, "R", 2, 2, 0)
	mflat.Image.Pix = []float64{1000, 2000, 3000, 4000}

	norm, err := NormalizeFlat(mflat)
	testutil.AssertNoError(t, err)

	// median of {1000,2000,3000,4000} is 2500
	want := []float64{0.4, 0.8, 1.2, 1.6}
	for i, w := range want {
		if norm.Pix[i] != w {
			t.Errorf("pixel %d = %v, want %v", i, norm.Pix[i], w)
		}
	}
	if mflat.Image.Pix[0] != 1000 {
		t.Error("normalization mutated the master flat")
	}
}

func TestNormalizeFlatUniformBecomesUnity(t *testing.T) {
	mflat := testutil.NewFrame("mf.fts", frame.MasterFlat, 5, "V", 4, 4, 1234.5)
	norm, err := NormalizeFlat(mflat)
	testutil.AssertNoError(t, err)
	testutil.AssertPixelsEqual(t, norm, testutil.UniformImage(4, 4, 1))
}

func TestNormalizeFlatZeroMedian(t *testing.T) {
	mflat := testutil.NewFrame("mf.fts", frame.MasterFlat, 5, "R", 2, 2, 0)

	_, err := NormalizeFlat(mflat)
	var derr *DegenerateFlatError
	if !errors.As(err, &derr) {
		t.Fatalf("error %T, want *DegenerateFlatError", err)
	}
	if derr.Filter != "R" {
		t.Errorf("filter = %q, want R", derr.Filter)
	}
}

func TestDivideFlatUniformIsIdentity(t *testing.T) {
	f := testutil.NewLight("l.fts", "m42", 60, "V", 3, 3, 0)
	for i := range f.Image.Pix {
		f.Image.Pix[i] = float64(i) * 7
	}
	norm := testutil.UniformImage(3, 3, 1)

	out, n, err := DivideFlat(f, f.Image, norm, NonFiniteFail)
	testutil.AssertNoError(t, err)
	if n != 0 {
		t.Errorf("non-finite count = %d, want 0", n)
	}
	testutil.AssertPixelsEqual(t, out, f.Image)
	if out == f.Image {
		t.Error("output aliases the input buffer")
	}
}

func TestDivideFlatAppliesGain(t *testing.T) {
	f := testutil.NewLight("l.fts", "m42", 60, "V", 1, 2, 0)
	f.Image.Pix = []float64{500, 500}
	norm := frame.NewImage(1, 2)
	// vignetted corner at half sensitivity doubles after division
	norm.Pix = []float64{1, 0.5}

	out, _, err := DivideFlat(f, f.Image, norm, NonFiniteFail)
	testutil.AssertNoError(t, err)
	if out.Pix[0] != 500 || out.Pix[1] != 1000 {
		t.Errorf("pixels = %v, want [500 1000]", out.Pix)
	}
}

func TestDivideFlatFailPolicyRejectsZeroPixels(t *testing.T) {
	f := testutil.NewLight("l.fts", "m42", 60, "V", 2, 2, 500)
	norm := testutil.UniformImage(2, 2, 1)
	norm.Pix[3] = 0

	_, _, err := DivideFlat(f, f.Image, norm, NonFiniteFail)
	var derr *DegenerateFlatError
	if !errors.As(err, &derr) {
		t.Fatalf("error %T, want *DegenerateFlatError", err)
	}
	if derr.BadPixels != 1 {
		t.Errorf("BadPixels = %d, want 1", derr.BadPixels)
	}
}

func TestDivideFlatPropagatePolicyCountsNonFinite(t *testing.T) {
	f := testutil.NewLight("l.fts", "m42", 60, "V", 2, 2, 500)
	f.Image.Pix[1] = 0
	norm := testutil.UniformImage(2, 2, 1)
	norm.Pix[0] = 0 // 500/0 = +Inf
	norm.Pix[1] = 0 // 0/0 = NaN

	out, n, err := DivideFlat(f, f.Image, norm, NonFinitePropagate)
	testutil.AssertNoError(t, err)
	if n != 2 {
		t.Errorf("non-finite count = %d, want 2", n)
	}
	if !math.IsInf(out.Pix[0], 1) {
		t.Errorf("pixel 0 = %v, want +Inf", out.Pix[0])
	}
	if !math.IsNaN(out.Pix[1]) {
		t.Errorf("pixel 1 = %v, want NaN", out.Pix[1])
	}
	if out.Pix[2] != 500 {
		t.Errorf("pixel 2 = %v, want 500", out.Pix[2])
	}
}

func TestDivideFlatShapeMismatch(t *testing.T) {
	f := testutil.NewLight("l.fts", "m42", 60, "V", 2, 2, 500)
	norm := testutil.UniformImage(3, 3, 1)

	_, _, err := DivideFlat(f, f.Image, norm, NonFiniteFail)
	var serr *ShapeMismatchError
	if !errors.As(err, &serr) {
		t.Fatalf("error %T, want *ShapeMismatchError", err)
	}
	if serr.Got != "2x2" || serr.Want != "3x3" {
		t.Errorf("got %q want %q", serr.Got, serr.Want)
	}
}
