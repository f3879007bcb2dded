package service

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/TIANLI0/MaskKit/model"
)

type unavailableDiff struct{}

func (unavailableDiff) Name() string { return "lab" }

func (unavailableDiff) Compute(o, r *image.NRGBA) (*model.DiffMap, error) {
	return nil, model.ErrCapabilityUnavailable
}

func TestDifferenceIdenticalInputs(t *testing.T) {
	dc := NewDifferenceCalculator(testMaskConfig())
	img := createGradientImage(64, 48)

	for _, method := range []model.DifferenceMethod{model.DifferenceRGB, model.DifferenceLAB} {
		dm, used, warnings, err := dc.Compute(img, cloneNRGBA(img), method)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", method, err)
		}
		if used != method {
			t.Errorf("%s: used method %s", method, used)
		}
		if len(warnings) != 0 {
			t.Errorf("%s: unexpected warnings %v", method, warnings)
		}
		for i, v := range dm.Pix {
			if v != 0 {
				t.Fatalf("%s: pixel %d = %v, want 0", method, i, v)
			}
		}
	}
}

func TestDifferenceRGBInverted(t *testing.T) {
	dc := NewDifferenceCalculator(testMaskConfig())
	img := createPrimariesImage(30, 20)

	dm, _, _, err := dc.Compute(img, invertImage(img), model.DifferenceRGB)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range dm.Pix {
		if math.Abs(float64(v)-100) > 1e-3 {
			t.Fatalf("pixel %d = %v, want 100", i, v)
		}
	}
}

func TestDifferenceRGBValue(t *testing.T) {
	dc := NewDifferenceCalculator(testMaskConfig())
	a := createSolidImage(4, 4, color.NRGBA{100, 100, 100, 255})
	b := createSolidImage(4, 4, color.NRGBA{151, 100, 100, 255})

	dm, _, _, err := dc.Compute(a, b, model.DifferenceRGB)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 51.0 / 3 / 255 * 100
	if got := float64(dm.At(1, 1)); math.Abs(got-want) > 1e-3 {
		t.Errorf("diff = %v, want %v", got, want)
	}
}

func TestDifferenceLABBlackWhite(t *testing.T) {
	dc := NewDifferenceCalculator(testMaskConfig())
	black := createSolidImage(4, 4, color.NRGBA{0, 0, 0, 255})
	white := createSolidImage(4, 4, color.NRGBA{255, 255, 255, 255})

	dm, used, _, err := dc.Compute(black, white, model.DifferenceLAB)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if used != model.DifferenceLAB {
		t.Fatalf("used method %s, want lab", used)
	}
	if v := dm.At(0, 0); v < 99 || v > 100 {
		t.Errorf("black/white diff = %v, want ~100", v)
	}
}

func TestDifferenceLABFallsBackToRGB(t *testing.T) {
	dc := NewDifferenceCalculator(testMaskConfig())
	dc.SetLabBackend(unavailableDiff{})
	img := createGradientImage(16, 16)

	dm, used, warnings, err := dc.Compute(img, invertImage(img), model.DifferenceLAB)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if used != model.DifferenceRGB {
		t.Errorf("used method %s, want rgb", used)
	}
	if !hasWarning(warnings, model.WarnCapabilityUnavailable) {
		t.Errorf("expected capability warning, got %v", warnings)
	}
	if dm == nil || dm.Width != 16 {
		t.Errorf("expected a 16px wide diff map")
	}
}

func TestDifferenceDimensionMismatch(t *testing.T) {
	dc := NewDifferenceCalculator(testMaskConfig())
	_, _, _, err := dc.Compute(createGradientImage(10, 10), createGradientImage(10, 11), model.DifferenceRGB)

	var dim *model.DimensionMismatchError
	if !errors.As(err, &dim) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
	if dim.Original != image.Pt(10, 10) || dim.Result != image.Pt(10, 11) {
		t.Errorf("unexpected sizes in error: %+v", dim)
	}
}

func TestDifferenceNonZeroOrigin(t *testing.T) {
	dc := NewDifferenceCalculator(testMaskConfig())
	base := createGradientImage(20, 20)
	sub := base.SubImage(image.Rect(5, 5, 15, 15))

	dm, _, _, err := dc.Compute(sub, sub, model.DifferenceRGB)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dm.Width != 10 || dm.Height != 10 {
		t.Errorf("diff map is %dx%d, want 10x10", dm.Width, dm.Height)
	}
}
