package service

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"sync/atomic"
	"testing"

	"github.com/TIANLI0/MaskKit/model"
)

// countingDetector counts calls so tests can observe cache hits
type countingDetector struct {
	calls atomic.Int32
	faces []image.Rectangle
}

func (d *countingDetector) DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	d.calls.Add(1)
	return d.faces, nil
}

func TestFilterFaces(t *testing.T) {
	fp := NewFaceExclusionProvider(testMaskConfig(), nil, nil)

	faces := []image.Rectangle{
		image.Rect(0, 0, 200, 200),     // 最大
		image.Rect(300, 0, 420, 120),   // 120x120 = 36% of largest, kept
		image.Rect(500, 0, 590, 90),    // 90x90 = 20% of largest, dropped
		image.Rect(600, 600, 650, 650), // below 80px
	}
	got := fp.FilterFaces(faces, 1000, 1000)

	if len(got) != 2 {
		t.Fatalf("kept %d faces, want 2: %v", len(got), got)
	}
	if got[0] != faces[0] || got[1] != faces[1] {
		t.Errorf("unexpected faces kept: %v", got)
	}
}

func TestFilterFacesRelativeSize(t *testing.T) {
	fp := NewFaceExclusionProvider(testMaskConfig(), nil, nil)
	// 3% of 4000 = 120px
	got := fp.FilterFaces([]image.Rectangle{image.Rect(0, 0, 100, 100)}, 4000, 3000)
	if len(got) != 0 {
		t.Errorf("face smaller than 3%% of the image should be dropped")
	}
}

func TestZoneForFace(t *testing.T) {
	cfg := testMaskConfig()
	fp := NewFaceExclusionProvider(cfg, nil, nil)
	r := image.Rect(100, 200, 200, 300)

	z := fp.ZoneForFace(r)
	want := model.ExclusionZone{CX: 150, CY: 235, RX: 70, RY: 120}
	if !zoneAlmostEqual(z, want) {
		t.Errorf("face_hair zone = %+v, want %+v", z, want)
	}

	cfg.FaceEllipse = "inner_face"
	z = fp.ZoneForFace(r)
	want = model.ExclusionZone{CX: 150, CY: 250, RX: 40, RY: 50}
	if !zoneAlmostEqual(z, want) {
		t.Errorf("inner_face zone = %+v, want %+v", z, want)
	}
}

func zoneAlmostEqual(a, b model.ExclusionZone) bool {
	const eps = 1e-9
	return math.Abs(a.CX-b.CX) < eps && math.Abs(a.CY-b.CY) < eps &&
		math.Abs(a.RX-b.RX) < eps && math.Abs(a.RY-b.RY) < eps
}

func TestApplyExclusionsInvariant(t *testing.T) {
	mask := model.NewFilledMask(120, 100, 1)
	zones := []model.ExclusionZone{
		{CX: 30, CY: 40, RX: 20, RY: 35},
		{CX: 110, CY: 90, RX: 25, RY: 25}, // 超出图像边界
	}

	out := ApplyExclusions(mask, zones)

	for y := 0; y < 100; y++ {
		for x := 0; x < 120; x++ {
			inside := false
			for _, z := range zones {
				if z.Contains(x, y) {
					inside = true
				}
			}
			if inside && out.At(x, y) != 0 {
				t.Fatalf("pixel (%d,%d) inside a zone has mask %v", x, y, out.At(x, y))
			}
			if !inside && out.At(x, y) != 1 {
				t.Fatalf("pixel (%d,%d) outside zones changed to %v", x, y, out.At(x, y))
			}
		}
	}
	if mask.At(30, 40) != 1 {
		t.Errorf("input mask must not be mutated")
	}
}

func TestZonesUsesCache(t *testing.T) {
	det := &countingDetector{faces: []image.Rectangle{image.Rect(50, 50, 150, 150)}}
	cache := NewMemoryFaceCache(4)
	fp := NewFaceExclusionProvider(testMaskConfig(), det, cache)
	img := createGradientImage(300, 300)

	for i := 0; i < 3; i++ {
		zones, err := fp.Zones(context.Background(), img, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(zones) != 1 {
			t.Fatalf("got %d zones, want 1", len(zones))
		}
	}
	if n := det.calls.Load(); n != 1 {
		t.Errorf("detector called %d times, want 1", n)
	}

	other := createSolidImage(300, 300, color.NRGBA{10, 20, 30, 255})
	if _, err := fp.Zones(context.Background(), other, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := det.calls.Load(); n != 2 {
		t.Errorf("a different image should miss the cache, detector called %d times", n)
	}
}

func TestZonesScaled(t *testing.T) {
	det := StaticDetector{image.Rect(100, 100, 300, 300)}
	fp := NewFaceExclusionProvider(testMaskConfig(), det, nil)

	zones, err := fp.Zones(context.Background(), createGradientImage(400, 400), 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := model.ExclusionZone{CX: 100, CY: 85, RX: 70, RY: 120}
	if len(zones) != 1 || !zoneAlmostEqual(zones[0], want) {
		t.Errorf("zones = %+v, want [%+v]", zones, want)
	}
}

func TestZonesWithoutDetector(t *testing.T) {
	fp := NewFaceExclusionProvider(testMaskConfig(), nil, nil)
	_, err := fp.Zones(context.Background(), createGradientImage(10, 10), 1)
	if !errors.Is(err, model.ErrCapabilityUnavailable) {
		t.Errorf("expected ErrCapabilityUnavailable, got %v", err)
	}
}

func TestDetectorError(t *testing.T) {
	boom := errors.New("boom")
	det := FaceDetectorFunc(func(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
		return nil, boom
	})
	fp := NewFaceExclusionProvider(testMaskConfig(), det, nil)

	_, err := fp.Zones(context.Background(), createGradientImage(10, 10), 1)
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped detector error, got %v", err)
	}
}

func TestCascadeDetectorStub(t *testing.T) {
	d, err := NewCascadeDetector("missing.xml")
	if err == nil {
		defer d.Close()
		t.Skip("gocv build with a loadable cascade")
	}
	if !errors.Is(err, model.ErrCapabilityUnavailable) {
		t.Errorf("expected ErrCapabilityUnavailable, got %v", err)
	}
}
