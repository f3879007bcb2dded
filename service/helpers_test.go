package service

import (
	"image"
	"image/color"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/model"
)

func testMaskConfig() *config.MaskConfig {
	cfg := config.DefaultMask()
	return &cfg
}

func testPipelineConfig() *config.PipelineConfig {
	return &config.PipelineConfig{
		MaxConcurrent:  2,
		QueueTimeout:   5,
		PreviewMaxEdge: 800,
		FaceCache:      "memory",
		FaceCacheSize:  50,
	}
}

// createSolidImage creates an image filled with a single color
func createSolidImage(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

// createGradientImage creates an opaque image with a smooth color gradient
func createGradientImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / max(1, width-1)),
				G: uint8(y * 255 / max(1, height-1)),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	return img
}

// createPrimariesImage uses only 0/255 channel values so inverting it changes every channel fully
func createPrimariesImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			k := (x/7 + y/5) % 8
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(255 * (k & 1)),
				G: uint8(255 * ((k >> 1) & 1)),
				B: uint8(255 * ((k >> 2) & 1)),
				A: 255,
			})
		}
	}
	return img
}

func invertImage(src *image.NRGBA) *image.NRGBA {
	out := cloneNRGBA(src)
	for i := 0; i < len(out.Pix); i += 4 {
		out.Pix[i] = 255 - out.Pix[i]
		out.Pix[i+1] = 255 - out.Pix[i+1]
		out.Pix[i+2] = 255 - out.Pix[i+2]
	}
	return out
}

// paintRect fills r with a single color
func paintRect(dst *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.SetNRGBA(x, y, c)
		}
	}
}

func rectMask(width, height int, r image.Rectangle, v float32) *model.Mask {
	m := model.NewMask(width, height)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.Set(x, y, v)
		}
	}
	return m
}

func diffMapWithRects(width, height int, value float32, rects ...image.Rectangle) *model.DiffMap {
	dm := model.NewDiffMap(width, height)
	for _, r := range rects {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				dm.Pix[y*width+x] = value
			}
		}
	}
	return dm
}

func maxChannelDiff(a, b *image.NRGBA) int {
	worst := 0
	for i := range a.Pix {
		d := int(a.Pix[i]) - int(b.Pix[i])
		if d < 0 {
			d = -d
		}
		worst = max(worst, d)
	}
	return worst
}

func hasWarning(ws []model.Warning, kind model.WarningKind) bool {
	for _, w := range ws {
		if w.Kind == kind {
			return true
		}
	}
	return false
}
