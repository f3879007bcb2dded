package service

import (
	"fmt"
	"image"
	"math"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/model"
	"github.com/lucasb-eyer/go-colorful"
)

// DiffBackend 某个颜色空间下的差异计算实现
type DiffBackend interface {
	Name() string
	Compute(original, result *image.NRGBA) (*model.DiffMap, error)
}

// DifferenceCalculator 计算原图与结果图的逐像素差异
type DifferenceCalculator struct {
	rgb DiffBackend
	lab DiffBackend
}

func NewDifferenceCalculator(cfg *config.MaskConfig) *DifferenceCalculator {
	return &DifferenceCalculator{
		rgb: rgbDiff{},
		lab: newLabDiff(cfg.LabScale),
	}
}

// SetLabBackend 替换 LAB 实现
func (dc *DifferenceCalculator) SetLabBackend(b DiffBackend) {
	dc.lab = b
}

// Compute 按指定方法计算差异图；LAB 不可用时降级为 RGB 并返回告警。
// 返回的 DifferenceMethod 为实际使用的方法。
func (dc *DifferenceCalculator) Compute(original, result image.Image, method model.DifferenceMethod) (*model.DiffMap, model.DifferenceMethod, []model.Warning, error) {
	if err := checkSameSize(original, result); err != nil {
		return nil, "", nil, err
	}
	o, r := toNRGBA(original), toNRGBA(result)

	chain := []attempt[*model.DiffMap]{}
	if method == model.DifferenceLAB && dc.lab != nil {
		chain = append(chain, attempt[*model.DiffMap]{
			name: string(model.DifferenceLAB),
			run:  func() (*model.DiffMap, error) { return dc.lab.Compute(o, r) },
		})
	}
	chain = append(chain, attempt[*model.DiffMap]{
		name: string(model.DifferenceRGB),
		run:  func() (*model.DiffMap, error) { return dc.rgb.Compute(o, r) },
	})

	dm, used, warnings, err := runChain("lab_difference", chain)
	if err != nil {
		return nil, "", warnings, fmt.Errorf("difference computation failed: %w", err)
	}
	return dm, model.DifferenceMethod(used), warnings, nil
}

type rgbDiff struct{}

func (rgbDiff) Name() string { return string(model.DifferenceRGB) }

// Compute mean(|ΔR|,|ΔG|,|ΔB|) / 255 * 100
func (rgbDiff) Compute(o, r *image.NRGBA) (*model.DiffMap, error) {
	w, h := o.Rect.Dx(), o.Rect.Dy()
	dm := model.NewDiffMap(w, h)
	const scale = 100.0 / (3 * 255)
	for y := 0; y < h; y++ {
		oi, ri := y*o.Stride, y*r.Stride
		for x := 0; x < w; x++ {
			d := absDiff(o.Pix[oi], r.Pix[ri]) + absDiff(o.Pix[oi+1], r.Pix[ri+1]) + absDiff(o.Pix[oi+2], r.Pix[ri+2])
			dm.Pix[y*w+x] = float32(d) * scale
			oi += 4
			ri += 4
		}
	}
	return dm, nil
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

// labDiff CIE LAB ΔE，go-colorful 的 L 取值为 [0,1]，黑白之间 ΔE≈1
type labDiff struct {
	scale  float64
	linear [256]float64
}

func newLabDiff(scale float64) *labDiff {
	ld := &labDiff{scale: scale}
	for i := range ld.linear {
		r, _, _ := colorful.Color{R: float64(i) / 255}.LinearRgb()
		ld.linear[i] = r
	}
	return ld
}

func (ld *labDiff) Name() string { return string(model.DifferenceLAB) }

func (ld *labDiff) Compute(o, r *image.NRGBA) (*model.DiffMap, error) {
	if ld.scale <= 0 || math.IsNaN(ld.scale) {
		return nil, fmt.Errorf("%w: lab scale %v", model.ErrCapabilityUnavailable, ld.scale)
	}
	w, h := o.Rect.Dx(), o.Rect.Dy()
	dm := model.NewDiffMap(w, h)
	for y := 0; y < h; y++ {
		oi, ri := y*o.Stride, y*r.Stride
		for x := 0; x < w; x++ {
			l1, a1, b1 := ld.lab(o.Pix[oi], o.Pix[oi+1], o.Pix[oi+2])
			l2, a2, b2 := ld.lab(r.Pix[ri], r.Pix[ri+1], r.Pix[ri+2])
			dl, da, db := l1-l2, a1-a2, b1-b2
			de := math.Sqrt(dl*dl+da*da+db*db) * ld.scale
			if de > 100 {
				de = 100
			}
			dm.Pix[y*w+x] = float32(de)
			oi += 4
			ri += 4
		}
	}
	return dm, nil
}

func (ld *labDiff) lab(r, g, b uint8) (float64, float64, float64) {
	x, y, z := colorful.LinearRgbToXyz(ld.linear[r], ld.linear[g], ld.linear[b])
	return colorful.XyzToLab(x, y, z)
}
