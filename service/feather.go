package service

import (
	"fmt"
	"image"
	"math"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/model"
)

// MaskFeatherer 柔化掩码边缘
type MaskFeatherer struct {
	cfg *config.MaskConfig
}

func NewMaskFeatherer(cfg *config.MaskConfig) *MaskFeatherer {
	return &MaskFeatherer{cfg: cfg}
}

// 由 gocv 构建提供，未启用时为 nil
var (
	nativeGaussianBlur func(src []float32, w, h int, sigma float64) ([]float32, error)
	nativeBoxMean      func(src []float32, w, h, r int) ([]float32, error)
)

// Feather 按半径柔化掩码。edgeAware 为 true 时优先使用以原图为引导的引导滤波，
// 不可用时退回高斯+幂曲线。两者都先尝试 OpenCV 实现。radius 为 0 时返回原掩码的副本。
func (mf *MaskFeatherer) Feather(mask *model.Mask, guide *image.NRGBA, radius int, edgeAware bool) (*model.Mask, string, []model.Warning) {
	if radius <= 0 {
		return mask.Clone(), "none", nil
	}

	var attempts []attempt[*model.Mask]
	if edgeAware {
		if nativeBoxMean != nil && checkGuide(mask, guide) == nil {
			attempts = append(attempts, attempt[*model.Mask]{
				name: "guided_gocv",
				run:  func() (*model.Mask, error) { return mf.guided(mask, guide, radius, nativeBoxMean) },
			})
		}
		attempts = append(attempts, attempt[*model.Mask]{
			name: "guided",
			run:  func() (*model.Mask, error) { return mf.guided(mask, guide, radius, goBoxMean) },
		})
	}
	if nativeGaussianBlur != nil {
		attempts = append(attempts, attempt[*model.Mask]{
			name: "power_curve_gocv",
			run:  func() (*model.Mask, error) { return mf.powerCurve(mask, radius, nativeGaussianBlur) },
		})
	}
	attempts = append(attempts, attempt[*model.Mask]{
		name: "power_curve",
		run:  func() (*model.Mask, error) { return mf.powerCurve(mask, radius, gaussianBlur) },
	})

	out, used, warnings, _ := runChain("feather", attempts)
	return out, used, warnings
}

// powerCurve 高斯模糊后做幂变换，压缩半透明过渡带
func (mf *MaskFeatherer) powerCurve(mask *model.Mask, radius int, blur func([]float32, int, int, float64) ([]float32, error)) (*model.Mask, error) {
	w, h := mask.Width, mask.Height
	blurred, err := blur(mask.Pix, w, h, float64(radius))
	if err != nil {
		return nil, err
	}

	out := model.NewMask(w, h)
	exp := mf.cfg.PowerCurve
	for i, v := range blurred {
		s := math.Min(math.Max(float64(v), 0), 1)
		out.Pix[i] = float32(math.Pow(s, exp))
	}
	return out, nil
}

// gaussianBlur 可分离高斯模糊，边界复制
func gaussianBlur(src []float32, w, h int, sigma float64) ([]float32, error) {
	kernel := gaussianKernel(sigma)
	kr := len(kernel) / 2

	tmp := make([]float32, w*h)
	for y := 0; y < h; y++ {
		row := src[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			var s float64
			for k, kv := range kernel {
				xx := min(max(x+k-kr, 0), w-1)
				s += kv * float64(row[xx])
			}
			tmp[y*w+x] = float32(s)
		}
	}

	out := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var s float64
			for k, kv := range kernel {
				yy := min(max(y+k-kr, 0), h-1)
				s += kv * float64(tmp[yy*w+x])
			}
			out[y*w+x] = float32(s)
		}
	}
	return out, nil
}

func goBoxMean(src []float32, w, h, r int) ([]float32, error) {
	return boxMean(src, w, h, r), nil
}

func checkGuide(mask *model.Mask, guide *image.NRGBA) error {
	if guide == nil {
		return fmt.Errorf("%w: no guide image", model.ErrCapabilityUnavailable)
	}
	if guide.Rect.Dx() != mask.Width || guide.Rect.Dy() != mask.Height {
		return fmt.Errorf("%w: guide is %dx%d, mask is %dx%d", model.ErrCapabilityUnavailable,
			guide.Rect.Dx(), guide.Rect.Dy(), mask.Width, mask.Height)
	}
	return nil
}

// guided 引导滤波：q = mean(a)·I + mean(b)，a = cov(I,p)/(var(I)+eps)
func (mf *MaskFeatherer) guided(mask *model.Mask, guide *image.NRGBA, radius int, box func([]float32, int, int, int) ([]float32, error)) (*model.Mask, error) {
	if err := checkGuide(mask, guide); err != nil {
		return nil, err
	}

	w, h := mask.Width, mask.Height
	r := 2 * radius
	eps := float32(mf.cfg.GuidedEps)

	I := grayGuide(guide)
	p := mask.Pix
	n := w * h

	Ip := make([]float32, n)
	II := make([]float32, n)
	for i := 0; i < n; i++ {
		Ip[i] = I[i] * p[i]
		II[i] = I[i] * I[i]
	}

	var means [4][]float32
	for k, src := range [][]float32{I, p, Ip, II} {
		m, err := box(src, w, h, r)
		if err != nil {
			return nil, err
		}
		means[k] = m
	}
	meanI, meanP, meanIp, meanII := means[0], means[1], means[2], means[3]

	a := make([]float32, n)
	b := make([]float32, n)
	for i := 0; i < n; i++ {
		cov := meanIp[i] - meanI[i]*meanP[i]
		variance := meanII[i] - meanI[i]*meanI[i]
		a[i] = cov / (variance + eps)
		b[i] = meanP[i] - a[i]*meanI[i]
	}

	meanA, err := box(a, w, h, r)
	if err != nil {
		return nil, err
	}
	meanB, err := box(b, w, h, r)
	if err != nil {
		return nil, err
	}

	out := model.NewMask(w, h)
	for i := 0; i < n; i++ {
		out.Pix[i] = clamp01f(meanA[i]*I[i] + meanB[i])
	}
	return out, nil
}

// gaussianKernel 归一化的一维高斯核，半宽为 ceil(3σ)
func gaussianKernel(sigma float64) []float64 {
	r := int(math.Ceil(3 * sigma))
	k := make([]float64, 2*r+1)
	var sum float64
	for i := -r; i <= r; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		k[i+r] = v
		sum += v
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

func clamp01f(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
