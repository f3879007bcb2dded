package service

import (
	"context"
	"image"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/utils"
	"go.uber.org/zap"
)

// nativeSeamlessClone 由 gocv 构建提供，未启用时为 nil
var nativeSeamlessClone func(original, result *image.NRGBA, mask *model.Mask) (*image.NRGBA, error)

// Compositor 按掩码合成原图与结果图
type Compositor struct {
	cfg *config.MaskConfig
}

func NewCompositor(cfg *config.MaskConfig) *Compositor {
	return &Compositor{cfg: cfg}
}

// Composite 合成图像，返回实际使用的合成方式。
// 梯度域合成依次尝试 OpenCV seamlessClone、纯 Go 泊松求解，最后退回 alpha 混合。
func (c *Compositor) Composite(ctx context.Context, original, result *image.NRGBA, mask *model.Mask, gradient bool) (*image.NRGBA, model.BlendMode, []model.Warning, error) {
	if err := checkSameSize(original, result); err != nil {
		return nil, "", nil, err
	}
	if mask.Size() != original.Rect.Size() {
		return nil, "", nil, &model.DimensionMismatchError{Original: original.Rect.Size(), Result: mask.Size()}
	}

	if !gradient {
		return c.Alpha(original, result, mask), model.BlendAlpha, nil, nil
	}

	if mask.IsEmpty() || !mask.HasOpaque() {
		w := model.Warning{Kind: model.WarnSolverIllPosed, Detail: "mask has no fully opaque pixel, returning original"}
		utils.Logger.Warn("gradient blend skipped", zap.String("reason", w.Detail))
		return cloneNRGBA(original), model.BlendNone, []model.Warning{w}, nil
	}

	var attempts []attempt[*image.NRGBA]
	if nativeSeamlessClone != nil {
		attempts = append(attempts, attempt[*image.NRGBA]{
			name: "seamless_clone",
			run:  func() (*image.NRGBA, error) { return nativeSeamlessClone(original, result, mask) },
		})
	}
	attempts = append(attempts,
		attempt[*image.NRGBA]{
			name: "poisson",
			run:  func() (*image.NRGBA, error) { return c.Poisson(ctx, original, result, mask) },
		},
		attempt[*image.NRGBA]{
			name: "alpha",
			run:  func() (*image.NRGBA, error) { return c.Alpha(original, result, mask), nil },
		},
	)

	out, used, warnings, err := runChain("gradient_blend", attempts)
	if err != nil {
		return nil, "", warnings, err
	}
	if used == "alpha" {
		return out, model.BlendAlpha, warnings, nil
	}
	return out, model.BlendGradient, warnings, nil
}

// Alpha 逐通道线性混合：o·(1-m) + r·m，四舍五入到 8 位
func (c *Compositor) Alpha(original, result *image.NRGBA, mask *model.Mask) *image.NRGBA {
	w, h := mask.Width, mask.Height
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		oi, ri, di := y*original.Stride, y*result.Stride, y*out.Stride
		for x := 0; x < w; x++ {
			m := clamp01f(mask.Pix[y*w+x])
			for k := 0; k < 4; k++ {
				o, r := float32(original.Pix[oi+k]), float32(result.Pix[ri+k])
				out.Pix[di+k] = clampByte(o*(1-m) + r*m)
			}
			oi += 4
			ri += 4
			di += 4
		}
	}
	return out
}
