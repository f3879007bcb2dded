package service

import (
	"image"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/utils"
	"github.com/lucasb-eyer/go-colorful"
	"go.uber.org/zap"
)

// SkinToneRefiner 在掩码边缘附近削弱皮肤像素的权重，避免结果图的肤色渗入
type SkinToneRefiner struct {
	cfg *config.MaskConfig
}

func NewSkinToneRefiner(cfg *config.MaskConfig) *SkinToneRefiner {
	return &SkinToneRefiner{cfg: cfg}
}

// IsSkin 使用 8 位 HSV 刻度（H∈[0,180)，S、V∈[0,255]）判断肤色
func (sr *SkinToneRefiner) IsSkin(r, g, b uint8) bool {
	c := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	h, s, v := c.Hsv()
	h, s, v = h/2, s*255, v*255

	return h >= sr.cfg.SkinHueMin && h <= sr.cfg.SkinHueMax &&
		s >= sr.cfg.SkinSatMin && s <= sr.cfg.SkinSatMax &&
		v >= sr.cfg.SkinValMin && v <= sr.cfg.SkinValMax
}

// Refine 返回新掩码：边缘带内的皮肤像素乘以 (1-aggressiveness)
func (sr *SkinToneRefiner) Refine(mask *model.Mask, img *image.NRGBA, aggressiveness float64) *model.Mask {
	out := mask.Clone()
	if aggressiveness <= 0 {
		return out
	}
	if aggressiveness > 1 {
		aggressiveness = 1
	}

	w, h := mask.Width, mask.Height
	var nearEdge []bool
	if sr.cfg.SkinEdgeBand > 0 {
		zeros := make([]float32, w*h)
		for i, v := range mask.Pix {
			if v <= 0 {
				zeros[i] = 1
			}
		}
		nearEdge = boxAny(zeros, w, h, sr.cfg.SkinEdgeBand)
	}

	keep := float32(1 - aggressiveness)
	trimmed := 0
	for y := 0; y < h; y++ {
		row := y * img.Stride
		for x := 0; x < w; x++ {
			i := y*w + x
			if mask.Pix[i] <= 0 {
				continue
			}
			if nearEdge != nil && !nearEdge[i] {
				continue
			}
			p := row + x*4
			if sr.IsSkin(img.Pix[p], img.Pix[p+1], img.Pix[p+2]) {
				out.Pix[i] *= keep
				trimmed++
			}
		}
	}

	utils.Logger.Debug("skin pixels trimmed",
		zap.Int("pixels", trimmed),
		zap.Float64("aggressiveness", aggressiveness))
	return out
}
