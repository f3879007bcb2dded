package service

import (
	"image"

	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/utils"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// ColorHarmonizer 将保留区域的整体色调向结果图靠拢，减少拼接处的色差
type ColorHarmonizer struct{}

func NewColorHarmonizer() *ColorHarmonizer {
	return &ColorHarmonizer{}
}

// Harmonize 计算色调偏移 shift = mean(result) - mean(original[mask<0.5])，
// 只对保留区域（mask<0.5）的像素加上 shift·strength·(1-mask)，其余像素保持不变。
func (ch *ColorHarmonizer) Harmonize(composite, original, result *image.NRGBA, mask *model.Mask, strength float64) *image.NRGBA {
	out := cloneNRGBA(composite)
	if strength <= 0 {
		return out
	}

	w, h := mask.Width, mask.Height
	n := w * h
	weights := make([]float64, n)
	preserved := 0
	for i, v := range mask.Pix {
		if v < 0.5 {
			weights[i] = 1
			preserved++
		}
	}
	if preserved == 0 {
		return out
	}

	var shift [3]float64
	samples := make([]float64, n)
	for c := 0; c < 3; c++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				samples[y*w+x] = float64(original.Pix[y*original.Stride+x*4+c])
			}
		}
		meanPreserved := stat.Mean(samples, weights)

		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				samples[y*w+x] = float64(result.Pix[y*result.Stride+x*4+c])
			}
		}
		meanResult := stat.Mean(samples, nil)

		shift[c] = (meanResult - meanPreserved) * strength
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m := clamp01f(mask.Pix[y*w+x])
			if m >= 0.5 {
				continue
			}
			i := y*out.Stride + x*4
			for c := 0; c < 3; c++ {
				out.Pix[i+c] = clampByte(float32(float64(out.Pix[i+c]) + shift[c]*float64(1-m)))
			}
		}
	}

	utils.Logger.Debug("colors harmonized",
		zap.Float64("shift_r", shift[0]),
		zap.Float64("shift_g", shift[1]),
		zap.Float64("shift_b", shift[2]))
	return out
}
