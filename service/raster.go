package service

import (
	"image"

	"github.com/TIANLI0/MaskKit/model"
	"github.com/disintegration/imaging"
)

// toNRGBA 将任意图像规整为以 (0,0) 为原点、行间无填充的 *image.NRGBA，已满足条件时不复制
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) && n.Stride == 4*n.Rect.Dx() {
		return n
	}
	return imaging.Clone(img)
}

// checkSameSize 原图与结果图必须尺寸一致
func checkSameSize(original, result image.Image) error {
	o, r := original.Bounds().Size(), result.Bounds().Size()
	if o != r {
		return &model.DimensionMismatchError{Original: o, Result: r}
	}
	return nil
}

// cloneNRGBA 复制图像缓冲区
func cloneNRGBA(img *image.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(img.Rect)
	copy(out.Pix, img.Pix)
	return out
}

// grayGuide 生成 [0,1] 范围的亮度图，作为引导滤波的引导信号
func grayGuide(img *image.NRGBA) []float32 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := make([]float32, w*h)
	for y := 0; y < h; y++ {
		i := y * img.Stride
		for x := 0; x < w; x++ {
			r, g, b := img.Pix[i], img.Pix[i+1], img.Pix[i+2]
			out[y*w+x] = (0.299*float32(r) + 0.587*float32(g) + 0.114*float32(b)) / 255
			i += 4
		}
	}
	return out
}

// fitScale 计算将 (w,h) 缩放到最长边不超过 maxEdge 的比例
func fitScale(w, h, maxEdge int) float64 {
	if maxEdge <= 0 {
		return 1
	}
	m := max(w, h)
	if m <= maxEdge {
		return 1
	}
	return float64(maxEdge) / float64(m)
}

func clampByte(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
