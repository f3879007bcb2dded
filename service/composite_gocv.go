//go:build gocv

package service

import (
	"fmt"
	"image"

	"github.com/TIANLI0/MaskKit/model"
	"gocv.io/x/gocv"
)

func init() {
	nativeSeamlessClone = seamlessClone
}

// seamlessClone 调用 OpenCV 的 NormalClone，失败时报告能力不可用以便退回纯 Go 求解
func seamlessClone(original, result *image.NRGBA, mask *model.Mask) (*image.NRGBA, error) {
	src, err := gocv.ImageToMatRGB(result)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCapabilityUnavailable, err)
	}
	defer src.Close()

	dst, err := gocv.ImageToMatRGB(original)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCapabilityUnavailable, err)
	}
	defer dst.Close()

	bin := make([]byte, len(mask.Pix))
	for i, v := range mask.Pix {
		if v > 0 {
			bin[i] = 255
		}
	}
	m, err := gocv.NewMatFromBytes(mask.Height, mask.Width, gocv.MatTypeCV8U, bin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCapabilityUnavailable, err)
	}
	defer m.Close()

	b := mask.Bounds()
	center := image.Pt((b.Min.X+b.Max.X)/2, (b.Min.Y+b.Max.Y)/2)

	blend := gocv.NewMat()
	defer blend.Close()
	if err := gocv.SeamlessClone(src, dst, m, center, &blend, gocv.NormalClone); err != nil {
		return nil, fmt.Errorf("%w: seamlessClone: %v", model.ErrCapabilityUnavailable, err)
	}

	img, err := blend.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCapabilityUnavailable, err)
	}
	out := toNRGBA(img)

	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			v := clamp01f(mask.Pix[y*mask.Width+x])
			i := y*out.Stride + x*4
			if v <= 0 {
				copy(out.Pix[i:i+4], original.Pix[y*original.Stride+x*4:y*original.Stride+x*4+4])
				continue
			}
			o := float32(original.Pix[y*original.Stride+x*4+3])
			r := float32(result.Pix[y*result.Stride+x*4+3])
			out.Pix[i+3] = clampByte(o*(1-v) + r*v)
		}
	}
	return out, nil
}
