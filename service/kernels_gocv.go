//go:build gocv

package service

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"github.com/TIANLI0/MaskKit/model"
	"gocv.io/x/gocv"
)

func init() {
	nativeMorph = cvMorph
	nativeLabelComponents = cvLabelComponents
	nativeGaussianBlur = cvGaussianBlur
	nativeBoxMean = cvBoxMean
}

func cvUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", model.ErrCapabilityUnavailable, op, err)
}

func boolMat(bin []bool, w, h int) (gocv.Mat, error) {
	buf := make([]byte, len(bin))
	for i, v := range bin {
		if v {
			buf[i] = 255
		}
	}
	return gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, buf)
}

func floatMat(src []float32, w, h int) (gocv.Mat, error) {
	buf := make([]byte, 4*len(src))
	for i, v := range src {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return gocv.NewMatFromBytes(h, w, gocv.MatTypeCV32F, buf)
}

func matFloats(m gocv.Mat) ([]float32, error) {
	data, err := m.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}

// cvMorph 3x3 矩形结构元逐次腐蚀/膨胀，边界取 OpenCV 默认的形态学边界值（不影响结果）
func cvMorph(bin []bool, w, h, iterations int, erode bool) ([]bool, error) {
	src, err := boolMat(bin, w, h)
	if err != nil {
		return nil, cvUnavailable("morphology", err)
	}
	defer src.Close()

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: 3, Y: 3})
	defer kernel.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	for it := 0; it < iterations; it++ {
		if erode {
			gocv.Erode(src, &dst, kernel)
		} else {
			gocv.Dilate(src, &dst, kernel)
		}
		src, dst = dst, src
	}

	buf := src.ToBytes()
	if len(buf) != w*h {
		return nil, cvUnavailable("morphology", fmt.Errorf("unexpected output size %d", len(buf)))
	}
	out := make([]bool, w*h)
	for i, v := range buf {
		out[i] = v != 0
	}
	return out, nil
}

// cvLabelComponents 8 连通区域标记，统计列依次为 left/top/width/height/area
func cvLabelComponents(bin []bool, w, h int) ([]int, []component, error) {
	src, err := boolMat(bin, w, h)
	if err != nil {
		return nil, nil, cvUnavailable("connected components", err)
	}
	defer src.Close()

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStats(src, &labels, &stats, &centroids)

	raw, err := labels.DataPtrInt32()
	if err != nil {
		return nil, nil, cvUnavailable("connected components", err)
	}
	if len(raw) != w*h {
		return nil, nil, cvUnavailable("connected components", fmt.Errorf("unexpected label size %d", len(raw)))
	}
	out := make([]int, w*h)
	for i, l := range raw {
		out[i] = int(l)
	}

	// 标签 0 为背景
	comps := make([]component, 0, max(n-1, 0))
	for i := 1; i < n; i++ {
		left, top := int(stats.GetIntAt(i, 0)), int(stats.GetIntAt(i, 1))
		cw, ch := int(stats.GetIntAt(i, 2)), int(stats.GetIntAt(i, 3))
		comps = append(comps, component{
			label: i,
			area:  int(stats.GetIntAt(i, 4)),
			minX:  left,
			minY:  top,
			maxX:  left + cw - 1,
			maxY:  top + ch - 1,
		})
	}
	return out, comps, nil
}

// cvGaussianBlur 核半宽 ceil(3σ)，边界复制
func cvGaussianBlur(src []float32, w, h int, sigma float64) ([]float32, error) {
	m, err := floatMat(src, w, h)
	if err != nil {
		return nil, cvUnavailable("gaussian blur", err)
	}
	defer m.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	k := 2*int(math.Ceil(3*sigma)) + 1
	gocv.GaussianBlur(m, &dst, image.Pt(k, k), sigma, sigma, gocv.BorderReplicate)

	out, err := matFloats(dst)
	if err != nil {
		return nil, cvUnavailable("gaussian blur", err)
	}
	if len(out) != w*h {
		return nil, cvUnavailable("gaussian blur", fmt.Errorf("unexpected output size %d", len(out)))
	}
	return out, nil
}

// cvBoxMean (2r+1)² 窗口均值，图像边缘按 OpenCV 默认的 reflect101 处理
func cvBoxMean(src []float32, w, h, r int) ([]float32, error) {
	m, err := floatMat(src, w, h)
	if err != nil {
		return nil, cvUnavailable("box filter", err)
	}
	defer m.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.BoxFilter(m, &dst, -1, image.Point{X: 2*r + 1, Y: 2*r + 1})

	out, err := matFloats(dst)
	if err != nil {
		return nil, cvUnavailable("box filter", err)
	}
	if len(out) != w*h {
		return nil, cvUnavailable("box filter", fmt.Errorf("unexpected output size %d", len(out)))
	}
	return out, nil
}
