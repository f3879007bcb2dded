package service

import (
	"context"
	"fmt"
	"image"
	"sort"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/utils"
	"go.uber.org/zap"
)

// FaceDetector 人脸区域检测能力，任意实现均可注入
type FaceDetector interface {
	DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error)
}

// FaceDetectorFunc 函数适配器
type FaceDetectorFunc func(ctx context.Context, img image.Image) ([]image.Rectangle, error)

func (f FaceDetectorFunc) DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	return f(ctx, img)
}

// StaticDetector 返回调用方预先提供的人脸框
type StaticDetector []image.Rectangle

func (s StaticDetector) DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	out := make([]image.Rectangle, len(s))
	copy(out, s)
	return out, nil
}

// FaceExclusionProvider 检测人脸并生成需要强制保留原图的椭圆区域
type FaceExclusionProvider struct {
	detector FaceDetector
	cache    FaceCache
	cfg      *config.MaskConfig
}

func NewFaceExclusionProvider(cfg *config.MaskConfig, detector FaceDetector, cache FaceCache) *FaceExclusionProvider {
	if cache == nil {
		cache = NopFaceCache{}
	}
	return &FaceExclusionProvider{detector: detector, cache: cache, cfg: cfg}
}

// Zones 在 img 上检测人脸（优先读缓存），过滤误检后按 scale 缩放为椭圆区域。
// img 为全分辨率原图，scale 为掩码相对原图的缩放比例。
func (fp *FaceExclusionProvider) Zones(ctx context.Context, img *image.NRGBA, scale float64) ([]model.ExclusionZone, error) {
	if fp.detector == nil {
		return nil, fmt.Errorf("%w: no face detector configured", model.ErrCapabilityUnavailable)
	}

	key := utils.ImageHash(img)
	faces, ok, err := fp.cache.Get(ctx, key)
	if err != nil {
		utils.Logger.Warn("face cache lookup failed", zap.String("key", key), zap.Error(err))
	}
	if !ok {
		faces, err = fp.detector.DetectFaces(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("face detection failed: %w", err)
		}
		if err := fp.cache.Put(ctx, key, faces); err != nil {
			utils.Logger.Warn("face cache store failed", zap.String("key", key), zap.Error(err))
		}
	} else {
		utils.Logger.Debug("face cache hit", zap.String("key", key), zap.Int("faces", len(faces)))
	}

	b := img.Bounds()
	filtered := fp.FilterFaces(faces, b.Dx(), b.Dy())

	zones := make([]model.ExclusionZone, 0, len(filtered))
	for _, f := range filtered {
		z := fp.ZoneForFace(f)
		zones = append(zones, model.ExclusionZone{
			CX: z.CX * scale,
			CY: z.CY * scale,
			RX: z.RX * scale,
			RY: z.RY * scale,
		})
	}
	return zones, nil
}

// FilterFaces 去除过小的人脸和相对最大人脸过小的背景误检
func (fp *FaceExclusionProvider) FilterFaces(faces []image.Rectangle, width, height int) []image.Rectangle {
	minRel := fp.cfg.MinFaceRelative * float64(max(width, height))

	var sized []image.Rectangle
	for _, f := range faces {
		f = f.Canon()
		w, h := f.Dx(), f.Dy()
		if w < fp.cfg.MinFaceSize || h < fp.cfg.MinFaceSize {
			continue
		}
		if float64(max(w, h)) < minRel {
			continue
		}
		sized = append(sized, f)
	}
	if len(sized) <= 1 {
		return sized
	}

	sort.Slice(sized, func(i, j int) bool { return area(sized[i]) > area(sized[j]) })
	largest := float64(area(sized[0]))
	out := sized[:1]
	for _, f := range sized[1:] {
		if float64(area(f)) >= fp.cfg.MinFaceAreaRatio*largest {
			out = append(out, f)
		}
	}
	return out
}

// ZoneForFace 将人脸框转换为椭圆：face_hair 向上偏移并放大以覆盖头发，
// inner_face 只覆盖面部
func (fp *FaceExclusionProvider) ZoneForFace(r image.Rectangle) model.ExclusionZone {
	x, y := float64(r.Min.X), float64(r.Min.Y)
	w, h := float64(r.Dx()), float64(r.Dy())

	if fp.cfg.FaceEllipse == "inner_face" {
		return model.ExclusionZone{
			CX: x + w/2,
			CY: y + h/2,
			RX: fp.cfg.InnerFaceRadiusX * w,
			RY: fp.cfg.InnerFaceRadiusY * h,
		}
	}
	return model.ExclusionZone{
		CX: x + w/2,
		CY: y + h/2 - fp.cfg.FaceShiftY*h,
		RX: fp.cfg.FaceRadiusX * w,
		RY: fp.cfg.FaceRadiusY * h,
	}
}

// ApplyExclusions 返回新掩码，椭圆内像素强制为 0
func ApplyExclusions(mask *model.Mask, zones []model.ExclusionZone) *model.Mask {
	out := mask.Clone()
	full := image.Rect(0, 0, mask.Width, mask.Height)
	for _, z := range zones {
		r := z.Bounds().Intersect(full)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				if z.Contains(x, y) {
					out.Pix[y*mask.Width+x] = 0
				}
			}
		}
	}
	return out
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}
