package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/utils"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// ErrQueueFull 等待处理槽位超时
var ErrQueueFull = errors.New("processing queue is full")

// SmartMaskService 串联 8 个阶段生成掩码并合成图像
type SmartMaskService struct {
	semaphore      chan struct{}
	queueTimeout   time.Duration
	previewMaxEdge int

	difference *DifferenceCalculator
	threshold  *ThresholdEstimator
	region     *RegionIsolator
	faces      *FaceExclusionProvider
	skin       *SkinToneRefiner
	feather    *MaskFeatherer
	compositor *Compositor
	harmonizer *ColorHarmonizer

	maskCfg *config.MaskConfig
}

// NewSmartMaskService detector 可以为 nil，此时 excludeFaces 只会产生能力不可用告警
func NewSmartMaskService(maskCfg *config.MaskConfig, pipeCfg *config.PipelineConfig, detector FaceDetector, cache FaceCache) *SmartMaskService {
	if cache == nil {
		cache = NopFaceCache{}
	}
	return &SmartMaskService{
		semaphore:      make(chan struct{}, max(1, pipeCfg.MaxConcurrent)),
		queueTimeout:   time.Duration(pipeCfg.QueueTimeout) * time.Second,
		previewMaxEdge: pipeCfg.PreviewMaxEdge,
		difference:     NewDifferenceCalculator(maskCfg),
		threshold:      NewThresholdEstimator(maskCfg),
		region:         NewRegionIsolator(maskCfg),
		faces:          NewFaceExclusionProvider(maskCfg, detector, cache),
		skin:           NewSkinToneRefiner(maskCfg),
		feather:        NewMaskFeatherer(maskCfg),
		compositor:     NewCompositor(maskCfg),
		harmonizer:     NewColorHarmonizer(),
		maskCfg:        maskCfg,
	}
}

// WithFaceDetector 返回使用指定人脸检测器的副本。并发槽位共享；
// 注入的检测结果不写入共享缓存，避免覆盖真实检测器的结果。
func (s *SmartMaskService) WithFaceDetector(detector FaceDetector) *SmartMaskService {
	c := *s
	c.faces = NewFaceExclusionProvider(s.maskCfg, detector, NopFaceCache{})
	return &c
}

// Generate 全分辨率生成掩码并合成
func (s *SmartMaskService) Generate(ctx context.Context, original, result image.Image, params model.MaskParameters) (*model.MaskResult, error) {
	return s.process(ctx, original, result, params, false)
}

// Preview 在缩小到 previewMaxEdge 的副本上运行同样的管线
func (s *SmartMaskService) Preview(ctx context.Context, original, result image.Image, params model.MaskParameters) (*model.MaskResult, error) {
	return s.process(ctx, original, result, params, true)
}

// GenerateWithPreset 使用具名预设的参数生成
func (s *SmartMaskService) GenerateWithPreset(ctx context.Context, original, result image.Image, preset string) (*model.MaskResult, error) {
	p, ok := LookupPreset(preset)
	if !ok {
		return nil, fmt.Errorf("unknown preset %q", preset)
	}
	return s.Generate(ctx, original, result, p.Parameters())
}

func (s *SmartMaskService) process(ctx context.Context, original, result image.Image, params model.MaskParameters, preview bool) (*model.MaskResult, error) {
	if err := checkSameSize(original, result); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	params = params.Normalize()

	// 并发控制
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer func() { <-s.semaphore }()

	startTime := time.Now()

	fullOriginal := toNRGBA(original)
	o, r := fullOriginal, toNRGBA(result)
	scale := 1.0
	if preview {
		scale = fitScale(o.Rect.Dx(), o.Rect.Dy(), s.previewMaxEdge)
		if scale < 1 {
			w := max(1, int(math.Round(float64(o.Rect.Dx())*scale)))
			h := max(1, int(math.Round(float64(o.Rect.Dy())*scale)))
			o = imaging.Resize(o, w, h, imaging.Box)
			r = imaging.Resize(r, w, h, imaging.Box)
			scale = float64(w) / float64(fullOriginal.Rect.Dx())
		}
	}

	res, err := s.run(ctx, o, r, fullOriginal, scale, params)
	if err != nil {
		return nil, err
	}
	res.Metadata.Preview = preview
	res.Metadata.ElapsedMs = time.Since(startTime).Milliseconds()

	utils.Logger.Info("mask generated",
		zap.Int("width", res.Metadata.Width),
		zap.Int("height", res.Metadata.Height),
		zap.Bool("preview", preview),
		zap.Float64("threshold", res.Metadata.ThresholdUsed),
		zap.String("blend_mode", string(res.Metadata.BlendMode)),
		zap.Int("warnings", len(res.Warnings)),
		zap.Duration("duration", time.Since(startTime)))

	return res, nil
}

// acquire 获取处理槽位，排队超过 queueTimeout 返回 ErrQueueFull
func (s *SmartMaskService) acquire(ctx context.Context) error {
	select {
	case s.semaphore <- struct{}{}:
		return nil
	default:
	}

	queueCtx, cancel := context.WithTimeout(ctx, s.queueTimeout)
	defer cancel()

	select {
	case s.semaphore <- struct{}{}:
		return nil
	case <-queueCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrQueueFull
	}
}

// run 依次执行：差异、阈值、区域、人脸排除、皮肤修整、羽化、合成、色调协调
func (s *SmartMaskService) run(ctx context.Context, o, r, fullOriginal *image.NRGBA, scale float64, params model.MaskParameters) (*model.MaskResult, error) {
	var warnings []model.Warning
	warn := func(ws ...model.Warning) {
		for _, w := range ws {
			utils.Logger.Warn("pipeline warning", zap.String("kind", string(w.Kind)), zap.String("detail", w.Detail))
		}
		warnings = append(warnings, ws...)
	}
	stage := func(name string) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled before %s: %w", name, err)
		}
		return nil
	}

	w, h := o.Rect.Dx(), o.Rect.Dy()
	meta := model.Metadata{Width: w, Height: h}

	// 1. 差异
	if err := stage("difference"); err != nil {
		return nil, err
	}
	dm, method, ws, err := s.difference.Compute(o, r, params.DifferenceMethod)
	if err != nil {
		return nil, err
	}
	warn(ws...)
	meta.DifferenceMethod = method

	// 2. 阈值
	if err := stage("threshold"); err != nil {
		return nil, err
	}
	if params.Threshold != nil {
		meta.ThresholdUsed = *params.Threshold
	} else {
		meta.ThresholdUsed = s.threshold.Estimate(dm)
		meta.ThresholdAuto = true
	}

	// 3. 区域分离
	if err := stage("region"); err != nil {
		return nil, err
	}
	mask := s.region.WithAreaScale(scale*scale).Isolate(dm, meta.ThresholdUsed, params.FocusPrimaryRegion)
	if mask.IsEmpty() {
		warn(model.Warning{Kind: model.WarnDegenerateMask, Detail: "no region above threshold, original kept"})
	}

	// 4. 人脸排除
	if err := stage("faces"); err != nil {
		return nil, err
	}
	var zones []model.ExclusionZone
	if params.ExcludeFaces {
		zones, err = s.faces.Zones(ctx, fullOriginal, scale)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			warn(model.CapabilityWarning("face_detection", err))
			zones = nil
		}
		mask = ApplyExclusions(mask, zones)
		meta.FacesExcluded = len(zones)
	}

	// 5. 皮肤修整
	if err := stage("skin"); err != nil {
		return nil, err
	}
	if params.ExcludeSkin && !mask.IsEmpty() {
		mask = s.skin.Refine(mask, o, params.SkinAggressiveness)
		if mask.IsEmpty() {
			warn(model.Warning{Kind: model.WarnDegenerateMask, Detail: "skin refinement removed every masked pixel"})
		}
	}

	// 6. 羽化
	if err := stage("feather"); err != nil {
		return nil, err
	}
	radius := params.FeatherRadius
	if scale < 1 && radius > 0 {
		radius = max(1, int(math.Round(float64(radius)*scale)))
	}
	meta.FeatherRadiusUsed = radius
	mask, _, ws = s.feather.Feather(mask, o, radius, params.UseEdgeAwareFeather)
	warn(ws...)
	if len(zones) > 0 {
		// 羽化可能把权重扩散回人脸区域
		mask = ApplyExclusions(mask, zones)
	}

	// 7. 合成
	if err := stage("composite"); err != nil {
		return nil, err
	}
	out, mode, ws, err := s.compositor.Composite(ctx, o, r, mask, params.UseGradientBlend)
	if err != nil {
		return nil, fmt.Errorf("composite failed: %w", err)
	}
	warn(ws...)
	meta.BlendMode = mode

	// 8. 色调协调
	if err := stage("harmonize"); err != nil {
		return nil, err
	}
	if params.HarmonizeColors {
		out = s.harmonizer.Harmonize(out, o, r, mask, params.HarmonizeStrength)
	}

	meta.MaskCoverage = float64(mask.CountPositive()) / float64(max(1, w*h))

	return &model.MaskResult{
		Image:    out,
		Mask:     mask,
		Metadata: meta,
		Warnings: warnings,
	}, nil
}
