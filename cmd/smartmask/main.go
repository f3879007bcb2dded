package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/service"
	"github.com/TIANLI0/MaskKit/utils"
	"go.uber.org/zap"
)

// sidecar 写在输出图旁边的 JSON 元数据
type sidecar struct {
	Original string               `json:"original"`
	Result   string               `json:"result"`
	Preset   string               `json:"preset,omitempty"`
	Params   model.MaskParameters `json:"parameters"`
	Metadata model.Metadata       `json:"metadata"`
	Warnings []model.Warning      `json:"warnings,omitempty"`
}

func main() {
	var originalPath, resultPath, outPath, maskPath, presetName, configPath string
	var threshold float64
	var feather int
	var focusPrimary, excludeFaces, excludeSkin, edgeAware, gradient, harmonize, preview, verbose bool
	var method, faces string
	var quality int

	flag.StringVar(&originalPath, "original", "", "original image (jpg/png/webp)")
	flag.StringVar(&resultPath, "result", "", "edited result image, same size as original")
	flag.StringVar(&outPath, "out", "composite.png", "output composite path (png/jpg/webp)")
	flag.StringVar(&maskPath, "mask", "", "optional path to write the final mask as PNG")
	flag.StringVar(&presetName, "preset", "", "preset name: PortraitUpperBody|FullBody|Aggressive|Conservative")
	flag.StringVar(&configPath, "config", "", "optional config.yaml with mask constants")
	flag.Float64Var(&threshold, "threshold", -1, "difference threshold 0-100, negative = auto")
	flag.IntVar(&feather, "feather", -1, "feather radius in px, negative = preset/default")
	flag.BoolVar(&focusPrimary, "focus-primary", true, "keep only the primary changed region")
	flag.BoolVar(&excludeFaces, "exclude-faces", false, "pin detected faces to the original")
	flag.BoolVar(&excludeSkin, "exclude-skin", false, "trim skin pixels near mask edges")
	flag.BoolVar(&edgeAware, "edge-aware", false, "use guided-filter feathering")
	flag.BoolVar(&gradient, "gradient", false, "use gradient-domain (Poisson) blending")
	flag.BoolVar(&harmonize, "harmonize", false, "harmonize preserved-region colors")
	flag.BoolVar(&preview, "preview", false, "run on a downsampled copy")
	flag.StringVar(&method, "method", "rgb", "difference method: rgb|lab")
	flag.StringVar(&faces, "faces", "", "face boxes x,y,w,h;x,y,w,h (skips detection)")
	flag.IntVar(&quality, "quality", 92, "jpg/webp quality")
	flag.BoolVar(&verbose, "v", false, "verbose logging")
	flag.Parse()

	if originalPath == "" || resultPath == "" {
		log.Fatalf("usage: %s -original a.jpg -result b.jpg [-out out.png] [-preset Name] [-mask mask.png]", filepath.Base(os.Args[0]))
	}

	mode := "release"
	if verbose {
		mode = "debug"
	}
	if err := utils.InitLogger(mode); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer utils.Sync()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	params := model.DefaultParameters()
	if presetName != "" {
		p, ok := service.LookupPreset(presetName)
		if !ok {
			log.Fatalf("unknown preset %q", presetName)
		}
		params = p.Parameters()
	}

	// 只覆盖命令行上显式给出的参数
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "threshold":
			if threshold >= 0 {
				params.Threshold = model.ThresholdValue(threshold)
			} else {
				params.Threshold = nil
			}
		case "feather":
			if feather >= 0 {
				params.FeatherRadius = feather
			}
		case "focus-primary":
			params.FocusPrimaryRegion = focusPrimary
		case "exclude-faces":
			params.ExcludeFaces = excludeFaces
		case "exclude-skin":
			params.ExcludeSkin = excludeSkin
		case "edge-aware":
			params.UseEdgeAwareFeather = edgeAware
		case "gradient":
			params.UseGradientBlend = gradient
		case "harmonize":
			params.HarmonizeColors = harmonize
		}
	})
	m, err := model.ParseDifferenceMethod(method)
	if err != nil {
		log.Fatalf("%v", err)
	}
	params.DifferenceMethod = m

	original, err := utils.LoadImage(originalPath)
	if err != nil {
		log.Fatalf("load original: %v", err)
	}
	result, err := utils.LoadImage(resultPath)
	if err != nil {
		log.Fatalf("load result: %v", err)
	}

	var detector service.FaceDetector
	if faces != "" {
		boxes, err := model.ParseBBoxes(faces)
		if err != nil {
			log.Fatalf("faces: %v", err)
		}
		detector = service.StaticDetector(boxes)
		params.ExcludeFaces = true
	} else if params.ExcludeFaces {
		cascade, err := service.NewCascadeDetector(cfg.Pipeline.CascadePath)
		if err != nil {
			utils.Logger.Warn("face detector unavailable", zap.Error(err))
		} else {
			detector = cascade
			defer cascade.Close()
		}
	}

	svc := service.NewSmartMaskService(&cfg.Mask, &cfg.Pipeline, detector, service.NopFaceCache{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var res *model.MaskResult
	if preview {
		res, err = svc.Preview(ctx, original, result, params)
	} else {
		res, err = svc.Generate(ctx, original, result, params)
	}
	if err != nil {
		log.Fatalf("composite: %v", err)
	}

	if err := utils.SaveImage(res.Image, outPath, quality); err != nil {
		log.Fatalf("save composite: %v", err)
	}
	if maskPath != "" {
		if err := utils.SaveImage(res.Mask.ToGray(), maskPath, quality); err != nil {
			log.Fatalf("save mask: %v", err)
		}
	}

	meta := sidecar{
		Original: originalPath,
		Result:   resultPath,
		Preset:   presetName,
		Params:   params,
		Metadata: res.Metadata,
		Warnings: res.Warnings,
	}
	if err := writeSidecar(sidecarPath(outPath), meta); err != nil {
		log.Fatalf("write sidecar: %v", err)
	}

	for _, w := range res.Warnings {
		log.Printf("warning: %s", w)
	}
	log.Printf("wrote %s (threshold %.2f, blend %s, %d ms)", outPath, res.Metadata.ThresholdUsed, res.Metadata.BlendMode, res.Metadata.ElapsedMs)
}

// sidecarPath 输出图同名的 .json 路径
func sidecarPath(outPath string) string {
	return strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".json"
}

func writeSidecar(path string, meta sidecar) error {
	js, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	return os.WriteFile(path, js, 0o644)
}
