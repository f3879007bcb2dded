package service

import (
	"math"
	"sort"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/utils"
	"go.uber.org/zap"
)

// 由 gocv 构建提供，未启用时为 nil
var (
	nativeMorph           func(bin []bool, w, h, iterations int, erode bool) ([]bool, error)
	nativeLabelComponents func(bin []bool, w, h int) ([]int, []component, error)
)

// RegionIsolator 将差异图二值化并保留主要编辑区域
type RegionIsolator struct {
	cfg       *config.MaskConfig
	areaScale float64
}

func NewRegionIsolator(cfg *config.MaskConfig) *RegionIsolator {
	return &RegionIsolator{cfg: cfg, areaScale: 1}
}

// WithAreaScale 返回按分辨率缩放最小面积的副本（预览时传入缩放比例的平方）
func (ri *RegionIsolator) WithAreaScale(scale float64) *RegionIsolator {
	if scale <= 0 {
		scale = 1
	}
	return &RegionIsolator{cfg: ri.cfg, areaScale: scale}
}

// component 连通区域统计信息
type component struct {
	label int
	area  int
	minX  int
	minY  int
	maxX  int
	maxY  int
}

func (c component) width() int  { return c.maxX - c.minX + 1 }
func (c component) height() int { return c.maxY - c.minY + 1 }

func (c component) aspectRatio() float64 {
	w, h := float64(c.width()), float64(c.height())
	return math.Max(w, h) / math.Min(w, h)
}

func (c component) fillRatio() float64 {
	return float64(c.area) / float64(c.width()*c.height())
}

// Isolate 返回二值掩码；所有区域都被过滤时返回全 0 掩码
func (ri *RegionIsolator) Isolate(dm *model.DiffMap, threshold float64, focusPrimary bool) *model.Mask {
	w, h := dm.Width, dm.Height

	bin := make([]bool, w*h)
	t := float32(threshold)
	for i, v := range dm.Pix {
		bin[i] = v > t
	}

	bin = morphology(bin, w, h, ri.cfg.ErodeIterations, true)
	bin = fillHoles(bin, w, h)
	bin = morphology(bin, w, h, ri.cfg.DilateIterations, false)

	labels, comps := components(bin, w, h)
	kept := ri.filterComponents(comps)
	if focusPrimary {
		kept = ri.selectPrimary(kept)
	}

	keep := make(map[int]bool, len(kept))
	for _, c := range kept {
		keep[c.label] = true
	}

	mask := model.NewMask(w, h)
	for i, l := range labels {
		if l > 0 && keep[l] {
			mask.Pix[i] = 1
		}
	}

	utils.Logger.Debug("regions isolated",
		zap.Float64("threshold", threshold),
		zap.Int("components", len(comps)),
		zap.Int("kept", len(kept)),
		zap.Bool("focus_primary", focusPrimary))

	return mask
}

// filterComponents 过滤细长、稀疏或过小的区域
func (ri *RegionIsolator) filterComponents(comps []component) []component {
	minArea := int(math.Round(float64(ri.cfg.MinArea) * ri.areaScale))
	var out []component
	for _, c := range comps {
		if c.area < minArea {
			continue
		}
		if c.aspectRatio() > ri.cfg.MaxAspectRatio {
			continue
		}
		if c.fillRatio() < ri.cfg.MinFillRatio {
			continue
		}
		out = append(out, c)
	}
	return out
}

// selectPrimary 保留最大区域以及面积接近它的区域（如上下分开的衣物）
func (ri *RegionIsolator) selectPrimary(comps []component) []component {
	if len(comps) == 0 {
		return nil
	}
	sorted := make([]component, len(comps))
	copy(sorted, comps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].area > sorted[j].area })

	largest := float64(sorted[0].area)
	out := []component{sorted[0]}
	for _, c := range sorted[1:] {
		if float64(c.area) >= ri.cfg.PrimaryTolerance*largest {
			out = append(out, c)
		}
	}
	return out
}

// morphology 优先使用 OpenCV 实现，不可用时退回纯 Go 版本
func morphology(bin []bool, w, h, iterations int, erode bool) []bool {
	if iterations <= 0 {
		return bin
	}
	var attempts []attempt[[]bool]
	if nativeMorph != nil {
		attempts = append(attempts, attempt[[]bool]{
			name: "gocv",
			run:  func() ([]bool, error) { return nativeMorph(bin, w, h, iterations, erode) },
		})
	}
	attempts = append(attempts, attempt[[]bool]{
		name: "go",
		run:  func() ([]bool, error) { return morph(bin, w, h, iterations, erode), nil },
	})
	out, _, _, _ := runChain("morphology", attempts)
	return out
}

type labelled struct {
	labels []int
	comps  []component
}

// components 优先使用 OpenCV 连通域统计，不可用时退回 BFS 标记
func components(bin []bool, w, h int) ([]int, []component) {
	var attempts []attempt[labelled]
	if nativeLabelComponents != nil {
		attempts = append(attempts, attempt[labelled]{
			name: "gocv",
			run: func() (labelled, error) {
				labels, comps, err := nativeLabelComponents(bin, w, h)
				return labelled{labels, comps}, err
			},
		})
	}
	attempts = append(attempts, attempt[labelled]{
		name: "go",
		run: func() (labelled, error) {
			labels, comps := labelComponents(bin, w, h)
			return labelled{labels, comps}, nil
		},
	})
	out, _, _, _ := runChain("connected_components", attempts)
	return out.labels, out.comps
}

// morph 3x3 方形结构元的腐蚀/膨胀，图像外的像素不参与运算
func morph(src []bool, w, h, iterations int, erode bool) []bool {
	cur := src
	for it := 0; it < iterations; it++ {
		next := make([]bool, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := erode
				for dy := -1; dy <= 1 && v == erode; dy++ {
					ny := y + dy
					if ny < 0 || ny >= h {
						continue
					}
					for dx := -1; dx <= 1; dx++ {
						nx := x + dx
						if nx < 0 || nx >= w {
							continue
						}
						if cur[ny*w+nx] != erode {
							v = !erode
							break
						}
					}
				}
				next[y*w+x] = v
			}
		}
		cur = next
	}
	return cur
}

// fillHoles 从边界开始填充背景，未被触及的背景像素即为内部空洞
func fillHoles(src []bool, w, h int) []bool {
	outside := make([]bool, w*h)
	queue := make([]int, 0, 2*(w+h))

	push := func(x, y int) {
		i := y*w + x
		if !src[i] && !outside[i] {
			outside[i] = true
			queue = append(queue, i)
		}
	}
	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}

	for len(queue) > 0 {
		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		x, y := i%w, i/w
		if x > 0 {
			push(x-1, y)
		}
		if x < w-1 {
			push(x+1, y)
		}
		if y > 0 {
			push(x, y-1)
		}
		if y < h-1 {
			push(x, y+1)
		}
	}

	out := make([]bool, w*h)
	for i := range out {
		out[i] = src[i] || !outside[i]
	}
	return out
}

// labelComponents 8 连通区域标记（BFS），标签从 1 开始
func labelComponents(bin []bool, w, h int) ([]int, []component) {
	labels := make([]int, w*h)
	var comps []component
	var queue []int
	next := 1

	for start := range bin {
		if !bin[start] || labels[start] != 0 {
			continue
		}
		sx, sy := start%w, start/w
		c := component{label: next, minX: sx, minY: sy, maxX: sx, maxY: sy}
		labels[start] = next
		queue = append(queue[:0], start)

		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			x, y := i%w, i/w
			c.area++
			c.minX = min(c.minX, x)
			c.maxX = max(c.maxX, x)
			c.minY = min(c.minY, y)
			c.maxY = max(c.maxY, y)

			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					ni := ny*w + nx
					if bin[ni] && labels[ni] == 0 {
						labels[ni] = next
						queue = append(queue, ni)
					}
				}
			}
		}

		comps = append(comps, c)
		next++
	}
	return labels, comps
}
