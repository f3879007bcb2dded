package service

import (
	"math"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/utils"
	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
)

// ThresholdEstimator 根据差异直方图的谷值自动估计阈值
type ThresholdEstimator struct {
	cfg *config.MaskConfig
}

func NewThresholdEstimator(cfg *config.MaskConfig) *ThresholdEstimator {
	return &ThresholdEstimator{cfg: cfg}
}

// Estimate 返回 [MinThreshold, MaxThreshold] 内的阈值，从不返回 NaN
func (te *ThresholdEstimator) Estimate(dm *model.DiffMap) float64 {
	values := downsampleDiff(dm, te.cfg.EstimatorMaxEdge)

	hist := te.histogram(values)
	smoothed := gaussianSmooth1D(hist, te.cfg.HistogramSigma)

	peak := 0.0
	for _, v := range smoothed {
		peak = math.Max(peak, v)
	}
	inverted := make([]float64, len(smoothed))
	for i, v := range smoothed {
		inverted[i] = peak - v
	}

	invPeak := 0.0
	for _, v := range inverted {
		invPeak = math.Max(invPeak, v)
	}

	if invPeak > 0 {
		valleys := findPeaks(inverted, te.cfg.ValleyProminence*invPeak)
		if len(valleys) > 0 {
			binWidth := te.cfg.HistogramRange / float64(te.cfg.HistogramBins)
			center := (float64(valleys[0]) + 0.5) * binWidth
			t := te.clamp(center * te.cfg.ValleyScale)
			utils.Logger.Debug("threshold from histogram valley",
				zap.Int("bin", valleys[0]),
				zap.Float64("threshold", t))
			return t
		}
	}

	mean, err := stats.Mean(values)
	if err != nil {
		mean = 0
	}
	t := te.clamp(te.cfg.MeanFallbackFactor * mean)
	utils.Logger.Debug("threshold from mean fallback",
		zap.Float64("mean", mean),
		zap.Float64("threshold", t))
	return t
}

func (te *ThresholdEstimator) clamp(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return te.cfg.MinThreshold
	}
	return math.Max(te.cfg.MinThreshold, math.Min(te.cfg.MaxThreshold, v))
}

// histogram 在 [0, HistogramRange] 范围内统计直方图，超出范围的值忽略
func (te *ThresholdEstimator) histogram(values []float64) []float64 {
	bins := te.cfg.HistogramBins
	hist := make([]float64, bins)
	width := te.cfg.HistogramRange / float64(bins)
	for _, v := range values {
		if math.IsNaN(v) || v < 0 || v > te.cfg.HistogramRange {
			continue
		}
		i := int(v / width)
		if i >= bins {
			i = bins - 1
		}
		hist[i]++
	}
	return hist
}

// downsampleDiff 按块平均缩小差异图，只需要全局分布形状
func downsampleDiff(dm *model.DiffMap, maxEdge int) stats.Float64Data {
	w, h := dm.Width, dm.Height
	step := 1
	if maxEdge > 0 && max(w, h) > maxEdge {
		step = int(math.Ceil(float64(max(w, h)) / float64(maxEdge)))
	}
	if step == 1 {
		out := make(stats.Float64Data, len(dm.Pix))
		for i, v := range dm.Pix {
			out[i] = float64(v)
		}
		return out
	}

	out := make(stats.Float64Data, 0, (w/step+1)*(h/step+1))
	for by := 0; by < h; by += step {
		for bx := 0; bx < w; bx += step {
			var sum float64
			n := 0
			for y := by; y < min(by+step, h); y++ {
				for x := bx; x < min(bx+step, w); x++ {
					sum += float64(dm.Pix[y*w+x])
					n++
				}
			}
			out = append(out, sum/float64(n))
		}
	}
	return out
}

// gaussianSmooth1D 一维高斯平滑，边界采用镜像延拓
func gaussianSmooth1D(src []float64, sigma float64) []float64 {
	if sigma <= 0 || len(src) == 0 {
		out := make([]float64, len(src))
		copy(out, src)
		return out
	}
	radius := int(4*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	var ksum float64
	for i := -radius; i <= radius; i++ {
		k := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = k
		ksum += k
	}
	for i := range kernel {
		kernel[i] /= ksum
	}

	n := len(src)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var acc float64
		for k := -radius; k <= radius; k++ {
			acc += kernel[k+radius] * src[reflectIndex(i+k, n)]
		}
		out[i] = acc
	}
	return out
}

func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}

// findPeaks 返回显著性不低于 minProminence 的局部极大值下标（端点不计），
// 平台取其左端
func findPeaks(x []float64, minProminence float64) []int {
	var peaks []int
	n := len(x)
	for i := 1; i < n-1; i++ {
		if !(x[i] > x[i-1]) {
			continue
		}
		// 跳过平台
		j := i
		for j+1 < n && x[j+1] == x[i] {
			j++
		}
		if j+1 >= n || x[j+1] > x[i] {
			continue
		}
		if prominence(x, i, j) >= minProminence {
			peaks = append(peaks, i)
		}
	}
	return peaks
}

// prominence 峰值相对左右两侧最高“鞍点”的高度
func prominence(x []float64, left, right int) float64 {
	h := x[left]
	leftMin := h
	for k := left - 1; k >= 0; k-- {
		if x[k] > h {
			break
		}
		leftMin = math.Min(leftMin, x[k])
	}
	rightMin := h
	for k := right + 1; k < len(x); k++ {
		if x[k] > h {
			break
		}
		rightMin = math.Min(rightMin, x[k])
	}
	return h - math.Max(leftMin, rightMin)
}
