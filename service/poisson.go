package service

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/utils"
	"go.uber.org/zap"
)

// poissonStats 每层金字塔的 CG 迭代次数（三个通道累加），下标 0 为最细层
type poissonStats struct {
	Levels     int
	Iterations []int
}

// Poisson 在 Ω={mask>0} 上做梯度域融合：引导场取结果图的梯度，Ω 外取原图值，
// 图像边缘为 Neumann 边界。
//
// 记 f = r + h，则 h 满足 Δh = 0，且在 Ω 外 h = o - r。h 是平滑的膜，
// 由粗到细在金字塔上用 Jacobi 预条件共轭梯度求解，每层以上一层的插值结果作初值。
func (c *Compositor) Poisson(ctx context.Context, original, result *image.NRGBA, mask *model.Mask) (*image.NRGBA, error) {
	out, _, err := c.poisson(ctx, original, result, mask)
	return out, err
}

func (c *Compositor) poisson(ctx context.Context, original, result *image.NRGBA, mask *model.Mask) (*image.NRGBA, poissonStats, error) {
	bounds := mask.Bounds()
	if bw, bh := bounds.Dx(), bounds.Dy(); bw*bh > c.cfg.PoissonMaxPixels {
		return nil, poissonStats{}, fmt.Errorf("%w: region %dx%d exceeds poisson pixel budget", model.ErrCapabilityUnavailable, bw, bh)
	}

	w, h := mask.Width, mask.Height
	// 留出两圈 Ω 外的像素作为 Dirichlet 边界，并保持第一层的 2x2 对齐
	grid := bounds.Inset(-2).Intersect(image.Rect(0, 0, w, h))
	gw, gh := grid.Dx(), grid.Dy()

	inside := make([]bool, gw*gh)
	for y := 0; y < gh; y++ {
		for x := 0; x < gw; x++ {
			inside[y*gw+x] = mask.Pix[(grid.Min.Y+y)*w+grid.Min.X+x] > 0
		}
	}
	levels := buildPoissonPyramid(gw, gh, inside, c.cfg.PoissonCoarsestEdge)
	stats := poissonStats{Levels: len(levels), Iterations: make([]int, len(levels))}

	out := cloneNRGBA(original)
	d := make([]float64, gw*gh)
	for ch := 0; ch < 3; ch++ {
		for y := 0; y < gh; y++ {
			oi := (grid.Min.Y+y)*original.Stride + grid.Min.X*4 + ch
			ri := (grid.Min.Y+y)*result.Stride + grid.Min.X*4 + ch
			for x := 0; x < gw; x++ {
				d[y*gw+x] = float64(original.Pix[oi]) - float64(result.Pix[ri])
				oi += 4
				ri += 4
			}
		}

		field, its, err := c.solveMembrane(ctx, levels, d)
		if err != nil {
			return nil, stats, err
		}
		for k, n := range its {
			stats.Iterations[k] += n
		}

		for _, i := range levels[0].cells {
			x, y := grid.Min.X+i%gw, grid.Min.Y+i/gw
			r := float64(result.Pix[y*result.Stride+x*4+ch])
			out.Pix[y*out.Stride+x*4+ch] = clampByte(float32(r + field[i]))
		}
	}

	// alpha 通道不参与求解
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			m := clamp01f(mask.Pix[y*w+x])
			o := float32(original.Pix[y*original.Stride+x*4+3])
			r := float32(result.Pix[y*result.Stride+x*4+3])
			out.Pix[y*out.Stride+x*4+3] = clampByte(o*(1-m) + r*m)
		}
	}

	utils.Logger.Debug("poisson blend solved",
		zap.Int("width", bounds.Dx()),
		zap.Int("height", bounds.Dy()),
		zap.Int("levels", stats.Levels),
		zap.Ints("iterations", stats.Iterations))
	return out, stats, nil
}

// poissonLevel 金字塔中的一层网格。Ω 内的像素为未知量，其余像素取给定的 Dirichlet 值。
type poissonLevel struct {
	w, h  int
	cells []int     // 未知量 -> 像素下标
	index []int     // 像素下标 -> 未知量，非未知量为 -1
	diag  []float64 // 网格内邻居数，孤立像素为 0
	links [][4]int  // 四邻域中的未知量，-1 表示 Dirichlet 邻居或网格外
	fixed [][4]int  // 四邻域中的 Dirichlet 像素下标，-1 表示未知量或网格外
}

func newPoissonLevel(w, h int, inside []bool) *poissonLevel {
	l := &poissonLevel{w: w, h: h, index: make([]int, w*h)}
	for i := range l.index {
		l.index[i] = -1
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if !inside[i] {
				continue
			}
			l.index[i] = len(l.cells)
			l.cells = append(l.cells, i)
		}
	}

	l.diag = make([]float64, len(l.cells))
	l.links = make([][4]int, len(l.cells))
	l.fixed = make([][4]int, len(l.cells))
	for j, i := range l.cells {
		x, y := i%w, i/w
		for k, d := range neighbours4 {
			l.links[j][k], l.fixed[j][k] = -1, -1
			qx, qy := x+d.X, y+d.Y
			if qx < 0 || qy < 0 || qx >= w || qy >= h {
				continue
			}
			l.diag[j]++
			q := qy*w + qx
			if l.index[q] >= 0 {
				l.links[j][k] = l.index[q]
			} else {
				l.fixed[j][k] = q
			}
		}
	}
	return l
}

// coarsen 2x2 合并：四个子像素都是未知量时粗像素才是未知量
func (l *poissonLevel) coarsen() *poissonLevel {
	cw, ch := (l.w+1)/2, (l.h+1)/2
	inside := make([]bool, cw*ch)
	for y := 0; y < ch; y++ {
		for x := 0; x < cw; x++ {
			all := true
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					fx, fy := 2*x+dx, 2*y+dy
					if fx < l.w && fy < l.h && l.index[fy*l.w+fx] < 0 {
						all = false
					}
				}
			}
			inside[y*cw+x] = all
		}
	}
	return newPoissonLevel(cw, ch, inside)
}

func buildPoissonPyramid(w, h int, inside []bool, coarsestEdge int) []*poissonLevel {
	levels := []*poissonLevel{newPoissonLevel(w, h, inside)}
	for {
		l := levels[len(levels)-1]
		if max(l.w, l.h) <= coarsestEdge {
			break
		}
		next := l.coarsen()
		if len(next.cells) == 0 {
			break
		}
		levels = append(levels, next)
	}
	return levels
}

// restrictField 2x2 块平均
func restrictField(fine []float64, fw, fh, cw, ch int) []float64 {
	out := make([]float64, cw*ch)
	for y := 0; y < ch; y++ {
		for x := 0; x < cw; x++ {
			var sum float64
			n := 0
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					fx, fy := 2*x+dx, 2*y+dy
					if fx < fw && fy < fh {
						sum += fine[fy*fw+fx]
						n++
					}
				}
			}
			out[y*cw+x] = sum / float64(n)
		}
	}
	return out
}

// sampleCoarse 以像素中心对齐的双线性插值，从粗层取细层 (fx,fy) 处的值
func sampleCoarse(field []float64, cw, ch, fx, fy int) float64 {
	u := float64(fx)/2 - 0.25
	v := float64(fy)/2 - 0.25
	x0, y0 := int(math.Floor(u)), int(math.Floor(v))
	tx, ty := u-float64(x0), v-float64(y0)
	x1, y1 := min(max(x0+1, 0), cw-1), min(max(y0+1, 0), ch-1)
	x0, y0 = min(max(x0, 0), cw-1), min(max(y0, 0), ch-1)

	top := field[y0*cw+x0]*(1-tx) + field[y0*cw+x1]*tx
	bottom := field[y1*cw+x0]*(1-tx) + field[y1*cw+x1]*tx
	return top*(1-ty) + bottom*ty
}

// solveMembrane 由粗到细求解，返回最细层整张网格上的 h（Dirichlet 像素即 d 本身）
func (c *Compositor) solveMembrane(ctx context.Context, levels []*poissonLevel, d []float64) ([]float64, []int, error) {
	data := make([][]float64, len(levels))
	data[0] = d
	for k := 1; k < len(levels); k++ {
		data[k] = restrictField(data[k-1], levels[k-1].w, levels[k-1].h, levels[k].w, levels[k].h)
	}

	iterations := make([]int, len(levels))
	var field []float64
	for k := len(levels) - 1; k >= 0; k-- {
		l := levels[k]
		x := make([]float64, len(l.cells))
		if field != nil {
			up := levels[k+1]
			for j, i := range l.cells {
				x[j] = sampleCoarse(field, up.w, up.h, i%l.w, i/l.w)
			}
		}

		n, err := c.conjugateGradient(ctx, l, data[k], x)
		if err != nil {
			return nil, nil, err
		}
		iterations[k] = n

		field = make([]float64, l.w*l.h)
		copy(field, data[k])
		for j, i := range l.cells {
			field[i] = x[j]
		}
	}
	return field, iterations, nil
}

// conjugateGradient 原地更新 x。收敛阈值随网格尺寸收紧，
// 使最低频误差也被压到 PoissonTolerance 个灰度级以内。
func (c *Compositor) conjugateGradient(ctx context.Context, l *poissonLevel, d []float64, x []float64) (int, error) {
	n := len(l.cells)
	if n == 0 {
		return 0, nil
	}
	edge := float64(max(l.w, l.h))
	tol := c.cfg.PoissonTolerance * math.Min(1, 8/(edge*edge))

	apply := func(v, out []float64) {
		for j := range v {
			s := l.diag[j] * v[j]
			for _, q := range l.links[j] {
				if q >= 0 {
					s -= v[q]
				}
			}
			out[j] = s
		}
	}

	// 没有邻居的像素不受约束，保持 h=0
	inv := make([]float64, n)
	for j, dg := range l.diag {
		if dg > 0 {
			inv[j] = 1 / dg
		}
	}

	r := make([]float64, n)
	z := make([]float64, n)
	p := make([]float64, n)
	ap := make([]float64, n)

	apply(x, r)
	for j := range r {
		var b float64
		for _, q := range l.fixed[j] {
			if q >= 0 {
				b += d[q]
			}
		}
		r[j] = b - r[j]
		z[j] = r[j] * inv[j]
		p[j] = z[j]
	}
	rz := dot(r, z)

	it := 0
	for ; it < c.cfg.PoissonIterations; it++ {
		if it%16 == 0 {
			if err := ctx.Err(); err != nil {
				return it, err
			}
		}
		if maxAbs(z) < tol {
			break
		}

		apply(p, ap)
		pap := dot(p, ap)
		if pap <= 0 {
			break
		}
		alpha := rz / pap
		for j := range x {
			x[j] += alpha * p[j]
			r[j] -= alpha * ap[j]
			z[j] = r[j] * inv[j]
		}
		rzNext := dot(r, z)
		beta := rzNext / rz
		rz = rzNext
		for j := range p {
			p[j] = z[j] + beta*p[j]
		}
	}
	return it, nil
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func maxAbs(v []float64) float64 {
	var m float64
	for _, x := range v {
		m = math.Max(m, math.Abs(x))
	}
	return m
}

var neighbours4 = [4]image.Point{{X: -1}, {X: 1}, {Y: -1}, {Y: 1}}
