package service

// integral 构建 (w+1)*(h+1) 的积分图
func integral(src []float32, w, h int) []float64 {
	stride := w + 1
	sum := make([]float64, stride*(h+1))
	for y := 0; y < h; y++ {
		var row float64
		for x := 0; x < w; x++ {
			row += float64(src[y*w+x])
			sum[(y+1)*stride+x+1] = sum[y*stride+x+1] + row
		}
	}
	return sum
}

// boxMean 半径为 r 的均值滤波，窗口在边界处裁剪并按实际像素数归一化
func boxMean(src []float32, w, h, r int) []float32 {
	sum := integral(src, w, h)
	stride := w + 1
	out := make([]float32, w*h)
	for y := 0; y < h; y++ {
		y0, y1 := max(0, y-r), min(h, y+r+1)
		for x := 0; x < w; x++ {
			x0, x1 := max(0, x-r), min(w, x+r+1)
			s := sum[y1*stride+x1] - sum[y0*stride+x1] - sum[y1*stride+x0] + sum[y0*stride+x0]
			out[y*w+x] = float32(s / float64((y1-y0)*(x1-x0)))
		}
	}
	return out
}

// boxAny 判断每个像素 (2r+1)^2 邻域内是否存在非零值
func boxAny(src []float32, w, h, r int) []bool {
	sum := integral(src, w, h)
	stride := w + 1
	out := make([]bool, w*h)
	for y := 0; y < h; y++ {
		y0, y1 := max(0, y-r), min(h, y+r+1)
		for x := 0; x < w; x++ {
			x0, x1 := max(0, x-r), min(w, x+r+1)
			s := sum[y1*stride+x1] - sum[y0*stride+x1] - sum[y1*stride+x0] + sum[y0*stride+x0]
			out[y*w+x] = s > 0
		}
	}
	return out
}
