package model

import "image"

// DiffMap 原图与结果图之间的逐像素差异图，取值范围 [0,100]
type DiffMap struct {
	Width  int
	Height int
	Pix    []float32
}

func NewDiffMap(width, height int) *DiffMap {
	return &DiffMap{Width: width, Height: height, Pix: make([]float32, width*height)}
}

// At 返回 (x,y) 处的差异值
func (d *DiffMap) At(x, y int) float32 {
	return d.Pix[y*d.Width+x]
}

// Mask 混合权重图，0 表示完全保留原图，1 表示完全采用结果图
type Mask struct {
	Width  int
	Height int
	Pix    []float32
}

func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Pix: make([]float32, width*height)}
}

// NewFilledMask 创建所有像素都为 v 的掩码
func NewFilledMask(width, height int, v float32) *Mask {
	m := NewMask(width, height)
	for i := range m.Pix {
		m.Pix[i] = v
	}
	return m
}

func (m *Mask) At(x, y int) float32 {
	return m.Pix[y*m.Width+x]
}

func (m *Mask) Set(x, y int, v float32) {
	m.Pix[y*m.Width+x] = v
}

// Clone 返回掩码的深拷贝
func (m *Mask) Clone() *Mask {
	c := &Mask{Width: m.Width, Height: m.Height, Pix: make([]float32, len(m.Pix))}
	copy(c.Pix, m.Pix)
	return c
}

// Size 以 image.Point 的形式返回掩码尺寸
func (m *Mask) Size() image.Point {
	return image.Point{X: m.Width, Y: m.Height}
}

// CountPositive 统计 mask > 0 的像素数
func (m *Mask) CountPositive() int {
	n := 0
	for _, v := range m.Pix {
		if v > 0 {
			n++
		}
	}
	return n
}

// OpaqueEpsilon 判定"完全不透明"时允许的浮点误差
const OpaqueEpsilon = 1e-3

// HasOpaque 判断是否存在完全不透明 (=1) 的像素
func (m *Mask) HasOpaque() bool {
	for _, v := range m.Pix {
		if v >= 1-OpaqueEpsilon {
			return true
		}
	}
	return false
}

// IsEmpty 判断掩码是否全为 0
func (m *Mask) IsEmpty() bool {
	for _, v := range m.Pix {
		if v > 0 {
			return false
		}
	}
	return true
}

// Bounds 返回所有 mask > 0 像素的外接矩形，空掩码返回空矩形
func (m *Mask) Bounds() image.Rectangle {
	minX, minY := m.Width, m.Height
	maxX, maxY := -1, -1
	for y := 0; y < m.Height; y++ {
		row := m.Pix[y*m.Width : (y+1)*m.Width]
		for x, v := range row {
			if v <= 0 {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if maxX < 0 {
		return image.Rectangle{}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// ToGray 将掩码量化为 8 位灰度图，便于预览和编码
func (m *Mask) ToGray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Pix {
		g.Pix[i] = uint8(clamp01(v)*255 + 0.5)
	}
	return g
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
