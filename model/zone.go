package model

import (
	"fmt"
	"image"
	"strconv"
	"strings"
)

// ExclusionZone 强制保留原图的椭圆区域（人脸+头发）
type ExclusionZone struct {
	CX float64 `json:"cx"`
	CY float64 `json:"cy"`
	RX float64 `json:"rx"`
	RY float64 `json:"ry"`
}

// Contains 判断像素中心 (x+0.5, y+0.5) 是否落在椭圆内
func (z ExclusionZone) Contains(x, y int) bool {
	if z.RX <= 0 || z.RY <= 0 {
		return false
	}
	dx := (float64(x) + 0.5 - z.CX) / z.RX
	dy := (float64(y) + 0.5 - z.CY) / z.RY
	return dx*dx+dy*dy <= 1
}

// Bounds 返回椭圆的外接矩形（未裁剪到图像范围）
func (z ExclusionZone) Bounds() image.Rectangle {
	return image.Rect(
		int(z.CX-z.RX)-1,
		int(z.CY-z.RY)-1,
		int(z.CX+z.RX)+2,
		int(z.CY+z.RY)+2,
	)
}

// BBox 边界框
type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func BBoxFromRect(r image.Rectangle) BBox {
	return BBox{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

func (b BBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// ParseBBoxes 解析 "x,y,w,h;x,y,w,h" 格式的边界框列表
func ParseBBoxes(raw string) ([]image.Rectangle, error) {
	var out []image.Rectangle
	for _, item := range strings.Split(raw, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ",")
		if len(parts) != 4 {
			return nil, fmt.Errorf("box %q: expected 4 values", item)
		}
		var v [4]int
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("box %q: %w", item, err)
			}
			v[i] = n
		}
		if v[2] <= 0 || v[3] <= 0 {
			return nil, fmt.Errorf("box %q: width and height must be positive", item)
		}
		out = append(out, BBox{X: v[0], Y: v[1], Width: v[2], Height: v[3]}.Rect())
	}
	return out, nil
}
