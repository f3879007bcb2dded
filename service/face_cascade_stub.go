//go:build !gocv

package service

import (
	"context"
	"fmt"
	"image"

	"github.com/TIANLI0/MaskKit/model"
)

// CascadeDetector 未启用 gocv 构建标签时的占位实现
type CascadeDetector struct{}

// NewCascadeDetector 返回能力不可用错误
func NewCascadeDetector(path string) (*CascadeDetector, error) {
	return nil, fmt.Errorf("%w: gocv build tag is not enabled", model.ErrCapabilityUnavailable)
}

func (d *CascadeDetector) DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	return nil, fmt.Errorf("%w: gocv build tag is not enabled", model.ErrCapabilityUnavailable)
}

func (d *CascadeDetector) Close() error {
	return nil
}
