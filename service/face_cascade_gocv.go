//go:build gocv

package service

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/TIANLI0/MaskKit/model"
	"gocv.io/x/gocv"
)

// CascadeDetector 基于 OpenCV Haar 级联的人脸检测器
type CascadeDetector struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
}

// NewCascadeDetector 加载级联模型文件
func NewCascadeDetector(path string) (*CascadeDetector, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("%w: failed to load cascade %s", model.ErrCapabilityUnavailable, path)
	}
	return &CascadeDetector{classifier: classifier}, nil
}

func (d *CascadeDetector) DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image to Mat: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	// CascadeClassifier 不是并发安全的
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.DetectMultiScale(gray), nil
}

func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}
