package model

import (
	"errors"
	"fmt"
	"image"
)

// ErrCapabilityUnavailable 某个可选能力（LAB、引导滤波、泊松融合、人脸检测）在当前环境不可用
var ErrCapabilityUnavailable = errors.New("capability unavailable")

// DimensionMismatchError 原图与结果图尺寸不一致
type DimensionMismatchError struct {
	Original image.Point
	Result   image.Point
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: original %dx%d, result %dx%d",
		e.Original.X, e.Original.Y, e.Result.X, e.Result.Y)
}

// WarningKind 非致命告警类型
type WarningKind string

const (
	WarnDegenerateMask        WarningKind = "degenerate_mask"
	WarnCapabilityUnavailable WarningKind = "capability_unavailable"
	WarnSolverIllPosed        WarningKind = "solver_ill_posed"
)

// Warning 管线中产生的非致命问题
type Warning struct {
	Kind   WarningKind `json:"kind"`
	Detail string      `json:"detail"`
}

func (w Warning) String() string {
	return string(w.Kind) + ": " + w.Detail
}

// CapabilityWarning 构造能力降级告警
func CapabilityWarning(capability string, err error) Warning {
	detail := capability + " unavailable"
	if err != nil {
		detail += ": " + err.Error()
	}
	return Warning{Kind: WarnCapabilityUnavailable, Detail: detail}
}
