package service

import (
	"errors"

	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/utils"
	"go.uber.org/zap"
)

// attempt 能力降级链中的一个候选实现
type attempt[T any] struct {
	name string
	run  func() (T, error)
}

// runChain 依次尝试各个实现，遇到 ErrCapabilityUnavailable 时记录告警并继续，
// 其它错误直接返回。返回值中的 string 为最终生效的实现名称。
func runChain[T any](capability string, attempts []attempt[T]) (T, string, []model.Warning, error) {
	var zero T
	var warnings []model.Warning

	for _, a := range attempts {
		out, err := a.run()
		if err == nil {
			return out, a.name, warnings, nil
		}
		if !errors.Is(err, model.ErrCapabilityUnavailable) {
			return zero, a.name, warnings, err
		}
		w := model.CapabilityWarning(capability+"/"+a.name, err)
		utils.Logger.Warn("capability unavailable, falling back",
			zap.String("capability", capability),
			zap.String("backend", a.name),
			zap.Error(err))
		warnings = append(warnings, w)
	}

	return zero, "", warnings, model.ErrCapabilityUnavailable
}
