package service

import (
	"sort"
	"strings"

	"github.com/TIANLI0/MaskKit/model"
)

const (
	PresetPortraitUpperBody = "PortraitUpperBody"
	PresetFullBody          = "FullBody"
	PresetAggressive        = "Aggressive"
	PresetConservative      = "Conservative"
	PresetCustom            = "Custom"
)

var presets = map[string]model.Preset{
	PresetPortraitUpperBody: newPreset(PresetPortraitUpperBody, "半身人像：中等阈值，轻度羽化", 6.5, 3, true),
	PresetFullBody:          newPreset(PresetFullBody, "全身照：保留多个变化区域", 7.0, 5, false),
	PresetAggressive:        newPreset(PresetAggressive, "激进：低阈值，尽量采用结果图", 5.0, 1, true),
	PresetConservative:      newPreset(PresetConservative, "保守：高阈值，大半径羽化", 9.0, 8, true),
}

func newPreset(name, description string, threshold float64, feather int, focusPrimary bool) model.Preset {
	p := model.DefaultParameters()
	p.Threshold = model.ThresholdValue(threshold)
	p.FeatherRadius = feather
	p.FocusPrimaryRegion = focusPrimary
	return model.NewPreset(name, description, p)
}

// LookupPreset 按名称（不区分大小写）查找预设。Custom 返回默认参数，由调用方自行修改。
func LookupPreset(name string) (model.Preset, bool) {
	if strings.EqualFold(name, PresetCustom) {
		return model.NewPreset(PresetCustom, "自定义参数", model.DefaultParameters()), true
	}
	for k, p := range presets {
		if strings.EqualFold(k, name) {
			return p, true
		}
	}
	return model.Preset{}, false
}

// Presets 按名称排序返回内置预设
func Presets() []model.Preset {
	out := make([]model.Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
