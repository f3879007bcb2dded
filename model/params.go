package model

import (
	"fmt"
	"strings"
)

// DifferenceMethod 差异计算所用的颜色空间
type DifferenceMethod string

const (
	DifferenceRGB DifferenceMethod = "rgb"
	DifferenceLAB DifferenceMethod = "lab"
)

// ParseDifferenceMethod 解析差异方法名称，空字符串视为 RGB
func ParseDifferenceMethod(s string) (DifferenceMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rgb":
		return DifferenceRGB, nil
	case "lab":
		return DifferenceLAB, nil
	default:
		return "", fmt.Errorf("unknown difference method %q", s)
	}
}

// BlendMode 合成方式
type BlendMode string

const (
	BlendAlpha    BlendMode = "alpha"
	BlendGradient BlendMode = "gradient"
	BlendNone     BlendMode = "none"
)

const (
	DefaultSkinAggressiveness = 1.0
	DefaultHarmonizeStrength  = 0.3
)

// MaskParameters 一次掩码生成的全部参数
type MaskParameters struct {
	// Threshold 为 nil 时自动估计阈值
	Threshold           *float64         `json:"threshold,omitempty" mapstructure:"threshold"`
	FeatherRadius       int              `json:"feather_radius" mapstructure:"feather_radius"`
	FocusPrimaryRegion  bool             `json:"focus_primary_region" mapstructure:"focus_primary_region"`
	ExcludeFaces        bool             `json:"exclude_faces" mapstructure:"exclude_faces"`
	ExcludeSkin         bool             `json:"exclude_skin" mapstructure:"exclude_skin"`
	UseEdgeAwareFeather bool             `json:"use_edge_aware_feather" mapstructure:"use_edge_aware_feather"`
	UseGradientBlend    bool             `json:"use_gradient_blend" mapstructure:"use_gradient_blend"`
	HarmonizeColors     bool             `json:"harmonize_colors" mapstructure:"harmonize_colors"`
	DifferenceMethod    DifferenceMethod `json:"difference_method" mapstructure:"difference_method"`
	SkinAggressiveness  float64          `json:"skin_aggressiveness" mapstructure:"skin_aggressiveness"`
	HarmonizeStrength   float64          `json:"harmonize_strength" mapstructure:"harmonize_strength"`
}

// DefaultParameters 返回自动阈值、温和羽化的默认参数
func DefaultParameters() MaskParameters {
	return MaskParameters{
		FeatherRadius:      3,
		FocusPrimaryRegion: true,
		DifferenceMethod:   DifferenceRGB,
		SkinAggressiveness: DefaultSkinAggressiveness,
		HarmonizeStrength:  DefaultHarmonizeStrength,
	}
}

// ThresholdValue 构造阈值指针
func ThresholdValue(v float64) *float64 {
	return &v
}

// Validate 检查参数是否合法
func (p MaskParameters) Validate() error {
	if p.FeatherRadius < 0 {
		return fmt.Errorf("feather_radius must be >= 0, got %d", p.FeatherRadius)
	}
	if _, err := ParseDifferenceMethod(string(p.DifferenceMethod)); err != nil {
		return err
	}
	return nil
}

// Normalize 返回裁剪后的参数副本，阈值限制在 [0,100]
func (p MaskParameters) Normalize() MaskParameters {
	out := p
	if p.Threshold != nil {
		out.Threshold = ThresholdValue(clampFloat(*p.Threshold, 0, 100))
	}
	if out.DifferenceMethod == "" {
		out.DifferenceMethod = DifferenceRGB
	}
	out.SkinAggressiveness = clampFloat(p.SkinAggressiveness, 0, 1)
	out.HarmonizeStrength = clampFloat(p.HarmonizeStrength, 0, 1)
	return out
}

// Clone 深拷贝参数（阈值指针不共享）
func (p MaskParameters) Clone() MaskParameters {
	out := p
	if p.Threshold != nil {
		out.Threshold = ThresholdValue(*p.Threshold)
	}
	return out
}

// Preset 具名的、不可变的参数组合
type Preset struct {
	Name        string
	Description string
	params      MaskParameters
}

func NewPreset(name, description string, params MaskParameters) Preset {
	return Preset{Name: name, Description: description, params: params.Clone()}
}

// Parameters 返回预设参数的副本，调用方修改不会影响预设本身
func (p Preset) Parameters() MaskParameters {
	return p.params.Clone()
}

func clampFloat(v, lo, hi float64) float64 {
	if v != v {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
