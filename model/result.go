package model

import "image"

// Metadata 掩码生成的审计信息，宿主程序会将其作为 JSON sidecar 保存
type Metadata struct {
	ThresholdUsed     float64          `json:"threshold_used"`
	ThresholdAuto     bool             `json:"threshold_auto"`
	FeatherRadiusUsed int              `json:"feather_radius_used"`
	BlendMode         BlendMode        `json:"blend_mode"`
	DifferenceMethod  DifferenceMethod `json:"difference_method"`
	ElapsedMs         int64            `json:"elapsed_ms"`
	Width             int              `json:"width"`
	Height            int              `json:"height"`
	FacesExcluded     int              `json:"faces_excluded"`
	MaskCoverage      float64          `json:"mask_coverage"`
	Preview           bool             `json:"preview"`
}

// MaskResult 管线输出
type MaskResult struct {
	Image    *image.NRGBA
	Mask     *Mask
	Metadata Metadata
	Warnings []Warning
}

// CompositeData 合成接口返回的数据
type CompositeData struct {
	Image    string    `json:"image"` // base64编码的PNG
	Mask     string    `json:"mask,omitempty"`
	MaskBBox BBox      `json:"mask_bbox"`
	Metadata Metadata  `json:"metadata"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// CompositeResponse 合成响应
type CompositeResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    *CompositeData `json:"data,omitempty"`
}

// PresetInfo 预设描述
type PresetInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  MaskParameters `json:"parameters"`
}

// PresetListResponse 预设列表响应
type PresetListResponse struct {
	Success bool         `json:"success"`
	Data    []PresetInfo `json:"data"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
