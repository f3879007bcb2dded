package handler

import (
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/service"
	"github.com/TIANLI0/MaskKit/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CompositeHandler struct {
	cfg     *config.Config
	service *service.SmartMaskService
}

func NewCompositeHandler(cfg *config.Config, svc *service.SmartMaskService) *CompositeHandler {
	return &CompositeHandler{
		cfg:     cfg,
		service: svc,
	}
}

// Composite 上传原图与结果图，返回合成图及掩码信息
func (h *CompositeHandler) Composite(c *gin.Context) {
	requestID := utils.RequestID()

	original, md5, err := h.readImage(c, "original")
	if err != nil {
		h.badRequest(c, "请上传原图 (original)", err)
		return
	}
	result, _, err := h.readImage(c, "result")
	if err != nil {
		h.badRequest(c, "请上传结果图 (result)", err)
		return
	}

	params, err := ParseParameters(c)
	if err != nil {
		h.badRequest(c, "参数错误", err)
		return
	}

	svc := h.service
	if raw := c.PostForm("faces"); raw != "" {
		faces, err := model.ParseBBoxes(raw)
		if err != nil {
			h.badRequest(c, "人脸框格式错误，应为 x,y,w,h;x,y,w,h", err)
			return
		}
		svc = svc.WithFaceDetector(service.StaticDetector(faces))
		params.ExcludeFaces = true
	}

	includeMask := c.DefaultPostForm("include_mask", "false") == "true"
	preview := c.DefaultPostForm("preview", "false") == "true"

	utils.Logger.Info("composite requested",
		zap.String("request_id", requestID),
		zap.String("md5", md5),
		zap.Int("width", original.Bounds().Dx()),
		zap.Int("height", original.Bounds().Dy()),
		zap.Bool("preview", preview),
		zap.Bool("include_mask", includeMask))

	var res *model.MaskResult
	if preview {
		res, err = svc.Preview(c.Request.Context(), original, result, params)
	} else {
		res, err = svc.Generate(c.Request.Context(), original, result, params)
	}
	if err != nil {
		h.processError(c, requestID, err)
		return
	}

	data := &model.CompositeData{
		MaskBBox: model.BBoxFromRect(res.Mask.Bounds()),
		Metadata: res.Metadata,
		Warnings: res.Warnings,
	}
	if data.Image, err = utils.EncodePNGBase64(res.Image); err != nil {
		h.internalError(c, "编码合成图失败", err)
		return
	}
	if includeMask {
		if data.Mask, err = utils.EncodePNGBase64(res.Mask.ToGray()); err != nil {
			h.internalError(c, "编码掩码失败", err)
			return
		}
	}

	c.JSON(http.StatusOK, model.CompositeResponse{
		Success: true,
		Message: "处理成功",
		Data:    data,
	})
}

// Presets 列出内置预设
func (h *CompositeHandler) Presets(c *gin.Context) {
	presets := service.Presets()
	data := make([]model.PresetInfo, 0, len(presets))
	for _, p := range presets {
		data = append(data, model.PresetInfo{
			Name:        p.Name,
			Description: p.Description,
			Parameters:  p.Parameters(),
		})
	}
	c.JSON(http.StatusOK, model.PresetListResponse{Success: true, Data: data})
}

// readImage 读取并解码上传的图片，同时返回文件内容的 MD5
func (h *CompositeHandler) readImage(c *gin.Context, field string) (image.Image, string, error) {
	file, err := c.FormFile(field)
	if err != nil {
		return nil, "", err
	}

	// 验证文件大小
	if file.Size > h.cfg.Upload.MaxSize {
		return nil, "", fmt.Errorf("文件大小超过限制 (%d MB)", h.cfg.Upload.MaxSize/(1024*1024))
	}

	// 验证文件类型
	contentType := file.Header.Get("Content-Type")
	if !h.isAllowedType(contentType) {
		return nil, "", fmt.Errorf("不支持的文件类型 %q，仅支持 JPEG/PNG/WebP", contentType)
	}

	data, err := readAll(file)
	if err != nil {
		return nil, "", err
	}
	img, err := utils.DecodeImage(data)
	if err != nil {
		return nil, "", err
	}
	return img, utils.BytesMD5(data), nil
}

func readAll(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *CompositeHandler) isAllowedType(contentType string) bool {
	for _, allowed := range h.cfg.Upload.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}

func (h *CompositeHandler) processError(c *gin.Context, requestID string, err error) {
	utils.Logger.Error("failed to composite",
		zap.String("request_id", requestID),
		zap.Error(err))

	var dim *model.DimensionMismatchError
	switch {
	case errors.As(err, &dim):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "原图与结果图尺寸不一致",
			Error:   err.Error(),
		})
	case errors.Is(err, service.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{
			Success: false,
			Message: "处理队列已满，请稍后重试",
		})
	default:
		h.internalError(c, "图片处理失败", err)
	}
}

func (h *CompositeHandler) badRequest(c *gin.Context, message string, err error) {
	utils.Logger.Warn("bad composite request", zap.String("message", message), zap.Error(err))
	c.JSON(http.StatusBadRequest, model.ErrorResponse{
		Success: false,
		Message: message,
		Error:   err.Error(),
	})
}

func (h *CompositeHandler) internalError(c *gin.Context, message string, err error) {
	c.JSON(http.StatusInternalServerError, model.ErrorResponse{
		Success: false,
		Message: message,
		Error:   err.Error(),
	})
}

// ParseParameters 从表单读取掩码参数。先取预设（默认参数），再用显式字段覆盖。
func ParseParameters(c *gin.Context) (model.MaskParameters, error) {
	params := model.DefaultParameters()
	if name := c.PostForm("preset"); name != "" {
		p, ok := service.LookupPreset(name)
		if !ok {
			return params, fmt.Errorf("unknown preset %q", name)
		}
		params = p.Parameters()
	}

	if v, ok := c.GetPostForm("threshold"); ok {
		if v == "" || strings.EqualFold(v, "auto") {
			params.Threshold = nil
		} else {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return params, fmt.Errorf("threshold: %w", err)
			}
			params.Threshold = model.ThresholdValue(f)
		}
	}

	if v, ok := c.GetPostForm("feather_radius"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return params, fmt.Errorf("feather_radius: %w", err)
		}
		params.FeatherRadius = n
	}

	bools := map[string]*bool{
		"focus_primary_region":   &params.FocusPrimaryRegion,
		"exclude_faces":          &params.ExcludeFaces,
		"exclude_skin":           &params.ExcludeSkin,
		"use_edge_aware_feather": &params.UseEdgeAwareFeather,
		"use_gradient_blend":     &params.UseGradientBlend,
		"harmonize_colors":       &params.HarmonizeColors,
	}
	for field, dst := range bools {
		if v, ok := c.GetPostForm(field); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return params, fmt.Errorf("%s: %w", field, err)
			}
			*dst = b
		}
	}

	floats := map[string]*float64{
		"skin_aggressiveness": &params.SkinAggressiveness,
		"harmonize_strength":  &params.HarmonizeStrength,
	}
	for field, dst := range floats {
		if v, ok := c.GetPostForm(field); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return params, fmt.Errorf("%s: %w", field, err)
			}
			*dst = f
		}
	}

	if v, ok := c.GetPostForm("difference_method"); ok {
		m, err := model.ParseDifferenceMethod(v)
		if err != nil {
			return params, err
		}
		params.DifferenceMethod = m
	}

	return params, params.Validate()
}
