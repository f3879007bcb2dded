package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Mask     MaskConfig     `mapstructure:"mask"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

// PipelineConfig 管线运行时配置
type PipelineConfig struct {
	MaxConcurrent  int    `mapstructure:"max_concurrent"`
	QueueTimeout   int    `mapstructure:"queue_timeout"`
	PreviewMaxEdge int    `mapstructure:"preview_max_edge"`
	FaceCache      string `mapstructure:"face_cache"` // memory, redis, none
	FaceCacheSize  int    `mapstructure:"face_cache_size"`
	CascadePath    string `mapstructure:"cascade_path"`
}

// MaskConfig 掩码算法的经验常数，全部可配置
type MaskConfig struct {
	// 差异计算
	LabScale float64 `mapstructure:"lab_scale"`

	// 自适应阈值
	MinThreshold       float64 `mapstructure:"min_threshold"`
	MaxThreshold       float64 `mapstructure:"max_threshold"`
	EstimatorMaxEdge   int     `mapstructure:"estimator_max_edge"`
	HistogramBins      int     `mapstructure:"histogram_bins"`
	HistogramRange     float64 `mapstructure:"histogram_range"`
	HistogramSigma     float64 `mapstructure:"histogram_sigma"`
	ValleyProminence   float64 `mapstructure:"valley_prominence"`
	ValleyScale        float64 `mapstructure:"valley_scale"`
	MeanFallbackFactor float64 `mapstructure:"mean_fallback_factor"`

	// 区域分离
	ErodeIterations  int     `mapstructure:"erode_iterations"`
	DilateIterations int     `mapstructure:"dilate_iterations"`
	MaxAspectRatio   float64 `mapstructure:"max_aspect_ratio"`
	MinFillRatio     float64 `mapstructure:"min_fill_ratio"`
	MinArea          int     `mapstructure:"min_area"`
	PrimaryTolerance float64 `mapstructure:"primary_tolerance"`

	// 人脸排除
	MinFaceSize      int     `mapstructure:"min_face_size"`
	MinFaceRelative  float64 `mapstructure:"min_face_relative"`
	MinFaceAreaRatio float64 `mapstructure:"min_face_area_ratio"`
	FaceEllipse      string  `mapstructure:"face_ellipse"` // face_hair, inner_face
	FaceRadiusX      float64 `mapstructure:"face_radius_x"`
	FaceRadiusY      float64 `mapstructure:"face_radius_y"`
	FaceShiftY       float64 `mapstructure:"face_shift_y"`
	InnerFaceRadiusX float64 `mapstructure:"inner_face_radius_x"`
	InnerFaceRadiusY float64 `mapstructure:"inner_face_radius_y"`

	// 皮肤修整（8 位 HSV，H 为 0-180）
	SkinHueMin   float64 `mapstructure:"skin_hue_min"`
	SkinHueMax   float64 `mapstructure:"skin_hue_max"`
	SkinSatMin   float64 `mapstructure:"skin_sat_min"`
	SkinSatMax   float64 `mapstructure:"skin_sat_max"`
	SkinValMin   float64 `mapstructure:"skin_val_min"`
	SkinValMax   float64 `mapstructure:"skin_val_max"`
	SkinEdgeBand int     `mapstructure:"skin_edge_band"`

	// 羽化
	PowerCurve float64 `mapstructure:"power_curve"`
	GuidedEps  float64 `mapstructure:"guided_eps"`

	// 泊松融合
	PoissonIterations   int     `mapstructure:"poisson_iterations"` // 每层金字塔的 CG 迭代上限
	PoissonTolerance    float64 `mapstructure:"poisson_tolerance"`
	PoissonCoarsestEdge int     `mapstructure:"poisson_coarsest_edge"`
	PoissonMaxPixels    int     `mapstructure:"poisson_max_pixels"`
}

// Load 从 YAML 文件加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MASKKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 设置默认值
	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// New 使用默认配置路径加载配置
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		// 如果加载失败，返回默认配置
		return Default()
	}
	return cfg
}

// Validate 检查配置是否合法
func (c *Config) Validate() error {
	m := c.Mask
	if m.MinThreshold < 0 || m.MaxThreshold > 100 || m.MinThreshold > m.MaxThreshold {
		return fmt.Errorf("mask threshold clamp [%v,%v] must lie within [0,100]", m.MinThreshold, m.MaxThreshold)
	}
	if m.HistogramBins < 2 || m.HistogramRange <= 0 {
		return fmt.Errorf("mask histogram needs at least 2 bins and a positive range")
	}
	if m.ErodeIterations < 0 || m.DilateIterations < 0 {
		return fmt.Errorf("mask morphology iterations must be >= 0")
	}
	if m.PrimaryTolerance < 0 || m.PrimaryTolerance > 1 {
		return fmt.Errorf("mask.primary_tolerance must be between 0 and 1")
	}
	switch m.FaceEllipse {
	case "face_hair", "inner_face":
	default:
		return fmt.Errorf("mask.face_ellipse must be face_hair or inner_face, got %q", m.FaceEllipse)
	}
	if m.PoissonIterations < 1 || m.PoissonTolerance <= 0 {
		return fmt.Errorf("mask.poisson_iterations and mask.poisson_tolerance must be positive")
	}
	if m.PoissonCoarsestEdge < 2 {
		return fmt.Errorf("mask.poisson_coarsest_edge must be >= 2")
	}
	if m.PoissonMaxPixels <= 0 {
		return fmt.Errorf("mask.poisson_max_pixels must be positive")
	}
	if c.Pipeline.MaxConcurrent < 1 {
		return fmt.Errorf("pipeline.max_concurrent must be positive")
	}
	switch c.Pipeline.FaceCache {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("pipeline.face_cache must be memory, redis or none, got %q", c.Pipeline.FaceCache)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.ttl", d.Redis.TTL)

	v.SetDefault("upload.max_size", d.Upload.MaxSize)
	v.SetDefault("upload.allowed_types", d.Upload.AllowedTypes)

	v.SetDefault("pipeline.max_concurrent", d.Pipeline.MaxConcurrent)
	v.SetDefault("pipeline.queue_timeout", d.Pipeline.QueueTimeout)
	v.SetDefault("pipeline.preview_max_edge", d.Pipeline.PreviewMaxEdge)
	v.SetDefault("pipeline.face_cache", d.Pipeline.FaceCache)
	v.SetDefault("pipeline.face_cache_size", d.Pipeline.FaceCacheSize)
	v.SetDefault("pipeline.cascade_path", d.Pipeline.CascadePath)

	m := d.Mask
	v.SetDefault("mask.lab_scale", m.LabScale)
	v.SetDefault("mask.min_threshold", m.MinThreshold)
	v.SetDefault("mask.max_threshold", m.MaxThreshold)
	v.SetDefault("mask.estimator_max_edge", m.EstimatorMaxEdge)
	v.SetDefault("mask.histogram_bins", m.HistogramBins)
	v.SetDefault("mask.histogram_range", m.HistogramRange)
	v.SetDefault("mask.histogram_sigma", m.HistogramSigma)
	v.SetDefault("mask.valley_prominence", m.ValleyProminence)
	v.SetDefault("mask.valley_scale", m.ValleyScale)
	v.SetDefault("mask.mean_fallback_factor", m.MeanFallbackFactor)
	v.SetDefault("mask.erode_iterations", m.ErodeIterations)
	v.SetDefault("mask.dilate_iterations", m.DilateIterations)
	v.SetDefault("mask.max_aspect_ratio", m.MaxAspectRatio)
	v.SetDefault("mask.min_fill_ratio", m.MinFillRatio)
	v.SetDefault("mask.min_area", m.MinArea)
	v.SetDefault("mask.primary_tolerance", m.PrimaryTolerance)
	v.SetDefault("mask.min_face_size", m.MinFaceSize)
	v.SetDefault("mask.min_face_relative", m.MinFaceRelative)
	v.SetDefault("mask.min_face_area_ratio", m.MinFaceAreaRatio)
	v.SetDefault("mask.face_ellipse", m.FaceEllipse)
	v.SetDefault("mask.face_radius_x", m.FaceRadiusX)
	v.SetDefault("mask.face_radius_y", m.FaceRadiusY)
	v.SetDefault("mask.face_shift_y", m.FaceShiftY)
	v.SetDefault("mask.inner_face_radius_x", m.InnerFaceRadiusX)
	v.SetDefault("mask.inner_face_radius_y", m.InnerFaceRadiusY)
	v.SetDefault("mask.skin_hue_min", m.SkinHueMin)
	v.SetDefault("mask.skin_hue_max", m.SkinHueMax)
	v.SetDefault("mask.skin_sat_min", m.SkinSatMin)
	v.SetDefault("mask.skin_sat_max", m.SkinSatMax)
	v.SetDefault("mask.skin_val_min", m.SkinValMin)
	v.SetDefault("mask.skin_val_max", m.SkinValMax)
	v.SetDefault("mask.skin_edge_band", m.SkinEdgeBand)
	v.SetDefault("mask.power_curve", m.PowerCurve)
	v.SetDefault("mask.guided_eps", m.GuidedEps)
	v.SetDefault("mask.poisson_iterations", m.PoissonIterations)
	v.SetDefault("mask.poisson_tolerance", m.PoissonTolerance)
	v.SetDefault("mask.poisson_coarsest_edge", m.PoissonCoarsestEdge)
	v.SetDefault("mask.poisson_max_pixels", m.PoissonMaxPixels)
}

// Default 返回内置默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8080",
			Mode:         "debug",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			TTL:      24 * time.Hour,
		},
		Upload: UploadConfig{
			MaxSize:      20 * 1024 * 1024,
			AllowedTypes: []string{"image/jpeg", "image/png", "image/jpg", "image/webp"},
		},
		Pipeline: PipelineConfig{
			MaxConcurrent:  2,
			QueueTimeout:   30,
			PreviewMaxEdge: 800,
			FaceCache:      "memory",
			FaceCacheSize:  50,
			CascadePath:    "haarcascade_frontalface_default.xml",
		},
		Mask: DefaultMask(),
	}
}

// DefaultMask 返回掩码算法的默认经验常数
func DefaultMask() MaskConfig {
	return MaskConfig{
		LabScale: 100,

		MinThreshold:       3.0,
		MaxThreshold:       12.0,
		EstimatorMaxEdge:   800,
		HistogramBins:      100,
		HistogramRange:     20,
		HistogramSigma:     2,
		ValleyProminence:   0.10,
		ValleyScale:        0.85,
		MeanFallbackFactor: 0.5,

		ErodeIterations:  3,
		DilateIterations: 4,
		MaxAspectRatio:   8,
		MinFillRatio:     0.3,
		MinArea:          200,
		PrimaryTolerance: 0.5,

		MinFaceSize:      80,
		MinFaceRelative:  0.03,
		MinFaceAreaRatio: 0.30,
		FaceEllipse:      "face_hair",
		FaceRadiusX:      0.70,
		FaceRadiusY:      1.20,
		FaceShiftY:       0.15,
		InnerFaceRadiusX: 0.40,
		InnerFaceRadiusY: 0.50,

		SkinHueMin:   0,
		SkinHueMax:   25,
		SkinSatMin:   30,
		SkinSatMax:   170,
		SkinValMin:   80,
		SkinValMax:   255,
		SkinEdgeBand: 15,

		PowerCurve: 2.5,
		GuidedEps:  1e-3,

		PoissonIterations:   64,
		PoissonTolerance:    0.5,
		PoissonCoarsestEdge: 16,
		PoissonMaxPixels:    2_000_000,
	}
}
