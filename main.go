package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/handler"
	"github.com/TIANLI0/MaskKit/middleware"
	"github.com/TIANLI0/MaskKit/service"
	"github.com/TIANLI0/MaskKit/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	BuildID   = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

func main() {
	// 加载配置
	cfg := config.New()

	// 初始化日志
	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	utils.Logger.Info("starting MaskKit server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("git_branch", GitBranch))

	// 人脸缓存
	cache, closeCache := newFaceCache(cfg)
	defer closeCache()

	// 人脸检测器（需要 gocv 构建标签）
	var detector service.FaceDetector
	cascade, err := service.NewCascadeDetector(cfg.Pipeline.CascadePath)
	if err != nil {
		utils.Logger.Warn("face detector unavailable, face exclusion disabled", zap.Error(err))
	} else {
		detector = cascade
		defer cascade.Close()
	}

	smartMask := service.NewSmartMaskService(&cfg.Mask, &cfg.Pipeline, detector, cache)

	// 初始化Handler
	compositeHandler := handler.NewCompositeHandler(cfg, smartMask)

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())
	r.MaxMultipartMemory = 2 * cfg.Upload.MaxSize

	// 健康检查和版本信息
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"version": Version,
		})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"build_id":   BuildID,
			"git_commit": GitCommit,
			"git_branch": GitBranch,
		})
	})

	// API路由
	api := r.Group("/api/v1")
	{
		api.POST("/composite", compositeHandler.Composite)
		api.GET("/presets", compositeHandler.Presets)
	}

	// 启动服务器
	utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	if err := srv.ListenAndServe(); err != nil {
		utils.Logger.Fatal("failed to start server", zap.Error(err))
	}
}

func newFaceCache(cfg *config.Config) (service.FaceCache, func()) {
	switch cfg.Pipeline.FaceCache {
	case "redis":
		redisCache := service.NewRedisFaceCache(&cfg.Redis)
		if err := redisCache.Ping(context.Background()); err != nil {
			utils.Logger.Warn("redis connection failed, using memory face cache", zap.Error(err))
			redisCache.Close()
			return service.NewMemoryFaceCache(cfg.Pipeline.FaceCacheSize), func() {}
		}
		utils.Logger.Info("redis connected successfully")
		return redisCache, func() { redisCache.Close() }
	case "none":
		return service.NopFaceCache{}, func() {}
	default:
		return service.NewMemoryFaceCache(cfg.Pipeline.FaceCacheSize), func() {}
	}
}
