package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jengzang/fwa-watersheds-go/internal/config"
	"github.com/jengzang/fwa-watersheds-go/internal/handler"
	"github.com/jengzang/fwa-watersheds-go/internal/middleware"
	"github.com/jengzang/fwa-watersheds-go/internal/ratelimit"
)

// SetupRouter 设置路由. limiter may be nil to disable rate limiting.
func SetupRouter(cfg *config.Config, h *handler.WatershedHandler, limiter *ratelimit.Limiter, log logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(log))

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "FWA watershed API is running",
		})
	})

	// API 路由组
	api := r.Group("/api/v1")
	if limiter != nil {
		api.Use(middleware.RateLimit(limiter))
	}
	{
		runs := api.Group("/runs")
		{
			runs.POST("", middleware.Auth(cfg.Server.JWTSecret), h.CreateRun)
			runs.GET("/:id", h.GetRun)
			runs.POST("/:id/cancel", middleware.Auth(cfg.Server.JWTSecret), h.CancelRun)
		}

		api.GET("/watersheds/:point_id", h.GetWatershed)
		api.GET("/codes/upstream", h.IsUpstream)
		api.GET("/codes/local", h.LocalCode)
	}

	return r
}
