package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/paperqa/internal/middleware"
)

type RouterDeps struct {
	Papers      *PaperHandler
	Health      *HealthHandler
	RateLimitMS int
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/papers/upload", deps.Papers.Upload)
	api.GET("/papers", deps.Papers.List)
	api.GET("/papers/:id", deps.Papers.Get)
	api.DELETE("/papers/:id", deps.Papers.Delete)

	limited := api.Group("")
	limited.Use(middleware.RateLimit(time.Duration(deps.RateLimitMS) * time.Millisecond))
	limited.POST("/ask", deps.Papers.Ask)
	limited.POST("/compare", deps.Papers.Compare)

	api.GET("/health", deps.Health.Health)
}
