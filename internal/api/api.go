// internal/api/api.go
package api

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/datapipe/internal/api/handlers"
	"github.com/andresuchdata/datapipe/internal/api/middleware"
	"github.com/andresuchdata/datapipe/internal/config"
	"github.com/andresuchdata/datapipe/internal/service"
)

func NewRouter(svc *service.PipelineService, cfg *config.Config) *gin.Engine {
	router := gin.New()

	// Add middleware
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	normalizedOrigins, allowAll := normalizeAllowedOrigins(cfg.Server.AllowedOrigins)
	if allowAll {
		corsConfig.AllowOriginFunc = func(origin string) bool { return true }
	} else if len(normalizedOrigins) > 0 {
		corsConfig.AllowOrigins = normalizedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")
	{
		pipelineHandler := handlers.NewPipelineHandler(svc, cfg.Retention)
		apiGroup.POST("/events", pipelineHandler.PostEvents)
		apiGroup.POST("/sweep", pipelineHandler.PostSweep)
		apiGroup.GET("/stats", pipelineHandler.GetStats)
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
