package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/exam-attempt-service/internal/services"
	"github.com/SAP-F-2025/exam-attempt-service/internal/utils"
)

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	AllowedOrigins []string
	Auth           gin.HandlerFunc
	Health         HealthChecker
}

type HandlerManager struct {
	attemptHandler *AttemptHandler
	streamHandler  *StreamHandler
	logger         utils.Logger
	config         RouterConfig
}

func NewHandlerManager(
	attemptService services.AttemptService,
	logger utils.Logger,
	config RouterConfig,
) *HandlerManager {
	if config.Auth == nil {
		config.Auth = HeaderIdentityMiddleware()
	}
	return &HandlerManager{
		attemptHandler: NewAttemptHandler(attemptService, logger),
		streamHandler:  NewStreamHandler(attemptService, logger, config.AllowedOrigins),
		logger:         logger,
		config:         config,
	}
}

// NewRouter builds the gin engine with middleware and every route installed.
func (hm *HandlerManager) NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(hm.corsConfig()))
	router.Use(utils.RequestIDMiddleware())
	router.Use(utils.LoggerMiddleware(hm.logger))
	router.Use(utils.ContextLogger(hm.logger))

	hm.SetupRoutes(router)
	return router
}

func (hm *HandlerManager) corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	if len(hm.config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = hm.config.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", utils.RequestIDHeader, headerUserID, headerUserRole}
	corsConfig.ExposeHeaders = []string{utils.RequestIDHeader}
	corsConfig.MaxAge = 12 * time.Hour
	return corsConfig
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", hm.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(hm.config.Auth)
	{
		v1.POST("/exams/:exam_id/attempts", hm.attemptHandler.StartAttempt)

		attempts := v1.Group("/attempts")
		{
			attempts.GET("", hm.attemptHandler.ListAttempts)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.PUT("/:id/answers", hm.attemptHandler.SaveAnswers)
			attempts.POST("/:id/violations", hm.attemptHandler.RecordViolation)
			attempts.POST("/:id/signals", hm.attemptHandler.ReportSignal)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.POST("/:id/invalidate", hm.attemptHandler.InvalidateAttempt)
			attempts.GET("/:id/time-remaining", hm.attemptHandler.GetTimeRemaining)
		}

		v1.POST("/selection/random", hm.attemptHandler.SelectRandomQuestions)
	}

	ws := router.Group("/ws/v1")
	ws.Use(hm.config.Auth)
	{
		ws.GET("/attempts/:id/stream", hm.streamHandler.AttemptStream)
	}
}

func (hm *HandlerManager) HealthCheck(c *gin.Context) {
	if hm.config.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := hm.config.Health.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": "exam-attempt-service",
				"error":   err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "exam-attempt-service",
	})
}
