package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/basmagi-quiz/api/swagger"
	"github.com/noah-isme/basmagi-quiz/internal/handler"
	"github.com/noah-isme/basmagi-quiz/internal/middleware"
	"github.com/noah-isme/basmagi-quiz/internal/service"
	"github.com/noah-isme/basmagi-quiz/pkg/config"
	appErrors "github.com/noah-isme/basmagi-quiz/pkg/errors"
	"github.com/noah-isme/basmagi-quiz/pkg/logger"
	corsmiddleware "github.com/noah-isme/basmagi-quiz/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/basmagi-quiz/pkg/middleware/requestid"
	"github.com/noah-isme/basmagi-quiz/pkg/response"
)

// routes groups the handlers mounted by the gateway. quizzes is nil when the
// database is unavailable.
type routes struct {
	offline *handler.OfflineHandler
	auth    *handler.AuthHandler
	quizzes *handler.QuizHandler
	exports *handler.ExportHandler
	metrics *handler.MetricsHandler
	tokens  middleware.TokenValidator
}

func newRouter(cfg *config.Config, logr *zap.Logger, metricsSvc *service.MetricsService, h routes) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.metrics.Health)
	r.GET("/metrics", h.metrics.Prometheus)

	sw := r.Group("/sw")
	sw.GET("/status", h.offline.Status)
	sw.POST("/messages", h.offline.PostMessage)
	sw.GET("/clients", h.offline.Clients)

	admin := middleware.RequireAdmin(h.tokens)
	api := r.Group(cfg.APIPrefix)
	api.POST("/auth", h.auth.Login)
	api.POST("/exports", h.exports.Create)
	api.GET("/exports/:token", h.exports.Download)
	api.GET("/metrics/summary", admin, h.metrics.Snapshot)
	if h.quizzes != nil {
		api.GET("/quiz-data", h.quizzes.Data)
		api.GET("/quiz-manifest", h.quizzes.Manifest)
		api.POST("/quizzes", admin, h.quizzes.Upload)
		api.GET("/quiz-paths", admin, h.quizzes.Paths)
	} else {
		api.GET("/quiz-data", databaseUnavailable)
		api.GET("/quiz-manifest", databaseUnavailable)
		api.POST("/quizzes", admin, databaseUnavailable)
		api.GET("/quiz-paths", admin, databaseUnavailable)
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.NoRoute(h.offline.Fetch)
	return r
}

func databaseUnavailable(c *gin.Context) {
	response.Error(c, appErrors.Clone(appErrors.ErrUpstreamUnavailable, "quiz database unavailable"))
}
