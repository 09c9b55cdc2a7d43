package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/classtrack/attendance-api/api/swagger"
	"github.com/classtrack/attendance-api/internal/handler"
	"github.com/classtrack/attendance-api/internal/middleware"
	"github.com/classtrack/attendance-api/internal/notify"
	"github.com/classtrack/attendance-api/internal/repository"
	"github.com/classtrack/attendance-api/internal/service"
	"github.com/classtrack/attendance-api/pkg/cache"
	"github.com/classtrack/attendance-api/pkg/config"
	"github.com/classtrack/attendance-api/pkg/database"
	"github.com/classtrack/attendance-api/pkg/logger"
	corsmiddleware "github.com/classtrack/attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/classtrack/attendance-api/pkg/middleware/requestid"
)

// @title Attendance API
// @version 1.0.0
// @description Attendance recording and reporting service
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	// The stats cache degrades to direct computation when Redis is
	// unavailable, so a failed connection only logs.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, stats cache disabled", "error", err)
		redisClient = nil
	}

	attendanceRepo := repository.NewAttendanceRepository(db)
	studentRepo := repository.NewStudentRepository(db)

	var statsCache *service.CacheService
	metricsSvc := service.NewMetricsService()
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient)
		defer cacheRepo.Close()
		statsCache = service.NewCacheService(cacheRepo, metricsSvc, cfg.Stats.CacheTTL, logr)
	}

	notifier := notify.NewQueueNotifier(cfg.Notify, logr)
	notifier.Start(context.Background())
	defer notifier.Stop()

	attendanceSvc := service.NewAttendanceService(attendanceRepo, studentRepo, statsCache, notifier, nil, logr, cfg.Stats.CacheTTL)
	studentSvc := service.NewStudentService(studentRepo)
	exportSvc := service.NewExportService()

	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, exportSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	apiGroup := r.Group(cfg.APIPrefix)
	apiGroup.Use(middleware.OptionalJWT(cfg.JWT))
	{
		apiGroup.POST("/attendance/bulk", attendanceHandler.BulkRecord)
		apiGroup.GET("/attendance", attendanceHandler.List)
		apiGroup.GET("/attendance/daily-stats", attendanceHandler.DailyStats)
		apiGroup.GET("/attendance/monthly-report", attendanceHandler.MonthlyReport)
		apiGroup.GET("/attendance/monthly-report/export", attendanceHandler.ExportMonthlyReport)

		apiGroup.GET("/students", studentHandler.List)
		apiGroup.GET("/students/:id", studentHandler.Get)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
