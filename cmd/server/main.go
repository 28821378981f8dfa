package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/vanguardia360/performance-engine/internal/auth"
	"github.com/vanguardia360/performance-engine/internal/config"
	"github.com/vanguardia360/performance-engine/internal/database"
	"github.com/vanguardia360/performance-engine/internal/errors"
	"github.com/vanguardia360/performance-engine/internal/goals"
	"github.com/vanguardia360/performance-engine/internal/metrics"
	"github.com/vanguardia360/performance-engine/internal/monitoring"
	"github.com/vanguardia360/performance-engine/internal/ranking"
	"github.com/vanguardia360/performance-engine/internal/ratelimit"
	"github.com/vanguardia360/performance-engine/internal/security"
	"github.com/vanguardia360/performance-engine/internal/snapshots"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	db, err := database.NewDB(cfg.DataDir)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := database.NewRepository(db)
	appMetrics := monitoring.NewMetrics()

	aggregator := metrics.NewAggregator(repo)
	recorder := snapshots.NewRecorder(repo, aggregator, cfg.WindowDays)
	rankingService := ranking.NewService(repo)
	goalService := goals.NewService(repo)
	authService := auth.NewService(cfg.JWTSecret)

	redisClient := ratelimit.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()
	limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		BurstMultiplier:   2,
	}, appMetrics)

	server := &server{
		db:         db,
		metrics:    appMetrics,
		aggregator: aggregator,
		recorder:   recorder,
		ranking:    rankingService,
		goals:      goalService,
	}
	router := newRouter(server, cfg, authService, limiter)

	// Daily batch so dashboards have fresh scores before the workday.
	batchCtx, stopBatch := context.WithCancel(context.Background())
	defer stopBatch()
	go server.runSnapshotSchedule(batchCtx, cfg.SnapshotHourUTC)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	go func() {
		slog.Info("Starting server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	stopBatch()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}

func newRouter(s *server, cfg *config.Config, authService *auth.Service, limiter *ratelimit.RateLimiter) *gin.Engine {
	router := gin.New()

	router.Use(monitoring.Middleware(s.metrics))
	router.Use(errors.ErrorHandler())
	router.Use(errors.RecoveryHandler())
	router.Use(security.HeadersMiddleware())
	router.Use(security.RequestTimeout(30 * time.Second))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	router.GET("/stats", func(c *gin.Context) {
		stats := gin.H{
			"database":      s.db.GetPoolStats(),
			"ranking_cache": s.ranking.GetCacheStats(),
		}
		if limiter != nil {
			stats["rate_limiter"] = limiter.GetStats()
		}
		c.JSON(http.StatusOK, stats)
	})
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/api")
	if limiter != nil {
		api.Use(ratelimit.Middleware(limiter))
	}

	api.POST("/score", s.handleScore)
	api.GET("/owners/:id/metrics", s.handleOwnerMetrics)
	api.GET("/owners/:id/snapshots/latest", s.handleLatestSnapshot)
	api.GET("/owners/:id/snapshots", s.handleSnapshotHistory)
	api.GET("/owners/:id/trend", s.handleTrend)
	api.GET("/ranking", s.handleRanking)
	api.GET("/ranking/averages", s.handleTeamAverages)
	api.GET("/goals", s.handleListGoals)
	api.GET("/goals/:id/progress", s.handleGoalProgress)

	protected := api.Group("")
	protected.Use(authService.Middleware())
	protected.POST("/snapshots/recalculate", s.handleRecalculate)
	protected.POST("/goals", s.handleCreateGoal)
	protected.PUT("/goals/:id", s.handleUpdateGoal)
	protected.DELETE("/goals/:id", s.handleDeleteGoal)

	return router
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
