package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/lrs-metrics-api/api/swagger"
	"github.com/noah-isme/lrs-metrics-api/internal/handler"
	"github.com/noah-isme/lrs-metrics-api/internal/lrs"
	"github.com/noah-isme/lrs-metrics-api/internal/middleware"
	"github.com/noah-isme/lrs-metrics-api/internal/provider"
	"github.com/noah-isme/lrs-metrics-api/internal/repository"
	"github.com/noah-isme/lrs-metrics-api/internal/service"
	rediscache "github.com/noah-isme/lrs-metrics-api/pkg/cache"
	"github.com/noah-isme/lrs-metrics-api/pkg/config"
	"github.com/noah-isme/lrs-metrics-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/lrs-metrics-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lrs-metrics-api/pkg/middleware/requestid"
)

// @title LRS Metrics API
// @version 0.1.0
// @description Learning-analytics metric serving over xAPI statement stores
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := rediscache.NewRedis(cfg.Redis)
		if err != nil {
			// The serving path tolerates a missing cache; it just loses
			// the stale-fallback degradation tier.
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
			cfg.Cache.Enabled = false
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache, logr)

	breaker := service.NewCircuitBreaker(cfg.Circuit.FailureThreshold, cfg.Circuit.Cooldown, clockwork.NewRealClock())
	breaker.OnStateChange = func(instanceID string, open bool) {
		metricsSvc.SetCircuitOpen(instanceID, open)
		if open {
			logr.Sugar().Warnw("circuit opened", "instance", instanceID)
		} else {
			logr.Sugar().Infow("circuit closed", "instance", instanceID)
		}
	}

	stores := make([]service.StatementStore, 0, len(cfg.LRS.Instances))
	for _, instance := range cfg.LRS.Instances {
		stores = append(stores, lrs.NewClient(instance, logr, metricsSvc))
	}

	registry := provider.DefaultRegistry()
	metricSvc := service.NewMetricService(registry, cacheSvc, stores, breaker, metricsSvc, logr, cfg.LRS.MaxStatements)
	exportSvc := service.NewExportService()

	metricHandler := handler.NewMetricHandler(metricSvc, exportSvc)
	opsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", opsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics-sys", opsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/metrics", metricHandler.Catalog)
		api.GET("/metrics/:metricId", metricHandler.Serve)
		api.GET("/system/health", metricHandler.SystemHealth)
		api.GET("/system/metrics", metricHandler.SystemMetrics)

		if cfg.Exports.Enabled {
			api.GET("/metrics/:metricId/export", metricHandler.Export)
			api.GET("/catalog/export", metricHandler.CatalogExport)
		}

		api.POST("/cache/invalidate", middleware.JWT(cfg.Auth), metricHandler.Invalidate)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "instances", len(stores))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
