package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/toop9472-lang/Sgr2040-sub001/internal/cache"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/callback"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/config"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/database"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/ledger"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/logging"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/mediation"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/metrics"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/middleware"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/monitoring"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/provider"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/queue"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/ratelimit"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/session"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/settings"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/storage"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/tracing"
	"github.com/toop9472-lang/Sgr2040-sub001/pkg/models"
)

// API wires the rewarded-ads service surface together.
type API struct {
	repo     *database.Repository
	cache    *cache.Cache
	storage  *storage.Storage
	settings *settings.Store
	selector *mediation.Selector
	sessions *session.Manager
	unity    *callback.UnityCallback
	monitor  *monitoring.Monitor
	log      *logging.Logger
}

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.NewLogger(logging.Config{Level: cfg.Server.LogLevel, Format: "json", Output: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	middleware.SetJWTSecret(cfg.Auth.JWTSecret)

	// Tracing
	if cfg.Tracing.Enabled {
		closer, err := tracing.Init(cfg.Tracing)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer closer.Close()
	}

	// Database
	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := database.NewRepository(db)

	// Redis
	redisCache, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisCache.Close()

	// Creative storage
	stor, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// Event bus
	q, err := queue.New(cfg.Queue)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	if err := q.SetupDeadLetterQueue(); err != nil {
		log.Fatalf("Failed to set up dead letter queue: %v", err)
	}

	ctx := context.Background()

	// Live settings: persisted admin edits win over the config file.
	settingsStore, err := settings.NewStore(ctx, repo, &cfg.Ads)
	if err != nil {
		log.Fatalf("Failed to load ad settings: %v", err)
	}

	registry := provider.NewRegistry(repo, stor, nil, settingsStore.Current())
	settingsStore.Subscribe(registry.Rebuild)
	config.Watch(func(updated *config.Config) {
		settingsStore.Reload(ctx, &updated.Ads)
	})

	rewardLedger := ledger.New(repo, log)
	sessions := session.NewManager(repo, redisCache, rewardLedger, q, log)
	selector := mediation.NewSelector(repo, redisCache, registry, ratelimit.NewChecker(), settingsStore, log)
	unity := callback.NewUnityCallback(callback.NewUnityVerifier(cfg.Auth.UnityS2SSecret), sessions, log)

	monitor := monitoring.NewMonitor(redisCache, q, log)
	monitor.Start(ctx)

	api := &API{
		repo:     repo,
		cache:    redisCache,
		storage:  stor,
		settings: settingsStore,
		selector: selector,
		sessions: sessions,
		unity:    unity,
		monitor:  monitor,
		log:      log,
	}

	// Expired-session sweeper
	sweeper := session.NewSweeper(sessions, cfg.Sweeper.Interval, cfg.Sweeper.BatchSize)
	sweeper.Start()
	defer sweeper.Stop()

	// Metrics server
	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(cfg.Metrics.Port)
		go func() {
			if err := metricsSrv.Start(); err != nil && err != http.ErrServerClosed {
				log.Errorf("Metrics server error: %v", err)
			}
		}()
	}

	// HTTP server
	router := setupRouter(api, cfg)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	log.Info("Server stopped")
}

func setupRouter(api *API, cfg *config.Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	limiter := middleware.NewRateLimiter(cfg.Server.RequestsPerSec, cfg.Server.Burst)

	// Health check
	router.GET("/health", api.healthCheck)

	v1 := router.Group("/api/v1")

	// Provider callbacks authenticate via signature, not JWT.
	v1.GET("/callbacks/unity", api.unityCallback)

	authed := v1.Group("", middleware.JWTAuth(), middleware.RateLimit(limiter))
	{
		ads := authed.Group("/rewarded-ads")
		ads.GET("/next", api.nextAd)
		ads.POST("/sessions/:id/start", api.startSession)
		ads.POST("/sessions/:id/complete", api.completeSession)
		ads.GET("/sessions/:id", api.getSession)
		ads.GET("/stats", api.getStats)
		ads.GET("/leaderboard", api.getLeaderboard)
	}

	admin := v1.Group("/admin", middleware.JWTAuth(), middleware.AdminOnly())
	{
		admin.GET("/rewarded-ads/settings", api.getAdSettings)
		admin.PUT("/rewarded-ads/settings", api.updateAdSettings)
		admin.GET("/rewarded-ads/health", api.pipelineHealth)
		admin.POST("/ads", api.uploadPersonalAd)
		admin.GET("/ads", api.listPersonalAds)
	}

	return router
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := api.repo.Health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// denialStatus maps a mediation denial to its HTTP status.
func denialStatus(reason string) int {
	switch reason {
	case models.DenyReasonSessionOpen:
		return http.StatusConflict
	case models.DenyReasonNoAdsAvailable:
		return http.StatusNotFound
	default:
		return http.StatusTooManyRequests
	}
}
