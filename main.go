package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/opsdash/commesse-api/config"
	"github.com/opsdash/commesse-api/controllers"
	"github.com/opsdash/commesse-api/middleware"
	"github.com/opsdash/commesse-api/models"
	"github.com/opsdash/commesse-api/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	if cfg.IsDevelopment() {
		logger = logger.WithOptions(zap.Development())
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting commesse API", zap.String("env", cfg.GoEnv), zap.String("port", cfg.Port))

	if err := config.ConnectDatabase(cfg, logger); err != nil {
		return err
	}
	db := config.GetDB()
	if err := db.AutoMigrate(models.All()...); err != nil {
		return err
	}
	logger.Info("database migration completed")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := services.NewMetrics(registry)

	channel, redisClient := notificationChannel(cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	dispatcher := services.NewDispatcher(channel, logger, metrics, cfg.NotificationTimeout)

	repo := services.NewGormOrderRepository(db)
	store := services.NewPipelineStore(repo, dispatcher, logger, services.WithMetrics(metrics))
	if err := store.Refresh(context.Background()); err != nil {
		return err
	}
	services.SetPipelineStore(store)

	deleteOpts := []services.CascadeOption{
		services.WithTransaction(cfg.CascadeDeleteTx),
		services.WithEvictor(store),
		services.WithDeletionMetrics(metrics),
	}
	if cfg.AWSS3Bucket != "" {
		s3, err := services.NewS3Service(context.Background(), cfg)
		if err != nil {
			return err
		}
		media := services.InitMediaService(s3, db, logger)
		deleteOpts = append(deleteOpts, services.WithMediaRemover(media))
	} else {
		logger.Warn("AWS_S3_BUCKET not set, media endpoints are disabled")
	}
	services.SetCascadeDeleter(services.NewCascadeDeleter(repo, logger, deleteOpts...))

	auth, writeGuard, err := authMiddleware(cfg, logger)
	if err != nil {
		return err
	}

	controllers.SetLogger(logger)
	router := newRouter(cfg, logger, registry, auth, writeGuard)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	if err := store.Close(ctx); err != nil {
		logger.Error("pending writes did not settle", zap.Error(err))
	}
	if err := dispatcher.Flush(ctx); err != nil {
		logger.Error("pending notifications were dropped", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}

// notificationChannel sends to the log, plus a Redis stream when REDIS_ADDR is set
func notificationChannel(cfg *config.Config, logger *zap.Logger) (services.NotificationChannel, *redis.Client) {
	logChannel := services.NewLogChannel(logger)
	if cfg.Redis.Addr == "" {
		return logChannel, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis is not reachable yet, notifications may fail", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}

	stream := services.NewRedisStreamChannel(client, cfg.Redis.Stream, cfg.Redis.StreamMaxLen)
	return services.MultiChannel{logChannel, stream}, client
}

func authMiddleware(cfg *config.Config, logger *zap.Logger) (gin.HandlerFunc, gin.HandlerFunc, error) {
	if !cfg.AuthEnabled() {
		logger.Warn("AUTH0_DOMAIN not set, requests are served as anonymous")
		return middleware.AnonymousActor(), nil, nil
	}

	auth, err := middleware.EnsureValidToken(cfg, logger, services.NewAuth0Service(cfg))
	if err != nil {
		return nil, nil, err
	}
	return auth, middleware.RequireScope(middleware.WriteScope), nil
}

// newRouter builds the engine with every route mounted
func newRouter(cfg *config.Config, logger *zap.Logger, gatherer prometheus.Gatherer, auth, writeGuard gin.HandlerFunc) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/database/status", databaseStatus)
	}
	controllers.RegisterRoutes(v1, auth, writeGuard)

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Commesse API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()

	// Get the underlying SQL database to check connection
	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	// works on both postgres and sqlite
	tables, err := db.Migrator().GetTables()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
