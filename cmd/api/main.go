package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dan9191/balance-planner/internal/config"
	"github.com/Dan9191/balance-planner/internal/handler"
	"github.com/Dan9191/balance-planner/internal/integrations/cbr"
	"github.com/Dan9191/balance-planner/internal/middleware"
	"github.com/Dan9191/balance-planner/internal/optimizer"
	"github.com/Dan9191/balance-planner/internal/repository"
	"github.com/Dan9191/balance-planner/internal/service"
	"github.com/Dan9191/balance-planner/internal/utils/email"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	opts, err := optimizer.LoadOptions(cfg.TuningFile)
	if err != nil {
		logger.Fatalf("Failed to load optimizer tuning: %v", err)
	}

	// Run history
	var runs repository.RunRepository = repository.NewMemoryRunRepository()
	if cfg.DBConn != "" {
		db, err := sql.Open("postgres", cfg.DBConn)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("Failed to ping database: %v", err)
		}
		pg := repository.NewPostgresRunRepository(db)
		if err := pg.Migrate(context.Background()); err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
		runs = pg
	}

	// Key rate cache
	var cache repository.Cache = repository.NewMemoryCache()
	if cfg.RedisAddr != "" {
		rc := repository.NewRedisCache(cfg.RedisAddr)
		defer rc.Close()
		if err := rc.Ping(context.Background()); err != nil {
			logger.Fatalf("Failed to connect to redis: %v", err)
		}
		cache = rc
	}
	cbrClient := cbr.NewCBRClient(cfg.CBRURL, cfg.BankMargin, cache, cfg.KeyRateTTL, logger)

	var notifier service.Notifier
	if cfg.NotificationsEnabled() {
		notifier = email.NewSender(cfg, logger)
	}

	// Initialize layers
	svc := service.NewService(runs, cbrClient, notifier, optimizer.New(opts, logger), logger, cfg)
	h := handler.NewHandler(svc, logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst)

	// Setup router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	// Public routes
	h.RegisterPublicRoutes(r)
	// Protected routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(svc, logger))
	authRouter.Use(limiter.Middleware)
	h.RegisterRoutes(authRouter)

	// Scheduled jobs
	c := cron.New()
	if _, err := c.AddFunc(cfg.KeyRateRefresh, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := svc.RefreshKeyRate(ctx); err != nil {
			logger.WithError(err).Warn("Key rate refresh failed")
		}
	}); err != nil {
		logger.Fatalf("Failed to schedule key rate refresh: %v", err)
	}
	if _, err := c.AddFunc(cfg.SessionSweep, func() {
		svc.EvictIdle()
		limiter.Reset()
	}); err != nil {
		logger.Fatalf("Failed to schedule session sweep: %v", err)
	}
	c.Start()
	defer c.Stop()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		// optimizations run inside the request
		WriteTimeout: 5 * time.Minute,
	}
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	logger.Info("Server stopped")
}
