package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eternisai/devotional-push/internal/app"
	"github.com/eternisai/devotional-push/internal/auth"
	"github.com/eternisai/devotional-push/internal/config"
	"github.com/eternisai/devotional-push/internal/logger"
	"github.com/eternisai/devotional-push/internal/notifications"
	"github.com/eternisai/devotional-push/internal/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))
	slog.SetDefault(appLogger.Logger)

	appLogger.Info("setting gin mode", slog.String("mode", cfg.GinMode))
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("failed to initialize", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	operatorAuth := auth.NewBearerSecretMiddleware(cfg.OperatorAPIKey, "operator", appLogger)
	cronAuth := auth.NewBearerSecretMiddleware(cfg.CronSecret, "cron", appLogger)
	if !operatorAuth.Configured() {
		appLogger.Warn("OPERATOR_API_KEY not set, test send endpoint disabled")
	}
	if !cronAuth.Configured() {
		appLogger.Warn("CRON_SECRET not set, dispatch endpoint disabled")
	}

	router := gin.New()
	router.Use(gin.Recovery(), logger.RequestLoggingMiddleware(appLogger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":          "ok",
			"push_configured": a.Service.Configured(),
		})
	})
	if cfg.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))
	}

	pushHandler := notifications.NewHandler(a.Service, appLogger)
	pushHandler.RegisterRoutes(router.Group("/api/v1"), operatorAuth.RequireSecret(), cronAuth.RequireSecret())

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         600,
	}).Handler(router)

	if cfg.CronSchedule != "" {
		worker, err := scheduler.NewDispatchWorker(a.Service, cfg.CronSchedule, appLogger)
		if err != nil {
			appLogger.Error("failed to start dispatch scheduler", slog.String("error", err.Error()))
			os.Exit(1)
		}
		go worker.Run(ctx)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("server starting", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("server forced to shutdown", slog.String("error", err.Error()))
	}
	appLogger.Info("server exited")
}
