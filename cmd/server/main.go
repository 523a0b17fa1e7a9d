package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobby-s-dev/weather-lookup/internal/api"
	"github.com/bobby-s-dev/weather-lookup/internal/config"
	"github.com/bobby-s-dev/weather-lookup/internal/scheduler"
	"github.com/bobby-s-dev/weather-lookup/internal/services"
	"github.com/bobby-s-dev/weather-lookup/pkg/client"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Initialize logger
	logger, level := newLogger(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	logger.Info("Starting Weather Lookup Service")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// .env may carry its own LOG_LEVEL
	if lvl, err := zapcore.ParseLevel(cfg.Server.LogLevel); err == nil {
		level.SetLevel(lvl)
	}

	if !cfg.HasAPIKey() {
		logger.Warn("OPENWEATHER_API_KEY is not set, weather lookups will fail until it is configured")
	}

	provider := client.NewOpenWeatherClient(cfg.WeatherAPI.OpenWeatherURL, client.ClientConfig{
		Timeout:        cfg.WeatherAPI.Timeout,
		MaxRetries:     cfg.Retry.MaxRetries,
		RetryDelay:     cfg.Retry.Delay,
		Multiplier:     cfg.Retry.Multiplier,
		Threshold:      cfg.CircuitBreaker.Threshold,
		BreakerTimeout: cfg.CircuitBreaker.Timeout,
	}, logger)

	weatherService := services.NewWeatherService(cfg, provider, logger)

	prober := scheduler.NewProber(weatherService, cfg.WeatherAPI.DiagnosticCity, cfg.Probe.Schedule, logger)
	if err := prober.Start(); err != nil {
		logger.Fatal("Failed to start upstream probe", zap.Error(err))
	}

	handler := api.NewHandler(weatherService, prober, cfg.WeatherAPI.DiagnosticCity, logger)
	app := api.NewApp(cfg, handler, logger)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Info("Starting server", zap.String("address", addr))

		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prober.Stop()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func newLogger(levelName string) (*zap.Logger, zap.AtomicLevel) {
	zapCfg := zap.NewProductionConfig()
	if levelName == "debug" {
		zapCfg = zap.NewDevelopmentConfig()
	}

	if lvl, err := zapcore.ParseLevel(levelName); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return zap.NewNop(), zapCfg.Level
	}
	return logger, zapCfg.Level
}
