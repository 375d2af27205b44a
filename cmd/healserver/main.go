// Command healserver runs the admin HTTP surface for a Healer instance
// against a live browser session: health, flakiness inspection, cache
// control, and ad-hoc healing requests.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/selectorheal/selectorheal/internal/api"
	"github.com/selectorheal/selectorheal/internal/browserdriver"
	"github.com/selectorheal/selectorheal/internal/config"
	"github.com/selectorheal/selectorheal/internal/healer"
	"github.com/selectorheal/selectorheal/internal/llmclient"
	"github.com/selectorheal/selectorheal/internal/observability"
	"github.com/selectorheal/selectorheal/internal/strategy"
)

func main() {
	envFile := flag.String("env", ".env", "path to .env file (optional)")
	yamlFile := flag.String("config", "", "path to YAML config file (optional)")
	addr := flag.String("addr", ":8090", "listen address")
	headless := flag.Bool("headless", true, "launch Chromium headless")
	verbose := flag.Bool("verbose", false, "verbose (development) logging")

	flag.Parse()

	logger := initLogger(*verbose)
	defer logger.Sync()

	cfg, err := config.Load(*envFile, *yamlFile)
	if err != nil {
		logger.Fatal("loading config", zap.Error(err))
	}

	var llmBackend strategy.LLMBackend
	if cfg.Ollama.URL != "" {
		client, err := llmclient.New(llmclient.Config{
			URL:         cfg.Ollama.URL,
			Model:       cfg.Ollama.Model,
			Timeout:     time.Duration(cfg.Ollama.TimeoutMs) * time.Millisecond,
			Temperature: cfg.Ollama.Temperature,
			TopP:        cfg.Ollama.TopP,
		})
		if err != nil {
			logger.Warn("llm client disabled", zap.Error(err))
		} else {
			llmBackend = client
		}
	}

	driver, cleanup, err := browserdriver.Launch(*headless)
	if err != nil {
		logger.Fatal("launching browser", zap.Error(err))
	}
	defer cleanup()

	metrics := observability.NewMetrics("selectorheal")

	h := healer.New(*cfg, driver, llmBackend,
		healer.WithLogger(logger),
		healer.WithMetrics(metrics),
	)
	defer h.Close()

	router := api.NewRouter(api.RouterConfig{
		Healer:     h,
		Metrics:    metrics,
		Logger:     logger,
		EnableCORS: true,
	})

	server := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("healserver listening", zap.String("addr", *addr))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed, forcing close", zap.Error(err))
			server.Close()
		}

		logger.Info("healserver stopped gracefully")
	}
}

func initLogger(verbose bool) *zap.Logger {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
