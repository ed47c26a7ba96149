package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/finddoc-chatbot/cmd/mainconfig"
	"github.com/wolfman30/finddoc-chatbot/internal/api/router"
	"github.com/wolfman30/finddoc-chatbot/internal/app/bootstrap"
	"github.com/wolfman30/finddoc-chatbot/internal/chat"
	appconfig "github.com/wolfman30/finddoc-chatbot/internal/config"
	"github.com/wolfman30/finddoc-chatbot/internal/finddoc"
	httpmiddleware "github.com/wolfman30/finddoc-chatbot/internal/http/middleware"
	"github.com/wolfman30/finddoc-chatbot/internal/notify"
	"github.com/wolfman30/finddoc-chatbot/internal/observability/metrics"
	"github.com/wolfman30/finddoc-chatbot/internal/webchat"
	"github.com/wolfman30/finddoc-chatbot/pkg/logging"
)

func main() {
	// A missing .env is normal outside local development.
	envErr := godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Warn("failed to read .env", "error", envErr)
	}
	logger.Info("starting finddoc chatbot API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"session_store", cfg.SessionStore,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	srv, cleanup, err := buildServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize server", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// buildServer wires config into the HTTP server. cleanup releases the Redis
// client; the rate limiter's sweeper stops with ctx.
func buildServer(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*http.Server, func(), error) {
	metricsHandler, chatMetrics := setupMetrics()
	if !cfg.MetricsEnabled {
		metricsHandler = nil
	}

	backend := finddoc.NewClient(finddoc.Options{
		UserServiceURL:     cfg.UserServiceURL,
		ProviderServiceURL: cfg.ProviderServiceURL,
		Timeout:            cfg.BackendTimeout,
		SearchRadius:       cfg.SearchRadius,
		Observer:           chatMetrics,
		Logger:             logger,
	})

	loadAWS := mainconfig.Loader(cfg)
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, cfg.SessionStore == "redis")
	cleanup := func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}

	sessions, err := bootstrap.BuildSessionStore(ctx, cfg, redisClient, loadAWS, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	notifier := notify.NewService(bootstrap.BuildEmailSender(ctx, cfg, loadAWS, logger), logger)
	engine := chat.NewEngine(backend, logger,
		chat.WithNotifier(notifier),
		chat.WithObserver(chatMetrics),
	)

	chatHandler := webchat.NewHandler(webchat.Options{
		Engine:       engine,
		Sessions:     sessions,
		Auth:         backend,
		SessionTTL:   cfg.SessionTTL,
		CookieName:   cfg.SessionCookieName,
		CookieSecure: cfg.SessionCookieSecure,
		Observer:     chatMetrics,
		Logger:       logger,
	})

	var limiter *httpmiddleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = httpmiddleware.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	handler := router.New(&router.Config{
		Logger:             logger,
		Chat:               chatHandler,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(cfg.BackendTimeout),
		IdleTimeout:  60 * time.Second,
	}
	return srv, cleanup, nil
}

// writeTimeout covers the slowest single message, where every sequential
// backend call runs to the client timeout, plus one more timeout of slack
// for the session store.
func writeTimeout(backendTimeout time.Duration) time.Duration {
	return backendTimeout*time.Duration(chat.MaxBackendCallsPerMessage+1) + 5*time.Second
}

func setupMetrics() (http.Handler, *metrics.ChatMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewChatMetrics(reg)
}
