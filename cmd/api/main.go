// Package main is the entry point for the mapmeasure API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quaywood/mapmeasure/internal/api"
	"github.com/quaywood/mapmeasure/internal/auth"
	"github.com/quaywood/mapmeasure/internal/config"
	"github.com/quaywood/mapmeasure/internal/imaging"
	"github.com/quaywood/mapmeasure/internal/middleware"
	"github.com/quaywood/mapmeasure/internal/session"
	"github.com/quaywood/mapmeasure/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "path to optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Mapmeasure API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	tracer, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "mapmeasure-api",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.TracingEndpoint,
		SamplingRate: cfg.TracingSamplingRate,
		InsecureMode: cfg.TracingInsecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Metrics registry with process and Go runtime collectors.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sessionMetrics := session.NewMetrics()
	if err := sessionMetrics.Register(registry); err != nil {
		logger.Error("failed to register session metrics", "error", err)
		os.Exit(1)
	}
	httpMetrics := middleware.NewHTTPMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register HTTP metrics", "error", err)
		os.Exit(1)
	}

	store := session.NewStore(time.Duration(cfg.SessionTTLMinutes)*time.Minute, sessionMetrics)

	var tokens *auth.TokenService
	if cfg.AuthEnabled() {
		tokens = auth.NewTokenService(cfg.JWTSecret)
		logger.Info("session token auth enabled")
	}

	sessionHandlers := api.NewSessionHandlers(
		store,
		imaging.VipsProber{},
		tokens,
		int64(cfg.MaxUploadSizeMB)<<20,
	)
	healthHandlers := api.NewHealthHandlers(store)

	// Session routes carry their own bearer-token gate (creation stays
	// open so clients can obtain a token); probes and metrics are open.
	sessionRoutes := sessionHandlers.Routes()

	mux := http.NewServeMux()
	mux.Handle("/sessions", sessionRoutes)
	mux.Handle("/sessions/", sessionRoutes)
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"mapmeasure-api","version":"0.1.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	// Middleware chain: RequestID -> Logging -> CORS -> metrics.
	var handler http.Handler = mux
	handler = httpMetrics.Instrument(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MaxAge:         300,
	})(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go store.RunSweeper(sweepCtx, time.Duration(cfg.SweepIntervalSeconds)*time.Second, logger)

	go func() {
		logger.Info("starting server",
			"port", cfg.Port,
			"env", cfg.Env,
			"session_ttl_minutes", cfg.SessionTTLMinutes,
			"auth", cfg.AuthEnabled(),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if err := tracer.Shutdown(ctx); err != nil {
		logger.Error("tracer shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
