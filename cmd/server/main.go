package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/davilam/campaign-reports-go/internal/config"
	"github.com/davilam/campaign-reports-go/internal/httpx"
	"github.com/davilam/campaign-reports-go/internal/metrics"
	"github.com/davilam/campaign-reports-go/internal/render"
	"github.com/davilam/campaign-reports-go/internal/sched"
	"github.com/davilam/campaign-reports-go/internal/source"
	"github.com/davilam/campaign-reports-go/internal/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("config error", slog.String("err", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	tmplBytes, err := os.ReadFile(cfg.TemplatePath)
	if err != nil {
		logger.Error("template read error", slog.String("err", err.Error()))
		os.Exit(1)
	}
	tmpl, err := render.Load(tmplBytes)
	if err != nil {
		logger.Error("template load error", slog.String("err", err.Error()))
		os.Exit(1)
	}

	// backends en orden de prioridad: postgres primero si hay DSN
	var backends []store.Backend
	if cfg.PostgresDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pg, err := store.NewPostgres(ctx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			logger.Warn("postgres unavailable, continuing on fallback", slog.String("err", err.Error()))
		} else {
			backends = append(backends, pg)
		}
	}
	sq, err := store.NewSQLite(cfg.SQLitePath)
	if err != nil {
		logger.Error("sqlite open error", slog.String("err", err.Error()))
		os.Exit(1)
	}
	backends = append(backends, sq)
	cache := store.New(logger, met, backends...)
	defer cache.Close()

	provider := source.NewHTTPProvider(source.NewHTTPClient(cfg.HTTPTimeout), cfg.ProviderURL, cfg.ProviderToken)
	adapter := source.NewAdapter(provider, logger, met, cfg.MaxRetries)

	scheduler := sched.New(cfg, adapter, cache, tmpl, logger, met)
	if err := scheduler.Start(); err != nil {
		logger.Error("scheduler error", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer scheduler.Stop()

	r := httpx.NewRouter(logger, cache, scheduler, reg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting server",
		slog.String("port", cfg.Port),
		slog.Int("campaigns", len(cfg.Campaigns)))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", slog.String("err", err.Error()))
		os.Exit(1)
	}
}
