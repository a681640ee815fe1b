package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mutamap/core-go/internal/archive"
	"mutamap/core-go/internal/config"
	"mutamap/core-go/internal/controller"
	"mutamap/core-go/internal/httpapi"
	"mutamap/core-go/internal/metrics"
	"mutamap/core-go/internal/provider"
	"mutamap/core-go/internal/store"
	"mutamap/core-go/internal/views/wsview"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		bootLogger := httpapi.NewLogger("info")
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := httpapi.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var arc *archive.Archive
	if cfg.DatabaseURL != "" {
		a, err := archive.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to dataset archive")
		}
		defer a.Close()
		arc = a
	}

	st := store.New()
	prov := provider.New(logger, provider.Options{
		APIBaseURL:    cfg.APIBaseURL,
		HTTPTimeout:   cfg.APITimeout(),
		GenerateCount: cfg.GenerateCount,
	}, m)

	var ctrl *controller.Controller
	if arc != nil {
		ctrl = controller.New(logger, st, prov, m, arc)
	} else {
		ctrl = controller.New(logger, st, prov, m, nil)
	}

	hub := wsview.NewHub(logger, m)
	ctrl.AttachMapView(hub)

	if err := ctrl.Bootstrap(ctx); err != nil {
		logger.Error().Err(err).Msg("bootstrap refresh reported view errors")
	}

	var pinger httpapi.Pinger
	if arc != nil {
		pinger = arc
	}
	h := httpapi.NewHandler(logger, st, ctrl, m, hub, pinger)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("core-go listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}
