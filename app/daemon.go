package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/lysyi3m/feed-digest/app/api"
	"github.com/lysyi3m/feed-digest/app/cfg"
	"github.com/lysyi3m/feed-digest/app/feed"
	"github.com/lysyi3m/feed-digest/app/state"
	"github.com/lysyi3m/feed-digest/app/tasks"
)

type daemonDeps struct {
	task     *tasks.DigestTask
	store    state.Store
	catalog  *feed.Catalog
	specs    tasks.SpecsFunc
	registry *prometheus.Registry
}

func runDaemon(ctx context.Context, appCfg *cfg.Cfg, deps daemonDeps, log zerolog.Logger) error {
	scheduler, err := tasks.NewScheduler(appCfg.Schedule, deps.task, log)
	if err != nil {
		return err
	}

	if deps.catalog != nil {
		go func() {
			err := deps.catalog.Watch(ctx, func(sources []feed.SourceConfig) {
				log.Info().Int("sources", len(sources)).Msg("Sources updated, applied on next run")
			})
			if err != nil {
				log.Warn().Err(err).Msg("Sources file watch stopped")
			}
		}()
	}

	scheduler.Start(ctx)
	defer scheduler.Stop()

	serverErrChan := make(chan error, 1)
	var httpServer *http.Server
	if appCfg.ListenAddr != "" {
		handler := api.NewHandler(scheduler, deps.store, deps.specs, deps.registry, appCfg.Version, log)
		httpServer = &http.Server{
			Addr:         appCfg.ListenAddr,
			Handler:      api.NewServer(handler, appCfg.APIAccessKey),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		go func() {
			log.Info().Str("addr", appCfg.ListenAddr).Msg("Starting HTTP server")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
			}
		}()
	}

	notifySystemd(daemon.SdNotifyReady, log)
	log.Info().Str("schedule", appCfg.Schedule).Msg("Feed digest daemon started")

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case runErr = <-serverErrChan:
		log.Error().Err(runErr).Msg("Server error")
	}

	notifySystemd(daemon.SdNotifyStopping, log)

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP server shutdown error")
		} else {
			log.Info().Msg("HTTP server stopped")
		}
	}

	log.Info().Msg("Feed digest daemon shutdown complete")
	return runErr
}

func notifySystemd(status string, log zerolog.Logger) {
	sent, err := daemon.SdNotify(false, status)
	if err != nil {
		log.Debug().Err(err).Str("state", status).Msg("sd_notify failed")
		return
	}
	if sent {
		log.Debug().Str("state", status).Msg("sd_notify sent")
	}
}
