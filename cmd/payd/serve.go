package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/groblegark/payd/internal/assess"
	"github.com/groblegark/payd/internal/breaker"
	"github.com/groblegark/payd/internal/command"
	"github.com/groblegark/payd/internal/config"
	"github.com/groblegark/payd/internal/events"
	"github.com/groblegark/payd/internal/jobs"
	"github.com/groblegark/payd/internal/server"
	"github.com/groblegark/payd/internal/store/postgres"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the payment account server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		st, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		// Event publisher and job queue share the NATS connection setting.
		var publisher events.Publisher
		var enqueuer jobs.Enqueuer
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			enq, err := jobs.NewNATSEnqueuer(cfg.NATSURL)
			if err != nil {
				pub.Close()
				st.Close()
				return err
			}
			enqueuer = enq
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			enqueuer = &jobs.NoopEnqueuer{}
			logger.Info("events disabled (PAYD_NATS_URL not set)")
		}

		// Circuit settings: baseline, optional file overrides, and the
		// failure policy that keeps business rejections from tripping
		// circuits.
		base := breaker.DefaultConfig()
		base.CountFailure = command.InfrastructureFailures
		defaults, overrides, err := config.LoadCircuits(cfg.CircuitsFile, base)
		if err != nil {
			publisher.Close()
			st.Close()
			return err
		}
		registry := breaker.NewRegistry(defaults, overrides)

		assessors := map[string]assess.Assessor{
			assess.KindFraud:      assessorFor(cfg.FraudURL, assess.KindFraud, logger),
			assess.KindCompliance: assessorFor(cfg.ComplianceURL, assess.KindCompliance, logger),
			assess.KindRisk:       assessorFor(cfg.RiskURL, assess.KindRisk, logger),
		}

		processor := command.NewProcessor(st, registry, assessors, publisher, enqueuer, logger)
		srv := server.New(processor, st, registry, logger)

		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: srv.NewHTTPHandler(cfg.AuthToken),
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		logger.Info("payd server started", "http_addr", cfg.HTTPAddr)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

// assessorFor returns an HTTP-backed assessor when a URL is configured,
// falling back to local approval otherwise.
func assessorFor(url, kind string, logger *slog.Logger) assess.Assessor {
	if url == "" {
		logger.Info("assessment endpoint not configured, approving locally", "check", kind)
		return assess.Approve()
	}
	logger.Info("assessment endpoint enabled", "check", kind, "url", url)
	return assess.NewHTTPAssessor(url)
}
