package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/secpoll/internal/api"
	"github.com/gyaneshwarpardhi/secpoll/internal/config"
	"github.com/gyaneshwarpardhi/secpoll/internal/engine"
	"github.com/gyaneshwarpardhi/secpoll/internal/logging"
	"github.com/gyaneshwarpardhi/secpoll/internal/normalize"
	"github.com/gyaneshwarpardhi/secpoll/internal/scheduler"
	"github.com/gyaneshwarpardhi/secpoll/internal/sink"
	"github.com/gyaneshwarpardhi/secpoll/internal/source"
	"github.com/gyaneshwarpardhi/secpoll/internal/state"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll every configured tenant until interrupted",
	RunE:  runCollector,
}

func runCollector(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:  logging.ParseLevel(settings.Logging.Level),
		Format: settings.Logging.Format,
		File:   settings.Logging.File,
		Debug:  settings.Logging.Debug,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Tenant config ────────────────────────────────────────────────────────
	provider := config.NewProvider(settings.TenantsFile, settings.Defaults(), logger)
	stopWatch, err := provider.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (reload on interval only)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── Watermark store ──────────────────────────────────────────────────────
	store, err := openStore(settings.State)
	if err != nil {
		return err
	}
	defer store.Close()

	// ── Sinks ────────────────────────────────────────────────────────────────
	out, err := buildSink(settings, provider, logger)
	if err != nil {
		return err
	}
	defer out.Close()

	// ── Engine + scheduler ───────────────────────────────────────────────────
	norm := normalize.New(
		normalize.WithVendor(settings.Normalize.Vendor),
		normalize.WithTimestampFields(settings.Normalize.TimestampFields),
	)
	eng := engine.New(store, out, norm, engine.WithLogger(logger))
	sched := scheduler.New(provider, eng, source.NewFactory(settings.Source, nil), scheduler.Options{
		MinPoll:     settings.Scheduler.MinPoll,
		MaxPoll:     settings.Scheduler.MaxPoll,
		ConfigRetry: settings.Scheduler.ConfigRetry,
		Logger:      logger,
		Ensurer:     out,
	})

	// ── Admin HTTP server ────────────────────────────────────────────────────
	var srv *http.Server
	if settings.HTTP.Addr != "" {
		srv = &http.Server{
			Addr:         settings.HTTP.Addr,
			Handler:      api.New(sched, provider, store, logger),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			slog.Info("admin server starting", "addr", settings.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("admin server error", "err", err)
			}
		}()
	}

	slog.Info("collector starting", "tenants_file", settings.TenantsFile, "state_backend", settings.State.Backend, "vendor", norm.Vendor())
	runErr := sched.Run(ctx)

	// ── Graceful shutdown ────────────────────────────────────────────────────
	slog.Info("shutting down…")
	if srv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}
	slog.Info("goodbye")
	return runErr
}

func openStore(s config.StateSettings) (state.Store, error) {
	switch s.Backend {
	case "redis":
		st, err := state.NewRedisStore(s.RedisURL, s.RedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("open redis state store: %w", err)
		}
		return st, nil
	default:
		st, err := state.NewFileStore(s.Dir)
		if err != nil {
			return nil, fmt.Errorf("open file state store: %w", err)
		}
		return st, nil
	}
}

// buildSink returns the per-tenant log file sink, mirrored to NATS and
// RabbitMQ when those are enabled.
func buildSink(s *config.Settings, provider *config.Provider, logger *slog.Logger) (*sink.Fanout, error) {
	var mirrors []sink.Mirror
	if s.Sinks.NATS.Enabled {
		n, err := sink.DialNATS(sink.NATSConfig{
			URL:           s.Sinks.NATS.URL,
			SubjectPrefix: s.Sinks.NATS.SubjectPrefix,
			Token:         s.Sinks.NATS.Token,
			MaxReconnects: -1,
		}, logger)
		if err != nil {
			return nil, err
		}
		mirrors = append(mirrors, n)
	}
	if s.Sinks.AMQP.Enabled {
		a, err := sink.DialAMQP(sink.AMQPConfig{
			URL:        s.Sinks.AMQP.URL,
			Exchange:   s.Sinks.AMQP.Exchange,
			RoutingKey: s.Sinks.AMQP.RoutingKey,
		}, logger)
		if err != nil {
			for _, m := range mirrors {
				_ = m.Close()
			}
			return nil, err
		}
		mirrors = append(mirrors, a)
	}
	return sink.NewFanout(sink.NewFile(provider.OutputPath, logger), logger, mirrors...), nil
}
