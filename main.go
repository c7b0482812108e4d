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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"personachat/config"
	"personachat/logging"
	"personachat/observability"
	"personachat/routes"
	"personachat/services"
)

const readHeaderTimeout = 10 * time.Second

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "personachat",
		Short:         "Persona chat streaming relay server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			if err := run(ctx, cfg, logger); err != nil {
				logger.Error().Err(err).Msg("relay server stopped")
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if err := cfg.RequireUpstream(); err != nil {
		return err
	}
	shutdownTracing, err := observability.SetupTracing(ctx, cfg.TraceSettings())
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("failed to flush traces")
		}
	}()

	streamer, err := services.NewOpenAIStreamer(cfg.UpstreamSettings(), logger)
	if err != nil {
		return fmt.Errorf("upstream client: %w", err)
	}

	var recorder services.ExchangeRecorder = services.NoopRecorder{}
	if cfg.Audit.Enabled {
		db, err := services.NewDynamoClient(ctx, cfg.AuditSettings())
		if err != nil {
			return fmt.Errorf("audit store: %w", err)
		}
		dynamo := services.NewDynamoRecorder(db, cfg.Audit.Table, logger)
		if err := dynamo.EnsureTable(ctx); err != nil {
			return fmt.Errorf("audit table: %w", err)
		}
		recorder = dynamo
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewRelayMetrics(reg)
	relay := services.NewRelay(streamer, recorder, metrics, logger)

	gin.SetMode(cfg.Server.Mode)
	router := routes.SetupRouter(routes.Dependencies{
		Relay:         relay,
		Logger:        logger,
		Gatherer:      reg,
		AllowedOrigin: cfg.Server.AllowedOrigin,
		ServiceName:   "personachat",
	})
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
		// No WriteTimeout: answers stream for as long as the upstream runs.
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("addr", srv.Addr).
			Str("model", cfg.Upstream.Model).
			Bool("audit", cfg.Audit.Enabled).
			Msg("relay server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info().Msg("shutting down relay server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
