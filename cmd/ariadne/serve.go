package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"github.com/wehubfusion/Ariadne/internal/app"
	"github.com/wehubfusion/Ariadne/internal/tracing"
	"github.com/wehubfusion/Ariadne/pkg/concurrency"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve requests over NATS until interrupted",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	undo := concurrency.InitializeForKubernetes(logger)
	defer undo()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []app.Option
	if cfg.Sentry.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      firstNonEmpty(cfg.Sentry.Environment, cfg.Service.Environment),
			Release:          cfg.Service.Name + "@" + cfg.Service.Version,
			TracesSampleRate: cfg.Sentry.TracesSampleRate,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		opts = append(opts, app.WithSentryHub(sentry.CurrentHub()))
	}

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.SetupTracing(ctx, tracing.TracingConfig{
			ServiceName:    cfg.Service.Name,
			ServiceVersion: cfg.Service.Version,
			Environment:    cfg.Service.Environment,
			OTLPEndpoint:   cfg.Tracing.Endpoint,
			Insecure:       cfg.Tracing.Insecure,
			SampleRatio:    cfg.Tracing.SampleRatio,
		}, logger)
		if err != nil {
			return err
		}
		defer tracing.ShutdownTracing(shutdown, logger)
	}

	limits := concurrency.LoadConfig()
	logger.Info("Concurrency configured", zap.String("config", limits.String()))
	opts = append(opts, app.WithLimiter(limits.NewLimiter()))

	a, err := app.New(ctx, cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Serve(ctx)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
