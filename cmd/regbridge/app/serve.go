// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"github.com/stacklok/regbridge/pkg/bridge"
	"github.com/stacklok/regbridge/pkg/bridge/aggregator"
	"github.com/stacklok/regbridge/pkg/bridge/cache"
	"github.com/stacklok/regbridge/pkg/bridge/client"
	"github.com/stacklok/regbridge/pkg/bridge/filter"
	"github.com/stacklok/regbridge/pkg/bridge/health"
	"github.com/stacklok/regbridge/pkg/bridge/server"
	"github.com/stacklok/regbridge/pkg/bridge/telemetry"
	"github.com/stacklok/regbridge/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the registry bridge",
		Long: `Start the registry bridge. The configuration file given with --config is
loaded, every enabled source is fetched once and the façade starts listening.
The consolidated view is refreshed periodically and whenever the
configuration file changes.`,
		RunE: runServe,
	}
	cmd.Flags().String("address", "", "Address to listen on, overrides the configuration")
	if err := viper.BindPFlag("address", cmd.Flags().Lookup("address")); err != nil {
		logger.Fatalf("Failed to bind address flag: %v", err)
	}
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	configPath := viper.GetString("config")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if address := viper.GetString("address"); address != "" {
		cfg.Address = address
	}

	providers, err := telemetry.NewProviders(ctx, telemetry.Config{
		ServiceName:     cfg.Telemetry.ServiceName,
		ServiceVersion:  Version,
		Prometheus:      cfg.Telemetry.PrometheusEnabled(),
		TracingEndpoint: cfg.Telemetry.TracingEndpoint,
		Insecure:        cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	otel.SetTracerProvider(providers.TracerProvider)
	defer shutdown("telemetry", providers.Shutdown)

	tracker := health.NewTracker(health.BreakerConfig{
		Enabled:          cfg.CircuitBreaker.Enabled,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		Timeout:          cfg.CircuitBreaker.Timeout.Std(),
	})
	factory, err := telemetry.MonitorFactory(providers, client.NewFactory(
		client.WithBreakers(tracker),
		client.WithMaxRetries(cfg.Aggregation.MaxRetries),
		client.WithUserAgent("regbridge/"+Version),
	))
	if err != nil {
		return fmt.Errorf("failed to instrument adapters: %w", err)
	}

	registry, err := bridge.NewBackendRegistry(cfg.Descriptors())
	if err != nil {
		return fmt.Errorf("failed to create backend registry: %w", err)
	}
	agg, err := aggregator.New(registry, factory,
		aggregator.WithTracker(tracker),
		aggregator.WithFetchTimeout(cfg.Aggregation.FetchTimeout.Std()),
		aggregator.WithConcurrency(cfg.Aggregation.Concurrency),
		aggregator.WithTelemetry(providers.MeterProvider, providers.TracerProvider),
	)
	if err != nil {
		return fmt.Errorf("failed to create aggregator: %w", err)
	}

	metadataCache, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to create metadata cache: %w", err)
	}
	defer func() {
		if err := metadataCache.Close(); err != nil {
			logger.Warnf("failed to close metadata cache: %v", err)
		}
	}()

	engine, err := filter.NewEngine(filter.Options{
		FetchLimit:     cfg.Filter.FetchLimit,
		MaxFetchLimit:  cfg.Filter.MaxFetchLimit,
		Concurrency:    cfg.Filter.Concurrency,
		FetchTimeout:   cfg.Filter.FetchTimeout.Std(),
		Deadline:       cfg.Filter.Deadline.Std(),
		IndexTTL:       cfg.Filter.IndexTTL.Std(),
		Cache:          metadataCache,
		MeterProvider:  providers.MeterProvider,
		TracerProvider: providers.TracerProvider,
	})
	if err != nil {
		return fmt.Errorf("failed to create filter engine: %w", err)
	}

	srv, err := server.New(server.Config{
		Address:        cfg.Address,
		BaseURL:        cfg.BaseURL,
		Auth:           cfg.IncomingAuth,
		Aggregator:     agg,
		Filter:         engine,
		MetricsHandler: providers.MetricsHandler,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Infof("Fetching %d enabled backends", len(registry.Enabled()))
	snap, err := agg.Refresh(ctx)
	switch {
	case errors.Is(err, aggregator.ErrNoBackendRefreshed):
		logger.Warnf("Starting without a reachable backend: %v", err)
	case err != nil:
		return fmt.Errorf("initial refresh failed: %w", err)
	default:
		logger.Infof("Consolidated %d group types (snapshot %s)", len(snap.Model.Groups), snap.ID)
	}

	refreshDone := agg.Start(ctx, cfg.Aggregation.RefreshInterval.Std())
	if configPath != "" {
		watchConfig(ctx, configPath, agg, engine)
	}

	err = srv.Serve(ctx)
	<-refreshDone
	return err
}

// watchConfig reloads the backend entries when the configuration file
// changes. Other settings take effect on restart.
func watchConfig(ctx context.Context, path string, agg *aggregator.Aggregator, engine *filter.Engine) {
	viper.SetConfigFile(path)
	viper.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		logger.Infof("Configuration file changed: %s", e.Name)
		cfg, err := loadConfig(path)
		if err != nil {
			logger.Errorf("Ignoring configuration change: %v", err)
			return
		}

		previous := agg.Registry().List()
		snap, err := agg.Reload(ctx, cfg.Descriptors())
		if err != nil && !errors.Is(err, aggregator.ErrNoBackendRefreshed) {
			logger.Errorf("Failed to reload backends: %v", err)
			return
		}
		for _, desc := range append(previous, cfg.Descriptors()...) {
			engine.Index().Invalidate(desc.GroupType)
		}
		if snap != nil {
			logger.Infof("Reloaded %d backends (snapshot %s)", len(cfg.Backends), snap.ID)
		}
	})
	viper.WatchConfig()
}

func shutdown(what string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warnf("failed to shut down %s: %v", what, err)
	}
}
