// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the regbridge command-line application.
package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/toolhive-core/env"

	"github.com/stacklok/regbridge/pkg/bridge/config"
	"github.com/stacklok/regbridge/pkg/logger"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

// NewRootCmd creates the root command of the regbridge CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "regbridge",
		DisableAutoGenTag: true,
		Short:             "Registry bridge - one registry API over many package registries",
		Long: `regbridge exposes several package-metadata registries (npm, PyPI, Maven, NuGet,
OCI, ...) behind a single registry API. It provides:

- A consolidated model and capabilities document across all sources
- Path routing of every request to the source that owns the group type
- Two-step filtering: name matching on a cheap index, then bounded
  metadata enrichment for attribute filters
- Rewriting of source URLs onto the public base URL`,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the regbridge configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("regbridge version: %s\n", Version)
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validate the regbridge configuration for syntax and semantic errors.

This command checks:
- YAML syntax and unknown keys
- REGBRIDGE_ environment overrides
- Backend entries (group types, URLs, duplicates)
- Filter, cache and circuit breaker settings`,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(viper.GetString("config"))
			if err != nil {
				return err
			}

			logger.Infof("✓ Configuration is valid")
			logger.Infof("  Name: %s", cfg.Name)
			logger.Infof("  Base URL: %s", cfg.BaseURL)
			logger.Infof("  Incoming Auth: %s", cfg.IncomingAuth.Type)
			logger.Infof("  Cache: %s", cfg.Cache.Provider)
			for _, b := range cfg.Backends {
				logger.Infof("  Backend %s: %s (enabled: %t)", b.GroupType, b.URL, b.IsEnabled())
			}
			return nil
		},
	}
}

// loadConfig loads, defaults and validates the configuration. An empty path
// configures the bridge from REGBRIDGE_ environment variables only.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		logger.Infof("Loading configuration from: %s", path)
	} else {
		logger.Info("No configuration file given, reading REGBRIDGE_ environment variables")
	}

	cfg, err := config.NewYAMLLoader(path, &env.OSReader{}).Load()
	if err != nil {
		return nil, fmt.Errorf("configuration loading failed: %w", err)
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}
