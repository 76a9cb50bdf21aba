package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ralt/ghpm/internal/cache"
	"github.com/ralt/ghpm/internal/catalog"
	"github.com/ralt/ghpm/internal/config"
	"github.com/ralt/ghpm/internal/deploy"
	"github.com/ralt/ghpm/internal/github"
	"github.com/ralt/ghpm/internal/library"
	"github.com/ralt/ghpm/internal/models"
	"github.com/ralt/ghpm/internal/selector"
	"github.com/ralt/ghpm/internal/tasks"
)

// app holds the components shared by the commands
type app struct {
	catalog *catalog.Catalog
	tasks   *tasks.Orchestrator
}

// loadConfig reads the configuration named by --config
func loadConfig(cmd *cobra.Command) (*models.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("Configuration: %+v", redacted(*cfg))
	return cfg, nil
}

// newApp wires the library, catalog, GitHub client, cache, deployment
// engine and orchestrator from the configuration
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	lib, err := library.Load(cfg.LibraryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load library: %w", err)
	}

	cat, err := catalog.Load(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load package database: %w", err)
	}

	opts := []github.ClientOption{github.WithToken(cfg.GitHub.Token)}
	if cfg.GitHub.APIURL != "" {
		opts = append(opts, github.WithBaseURL(cfg.GitHub.APIURL))
	}
	if cfg.GitHub.UserAgent != "" {
		opts = append(opts, github.WithUserAgent(cfg.GitHub.UserAgent))
	}
	client := github.NewClient(opts...)

	contentCache := cache.New(cfg.CacheDir, lib, client)
	engine := deploy.NewEngine(lib, contentCache, selector.DefaultInstallPathResolver(), cfg.LockFileName)

	return &app{
		catalog: cat,
		tasks: tasks.New(tasks.Options{
			Catalog:   cat,
			Releases:  client,
			Cache:     contentCache,
			Deployer:  engine,
			Library:   lib,
			GlobalDir: cfg.GlobalDir,
		}),
	}, nil
}

func redacted(cfg models.Config) models.Config {
	if cfg.GitHub.Token != "" {
		cfg.GitHub.Token = "***"
	}
	return cfg
}
