// Package config loads the ghpm configuration from file and environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/ralt/ghpm/internal/models"
)

// DefaultDataDir returns the default data directory path.
// Uses ~/.ghpm for user installations, /var/lib/ghpm as fallback.
func DefaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".ghpm")
	}
	return "/var/lib/ghpm"
}

// ConfigureViper sets up viper with standard config file search paths.
// Config file: ghpm.toml
// Search paths (in order): ~/.config/ghpm, /etc/ghpm, current directory
func ConfigureViper(v *viper.Viper, configPath string) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("ghpm")
		v.SetConfigType("toml")
		v.AddConfigPath("$HOME/.config/ghpm")
		v.AddConfigPath("/etc/ghpm")
		v.AddConfigPath(".")
	}
}

// Load reads the configuration, applying defaults and GHPM_* overrides
func Load(configPath string) (*models.Config, error) {
	v := viper.New()
	if err := loadConfig(v, configPath); err != nil {
		return nil, models.NewError(models.ErrInvalidConfig, "", fmt.Errorf("failed to load config: %w", err))
	}

	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, models.NewError(models.ErrInvalidConfig, "", fmt.Errorf("failed to unmarshal config: %w", err))
	}

	applyDerivedDefaults(&cfg)
	return &cfg, nil
}

func loadConfig(v *viper.Viper, configPath string) error {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("cache_dir", "")     // defaults to {data_dir}/cache when empty
	v.SetDefault("library_path", "")  // defaults to {data_dir}/library.bin when empty
	v.SetDefault("database_path", "") // defaults to {data_dir}/packages.bin when empty
	v.SetDefault("catalog_dir", "")   // defaults to {data_dir}/catalog when empty
	v.SetDefault("catalog_url", "")
	v.SetDefault("global_dir", "") // defaults to {data_dir}/packages when empty
	v.SetDefault("lock_file_name", "ghpm.lock")
	v.SetDefault("github.api_url", "https://api.github.com")
	v.SetDefault("github.token", "")
	v.SetDefault("github.user_agent", "ghpm")

	ConfigureViper(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("GHPM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return nil
}

func applyDerivedDefaults(cfg *models.Config) {
	cfg.DataDir = expandHome(cfg.DataDir)

	derive := func(value *string, name string) {
		if *value == "" {
			*value = filepath.Join(cfg.DataDir, name)
			return
		}
		*value = expandHome(*value)
	}
	derive(&cfg.CacheDir, "cache")
	derive(&cfg.LibraryPath, "library.bin")
	derive(&cfg.DatabasePath, "packages.bin")
	derive(&cfg.CatalogDir, "catalog")
	derive(&cfg.GlobalDir, "packages")

	if cfg.GitHub.Token == "" {
		cfg.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
