package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ralt/ghpm/internal/catalog"
	"github.com/ralt/ghpm/internal/models"
)

// NewCatalogCmd creates the catalog command group
func NewCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the package catalog",
	}

	cmd.AddCommand(newCatalogSyncCmd())
	cmd.AddCommand(newCatalogRebuildCmd())

	return cmd
}

func newCatalogSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch the catalog repository and rebuild the package database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if err := catalog.Sync(cmd.Context(), cfg.CatalogURL, cfg.CatalogDir); err != nil {
				return models.NewError(models.ErrTransient, "", err)
			}
			return rebuild(cmd, cfg)
		},
	}
}

func newCatalogRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the package database from the local catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return rebuild(cmd, cfg)
		},
	}
}

func rebuild(cmd *cobra.Command, cfg *models.Config) error {
	packages, err := catalog.Rebuild(cmd.Context(), cfg.CatalogDir, cfg.DatabasePath)
	if err != nil {
		return err
	}
	logrus.Infof("Package database now holds %d packages", len(packages))
	return nil
}
