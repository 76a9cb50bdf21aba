package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ghpm",
		Short: "Install and manage tools published as GitHub releases",
		Long: `Ghpm installs packages from GitHub release assets into a global
directory, the working directory, or a custom path, and keeps track of every
installation so it can be updated, removed or restored from a lock file.

Packages are described in a catalog repository of YAML definitions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Setup logging
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().String("config", "", "Path to the configuration file")

	// Add subcommands
	rootCmd.AddCommand(NewInstallCmd())
	rootCmd.AddCommand(NewUpdateCmd())
	rootCmd.AddCommand(NewRemoveCmd())
	rootCmd.AddCommand(NewRestoreCmd())
	rootCmd.AddCommand(NewListCmd())
	rootCmd.AddCommand(NewSearchCmd())
	rootCmd.AddCommand(NewCatalogCmd())

	return rootCmd
}
