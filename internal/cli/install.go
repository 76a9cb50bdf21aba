package cli

import (
	"github.com/spf13/cobra"
)

// NewInstallCmd creates the install command
func NewInstallCmd() *cobra.Command {
	var (
		version string
		path    string
		global  bool
	)

	cmd := &cobra.Command{
		Use:   "install <name>",
		Short: "Install a package",
		Long: `Installs a package from the catalog. The name may be a repository URL,
an id (owner/name or owner/name/identifier), a repository (owner/name),
a bare name or an owner, as long as it is unambiguous.

Without --global or --path the package is installed into the working
directory and recorded in its lock file. Dependencies are installed
next to the package.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			return a.tasks.Install(cmd.Context(), args[0], version, path, global)
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Release tag to install (defaults to the latest)")
	cmd.Flags().StringVarP(&path, "path", "p", "", "Install into this directory")
	cmd.Flags().BoolVarP(&global, "global", "g", false, "Install into the global directory")
	cmd.MarkFlagsMutuallyExclusive("path", "global")

	return cmd
}
