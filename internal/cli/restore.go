package cli

import (
	"github.com/spf13/cobra"
)

// NewRestoreCmd creates the restore command
func NewRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Install every package listed in the working directory's lock file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			return a.tasks.Restore(cmd.Context())
		},
	}
}
