package cli

import (
	"github.com/spf13/cobra"
)

// NewRemoveCmd creates the remove command
func NewRemoveCmd() *cobra.Command {
	var (
		path   string
		global bool
		slot   int
	)

	cmd := &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"uninstall"},
		Short:   "Remove an installed package",
		Long: `Deletes the files of one installation and drops it from the library and
the lock file. The installation is picked by --slot, --path or --global,
or is the one in the working directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			return a.tasks.Remove(cmd.Context(), args[0], global, path, slotFlag(cmd, slot))
		},
	}

	addSlotFlags(cmd, &slot, &path, &global)

	return cmd
}
