package cli

import (
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ralt/ghpm/internal/models"
)

// NewUpdateCmd creates the update command
func NewUpdateCmd() *cobra.Command {
	var (
		version string
		path    string
		global  bool
		slot    int
	)

	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Update an installed package",
		Long: `Replaces one installation of a package with the latest release, or with
--version. The installation is picked by --slot, --path or --global, or
is the one in the working directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			err = a.tasks.Update(cmd.Context(), args[0], global, path, slotFlag(cmd, slot), version)
			if errors.Is(err, models.ErrUpToDate) {
				logrus.Info("Nothing to update")
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Release tag to update to (defaults to the latest)")
	addSlotFlags(cmd, &slot, &path, &global)

	return cmd
}

// addSlotFlags registers the mutually exclusive installation selectors
func addSlotFlags(cmd *cobra.Command, slot *int, path *string, global *bool) {
	cmd.Flags().IntVarP(slot, "slot", "s", 0, "Slot index of the installation")
	cmd.Flags().StringVarP(path, "path", "p", "", "Directory of the installation")
	cmd.Flags().BoolVarP(global, "global", "g", false, "The global installation")
	cmd.MarkFlagsMutuallyExclusive("slot", "path", "global")
}

// slotFlag returns the --slot value, or nil when the flag was not given
func slotFlag(cmd *cobra.Command, slot int) *int {
	if !cmd.Flags().Changed("slot") {
		return nil
	}
	return &slot
}
