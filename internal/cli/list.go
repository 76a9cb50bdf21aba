package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSLOT\tVERSION\tPATH\tDEFAULT")
			for _, inst := range a.tasks.List() {
				def := ""
				if inst.IsDefault {
					def = "*"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", inst.Id, inst.Slot, inst.Version, inst.FullPath, def)
			}
			return w.Flush()
		},
	}
}
