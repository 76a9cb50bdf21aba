package cli

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewSearchCmd creates the search command
func NewSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>",
		Short: "Search the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			results := a.catalog.Search(args[0])
			if len(results) == 0 {
				logrus.Infof("No package matches %q", args[0])
				return nil
			}
			for _, pkg := range results {
				line := pkg.Id()
				if len(pkg.Tags) > 0 {
					line += " [" + strings.Join(pkg.Tags, ", ") + "]"
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}
