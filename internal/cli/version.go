package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	meta "github.com/mesh-intelligence/casebook/pkg/casebook"
)

const modulePath = "github.com/mesh-intelligence/casebook"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the casebook version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "casebook v%s\nmodule: %s\n", meta.Version, modulePath)
			return nil
		},
	}
}
