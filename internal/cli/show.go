package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/casebook/internal/casebook"
)

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one test case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *casebook.Service) error {
				tc, err := svc.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if a.flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), tc)
				}
				printRecord(cmd.OutOrStdout(), tc)
				return nil
			})
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a test case",
		Long:  "Delete removes a test case permanently. Deleting an unknown id succeeds.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *casebook.Service) error {
				return svc.Delete(cmd.Context(), args[0])
			})
		},
	}
}
