package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/casebook/internal/metrics"
	"github.com/mesh-intelligence/casebook/internal/paths"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize casebook storage",
		Long:  "Create the configuration and data directories, write a default config.yaml\nif none exists, and create or upgrade the database.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.storeConfig()
			if err != nil {
				return userError(err)
			}
			s, err := a.openStore(cmd.Context(), metrics.Nop)
			if err != nil {
				return err
			}
			if err := s.Close(); err != nil {
				return sysError(fmt.Errorf("finalize storage: %w", err))
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Casebook initialized")
			fmt.Fprintf(w, "config:  %s\n", paths.ConfigFile(a.configDir))
			fmt.Fprintf(w, "backend: %s\n", cfg.Backend)
			if cfg.NeedsDataDir() {
				fmt.Fprintf(w, "data:    %s\n", cfg.DataDir)
			}
			return nil
		},
	}
}
