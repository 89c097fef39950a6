package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/casebook/internal/casebook"
	"github.com/mesh-intelligence/casebook/internal/exchange"
	"github.com/mesh-intelligence/casebook/internal/record"
)

func newImportCmd(a *app) *cobra.Command {
	var globalTags []string
	cmd := &cobra.Command{
		Use:   "import [file|-]",
		Short: "Import test cases from JSON",
		Long: `Import reads one object, an array of objects, or JSONL from a file or
stdin. Every item is validated first; if any item is invalid nothing is
imported. Items with an existing id replace that record.

Global tags (--global-tag and import.global_tags in config.yaml) are added
to every imported test case.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if len(args) == 0 || args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return userError(fmt.Errorf("read import: %w", err))
			}
			tags := record.MergeTags(a.v.GetStringSlice(cfgKeyGlobalTags), globalTags)

			return a.withService(cmd, func(svc *casebook.Service) error {
				res, err := svc.ImportBatch(cmd.Context(), data, tags)
				if err != nil {
					return err
				}
				if a.flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), res)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d test case(s): %d created, %d replaced\n",
					res.Created+res.Replaced, res.Created, res.Replaced)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&globalTags, "global-tag", nil, "tag added to every imported test case (repeatable)")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var out, format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every test case as JSON",
		Long: `Export writes the full catalog, ordered by creation time, in a form that
import reads back. With --out the file is replaced atomically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != exchange.FormatJSON && format != exchange.FormatJSONL {
				return userError(fmt.Errorf("unknown format %q (want json or jsonl)", format))
			}
			return a.withService(cmd, func(svc *casebook.Service) error {
				data, err := svc.ExportAs(cmd.Context(), format)
				if err != nil {
					return err
				}
				if out == "" {
					_, err := cmd.OutOrStdout().Write(data)
					return err
				}
				if err := exchange.WriteFileAtomic(out, data); err != nil {
					return sysError(err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	cmd.Flags().StringVar(&format, "format", exchange.FormatJSON, "json or jsonl")
	return cmd
}

func newClearCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every test case",
		Long:  "Clear removes every test case. There is no undo; export first if unsure.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return userError(fmt.Errorf("refusing to clear without --yes"))
			}
			return a.withService(cmd, func(svc *casebook.Service) error {
				return svc.ClearAll(cmd.Context())
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting every test case")
	return cmd
}
