package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/casebook/internal/casebook"
	"github.com/mesh-intelligence/casebook/internal/view"
)

// filterFlags are the view criteria shared by list and stats.
type filterFlags struct {
	search       string
	tags         []string
	status       string
	iteration    string
	failingFirst bool
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.search, "search", "", "case-insensitive text in title or description")
	cmd.Flags().StringArrayVar(&f.tags, "tag", nil, "require this tag (repeatable, all must match)")
	cmd.Flags().StringVar(&f.status, "status", view.All, "DRAFT, PASSING, FAILING, SKIPPED or ALL")
	cmd.Flags().StringVar(&f.iteration, "iteration", view.All, "iteration label, Unassigned, or ALL")
}

func (f *filterFlags) criteria() view.Criteria {
	return view.Criteria{Query: f.search, Tags: f.tags, Status: f.status, Iteration: f.iteration}
}

func newListCmd(a *app) *cobra.Command {
	var f filterFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List test cases",
		Long: `List shows test cases, most recently updated first.

Filters combine with AND. Tags are conjunctive: every --tag must be present.

Example:
  casebook list
  casebook list --status FAILING --failing-first
  casebook list --tag checkout --tag regression --iteration "Sprint 4"
  casebook list --search refund --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *casebook.Service) error {
				res, err := svc.View(cmd.Context(), f.criteria(), view.Options{FailingFirst: f.failingFirst})
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if a.flags.jsonMode {
					return printJSON(w, res.Records)
				}
				printTable(w, res.Records)
				printCounts(w, res.Counts)
				return nil
			})
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&f.failingFirst, "failing-first", false, "show FAILING test cases first")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	var f filterFlags
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count test cases by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *casebook.Service) error {
				res, err := svc.View(cmd.Context(), f.criteria(), view.Options{})
				if err != nil {
					return err
				}
				if a.flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), res.Counts)
				}
				printCounts(cmd.OutOrStdout(), res.Counts)
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newTagsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List every tag in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *casebook.Service) error {
				facets, err := svc.Facets(cmd.Context())
				if err != nil {
					return err
				}
				return a.printLines(cmd, facets.Tags)
			})
		},
	}
}

func newIterationsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "iterations",
		Short: "List every iteration label in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *casebook.Service) error {
				facets, err := svc.Facets(cmd.Context())
				if err != nil {
					return err
				}
				return a.printLines(cmd, facets.Iterations)
			})
		},
	}
}

func (a *app) printLines(cmd *cobra.Command, lines []string) error {
	if a.flags.jsonMode {
		return printJSON(cmd.OutOrStdout(), lines)
	}
	for _, line := range lines {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}
