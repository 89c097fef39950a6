package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/casebook/internal/casebook"
	"github.com/mesh-intelligence/casebook/pkg/types"
)

// formFlags mirror the test case form. Text fields starting with "@" are
// read from the named file.
type formFlags struct {
	title         string
	description   string
	input         string
	expected      string
	status        string
	failureReason string
	tags          []string
	iteration     string
}

func (f *formFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.title, "title", "", "title (required)")
	fl.StringVar(&f.description, "description", "", "description")
	fl.StringVar(&f.input, "input", "", "input text, or @file")
	fl.StringVar(&f.expected, "expected", "", "expected output text, or @file")
	fl.StringVar(&f.status, "status", string(types.StatusDraft), "DRAFT, PASSING, FAILING or SKIPPED")
	fl.StringVar(&f.failureReason, "failure-reason", "", "why the case fails")
	fl.StringArrayVar(&f.tags, "tag", nil, "tag (repeatable)")
	fl.StringVar(&f.iteration, "iteration", "", "iteration label")
}

func readText(v string) (string, error) {
	path, ok := strings.CutPrefix(v, "@")
	if !ok {
		return v, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", userError(fmt.Errorf("read %s: %w", path, err))
	}
	return string(data), nil
}

// apply copies the flags the user set onto tc. With all set, every form
// field is replaced.
func (f *formFlags) apply(cmd *cobra.Command, tc *types.TestCase, all bool) error {
	changed := func(name string) bool { return all || cmd.Flags().Changed(name) }

	if changed("title") {
		tc.Title = f.title
	}
	if changed("description") {
		tc.Description = f.description
	}
	if changed("input") {
		text, err := readText(f.input)
		if err != nil {
			return err
		}
		tc.Input = text
	}
	if changed("expected") {
		text, err := readText(f.expected)
		if err != nil {
			return err
		}
		tc.ExpectedOutput = text
	}
	if changed("status") {
		status, ok := types.ParseStatus(f.status)
		if !ok {
			return userError(fmt.Errorf("%w: status must be one of DRAFT, PASSING, FAILING, SKIPPED, got %q", types.ErrInvalidRecord, f.status))
		}
		tc.Status = status
	}
	if changed("failure-reason") {
		tc.FailureReason = f.failureReason
	}
	if changed("tag") {
		tc.Tags = f.tags
	}
	if changed("iteration") {
		tc.Iteration = f.iteration
	}
	return nil
}

func (a *app) saveAndPrint(cmd *cobra.Command, svc *casebook.Service, draft types.TestCase) error {
	saved, err := svc.Save(cmd.Context(), draft)
	if err != nil {
		return err
	}
	if a.flags.jsonMode {
		return printJSON(cmd.OutOrStdout(), saved)
	}
	fmt.Fprintln(cmd.OutOrStdout(), saved.ID)
	return nil
}

func newAddCmd(a *app) *cobra.Command {
	var f formFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a test case",
		Long: `Add creates a test case and prints its id.

Example:
  casebook add --title "Checkout applies discount" --tag checkout
  casebook add --title "Refund" --status FAILING --failure-reason "500 from API" --input @req.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var draft types.TestCase
			if err := f.apply(cmd, &draft, true); err != nil {
				return err
			}
			return a.withService(cmd, func(svc *casebook.Service) error {
				return a.saveAndPrint(cmd, svc, draft)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newEditCmd(a *app) *cobra.Command {
	var f formFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a test case",
		Long: `Edit loads a test case, replaces the fields given as flags and saves the
whole record. createdAt never changes; updatedAt moves forward.

Example:
  casebook edit 0190c2a4-... --status PASSING`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *casebook.Service) error {
				tc, err := svc.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := f.apply(cmd, &tc, false); err != nil {
					return err
				}
				return a.saveAndPrint(cmd, svc, tc)
			})
		},
	}
	f.register(cmd)
	return cmd
}
