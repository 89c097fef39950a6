package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/mesh-intelligence/casebook/internal/view"
	"github.com/mesh-intelligence/casebook/pkg/types"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return sysError(fmt.Errorf("marshal output: %w", err))
	}
	fmt.Fprintln(w, string(out))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// printTable renders records as an aligned table, trimming the padding
// tabwriter leaves at line ends.
func printTable(w io.Writer, records []types.TestCase) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No test cases found.")
		return
	}

	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTITLE\tTAGS\tITERATION\tUPDATED")
	for _, tc := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			tc.ID,
			tc.Status,
			truncate(tc.Title, 48),
			strings.Join(tc.Tags, ","),
			types.IterationLabel(tc.Iteration),
			humanize.Time(tc.Updated()),
		)
	}
	tw.Flush()

	for _, line := range strings.Split(strings.TrimRight(sb.String(), "\n"), "\n") {
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}

func printCounts(w io.Writer, c view.Counts) {
	fmt.Fprintf(w, "Total: %s  passing: %s  failing: %s  draft: %s  skipped: %s\n",
		humanize.Comma(int64(c.Total)),
		humanize.Comma(int64(c.Passing)),
		humanize.Comma(int64(c.Failing)),
		humanize.Comma(int64(c.Draft)),
		humanize.Comma(int64(c.Skipped)),
	)
}

// printRecord renders one test case as labelled sections.
func printRecord(w io.Writer, tc types.TestCase) {
	fmt.Fprintf(w, "ID:         %s\n", tc.ID)
	fmt.Fprintf(w, "Title:      %s\n", tc.Title)
	fmt.Fprintf(w, "Status:     %s\n", tc.Status)
	if tc.Status == types.StatusFailing && tc.FailureReason != "" {
		fmt.Fprintf(w, "Failure:    %s\n", tc.FailureReason)
	}
	fmt.Fprintf(w, "Tags:       %s\n", strings.Join(tc.Tags, ", "))
	fmt.Fprintf(w, "Iteration:  %s\n", types.IterationLabel(tc.Iteration))
	fmt.Fprintf(w, "Created:    %s (%s)\n", tc.Created().UTC().Format("2006-01-02 15:04:05Z"), humanize.Time(tc.Created()))
	fmt.Fprintf(w, "Updated:    %s (%s)\n", tc.Updated().UTC().Format("2006-01-02 15:04:05Z"), humanize.Time(tc.Updated()))
	for _, section := range []struct{ name, body string }{
		{"Description", tc.Description},
		{"Input", tc.Input},
		{"Expected output", tc.ExpectedOutput},
	} {
		if section.body == "" {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n%s\n", section.name, section.body)
	}
}
