package printer

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/slok/scriptbox/internal/model"
)

// TablePrinter prints scriptbox results in a human format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintRunResult prints the output of every script followed by a summary table.
func (t *TablePrinter) PrintRunResult(res model.RunResult) error {
	for _, s := range res.Scripts {
		if s.Output == "" {
			continue
		}
		fmt.Fprintf(t.writer, "==> %s <==\n", s.Name)
		fmt.Fprint(t.writer, s.Output)
		if !strings.HasSuffix(s.Output, "\n") {
			fmt.Fprintln(t.writer)
		}
	}

	if len(res.Scripts) > 0 {
		fmt.Fprintln(t.writer)
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)

	// Print header.
	fmt.Fprintln(tw, "SCRIPT\tSTATUS\tDURATION\tERROR")

	// Print rows.
	for _, s := range res.Scripts {
		errMsg := "-"
		if s.Err != nil {
			errMsg = s.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, scriptStatus(s), FormatDuration(s.Duration), errMsg)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(t.writer, "\nSnapshot:   %s (%s, %s)\n", res.Snapshot.Digest, FormatBytes(res.Snapshot.SizeBytes), FormatTimestamp(res.Snapshot.CreatedAt))
	if res.Snapshot.Image != "" {
		fmt.Fprintf(t.writer, "Image:      %s\n", res.Snapshot.Image)
	}
	fmt.Fprintf(t.writer, "Boots:      %d\n", res.Boots)

	return nil
}

// PrintChecks prints preflight check results in a table format.
func (t *TablePrinter) PrintChecks(results []model.CheckResult) error {
	if len(results) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "CHECK\tSTATUS\tMESSAGE")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, strings.ToUpper(string(r.Status)), r.Message)
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func scriptStatus(s model.ScriptResult) string {
	switch {
	case s.Poisoned:
		return "poisoned"
	case s.Err != nil:
		return "failed"
	case !s.Dispatched:
		return "not-dispatched"
	default:
		return "dispatched"
	}
}
