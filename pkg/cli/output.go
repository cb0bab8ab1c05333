package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics/export"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is a human-readable table (default).
	FormatText OutputFormat = "text"
	// FormatJSON is JSON output.
	FormatJSON OutputFormat = "json"
	// FormatCSV is CSV output.
	FormatCSV OutputFormat = "csv"
)

// promptColumnWidth bounds the prompt column of the text table.
const promptColumnWidth = 48

// ParseFormat validates an output format name. An empty name selects text.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (must be text, json or csv)", s)
	}
}

// WriteRecords writes records to w in the given format.
func WriteRecords(ctx context.Context, w io.Writer, format OutputFormat, records []*analytics.InteractionRecord) error {
	switch format {
	case FormatJSON:
		return export.NewJSONExporter(true).Export(ctx, records, w)
	case FormatCSV:
		return export.NewCSVExporter(true).Export(ctx, records, w)
	default:
		return writeTable(w, records)
	}
}

func writeTable(w io.Writer, records []*analytics.InteractionRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No records found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tMODEL\tENDPOINT\tCATEGORY\tTOKENS\tDURATION\tSTATUS\tPROMPT")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.2fs\t%s\t%s\n",
			r.Timestamp.Local().Format(time.DateTime),
			r.Model,
			r.Endpoint,
			r.PromptCategory,
			r.TokensGenerated,
			r.DurationSeconds,
			r.Status,
			oneLine(analytics.TruncateString(r.PromptText, promptColumnWidth)),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d record(s)\n", len(records))
	return err
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
