package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
)

// CSVColumns is the header row of a CSV export.
var CSVColumns = []string{
	"id",
	"timestamp",
	"model",
	"endpoint",
	"category",
	"prompt",
	"response_preview",
	"prompt_tokens",
	"tokens_generated",
	"tokens_per_second",
	"duration_seconds",
	"status",
	"error",
	"cost",
}

// CSVExporter exports records to CSV format.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{
		IncludeHeader: includeHeader,
	}
}

// ContentType implements Exporter.
func (e *CSVExporter) ContentType() string { return "text/csv; charset=utf-8" }

// Extension implements Exporter.
func (e *CSVExporter) Extension() string { return "csv" }

// Export writes one row per record.
func (e *CSVExporter) Export(ctx context.Context, records []*analytics.InteractionRecord, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(CSVColumns); err != nil {
			return analytics.NewExportError("csv", len(records), err)
		}
	}

	for i, record := range records {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return analytics.NewExportError("csv", len(records), err)
			}
		}
		if err := writer.Write(recordToRow(record)); err != nil {
			return analytics.NewExportError("csv", len(records), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return analytics.NewExportError("csv", len(records), err)
	}
	return nil
}

func recordToRow(r *analytics.InteractionRecord) []string {
	errMsg := ""
	if r.ErrorMessage != nil {
		errMsg = *r.ErrorMessage
	}

	return []string{
		r.ID,
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.Model,
		r.Endpoint,
		r.PromptCategory,
		r.PromptText,
		r.ResponsePreview,
		strconv.Itoa(r.PromptTokens),
		strconv.Itoa(r.TokensGenerated),
		strconv.FormatFloat(r.TokensPerSecond(), 'f', 2, 64),
		strconv.FormatFloat(r.DurationSeconds, 'f', 3, 64),
		string(r.Status),
		errMsg,
		strconv.FormatFloat(r.Cost(), 'f', 6, 64),
	}
}
