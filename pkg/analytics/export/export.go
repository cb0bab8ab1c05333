package export

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
)

// Exporter writes records in one format.
type Exporter interface {
	Export(ctx context.Context, records []*analytics.InteractionRecord, w io.Writer) error

	// ContentType is the HTTP media type of the output.
	ContentType() string

	// Extension is the file extension without the dot.
	Extension() string
}

// New returns the exporter for format ("csv" or "json").
func New(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return NewJSONExporter(false), nil
	case "csv":
		return NewCSVExporter(true), nil
	default:
		return nil, analytics.NewQueryError("format", fmt.Sprintf("unsupported export format %q (must be 'csv' or 'json')", format), nil)
	}
}

// Filename returns the attachment name for an export.
func Filename(e Exporter) string {
	return "ollama_analytics." + e.Extension()
}
