package export

import (
	"context"
	"encoding/json"
	"io"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
)

// JSONExporter exports records as a JSON array.
type JSONExporter struct {
	// Pretty enables pretty-printing with indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{
		Pretty: pretty,
	}
}

// ContentType implements Exporter.
func (e *JSONExporter) ContentType() string { return "application/json" }

// Extension implements Exporter.
func (e *JSONExporter) Extension() string { return "json" }

// Export writes records as an array. An empty input yields "[]".
func (e *JSONExporter) Export(ctx context.Context, records []*analytics.InteractionRecord, w io.Writer) error {
	if records == nil {
		records = []*analytics.InteractionRecord{}
	}

	enc := json.NewEncoder(w)
	if e.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(records); err != nil {
		return analytics.NewExportError("json", len(records), err)
	}
	return nil
}
