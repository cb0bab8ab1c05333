package storage

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
)

const jsonlDateLayout = "20060102"

var jsonlFilePattern = regexp.MustCompile(`^ollama_(\d{8})\.jsonl\.gz$`)

// JSONLStorage appends records to one gzip-compressed JSON Lines file per
// UTC day. Each write appends a complete gzip member, so a file stays
// readable by any multistream gzip reader even if the process dies
// between writes.
type JSONLStorage struct {
	dir    string
	logger *slog.Logger
}

// NewJSONLStorage creates the data directory if needed.
func NewJSONLStorage(dir string) (*JSONLStorage, error) {
	if dir == "" {
		return nil, analytics.NewStorageError("jsonl", "open", fmt.Errorf("data directory is required"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, analytics.NewStorageError("jsonl", "open", err)
	}

	s := &JSONLStorage{
		dir:    dir,
		logger: slog.Default().With("component", "analytics.storage.jsonl"),
	}
	s.logger.Info("JSONL storage initialized", "dir", dir)
	return s, nil
}

// Name implements analytics.Backend.
func (s *JSONLStorage) Name() string {
	return "jsonl"
}

// FilePath returns the day file a record with timestamp ts is written to.
func (s *JSONLStorage) FilePath(ts time.Time) string {
	return filepath.Join(s.dir, "ollama_"+ts.UTC().Format(jsonlDateLayout)+".jsonl.gz")
}

// Write appends the record as one line to its day file.
func (s *JSONLStorage) Write(ctx context.Context, r *analytics.InteractionRecord) error {
	line, err := json.Marshal(r)
	if err != nil {
		return analytics.NewStorageError("jsonl", "write", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(s.FilePath(r.Timestamp), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return analytics.NewStorageError("jsonl", "write", err)
	}

	zw := gzip.NewWriter(f)
	if _, err := zw.Write(line); err != nil {
		zw.Close()
		f.Close()
		return analytics.NewStorageError("jsonl", "write", err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return analytics.NewStorageError("jsonl", "write", err)
	}
	if err := f.Close(); err != nil {
		return analytics.NewStorageError("jsonl", "write", err)
	}
	return nil
}

// Cleanup removes day files whose day ends before the cutoff day begins.
// The file covering the cutoff day itself is kept.
func (s *JSONLStorage) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, analytics.NewStorageError("jsonl", "cleanup", err)
	}

	cutoffDay := cutoff.UTC().Truncate(24 * time.Hour)

	var deleted int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := jsonlFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		day, err := time.Parse(jsonlDateLayout, m[1])
		if err != nil {
			continue
		}
		if !day.Before(cutoffDay) {
			continue
		}

		path := filepath.Join(s.dir, e.Name())
		if err := os.Remove(path); err != nil {
			return deleted, analytics.NewStorageError("jsonl", "cleanup", err)
		}
		deleted++
		s.logger.Info("deleted expired analytics file", "file", e.Name())
	}

	return deleted, nil
}

// Close is a no-op; files are closed after every write.
func (s *JSONLStorage) Close() error {
	return nil
}

// ReadFile decodes every record in a day file.
func ReadFile(path string) ([]*analytics.InteractionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var records []*analytics.InteractionRecord
	dec := json.NewDecoder(zr)
	for dec.More() {
		var r analytics.InteractionRecord
		if err := dec.Decode(&r); err != nil {
			return records, err
		}
		records = append(records, &r)
	}
	return records, nil
}
