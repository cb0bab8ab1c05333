package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
)

// createTempDB creates a temporary SQLite database for testing.
func createTempDB(t *testing.T) *SQLiteStorage {
	t.Helper()

	config := DefaultSQLiteConfig()
	config.Path = filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLiteStorage(config)
	if err != nil {
		t.Fatalf("failed to create SQLite storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStorage_WriteAndGet(t *testing.T) {
	s := createTempDB(t)
	ctx := context.Background()

	ts := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)
	r := createTestRecord("abc", "llama3", ts)
	msg := "boom"
	r.ErrorMessage = &msg
	r.Status = analytics.StatusError
	r.EvalDurationSeconds = 1.5
	r.TimeToFirstTokenSeconds = 0.2

	if err := s.Write(ctx, r); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := s.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if !got.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, ts)
	}
	if got.Model != "llama3" || got.Endpoint != "generate" || got.PromptCategory != "explanation" {
		t.Errorf("unexpected identity fields: %+v", got)
	}
	if got.Status != analytics.StatusError {
		t.Errorf("Status = %q, want error", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "boom" {
		t.Errorf("ErrorMessage = %v, want boom", got.ErrorMessage)
	}
	if got.EvalDurationSeconds != 1.5 || got.TimeToFirstTokenSeconds != 0.2 {
		t.Errorf("timings not preserved: %+v", got)
	}
	if got.Metadata["client_ip"] != "127.0.0.1" {
		t.Errorf("Metadata = %v", got.Metadata)
	}
	if got.TokensPerSecond() != 50 {
		t.Errorf("TokensPerSecond() = %v, want 50", got.TokensPerSecond())
	}
}

func TestSQLiteStorage_GetNotFound(t *testing.T) {
	s := createTempDB(t)

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, analytics.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStorage_WriteSameIDReplaces(t *testing.T) {
	s := createTempDB(t)
	ctx := context.Background()

	r := createTestRecord("dup", "llama3", time.Now())
	if err := s.Write(ctx, r); err != nil {
		t.Fatal(err)
	}
	r.Model = "mistral"
	if err := s.Write(ctx, r); err != nil {
		t.Fatal(err)
	}

	n, err := s.Count(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestSQLiteStorage_Search(t *testing.T) {
	s := createTempDB(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, r := range seedRecords(10, base) {
		if err := s.Write(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	special := createTestRecord("special", "phi", base.Add(-time.Hour))
	special.PromptText = "what does 100%_done mean"
	special.DurationSeconds = 30
	special.Status = analytics.StatusError
	if err := s.Write(ctx, special); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		query   *analytics.Query
		wantIDs []string
	}{
		{
			name:    "model filter",
			query:   &analytics.Query{Model: "phi"},
			wantIDs: []string{"special"},
		},
		{
			name:    "limit and ordering",
			query:   &analytics.Query{Limit: 3},
			wantIDs: []string{"rec-000", "rec-001", "rec-002"},
		},
		{
			name:    "offset",
			query:   &analytics.Query{Limit: 2, Offset: 2},
			wantIDs: []string{"rec-002", "rec-003"},
		},
		{
			name: "inclusive time range",
			query: &analytics.Query{
				StartTime: timePtr(base.Add(-3 * time.Minute)),
				EndTime:   timePtr(base.Add(-1 * time.Minute)),
			},
			wantIDs: []string{"rec-001", "rec-002", "rec-003"},
		},
		{
			name:    "token range",
			query:   &analytics.Query{MinTokens: intPtr(80), MaxTokens: intPtr(95), Model: "mistral"},
			wantIDs: []string{"rec-007"},
		},
		{
			name:    "latency range",
			query:   &analytics.Query{MinLatency: durPtr(10 * time.Second)},
			wantIDs: []string{"special"},
		},
		{
			name:    "status",
			query:   &analytics.Query{Status: analytics.StatusError},
			wantIDs: []string{"special"},
		},
		{
			name:    "prompt substring treats wildcards literally",
			query:   &analytics.Query{PromptSearch: "100%_done"},
			wantIDs: []string{"special"},
		},
		{
			name:    "prompt substring no match",
			query:   &analytics.Query{PromptSearch: "100%%"},
			wantIDs: nil,
		},
		{
			name:    "non matching model",
			query:   &analytics.Query{Model: "gemma"},
			wantIDs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Search(ctx, tt.query)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			var ids []string
			for _, r := range got {
				ids = append(ids, r.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.wantIDs, ",") {
				t.Errorf("Search() ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestSQLiteStorage_RoundTripSearch(t *testing.T) {
	s := createTempDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	r := createTestRecord("round-trip", "llama3", now)
	if err := s.Write(ctx, r); err != nil {
		t.Fatal(err)
	}

	got, err := s.Search(ctx, &analytics.Query{
		Model:     "llama3",
		StartTime: timePtr(now.Add(-time.Minute)),
		EndTime:   timePtr(now.Add(time.Minute)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "round-trip" {
		t.Fatalf("Search() = %v, want exactly round-trip", got)
	}

	got, err = s.Search(ctx, &analytics.Query{Model: "mistral"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("Search() with other model returned %d records", len(got))
	}
}

func TestSQLiteStorage_ModelsAndSummary(t *testing.T) {
	s := createTempDB(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for _, r := range seedRecords(5, base) {
		if err := s.Write(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	failed := createTestRecord("failed", "llama3", base.Add(-2*time.Second))
	failed.Status = analytics.StatusError
	failed.TokensGenerated = 0
	if err := s.Write(ctx, failed); err != nil {
		t.Fatal(err)
	}

	models, err := s.Models(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 2 {
		t.Fatalf("Models() returned %d entries, want 2", len(models))
	}
	if models[0].Model != "llama3" || models[0].Requests != 4 {
		t.Errorf("Models()[0] = %+v, want llama3 with 4 requests", models[0])
	}

	sum, err := s.Summary(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalRequests != 6 || sum.SuccessCount != 5 || sum.ErrorCount != 1 {
		t.Errorf("Summary counts = %d/%d/%d", sum.TotalRequests, sum.SuccessCount, sum.ErrorCount)
	}
	if sum.TotalTokens != 150 {
		t.Errorf("TotalTokens = %d, want 150", sum.TotalTokens)
	}
	if sum.AvgLatencyMs != 2000 {
		t.Errorf("AvgLatencyMs = %v, want 2000", sum.AvgLatencyMs)
	}
	if len(sum.TopCategories) != 1 || sum.TopCategories[0].Category != "explanation" {
		t.Errorf("TopCategories = %+v", sum.TopCategories)
	}
	if len(sum.Hourly) == 0 {
		t.Error("Hourly is empty")
	}
}

func TestSQLiteStorage_CleanupRetention(t *testing.T) {
	s := createTempDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	const retentionDays = 7

	ages := map[string]time.Duration{
		"fresh":    time.Hour,
		"week-ish": 6 * 24 * time.Hour,
		"old":      8 * 24 * time.Hour,
		"ancient":  30 * 24 * time.Hour,
	}
	for id, age := range ages {
		if err := s.Write(ctx, createTestRecord(id, "llama3", now.Add(-age))); err != nil {
			t.Fatal(err)
		}
	}

	deleted, err := s.Cleanup(ctx, now.AddDate(0, 0, -retentionDays))
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("Cleanup() deleted %d, want 2", deleted)
	}

	for _, id := range []string{"fresh", "week-ish"} {
		if _, err := s.Get(ctx, id); err != nil {
			t.Errorf("record %s should be retained: %v", id, err)
		}
	}
	for _, id := range []string{"old", "ancient"} {
		if _, err := s.Get(ctx, id); !errors.Is(err, analytics.ErrNotFound) {
			t.Errorf("record %s should be deleted, got %v", id, err)
		}
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		name    string
		config  *SQLiteConfig
		want    []string
		wantErr bool
	}{
		{
			name:   "modernc",
			config: &SQLiteConfig{Path: "a.db", Driver: DriverModernc, WALMode: true, BusyTimeout: 5 * time.Second},
			want:   []string{"file:a.db?", "busy_timeout%285000%29", "journal_mode%28WAL%29"},
		},
		{
			name:   "mattn",
			config: &SQLiteConfig{Path: "a.db", Driver: DriverCGO, WALMode: true, BusyTimeout: time.Second},
			want:   []string{"_busy_timeout=1000", "_journal_mode=WAL"},
		},
		{
			name:    "unknown driver",
			config:  &SQLiteConfig{Path: "a.db", Driver: "postgres"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn, err := sqliteDSN(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("sqliteDSN() error = %v, wantErr %v", err, tt.wantErr)
			}
			for _, part := range tt.want {
				if !strings.Contains(dsn, part) {
					t.Errorf("sqliteDSN() = %q, missing %q", dsn, part)
				}
			}
		})
	}
}
