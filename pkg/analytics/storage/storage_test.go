package storage

import (
	"fmt"
	"time"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
)

// createTestRecord creates a finalized record for testing.
func createTestRecord(id, model string, ts time.Time) *analytics.InteractionRecord {
	return &analytics.InteractionRecord{
		ID:              id,
		Timestamp:       ts,
		Model:           model,
		Endpoint:        "generate",
		PromptCategory:  "explanation",
		PromptText:      "explain goroutines",
		ResponsePreview: "Goroutines are",
		DurationSeconds: 2,
		TokensGenerated: 100,
		PromptTokens:    10,
		UpstreamStatus:  200,
		Status:          analytics.StatusSuccess,
		Metadata:        map[string]any{"client_ip": "127.0.0.1"},
	}
}

// seedRecords returns n records one minute apart, newest first, alternating
// between two models.
func seedRecords(n int, base time.Time) []*analytics.InteractionRecord {
	records := make([]*analytics.InteractionRecord, 0, n)
	for i := 0; i < n; i++ {
		model := "llama3"
		if i%2 == 1 {
			model = "mistral"
		}
		r := createTestRecord(fmt.Sprintf("rec-%03d", i), model, base.Add(-time.Duration(i)*time.Minute))
		r.TokensGenerated = (i + 1) * 10
		records = append(records, r)
	}
	return records
}

func intPtr(v int) *int { return &v }

func durPtr(d time.Duration) *time.Duration { return &d }

func timePtr(t time.Time) *time.Time { return &t }
