package analytics

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Status is the outcome of a proxied request.
type Status string

const (
	// StatusStarted marks a record that has not been finalized yet.
	StatusStarted Status = "started"

	// StatusSuccess marks a request that completed without error.
	StatusSuccess Status = "success"

	// StatusError marks a request that failed upstream, mid-stream, or
	// received a non-2xx upstream response.
	StatusError Status = "error"
)

// Fixed per-token pricing used to derive an indicative cost.
const (
	PromptTokenPrice    = 0.00001
	GeneratedTokenPrice = 0.00003
)

// UnknownModel is recorded when the request body names no model.
const UnknownModel = "unknown"

// InteractionRecord is the structured summary of one proxied
// request/response cycle.
//
// A record is created when a request arrives, filled in while the response
// is relayed, and finalized exactly once when the request completes. After
// it is enqueued the proxy no longer touches it.
type InteractionRecord struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	Model           string    `json:"model"`
	Endpoint        string    `json:"endpoint"`
	PromptCategory  string    `json:"prompt_category"`
	PromptText      string    `json:"prompt_text"`
	ResponsePreview string    `json:"response_preview"`

	DurationSeconds float64 `json:"duration_seconds"`
	TokensGenerated int     `json:"tokens_generated"`
	PromptTokens    int     `json:"prompt_tokens"`

	// Upstream-reported timings, zero when absent.
	EvalDurationSeconds     float64 `json:"eval_duration_seconds"`
	LoadDurationSeconds     float64 `json:"load_duration_seconds"`
	TimeToFirstTokenSeconds float64 `json:"time_to_first_token_seconds"`

	UpstreamStatus int     `json:"upstream_status"`
	Status         Status  `json:"status"`
	ErrorMessage   *string `json:"error_message"`

	// Metadata holds client_ip, user_agent, request_id and
	// backend-specific extras.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TokensPerSecond derives throughput from the generated token count and
// the request duration. It is never stored independently.
func (r *InteractionRecord) TokensPerSecond() float64 {
	if r.DurationSeconds <= 0 || r.TokensGenerated <= 0 {
		return 0
	}
	return float64(r.TokensGenerated) / r.DurationSeconds
}

// Cost derives an indicative cost from token counts. It is zero unless
// both prompt and generated token counts are known.
func (r *InteractionRecord) Cost() float64 {
	return CalculateCost(r.PromptTokens, r.TokensGenerated)
}

// CalculateCost applies the fixed per-token pricing.
func CalculateCost(promptTokens, generatedTokens int) float64 {
	if promptTokens <= 0 || generatedTokens <= 0 {
		return 0
	}
	return float64(promptTokens)*PromptTokenPrice + float64(generatedTokens)*GeneratedTokenPrice
}

// SetError marks the record as failed with msg. An empty msg keeps any
// message already present.
func (r *InteractionRecord) SetError(msg string) {
	r.Status = StatusError
	if msg != "" {
		r.ErrorMessage = &msg
	}
}

// MarshalJSON adds the derived tokens_per_second and cost fields.
func (r *InteractionRecord) MarshalJSON() ([]byte, error) {
	type plain InteractionRecord
	return json.Marshal(struct {
		*plain
		TokensPerSecond float64 `json:"tokens_per_second"`
		Cost            float64 `json:"cost"`
	}{
		plain:           (*plain)(r),
		TokensPerSecond: r.TokensPerSecond(),
		Cost:            r.Cost(),
	})
}

// Query filters interaction records. All filters are optional and
// combined conjunctively. Results are ordered by timestamp descending.
type Query struct {
	// Time range
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive start time
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive end time

	// Filters
	Model        string `json:"model,omitempty"`         // Exact model match
	Endpoint     string `json:"endpoint,omitempty"`      // Exact endpoint match
	Category     string `json:"category,omitempty"`      // Exact prompt category match
	PromptSearch string `json:"prompt_search,omitempty"` // Substring match on prompt text
	Status       Status `json:"status,omitempty"`

	// Thresholds
	MinTokens  *int           `json:"min_tokens,omitempty"`
	MaxTokens  *int           `json:"max_tokens,omitempty"`
	MinLatency *time.Duration `json:"min_latency,omitempty"`
	MaxLatency *time.Duration `json:"max_latency,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Matches reports whether r satisfies every filter in q. Pagination is
// not considered. Backends that cannot push filters into a query engine
// use this directly.
func (q *Query) Matches(r *InteractionRecord) bool {
	if q == nil {
		return true
	}
	if q.StartTime != nil && r.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && r.Timestamp.After(*q.EndTime) {
		return false
	}
	if q.Model != "" && r.Model != q.Model {
		return false
	}
	if q.Endpoint != "" && r.Endpoint != q.Endpoint {
		return false
	}
	if q.Category != "" && r.PromptCategory != q.Category {
		return false
	}
	if q.PromptSearch != "" && !strings.Contains(strings.ToLower(r.PromptText), strings.ToLower(q.PromptSearch)) {
		return false
	}
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	if q.MinTokens != nil && r.TokensGenerated < *q.MinTokens {
		return false
	}
	if q.MaxTokens != nil && r.TokensGenerated > *q.MaxTokens {
		return false
	}
	if q.MinLatency != nil && r.DurationSeconds < q.MinLatency.Seconds() {
		return false
	}
	if q.MaxLatency != nil && r.DurationSeconds > q.MaxLatency.Seconds() {
		return false
	}
	return true
}

// ModelUsage summarizes traffic for one model.
type ModelUsage struct {
	Model    string    `json:"model"`
	Requests int64     `json:"requests"`
	Tokens   int64     `json:"tokens"`
	LastSeen time.Time `json:"last_seen"`
}

// CategoryUsage summarizes traffic for one prompt category.
type CategoryUsage struct {
	Category string `json:"category"`
	Requests int64  `json:"requests"`
}

// HourlyBucket is one point of the request trend.
type HourlyBucket struct {
	Hour     time.Time `json:"hour"`
	Requests int64     `json:"requests"`
	Errors   int64     `json:"errors"`
	Tokens   int64     `json:"tokens"`
}

// Summary aggregates interactions since a point in time.
type Summary struct {
	Since         time.Time       `json:"since"`
	TotalRequests int64           `json:"total_requests"`
	SuccessCount  int64           `json:"success_count"`
	ErrorCount    int64           `json:"error_count"`
	SuccessRate   float64         `json:"success_rate"`
	AvgLatencyMs  float64         `json:"avg_latency_ms"`
	TotalTokens   int64           `json:"total_tokens"`
	TotalCost     float64         `json:"total_cost"`
	TopModels     []ModelUsage    `json:"top_models"`
	TopCategories []CategoryUsage `json:"top_categories"`
	Hourly        []HourlyBucket  `json:"hourly"`
}

// Backend persists interaction records. Writes and cleanups are issued by
// a single writer goroutine, so implementations need no write-side locking.
type Backend interface {
	// Name returns the backend kind ("jsonl", "sqlite", "loki", "memory").
	Name() string

	// Write persists one finalized record.
	Write(ctx context.Context, record *InteractionRecord) error

	// Cleanup removes records with a timestamp before cutoff and returns
	// how many records (or files, for file-partitioned backends) were
	// removed.
	Cleanup(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases the backend's resources.
	Close() error
}

// Searcher is implemented by backends that support ad hoc queries.
// Implementations must be safe for use concurrently with Write.
type Searcher interface {
	// Search returns records matching q, newest first.
	Search(ctx context.Context, q *Query) ([]*InteractionRecord, error)

	// Count returns the number of records matching q, ignoring pagination.
	Count(ctx context.Context, q *Query) (int64, error)

	// Get returns the record with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (*InteractionRecord, error)

	// Models returns per-model usage, busiest first.
	Models(ctx context.Context) ([]ModelUsage, error)

	// Summary aggregates records with a timestamp at or after since.
	Summary(ctx context.Context, since time.Time) (*Summary, error)
}
