package query

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
)

const (
	// DefaultLimit is the default number of records to return if not specified.
	DefaultLimit = 100

	// MaxLimit is the maximum number of records that can be returned in a single query.
	MaxLimit = 10000
)

// maxUnixSeconds is 9999-12-31T23:59:59Z.
const maxUnixSeconds = 253402300799

// Limits bounds the page size of a query.
type Limits struct {
	Default int
	Max     int
}

// DefaultLimits returns the built-in page size limits.
func DefaultLimits() Limits {
	return Limits{Default: DefaultLimit, Max: MaxLimit}
}

// FromValues builds a query from URL parameters, applies defaults and
// validates it.
func FromValues(v url.Values, limits Limits) (*analytics.Query, error) {
	q := &analytics.Query{
		Model:        strings.TrimSpace(v.Get("model")),
		Category:     strings.TrimSpace(v.Get("category")),
		Endpoint:     strings.TrimSpace(v.Get("endpoint")),
		PromptSearch: v.Get("search"),
		Status:       analytics.Status(strings.TrimSpace(v.Get("status"))),
	}
	if q.PromptSearch == "" {
		q.PromptSearch = v.Get("prompt_search")
	}

	var err error
	if q.StartTime, err = parseTime(v, "start_time"); err != nil {
		return nil, err
	}
	if q.EndTime, err = parseTime(v, "end_time"); err != nil {
		return nil, err
	}
	if q.MinTokens, err = parseInt(v, "min_tokens"); err != nil {
		return nil, err
	}
	if q.MaxTokens, err = parseInt(v, "max_tokens"); err != nil {
		return nil, err
	}
	if q.MinLatency, err = parseMillis(v, "min_latency"); err != nil {
		return nil, err
	}
	if q.MaxLatency, err = parseMillis(v, "max_latency"); err != nil {
		return nil, err
	}

	if limit, err := parseInt(v, "limit"); err != nil {
		return nil, err
	} else if limit != nil {
		q.Limit = *limit
	}
	if offset, err := parseInt(v, "offset"); err != nil {
		return nil, err
	} else if offset != nil {
		q.Offset = *offset
	}

	ApplyDefaults(q, limits)
	if err := Validate(q, limits); err != nil {
		return nil, err
	}
	return q, nil
}

// ApplyDefaults applies default values to a query.
func ApplyDefaults(q *analytics.Query, limits Limits) {
	if q.Limit == 0 {
		q.Limit = limits.Default
	}
}

// Validate checks ranges and enumerations in q.
func Validate(q *analytics.Query, limits Limits) error {
	if q.Limit < 0 {
		return analytics.NewQueryError("limit", fmt.Sprintf("must be >= 0, got %d", q.Limit), nil)
	}
	if limits.Max > 0 && q.Limit > limits.Max {
		return analytics.NewQueryError("limit", fmt.Sprintf("must be <= %d, got %d", limits.Max, q.Limit), nil)
	}
	if q.Offset < 0 {
		return analytics.NewQueryError("offset", fmt.Sprintf("must be >= 0, got %d", q.Offset), nil)
	}

	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return analytics.NewQueryError("start_time", "must be before end_time", nil)
	}
	if q.MinTokens != nil && q.MaxTokens != nil && *q.MinTokens > *q.MaxTokens {
		return analytics.NewQueryError("min_tokens", "must be <= max_tokens", nil)
	}
	if q.MinLatency != nil && q.MaxLatency != nil && *q.MinLatency > *q.MaxLatency {
		return analytics.NewQueryError("min_latency", "must be <= max_latency", nil)
	}

	switch q.Status {
	case "", analytics.StatusSuccess, analytics.StatusError:
	default:
		return analytics.NewQueryError("status", fmt.Sprintf("%q (must be 'success' or 'error')", q.Status), nil)
	}

	return nil
}

// ParseTime accepts unix seconds (optionally fractional) or RFC3339.
func ParseTime(s string) (time.Time, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) || math.Abs(secs) > maxUnixSeconds {
			return time.Time{}, fmt.Errorf("unix timestamp %q out of range", s)
		}
		whole := int64(secs)
		frac := int64((secs - float64(whole)) * float64(time.Second))
		return time.Unix(whole, frac).UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseTime(v url.Values, field string) (*time.Time, error) {
	s := strings.TrimSpace(v.Get(field))
	if s == "" {
		return nil, nil
	}
	t, err := ParseTime(s)
	if err != nil {
		return nil, analytics.NewQueryError(field, "expected unix seconds or RFC3339", err)
	}
	return &t, nil
}

func parseInt(v url.Values, field string) (*int, error) {
	s := strings.TrimSpace(v.Get(field))
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, analytics.NewQueryError(field, "expected an integer", err)
	}
	return &n, nil
}

func parseMillis(v url.Values, field string) (*time.Duration, error) {
	s := strings.TrimSpace(v.Get(field))
	if s == "" {
		return nil, nil
	}
	ms, err := strconv.ParseFloat(s, 64)
	if err != nil || ms < 0 {
		return nil, analytics.NewQueryError(field, "expected non-negative milliseconds", err)
	}
	d := time.Duration(ms * float64(time.Millisecond))
	return &d, nil
}
