package storage

import (
	"sort"
	"time"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
)

const topN = 10

// summarize aggregates records in process for backends without a query
// engine.
func summarize(records []*analytics.InteractionRecord, since time.Time) *analytics.Summary {
	sum := &analytics.Summary{
		Since:         since,
		TopModels:     []analytics.ModelUsage{},
		TopCategories: []analytics.CategoryUsage{},
		Hourly:        []analytics.HourlyBucket{},
	}

	var totalLatency float64
	categories := make(map[string]int64)
	hours := make(map[time.Time]*analytics.HourlyBucket)

	for _, r := range records {
		sum.TotalRequests++
		switch r.Status {
		case analytics.StatusSuccess:
			sum.SuccessCount++
		case analytics.StatusError:
			sum.ErrorCount++
		}
		totalLatency += r.DurationSeconds
		sum.TotalTokens += int64(r.TokensGenerated)
		sum.TotalCost += r.Cost()
		categories[r.PromptCategory]++

		hour := r.Timestamp.UTC().Truncate(time.Hour)
		b, ok := hours[hour]
		if !ok {
			b = &analytics.HourlyBucket{Hour: hour}
			hours[hour] = b
		}
		b.Requests++
		b.Tokens += int64(r.TokensGenerated)
		if r.Status == analytics.StatusError {
			b.Errors++
		}
	}

	if sum.TotalRequests > 0 {
		sum.SuccessRate = float64(sum.SuccessCount) / float64(sum.TotalRequests) * 100
		sum.AvgLatencyMs = totalLatency / float64(sum.TotalRequests) * 1000
	}

	sum.TopModels = modelUsage(records, topN)

	for c, n := range categories {
		sum.TopCategories = append(sum.TopCategories, analytics.CategoryUsage{Category: c, Requests: n})
	}
	sort.Slice(sum.TopCategories, func(i, j int) bool {
		a, b := sum.TopCategories[i], sum.TopCategories[j]
		if a.Requests != b.Requests {
			return a.Requests > b.Requests
		}
		return a.Category < b.Category
	})
	if len(sum.TopCategories) > topN {
		sum.TopCategories = sum.TopCategories[:topN]
	}

	for _, b := range hours {
		sum.Hourly = append(sum.Hourly, *b)
	}
	sort.Slice(sum.Hourly, func(i, j int) bool {
		return sum.Hourly[i].Hour.Before(sum.Hourly[j].Hour)
	})

	return sum
}

// modelUsage groups records by model, busiest first. A limit of zero
// returns every model.
func modelUsage(records []*analytics.InteractionRecord, limit int) []analytics.ModelUsage {
	byModel := make(map[string]*analytics.ModelUsage)
	for _, r := range records {
		u, ok := byModel[r.Model]
		if !ok {
			u = &analytics.ModelUsage{Model: r.Model}
			byModel[r.Model] = u
		}
		u.Requests++
		u.Tokens += int64(r.TokensGenerated)
		if r.Timestamp.After(u.LastSeen) {
			u.LastSeen = r.Timestamp
		}
	}

	out := make([]analytics.ModelUsage, 0, len(byModel))
	for _, u := range byModel {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Requests != out[j].Requests {
			return out[i].Requests > out[j].Requests
		}
		return out[i].Model < out[j].Model
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
