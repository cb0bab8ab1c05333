package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics/export"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics/query"
)

const defaultSummaryHours = 24

// searchResponse is the body of GET /analytics/search.
type searchResponse struct {
	Results []*analytics.InteractionRecord `json:"results"`
	Count   int                            `json:"count"`
	Total   int64                          `json:"total"`
	Limit   int                            `json:"limit"`
	Offset  int                            `json:"offset"`
}

// statsResponse is the body of GET /analytics/stats.
type statsResponse struct {
	Backend       string             `json:"backend"`
	DataDir       string             `json:"data_dir"`
	QueueSize     int                `json:"queue_size"`
	QueueCapacity int                `json:"queue_capacity"`
	Dropped       int64              `json:"dropped"`
	Written       int64              `json:"written"`
	WriteErrors   int64              `json:"write_errors"`
	Cleanups      int64              `json:"cleanups"`
	RetentionDays int                `json:"retention_days"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	Searchable    bool               `json:"searchable"`
	CategoryCount int                `json:"category_count"`
	Categories    []string           `json:"categories"`
	Summary       *analytics.Summary `json:"summary,omitempty"`
}

// testResponse is the body of GET /test.
type testResponse struct {
	Status          string   `json:"status"`
	OllamaHost      string   `json:"ollama_host"`
	OllamaReachable bool     `json:"ollama_reachable"`
	Models          []string `json:"models,omitempty"`
	Error           string   `json:"error,omitempty"`
}

func (s *Server) limits() query.Limits {
	return query.Limits{
		Default: s.config.Analytics.Query.DefaultLimit,
		Max:     s.config.Analytics.Query.MaxLimit,
	}
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	resp := testResponse{OllamaHost: s.deps.Upstream.BaseURL()}

	models, err := s.deps.Upstream.Probe(r.Context())
	if err != nil {
		resp.Status = "error"
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	resp.Status = "ok"
	resp.OllamaReachable = true
	resp.Models = models
	if resp.Models == nil {
		resp.Models = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q, err := query.FromValues(r.URL.Query(), s.limits())
	if err != nil {
		s.writeError(w, err)
		return
	}

	records, err := s.deps.Analytics.Search(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}

	total, err := s.deps.Analytics.Count(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Results: nonNil(records),
		Count:   len(records),
		Total:   total,
		Limit:   q.Limit,
		Offset:  q.Offset,
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	q, err := query.FromValues(r.URL.Query(), s.limits())
	if err != nil {
		s.writeError(w, err)
		return
	}

	records, err := s.deps.Analytics.Search(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(records))
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	record, err := s.deps.Analytics.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.deps.Analytics.Models(r.Context())
	if analytics.IsCapabilityError(err) {
		writeJSON(w, http.StatusOK, []analytics.ModelUsage{})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	if models == nil {
		models = []analytics.ModelUsage{}
	}
	writeJSON(w, http.StatusOK, models)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()

	exporter, err := export.New(values.Get("format"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var records []*analytics.InteractionRecord
	if id := values.Get("message_id"); id != "" {
		record, err := s.deps.Analytics.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		records = []*analytics.InteractionRecord{record}
	} else {
		q, err := query.FromValues(values, s.limits())
		if err != nil {
			s.writeError(w, err)
			return
		}
		if records, err = s.deps.Analytics.Search(r.Context(), q); err != nil {
			s.writeError(w, err)
			return
		}
	}

	// Rendered in full first so a failure can still produce a JSON error.
	var buf bytes.Buffer
	if err := exporter.Export(r.Context(), records, &buf); err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(exporter)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats(r.Context(), summaryHours(r)))
}

func (s *Server) stats(ctx context.Context, hours int) statsResponse {
	ws := s.deps.Analytics.Stats()
	resp := statsResponse{
		Backend:       ws.Backend,
		DataDir:       s.config.Analytics.DataDir,
		QueueSize:     ws.QueueSize,
		QueueCapacity: ws.QueueCapacity,
		Dropped:       ws.Dropped,
		Written:       ws.Written,
		WriteErrors:   ws.WriteErrors,
		Cleanups:      ws.Cleanups,
		RetentionDays: s.liveConfig().Analytics.RetentionDays,
		UptimeSeconds: s.Uptime().Seconds(),
		Searchable:    s.deps.Analytics.Searchable(),
		Categories:    []string{},
	}
	if s.deps.Categories != nil {
		resp.CategoryCount = s.deps.Categories.Count()
		resp.Categories = s.deps.Categories.Labels()
	}

	if resp.Searchable {
		since := time.Now().Add(-time.Duration(hours) * time.Hour)
		summary, err := s.deps.Analytics.Summary(ctx, since)
		if err != nil {
			s.logger.Warn("failed to build analytics summary", "error", err)
		} else {
			resp.Summary = summary
		}
	}
	return resp
}

// summaryHours reads ?hours, ignoring values that are not positive integers.
func summaryHours(r *http.Request) int {
	if v := r.URL.Query().Get("hours"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultSummaryHours
}

// writeError maps analytics errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()

	switch {
	case errors.Is(err, analytics.ErrNotFound):
		status = http.StatusNotFound
		msg = "Message not found"
	case analytics.IsCapabilityError(err), analytics.IsQueryError(err):
		status = http.StatusBadRequest
	default:
		s.logger.Error("analytics request failed", "error", err)
	}

	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func nonNil(records []*analytics.InteractionRecord) []*analytics.InteractionRecord {
	if records == nil {
		return []*analytics.InteractionRecord{}
	}
	return records
}
