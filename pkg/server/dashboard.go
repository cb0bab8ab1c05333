package server

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
)

const dashboardRecentLimit = 25

//go:embed dashboard.html
var dashboardHTML string

var dashboardFuncs = template.FuncMap{
	"percent": func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
	"ms":      func(v float64) string { return fmt.Sprintf("%.0f ms", v) },
	"seconds": func(v float64) string { return fmt.Sprintf("%.2fs", v) },
	"ts":      func(t time.Time) string { return t.Local().Format("2006-01-02 15:04:05") },
	"cost":    func(v float64) string { return fmt.Sprintf("$%.4f", v) },
	"short": func(s string) string {
		return analytics.TruncateString(s, 80)
	},
}

// dashboardData is passed to the dashboard template.
type dashboardData struct {
	Stats     statsResponse
	Hours     int
	Recent    []*analytics.InteractionRecord
	Generated time.Time
}

// loadDashboard parses the dashboard template at path, falling back to the
// built-in one when path is empty or unusable.
func loadDashboard(path string) (*template.Template, error) {
	builtin, err := template.New("dashboard").Funcs(dashboardFuncs).Parse(dashboardHTML)
	if err != nil {
		return nil, fmt.Errorf("parse built-in dashboard: %w", err)
	}
	if path == "" {
		return builtin, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("dashboard template unavailable, using built-in", "path", path, "error", err)
		return builtin, nil
	}
	custom, err := template.New("dashboard").Funcs(dashboardFuncs).Parse(string(data))
	if err != nil {
		slog.Warn("dashboard template invalid, using built-in", "path", path, "error", err)
		return builtin, nil
	}
	return custom, nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	hours := summaryHours(r)
	data := dashboardData{
		Stats:     s.stats(r.Context(), hours),
		Hours:     hours,
		Generated: time.Now(),
	}

	if data.Stats.Searchable {
		recent, err := s.deps.Analytics.Search(r.Context(), &analytics.Query{Limit: dashboardRecentLimit})
		if err != nil {
			s.logger.Warn("failed to load recent interactions", "error", err)
		}
		data.Recent = recent
	}

	var buf bytes.Buffer
	if err := s.dashboard.Execute(&buf, data); err != nil {
		s.logger.Error("failed to render dashboard", "error", err)
		http.Error(w, "dashboard unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
