package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestChecker_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]CheckFunc
		wantStatus string
		wantCode   int
	}{
		{
			name:       "no checks",
			checks:     nil,
			wantStatus: StatusReady,
			wantCode:   http.StatusOK,
		},
		{
			name: "all healthy",
			checks: map[string]CheckFunc{
				"upstream": func(ctx context.Context) error { return nil },
				"writer":   func(ctx context.Context) error { return nil },
			},
			wantStatus: StatusReady,
			wantCode:   http.StatusOK,
		},
		{
			name: "one failing",
			checks: map[string]CheckFunc{
				"upstream": func(ctx context.Context) error { return errors.New("connection refused") },
				"writer":   func(ctx context.Context) error { return nil },
			},
			wantStatus: StatusDegraded,
			wantCode:   http.StatusServiceUnavailable,
		},
		{
			name: "timeout",
			checks: map[string]CheckFunc{
				"slow": func(ctx context.Context) error {
					<-ctx.Done()
					time.Sleep(10 * time.Millisecond)
					return nil
				},
			},
			wantStatus: StatusDegraded,
			wantCode:   http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(50 * time.Millisecond)
			for name, check := range tt.checks {
				c.RegisterCheck(name, check)
			}

			rec := httptest.NewRecorder()
			c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantCode)
			}
			var status HealthStatus
			if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
				t.Fatal(err)
			}
			if status.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", status.Status, tt.wantStatus)
			}
			if len(status.Checks) != len(tt.checks) {
				t.Errorf("got %d check results, want %d", len(status.Checks), len(tt.checks))
			}
		})
	}
}

func TestChecker_Liveness(t *testing.T) {
	c := New(0)

	rec := httptest.NewRecorder()
	c.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var status HealthStatus
	json.NewDecoder(rec.Body).Decode(&status)
	if status.Status != StatusOK {
		t.Errorf("status = %q", status.Status)
	}

	head := httptest.NewRecorder()
	c.LivenessHandler().ServeHTTP(head, httptest.NewRequest(http.MethodHead, "/health", nil))
	if head.Body.Len() != 0 {
		t.Error("HEAD response has a body")
	}
}

func TestUpstream_Probe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != TagsPath {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"models":[{"name":"llama3:latest"},{"name":"mistral:7b"}]}`))
	}))
	defer server.Close()

	u := NewUpstream(server.URL+"/", time.Second)
	models, err := u.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if len(models) != 2 || models[0] != "llama3:latest" {
		t.Errorf("Probe() = %v", models)
	}
	if err := u.Check(context.Background()); err != nil {
		t.Errorf("Check() error = %v", err)
	}
}

func TestUpstream_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	u := NewUpstream(url, time.Second)
	if err := u.Check(context.Background()); err == nil {
		t.Error("Check() succeeded against a closed server")
	}
}

func TestUpstream_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	if _, err := NewUpstream(server.URL, time.Second).Probe(context.Background()); err == nil {
		t.Error("Probe() accepted a 502")
	}
}
