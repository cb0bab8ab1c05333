package proxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/config"
)

type fakeRecorder struct {
	mu      sync.Mutex
	records []*analytics.InteractionRecord
}

func (f *fakeRecorder) Enqueue(r *analytics.InteractionRecord) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
	return true
}

func (f *fakeRecorder) snapshot() []*analytics.InteractionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*analytics.InteractionRecord(nil), f.records...)
}

// wait returns once n records arrived or fails the test.
func (f *fakeRecorder) wait(t *testing.T, n int) []*analytics.InteractionRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if records := f.snapshot(); len(records) >= n {
			return records
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d records, got %d", n, len(f.snapshot()))
	return nil
}

type fakeMetrics struct {
	mu       sync.Mutex
	active   int
	observed int
}

func (f *fakeMetrics) ActiveInc() {
	f.mu.Lock()
	f.active++
	f.mu.Unlock()
}

func (f *fakeMetrics) ActiveDec() {
	f.mu.Lock()
	f.active--
	f.mu.Unlock()
}

func (f *fakeMetrics) ObserveRecord(*analytics.InteractionRecord) {
	f.mu.Lock()
	f.observed++
	f.mu.Unlock()
}

func newTestProxy(t *testing.T, upstreamURL string) (*Proxy, *fakeRecorder, *fakeMetrics) {
	t.Helper()

	cfg := config.Default()
	cfg.Upstream.URL = upstreamURL
	cfg.Upstream.ResponseHeaderTimeout = 5 * time.Second

	recorder := &fakeRecorder{}
	metrics := &fakeMetrics{}
	p, err := New(cfg, WithRecorder(recorder), WithMetrics(metrics))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p, recorder, metrics
}

func assertSingleRecord(t *testing.T, recorder *fakeRecorder, metrics *fakeMetrics) *analytics.InteractionRecord {
	t.Helper()
	records := recorder.snapshot()
	if len(records) != 1 {
		t.Fatalf("recorded %d interactions, want 1", len(records))
	}
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.observed != 1 {
		t.Errorf("observed %d times, want 1", metrics.observed)
	}
	if metrics.active != 0 {
		t.Errorf("active gauge = %d after completion", metrics.active)
	}
	return records[0]
}

func TestProxy_ModelListing(t *testing.T) {
	const tags = `{"models":[{"name":"llama3:latest","size":4661224676}]}`
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(tags))
	}))
	defer upstream.Close()

	p, recorder, metrics := newTestProxy(t, upstream.URL)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tags", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != tags {
		t.Errorf("body = %q, want %q", rec.Body.String(), tags)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	r := assertSingleRecord(t, recorder, metrics)
	if r.TokensGenerated != 0 {
		t.Errorf("TokensGenerated = %d, want 0", r.TokensGenerated)
	}
	if r.PromptCategory != "empty" {
		t.Errorf("PromptCategory = %q, want empty", r.PromptCategory)
	}
	if r.Status != analytics.StatusSuccess {
		t.Errorf("Status = %q, want success", r.Status)
	}
	if r.Endpoint != "tags" || r.Model != "unknown" {
		t.Errorf("Endpoint, Model = %q, %q", r.Endpoint, r.Model)
	}
	if r.ID == "" {
		t.Error("record has no ID")
	}
	if r.TokensPerSecond() != 0 {
		t.Errorf("TokensPerSecond() = %v, want 0", r.TokensPerSecond())
	}
}

func TestProxy_UpstreamRefused(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	addr := upstream.URL
	upstream.Close()

	p, recorder, metrics := newTestProxy(t, addr)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"model":"llama3","prompt":"hi"}`))
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("error body is not JSON: %v", err)
	}
	if body.Error == "" {
		t.Error("error field is empty")
	}

	r := assertSingleRecord(t, recorder, metrics)
	if r.Status != analytics.StatusError {
		t.Errorf("Status = %q, want error", r.Status)
	}
	if r.ErrorMessage == nil || *r.ErrorMessage == "" {
		t.Error("ErrorMessage is empty")
	}
	if r.Model != "llama3" {
		t.Errorf("Model = %q", r.Model)
	}
}

func TestProxy_ForwardsRequestUnchanged(t *testing.T) {
	const rawBody = `{"model": "llama3", "prompt": "not closed`

	var (
		gotMethod string
		gotQuery  string
		gotBody   []byte
		gotHeader http.Header
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	p, recorder, _ := newTestProxy(t, upstream.URL)

	req := httptest.NewRequest(http.MethodPut, "/api/show?verbose=1&x=%20y", strings.NewReader(rawBody))
	req.Header.Set("X-Custom", "kept")
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if gotMethod != http.MethodPut {
		t.Errorf("method = %q", gotMethod)
	}
	if gotQuery != "verbose=1&x=%20y" {
		t.Errorf("query = %q", gotQuery)
	}
	if string(gotBody) != rawBody {
		t.Errorf("body = %q, want %q", gotBody, rawBody)
	}
	if gotHeader.Get("X-Custom") != "kept" || gotHeader.Get("Authorization") != "Bearer abc" {
		t.Errorf("headers not forwarded: %v", gotHeader)
	}
	if rec.Code != http.StatusAccepted || rec.Header().Get("X-Upstream") != "yes" {
		t.Errorf("response = %d %v", rec.Code, rec.Header())
	}

	r := recorder.snapshot()[0]
	if r.Model != "unknown" || r.PromptCategory != "empty" {
		t.Errorf("malformed body recorded as model %q category %q", r.Model, r.PromptCategory)
	}
}

func TestCopyHeaders_SkipsHopHeaders(t *testing.T) {
	src := http.Header{
		"Host":              {"example"},
		"Content-Length":    {"12"},
		"Transfer-Encoding": {"chunked"},
		"Accept":            {"application/json"},
		"X-Multi":           {"a", "b"},
	}
	dst := http.Header{}
	copyHeaders(dst, src)

	for _, h := range hopHeaders {
		if dst.Get(h) != "" {
			t.Errorf("%s copied", h)
		}
	}
	if dst.Get("Accept") != "application/json" || len(dst.Values("X-Multi")) != 2 {
		t.Errorf("dst = %v", dst)
	}
}

func TestProxy_UpstreamNon2xx(t *testing.T) {
	const notFound = `{"error":"model 'nope' not found"}`
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(notFound))
	}))
	defer upstream.Close()

	p, recorder, metrics := newTestProxy(t, upstream.URL)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/show", strings.NewReader(`{"model":"nope"}`)))

	if rec.Code != http.StatusNotFound || rec.Body.String() != notFound {
		t.Errorf("relayed %d %q", rec.Code, rec.Body.String())
	}

	r := assertSingleRecord(t, recorder, metrics)
	if r.Status != analytics.StatusError {
		t.Errorf("Status = %q", r.Status)
	}
	if r.ErrorMessage == nil || *r.ErrorMessage != "upstream returned 404" {
		t.Errorf("ErrorMessage = %v", r.ErrorMessage)
	}
	if r.UpstreamStatus != http.StatusNotFound {
		t.Errorf("UpstreamStatus = %d", r.UpstreamStatus)
	}
}

func TestProxy_RedirectIsRelayed(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer upstream.Close()

	p, _, _ := newTestProxy(t, upstream.URL)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/elsewhere" {
		t.Errorf("got %d Location=%q", rec.Code, rec.Header().Get("Location"))
	}
}

var generateChunks = []string{
	`{"model":"llama3","response":"Go ","done":false}` + "\n",
	`{"model":"llama3","response":"channels ","done":false}` + "\n",
	`{"model":"llama3","response":"rock","done":false}` + "\n",
	`{"model":"llama3","response":"","done":true,"eval_count":3,"prompt_eval_count":11,"eval_duration":30000000,"load_duration":1000000}` + "\n",
}

func streamingUpstream(chunks []string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for _, c := range chunks {
			w.Write([]byte(c))
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	}))
}

func TestProxy_StreamingRelay(t *testing.T) {
	upstream := streamingUpstream(generateChunks)
	defer upstream.Close()

	p, recorder, _ := newTestProxy(t, upstream.URL)
	server := httptest.NewServer(p)
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/generate", "application/json",
		strings.NewReader(`{"model":"llama3","prompt":"Explain channels"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Content-Type") != "application/x-ndjson" {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}

	// Each line must arrive before upstream has finished.
	reader := bufio.NewReader(resp.Body)
	first, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if first != generateChunks[0] {
		t.Errorf("first chunk = %q", first)
	}
	rest, _ := io.ReadAll(reader)
	if got, want := first+string(rest), strings.Join(generateChunks, ""); got != want {
		t.Errorf("relayed stream differs:\n got %q\nwant %q", got, want)
	}

	r := recorder.wait(t, 1)[0]
	if r.Status != analytics.StatusSuccess {
		t.Errorf("Status = %q", r.Status)
	}
	if r.TokensGenerated != 3 || r.PromptTokens != 11 {
		t.Errorf("tokens = %d/%d, want 3/11", r.TokensGenerated, r.PromptTokens)
	}
	if r.ResponsePreview != "Go channels rock" {
		t.Errorf("ResponsePreview = %q", r.ResponsePreview)
	}
	if r.PromptCategory != "explain" {
		t.Errorf("PromptCategory = %q", r.PromptCategory)
	}
	if r.TimeToFirstTokenSeconds <= 0 || r.TimeToFirstTokenSeconds > r.DurationSeconds {
		t.Errorf("TimeToFirstTokenSeconds = %v, duration %v", r.TimeToFirstTokenSeconds, r.DurationSeconds)
	}
	want := float64(r.TokensGenerated) / r.DurationSeconds
	if r.TokensPerSecond() != want {
		t.Errorf("TokensPerSecond() = %v, want %v", r.TokensPerSecond(), want)
	}
}

func TestProxy_StreamInterrupted(t *testing.T) {
	const partial = `{"model":"llama3","response":"half"`
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, buf, err := w.(http.Hijacker).Hijack()
		if err != nil {
			return
		}
		defer conn.Close()
		fmt.Fprintf(buf, "HTTP/1.1 200 OK\r\nContent-Type: application/x-ndjson\r\nTransfer-Encoding: chunked\r\n\r\n")
		fmt.Fprintf(buf, "%x\r\n%s\r\n", len(partial), partial)
		buf.Flush()
	}))
	defer upstream.Close()

	p, recorder, metrics := newTestProxy(t, upstream.URL)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"model":"llama3","prompt":"x"}`)))

	body := rec.Body.String()
	if !strings.HasPrefix(body, partial+"\n") {
		t.Fatalf("already relayed bytes lost: %q", body)
	}
	var sentinel ErrorResponse
	if err := json.Unmarshal([]byte(strings.TrimPrefix(body, partial+"\n")), &sentinel); err != nil || sentinel.Error == "" {
		t.Errorf("final chunk is not an error sentinel: %q", body)
	}

	r := assertSingleRecord(t, recorder, metrics)
	if r.Status != analytics.StatusError || r.ErrorMessage == nil {
		t.Errorf("Status = %q, ErrorMessage = %v", r.Status, r.ErrorMessage)
	}
}

func TestProxy_ClientCancelsStream(t *testing.T) {
	released := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(released)
		w.Write([]byte(generateChunks[0]))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer upstream.Close()

	p, recorder, _ := newTestProxy(t, upstream.URL)
	server := httptest.NewServer(p)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, server.URL+"/api/chat",
		strings.NewReader(`{"model":"llama3","messages":[{"role":"user","content":"hello"}]}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bufio.NewReader(resp.Body).ReadString('\n'); err != nil {
		t.Fatal(err)
	}
	cancel()
	resp.Body.Close()

	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream request was not cancelled")
	}

	r := recorder.wait(t, 1)[0]
	if r.Status != analytics.StatusError {
		t.Errorf("Status = %q, want error", r.Status)
	}
	if r.Endpoint != "chat" || r.Model != "llama3" {
		t.Errorf("Endpoint, Model = %q, %q", r.Endpoint, r.Model)
	}
	if len(recorder.snapshot()) != 1 {
		t.Errorf("recorded %d interactions", len(recorder.snapshot()))
	}
}

func TestProxy_ConcurrentRequestsRecordOnce(t *testing.T) {
	upstream := streamingUpstream(generateChunks)
	defer upstream.Close()

	p, recorder, metrics := newTestProxy(t, upstream.URL)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"model":"llama3","prompt":"summarize item %d"}`, i)
			rec := httptest.NewRecorder()
			p.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewReader([]byte(body))))
		}(i)
	}
	wg.Wait()

	records := recorder.snapshot()
	if len(records) != n {
		t.Fatalf("recorded %d interactions, want %d", len(records), n)
	}
	ids := make(map[string]bool, n)
	for _, r := range records {
		if ids[r.ID] {
			t.Errorf("duplicate ID %s", r.ID)
		}
		ids[r.ID] = true
		if r.PromptCategory != "summarize" {
			t.Errorf("PromptCategory = %q", r.PromptCategory)
		}
	}
	if metrics.observed != n || metrics.active != 0 {
		t.Errorf("observed %d, active %d", metrics.observed, metrics.active)
	}
}

func TestProxy_PromptTruncated(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	p, recorder, _ := newTestProxy(t, upstream.URL)
	p.promptMax = 10

	body := `{"model":"llama3","prompt":"` + strings.Repeat("a", 50) + `","stream":false}`
	p.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/embed", strings.NewReader(body)))

	if got := recorder.snapshot()[0].PromptText; got != strings.Repeat("a", 10) {
		t.Errorf("PromptText = %q", got)
	}
}

func TestNew_InvalidUpstream(t *testing.T) {
	for _, u := range []string{"", "localhost:11435", "://bad"} {
		cfg := config.Default()
		cfg.Upstream.URL = u
		if _, err := New(cfg); err == nil {
			t.Errorf("New(%q) succeeded", u)
		}
	}
}
