package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/categorizer"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/config"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/telemetry/logging"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/telemetry/tracing"
)

const relayBufferSize = 32 * 1024

// Categorizer maps prompts to bounded category labels.
type Categorizer interface {
	Categorize(prompt string) string
}

// Metrics receives the aggregate observations for each request.
type Metrics interface {
	ActiveInc()
	ActiveDec()
	ObserveRecord(r *analytics.InteractionRecord)
}

// Recorder takes ownership of finalized interaction records.
type Recorder interface {
	Enqueue(r *analytics.InteractionRecord) bool
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithCategorizer sets the prompt categorizer.
func WithCategorizer(c Categorizer) Option {
	return func(p *Proxy) { p.categorizer = c }
}

// WithMetrics sets the metrics aggregator.
func WithMetrics(m Metrics) Option {
	return func(p *Proxy) { p.metrics = m }
}

// WithRecorder sets the analytics sink.
func WithRecorder(r Recorder) Option {
	return func(p *Proxy) { p.recorder = r }
}

// WithTracer sets the tracer used for per-request spans.
func WithTracer(t *tracing.Tracer) Option {
	return func(p *Proxy) { p.tracer = t }
}

// WithTransport replaces the upstream round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Proxy) { p.client.Transport = rt }
}

// Proxy forwards requests to the upstream daemon, relaying responses
// unchanged, and emits exactly one interaction record per request.
type Proxy struct {
	target     *url.URL
	client     *http.Client
	promptMax  int
	previewMax int

	categorizer Categorizer
	metrics     Metrics
	recorder    Recorder
	tracer      *tracing.Tracer
	logger      *slog.Logger
}

// New creates a Proxy for the configured upstream.
func New(cfg *config.Config, opts ...Option) (*Proxy, error) {
	target, err := url.Parse(cfg.Upstream.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url %q: %w", cfg.Upstream.URL, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q: scheme and host are required", cfg.Upstream.URL)
	}

	p := &Proxy{
		target: target,
		client: &http.Client{
			Transport: newTransport(&cfg.Upstream),
			// Redirects are relayed to the caller, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		promptMax:   cfg.Analytics.PromptMaxLength,
		previewMax:  cfg.Analytics.PreviewMaxLength,
		categorizer: categorizer.New(),
		metrics:     nopMetrics{},
		recorder:    nopRecorder{},
		logger:      slog.Default().With("component", "proxy"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracer == nil {
		p.tracer, _ = tracing.New(&config.TracingConfig{}, "")
	}

	return p, nil
}

func newTransport(cfg *config.UpstreamConfig) *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,
		// Bodies are relayed byte for byte, so never negotiate or decode
		// compression on the caller's behalf.
		DisableCompression: true,
	}
}

// Target returns the upstream base URL.
func (p *Proxy) Target() *url.URL {
	return p.target
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var body []byte
	var bodyErr error
	if r.Body != nil {
		body, bodyErr = io.ReadAll(r.Body)
	}

	meta := ParseRequestMetadata(r.URL.Path, body)
	record := &analytics.InteractionRecord{
		ID:             uuid.NewString(),
		Timestamp:      start,
		Model:          meta.Model,
		Endpoint:       meta.Endpoint,
		PromptCategory: p.categorizer.Categorize(meta.Prompt),
		PromptText:     analytics.TruncateString(meta.Prompt, p.promptMax),
		Status:         analytics.StatusStarted,
		Metadata: map[string]any{
			"client_ip":  clientIP(r),
			"user_agent": r.UserAgent(),
			"method":     r.Method,
			"path":       r.URL.Path,
		},
	}
	if id := logging.GetRequestID(r.Context()); id != "" {
		record.Metadata["request_id"] = id
	}

	streaming := ShouldStream(r.Method, meta)

	ctx := logging.WithInteractionID(r.Context(), record.ID)
	ctx = logging.WithModel(ctx, record.Model)
	ctx, span := p.tracer.Start(ctx, "proxy "+record.Endpoint,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(tracing.RequestAttributes(
			record.ID, logging.GetRequestID(ctx), record.Model, record.Endpoint, streaming)...),
	)
	if traceID := tracing.TraceID(ctx); traceID != "" {
		ctx = logging.WithTraceID(ctx, traceID)
	}

	p.metrics.ActiveInc()
	defer func() {
		p.metrics.ActiveDec()
		if rec := recover(); rec != nil {
			record.SetError(fmt.Sprintf("panic: %v", rec))
			p.finalize(ctx, record, span)
			panic(rec)
		}
		p.finalize(ctx, record, span)
	}()

	p.logger.DebugContext(ctx, "proxying request",
		"method", r.Method,
		"endpoint", record.Endpoint,
		"category", record.PromptCategory,
		"streaming", streaming,
		"prompt", logging.PromptPreview(meta.Prompt),
	)

	if bodyErr != nil {
		p.fail(ctx, w, record, NewUpstreamError("read request body", bodyErr))
		return
	}

	out, err := newUpstreamRequest(ctx, p.target, r, body)
	if err != nil {
		p.fail(ctx, w, record, NewUpstreamError("build request", err))
		return
	}
	tracing.Inject(ctx, out.Header)

	resp, err := p.client.Do(out)
	if err != nil {
		p.fail(ctx, w, record, NewUpstreamError("request", err))
		return
	}
	defer resp.Body.Close()

	record.UpstreamStatus = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		record.SetError(fmt.Sprintf("upstream returned %d", resp.StatusCode))
	}

	if streaming {
		p.relayStream(ctx, w, resp, record, start)
		return
	}
	p.relayBuffered(ctx, w, resp, record)
}

// fail answers with a 500 JSON envelope and marks the record failed.
func (p *Proxy) fail(ctx context.Context, w http.ResponseWriter, record *analytics.InteractionRecord, err error) {
	record.SetError(err.Error())
	p.logger.ErrorContext(ctx, "upstream unavailable",
		"endpoint", record.Endpoint,
		"error", err,
	)
	if werr := WriteErrorResponse(w, http.StatusInternalServerError, err.Error()); werr != nil {
		p.logger.DebugContext(ctx, "failed to write error response", "error", werr)
	}
}

// relayStream passes each upstream chunk to the caller as it arrives and
// feeds a copy to the accumulator.
func (p *Proxy) relayStream(ctx context.Context, w http.ResponseWriter, resp *http.Response, record *analytics.InteractionRecord, start time.Time) {
	rc := http.NewResponseController(w)
	// Generation can outlast the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_ = rc.Flush()

	acc := NewResponseAccumulator(p.previewMax)
	defer func() { applyStats(record, acc.Stats()) }()

	buf := make([]byte, relayBufferSize)
	first := true
	lastByte := byte('\n')
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if first {
				record.TimeToFirstTokenSeconds = time.Since(start).Seconds()
				first = false
			}
			if _, err := w.Write(buf[:n]); err != nil {
				record.SetError("client disconnected: " + err.Error())
				p.logger.WarnContext(ctx, "client disconnected during streaming", "error", err)
				return
			}
			_ = rc.Flush()
			lastByte = buf[n-1]
			acc.Write(buf[:n])
		}

		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			return
		}
		if ctx.Err() != nil {
			record.SetError("client disconnected: " + ctx.Err().Error())
			p.logger.WarnContext(ctx, "client disconnected during streaming", "error", ctx.Err())
			return
		}

		err := NewUpstreamError("stream", readErr)
		record.SetError(err.Error())
		p.logger.ErrorContext(ctx, "upstream stream interrupted", "error", err)

		sentinel := errorSentinel(err.Error())
		if lastByte != '\n' {
			sentinel = append([]byte{'\n'}, sentinel...)
		}
		if _, werr := w.Write(sentinel); werr == nil {
			_ = rc.Flush()
		}
		return
	}
}

// relayBuffered reads the whole upstream response before answering.
func (p *Proxy) relayBuffered(ctx context.Context, w http.ResponseWriter, resp *http.Response, record *analytics.InteractionRecord) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		record.UpstreamStatus = 0
		p.fail(ctx, w, record, NewUpstreamError("read response", err))
		return
	}

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(body); err != nil {
		p.logger.WarnContext(ctx, "failed to write response", "error", err)
	}

	applyStats(record, ParseResponseBody(body, p.previewMax))
}

func applyStats(record *analytics.InteractionRecord, stats ResponseStats) {
	record.TokensGenerated = stats.TokensGenerated
	record.PromptTokens = stats.PromptTokens
	record.EvalDurationSeconds = stats.EvalDurationSeconds
	record.LoadDurationSeconds = stats.LoadDurationSeconds
	record.ResponsePreview = stats.Preview
}

// finalize completes the record and hands it off. It runs exactly once per
// request; the record must not be touched after Enqueue.
func (p *Proxy) finalize(ctx context.Context, record *analytics.InteractionRecord, span trace.Span) {
	record.DurationSeconds = time.Since(record.Timestamp).Seconds()
	if record.Status == analytics.StatusStarted {
		record.Status = analytics.StatusSuccess
	}

	p.metrics.ObserveRecord(record)

	tracing.SetRecordAttributes(span, record)
	if record.ErrorMessage != nil {
		tracing.SetStatus(span, errors.New(*record.ErrorMessage))
	} else {
		tracing.SetStatus(span, nil)
	}
	span.End()

	p.logger.InfoContext(ctx, "request completed",
		"endpoint", record.Endpoint,
		"category", record.PromptCategory,
		"status", string(record.Status),
		"upstream_status", record.UpstreamStatus,
		"duration_ms", int64(record.DurationSeconds*1000),
		"tokens_generated", record.TokensGenerated,
		"tokens_per_second", record.TokensPerSecond(),
	)

	if !p.recorder.Enqueue(record) {
		p.logger.DebugContext(ctx, "interaction record dropped")
	}
}

type nopMetrics struct{}

func (nopMetrics) ActiveInc()                                 {}
func (nopMetrics) ActiveDec()                                 {}
func (nopMetrics) ObserveRecord(*analytics.InteractionRecord) {}

type nopRecorder struct{}

func (nopRecorder) Enqueue(*analytics.InteractionRecord) bool { return true }
