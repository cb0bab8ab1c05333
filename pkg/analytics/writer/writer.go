package writer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
)

// Config contains configuration for the analytics writer.
type Config struct {
	// QueueSize is the capacity of the record queue.
	// Default: 1000
	QueueSize int

	// WriteTimeout bounds a single backend write.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default writer configuration.
func DefaultConfig() *Config {
	return &Config{
		QueueSize:    1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Observer receives pipeline events. Implementations must not block.
type Observer interface {
	// QueueDepth reports the current number of queued records.
	QueueDepth(n int)

	// RecordWrite reports the outcome of one backend write.
	RecordWrite(backend string, err error)

	// RecordDrop reports one record dropped on a full or closed queue.
	RecordDrop()
}

// Option configures a Writer.
type Option func(*Writer)

// WithObserver registers an observer for pipeline events.
func WithObserver(o Observer) Option {
	return func(w *Writer) {
		w.observer = o
	}
}

// Stats is a point-in-time snapshot of the pipeline counters.
type Stats struct {
	Backend       string `json:"backend"`
	QueueSize     int    `json:"queue_size"`
	QueueCapacity int    `json:"queue_capacity"`
	Dropped       int64  `json:"dropped"`
	Written       int64  `json:"written"`
	WriteErrors   int64  `json:"write_errors"`
	Cleanups      int64  `json:"cleanups"`
}

type cleanupResult struct {
	deleted int64
	err     error
}

type cleanupRequest struct {
	ctx    context.Context
	cutoff time.Time
	reply  chan cleanupResult
}

// Writer is the single-consumer analytics pipeline.
type Writer struct {
	backend  analytics.Backend
	searcher analytics.Searcher
	config   *Config
	observer Observer
	logger   *slog.Logger

	records  chan *analytics.InteractionRecord
	cleanups chan cleanupRequest
	done     chan struct{}
	wg       sync.WaitGroup

	// sendMu orders queue sends before the close flag: Enqueue sends under
	// the read lock, Close sets the flag under the write lock.
	sendMu    sync.RWMutex
	closeOnce sync.Once
	closed    atomic.Bool

	dropped     atomic.Int64
	written     atomic.Int64
	writeErrors atomic.Int64
	cleanupRuns atomic.Int64
}

// New creates a writer for backend and starts its worker.
func New(backend analytics.Backend, config *Config, opts ...Option) *Writer {
	if config == nil {
		config = DefaultConfig()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}

	w := &Writer{
		backend:  backend,
		config:   config,
		observer: nopObserver{},
		logger:   slog.Default().With("component", "analytics.writer"),
		records:  make(chan *analytics.InteractionRecord, config.QueueSize),
		cleanups: make(chan cleanupRequest),
		done:     make(chan struct{}),
	}
	if s, ok := backend.(analytics.Searcher); ok {
		w.searcher = s
	}
	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(1)
	go w.worker()

	w.logger.Info("analytics writer initialized",
		"backend", backend.Name(),
		"queue_size", config.QueueSize,
		"write_timeout", config.WriteTimeout,
		"searchable", w.searcher != nil,
	)

	return w
}

// Backend returns the backend kind.
func (w *Writer) Backend() string {
	return w.backend.Name()
}

// Searchable reports whether the backend supports queries.
func (w *Writer) Searchable() bool {
	return w.searcher != nil
}

// Enqueue hands a finalized record to the pipeline and reports whether it
// was accepted. It never blocks: a full or closed queue drops the record.
// The caller must not touch the record afterwards.
func (w *Writer) Enqueue(record *analytics.InteractionRecord) bool {
	w.sendMu.RLock()
	if w.closed.Load() {
		w.sendMu.RUnlock()
		w.drop(record, analytics.ErrWriterClosed)
		return false
	}

	select {
	case w.records <- record:
		w.sendMu.RUnlock()
		w.observer.QueueDepth(len(w.records))
		return true
	default:
		w.sendMu.RUnlock()
		w.drop(record, analytics.ErrQueueFull)
		return false
	}
}

func (w *Writer) drop(record *analytics.InteractionRecord, reason error) {
	total := w.dropped.Add(1)
	w.observer.RecordDrop()
	w.logger.Warn("dropping analytics record",
		"record_id", record.ID,
		"reason", reason,
		"queue_capacity", w.config.QueueSize,
		"dropped_total", total,
	)
}

// Cleanup removes records older than cutoff. The deletion runs on the
// worker goroutine between writes.
func (w *Writer) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	req := cleanupRequest{
		ctx:    ctx,
		cutoff: cutoff,
		reply:  make(chan cleanupResult, 1),
	}

	select {
	case w.cleanups <- req:
	case <-w.done:
		return 0, analytics.NewWriterError("cleanup", analytics.ErrWriterClosed)
	case <-ctx.Done():
		return 0, analytics.NewWriterError("cleanup", ctx.Err())
	}

	select {
	case res := <-req.reply:
		return res.deleted, res.err
	case <-ctx.Done():
		return 0, analytics.NewWriterError("cleanup", ctx.Err())
	}
}

// Search returns records matching q, newest first.
func (w *Writer) Search(ctx context.Context, q *analytics.Query) ([]*analytics.InteractionRecord, error) {
	if w.searcher == nil {
		return nil, analytics.NewCapabilityError(w.backend.Name(), "search")
	}
	return w.searcher.Search(ctx, q)
}

// Count returns the number of records matching q.
func (w *Writer) Count(ctx context.Context, q *analytics.Query) (int64, error) {
	if w.searcher == nil {
		return 0, analytics.NewCapabilityError(w.backend.Name(), "search")
	}
	return w.searcher.Count(ctx, q)
}

// Get returns one record by id.
func (w *Writer) Get(ctx context.Context, id string) (*analytics.InteractionRecord, error) {
	if w.searcher == nil {
		return nil, analytics.NewCapabilityError(w.backend.Name(), "message lookup")
	}
	return w.searcher.Get(ctx, id)
}

// Models returns per-model usage.
func (w *Writer) Models(ctx context.Context) ([]analytics.ModelUsage, error) {
	if w.searcher == nil {
		return nil, analytics.NewCapabilityError(w.backend.Name(), "models")
	}
	return w.searcher.Models(ctx)
}

// Summary aggregates records since the given time.
func (w *Writer) Summary(ctx context.Context, since time.Time) (*analytics.Summary, error) {
	if w.searcher == nil {
		return nil, analytics.NewCapabilityError(w.backend.Name(), "summary")
	}
	return w.searcher.Summary(ctx, since)
}

// Stats returns a snapshot of the pipeline counters.
func (w *Writer) Stats() Stats {
	return Stats{
		Backend:       w.backend.Name(),
		QueueSize:     len(w.records),
		QueueCapacity: cap(w.records),
		Dropped:       w.dropped.Load(),
		Written:       w.written.Load(),
		WriteErrors:   w.writeErrors.Load(),
		Cleanups:      w.cleanupRuns.Load(),
	}
}

// Check reports whether the writer accepts records.
func (w *Writer) Check(ctx context.Context) error {
	if w.closed.Load() {
		return analytics.ErrWriterClosed
	}
	return nil
}

// Close stops accepting records, drains the queue into the backend and
// closes the backend.
func (w *Writer) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.logger.Info("shutting down analytics writer")

		w.sendMu.Lock()
		w.closed.Store(true)
		w.sendMu.Unlock()

		close(w.done)
		w.wg.Wait()

		if cerr := w.backend.Close(); cerr != nil {
			err = analytics.NewWriterError("close", cerr)
		}

		w.logger.Info("analytics writer shut down complete",
			"written", w.written.Load(),
			"dropped", w.dropped.Load(),
		)
	})
	return err
}

// worker is the only goroutine that calls backend Write and Cleanup.
func (w *Writer) worker() {
	defer w.wg.Done()

	for {
		select {
		case record := <-w.records:
			w.writeRecord(record)

		case req := <-w.cleanups:
			w.runCleanup(req)

		case <-w.done:
			w.logger.Info("draining analytics queue before shutdown",
				"pending_count", len(w.records),
			)

			for {
				select {
				case record := <-w.records:
					w.writeRecord(record)
				default:
					w.logger.Info("analytics queue drained")
					return
				}
			}
		}
	}
}

func (w *Writer) writeRecord(record *analytics.InteractionRecord) {
	w.observer.QueueDepth(len(w.records))

	ctx, cancel := context.WithTimeout(context.Background(), w.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	err := w.backend.Write(ctx, record)
	w.observer.RecordWrite(w.backend.Name(), err)

	if err != nil {
		w.writeErrors.Add(1)
		w.logger.Error("failed to write analytics record",
			"record_id", record.ID,
			"backend", w.backend.Name(),
			"error", err,
		)
		return
	}
	w.written.Add(1)

	duration := time.Since(start)
	w.logger.Debug("analytics record written",
		"record_id", record.ID,
		"model", record.Model,
		"status", record.Status,
		"duration_ms", duration.Milliseconds(),
	)

	if duration > w.config.WriteTimeout/2 {
		w.logger.Warn("slow analytics write",
			"record_id", record.ID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (w.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}

// runCleanup first writes the records queued before the request so a
// cleanup never races records that were accepted ahead of it.
func (w *Writer) runCleanup(req cleanupRequest) {
	for n := len(w.records); n > 0; n-- {
		w.writeRecord(<-w.records)
	}

	deleted, err := w.backend.Cleanup(req.ctx, req.cutoff)
	w.cleanupRuns.Add(1)
	if err != nil {
		err = analytics.NewWriterError("cleanup", err)
	}
	req.reply <- cleanupResult{deleted: deleted, err: err}
}

type nopObserver struct{}

func (nopObserver) QueueDepth(int)            {}
func (nopObserver) RecordWrite(string, error) {}
func (nopObserver) RecordDrop()               {}
