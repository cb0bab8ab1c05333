package writer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics/storage"
)

// recordingBackend records writes and optionally blocks each write until
// released.
type recordingBackend struct {
	mu       sync.Mutex
	records  []*analytics.InteractionRecord
	started  chan struct{}
	release  chan struct{}
	failNext bool
	closed   bool

	active    atomic.Int32
	maxActive atomic.Int32
}

func (b *recordingBackend) Name() string { return "recording" }

func (b *recordingBackend) Write(ctx context.Context, r *analytics.InteractionRecord) error {
	n := b.active.Add(1)
	defer b.active.Add(-1)
	for {
		m := b.maxActive.Load()
		if n <= m || b.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	if b.started != nil {
		select {
		case b.started <- struct{}{}:
		default:
		}
	}
	if b.release != nil {
		<-b.release
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext {
		b.failNext = false
		return errors.New("disk full")
	}
	b.records = append(b.records, r)
	return nil
}

func (b *recordingBackend) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var kept []*analytics.InteractionRecord
	var deleted int64
	for _, r := range b.records {
		if r.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	b.records = kept
	return deleted, nil
}

func (b *recordingBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *recordingBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

type countingObserver struct {
	depth  atomic.Int64
	writes atomic.Int64
	errors atomic.Int64
	drops  atomic.Int64
}

func (o *countingObserver) QueueDepth(n int) { o.depth.Store(int64(n)) }

func (o *countingObserver) RecordWrite(backend string, err error) {
	if err != nil {
		o.errors.Add(1)
		return
	}
	o.writes.Add(1)
}

func (o *countingObserver) RecordDrop() { o.drops.Add(1) }

func newRecord(i int) *analytics.InteractionRecord {
	return &analytics.InteractionRecord{
		ID:        fmt.Sprintf("rec-%d", i),
		Timestamp: time.Now(),
		Model:     "llama3",
		Status:    analytics.StatusSuccess,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWriter_DrainsOnClose(t *testing.T) {
	backend := &recordingBackend{}
	w := New(backend, &Config{QueueSize: 100})

	for i := 0; i < 50; i++ {
		if !w.Enqueue(newRecord(i)) {
			t.Fatalf("Enqueue(%d) rejected", i)
		}
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := backend.count(); got != 50 {
		t.Errorf("backend has %d records after Close, want 50", got)
	}
	if !backend.closed {
		t.Error("backend was not closed")
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestWriter_QueueFullDropsWithoutBlocking(t *testing.T) {
	backend := &recordingBackend{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	obs := &countingObserver{}
	const capacity = 4
	w := New(backend, &Config{QueueSize: capacity}, WithObserver(obs))

	// The worker takes the first record and blocks inside Write.
	w.Enqueue(newRecord(0))
	<-backend.started

	for i := 1; i <= capacity; i++ {
		if !w.Enqueue(newRecord(i)) {
			t.Fatalf("Enqueue(%d) rejected before queue was full", i)
		}
	}

	start := time.Now()
	for i := 0; i < 10; i++ {
		if w.Enqueue(newRecord(100 + i)) {
			t.Fatal("Enqueue accepted a record on a full queue")
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Enqueue on a full queue took %v", elapsed)
	}

	stats := w.Stats()
	if stats.Dropped != 10 || obs.drops.Load() != 10 {
		t.Errorf("dropped = %d (observer %d), want 10", stats.Dropped, obs.drops.Load())
	}
	if stats.QueueSize != capacity || stats.QueueCapacity != capacity {
		t.Errorf("queue = %d/%d, want %d/%d", stats.QueueSize, stats.QueueCapacity, capacity, capacity)
	}

	close(backend.release)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if got := backend.count(); got != capacity+1 {
		t.Errorf("backend has %d records, want %d", got, capacity+1)
	}
}

func TestWriter_SingleConsumer(t *testing.T) {
	backend := &recordingBackend{}
	w := New(backend, &Config{QueueSize: 1000})

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				w.Enqueue(newRecord(p*1000 + i))
			}
		}(p)
	}
	wg.Wait()
	w.Close()

	if got := backend.maxActive.Load(); got != 1 {
		t.Errorf("max concurrent backend writes = %d, want 1", got)
	}
	if got := backend.count(); got != 400 {
		t.Errorf("backend has %d records, want 400", got)
	}
}

func TestWriter_WriteErrorsAreCounted(t *testing.T) {
	backend := &recordingBackend{failNext: true}
	obs := &countingObserver{}
	w := New(backend, nil, WithObserver(obs))

	w.Enqueue(newRecord(1))
	w.Enqueue(newRecord(2))
	w.Close()

	stats := w.Stats()
	if stats.WriteErrors != 1 || stats.Written != 1 {
		t.Errorf("write errors = %d, written = %d", stats.WriteErrors, stats.Written)
	}
	if obs.errors.Load() != 1 || obs.writes.Load() != 1 {
		t.Errorf("observer errors = %d, writes = %d", obs.errors.Load(), obs.writes.Load())
	}
}

func TestWriter_EnqueueAfterClose(t *testing.T) {
	w := New(&recordingBackend{}, nil)
	w.Close()

	if w.Enqueue(newRecord(1)) {
		t.Error("Enqueue accepted a record after Close")
	}
	if err := w.Check(context.Background()); !errors.Is(err, analytics.ErrWriterClosed) {
		t.Errorf("Check() = %v, want ErrWriterClosed", err)
	}
	if _, err := w.Cleanup(context.Background(), time.Now()); !errors.Is(err, analytics.ErrWriterClosed) {
		t.Errorf("Cleanup() after close = %v, want ErrWriterClosed", err)
	}
}

func TestWriter_EnqueueRacingClose(t *testing.T) {
	const producers, perProducer = 8, 200

	for round := 0; round < 20; round++ {
		backend := &recordingBackend{}
		w := New(backend, &Config{QueueSize: producers * perProducer})

		var accepted atomic.Int64
		var wg sync.WaitGroup
		start := make(chan struct{})
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				<-start
				for i := 0; i < perProducer; i++ {
					if w.Enqueue(newRecord(p*perProducer + i)) {
						accepted.Add(1)
					}
				}
			}(p)
		}

		close(start)
		if err := w.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		wg.Wait()

		stats := w.Stats()
		if got := int64(backend.count()); got != accepted.Load() {
			t.Fatalf("round %d: written %d, accepted %d", round, got, accepted.Load())
		}
		if got := accepted.Load() + stats.Dropped; got != producers*perProducer {
			t.Fatalf("round %d: accepted+dropped = %d, want %d", round, got, producers*perProducer)
		}
	}
}

func TestWriter_CapabilityError(t *testing.T) {
	dir := t.TempDir()
	backend, err := storage.NewJSONLStorage(dir)
	if err != nil {
		t.Fatal(err)
	}
	w := New(backend, nil)
	defer w.Close()

	if w.Searchable() {
		t.Error("jsonl backend reported searchable")
	}

	_, err = w.Search(context.Background(), &analytics.Query{})
	if !analytics.IsCapabilityError(err) {
		t.Fatalf("Search() error = %v, want CapabilityError", err)
	}
	if !errors.Is(err, analytics.ErrSearchUnsupported) {
		t.Error("CapabilityError does not wrap ErrSearchUnsupported")
	}
	if err.Error() != "search not available with jsonl backend" {
		t.Errorf("error message = %q", err.Error())
	}

	if _, err := w.Get(context.Background(), "x"); !analytics.IsCapabilityError(err) {
		t.Errorf("Get() error = %v", err)
	}
	if _, err := w.Models(context.Background()); !analytics.IsCapabilityError(err) {
		t.Errorf("Models() error = %v", err)
	}
}

func TestWriter_RoundTripSQLite(t *testing.T) {
	cfg := storage.DefaultSQLiteConfig()
	cfg.Path = filepath.Join(t.TempDir(), "analytics.db")
	backend, err := storage.NewSQLiteStorage(cfg)
	if err != nil {
		t.Fatal(err)
	}
	w := New(backend, nil)
	defer w.Close()
	ctx := context.Background()

	now := time.Now().UTC()
	rec := &analytics.InteractionRecord{
		ID:              "round-trip",
		Timestamp:       now,
		Model:           "llama3",
		Endpoint:        "generate",
		PromptCategory:  "explanation",
		DurationSeconds: 1,
		TokensGenerated: 10,
		Status:          analytics.StatusSuccess,
	}
	w.Enqueue(rec)
	waitFor(t, func() bool { return w.Stats().Written == 1 })

	start, end := now.Add(-time.Minute), now.Add(time.Minute)
	got, err := w.Search(ctx, &analytics.Query{Model: "llama3", StartTime: &start, EndTime: &end})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "round-trip" {
		t.Fatalf("Search() = %v, want the enqueued record", got)
	}

	got, err = w.Search(ctx, &analytics.Query{Model: "mistral"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("non-matching Search() returned %d records", len(got))
	}
}

func TestWriter_CleanupRunsOnWorker(t *testing.T) {
	backend := &recordingBackend{}
	w := New(backend, nil)
	defer w.Close()

	old := newRecord(1)
	old.Timestamp = time.Now().AddDate(0, 0, -10)
	w.Enqueue(old)
	w.Enqueue(newRecord(2))

	// Cleanup is serialized behind the queued writes.
	deleted, err := w.Cleanup(context.Background(), time.Now().AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("Cleanup() deleted %d, want 1", deleted)
	}
	if backend.count() != 1 {
		t.Errorf("backend has %d records, want 1", backend.count())
	}
	if w.Stats().Cleanups != 1 {
		t.Errorf("Cleanups = %d, want 1", w.Stats().Cleanups)
	}
}
