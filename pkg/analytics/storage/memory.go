package storage

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
)

// MemoryStorage is an in-memory backend intended for tests and ephemeral
// deployments. It is thread-safe and loses all data on restart.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string]*analytics.InteractionRecord
	logger  *slog.Logger
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]*analytics.InteractionRecord),
		logger:  slog.Default().With("component", "analytics.storage.memory"),
	}
}

// Name implements analytics.Backend.
func (m *MemoryStorage) Name() string {
	return "memory"
}

// Write stores a copy of the record.
func (m *MemoryStorage) Write(ctx context.Context, r *analytics.InteractionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[r.ID] = copyRecord(r)
	return nil
}

// Search returns copies of the records matching q, newest first.
func (m *MemoryStorage) Search(ctx context.Context, q *analytics.Query) ([]*analytics.InteractionRecord, error) {
	matched := m.matching(q)

	offset, limit := 0, 100
	if q != nil {
		offset = q.Offset
		if q.Limit > 0 {
			limit = q.Limit
		}
	}

	if offset >= len(matched) {
		return []*analytics.InteractionRecord{}, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Count returns the number of records matching q.
func (m *MemoryStorage) Count(ctx context.Context, q *analytics.Query) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, r := range m.records {
		if q.Matches(r) {
			count++
		}
	}
	return count, nil
}

// Get returns a copy of the record with the given id.
func (m *MemoryStorage) Get(ctx context.Context, id string) (*analytics.InteractionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, analytics.ErrNotFound
	}
	return copyRecord(r), nil
}

// Models returns per-model usage, busiest first.
func (m *MemoryStorage) Models(ctx context.Context) ([]analytics.ModelUsage, error) {
	return modelUsage(m.matching(nil), 0), nil
}

// Summary aggregates records with a timestamp at or after since.
func (m *MemoryStorage) Summary(ctx context.Context, since time.Time) (*analytics.Summary, error) {
	return summarize(m.matching(&analytics.Query{StartTime: &since}), since), nil
}

// Cleanup removes records older than cutoff.
func (m *MemoryStorage) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, r := range m.records {
		if r.Timestamp.Before(cutoff) {
			delete(m.records, id)
			deleted++
		}
	}

	if deleted > 0 {
		m.logger.Info("deleted expired interactions", "count", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

// Close clears the store.
func (m *MemoryStorage) Close() error {
	m.Clear()
	return nil
}

// Clear removes all records.
func (m *MemoryStorage) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*analytics.InteractionRecord)
}

// Size returns the number of stored records.
func (m *MemoryStorage) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// matching returns copies of every record that satisfies q, newest first.
func (m *MemoryStorage) matching(q *analytics.Query) []*analytics.InteractionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*analytics.InteractionRecord, 0, len(m.records))
	for _, r := range m.records {
		if q.Matches(r) {
			out = append(out, copyRecord(r))
		}
	}
	sortNewestFirst(out)
	return out
}

func sortNewestFirst(records []*analytics.InteractionRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].ID > records[j].ID
		}
		return records[i].Timestamp.After(records[j].Timestamp)
	})
}

func copyRecord(r *analytics.InteractionRecord) *analytics.InteractionRecord {
	c := *r
	if r.ErrorMessage != nil {
		msg := *r.ErrorMessage
		c.ErrorMessage = &msg
	}
	if r.Metadata != nil {
		c.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
