package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
)

const (
	// DriverModernc is the pure-Go driver registered by modernc.org/sqlite.
	DriverModernc = "sqlite"

	// DriverCGO is the cgo driver registered by github.com/mattn/go-sqlite3.
	DriverCGO = "sqlite3"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver is the database/sql driver name, DriverModernc or DriverCGO.
	// Default: DriverModernc
	Driver string

	// MaxOpenConns is the maximum number of open connections. Writes come
	// from a single goroutine; the extra connections serve searches.
	// Default: 4
	MaxOpenConns int

	// WALMode enables Write-Ahead Logging so searches do not block writes.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "ollama_analytics/ollama_analytics.db",
		Driver:       DriverModernc,
		MaxOpenConns: 4,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage is the indexed analytics backend. Records live in one table
// keyed by id with secondary indexes on timestamp, model and category.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens (creating if needed) the database and applies the
// schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverModernc
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 4
	}

	logger := slog.Default().With("component", "analytics.storage.sqlite")

	if dir := filepath.Dir(config.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, analytics.NewStorageError("sqlite", "open", err)
		}
	}

	dsn, err := sqliteDSN(config)
	if err != nil {
		return nil, analytics.NewStorageError("sqlite", "open", err)
	}

	db, err := sql.Open(config.Driver, dsn)
	if err != nil {
		return nil, analytics.NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxOpenConns)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

// sqliteDSN encodes the pragmas in the connection string so every pooled
// connection gets them, not just the first one.
func sqliteDSN(config *SQLiteConfig) (string, error) {
	busy := config.BusyTimeout.Milliseconds()
	params := url.Values{}

	switch config.Driver {
	case DriverModernc:
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy))
		if config.WALMode {
			params.Add("_pragma", "journal_mode(WAL)")
		}
	case DriverCGO:
		params.Set("_busy_timeout", fmt.Sprintf("%d", busy))
		if config.WALMode {
			params.Set("_journal_mode", "WAL")
		}
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", config.Driver)
	}

	return "file:" + config.Path + "?" + params.Encode(), nil
}

func (s *SQLiteStorage) initialize() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return analytics.NewStorageError("sqlite", "create_schema", err)
	}
	s.logger.Debug("database schema created")

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return analytics.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return analytics.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return analytics.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// Name implements analytics.Backend.
func (s *SQLiteStorage) Name() string {
	return "sqlite"
}

// Write persists a record. Writing the same id twice replaces the row.
func (s *SQLiteStorage) Write(ctx context.Context, r *analytics.InteractionRecord) error {
	var metadata any
	if len(r.Metadata) > 0 {
		data, err := json.Marshal(r.Metadata)
		if err != nil {
			return analytics.NewStorageError("sqlite", "write", err)
		}
		metadata = string(data)
	}

	var errMsg any
	if r.ErrorMessage != nil {
		errMsg = *r.ErrorMessage
	}

	_, err := s.db.ExecContext(ctx, insertInteraction,
		r.ID, r.Timestamp.UnixNano(), r.Model, r.Endpoint, r.PromptCategory, r.PromptText, r.ResponsePreview,
		r.DurationSeconds, r.TokensGenerated, r.PromptTokens, r.TokensPerSecond(),
		r.EvalDurationSeconds, r.LoadDurationSeconds, r.TimeToFirstTokenSeconds,
		r.UpstreamStatus, string(r.Status), errMsg, metadata,
	)
	if err != nil {
		return analytics.NewStorageError("sqlite", "write", err)
	}
	return nil
}

// Search returns records matching q, newest first.
func (s *SQLiteStorage) Search(ctx context.Context, q *analytics.Query) ([]*analytics.InteractionRecord, error) {
	if q == nil {
		q = &analytics.Query{}
	}

	where, args := buildWhereClause(q)
	query := "SELECT " + selectColumns + " FROM interactions"
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY timestamp DESC"

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d", limit)
	if q.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, analytics.NewStorageError("sqlite", "search", err)
	}
	defer rows.Close()

	records := []*analytics.InteractionRecord{}
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, analytics.NewStorageError("sqlite", "scan", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, analytics.NewStorageError("sqlite", "search", err)
	}

	return records, nil
}

// Count returns the number of records matching q, ignoring pagination.
func (s *SQLiteStorage) Count(ctx context.Context, q *analytics.Query) (int64, error) {
	if q == nil {
		q = &analytics.Query{}
	}

	where, args := buildWhereClause(q)
	query := "SELECT COUNT(*) FROM interactions"
	if where != "" {
		query += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, analytics.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Get returns the record with the given id.
func (s *SQLiteStorage) Get(ctx context.Context, id string) (*analytics.InteractionRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM interactions WHERE id = ?", id)
	r, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, analytics.ErrNotFound
	}
	if err != nil {
		return nil, analytics.NewStorageError("sqlite", "get", err)
	}
	return r, nil
}

// Models returns per-model usage, busiest first.
func (s *SQLiteStorage) Models(ctx context.Context) ([]analytics.ModelUsage, error) {
	return s.modelUsage(ctx, `
		SELECT model, COUNT(*), COALESCE(SUM(tokens_generated), 0), MAX(timestamp)
		FROM interactions
		GROUP BY model
		ORDER BY COUNT(*) DESC, model ASC`)
}

func (s *SQLiteStorage) modelUsage(ctx context.Context, query string, args ...any) ([]analytics.ModelUsage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, analytics.NewStorageError("sqlite", "models", err)
	}
	defer rows.Close()

	models := []analytics.ModelUsage{}
	for rows.Next() {
		var m analytics.ModelUsage
		var lastSeen int64
		if err := rows.Scan(&m.Model, &m.Requests, &m.Tokens, &lastSeen); err != nil {
			return nil, analytics.NewStorageError("sqlite", "models", err)
		}
		m.LastSeen = time.Unix(0, lastSeen).UTC()
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, analytics.NewStorageError("sqlite", "models", err)
	}
	return models, nil
}

// Summary aggregates records with a timestamp at or after since.
func (s *SQLiteStorage) Summary(ctx context.Context, since time.Time) (*analytics.Summary, error) {
	sinceNs := since.UnixNano()
	sum := &analytics.Summary{Since: since}

	var avgLatency sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0),
			AVG(duration_seconds),
			COALESCE(SUM(tokens_generated), 0),
			COALESCE(SUM(`+costExpr+`), 0)
		FROM interactions
		WHERE timestamp >= ?`, sinceNs,
	).Scan(&sum.TotalRequests, &sum.SuccessCount, &sum.ErrorCount, &avgLatency, &sum.TotalTokens, &sum.TotalCost)
	if err != nil {
		return nil, analytics.NewStorageError("sqlite", "summary", err)
	}
	if sum.TotalRequests > 0 {
		sum.SuccessRate = float64(sum.SuccessCount) / float64(sum.TotalRequests) * 100
	}
	if avgLatency.Valid {
		sum.AvgLatencyMs = avgLatency.Float64 * 1000
	}

	sum.TopModels, err = s.modelUsage(ctx, `
		SELECT model, COUNT(*), COALESCE(SUM(tokens_generated), 0), MAX(timestamp)
		FROM interactions
		WHERE timestamp >= ?
		GROUP BY model
		ORDER BY COUNT(*) DESC, model ASC
		LIMIT 10`, sinceNs)
	if err != nil {
		return nil, err
	}

	sum.TopCategories, err = s.topCategories(ctx, sinceNs)
	if err != nil {
		return nil, err
	}

	sum.Hourly, err = s.hourly(ctx, sinceNs)
	if err != nil {
		return nil, err
	}

	return sum, nil
}

func (s *SQLiteStorage) topCategories(ctx context.Context, sinceNs int64) ([]analytics.CategoryUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT prompt_category, COUNT(*)
		FROM interactions
		WHERE timestamp >= ?
		GROUP BY prompt_category
		ORDER BY COUNT(*) DESC, prompt_category ASC
		LIMIT 10`, sinceNs)
	if err != nil {
		return nil, analytics.NewStorageError("sqlite", "summary", err)
	}
	defer rows.Close()

	categories := []analytics.CategoryUsage{}
	for rows.Next() {
		var c analytics.CategoryUsage
		if err := rows.Scan(&c.Category, &c.Requests); err != nil {
			return nil, analytics.NewStorageError("sqlite", "summary", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *SQLiteStorage) hourly(ctx context.Context, sinceNs int64) ([]analytics.HourlyBucket, error) {
	const hourNs = int64(time.Hour)

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			timestamp / ? AS hour,
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(tokens_generated), 0)
		FROM interactions
		WHERE timestamp >= ?
		GROUP BY hour
		ORDER BY hour ASC`, hourNs, sinceNs)
	if err != nil {
		return nil, analytics.NewStorageError("sqlite", "summary", err)
	}
	defer rows.Close()

	buckets := []analytics.HourlyBucket{}
	for rows.Next() {
		var b analytics.HourlyBucket
		var hour int64
		if err := rows.Scan(&hour, &b.Requests, &b.Errors, &b.Tokens); err != nil {
			return nil, analytics.NewStorageError("sqlite", "summary", err)
		}
		b.Hour = time.Unix(0, hour*hourNs).UTC()
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// Cleanup deletes every record with a timestamp before cutoff.
func (s *SQLiteStorage) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM interactions WHERE timestamp < ?", cutoff.UnixNano())
	if err != nil {
		return 0, analytics.NewStorageError("sqlite", "cleanup", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, analytics.NewStorageError("sqlite", "cleanup", err)
	}

	if deleted > 0 {
		s.logger.Info("deleted expired interactions", "count", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return analytics.NewStorageError("sqlite", "close", err)
	}
	return nil
}

// buildWhereClause translates q into a SQL predicate and its arguments.
func buildWhereClause(q *analytics.Query) (string, []any) {
	var conditions []string
	var args []any

	if q.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, q.StartTime.UnixNano())
	}
	if q.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, q.EndTime.UnixNano())
	}
	if q.Model != "" {
		conditions = append(conditions, "model = ?")
		args = append(args, q.Model)
	}
	if q.Endpoint != "" {
		conditions = append(conditions, "endpoint = ?")
		args = append(args, q.Endpoint)
	}
	if q.Category != "" {
		conditions = append(conditions, "prompt_category = ?")
		args = append(args, q.Category)
	}
	if q.PromptSearch != "" {
		conditions = append(conditions, `prompt_text LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(q.PromptSearch)+"%")
	}
	if q.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.MinTokens != nil {
		conditions = append(conditions, "tokens_generated >= ?")
		args = append(args, *q.MinTokens)
	}
	if q.MaxTokens != nil {
		conditions = append(conditions, "tokens_generated <= ?")
		args = append(args, *q.MaxTokens)
	}
	if q.MinLatency != nil {
		conditions = append(conditions, "duration_seconds >= ?")
		args = append(args, q.MinLatency.Seconds())
	}
	if q.MaxLatency != nil {
		conditions = append(conditions, "duration_seconds <= ?")
		args = append(args, q.MaxLatency.Seconds())
	}

	return strings.Join(conditions, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (*analytics.InteractionRecord, error) {
	var (
		r          analytics.InteractionRecord
		ts         int64
		promptText sql.NullString
		preview    sql.NullString
		status     string
		errMsg     sql.NullString
		metadata   sql.NullString
	)

	err := row.Scan(
		&r.ID, &ts, &r.Model, &r.Endpoint, &r.PromptCategory, &promptText, &preview,
		&r.DurationSeconds, &r.TokensGenerated, &r.PromptTokens,
		&r.EvalDurationSeconds, &r.LoadDurationSeconds, &r.TimeToFirstTokenSeconds,
		&r.UpstreamStatus, &status, &errMsg, &metadata,
	)
	if err != nil {
		return nil, err
	}

	r.Timestamp = time.Unix(0, ts).UTC()
	r.PromptText = promptText.String
	r.ResponsePreview = preview.String
	r.Status = analytics.Status(status)
	if errMsg.Valid {
		msg := errMsg.String
		r.ErrorMessage = &msg
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &r.Metadata); err != nil {
			r.Metadata = map[string]any{}
		}
	}

	return &r, nil
}
