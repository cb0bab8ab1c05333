package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the analytics schema.
// Timestamps are stored as unix nanoseconds so range filters are exact and
// independent of the driver's time handling.
const Schema = `
CREATE TABLE IF NOT EXISTS interactions (
    id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,

    model TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    prompt_category TEXT NOT NULL,
    prompt_text TEXT,
    response_preview TEXT,

    duration_seconds REAL NOT NULL DEFAULT 0,
    tokens_generated INTEGER NOT NULL DEFAULT 0,
    prompt_tokens INTEGER NOT NULL DEFAULT 0,
    tokens_per_second REAL NOT NULL DEFAULT 0,

    eval_duration_seconds REAL NOT NULL DEFAULT 0,
    load_duration_seconds REAL NOT NULL DEFAULT 0,
    time_to_first_token_seconds REAL NOT NULL DEFAULT 0,

    upstream_status INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    error_message TEXT,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_interactions_timestamp ON interactions(timestamp);
CREATE INDEX IF NOT EXISTS idx_interactions_model ON interactions(model);
CREATE INDEX IF NOT EXISTS idx_interactions_category ON interactions(prompt_category);
CREATE INDEX IF NOT EXISTS idx_interactions_status ON interactions(status);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`

// InsertSchemaVersion records the schema version if not already present.
const InsertSchemaVersion = `
INSERT OR IGNORE INTO schema_version (version, applied_at)
VALUES (?, strftime('%s', 'now'))
`

// GetSchemaVersion retrieves the current schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1
`

// selectColumns is the column list shared by every record query.
const selectColumns = `
    id, timestamp, model, endpoint, prompt_category, prompt_text, response_preview,
    duration_seconds, tokens_generated, prompt_tokens,
    eval_duration_seconds, load_duration_seconds, time_to_first_token_seconds,
    upstream_status, status, error_message, metadata
`

const insertInteraction = `
INSERT OR REPLACE INTO interactions (
    id, timestamp, model, endpoint, prompt_category, prompt_text, response_preview,
    duration_seconds, tokens_generated, prompt_tokens, tokens_per_second,
    eval_duration_seconds, load_duration_seconds, time_to_first_token_seconds,
    upstream_status, status, error_message, metadata
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// costExpr mirrors analytics.CalculateCost for SQL aggregation.
const costExpr = `CASE WHEN prompt_tokens > 0 AND tokens_generated > 0
    THEN prompt_tokens * 0.00001 + tokens_generated * 0.00003 ELSE 0 END`
