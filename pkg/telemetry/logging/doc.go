// Package logging provides structured logging with PII redaction.
//
// # Overview
//
// The logging package wraps log/slog to provide:
//   - JSON, text and console output formats
//   - A runtime-adjustable level, so a config reload can change verbosity
//   - Redaction of API keys, bearer tokens, passwords and e-mail addresses
//   - Request fields (request_id, interaction_id, model, trace_id) taken
//     from the context of every *Context log call
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:     "info",
//	    Format:    "json",
//	    RedactPII: true,
//	})
//	logger.SetDefault()
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	slog.InfoContext(ctx, "proxying request") // includes request_id
//
// Because redaction and context extraction live in the handler, loggers
// derived from slog.Default() get both.
//
// # Prompts
//
// Prompts are never logged in full. Use PromptPreview to log at most a
// short, redacted prefix.
package logging
