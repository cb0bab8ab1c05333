package analytics

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record lookup finds nothing.
	ErrNotFound = errors.New("record not found")

	// ErrWriterClosed is returned by operations on a closed writer.
	ErrWriterClosed = errors.New("analytics writer closed")

	// ErrSearchUnsupported is wrapped by CapabilityError for query
	// operations on backends without a query engine.
	ErrSearchUnsupported = errors.New("search not supported")

	// ErrQueueFull is reported when a record is dropped because the write
	// queue is at capacity.
	ErrQueueFull = errors.New("analytics queue full")
)

// StorageError represents an error from a storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "jsonl", etc.)
	Operation string // Operation that failed ("write", "search", "cleanup", etc.)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// CapabilityError is returned when the active backend does not support an
// operation, such as searching the append-only log. It is a caller error,
// not an internal failure.
type CapabilityError struct {
	Backend   string
	Operation string
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s not available with %s backend", e.Operation, e.Backend)
}

// Unwrap returns ErrSearchUnsupported.
func (e *CapabilityError) Unwrap() error {
	return ErrSearchUnsupported
}

// NewCapabilityError creates a new CapabilityError.
func NewCapabilityError(backend, operation string) *CapabilityError {
	return &CapabilityError{
		Backend:   backend,
		Operation: operation,
	}
}

// WriterError represents a failure inside the analytics writer pipeline.
type WriterError struct {
	Operation string // Operation that failed ("enqueue", "cleanup", "close")
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *WriterError) Error() string {
	return fmt.Sprintf("analytics writer error [operation=%s]: %v", e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *WriterError) Unwrap() error {
	return e.Cause
}

// NewWriterError creates a new WriterError.
func NewWriterError(operation string, cause error) *WriterError {
	return &WriterError{
		Operation: operation,
		Cause:     cause,
	}
}

// QueryError represents an invalid query parameter.
type QueryError struct {
	Field   string // Query field that failed validation
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// NewQueryError creates a new QueryError.
func NewQueryError(field, message string, cause error) *QueryError {
	return &QueryError{
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}

// RetentionError represents an error during a retention sweep.
type RetentionError struct {
	RetentionDays int   // Configured retention period
	Cause         error // Underlying error
}

// Error implements the error interface.
func (e *RetentionError) Error() string {
	return fmt.Sprintf("retention error [retention_days=%d]: %v", e.RetentionDays, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RetentionError) Unwrap() error {
	return e.Cause
}

// NewRetentionError creates a new RetentionError.
func NewRetentionError(retentionDays int, cause error) *RetentionError {
	return &RetentionError{
		RetentionDays: retentionDays,
		Cause:         cause,
	}
}

// ExportError represents an error during export.
type ExportError struct {
	Format      string // Export format ("json", "csv")
	RecordCount int    // Number of records being exported
	Cause       error  // Underlying error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [format=%s, record_count=%d]: %v", e.Format, e.RecordCount, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates a new ExportError.
func NewExportError(format string, recordCount int, cause error) *ExportError {
	return &ExportError{
		Format:      format,
		RecordCount: recordCount,
		Cause:       cause,
	}
}

// IsCapabilityError reports whether err is, or wraps, a CapabilityError.
func IsCapabilityError(err error) bool {
	var ce *CapabilityError
	return errors.As(err, &ce)
}

// IsQueryError reports whether err is, or wraps, a QueryError.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}
