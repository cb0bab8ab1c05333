package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorResponse is the JSON envelope returned when upstream cannot be
// reached. Streams that fail midway end with the same object as their last
// line.
type ErrorResponse struct {
	Error string `json:"error"`
}

// UpstreamError wraps a failure to contact or read from upstream.
type UpstreamError struct {
	Operation string
	Cause     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed: %v", e.Operation, e.Cause)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// NewUpstreamError creates a new UpstreamError.
func NewUpstreamError(operation string, cause error) *UpstreamError {
	return &UpstreamError{Operation: operation, Cause: cause}
}

// WriteErrorResponse writes a JSON error envelope with statusCode.
func WriteErrorResponse(w http.ResponseWriter, statusCode int, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// errorSentinel is appended to a stream that fails after relaying began.
func errorSentinel(message string) []byte {
	b, _ := json.Marshal(ErrorResponse{Error: message})
	return append(b, '\n')
}
