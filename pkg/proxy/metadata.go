package proxy

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
)

// UnknownEndpoint is recorded for requests to the root path.
const UnknownEndpoint = "unknown"

// generationEndpoints relay their responses chunk by chunk.
var generationEndpoints = map[string]bool{
	"generate": true,
	"chat":     true,
}

// RequestMetadata is the best-effort envelope extracted from an inbound
// request. It never alters what is forwarded.
type RequestMetadata struct {
	// Model named in the body, or analytics.UnknownModel.
	Model string

	// Prompt is the "prompt" field, or the content of the last user
	// message in "messages".
	Prompt string

	// Endpoint is the logical operation derived from the path.
	Endpoint string

	// Stream holds the body's "stream" field when present.
	Stream *bool
}

// EndpointFromPath derives the logical endpoint name: "/api/generate"
// becomes "generate", "/v1/chat/completions" stays "v1/chat/completions".
func EndpointFromPath(path string) string {
	endpoint := strings.Trim(path, "/")
	endpoint = strings.TrimPrefix(endpoint, "api/")
	if endpoint == "" || endpoint == "api" {
		return UnknownEndpoint
	}
	return endpoint
}

type requestEnvelope struct {
	Model    string          `json:"model"`
	Prompt   *string         `json:"prompt"`
	Messages []messageFields `json:"messages"`
	Stream   *bool           `json:"stream"`
}

type messageFields struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// ParseRequestMetadata extracts the model and prompt from body. Malformed
// or non-object bodies yield placeholders.
func ParseRequestMetadata(path string, body []byte) RequestMetadata {
	meta := RequestMetadata{
		Model:    analytics.UnknownModel,
		Endpoint: EndpointFromPath(path),
	}
	if len(body) == 0 {
		return meta
	}

	var env requestEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return meta
	}

	if env.Model != "" {
		meta.Model = env.Model
	}
	meta.Stream = env.Stream

	if env.Prompt != nil {
		meta.Prompt = *env.Prompt
		return meta
	}
	for i := len(env.Messages) - 1; i >= 0; i-- {
		if env.Messages[i].Role == "user" {
			meta.Prompt = messageText(env.Messages[i].Content)
			break
		}
	}
	return meta
}

// messageText returns string content as is and joins the text parts of
// multimodal content arrays.
func messageText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		if part.Type == "text" && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, " ")
}

// ShouldStream reports whether the response is relayed on the streaming
// path: generation endpoints on body-carrying methods, or any request whose
// body asks for "stream": true.
func ShouldStream(method string, meta RequestMetadata) bool {
	if meta.Stream != nil && *meta.Stream {
		return true
	}
	return generationEndpoints[meta.Endpoint] && hasBody(method)
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}
