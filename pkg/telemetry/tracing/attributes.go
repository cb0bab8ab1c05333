package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
)

// Span attribute keys for proxied interactions.
const (
	AttrInteractionID   = "ollama.interaction_id"
	AttrRequestID       = "ollama.request_id"
	AttrModel           = "ollama.model"
	AttrEndpoint        = "ollama.endpoint"
	AttrCategory        = "ollama.prompt_category"
	AttrStreaming       = "ollama.streaming"
	AttrTokensGenerated = "ollama.tokens.generated"
	AttrTokensPrompt    = "ollama.tokens.prompt"
	AttrTokensPerSecond = "ollama.tokens_per_second"
	AttrUpstreamStatus  = "ollama.upstream_status"
)

// RequestAttributes are set when the proxy span starts.
func RequestAttributes(interactionID, requestID, model, endpoint string, streaming bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrInteractionID, interactionID),
		attribute.String(AttrRequestID, requestID),
		attribute.String(AttrModel, model),
		attribute.String(AttrEndpoint, endpoint),
		attribute.Bool(AttrStreaming, streaming),
	}
}

// SetRecordAttributes copies the outcome of a finished interaction onto span.
func SetRecordAttributes(span trace.Span, r *analytics.InteractionRecord) {
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.String(AttrCategory, r.PromptCategory),
		attribute.Int(AttrTokensGenerated, r.TokensGenerated),
		attribute.Int(AttrTokensPrompt, r.PromptTokens),
		attribute.Float64(AttrTokensPerSecond, r.TokensPerSecond()),
		attribute.Int(AttrUpstreamStatus, r.UpstreamStatus),
	)
}
