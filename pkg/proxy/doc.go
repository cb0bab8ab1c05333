// Package proxy implements the transparent reverse proxy in front of the
// model-serving daemon.
//
// Every inbound request is forwarded with its method, path, query string,
// headers and body unchanged, except for the Host, Content-Length and
// Transfer-Encoding headers. Generation endpoints (generate and chat on a
// body-carrying method) and requests with "stream": true are relayed chunk
// by chunk with a flush after each chunk. Everything else is buffered and
// copied through once complete.
//
// Metadata extraction is best effort on both legs. A body that is not JSON
// still reaches upstream byte for byte and is recorded with model "unknown"
// and category "empty". A response that cannot be parsed records zero
// tokens.
//
// Failure handling:
//
//   - Upstream unreachable: the caller gets a 500 with {"error": "..."}.
//   - Stream interrupted: chunks already relayed stand and a final
//     {"error": "..."} line is appended.
//   - Caller disconnects: relaying stops and the upstream request is
//     cancelled.
//   - Upstream non-2xx: relayed verbatim, recorded as an error.
//
// Whatever the outcome, exactly one interaction record is finalized per
// request. It is observed by the metrics aggregator and then handed to the
// analytics writer, which owns it from then on.
package proxy
