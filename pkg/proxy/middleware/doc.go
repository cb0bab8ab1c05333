// Package middleware provides the HTTP middleware wrapped around the proxy
// and analytics routes.
//
// The server chains them outermost first:
//
//	RequestIDMiddleware -> LoggingMiddleware -> RecoveryMiddleware
//
// RequestIDMiddleware runs first so the request ID is in the context for
// every log line below it. RecoveryMiddleware sits inside logging so a
// recovered panic is logged as a 500. ConcurrencyLimit wraps only the
// catch-all proxy route.
package middleware
