package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// hopHeaders are not copied between the client and upstream legs.
var hopHeaders = []string{
	"Host",
	"Content-Length",
	"Transfer-Encoding",
}

// copyHeaders copies src into dst, skipping hop-by-hop headers.
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if isHopHeader(key) {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func isHopHeader(key string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(key, h) {
			return true
		}
	}
	return false
}

// upstreamURL joins the upstream base with the inbound path and raw query,
// unchanged.
func upstreamURL(base *url.URL, in *url.URL) string {
	u := *base
	u.Path = strings.TrimRight(base.Path, "/") + in.Path
	u.RawPath = ""
	if in.RawPath != "" {
		u.RawPath = strings.TrimRight(base.EscapedPath(), "/") + in.RawPath
	}
	u.RawQuery = in.RawQuery
	return u.String()
}

// newUpstreamRequest builds the outbound request carrying the original
// method, headers and body bytes.
func newUpstreamRequest(ctx context.Context, base *url.URL, in *http.Request, body []byte) (*http.Request, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	out, err := http.NewRequestWithContext(ctx, in.Method, upstreamURL(base, in.URL), reader)
	if err != nil {
		return nil, err
	}
	copyHeaders(out.Header, in.Header)
	return out, nil
}

// clientIP returns the caller address, preferring X-Forwarded-For.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
