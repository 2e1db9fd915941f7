package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request is a fully rendered request ready to be sent.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// NewRequest creates a new request
func NewRequest(method, rawURL string) *Request {
	return &Request{
		Method:  method,
		URL:     rawURL,
		Headers: make(map[string]string),
	}
}

// WithHeader adds a header to the request
func (r *Request) WithHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

// WithBody sets the body of the request
func (r *Request) WithBody(body string) *Request {
	r.Body = body
	return r
}

// ResolveURL joins a relative request URL with the base URL. Absolute URLs
// are returned unchanged.
func ResolveURL(baseURL, rawURL string) (string, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if target.IsAbs() || baseURL == "" {
		return target.String(), nil
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}

	// Join paths instead of RFC 3986 resolution so "/api" bases keep their prefix
	joined := *base
	joined.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(target.Path, "/")
	joined.RawQuery = target.RawQuery
	return joined.String(), nil
}

// Build constructs an http.Request bound to ctx.
func (r *Request) Build(ctx context.Context, baseURL string) (*http.Request, error) {
	method := strings.ToUpper(r.Method)
	if method == "" {
		method = http.MethodGet
	}

	fullURL, err := ResolveURL(baseURL, r.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", r.URL, err)
	}

	var body io.Reader
	if r.Body != "" {
		body = strings.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, err
	}

	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}
	if r.Body != "" && req.Header.Get("Content-Type") == "" && looksLikeJSON(r.Body) {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

func looksLikeJSON(body string) bool {
	trimmed := strings.TrimSpace(body)
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}
