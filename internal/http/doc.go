// Package http provides the timed HTTP transport used by virtual users and
// by the setup phase.
//
// Requests are plain values (method, URL, headers, body) that have already
// been rendered from templates. The client reads every response body in
// full so checks can inspect it, and measures the request duration from
// sending the request until the last body byte was read. DNS, connect, TLS
// and time-to-first-byte phases are captured with net/http/httptrace.
//
// Example:
//
//	client := http.NewClient(http.DefaultClientConfig(), http.WithBaseURL("http://localhost:8080"))
//	resp, err := client.Do(ctx, http.NewRequest("GET", "/health"))
package http
