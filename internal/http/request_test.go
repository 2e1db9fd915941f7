package http

import (
	"context"
	"io"
	"testing"
)

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		raw     string
		want    string
		wantErr bool
	}{
		{"absolute wins", "http://base", "https://other/x", "https://other/x", false},
		{"relative joined", "http://base", "/v1/user/login", "http://base/v1/user/login", false},
		{"base path kept", "http://base/api/", "v1/order", "http://base/api/v1/order", false},
		{"query kept", "http://base", "/orders?page=2", "http://base/orders?page=2", false},
		{"no base", "", "/x", "/x", false},
		{"bad url", "http://base", "http://[::1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveURL(tt.base, tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequest_Build(t *testing.T) {
	req := NewRequest("post", "/login").WithBody(`{"email":"a@b.c"}`)

	httpReq, err := req.Build(context.Background(), "http://localhost:8080")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if httpReq.Method != "POST" {
		t.Errorf("Method = %s, want POST", httpReq.Method)
	}
	if httpReq.URL.String() != "http://localhost:8080/login" {
		t.Errorf("URL = %s", httpReq.URL.String())
	}
	if httpReq.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Expected JSON content type to be inferred")
	}

	body, _ := io.ReadAll(httpReq.Body)
	if string(body) != `{"email":"a@b.c"}` {
		t.Errorf("Body = %s", body)
	}
}

func TestRequest_Build_DefaultsToGET(t *testing.T) {
	httpReq, err := (&Request{URL: "http://localhost"}).Build(context.Background(), "")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if httpReq.Method != "GET" {
		t.Errorf("Method = %s, want GET", httpReq.Method)
	}
	if httpReq.Body != nil {
		t.Errorf("Expected nil body")
	}
}
